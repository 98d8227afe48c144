// Package relay implements the HTTP client for submitting invoices to the
// Helium Relay service.
package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net"
	"net/http"
	"net/textproto"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/transformahq/transforma-agent/internal/common"
	"github.com/transformahq/transforma-agent/internal/model"
)

// sourceName identifies this client in ingest requests.
const sourceName = "transforma_reader"

// Config holds the relay endpoint and timeout settings.
type Config struct {
	Host           string
	Port           int
	DialTimeout    time.Duration
	RequestTimeout time.Duration
}

// DefaultConfig returns the default relay configuration.
func DefaultConfig() Config {
	return Config{
		Host:           "localhost",
		Port:           8082,
		DialTimeout:    5 * time.Second,
		RequestTimeout: 30 * time.Second,
	}
}

// Client submits invoices to the relay over HTTP. Every call is bounded by
// the configured timeouts so a stalled relay cannot hang a caller
// indefinitely.
type Client struct {
	httpClient *http.Client
	baseURL    string
}

// NewClient creates a relay client.
func NewClient(cfg Config) *Client {
	def := DefaultConfig()
	if cfg.Host == "" {
		cfg.Host = def.Host
	}
	if cfg.Port == 0 {
		cfg.Port = def.Port
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = def.DialTimeout
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = def.RequestTimeout
	}

	return &Client{
		baseURL: fmt.Sprintf("http://%s:%d", cfg.Host, cfg.Port),
		httpClient: &http.Client{
			Timeout: cfg.RequestTimeout,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{
					Timeout: cfg.DialTimeout,
				}).DialContext,
				ResponseHeaderTimeout: cfg.RequestTimeout,
			},
		},
	}
}

// NewClientForURL creates a client against an explicit base URL, for tests.
func NewClientForURL(baseURL string) *Client {
	c := NewClient(DefaultConfig())
	c.baseURL = baseURL
	return c
}

// ingestResponse is the relay's JSON reply to a successful ingest.
type ingestResponse struct {
	FileUUID      string `json:"file_uuid"`
	FIRSReference string `json:"firs_reference"`
}

// Submit uploads the document at documentPath as multipart form data
// (POST /api/ingest). Duplicate and rate-limit responses surface as
// common.ErrDuplicateSubmission and common.ErrRateLimited.
func (c *Client) Submit(ctx context.Context, documentPath, user, token string) (model.SubmitReceipt, error) {
	body, contentType, err := buildIngestBody(documentPath, user)
	if err != nil {
		return model.SubmitReceipt{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/ingest", body)
	if err != nil {
		return model.SubmitReceipt{}, fmt.Errorf("failed to create ingest request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Authorization", "Bearer "+token)

	requestID := uuid.NewString()
	req.Header.Set("X-Request-ID", requestID)

	slog.Debug("Submitting invoice to relay",
		"document", filepath.Base(documentPath),
		"request_id", requestID)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return model.SubmitReceipt{}, fmt.Errorf("%w: %v", common.ErrRelayUnavailable, err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			slog.Debug("Failed to close relay response body", "error", closeErr)
		}
	}()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated:
		var parsed ingestResponse
		if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
			return model.SubmitReceipt{}, fmt.Errorf("failed to parse relay response: %w", err)
		}
		return model.SubmitReceipt{
			Reference:  parsed.FIRSReference,
			FileID:     parsed.FileUUID,
			StatusCode: resp.StatusCode,
		}, nil
	case http.StatusConflict:
		return model.SubmitReceipt{}, fmt.Errorf("%w (HTTP %d)", common.ErrDuplicateSubmission, resp.StatusCode)
	case http.StatusTooManyRequests:
		return model.SubmitReceipt{}, fmt.Errorf("%w (HTTP %d)", common.ErrRateLimited, resp.StatusCode)
	default:
		return model.SubmitReceipt{}, fmt.Errorf("relay returned HTTP %d", resp.StatusCode)
	}
}

// IsAvailable reports whether the relay answers its health endpoint.
func (c *Client) IsAvailable(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return false
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			slog.Debug("Failed to close relay response body", "error", closeErr)
		}
	}()

	return resp.StatusCode == http.StatusOK
}

// buildIngestBody assembles the multipart form: source, user, then the
// document bytes as an application/pdf file part.
func buildIngestBody(documentPath, user string) (*bytes.Buffer, string, error) {
	data, err := os.ReadFile(documentPath)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read document: %w", err)
	}

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	if err := w.WriteField("source", sourceName); err != nil {
		return nil, "", fmt.Errorf("failed to write form field: %w", err)
	}
	if err := w.WriteField("user", user); err != nil {
		return nil, "", fmt.Errorf("failed to write form field: %w", err)
	}

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition",
		fmt.Sprintf(`form-data; name="file"; filename=%q`, filepath.Base(documentPath)))
	header.Set("Content-Type", "application/pdf")

	part, err := w.CreatePart(header)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create file part: %w", err)
	}
	if _, err := io.Copy(part, bytes.NewReader(data)); err != nil {
		return nil, "", fmt.Errorf("failed to write file part: %w", err)
	}

	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("failed to finalize form body: %w", err)
	}
	return &buf, w.FormDataContentType(), nil
}
