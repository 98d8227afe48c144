// Package session implements the file-backed secret store for the shared
// sign-in credential written by the Float desktop app. At-rest encryption is
// provided by the platform outside this boundary; the store keeps the file
// owner-readable only.
package session

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/transformahq/transforma-agent/internal/common"
	"github.com/transformahq/transforma-agent/internal/model"
)

// credentialFile is the JSON shape of the stored credential.
type credentialFile struct {
	Username  string `json:"username"`
	Token     string `json:"token"`
	ExpiresAt string `json:"expires_at"`
	UserID    string `json:"user_id"`
}

// Store reads and writes the per-user session credential.
type Store struct {
	now  func() time.Time
	path string
}

// Option customizes a Store.
type Option func(*Store)

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// NewStore creates a store backed by the credential file at path.
func NewStore(path string, opts ...Option) *Store {
	s := &Store{path: path, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Load returns the stored credential. On any failure the credential carries
// Valid=false and a human-readable Err; Load never returns an error because
// a missing or broken session is an expected state, not a fault.
func (s *Store) Load() model.Credential {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return invalid(common.ErrNoSession.Error())
		}
		return invalid("session unreadable")
	}

	if len(data) == 0 {
		return invalid("empty session file")
	}

	var file credentialFile
	if err := json.Unmarshal(data, &file); err != nil {
		return invalid("corrupted session data")
	}

	if file.Token == "" {
		return invalid("invalid session data (no token)")
	}

	cred := model.Credential{
		Username: file.Username,
		Token:    file.Token,
		UserID:   file.UserID,
	}

	if file.ExpiresAt != "" {
		expiry, parseErr := time.Parse(time.RFC3339, file.ExpiresAt)
		if parseErr != nil {
			return invalid("invalid session expiry")
		}
		cred.ExpiresAt = expiry
	}

	// A missing expiry counts as expired: fail closed rather than trust a
	// token with no issued window.
	if cred.Expired(s.now()) {
		cred.Err = common.ErrSessionExpired.Error()
		return cred
	}

	cred.Valid = true
	return cred
}

// Save writes the credential, creating the directory if needed. The file is
// written owner-only.
func (s *Store) Save(cred model.Credential) error {
	if cred.Token == "" {
		return fmt.Errorf("cannot save session without a token")
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("failed to create session directory: %w", err)
	}

	file := credentialFile{
		Username: cred.Username,
		Token:    cred.Token,
		UserID:   cred.UserID,
	}
	if !cred.ExpiresAt.IsZero() {
		file.ExpiresAt = cred.ExpiresAt.Format(time.RFC3339)
	}

	data, err := json.Marshal(file)
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}

	if err := os.WriteFile(s.path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write session file: %w", err)
	}
	return nil
}

// HasValid reports whether a valid, unexpired session exists.
func (s *Store) HasValid() bool {
	return s.Load().Valid
}

// Clear deletes the stored session (logout). Clearing an absent session is
// not an error.
func (s *Store) Clear() error {
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove session file: %w", err)
	}
	return nil
}

func invalid(reason string) model.Credential {
	return model.Credential{Err: reason}
}
