package router

import (
	"io"
	"log/slog"
	"os"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
)

// rawScanLimit bounds how much of the file the fallback scanner reads.
const rawScanLimit = 8192

// minRunLen is the shortest printable run the scanner keeps.
const minRunLen = 4

// FirstPageExtractor pulls a bounded text snippet from the first page of a
// PDF. It prefers the page-1 content stream via pdfcpu and falls back to
// scanning the leading bytes for printable runs when the file cannot be
// parsed as a PDF.
type FirstPageExtractor struct{}

// NewExtractor creates a FirstPageExtractor.
func NewExtractor() *FirstPageExtractor {
	return &FirstPageExtractor{}
}

// ExtractFirstPage is best-effort: it returns an empty string on any failure
// and never errors.
func (e *FirstPageExtractor) ExtractFirstPage(documentPath string, maxChars int) string {
	if maxChars <= 0 {
		maxChars = DefaultConfig().MaxChars
	}

	f, err := os.Open(documentPath)
	if err != nil {
		return ""
	}
	defer func() {
		if closeErr := f.Close(); closeErr != nil {
			slog.Debug("Failed to close document", "path", documentPath, "error", closeErr)
		}
	}()

	if text := extractPageContent(f, maxChars); text != "" {
		return text
	}

	// Not a parseable PDF, or an empty content stream. Scan the leading
	// bytes directly; invoices generated by office tools often carry
	// readable text there.
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return ""
	}
	buf := make([]byte, rawScanLimit)
	n, _ := f.Read(buf)
	return printableRuns(buf[:n], maxChars)
}

// extractPageContent reads the page-1 content stream through pdfcpu and
// reduces it to printable runs.
func extractPageContent(f *os.File, maxChars int) string {
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return ""
	}
	count, err := api.PageCount(f, nil)
	if err != nil || count == 0 {
		return ""
	}

	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return ""
	}
	ctx, err := api.ReadValidateAndOptimize(f, nil)
	if err != nil {
		return ""
	}
	r, err := pdfcpu.ExtractPageContent(ctx, 1)
	if err != nil || r == nil {
		return ""
	}

	content, err := io.ReadAll(io.LimitReader(r, rawScanLimit))
	if err != nil {
		return ""
	}
	return printableRuns(content, maxChars)
}

// printableRuns collects runs of printable ASCII of at least minRunLen,
// joined by single spaces and truncated to maxChars.
func printableRuns(data []byte, maxChars int) string {
	var text, run []byte

	flush := func() {
		if len(run) >= minRunLen {
			if len(text) > 0 {
				text = append(text, ' ')
			}
			text = append(text, run...)
		}
		run = run[:0]
	}

	for _, c := range data {
		if len(text) >= maxChars {
			break
		}
		if c >= 32 && c < 127 {
			run = append(run, c)
		} else {
			flush()
		}
	}
	flush()

	if len(text) > maxChars {
		text = text[:maxChars]
	}
	return string(text)
}
