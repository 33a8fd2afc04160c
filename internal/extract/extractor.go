// Package extract turns raw file bytes into clean text. It never fails: problems
// are reported as Degradations next to whatever text could be recovered.
package extract

import (
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"
)

// MimeTypePDF is the only non-text type the extractor understands.
const MimeTypePDF = "application/pdf"

// DegradationKind classifies why extraction lost content.
type DegradationKind string

const (
	// DecodeFailed means a text file was not valid UTF-8 and was treated as binary.
	DecodeFailed DegradationKind = "decode_failed"
	// PageFailed means a single PDF page could not be read.
	PageFailed DegradationKind = "page_failed"
	// ParseFailed means the PDF structure was unreadable and raw bytes were used instead.
	ParseFailed DegradationKind = "parse_failed"
	// InvalidSequencesDropped means malformed code points were removed from the text.
	InvalidSequencesDropped DegradationKind = "invalid_sequences_dropped"
	// Unsupported means the MIME type has no extractor.
	Unsupported DegradationKind = "unsupported"
)

// Degradation records one loss of fidelity.
type Degradation struct {
	Kind   DegradationKind
	Page   int // 1-based PDF page, zero otherwise
	Detail string
}

func (d Degradation) String() string {
	if d.Page > 0 {
		return fmt.Sprintf("%s (page %d): %s", d.Kind, d.Page, d.Detail)
	}
	if d.Detail == "" {
		return string(d.Kind)
	}
	return fmt.Sprintf("%s: %s", d.Kind, d.Detail)
}

// Result is the best-effort text of a file.
type Result struct {
	Text         string
	Degradations []Degradation
}

// Degraded reports whether any content was lost.
func (r Result) Degraded() bool { return len(r.Degradations) > 0 }

// Blank reports whether the text is empty or whitespace only.
func (r Result) Blank() bool { return strings.TrimSpace(r.Text) == "" }

// Supported reports whether mimeType can be extracted.
func Supported(mimeType string) bool {
	return strings.HasPrefix(mimeType, "text/") || mimeType == MimeTypePDF
}

// Extractor dispatches on MIME type.
type Extractor struct {
	openPDF PDFOpener
	logger  *slog.Logger
}

// New returns an Extractor backed by the ledongthuc/pdf reader.
func New(logger *slog.Logger) *Extractor {
	return NewWithPDFOpener(OpenPDF, logger)
}

// NewWithPDFOpener returns an Extractor using a custom PDF reader.
func NewWithPDFOpener(opener PDFOpener, logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{openPDF: opener, logger: logger}
}

// Extract converts content to text according to mimeType.
func (e *Extractor) Extract(content []byte, mimeType string) Result {
	var res Result
	switch {
	case strings.HasPrefix(mimeType, "text/"):
		res = extractPlainText(content)
	case mimeType == MimeTypePDF:
		res = e.extractPDF(content)
	default:
		res = Result{Degradations: []Degradation{{Kind: Unsupported, Detail: mimeType}}}
	}

	for _, d := range res.Degradations {
		e.logger.Warn("Extraction degraded", "mime_type", mimeType, "degradation", d.String())
	}
	return res
}

// extractPlainText requires valid UTF-8; anything else is treated as binary.
func extractPlainText(content []byte) Result {
	if !utf8.Valid(content) {
		return Result{Degradations: []Degradation{{Kind: DecodeFailed, Detail: "content is not valid UTF-8"}}}
	}
	return Result{Text: strings.TrimPrefix(string(content), "\uFEFF")}
}
