// Package content measures the visible word count of training modules and
// simulated phishing emails in their different source formats.
package content

import (
	"fmt"
	"strings"

	"phishguard/internal/reading"
)

// Content types accepted by ForType
const (
	TypeText     = "text"
	TypeHTML     = "html"
	TypeMarkdown = "markdown"
	TypePDF      = "pdf"
)

// CountWords splits on whitespace and discards empty tokens
func CountWords(text string) int {
	return len(strings.Fields(text))
}

// Text is plain text content
type Text string

// CountWords implements reading.WordCounter
func (t Text) CountWords() (int, error) {
	return CountWords(string(t)), nil
}

// IsPDF reports whether contentType names a PDF document
func IsPDF(contentType string) bool {
	switch strings.ToLower(strings.TrimSpace(contentType)) {
	case TypePDF, "application/pdf":
		return true
	}
	return false
}

// ForType picks a counter for raw content. container only applies to HTML.
func ForType(contentType, raw, container string) (reading.WordCounter, error) {
	switch strings.ToLower(strings.TrimSpace(contentType)) {
	case "", TypeText, "text/plain":
		return Text(raw), nil
	case TypeHTML, "text/html":
		return HTML{Doc: []byte(raw), Container: container}, nil
	case TypeMarkdown, "md", "text/markdown":
		return Markdown{Source: []byte(raw)}, nil
	case TypePDF, "application/pdf":
		return PDF{Data: []byte(raw)}, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedType, contentType)
	}
}
