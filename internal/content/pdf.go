package content

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
)

// MaxPDFPages limits the number of pages counted for a single module
const MaxPDFPages = 200

var (
	// ErrEmptyPDF is returned when a document has no pages
	ErrEmptyPDF = errors.New("content: pdf has no pages")
	// ErrTooManyPages is returned when a document exceeds MaxPDFPages
	ErrTooManyPages = errors.New("content: pdf has too many pages")
)

// PDF counts the words of a PDF training module
type PDF struct {
	Data []byte
}

// CountWords implements reading.WordCounter. Pages whose text cannot be
// extracted are skipped.
func (p PDF) CountWords() (int, error) {
	reader, err := pdf.NewReader(bytes.NewReader(p.Data), int64(len(p.Data)))
	if err != nil {
		return 0, fmt.Errorf("failed to open PDF: %w", err)
	}

	totalPages := reader.NumPage()
	if totalPages == 0 {
		return 0, ErrEmptyPDF
	}
	if totalPages > MaxPDFPages {
		return 0, fmt.Errorf("%w: %d > %d", ErrTooManyPages, totalPages, MaxPDFPages)
	}

	words := 0
	for pageNum := 1; pageNum <= totalPages; pageNum++ {
		page := reader.Page(pageNum)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		words += CountWords(strings.ReplaceAll(text, "\x00", ""))
	}
	return words, nil
}
