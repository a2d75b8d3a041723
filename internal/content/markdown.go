package content

import (
	"bytes"
	"fmt"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

// Markdown counts the words of a Markdown training module as rendered
type Markdown struct {
	Source []byte
}

var markdownRenderer = goldmark.New(
	goldmark.WithExtensions(
		extension.GFM,
	),
)

// CountWords implements reading.WordCounter
func (m Markdown) CountWords() (int, error) {
	var buf bytes.Buffer
	if err := markdownRenderer.Convert(m.Source, &buf); err != nil {
		return 0, fmt.Errorf("failed to convert markdown: %w", err)
	}
	return HTML{Doc: buf.Bytes()}.CountWords()
}
