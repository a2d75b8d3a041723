package content

import (
	"bytes"
	"fmt"
	"strings"

	"golang.org/x/net/html"
)

// HTML counts the visible words inside a content container of an HTML
// document. Container is "#id", ".class", a tag name, or empty for <body>.
type HTML struct {
	Doc       []byte
	Container string
}

var skippedElements = map[string]bool{
	"script":   true,
	"style":    true,
	"noscript": true,
	"template": true,
	"head":     true,
	"svg":      true,
}

var blockElements = map[string]bool{
	"p": true, "div": true, "br": true, "li": true, "ul": true, "ol": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	"tr": true, "td": true, "th": true, "table": true, "section": true, "article": true,
	"header": true, "footer": true, "blockquote": true, "pre": true, "main": true,
}

// CountWords implements reading.WordCounter
func (h HTML) CountWords() (int, error) {
	text, err := h.VisibleText()
	if err != nil {
		return 0, err
	}
	return CountWords(text), nil
}

// VisibleText returns the text a reader would see inside the container
func (h HTML) VisibleText() (string, error) {
	root, err := html.Parse(bytes.NewReader(h.Doc))
	if err != nil {
		return "", fmt.Errorf("failed to parse html: %w", err)
	}

	selector := strings.TrimSpace(h.Container)
	if selector == "" {
		selector = "body"
	}
	container := findContainer(root, selector)
	if container == nil {
		return "", fmt.Errorf("%w: %s", ErrNoContainer, selector)
	}

	var b strings.Builder
	collectText(container, &b)
	return b.String(), nil
}

func findContainer(n *html.Node, selector string) *html.Node {
	if n.Type == html.ElementNode && matches(n, selector) {
		return n
	}
	for child := n.FirstChild; child != nil; child = child.NextSibling {
		if found := findContainer(child, selector); found != nil {
			return found
		}
	}
	return nil
}

func matches(n *html.Node, selector string) bool {
	switch {
	case strings.HasPrefix(selector, "#"):
		return attr(n, "id") == selector[1:]
	case strings.HasPrefix(selector, "."):
		for _, class := range strings.Fields(attr(n, "class")) {
			if class == selector[1:] {
				return true
			}
		}
		return false
	default:
		return strings.EqualFold(n.Data, selector)
	}
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if strings.EqualFold(a.Key, key) {
			return a.Val
		}
	}
	return ""
}

func hidden(n *html.Node) bool {
	for _, a := range n.Attr {
		switch strings.ToLower(a.Key) {
		case "hidden":
			return true
		case "aria-hidden":
			if strings.EqualFold(a.Val, "true") {
				return true
			}
		case "style":
			style := strings.ToLower(strings.ReplaceAll(a.Val, " ", ""))
			if strings.Contains(style, "display:none") || strings.Contains(style, "visibility:hidden") {
				return true
			}
		}
	}
	return false
}

func collectText(n *html.Node, b *strings.Builder) {
	switch n.Type {
	case html.TextNode:
		b.WriteString(n.Data)
		return
	case html.ElementNode:
		if skippedElements[n.Data] || hidden(n) {
			return
		}
	}

	for child := n.FirstChild; child != nil; child = child.NextSibling {
		collectText(child, b)
	}
	if n.Type == html.ElementNode && blockElements[n.Data] {
		b.WriteByte(' ')
	}
}
