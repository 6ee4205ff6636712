package browser

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/net/html"
)

// VisibleText extracts the human-readable text of an HTML document, one
// block per line, dropping scripts, styles and other non-rendered content.
// The result is cut to at most maxLength bytes, on a rune boundary, with a
// trailing "..." when longer.
// It is used to attach what the user would have seen to failure logs.
func VisibleText(rawHTML string, maxLength int) (string, error) {
	doc, err := html.Parse(strings.NewReader(rawHTML))
	if err != nil {
		return "", fmt.Errorf("failed to parse HTML: %w", err)
	}

	var lines []string
	var current strings.Builder
	flush := func() {
		if line := strings.TrimSpace(current.String()); line != "" {
			lines = append(lines, line)
		}
		current.Reset()
	}

	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.CommentNode:
			return
		case html.ElementNode:
			tagName := strings.ToLower(n.Data)
			if isSkippedElement(tagName) || isHiddenElement(n) {
				return
			}
			if isBlockElement(tagName) {
				flush()
				defer flush()
			}
		case html.TextNode:
			if text := strings.Join(strings.Fields(n.Data), " "); text != "" {
				if current.Len() > 0 {
					current.WriteString(" ")
				}
				current.WriteString(text)
			}
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	flush()

	text := strings.Join(lines, "\n")
	if maxLength > 0 && len(text) > maxLength {
		cut := maxLength
		for cut > 0 && !utf8.RuneStart(text[cut]) {
			cut--
		}
		text = text[:cut] + "..."
	}
	return text, nil
}

// isSkippedElement returns true for elements whose text is never rendered
func isSkippedElement(tagName string) bool {
	skipped := map[string]bool{
		"head":     true,
		"script":   true,
		"style":    true,
		"noscript": true,
		"template": true,
		"iframe":   true,
		"svg":      true,
	}
	return skipped[tagName]
}

// isHiddenElement returns true for elements hidden through attributes
func isHiddenElement(n *html.Node) bool {
	for _, attr := range n.Attr {
		switch strings.ToLower(attr.Key) {
		case "hidden":
			return true
		case "aria-hidden":
			if attr.Val == "true" {
				return true
			}
		}
	}
	return false
}

// isBlockElement returns true for elements that start a new line of text
func isBlockElement(tagName string) bool {
	blocks := map[string]bool{
		"div":     true,
		"p":       true,
		"section": true,
		"article": true,
		"header":  true,
		"footer":  true,
		"nav":     true,
		"main":    true,
		"aside":   true,
		"h1":      true,
		"h2":      true,
		"h3":      true,
		"h4":      true,
		"h5":      true,
		"h6":      true,
		"ul":      true,
		"ol":      true,
		"li":      true,
		"table":   true,
		"tr":      true,
		"form":    true,
		"label":   true,
		"button":  true,
		"br":      true,
	}
	return blocks[tagName]
}
