package lib

import (
	"bytes"
	"regexp"
	"strings"

	"github.com/antchfx/htmlquery"
	"golang.org/x/net/html"
)

const previewTextLimit = 150

var whitespace = regexp.MustCompile(`\s+`)

// previewText collects the visible text of a rendered HTML body and
// compacts it into the campaign's inbox preview line.
func previewText(htmlBody string, limit int) string {
	doc, err := htmlquery.Parse(strings.NewReader(htmlBody))
	if err != nil {
		return ""
	}

	text := digForText(htmlquery.FindOne(doc, "//body"))
	return truncate(text, limit)
}

func digForText(n *html.Node) string {
	if n == nil {
		return ""
	}
	buf := new(bytes.Buffer)
	dig(n, buf)
	return compactWhitespace(buf.String())
}

func dig(n *html.Node, buf *bytes.Buffer) {
	if n == nil {
		return
	}
	if n.Type == html.TextNode {
		buf.WriteString(n.Data)
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		dig(c, buf)
	}
}

func compactWhitespace(s string) string {
	s = whitespace.ReplaceAllString(s, " ")
	s = strings.Trim(s, " ")
	return s
}

func truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return strings.TrimRight(string(runes[:limit]), " ") + "..."
}
