package inbound

import (
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// ExtractText reduces HTML note content to its text content. Each
// paragraph contributes a trailing newline; control characters other
// than newline are stripped.
func ExtractText(content string) string {
	context := &html.Node{
		Type:     html.ElementNode,
		Data:     "div",
		DataAtom: atom.Div,
	}
	nodes, err := html.ParseFragment(strings.NewReader(content), context)
	if err != nil {
		return stripControl(content)
	}

	var b strings.Builder
	for _, node := range nodes {
		appendText(&b, node)
	}
	return stripControl(b.String())
}

func appendText(b *strings.Builder, node *html.Node) {
	if node.Type == html.TextNode {
		b.WriteString(node.Data)
		return
	}
	for child := node.FirstChild; child != nil; child = child.NextSibling {
		appendText(b, child)
	}
	if node.Type == html.ElementNode && node.DataAtom == atom.P {
		b.WriteByte('\n')
	}
}

func stripControl(s string) string {
	return strings.Map(func(r rune) rune {
		if r == '\n' {
			return r
		}
		if r < 0x20 || r == 0x7f {
			return -1
		}
		return r
	}, s)
}
