package extract

import (
	"bytes"
	"strings"

	"golang.org/x/net/html"
)

// skipElements are subtrees dropped entirely during text extraction.
var skipElements = map[string]bool{
	"script": true,
	"style":  true,
	"nav":    true,
	"footer": true,
	"header": true,
}

// FromHTML parses raw HTML and returns the page title and its visible text.
// Text nodes are joined with newlines; script, style, and chrome elements
// (nav, footer, header) are dropped.
func FromHTML(raw []byte) (title, text string, err error) {
	root, err := html.Parse(bytes.NewReader(raw))
	if err != nil {
		return "", "", &Error{Kind: "html", Err: err}
	}

	var sb strings.Builder
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.ElementNode:
			if skipElements[n.Data] {
				return
			}
			if n.Data == "title" && title == "" {
				if n.FirstChild != nil && n.FirstChild.Type == html.TextNode {
					title = strings.TrimSpace(n.FirstChild.Data)
				}
				return
			}
		case html.TextNode:
			if t := strings.TrimSpace(n.Data); t != "" {
				sb.WriteString(t)
				sb.WriteByte('\n')
			}
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)

	return title, sb.String(), nil
}
