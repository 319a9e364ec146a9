package corpus

import (
	"fmt"
	"io"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// ParseHTML reads a play in the layout of the MIT Shakespeare editions: every
// speech is an anchor named "speech<N>" whose first child holds the speaker's
// name, followed by a blockquote with one anchor per verse line.
//
// Lines of a speech are normalised individually and joined with newlines.
func ParseHTML(r io.Reader) (*Corpus, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("corpus: parse html: %w", err)
	}

	c := New()
	for n := range doc.Descendants() {
		if n.Type != html.ElementNode || n.DataAtom != atom.A {
			continue
		}
		if !strings.HasPrefix(strings.ToLower(attr(n, "name")), "speech") {
			continue
		}
		speaker := strings.TrimSpace(textContent(firstElement(n)))
		quote := nextElement(n)
		if speaker == "" || quote == nil {
			continue
		}

		var lines []string
		for l := range quote.Descendants() {
			if l.Type == html.ElementNode && l.DataAtom == atom.A {
				lines = append(lines, Normalize(textContent(l)))
			}
		}
		c.Add(speaker, strings.Join(lines, "\n"))
	}
	return c, nil
}

// ── helpers ──────────────────────────────────────────────────────────────────

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if strings.EqualFold(a.Key, key) {
			return a.Val
		}
	}
	return ""
}

func firstElement(n *html.Node) *html.Node {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode {
			return c
		}
	}
	return nil
}

func nextElement(n *html.Node) *html.Node {
	for s := n.NextSibling; s != nil; s = s.NextSibling {
		if s.Type == html.ElementNode {
			return s
		}
	}
	return nil
}

func textContent(n *html.Node) string {
	if n == nil {
		return ""
	}
	var sb strings.Builder
	for d := range n.Descendants() {
		if d.Type == html.TextNode {
			sb.WriteString(d.Data)
		}
	}
	return sb.String()
}
