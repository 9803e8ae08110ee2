package references

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/ledongthuc/pdf"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Elements whose text is page chrome rather than document content.
var skippedElements = map[atom.Atom]struct{}{
	atom.Script:   {},
	atom.Style:    {},
	atom.Nav:      {},
	atom.Footer:   {},
	atom.Header:   {},
	atom.Noscript: {},
}

var blockElements = map[atom.Atom]struct{}{
	atom.P: {}, atom.Div: {}, atom.Br: {}, atom.Li: {}, atom.Tr: {},
	atom.H1: {}, atom.H2: {}, atom.H3: {}, atom.H4: {}, atom.H5: {}, atom.H6: {},
	atom.Pre: {}, atom.Section: {}, atom.Article: {}, atom.Blockquote: {},
	atom.Title: {}, atom.Table: {}, atom.Ul: {}, atom.Ol: {}, atom.Dd: {}, atom.Dt: {},
}

func extractHTML(body []byte) (string, error) {
	doc, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("parsing HTML: %w", err)
	}

	var sb strings.Builder
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.ElementNode:
			if _, skip := skippedElements[n.DataAtom]; skip {
				return
			}
		case html.TextNode:
			sb.WriteString(n.Data)
		case html.CommentNode, html.DoctypeNode:
			return
		}

		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}

		if n.Type == html.ElementNode {
			if _, block := blockElements[n.DataAtom]; block {
				sb.WriteByte('\n')
			}
		}
	}
	walk(doc)

	return normalizeText(sb.String()), nil
}

// normalizeText trims every line, breaks lines on runs of two spaces and
// drops empty chunks.
func normalizeText(s string) string {
	var chunks []string
	for _, line := range strings.Split(s, "\n") {
		line = strings.TrimSpace(line)
		for _, phrase := range strings.Split(line, "  ") {
			if phrase = strings.TrimSpace(phrase); phrase != "" {
				chunks = append(chunks, phrase)
			}
		}
	}
	return strings.Join(chunks, "\n")
}

func extractPDF(body []byte) (text string, err error) {
	// the PDF reader panics on some malformed inputs
	defer func() {
		if r := recover(); r != nil {
			text = ""
			err = fmt.Errorf("reading PDF: %v", r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(body), int64(len(body)))
	if err != nil {
		return "", fmt.Errorf("opening PDF: %w", err)
	}

	plain, err := reader.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("extracting PDF text: %w", err)
	}

	data, err := io.ReadAll(plain)
	if err != nil {
		return "", fmt.Errorf("extracting PDF text: %w", err)
	}

	return strings.TrimSpace(string(data)), nil
}
