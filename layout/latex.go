package layout

import (
	"bytes"
	"fmt"
	"strings"

	treeblood "github.com/wyatt915/goldmark-treeblood"
	"github.com/yuin/goldmark"
	"golang.org/x/net/html"

	"github.com/wudi/pdfcompose/builder"
)

// RenderLaTeX converts a LaTeX math expression to MathML and adds it as a
// paragraph in linear form.
func (e *Engine) RenderLaTeX(latex string) error {
	text, err := LaTeXText(latex)
	if err != nil {
		return err
	}
	return e.paragraph([]builder.Run{{Text: text}}, builder.Style{})
}

// LaTeXText returns the linear text form of a LaTeX math expression, for
// example "x^2 + y^2 = z^2" or "(a + b)/2".
func LaTeXText(latex string) (string, error) {
	md := goldmark.New(goldmark.WithExtensions(treeblood.MathML()))
	var buf bytes.Buffer
	if err := md.Convert([]byte("$$"+latex+"$$"), &buf); err != nil {
		return "", fmt.Errorf("convert latex: %w", err)
	}
	root, err := html.Parse(&buf)
	if err != nil {
		return "", fmt.Errorf("parse mathml: %w", err)
	}
	var parts []string
	var find func(*html.Node)
	find = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "math" {
			parts = append(parts, linearizeMath(n))
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			find(c)
		}
	}
	find(root)
	if len(parts) == 0 {
		// not recognized as math; keep the source
		return strings.TrimSpace(latex), nil
	}
	return strings.Join(parts, " "), nil
}
