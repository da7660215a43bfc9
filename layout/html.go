package layout

import (
	"fmt"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/wudi/pdfcompose/builder"
	"github.com/wudi/pdfcompose/observability"
)

// RenderHTML renders an HTML fragment or page. The <title> element and
// <meta name="author|subject|keywords"> become document metadata; scripts and
// styles are ignored.
func (e *Engine) RenderHTML(source string) error {
	root, err := html.Parse(strings.NewReader(source))
	if err != nil {
		return fmt.Errorf("parse html: %w", err)
	}
	r := &htmlRenderer{e: e}
	if err := r.blocks(root, 0, builder.Style{}); err != nil {
		return err
	}
	if err := r.flush(); err != nil {
		return err
	}
	e.logger.Debug("html rendered", observability.Int("bytes", len(source)))
	return nil
}

type htmlRenderer struct {
	e *Engine
	// pending inline content between block elements
	runs []builder.Run
}

func (r *htmlRenderer) flush() error {
	runs := trimRuns(r.runs)
	r.runs = nil
	return r.e.paragraph(runs, builder.Style{})
}

func (r *htmlRenderer) blocks(n *html.Node, depth int, st builder.Style) error {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if err := r.node(c, depth, st); err != nil {
			return err
		}
	}
	return nil
}

func (r *htmlRenderer) node(n *html.Node, depth int, st builder.Style) error {
	switch n.Type {
	case html.TextNode:
		r.runs = append(r.runs, builder.Run{Text: collapse(n.Data), Style: st})
		return nil
	case html.ElementNode:
	default:
		return r.blocks(n, depth, st)
	}

	if n.Data == "math" {
		r.runs = append(r.runs, builder.Run{Text: linearizeMath(n), Style: st})
		return nil
	}
	switch n.DataAtom {
	case atom.Head:
		return r.head(n)
	case atom.Script, atom.Style, atom.Template, atom.Img:
		return nil
	case atom.H1, atom.H2, atom.H3, atom.H4, atom.H5, atom.H6:
		if err := r.flush(); err != nil {
			return err
		}
		level := int(n.Data[1] - '0')
		return r.e.heading(level, trimRuns(r.inline(n, builder.Style{}, nil)))
	case atom.P, atom.Div, atom.Section, atom.Article, atom.Header, atom.Footer, atom.Main:
		if err := r.flush(); err != nil {
			return err
		}
		if err := r.blocks(n, depth, st); err != nil {
			return err
		}
		return r.flush()
	case atom.Blockquote:
		if err := r.flush(); err != nil {
			return err
		}
		quoted := st
		quoted.Italic = true
		if err := r.blocks(n, depth+1, quoted); err != nil {
			return err
		}
		return r.flush()
	case atom.Ul, atom.Ol:
		if err := r.flush(); err != nil {
			return err
		}
		return r.list(n, depth, st)
	case atom.Pre:
		if err := r.flush(); err != nil {
			return err
		}
		return r.e.code(rawText(n))
	case atom.Br:
		r.runs = append(r.runs, builder.Run{Text: "\n", Style: st})
		return nil
	}
	if s, ok := inlineStyle(n, st); ok {
		r.runs = r.inline(n, s, r.runs)
		return nil
	}
	return r.blocks(n, depth, st)
}

func (r *htmlRenderer) list(n *html.Node, depth int, st builder.Style) error {
	num := 1
	for li := n.FirstChild; li != nil; li = li.NextSibling {
		if li.Type != html.ElementNode || li.DataAtom != atom.Li {
			continue
		}
		marker := "•"
		if n.DataAtom == atom.Ol {
			marker = fmt.Sprintf("%d.", num)
			num++
		}
		var nested []*html.Node
		var runs []builder.Run
		for c := li.FirstChild; c != nil; c = c.NextSibling {
			if c.Type == html.ElementNode && (c.DataAtom == atom.Ul || c.DataAtom == atom.Ol) {
				nested = append(nested, c)
				continue
			}
			runs = r.inline(c, st, runs)
		}
		if err := r.e.listItem(depth, marker, trimRuns(runs)); err != nil {
			return err
		}
		for _, c := range nested {
			if err := r.list(c, depth+1, st); err != nil {
				return err
			}
		}
	}
	return nil
}

// inline collects the text below n, applying inline element styles.
func (r *htmlRenderer) inline(n *html.Node, st builder.Style, out []builder.Run) []builder.Run {
	switch n.Type {
	case html.TextNode:
		return append(out, builder.Run{Text: collapse(n.Data), Style: st})
	case html.ElementNode:
		if n.Data == "math" {
			return append(out, builder.Run{Text: linearizeMath(n), Style: st})
		}
		switch n.DataAtom {
		case atom.Br:
			return append(out, builder.Run{Text: "\n", Style: st})
		case atom.Script, atom.Style:
			return out
		}
		if s, ok := inlineStyle(n, st); ok {
			st = s
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		out = r.inline(c, st, out)
	}
	return out
}

func inlineStyle(n *html.Node, st builder.Style) (builder.Style, bool) {
	switch n.DataAtom {
	case atom.B, atom.Strong:
		st.Bold = true
	case atom.I, atom.Em, atom.Cite:
		st.Italic = true
	case atom.U, atom.Ins, atom.A:
		st.Underline = true
	case atom.S, atom.Del, atom.Strike:
		st.LineThrough = true
	case atom.Code, atom.Kbd, atom.Samp, atom.Tt:
		st.FontFamily = MonospaceFamily
	case atom.Span, atom.Small, atom.Sub, atom.Sup, atom.Mark, atom.Abbr:
	default:
		return st, false
	}
	return st, true
}

func (r *htmlRenderer) head(n *html.Node) error {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type != html.ElementNode {
			continue
		}
		switch c.DataAtom {
		case atom.Title:
			if err := r.e.b.SetMetadata("title", strings.TrimSpace(rawText(c))); err != nil {
				return err
			}
		case atom.Meta:
			name, content := attr(c, "name"), attr(c, "content")
			switch strings.ToLower(name) {
			case "author", "subject", "keywords", "description":
				field := strings.ToLower(name)
				if field == "description" {
					field = "subject"
				}
				if err := r.e.b.SetMetadata(field, content); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func rawText(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return sb.String()
}
