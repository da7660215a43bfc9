package layout

import (
	"fmt"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	extast "github.com/yuin/goldmark/extension/ast"
	"github.com/yuin/goldmark/text"

	"github.com/wudi/pdfcompose/builder"
	"github.com/wudi/pdfcompose/observability"
)

// RenderMarkdown parses CommonMark (plus strikethrough) and emits headings,
// paragraphs, lists, quotes and code blocks.
func (e *Engine) RenderMarkdown(source string) error {
	src := []byte(source)
	md := goldmark.New(goldmark.WithExtensions(extension.Strikethrough))
	doc := md.Parser().Parse(text.NewReader(src))
	r := &mdRenderer{e: e, src: src}
	if err := r.blocks(doc, 0, builder.Style{}); err != nil {
		return err
	}
	e.logger.Debug("markdown rendered", observability.Int("bytes", len(src)))
	return nil
}

type mdRenderer struct {
	e   *Engine
	src []byte
}

func (r *mdRenderer) blocks(parent ast.Node, depth int, st builder.Style) error {
	for n := parent.FirstChild(); n != nil; n = n.NextSibling() {
		if err := r.block(n, depth, st); err != nil {
			return err
		}
	}
	return nil
}

func (r *mdRenderer) block(n ast.Node, depth int, st builder.Style) error {
	switch v := n.(type) {
	case *ast.Heading:
		return r.e.heading(v.Level, trimRuns(r.inline(v, builder.Style{}, nil)))
	case *ast.Paragraph, *ast.TextBlock:
		runs := trimRuns(r.inline(v, st, nil))
		if depth > 0 {
			runs = append([]builder.Run{{Text: strings.Repeat(r.e.listIndent, depth)}}, runs...)
		}
		return r.e.paragraph(runs, builder.Style{})
	case *ast.List:
		num := v.Start
		for item := v.FirstChild(); item != nil; item = item.NextSibling() {
			marker := "•"
			if v.IsOrdered() {
				marker = fmt.Sprintf("%d%c", num, v.Marker)
				num++
			}
			if err := r.listItem(item, depth, marker, st); err != nil {
				return err
			}
		}
	case *ast.FencedCodeBlock, *ast.CodeBlock:
		var sb strings.Builder
		lines := n.Lines()
		for i := 0; i < lines.Len(); i++ {
			seg := lines.At(i)
			sb.Write(seg.Value(r.src))
		}
		return r.e.code(sb.String())
	case *ast.Blockquote:
		quoted := st
		quoted.Italic = true
		return r.blocks(v, depth+1, quoted)
	case *ast.ThematicBreak, *ast.HTMLBlock:
	default:
		return r.blocks(n, depth, st)
	}
	return nil
}

// listItem puts the marker in front of the item's first block; the rest is
// indented one level deeper.
func (r *mdRenderer) listItem(item ast.Node, depth int, marker string, st builder.Style) error {
	first := item.FirstChild()
	if first == nil {
		return nil
	}
	rest := first
	switch first.(type) {
	case *ast.Paragraph, *ast.TextBlock:
		if err := r.e.listItem(depth, marker, trimRuns(r.inline(first, st, nil))); err != nil {
			return err
		}
		rest = first.NextSibling()
	default:
		if err := r.e.listItem(depth, marker, nil); err != nil {
			return err
		}
	}
	for n := rest; n != nil; n = n.NextSibling() {
		if err := r.block(n, depth+1, st); err != nil {
			return err
		}
	}
	return nil
}

func (r *mdRenderer) inline(parent ast.Node, st builder.Style, out []builder.Run) []builder.Run {
	for n := parent.FirstChild(); n != nil; n = n.NextSibling() {
		switch v := n.(type) {
		case *ast.Text:
			out = append(out, builder.Run{Text: string(v.Segment.Value(r.src)), Style: st})
			switch {
			case v.HardLineBreak():
				out = append(out, builder.Run{Text: "\n", Style: st})
			case v.SoftLineBreak():
				out = append(out, builder.Run{Text: " ", Style: st})
			}
		case *ast.String:
			out = append(out, builder.Run{Text: string(v.Value), Style: st})
		case *ast.CodeSpan:
			code := st
			code.FontFamily = MonospaceFamily
			out = r.inline(v, code, out)
		case *ast.Emphasis:
			em := st
			if v.Level >= 2 {
				em.Bold = true
			} else {
				em.Italic = true
			}
			out = r.inline(v, em, out)
		case *extast.Strikethrough:
			del := st
			del.LineThrough = true
			out = r.inline(v, del, out)
		case *ast.Link:
			link := st
			link.Underline = true
			out = r.inline(v, link, out)
		case *ast.AutoLink:
			link := st
			link.Underline = true
			out = append(out, builder.Run{Text: string(v.Label(r.src)), Style: link})
		case *ast.RawHTML:
		default:
			out = r.inline(n, st, out)
		}
	}
	return out
}
