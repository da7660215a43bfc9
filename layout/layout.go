// Package layout turns structured text (Markdown, HTML, LaTeX math) into
// titles, paragraphs and bookmarks through a builder.Builder.
package layout

import (
	"strings"

	"github.com/wudi/pdfcompose/builder"
	"github.com/wudi/pdfcompose/ir/semantic"
	"github.com/wudi/pdfcompose/observability"
)

// MonospaceFamily is used for code spans and blocks.
const MonospaceFamily = "Courier"

// Engine renders block content onto the builder's document. It is not safe
// for concurrent use.
type Engine struct {
	b *builder.Builder

	fontSize      float64
	bookmarkDepth int
	listIndent    string
	logger        observability.Logger

	// outline[i] is the most recent bookmark at heading level i+1
	outline []*semantic.OutlineNode
}

// Option defines a configuration option for the Engine.
type Option func(*Engine)

// WithFontSize sets the body font size; headings scale from it.
func WithFontSize(size float64) Option {
	return func(e *Engine) {
		if size > 0 {
			e.fontSize = size
		}
	}
}

// WithBookmarkDepth sets the deepest heading level that gets an outline
// entry. Zero disables bookmarks.
func WithBookmarkDepth(depth int) Option {
	return func(e *Engine) { e.bookmarkDepth = depth }
}

func WithLogger(l observability.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// NewEngine creates a layout engine that writes through b.
func NewEngine(b *builder.Builder, opts ...Option) *Engine {
	e := &Engine{
		b:             b,
		fontSize:      builder.DefaultFontSize,
		bookmarkDepth: 2,
		listIndent:    "    ",
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = observability.OrNop(e.logger)
	return e
}

// headingSize scales the body size by heading level.
func (e *Engine) headingSize(level int) float64 {
	switch level {
	case 1:
		return e.fontSize * 2
	case 2:
		return e.fontSize * 1.5
	case 3:
		return e.fontSize * 1.25
	}
	return e.fontSize
}

// heading emits a heading. The first level-one heading of an untitled
// document becomes its title.
func (e *Engine) heading(level int, runs []builder.Run) error {
	text := strings.TrimSpace(runsText(runs))
	if text == "" {
		return nil
	}
	doc := e.b.Document()
	if level == 1 && doc.Info.Title == "" {
		if _, err := e.b.AddTitle(text); err != nil {
			return err
		}
	} else if _, err := e.b.AddRuns(nil, runs, builder.Style{Bold: true, FontSize: e.headingSize(level)}); err != nil {
		return err
	}
	if level > e.bookmarkDepth {
		return nil
	}
	return e.bookmark(level, text)
}

// bookmark nests the entry under the closest shallower heading.
func (e *Engine) bookmark(level int, title string) error {
	doc := e.b.Document()
	last := doc.LastPage()
	if last == nil {
		return builder.ErrNoPages
	}
	node := &semantic.OutlineNode{Title: title, PageIndex: last.Index, Top: last.MediaBox.URY}
	var parent *semantic.OutlineNode
	for i := level - 2; i >= 0 && parent == nil; i-- {
		if i < len(e.outline) {
			parent = e.outline[i]
		}
	}
	if parent != nil {
		parent.Children = append(parent.Children, node)
	} else if err := doc.AddOutline(node); err != nil {
		return err
	}
	for len(e.outline) < level {
		e.outline = append(e.outline, nil)
	}
	e.outline = append(e.outline[:level-1], node)
	return nil
}

func (e *Engine) paragraph(runs []builder.Run, style builder.Style) error {
	if strings.TrimSpace(runsText(runs)) == "" {
		return nil
	}
	if style.FontSize == 0 {
		style.FontSize = e.fontSize
	}
	_, err := e.b.AddRuns(nil, runs, style)
	return err
}

func (e *Engine) listItem(depth int, marker string, runs []builder.Run) error {
	prefix := strings.Repeat(e.listIndent, depth) + marker + " "
	return e.paragraph(append([]builder.Run{{Text: prefix}}, runs...), builder.Style{})
}

func (e *Engine) code(text string) error {
	text = strings.TrimRight(text, "\n")
	if text == "" {
		return nil
	}
	return e.paragraph([]builder.Run{{Text: text}}, builder.Style{FontFamily: MonospaceFamily})
}

func runsText(runs []builder.Run) string {
	var sb strings.Builder
	for _, r := range runs {
		sb.WriteString(r.Text)
	}
	return sb.String()
}

// collapse folds whitespace inside inline text to single spaces, keeping
// one space at either end when the source had some.
func collapse(s string) string {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		if s != "" {
			return " "
		}
		return ""
	}
	out := strings.Join(fields, " ")
	if isSpace(s[0]) {
		out = " " + out
	}
	if isSpace(s[len(s)-1]) {
		out += " "
	}
	return out
}

func isSpace(c byte) bool { return c == ' ' || c == '\t' || c == '\n' || c == '\r' }

// trimRuns drops leading and trailing whitespace across a run list.
func trimRuns(runs []builder.Run) []builder.Run {
	for len(runs) > 0 {
		runs[0].Text = strings.TrimLeft(runs[0].Text, " ")
		if runs[0].Text != "" {
			break
		}
		runs = runs[1:]
	}
	for len(runs) > 0 {
		n := len(runs) - 1
		runs[n].Text = strings.TrimRight(runs[n].Text, " ")
		if runs[n].Text != "" {
			break
		}
		runs = runs[:n]
	}
	return runs
}
