package builder

import (
	"math"
	"strings"

	"github.com/wudi/pdfcompose/fonts"
	"github.com/wudi/pdfcompose/ir/semantic"
	"github.com/wudi/pdfcompose/observability"
)

// Style describes how a paragraph or a run of text is set. Zero values inherit
// the builder defaults (or, for a run, the paragraph style).
type Style struct {
	FontFamily  string
	FontSize    float64
	Color       *semantic.RGB
	Background  *semantic.RGB
	Bold        bool
	Italic      bool
	Underline   bool
	LineThrough bool
	// Rotation is in degrees, counter-clockwise about the first baseline origin.
	Rotation float64
	Position *Position
	Border   *Border
}

// Position fixes a paragraph's lower-left corner. A zero Width extends the
// box to the right margin.
type Position struct {
	X, Y  float64
	Width float64
}

type Border struct {
	Width float64
	Color semantic.RGB
}

// Run is a piece of text with its own style inside a paragraph.
type Run struct {
	Text  string
	Style Style
}

func (s Style) validate() error {
	switch {
	case s.FontSize < 0 || math.IsNaN(s.FontSize):
		return invalidStyle("font size %v", s.FontSize)
	case !validColor(s.Color):
		return invalidStyle("color %v", *s.Color)
	case !validColor(s.Background):
		return invalidStyle("background %v", *s.Background)
	case math.IsNaN(s.Rotation) || math.IsInf(s.Rotation, 0):
		return invalidStyle("rotation %v", s.Rotation)
	case s.Position != nil && s.Position.Width < 0:
		return invalidStyle("position width %v", s.Position.Width)
	case s.Border != nil && (s.Border.Width < 0 || !validColor(&s.Border.Color)):
		return invalidStyle("border %+v", *s.Border)
	}
	return nil
}

// inherit fills the unset text attributes of s from parent.
func (s Style) inherit(parent Style) Style {
	if s.FontFamily == "" {
		s.FontFamily = parent.FontFamily
	}
	if s.FontSize == 0 {
		s.FontSize = parent.FontSize
	}
	if s.Color == nil {
		s.Color = parent.Color
	}
	if s.Background == nil {
		s.Background = parent.Background
	}
	s.Bold = s.Bold || parent.Bold
	s.Italic = s.Italic || parent.Italic
	s.Underline = s.Underline || parent.Underline
	s.LineThrough = s.LineThrough || parent.LineThrough
	return s
}

// textStyle is a Style with its font resolved and registered.
type textStyle struct {
	res       *semantic.Resource
	size      float64
	color     semantic.RGB
	bg        *semantic.RGB
	simBold   bool
	simItalic bool
	underline bool
	strike    bool
}

type segment struct {
	st    *textStyle
	text  string
	width float64
}

type line struct {
	segs  []segment
	width float64
	size  float64
}

func (l *line) String() string {
	var sb strings.Builder
	for _, s := range l.segs {
		sb.WriteString(s.text)
	}
	return sb.String()
}

func (l *line) height() float64 { return l.size * lineSpacing }

// AddParagraph sets text on page. A nil page flows the paragraph on the last
// page of the document, continuing on new pages as needed.
func (b *Builder) AddParagraph(page *semantic.Page, text string, style Style) (semantic.ElementID, error) {
	return b.AddRuns(page, []Run{{Text: text}}, style)
}

// Append flows text on the last page, creating the first page when needed.
func (b *Builder) Append(text string, style Style) (semantic.ElementID, error) {
	return b.AddParagraph(nil, text, style)
}

// AddRuns sets a paragraph made of differently styled runs. Paragraph-level
// settings (Rotation, Position, Border) are taken from style only.
func (b *Builder) AddRuns(page *semantic.Page, runs []Run, style Style) (semantic.ElementID, error) {
	if err := b.doc.CheckOpen(); err != nil {
		return 0, err
	}
	if err := style.validate(); err != nil {
		return 0, err
	}
	base := style.inherit(Style{FontFamily: b.family, FontSize: b.size})
	resolved := make([]*textStyle, len(runs))
	for i, r := range runs {
		if err := r.Style.validate(); err != nil {
			return 0, err
		}
		st, err := b.textStyle(r.Style.inherit(base))
		if err != nil {
			return 0, err
		}
		resolved[i] = st
	}
	if len(runs) == 0 {
		st, err := b.textStyle(base)
		if err != nil {
			return 0, err
		}
		runs, resolved = []Run{{}}, []*textStyle{st}
	}

	if page == nil {
		p, err := b.currentPage()
		if err != nil {
			return 0, err
		}
		page = p
	}

	var text strings.Builder
	for _, r := range runs {
		text.WriteString(r.Text)
	}
	para := semantic.Paragraph{
		Text:        text.String(),
		Font:        resolved[0].res.Key,
		FontName:    resolved[0].res.Font.BaseFont,
		Size:        resolved[0].size,
		Color:       resolved[0].color,
		Background:  resolved[0].bg,
		Bold:        base.Bold,
		Italic:      base.Italic,
		Underline:   base.Underline,
		LineThrough: base.LineThrough,
		Rotation:    radians(style.Rotation),
	}

	if pos := style.Position; pos != nil {
		width := pos.Width
		if width == 0 {
			width = page.MediaBox.URX - b.margins.Right - pos.X
		}
		lines := wrap(runs, resolved, width)
		para.Fixed, para.X, para.Y, para.Width = true, pos.X, pos.Y, width
		var total float64
		for _, l := range lines {
			total += l.height()
		}
		return b.place(page, &para, lines, pos.X, pos.Y+total, style), nil
	}

	width := b.usableWidth(page)
	lines := wrap(runs, resolved, width)
	para.X, para.Width = page.MediaBox.LLX+b.margins.Left, width

	var first semantic.ElementID
	for len(lines) > 0 {
		if page.Cursor > 0 {
			var err error
			if page, err = b.reserve(page, lines[0].height()); err != nil {
				return first, err
			}
		}
		n, used := 0, 0.0
		for n < len(lines) && (n == 0 || page.Cursor+used+lines[n].height() <= b.usableHeight(page)) {
			used += lines[n].height()
			n++
		}
		piece := para
		piece.Continues = first
		piece.Y = b.contentTop(page) - used
		id := b.place(page, &piece, lines[:n], para.X, b.contentTop(page), style)
		if first == 0 {
			first = id
		}
		page.Cursor += used + paragraphSpacing
		lines = lines[n:]
		if len(lines) > 0 {
			p, err := b.AddPage()
			if err != nil {
				return first, err
			}
			page = p
		}
	}
	return first, nil
}

func (b *Builder) textStyle(s Style) (*textStyle, error) {
	res, simBold, simItalic, err := b.resolveFont(s.FontFamily, s.Bold, s.Italic)
	if err != nil {
		return nil, err
	}
	color := semantic.Black
	if s.Color != nil {
		color = *s.Color
	}
	return &textStyle{
		res:       res,
		size:      s.FontSize,
		color:     color,
		bg:        s.Background,
		simBold:   simBold,
		simItalic: simItalic,
		underline: s.Underline,
		strike:    s.LineThrough,
	}, nil
}

// wrap breaks runs into lines no wider than width. Newlines force a break and
// words longer than a line are split between characters.
func wrap(runs []Run, styles []*textStyle, width float64) []*line {
	cur := &line{}
	lines := []*line{cur}
	breakLine := func() {
		cur = &line{}
		lines = append(lines, cur)
	}
	add := func(st *textStyle, text string) {
		w := fonts.Measure(st.res.Font, text, st.size)
		if n := len(cur.segs); n > 0 && cur.segs[n-1].st == st {
			cur.segs[n-1].text += text
			cur.segs[n-1].width += w
		} else {
			cur.segs = append(cur.segs, segment{st: st, text: text, width: w})
		}
		cur.width += w
		cur.size = math.Max(cur.size, st.size)
	}
	// gap is set when whitespace separates the next word from the previous
	// one; adjacent runs without whitespace are joined.
	gap := false
	for i, r := range runs {
		st := styles[i]
		cur.size = math.Max(cur.size, st.size)
		for j, para := range strings.Split(r.Text, "\n") {
			if j > 0 {
				breakLine()
				cur.size = st.size
				gap = false
			}
			if para != "" && isBlank(para[0]) {
				gap = true
			}
			for k, word := range strings.Fields(para) {
				space := 0.0
				if (gap || k > 0) && len(cur.segs) > 0 {
					space = fonts.Measure(st.res.Font, " ", st.size)
				}
				gap = false
				w := fonts.Measure(st.res.Font, word, st.size)
				if len(cur.segs) > 0 && cur.width+space+w > width {
					breakLine()
					space = 0
				}
				if space > 0 {
					word = " " + word
				}
				for len(cur.segs) == 0 && w > width && width > 0 {
					head := fitPrefix(st, word, width)
					add(st, head)
					word = word[len(head):]
					w = fonts.Measure(st.res.Font, word, st.size)
					breakLine()
				}
				if word != "" {
					add(st, word)
				}
			}
			if para != "" && isBlank(para[len(para)-1]) {
				gap = true
			}
		}
	}
	if n := len(lines); n > 1 && len(lines[n-1].segs) == 0 && lines[n-1].size == 0 {
		lines = lines[:n-1]
	}
	return lines
}

func isBlank(c byte) bool { return c == ' ' || c == '\t' || c == '\r' || c == '\f' || c == '\v' }

// fitPrefix returns the longest prefix of word (at least one rune) that fits width.
func fitPrefix(st *textStyle, word string, width float64) string {
	end := 0
	for i, r := range word {
		next := i + len(string(r))
		if end > 0 && fonts.Measure(st.res.Font, word[:next], st.size) > width {
			break
		}
		end = next
	}
	return word[:end]
}

// place emits the operations for lines starting at top and records the element.
func (b *Builder) place(page *semantic.Page, para *semantic.Paragraph, lines []*line, x, top float64, style Style) semantic.ElementID {
	para.ElementID = b.doc.NextElementID()
	para.Lines = make([]string, len(lines))
	for i, l := range lines {
		para.Lines[i] = l.String()
	}
	for _, l := range lines {
		for _, s := range l.segs {
			page.Bind(s.st.res)
		}
	}
	page.Append(b.paragraphOps(lines, x, top, para.Rotation, style.Border)...)
	page.Elements = append(page.Elements, para)
	b.logger.Debug("paragraph added",
		observability.Int("page", page.Index),
		observability.Int("element", int(para.ElementID)),
		observability.Int("lines", len(lines)))
	return para.ElementID
}

type placedSegment struct {
	segment
	x, baseline float64
}

func (b *Builder) paragraphOps(lines []*line, x, top, rotation float64, border *Border) []semantic.Operation {
	var placed []placedSegment
	var boxWidth, height float64
	y := top
	for _, l := range lines {
		baseline := y - l.size
		sx := x
		for _, s := range l.segs {
			placed = append(placed, placedSegment{segment: s, x: sx, baseline: baseline})
			sx += s.width
		}
		boxWidth = math.Max(boxWidth, l.width)
		y -= l.height()
		height += l.height()
	}

	ops := []semantic.Operation{semantic.Op("q")}
	if rotation != 0 && len(lines) > 0 {
		ox, oy := x, top-lines[0].size
		c, s := math.Cos(rotation), math.Sin(rotation)
		ops = append(ops, semantic.Op("cm", semantic.Num(c, s, -s, c, ox-c*ox+s*oy, oy-s*ox-c*oy)...))
	}

	for _, p := range placed {
		if p.st.bg == nil || p.width == 0 {
			continue
		}
		ops = append(ops,
			semantic.Op("rg", rgbOperands(*p.st.bg)...),
			semantic.Op("re", semantic.Num(p.x, p.baseline-0.25*p.st.size, p.width, p.st.size*lineSpacing)...),
			semantic.Op("f"))
	}

	ops = append(ops, semantic.Op("BT"))
	var (
		font  string
		size  float64
		color *semantic.RGB
		mode  = 0
	)
	for _, p := range placed {
		if p.text == "" {
			continue
		}
		if font != p.st.res.Name || size != p.st.size {
			font, size = p.st.res.Name, p.st.size
			ops = append(ops, semantic.Op("Tf", semantic.Name(font), semantic.NumberOperand{Value: size}))
		}
		if color == nil || *color != p.st.color {
			c := p.st.color
			color = &c
			ops = append(ops, semantic.Op("rg", rgbOperands(c)...), semantic.Op("RG", rgbOperands(c)...))
		}
		want := 0
		if p.st.simBold {
			want = 2
		}
		if want != mode {
			mode = want
			ops = append(ops, semantic.Op("Tr", semantic.NumberOperand{Value: float64(mode)}))
			if mode == 2 {
				ops = append(ops, semantic.Op("w", semantic.NumberOperand{Value: 0.03 * p.st.size}))
			}
		}
		skew := 0.0
		if p.st.simItalic {
			skew = math.Tan(radians(italicSkew))
		}
		ops = append(ops,
			semantic.Op("Tm", semantic.Num(1, 0, skew, 1, p.x, p.baseline)...),
			semantic.Op("Tj", showOperand(p.st.res.Font, p.text)))
	}
	ops = append(ops, semantic.Op("ET"))

	for _, p := range placed {
		for _, deco := range []struct {
			on     bool
			offset float64
		}{{p.st.underline, -0.1}, {p.st.strike, 0.3}} {
			if !deco.on || p.width == 0 {
				continue
			}
			ly := p.baseline + deco.offset*p.st.size
			ops = append(ops,
				semantic.Op("RG", rgbOperands(p.st.color)...),
				semantic.Op("w", semantic.NumberOperand{Value: 0.05 * p.st.size}),
				semantic.Op("m", semantic.Num(p.x, ly)...),
				semantic.Op("l", semantic.Num(p.x+p.width, ly)...),
				semantic.Op("S"))
		}
	}

	if border != nil && border.Width > 0 {
		pad := border.Width / 2
		ops = append(ops,
			semantic.Op("RG", rgbOperands(border.Color)...),
			semantic.Op("w", semantic.NumberOperand{Value: border.Width}),
			semantic.Op("re", semantic.Num(x-pad, top-height-pad, boxWidth+2*pad, height+2*pad)...),
			semantic.Op("S"))
	}
	return append(ops, semantic.Op("Q"))
}

// showOperand encodes text for a Tj operator. Composite fonts use hex glyph ids.
func showOperand(font *semantic.Font, text string) semantic.Operand {
	data, _, err := fonts.Encode(font, text)
	if err != nil {
		data = []byte(text)
	}
	return semantic.StringOperand{Value: data, Hex: font.Subtype == "Type0"}
}
