// Package builder turns paragraphs, titles, barcodes, images, watermarks and
// bookmarks into page content on a semantic.Document.
package builder

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/wudi/pdfcompose/fonts"
	"github.com/wudi/pdfcompose/ir/semantic"
	"github.com/wudi/pdfcompose/observability"
)

var (
	ErrInvalidStyle = errors.New("invalid style")
	// ErrNoPages is returned by operations that need at least one page.
	ErrNoPages = errors.New("document has no pages")
)

// Margins are the page insets used when flowing content.
type Margins struct {
	Top, Right, Bottom, Left float64
}

// DefaultMargins match the usual half-inch layout margins.
var DefaultMargins = Margins{Top: 36, Right: 36, Bottom: 36, Left: 36}

const (
	DefaultFontFamily = "Helvetica"
	DefaultFontSize   = 12.0
	TitleFontSize     = 18.0

	lineSpacing      = 1.2
	paragraphSpacing = 6.0
	italicSkew       = 12.0 // degrees
)

// Builder adds content to a document. It is not safe for concurrent use.
type Builder struct {
	doc      *semantic.Document
	fonts    fonts.Provider
	logger   observability.Logger
	pageSize semantic.Rectangle
	margins  Margins
	family   string
	size     float64

	loaded map[string]*semantic.Resource
}

type Option func(*Builder)

func WithFontProvider(p fonts.Provider) Option { return func(b *Builder) { b.fonts = p } }

func WithLogger(l observability.Logger) Option { return func(b *Builder) { b.logger = l } }

func WithPageSize(r semantic.Rectangle) Option { return func(b *Builder) { b.pageSize = r } }

func WithMargins(m Margins) Option { return func(b *Builder) { b.margins = m } }

// WithDefaultFont sets the family and size used when a style leaves them unset.
func WithDefaultFont(family string, size float64) Option {
	return func(b *Builder) {
		if family != "" {
			b.family = family
		}
		if size > 0 {
			b.size = size
		}
	}
}

// New returns a builder for doc.
func New(doc *semantic.Document, opts ...Option) *Builder {
	b := &Builder{
		doc:      doc,
		fonts:    fonts.Default(),
		logger:   observability.NopLogger{},
		pageSize: semantic.A4,
		margins:  DefaultMargins,
		family:   DefaultFontFamily,
		size:     DefaultFontSize,
		loaded:   make(map[string]*semantic.Resource),
	}
	for _, opt := range opts {
		opt(b)
	}
	b.logger = observability.OrNop(b.logger)
	return b
}

func (b *Builder) Document() *semantic.Document { return b.doc }

// AddPage appends an empty page of the configured size.
func (b *Builder) AddPage() (*semantic.Page, error) {
	p, err := b.doc.AddPage(b.pageSize)
	if err != nil {
		return nil, err
	}
	b.logger.Debug("page added", observability.Int("page", p.Index))
	return p, nil
}

// currentPage returns the last page, creating the first one on demand.
func (b *Builder) currentPage() (*semantic.Page, error) {
	if p := b.doc.LastPage(); p != nil {
		return p, nil
	}
	return b.AddPage()
}

// AddTitle adds a bold paragraph and records text as the document title.
func (b *Builder) AddTitle(text string) (semantic.ElementID, error) {
	id, err := b.Append(text, Style{Bold: true, FontSize: TitleFontSize})
	if err != nil {
		return 0, err
	}
	if err := b.doc.SetMetadata("title", text); err != nil {
		return 0, err
	}
	return id, nil
}

// AddBookmark appends a root outline entry pointing at the top of the last page.
func (b *Builder) AddBookmark(title string) error {
	if err := b.doc.CheckOpen(); err != nil {
		return err
	}
	last := b.doc.LastPage()
	if last == nil {
		return ErrNoPages
	}
	return b.doc.AddOutline(&semantic.OutlineNode{
		Title:     title,
		PageIndex: last.Index,
		Top:       last.MediaBox.URY,
	})
}

// SetMetadata overwrites a standard info field or adds a custom one.
func (b *Builder) SetMetadata(field, value string) error {
	return b.doc.SetMetadata(field, value)
}

// resolveFont loads and registers the face for family in the requested style.
// Bold or italic is simulated when the provider has no matching face.
func (b *Builder) resolveFont(family string, bold, italic bool) (res *semantic.Resource, simBold, simItalic bool, err error) {
	name := family
	simBold, simItalic = bold, italic
	if bold || italic {
		if vp, ok := b.fonts.(fonts.VariantProvider); ok {
			if v, ok := vp.Variant(family, bold, italic); ok {
				name, simBold, simItalic = v, false, false
			} else if v, ok := vp.Variant(family, bold, false); ok && bold && italic {
				name, simBold = v, false
			}
		}
	}
	key := strings.ToLower(name)
	if r, ok := b.loaded[key]; ok {
		return r, simBold, simItalic, nil
	}
	f, err := b.fonts.LoadFont(name)
	if err != nil {
		return nil, false, false, err
	}
	r := b.doc.Resources.RegisterFont(f)
	b.loaded[key] = r
	b.logger.Debug("font registered", observability.String("font", r.Font.BaseFont), observability.String("name", r.Name))
	return r, simBold, simItalic, nil
}

func (b *Builder) usableWidth(p *semantic.Page) float64 {
	return p.MediaBox.Width() - b.margins.Left - b.margins.Right
}

func (b *Builder) usableHeight(p *semantic.Page) float64 {
	return p.MediaBox.Height() - b.margins.Top - b.margins.Bottom
}

// contentTop is the y coordinate of the next flowed line's top edge.
func (b *Builder) contentTop(p *semantic.Page) float64 {
	return p.MediaBox.URY - b.margins.Top - p.Cursor
}

// reserve returns a page with height points of free flow space, starting a
// new page when p cannot hold it. A block taller than an empty page is placed anyway.
func (b *Builder) reserve(p *semantic.Page, height float64) (*semantic.Page, error) {
	if p.Cursor+height <= b.usableHeight(p) || p.Cursor == 0 {
		return p, nil
	}
	return b.AddPage()
}

func validColor(c *semantic.RGB) bool {
	if c == nil {
		return true
	}
	for _, v := range []float64{c.R, c.G, c.B} {
		if v < 0 || v > 1 || math.IsNaN(v) {
			return false
		}
	}
	return true
}

func invalidStyle(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidStyle, fmt.Sprintf(format, args...))
}

func radians(deg float64) float64 { return deg * math.Pi / 180 }

func rgbOperands(c semantic.RGB) []semantic.Operand { return semantic.Num(c.R, c.G, c.B) }
