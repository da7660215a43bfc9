// Package fonts resolves font names to font resources and converts text into
// the byte strings, widths and glyph outlines those fonts need.
package fonts

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"

	xfont "golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/gobolditalic"
	"golang.org/x/image/font/gofont/goitalic"
	"golang.org/x/image/font/gofont/gomono"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/sfnt"
	"golang.org/x/image/math/fixed"

	"github.com/wudi/pdfcompose/ir/semantic"
)

// ErrFontNotFound is returned when a provider cannot resolve a font name.
var ErrFontNotFound = errors.New("font not found")

// Provider resolves a font family or face name to a font resource.
type Provider interface {
	LoadFont(name string) (*semantic.Font, error)
}

// VariantProvider is implemented by providers that know the bold and italic
// faces of a family.
type VariantProvider interface {
	Variant(family string, bold, italic bool) (string, bool)
}

// Registry is the default Provider. It knows the standard Type1 fonts, the Go
// font family, and any TrueType fonts registered at runtime.
type Registry struct {
	mu       sync.RWMutex
	truetype map[string][]byte
	variants map[string][4]string
}

// NewRegistry returns a registry preloaded with the Go fonts.
func NewRegistry() *Registry {
	r := &Registry{
		truetype: make(map[string][]byte),
		variants: make(map[string][4]string),
	}
	r.truetype["goregular"] = goregular.TTF
	r.truetype["gobold"] = gobold.TTF
	r.truetype["goitalic"] = goitalic.TTF
	r.truetype["gobolditalic"] = gobolditalic.TTF
	r.truetype["gomono"] = gomono.TTF
	r.variants["goregular"] = [4]string{"GoRegular", "GoBold", "GoItalic", "GoBoldItalic"}
	for family, faces := range standardVariants {
		r.variants[strings.ToLower(family)] = faces
	}
	return r
}

var defaultRegistry = NewRegistry()

// Default returns the process-wide registry. It is safe for concurrent use.
func Default() *Registry { return defaultRegistry }

// RegisterTrueType makes a TrueType/OpenType program available under name.
func (r *Registry) RegisterTrueType(name string, data []byte) error {
	if strings.TrimSpace(name) == "" {
		return errors.New("font name is empty")
	}
	if _, err := sfnt.Parse(data); err != nil {
		return fmt.Errorf("register %s: %w", name, err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.truetype[strings.ToLower(name)] = append([]byte(nil), data...)
	return nil
}

// RegisterFamily declares the regular, bold, italic and bold-italic faces of a family.
func (r *Registry) RegisterFamily(family, regular, bold, italic, boldItalic string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.variants[strings.ToLower(family)] = [4]string{regular, bold, italic, boldItalic}
}

// LoadFont returns a fresh font resource for name. Lookups are case-insensitive.
func (r *Registry) LoadFont(name string) (*semantic.Font, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	if std, ok := lookupStandard(key); ok {
		return std, nil
	}
	r.mu.RLock()
	data, ok := r.truetype[key]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrFontNotFound, name)
	}
	return LoadTrueType(name, data)
}

// Variant returns the face name for the requested style of family.
func (r *Registry) Variant(family string, bold, italic bool) (string, bool) {
	key := strings.ToLower(strings.TrimSpace(family))
	r.mu.RLock()
	faces, ok := r.variants[key]
	r.mu.RUnlock()
	if !ok {
		// A face name such as Helvetica-Bold resolves to its own family.
		for _, fs := range r.snapshotVariants() {
			for _, f := range fs {
				if strings.EqualFold(f, family) {
					faces, ok = fs, true
				}
			}
		}
		if !ok {
			return "", false
		}
	}
	idx := 0
	if bold {
		idx |= 1
	}
	if italic {
		idx |= 2
	}
	// index order: regular, bold, italic, bold-italic
	if faces[idx] == "" {
		return "", false
	}
	return faces[idx], true
}

func (r *Registry) snapshotVariants() [][4]string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([][4]string, 0, len(r.variants))
	for _, v := range r.variants {
		out = append(out, v)
	}
	return out
}

// LoadTrueType parses a TrueType/OpenType font, extracts basic metrics, and
// returns a semantic.Font configured for Type0 Identity-H usage with a
// FontFile2 stream. The full font is embedded.
func LoadTrueType(name string, data []byte) (*semantic.Font, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("truetype font data is empty")
	}
	font, err := sfnt.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parse truetype: %w", err)
	}
	unitsPerEm := font.UnitsPerEm()
	if unitsPerEm == 0 {
		return nil, fmt.Errorf("invalid unitsPerEm")
	}
	buf := &sfnt.Buffer{}
	ppem := fixed.Int26_6(unitsPerEm << 6)

	baseName := strings.TrimSpace(name)
	if ps, _ := font.Name(buf, sfnt.NameIDPostScript); len(ps) > 0 {
		baseName = ps
	}
	if baseName == "" {
		baseName = "CustomTT"
	}

	widths := glyphWidths(font, buf, unitsPerEm, ppem)
	defaultWidth := widths[0]
	if defaultWidth == 0 {
		defaultWidth = 1000
	}

	metrics, _ := font.Metrics(buf, ppem, xfont.HintingNone)
	bounds, _ := font.Bounds(buf, ppem, xfont.HintingNone)
	flags := 32 // nonsymbolic
	angle := italicAngle(font)
	if angle != 0 {
		flags |= 64
	}
	descriptor := &semantic.FontDescriptor{
		FontName:    baseName,
		Flags:       flags,
		ItalicAngle: angle,
		Ascent:      scaleFixed(metrics.Ascent, unitsPerEm),
		Descent:     -scaleFixed(metrics.Descent, unitsPerEm),
		CapHeight:   scaleFixed(metrics.CapHeight, unitsPerEm),
		StemV:       80,
		FontBBox: [4]float64{
			scaleFixed(bounds.Min.X, unitsPerEm),
			-scaleFixed(bounds.Max.Y, unitsPerEm),
			scaleFixed(bounds.Max.X, unitsPerEm),
			-scaleFixed(bounds.Min.Y, unitsPerEm),
		},
		FontFile: data,
	}
	if descriptor.CapHeight == 0 {
		descriptor.CapHeight = descriptor.Ascent
	}

	return &semantic.Font{
		Subtype:      "Type0",
		BaseFont:     baseName,
		Encoding:     "Identity-H",
		Widths:       widths,
		DefaultWidth: defaultWidth,
		ToUnicode:    make(map[int][]rune),
		Descriptor:   descriptor,
	}, nil
}

func glyphWidths(font *sfnt.Font, buf *sfnt.Buffer, unitsPerEm sfnt.Units, ppem fixed.Int26_6) map[int]int {
	glyphs := font.NumGlyphs()
	widths := make(map[int]int, glyphs)
	for i := 0; i < glyphs; i++ {
		adv, err := font.GlyphAdvance(buf, sfnt.GlyphIndex(i), ppem, xfont.HintingNone)
		if err != nil {
			continue
		}
		widths[i] = int(math.Round(scaleFixed(adv, unitsPerEm)))
	}
	return widths
}

func italicAngle(font *sfnt.Font) float64 {
	post := font.PostTable()
	if post == nil {
		return 0
	}
	return post.ItalicAngle
}

// scaleFixed converts a value measured at one pixel per font unit into 1/1000 em.
func scaleFixed(val fixed.Int26_6, unitsPerEm sfnt.Units) float64 {
	return float64(val) * 1000.0 / (64.0 * float64(unitsPerEm))
}
