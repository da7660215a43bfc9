package fonts

import (
	"bytes"
	"crypto/sha256"
	"fmt"
	"math"
	"sort"
	"sync"
	"unicode"

	"github.com/go-text/typesetting/di"
	gofont "github.com/go-text/typesetting/font"
	"github.com/go-text/typesetting/language"
	"github.com/go-text/typesetting/shaping"
	"golang.org/x/image/math/fixed"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"

	"github.com/wudi/pdfcompose/ir/semantic"
)

// ShapedGlyph represents a single shaped glyph with positioning information.
type ShapedGlyph struct {
	ID       int
	Cluster  int
	XAdvance float64 // In PDF text units (1/1000 em)
}

var faces sync.Map // sha256 of the font program -> *gofont.Face

func faceFor(program []byte) (*gofont.Face, error) {
	key := sha256.Sum256(program)
	if f, ok := faces.Load(key); ok {
		return f.(*gofont.Face), nil
	}
	face, err := gofont.ParseTTF(bytes.NewReader(program))
	if err != nil {
		return nil, err
	}
	actual, _ := faces.LoadOrStore(key, face)
	return actual.(*gofont.Face), nil
}

// ShapeText shapes text with the font's embedded program. Advances are in 1/1000 em.
func ShapeText(text string, font *semantic.Font) ([]ShapedGlyph, error) {
	if font == nil || !font.Embedded() {
		return nil, fmt.Errorf("font %s has no embedded program", baseFont(font))
	}
	face, err := faceFor(font.Descriptor.FontFile)
	if err != nil {
		return nil, err
	}
	runes := []rune(text)
	if len(runes) == 0 {
		return nil, nil
	}
	script := DetectScript(runes)
	input := shaping.Input{
		Text:      runes,
		RunStart:  0,
		RunEnd:    len(runes),
		Direction: scriptDirection(script),
		Face:      face,
		// 1 em = 1000 units, so advances come back in text space units.
		Size:     fixed.Int26_6(1000 * 64),
		Script:   script,
		Language: language.DefaultLanguage(),
	}
	shaper := &shaping.HarfbuzzShaper{}
	output := shaper.Shape(input)

	result := make([]ShapedGlyph, 0, len(output.Glyphs))
	for _, g := range output.Glyphs {
		result = append(result, ShapedGlyph{
			ID:       int(g.GlyphID),
			Cluster:  g.ClusterIndex,
			XAdvance: float64(g.XAdvance) / 64.0,
		})
	}
	return result, nil
}

// Encode converts text into the bytes of a string operand for font and returns
// the total advance in 1/1000 em. Type0 fonts record the glyphs they emit in
// the font's ToUnicode and Widths maps.
func Encode(font *semantic.Font, text string) ([]byte, float64, error) {
	if font == nil {
		return nil, 0, fmt.Errorf("encode: nil font")
	}
	if font.Subtype == "Type0" {
		return encodeGlyphs(font, text)
	}
	data, err := encoding.ReplaceUnsupported(charmap.Windows1252.NewEncoder()).Bytes([]byte(text))
	if err != nil {
		return nil, 0, fmt.Errorf("encode %s: %w", font.BaseFont, err)
	}
	var width float64
	for _, c := range data {
		width += float64(codeWidth(font, int(c)))
	}
	return data, width, nil
}

func encodeGlyphs(font *semantic.Font, text string) ([]byte, float64, error) {
	glyphs, err := ShapeText(text, font)
	if err != nil {
		return nil, 0, err
	}
	runes := []rune(text)
	clusters := make([]int, 0, len(glyphs))
	for _, g := range glyphs {
		clusters = append(clusters, g.Cluster)
	}
	sort.Ints(clusters)
	clusterEnd := func(start int) int {
		for _, c := range clusters {
			if c > start {
				return c
			}
		}
		return len(runes)
	}

	if font.ToUnicode == nil {
		font.ToUnicode = make(map[int][]rune)
	}
	if font.Widths == nil {
		font.Widths = make(map[int]int)
	}
	out := make([]byte, 0, 2*len(glyphs))
	seen := make(map[int]bool)
	var width float64
	for _, g := range glyphs {
		out = append(out, byte(g.ID>>8), byte(g.ID))
		width += g.XAdvance
		if _, ok := font.Widths[g.ID]; !ok {
			font.Widths[g.ID] = int(math.Round(g.XAdvance))
		}
		if seen[g.Cluster] {
			continue
		}
		seen[g.Cluster] = true
		if _, ok := font.ToUnicode[g.ID]; !ok && g.Cluster < len(runes) {
			font.ToUnicode[g.ID] = append([]rune(nil), runes[g.Cluster:clusterEnd(g.Cluster)]...)
		}
	}
	return out, width, nil
}

// Measure returns the width of text set in font at size, in points.
func Measure(font *semantic.Font, text string, size float64) float64 {
	if font == nil {
		return 0
	}
	if font.Subtype == "Type0" {
		glyphs, err := ShapeText(text, font)
		if err == nil {
			var w float64
			for _, g := range glyphs {
				w += g.XAdvance
			}
			return w * size / 1000
		}
	}
	data, err := encoding.ReplaceUnsupported(charmap.Windows1252.NewEncoder()).Bytes([]byte(text))
	if err != nil {
		data = []byte(text)
	}
	var w float64
	for _, c := range data {
		w += float64(codeWidth(font, int(c)))
	}
	return w * size / 1000
}

func codeWidth(font *semantic.Font, code int) int {
	if w, ok := font.Widths[code]; ok {
		return w
	}
	if font.DefaultWidth > 0 {
		return font.DefaultWidth
	}
	return 500
}

func baseFont(f *semantic.Font) string {
	if f == nil {
		return "<nil>"
	}
	return f.BaseFont
}

func scriptDirection(script language.Script) di.Direction {
	switch script {
	case language.Arabic, language.Hebrew, language.Syriac, language.Thaana, language.Nko:
		return di.DirectionRTL
	default:
		return di.DirectionLTR
	}
}

// DetectScript returns the most frequent script among runes, defaulting to Latin.
func DetectScript(runes []rune) language.Script {
	counts := make(map[language.Script]int)
	maxCount := 0
	bestScript := language.Latin

	for _, r := range runes {
		script := scriptFromRune(r)
		if script == language.Unknown {
			continue
		}
		counts[script]++
		if counts[script] > maxCount {
			maxCount = counts[script]
			bestScript = script
		}
	}
	return bestScript
}

func scriptFromRune(r rune) language.Script {
	switch {
	case unicode.Is(unicode.Arabic, r):
		return language.Arabic
	case unicode.Is(unicode.Hebrew, r):
		return language.Hebrew
	case unicode.Is(unicode.Latin, r):
		return language.Latin
	case unicode.Is(unicode.Cyrillic, r):
		return language.Cyrillic
	case unicode.Is(unicode.Greek, r):
		return language.Greek
	case unicode.Is(unicode.Thai, r):
		return language.Thai
	case unicode.Is(unicode.Devanagari, r):
		return language.Devanagari
	case unicode.Is(unicode.Han, r):
		return language.Han
	case unicode.Is(unicode.Hiragana, r):
		return language.Hiragana
	case unicode.Is(unicode.Katakana, r):
		return language.Katakana
	case unicode.Is(unicode.Hangul, r):
		return language.Hangul
	}
	return language.Unknown
}
