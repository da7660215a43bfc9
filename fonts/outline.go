package fonts

import (
	"fmt"
	"strings"

	xfont "golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/gomono"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/sfnt"
	"golang.org/x/image/math/fixed"

	"github.com/wudi/pdfcompose/ir/semantic"
)

// OutlineProgram returns a TrueType program able to draw font's glyph shapes.
// Standard Type1 fonts carry no program and map onto a Go font of the same style.
func OutlineProgram(font *semantic.Font) []byte {
	if font != nil && font.Embedded() {
		return font.Descriptor.FontFile
	}
	name := ""
	if font != nil {
		name = font.BaseFont
	}
	switch {
	case strings.HasPrefix(name, "Courier"):
		return gomono.TTF
	case strings.Contains(name, "Bold"):
		return gobold.TTF
	}
	return goregular.TTF
}

// TextOutline converts text into filled path operations at the given size.
// The baseline starts at the origin and runs along +x; the returned width is
// the advance of the whole string in points.
func TextOutline(program []byte, text string, size float64) ([]semantic.Operation, float64, error) {
	f, err := sfnt.Parse(program)
	if err != nil {
		return nil, 0, fmt.Errorf("parse outline font: %w", err)
	}
	var buf sfnt.Buffer
	ppem := fixed.Int26_6(size * 64)

	var ops []semantic.Operation
	var pen float64
	prev := sfnt.GlyphIndex(0)
	for i, r := range text {
		gid, err := f.GlyphIndex(&buf, r)
		if err != nil {
			gid = 0
		}
		if i > 0 && prev != 0 && gid != 0 {
			if k, err := f.Kern(&buf, prev, gid, ppem, xfont.HintingNone); err == nil {
				pen += fx(k)
			}
		}
		segs, err := f.LoadGlyph(&buf, gid, ppem, nil)
		if err != nil {
			return nil, 0, fmt.Errorf("load glyph %q: %w", r, err)
		}
		ops = append(ops, segmentOps(segs, pen)...)
		adv, err := f.GlyphAdvance(&buf, gid, ppem, xfont.HintingNone)
		if err != nil {
			return nil, 0, fmt.Errorf("advance %q: %w", r, err)
		}
		pen += fx(adv)
		prev = gid
	}
	if len(ops) > 0 {
		ops = append(ops, semantic.Op("f"))
	}
	return ops, pen, nil
}

// segmentOps flips sfnt's y-down coordinates and turns quadratic curves into cubic ones.
func segmentOps(segs sfnt.Segments, dx float64) []semantic.Operation {
	var ops []semantic.Operation
	var cx, cy float64
	open := false
	pt := func(p fixed.Point26_6) (float64, float64) { return dx + fx(p.X), -fx(p.Y) }
	for _, s := range segs {
		switch s.Op {
		case sfnt.SegmentOpMoveTo:
			if open {
				ops = append(ops, semantic.Op("h"))
			}
			cx, cy = pt(s.Args[0])
			ops = append(ops, semantic.Op("m", semantic.Num(cx, cy)...))
			open = true
		case sfnt.SegmentOpLineTo:
			cx, cy = pt(s.Args[0])
			ops = append(ops, semantic.Op("l", semantic.Num(cx, cy)...))
		case sfnt.SegmentOpQuadTo:
			qx, qy := pt(s.Args[0])
			x, y := pt(s.Args[1])
			c1x, c1y := cx+2.0/3.0*(qx-cx), cy+2.0/3.0*(qy-cy)
			c2x, c2y := x+2.0/3.0*(qx-x), y+2.0/3.0*(qy-y)
			ops = append(ops, semantic.Op("c", semantic.Num(round(c1x), round(c1y), round(c2x), round(c2y), x, y)...))
			cx, cy = x, y
		case sfnt.SegmentOpCubeTo:
			x1, y1 := pt(s.Args[0])
			x2, y2 := pt(s.Args[1])
			x, y := pt(s.Args[2])
			ops = append(ops, semantic.Op("c", semantic.Num(x1, y1, x2, y2, x, y)...))
			cx, cy = x, y
		}
	}
	if open {
		ops = append(ops, semantic.Op("h"))
	}
	return ops
}

func fx(v fixed.Int26_6) float64 { return float64(v) / 64 }

func round(v float64) float64 {
	const q = 1000
	if v < 0 {
		return -float64(int64(-v*q+0.5)) / q
	}
	return float64(int64(v*q+0.5)) / q
}
