package fonts

import (
	"strings"

	"github.com/wudi/pdfcompose/ir/semantic"
)

// Widths of the printable ASCII range (32..126) from the Adobe AFM files.
var helveticaWidths = [95]int{
	278, 278, 355, 556, 556, 889, 667, 191, 333, 333, 389, 584, 278, 333, 278, 278,
	556, 556, 556, 556, 556, 556, 556, 556, 556, 556, 278, 278, 584, 584, 584, 556,
	1015, 667, 667, 722, 722, 667, 611, 778, 722, 278, 500, 667, 556, 833, 722, 778,
	667, 778, 722, 667, 611, 722, 667, 944, 667, 667, 611, 278, 278, 278, 469, 556,
	333, 556, 556, 500, 556, 556, 278, 556, 556, 222, 222, 500, 222, 833, 556, 556,
	556, 556, 333, 500, 278, 556, 500, 722, 500, 500, 500, 334, 260, 334, 584,
}

var helveticaBoldWidths = [95]int{
	278, 333, 474, 556, 556, 889, 722, 238, 333, 333, 389, 584, 278, 333, 278, 278,
	556, 556, 556, 556, 556, 556, 556, 556, 556, 556, 333, 333, 584, 584, 584, 611,
	975, 722, 722, 722, 722, 667, 611, 778, 722, 278, 556, 722, 611, 833, 722, 778,
	667, 778, 722, 667, 611, 722, 667, 944, 667, 667, 611, 333, 278, 333, 584, 556,
	333, 556, 611, 556, 611, 556, 333, 611, 611, 278, 278, 556, 278, 889, 611, 611,
	611, 611, 389, 556, 333, 611, 556, 778, 556, 556, 500, 389, 280, 389, 584,
}

type standardFont struct {
	widths       *[95]int
	defaultWidth int
}

var standardFonts = map[string]standardFont{
	"Helvetica":             {widths: &helveticaWidths, defaultWidth: 556},
	"Helvetica-Bold":        {widths: &helveticaBoldWidths, defaultWidth: 556},
	"Helvetica-Oblique":     {widths: &helveticaWidths, defaultWidth: 556},
	"Helvetica-BoldOblique": {widths: &helveticaBoldWidths, defaultWidth: 556},
	"Courier":               {defaultWidth: 600},
	"Courier-Bold":          {defaultWidth: 600},
	"Courier-Oblique":       {defaultWidth: 600},
	"Courier-BoldOblique":   {defaultWidth: 600},
}

var standardVariants = map[string][4]string{
	"Helvetica": {"Helvetica", "Helvetica-Bold", "Helvetica-Oblique", "Helvetica-BoldOblique"},
	"Courier":   {"Courier", "Courier-Bold", "Courier-Oblique", "Courier-BoldOblique"},
}

// IsStandard reports whether name is one of the standard Type1 fonts known here.
func IsStandard(name string) bool {
	_, ok := lookupStandard(strings.ToLower(name))
	return ok
}

func lookupStandard(key string) (*semantic.Font, bool) {
	for name, std := range standardFonts {
		if strings.ToLower(name) != key {
			continue
		}
		widths := make(map[int]int, 95)
		for i := 0; i < 95; i++ {
			if std.widths != nil {
				widths[32+i] = std.widths[i]
			} else {
				widths[32+i] = std.defaultWidth
			}
		}
		return &semantic.Font{
			Subtype:      "Type1",
			BaseFont:     name,
			Encoding:     "WinAnsiEncoding",
			Widths:       widths,
			DefaultWidth: std.defaultWidth,
		}, true
	}
	return nil, false
}
