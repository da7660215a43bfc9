package builder

import (
	"fmt"
	"math"

	"github.com/wudi/pdfcompose/fonts"
	"github.com/wudi/pdfcompose/ir/semantic"
	"github.com/wudi/pdfcompose/observability"
)

const (
	WatermarkFontSize = 100.0
	WatermarkOpacity  = 0.5
	watermarkAngle    = 45.0
)

// AddWatermark draws text across the center of every existing page at 45
// degrees and half opacity. The glyphs are drawn as outlines inside a marked
// artifact so they are not picked up as page text. Pages added later are not
// watermarked.
func (b *Builder) AddWatermark(text string) error {
	if err := b.doc.CheckOpen(); err != nil {
		return err
	}
	if len(b.doc.Pages) == 0 {
		return nil
	}
	helvetica, err := b.fonts.LoadFont(DefaultFontFamily)
	if err != nil {
		return err
	}
	outline, width, err := fonts.TextOutline(fonts.OutlineProgram(helvetica), text, WatermarkFontSize)
	if err != nil {
		return fmt.Errorf("watermark %q: %w", text, err)
	}

	content := append([]semantic.Operation{semantic.Op("rg", semantic.Num(0, 0, 0)...)}, outline...)
	form := b.doc.Resources.RegisterXObject(&semantic.XObject{
		Subtype: "Form",
		BBox:    semantic.Rectangle{LLY: -0.25 * WatermarkFontSize, URX: math.Ceil(width), URY: WatermarkFontSize},
		Content: content,
	})
	alpha := WatermarkOpacity
	gs := b.doc.Resources.RegisterExtGState(&semantic.ExtGState{FillAlpha: &alpha, StrokeAlpha: &alpha})

	theta := radians(watermarkAngle)
	c, s := math.Cos(theta), math.Sin(theta)
	for _, page := range b.doc.Pages {
		box := page.MediaBox
		cx, cy := (box.LLX+box.URX)/2, (box.LLY+box.URY)/2
		ox, oy := cx-width/2*c, cy-width/2*s
		formName, gsName := page.Bind(form), page.Bind(gs)
		page.AddOverlay(
			semantic.Op("BDC", semantic.Name("Artifact"), semantic.DictOperand{Values: map[string]semantic.Operand{
				"Type":    semantic.Name("Pagination"),
				"Subtype": semantic.Name("Watermark"),
			}}),
			semantic.Op("q"),
			semantic.Op("gs", semantic.Name(gsName)),
			semantic.Op("cm", semantic.Num(c, s, -s, c, ox, oy)...),
			semantic.Op("Do", semantic.Name(formName)),
			semantic.Op("Q"),
			semantic.Op("EMC"),
		)
		page.Elements = append(page.Elements, &semantic.Watermark{
			ElementID: b.doc.NextElementID(),
			Text:      text,
			Form:      form.Key,
			State:     gs.Key,
		})
	}
	b.logger.Info("watermark applied",
		observability.String("text", text),
		observability.Int("pages", len(b.doc.Pages)))
	return nil
}
