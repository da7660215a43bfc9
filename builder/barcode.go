package builder

import (
	"math"

	"github.com/wudi/pdfcompose/barcode"
	"github.com/wudi/pdfcompose/fonts"
	"github.com/wudi/pdfcompose/ir/semantic"
	"github.com/wudi/pdfcompose/observability"
)

const (
	// DefaultBarHeight is the bar height of linear symbols, in points.
	DefaultBarHeight = 50.0
	// DefaultModuleWidth is the narrow bar width of linear symbols, in points.
	DefaultModuleWidth = 1.0

	captionSize = 8.0
	captionGap  = 2.0
)

// AddBarcode encodes payload and draws it at the flow position of page (or of
// the last page when page is nil). The payload is validated before anything
// is added to the document.
func (b *Builder) AddBarcode(page *semantic.Page, sym barcode.Symbology, payload string) (semantic.ElementID, error) {
	if err := b.doc.CheckOpen(); err != nil {
		return 0, err
	}
	symbol, err := barcode.Encode(sym, payload)
	if err != nil {
		return 0, err
	}

	var caption *semantic.Resource
	if sym.Linear() {
		if caption, _, _, err = b.resolveFont(DefaultFontFamily, false, false); err != nil {
			return 0, err
		}
	}
	if page == nil {
		if page, err = b.currentPage(); err != nil {
			return 0, err
		}
	}

	var module, barHeight float64
	var form *semantic.XObject
	if sym.Linear() {
		module = math.Min(DefaultModuleWidth, b.usableWidth(page)/float64(symbol.Columns))
		barHeight = DefaultBarHeight
		form = withCaption(symbol.Form(module, barHeight), caption, payload)
	} else {
		width := page.MediaBox.Width() / 4
		module = width / float64(symbol.Columns)
		barHeight = module
		form = symbol.Form(module, module)
	}

	height := form.BBox.Height()
	if page, err = b.reserve(page, height); err != nil {
		return 0, err
	}
	res := b.doc.Resources.RegisterXObject(form)
	name := page.Bind(res)

	x := page.MediaBox.LLX + b.margins.Left
	y := b.contentTop(page) - height
	page.Append(
		semantic.Op("q"),
		semantic.Op("cm", semantic.Num(1, 0, 0, 1, x, y)...),
		semantic.Op("Do", semantic.Name(name)),
		semantic.Op("Q"),
	)
	el := &semantic.Barcode{
		ElementID:   b.doc.NextElementID(),
		Symbology:   sym.String(),
		Payload:     payload,
		Form:        res.Key,
		X:           x,
		Y:           y,
		Width:       form.BBox.Width(),
		Height:      height,
		ModuleWidth: module,
		BarHeight:   barHeight,
	}
	page.Elements = append(page.Elements, el)
	page.Cursor += height + paragraphSpacing
	b.logger.Debug("barcode added",
		observability.String("symbology", sym.String()),
		observability.Int("page", page.Index),
		observability.String("form", res.Name))
	return el.ElementID, nil
}

// withCaption lifts the bars of a linear symbol and prints the payload under them.
func withCaption(form *semantic.XObject, font *semantic.Resource, payload string) *semantic.XObject {
	lift := captionSize + captionGap
	width := form.BBox.Width()
	tw := fonts.Measure(font.Font, payload, captionSize)

	ops := make([]semantic.Operation, 0, len(form.Content)+10)
	ops = append(ops, semantic.Op("q"), semantic.Op("cm", semantic.Num(1, 0, 0, 1, 0, lift)...))
	ops = append(ops, form.Content...)
	ops = append(ops,
		semantic.Op("Q"),
		semantic.Op("BT"),
		semantic.Op("Tf", semantic.Name(font.Name), semantic.NumberOperand{Value: captionSize}),
		semantic.Op("Td", semantic.Num(math.Max(0, (width-tw)/2), captionGap/2)...),
		semantic.Op("Tj", showOperand(font.Font, payload)),
		semantic.Op("ET"),
	)
	form.Content = ops
	form.BBox.URY += lift
	form.Resources = map[string]semantic.ResourceKey{font.Name: font.Key}
	return form
}
