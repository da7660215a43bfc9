package builder

import (
	"errors"
	"image"
	"image/color"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/image/font/gofont/goregular"

	"github.com/wudi/pdfcompose/barcode"
	"github.com/wudi/pdfcompose/fonts"
	"github.com/wudi/pdfcompose/ir/semantic"
)

func newBuilder(t *testing.T, opts ...Option) *Builder {
	t.Helper()
	return New(semantic.NewDocument(semantic.DefaultVersion), opts...)
}

func paragraphs(p *semantic.Page) []*semantic.Paragraph {
	var out []*semantic.Paragraph
	for _, el := range p.Elements {
		if para, ok := el.(*semantic.Paragraph); ok {
			out = append(out, para)
		}
	}
	return out
}

func operators(p *semantic.Page) []string {
	var out []string
	for _, cs := range p.Streams() {
		for _, op := range cs.Operations {
			out = append(out, op.Operator)
		}
	}
	return out
}

func TestSameFontSharesResource(t *testing.T) {
	b := newBuilder(t)
	_, err := b.Append("first", Style{})
	require.NoError(t, err)
	_, err = b.Append("second", Style{})
	require.NoError(t, err)

	require.Equal(t, 1, b.Document().Resources.Len())
	page := b.Document().Pages[0]
	require.Len(t, paragraphs(page), 2)
	require.Len(t, page.Resources, 1)
	require.Contains(t, page.Resources, "F1")
}

func TestAppendCreatesFirstPage(t *testing.T) {
	b := newBuilder(t)
	id, err := b.Append("Hello", Style{})
	require.NoError(t, err)
	require.Len(t, b.Document().Pages, 1)

	el, page, ok := b.Document().Element(id)
	require.True(t, ok)
	require.Equal(t, 0, page.Index)
	para := el.(*semantic.Paragraph)
	require.Equal(t, "Hello", para.Text)
	require.Equal(t, "Helvetica", para.FontName)
	require.Equal(t, DefaultFontSize, para.Size)
	require.Equal(t, []string{"Hello"}, para.Lines)
}

func TestParagraphWrapsAtPositionWidth(t *testing.T) {
	b := newBuilder(t)
	page, err := b.AddPage()
	require.NoError(t, err)
	// "aaaa" is 4*556*10/1000 = 22.24pt wide in Helvetica 10.
	id, err := b.AddParagraph(page, "aaaa aaaa aaaa", Style{FontSize: 10, Position: &Position{X: 50, Y: 100, Width: 50}})
	require.NoError(t, err)

	el, _, _ := b.Document().Element(id)
	para := el.(*semantic.Paragraph)
	require.True(t, para.Fixed)
	require.Equal(t, []string{"aaaa aaaa", "aaaa"}, para.Lines)
	require.Equal(t, 0.0, page.Cursor)
}

func TestLongParagraphContinuesOnNewPage(t *testing.T) {
	b := newBuilder(t, WithPageSize(semantic.Rectangle{URX: 300, URY: 150}))
	text := strings.TrimSpace(strings.Repeat("line\n", 10))
	first, err := b.Append(text, Style{})
	require.NoError(t, err)

	pages := b.Document().Pages
	require.Greater(t, len(pages), 1)
	var lines int
	for i, p := range pages {
		for _, para := range paragraphs(p) {
			lines += len(para.Lines)
			if i == 0 {
				require.Equal(t, first, para.ElementID)
				require.Zero(t, para.Continues)
			} else {
				require.Equal(t, first, para.Continues)
			}
		}
	}
	require.Equal(t, 10, lines)
}

func TestInvalidStyle(t *testing.T) {
	b := newBuilder(t)
	_, err := b.Append("x", Style{FontSize: -1})
	require.ErrorIs(t, err, ErrInvalidStyle)
	_, err = b.Append("x", Style{Color: &semantic.RGB{R: 2}})
	require.ErrorIs(t, err, ErrInvalidStyle)
	require.Empty(t, b.Document().Pages)
	require.Zero(t, b.Document().Resources.Len())
}

func TestUnknownFontAddsNothing(t *testing.T) {
	b := newBuilder(t)
	_, err := b.Append("x", Style{FontFamily: "NoSuchFont"})
	require.True(t, errors.Is(err, fonts.ErrFontNotFound))
	require.Empty(t, b.Document().Pages)
	require.Zero(t, b.Document().Resources.Len())

	_, err = b.Append("still usable", Style{})
	require.NoError(t, err)
}

func TestBoldUsesVariantFace(t *testing.T) {
	b := newBuilder(t)
	id, err := b.Append("bold", Style{Bold: true})
	require.NoError(t, err)
	el, page, _ := b.Document().Element(id)
	require.Equal(t, "Helvetica-Bold", el.(*semantic.Paragraph).FontName)
	require.NotContains(t, operators(page), "Tr")
}

func TestBoldItalicSimulatedWithoutVariants(t *testing.T) {
	reg := fonts.NewRegistry()
	require.NoError(t, reg.RegisterTrueType("Custom", goregular.TTF))
	b := newBuilder(t, WithFontProvider(reg))
	_, err := b.Append("fake", Style{FontFamily: "Custom", Bold: true, Italic: true})
	require.NoError(t, err)

	page := b.Document().Pages[0]
	var sawFill, sawSkew bool
	for _, op := range page.Contents[0].Operations {
		switch op.Operator {
		case "Tr":
			sawFill = op.Operands[0].(semantic.NumberOperand).Value == 2
		case "Tm":
			skew := op.Operands[2].(semantic.NumberOperand).Value
			sawSkew = math.Abs(skew-math.Tan(12*math.Pi/180)) < 1e-9
		case "Tj":
			require.True(t, op.Operands[0].(semantic.StringOperand).Hex)
		}
	}
	require.True(t, sawFill)
	require.True(t, sawSkew)
}

func TestRotationIsConvertedToRadians(t *testing.T) {
	b := newBuilder(t)
	id, err := b.Append("turn", Style{Rotation: 90})
	require.NoError(t, err)
	el, page, _ := b.Document().Element(id)
	require.InDelta(t, math.Pi/2, el.(*semantic.Paragraph).Rotation, 1e-12)
	require.Contains(t, operators(page), "cm")
}

func TestDecorationsAndBackground(t *testing.T) {
	b := newBuilder(t)
	_, err := b.Append("deco", Style{
		Underline:   true,
		LineThrough: true,
		Background:  &semantic.RGB{R: 1, G: 1},
		Border:      &Border{Width: 1},
	})
	require.NoError(t, err)
	ops := operators(b.Document().Pages[0])
	var strokes, rects int
	for _, op := range ops {
		switch op {
		case "S":
			strokes++
		case "re":
			rects++
		}
	}
	require.Equal(t, 3, strokes)
	require.Equal(t, 2, rects)
}

func TestRunsKeepTheirStyles(t *testing.T) {
	b := newBuilder(t)
	red := &semantic.RGB{R: 1}
	id, err := b.AddRuns(nil, []Run{
		{Text: "plain "},
		{Text: "red", Style: Style{Color: red, FontSize: 20}},
	}, Style{})
	require.NoError(t, err)
	el, page, _ := b.Document().Element(id)
	para := el.(*semantic.Paragraph)
	require.Equal(t, "plain red", para.Text)
	require.Equal(t, []string{"plain red"}, para.Lines)
	require.InDelta(t, 20*lineSpacing+paragraphSpacing, page.Cursor, 1e-9)
}

func TestAddTitleSetsMetadata(t *testing.T) {
	b := newBuilder(t)
	id, err := b.AddTitle("Report")
	require.NoError(t, err)
	require.Equal(t, "Report", b.Document().Info.Title)
	el, _, _ := b.Document().Element(id)
	require.Equal(t, TitleFontSize, el.(*semantic.Paragraph).Size)
	require.True(t, el.(*semantic.Paragraph).Bold)
}

func TestQRCodeScalesToQuarterPageWidth(t *testing.T) {
	b := newBuilder(t, WithPageSize(semantic.Rectangle{URX: 600, URY: 800}))
	id, err := b.AddBarcode(nil, barcode.QR, "HELLO")
	require.NoError(t, err)
	el, _, _ := b.Document().Element(id)
	bc := el.(*semantic.Barcode)
	require.InDelta(t, 150, bc.Width, 1e-9)
	require.InDelta(t, 150, bc.Height, 1e-9)
	require.Equal(t, "qr", bc.Symbology)
}

func TestLinearBarcodeDefaults(t *testing.T) {
	b := newBuilder(t)
	id, err := b.AddBarcode(nil, barcode.EAN, "4006381333931")
	require.NoError(t, err)
	el, _, _ := b.Document().Element(id)
	bc := el.(*semantic.Barcode)
	require.Equal(t, DefaultModuleWidth, bc.ModuleWidth)
	require.Equal(t, DefaultBarHeight, bc.BarHeight)
	require.InDelta(t, 95, bc.Width, 1e-9)

	res, ok := b.Document().Resources.Lookup(bc.Form)
	require.True(t, ok)
	require.Len(t, res.XObject.Resources, 1)
}

func TestInvalidBarcodeAddsNothing(t *testing.T) {
	b := newBuilder(t)
	_, err := b.AddBarcode(nil, barcode.EAN, "12A456")
	require.ErrorIs(t, err, barcode.ErrInvalidPayload)
	require.Empty(t, b.Document().Pages)
	require.Zero(t, b.Document().Resources.Len())
}

func TestIdenticalBarcodesShareForm(t *testing.T) {
	b := newBuilder(t)
	_, err := b.AddBarcode(nil, barcode.Code128, "ABC-123")
	require.NoError(t, err)
	_, err = b.AddBarcode(nil, barcode.Code128, "ABC-123")
	require.NoError(t, err)
	var forms int
	for _, r := range b.Document().Resources.Entries() {
		if r.Kind == semantic.ResourceXObject {
			forms++
		}
	}
	require.Equal(t, 1, forms)
}

func TestBookmarks(t *testing.T) {
	b := newBuilder(t)
	require.ErrorIs(t, b.AddBookmark("none"), ErrNoPages)

	_, err := b.AddPage()
	require.NoError(t, err)
	require.NoError(t, b.AddBookmark("one"))
	_, err = b.AddPage()
	require.NoError(t, err)
	require.NoError(t, b.AddBookmark("two"))

	outlines := b.Document().Outlines
	require.Len(t, outlines, 2)
	require.Equal(t, "one", outlines[0].Title)
	require.Equal(t, 0, outlines[0].PageIndex)
	require.Equal(t, 1, outlines[1].PageIndex)
	require.Equal(t, semantic.A4.URY, outlines[1].Top)
}

func TestWatermarkSharedAcrossPages(t *testing.T) {
	b := newBuilder(t)
	for i := 0; i < 3; i++ {
		_, err := b.AddPage()
		require.NoError(t, err)
	}
	require.NoError(t, b.AddWatermark("DRAFT"))

	require.Equal(t, 2, b.Document().Resources.Len())
	var key semantic.ResourceKey
	for _, p := range b.Document().Pages {
		streams := p.Streams()
		last := streams[len(streams)-1].Operations
		require.Equal(t, "BDC", last[0].Operator)
		require.Equal(t, semantic.Name("Artifact"), last[0].Operands[0])
		require.Equal(t, "EMC", last[len(last)-1].Operator)

		wm := p.Elements[len(p.Elements)-1].(*semantic.Watermark)
		if key == "" {
			key = wm.Form
		}
		require.Equal(t, key, wm.Form)
	}

	res, _ := b.Document().Resources.Lookup(key)
	require.Equal(t, "Form", res.XObject.Subtype)
	for _, op := range res.XObject.Content {
		require.NotEqual(t, "Tj", op.Operator)
	}
}

func TestContentAfterWatermarkStaysBelow(t *testing.T) {
	b := newBuilder(t)
	_, err := b.Append("first", Style{})
	require.NoError(t, err)
	require.NoError(t, b.AddWatermark("DRAFT"))
	_, err = b.Append("after watermark", Style{})
	require.NoError(t, err)
	page := b.Document().Pages[0]
	_, err = b.AddBarcode(page, barcode.Code39, "ABC")
	require.NoError(t, err)

	require.Len(t, page.Overlays, 1)
	streams := page.Streams()
	last := streams[len(streams)-1].Operations
	require.Equal(t, "BDC", last[0].Operator)
	require.Equal(t, "EMC", last[len(last)-1].Operator)
	for _, cs := range page.Contents {
		for _, op := range cs.Operations {
			require.NotEqual(t, "EMC", op.Operator)
		}
	}
}

func TestWatermarkIsCentered(t *testing.T) {
	b := newBuilder(t)
	page, err := b.AddPage()
	require.NoError(t, err)
	require.NoError(t, b.AddWatermark("X"))

	var cm semantic.Operation
	streams := page.Streams()
	for _, op := range streams[len(streams)-1].Operations {
		if op.Operator == "cm" {
			cm = op
		}
	}
	_, width, err := fonts.TextOutline(fonts.OutlineProgram(nil), "X", WatermarkFontSize)
	require.NoError(t, err)
	c := math.Cos(math.Pi / 4)
	ox := cm.Operands[4].(semantic.NumberOperand).Value
	oy := cm.Operands[5].(semantic.NumberOperand).Value
	require.InDelta(t, 595.0/2-width/2*c, ox, 1e-6)
	require.InDelta(t, 842.0/2-width/2*c, oy, 1e-6)
}

func TestWatermarkWithoutPagesIsNoop(t *testing.T) {
	b := newBuilder(t)
	require.NoError(t, b.AddWatermark("DRAFT"))
	require.Zero(t, b.Document().Resources.Len())
}

func TestClosedDocumentRejectsMutations(t *testing.T) {
	b := newBuilder(t)
	require.NoError(t, b.Document().Finalize())

	_, err := b.Append("late", Style{})
	require.ErrorIs(t, err, semantic.ErrDocumentClosed)
	_, err = b.AddBarcode(nil, barcode.QR, "late")
	require.ErrorIs(t, err, semantic.ErrDocumentClosed)
	require.ErrorIs(t, b.AddWatermark("late"), semantic.ErrDocumentClosed)
	require.ErrorIs(t, b.AddBookmark("late"), semantic.ErrDocumentClosed)
}

func TestFromImageAddsSoftMask(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 2, 1))
	img.Set(0, 0, color.NRGBA{R: 255, A: 255})
	img.Set(1, 0, color.NRGBA{B: 255, A: 10})

	x := FromImage(img)
	require.Equal(t, []byte{255, 0, 0, 0, 0, 255}, x.Data)
	require.NotNil(t, x.SMask)
	require.Equal(t, []byte{255, 10}, x.SMask.Data)

	b := newBuilder(t)
	id, err := b.AddImage(nil, x, 10, 20, 0, 0)
	require.NoError(t, err)
	el, _, _ := b.Document().Element(id)
	require.Equal(t, 2.0, el.(*semantic.Image).Width)
}
