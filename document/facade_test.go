package document

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wudi/pdfcompose/barcode"
	"github.com/wudi/pdfcompose/builder"
	"github.com/wudi/pdfcompose/ir/semantic"
)

func TestDocumentBuilderRequiresInit(t *testing.T) {
	d := NewDocumentBuilder(filepath.Join(t.TempDir(), "x.pdf"))
	require.ErrorIs(t, d.AddTitle("t"), ErrNotInitialized)
	require.ErrorIs(t, d.AddMarkdown("# t"), ErrNotInitialized)
	require.ErrorIs(t, d.GenerateDocument(), ErrNotInitialized)
	require.Nil(t, d.Session())

	require.NoError(t, d.Init())
	require.ErrorIs(t, d.Init(), ErrAlreadyInitialized)
	d.Discard()
}

func TestDocumentBuilderFlow(t *testing.T) {
	path := filepath.Join(t.TempDir(), "facade.pdf")
	d := NewDocumentBuilder(path)
	d.SetVersion(semantic.Version17)
	require.NoError(t, d.Init())

	require.NoError(t, d.AddTitle("Facade"))
	require.NoError(t, d.AddBookmark("Start"))
	require.NoError(t, d.AddParagraph("Plain paragraph."))
	require.NoError(t, d.AddStyledParagraph("Rotated words", ParagraphStyle{
		FontName: "Courier",
		FontSize: 10,
		Rotation: 10,
		Border:   &builder.Border{Width: 1},
	}))
	red := &semantic.RGB{R: 1}
	require.NoError(t, d.AddTextParagraph(
		d.CreateStyledText("Mixed ", TextStyle{Bold: true}),
		d.CreateStyledText("styles", TextStyle{Color: red, Underline: true}),
	))
	require.NoError(t, d.AddBarcode39("ABC-123"))
	require.NoError(t, d.AddBarcode128("Order#7"))
	require.NoError(t, d.AddBarcodeEAN("5901234123457"))
	require.NoError(t, d.AddQRCode("https://example.com"))
	require.NoError(t, d.AddMetadata("Overridden", "", "Jo", "pdfcompose tests"))
	require.NoError(t, d.AddCustomMetadata("Department", "Finance"))
	require.NoError(t, d.AddWatermark("DRAFT"))

	require.NoError(t, d.GenerateDocument())
	require.ErrorIs(t, d.GenerateDocument(), semantic.ErrAlreadyClosed)
	require.ErrorIs(t, d.AddParagraph("late"), semantic.ErrDocumentClosed)

	ex := open(t, path, "")
	md := ex.ExtractMetadata(context.Background())
	require.Equal(t, "1.7", md.Version)
	require.Equal(t, "Overridden", md.Title)
	require.Equal(t, "Jo", md.Author)
	require.Empty(t, md.Subject)
	require.Equal(t, "pdfcompose tests", md.Creator)
	require.Equal(t, "Finance", md.Custom["Department"])

	marks := ex.ExtractBookmarks()
	require.Len(t, marks, 1)
	require.Equal(t, "Start", marks[0].Title)

	text := allText(t, ex)
	for _, want := range []string{"Facade", "Plain paragraph.", "Rotated words", "Mixed styles", "ABC-123", "https://example.com"} {
		require.Contains(t, text, want)
	}
	require.NotContains(t, text, "DRAFT")
}

func TestDocumentBuilderWithPassword(t *testing.T) {
	path := filepath.Join(t.TempDir(), "locked.pdf")
	d := NewDocumentBuilder(path)
	require.NoError(t, d.InitWithPassword("aha", ""))
	require.NoError(t, d.AddParagraph(body))
	require.NoError(t, d.GenerateDocument())

	ex := open(t, path, "aha")
	require.True(t, ex.ExtractMetadata(context.Background()).Encrypted)
	require.Contains(t, allText(t, ex), body)
}

func TestDocumentBuilderInvalidEAN(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ean.pdf")
	d := NewDocumentBuilder(path)
	require.NoError(t, d.Init())

	require.ErrorIs(t, d.AddBarcodeEAN("12A456"), barcode.ErrInvalidPayload)
	doc := d.Session().Document()
	require.Empty(t, doc.Pages)
	require.Zero(t, doc.Resources.Len())

	d.Discard()
	_, err := os.Stat(path)
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestDocumentBuilderQRCodeScalesToPage(t *testing.T) {
	d := NewDocumentBuilder(filepath.Join(t.TempDir(), "qr.pdf"),
		WithPageSize(semantic.Rectangle{URX: 600, URY: 800}))
	require.NoError(t, d.Init())
	defer d.Discard()

	require.NoError(t, d.AddQRCode("HELLO"))
	page := d.Session().Document().Pages[0]
	require.Len(t, page.Elements, 2)
	code, ok := page.Elements[0].(*semantic.Barcode)
	require.True(t, ok)
	require.Equal(t, "qr", code.Symbology)
	require.InDelta(t, 150, code.Width, 1e-9)
	para, ok := page.Elements[1].(*semantic.Paragraph)
	require.True(t, ok)
	require.Equal(t, "HELLO", para.Text)
}

func TestDocumentBuilderRendersMarkup(t *testing.T) {
	path := filepath.Join(t.TempDir(), "markup.pdf")
	d := NewDocumentBuilder(path)
	require.NoError(t, d.Init())
	require.NoError(t, d.AddMarkdown("# From Markdown\n\nBody text.\n"))
	require.NoError(t, d.AddHTML("<p>From <b>HTML</b></p>"))
	require.NoError(t, d.AddLaTeX(`a^2 + b^2`))
	require.NoError(t, d.GenerateDocument())

	ex := open(t, path, "")
	require.Equal(t, "From Markdown", ex.ExtractMetadata(context.Background()).Title)
	text := allText(t, ex)
	require.Contains(t, text, "Body text.")
	require.Contains(t, text, "From HTML")
	require.Contains(t, text, "a^2")
}
