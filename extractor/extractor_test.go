package extractor

import (
	"context"
	"image"
	"image/color"
	"strings"
	"testing"

	"github.com/wudi/pdfcompose/barcode"
	"github.com/wudi/pdfcompose/builder"
	"github.com/wudi/pdfcompose/ir/raw"
	"github.com/wudi/pdfcompose/ir/semantic"
	"github.com/wudi/pdfcompose/parser"
	"github.com/wudi/pdfcompose/writer"
)

func roundTrip(t *testing.T, build func(b *builder.Builder)) *Extractor {
	t.Helper()
	b := builder.New(semantic.NewDocument(semantic.DefaultVersion))
	build(b)
	data, err := writer.Serialize(b.Document(), writer.Config{Compression: 6, XMP: true})
	if err != nil {
		t.Fatalf("serialize: %v", err)
	}
	doc, err := parser.Parse(context.Background(), data, parser.Config{})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	ex, err := New(doc)
	if err != nil {
		t.Fatalf("new extractor: %v", err)
	}
	return ex
}

func must(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatal(err)
	}
}

func TestExtractTextSkipsWatermark(t *testing.T) {
	ex := roundTrip(t, func(b *builder.Builder) {
		_, err := b.AddTitle("Annual Report")
		must(t, err)
		_, err = b.Append("Revenue grew in every region.", builder.Style{})
		must(t, err)
		must(t, b.AddWatermark("CONFIDENTIAL"))
	})
	pages, err := ex.ExtractText(context.Background())
	if err != nil {
		t.Fatalf("extract text: %v", err)
	}
	if len(pages) != 1 {
		t.Fatalf("expected 1 page of text, got %d", len(pages))
	}
	lines := strings.Split(pages[0].Content, "\n")
	if len(lines) != 2 || lines[0] != "Annual Report" || lines[1] != "Revenue grew in every region." {
		t.Fatalf("unexpected text %q", pages[0].Content)
	}
	if strings.Contains(pages[0].Content, "CONFIDENTIAL") {
		t.Fatalf("watermark leaked into text: %q", pages[0].Content)
	}
}

func TestExtractTextFollowsForms(t *testing.T) {
	ex := roundTrip(t, func(b *builder.Builder) {
		_, err := b.AddBarcode(nil, barcode.Code39, "PART-42")
		must(t, err)
	})
	pages, err := ex.ExtractText(context.Background())
	if err != nil {
		t.Fatalf("extract text: %v", err)
	}
	if len(pages) != 1 || !strings.Contains(pages[0].Content, "PART-42") {
		t.Fatalf("expected barcode caption in text, got %+v", pages)
	}
}

func TestExtractMetadata(t *testing.T) {
	ex := roundTrip(t, func(b *builder.Builder) {
		_, err := b.AddTitle("Übersicht")
		must(t, err)
		must(t, b.SetMetadata("author", "Jane Roe"))
		must(t, b.SetMetadata("Department", "R&D"))
	})
	meta := ex.ExtractMetadata(context.Background())
	if meta.Title != "Übersicht" || meta.Author != "Jane Roe" {
		t.Fatalf("unexpected metadata %+v", meta)
	}
	if meta.Custom["Department"] != "R&D" {
		t.Fatalf("custom entry missing: %+v", meta.Custom)
	}
	if meta.PageCount != 1 || meta.Encrypted {
		t.Fatalf("unexpected page count or encryption flag: %+v", meta)
	}
	if !strings.Contains(string(meta.XMP), "x:xmpmeta") {
		t.Fatalf("xmp stream not found")
	}
}

func TestExtractBookmarks(t *testing.T) {
	ex := roundTrip(t, func(b *builder.Builder) {
		_, err := b.Append("first", builder.Style{})
		must(t, err)
		must(t, b.AddBookmark("Intro"))
		_, err = b.AddPage()
		must(t, err)
		must(t, b.AddBookmark("Details"))
	})
	marks := ex.ExtractBookmarks()
	if len(marks) != 2 {
		t.Fatalf("expected 2 bookmarks, got %+v", marks)
	}
	if marks[0].Title != "Intro" || marks[0].Page != 0 {
		t.Fatalf("unexpected first bookmark %+v", marks[0])
	}
	if marks[1].Title != "Details" || marks[1].Page != 1 || marks[1].Top == 0 {
		t.Fatalf("unexpected second bookmark %+v", marks[1])
	}
}

func TestExtractFonts(t *testing.T) {
	ex := roundTrip(t, func(b *builder.Builder) {
		_, err := b.Append("plain", builder.Style{})
		must(t, err)
		_, err = b.AddPage()
		must(t, err)
		_, err = b.Append("again", builder.Style{})
		must(t, err)
	})
	fonts := ex.ExtractFonts()
	if len(fonts) != 1 {
		t.Fatalf("expected a single font, got %+v", fonts)
	}
	if fonts[0].BaseFont != builder.DefaultFontFamily || len(fonts[0].Pages) != 2 {
		t.Fatalf("unexpected font info %+v", fonts[0])
	}
}

func TestExtractImages(t *testing.T) {
	src := image.NewNRGBA(image.Rect(0, 0, 2, 2))
	for i := 0; i < 4; i++ {
		src.Set(i%2, i/2, color.NRGBA{R: 200, G: 10, B: 10, A: 255})
	}
	ex := roundTrip(t, func(b *builder.Builder) {
		page, err := b.AddPage()
		must(t, err)
		_, err = b.AddImage(page, builder.FromImage(src), 72, 72, 20, 20)
		must(t, err)
	})
	assets, err := ex.ExtractImages(context.Background())
	if err != nil {
		t.Fatalf("extract images: %v", err)
	}
	if len(assets) != 1 {
		t.Fatalf("expected 1 image, got %d", len(assets))
	}
	a := assets[0]
	if a.Width != 2 || a.Height != 2 || a.ColorSpace != "DeviceRGB" || len(a.Filters) != 0 {
		t.Fatalf("unexpected asset %+v", a)
	}
	img, err := a.ToImage()
	if err != nil {
		t.Fatalf("to image: %v", err)
	}
	r, g, _, _ := img.At(1, 1).RGBA()
	if r>>8 != 200 || g>>8 != 10 {
		t.Fatalf("unexpected pixel %v", img.At(1, 1))
	}
	if _, err := a.ToPNG(); err != nil {
		t.Fatalf("to png: %v", err)
	}
}

func TestToUnicodeCMap(t *testing.T) {
	cmap := parseToUnicodeCMap([]byte(`/CIDInit /ProcSet findresource begin
1 begincodespacerange
<0000> <FFFF>
endcodespacerange
2 beginbfchar
<0003> <0020>
<0024> <00410042>
endbfchar
1 beginbfrange
<0010> <0012> <0061>
endbfrange
1 beginbfrange
<0020> <0021> [<03B1>
<03B2>]
endbfrange
endcmap`))
	got := cmap.decode([]byte{0x00, 0x24, 0x00, 0x03, 0x00, 0x10, 0x00, 0x12, 0x00, 0x20, 0x00, 0x21})
	if got != "AB acαβ" {
		t.Fatalf("unexpected decode %q", got)
	}
}

func TestNewRequiresCatalog(t *testing.T) {
	doc := raw.NewDocument("1.7")
	if _, err := New(doc); err == nil {
		t.Fatal("expected error for document without catalog")
	}
	if _, err := New(nil); err == nil {
		t.Fatal("expected error for nil document")
	}
}
