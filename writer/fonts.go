package writer

import (
	"bytes"
	"fmt"
	"math"
	"sort"
	"strings"
	"unicode/utf16"

	"github.com/wudi/pdfcompose/ir/raw"
	"github.com/wudi/pdfcompose/ir/semantic"
)

func (b *objectBuilder) fontDict(font *semantic.Font) *raw.DictObj {
	d := raw.Dict()
	d.Set("Type", raw.NameLiteral("Font"))
	d.Set("Subtype", raw.NameLiteral(font.Subtype))
	d.Set("BaseFont", raw.NameLiteral(font.BaseFont))
	if font.Subtype != "Type0" {
		if font.Encoding != "" {
			d.Set("Encoding", raw.NameLiteral(font.Encoding))
		}
		if len(font.Widths) > 0 {
			first, last, widths := encodeWidths(font.Widths)
			d.Set("FirstChar", raw.Int(first))
			d.Set("LastChar", raw.Int(last))
			d.Set("Widths", widths)
		}
		return d
	}

	d.Set("Encoding", raw.NameLiteral("Identity-H"))
	descRef := b.nextRef()
	desc := raw.Dict()
	desc.Set("Type", raw.NameLiteral("Font"))
	desc.Set("Subtype", raw.NameLiteral("CIDFontType2"))
	desc.Set("BaseFont", raw.NameLiteral(font.BaseFont))
	csi := raw.Dict()
	csi.Set("Registry", raw.Text("Adobe"))
	csi.Set("Ordering", raw.Text("Identity"))
	csi.Set("Supplement", raw.Int(0))
	desc.Set("CIDSystemInfo", csi)
	desc.Set("CIDToGIDMap", raw.NameLiteral("Identity"))
	dw := font.DefaultWidth
	if dw == 0 {
		dw = 1000
	}
	desc.Set("DW", raw.Int(dw))
	if len(font.Widths) > 0 {
		desc.Set("W", encodeCIDWidths(font.Widths))
	}
	if font.Descriptor != nil {
		desc.Set("FontDescriptor", raw.RefObj{R: b.fontDescriptor(font.Descriptor)})
	}
	b.objects[descRef] = desc
	d.Set("DescendantFonts", raw.NewArray(raw.RefObj{R: descRef}))

	if cmap := buildToUnicodeCMap(font); len(cmap) > 0 {
		ref := b.nextRef()
		b.objects[ref] = b.flate(raw.Dict(), cmap)
		d.Set("ToUnicode", raw.RefObj{R: ref})
	}
	return d
}

func (b *objectBuilder) fontDescriptor(fd *semantic.FontDescriptor) raw.ObjectRef {
	ref := b.nextRef()
	d := raw.Dict()
	d.Set("Type", raw.NameLiteral("FontDescriptor"))
	d.Set("FontName", raw.NameLiteral(fd.FontName))
	flags := fd.Flags
	if flags == 0 {
		flags = 32
	}
	d.Set("Flags", raw.Int(flags))
	d.Set("ItalicAngle", raw.NumberFloat(fd.ItalicAngle))
	d.Set("Ascent", raw.NumberFloat(fd.Ascent))
	d.Set("Descent", raw.NumberFloat(fd.Descent))
	d.Set("CapHeight", raw.NumberFloat(fd.CapHeight))
	stem := fd.StemV
	if stem == 0 {
		stem = 80
	}
	d.Set("StemV", raw.NumberFloat(stem))
	d.Set("FontBBox", raw.Numbers(fd.FontBBox[:]...))
	if len(fd.FontFile) > 0 {
		fileRef := b.nextRef()
		sd := raw.Dict()
		sd.Set("Length1", raw.Int(len(fd.FontFile)))
		b.objects[fileRef] = b.flate(sd, fd.FontFile)
		d.Set("FontFile2", raw.RefObj{R: fileRef})
	}
	b.objects[ref] = d
	return ref
}

// buildToUnicodeCMap maps each used glyph id back to the text it came from.
func buildToUnicodeCMap(font *semantic.Font) []byte {
	if len(font.ToUnicode) == 0 {
		return nil
	}
	gids := make([]int, 0, len(font.ToUnicode))
	for gid := range font.ToUnicode {
		gids = append(gids, gid)
	}
	sort.Ints(gids)

	name := strings.ReplaceAll(font.BaseFont, " ", "") + "-UTF16"
	var buf bytes.Buffer
	buf.WriteString("/CIDInit /ProcSet findresource begin\n12 dict begin\nbegincmap\n")
	buf.WriteString("/CIDSystemInfo << /Registry (Adobe) /Ordering (UCS) /Supplement 0 >> def\n")
	fmt.Fprintf(&buf, "/CMapName /%s def\n/CMapType 2 def\n", pdfNameLiteral(name))
	buf.WriteString("1 begincodespacerange\n<0000> <FFFF>\nendcodespacerange\n")
	for i := 0; i < len(gids); i += 100 {
		chunk := gids[i:min(i+100, len(gids))]
		fmt.Fprintf(&buf, "%d beginbfchar\n", len(chunk))
		for _, gid := range chunk {
			fmt.Fprintf(&buf, "<%04X> <%s>\n", gid, utf16Hex(font.ToUnicode[gid]))
		}
		buf.WriteString("endbfchar\n")
	}
	buf.WriteString("endcmap\nCMapName currentdict /CMap defineresource pop\nend\nend\n")
	return buf.Bytes()
}

func utf16Hex(runes []rune) string {
	var b strings.Builder
	for _, u := range utf16.Encode(runes) {
		fmt.Fprintf(&b, "%04X", u)
	}
	return b.String()
}

func encodeWidths(widths map[int]int) (first, last int, arr *raw.ArrayObj) {
	first, last = math.MaxInt32, -1
	for k := range widths {
		first = min(first, k)
		last = max(last, k)
	}
	arr = raw.NewArray()
	for i := first; i <= last; i++ {
		arr.Append(raw.Int(widths[i]))
	}
	return first, last, arr
}

// encodeCIDWidths groups consecutive glyph ids of equal width into
// "first last width" triples.
func encodeCIDWidths(widths map[int]int) *raw.ArrayObj {
	arr := raw.NewArray()
	codes := make([]int, 0, len(widths))
	for c := range widths {
		codes = append(codes, c)
	}
	sort.Ints(codes)
	start, prev, current := codes[0], codes[0], widths[codes[0]]
	flush := func() {
		arr.Append(raw.Int(start))
		arr.Append(raw.Int(prev))
		arr.Append(raw.Int(current))
	}
	for _, code := range codes[1:] {
		if w := widths[code]; w != current || code != prev+1 {
			flush()
			start, current = code, w
		}
		prev = code
	}
	flush()
	return arr
}
