package parser

import (
	"bytes"
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wudi/pdfcompose/filters"
	"github.com/wudi/pdfcompose/ir/raw"
	"github.com/wudi/pdfcompose/security"
	"github.com/wudi/pdfcompose/writer"
)

const content = "BT /F1 12 Tf 72 700 Td (Hello) Tj ET"

func onePageObjects() (map[raw.ObjectRef]raw.Object, *raw.DictObj) {
	catalog := raw.Dict()
	catalog.Set("Type", raw.NameLiteral("Catalog"))
	catalog.Set("Pages", raw.Ref(2, 0))

	pages := raw.Dict()
	pages.Set("Type", raw.NameLiteral("Pages"))
	pages.Set("Kids", raw.NewArray(raw.Ref(3, 0)))
	pages.Set("Count", raw.Int(1))

	page := raw.Dict()
	page.Set("Type", raw.NameLiteral("Page"))
	page.Set("Parent", raw.Ref(2, 0))
	page.Set("MediaBox", raw.Numbers(0, 0, 595, 842))
	page.Set("Contents", raw.Ref(4, 0))

	info := raw.Dict()
	info.Set("Title", raw.Text("Quarterly report"))

	objects := map[raw.ObjectRef]raw.Object{
		{Num: 1}: catalog,
		{Num: 2}: pages,
		{Num: 3}: page,
		{Num: 4}: raw.NewStream(raw.Dict(), []byte(content)),
		{Num: 5}: info,
	}
	trailer := raw.Dict()
	trailer.Set("Root", raw.Ref(1, 0))
	trailer.Set("Info", raw.Ref(5, 0))
	return objects, trailer
}

func writeOnePage(t *testing.T) []byte {
	t.Helper()
	objects, trailer := onePageObjects()
	data, err := writer.WriteObjects("1.7", objects, trailer)
	require.NoError(t, err)
	return data
}

func TestParseClassicFile(t *testing.T) {
	doc, err := Parse(context.Background(), writeOnePage(t), Config{})
	require.NoError(t, err)
	require.Equal(t, "1.7", doc.Version)
	require.False(t, doc.Encrypted)
	require.Len(t, doc.Objects, 5)

	pages := doc.Pages()
	require.Len(t, pages, 1)
	st, ok := doc.Resolve(pages[0].KV["Contents"]).(*raw.StreamObj)
	require.True(t, ok)
	require.Equal(t, content, string(st.Data))

	info, ok := doc.ResolveDict(doc.Trailer.KV["Info"])
	require.True(t, ok)
	title, _ := info.Bytes("Title")
	require.Equal(t, "Quarterly report", string(title))
	_, hasSize := doc.Trailer.Get("Size")
	require.False(t, hasSize)
}

func TestParseRepairsStaleOffsets(t *testing.T) {
	data := writeOnePage(t)
	// shifting every object invalidates the xref offsets
	shifted := bytes.Replace(data, []byte("\n1 0 obj"), []byte("\n%padding\n1 0 obj"), 1)
	doc, err := Parse(context.Background(), shifted, Config{})
	require.NoError(t, err)
	require.Len(t, doc.Pages(), 1)
}

func TestParseRepairsMissingXRef(t *testing.T) {
	data := writeOnePage(t)
	idx := bytes.Index(data, []byte("xref\n"))
	require.Greater(t, idx, 0)
	tail := data[bytes.Index(data, []byte("trailer")):]
	broken := append(append([]byte(nil), data[:idx]...), tail...)
	broken = bytes.Replace(broken, []byte("startxref"), []byte("startxre"), 1)

	doc, err := Parse(context.Background(), broken, Config{})
	require.NoError(t, err)
	require.Len(t, doc.Pages(), 1)
}

func TestParseFindsCatalogWithoutTrailer(t *testing.T) {
	data := []byte("%PDF-1.4\n" +
		"1 0 obj\n<</Type/Catalog/Pages 2 0 R>>\nendobj\n" +
		"2 0 obj\n<</Type/Pages/Kids[]/Count 0>>\nendobj\n")
	doc, err := Parse(context.Background(), data, Config{})
	require.NoError(t, err)
	require.Equal(t, raw.Ref(1, 0), doc.Trailer.KV["Root"])
}

func TestParseRejectsNonPDF(t *testing.T) {
	_, err := Parse(context.Background(), []byte("hello world"), Config{})
	require.ErrorIs(t, err, ErrNotPDF)

	_, err = Parse(context.Background(), []byte("%PDF-1.7\n"), Config{})
	require.ErrorIs(t, err, ErrNoRoot)
}

func TestParseXRefAndObjectStreams(t *testing.T) {
	var b bytes.Buffer
	b.WriteString("%PDF-1.7\n")
	off1 := b.Len()
	b.WriteString("1 0 obj\n<</Type/Catalog/Pages 2 0 R>>\nendobj\n")
	objstm := "2 0 <</Type/Pages/Kids[]/Count 0>>"
	off3 := b.Len()
	fmt.Fprintf(&b, "3 0 obj\n<</Type/ObjStm/N 1/First 4/Length %d>>\nstream\n%s\nendstream\nendobj\n", len(objstm), objstm)
	off4 := b.Len()

	var rows []byte
	row := func(typ byte, f2 int, f3 byte) {
		rows = append(rows, typ, byte(f2>>24), byte(f2>>16), byte(f2>>8), byte(f2), f3)
	}
	row(0, 0, 0xFF)
	row(1, off1, 0)
	row(2, 3, 0)
	row(1, off3, 0)
	row(1, off4, 0)
	z, err := filters.Flate(rows, 6)
	require.NoError(t, err)
	fmt.Fprintf(&b, "4 0 obj\n<</Type/XRef/Size 5/W[1 4 1]/Root 1 0 R/Filter/FlateDecode/Length %d>>\nstream\n", len(z))
	b.Write(z)
	b.WriteString("\nendstream\nendobj\n")
	fmt.Fprintf(&b, "startxref\n%d\n%%%%EOF\n", off4)

	doc, err := Parse(context.Background(), b.Bytes(), Config{})
	require.NoError(t, err)
	require.Len(t, doc.Objects, 2)
	pages, ok := doc.Objects[raw.ObjectRef{Num: 2}].(*raw.DictObj)
	require.True(t, ok)
	count, _ := pages.Int("Count")
	require.Equal(t, int64(0), count)
	require.Equal(t, raw.Ref(1, 0), doc.Trailer.KV["Root"])
}

func TestParseIndirectLength(t *testing.T) {
	payload := "stream body mentioning endstream early"
	var b bytes.Buffer
	b.WriteString("%PDF-1.7\n")
	offs := []int{0}
	offs = append(offs, b.Len())
	b.WriteString("1 0 obj\n<</Type/Catalog/Pages 2 0 R/Extra 3 0 R>>\nendobj\n")
	offs = append(offs, b.Len())
	b.WriteString("2 0 obj\n<</Type/Pages/Kids[]/Count 0>>\nendobj\n")
	offs = append(offs, b.Len())
	fmt.Fprintf(&b, "3 0 obj\n<</Length 4 0 R>>\nstream\n%s\nendstream\nendobj\n", payload)
	offs = append(offs, b.Len())
	fmt.Fprintf(&b, "4 0 obj\n%d\nendobj\n", len(payload))
	xref := b.Len()
	b.WriteString("xref\n0 5\n0000000000 65535 f \n")
	for _, o := range offs[1:] {
		fmt.Fprintf(&b, "%010d 00000 n \n", o)
	}
	fmt.Fprintf(&b, "trailer\n<</Size 5/Root 1 0 R>>\nstartxref\n%d\n%%%%EOF\n", xref)

	doc, err := Parse(context.Background(), b.Bytes(), Config{})
	require.NoError(t, err)
	st, ok := doc.Objects[raw.ObjectRef{Num: 3}].(*raw.StreamObj)
	require.True(t, ok)
	require.Equal(t, payload, string(st.Data))
}

func TestParseDecryptsStandardSecurity(t *testing.T) {
	encDict, h, err := security.NewStandardEncryption(security.Config{
		UserPassword:  "user",
		OwnerPassword: "owner",
		Permissions:   security.PermPrint,
	})
	require.NoError(t, err)

	objects, trailer := onePageObjects()
	st := objects[raw.ObjectRef{Num: 4}].(*raw.StreamObj)
	st.Data, err = h.Encrypt(4, 0, st.Data, security.ClassStream)
	require.NoError(t, err)
	info := objects[raw.ObjectRef{Num: 5}].(*raw.DictObj)
	title, err := h.Encrypt(5, 0, []byte("Quarterly report"), security.ClassString)
	require.NoError(t, err)
	info.Set("Title", raw.Str(title))

	objects[raw.ObjectRef{Num: 6}] = encDict
	trailer.Set("Encrypt", raw.Ref(6, 0))
	trailer.Set("ID", raw.NewArray(raw.Hex([]byte("0123456789abcdef")), raw.Hex([]byte("0123456789abcdef"))))
	data, err := writer.WriteObjects("2.0", objects, trailer)
	require.NoError(t, err)
	require.NotContains(t, string(data), "Hello")

	_, err = Parse(context.Background(), data, Config{})
	require.ErrorIs(t, err, security.ErrPasswordRequired)
	_, err = Parse(context.Background(), data, Config{Password: "guess"})
	require.ErrorIs(t, err, security.ErrInvalidPassword)

	for _, pwd := range []string{"user", "owner"} {
		doc, err := Parse(context.Background(), data, Config{Password: pwd})
		require.NoError(t, err)
		require.True(t, doc.Encrypted)
		got := doc.Resolve(doc.Pages()[0].KV["Contents"]).(*raw.StreamObj)
		require.Equal(t, content, string(got.Data))
		infoDict, _ := doc.ResolveDict(doc.Trailer.KV["Info"])
		titleBytes, _ := infoDict.Bytes("Title")
		require.Equal(t, "Quarterly report", string(titleBytes))
		_, ok := doc.Trailer.Get("Encrypt")
		require.True(t, ok)
	}
}
