package document

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wudi/pdfcompose/barcode"
	"github.com/wudi/pdfcompose/builder"
	"github.com/wudi/pdfcompose/extractor"
	"github.com/wudi/pdfcompose/ir/semantic"
	"github.com/wudi/pdfcompose/parser"
	"github.com/wudi/pdfcompose/security"
	"github.com/wudi/pdfcompose/writer"
)

const body = "Quarterly numbers are in."

func open(t *testing.T, path, password string) *extractor.Extractor {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	doc, err := parser.Parse(context.Background(), data, parser.Config{Password: password})
	require.NoError(t, err)
	ex, err := extractor.New(doc)
	require.NoError(t, err)
	return ex
}

func allText(t *testing.T, ex *extractor.Extractor) string {
	t.Helper()
	pages, err := ex.ExtractText(context.Background())
	require.NoError(t, err)
	var parts []string
	for _, p := range pages {
		parts = append(parts, p.Content)
	}
	return strings.Join(parts, "\n")
}

func writeSample(t *testing.T, path string, opts ...Option) {
	t.Helper()
	err := With(path, semantic.DefaultVersion, func(s *Session) error {
		if _, err := s.Builder().AddTitle("Report"); err != nil {
			return err
		}
		_, err := s.Builder().Append(body, builder.Style{})
		return err
	}, opts...)
	require.NoError(t, err)
}

func TestCloseWritesOnce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "once.pdf")
	s, err := Create(path, semantic.Version17)
	require.NoError(t, err)
	_, err = s.Builder().AddTitle("Report")
	require.NoError(t, err)

	require.NoError(t, s.Close())
	info, err := os.Stat(path)
	require.NoError(t, err)
	require.Positive(t, info.Size())

	require.ErrorIs(t, s.Close(), semantic.ErrAlreadyClosed)
	again, err := os.Stat(path)
	require.NoError(t, err)
	require.Equal(t, info.Size(), again.Size())

	_, err = s.Builder().Append("late", builder.Style{})
	require.ErrorIs(t, err, semantic.ErrDocumentClosed)

	s.Release()
	_, err = os.Stat(path)
	require.NoError(t, err, "release after close must keep the file")

	md := open(t, path, "").ExtractMetadata(context.Background())
	require.Equal(t, "1.7", md.Version)
	require.Equal(t, "Report", md.Title)
	require.Equal(t, writer.DefaultProducer, md.Producer)
}

func TestCreateUnwritablePath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing", "out.pdf")
	_, err := Create(path, semantic.DefaultVersion)
	var ioErr *IOError
	require.True(t, errors.As(err, &ioErr))
	require.Equal(t, "create", ioErr.Op)
	require.Equal(t, path, ioErr.Path)
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestReleaseRemovesPartialFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "partial.pdf")
	s, err := Create(path, semantic.DefaultVersion)
	require.NoError(t, err)
	_, err = os.Stat(path)
	require.NoError(t, err)

	s.Release()
	_, err = os.Stat(path)
	require.ErrorIs(t, err, os.ErrNotExist)
	require.Equal(t, semantic.StatePoisoned, s.Document().State())
}

func TestWithRemovesFileOnError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "failed.pdf")
	boom := errors.New("boom")
	err := With(path, semantic.DefaultVersion, func(s *Session) error {
		if _, err := s.Builder().AddTitle("never written"); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)
	_, err = os.Stat(path)
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestPasswordRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "secret.pdf")
	writeSample(t, path, WithPassword("user", "owner", security.PermPrint))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NotContains(t, string(data), body)

	_, err = parser.Parse(context.Background(), data, parser.Config{})
	require.ErrorIs(t, err, security.ErrPasswordRequired)
	_, err = parser.Parse(context.Background(), data, parser.Config{Password: "wrong"})
	require.ErrorIs(t, err, security.ErrInvalidPassword)

	for _, pw := range []string{"user", "owner"} {
		ex := open(t, path, pw)
		require.Contains(t, allText(t, ex), body)
		md := ex.ExtractMetadata(context.Background())
		require.True(t, md.Encrypted)
		require.Equal(t, "Report", md.Title)
	}
}

func TestSourceIsReencrypted(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "hello-source.pdf")
	writeSample(t, src)

	dst := filepath.Join(dir, "hello-encrypted.pdf")
	s, err := Create(dst, semantic.DefaultVersion,
		WithSource(src, ""),
		WithPassword("aha", "", security.PermPrint))
	require.NoError(t, err)
	doc := s.Document()
	require.Len(t, doc.Pages, 1)
	require.Equal(t, semantic.A4, doc.Pages[0].MediaBox)
	imported, ok := doc.Pages[0].Elements[0].(*semantic.ImportedPage)
	require.True(t, ok)
	require.Equal(t, 0, imported.Source)

	_, err = s.Builder().AddParagraph(doc.Pages[0], "Stamped copy", builder.Style{
		Position: &builder.Position{X: 72, Y: 72},
	})
	require.NoError(t, err)
	require.NoError(t, s.Close())

	_, err = parser.Parse(context.Background(), mustRead(t, dst), parser.Config{})
	require.ErrorIs(t, err, security.ErrPasswordRequired)

	ex := open(t, dst, "aha")
	text := allText(t, ex)
	require.Contains(t, text, body)
	require.Contains(t, text, "Stamped copy")
	require.Equal(t, 1, ex.ExtractMetadata(context.Background()).PageCount)
}

func TestSourceFlowedContentStartsNewPage(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.pdf")
	writeSample(t, src)

	dst := filepath.Join(dir, "dst.pdf")
	err := With(dst, semantic.DefaultVersion, func(s *Session) error {
		_, err := s.Builder().Append("Appendix", builder.Style{})
		return err
	}, WithSource(src, ""))
	require.NoError(t, err)

	pages, err := open(t, dst, "").ExtractText(context.Background())
	require.NoError(t, err)
	require.Len(t, pages, 2)
	require.Contains(t, pages[0].Content, body)
	require.Equal(t, "Appendix", pages[1].Content)
}

func TestSourceMissing(t *testing.T) {
	dir := t.TempDir()
	dst := filepath.Join(dir, "dst.pdf")
	_, err := Create(dst, semantic.DefaultVersion, WithSource(filepath.Join(dir, "nope.pdf"), ""))
	var ioErr *IOError
	require.True(t, errors.As(err, &ioErr))
	require.Equal(t, "open", ioErr.Op)
	_, err = os.Stat(dst)
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestSourceReencryptedInPlace(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.pdf")
	writeSample(t, path)

	err := With(path, semantic.DefaultVersion, func(*Session) error { return nil },
		WithSource(path, ""),
		WithPassword("aha", "", security.PermPrint))
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	_, err = parser.Parse(context.Background(), data, parser.Config{})
	require.ErrorIs(t, err, security.ErrPasswordRequired)
	require.Contains(t, allText(t, open(t, path, "aha")), body)
}

func TestFailedSourceLeavesTargetAlone(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "keep.pdf")
	require.NoError(t, os.WriteFile(path, []byte("previous"), 0o644))

	_, err := Create(path, semantic.DefaultVersion, WithSource(filepath.Join(dir, "nope.pdf"), ""))
	require.Error(t, err)
	require.Equal(t, "previous", string(mustRead(t, path)))

	empty := filepath.Join(dir, "empty.pdf")
	require.NoError(t, os.WriteFile(empty, nil, 0o644))
	_, err = Create(path, semantic.DefaultVersion, WithSource(empty, ""))
	require.ErrorIs(t, err, parser.ErrNotPDF)
	require.Equal(t, "previous", string(mustRead(t, path)))
}

func TestReleaseKeepsUntouchedTarget(t *testing.T) {
	path := filepath.Join(t.TempDir(), "existing.pdf")
	require.NoError(t, os.WriteFile(path, []byte("previous"), 0o644))

	s, err := Create(path, semantic.DefaultVersion)
	require.NoError(t, err)
	s.Release()
	require.Equal(t, "previous", string(mustRead(t, path)))
}

func TestCloseReplacesLongerTarget(t *testing.T) {
	path := filepath.Join(t.TempDir(), "big.pdf")
	require.NoError(t, os.WriteFile(path, bytes.Repeat([]byte("x"), 1<<20), 0o644))

	writeSample(t, path)
	data := mustRead(t, path)
	require.Less(t, len(data), 1<<20)
	require.Contains(t, allText(t, open(t, path, "")), body)
}

func TestSourceNeedsPassword(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "locked.pdf")
	writeSample(t, src, WithPassword("pw", "", security.PermPrint))

	_, err := Create(filepath.Join(dir, "a.pdf"), semantic.DefaultVersion, WithSource(src, ""))
	require.ErrorIs(t, err, security.ErrPasswordRequired)

	err = With(filepath.Join(dir, "b.pdf"), semantic.DefaultVersion, func(*Session) error { return nil },
		WithSource(src, "pw"))
	require.NoError(t, err)
	require.Contains(t, allText(t, open(t, filepath.Join(dir, "b.pdf"), "")), body)
}

func TestLayoutThroughSession(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notes.pdf")
	err := With(path, semantic.DefaultVersion, func(s *Session) error {
		return s.Layout().RenderMarkdown("# Notes\n\nFirst point.\n\n## Detail\n\nMore.\n")
	}, WithoutXMP(), WithCompression(0))
	require.NoError(t, err)

	ex := open(t, path, "")
	md := ex.ExtractMetadata(context.Background())
	require.Equal(t, "Notes", md.Title)
	require.Empty(t, md.XMP)
	marks := ex.ExtractBookmarks()
	require.Len(t, marks, 1)
	require.Equal(t, "Detail", marks[0].Children[0].Title)
}

func TestBarcodeErrorLeavesDocumentUntouched(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ean.pdf")
	s, err := Create(path, semantic.DefaultVersion)
	require.NoError(t, err)
	defer s.Release()

	_, err = s.Builder().AddBarcode(nil, barcode.EAN, "12A456")
	require.ErrorIs(t, err, barcode.ErrInvalidPayload)
	require.Empty(t, s.Document().Pages)
	require.Zero(t, s.Document().Resources.Len())
}

func mustRead(t *testing.T, path string) []byte {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return data
}
