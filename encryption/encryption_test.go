package encryption

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wudi/pdfcompose/builder"
	"github.com/wudi/pdfcompose/ir/raw"
	"github.com/wudi/pdfcompose/ir/semantic"
	"github.com/wudi/pdfcompose/parser"
	"github.com/wudi/pdfcompose/security"
	"github.com/wudi/pdfcompose/writer"
)

const body = "Hello encrypted world"

func sample(t *testing.T, version semantic.Version, xmp bool) []byte {
	t.Helper()
	b := builder.New(semantic.NewDocument(version))
	_, err := b.AddTitle("Secret report")
	require.NoError(t, err)
	_, err = b.Append(body, builder.Style{})
	require.NoError(t, err)
	data, err := writer.Serialize(b.Document(), writer.Config{XMP: xmp})
	require.NoError(t, err)
	return data
}

func pageText(t *testing.T, doc *raw.Document) string {
	t.Helper()
	pages := doc.Pages()
	require.NotEmpty(t, pages)
	var out bytes.Buffer
	var streams []raw.Object
	switch c := doc.Resolve(pages[0].KV["Contents"]).(type) {
	case *raw.StreamObj:
		streams = append(streams, c)
	case *raw.ArrayObj:
		for _, it := range c.Items {
			streams = append(streams, doc.Resolve(it))
		}
	}
	for _, s := range streams {
		out.Write(s.(*raw.StreamObj).Data)
	}
	return out.String()
}

type counterReader struct{ n byte }

func (c *counterReader) Read(p []byte) (int, error) {
	for i := range p {
		p[i] = c.n
		c.n++
	}
	return len(p), nil
}

func TestApplyUserAndOwnerPasswords(t *testing.T) {
	plain := sample(t, semantic.DefaultVersion, false)
	require.Contains(t, string(plain), body)

	enc, err := Apply(context.Background(), plain, Options{
		UserPassword:  "user",
		OwnerPassword: "owner",
		Permissions:   security.PermPrint,
	})
	require.NoError(t, err)
	require.NotContains(t, string(enc), body)
	require.True(t, bytes.HasPrefix(enc, []byte("%PDF-2.0")))

	_, err = parser.Parse(context.Background(), enc, parser.Config{})
	require.ErrorIs(t, err, security.ErrPasswordRequired)
	_, err = parser.Parse(context.Background(), enc, parser.Config{Password: "wrong"})
	require.ErrorIs(t, err, security.ErrInvalidPassword)

	for _, pwd := range []string{"user", "owner"} {
		doc, err := parser.Parse(context.Background(), enc, parser.Config{Password: pwd})
		require.NoError(t, err, pwd)
		require.True(t, doc.Encrypted)
		require.Contains(t, pageText(t, doc), body)

		info, ok := doc.ResolveDict(doc.Trailer.KV["Info"])
		require.True(t, ok)
		title, _ := info.Bytes("Title")
		require.Equal(t, "Secret report", string(title))

		encDict, ok := doc.ResolveDict(doc.Trailer.KV["Encrypt"])
		require.True(t, ok)
		p, _ := encDict.Int("P")
		require.Equal(t, int64(security.PermPrint.P()), p)
	}
}

func TestApplyUserPasswordOnly(t *testing.T) {
	enc, err := Apply(context.Background(), sample(t, semantic.DefaultVersion, false), Options{UserPassword: "user"})
	require.NoError(t, err)

	doc, err := parser.Parse(context.Background(), enc, parser.Config{Password: "user"})
	require.NoError(t, err)
	encDict, _ := doc.ResolveDict(doc.Trailer.KV["Encrypt"])
	for _, key := range []string{"O", "OE", "U", "UE", "Perms"} {
		_, ok := encDict.Bytes(key)
		require.True(t, ok, key)
	}
	_, err = parser.Parse(context.Background(), enc, parser.Config{Password: ""})
	require.ErrorIs(t, err, security.ErrPasswordRequired)
}

func TestApplyRejectsEncryptedInput(t *testing.T) {
	plain := sample(t, semantic.DefaultVersion, false)
	withUser, err := Apply(context.Background(), plain, Options{UserPassword: "user"})
	require.NoError(t, err)
	_, err = Apply(context.Background(), withUser, Options{UserPassword: "again"})
	require.ErrorIs(t, err, ErrAlreadyEncrypted)

	ownerOnly, err := Apply(context.Background(), plain, Options{OwnerPassword: "owner"})
	require.NoError(t, err)
	_, err = Apply(context.Background(), ownerOnly, Options{UserPassword: "again"})
	require.ErrorIs(t, err, ErrAlreadyEncrypted)
}

func TestApplyKeepsFileID(t *testing.T) {
	plain := sample(t, semantic.DefaultVersion, false)
	before, err := parser.Parse(context.Background(), plain, parser.Config{})
	require.NoError(t, err)

	enc, err := Apply(context.Background(), plain, Options{UserPassword: "u"})
	require.NoError(t, err)
	after, err := parser.Parse(context.Background(), enc, parser.Config{Password: "u"})
	require.NoError(t, err)
	require.Equal(t, raw.Hash(before.Trailer.KV["ID"]), raw.Hash(after.Trailer.KV["ID"]))
}

func TestApplyPlainMetadata(t *testing.T) {
	plain := sample(t, semantic.DefaultVersion, true)

	enc, err := Apply(context.Background(), plain, Options{UserPassword: "u", PlainMetadata: true})
	require.NoError(t, err)
	require.Contains(t, string(enc), "x:xmpmeta")
	require.NotContains(t, string(enc), body)

	doc, err := parser.Parse(context.Background(), enc, parser.Config{Password: "u"})
	require.NoError(t, err)
	require.Contains(t, pageText(t, doc), body)

	enc, err = Apply(context.Background(), plain, Options{UserPassword: "u"})
	require.NoError(t, err)
	require.NotContains(t, string(enc), "x:xmpmeta")
}

func TestApplyDeclaresExtensionForOlderVersions(t *testing.T) {
	enc, err := Apply(context.Background(), sample(t, semantic.Version17, false), Options{UserPassword: "u"})
	require.NoError(t, err)
	require.True(t, bytes.HasPrefix(enc, []byte("%PDF-1.7")))

	doc, err := parser.Parse(context.Background(), enc, parser.Config{Password: "u"})
	require.NoError(t, err)
	catalog, _ := doc.ResolveDict(doc.Trailer.KV["Root"])
	ext, ok := catalog.KV["Extensions"].(*raw.DictObj)
	require.True(t, ok)
	adbe, _ := ext.KV["ADBE"].(*raw.DictObj)
	level, _ := adbe.Int("ExtensionLevel")
	require.Equal(t, int64(8), level)
}

func TestApplyDeterministicWithFixedRandom(t *testing.T) {
	plain := sample(t, semantic.DefaultVersion, false)
	a, err := Apply(context.Background(), plain, Options{UserPassword: "u", OwnerPassword: "o", Rand: &counterReader{}})
	require.NoError(t, err)
	b, err := Apply(context.Background(), plain, Options{UserPassword: "u", OwnerPassword: "o", Rand: &counterReader{}})
	require.NoError(t, err)
	require.Equal(t, a, b)
}

func TestApplyRejectsGarbage(t *testing.T) {
	_, err := Apply(context.Background(), []byte("not a pdf"), Options{UserPassword: "u"})
	require.ErrorIs(t, err, parser.ErrNotPDF)
}
