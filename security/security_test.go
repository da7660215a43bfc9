package security

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wudi/pdfcompose/ir/raw"
)

// counterReader yields 0, 1, 2, ... so generated keys are reproducible.
type counterReader struct{ n byte }

func (c *counterReader) Read(p []byte) (int, error) {
	for i := range p {
		p[i] = c.n
		c.n++
	}
	return len(p), nil
}

func TestPermissionP(t *testing.T) {
	require.Equal(t, int32(-4), PermAll.P())
	require.Equal(t, int32(-3900), PermPrint.P())
	require.Equal(t, PermPrint|PermCopy, PermissionsFromP((PermPrint | PermCopy).P()))
	require.True(t, PermAll.Has(PermAnnotate))
	require.False(t, PermPrint.Has(PermCopy))
}

func TestNewStandardEncryptionDictionary(t *testing.T) {
	dict, h, err := NewStandardEncryption(Config{
		UserPassword:  "user",
		OwnerPassword: "owner",
		Permissions:   PermPrint,
		Rand:          &counterReader{},
	})
	require.NoError(t, err)
	require.Equal(t, 6, h.Revision())

	filter, _ := dict.Name("Filter")
	require.Equal(t, "Standard", filter)
	v, _ := dict.Int("V")
	r, _ := dict.Int("R")
	length, _ := dict.Int("Length")
	p, _ := dict.Int("P")
	require.Equal(t, int64(5), v)
	require.Equal(t, int64(6), r)
	require.Equal(t, int64(256), length)
	require.Equal(t, int64(-3900), p)

	for key, size := range map[string]int{"O": 48, "U": 48, "OE": 32, "UE": 32, "Perms": 16} {
		b, ok := dict.Bytes(key)
		require.True(t, ok, key)
		require.Len(t, b, size, key)
	}
	cfObj, _ := dict.Get("CF")
	std, _ := cfObj.(*raw.DictObj).Get("StdCF")
	cfm, _ := std.(*raw.DictObj).Name("CFM")
	require.Equal(t, "AESV3", cfm)

	again, _, err := NewStandardEncryption(Config{
		UserPassword: "user", OwnerPassword: "owner", Permissions: PermPrint, Rand: &counterReader{},
	})
	require.NoError(t, err)
	require.Equal(t, raw.Hash(dict), raw.Hash(again))
}

func TestAES256Authentication(t *testing.T) {
	dict, writer, err := NewStandardEncryption(Config{
		UserPassword:    "user",
		OwnerPassword:   "owner",
		Permissions:     PermPrint | PermCopy,
		EncryptMetadata: true,
	})
	require.NoError(t, err)

	h, err := Open(dict, nil, []byte("user"))
	require.NoError(t, err)
	require.False(t, h.OwnerAuthenticated())
	require.Equal(t, writer.FileKey(), h.FileKey())
	require.Equal(t, PermPrint|PermCopy, h.Permissions())
	require.True(t, h.EncryptMetadata())

	h, err = Open(dict, nil, []byte("owner"))
	require.NoError(t, err)
	require.True(t, h.OwnerAuthenticated())
	require.Equal(t, writer.FileKey(), h.FileKey())

	_, err = Open(dict, nil, []byte("wrong"))
	require.ErrorIs(t, err, ErrInvalidPassword)
	_, err = Open(dict, nil, nil)
	require.ErrorIs(t, err, ErrPasswordRequired)
}

func TestEmptyUserPasswordOpensWithoutPrompt(t *testing.T) {
	dict, _, err := NewStandardEncryption(Config{OwnerPassword: "owner", Permissions: PermAll})
	require.NoError(t, err)
	h, err := Open(dict, nil, nil)
	require.NoError(t, err)
	require.False(t, h.OwnerAuthenticated())
}

func TestRandomOwnerPassword(t *testing.T) {
	dict, _, err := NewStandardEncryption(Config{UserPassword: "only-user"})
	require.NoError(t, err)
	o, _ := dict.Bytes("O")
	u, _ := dict.Bytes("U")
	require.False(t, bytes.Equal(o[:32], u[:32]))
	_, err = Open(dict, nil, []byte("only-user"))
	require.NoError(t, err)
}

func TestAES256RoundTrip(t *testing.T) {
	_, h, err := NewStandardEncryption(Config{UserPassword: "u", EncryptMetadata: false})
	require.NoError(t, err)

	plain := []byte("BT /F1 12 Tf (secret) Tj ET")
	enc, err := h.Encrypt(7, 0, plain, ClassStream)
	require.NoError(t, err)
	require.Len(t, enc, 16+32)
	require.NotContains(t, string(enc), "secret")
	dec, err := h.Decrypt(7, 0, enc, ClassStream)
	require.NoError(t, err)
	require.Equal(t, plain, dec)

	// block-aligned plaintext gains a full padding block
	enc, err = h.Encrypt(1, 0, make([]byte, 16), ClassString)
	require.NoError(t, err)
	require.Len(t, enc, 48)

	meta, err := h.Encrypt(9, 0, []byte("<x:xmpmeta/>"), ClassMetadata)
	require.NoError(t, err)
	require.Equal(t, "<x:xmpmeta/>", string(meta))

	_, err = h.Decrypt(1, 0, []byte("short"), ClassString)
	require.Error(t, err)
}

func TestHashR6Properties(t *testing.T) {
	salt := []byte("12345678")
	a := hashR6([]byte("pwd"), salt, nil)
	require.Len(t, a, 32)
	require.Equal(t, a, hashR6([]byte("pwd"), salt, nil))
	require.NotEqual(t, a, hashR6([]byte("pwd"), []byte("87654321"), nil))
	require.NotEqual(t, a, hashR6([]byte("pwd"), salt, make([]byte, 48)))
	require.NotEqual(t, a[:32], hashR5([]byte("pwd"), salt, nil))
}

func TestPreparePassword(t *testing.T) {
	require.Nil(t, preparePassword(""))
	require.Equal(t, []byte("secret"), preparePassword("secret"))
	require.Len(t, preparePassword(string(bytes.Repeat([]byte("a"), 200))), 127)
}

// legacyDict builds a revision 2-4 dictionary the way older writers do.
func legacyDict(t *testing.T, revision, keyLen int, user, owner string, fileID []byte) *raw.DictObj {
	t.Helper()
	okey := ownerKey([]byte(owner), revision, keyLen)
	o, err := rc4Crypt(okey, padPassword([]byte(user)))
	require.NoError(t, err)
	if revision >= 3 {
		o, err = rc4Rounds(okey, o, 1, 19)
		require.NoError(t, err)
	}
	p := (PermPrint | PermCopy).P()
	lp := legacyParams{o: o, p: p, fileID: fileID, revision: revision, keyLen: keyLen, encryptMetadata: true}
	if revision == 2 {
		lp.keyLen = 5
	}
	u, err := lp.userEntry(lp.fileKey([]byte(user)))
	require.NoError(t, err)

	d := raw.Dict()
	d.Set("Filter", raw.NameLiteral("Standard"))
	d.Set("O", raw.Str(o))
	d.Set("U", raw.Str(u))
	d.Set("P", raw.NumberInt(int64(p)))
	d.Set("R", raw.Int(revision))
	switch revision {
	case 2:
		d.Set("V", raw.Int(1))
	case 3:
		d.Set("V", raw.Int(2))
		d.Set("Length", raw.Int(keyLen*8))
	case 4:
		cf := raw.Dict()
		std := raw.Dict()
		std.Set("CFM", raw.NameLiteral("AESV2"))
		std.Set("Length", raw.Int(16))
		cf.Set("StdCF", std)
		d.Set("V", raw.Int(4))
		d.Set("CF", cf)
		d.Set("StmF", raw.NameLiteral("StdCF"))
		d.Set("StrF", raw.NameLiteral("StdCF"))
	}
	return d
}

func TestLegacyRevisions(t *testing.T) {
	fileID := []byte("0123456789abcdef")
	cases := []struct {
		name     string
		revision int
		keyLen   int
	}{
		{"RC4 40-bit", 2, 5},
		{"RC4 128-bit", 3, 16},
		{"AES-128", 4, 16},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			dict := legacyDict(t, tc.revision, tc.keyLen, "user", "owner", fileID)

			h, err := Open(dict, fileID, []byte("user"))
			require.NoError(t, err)
			require.False(t, h.OwnerAuthenticated())
			require.Equal(t, PermPrint|PermCopy, h.Permissions())

			ho, err := Open(dict, fileID, []byte("owner"))
			require.NoError(t, err)
			require.True(t, ho.OwnerAuthenticated())
			require.Equal(t, h.FileKey(), ho.FileKey())

			enc, err := h.Encrypt(4, 0, []byte("hello"), ClassString)
			require.NoError(t, err)
			dec, err := ho.Decrypt(4, 0, enc, ClassString)
			require.NoError(t, err)
			require.Equal(t, "hello", string(dec))

			_, err = Open(dict, fileID, []byte("nope"))
			require.True(t, errors.Is(err, ErrInvalidPassword))
		})
	}
}

func TestOpenRejectsUnknownHandlers(t *testing.T) {
	d := raw.Dict()
	d.Set("Filter", raw.NameLiteral("Adobe.PubSec"))
	_, err := Open(d, nil, nil)
	require.ErrorIs(t, err, ErrUnsupported)

	_, err = Open(nil, nil, nil)
	require.ErrorIs(t, err, ErrUnsupported)

	d = raw.Dict()
	d.Set("Filter", raw.NameLiteral("Standard"))
	d.Set("V", raw.Int(7))
	_, err = Open(d, nil, nil)
	require.ErrorIs(t, err, ErrUnsupported)
}

func TestObjectKeyLength(t *testing.T) {
	require.Len(t, objectKey(make([]byte, 5), 1, 0, false), 10)
	require.Len(t, objectKey(make([]byte, 16), 1, 0, true), 16)
	require.NotEqual(t, objectKey(make([]byte, 16), 1, 0, false), objectKey(make([]byte, 16), 2, 0, false))
}
