package security

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/binary"
	"fmt"
	"hash"
	"io"

	"golang.org/x/text/secure/precis"

	"github.com/wudi/pdfcompose/ir/raw"
)

const maxPasswordLen = 127

// Config describes a new AES-256 Standard security handler.
type Config struct {
	UserPassword  string
	OwnerPassword string
	Permissions   Permission
	// EncryptMetadata controls whether the XMP stream is encrypted.
	EncryptMetadata bool
	// Rand supplies salts, the file key and IVs. Defaults to crypto/rand.
	Rand io.Reader
}

// NewStandardEncryption creates a V5/R6 encryption dictionary with a fresh
// random file key and returns it with the handler that encrypts under it.
// An empty owner password is replaced by random bytes.
func NewStandardEncryption(cfg Config) (*raw.DictObj, *Handler, error) {
	rnd := cfg.Rand
	if rnd == nil {
		rnd = rand.Reader
	}
	user := preparePassword(cfg.UserPassword)
	owner := preparePassword(cfg.OwnerPassword)
	if len(owner) == 0 {
		owner = make([]byte, 32)
		if _, err := io.ReadFull(rnd, owner); err != nil {
			return nil, nil, fmt.Errorf("security: owner password: %w", err)
		}
	}

	// file key, then the four salts, then the Perms padding
	random := make([]byte, 32+8*4+4)
	if _, err := io.ReadFull(rnd, random); err != nil {
		return nil, nil, fmt.Errorf("security: random: %w", err)
	}
	fileKey := random[:32]
	uvs, uks := random[32:40], random[40:48]
	ovs, oks := random[48:56], random[56:64]

	u := append(append(hashR6(user, uvs, nil), uvs...), uks...)
	ue, err := aesCBCZeroIV(hashR6(user, uks, nil), fileKey, true)
	if err != nil {
		return nil, nil, err
	}
	o := append(append(hashR6(owner, ovs, u), ovs...), oks...)
	oe, err := aesCBCZeroIV(hashR6(owner, oks, u), fileKey, true)
	if err != nil {
		return nil, nil, err
	}
	p := cfg.Permissions.P()
	perms, err := permsEntry(fileKey, p, cfg.EncryptMetadata, random[64:68])
	if err != nil {
		return nil, nil, err
	}

	stdCF := raw.Dict()
	stdCF.Set("AuthEvent", raw.NameLiteral("DocOpen"))
	stdCF.Set("CFM", raw.NameLiteral(string(methodAES256)))
	stdCF.Set("Length", raw.Int(32))
	cf := raw.Dict()
	cf.Set("StdCF", stdCF)

	dict := raw.Dict()
	dict.Set("Filter", raw.NameLiteral("Standard"))
	dict.Set("V", raw.Int(5))
	dict.Set("R", raw.Int(6))
	dict.Set("Length", raw.Int(256))
	dict.Set("CF", cf)
	dict.Set("StmF", raw.NameLiteral("StdCF"))
	dict.Set("StrF", raw.NameLiteral("StdCF"))
	dict.Set("O", raw.Hex(o))
	dict.Set("U", raw.Hex(u))
	dict.Set("OE", raw.Hex(oe))
	dict.Set("UE", raw.Hex(ue))
	dict.Set("P", raw.NumberInt(int64(p)))
	dict.Set("Perms", raw.Hex(perms))
	dict.Set("EncryptMetadata", raw.Bool(cfg.EncryptMetadata))

	h := &Handler{
		revision:        6,
		key:             append([]byte(nil), fileKey...),
		stream:          methodAES256,
		str:             methodAES256,
		encryptMetadata: cfg.EncryptMetadata,
		perms:           cfg.Permissions & PermAll,
		owner:           true,
		rand:            rnd,
	}
	return dict, h, nil
}

// preparePassword normalises a password to UTF-8 with the OpaqueString
// profile and truncates it to 127 bytes.
func preparePassword(pwd string) []byte {
	if pwd == "" {
		return nil
	}
	out, err := precis.OpaqueString.Bytes([]byte(pwd))
	if err != nil {
		out = []byte(pwd)
	}
	if len(out) > maxPasswordLen {
		out = out[:maxPasswordLen]
	}
	return out
}

// hashR6 is the revision 6 password hash (ISO 32000-2 Algorithm 2.B).
// udata is the 48-byte /U entry for owner checks and nil otherwise.
func hashR6(pwd, salt, udata []byte) []byte {
	d := sha256.New()
	d.Write(pwd)
	d.Write(salt)
	d.Write(udata)
	k := d.Sum(nil)

	seq := make([]byte, 0, len(pwd)+64+len(udata))
	for round := 0; ; round++ {
		seq = append(append(append(seq[:0], pwd...), k...), udata...)
		k1 := bytes.Repeat(seq, 64)

		block, _ := aes.NewCipher(k[:16])
		e := make([]byte, len(k1))
		cipher.NewCBCEncrypter(block, k[16:32]).CryptBlocks(e, k1)

		// 256 = 1 mod 3, so the byte sum has the same remainder as the
		// 128-bit big-endian number.
		sum := 0
		for _, b := range e[:16] {
			sum += int(b)
		}
		var next hash.Hash
		switch sum % 3 {
		case 0:
			next = sha256.New()
		case 1:
			next = sha512.New384()
		default:
			next = sha512.New()
		}
		next.Write(e)
		k = next.Sum(nil)

		if round >= 63 && int(e[len(e)-1]) <= round-31 {
			break
		}
	}
	return k[:32]
}

// hashR5 is the plain SHA-256 hash of the deprecated revision 5.
func hashR5(pwd, salt, udata []byte) []byte {
	d := sha256.New()
	d.Write(pwd)
	d.Write(salt)
	d.Write(udata)
	return d.Sum(nil)
}

func permsEntry(fileKey []byte, p int32, encryptMetadata bool, tail []byte) ([]byte, error) {
	plain := make([]byte, 16)
	binary.LittleEndian.PutUint32(plain[:4], uint32(p))
	copy(plain[4:8], []byte{0xFF, 0xFF, 0xFF, 0xFF})
	plain[8] = 'F'
	if encryptMetadata {
		plain[8] = 'T'
	}
	copy(plain[9:12], "adb")
	copy(plain[12:], tail)
	block, err := aes.NewCipher(fileKey)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 16)
	block.Encrypt(out, plain)
	return out, nil
}

// authenticateAES256 implements Algorithms 11, 12 and 13.
func (h *Handler) authenticateAES256(encrypt *raw.DictObj, password []byte) error {
	o, _ := encrypt.Bytes("O")
	u, _ := encrypt.Bytes("U")
	oe, _ := encrypt.Bytes("OE")
	ue, _ := encrypt.Bytes("UE")
	if len(o) < 48 || len(u) < 48 || len(oe) != 32 || len(ue) != 32 {
		return fmt.Errorf("%w: malformed revision %d entries", ErrUnsupported, h.revision)
	}
	o, u = o[:48], u[:48]
	h.stream, h.str = promoteAES(h.stream), promoteAES(h.str)

	hashFn := hashR6
	if h.revision == 5 {
		hashFn = hashR5
	}
	pwd := preparePassword(string(password))

	var key []byte
	var err error
	switch {
	case bytes.Equal(hashFn(pwd, o[32:40], u), o[:32]):
		key, err = aesCBCZeroIV(hashFn(pwd, o[40:48], u), oe, false)
		h.owner = true
	case bytes.Equal(hashFn(pwd, u[32:40], nil), u[:32]):
		key, err = aesCBCZeroIV(hashFn(pwd, u[40:48], nil), ue, false)
	default:
		return ErrInvalidPassword
	}
	if err != nil {
		return err
	}
	h.key = key

	if perms, ok := encrypt.Bytes("Perms"); ok && len(perms) == 16 {
		block, err := aes.NewCipher(key)
		if err != nil {
			return err
		}
		plain := make([]byte, 16)
		block.Decrypt(plain, perms)
		if string(plain[9:12]) == "adb" {
			h.perms = PermissionsFromP(int32(binary.LittleEndian.Uint32(plain[:4])))
			h.encryptMetadata = plain[8] == 'T'
		}
	}
	return nil
}

// promoteAES maps a crypt method to the 256-bit variant used by V5.
func promoteAES(m cryptMethod) cryptMethod {
	if m == methodAES128 {
		return methodAES256
	}
	return m
}
