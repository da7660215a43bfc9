package security

import (
	"bytes"
	"crypto/md5"
	"encoding/binary"
	"fmt"

	"github.com/wudi/pdfcompose/ir/raw"
)

var passwordPadding = []byte{
	0x28, 0xBF, 0x4E, 0x5E, 0x4E, 0x75, 0x8A, 0x41,
	0x64, 0x00, 0x4E, 0x56, 0xFF, 0xFA, 0x01, 0x08,
	0x2E, 0x2E, 0x00, 0xB6, 0xD0, 0x68, 0x3E, 0x80,
	0x2F, 0x0C, 0xA9, 0xFE, 0x64, 0x53, 0x69, 0x7A,
}

func padPassword(pwd []byte) []byte {
	padded := make([]byte, 32)
	n := copy(padded, pwd)
	copy(padded[n:], passwordPadding)
	return padded
}

// legacyParams are the /Encrypt entries consulted by revisions 2 to 4.
type legacyParams struct {
	o, u            []byte
	p               int32
	fileID          []byte
	revision        int
	keyLen          int
	encryptMetadata bool
}

func (h *Handler) authenticateLegacy(encrypt *raw.DictObj, fileID, password []byte, keyLen int) error {
	o, okO := encrypt.Bytes("O")
	u, okU := encrypt.Bytes("U")
	if !okO || !okU || len(o) < 32 || len(u) < 32 {
		return fmt.Errorf("%w: malformed O or U entry", ErrUnsupported)
	}
	p, _ := encrypt.Int("P")
	lp := legacyParams{
		o: o[:32], u: u[:32], p: int32(p), fileID: fileID,
		revision: h.revision, keyLen: keyLen, encryptMetadata: h.encryptMetadata,
	}
	if lp.revision == 2 {
		lp.keyLen = 5
	}

	if key, ok := lp.checkUser(password); ok {
		h.key = key
		return nil
	}
	user, err := lp.recoverUserPassword(password)
	if err != nil {
		return err
	}
	if key, ok := lp.checkUser(user); ok {
		h.key = key
		h.owner = true
		return nil
	}
	return ErrInvalidPassword
}

// fileKey implements Algorithm 2.
func (lp legacyParams) fileKey(password []byte) []byte {
	d := md5.New()
	d.Write(padPassword(password))
	d.Write(lp.o)
	var pb [4]byte
	binary.LittleEndian.PutUint32(pb[:], uint32(lp.p))
	d.Write(pb[:])
	d.Write(lp.fileID)
	if lp.revision >= 4 && !lp.encryptMetadata {
		d.Write([]byte{0xFF, 0xFF, 0xFF, 0xFF})
	}
	key := d.Sum(nil)
	if lp.revision >= 3 {
		for i := 0; i < 50; i++ {
			sum := md5.Sum(key[:lp.keyLen])
			key = sum[:]
		}
	}
	return key[:lp.keyLen]
}

// userEntry computes /U for a file key (Algorithms 4 and 5).
func (lp legacyParams) userEntry(key []byte) ([]byte, error) {
	if lp.revision == 2 {
		return rc4Crypt(key, passwordPadding)
	}
	d := md5.New()
	d.Write(passwordPadding)
	d.Write(lp.fileID)
	out, err := rc4Crypt(key, d.Sum(nil))
	if err != nil {
		return nil, err
	}
	if out, err = rc4Rounds(key, out, 1, 19); err != nil {
		return nil, err
	}
	return append(out, make([]byte, 16)...), nil
}

// checkUser implements Algorithm 6.
func (lp legacyParams) checkUser(password []byte) ([]byte, bool) {
	key := lp.fileKey(password)
	u, err := lp.userEntry(key)
	if err != nil {
		return nil, false
	}
	if lp.revision == 2 {
		return key, bytes.Equal(u, lp.u)
	}
	return key, bytes.Equal(u[:16], lp.u[:16])
}

// ownerKey is the RC4 key protecting /O (Algorithm 3, steps a to d).
func ownerKey(owner []byte, revision, keyLen int) []byte {
	sum := md5.Sum(padPassword(owner))
	key := sum[:]
	if revision >= 3 {
		for i := 0; i < 50; i++ {
			sum = md5.Sum(key)
			key = sum[:]
		}
	} else {
		keyLen = 5
	}
	return key[:keyLen]
}

// recoverUserPassword decrypts /O with an owner password candidate (Algorithm 7).
func (lp legacyParams) recoverUserPassword(owner []byte) ([]byte, error) {
	key := ownerKey(owner, lp.revision, lp.keyLen)
	if lp.revision == 2 {
		return rc4Crypt(key, lp.o)
	}
	data := append([]byte(nil), lp.o...)
	for i := 19; i >= 0; i-- {
		var err error
		if data, err = rc4Crypt(xorKey(key, byte(i)), data); err != nil {
			return nil, err
		}
	}
	return data, nil
}

func rc4Rounds(key, data []byte, from, to int) ([]byte, error) {
	for i := from; i <= to; i++ {
		var err error
		if data, err = rc4Crypt(xorKey(key, byte(i)), data); err != nil {
			return nil, err
		}
	}
	return data, nil
}

func xorKey(key []byte, v byte) []byte {
	out := make([]byte, len(key))
	for i, b := range key {
		out[i] = b ^ v
	}
	return out
}
