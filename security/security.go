// Package security implements the PDF Standard security handler: password
// authentication and per-object string and stream encryption. New documents
// are protected with AES-256 (V5, R6); RC4 and AES-128 (R2 to R4) are
// supported for reading.
package security

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"

	"github.com/wudi/pdfcompose/ir/raw"
)

var (
	// ErrInvalidPassword is returned when a supplied password matches neither
	// the user nor the owner entry.
	ErrInvalidPassword = errors.New("security: invalid password")
	// ErrPasswordRequired is returned when the empty user password does not open a document.
	ErrPasswordRequired = errors.New("security: password required")
	// ErrUnsupported is returned for security handlers or revisions this package cannot process.
	ErrUnsupported = errors.New("security: unsupported encryption")
)

// DataClass identifies what kind of payload is being encrypted.
type DataClass int

const (
	ClassString DataClass = iota
	ClassStream
	// ClassMetadata is the document XMP stream, left clear when EncryptMetadata is false.
	ClassMetadata
)

// Permission is the set of operations granted to a user-password holder.
// Bit positions follow the /P entry.
type Permission uint32

const (
	PermPrint            Permission = 1 << 2
	PermModify           Permission = 1 << 3
	PermCopy             Permission = 1 << 4
	PermAnnotate         Permission = 1 << 5
	PermFillForms        Permission = 1 << 8
	PermExtract          Permission = 1 << 9
	PermAssemble         Permission = 1 << 10
	PermPrintHighQuality Permission = 1 << 11

	PermAll = PermPrint | PermModify | PermCopy | PermAnnotate |
		PermFillForms | PermExtract | PermAssemble | PermPrintHighQuality
)

// reserved bits 7, 8 and 13-32 must be set in /P.
const reservedP = 0xFFFFF0C0

// P returns the signed /P value for the permission set.
func (p Permission) P() int32 {
	return int32(uint32(p&PermAll) | reservedP)
}

// PermissionsFromP extracts the permission bits of a /P value.
func PermissionsFromP(p int32) Permission {
	return Permission(uint32(p)) & PermAll
}

// Has reports whether all bits of q are granted.
func (p Permission) Has(q Permission) bool { return p&q == q }

type cryptMethod string

const (
	methodIdentity cryptMethod = "Identity"
	methodRC4      cryptMethod = "V2"
	methodAES128   cryptMethod = "AESV2"
	methodAES256   cryptMethod = "AESV3"
)

// Handler encrypts and decrypts object data once a password has been accepted.
type Handler struct {
	revision        int
	key             []byte
	stream, str     cryptMethod
	encryptMetadata bool
	perms           Permission
	owner           bool
	rand            io.Reader
}

// Revision returns the /R value of the handler.
func (h *Handler) Revision() int { return h.revision }

// Permissions returns the permissions recorded in the encryption dictionary.
func (h *Handler) Permissions() Permission { return h.perms }

// EncryptMetadata reports whether the XMP metadata stream is encrypted.
func (h *Handler) EncryptMetadata() bool { return h.encryptMetadata }

// OwnerAuthenticated reports whether the owner password opened the document.
func (h *Handler) OwnerAuthenticated() bool { return h.owner }

// FileKey returns a copy of the file encryption key.
func (h *Handler) FileKey() []byte { return append([]byte(nil), h.key...) }

func (h *Handler) method(class DataClass) (cryptMethod, bool) {
	switch class {
	case ClassString:
		return h.str, true
	case ClassMetadata:
		if !h.encryptMetadata {
			return methodIdentity, true
		}
		return h.stream, true
	case ClassStream:
		return h.stream, true
	}
	return "", false
}

// Encrypt encrypts data belonging to object num/gen.
func (h *Handler) Encrypt(num, gen int, data []byte, class DataClass) ([]byte, error) {
	m, ok := h.method(class)
	if !ok {
		return nil, fmt.Errorf("security: unknown data class %d", class)
	}
	switch m {
	case methodIdentity:
		return data, nil
	case methodRC4:
		return rc4Crypt(objectKey(h.key, num, gen, false), data)
	case methodAES128:
		return aesEncrypt(objectKey(h.key, num, gen, true), data, h.rand)
	case methodAES256:
		return aesEncrypt(h.key, data, h.rand)
	}
	return nil, fmt.Errorf("%w: crypt method %s", ErrUnsupported, m)
}

// Decrypt reverses Encrypt.
func (h *Handler) Decrypt(num, gen int, data []byte, class DataClass) ([]byte, error) {
	m, ok := h.method(class)
	if !ok {
		return nil, fmt.Errorf("security: unknown data class %d", class)
	}
	switch m {
	case methodIdentity:
		return data, nil
	case methodRC4:
		return rc4Crypt(objectKey(h.key, num, gen, false), data)
	case methodAES128:
		return aesDecrypt(objectKey(h.key, num, gen, true), data)
	case methodAES256:
		return aesDecrypt(h.key, data)
	}
	return nil, fmt.Errorf("%w: crypt method %s", ErrUnsupported, m)
}

// Open authenticates password against an /Encrypt dictionary and returns a
// handler for the document. An empty password tries the empty user password;
// failing that the result is ErrPasswordRequired.
func Open(encrypt *raw.DictObj, fileID, password []byte) (*Handler, error) {
	if encrypt == nil {
		return nil, fmt.Errorf("%w: missing encryption dictionary", ErrUnsupported)
	}
	if filter, _ := encrypt.Name("Filter"); filter != "Standard" {
		return nil, fmt.Errorf("%w: filter %q", ErrUnsupported, filter)
	}
	v, _ := encrypt.Int("V")
	r, _ := encrypt.Int("R")
	p, _ := encrypt.Int("P")

	h := &Handler{
		revision:        int(r),
		encryptMetadata: true,
		perms:           PermissionsFromP(int32(p)),
		rand:            rand.Reader,
	}
	if b, ok := encrypt.Get("EncryptMetadata"); ok {
		if bv, ok := b.(raw.BoolObj); ok {
			h.encryptMetadata = bv.V
		}
	}

	keyLen := 5
	switch v {
	case 1:
	case 2, 3:
		bits, ok := encrypt.Int("Length")
		if !ok {
			bits = 40
		}
		keyLen = int(bits / 8)
		h.stream, h.str = methodRC4, methodRC4
	case 4, 5:
		var err error
		h.stream, keyLen, err = cryptFilter(encrypt, "StmF")
		if err != nil {
			return nil, err
		}
		h.str, _, err = cryptFilter(encrypt, "StrF")
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("%w: V %d", ErrUnsupported, v)
	}
	if v == 1 {
		h.stream, h.str = methodRC4, methodRC4
	}
	if keyLen < 5 || keyLen > 32 {
		return nil, fmt.Errorf("%w: key length %d", ErrUnsupported, keyLen)
	}

	var err error
	switch r {
	case 2, 3, 4:
		err = h.authenticateLegacy(encrypt, fileID, password, keyLen)
	case 5, 6:
		err = h.authenticateAES256(encrypt, password)
	default:
		err = fmt.Errorf("%w: R %d", ErrUnsupported, r)
	}
	if err != nil {
		if errors.Is(err, ErrInvalidPassword) && len(password) == 0 {
			return nil, ErrPasswordRequired
		}
		return nil, err
	}
	return h, nil
}

// cryptFilter resolves a StmF/StrF name through the /CF dictionary.
func cryptFilter(encrypt *raw.DictObj, entry string) (cryptMethod, int, error) {
	name, ok := encrypt.Name(entry)
	if !ok || name == "Identity" {
		return methodIdentity, 16, nil
	}
	cfObj, _ := encrypt.Get("CF")
	cf, _ := cfObj.(*raw.DictObj)
	filterObj, _ := cf.Get(name)
	filter, ok := filterObj.(*raw.DictObj)
	if !ok {
		return "", 0, fmt.Errorf("%w: crypt filter %s not defined", ErrUnsupported, name)
	}
	cfm, _ := filter.Name("CFM")
	switch cryptMethod(cfm) {
	case methodRC4:
		n, ok := filter.Int("Length")
		if !ok {
			n = 16
		}
		// Some writers record the length in bits.
		if n > 32 {
			n /= 8
		}
		return methodRC4, int(n), nil
	case methodAES128:
		return methodAES128, 16, nil
	case methodAES256:
		return methodAES256, 32, nil
	case "None", "":
		return methodIdentity, 16, nil
	}
	return "", 0, fmt.Errorf("%w: CFM %s", ErrUnsupported, cfm)
}
