// Package encryption protects serialized PDF bytes with the Standard
// security handler (AES-256, revision 6).
package encryption

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"github.com/wudi/pdfcompose/ir/raw"
	"github.com/wudi/pdfcompose/observability"
	"github.com/wudi/pdfcompose/parser"
	"github.com/wudi/pdfcompose/security"
	"github.com/wudi/pdfcompose/writer"
)

// ErrAlreadyEncrypted is returned for input that already carries /Encrypt.
var ErrAlreadyEncrypted = errors.New("encryption: document is already encrypted")

// Options configure Apply.
type Options struct {
	UserPassword string
	// OwnerPassword may be empty, in which case a random one is generated and discarded.
	OwnerPassword string
	Permissions   security.Permission
	// PlainMetadata leaves the XMP metadata stream unencrypted.
	PlainMetadata bool
	// Rand overrides the source of salts, keys and IVs.
	Rand   io.Reader
	Logger observability.Logger
}

// Apply parses data, encrypts every string and stream, adds the /Encrypt
// dictionary and re-emits the file.
func Apply(ctx context.Context, data []byte, opts Options) ([]byte, error) {
	log := observability.OrNop(opts.Logger)
	doc, err := parser.Parse(ctx, data, parser.Config{Logger: log})
	switch {
	case errors.Is(err, security.ErrPasswordRequired), errors.Is(err, security.ErrUnsupported):
		return nil, ErrAlreadyEncrypted
	case err != nil:
		return nil, fmt.Errorf("encryption: read input: %w", err)
	case doc.Encrypted:
		return nil, ErrAlreadyEncrypted
	}

	encDict, h, err := security.NewStandardEncryption(security.Config{
		UserPassword:    opts.UserPassword,
		OwnerPassword:   opts.OwnerPassword,
		Permissions:     opts.Permissions,
		EncryptMetadata: !opts.PlainMetadata,
		Rand:            opts.Rand,
	})
	if err != nil {
		return nil, fmt.Errorf("encryption: %w", err)
	}

	for _, ref := range doc.Refs() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		obj, err := encryptObject(h, ref, doc.Objects[ref])
		if err != nil {
			return nil, fmt.Errorf("encryption: object %s: %w", ref, err)
		}
		doc.Objects[ref] = obj
	}

	encRef := raw.ObjectRef{Num: doc.MaxObjectNumber() + 1}
	doc.Objects[encRef] = encDict
	doc.Trailer.Set("Encrypt", raw.RefObj{R: encRef})
	if _, ok := doc.Trailer.Get("ID"); !ok {
		sum := sha256.Sum256(data)
		doc.Trailer.Set("ID", raw.NewArray(raw.Hex(sum[:16]), raw.Hex(sum[:16])))
	}
	version := doc.Version
	if version < "2.0" {
		version = declareExtension(doc)
	}

	out, err := writer.WriteObjects(version, doc.Objects, doc.Trailer)
	if err != nil {
		return nil, err
	}
	log.Info(observability.EventEncrypted,
		observability.Int("objects", len(doc.Objects)),
		observability.Int("bytes", len(out)),
		observability.Bool("owner_password", opts.OwnerPassword != ""))
	return out, nil
}

// declareExtension marks a pre-2.0 catalog with the Adobe extension level
// that introduced AES-256, raising the header to 1.7.
func declareExtension(doc *raw.Document) string {
	if catalog, ok := doc.ResolveDict(doc.Trailer.KV["Root"]); ok {
		adbe := raw.Dict()
		adbe.Set("BaseVersion", raw.NameLiteral("1.7"))
		adbe.Set("ExtensionLevel", raw.Int(8))
		ext, ok := doc.Resolve(catalog.KV["Extensions"]).(*raw.DictObj)
		if !ok {
			ext = raw.Dict()
			catalog.Set("Extensions", ext)
		}
		ext.Set("ADBE", adbe)
	}
	return "1.7"
}

func encryptObject(h *security.Handler, ref raw.ObjectRef, obj raw.Object) (raw.Object, error) {
	switch v := obj.(type) {
	case raw.StringObj:
		out, err := h.Encrypt(ref.Num, ref.Gen, v.Bytes, security.ClassString)
		return raw.StringObj{Bytes: out}, err
	case raw.HexStringObj:
		out, err := h.Encrypt(ref.Num, ref.Gen, v.Bytes, security.ClassString)
		return raw.HexStringObj{Bytes: out}, err
	case *raw.ArrayObj:
		for i, it := range v.Items {
			enc, err := encryptObject(h, ref, it)
			if err != nil {
				return nil, err
			}
			v.Items[i] = enc
		}
	case *raw.DictObj:
		for _, k := range v.Keys() {
			enc, err := encryptObject(h, ref, v.KV[k])
			if err != nil {
				return nil, err
			}
			v.KV[k] = enc
		}
	case *raw.StreamObj:
		if _, err := encryptObject(h, ref, v.Dict); err != nil {
			return nil, err
		}
		class := security.ClassStream
		if t, _ := v.Dict.Name("Type"); t == "Metadata" {
			class = security.ClassMetadata
		}
		out, err := h.Encrypt(ref.Num, ref.Gen, v.Data, class)
		if err != nil {
			return nil, err
		}
		v.Data = out
	}
	return obj, nil
}
