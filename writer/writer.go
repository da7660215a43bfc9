// Package writer serializes a semantic document into PDF bytes with a classic
// cross-reference table.
package writer

import (
	"bytes"
	"context"
	"crypto/sha256"
	"fmt"
	"io"

	"github.com/wudi/pdfcompose/ir/raw"
	"github.com/wudi/pdfcompose/ir/semantic"
	"github.com/wudi/pdfcompose/observability"
)

// DefaultProducer is written to /Producer when neither the document nor the
// configuration names one.
const DefaultProducer = "pdfcompose"

type ContentFilter int

const (
	FilterNone ContentFilter = iota
	FilterFlate
	FilterASCIIHex
	FilterASCII85
	FilterRunLength
)

// Config controls serialization.
type Config struct {
	// Compression is the zlib level used for Flate; 0 leaves streams uncompressed.
	Compression   int
	ContentFilter ContentFilter
	// XMP adds a metadata stream mirroring the info dictionary.
	XMP      bool
	Producer string
}

// SerializationError reports a document that cannot be written, such as a
// dangling resource name or an outline pointing outside the page list.
type SerializationError struct {
	Ref    string
	Reason string
}

func (e *SerializationError) Error() string {
	return fmt.Sprintf("serialize %s: %s", e.Ref, e.Reason)
}

// Writer serializes documents. The zero value is ready to use.
type Writer struct {
	logger observability.Logger
}

type Option func(*Writer)

func WithLogger(l observability.Logger) Option { return func(w *Writer) { w.logger = l } }

func New(opts ...Option) *Writer {
	w := &Writer{}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Serialize renders doc with a default Writer.
func Serialize(doc *semantic.Document, cfg Config) ([]byte, error) {
	var buf bytes.Buffer
	if err := New().Write(context.Background(), doc, &buf, cfg); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Write renders doc and writes it to out in a single call. The document is
// not modified. Output depends only on the document and cfg.
func (w *Writer) Write(ctx context.Context, doc *semantic.Document, out io.Writer, cfg Config) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	rd, err := Build(doc, cfg)
	if err != nil {
		return err
	}
	data, err := WriteObjects(rd.Version, rd.Objects, rd.Trailer)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := out.Write(data); err != nil {
		return err
	}
	observability.OrNop(w.logger).Debug(observability.EventSerialized,
		observability.Int("pages", len(doc.Pages)),
		observability.Int("objects", len(rd.Objects)),
		observability.Int("bytes", len(data)))
	return nil
}

// Build converts doc into numbered raw objects and a trailer carrying /Root,
// /Info and a content-derived /ID.
func Build(doc *semantic.Document, cfg Config) (*raw.Document, error) {
	b := newObjectBuilder(doc, cfg)
	if err := b.build(); err != nil {
		return nil, err
	}
	rd := raw.NewDocument(string(doc.Version))
	rd.Objects = b.objects
	rd.Trailer.Set("Root", raw.RefObj{R: b.catalog})
	if b.info != nil {
		rd.Trailer.Set("Info", raw.RefObj{R: *b.info})
	}
	id := fileID(rd)
	rd.Trailer.Set("ID", raw.NewArray(raw.Hex(id), raw.Hex(id)))
	return rd, nil
}

// fileID digests every object in number order.
func fileID(rd *raw.Document) []byte {
	h := sha256.New()
	h.Write([]byte(rd.Version))
	for _, ref := range rd.Refs() {
		fmt.Fprintf(h, "%d %d obj", ref.Num, ref.Gen)
		raw.WriteHash(h, rd.Objects[ref])
	}
	return h.Sum(nil)[:16]
}

// WriteObjects emits a complete file: header, objects in number order, a
// classic xref table, trailer and startxref. /Size in the trailer is set here.
func WriteObjects(version string, objects map[raw.ObjectRef]raw.Object, trailer *raw.DictObj) ([]byte, error) {
	if version == "" {
		version = string(semantic.DefaultVersion)
	}
	if trailer == nil {
		return nil, &SerializationError{Ref: "trailer", Reason: "missing"}
	}
	if _, ok := trailer.Get("Root"); !ok {
		return nil, &SerializationError{Ref: "trailer", Reason: "no /Root"}
	}

	rd := &raw.Document{Objects: objects}
	refs := rd.Refs()

	var buf bytes.Buffer
	buf.WriteString("%PDF-" + version + "\n%\xE2\xE3\xCF\xD3\n")
	offsets := make(map[int]int64, len(refs))
	gens := make(map[int]int, len(refs))
	maxNum := 0
	for _, ref := range refs {
		if ref.Num <= 0 {
			return nil, &SerializationError{Ref: ref.String(), Reason: "invalid object number"}
		}
		offsets[ref.Num] = int64(buf.Len())
		gens[ref.Num] = ref.Gen
		fmt.Fprintf(&buf, "%d %d obj\n", ref.Num, ref.Gen)
		writeObject(&buf, objects[ref])
		buf.WriteString("\nendobj\n")
		if ref.Num > maxNum {
			maxNum = ref.Num
		}
	}

	xrefOffset := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n", maxNum+1)
	buf.WriteString("0000000000 65535 f \n")
	for i := 1; i <= maxNum; i++ {
		if off, ok := offsets[i]; ok {
			fmt.Fprintf(&buf, "%010d %05d n \n", off, gens[i])
		} else {
			buf.WriteString("0000000000 00001 f \n")
		}
	}

	tr := raw.Clone(trailer).(*raw.DictObj)
	tr.Set("Size", raw.Int(maxNum+1))
	buf.WriteString("trailer\n")
	writeObject(&buf, tr)
	fmt.Fprintf(&buf, "\nstartxref\n%d\n%%%%EOF\n", xrefOffset)
	return buf.Bytes(), nil
}
