// Package filters implements the stream filters used when reading and writing PDF streams.
package filters

import (
	"bytes"
	"compress/flate"
	"compress/lzw"
	"compress/zlib"
	"context"
	stdascii85 "encoding/ascii85"
	"encoding/hex"
	"errors"
	"fmt"
	"io"

	"github.com/wudi/pdfcompose/ir/raw"
)

var (
	ErrUnknownFilter = errors.New("unknown filter")
	ErrSizeLimit     = errors.New("decoded size exceeds limit")
)

// Decoder reverses one stream filter.
type Decoder interface {
	Name() string
	Decode(ctx context.Context, input []byte, params *raw.DictObj) ([]byte, error)
}

// Limits bound the work done by a pipeline. Zero means unlimited.
type Limits struct {
	MaxDecompressedSize int64
}

// Pipeline applies a stream's filter chain in order.
type Pipeline struct {
	decoders map[string]Decoder
	limits   Limits
}

// NewPipeline constructs a pipeline with the provided decoders and limits.
func NewPipeline(decoders []Decoder, limits Limits) *Pipeline {
	p := &Pipeline{decoders: make(map[string]Decoder, len(decoders)), limits: limits}
	for _, d := range decoders {
		p.decoders[d.Name()] = d
	}
	return p
}

// Standard returns a pipeline with every decoder this package provides.
func Standard(limits Limits) *Pipeline {
	return NewPipeline([]Decoder{
		NewFlateDecoder(),
		NewLZWDecoder(),
		NewASCII85Decoder(),
		NewASCIIHexDecoder(),
		NewRunLengthDecoder(),
	}, limits)
}

func (p *Pipeline) Decode(ctx context.Context, input []byte, names []string, params []*raw.DictObj) ([]byte, error) {
	data := input
	for i, name := range names {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		dec, ok := p.decoders[name]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownFilter, name)
		}
		var param *raw.DictObj
		if i < len(params) {
			param = params[i]
		}
		out, err := dec.Decode(ctx, data, param)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		if p.limits.MaxDecompressedSize > 0 && int64(len(out)) > p.limits.MaxDecompressedSize {
			return nil, ErrSizeLimit
		}
		data = out
	}
	return data, nil
}

// DecodeStream decodes a stream's data according to its /Filter and /DecodeParms.
// Image filters (DCTDecode and similar) are left in place and their data returned as is.
func (p *Pipeline) DecodeStream(ctx context.Context, s *raw.StreamObj) ([]byte, error) {
	names, params := ExtractFilters(s.Dict)
	for i, n := range names {
		if _, ok := p.decoders[n]; !ok && isImageFilter(n) {
			names, params = names[:i], truncate(params, i)
			break
		}
	}
	return p.Decode(ctx, s.Data, names, params)
}

func isImageFilter(name string) bool {
	switch name {
	case "DCTDecode", "JPXDecode", "JBIG2Decode", "CCITTFaxDecode":
		return true
	}
	return false
}

func truncate(params []*raw.DictObj, n int) []*raw.DictObj {
	if len(params) > n {
		return params[:n]
	}
	return params
}

// ExtractFilters reads the Filter and DecodeParms entries of a stream dictionary.
func ExtractFilters(dict *raw.DictObj) ([]string, []*raw.DictObj) {
	var names []string
	var params []*raw.DictObj

	switch f := dictValue(dict, "Filter").(type) {
	case raw.NameObj:
		names = append(names, f.Val)
	case *raw.ArrayObj:
		for _, item := range f.Items {
			if n, ok := item.(raw.NameObj); ok {
				names = append(names, n.Val)
			}
		}
	}
	if len(names) == 0 {
		return nil, nil
	}
	switch p := dictValue(dict, "DecodeParms").(type) {
	case *raw.DictObj:
		params = append(params, p)
	case *raw.ArrayObj:
		for _, item := range p.Items {
			d, _ := item.(*raw.DictObj)
			params = append(params, d)
		}
	}
	return names, params
}

func dictValue(d *raw.DictObj, key string) raw.Object {
	v, _ := d.Get(key)
	return v
}

// Flate compresses data in the zlib format expected by FlateDecode.
func Flate(data []byte, level int) ([]byte, error) {
	var buf bytes.Buffer
	w, err := zlib.NewWriterLevel(&buf, level)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

type flateDecoder struct{}

func NewFlateDecoder() Decoder { return flateDecoder{} }

func (flateDecoder) Name() string { return "FlateDecode" }

// Decode accepts zlib streams and, failing that, bare deflate data.
func (flateDecoder) Decode(ctx context.Context, in []byte, params *raw.DictObj) ([]byte, error) {
	var r io.ReadCloser
	if zr, err := zlib.NewReader(bytes.NewReader(in)); err == nil {
		r = zr
	} else {
		r = flate.NewReader(bytes.NewReader(in))
	}
	defer r.Close()
	out, err := io.ReadAll(r)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) {
		return nil, err
	}
	return unpredict(out, params)
}

type lzwDecoder struct{}

func NewLZWDecoder() Decoder { return lzwDecoder{} }

func (lzwDecoder) Name() string { return "LZWDecode" }

func (lzwDecoder) Decode(ctx context.Context, in []byte, params *raw.DictObj) ([]byte, error) {
	r := lzw.NewReader(bytes.NewReader(in), lzw.MSB, 8)
	defer r.Close()
	out, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	return unpredict(out, params)
}

type ascii85Decoder struct{}

func NewASCII85Decoder() Decoder { return ascii85Decoder{} }

func (ascii85Decoder) Name() string { return "ASCII85Decode" }

func (ascii85Decoder) Decode(ctx context.Context, in []byte, params *raw.DictObj) ([]byte, error) {
	trimmed := bytes.TrimSpace(in)
	trimmed = bytes.TrimPrefix(trimmed, []byte("<~"))
	if i := bytes.Index(trimmed, []byte("~>")); i >= 0 {
		trimmed = trimmed[:i]
	}
	out := make([]byte, 4*len(trimmed)+4)
	n, _, err := stdascii85.Decode(out, trimmed, true)
	if err != nil {
		return nil, err
	}
	return out[:n], nil
}

type asciiHexDecoder struct{}

func NewASCIIHexDecoder() Decoder { return asciiHexDecoder{} }

func (asciiHexDecoder) Name() string { return "ASCIIHexDecode" }

func (asciiHexDecoder) Decode(ctx context.Context, in []byte, params *raw.DictObj) ([]byte, error) {
	digits := make([]byte, 0, len(in))
	for _, c := range in {
		if c == '>' {
			break
		}
		if c == ' ' || c == '\n' || c == '\r' || c == '\t' || c == '\f' || c == 0 {
			continue
		}
		digits = append(digits, c)
	}
	// An odd trailing digit is followed by an implied 0.
	if len(digits)%2 == 1 {
		digits = append(digits, '0')
	}
	out := make([]byte, hex.DecodedLen(len(digits)))
	n, err := hex.Decode(out, digits)
	if err != nil {
		return nil, err
	}
	return out[:n], nil
}

type runLengthDecoder struct{}

func NewRunLengthDecoder() Decoder { return runLengthDecoder{} }

func (runLengthDecoder) Name() string { return "RunLengthDecode" }

func (runLengthDecoder) Decode(ctx context.Context, in []byte, params *raw.DictObj) ([]byte, error) {
	var out []byte
	for i := 0; i < len(in); {
		n := int(in[i])
		i++
		switch {
		case n == 128:
			return out, nil
		case n < 128:
			end := i + n + 1
			if end > len(in) {
				return nil, io.ErrUnexpectedEOF
			}
			out = append(out, in[i:end]...)
			i = end
		default:
			if i >= len(in) {
				return nil, io.ErrUnexpectedEOF
			}
			out = append(out, bytes.Repeat(in[i:i+1], 257-n)...)
			i++
		}
	}
	return out, nil
}

// EncodeASCIIHex is the inverse of the ASCIIHexDecode filter.
func EncodeASCIIHex(data []byte) []byte {
	out := make([]byte, hex.EncodedLen(len(data))+1)
	hex.Encode(out, data)
	out[len(out)-1] = '>'
	return out
}

// EncodeASCII85 is the inverse of the ASCII85Decode filter.
func EncodeASCII85(data []byte) []byte {
	out := make([]byte, stdascii85.MaxEncodedLen(len(data)), stdascii85.MaxEncodedLen(len(data))+2)
	n := stdascii85.Encode(out, data)
	return append(out[:n], '~', '>')
}

// EncodeRunLength is the inverse of the RunLengthDecode filter.
func EncodeRunLength(data []byte) []byte {
	var buf bytes.Buffer
	for i := 0; i < len(data); {
		run := 1
		for i+run < len(data) && run < 128 && data[i+run] == data[i] {
			run++
		}
		if run > 1 {
			buf.WriteByte(byte(257 - run))
			buf.WriteByte(data[i])
			i += run
			continue
		}
		lit := 1
		for i+lit < len(data) && lit < 128 && (i+lit+1 >= len(data) || data[i+lit] != data[i+lit+1]) {
			lit++
		}
		buf.WriteByte(byte(lit - 1))
		buf.Write(data[i : i+lit])
		i += lit
	}
	buf.WriteByte(128)
	return buf.Bytes()
}
