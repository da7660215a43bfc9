// Package parser reads PDF files into a flat raw.Document. It follows classic
// xref tables, xref streams and object streams, falls back to a full-file
// scan when the cross-reference data is damaged, and decrypts documents
// protected by the Standard security handler.
package parser

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/wudi/pdfcompose/filters"
	"github.com/wudi/pdfcompose/ir/raw"
	"github.com/wudi/pdfcompose/observability"
	"github.com/wudi/pdfcompose/scanner"
	"github.com/wudi/pdfcompose/security"
)

var (
	ErrNotPDF = errors.New("parser: missing %PDF header")
	ErrNoRoot = errors.New("parser: document has no catalog")
)

// Config controls parsing.
type Config struct {
	// Password opens encrypted documents. Either the user or owner password works.
	Password string
	Limits   filters.Limits
	Logger   observability.Logger
}

type parser struct {
	data     []byte
	pipeline *filters.Pipeline
	log      observability.Logger
	table    *xrefTable
}

// Parse reads data into a document. Encrypted documents are decrypted in
// memory; the returned document keeps its /Encrypt trailer entry and has
// Encrypted set. Object and xref streams are unpacked and dropped so the
// result can be written back with a classic cross-reference table.
func Parse(ctx context.Context, data []byte, cfg Config) (*raw.Document, error) {
	version, err := headerVersion(data)
	if err != nil {
		return nil, err
	}
	p := &parser{
		data:     data,
		pipeline: filters.Standard(cfg.Limits),
		log:      observability.OrNop(cfg.Logger),
	}

	repaired := false
	p.table, err = p.readXRef(ctx)
	if err != nil {
		p.log.Warn("xref unreadable, scanning file", observability.Error("error", err))
		p.table, repaired = p.repair(), true
	}
	doc := raw.NewDocument(version)
	if err := p.loadObjects(ctx, doc, repaired); err != nil {
		if repaired {
			return nil, err
		}
		p.log.Warn("xref offsets are stale, scanning file", observability.Error("error", err))
		p.table = p.repair()
		doc = raw.NewDocument(version)
		if err := p.loadObjects(ctx, doc, true); err != nil {
			return nil, err
		}
	}

	doc.Trailer = trailerFor(p.table.trailer, doc)
	if _, ok := doc.Trailer.Get("Root"); !ok {
		return nil, ErrNoRoot
	}

	if enc, ok := doc.Trailer.Get("Encrypt"); ok {
		if err := p.decrypt(doc, enc, cfg.Password); err != nil {
			return nil, err
		}
	}
	if err := p.unpackObjectStreams(ctx, doc); err != nil {
		return nil, err
	}
	dropStructuralStreams(doc)

	p.log.Debug("parsed document",
		observability.String("version", version),
		observability.Int("objects", len(doc.Objects)),
		observability.Bool("encrypted", doc.Encrypted),
		observability.Bool("repaired", repaired))
	return doc, nil
}

func headerVersion(data []byte) (string, error) {
	head := data
	if len(head) > 1024 {
		head = head[:1024]
	}
	idx := bytes.Index(head, []byte("%PDF-"))
	if idx < 0 {
		return "", ErrNotPDF
	}
	v := head[idx+5:]
	end := 0
	for end < len(v) && (v[end] == '.' || (v[end] >= '0' && v[end] <= '9')) {
		end++
	}
	if end == 0 {
		return "", ErrNotPDF
	}
	return string(v[:end]), nil
}

func (p *parser) loadObjects(ctx context.Context, doc *raw.Document, lenient bool) error {
	nums := make([]int, 0, len(p.table.entries))
	for n, e := range p.table.entries {
		if e.kind == entryInUse {
			nums = append(nums, n)
		}
	}
	sort.Ints(nums)
	for _, num := range nums {
		if err := ctx.Err(); err != nil {
			return err
		}
		e := p.table.entries[num]
		ref, obj, err := p.parseIndirect(e.offset, num, e.gen)
		if err != nil {
			if lenient {
				p.log.Warn("skipping unreadable object", observability.Int("object", num), observability.Error("error", err))
				continue
			}
			return fmt.Errorf("object %d: %w", num, err)
		}
		doc.Objects[ref] = obj
	}
	return nil
}

// parseIndirect reads "num gen obj ... endobj" at offset. Negative num or gen
// accept whatever the header declares.
func (p *parser) parseIndirect(offset int64, num, gen int) (raw.ObjectRef, raw.Object, error) {
	s := scanner.New(p.data)
	if err := s.Seek(offset); err != nil {
		return raw.ObjectRef{}, nil, err
	}
	var header [3]scanner.Token
	for i := range header {
		tok, err := s.Next()
		if err != nil {
			return raw.ObjectRef{}, nil, err
		}
		header[i] = tok
	}
	if header[0].Type != scanner.TokenNumber || header[1].Type != scanner.TokenNumber ||
		header[2].Type != scanner.TokenKeyword || header[2].Str != "obj" {
		return raw.ObjectRef{}, nil, fmt.Errorf("no object header at %d", offset)
	}
	ref := raw.ObjectRef{Num: int(header[0].Int), Gen: int(header[1].Int)}
	if (num >= 0 && ref.Num != num) || (gen >= 0 && ref.Gen != gen) {
		return raw.ObjectRef{}, nil, fmt.Errorf("expected object %d %d at %d, found %s", num, gen, offset, ref)
	}

	tr := newTokenReader(s)
	obj, err := parseObject(tr, 0)
	if err != nil {
		return raw.ObjectRef{}, nil, err
	}
	if dict, ok := obj.(*raw.DictObj); ok {
		if len(tr.buf) == 0 {
			s.SetNextStreamLength(p.streamLength(dict))
		}
		if tok, err := tr.next(); err == nil && tok.Type == scanner.TokenStream {
			obj = raw.NewStream(dict, tok.Bytes)
		}
	}
	return ref, obj, nil
}

// streamLength resolves /Length, following an indirect reference when the
// table is available. -1 lets the scanner search for endstream.
func (p *parser) streamLength(dict *raw.DictObj) int64 {
	switch v := dict.KV["Length"].(type) {
	case raw.NumberObj:
		return v.Int()
	case raw.RefObj:
		if p.table == nil {
			return -1
		}
		e, ok := p.table.entries[v.R.Num]
		if !ok || e.kind != entryInUse {
			return -1
		}
		if _, obj, err := p.parseIndirect(e.offset, v.R.Num, e.gen); err == nil {
			if n, ok := obj.(raw.NumberObj); ok {
				return n.Int()
			}
		}
	}
	return -1
}

// trailerFor keeps the trailer entries that survive a rewrite and finds the
// catalog by type when a repaired file lost its trailer.
func trailerFor(src *raw.DictObj, doc *raw.Document) *raw.DictObj {
	out := raw.Dict()
	for _, key := range []string{"Root", "Info", "ID", "Encrypt"} {
		if v, ok := src.Get(key); ok {
			out.Set(key, v)
		}
	}
	if _, ok := out.Get("Root"); ok {
		return out
	}
	for _, ref := range doc.Refs() {
		if d, ok := doc.Objects[ref].(*raw.DictObj); ok {
			if t, _ := d.Name("Type"); t == "Catalog" {
				out.Set("Root", raw.RefObj{R: ref})
				break
			}
		}
	}
	return out
}

func (p *parser) decrypt(doc *raw.Document, enc raw.Object, password string) error {
	var encRef *raw.ObjectRef
	if r, ok := enc.(raw.RefObj); ok {
		encRef = &r.R
	}
	encDict, ok := doc.ResolveDict(enc)
	if !ok {
		return fmt.Errorf("parser: /Encrypt is not a dictionary")
	}
	var fileID []byte
	if ids, ok := doc.Trailer.KV["ID"].(*raw.ArrayObj); ok && len(ids.Items) > 0 {
		switch s := ids.Items[0].(type) {
		case raw.StringObj:
			fileID = s.Bytes
		case raw.HexStringObj:
			fileID = s.Bytes
		}
	}
	h, err := security.Open(encDict, fileID, []byte(password))
	if err != nil {
		return fmt.Errorf("open encrypted document: %w", err)
	}
	for _, ref := range doc.Refs() {
		if encRef != nil && ref == *encRef {
			continue
		}
		obj, err := decryptObject(h, ref, doc.Objects[ref])
		if err != nil {
			return fmt.Errorf("decrypt %s: %w", ref, err)
		}
		doc.Objects[ref] = obj
	}
	doc.Encrypted = true
	return nil
}

func decryptObject(h *security.Handler, ref raw.ObjectRef, obj raw.Object) (raw.Object, error) {
	switch v := obj.(type) {
	case raw.StringObj:
		out, err := h.Decrypt(ref.Num, ref.Gen, v.Bytes, security.ClassString)
		return raw.StringObj{Bytes: out}, err
	case raw.HexStringObj:
		out, err := h.Decrypt(ref.Num, ref.Gen, v.Bytes, security.ClassString)
		return raw.HexStringObj{Bytes: out}, err
	case *raw.ArrayObj:
		for i, it := range v.Items {
			dec, err := decryptObject(h, ref, it)
			if err != nil {
				return nil, err
			}
			v.Items[i] = dec
		}
	case *raw.DictObj:
		for _, k := range v.Keys() {
			dec, err := decryptObject(h, ref, v.KV[k])
			if err != nil {
				return nil, err
			}
			v.KV[k] = dec
		}
	case *raw.StreamObj:
		if t, _ := v.Dict.Name("Type"); t == "XRef" {
			return v, nil
		}
		if _, err := decryptObject(h, ref, v.Dict); err != nil {
			return nil, err
		}
		if identityCrypt(v.Dict) {
			return v, nil
		}
		class := security.ClassStream
		if t, _ := v.Dict.Name("Type"); t == "Metadata" {
			class = security.ClassMetadata
		}
		out, err := h.Decrypt(ref.Num, ref.Gen, v.Data, class)
		if err != nil {
			return nil, err
		}
		v.Data = out
	}
	return obj, nil
}

// identityCrypt reports a stream whose /Crypt filter opts out of encryption.
func identityCrypt(d *raw.DictObj) bool {
	names, params := filters.ExtractFilters(d)
	for i, n := range names {
		if n != "Crypt" {
			continue
		}
		if i < len(params) {
			if name, ok := params[i].Name("Name"); ok && name != "Identity" {
				return false
			}
		}
		return true
	}
	return false
}

func (p *parser) unpackObjectStreams(ctx context.Context, doc *raw.Document) error {
	groups := make(map[int][]int)
	for num, e := range p.table.entries {
		if e.kind == entryCompressed {
			groups[e.stream] = append(groups[e.stream], num)
		}
	}
	streams := make([]int, 0, len(groups))
	for s := range groups {
		streams = append(streams, s)
	}
	sort.Ints(streams)
	for _, sn := range streams {
		st, ok := doc.Objects[raw.ObjectRef{Num: sn}].(*raw.StreamObj)
		if !ok {
			p.log.Warn("object stream missing", observability.Int("object", sn))
			continue
		}
		objs, err := p.readObjectStream(ctx, st)
		if err != nil {
			return fmt.Errorf("object stream %d: %w", sn, err)
		}
		for _, num := range groups[sn] {
			if obj, ok := objs[num]; ok {
				doc.Objects[raw.ObjectRef{Num: num}] = obj
			}
		}
	}
	return nil
}

func (p *parser) readObjectStream(ctx context.Context, st *raw.StreamObj) (map[int]raw.Object, error) {
	data, err := p.pipeline.DecodeStream(ctx, st)
	if err != nil {
		return nil, err
	}
	n, _ := st.Dict.Int("N")
	first, _ := st.Dict.Int("First")
	if first < 0 || int(first) > len(data) {
		return nil, errors.New("/First exceeds stream length")
	}
	hs := scanner.New(data[:first])
	pairs := make([]int64, 0, 2*n)
	for int64(len(pairs)) < 2*n {
		tok, err := hs.Next()
		if err != nil {
			return nil, fmt.Errorf("header: %w", err)
		}
		if tok.Type == scanner.TokenNumber && tok.IsInt {
			pairs = append(pairs, tok.Int)
		}
	}
	body := data[first:]
	objs := make(map[int]raw.Object, n)
	for i := 0; i+1 < len(pairs); i += 2 {
		off := pairs[i+1]
		if off < 0 || off >= int64(len(body)) {
			return nil, fmt.Errorf("object %d offset out of range", pairs[i])
		}
		bs := scanner.New(body)
		if err := bs.Seek(off); err != nil {
			return nil, err
		}
		obj, err := parseObject(newTokenReader(bs), 0)
		if err != nil {
			return nil, fmt.Errorf("object %d: %w", pairs[i], err)
		}
		objs[int(pairs[i])] = obj
	}
	return objs, nil
}

func dropStructuralStreams(doc *raw.Document) {
	for ref, obj := range doc.Objects {
		st, ok := obj.(*raw.StreamObj)
		if !ok {
			continue
		}
		if t, _ := st.Dict.Name("Type"); t == "XRef" || t == "ObjStm" {
			delete(doc.Objects, ref)
		}
	}
}
