// Package extractor reads content back out of a parsed document: page text,
// document information, bookmarks, fonts and images.
package extractor

import (
	"context"
	"errors"
	"unicode/utf16"

	"golang.org/x/text/encoding/charmap"

	"github.com/wudi/pdfcompose/filters"
	"github.com/wudi/pdfcompose/ir/raw"
)

// Extractor exposes helpers for pulling structured data out of a raw document.
type Extractor struct {
	raw       *raw.Document
	catalog   *raw.DictObj
	pages     []*raw.DictObj
	pipeline  *filters.Pipeline
	fontCache map[*raw.DictObj]*fontDecoder
}

// New creates an extractor backed by doc.
func New(doc *raw.Document) (*Extractor, error) {
	if doc == nil {
		return nil, errors.New("document is required")
	}
	catalog, ok := doc.ResolveDict(doc.Trailer.KV["Root"])
	if !ok {
		return nil, errors.New("pdf catalog not found in trailer")
	}
	return &Extractor{
		raw:       doc,
		catalog:   catalog,
		pages:     doc.Pages(),
		pipeline:  filters.Standard(filters.Limits{}),
		fontCache: make(map[*raw.DictObj]*fontDecoder),
	}, nil
}

// Metadata holds the document information dictionary and a few flags.
type Metadata struct {
	Version   string
	Title     string
	Author    string
	Subject   string
	Keywords  string
	Creator   string
	Producer  string
	Custom    map[string]string
	Encrypted bool
	PageCount int
	XMP       []byte
}

var standardInfoKeys = map[string]bool{
	"Title": true, "Author": true, "Subject": true, "Keywords": true,
	"Creator": true, "Producer": true, "CreationDate": true, "ModDate": true, "Trapped": true,
}

// ExtractMetadata reads /Info and the catalog's XMP stream.
func (e *Extractor) ExtractMetadata(ctx context.Context) Metadata {
	meta := Metadata{
		Version:   e.raw.Version,
		Encrypted: e.raw.Encrypted,
		PageCount: len(e.pages),
	}
	if info, ok := e.raw.ResolveDict(e.raw.Trailer.KV["Info"]); ok {
		meta.Title = e.text(info, "Title")
		meta.Author = e.text(info, "Author")
		meta.Subject = e.text(info, "Subject")
		meta.Keywords = e.text(info, "Keywords")
		meta.Creator = e.text(info, "Creator")
		meta.Producer = e.text(info, "Producer")
		for _, k := range info.Keys() {
			if standardInfoKeys[k] {
				continue
			}
			if meta.Custom == nil {
				meta.Custom = make(map[string]string)
			}
			meta.Custom[k] = e.text(info, k)
		}
	}
	if st, ok := e.raw.Resolve(e.catalog.KV["Metadata"]).(*raw.StreamObj); ok {
		if data, err := e.pipeline.DecodeStream(ctx, st); err == nil {
			meta.XMP = data
		}
	}
	return meta
}

func (e *Extractor) text(d *raw.DictObj, key string) string {
	switch s := e.raw.Resolve(d.KV[key]).(type) {
	case raw.StringObj:
		return decodeTextString(s.Bytes)
	case raw.HexStringObj:
		return decodeTextString(s.Bytes)
	case raw.NameObj:
		return s.Val
	}
	return ""
}

// decodeTextString handles UTF-16BE strings with a byte order mark and
// falls back to a Windows-1252 reading of PDFDocEncoding.
func decodeTextString(b []byte) string {
	if len(b) >= 2 && b[0] == 0xFE && b[1] == 0xFF {
		return decodeUTF16BE(b[2:])
	}
	out, err := charmap.Windows1252.NewDecoder().Bytes(b)
	if err != nil {
		return string(b)
	}
	return string(out)
}

func decodeUTF16BE(data []byte) string {
	if len(data)%2 != 0 {
		data = data[:len(data)-1]
	}
	buf := make([]uint16, len(data)/2)
	for i := range buf {
		buf[i] = uint16(data[2*i])<<8 | uint16(data[2*i+1])
	}
	return string(utf16.Decode(buf))
}

func (e *Extractor) resources(d *raw.DictObj, kind string) *raw.DictObj {
	res, ok := e.raw.ResolveDict(d.KV["Resources"])
	if !ok {
		return nil
	}
	sub, _ := e.raw.ResolveDict(res.KV[kind])
	return sub
}
