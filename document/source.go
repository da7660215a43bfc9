package document

import (
	"bytes"
	"context"
	"fmt"
	"os"

	"github.com/edsrzf/mmap-go"

	"github.com/wudi/pdfcompose/filters"
	"github.com/wudi/pdfcompose/ir/raw"
	"github.com/wudi/pdfcompose/ir/semantic"
	"github.com/wudi/pdfcompose/observability"
	"github.com/wudi/pdfcompose/parser"
)

// importSource maps the source file read-only, parses it and appends each of
// its pages as a form drawn on a new page. The mapping stays alive until the
// session closes because imported stream data may alias it. A source that is
// also the target is copied out of the mapping first.
func (s *Session) importSource(ctx context.Context, path, password string) error {
	f, err := os.Open(path)
	if err != nil {
		return &IOError{Op: "open", Path: path, Err: err}
	}
	defer f.Close()
	st, err := f.Stat()
	if err != nil {
		return &IOError{Op: "stat", Path: path, Err: err}
	}
	if st.Size() == 0 {
		return fmt.Errorf("source %s: %w", path, parser.ErrNotPDF)
	}
	m, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		return &IOError{Op: "mmap", Path: path, Err: err}
	}
	data := []byte(m)
	if t, err := os.Stat(s.path); err == nil && os.SameFile(st, t) {
		// The target will be truncated on Close; keep no mapping of it.
		data = bytes.Clone(m)
		if err := m.Unmap(); err != nil {
			return &IOError{Op: "munmap", Path: path, Err: err}
		}
	} else {
		s.source = m
	}

	src, err := parser.Parse(ctx, data, parser.Config{Password: password, Logger: s.logger})
	if err != nil {
		return fmt.Errorf("source %s: %w", path, err)
	}
	pipeline := filters.Standard(filters.Limits{})
	pages := src.Pages()
	for i, pd := range pages {
		form, box, rotate, err := foreignPage(ctx, src, pd, pipeline)
		if err != nil {
			return fmt.Errorf("source %s page %d: %w", path, i+1, err)
		}
		if _, err := s.b.ImportPage(form, box, rotate, i); err != nil {
			return err
		}
	}
	s.logger.Info(observability.EventSourceImported,
		observability.String("source", path),
		observability.Int("pages", len(pages)),
		observability.Bool("encrypted", src.Encrypted))
	return nil
}

func (s *Session) unmapSource() {
	if s.source == nil {
		return
	}
	if err := s.source.Unmap(); err != nil {
		s.logger.Warn("unmap source", observability.Error("error", err))
	}
	s.source = nil
}

// foreignPage wraps one source page's decoded content and inherited
// resources in a form XObject.
func foreignPage(ctx context.Context, src *raw.Document, page *raw.DictObj, p *filters.Pipeline) (*semantic.XObject, semantic.Rectangle, int, error) {
	box := semantic.A4
	if arr, ok := src.Resolve(inherited(src, page, "MediaBox")).(*raw.ArrayObj); ok && arr.Len() == 4 {
		var v [4]float64
		for i, it := range arr.Items {
			if n, ok := src.Resolve(it).(raw.NumberObj); ok {
				v[i] = n.Float()
			}
		}
		box = semantic.Rectangle{LLX: v[0], LLY: v[1], URX: v[2], URY: v[3]}
	}
	rotate := 0
	if n, ok := src.Resolve(inherited(src, page, "Rotate")).(raw.NumberObj); ok {
		rotate = int(n.Int())
	}

	var content bytes.Buffer
	for _, st := range streams(src, page.KV["Contents"]) {
		data, err := p.DecodeStream(ctx, st)
		if err != nil {
			return nil, box, 0, err
		}
		content.Write(data)
		content.WriteByte('\n')
	}

	form := &semantic.XObject{
		Subtype: "Form",
		BBox:    box,
		Foreign: &semantic.ForeignForm{
			Data:      content.Bytes(),
			Resources: inherited(src, page, "Resources"),
			// shared by every page so the writer copies each object once
			Objects: src.Objects,
		},
	}
	return form, box, rotate, nil
}

// inherited looks key up on the page and then on its ancestors.
func inherited(doc *raw.Document, page *raw.DictObj, key string) raw.Object {
	seen := make(map[*raw.DictObj]bool)
	for node := page; node != nil && !seen[node]; {
		seen[node] = true
		if v, ok := node.KV[key]; ok {
			return v
		}
		parent, ok := doc.ResolveDict(node.KV["Parent"])
		if !ok {
			break
		}
		node = parent
	}
	return nil
}

func streams(doc *raw.Document, obj raw.Object) []*raw.StreamObj {
	switch v := doc.Resolve(obj).(type) {
	case *raw.StreamObj:
		return []*raw.StreamObj{v}
	case *raw.ArrayObj:
		var out []*raw.StreamObj
		for _, it := range v.Items {
			out = append(out, streams(doc, it)...)
		}
		return out
	}
	return nil
}
