package parser

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/wudi/pdfcompose/ir/raw"
	"github.com/wudi/pdfcompose/scanner"
)

type entryKind int

const (
	entryFree entryKind = iota
	entryInUse
	entryCompressed
)

type xrefEntry struct {
	kind   entryKind
	offset int64
	gen    int
	// stream and index locate an object stored in an object stream.
	stream int
	index  int
}

// xrefTable merges every cross-reference section reachable from startxref.
// The newest section wins for each object number.
type xrefTable struct {
	entries map[int]xrefEntry
	trailer *raw.DictObj
}

func newXRefTable() *xrefTable { return &xrefTable{entries: make(map[int]xrefEntry)} }

func (t *xrefTable) add(num int, e xrefEntry) {
	if _, ok := t.entries[num]; !ok {
		t.entries[num] = e
	}
}

const maxXRefSections = 64

var errNoStartXRef = errors.New("startxref not found")

func findStartXRef(data []byte) (int64, error) {
	idx := bytes.LastIndex(data, []byte("startxref"))
	if idx < 0 {
		return 0, errNoStartXRef
	}
	s := scanner.New(data)
	if err := s.Seek(int64(idx + len("startxref"))); err != nil {
		return 0, err
	}
	tok, err := s.Next()
	if err != nil || tok.Type != scanner.TokenNumber || !tok.IsInt {
		return 0, fmt.Errorf("malformed startxref value")
	}
	return tok.Int, nil
}

func (p *parser) readXRef(ctx context.Context) (*xrefTable, error) {
	start, err := findStartXRef(p.data)
	if err != nil {
		return nil, err
	}
	t := newXRefTable()
	seen := make(map[int64]bool)
	queue := []int64{start}
	for len(queue) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		off := queue[0]
		queue = queue[1:]
		if seen[off] {
			continue
		}
		if len(seen) >= maxXRefSections {
			return nil, fmt.Errorf("more than %d xref sections", maxXRefSections)
		}
		seen[off] = true

		trailer, err := p.readSection(ctx, t, off)
		if err != nil {
			return nil, fmt.Errorf("xref section at %d: %w", off, err)
		}
		if t.trailer == nil {
			t.trailer = trailer
		}
		// hybrid files: the XRefStm entries override the section's Prev chain
		if x, ok := trailer.Int("XRefStm"); ok {
			queue = append(queue, x)
		}
		if prev, ok := trailer.Int("Prev"); ok {
			queue = append(queue, prev)
		}
	}
	if len(t.entries) == 0 {
		return nil, errors.New("xref is empty")
	}
	return t, nil
}

func (p *parser) readSection(ctx context.Context, t *xrefTable, off int64) (*raw.DictObj, error) {
	if off <= 0 || off >= int64(len(p.data)) {
		return nil, fmt.Errorf("offset out of range")
	}
	rest := bytes.TrimLeft(p.data[off:], " \t\r\n\f\x00")
	if bytes.HasPrefix(rest, []byte("xref")) {
		return p.readClassicSection(t, off+int64(len(p.data[off:])-len(rest)))
	}
	return p.readStreamSection(ctx, t, off)
}

func (p *parser) readClassicSection(t *xrefTable, off int64) (*raw.DictObj, error) {
	s := scanner.New(p.data)
	if err := s.Seek(off + int64(len("xref"))); err != nil {
		return nil, err
	}
	nextInt := func() (int64, error) {
		tok, err := s.Next()
		if err != nil {
			return 0, err
		}
		if tok.Type != scanner.TokenNumber || !tok.IsInt {
			return 0, fmt.Errorf("expected integer at %d", tok.Pos)
		}
		return tok.Int, nil
	}
	for {
		tok, err := s.Next()
		if err != nil {
			return nil, err
		}
		if tok.Type == scanner.TokenKeyword && tok.Str == "trailer" {
			obj, err := parseObject(newTokenReader(s), 0)
			if err != nil {
				return nil, fmt.Errorf("trailer: %w", err)
			}
			trailer, ok := obj.(*raw.DictObj)
			if !ok {
				return nil, errors.New("trailer is not a dictionary")
			}
			return trailer, nil
		}
		if tok.Type != scanner.TokenNumber || !tok.IsInt {
			return nil, fmt.Errorf("invalid subsection header at %d", tok.Pos)
		}
		first := int(tok.Int)
		count, err := nextInt()
		if err != nil {
			return nil, err
		}
		for i := 0; i < int(count); i++ {
			offset, err := nextInt()
			if err != nil {
				return nil, err
			}
			gen, err := nextInt()
			if err != nil {
				return nil, err
			}
			kind, err := s.Next()
			if err != nil {
				return nil, err
			}
			switch kind.Str {
			case "n":
				t.add(first+i, xrefEntry{kind: entryInUse, offset: offset, gen: int(gen)})
			case "f":
				t.add(first+i, xrefEntry{kind: entryFree, gen: int(gen)})
			default:
				return nil, fmt.Errorf("invalid entry type %q", kind.Str)
			}
		}
	}
}

func (p *parser) readStreamSection(ctx context.Context, t *xrefTable, off int64) (*raw.DictObj, error) {
	_, obj, err := p.parseIndirect(off, -1, -1)
	if err != nil {
		return nil, err
	}
	st, ok := obj.(*raw.StreamObj)
	if !ok {
		return nil, errors.New("expected xref stream")
	}
	if typ, _ := st.Dict.Name("Type"); typ != "XRef" {
		return nil, fmt.Errorf("stream type %q is not XRef", typ)
	}
	data, err := p.pipeline.DecodeStream(ctx, st)
	if err != nil {
		return nil, err
	}

	w := intArray(st.Dict, "W")
	if len(w) != 3 {
		return nil, errors.New("xref stream /W must have three entries")
	}
	for _, v := range w {
		if v < 0 || v > 8 {
			return nil, fmt.Errorf("xref stream field width %d", v)
		}
	}
	index := intArray(st.Dict, "Index")
	if len(index) == 0 {
		size, _ := st.Dict.Int("Size")
		index = []int{0, int(size)}
	}
	rowLen := w[0] + w[1] + w[2]
	if rowLen == 0 {
		return nil, errors.New("xref stream rows are empty")
	}

	pos := 0
	for i := 0; i+1 < len(index); i += 2 {
		first, count := index[i], index[i+1]
		for j := 0; j < count; j++ {
			if pos+rowLen > len(data) {
				return nil, errors.New("xref stream data truncated")
			}
			row := data[pos : pos+rowLen]
			pos += rowLen
			typ := int64(1)
			if w[0] > 0 {
				typ = field(row[:w[0]])
			}
			f2 := field(row[w[0] : w[0]+w[1]])
			f3 := field(row[w[0]+w[1]:])
			num := first + j
			switch typ {
			case 0:
				t.add(num, xrefEntry{kind: entryFree, gen: int(f3)})
			case 1:
				t.add(num, xrefEntry{kind: entryInUse, offset: f2, gen: int(f3)})
			case 2:
				t.add(num, xrefEntry{kind: entryCompressed, stream: int(f2), index: int(f3)})
			}
		}
	}
	return st.Dict, nil
}

func field(b []byte) int64 {
	var v int64
	for _, c := range b {
		v = v<<8 | int64(c)
	}
	return v
}

func intArray(d *raw.DictObj, key string) []int {
	obj, _ := d.Get(key)
	arr, ok := obj.(*raw.ArrayObj)
	if !ok {
		return nil
	}
	out := make([]int, 0, len(arr.Items))
	for _, it := range arr.Items {
		if n, ok := it.(raw.NumberObj); ok {
			out = append(out, int(n.Int()))
		}
	}
	return out
}
