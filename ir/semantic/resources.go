package semantic

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"sort"

	"github.com/wudi/pdfcompose/ir/raw"
)

// ResourceKey is the content hash identifying a registered resource.
type ResourceKey string

// ResourceKind distinguishes the resource dictionaries a resource is listed in.
type ResourceKind int

const (
	ResourceFont ResourceKind = iota
	ResourceXObject
	ResourceExtGState
)

func (k ResourceKind) String() string {
	switch k {
	case ResourceFont:
		return "Font"
	case ResourceXObject:
		return "XObject"
	case ResourceExtGState:
		return "ExtGState"
	}
	return fmt.Sprintf("ResourceKind(%d)", int(k))
}

// Resource is one entry of the document resource table.
type Resource struct {
	Key       ResourceKey
	Name      string
	Kind      ResourceKind
	Font      *Font
	XObject   *XObject
	ExtGState *ExtGState
}

// ResourceTable holds each distinct font, XObject and graphics state once.
type ResourceTable struct {
	entries []*Resource
	byKey   map[ResourceKey]*Resource
	counts  map[string]int
}

func NewResourceTable() *ResourceTable {
	return &ResourceTable{
		byKey:  make(map[ResourceKey]*Resource),
		counts: make(map[string]int),
	}
}

// RegisterFont adds f unless a font with identical content is present, in which
// case the existing entry is returned.
func (t *ResourceTable) RegisterFont(f *Font) *Resource {
	return t.register(ResourceFont, "F", fontKey(f), func(r *Resource) { r.Font = f })
}

// RegisterXObject adds x, deduplicating by content hash.
func (t *ResourceTable) RegisterXObject(x *XObject) *Resource {
	prefix := "Im"
	if x.Subtype == "Form" {
		prefix = "Fm"
	}
	return t.register(ResourceXObject, prefix, xobjectKey(x), func(r *Resource) { r.XObject = x })
}

// RegisterExtGState adds g, deduplicating by value.
func (t *ResourceTable) RegisterExtGState(g *ExtGState) *Resource {
	return t.register(ResourceExtGState, "GS", extGStateKey(g), func(r *Resource) { r.ExtGState = g })
}

func (t *ResourceTable) register(kind ResourceKind, prefix string, key ResourceKey, fill func(*Resource)) *Resource {
	if r, ok := t.byKey[key]; ok {
		return r
	}
	t.counts[prefix]++
	r := &Resource{Key: key, Kind: kind, Name: fmt.Sprintf("%s%d", prefix, t.counts[prefix])}
	fill(r)
	t.byKey[key] = r
	t.entries = append(t.entries, r)
	return r
}

func (t *ResourceTable) Lookup(key ResourceKey) (*Resource, bool) {
	r, ok := t.byKey[key]
	return r, ok
}

func (t *ResourceTable) Len() int { return len(t.entries) }

// Entries returns resources in registration order.
func (t *ResourceTable) Entries() []*Resource {
	return append([]*Resource(nil), t.entries...)
}

// Font describes a font resource. Type1 fonts use a single-byte encoding;
// Type0 fonts address glyphs by two-byte glyph id (Identity-H).
type Font struct {
	Subtype  string // Type1 or Type0
	BaseFont string
	Encoding string // WinAnsiEncoding or Identity-H
	// Widths maps a character code (Type1) or glyph id (Type0) to its advance in 1/1000 em.
	Widths       map[int]int
	DefaultWidth int
	// ToUnicode records the text each glyph id was produced from.
	ToUnicode  map[int][]rune
	Descriptor *FontDescriptor
}

// FontDescriptor carries the metrics and the embedded TrueType program.
type FontDescriptor struct {
	FontName    string
	Flags       int
	ItalicAngle float64
	Ascent      float64
	Descent     float64
	CapHeight   float64
	StemV       float64
	FontBBox    [4]float64
	FontFile    []byte
}

// Embedded reports whether the font carries its own program.
func (f *Font) Embedded() bool {
	return f.Descriptor != nil && len(f.Descriptor.FontFile) > 0
}

// ExtGState is a graphics state parameter dictionary.
type ExtGState struct {
	FillAlpha   *float64
	StrokeAlpha *float64
}

// XObject is either a Form (reusable content) or an Image.
type XObject struct {
	Subtype string // Form or Image

	BBox      Rectangle
	Matrix    []float64
	Content   []Operation
	Resources map[string]ResourceKey
	Foreign   *ForeignForm

	Width            int
	Height           int
	ColorSpace       string
	BitsPerComponent int
	Filter           string
	Data             []byte
	SMask            *XObject
}

// ForeignForm is page content copied from another PDF. Resources may hold
// references into Objects; they are renumbered when written.
type ForeignForm struct {
	Data      []byte
	Resources raw.Object
	Objects   map[raw.ObjectRef]raw.Object
}

func fontKey(f *Font) ResourceKey {
	h := sha256.New()
	fmt.Fprintf(h, "font|%s|%s|%s|", f.Subtype, f.BaseFont, f.Encoding)
	if f.Embedded() {
		sum := sha256.Sum256(f.Descriptor.FontFile)
		h.Write(sum[:])
	}
	return ResourceKey(hex.EncodeToString(h.Sum(nil)))
}

func extGStateKey(g *ExtGState) ResourceKey {
	h := sha256.New()
	fmt.Fprint(h, "gs|")
	if g.FillAlpha != nil {
		fmt.Fprintf(h, "ca=%g|", *g.FillAlpha)
	}
	if g.StrokeAlpha != nil {
		fmt.Fprintf(h, "CA=%g|", *g.StrokeAlpha)
	}
	return ResourceKey(hex.EncodeToString(h.Sum(nil)))
}

func xobjectKey(x *XObject) ResourceKey {
	h := sha256.New()
	writeXObjectHash(h, x)
	return ResourceKey(hex.EncodeToString(h.Sum(nil)))
}

func writeXObjectHash(w io.Writer, x *XObject) {
	fmt.Fprintf(w, "xobj|%s|%v|%v|", x.Subtype, x.BBox, x.Matrix)
	fmt.Fprintf(w, "%d|%d|%s|%d|%s|", x.Width, x.Height, x.ColorSpace, x.BitsPerComponent, x.Filter)
	fmt.Fprintf(w, "%d:", len(x.Data))
	w.Write(x.Data)
	writeOperationsHash(w, x.Content)
	names := make([]string, 0, len(x.Resources))
	for n := range x.Resources {
		names = append(names, n)
	}
	sort.Strings(names)
	for _, n := range names {
		fmt.Fprintf(w, "res %s=%s|", n, x.Resources[n])
	}
	if x.Foreign != nil {
		fmt.Fprintf(w, "foreign %d:", len(x.Foreign.Data))
		w.Write(x.Foreign.Data)
		raw.WriteHash(w, x.Foreign.Resources)
		refs := make([]raw.ObjectRef, 0, len(x.Foreign.Objects))
		for r := range x.Foreign.Objects {
			refs = append(refs, r)
		}
		sort.Slice(refs, func(i, j int) bool { return refs[i].Num < refs[j].Num })
		for _, r := range refs {
			fmt.Fprintf(w, "%d|", r.Num)
			raw.WriteHash(w, x.Foreign.Objects[r])
		}
	}
	if x.SMask != nil {
		fmt.Fprint(w, "smask|")
		writeXObjectHash(w, x.SMask)
	}
}

func writeOperationsHash(w io.Writer, ops []Operation) {
	for _, op := range ops {
		fmt.Fprint(w, op.Operator, "(")
		for _, o := range op.Operands {
			writeOperandHash(w, o)
		}
		fmt.Fprint(w, ")")
	}
}

func writeOperandHash(w io.Writer, o Operand) {
	switch v := o.(type) {
	case NumberOperand:
		fmt.Fprintf(w, "n%g,", v.Value)
	case NameOperand:
		fmt.Fprintf(w, "/%s,", v.Value)
	case StringOperand:
		fmt.Fprintf(w, "s%t%d:", v.Hex, len(v.Value))
		w.Write(v.Value)
	case ArrayOperand:
		fmt.Fprint(w, "[")
		for _, it := range v.Values {
			writeOperandHash(w, it)
		}
		fmt.Fprint(w, "]")
	case DictOperand:
		keys := make([]string, 0, len(v.Values))
		for k := range v.Values {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		fmt.Fprint(w, "<<")
		for _, k := range keys {
			fmt.Fprintf(w, "%s=", k)
			writeOperandHash(w, v.Values[k])
		}
		fmt.Fprint(w, ">>")
	}
}
