package writer

import (
	"compress/zlib"
	"fmt"
	"reflect"
	"sort"

	"github.com/wudi/pdfcompose/filters"
	"github.com/wudi/pdfcompose/ir/raw"
	"github.com/wudi/pdfcompose/ir/semantic"
)

// objectBuilder assigns object numbers in the order objects are first
// reached from the catalog: page tree, each page with its content streams
// and resources (sorted by name), outlines, info, then XMP.
type objectBuilder struct {
	doc     *semantic.Document
	cfg     Config
	objects map[raw.ObjectRef]raw.Object
	objNum  int

	catalog  raw.ObjectRef
	info     *raw.ObjectRef
	resRefs  map[semantic.ResourceKey]raw.ObjectRef
	imported map[uintptr]map[raw.ObjectRef]raw.ObjectRef
}

func newObjectBuilder(doc *semantic.Document, cfg Config) *objectBuilder {
	return &objectBuilder{
		doc:      doc,
		cfg:      cfg,
		objects:  make(map[raw.ObjectRef]raw.Object),
		objNum:   1,
		resRefs:  make(map[semantic.ResourceKey]raw.ObjectRef),
		imported: make(map[uintptr]map[raw.ObjectRef]raw.ObjectRef),
	}
}

func (b *objectBuilder) nextRef() raw.ObjectRef {
	ref := raw.ObjectRef{Num: b.objNum, Gen: 0}
	b.objNum++
	return ref
}

func (b *objectBuilder) build() error {
	b.catalog = b.nextRef()
	pagesRef := b.nextRef()
	pageRefs := make([]raw.ObjectRef, len(b.doc.Pages))
	kids := raw.NewArray()
	for i := range b.doc.Pages {
		pageRefs[i] = b.nextRef()
		kids.Append(raw.RefObj{R: pageRefs[i]})
	}
	for i, p := range b.doc.Pages {
		dict, err := b.buildPage(p, pagesRef)
		if err != nil {
			return err
		}
		b.objects[pageRefs[i]] = dict
	}
	pages := raw.Dict()
	pages.Set("Type", raw.NameLiteral("Pages"))
	pages.Set("Kids", kids)
	pages.Set("Count", raw.Int(len(pageRefs)))
	b.objects[pagesRef] = pages

	catalog := raw.Dict()
	catalog.Set("Type", raw.NameLiteral("Catalog"))
	catalog.Set("Pages", raw.RefObj{R: pagesRef})

	if len(b.doc.Outlines) > 0 {
		root := b.nextRef()
		first, last, count, err := b.buildOutlines(b.doc.Outlines, root, pageRefs)
		if err != nil {
			return err
		}
		d := raw.Dict()
		d.Set("Type", raw.NameLiteral("Outlines"))
		d.Set("First", raw.RefObj{R: first})
		d.Set("Last", raw.RefObj{R: last})
		d.Set("Count", raw.Int(count))
		b.objects[root] = d
		catalog.Set("Outlines", raw.RefObj{R: root})
		catalog.Set("PageMode", raw.NameLiteral("UseOutlines"))
	}

	producer := b.producer()
	infoRef := b.nextRef()
	b.info = &infoRef
	b.objects[infoRef] = infoDict(b.doc.Info, producer)

	if b.cfg.XMP {
		ref := b.nextRef()
		d := raw.Dict()
		d.Set("Type", raw.NameLiteral("Metadata"))
		d.Set("Subtype", raw.NameLiteral("XML"))
		b.objects[ref] = raw.NewStream(d, buildXMP(b.doc.Info, producer))
		catalog.Set("Metadata", raw.RefObj{R: ref})
	}
	b.objects[b.catalog] = catalog
	return nil
}

func (b *objectBuilder) producer() string {
	switch {
	case b.doc.Info.Producer != "":
		return b.doc.Info.Producer
	case b.cfg.Producer != "":
		return b.cfg.Producer
	}
	return DefaultProducer
}

func (b *objectBuilder) buildPage(p *semantic.Page, parent raw.ObjectRef) (*raw.DictObj, error) {
	d := raw.Dict()
	d.Set("Type", raw.NameLiteral("Page"))
	d.Set("Parent", raw.RefObj{R: parent})
	box := p.MediaBox
	d.Set("MediaBox", raw.Numbers(box.LLX, box.LLY, box.URX, box.URY))
	if p.Rotate != 0 {
		d.Set("Rotate", raw.Int(p.Rotate))
	}

	var contents []raw.Object
	for _, cs := range p.Streams() {
		ref := b.nextRef()
		b.objects[ref] = b.stream(raw.Dict(), serializeContentStream(cs.Operations))
		contents = append(contents, raw.RefObj{R: ref})
	}
	switch len(contents) {
	case 0:
	case 1:
		d.Set("Contents", contents[0])
	default:
		d.Set("Contents", raw.NewArray(contents...))
	}

	res, err := b.resourceDict(p.Resources, fmt.Sprintf("page %d", p.Index+1))
	if err != nil {
		return nil, err
	}
	d.Set("Resources", res)
	return d, nil
}

// resourceDict resolves resource names through the document's table.
func (b *objectBuilder) resourceDict(names map[string]semantic.ResourceKey, owner string) (*raw.DictObj, error) {
	sorted := make([]string, 0, len(names))
	for name := range names {
		sorted = append(sorted, name)
	}
	sort.Strings(sorted)

	d := raw.Dict()
	for _, name := range sorted {
		res, ok := b.doc.Resources.Lookup(names[name])
		if !ok {
			return nil, &SerializationError{Ref: owner, Reason: fmt.Sprintf("resource %s has no table entry", name)}
		}
		ref, err := b.ensureResource(res)
		if err != nil {
			return nil, err
		}
		category := map[semantic.ResourceKind]string{
			semantic.ResourceFont:      "Font",
			semantic.ResourceXObject:   "XObject",
			semantic.ResourceExtGState: "ExtGState",
		}[res.Kind]
		sub, ok := d.Get(category)
		if !ok {
			sub = raw.Dict()
			d.Set(category, sub)
		}
		sub.(*raw.DictObj).Set(name, raw.RefObj{R: ref})
	}
	return d, nil
}

func (b *objectBuilder) ensureResource(res *semantic.Resource) (raw.ObjectRef, error) {
	if ref, ok := b.resRefs[res.Key]; ok {
		return ref, nil
	}
	ref := b.nextRef()
	b.resRefs[res.Key] = ref
	var (
		obj raw.Object
		err error
	)
	switch res.Kind {
	case semantic.ResourceFont:
		obj = b.fontDict(res.Font)
	case semantic.ResourceXObject:
		obj, err = b.xobject(res.Name, res.XObject)
	case semantic.ResourceExtGState:
		obj = extGStateDict(res.ExtGState)
	default:
		err = &SerializationError{Ref: res.Name, Reason: "unknown resource kind"}
	}
	if err != nil {
		return raw.ObjectRef{}, err
	}
	b.objects[ref] = obj
	return ref, nil
}

func extGStateDict(g *semantic.ExtGState) *raw.DictObj {
	d := raw.Dict()
	d.Set("Type", raw.NameLiteral("ExtGState"))
	if g.FillAlpha != nil {
		d.Set("ca", raw.NumberFloat(*g.FillAlpha))
	}
	if g.StrokeAlpha != nil {
		d.Set("CA", raw.NumberFloat(*g.StrokeAlpha))
	}
	return d
}

func (b *objectBuilder) xobject(name string, x *semantic.XObject) (raw.Object, error) {
	if x.Subtype == "Image" {
		return b.image(x), nil
	}
	d := raw.Dict()
	d.Set("Type", raw.NameLiteral("XObject"))
	d.Set("Subtype", raw.NameLiteral("Form"))
	d.Set("BBox", raw.Numbers(x.BBox.LLX, x.BBox.LLY, x.BBox.URX, x.BBox.URY))
	if len(x.Matrix) == 6 {
		d.Set("Matrix", raw.Numbers(x.Matrix...))
	}
	if f := x.Foreign; f != nil {
		if res := b.importForeign(f); res != nil {
			d.Set("Resources", res)
		}
		return b.stream(d, f.Data), nil
	}
	res, err := b.resourceDict(x.Resources, "form "+name)
	if err != nil {
		return nil, err
	}
	d.Set("Resources", res)
	return b.stream(d, serializeContentStream(x.Content)), nil
}

func (b *objectBuilder) image(x *semantic.XObject) *raw.StreamObj {
	d := raw.Dict()
	d.Set("Type", raw.NameLiteral("XObject"))
	d.Set("Subtype", raw.NameLiteral("Image"))
	d.Set("Width", raw.Int(x.Width))
	d.Set("Height", raw.Int(x.Height))
	cs := x.ColorSpace
	if cs == "" {
		cs = "DeviceRGB"
	}
	d.Set("ColorSpace", raw.NameLiteral(cs))
	bpc := x.BitsPerComponent
	if bpc == 0 {
		bpc = 8
	}
	d.Set("BitsPerComponent", raw.Int(bpc))
	if x.SMask != nil {
		ref := b.nextRef()
		b.objects[ref] = b.image(x.SMask)
		d.Set("SMask", raw.RefObj{R: ref})
	}
	if x.Filter != "" {
		d.Set("Filter", raw.NameLiteral(x.Filter))
		return raw.NewStream(d, x.Data)
	}
	return b.flate(d, x.Data)
}

// importForeign copies the objects reachable from a foreign form's resources
// and returns the resources rewritten to the new numbers. Forms taken from
// the same source share one copy of each object.
func (b *objectBuilder) importForeign(f *semantic.ForeignForm) raw.Object {
	if f.Resources == nil {
		return nil
	}
	key := reflect.ValueOf(f.Objects).Pointer()
	mapping, ok := b.imported[key]
	if !ok {
		mapping = make(map[raw.ObjectRef]raw.ObjectRef)
		b.imported[key] = mapping
	}
	var pending []raw.ObjectRef
	var visit func(ref raw.ObjectRef)
	visit = func(ref raw.ObjectRef) {
		if _, seen := mapping[ref]; seen {
			return
		}
		obj, ok := f.Objects[ref]
		if !ok {
			mapping[ref] = raw.ObjectRef{}
			return
		}
		mapping[ref] = b.nextRef()
		pending = append(pending, ref)
		for _, child := range raw.References(obj) {
			visit(child)
		}
	}
	res := raw.Clone(f.Resources)
	for _, ref := range raw.References(res) {
		visit(ref)
	}
	rewrite := func(obj raw.Object) raw.Object {
		return raw.Rewrite(obj, func(ref raw.ObjectRef) raw.Object {
			if nr := mapping[ref]; nr.Num > 0 {
				return raw.RefObj{R: nr}
			}
			return raw.NullObj{}
		})
	}
	for _, old := range pending {
		b.objects[mapping[old]] = rewrite(raw.Clone(f.Objects[old]))
	}
	return rewrite(res)
}

func (b *objectBuilder) buildOutlines(items []*semantic.OutlineNode, parent raw.ObjectRef, pageRefs []raw.ObjectRef) (first, last raw.ObjectRef, count int, err error) {
	refs := make([]raw.ObjectRef, len(items))
	for i := range items {
		refs[i] = b.nextRef()
	}
	for i, item := range items {
		if item.PageIndex < 0 || item.PageIndex >= len(pageRefs) {
			return first, last, 0, &SerializationError{
				Ref:    fmt.Sprintf("outline %q", item.Title),
				Reason: fmt.Sprintf("page index %d out of range", item.PageIndex),
			}
		}
		count++
		d := raw.Dict()
		d.Set("Title", textString(item.Title))
		d.Set("Parent", raw.RefObj{R: parent})
		d.Set("Dest", raw.NewArray(
			raw.RefObj{R: pageRefs[item.PageIndex]},
			raw.NameLiteral("XYZ"),
			raw.Int(0),
			raw.NumberFloat(item.Top),
			raw.NullObj{},
		))
		if i > 0 {
			d.Set("Prev", raw.RefObj{R: refs[i-1]})
		}
		if i < len(refs)-1 {
			d.Set("Next", raw.RefObj{R: refs[i+1]})
		}
		if len(item.Children) > 0 {
			cf, cl, cc, err := b.buildOutlines(item.Children, refs[i], pageRefs)
			if err != nil {
				return first, last, 0, err
			}
			d.Set("First", raw.RefObj{R: cf})
			d.Set("Last", raw.RefObj{R: cl})
			d.Set("Count", raw.Int(cc))
			count += cc
		}
		b.objects[refs[i]] = d
	}
	return refs[0], refs[len(refs)-1], count, nil
}

func pickContentFilter(cfg Config) ContentFilter {
	if cfg.ContentFilter != FilterNone {
		return cfg.ContentFilter
	}
	if cfg.Compression != 0 {
		return FilterFlate
	}
	return FilterNone
}

func (b *objectBuilder) level() int {
	if b.cfg.Compression == 0 {
		return zlib.DefaultCompression
	}
	return b.cfg.Compression
}

// stream encodes content with the configured content filter.
func (b *objectBuilder) stream(d *raw.DictObj, data []byte) *raw.StreamObj {
	switch pickContentFilter(b.cfg) {
	case FilterFlate:
		return b.flate(d, data)
	case FilterASCIIHex:
		d.Set("Filter", raw.NameLiteral("ASCIIHexDecode"))
		return raw.NewStream(d, filters.EncodeASCIIHex(data))
	case FilterASCII85:
		d.Set("Filter", raw.NameLiteral("ASCII85Decode"))
		return raw.NewStream(d, filters.EncodeASCII85(data))
	case FilterRunLength:
		d.Set("Filter", raw.NameLiteral("RunLengthDecode"))
		return raw.NewStream(d, filters.EncodeRunLength(data))
	}
	return raw.NewStream(d, data)
}

// flate compresses binary payloads (fonts, images) whenever compression is on.
func (b *objectBuilder) flate(d *raw.DictObj, data []byte) *raw.StreamObj {
	if b.cfg.Compression == 0 && pickContentFilter(b.cfg) != FilterFlate {
		return raw.NewStream(d, data)
	}
	enc, err := filters.Flate(data, b.level())
	if err != nil {
		return raw.NewStream(d, data)
	}
	d.Set("Filter", raw.NameLiteral("FlateDecode"))
	return raw.NewStream(d, enc)
}
