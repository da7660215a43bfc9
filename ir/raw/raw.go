// Package raw holds the low-level PDF object primitives shared by the
// serializer, the reader and the encryption filter.
package raw

import (
	"fmt"
	"sort"
)

// ObjectRef uniquely identifies an indirect PDF object.
type ObjectRef struct {
	Num int
	Gen int
}

func (r ObjectRef) String() string { return fmt.Sprintf("%d %d R", r.Num, r.Gen) }

// Object is the base interface for all raw PDF objects.
type Object interface {
	Type() string
	IsIndirect() bool
}

// Document is a flat set of numbered objects plus the trailer that roots them.
type Document struct {
	Objects   map[ObjectRef]Object
	Trailer   *DictObj
	Version   string // e.g. "2.0"
	Encrypted bool
}

// NewDocument returns an empty document for the given header version.
func NewDocument(version string) *Document {
	return &Document{
		Objects: make(map[ObjectRef]Object),
		Trailer: Dict(),
		Version: version,
	}
}

// Refs returns the object references in ascending object-number order.
func (d *Document) Refs() []ObjectRef {
	refs := make([]ObjectRef, 0, len(d.Objects))
	for r := range d.Objects {
		refs = append(refs, r)
	}
	sort.Slice(refs, func(i, j int) bool {
		if refs[i].Num == refs[j].Num {
			return refs[i].Gen < refs[j].Gen
		}
		return refs[i].Num < refs[j].Num
	})
	return refs
}

// Resolve follows indirect references until a direct object is reached.
// Unknown references resolve to nil.
func (d *Document) Resolve(obj Object) Object {
	for i := 0; i < 32; i++ {
		ref, ok := obj.(RefObj)
		if !ok {
			return obj
		}
		next, ok := d.Objects[ref.R]
		if !ok {
			return nil
		}
		obj = next
	}
	return nil
}

// ResolveDict resolves obj and returns it as a dictionary. Streams yield their dictionary.
func (d *Document) ResolveDict(obj Object) (*DictObj, bool) {
	switch v := d.Resolve(obj).(type) {
	case *DictObj:
		return v, true
	case *StreamObj:
		return v.Dict, v.Dict != nil
	}
	return nil, false
}

// MaxObjectNumber returns the highest object number in use.
func (d *Document) MaxObjectNumber() int {
	max := 0
	for r := range d.Objects {
		if r.Num > max {
			max = r.Num
		}
	}
	return max
}

// Pages walks the page tree from the catalog and returns the page dictionaries in order.
func (d *Document) Pages() []*DictObj {
	if d.Trailer == nil {
		return nil
	}
	root, ok := d.ResolveDict(d.Trailer.KV["Root"])
	if !ok {
		return nil
	}
	var out []*DictObj
	seen := make(map[*DictObj]bool)
	var walk func(node *DictObj)
	walk = func(node *DictObj) {
		if node == nil || seen[node] {
			return
		}
		seen[node] = true
		if t, _ := node.Name("Type"); t == "Page" {
			out = append(out, node)
			return
		}
		kids, ok := d.Resolve(node.KV["Kids"]).(*ArrayObj)
		if !ok {
			return
		}
		for _, k := range kids.Items {
			if kd, ok := d.ResolveDict(k); ok {
				walk(kd)
			}
		}
	}
	pages, _ := d.ResolveDict(root.KV["Pages"])
	walk(pages)
	return out
}
