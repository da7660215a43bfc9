package extractor

import "github.com/wudi/pdfcompose/ir/raw"

// Bookmark describes an outline entry. Page is -1 when the destination does
// not point at a page of this document.
type Bookmark struct {
	Title    string
	Page     int
	Top      float64
	Children []Bookmark
}

// ExtractBookmarks walks the document outline tree, if present.
func (e *Extractor) ExtractBookmarks() []Bookmark {
	outlines, ok := e.raw.ResolveDict(e.catalog.KV["Outlines"])
	if !ok {
		return nil
	}
	return e.outlineBranch(outlines.KV["First"], make(map[*raw.DictObj]bool))
}

func (e *Extractor) outlineBranch(obj raw.Object, seen map[*raw.DictObj]bool) []Bookmark {
	var list []Bookmark
	for obj != nil {
		dict, ok := e.raw.ResolveDict(obj)
		if !ok || seen[dict] {
			break
		}
		seen[dict] = true
		dest := dict.KV["Dest"]
		if dest == nil {
			if action, ok := e.raw.ResolveDict(dict.KV["A"]); ok {
				if s, _ := action.Name("S"); s == "GoTo" {
					dest = action.KV["D"]
				}
			}
		}
		bm := Bookmark{Title: e.text(dict, "Title"), Page: -1}
		if arr, ok := e.raw.Resolve(dest).(*raw.ArrayObj); ok && len(arr.Items) > 0 {
			if page, ok := e.raw.ResolveDict(arr.Items[0]); ok {
				bm.Page = e.pageIndex(page)
			}
			if len(arr.Items) > 3 {
				if n, ok := arr.Items[3].(raw.NumberObj); ok {
					bm.Top = n.Float()
				}
			}
		}
		bm.Children = e.outlineBranch(dict.KV["First"], seen)
		list = append(list, bm)
		obj = dict.KV["Next"]
	}
	return list
}

func (e *Extractor) pageIndex(target *raw.DictObj) int {
	for i, p := range e.pages {
		if p == target {
			return i
		}
	}
	return -1
}
