package extractor

import (
	"sort"

	"github.com/wudi/pdfcompose/ir/raw"
)

// FontInfo describes a font dictionary and the pages that use it.
type FontInfo struct {
	ResourceName string
	BaseFont     string
	Subtype      string
	Encoding     string
	Embedded     bool
	HasToUnicode bool
	Pages        []int
}

// ExtractFonts reports the distinct fonts referenced from page resources.
func (e *Extractor) ExtractFonts() []FontInfo {
	byDict := make(map[*raw.DictObj]*FontInfo)
	for idx, page := range e.pages {
		fontsDict := e.resources(page, "Font")
		if fontsDict == nil {
			continue
		}
		for _, name := range fontsDict.Keys() {
			dict, ok := e.raw.ResolveDict(fontsDict.KV[name])
			if !ok {
				continue
			}
			info, ok := byDict[dict]
			if !ok {
				info = e.fontInfo(name, dict)
				byDict[dict] = info
			}
			if n := len(info.Pages); n == 0 || info.Pages[n-1] != idx {
				info.Pages = append(info.Pages, idx)
			}
		}
	}
	out := make([]FontInfo, 0, len(byDict))
	for _, info := range byDict {
		out = append(out, *info)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].BaseFont == out[j].BaseFont {
			return out[i].ResourceName < out[j].ResourceName
		}
		return out[i].BaseFont < out[j].BaseFont
	})
	return out
}

func (e *Extractor) fontInfo(name string, dict *raw.DictObj) *FontInfo {
	info := &FontInfo{ResourceName: name}
	info.BaseFont, _ = dict.Name("BaseFont")
	info.Subtype, _ = dict.Name("Subtype")
	info.Encoding, _ = dict.Name("Encoding")
	_, info.HasToUnicode = e.raw.Resolve(dict.KV["ToUnicode"]).(*raw.StreamObj)

	descriptor, ok := e.raw.ResolveDict(dict.KV["FontDescriptor"])
	if !ok {
		if kids, ok := e.raw.Resolve(dict.KV["DescendantFonts"]).(*raw.ArrayObj); ok && len(kids.Items) > 0 {
			if cid, ok := e.raw.ResolveDict(kids.Items[0]); ok {
				descriptor, _ = e.raw.ResolveDict(cid.KV["FontDescriptor"])
			}
		}
	}
	if descriptor != nil {
		for _, key := range []string{"FontFile", "FontFile2", "FontFile3"} {
			if _, ok := e.raw.Resolve(descriptor.KV[key]).(*raw.StreamObj); ok {
				info.Embedded = true
			}
		}
	}
	return info
}
