package extractor

import (
	"bufio"
	"bytes"
	"context"
	"encoding/hex"
	"math"
	"sort"
	"strings"

	"golang.org/x/text/encoding/charmap"

	"github.com/wudi/pdfcompose/contentstream"
	"github.com/wudi/pdfcompose/ir/raw"
	"github.com/wudi/pdfcompose/ir/semantic"
)

// PageText captures extracted text per page.
type PageText struct {
	Page    int
	Content string
}

const maxFormDepth = 8

// ExtractText returns best-effort text for each page by walking the show
// operators. Marked /Artifact content (watermarks, headers) is skipped and
// form XObjects are followed. Pages without text are omitted.
func (e *Extractor) ExtractText(ctx context.Context) ([]PageText, error) {
	var out []PageText
	for idx, page := range e.pages {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		var data []byte
		for _, st := range e.contentStreams(page.KV["Contents"]) {
			decoded, err := e.pipeline.DecodeStream(ctx, st)
			if err != nil {
				continue
			}
			data = append(append(data, decoded...), '\n')
		}
		w := &textWalker{e: e, ctx: ctx}
		w.walk(data, page, 0)
		txt := strings.TrimSpace(w.out.String())
		if txt == "" {
			continue
		}
		out = append(out, PageText{Page: idx, Content: txt})
	}
	return out, nil
}

func (e *Extractor) contentStreams(obj raw.Object) []*raw.StreamObj {
	switch v := e.raw.Resolve(obj).(type) {
	case *raw.StreamObj:
		return []*raw.StreamObj{v}
	case *raw.ArrayObj:
		var all []*raw.StreamObj
		for _, it := range v.Items {
			all = append(all, e.contentStreams(it)...)
		}
		return all
	}
	return nil
}

type textWalker struct {
	e   *Extractor
	ctx context.Context
	out strings.Builder

	lastY   float64
	started bool
}

func (w *textWalker) newline() {
	if w.out.Len() > 0 && !strings.HasSuffix(w.out.String(), "\n") {
		w.out.WriteByte('\n')
	}
}

// moveTo breaks the line whenever the baseline changes.
func (w *textWalker) moveTo(y float64) {
	if w.started && math.Abs(y-w.lastY) > 0.01 {
		w.newline()
	}
	w.lastY, w.started = y, true
}

func (w *textWalker) walk(data []byte, owner *raw.DictObj, depth int) {
	ops, _ := contentstream.Parse(data)
	fonts := w.e.fontDecoders(owner)
	var (
		font     *fontDecoder
		artifact int // nesting of marked content inside an artifact
		marked   int
		lineY    float64
		leading  float64
	)
	for _, op := range ops {
		if artifact > 0 {
			switch op.Operator {
			case "BDC", "BMC":
				artifact++
			case "EMC":
				artifact--
			}
			continue
		}
		args := op.Operands
		switch op.Operator {
		case "BDC", "BMC":
			if len(args) > 0 && operandName(args[0]) == "Artifact" {
				artifact = 1
				continue
			}
			marked++
		case "EMC":
			if marked > 0 {
				marked--
			}
		case "Tf":
			if len(args) >= 2 {
				font = fonts[operandName(args[0])]
			}
		case "TL":
			if len(args) == 1 {
				leading = operandNumber(args[0])
			}
		case "Tm":
			if len(args) == 6 {
				lineY = operandNumber(args[5])
				w.moveTo(lineY)
			}
		case "Td", "TD":
			if len(args) == 2 {
				dy := operandNumber(args[1])
				if op.Operator == "TD" {
					leading = -dy
				}
				lineY += dy
				w.moveTo(lineY)
			}
		case "T*":
			lineY -= leading
			w.newline()
			w.lastY = lineY
		case "Tj":
			if len(args) == 1 {
				w.out.WriteString(font.decode(operandBytes(args[0])))
			}
		case "'", "\"":
			if len(args) > 0 {
				lineY -= leading
				w.newline()
				w.lastY = lineY
				w.out.WriteString(font.decode(operandBytes(args[len(args)-1])))
			}
		case "TJ":
			if len(args) == 1 {
				arr, _ := args[0].(semantic.ArrayOperand)
				for _, it := range arr.Values {
					switch v := it.(type) {
					case semantic.StringOperand:
						w.out.WriteString(font.decode(v.Value))
					case semantic.NumberOperand:
						// a large negative kern is a word gap
						if v.Value < -200 {
							w.out.WriteByte(' ')
						}
					}
				}
			}
		case "Do":
			if len(args) == 1 && depth < maxFormDepth {
				w.form(owner, operandName(args[0]), depth)
			}
		}
	}
}

func (w *textWalker) form(owner *raw.DictObj, name string, depth int) {
	xobjects := w.e.resources(owner, "XObject")
	if xobjects == nil {
		return
	}
	st, ok := w.e.raw.Resolve(xobjects.KV[name]).(*raw.StreamObj)
	if !ok {
		return
	}
	if sub, _ := st.Dict.Name("Subtype"); sub != "Form" {
		return
	}
	data, err := w.e.pipeline.DecodeStream(w.ctx, st)
	if err != nil {
		return
	}
	scope := st.Dict
	if _, ok := st.Dict.Get("Resources"); !ok {
		scope = owner
	}
	w.walk(data, scope, depth+1)
}

func operandName(o semantic.Operand) string {
	if n, ok := o.(semantic.NameOperand); ok {
		return n.Value
	}
	return ""
}

func operandNumber(o semantic.Operand) float64 {
	if n, ok := o.(semantic.NumberOperand); ok {
		return n.Value
	}
	return 0
}

func operandBytes(o semantic.Operand) []byte {
	if s, ok := o.(semantic.StringOperand); ok {
		return s.Value
	}
	return nil
}

type fontDecoder struct {
	cmap *toUnicodeMap
}

// decode maps shown bytes to text. Without a ToUnicode map the bytes are read
// as WinAnsi, which covers the standard fonts.
func (f *fontDecoder) decode(data []byte) string {
	if len(data) == 0 {
		return ""
	}
	if f != nil && f.cmap != nil {
		return f.cmap.decode(data)
	}
	out, err := charmap.Windows1252.NewDecoder().Bytes(data)
	if err != nil {
		return string(data)
	}
	return string(out)
}

func (e *Extractor) fontDecoders(owner *raw.DictObj) map[string]*fontDecoder {
	fontsDict := e.resources(owner, "Font")
	if fontsDict == nil {
		return nil
	}
	decoders := make(map[string]*fontDecoder, fontsDict.Len())
	for _, name := range fontsDict.Keys() {
		dict, ok := e.raw.ResolveDict(fontsDict.KV[name])
		if !ok {
			continue
		}
		dec, ok := e.fontCache[dict]
		if !ok {
			dec = &fontDecoder{}
			if st, ok := e.raw.Resolve(dict.KV["ToUnicode"]).(*raw.StreamObj); ok {
				if data, err := e.pipeline.DecodeStream(context.Background(), st); err == nil {
					dec.cmap = parseToUnicodeCMap(data)
				}
			}
			e.fontCache[dict] = dec
		}
		decoders[name] = dec
	}
	return decoders
}

type toUnicodeMap struct {
	entries map[string]string
	lengths []int // code lengths, longest first
}

func (m *toUnicodeMap) decode(data []byte) string {
	var out strings.Builder
	for i := 0; i < len(data); {
		matched := false
		for _, l := range m.lengths {
			if i+l > len(data) {
				continue
			}
			if dst, ok := m.entries[string(data[i:i+l])]; ok {
				out.WriteString(dst)
				i += l
				matched = true
				break
			}
		}
		if !matched {
			step := 1
			if len(m.lengths) > 0 {
				step = m.lengths[len(m.lengths)-1]
			}
			i += step
		}
	}
	return out.String()
}

// parseToUnicodeCMap reads the codespace, bfchar and bfrange sections of a
// ToUnicode CMap.
func parseToUnicodeCMap(data []byte) *toUnicodeMap {
	sc := bufio.NewScanner(bytes.NewReader(data))
	m := &toUnicodeMap{entries: make(map[string]string)}
	lengths := make(map[int]bool)
	state := ""
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "%") {
			continue
		}
		switch {
		case strings.HasSuffix(line, "begincodespacerange"):
			state = "codespace"
			continue
		case strings.HasSuffix(line, "beginbfchar"):
			state = "bfchar"
			continue
		case strings.HasSuffix(line, "beginbfrange"):
			state = "bfrange"
			continue
		case strings.HasPrefix(line, "end"):
			state = ""
			continue
		}
		switch state {
		case "codespace":
			if hexes := hexTokens(line); len(hexes) > 0 && len(hexes[0]) > 0 {
				lengths[len(hexes[0])] = true
			}
		case "bfchar":
			if hexes := hexTokens(line); len(hexes) >= 2 && len(hexes[0]) > 0 {
				m.entries[string(hexes[0])] = decodeUTF16BE(hexes[1])
				lengths[len(hexes[0])] = true
			}
		case "bfrange":
			for strings.Contains(line, "[") && !strings.Contains(line, "]") && sc.Scan() {
				line += " " + strings.TrimSpace(sc.Text())
			}
			hexes := hexTokens(line)
			if len(hexes) < 3 || len(hexes[0]) == 0 {
				continue
			}
			n := len(hexes[0])
			lengths[n] = true
			lo, hi := bytesToInt(hexes[0]), bytesToInt(hexes[1])
			if hi-lo > 0xFFFF {
				continue
			}
			if strings.Contains(line, "[") {
				for i := 0; i <= hi-lo && 2+i < len(hexes); i++ {
					m.entries[string(intToBytes(lo+i, n))] = decodeUTF16BE(hexes[2+i])
				}
				continue
			}
			dst := hexes[2]
			for i := 0; i <= hi-lo; i++ {
				m.entries[string(intToBytes(lo+i, n))] = decodeUTF16BE(intToBytes(bytesToInt(dst)+i, len(dst)))
			}
		}
	}
	if len(lengths) == 0 {
		for k := range m.entries {
			lengths[len(k)] = true
		}
	}
	for l := range lengths {
		m.lengths = append(m.lengths, l)
	}
	sort.Sort(sort.Reverse(sort.IntSlice(m.lengths)))
	return m
}

func hexTokens(line string) [][]byte {
	var out [][]byte
	for {
		start := strings.IndexByte(line, '<')
		if start < 0 {
			return out
		}
		end := strings.IndexByte(line[start+1:], '>')
		if end < 0 {
			return out
		}
		seg := strings.ReplaceAll(line[start+1:start+1+end], " ", "")
		if len(seg)%2 == 1 {
			seg += "0"
		}
		b, _ := hex.DecodeString(seg)
		out = append(out, b)
		line = line[start+end+2:]
	}
}

func bytesToInt(b []byte) int {
	v := 0
	for _, c := range b {
		v = v<<8 | int(c)
	}
	return v
}

func intToBytes(v, n int) []byte {
	out := make([]byte, n)
	for i := n - 1; i >= 0; i-- {
		out[i] = byte(v)
		v >>= 8
	}
	return out
}
