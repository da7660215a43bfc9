package writer

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"unicode/utf16"

	"github.com/wudi/pdfcompose/ir/raw"
	"github.com/wudi/pdfcompose/ir/semantic"
)

func writeObject(b *bytes.Buffer, o raw.Object) {
	switch v := o.(type) {
	case raw.NameObj:
		b.WriteString("/" + pdfNameLiteral(v.Val))
	case raw.NumberObj:
		if v.IsInt {
			b.WriteString(strconv.FormatInt(v.I, 10))
		} else {
			b.WriteString(formatNumber(v.F))
		}
	case raw.BoolObj:
		b.WriteString(strconv.FormatBool(v.V))
	case raw.StringObj:
		b.Write(escapeLiteralString(v.Bytes))
	case raw.HexStringObj:
		b.WriteByte('<')
		b.WriteString(strings.ToUpper(hex.EncodeToString(v.Bytes)))
		b.WriteByte('>')
	case *raw.ArrayObj:
		b.WriteByte('[')
		for i, it := range v.Items {
			if i > 0 {
				b.WriteByte(' ')
			}
			writeObject(b, it)
		}
		b.WriteByte(']')
	case *raw.DictObj:
		if v == nil {
			b.WriteString("null")
			return
		}
		b.WriteString("<<")
		for _, k := range v.Keys() {
			b.WriteString("/" + pdfNameLiteral(k) + " ")
			writeObject(b, v.KV[k])
		}
		b.WriteString(">>")
	case *raw.StreamObj:
		dict := raw.Dict()
		if v.Dict != nil {
			for k, it := range v.Dict.KV {
				dict.KV[k] = it
			}
		}
		dict.Set("Length", raw.Int(len(v.Data)))
		writeObject(b, dict)
		b.WriteString("\nstream\n")
		b.Write(v.Data)
		b.WriteString("\nendstream")
	case raw.RefObj:
		fmt.Fprintf(b, "%d %d R", v.R.Num, v.R.Gen)
	default:
		b.WriteString("null")
	}
}

// formatNumber prints v as a PDF real: no exponent, at most five decimals.
func formatNumber(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return "0"
	}
	s := strconv.FormatFloat(v, 'f', 5, 64)
	s = strings.TrimRight(strings.TrimRight(s, "0"), ".")
	if s == "-0" || s == "" {
		return "0"
	}
	return s
}

// pdfNameLiteral escapes the bytes of a name that may not appear literally.
func pdfNameLiteral(value string) string {
	var b strings.Builder
	for i := 0; i < len(value); i++ {
		ch := value[i]
		if ch > 0x20 && ch < 0x7f && !strings.ContainsRune("#()<>[]{}/%", rune(ch)) {
			b.WriteByte(ch)
			continue
		}
		fmt.Fprintf(&b, "#%02X", ch)
	}
	return b.String()
}

func escapeLiteralString(rawBytes []byte) []byte {
	var b bytes.Buffer
	b.WriteByte('(')
	for _, ch := range rawBytes {
		switch ch {
		case '\\', '(', ')':
			b.WriteByte('\\')
			b.WriteByte(ch)
		case '\n':
			b.WriteString("\\n")
		case '\r':
			b.WriteString("\\r")
		case '\t':
			b.WriteString("\\t")
		case '\b':
			b.WriteString("\\b")
		case '\f':
			b.WriteString("\\f")
		default:
			if ch < 0x20 || ch >= 0x80 {
				fmt.Fprintf(&b, "\\%03o", ch)
			} else {
				b.WriteByte(ch)
			}
		}
	}
	b.WriteByte(')')
	return b.Bytes()
}

// textString encodes s as a PDF text string: ASCII stays as is, anything
// else becomes UTF-16BE with a byte order mark.
func textString(s string) raw.StringObj {
	ascii := true
	for i := 0; i < len(s); i++ {
		if s[i] >= 0x80 {
			ascii = false
			break
		}
	}
	if ascii {
		return raw.Text(s)
	}
	units := utf16.Encode([]rune(s))
	out := make([]byte, 2, 2+2*len(units))
	out[0], out[1] = 0xFE, 0xFF
	for _, u := range units {
		out = append(out, byte(u>>8), byte(u))
	}
	return raw.Str(out)
}

func serializeContentStream(ops []semantic.Operation) []byte {
	var buf bytes.Buffer
	for _, op := range ops {
		for _, operand := range op.Operands {
			writeOperand(&buf, operand)
			buf.WriteByte(' ')
		}
		buf.WriteString(op.Operator)
		buf.WriteByte('\n')
	}
	return buf.Bytes()
}

func writeOperand(b *bytes.Buffer, op semantic.Operand) {
	switch v := op.(type) {
	case semantic.NumberOperand:
		b.WriteString(formatNumber(v.Value))
	case semantic.NameOperand:
		b.WriteString("/" + pdfNameLiteral(v.Value))
	case semantic.StringOperand:
		if v.Hex {
			b.WriteByte('<')
			b.WriteString(strings.ToUpper(hex.EncodeToString(v.Value)))
			b.WriteByte('>')
		} else {
			b.Write(escapeLiteralString(v.Value))
		}
	case semantic.ArrayOperand:
		b.WriteByte('[')
		for i, it := range v.Values {
			if i > 0 {
				b.WriteByte(' ')
			}
			writeOperand(b, it)
		}
		b.WriteByte(']')
	case semantic.DictOperand:
		keys := make([]string, 0, len(v.Values))
		for k := range v.Values {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b.WriteString("<<")
		for _, k := range keys {
			b.WriteString("/" + pdfNameLiteral(k) + " ")
			writeOperand(b, v.Values[k])
		}
		b.WriteString(">>")
	default:
		b.WriteString("null")
	}
}
