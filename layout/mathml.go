package layout

import (
	"strings"

	"golang.org/x/net/html"
)

// linearizeMath flattens a MathML tree into a single line of text:
// x^2, w_i, (a)/(b), sqrt(x). Annotations carrying the TeX source are skipped.
func linearizeMath(n *html.Node) string {
	var sb strings.Builder
	writeMath(&sb, n)
	return strings.Join(strings.Fields(sb.String()), " ")
}

func writeMath(sb *strings.Builder, n *html.Node) {
	if n.Type == html.TextNode {
		sb.WriteString(strings.TrimSpace(n.Data))
		return
	}
	if n.Type != html.ElementNode && n.Type != html.DocumentNode {
		return
	}
	kids := mathChildren(n)
	switch n.Data {
	case "annotation", "annotation-xml":
	case "mo":
		op := strings.TrimSpace(rawText(n))
		switch op {
		case "(", "[", "{", ")", "]", "}", ",", "":
			sb.WriteString(op)
		default:
			sb.WriteString(" " + op + " ")
		}
	case "msup", "msub", "msubsup":
		if len(kids) == 0 {
			return
		}
		writeMath(sb, kids[0])
		marks := map[string][]string{"msup": {"^"}, "msub": {"_"}, "msubsup": {"_", "^"}}[n.Data]
		for i, m := range marks {
			if i+1 < len(kids) {
				sb.WriteString(m)
				writeGroup(sb, kids[i+1])
			}
		}
	case "mfrac":
		if len(kids) == 2 {
			writeGroup(sb, kids[0])
			sb.WriteString("/")
			writeGroup(sb, kids[1])
		}
	case "msqrt":
		sb.WriteString("sqrt(")
		for _, k := range kids {
			writeMath(sb, k)
		}
		sb.WriteString(")")
	case "mroot":
		if len(kids) == 2 {
			sb.WriteString("root(")
			writeMath(sb, kids[1])
			sb.WriteString(", ")
			writeMath(sb, kids[0])
			sb.WriteString(")")
		}
	default:
		for _, k := range kids {
			writeMath(sb, k)
		}
	}
}

// writeGroup parenthesizes compound operands so the linear form stays unambiguous.
func writeGroup(sb *strings.Builder, n *html.Node) {
	var inner strings.Builder
	writeMath(&inner, n)
	s := strings.TrimSpace(inner.String())
	if len([]rune(s)) > 1 && strings.ContainsAny(s, " +-*/=^_") {
		s = "(" + s + ")"
	}
	sb.WriteString(s)
}

// mathChildren returns element children, dropping whitespace-only text.
func mathChildren(n *html.Node) []*html.Node {
	var out []*html.Node
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.TextNode && strings.TrimSpace(c.Data) == "" {
			continue
		}
		out = append(out, c)
	}
	return out
}
