package contentstream

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wudi/pdfcompose/ir/semantic"
)

func TestParseTextObject(t *testing.T) {
	ops, err := Parse([]byte("BT /F1 12 Tf 1 0 0 1 72 700 Tm (Hello) Tj [<0041> -120 (B)] TJ ET"))
	require.NoError(t, err)

	var names []string
	for _, op := range ops {
		names = append(names, op.Operator)
	}
	require.Equal(t, []string{"BT", "Tf", "Tm", "Tj", "TJ", "ET"}, names)
	require.Equal(t, semantic.NameOperand{Value: "F1"}, ops[1].Operands[0])
	require.Equal(t, "Hello", string(ops[3].Operands[0].(semantic.StringOperand).Value))

	arr := ops[4].Operands[0].(semantic.ArrayOperand)
	require.Len(t, arr.Values, 3)
	require.True(t, arr.Values[0].(semantic.StringOperand).Hex)
	require.Equal(t, -120.0, arr.Values[1].(semantic.NumberOperand).Value)
}

func TestParseMarkedContentDict(t *testing.T) {
	ops, err := Parse([]byte("/Artifact <</Type /Pagination /Subtype /Watermark>> BDC q Q EMC"))
	require.NoError(t, err)
	require.Equal(t, "BDC", ops[0].Operator)
	dict := ops[0].Operands[1].(semantic.DictOperand)
	require.Equal(t, semantic.NameOperand{Value: "Watermark"}, dict.Values["Subtype"])
	require.Equal(t, "EMC", ops[len(ops)-1].Operator)
}

func TestParseSkipsInlineImage(t *testing.T) {
	ops, err := Parse([]byte("q BI /W 1 /H 1 /BPC 8 /CS /G ID \x00\xff EI Q"))
	require.NoError(t, err)
	var names []string
	for _, op := range ops {
		names = append(names, op.Operator)
	}
	require.Equal(t, []string{"q", "BI", "Q"}, names)
}
