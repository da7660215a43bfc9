// Package contentstream parses content stream bytes into operations.
package contentstream

import (
	"errors"
	"fmt"
	"io"

	"github.com/wudi/pdfcompose/ir/semantic"
	"github.com/wudi/pdfcompose/scanner"
)

// Parse splits a content stream into operations. Inline image data is skipped;
// the BI operator is kept without its payload.
func Parse(data []byte) ([]semantic.Operation, error) {
	s := scanner.New(data)
	var (
		ops   []semantic.Operation
		stack [][]semantic.Operand // open arrays/dicts
		args  []semantic.Operand
	)
	push := func(o semantic.Operand) {
		if n := len(stack); n > 0 {
			stack[n-1] = append(stack[n-1], o)
			return
		}
		args = append(args, o)
	}
	for {
		tok, err := s.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return ops, fmt.Errorf("content stream: %w", err)
		}
		switch tok.Type {
		case scanner.TokenNumber:
			push(semantic.NumberOperand{Value: numberValue(tok)})
		case scanner.TokenRef:
			// "a b R" cannot occur in content; treat as three operands.
			push(semantic.NumberOperand{Value: float64(tok.Int)})
			push(semantic.NumberOperand{Value: float64(tok.Gen)})
			ops = append(ops, semantic.Operation{Operator: "R", Operands: args})
			args = nil
		case scanner.TokenName:
			push(semantic.NameOperand{Value: tok.Str})
		case scanner.TokenString:
			push(semantic.StringOperand{Value: tok.Bytes})
		case scanner.TokenHex:
			push(semantic.StringOperand{Value: tok.Bytes, Hex: true})
		case scanner.TokenBoolean:
			push(semantic.NameOperand{Value: tok.Str})
		case scanner.TokenArray, scanner.TokenDict:
			stack = append(stack, nil)
		case scanner.TokenKeyword:
			switch tok.Str {
			case "]":
				if len(stack) == 0 {
					continue
				}
				items := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				push(semantic.ArrayOperand{Values: items})
			case ">>":
				if len(stack) == 0 {
					continue
				}
				items := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				push(toDict(items))
			case "ID":
				if err := s.SkipInlineImage(); err != nil {
					return ops, fmt.Errorf("content stream: %w", err)
				}
				args = nil
			default:
				ops = append(ops, semantic.Operation{Operator: tok.Str, Operands: args})
				args = nil
			}
		default:
			push(semantic.NameOperand{Value: tok.Str})
		}
	}
	return ops, nil
}

func numberValue(tok scanner.Token) float64 {
	if tok.IsInt {
		return float64(tok.Int)
	}
	return tok.Float
}

func toDict(items []semantic.Operand) semantic.DictOperand {
	d := semantic.DictOperand{Values: make(map[string]semantic.Operand)}
	for i := 0; i+1 < len(items); i += 2 {
		if k, ok := items[i].(semantic.NameOperand); ok {
			d.Values[k.Value] = items[i+1]
		}
	}
	return d
}
