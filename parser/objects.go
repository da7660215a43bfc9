package parser

import (
	"errors"
	"fmt"

	"github.com/wudi/pdfcompose/ir/raw"
	"github.com/wudi/pdfcompose/scanner"
)

const maxNesting = 256

var errNesting = errors.New("object nesting too deep")

// tokenReader adds single-token pushback on top of a scanner.
type tokenReader struct {
	s   *scanner.Scanner
	buf []scanner.Token
}

func newTokenReader(s *scanner.Scanner) *tokenReader { return &tokenReader{s: s} }

func (r *tokenReader) next() (scanner.Token, error) {
	if l := len(r.buf); l > 0 {
		t := r.buf[l-1]
		r.buf = r.buf[:l-1]
		return t, nil
	}
	return r.s.Next()
}

func (r *tokenReader) unread(tok scanner.Token) { r.buf = append(r.buf, tok) }

func parseObject(tr *tokenReader, depth int) (raw.Object, error) {
	if depth > maxNesting {
		return nil, errNesting
	}
	tok, err := tr.next()
	if err != nil {
		return nil, err
	}
	switch tok.Type {
	case scanner.TokenName:
		return raw.NameObj{Val: tok.Str}, nil
	case scanner.TokenNumber:
		if tok.IsInt {
			return raw.NumberObj{I: tok.Int, IsInt: true}, nil
		}
		return raw.NumberObj{F: tok.Float}, nil
	case scanner.TokenBoolean:
		return raw.BoolObj{V: tok.Bool}, nil
	case scanner.TokenNull:
		return raw.NullObj{}, nil
	case scanner.TokenString:
		return raw.StringObj{Bytes: tok.Bytes}, nil
	case scanner.TokenHex:
		return raw.HexStringObj{Bytes: tok.Bytes}, nil
	case scanner.TokenArray:
		return parseArray(tr, depth)
	case scanner.TokenDict:
		return parseDict(tr, depth)
	case scanner.TokenRef:
		return raw.RefObj{R: raw.ObjectRef{Num: int(tok.Int), Gen: tok.Gen}}, nil
	}
	return nil, fmt.Errorf("unexpected token %q at %d", tok.Str, tok.Pos)
}

func parseArray(tr *tokenReader, depth int) (raw.Object, error) {
	arr := &raw.ArrayObj{}
	for {
		tok, err := tr.next()
		if err != nil {
			return nil, err
		}
		if tok.Type == scanner.TokenKeyword && tok.Str == "]" {
			return arr, nil
		}
		tr.unread(tok)
		item, err := parseObject(tr, depth+1)
		if err != nil {
			return nil, err
		}
		arr.Append(item)
	}
}

func parseDict(tr *tokenReader, depth int) (raw.Object, error) {
	d := raw.Dict()
	for {
		tok, err := tr.next()
		if err != nil {
			return nil, err
		}
		if tok.Type == scanner.TokenKeyword && tok.Str == ">>" {
			return d, nil
		}
		if (tok.Type == scanner.TokenKeyword && tok.Str == "endobj") || tok.Type == scanner.TokenStream {
			// missing ">>": keep what was read and let the caller see the keyword
			tr.unread(tok)
			return d, nil
		}
		if tok.Type != scanner.TokenName {
			return nil, fmt.Errorf("expected name in dictionary at %d", tok.Pos)
		}
		val, err := parseObject(tr, depth+1)
		if err != nil {
			return nil, err
		}
		// a null value is equivalent to an absent key
		if _, isNull := val.(raw.NullObj); isNull {
			continue
		}
		d.Set(tok.Str, val)
	}
}
