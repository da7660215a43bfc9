// Package scanner tokenizes PDF file bodies and content streams.
package scanner

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strconv"
)

type TokenType int

const (
	TokenDict    TokenType = iota // '<<'
	TokenArray                    // '['
	TokenName                     // '/Name'
	TokenString                   // literal string
	TokenHex                      // hex string
	TokenNumber                   // numeric value
	TokenBoolean                  // true/false
	TokenNull                     // null
	TokenRef                      // indirect ref '5 0 R'
	TokenStream                   // 'stream' keyword with its payload
	TokenKeyword                  // other keywords (obj, endobj, >>, ], operators)
)

// Token is one lexical element. Only the fields relevant to Type are set.
type Token struct {
	Type  TokenType
	Str   string
	Bytes []byte
	Int   int64
	Float float64
	IsInt bool
	Bool  bool
	Gen   int
	Pos   int64
}

// ErrSyntax is wrapped by every lexical error.
var ErrSyntax = errors.New("pdf syntax error")

// Scanner reads tokens from an in-memory buffer. Byte payloads in returned
// tokens are copies, so the buffer may be unmapped after scanning.
type Scanner struct {
	data          []byte
	pos           int
	nextStreamLen int
}

func New(data []byte) *Scanner {
	return &Scanner{data: data, nextStreamLen: -1}
}

func (s *Scanner) Position() int64 { return int64(s.pos) }

func (s *Scanner) Seek(offset int64) error {
	if offset < 0 || offset > int64(len(s.data)) {
		return fmt.Errorf("%w: seek %d out of range", ErrSyntax, offset)
	}
	s.pos = int(offset)
	return nil
}

// SetNextStreamLength hints the payload length of the next stream; negative clears it.
func (s *Scanner) SetNextStreamLength(n int64) { s.nextStreamLen = int(n) }

func (s *Scanner) Next() (Token, error) {
	s.skipWSAndComments()
	if s.pos >= len(s.data) {
		return Token{}, io.EOF
	}
	start := int64(s.pos)
	c := s.data[s.pos]
	switch c {
	case '<':
		if s.peek(1) == '<' {
			s.pos += 2
			return Token{Type: TokenDict, Str: "<<", Pos: start}, nil
		}
		return s.scanHexString()
	case '>':
		if s.peek(1) == '>' {
			s.pos += 2
			return Token{Type: TokenKeyword, Str: ">>", Pos: start}, nil
		}
		s.pos++
		return Token{Type: TokenKeyword, Str: ">", Pos: start}, nil
	case '[':
		s.pos++
		return Token{Type: TokenArray, Str: "[", Pos: start}, nil
	case ']', '{', '}':
		s.pos++
		return Token{Type: TokenKeyword, Str: string(c), Pos: start}, nil
	case '(':
		return s.scanLiteralString()
	case '/':
		return s.scanName()
	}
	if isDigitStart(c) {
		return s.scanNumberOrRef()
	}
	return s.scanKeyword()
}

// SkipInlineImage advances past inline image data up to and including the EI operator.
func (s *Scanner) SkipInlineImage() error {
	if s.pos < len(s.data) && isWhitespace(s.data[s.pos]) {
		s.pos++
	}
	for i := s.pos; i+2 <= len(s.data); i++ {
		if s.data[i] == 'E' && s.data[i+1] == 'I' && (i == 0 || isWhitespace(s.data[i-1])) &&
			(i+2 == len(s.data) || isDelimiter(s.data[i+2]) || isWhitespace(s.data[i+2])) {
			s.pos = i + 2
			return nil
		}
	}
	return fmt.Errorf("%w: unterminated inline image", ErrSyntax)
}

func (s *Scanner) peek(n int) byte {
	if s.pos+n >= len(s.data) {
		return 0
	}
	return s.data[s.pos+n]
}

func (s *Scanner) skipWSAndComments() {
	for s.pos < len(s.data) {
		c := s.data[s.pos]
		if isWhitespace(c) {
			s.pos++
			continue
		}
		if c == '%' {
			for s.pos < len(s.data) && s.data[s.pos] != '\n' && s.data[s.pos] != '\r' {
				s.pos++
			}
			continue
		}
		return
	}
}

func (s *Scanner) scanName() (Token, error) {
	start := s.pos
	s.pos++ // skip '/'
	var out bytes.Buffer
	for s.pos < len(s.data) {
		c := s.data[s.pos]
		if isDelimiter(c) || isWhitespace(c) {
			break
		}
		if c == '#' && s.pos+2 < len(s.data) && isHex(s.data[s.pos+1]) && isHex(s.data[s.pos+2]) {
			out.WriteByte(fromHex(s.data[s.pos+1])<<4 | fromHex(s.data[s.pos+2]))
			s.pos += 3
			continue
		}
		out.WriteByte(c)
		s.pos++
	}
	return Token{Type: TokenName, Str: out.String(), Pos: int64(start)}, nil
}

func (s *Scanner) scanLiteralString() (Token, error) {
	start := s.pos
	s.pos++ // skip '('
	var buf bytes.Buffer
	depth := 1
	for s.pos < len(s.data) {
		c := s.data[s.pos]
		switch {
		case c == '\\':
			s.pos++
			if s.pos >= len(s.data) {
				break
			}
			esc := s.data[s.pos]
			switch {
			case esc == '\r':
				s.pos++
				if s.pos < len(s.data) && s.data[s.pos] == '\n' {
					s.pos++
				}
			case esc == '\n':
				s.pos++
			case esc >= '0' && esc <= '7':
				val := int(esc - '0')
				s.pos++
				for k := 0; k < 2 && s.pos < len(s.data); k++ {
					d := s.data[s.pos]
					if d < '0' || d > '7' {
						break
					}
					val = val<<3 + int(d-'0')
					s.pos++
				}
				buf.WriteByte(byte(val))
			default:
				buf.WriteByte(translateEscape(esc))
				s.pos++
			}
			continue
		case c == '(':
			depth++
		case c == ')':
			depth--
			if depth == 0 {
				s.pos++
				return Token{Type: TokenString, Bytes: buf.Bytes(), Pos: int64(start)}, nil
			}
		}
		buf.WriteByte(c)
		s.pos++
	}
	return Token{}, fmt.Errorf("%w: unterminated literal string at %d", ErrSyntax, start)
}

func (s *Scanner) scanHexString() (Token, error) {
	start := s.pos
	s.pos++ // skip '<'
	var nibbles []byte
	for s.pos < len(s.data) {
		c := s.data[s.pos]
		s.pos++
		if c == '>' {
			if len(nibbles)%2 == 1 {
				nibbles = append(nibbles, '0')
			}
			out := make([]byte, len(nibbles)/2)
			for i := range out {
				out[i] = fromHex(nibbles[2*i])<<4 | fromHex(nibbles[2*i+1])
			}
			return Token{Type: TokenHex, Bytes: out, Pos: int64(start)}, nil
		}
		if isWhitespace(c) {
			continue
		}
		if !isHex(c) {
			return Token{}, fmt.Errorf("%w: invalid hex digit %q at %d", ErrSyntax, c, s.pos-1)
		}
		nibbles = append(nibbles, c)
	}
	return Token{}, fmt.Errorf("%w: unterminated hex string at %d", ErrSyntax, start)
}

func (s *Scanner) scanNumberOrRef() (Token, error) {
	start := s.pos
	tok, err := s.scanNumber()
	if err != nil || !tok.IsInt || tok.Int < 0 {
		return tok, err
	}
	// Look ahead for "<gen> R".
	save := s.pos
	s.skipWSAndComments()
	if s.pos < len(s.data) && s.data[s.pos] >= '0' && s.data[s.pos] <= '9' {
		genStart := s.pos
		for s.pos < len(s.data) && s.data[s.pos] >= '0' && s.data[s.pos] <= '9' {
			s.pos++
		}
		genEnd := s.pos
		if genEnd < len(s.data) && !isDelimiter(s.data[genEnd]) && !isWhitespace(s.data[genEnd]) {
			s.pos = save
			return tok, nil
		}
		s.skipWSAndComments()
		if s.pos < len(s.data) && s.data[s.pos] == 'R' &&
			(s.pos+1 == len(s.data) || isDelimiter(s.data[s.pos+1]) || isWhitespace(s.data[s.pos+1])) {
			gen, _ := strconv.Atoi(string(s.data[genStart:genEnd]))
			s.pos++
			return Token{Type: TokenRef, Int: tok.Int, Gen: gen, IsInt: true, Pos: int64(start)}, nil
		}
	}
	s.pos = save
	return tok, nil
}

func (s *Scanner) scanNumber() (Token, error) {
	start := s.pos
	for s.pos < len(s.data) && isDigitStart(s.data[s.pos]) {
		s.pos++
	}
	lit := string(s.data[start:s.pos])
	if i, err := strconv.ParseInt(lit, 10, 64); err == nil {
		return Token{Type: TokenNumber, Int: i, Float: float64(i), IsInt: true, Pos: int64(start)}, nil
	}
	f, err := strconv.ParseFloat(lit, 64)
	if err != nil {
		// PDF writers occasionally emit "--1" or "1.2.3"; read the longest valid prefix.
		f = 0
		for end := len(lit) - 1; end > 0; end-- {
			if v, err := strconv.ParseFloat(lit[:end], 64); err == nil {
				f = v
				break
			}
		}
	}
	return Token{Type: TokenNumber, Float: f, Pos: int64(start)}, nil
}

func (s *Scanner) scanKeyword() (Token, error) {
	start := s.pos
	for s.pos < len(s.data) {
		c := s.data[s.pos]
		if isDelimiter(c) || isWhitespace(c) {
			break
		}
		s.pos++
	}
	if s.pos == start {
		// Stray delimiter such as ')'.
		s.pos++
		return Token{Type: TokenKeyword, Str: string(s.data[start]), Pos: int64(start)}, nil
	}
	word := string(s.data[start:s.pos])
	switch word {
	case "true", "false":
		return Token{Type: TokenBoolean, Bool: word == "true", Str: word, Pos: int64(start)}, nil
	case "null":
		return Token{Type: TokenNull, Str: word, Pos: int64(start)}, nil
	case "stream":
		data, err := s.scanStreamPayload()
		if err != nil {
			return Token{}, err
		}
		return Token{Type: TokenStream, Str: word, Bytes: data, Pos: int64(start)}, nil
	}
	return Token{Type: TokenKeyword, Str: word, Pos: int64(start)}, nil
}

var endstream = []byte("endstream")

func (s *Scanner) scanStreamPayload() ([]byte, error) {
	hint := s.nextStreamLen
	s.nextStreamLen = -1
	if s.pos < len(s.data) && s.data[s.pos] == '\r' {
		s.pos++
	}
	if s.pos < len(s.data) && s.data[s.pos] == '\n' {
		s.pos++
	}
	begin := s.pos
	if hint >= 0 && begin+hint <= len(s.data) {
		after := begin + hint
		rest := s.data[after:]
		trimmed := bytes.TrimLeft(rest, "\r\n \t")
		if bytes.HasPrefix(trimmed, endstream) {
			s.pos = after + (len(rest) - len(trimmed)) + len(endstream)
			return append([]byte(nil), s.data[begin:after]...), nil
		}
	}
	idx := bytes.Index(s.data[begin:], endstream)
	if idx < 0 {
		return nil, fmt.Errorf("%w: endstream not found after %d", ErrSyntax, begin)
	}
	end := begin + idx
	s.pos = end + len(endstream)
	if end > begin && s.data[end-1] == '\n' {
		end--
	}
	if end > begin && s.data[end-1] == '\r' {
		end--
	}
	return append([]byte(nil), s.data[begin:end]...), nil
}

func isWhitespace(c byte) bool {
	return c == 0x00 || c == 0x09 || c == 0x0A || c == 0x0C || c == 0x0D || c == 0x20
}

func isDelimiter(c byte) bool {
	switch c {
	case '(', ')', '<', '>', '[', ']', '{', '}', '/', '%':
		return true
	}
	return false
}

func isDigitStart(c byte) bool { return c == '+' || c == '-' || c == '.' || (c >= '0' && c <= '9') }

func isHex(c byte) bool {
	return (c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
}

func fromHex(c byte) byte {
	switch {
	case c >= '0' && c <= '9':
		return c - '0'
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10
	}
	return 0
}

func translateEscape(c byte) byte {
	switch c {
	case 'n':
		return '\n'
	case 'r':
		return '\r'
	case 't':
		return '\t'
	case 'b':
		return '\b'
	case 'f':
		return '\f'
	}
	return c
}
