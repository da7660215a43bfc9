// Package barcode validates payloads and encodes them into module matrices
// that the builder draws as Form XObjects.
package barcode

import (
	"errors"
	"fmt"
	"image/color"
	"strings"

	bc "github.com/boombuler/barcode"
	"github.com/boombuler/barcode/code128"
	"github.com/boombuler/barcode/code39"
	"github.com/boombuler/barcode/ean"
	"github.com/boombuler/barcode/qr"

	"github.com/wudi/pdfcompose/ir/semantic"
)

// ErrInvalidPayload is returned when a payload cannot be encoded in the requested symbology.
var ErrInvalidPayload = errors.New("invalid barcode payload")

// Symbology selects a barcode encoding.
type Symbology int

const (
	Code39 Symbology = iota
	Code128
	EAN
	QR
)

func (s Symbology) String() string {
	switch s {
	case Code39:
		return "code39"
	case Code128:
		return "code128"
	case EAN:
		return "ean"
	case QR:
		return "qr"
	}
	return fmt.Sprintf("Symbology(%d)", int(s))
}

// Linear reports whether the symbology is a one-dimensional bar code.
func (s Symbology) Linear() bool { return s != QR }

// ParseSymbology maps names such as "code39", "Code128", "ean13" or "qrcode".
func ParseSymbology(name string) (Symbology, error) {
	switch strings.ToLower(strings.NewReplacer("-", "", "_", "", " ", "").Replace(name)) {
	case "code39", "39", "barcode39":
		return Code39, nil
	case "code128", "128", "barcode128":
		return Code128, nil
	case "ean", "ean8", "ean13", "barcodeean":
		return EAN, nil
	case "qr", "qrcode":
		return QR, nil
	}
	return 0, fmt.Errorf("unknown symbology %q", name)
}

const code39Alphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ -.$/+%"

// Validate checks payload against the character set and length rules of s.
func Validate(s Symbology, payload string) error {
	if payload == "" {
		return invalid(s, payload, "empty payload")
	}
	switch s {
	case Code39:
		for _, r := range payload {
			if !strings.ContainsRune(code39Alphabet, r) {
				return invalid(s, payload, fmt.Sprintf("character %q not in Code 39 set", r))
			}
		}
	case Code128:
		for _, r := range payload {
			if r > 127 {
				return invalid(s, payload, fmt.Sprintf("character %q is not ASCII", r))
			}
		}
	case EAN:
		for _, r := range payload {
			if r < '0' || r > '9' {
				return invalid(s, payload, fmt.Sprintf("character %q is not a digit", r))
			}
		}
		switch len(payload) {
		case 7, 8, 12, 13:
		default:
			return invalid(s, payload, fmt.Sprintf("length %d, want 7, 8, 12 or 13 digits", len(payload)))
		}
	case QR:
		if len(payload) > 2953 {
			return invalid(s, payload, "payload exceeds QR capacity")
		}
	default:
		return invalid(s, payload, "unsupported symbology")
	}
	return nil
}

func invalid(s Symbology, payload, reason string) error {
	return fmt.Errorf("%w: %s %q: %s", ErrInvalidPayload, s, payload, reason)
}

// Symbol is an encoded barcode as a grid of dark/light modules.
type Symbol struct {
	Symbology Symbology
	Payload   string
	Columns   int
	Rows      int
	dark      [][]bool
}

// Dark reports whether the module at column x, row y is dark. Row 0 is the top row.
func (s *Symbol) Dark(x, y int) bool {
	if y < 0 || y >= len(s.dark) || x < 0 || x >= len(s.dark[y]) {
		return false
	}
	return s.dark[y][x]
}

// Encode validates payload and encodes it.
func Encode(s Symbology, payload string) (*Symbol, error) {
	if err := Validate(s, payload); err != nil {
		return nil, err
	}
	var (
		code bc.Barcode
		err  error
	)
	switch s {
	case Code39:
		code, err = code39.Encode(payload, false, false)
	case Code128:
		code, err = code128.Encode(payload)
	case EAN:
		code, err = ean.Encode(payload)
	case QR:
		code, err = qr.Encode(payload, qr.M, qr.Auto)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s %q: %v", ErrInvalidPayload, s, payload, err)
	}

	b := code.Bounds()
	sym := &Symbol{Symbology: s, Payload: payload, Columns: b.Dx(), Rows: b.Dy()}
	if s.Linear() {
		// Linear codes are a single row of modules.
		sym.Rows = 1
	}
	sym.dark = make([][]bool, sym.Rows)
	for y := 0; y < sym.Rows; y++ {
		row := make([]bool, sym.Columns)
		for x := 0; x < sym.Columns; x++ {
			row[x] = isDark(code.At(b.Min.X+x, b.Min.Y+y))
		}
		sym.dark[y] = row
	}
	return sym, nil
}

func isDark(c color.Color) bool {
	r, g, b, _ := c.RGBA()
	return r+g+b < 3*0x8000
}

// Form renders the symbol as a Form XObject of filled rectangles. Each module
// is moduleWidth wide; rows are rowHeight tall.
func (s *Symbol) Form(moduleWidth, rowHeight float64) *semantic.XObject {
	width := float64(s.Columns) * moduleWidth
	height := float64(s.Rows) * rowHeight
	ops := []semantic.Operation{semantic.Op("rg", semantic.Num(0, 0, 0)...)}
	for y := 0; y < s.Rows; y++ {
		top := height - float64(y)*rowHeight
		for x := 0; x < s.Columns; {
			if !s.dark[y][x] {
				x++
				continue
			}
			start := x
			for x < s.Columns && s.dark[y][x] {
				x++
			}
			ops = append(ops, semantic.Op("re", semantic.Num(
				float64(start)*moduleWidth, top-rowHeight,
				float64(x-start)*moduleWidth, rowHeight)...))
		}
	}
	ops = append(ops, semantic.Op("f"))
	return &semantic.XObject{
		Subtype: "Form",
		BBox:    semantic.Rectangle{URX: width, URY: height},
		Content: ops,
	}
}
