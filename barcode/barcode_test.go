package barcode

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestValidate(t *testing.T) {
	valid := []struct {
		sym     Symbology
		payload string
	}{
		{Code39, "HELLO-42"},
		{Code128, "hello world 42"},
		{EAN, "4006381333931"},
		{EAN, "9638507"},
		{QR, "https://example.com/?q=1"},
	}
	for _, tc := range valid {
		require.NoError(t, Validate(tc.sym, tc.payload), "%s %q", tc.sym, tc.payload)
	}

	invalidCases := []struct {
		sym     Symbology
		payload string
	}{
		{EAN, "12A456"},
		{EAN, "12345"},
		{Code39, "lower"},
		{Code39, "A*B"},
		{Code128, "naïve"},
		{QR, ""},
	}
	for _, tc := range invalidCases {
		err := Validate(tc.sym, tc.payload)
		if !errors.Is(err, ErrInvalidPayload) {
			t.Fatalf("%s %q: expected ErrInvalidPayload, got %v", tc.sym, tc.payload, err)
		}
	}
}

func TestEncodeLinear(t *testing.T) {
	sym, err := Encode(EAN, "4006381333931")
	require.NoError(t, err)
	require.Equal(t, 1, sym.Rows)
	// EAN-13 is 95 modules wide, starting and ending with a guard bar.
	require.Equal(t, 95, sym.Columns)
	require.True(t, sym.Dark(0, 0))
	require.False(t, sym.Dark(1, 0))
	require.True(t, sym.Dark(94, 0))
}

func TestEncodeRejectsBadChecksum(t *testing.T) {
	_, err := Encode(EAN, "4006381333932")
	require.ErrorIs(t, err, ErrInvalidPayload)
}

func TestEncodeQRIsSquare(t *testing.T) {
	sym, err := Encode(QR, "HELLO")
	require.NoError(t, err)
	require.Equal(t, sym.Columns, sym.Rows)
	require.Equal(t, 21, sym.Columns)
	// finder pattern corner
	require.True(t, sym.Dark(0, 0))
}

func TestFormGeometry(t *testing.T) {
	sym, err := Encode(Code128, "ABC")
	require.NoError(t, err)
	form := sym.Form(1, 50)
	require.Equal(t, "Form", form.Subtype)
	require.Equal(t, float64(sym.Columns), form.BBox.URX)
	require.Equal(t, 50.0, form.BBox.URY)
	require.Equal(t, "rg", form.Content[0].Operator)
	require.Equal(t, "f", form.Content[len(form.Content)-1].Operator)

	bars := 0
	for _, op := range form.Content {
		if op.Operator == "re" {
			bars++
		}
	}
	require.Greater(t, bars, 5)
}

func TestParseSymbology(t *testing.T) {
	for in, want := range map[string]Symbology{"code39": Code39, "Code-128": Code128, "EAN13": EAN, "qrcode": QR} {
		got, err := ParseSymbology(in)
		require.NoError(t, err)
		require.Equal(t, want, got)
	}
	_, err := ParseSymbology("pdf417")
	require.Error(t, err)
}
