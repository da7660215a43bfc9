package document

import (
	"errors"

	"github.com/wudi/pdfcompose/barcode"
	"github.com/wudi/pdfcompose/builder"
	"github.com/wudi/pdfcompose/ir/semantic"
	"github.com/wudi/pdfcompose/security"
)

var (
	ErrNotInitialized     = errors.New("document builder: not initialized")
	ErrAlreadyInitialized = errors.New("document builder: already initialized")
)

// ParagraphStyle holds the paragraph-level settings of AddStyledParagraph.
type ParagraphStyle struct {
	FontName string
	FontSize float64
	// Rotation in degrees.
	Rotation float64
	Border   *builder.Border
}

// TextStyle styles a single run created by CreateStyledText.
type TextStyle struct {
	Color           *semantic.RGB
	BackgroundColor *semantic.RGB
	FontFamily      string
	FontSize        float64
	Bold            bool
	Italic          bool
	Underline       bool
	LineThrough     bool
}

// DocumentBuilder is a call-per-feature facade over Session: Init opens the
// target, the Add methods flow content and GenerateDocument writes the file.
type DocumentBuilder struct {
	target  string
	version semantic.Version
	opts    []Option
	session *Session
}

// NewDocumentBuilder prepares a builder for target. Nothing is opened until Init.
func NewDocumentBuilder(target string, opts ...Option) *DocumentBuilder {
	return &DocumentBuilder{target: target, version: semantic.DefaultVersion, opts: opts}
}

// SetVersion selects the header version; it has no effect after Init.
func (d *DocumentBuilder) SetVersion(v semantic.Version) { d.version = v }

func (d *DocumentBuilder) Init() error { return d.init(d.opts) }

// InitWithPassword is Init with AES-256 encryption that allows printing.
func (d *DocumentBuilder) InitWithPassword(user, owner string) error {
	opts := append(append([]Option(nil), d.opts...), WithPassword(user, owner, security.PermPrint))
	return d.init(opts)
}

func (d *DocumentBuilder) init(opts []Option) error {
	if d.session != nil {
		return ErrAlreadyInitialized
	}
	s, err := Create(d.target, d.version, opts...)
	if err != nil {
		return err
	}
	d.session = s
	return nil
}

// Session exposes the underlying session, or nil before Init.
func (d *DocumentBuilder) Session() *Session { return d.session }

// GenerateDocument writes the file. Calling it twice returns semantic.ErrAlreadyClosed.
func (d *DocumentBuilder) GenerateDocument() error {
	if d.session == nil {
		return ErrNotInitialized
	}
	return d.session.Close()
}

// Discard drops an unfinished document and removes its target.
func (d *DocumentBuilder) Discard() {
	if d.session != nil {
		d.session.Release()
	}
}

func (d *DocumentBuilder) builder() (*builder.Builder, error) {
	if d.session == nil {
		return nil, ErrNotInitialized
	}
	return d.session.Builder(), nil
}

func (d *DocumentBuilder) AddTitle(text string) error {
	b, err := d.builder()
	if err != nil {
		return err
	}
	_, err = b.AddTitle(text)
	return err
}

func (d *DocumentBuilder) AddParagraph(text string) error {
	b, err := d.builder()
	if err != nil {
		return err
	}
	_, err = b.Append(text, builder.Style{})
	return err
}

func (d *DocumentBuilder) AddStyledParagraph(text string, style ParagraphStyle) error {
	b, err := d.builder()
	if err != nil {
		return err
	}
	_, err = b.Append(text, builder.Style{
		FontFamily: style.FontName,
		FontSize:   style.FontSize,
		Rotation:   style.Rotation,
		Border:     style.Border,
	})
	return err
}

// CreateStyledText returns a run for AddTextParagraph.
func (d *DocumentBuilder) CreateStyledText(text string, style TextStyle) builder.Run {
	return builder.Run{Text: text, Style: builder.Style{
		FontFamily:  style.FontFamily,
		FontSize:    style.FontSize,
		Color:       style.Color,
		Background:  style.BackgroundColor,
		Bold:        style.Bold,
		Italic:      style.Italic,
		Underline:   style.Underline,
		LineThrough: style.LineThrough,
	}}
}

// AddTextParagraph flows one paragraph made of styled runs.
func (d *DocumentBuilder) AddTextParagraph(runs ...builder.Run) error {
	b, err := d.builder()
	if err != nil {
		return err
	}
	_, err = b.AddRuns(nil, runs, builder.Style{})
	return err
}

func (d *DocumentBuilder) AddBarcode39(payload string) error {
	return d.addBarcode(barcode.Code39, payload)
}

func (d *DocumentBuilder) AddBarcode128(payload string) error {
	return d.addBarcode(barcode.Code128, payload)
}

func (d *DocumentBuilder) AddBarcodeEAN(payload string) error {
	return d.addBarcode(barcode.EAN, payload)
}

// AddQRCode draws the symbol followed by a paragraph holding the payload.
func (d *DocumentBuilder) AddQRCode(payload string) error {
	if err := d.addBarcode(barcode.QR, payload); err != nil {
		return err
	}
	return d.AddParagraph(payload)
}

func (d *DocumentBuilder) addBarcode(sym barcode.Symbology, payload string) error {
	b, err := d.builder()
	if err != nil {
		return err
	}
	_, err = b.AddBarcode(nil, sym, payload)
	return err
}

// AddMetadata sets the standard info fields; empty values are skipped.
func (d *DocumentBuilder) AddMetadata(title, subject, author, creator string) error {
	b, err := d.builder()
	if err != nil {
		return err
	}
	for _, f := range [][2]string{{"title", title}, {"subject", subject}, {"author", author}, {"creator", creator}} {
		if err := b.SetMetadata(f[0], f[1]); err != nil {
			return err
		}
	}
	return nil
}

func (d *DocumentBuilder) AddCustomMetadata(key, value string) error {
	b, err := d.builder()
	if err != nil {
		return err
	}
	return b.SetMetadata(key, value)
}

func (d *DocumentBuilder) AddWatermark(text string) error {
	b, err := d.builder()
	if err != nil {
		return err
	}
	return b.AddWatermark(text)
}

func (d *DocumentBuilder) AddBookmark(title string) error {
	b, err := d.builder()
	if err != nil {
		return err
	}
	return b.AddBookmark(title)
}

func (d *DocumentBuilder) AddMarkdown(source string) error {
	if d.session == nil {
		return ErrNotInitialized
	}
	return d.session.Layout().RenderMarkdown(source)
}

func (d *DocumentBuilder) AddHTML(source string) error {
	if d.session == nil {
		return ErrNotInitialized
	}
	return d.session.Layout().RenderHTML(source)
}

func (d *DocumentBuilder) AddLaTeX(latex string) error {
	if d.session == nil {
		return ErrNotInitialized
	}
	return d.session.Layout().RenderLaTeX(latex)
}
