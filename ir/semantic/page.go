package semantic

// ElementID identifies an element added to a document.
type ElementID int

// Element is a placed piece of content. Elements are immutable once added.
type Element interface {
	ID() ElementID
	Kind() string
}

// RGB is a DeviceRGB color with components in [0,1].
type RGB struct{ R, G, B float64 }

var Black = RGB{}

// Page holds the content streams and resource bindings of one page.
type Page struct {
	Index    int
	MediaBox Rectangle
	Rotate   int // degrees: 0/90/180/270
	Contents []ContentStream
	// Overlays are emitted after Contents, so later page content never covers them.
	Overlays []ContentStream
	// Resources maps the page-local resource name (F1, Im2, GS1) to the table key.
	Resources map[string]ResourceKey
	Elements  []Element
	// Cursor is the distance from the top edge consumed by flowed content.
	Cursor float64
}

// Bind makes r available to the page's content under its resource name.
func (p *Page) Bind(r *Resource) string {
	if p.Resources == nil {
		p.Resources = make(map[string]ResourceKey)
	}
	p.Resources[r.Name] = r.Key
	return r.Name
}

// Append adds operations to the page's last content stream, creating one if needed.
func (p *Page) Append(ops ...Operation) {
	if len(p.Contents) == 0 {
		p.Contents = append(p.Contents, ContentStream{})
	}
	last := &p.Contents[len(p.Contents)-1]
	last.Operations = append(last.Operations, ops...)
}

// AppendStream adds a separate content stream after the existing ones.
func (p *Page) AppendStream(ops ...Operation) {
	p.Contents = append(p.Contents, ContentStream{Operations: ops})
}

// AddOverlay adds a content stream drawn after all regular content.
func (p *Page) AddOverlay(ops ...Operation) {
	p.Overlays = append(p.Overlays, ContentStream{Operations: ops})
}

// Streams returns the content streams in drawing order.
func (p *Page) Streams() []ContentStream {
	if len(p.Overlays) == 0 {
		return p.Contents
	}
	all := make([]ContentStream, 0, len(p.Contents)+len(p.Overlays))
	all = append(all, p.Contents...)
	return append(all, p.Overlays...)
}

// PrependStream adds a content stream before the existing ones.
func (p *Page) PrependStream(ops ...Operation) {
	p.Contents = append([]ContentStream{{Operations: ops}}, p.Contents...)
}

// SetRotation normalizes deg to one of 0, 90, 180 or 270.
func (p *Page) SetRotation(deg int) {
	r := deg % 360
	if r < 0 {
		r += 360
	}
	p.Rotate = (r / 90) * 90
}

// Paragraph is a block of text laid out on one page.
type Paragraph struct {
	ElementID   ElementID
	Text        string
	Font        ResourceKey
	FontName    string
	Size        float64
	Color       RGB
	Background  *RGB
	Bold        bool
	Italic      bool
	Underline   bool
	LineThrough bool
	// Rotation is in radians, counter-clockwise.
	Rotation float64
	Fixed    bool
	X, Y     float64
	Width    float64
	Lines    []string
	// Continues is set when the paragraph is the tail of one split across pages.
	Continues ElementID
}

func (p *Paragraph) ID() ElementID { return p.ElementID }
func (p *Paragraph) Kind() string  { return "paragraph" }

// Barcode is a placed barcode symbol drawn from a shared Form XObject.
type Barcode struct {
	ElementID   ElementID
	Symbology   string
	Payload     string
	Form        ResourceKey
	X, Y        float64
	Width       float64
	Height      float64
	ModuleWidth float64
	BarHeight   float64
}

func (b *Barcode) ID() ElementID { return b.ElementID }
func (b *Barcode) Kind() string  { return "barcode" }

// Image is a placed raster image.
type Image struct {
	ElementID     ElementID
	XObject       ResourceKey
	X, Y          float64
	Width, Height float64
}

func (i *Image) ID() ElementID { return i.ElementID }
func (i *Image) Kind() string  { return "image" }

// Watermark is the per-page record of a watermark drawing.
type Watermark struct {
	ElementID ElementID
	Text      string
	Form      ResourceKey
	State     ResourceKey
}

func (w *Watermark) ID() ElementID { return w.ElementID }
func (w *Watermark) Kind() string  { return "watermark" }

// ImportedPage is a page copied from a source document and drawn as a form.
type ImportedPage struct {
	ElementID ElementID
	Form      ResourceKey
	Source    int
}

func (i *ImportedPage) ID() ElementID { return i.ElementID }
func (i *ImportedPage) Kind() string  { return "imported-page" }
