// Package semantic is the logical document model: pages, their content,
// the per-document resource table, metadata and the outline tree.
package semantic

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrDocumentClosed is returned by mutations after the document was finalized.
	ErrDocumentClosed = errors.New("document is closed")
	// ErrAlreadyClosed is returned when a document is finalized a second time.
	ErrAlreadyClosed  = errors.New("document already closed")
	// ErrUnknownVersion is returned by ParseVersion for unsupported header versions.
	ErrUnknownVersion = errors.New("unknown pdf version")
)

// Version is the PDF header version tag.
type Version string

const (
	Version14 Version = "1.4"
	Version17 Version = "1.7"
	Version20 Version = "2.0"
)

// DefaultVersion is used when no version is requested.
const DefaultVersion = Version20

// ParseVersion accepts "1.4", "1.7" and "2.0" (an optional "PDF-" prefix is ignored).
func ParseVersion(s string) (Version, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "PDF-")
	switch Version(s) {
	case Version14, Version17, Version20:
		return Version(s), nil
	case "":
		return DefaultVersion, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownVersion, s)
}

// State is the lifecycle state of a document.
type State int

const (
	StateOpen State = iota
	StateClosed
	// StatePoisoned marks a document whose close failed; it behaves as closed.
	StatePoisoned
)

func (s State) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	case StatePoisoned:
		return "poisoned"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Rectangle is a PDF rectangle in user space units.
type Rectangle struct {
	LLX, LLY, URX, URY float64
}

func (r Rectangle) Width() float64  { return r.URX - r.LLX }
func (r Rectangle) Height() float64 { return r.URY - r.LLY }

// A4 is the default page size.
var A4 = Rectangle{URX: 595, URY: 842}

// Document is the in-memory representation of a PDF under construction.
// It is not safe for concurrent use.
type Document struct {
	Version   Version
	Pages     []*Page
	Info      Metadata
	Outlines  []*OutlineNode
	Resources *ResourceTable

	state     State
	elementID ElementID
}

// NewDocument returns an empty open document. An empty version selects DefaultVersion.
func NewDocument(v Version) *Document {
	if v == "" {
		v = DefaultVersion
	}
	return &Document{
		Version:   v,
		Resources: NewResourceTable(),
	}
}

func (d *Document) State() State { return d.state }

// CheckOpen reports ErrDocumentClosed unless the document accepts mutations.
func (d *Document) CheckOpen() error {
	if d.state != StateOpen {
		return ErrDocumentClosed
	}
	return nil
}

// Finalize moves the document to Closed. It fails with ErrAlreadyClosed if the
// document already left the Open state.
func (d *Document) Finalize() error {
	if d.state != StateOpen {
		return ErrAlreadyClosed
	}
	d.state = StateClosed
	return nil
}

// Poison marks the document unusable after a fatal close failure.
func (d *Document) Poison() { d.state = StatePoisoned }

// AddPage appends a page with the given media box.
func (d *Document) AddPage(box Rectangle) (*Page, error) {
	if err := d.CheckOpen(); err != nil {
		return nil, err
	}
	if box.Width() <= 0 || box.Height() <= 0 {
		box = A4
	}
	p := &Page{
		Index:     len(d.Pages),
		MediaBox:  box,
		Resources: make(map[string]ResourceKey),
	}
	d.Pages = append(d.Pages, p)
	return p, nil
}

// LastPage returns the most recently added page, or nil.
func (d *Document) LastPage() *Page {
	if len(d.Pages) == 0 {
		return nil
	}
	return d.Pages[len(d.Pages)-1]
}

// SetMetadata overwrites a standard info field or inserts a custom key.
// An empty value leaves the record untouched.
func (d *Document) SetMetadata(field, value string) error {
	if err := d.CheckOpen(); err != nil {
		return err
	}
	d.Info.Set(field, value)
	return nil
}

// AddOutline appends node as the last root outline entry.
func (d *Document) AddOutline(node *OutlineNode) error {
	if err := d.CheckOpen(); err != nil {
		return err
	}
	if node.PageIndex < 0 || node.PageIndex >= len(d.Pages) {
		return fmt.Errorf("outline %q: page index %d out of range", node.Title, node.PageIndex)
	}
	d.Outlines = append(d.Outlines, node)
	return nil
}

// NextElementID allocates a document-unique element identifier.
func (d *Document) NextElementID() ElementID {
	d.elementID++
	return d.elementID
}

// Element returns the element with the given id and the page holding it.
func (d *Document) Element(id ElementID) (Element, *Page, bool) {
	for _, p := range d.Pages {
		for _, el := range p.Elements {
			if el.ID() == id {
				return el, p, true
			}
		}
	}
	return nil, nil, false
}

// Metadata models the /Info dictionary. Empty fields are never written.
type Metadata struct {
	Title        string
	Author       string
	Subject      string
	Creator      string
	Producer     string
	Keywords     string
	Custom       []MetadataEntry
	CreationDate time.Time
}

// MetadataEntry is a custom /Info key kept in insertion order.
type MetadataEntry struct {
	Key   string
	Value string
}

// Set assigns a standard field (case-insensitive) or upserts a custom entry.
func (m *Metadata) Set(field, value string) {
	if value == "" || field == "" {
		return
	}
	switch strings.ToLower(field) {
	case "title":
		m.Title = value
	case "author":
		m.Author = value
	case "subject":
		m.Subject = value
	case "creator":
		m.Creator = value
	case "producer":
		m.Producer = value
	case "keywords":
		m.Keywords = value
	default:
		for i := range m.Custom {
			if m.Custom[i].Key == field {
				m.Custom[i].Value = value
				return
			}
		}
		m.Custom = append(m.Custom, MetadataEntry{Key: field, Value: value})
	}
}

// Get returns a standard or custom field value.
func (m *Metadata) Get(field string) (string, bool) {
	var v string
	switch strings.ToLower(field) {
	case "title":
		v = m.Title
	case "author":
		v = m.Author
	case "subject":
		v = m.Subject
	case "creator":
		v = m.Creator
	case "producer":
		v = m.Producer
	case "keywords":
		v = m.Keywords
	default:
		for _, e := range m.Custom {
			if e.Key == field {
				return e.Value, true
			}
		}
		return "", false
	}
	return v, v != ""
}

// OutlineNode is a bookmark: a title, a destination and children.
type OutlineNode struct {
	Title     string
	PageIndex int
	// Top is the destination's vertical position in user space (/XYZ left top zoom).
	Top      float64
	Children []*OutlineNode
}
