package builder

import (
	"fmt"

	"github.com/wudi/pdfcompose/ir/semantic"
	"github.com/wudi/pdfcompose/observability"
)

// ImportPage appends a page of the given size that draws form, a page copied
// from another PDF, over its whole media box. The page counts as full: later
// flowed content starts on a new page, fixed-position content can still be
// placed on it.
func (b *Builder) ImportPage(form *semantic.XObject, box semantic.Rectangle, rotate, source int) (*semantic.Page, error) {
	if err := b.doc.CheckOpen(); err != nil {
		return nil, err
	}
	if form == nil || form.Subtype != "Form" {
		return nil, fmt.Errorf("import page %d: not a form xobject", source)
	}
	p, err := b.doc.AddPage(box)
	if err != nil {
		return nil, err
	}
	p.SetRotation(rotate)
	res := b.doc.Resources.RegisterXObject(form)
	name := p.Bind(res)
	p.Append(
		semantic.Op("q"),
		semantic.Op("Do", semantic.Name(name)),
		semantic.Op("Q"),
	)
	p.Elements = append(p.Elements, &semantic.ImportedPage{
		ElementID: b.doc.NextElementID(),
		Form:      res.Key,
		Source:    source,
	})
	p.Cursor = b.usableHeight(p)
	b.logger.Debug("page imported",
		observability.Int("page", p.Index),
		observability.Int("source", source),
		observability.String("form", res.Name))
	return p, nil
}
