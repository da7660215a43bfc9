package writer

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"time"

	"github.com/wudi/pdfcompose/ir/raw"
	"github.com/wudi/pdfcompose/ir/semantic"
)

func infoDict(m semantic.Metadata, producer string) *raw.DictObj {
	d := raw.Dict()
	for _, f := range []struct{ key, val string }{
		{"Title", m.Title},
		{"Author", m.Author},
		{"Subject", m.Subject},
		{"Keywords", m.Keywords},
		{"Creator", m.Creator},
		{"Producer", producer},
	} {
		if f.val != "" {
			d.Set(f.key, textString(f.val))
		}
	}
	if !m.CreationDate.IsZero() {
		date := raw.Text(pdfDate(m.CreationDate))
		d.Set("CreationDate", date)
		d.Set("ModDate", date)
	}
	for _, e := range m.Custom {
		if _, taken := d.Get(e.Key); !taken {
			d.Set(e.Key, textString(e.Value))
		}
	}
	return d
}

// pdfDate formats t as D:YYYYMMDDHHmmSSOHH'mm'.
func pdfDate(t time.Time) string {
	s := "D:" + t.Format("20060102150405")
	_, offset := t.Zone()
	if offset == 0 {
		return s + "Z"
	}
	sign := '+'
	if offset < 0 {
		sign, offset = '-', -offset
	}
	return fmt.Sprintf("%s%c%02d'%02d'", s, sign, offset/3600, offset%3600/60)
}

func xmlText(s string) string {
	var b bytes.Buffer
	xml.EscapeText(&b, []byte(s))
	return b.String()
}

// buildXMP renders the info fields as an XMP packet.
func buildXMP(m semantic.Metadata, producer string) []byte {
	var b bytes.Buffer
	b.WriteString("<?xpacket begin=\"\xEF\xBB\xBF\" id=\"W5M0MpCehiHzreSzNTczkc9d\"?>\n")
	b.WriteString("<x:xmpmeta xmlns:x=\"adobe:ns:meta/\">\n")
	b.WriteString("<rdf:RDF xmlns:rdf=\"http://www.w3.org/1999/02/22-rdf-syntax-ns#\">\n")
	b.WriteString("<rdf:Description rdf:about=\"\"\n")
	b.WriteString(" xmlns:dc=\"http://purl.org/dc/elements/1.1/\"\n")
	b.WriteString(" xmlns:xmp=\"http://ns.adobe.com/xap/1.0/\"\n")
	b.WriteString(" xmlns:pdf=\"http://ns.adobe.com/pdf/1.3/\">\n")
	if m.Title != "" {
		fmt.Fprintf(&b, "<dc:title><rdf:Alt><rdf:li xml:lang=\"x-default\">%s</rdf:li></rdf:Alt></dc:title>\n", xmlText(m.Title))
	}
	if m.Author != "" {
		fmt.Fprintf(&b, "<dc:creator><rdf:Seq><rdf:li>%s</rdf:li></rdf:Seq></dc:creator>\n", xmlText(m.Author))
	}
	if m.Subject != "" {
		fmt.Fprintf(&b, "<dc:description><rdf:Alt><rdf:li xml:lang=\"x-default\">%s</rdf:li></rdf:Alt></dc:description>\n", xmlText(m.Subject))
	}
	if m.Keywords != "" {
		fmt.Fprintf(&b, "<pdf:Keywords>%s</pdf:Keywords>\n", xmlText(m.Keywords))
	}
	if m.Creator != "" {
		fmt.Fprintf(&b, "<xmp:CreatorTool>%s</xmp:CreatorTool>\n", xmlText(m.Creator))
	}
	fmt.Fprintf(&b, "<pdf:Producer>%s</pdf:Producer>\n", xmlText(producer))
	if !m.CreationDate.IsZero() {
		fmt.Fprintf(&b, "<xmp:CreateDate>%s</xmp:CreateDate>\n", m.CreationDate.Format(time.RFC3339))
	}
	b.WriteString("</rdf:Description>\n</rdf:RDF>\n</x:xmpmeta>\n<?xpacket end=\"w\"?>")
	return b.Bytes()
}
