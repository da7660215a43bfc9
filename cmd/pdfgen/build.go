package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/wudi/pdfcompose/barcode"
	"github.com/wudi/pdfcompose/builder"
	"github.com/wudi/pdfcompose/document"
	"github.com/wudi/pdfcompose/ir/semantic"
	"github.com/wudi/pdfcompose/security"
)

// stringList collects a repeatable flag.
type stringList []string

func (s *stringList) String() string     { return strings.Join(*s, ",") }
func (s *stringList) Set(v string) error { *s = append(*s, v); return nil }

type buildOptions struct {
	out           string
	version       string
	title         string
	author        string
	subject       string
	keywords      string
	meta          stringList
	texts         stringList
	markdown      string
	html          string
	latex         string
	code39        stringList
	code128       stringList
	ean           stringList
	qr            stringList
	images        stringList
	bookmark      string
	watermark     string
	password      string
	ownerPassword string
	allow         string
	source        string
	sourcePwd     string
	compression   int
	noXMP         bool
	log           logFlags
}

func parseBuildFlags(args []string) (buildOptions, error) {
	var o buildOptions
	fs := flag.NewFlagSet("build", flag.ContinueOnError)
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage: pdfgen build -out <pdf> [flags]\n")
		fs.PrintDefaults()
	}
	fs.StringVar(&o.out, "out", "", "Output PDF path (required)")
	fs.StringVar(&o.version, "version", string(semantic.DefaultVersion), "PDF version: 1.4, 1.7 or 2.0")
	fs.StringVar(&o.title, "title", "", "Title paragraph and document title")
	fs.StringVar(&o.author, "author", "", "Document author")
	fs.StringVar(&o.subject, "subject", "", "Document subject")
	fs.StringVar(&o.keywords, "keywords", "", "Document keywords")
	fs.Var(&o.meta, "meta", "Custom metadata key=value (repeatable)")
	fs.Var(&o.texts, "text", "Paragraph text (repeatable)")
	fs.StringVar(&o.markdown, "markdown", "", "Markdown file to render")
	fs.StringVar(&o.html, "html", "", "HTML file to render")
	fs.StringVar(&o.latex, "latex", "", "LaTeX math expression to render")
	fs.Var(&o.code39, "code39", "Code 39 payload (repeatable)")
	fs.Var(&o.code128, "code128", "Code 128 payload (repeatable)")
	fs.Var(&o.ean, "ean", "EAN-8/EAN-13 payload (repeatable)")
	fs.Var(&o.qr, "qr", "QR code payload, printed below the symbol (repeatable)")
	fs.Var(&o.images, "image", "Image file, optionally path:x,y,w,h (repeatable)")
	fs.StringVar(&o.bookmark, "bookmark", "", "Bookmark pointing at the last page")
	fs.StringVar(&o.watermark, "watermark", "", "Watermark text drawn on every page")
	fs.StringVar(&o.password, "password", "", "User password; enables AES-256 encryption")
	fs.StringVar(&o.ownerPassword, "owner-password", "", "Owner password (random when empty)")
	fs.StringVar(&o.allow, "allow", "print", "Comma separated permissions: print,modify,copy,annotate,fill,extract,assemble,print-hq")
	fs.StringVar(&o.source, "source", "", "Existing PDF whose pages are copied first")
	fs.StringVar(&o.sourcePwd, "source-password", "", "Password of the source PDF")
	fs.IntVar(&o.compression, "compress", 6, "Flate level for content streams (0 disables)")
	fs.BoolVar(&o.noXMP, "no-xmp", false, "Omit the XMP metadata stream")
	o.log.register(fs)
	if err := fs.Parse(args); err != nil {
		return o, err
	}
	if o.out == "" {
		fs.Usage()
		return o, errors.New("missing -out")
	}
	return o, nil
}

func runBuild(args []string) error {
	o, err := parseBuildFlags(args)
	if err != nil {
		return err
	}
	version, err := semantic.ParseVersion(o.version)
	if err != nil {
		return err
	}
	log, err := o.log.logger()
	if err != nil {
		return err
	}
	opts := []document.Option{document.WithLogger(log), document.WithCompression(o.compression)}
	if o.noXMP {
		opts = append(opts, document.WithoutXMP())
	}
	if o.source != "" {
		opts = append(opts, document.WithSource(o.source, o.sourcePwd))
	}
	if o.password != "" {
		perms, err := parsePermissions(o.allow)
		if err != nil {
			return err
		}
		opts = append(opts, document.WithPassword(o.password, o.ownerPassword, perms))
	}
	return document.With(o.out, version, func(s *document.Session) error {
		return compose(s, o)
	}, opts...)
}

func compose(s *document.Session, o buildOptions) error {
	b := s.Builder()
	if o.title != "" {
		if _, err := b.AddTitle(o.title); err != nil {
			return err
		}
	}
	for _, f := range [][2]string{{"author", o.author}, {"subject", o.subject}, {"keywords", o.keywords}} {
		if err := b.SetMetadata(f[0], f[1]); err != nil {
			return err
		}
	}
	for _, kv := range o.meta {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || key == "" {
			return fmt.Errorf("-meta %q: want key=value", kv)
		}
		if err := b.SetMetadata(key, value); err != nil {
			return err
		}
	}
	if o.markdown != "" {
		src, err := os.ReadFile(o.markdown)
		if err != nil {
			return err
		}
		if err := s.Layout().RenderMarkdown(string(src)); err != nil {
			return fmt.Errorf("render %s: %w", o.markdown, err)
		}
	}
	if o.html != "" {
		src, err := os.ReadFile(o.html)
		if err != nil {
			return err
		}
		if err := s.Layout().RenderHTML(string(src)); err != nil {
			return fmt.Errorf("render %s: %w", o.html, err)
		}
	}
	if o.latex != "" {
		if err := s.Layout().RenderLaTeX(o.latex); err != nil {
			return err
		}
	}
	for _, t := range o.texts {
		if _, err := b.Append(t, builder.Style{}); err != nil {
			return err
		}
	}
	codes := []struct {
		sym      barcode.Symbology
		payloads []string
	}{
		{barcode.Code39, o.code39},
		{barcode.Code128, o.code128},
		{barcode.EAN, o.ean},
		{barcode.QR, o.qr},
	}
	for _, c := range codes {
		for _, p := range c.payloads {
			if _, err := b.AddBarcode(nil, c.sym, p); err != nil {
				return err
			}
			if c.sym == barcode.QR {
				if _, err := b.Append(p, builder.Style{}); err != nil {
					return err
				}
			}
		}
	}
	for _, arg := range o.images {
		if err := addImage(b, arg); err != nil {
			return err
		}
	}
	if o.bookmark != "" {
		if err := b.AddBookmark(o.bookmark); err != nil {
			return err
		}
	}
	if o.watermark != "" {
		if err := b.AddWatermark(o.watermark); err != nil {
			return err
		}
	}
	return nil
}

// addImage handles "path" and "path:x,y,w,h".
func addImage(b *builder.Builder, arg string) error {
	path, box := arg, []float64{36, 36, 0, 0}
	if i := strings.LastIndexByte(arg, ':'); i > 0 && strings.Count(arg[i+1:], ",") == 3 {
		path = arg[:i]
		for j, part := range strings.Split(arg[i+1:], ",") {
			v, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
			if err != nil {
				return fmt.Errorf("-image %q: %w", arg, err)
			}
			box[j] = v
		}
	}
	img, err := builder.ImageFromFile(path)
	if err != nil {
		return err
	}
	_, err = b.AddImage(nil, img, box[0], box[1], box[2], box[3])
	return err
}

var permissionNames = map[string]security.Permission{
	"print":    security.PermPrint,
	"modify":   security.PermModify,
	"copy":     security.PermCopy,
	"annotate": security.PermAnnotate,
	"fill":     security.PermFillForms,
	"extract":  security.PermExtract,
	"assemble": security.PermAssemble,
	"print-hq": security.PermPrintHighQuality,
}

func parsePermissions(list string) (security.Permission, error) {
	var p security.Permission
	for _, name := range strings.Split(list, ",") {
		name = strings.ToLower(strings.TrimSpace(name))
		if name == "" || name == "none" {
			continue
		}
		bit, ok := permissionNames[name]
		if !ok {
			return 0, fmt.Errorf("unknown permission %q", name)
		}
		p |= bit
	}
	return p, nil
}
