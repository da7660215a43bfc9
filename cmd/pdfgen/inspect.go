package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/wudi/pdfcompose/extractor"
	"github.com/wudi/pdfcompose/observability"
	"github.com/wudi/pdfcompose/parser"
)

type featureSelection struct {
	Text      bool
	Metadata  bool
	Bookmarks bool
	Fonts     bool
	Images    bool
}

func (f featureSelection) none() bool {
	return !f.Text && !f.Metadata && !f.Bookmarks && !f.Fonts && !f.Images
}

type inspectOptions struct {
	pdfPath  string
	outDir   string
	password string
	features featureSelection
	log      logFlags
}

func parseInspectFlags(args []string) (inspectOptions, error) {
	var o inspectOptions
	fs := flag.NewFlagSet("inspect", flag.ContinueOnError)
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage: pdfgen inspect [flags] <pdf>\n")
		fs.PrintDefaults()
	}
	fs.BoolVar(&o.features.Text, "text", false, "Extract text per page")
	fs.BoolVar(&o.features.Metadata, "metadata", false, "Dump document metadata")
	fs.BoolVar(&o.features.Bookmarks, "bookmarks", false, "Dump document outlines")
	fs.BoolVar(&o.features.Fonts, "fonts", false, "Report font usage across pages")
	fs.BoolVar(&o.features.Images, "images", false, "Write image XObjects to -out")
	fs.StringVar(&o.outDir, "out", "inspect_output", "Directory for extracted images")
	fs.StringVar(&o.password, "password", "", "Password to open encrypted PDFs")
	o.log.register(fs)
	if err := fs.Parse(args); err != nil {
		return o, err
	}
	if fs.NArg() != 1 {
		fs.Usage()
		return o, errors.New("missing pdf path")
	}
	o.pdfPath = fs.Arg(0)
	if o.features.none() {
		o.features = featureSelection{Text: true, Metadata: true, Bookmarks: true, Fonts: true}
	}
	return o, nil
}

func runInspect(args []string) error {
	o, err := parseInspectFlags(args)
	if err != nil {
		return err
	}
	log, err := o.log.logger()
	if err != nil {
		return err
	}
	return inspect(context.Background(), os.Stdout, o, log)
}

func inspect(ctx context.Context, w io.Writer, o inspectOptions, log observability.Logger) error {
	data, err := os.ReadFile(o.pdfPath)
	if err != nil {
		return fmt.Errorf("read pdf: %w", err)
	}
	doc, err := parser.Parse(ctx, data, parser.Config{Password: o.password, Logger: log})
	if err != nil {
		return fmt.Errorf("parse pdf: %w", err)
	}
	ext, err := extractor.New(doc)
	if err != nil {
		return fmt.Errorf("new extractor: %w", err)
	}

	if o.features.Metadata {
		meta := ext.ExtractMetadata(ctx)
		if err := emitSection(w, "metadata", metadataSummary(meta)); err != nil {
			return err
		}
	}
	if o.features.Bookmarks {
		if err := emitSection(w, "bookmarks", ext.ExtractBookmarks()); err != nil {
			return err
		}
	}
	if o.features.Fonts {
		if err := emitSection(w, "fonts", ext.ExtractFonts()); err != nil {
			return err
		}
	}
	if o.features.Text {
		pages, err := ext.ExtractText(ctx)
		if err != nil {
			return fmt.Errorf("extract text: %w", err)
		}
		if err := emitSection(w, "text", pages); err != nil {
			return err
		}
	}
	if o.features.Images {
		assets, err := ext.ExtractImages(ctx)
		if err != nil {
			return fmt.Errorf("extract images: %w", err)
		}
		summaries, err := writeImages(o.outDir, assets)
		if err != nil {
			return err
		}
		if err := emitSection(w, "images", summaries); err != nil {
			return err
		}
	}
	return nil
}

type metadata struct {
	Version   string            `json:"version"`
	Title     string            `json:"title,omitempty"`
	Author    string            `json:"author,omitempty"`
	Subject   string            `json:"subject,omitempty"`
	Keywords  string            `json:"keywords,omitempty"`
	Creator   string            `json:"creator,omitempty"`
	Producer  string            `json:"producer,omitempty"`
	Custom    map[string]string `json:"custom,omitempty"`
	Encrypted bool              `json:"encrypted"`
	Pages     int               `json:"pages"`
	XMPBytes  int               `json:"xmpBytes"`
}

func metadataSummary(m extractor.Metadata) metadata {
	return metadata{
		Version:   m.Version,
		Title:     m.Title,
		Author:    m.Author,
		Subject:   m.Subject,
		Keywords:  m.Keywords,
		Creator:   m.Creator,
		Producer:  m.Producer,
		Custom:    m.Custom,
		Encrypted: m.Encrypted,
		Pages:     m.PageCount,
		XMPBytes:  len(m.XMP),
	}
}

type imageSummary struct {
	Page         int    `json:"page"`
	ResourceName string `json:"resource"`
	Width        int    `json:"width"`
	Height       int    `json:"height"`
	Bits         int    `json:"bitsPerComponent"`
	ColorSpace   string `json:"colorSpace"`
	Path         string `json:"path"`
}

// writeImages stores JPEG data as is and converts everything else to PNG.
func writeImages(dir string, assets []extractor.ImageAsset) ([]imageSummary, error) {
	if len(assets) == 0 {
		return nil, nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create image dir: %w", err)
	}
	summaries := make([]imageSummary, 0, len(assets))
	for idx, asset := range assets {
		name := asset.ResourceName
		if name == "" {
			name = fmt.Sprintf("img_%d", idx+1)
		}
		data, ext := asset.Data, "jpg"
		if !isJPEG(asset.Filters) {
			png, err := asset.ToPNG()
			if err != nil {
				return nil, fmt.Errorf("convert image %s on page %d: %w", name, asset.Page+1, err)
			}
			data, ext = png, "png"
		}
		path := filepath.Join(dir, fmt.Sprintf("page-%03d-%s.%s", asset.Page+1, safeName(name), ext))
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return nil, fmt.Errorf("write image %q: %w", path, err)
		}
		summaries = append(summaries, imageSummary{
			Page:         asset.Page,
			ResourceName: asset.ResourceName,
			Width:        asset.Width,
			Height:       asset.Height,
			Bits:         asset.BitsPerComponent,
			ColorSpace:   asset.ColorSpace,
			Path:         path,
		})
	}
	return summaries, nil
}

func isJPEG(filters []string) bool {
	return len(filters) == 1 && filters[0] == "DCTDecode"
}

func emitSection(w io.Writer, name string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", name, err)
	}
	_, err = fmt.Fprintf(w, "== %s ==\n%s\n\n", name, data)
	return err
}

func safeName(name string) string {
	if name == "" {
		return "unnamed"
	}
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|':
			return '_'
		}
		return r
	}, name)
}
