package builder

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"
	_ "image/png" // Register decoder
	"os"

	"github.com/wudi/pdfcompose/ir/semantic"
	"github.com/wudi/pdfcompose/observability"
)

// ImageFromFile loads an image file. JPEG data is embedded as is; other formats
// are decoded and converted with FromImage.
func ImageFromFile(path string) (*semantic.XObject, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if x, err := JPEG(data); err == nil {
		return x, nil
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return FromImage(img), nil
}

// JPEG wraps baseline JPEG data in an image XObject without re-encoding it.
func JPEG(data []byte) (*semantic.XObject, error) {
	cfg, err := jpeg.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	cs := "DeviceRGB"
	switch cfg.ColorModel {
	case color.GrayModel:
		cs = "DeviceGray"
	case color.CMYKModel:
		cs = "DeviceCMYK"
	}
	return &semantic.XObject{
		Subtype:          "Image",
		Width:            cfg.Width,
		Height:           cfg.Height,
		ColorSpace:       cs,
		BitsPerComponent: 8,
		Filter:           "DCTDecode",
		Data:             append([]byte(nil), data...),
	}, nil
}

// FromImage converts img to 8-bit DeviceRGB samples. Transparency becomes a
// DeviceGray soft mask.
func FromImage(src image.Image) *semantic.XObject {
	bounds := src.Bounds()
	w, h := bounds.Dx(), bounds.Dy()

	nrgba := image.NewNRGBA(image.Rect(0, 0, w, h))
	draw.Draw(nrgba, nrgba.Bounds(), src, bounds.Min, draw.Src)

	pixels := make([]byte, 0, w*h*3)
	alpha := make([]byte, 0, w*h)
	hasAlpha := false
	for i := 0; i < w*h; i++ {
		px := nrgba.Pix[i*4 : i*4+4]
		pixels = append(pixels, px[0], px[1], px[2])
		alpha = append(alpha, px[3])
		if px[3] < 255 {
			hasAlpha = true
		}
	}

	img := &semantic.XObject{
		Subtype:          "Image",
		Width:            w,
		Height:           h,
		ColorSpace:       "DeviceRGB",
		BitsPerComponent: 8,
		Data:             pixels,
	}
	if hasAlpha {
		img.SMask = &semantic.XObject{
			Subtype:          "Image",
			Width:            w,
			Height:           h,
			ColorSpace:       "DeviceGray",
			BitsPerComponent: 8,
			Data:             alpha,
		}
	}
	return img
}

// AddImage draws img in the box (x, y, width, height) of page. A zero width or
// height keeps the image's pixel size in points.
func (b *Builder) AddImage(page *semantic.Page, img *semantic.XObject, x, y, width, height float64) (semantic.ElementID, error) {
	if err := b.doc.CheckOpen(); err != nil {
		return 0, err
	}
	if img == nil || img.Subtype != "Image" || img.Width <= 0 || img.Height <= 0 {
		return 0, fmt.Errorf("add image: not a raster image")
	}
	if page == nil {
		var err error
		if page, err = b.currentPage(); err != nil {
			return 0, err
		}
	}
	if width <= 0 {
		width = float64(img.Width)
	}
	if height <= 0 {
		height = float64(img.Height)
	}
	res := b.doc.Resources.RegisterXObject(img)
	name := page.Bind(res)
	page.Append(
		semantic.Op("q"),
		semantic.Op("cm", semantic.Num(width, 0, 0, height, x, y)...),
		semantic.Op("Do", semantic.Name(name)),
		semantic.Op("Q"),
	)
	el := &semantic.Image{
		ElementID: b.doc.NextElementID(),
		XObject:   res.Key,
		X:         x,
		Y:         y,
		Width:     width,
		Height:    height,
	}
	page.Elements = append(page.Elements, el)
	b.logger.Debug("image added", observability.Int("page", page.Index), observability.String("xobject", res.Name))
	return el.ElementID, nil
}
