package extractor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"

	"github.com/wudi/pdfcompose/filters"
	"github.com/wudi/pdfcompose/ir/raw"
)

// ImageAsset is an image XObject found in a page's resources. Data has every
// non-image filter removed; Filters lists what remains (for example DCTDecode).
type ImageAsset struct {
	Page             int
	ResourceName     string
	Width            int
	Height           int
	BitsPerComponent int
	ColorSpace       string
	Filters          []string
	Data             []byte
}

// ExtractImages walks page resources and returns the image XObjects.
func (e *Extractor) ExtractImages(ctx context.Context) ([]ImageAsset, error) {
	var assets []ImageAsset
	for idx, page := range e.pages {
		xobjects := e.resources(page, "XObject")
		if xobjects == nil {
			continue
		}
		for _, name := range xobjects.Keys() {
			st, ok := e.raw.Resolve(xobjects.KV[name]).(*raw.StreamObj)
			if !ok {
				continue
			}
			if sub, _ := st.Dict.Name("Subtype"); sub != "Image" {
				continue
			}
			data, err := e.pipeline.DecodeStream(ctx, st)
			if err != nil {
				return assets, fmt.Errorf("image %s on page %d: %w", name, idx, err)
			}
			names, _ := filters.ExtractFilters(st.Dict)
			var remaining []string
			for _, n := range names {
				switch n {
				case "DCTDecode", "JPXDecode", "JBIG2Decode", "CCITTFaxDecode":
					remaining = append(remaining, n)
				}
			}
			w, _ := st.Dict.Int("Width")
			h, _ := st.Dict.Int("Height")
			bpc, _ := st.Dict.Int("BitsPerComponent")
			cs, _ := st.Dict.Name("ColorSpace")
			assets = append(assets, ImageAsset{
				Page:             idx,
				ResourceName:     name,
				Width:            int(w),
				Height:           int(h),
				BitsPerComponent: int(bpc),
				ColorSpace:       cs,
				Filters:          remaining,
				Data:             data,
			})
		}
	}
	return assets, nil
}

// ToImage converts the asset into an image.Image. JPEG data and 8-bit
// gray, RGB and CMYK samples are supported.
func (i ImageAsset) ToImage() (image.Image, error) {
	if len(i.Data) == 0 {
		return nil, errors.New("image data is empty")
	}
	for _, f := range i.Filters {
		if f == "DCTDecode" {
			return jpeg.Decode(bytes.NewReader(i.Data))
		}
		return nil, fmt.Errorf("unsupported image filter %s", f)
	}
	if i.BitsPerComponent != 8 {
		return nil, fmt.Errorf("unsupported bits per component %d", i.BitsPerComponent)
	}
	rect := image.Rect(0, 0, i.Width, i.Height)
	n := i.Width * i.Height
	switch {
	case n == 0:
		return nil, errors.New("invalid image dimensions")
	case len(i.Data) == n && i.ColorSpace == "DeviceGray":
		return &image.Gray{Pix: i.Data, Stride: i.Width, Rect: rect}, nil
	case len(i.Data) == 4*n && i.ColorSpace == "DeviceCMYK":
		return &image.CMYK{Pix: i.Data, Stride: 4 * i.Width, Rect: rect}, nil
	case len(i.Data) == 3*n:
		img := image.NewNRGBA(rect)
		for p := 0; p < n; p++ {
			copy(img.Pix[4*p:4*p+3], i.Data[3*p:3*p+3])
			img.Pix[4*p+3] = 0xFF
		}
		return img, nil
	}
	return nil, fmt.Errorf("unsupported image layout: %d bytes for %dx%d %s", len(i.Data), i.Width, i.Height, i.ColorSpace)
}

// ToPNG encodes the asset as PNG.
func (i ImageAsset) ToPNG() ([]byte, error) {
	img, err := i.ToImage()
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
