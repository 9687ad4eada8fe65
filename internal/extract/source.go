package extract

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"

	"github.com/Lllllllleong/userstoryflow/internal/llm"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// inlineFormats are passed to the model as-is; everything else is
// re-encoded as PNG.
var inlineFormats = map[string]string{
	"png":  "image/png",
	"jpeg": "image/jpeg",
	"gif":  "image/gif",
	"webp": "image/webp",
}

// RasterImage is a decoded image, encoded to PNG when inlined.
type RasterImage struct {
	Image image.Image
}

// Inline encodes the raster as PNG.
func (r RasterImage) Inline() (llm.InlineImage, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, r.Image); err != nil {
		return llm.InlineImage{}, fmt.Errorf("failed to encode PNG: %w", err)
	}
	return llm.InlineImage{MIMEType: "image/png", Data: buf.Bytes()}, nil
}

// RawImage is encoded image bytes as found in the upload or the PDF.
type RawImage struct {
	MIMEType string
	Data     []byte
}

// Inline passes model-supported formats through and re-encodes the rest.
func (r RawImage) Inline() (llm.InlineImage, error) {
	for _, mime := range inlineFormats {
		if r.MIMEType == mime {
			return llm.InlineImage{MIMEType: r.MIMEType, Data: r.Data}, nil
		}
	}
	img, _, err := image.Decode(bytes.NewReader(r.Data))
	if err != nil {
		return llm.InlineImage{}, fmt.Errorf("failed to decode %s image: %w", r.MIMEType, err)
	}
	return RasterImage{Image: img}.Inline()
}

// decodeUpload treats a non-PDF upload as a single image page.
func decodeUpload(data []byte) (Page, error) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return Page{}, extractionError("upload is neither a PDF nor a supported image", err)
	}
	if cfg.Width == 0 || cfg.Height == 0 {
		return Page{}, extractionError("image has no pixels", nil)
	}

	page := Page{Number: 1, Width: cfg.Width, Height: cfg.Height}
	if mime, ok := inlineFormats[format]; ok {
		page.Source = RawImage{MIMEType: mime, Data: data}
		return page, nil
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return Page{}, extractionError("failed to decode "+format+" image", err)
	}
	page.Source = RasterImage{Image: img}
	return page, nil
}
