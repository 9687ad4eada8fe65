package extract

import (
	"context"
	"fmt"
	"image"

	"github.com/gen2brain/go-fitz"
)

// DefaultDPI matches the 72 DPI default pixmap of common PDF renderers.
const DefaultDPI = 72.0

// FitzRenderer rasterizes PDF pages with MuPDF.
type FitzRenderer struct {
	DPI float64
}

// NewFitzRenderer creates a renderer; a non-positive dpi selects DefaultDPI.
func NewFitzRenderer(dpi float64) *FitzRenderer {
	if dpi <= 0 {
		dpi = DefaultDPI
	}
	return &FitzRenderer{DPI: dpi}
}

// Render converts every page of the PDF to an image, in page order.
func (r *FitzRenderer) Render(ctx context.Context, pdf []byte) ([]image.Image, error) {
	doc, err := fitz.NewFromMemory(pdf)
	if err != nil {
		return nil, fmt.Errorf("failed to open PDF: %w", err)
	}
	defer doc.Close()

	pageCount := doc.NumPage()
	images := make([]image.Image, 0, pageCount)
	for pageNum := 0; pageNum < pageCount; pageNum++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		img, err := doc.ImageDPI(pageNum, r.DPI)
		if err != nil {
			return nil, fmt.Errorf("failed to render page %d: %w", pageNum+1, err)
		}
		images = append(images, img)
	}
	return images, nil
}
