package extract

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

func init() {
	// Keep pdfcpu from creating a config directory in the user's home.
	api.DisableConfigDir()
}

// embeddedFormats maps pdfcpu image file types to MIME types.
var embeddedFormats = map[string]string{
	"png":  "image/png",
	"jpg":  "image/jpeg",
	"jpeg": "image/jpeg",
	"tif":  "image/tiff",
	"tiff": "image/tiff",
}

// PDFCPUInspector validates PDFs and extracts embedded images with pdfcpu.
type PDFCPUInspector struct{}

func relaxedConfig() *model.Configuration {
	cfg := model.NewDefaultConfiguration()
	cfg.ValidationMode = model.ValidationRelaxed
	return cfg
}

// PageCount validates the PDF and returns its page count.
func (PDFCPUInspector) PageCount(pdf []byte) (int, error) {
	cfg := relaxedConfig()
	if err := api.Validate(bytes.NewReader(pdf), cfg); err != nil {
		return 0, fmt.Errorf("failed to validate PDF: %w", err)
	}
	n, err := api.PageCount(bytes.NewReader(pdf), cfg)
	if err != nil {
		return 0, fmt.Errorf("failed to get page count: %w", err)
	}
	return n, nil
}

// EmbeddedImages returns every supported raster image, ordered by page.
func (PDFCPUInspector) EmbeddedImages(ctx context.Context, pdf []byte) ([]EmbeddedImage, error) {
	var images []EmbeddedImage
	digest := func(img model.Image, singleImgPerPage bool, maxPageDigits int) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		mime, ok := embeddedFormats[strings.ToLower(img.FileType)]
		if !ok {
			slog.Warn("Skipping embedded image with unsupported type.", "page", img.PageNr, "fileType", img.FileType)
			return nil
		}
		data, err := io.ReadAll(img)
		if err != nil {
			return fmt.Errorf("failed to read image %s on page %d: %w", img.Name, img.PageNr, err)
		}
		images = append(images, EmbeddedImage{
			PageNumber: img.PageNr,
			Image:      RawImage{MIMEType: mime, Data: data},
		})
		return nil
	}

	if err := api.ExtractImages(bytes.NewReader(pdf), nil, digest, relaxedConfig()); err != nil {
		return nil, err
	}
	return images, nil
}
