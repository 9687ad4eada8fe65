// Package extract turns an uploaded document into the page images sent to
// the vision model.
package extract

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"log/slog"

	"github.com/Lllllllleong/userstoryflow/internal/llm"
)

// ErrExtraction is matched by every extraction failure.
var ErrExtraction = errors.New("document extraction failed")

// Error describes why a document could not be turned into images.
type Error struct {
	Reason string
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", ErrExtraction, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s: %s", ErrExtraction, e.Reason)
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool { return target == ErrExtraction }

func extractionError(reason string, err error) error {
	return &Error{Reason: reason, Err: err}
}

// Strategy selects how a PDF becomes images.
type Strategy string

const (
	// StrategyPages renders every page to a full-page image.
	StrategyPages Strategy = "pages"
	// StrategyEmbedded extracts only the raster images embedded in each page.
	StrategyEmbedded Strategy = "embedded"
	// StrategyComposite renders every page and stacks them into one image.
	StrategyComposite Strategy = "composite"
)

// ParseStrategy validates a strategy name.
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(s) {
	case StrategyPages, StrategyEmbedded, StrategyComposite:
		return Strategy(s), nil
	}
	return "", fmt.Errorf("unknown extraction strategy %q", s)
}

// Source is an image in one of two shapes: encoded bytes as found in the
// document, or a decoded raster. It is resolved to an inline image once.
type Source interface {
	Inline() (llm.InlineImage, error)
}

// Slot locates one source page inside a composite image.
type Slot struct {
	PageNumber int
	Top        int
	Width      int
	Height     int
}

// Page is one image handed to the vision step.
type Page struct {
	// Number is the 1-based source page, or 0 for a composite.
	Number int
	Width  int
	Height int
	Source Source
	// Layout is set for composites only, in page order.
	Layout []Slot
}

// Renderer rasterizes every page of a PDF in page order.
type Renderer interface {
	Render(ctx context.Context, pdf []byte) ([]image.Image, error)
}

// Inspector validates a PDF and reads its embedded raster images.
type Inspector interface {
	PageCount(pdf []byte) (int, error)
	EmbeddedImages(ctx context.Context, pdf []byte) ([]EmbeddedImage, error)
}

// EmbeddedImage is a raster image found on a PDF page.
type EmbeddedImage struct {
	PageNumber int
	Image      RawImage
}

// Config holds configuration for the extractor.
type Config struct {
	Strategy   Strategy
	Background color.Color
}

// Extractor turns document bytes into page images.
type Extractor struct {
	renderer  Renderer
	inspector Inspector
	config    Config
}

// NewExtractor creates a new Extractor. The renderer may be nil when the
// strategy is embedded.
func NewExtractor(cfg Config, renderer Renderer, inspector Inspector) (*Extractor, error) {
	if _, err := ParseStrategy(string(cfg.Strategy)); err != nil {
		return nil, err
	}
	if inspector == nil {
		return nil, fmt.Errorf("NewExtractor: inspector cannot be nil")
	}
	if renderer == nil && cfg.Strategy != StrategyEmbedded {
		return nil, fmt.Errorf("NewExtractor: strategy %q requires a renderer", cfg.Strategy)
	}
	if cfg.Background == nil {
		cfg.Background = color.White
	}
	return &Extractor{renderer: renderer, inspector: inspector, config: cfg}, nil
}

// Strategy returns the configured strategy.
func (e *Extractor) Strategy() Strategy { return e.config.Strategy }

// IsPDF reports whether data starts with the PDF header.
func IsPDF(data []byte) bool {
	return bytes.HasPrefix(bytes.TrimLeft(data[:min(len(data), 1024)], "\x00\t\r\n "), []byte("%PDF-"))
}

// Extract returns the ordered page images of the document. Image uploads
// yield exactly one page regardless of strategy.
func (e *Extractor) Extract(ctx context.Context, data []byte) ([]Page, error) {
	if len(data) == 0 {
		return nil, extractionError("document is empty", nil)
	}
	if !IsPDF(data) {
		page, err := decodeUpload(data)
		if err != nil {
			return nil, err
		}
		return []Page{page}, nil
	}

	pageCount, err := e.inspector.PageCount(data)
	if err != nil {
		return nil, extractionError("invalid PDF", err)
	}
	if pageCount == 0 {
		return nil, extractionError("PDF has no pages", nil)
	}
	logCtx := slog.With("strategy", e.config.Strategy, "pageCount", pageCount)

	var pages []Page
	switch e.config.Strategy {
	case StrategyPages:
		pages, err = e.renderPages(ctx, data)
	case StrategyEmbedded:
		pages, err = e.embeddedPages(ctx, data)
	case StrategyComposite:
		pages, err = e.compositePage(ctx, data)
	}
	if err != nil {
		return nil, err
	}
	if len(pages) == 0 {
		return nil, extractionError(fmt.Sprintf("no images produced by strategy %q", e.config.Strategy), nil)
	}

	logCtx.Info("Document extracted.", "imageCount", len(pages))
	return pages, nil
}

func (e *Extractor) render(ctx context.Context, data []byte) ([]image.Image, error) {
	images, err := e.renderer.Render(ctx, data)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		return nil, extractionError("failed to render pages", err)
	}
	return images, nil
}

func (e *Extractor) renderPages(ctx context.Context, data []byte) ([]Page, error) {
	images, err := e.render(ctx, data)
	if err != nil {
		return nil, err
	}
	pages := make([]Page, 0, len(images))
	for i, img := range images {
		b := img.Bounds()
		pages = append(pages, Page{
			Number: i + 1,
			Width:  b.Dx(),
			Height: b.Dy(),
			Source: RasterImage{Image: img},
		})
	}
	return pages, nil
}

func (e *Extractor) embeddedPages(ctx context.Context, data []byte) ([]Page, error) {
	embedded, err := e.inspector.EmbeddedImages(ctx, data)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		return nil, extractionError("failed to extract embedded images", err)
	}
	pages := make([]Page, 0, len(embedded))
	for _, em := range embedded {
		cfg, _, err := image.DecodeConfig(bytes.NewReader(em.Image.Data))
		if err != nil {
			slog.Warn("Skipping undecodable embedded image.", "page", em.PageNumber, "mimeType", em.Image.MIMEType, "error", err)
			continue
		}
		pages = append(pages, Page{
			Number: em.PageNumber,
			Width:  cfg.Width,
			Height: cfg.Height,
			Source: em.Image,
		})
	}
	return pages, nil
}

func (e *Extractor) compositePage(ctx context.Context, data []byte) ([]Page, error) {
	images, err := e.render(ctx, data)
	if err != nil {
		return nil, err
	}
	if len(images) == 0 {
		return nil, nil
	}
	canvas, layout := Stitch(images, e.config.Background)
	b := canvas.Bounds()
	return []Page{{
		Number: 0,
		Width:  b.Dx(),
		Height: b.Dy(),
		Source: RasterImage{Image: canvas},
		Layout: layout,
	}}, nil
}

// Pages returns the source page numbers an image covers.
func (p Page) Pages() []int {
	if len(p.Layout) == 0 {
		return []int{p.Number}
	}
	nums := make([]int, len(p.Layout))
	for i, s := range p.Layout {
		nums[i] = s.PageNumber
	}
	return nums
}
