package extract

import (
	"image"
	"image/color"

	"golang.org/x/image/draw"
)

// Stitch stacks images top to bottom on one canvas. The canvas is as wide as
// the widest image and as tall as all images together; uncovered area is
// filled with bg. Each image is left-aligned.
func Stitch(images []image.Image, bg color.Color) (*image.RGBA, []Slot) {
	width, height := 0, 0
	for _, img := range images {
		b := img.Bounds()
		width = max(width, b.Dx())
		height += b.Dy()
	}

	canvas := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(canvas, canvas.Bounds(), image.NewUniform(bg), image.Point{}, draw.Src)

	layout := make([]Slot, 0, len(images))
	top := 0
	for i, img := range images {
		b := img.Bounds()
		dst := image.Rect(0, top, b.Dx(), top+b.Dy())
		draw.Draw(canvas, dst, img, b.Min, draw.Over)
		layout = append(layout, Slot{
			PageNumber: i + 1,
			Top:        top,
			Width:      b.Dx(),
			Height:     b.Dy(),
		})
		top += b.Dy()
	}
	return canvas, layout
}
