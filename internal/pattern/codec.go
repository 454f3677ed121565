package pattern

import (
	"fmt"
	"image"
	"image/color"
	"io"

	"github.com/disintegration/imaging"
	"golang.org/x/image/bmp"
)

// Codec converts between encoded image bytes and patterns.
type Codec interface {
	Decode(r io.Reader) (*Pattern, error)
	Encode(w io.Writer, p *Pattern) error
}

// Cell values produced by BMPCodec.
const (
	CellBlank byte = 0
	CellInk   byte = 1
)

// BMPCodec decodes uncompressed bitmaps 1:1 into patterns: pixels darker than
// Threshold become CellInk, everything else CellBlank.
type BMPCodec struct {
	Threshold uint8
}

// NewBMPCodec returns a codec with a mid-gray threshold.
func NewBMPCodec() *BMPCodec {
	return &BMPCodec{Threshold: 128}
}

// Decode reads a BMP image into a pattern.
func (c *BMPCodec) Decode(r io.Reader) (*Pattern, error) {
	img, err := bmp.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("decode bitmap: %w", err)
	}
	p, err := FromImage(img, c.Threshold)
	if err != nil {
		return nil, fmt.Errorf("decode bitmap: %w", err)
	}
	return p, nil
}

// FromImage converts any image into a pattern, one cell per pixel: pixels
// darker than threshold become CellInk.
func FromImage(img image.Image, threshold uint8) (*Pattern, error) {
	gray := imaging.Grayscale(img)
	b := gray.Bounds()
	w, h := b.Dx(), b.Dy()
	if w == 0 || h == 0 {
		return nil, fmt.Errorf("empty image")
	}

	cells := make([]byte, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			// Grayscale leaves R=G=B, so the red channel is the luminance.
			lum := gray.Pix[gray.PixOffset(b.Min.X+x, b.Min.Y+y)]
			if lum < threshold {
				cells[y*w+x] = CellInk
			}
		}
	}
	return &Pattern{width: w, height: h, cells: cells}, nil
}

// Encode writes the pattern as an 8-bit grayscale BMP.
func (c *BMPCodec) Encode(w io.Writer, p *Pattern) error {
	img := image.NewGray(image.Rect(0, 0, p.width, p.height))
	for y := 0; y < p.height; y++ {
		for x := 0; x < p.width; x++ {
			v := color.Gray{Y: 255}
			if p.cells[y*p.width+x] != CellBlank {
				v = color.Gray{Y: 0}
			}
			img.SetGray(x, y, v)
		}
	}
	if err := bmp.Encode(w, img); err != nil {
		return fmt.Errorf("encode bitmap: %w", err)
	}
	return nil
}
