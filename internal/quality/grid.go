package quality

import (
	"errors"
	"fmt"
	"image"

	"github.com/disintegration/imaging"
)

// ErrEmptyImage is returned for images with no pixels.
var ErrEmptyImage = errors.New("image has no pixels")

// Grid is an 8-bit grayscale raster stored row-major.
type Grid struct {
	Width  int
	Height int
	Pix    []uint8
}

// NewGrid allocates a zeroed grid.
func NewGrid(width, height int) *Grid {
	return &Grid{Width: width, Height: height, Pix: make([]uint8, width*height)}
}

// Len returns the pixel count.
func (g *Grid) Len() int {
	return g.Width * g.Height
}

// At returns the luma at (x, y).
func (g *Grid) At(x, y int) uint8 {
	return g.Pix[y*g.Width+x]
}

// Set stores the luma at (x, y).
func (g *Grid) Set(x, y int, v uint8) {
	g.Pix[y*g.Width+x] = v
}

// Validate checks dimensions against the pixel buffer.
func (g *Grid) Validate() error {
	if g == nil || g.Width <= 0 || g.Height <= 0 {
		return ErrEmptyImage
	}
	if len(g.Pix) != g.Width*g.Height {
		return fmt.Errorf("grid %dx%d has %d pixels", g.Width, g.Height, len(g.Pix))
	}
	return nil
}

// GridFromImage converts any decoded image to a luma grid.
func GridFromImage(img image.Image) (*Grid, error) {
	if img == nil {
		return nil, ErrEmptyImage
	}
	gray := imaging.Grayscale(img)
	b := gray.Bounds()
	g := NewGrid(b.Dx(), b.Dy())
	if err := g.Validate(); err != nil {
		return nil, err
	}
	for y := 0; y < g.Height; y++ {
		row := gray.Pix[y*gray.Stride:]
		for x := 0; x < g.Width; x++ {
			g.Pix[y*g.Width+x] = row[x*4]
		}
	}
	return g, nil
}
