package quality

import (
	"fmt"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/disintegration/imaging"
	_ "github.com/jdeng/goheif"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
)

// Decoder loads an image file as a grayscale grid.
type Decoder interface {
	DecodeGray(path string) (*Grid, error)
}

// ImageDecoder decodes through the Go image registry, which covers the
// formats the vision backend may not read (HEIC, multi-page TIFF).
type ImageDecoder struct{}

// DecodeGray implements Decoder.
func (ImageDecoder) DecodeGray(path string) (*Grid, error) {
	img, err := imaging.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	return GridFromImage(img)
}
