package fingerprint

import (
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"path/filepath"
	"strings"

	"github.com/corona10/goimagehash/etcs"
	"github.com/corona10/goimagehash/transforms"
	"github.com/disintegration/imaging"
	_ "github.com/jdeng/goheif"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// DefaultHashSize is the side of the low-frequency DCT block; 24 gives 576 bits.
const DefaultHashSize = 24

// highFreqFactor scales the hash size to the resampled image side.
const highFreqFactor = 4

// Hasher computes DCT perceptual hashes of arbitrary size.
type Hasher struct {
	size int
}

// NewHasher creates a Hasher producing size×size bit fingerprints.
func NewHasher(size int) *Hasher {
	if size <= 0 {
		size = DefaultHashSize
	}
	return &Hasher{size: size}
}

// Bits returns the fingerprint length this hasher produces.
func (h *Hasher) Bits() int {
	return h.size * h.size
}

// HashImage computes the fingerprint of a decoded image.
func (h *Hasher) HashImage(img image.Image) (Fingerprint, error) {
	if img == nil {
		return Fingerprint{}, errors.New("image is nil")
	}
	if b := img.Bounds(); b.Dx() == 0 || b.Dy() == 0 {
		return Fingerprint{}, errors.New("image has no pixels")
	}

	side := h.size * highFreqFactor
	gray := imaging.Grayscale(img)
	resized := imaging.Resize(gray, side, side, imaging.Lanczos)

	pixels := transforms.Rgb2Gray(resized)
	dct := transforms.DCT2D(pixels, side, side)
	flat := transforms.FlattenPixels(dct, h.size, h.size)

	// MedianOfPixels may reorder its input
	sorted := make([]float64, len(flat))
	copy(sorted, flat)
	median := etcs.MedianOfPixels(sorted)

	bits := h.Bits()
	words := make([]uint64, wordsFor(bits))
	pad := len(words)*64 - bits
	for i, v := range flat {
		if v > median {
			p := pad + i
			words[p/64] |= 1 << uint(63-p%64)
		}
	}
	return New(words, bits)
}

// HashFile decodes the image at path and computes its fingerprint.
func (h *Hasher) HashFile(path string) (Fingerprint, error) {
	img, err := imaging.Open(path)
	if err != nil {
		return Fingerprint{}, fmt.Errorf("failed to decode image: %w", err)
	}
	fp, err := h.HashImage(img)
	if err != nil {
		return Fingerprint{}, fmt.Errorf("failed to compute hash: %w", err)
	}
	return fp, nil
}

var supportedExtensions = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".bmp":  true,
	".gif":  true,
	".heic": true,
	".tif":  true,
	".tiff": true,
}

// IsSupportedImage checks if a file name has a supported image extension.
func IsSupportedImage(path string) bool {
	return supportedExtensions[strings.ToLower(filepath.Ext(path))]
}
