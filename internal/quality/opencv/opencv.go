// Package opencv implements quality decoding and filters with gocv.
package opencv

import (
	"errors"
	"fmt"
	"image"

	"gocv.io/x/gocv"

	"imagecull/internal/quality"
)

// Backend reads images and runs pixel filters through OpenCV.
type Backend struct{}

// New creates a Backend.
func New() *Backend {
	return &Backend{}
}

// DecodeGray reads path as an 8-bit single channel image.
func (b *Backend) DecodeGray(path string) (*quality.Grid, error) {
	mat := gocv.IMRead(path, gocv.IMReadGrayScale)
	defer mat.Close()
	if mat.Empty() {
		return nil, fmt.Errorf("failed to load image: %s", path)
	}
	return gridFromMat(mat)
}

// Laplacian returns the CV_64F Laplacian with aperture 1.
func (b *Backend) Laplacian(g *quality.Grid) ([]float64, error) {
	src, err := matFromGrid(g)
	if err != nil {
		return nil, err
	}
	defer src.Close()

	dst := gocv.NewMat()
	defer dst.Close()
	gocv.Laplacian(src, &dst, gocv.MatTypeCV64F, 1, 1, 0, gocv.BorderDefault)
	if dst.Empty() {
		return nil, errors.New("laplacian produced no output")
	}

	values, err := dst.DataPtrFloat64()
	if err != nil {
		return nil, fmt.Errorf("failed to read laplacian: %w", err)
	}
	out := make([]float64, len(values))
	copy(out, values)
	return out, nil
}

// GaussianBlur applies a 3x3 kernel with sigma derived from the kernel size.
func (b *Backend) GaussianBlur(g *quality.Grid) (*quality.Grid, error) {
	src, err := matFromGrid(g)
	if err != nil {
		return nil, err
	}
	defer src.Close()

	dst := gocv.NewMat()
	defer dst.Close()
	gocv.GaussianBlur(src, &dst, image.Pt(3, 3), 0, 0, gocv.BorderDefault)
	return gridFromMat(dst)
}

// Canny returns the binary edge map.
func (b *Backend) Canny(g *quality.Grid, low, high float64) (*quality.Grid, error) {
	src, err := matFromGrid(g)
	if err != nil {
		return nil, err
	}
	defer src.Close()

	dst := gocv.NewMat()
	defer dst.Close()
	gocv.Canny(src, &dst, float32(low), float32(high))
	return gridFromMat(dst)
}

func matFromGrid(g *quality.Grid) (gocv.Mat, error) {
	if err := g.Validate(); err != nil {
		return gocv.Mat{}, err
	}
	pix := make([]byte, len(g.Pix))
	copy(pix, g.Pix)
	mat, err := gocv.NewMatFromBytes(g.Height, g.Width, gocv.MatTypeCV8U, pix)
	if err != nil {
		return gocv.Mat{}, fmt.Errorf("failed to create mat: %w", err)
	}
	return mat, nil
}

func gridFromMat(mat gocv.Mat) (*quality.Grid, error) {
	if mat.Empty() {
		return nil, quality.ErrEmptyImage
	}
	if mat.Type() != gocv.MatTypeCV8U {
		return nil, fmt.Errorf("unexpected mat type %v", mat.Type())
	}
	g := &quality.Grid{Width: mat.Cols(), Height: mat.Rows(), Pix: mat.ToBytes()}
	if err := g.Validate(); err != nil {
		return nil, err
	}
	return g, nil
}
