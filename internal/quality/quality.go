// Package quality rates images by sharpness, noise and edge texture.
package quality

import (
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"strings"

	"imagecull/internal/models"
)

// Canny hysteresis thresholds.
const (
	CannyLow  = 100
	CannyHigh = 200
)

// Filters provides the pixel operations behind the metrics.
type Filters interface {
	// Laplacian returns the float64 second-derivative response, aperture 1.
	Laplacian(g *Grid) ([]float64, error)
	// GaussianBlur smooths with a 3x3 kernel, sigma derived from its size.
	GaussianBlur(g *Grid) (*Grid, error)
	// Canny returns an edge map where non-zero pixels are edges.
	Canny(g *Grid, low, high float64) (*Grid, error)
}

// extensions routed to the generic decoder
var genericExtensions = map[string]bool{
	".heic": true,
	".tif":  true,
	".tiff": true,
}

// Analyzer computes Metrics for image files
type Analyzer struct {
	filters Filters
	vision  Decoder
	generic Decoder
}

// Option configures an Analyzer
type Option func(*Analyzer)

// WithGenericDecoder overrides the decoder used for HEIC and TIFF files
func WithGenericDecoder(d Decoder) Option {
	return func(a *Analyzer) {
		if d != nil {
			a.generic = d
		}
	}
}

// NewAnalyzer creates an Analyzer. When vision is nil every format goes
// through the generic decoder.
func NewAnalyzer(filters Filters, vision Decoder, opts ...Option) *Analyzer {
	a := &Analyzer{
		filters: filters,
		vision:  vision,
		generic: ImageDecoder{},
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.vision == nil {
		a.vision = a.generic
	}
	return a
}

// decoderFor picks the decoder by lowercase extension
func (a *Analyzer) decoderFor(path string) Decoder {
	if genericExtensions[strings.ToLower(filepath.Ext(path))] {
		return a.generic
	}
	return a.vision
}

// Analyze decodes path and measures it. An error means the image cannot be scored.
func (a *Analyzer) Analyze(path string) (models.Metrics, error) {
	g, err := a.decoderFor(path).DecodeGray(path)
	if err != nil {
		return models.Metrics{}, err
	}
	if err := g.Validate(); err != nil {
		return models.Metrics{}, err
	}
	return a.Measure(g)
}

// Measure computes the metrics of a decoded grid.
func (a *Analyzer) Measure(g *Grid) (models.Metrics, error) {
	if err := g.Validate(); err != nil {
		return models.Metrics{}, err
	}

	sharpness, err := a.sharpness(g)
	if err != nil {
		return models.Metrics{}, fmt.Errorf("failed to compute sharpness: %w", err)
	}
	noise, err := a.noise(g)
	if err != nil {
		return models.Metrics{}, fmt.Errorf("failed to compute noise: %w", err)
	}
	texture, err := a.texture(g)
	if err != nil {
		return models.Metrics{}, fmt.Errorf("failed to compute texture: %w", err)
	}

	return models.Metrics{
		Sharpness: round2(sharpness),
		Noise:     round2(noise),
		Texture:   round2(texture),
	}, nil
}

func (a *Analyzer) sharpness(g *Grid) (float64, error) {
	lap, err := a.filters.Laplacian(g)
	if err != nil {
		return 0, err
	}
	if len(lap) != g.Len() {
		return 0, fmt.Errorf("laplacian returned %d values for %d pixels", len(lap), g.Len())
	}
	return variance(lap), nil
}

func (a *Analyzer) noise(g *Grid) (float64, error) {
	blurred, err := a.filters.GaussianBlur(g)
	if err != nil {
		return 0, err
	}
	if blurred.Len() != g.Len() || len(blurred.Pix) != len(g.Pix) {
		return 0, errors.New("blur changed grid size")
	}
	residual := make([]float64, len(g.Pix))
	for i, v := range g.Pix {
		residual[i] = float64(saturatingSub(v, blurred.Pix[i]))
	}
	return math.Sqrt(variance(residual)), nil
}

func (a *Analyzer) texture(g *Grid) (float64, error) {
	edges, err := a.filters.Canny(g, CannyLow, CannyHigh)
	if err != nil {
		return 0, err
	}
	if len(edges.Pix) != len(g.Pix) {
		return 0, errors.New("canny changed grid size")
	}
	count := 0
	for _, v := range edges.Pix {
		if v > 0 {
			count++
		}
	}
	return 100 * float64(count) / float64(g.Len()), nil
}

// Score is the heuristic quality score: sharpness minus noise plus texture.
func Score(m models.Metrics) float64 {
	return m.Sharpness - m.Noise + m.Texture
}

// variance is the population variance.
func variance(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	mean := sum / float64(len(values))
	var sq float64
	for _, v := range values {
		d := v - mean
		sq += d * d
	}
	return sq / float64(len(values))
}

func saturatingSub(a, b uint8) uint8 {
	if a < b {
		return 0
	}
	return a - b
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
