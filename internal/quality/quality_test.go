package quality

import (
	"errors"
	"image"
	"image/color"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"testing"

	"imagecull/internal/models"
)

// fakeFilters returns canned responses regardless of input.
type fakeFilters struct {
	laplacian []float64
	blur      func(g *Grid) *Grid
	edges     func(g *Grid) *Grid
	err       error
}

func (f *fakeFilters) Laplacian(g *Grid) ([]float64, error) {
	if f.err != nil {
		return nil, f.err
	}
	if f.laplacian != nil {
		return f.laplacian, nil
	}
	return make([]float64, g.Len()), nil
}

func (f *fakeFilters) GaussianBlur(g *Grid) (*Grid, error) {
	if f.blur != nil {
		return f.blur(g), nil
	}
	cp := NewGrid(g.Width, g.Height)
	copy(cp.Pix, g.Pix)
	return cp, nil
}

func (f *fakeFilters) Canny(g *Grid, _, _ float64) (*Grid, error) {
	if f.edges != nil {
		return f.edges(g), nil
	}
	return NewGrid(g.Width, g.Height), nil
}

type recordingDecoder struct {
	name  string
	grid  *Grid
	err   error
	calls []string
}

func (d *recordingDecoder) DecodeGray(path string) (*Grid, error) {
	d.calls = append(d.calls, path)
	return d.grid, d.err
}

func constGrid(w, h int, v uint8) *Grid {
	g := NewGrid(w, h)
	for i := range g.Pix {
		g.Pix[i] = v
	}
	return g
}

func TestMeasure_Sharpness(t *testing.T) {
	g := constGrid(2, 2, 10)
	a := NewAnalyzer(&fakeFilters{laplacian: []float64{1, -1, 3, -3}}, nil)

	m, err := a.Measure(g)
	if err != nil {
		t.Fatalf("Measure failed: %v", err)
	}
	// mean 0, squares 1+1+9+9 over 4
	if m.Sharpness != 5 {
		t.Errorf("Sharpness = %v, want 5", m.Sharpness)
	}
}

func TestMeasure_NoiseSaturates(t *testing.T) {
	g := &Grid{Width: 4, Height: 1, Pix: []uint8{10, 10, 10, 10}}
	blur := func(*Grid) *Grid {
		return &Grid{Width: 4, Height: 1, Pix: []uint8{0, 20, 0, 20}}
	}
	a := NewAnalyzer(&fakeFilters{blur: blur}, nil)

	m, err := a.Measure(g)
	if err != nil {
		t.Fatalf("Measure failed: %v", err)
	}
	// residual {10, 0, 10, 0}: mean 5, std 5
	if m.Noise != 5 {
		t.Errorf("Noise = %v, want 5", m.Noise)
	}
}

func TestMeasure_Texture(t *testing.T) {
	g := constGrid(3, 1, 0)
	edges := func(*Grid) *Grid {
		return &Grid{Width: 3, Height: 1, Pix: []uint8{255, 0, 0}}
	}
	a := NewAnalyzer(&fakeFilters{edges: edges}, nil)

	m, err := a.Measure(g)
	if err != nil {
		t.Fatalf("Measure failed: %v", err)
	}
	if m.Texture != 33.33 {
		t.Errorf("Texture = %v, want 33.33", m.Texture)
	}
}

func TestMeasure_FilterError(t *testing.T) {
	a := NewAnalyzer(&fakeFilters{err: errors.New("boom")}, nil)
	if _, err := a.Measure(constGrid(2, 2, 0)); err == nil {
		t.Error("expected error from failing filter")
	}
}

func TestMeasure_LaplacianSizeMismatch(t *testing.T) {
	a := NewAnalyzer(&fakeFilters{laplacian: []float64{1}}, nil)
	if _, err := a.Measure(constGrid(2, 2, 0)); err == nil {
		t.Error("expected error for mismatched laplacian output")
	}
}

func TestMeasure_EmptyGrid(t *testing.T) {
	a := NewAnalyzer(&fakeFilters{}, nil)
	if _, err := a.Measure(NewGrid(0, 5)); !errors.Is(err, ErrEmptyImage) {
		t.Errorf("err = %v, want ErrEmptyImage", err)
	}
}

func TestScore(t *testing.T) {
	m := models.Metrics{Sharpness: 120.5, Noise: 3.25, Texture: 12.75}
	if got := Score(m); got != 130 {
		t.Errorf("Score = %v, want 130", got)
	}
}

func TestScore_Monotonic(t *testing.T) {
	base := models.Metrics{Sharpness: 10, Noise: 5, Texture: 20}
	tests := []struct {
		name   string
		better models.Metrics
	}{
		{"sharper", models.Metrics{Sharpness: 11, Noise: 5, Texture: 20}},
		{"less noise", models.Metrics{Sharpness: 10, Noise: 4, Texture: 20}},
		{"more texture", models.Metrics{Sharpness: 10, Noise: 5, Texture: 21}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if Score(tt.better) <= Score(base) {
				t.Errorf("Score(%+v) should exceed Score(%+v)", tt.better, base)
			}
		})
	}
}

func TestRound2(t *testing.T) {
	tests := []struct {
		in, want float64
	}{
		{1.234, 1.23},
		{1.235001, 1.24},
		{100, 100},
		{0.004, 0},
	}
	for _, tt := range tests {
		if got := round2(tt.in); math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("round2(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestAnalyze_Routing(t *testing.T) {
	tests := []struct {
		path        string
		wantGeneric bool
	}{
		{"a.jpg", false},
		{"a.PNG", false},
		{"a.bmp", false},
		{"a.gif", false},
		{"a.HEIC", true},
		{"a.tif", true},
		{"a.TIFF", true},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			vision := &recordingDecoder{name: "vision", grid: constGrid(2, 2, 1)}
			generic := &recordingDecoder{name: "generic", grid: constGrid(2, 2, 1)}
			a := NewAnalyzer(&fakeFilters{}, vision, WithGenericDecoder(generic))

			if _, err := a.Analyze(tt.path); err != nil {
				t.Fatalf("Analyze failed: %v", err)
			}
			gotGeneric := len(generic.calls) == 1
			if gotGeneric != tt.wantGeneric || len(vision.calls)+len(generic.calls) != 1 {
				t.Errorf("vision calls %d, generic calls %d, want generic=%v",
					len(vision.calls), len(generic.calls), tt.wantGeneric)
			}
		})
	}
}

func TestAnalyze_DecodeError(t *testing.T) {
	vision := &recordingDecoder{err: errors.New("cannot read")}
	a := NewAnalyzer(&fakeFilters{}, vision)
	if _, err := a.Analyze("x.jpg"); err == nil {
		t.Error("expected decode error")
	}
}

func TestAnalyze_EmptyDecode(t *testing.T) {
	vision := &recordingDecoder{grid: NewGrid(0, 0)}
	a := NewAnalyzer(&fakeFilters{}, vision)
	if _, err := a.Analyze("x.jpg"); !errors.Is(err, ErrEmptyImage) {
		t.Errorf("err = %v, want ErrEmptyImage", err)
	}
}

func TestImageDecoder(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 3, 2))
	for y := 0; y < 2; y++ {
		for x := 0; x < 3; x++ {
			img.Set(x, y, color.RGBA{R: 200, G: 200, B: 200, A: 255})
		}
	}
	path := filepath.Join(t.TempDir(), "gray.png")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := png.Encode(f, img); err != nil {
		t.Fatal(err)
	}
	f.Close()

	g, err := ImageDecoder{}.DecodeGray(path)
	if err != nil {
		t.Fatalf("DecodeGray failed: %v", err)
	}
	if g.Width != 3 || g.Height != 2 {
		t.Errorf("size = %dx%d, want 3x2", g.Width, g.Height)
	}
	for i, v := range g.Pix {
		if v != 200 {
			t.Errorf("pixel %d = %d, want 200", i, v)
		}
	}
}

func TestImageDecoder_Missing(t *testing.T) {
	if _, err := (ImageDecoder{}).DecodeGray(filepath.Join(t.TempDir(), "none.tif")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestGrid_Validate(t *testing.T) {
	if err := (&Grid{Width: 2, Height: 2, Pix: []uint8{1}}).Validate(); err == nil {
		t.Error("expected error for short pixel buffer")
	}
	if err := constGrid(1, 1, 0).Validate(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}
