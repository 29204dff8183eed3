package imageinfo

import (
	"image"
	"image/png"
	"os"
	"path/filepath"
	"testing"
)

func TestDescribe_PNG(t *testing.T) {
	path := filepath.Join(t.TempDir(), "img.png")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := png.Encode(f, image.NewGray(image.Rect(0, 0, 7, 4))); err != nil {
		t.Fatal(err)
	}
	f.Close()

	info, err := Describe(path)
	if err != nil {
		t.Fatalf("Describe failed: %v", err)
	}
	if info.Width != 7 || info.Height != 4 {
		t.Errorf("dimensions = %dx%d, want 7x4", info.Width, info.Height)
	}
	if info.Format != "png" {
		t.Errorf("format = %q, want png", info.Format)
	}
	if info.FileSize == 0 {
		t.Error("file size should be set")
	}
	if info.HasExif {
		t.Error("generated PNG has no EXIF")
	}
	if info.Resolution() != "7x4" {
		t.Errorf("Resolution() = %q", info.Resolution())
	}
}

func TestDescribe_NotAnImage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fake.jpg")
	if err := os.WriteFile(path, []byte("hello"), 0644); err != nil {
		t.Fatal(err)
	}
	info, err := Describe(path)
	if err != nil {
		t.Fatalf("Describe failed: %v", err)
	}
	if info.FileSize != 5 {
		t.Errorf("file size = %d, want 5", info.FileSize)
	}
	if info.Resolution() != "?" {
		t.Errorf("Resolution() = %q, want ?", info.Resolution())
	}
}

func TestDescribe_Missing(t *testing.T) {
	if _, err := Describe(filepath.Join(t.TempDir(), "missing.png")); err == nil {
		t.Error("expected error for missing file")
	}
}
