// Package imageinfo reads lightweight image metadata for reports.
package imageinfo

import (
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"os"
	"strings"
	"time"

	_ "github.com/jdeng/goheif"
	"github.com/rwcarlsen/goexif/exif"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
)

// Info holds metadata for one image file
type Info struct {
	Width    int
	Height   int
	Format   string
	FileSize int64
	ModTime  time.Time
	HasExif  bool
	TakenAt  time.Time // zero when EXIF has no timestamp
}

// Resolution formats the dimensions as WxH, or "?" when unknown.
func (i Info) Resolution() string {
	if i.Width == 0 || i.Height == 0 {
		return "?"
	}
	return fmt.Sprintf("%dx%d", i.Width, i.Height)
}

// Describe stats and probes path. Fields that cannot be read stay zero;
// an error is returned only when the file cannot be opened.
func Describe(path string) (Info, error) {
	file, err := os.Open(path)
	if err != nil {
		return Info{}, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	var info Info
	if stat, err := file.Stat(); err == nil {
		info.FileSize = stat.Size()
		info.ModTime = stat.ModTime()
	}

	if cfg, format, err := image.DecodeConfig(file); err == nil {
		info.Width = cfg.Width
		info.Height = cfg.Height
		info.Format = strings.ToLower(format)
	}

	if _, err := file.Seek(0, io.SeekStart); err == nil {
		if x, err := exif.Decode(file); err == nil {
			info.HasExif = true
			if taken, err := x.DateTime(); err == nil {
				info.TakenAt = taken
			}
		}
	}

	return info, nil
}
