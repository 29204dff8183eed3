// Package report prints duplicate groups, quality metrics and move outcomes.
package report

import (
	"fmt"
	"io"
	"path/filepath"

	"github.com/dustin/go-humanize"

	"imagecull/internal/imageinfo"
	"imagecull/internal/models"
)

// Describer reads display metadata for an image file.
type Describer func(path string) (imageinfo.Info, error)

// Reporter writes human readable run output
type Reporter struct {
	w        io.Writer
	folder   string
	describe Describer
}

// New creates a Reporter for images in folder. A nil describe skips metadata.
func New(w io.Writer, folder string, describe Describer) *Reporter {
	return &Reporter{w: w, folder: folder, describe: describe}
}

var groupHeaders = []string{"", "Image", "Resolution", "Size", "EXIF", "Sharpness", "Noise", "Texture", "Score"}

var groupAligns = []Alignment{AlignLeft, AlignLeft, AlignRight, AlignRight, AlignLeft, AlignRight, AlignRight, AlignRight, AlignRight}

// Group prints one resolved group.
func (r *Reporter) Group(res models.Resolution) {
	fmt.Fprintf(r.w, "\nGroup %d (%d images) — Avg. similarity: %.2f%%\n",
		res.Group.Index, len(res.Group.Members), res.AverageSimilarity)

	rows := make([][]string, 0, len(res.Group.Members))
	for _, id := range res.Group.Members {
		marker := ""
		if id == res.Keep {
			marker = "keep"
		}
		resolution, size, exif := "?", "?", "no"
		if r.describe != nil {
			if info, err := r.describe(filepath.Join(r.folder, id)); err == nil {
				resolution = info.Resolution()
				size = humanize.Bytes(uint64(info.FileSize))
				if info.HasExif {
					exif = "yes"
				}
			}
		}

		scored, ok := res.ScoreOf(id)
		if !ok {
			rows = append(rows, []string{marker, id, resolution, size, exif, "unreadable", "", "", ""})
			continue
		}
		rows = append(rows, []string{
			marker,
			id,
			resolution,
			size,
			exif,
			fmt.Sprintf("%.2f", scored.Metrics.Sharpness),
			fmt.Sprintf("%.2f", scored.Metrics.Noise),
			fmt.Sprintf("%.2f%%", scored.Metrics.Texture),
			fmt.Sprintf("%.2f", scored.Score),
		})
	}
	fmt.Fprintln(r.w, RenderTable(groupHeaders, rows, groupAligns))

	if res.HasKeep() {
		fmt.Fprintf(r.w, "Suggested to keep: %s (highest score in group)\n", res.Keep)
	} else {
		fmt.Fprintln(r.w, "No member could be analyzed; nothing will be moved for this group")
	}
}

// Explanation prints how the quality metrics are read.
func (r *Reporter) Explanation() {
	fmt.Fprint(r.w, `
Quality metrics:
  Sharpness  variance of the Laplacian (typically 0-1000+); higher means crisper edges and focus
  Noise      std. dev. of high-frequency residual (typically 0-50); lower means less grain or artifacts
  Texture    share of edge pixels (0-100%); higher means more fine detail
  The suggested keeper maximizes sharpness - noise + texture.
`)
}

// Moves prints the relocation outcome table.
func (r *Reporter) Moves(results []models.MoveResult, dryRun bool) {
	if len(results) == 0 {
		fmt.Fprintln(r.w, "\nNo files to move.")
		return
	}
	title := "Moved duplicates"
	if dryRun {
		title = "Planned moves (dry run)"
	}
	fmt.Fprintf(r.w, "\n%s:\n", title)

	rows := make([][]string, 0, len(results))
	for _, m := range results {
		dest, err := filepath.Rel(r.folder, m.Destination)
		if err != nil {
			dest = m.Destination
		}
		rows = append(rows, []string{m.Image, dest, string(m.Status), m.Error})
	}
	fmt.Fprintln(r.w, RenderTable([]string{"Image", "Destination", "Status", "Error"}, rows, nil))
}

// Summary prints the closing counts of a run.
func (r *Reporter) Summary(s *models.RunSummary) {
	moved, failed := models.CountMoves(s.Moves)
	fmt.Fprintf(r.w, "\nScanned %d images, found %d duplicate groups", s.Images, s.GroupCount())
	if s.DryRun {
		fmt.Fprintf(r.w, ", %d moves planned.\n", len(s.Moves))
	} else {
		fmt.Fprintf(r.w, ", moved %d, failed %d.\n", moved, failed)
	}
	if s.ID != "" {
		fmt.Fprintf(r.w, "Run id: %s\n", s.ID)
	}
}
