package report

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"imagecull/internal/imageinfo"
	"imagecull/internal/models"
)

func TestRenderTable(t *testing.T) {
	out := RenderTable([]string{"Name", "Count"}, [][]string{{"a", "1"}, {"b"}}, []Alignment{AlignLeft, AlignRight})
	for _, want := range []string{"Name", "Count", "a", "1", "b"} {
		if !strings.Contains(out, want) {
			t.Errorf("table missing %q:\n%s", want, out)
		}
	}
	if RenderTable(nil, nil, nil) != "" {
		t.Error("no headers should render nothing")
	}
}

func TestGroup(t *testing.T) {
	var buf bytes.Buffer
	describe := func(path string) (imageinfo.Info, error) {
		if strings.HasSuffix(path, "b.jpg") {
			return imageinfo.Info{}, errors.New("gone")
		}
		return imageinfo.Info{Width: 640, Height: 480, FileSize: 2048, HasExif: true}, nil
	}
	r := New(&buf, "/photos", describe)

	r.Group(models.Resolution{
		Group:             models.Group{Index: 3, Members: []string{"a.jpg", "b.jpg"}},
		AverageSimilarity: 93.456,
		Scores: []models.ScoredImage{
			{ID: "a.jpg", Metrics: models.Metrics{Sharpness: 120.5, Noise: 3.25, Texture: 12.75}, Score: 130},
		},
		Unscored: []string{"b.jpg"},
		Keep:     "a.jpg",
	})

	out := buf.String()
	for _, want := range []string{
		"Group 3 (2 images) — Avg. similarity: 93.46%",
		"640x480",
		"2.0 kB",
		"120.50",
		"12.75%",
		"130.00",
		"unreadable",
		"Suggested to keep: a.jpg",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestGroup_NoKeep(t *testing.T) {
	var buf bytes.Buffer
	New(&buf, "/photos", nil).Group(models.Resolution{
		Group:    models.Group{Index: 1, Members: []string{"a.jpg", "b.jpg"}},
		Unscored: []string{"a.jpg", "b.jpg"},
	})
	if !strings.Contains(buf.String(), "nothing will be moved") {
		t.Errorf("output should explain missing keeper:\n%s", buf.String())
	}
}

func TestMoves(t *testing.T) {
	var buf bytes.Buffer
	r := New(&buf, "/photos", nil)
	r.Moves([]models.MoveResult{
		{Image: "a.jpg", Destination: "/photos/duplicates/a.jpg", Status: models.MovePlanned},
	}, true)

	out := buf.String()
	if !strings.Contains(out, "dry run") || !strings.Contains(out, "duplicates/a.jpg") || !strings.Contains(out, "planned") {
		t.Errorf("unexpected output:\n%s", out)
	}

	buf.Reset()
	r.Moves(nil, false)
	if !strings.Contains(buf.String(), "No files to move") {
		t.Errorf("unexpected output:\n%s", buf.String())
	}
}

func TestSummaryAndExplanation(t *testing.T) {
	var buf bytes.Buffer
	r := New(&buf, "/photos", nil)
	r.Explanation()
	r.Summary(&models.RunSummary{
		ID:     "abc",
		Images: 4,
		Moves:  []models.MoveResult{{Status: models.MoveMoved}, {Status: models.MoveFailed}},
	})

	out := buf.String()
	for _, want := range []string{"Sharpness", "sharpness - noise + texture", "Scanned 4 images", "moved 1, failed 1", "Run id: abc"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}
