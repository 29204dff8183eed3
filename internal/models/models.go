package models

import "time"

// Group is a set of near-duplicate images. Members[0] is the pivot.
type Group struct {
	Index   int      `json:"index"`
	Members []string `json:"members"`
}

// Metrics holds the objective quality signals of one image.
type Metrics struct {
	Sharpness float64 `json:"sharpness"`
	Noise     float64 `json:"noise"`
	Texture   float64 `json:"texture"`
}

// ScoredImage pairs an image with its metrics and heuristic score
type ScoredImage struct {
	ID      string  `json:"id"`
	Metrics Metrics `json:"metrics"`
	Score   float64 `json:"score"`
}

// Resolution is the keep/discard decision for a group
type Resolution struct {
	Group             Group         `json:"group"`
	AverageSimilarity float64       `json:"average_similarity"`
	Scores            []ScoredImage `json:"scores"`
	Unscored          []string      `json:"unscored,omitempty"`
	Keep              string        `json:"keep,omitempty"` // empty when no member could be scored
}

// HasKeep reports whether a keeper was selected.
func (r *Resolution) HasKeep() bool {
	return r.Keep != ""
}

// Discards returns every member other than the keeper, in group order.
func (r *Resolution) Discards() []string {
	if !r.HasKeep() {
		return nil
	}
	out := make([]string, 0, len(r.Group.Members)-1)
	for _, id := range r.Group.Members {
		if id != r.Keep {
			out = append(out, id)
		}
	}
	return out
}

// ScoreOf returns the scored entry for id, if any.
func (r *Resolution) ScoreOf(id string) (ScoredImage, bool) {
	for _, s := range r.Scores {
		if s.ID == id {
			return s, true
		}
	}
	return ScoredImage{}, false
}

// MoveStatus describes the outcome of a single relocation
type MoveStatus string

const (
	MoveMoved   MoveStatus = "moved"
	MoveFailed  MoveStatus = "failed"
	MovePlanned MoveStatus = "planned"
)

// MoveResult records what happened to one file
type MoveResult struct {
	Image       string     `json:"image"`
	Source      string     `json:"source"`
	Destination string     `json:"destination"`
	Status      MoveStatus `json:"status"`
	Error       string     `json:"error,omitempty"`
}

// CountMoves tallies moved and failed results.
func CountMoves(results []MoveResult) (moved, failed int) {
	for _, r := range results {
		switch r.Status {
		case MoveMoved:
			moved++
		case MoveFailed:
			failed++
		}
	}
	return moved, failed
}

// RunSummary holds the result of one run
type RunSummary struct {
	ID          string       `json:"id"`
	Folder      string       `json:"folder"`
	Threshold   float64      `json:"threshold"`
	DryRun      bool         `json:"dry_run"`
	StartedAt   time.Time    `json:"started_at"`
	FinishedAt  time.Time    `json:"finished_at"`
	Images      int          `json:"images"`
	Hashed      int          `json:"hashed"`
	Resolutions []Resolution `json:"resolutions"`
	Moves       []MoveResult `json:"moves"`
}

// GroupCount returns the number of duplicate groups found.
func (s *RunSummary) GroupCount() int {
	return len(s.Resolutions)
}
