// Package resolve picks which member of each duplicate group to keep.
package resolve

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"path/filepath"
	"runtime"

	"golang.org/x/sync/errgroup"

	"imagecull/internal/fingerprint"
	"imagecull/internal/logging"
	"imagecull/internal/models"
	"imagecull/internal/quality"
)

// Analyzer measures the quality of one image file.
type Analyzer interface {
	Analyze(path string) (models.Metrics, error)
}

// Resolver scores group members and selects a keeper
type Resolver struct {
	folder   string
	fps      map[string]fingerprint.Fingerprint
	analyzer Analyzer
	workers  int
	logger   *slog.Logger
}

// Option configures a Resolver
type Option func(*Resolver)

// WithWorkers bounds concurrent analyses within a group
func WithWorkers(n int) Option {
	return func(r *Resolver) {
		if n > 0 {
			r.workers = n
		}
	}
}

// WithLogger sets the logger for per-image diagnostics
func WithLogger(l *slog.Logger) Option {
	return func(r *Resolver) {
		if l != nil {
			r.logger = l
		}
	}
}

// New creates a Resolver for images in folder.
func New(folder string, fps map[string]fingerprint.Fingerprint, analyzer Analyzer, opts ...Option) *Resolver {
	r := &Resolver{
		folder:   folder,
		fps:      fps,
		analyzer: analyzer,
		workers:  runtime.NumCPU(),
		logger:   logging.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = logging.NewComponentLogger(r.logger, "resolve")
	return r
}

// Resolve computes the average similarity and member scores of group and
// picks the highest scoring member. Ties go to the earlier member. Members
// that cannot be analyzed are listed as unscored and never kept.
func (r *Resolver) Resolve(ctx context.Context, group models.Group) (models.Resolution, error) {
	avg, err := r.AverageSimilarity(group.Members)
	if err != nil {
		return models.Resolution{}, err
	}

	type outcome struct {
		metrics models.Metrics
		err     error
	}
	outcomes := make([]outcome, len(group.Members))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.workers)
	for i, id := range group.Members {
		i, id := i, id
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			m, err := r.analyzer.Analyze(filepath.Join(r.folder, id))
			outcomes[i] = outcome{metrics: m, err: err}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return models.Resolution{}, err
	}

	res := models.Resolution{
		Group:             group,
		AverageSimilarity: avg,
	}
	best := math.Inf(-1)
	for i, id := range group.Members {
		o := outcomes[i]
		if o.err != nil {
			r.logger.Warn("could not analyze image", logging.Image(id), slog.Int(logging.FieldGroup, group.Index), logging.Error(o.err))
			res.Unscored = append(res.Unscored, id)
			continue
		}
		score := quality.Score(o.metrics)
		res.Scores = append(res.Scores, models.ScoredImage{ID: id, Metrics: o.metrics, Score: score})
		if score > best {
			best = score
			res.Keep = id
		}
	}
	return res, nil
}

// ResolveAll resolves groups one after another in order.
func (r *Resolver) ResolveAll(ctx context.Context, groups []models.Group) ([]models.Resolution, error) {
	out := make([]models.Resolution, 0, len(groups))
	for _, g := range groups {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		res, err := r.Resolve(ctx, g)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve group %d: %w", g.Index, err)
		}
		r.logger.Debug("resolved group",
			slog.Int(logging.FieldGroup, g.Index),
			slog.Int("members", len(g.Members)),
			slog.String("keep", res.Keep),
		)
		out = append(out, res)
	}
	return out, nil
}

// AverageSimilarity is the mean pairwise similarity of ids, rounded to two
// decimals. A single member yields 100.
func (r *Resolver) AverageSimilarity(ids []string) (float64, error) {
	if len(ids) < 2 {
		return 100, nil
	}
	var sum float64
	pairs := 0
	for i := 0; i < len(ids); i++ {
		a, ok := r.fps[ids[i]]
		if !ok {
			return 0, fmt.Errorf("no fingerprint for %s", ids[i])
		}
		for j := i + 1; j < len(ids); j++ {
			b, ok := r.fps[ids[j]]
			if !ok {
				return 0, fmt.Errorf("no fingerprint for %s", ids[j])
			}
			s, err := fingerprint.Similarity(a, b)
			if err != nil {
				return 0, err
			}
			sum += s
			pairs++
		}
	}
	return math.Round(sum/float64(pairs)*100) / 100, nil
}
