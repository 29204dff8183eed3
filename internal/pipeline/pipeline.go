// Package pipeline runs one scan, group, rank and relocate pass over a folder.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/afero"

	"imagecull/internal/cache"
	"imagecull/internal/cluster"
	"imagecull/internal/fingerprint"
	"imagecull/internal/imageinfo"
	"imagecull/internal/logging"
	"imagecull/internal/models"
	"imagecull/internal/relocate"
	"imagecull/internal/report"
	"imagecull/internal/resolve"
	"imagecull/internal/scan"
)

// ErrNotDirectory is returned when the target folder is missing or not a directory.
var ErrNotDirectory = errors.New("not a valid directory")

// Ledger records finished runs.
type Ledger interface {
	RecordRun(summary *models.RunSummary) error
}

// Options configures a run
type Options struct {
	Folder        string
	Threshold     float64
	Workers       int
	HashSize      int
	Timeout       time.Duration
	CachePath     string
	QuarantineDir string
	DryRun        bool

	Analyzer resolve.Analyzer
	Ledger   Ledger    // optional
	Fs       afero.Fs  // defaults to the OS filesystem
	Out      io.Writer // report output, discarded when nil
	Logger   *slog.Logger
	Progress func(scanned, total int, current string)
}

// Run executes the whole pipeline. Per-image and per-move problems are
// logged and reflected in the summary; only setup failures, cache
// failures and cancellation are returned as errors.
func Run(ctx context.Context, opts Options) (*models.RunSummary, error) {
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	out := opts.Out
	if out == nil {
		out = io.Discard
	}
	if opts.Analyzer == nil {
		return nil, errors.New("no quality analyzer configured")
	}

	info, err := os.Stat(opts.Folder)
	if err != nil || !info.IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrNotDirectory, opts.Folder)
	}

	summary := &models.RunSummary{
		ID:        uuid.NewString(),
		Folder:    opts.Folder,
		Threshold: opts.Threshold,
		DryRun:    opts.DryRun,
		StartedAt: time.Now(),
	}
	logger = logger.With(slog.String(logging.FieldRunID, summary.ID), slog.String(logging.FieldFolder, opts.Folder))

	bits := fingerprint.NewHasher(opts.HashSize).Bits()
	store := cache.NewStore(opts.CachePath, logger, cache.WithBits(bits))
	if err := store.Lock(); err != nil {
		return nil, err
	}
	defer func() {
		if err := store.Unlock(); err != nil {
			logger.Warn("failed to release cache lock", logging.Error(err))
		}
	}()

	ids, err := scan.ListImages(opts.Folder)
	if err != nil {
		return nil, err
	}
	summary.Images = len(ids)
	logger.Info("found images", slog.Int("count", len(ids)))

	loaded, err := store.Load()
	if err != nil {
		return nil, err
	}
	dropOtherSizes(loaded, bits, logger)
	scanner := scan.NewScanner(
		scan.WithWorkers(opts.Workers),
		scan.WithHashSize(opts.HashSize),
		scan.WithTimeout(opts.Timeout),
		scan.WithProgress(opts.Progress),
	)
	fps, err := store.Resolve(ctx, opts.Folder, ids, loaded, scanner)
	if err != nil {
		return nil, fmt.Errorf("failed to fingerprint images: %w", err)
	}
	summary.Hashed = len(fps)

	groups, err := cluster.Cluster(fps, opts.Threshold)
	if err != nil {
		return nil, fmt.Errorf("failed to group images: %w", err)
	}
	logger.Info("grouped images", slog.Int("groups", len(groups)))

	resolver := resolve.New(opts.Folder, fps, opts.Analyzer, resolve.WithWorkers(opts.Workers), resolve.WithLogger(logger))
	resolutions, err := resolver.ResolveAll(ctx, groups)
	if err != nil {
		return nil, err
	}
	summary.Resolutions = resolutions

	rep := report.New(out, opts.Folder, imageinfo.Describe)
	if len(resolutions) == 0 {
		fmt.Fprintln(out, "No duplicate groups found.")
	}
	for _, res := range resolutions {
		rep.Group(res)
	}
	rep.Explanation()

	relocator := relocate.New(
		relocate.WithFs(opts.Fs),
		relocate.WithQuarantineDir(opts.QuarantineDir),
		relocate.WithDryRun(opts.DryRun),
		relocate.WithLogger(logger),
	)
	moves, err := relocator.Relocate(opts.Folder, resolutions)
	if err != nil {
		return nil, err
	}
	summary.Moves = moves
	rep.Moves(moves, opts.DryRun)

	summary.FinishedAt = time.Now()
	if opts.Ledger != nil {
		if err := opts.Ledger.RecordRun(summary); err != nil {
			logger.Warn("failed to record run in history", logging.Error(err))
		}
	}
	rep.Summary(summary)

	return summary, nil
}

// dropOtherSizes removes cached fingerprints computed with a different hash
// size so that they are recomputed instead of mixing bit lengths.
func dropOtherSizes(loaded map[string]fingerprint.Fingerprint, bits int, logger *slog.Logger) {
	dropped := 0
	for id, fp := range loaded {
		if fp.Bits() != bits {
			delete(loaded, id)
			dropped++
		}
	}
	if dropped > 0 {
		logger.Warn("ignoring cached fingerprints of another hash size", slog.Int("count", dropped), slog.Int("bits", bits))
	}
}
