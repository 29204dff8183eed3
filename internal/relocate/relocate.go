// Package relocate moves discarded duplicates into a quarantine directory
// and back again.
package relocate

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"syscall"

	"github.com/spf13/afero"

	"imagecull/internal/logging"
	"imagecull/internal/models"
)

// DefaultQuarantineDir is the subdirectory receiving discarded duplicates.
const DefaultQuarantineDir = "duplicates"

// ErrDestinationExists is recorded when a move would overwrite a file.
var ErrDestinationExists = errors.New("destination already exists")

// Relocator moves files on an afero filesystem
type Relocator struct {
	fs         afero.Fs
	quarantine string
	dryRun     bool
	logger     *slog.Logger
}

// Option configures a Relocator
type Option func(*Relocator)

// WithFs sets the filesystem (OS by default)
func WithFs(fs afero.Fs) Option {
	return func(r *Relocator) {
		if fs != nil {
			r.fs = fs
		}
	}
}

// WithQuarantineDir sets the quarantine subdirectory name
func WithQuarantineDir(name string) Option {
	return func(r *Relocator) {
		if name != "" {
			r.quarantine = name
		}
	}
}

// WithDryRun plans moves without touching the filesystem
func WithDryRun(dryRun bool) Option {
	return func(r *Relocator) {
		r.dryRun = dryRun
	}
}

// WithLogger sets the logger for per-file diagnostics
func WithLogger(l *slog.Logger) Option {
	return func(r *Relocator) {
		if l != nil {
			r.logger = l
		}
	}
}

// New creates a Relocator
func New(opts ...Option) *Relocator {
	r := &Relocator{
		fs:         afero.NewOsFs(),
		quarantine: DefaultQuarantineDir,
		logger:     logging.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = logging.NewComponentLogger(r.logger, "relocate")
	return r
}

// QuarantinePath returns the quarantine directory for folder.
func (r *Relocator) QuarantinePath(folder string) string {
	return filepath.Join(folder, r.quarantine)
}

// Relocate moves every non-kept member of each resolution into the
// quarantine directory. Resolutions without a keeper move nothing.
// Per-file failures are recorded in the results; only failing to create
// the quarantine directory is returned as an error.
func (r *Relocator) Relocate(folder string, resolutions []models.Resolution) ([]models.MoveResult, error) {
	qdir := r.QuarantinePath(folder)
	if !r.dryRun {
		if err := r.fs.MkdirAll(qdir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create quarantine directory: %w", err)
		}
	}

	var results []models.MoveResult
	for _, res := range resolutions {
		if !res.HasKeep() {
			if len(res.Group.Members) > 0 {
				r.logger.Warn("no member could be scored, leaving group in place", slog.Int(logging.FieldGroup, res.Group.Index))
			}
			continue
		}
		for _, id := range res.Discards() {
			results = append(results, r.move(id, filepath.Join(folder, id), filepath.Join(qdir, id)))
		}
	}
	return results, nil
}

// Restore reverses earlier moves, taking each file from its destination
// back to its source.
func (r *Relocator) Restore(moves []models.MoveResult) []models.MoveResult {
	results := make([]models.MoveResult, 0, len(moves))
	for _, m := range moves {
		results = append(results, r.move(m.Image, m.Destination, m.Source))
	}
	return results
}

func (r *Relocator) move(id, src, dst string) models.MoveResult {
	result := models.MoveResult{Image: id, Source: src, Destination: dst}
	if r.dryRun {
		result.Status = models.MovePlanned
		return result
	}

	if err := r.moveFile(src, dst); err != nil {
		r.logger.Warn("failed to move image", logging.Image(id), slog.String("destination", dst), logging.Error(err))
		result.Status = models.MoveFailed
		result.Error = err.Error()
		return result
	}
	result.Status = models.MoveMoved
	return result
}

// moveFile renames src to dst, falling back to copy and delete across devices.
func (r *Relocator) moveFile(src, dst string) error {
	if _, err := r.fs.Stat(src); err != nil {
		return fmt.Errorf("source unavailable: %w", err)
	}
	if _, err := r.fs.Stat(dst); err == nil {
		return fmt.Errorf("%w: %s", ErrDestinationExists, dst)
	} else if !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to check destination: %w", err)
	}

	err := r.fs.Rename(src, dst)
	if err == nil {
		return nil
	}
	if !errors.Is(err, syscall.EXDEV) {
		return fmt.Errorf("failed to rename: %w", err)
	}

	if err := r.copyFile(src, dst); err != nil {
		return fmt.Errorf("failed to copy across devices: %w", err)
	}
	if err := r.fs.Remove(src); err != nil {
		return fmt.Errorf("failed to remove source after copy: %w", err)
	}
	return nil
}

func (r *Relocator) copyFile(src, dst string) error {
	in, err := r.fs.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return err
	}

	out, err := r.fs.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_EXCL, info.Mode())
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		r.fs.Remove(dst)
		return err
	}
	if err := out.Close(); err != nil {
		r.fs.Remove(dst)
		return err
	}
	return nil
}
