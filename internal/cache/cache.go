// Package cache persists image fingerprints between runs.
package cache

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/gofrs/flock"

	"imagecull/internal/fingerprint"
	"imagecull/internal/logging"
)

// ErrCacheLocked is returned when another run holds the cache lock.
var ErrCacheLocked = errors.New("fingerprint cache is locked by another run")

// Computer produces fingerprints for images that are not cached yet.
// Per-image failures are reported in failures; err is reserved for
// conditions that stop the whole batch, such as cancellation.
type Computer interface {
	HashAll(ctx context.Context, folder string, ids []string) (hashes map[string]fingerprint.Fingerprint, failures map[string]error, err error)
}

// Store is a CSV file mapping image names to fingerprints.
type Store struct {
	path   string
	bits   int
	lock   *flock.Flock
	logger *slog.Logger
}

// Option configures a Store
type Option func(*Store)

// WithBits sets the fingerprint length the current hasher produces. Entries
// with the matching number of hex digits are decoded at exactly that length.
func WithBits(bits int) Option {
	return func(s *Store) {
		if bits > 0 {
			s.bits = bits
		}
	}
}

// NewStore creates a store backed by the file at path.
func NewStore(path string, logger *slog.Logger, opts ...Option) *Store {
	if logger == nil {
		logger = logging.NewNop()
	}
	s := &Store{
		path:   path,
		lock:   flock.New(path + ".lock"),
		logger: logging.NewComponentLogger(logger, "cache"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Path returns the cache file location.
func (s *Store) Path() string {
	return s.path
}

// Lock acquires the single-writer lock without blocking.
func (s *Store) Lock() error {
	if dir := filepath.Dir(s.path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create cache directory: %w", err)
		}
	}
	ok, err := s.lock.TryLock()
	if err != nil {
		return fmt.Errorf("failed to acquire cache lock: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrCacheLocked, s.lock.Path())
	}
	return nil
}

// Unlock releases the lock and removes the lock file.
func (s *Store) Unlock() error {
	if !s.lock.Locked() {
		return nil
	}
	if err := s.lock.Unlock(); err != nil {
		return fmt.Errorf("failed to release cache lock: %w", err)
	}
	_ = os.Remove(s.lock.Path())
	return nil
}

// Load reads every valid record. A missing file yields an empty map.
func (s *Store) Load() (map[string]fingerprint.Fingerprint, error) {
	out := make(map[string]fingerprint.Fingerprint)

	f, err := os.Open(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return out, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open cache: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			var perr *csv.ParseError
			if errors.As(err, &perr) {
				s.logger.Warn("skipping malformed cache line", slog.Int("line", perr.Line), logging.Error(err))
				continue
			}
			return nil, fmt.Errorf("failed to read cache: %w", err)
		}
		if len(record) != 2 {
			line, _ := r.FieldPos(0)
			s.logger.Warn("skipping cache line with wrong field count", slog.Int("line", line), slog.Int("fields", len(record)))
			continue
		}
		fp, err := s.parse(record[1])
		if err != nil {
			s.logger.Warn("skipping cache entry with invalid fingerprint", logging.Image(record[0]), logging.Error(err))
			continue
		}
		out[record[0]] = fp
	}
	return out, nil
}

// parse decodes at the configured length when the digit count fits it, so
// lengths that are not a multiple of four survive a round trip.
func (s *Store) parse(hex string) (fingerprint.Fingerprint, error) {
	if s.bits > 0 && len(strings.TrimSpace(hex)) == (s.bits+3)/4 {
		return fingerprint.ParseBits(hex, s.bits)
	}
	return fingerprint.Parse(hex)
}

// Save replaces the cache file with entries, sorted by image name.
func (s *Store) Save(entries map[string]fingerprint.Fingerprint) error {
	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp cache file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	ids := make([]string, 0, len(entries))
	for id := range entries {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	w := csv.NewWriter(tmp)
	for _, id := range ids {
		if err := w.Write([]string{id, entries[id].String()}); err != nil {
			tmp.Close()
			return fmt.Errorf("failed to write cache entry %s: %w", id, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to flush cache: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp cache file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("failed to replace cache file: %w", err)
	}
	return nil
}

// Resolve returns a fingerprint for every identifier that could be hashed.
// Cached entries are reused, misses go to computer, and the resulting map
// replaces the cache file. Loaded entries not in ids are dropped.
func (s *Store) Resolve(ctx context.Context, folder string, ids []string, loaded map[string]fingerprint.Fingerprint, computer Computer) (map[string]fingerprint.Fingerprint, error) {
	sorted := make([]string, len(ids))
	copy(sorted, ids)
	sort.Strings(sorted)

	result := make(map[string]fingerprint.Fingerprint, len(sorted))
	var misses []string
	for _, id := range sorted {
		if fp, ok := loaded[id]; ok {
			result[id] = fp
			continue
		}
		misses = append(misses, id)
	}

	if len(misses) > 0 {
		s.logger.Debug("computing fingerprints", slog.Int("cached", len(result)), slog.Int("missing", len(misses)))
		hashes, failures, err := computer.HashAll(ctx, folder, misses)
		if err != nil {
			return nil, err
		}
		for _, id := range misses {
			if fp, ok := hashes[id]; ok {
				result[id] = fp
				continue
			}
			ferr := failures[id]
			if ferr == nil {
				ferr = errors.New("no fingerprint produced")
			}
			s.logger.Warn("skipping image", logging.Image(id), logging.Error(ferr))
		}
	}

	if err := s.Save(result); err != nil {
		return nil, err
	}
	return result, nil
}
