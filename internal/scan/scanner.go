package scan

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"imagecull/internal/fingerprint"
)

// Scanner lists folders and computes fingerprints in parallel
type Scanner struct {
	hasher     *fingerprint.Hasher
	workers    int
	timeout    time.Duration
	progressFn func(scanned, total int, current string)
}

// Option configures a Scanner
type Option func(*Scanner)

// WithWorkers sets the number of parallel workers
func WithWorkers(n int) Option {
	return func(s *Scanner) {
		if n > 0 {
			s.workers = n
		}
	}
}

// WithTimeout sets the timeout for hashing each image
func WithTimeout(d time.Duration) Option {
	return func(s *Scanner) {
		s.timeout = d
	}
}

// WithProgress sets a progress callback
func WithProgress(fn func(scanned, total int, current string)) Option {
	return func(s *Scanner) {
		s.progressFn = fn
	}
}

// WithHashSize sets the DCT block side used for fingerprints
func WithHashSize(size int) Option {
	return func(s *Scanner) {
		s.hasher = fingerprint.NewHasher(size)
	}
}

// NewScanner creates a new Scanner
func NewScanner(opts ...Option) *Scanner {
	s := &Scanner{
		hasher:  fingerprint.NewHasher(fingerprint.DefaultHashSize),
		workers: runtime.NumCPU(),
		timeout: 30 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ListImages returns the supported image names directly inside folder,
// sorted lexicographically. Subdirectories are not entered.
func ListImages(folder string) ([]string, error) {
	entries, err := os.ReadDir(folder)
	if err != nil {
		return nil, fmt.Errorf("failed to read folder: %w", err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if fingerprint.IsSupportedImage(e.Name()) {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// HashAll fingerprints every image in ids, which are names inside folder.
// Images that fail or time out are reported in failures. The returned error
// is non-nil only when ctx is cancelled.
func (s *Scanner) HashAll(ctx context.Context, folder string, ids []string) (map[string]fingerprint.Fingerprint, map[string]error, error) {
	var (
		hashes   = make(map[string]fingerprint.Fingerprint, len(ids))
		failures = make(map[string]error)
		mu       sync.Mutex
		wg       sync.WaitGroup
		scanned  int64
		total    = len(ids)
	)
	if total == 0 {
		return hashes, failures, nil
	}

	work := make(chan string, len(ids))
	for _, id := range ids {
		work <- id
	}
	close(work)

	workers := s.workers
	if workers > total {
		workers = total
	}
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for id := range work {
				if ctx.Err() != nil {
					return
				}
				fp, err := s.HashWithTimeout(ctx, filepath.Join(folder, id))

				mu.Lock()
				if err != nil {
					failures[id] = err
				} else {
					hashes[id] = fp
				}
				mu.Unlock()

				n := atomic.AddInt64(&scanned, 1)
				if s.progressFn != nil {
					s.progressFn(int(n), total, id)
				}
			}
		}()
	}

	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	return hashes, failures, nil
}

// HashWithTimeout hashes one image, giving up after the scanner timeout
func (s *Scanner) HashWithTimeout(ctx context.Context, path string) (fingerprint.Fingerprint, error) {
	type result struct {
		fp  fingerprint.Fingerprint
		err error
	}
	done := make(chan result, 1)

	go func() {
		fp, err := s.hasher.HashFile(path)
		done <- result{fp, err}
	}()

	var timeout <-chan time.Time
	if s.timeout > 0 {
		timer := time.NewTimer(s.timeout)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case r := <-done:
		return r.fp, r.err
	case <-timeout:
		return fingerprint.Fingerprint{}, fmt.Errorf("timeout hashing image: %s", path)
	case <-ctx.Done():
		return fingerprint.Fingerprint{}, ctx.Err()
	}
}
