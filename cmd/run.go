package cmd

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"imagecull/internal/config"
	"imagecull/internal/fingerprint"
	"imagecull/internal/logging"
	"imagecull/internal/pipeline"
	"imagecull/internal/quality"
	"imagecull/internal/quality/opencv"
	"imagecull/internal/storage"
)

var (
	threshold      float64
	workers        int
	hashSize       int
	timeoutSeconds int
	dryRun         bool
	cachePath      string
	quarantineDir  string
)

func init() {
	flags := rootCmd.Flags()
	flags.Float64VarP(&threshold, "threshold", "t", 70, "Minimum similarity percentage (0-100) for images to be grouped")
	flags.BoolVar(&dryRun, "dry-run", false, "Report what would be moved without touching any file")
	flags.IntVarP(&workers, "workers", "w", 0, "Number of parallel workers (default: number of CPUs)")
	flags.IntVar(&hashSize, "hash-size", fingerprint.DefaultHashSize, "Side of the fingerprint bit matrix")
	flags.IntVar(&timeoutSeconds, "timeout", 30, "Seconds allowed for fingerprinting one image (0 = no limit)")
	flags.StringVar(&cachePath, "cache", "", "Fingerprint cache file (default <folder>/"+config.DefaultCacheFileName+")")
	flags.StringVar(&quarantineDir, "quarantine", "", "Name of the quarantine subfolder (default duplicates)")
}

func runCull(cmd *cobra.Command, args []string) error {
	folder, err := filepath.Abs(args[0])
	if err != nil {
		return fmt.Errorf("failed to resolve path: %w", err)
	}

	mode := ""
	if dryRun {
		mode = " (dry run)"
	}
	fmt.Printf("Scanning: %s%s\n", folder, mode)
	fmt.Printf("Threshold: %.2f%% similarity\n", cfg.Scan.Threshold)
	fmt.Printf("Workers: %d\n\n", cfg.Scan.Workers)

	opts := pipeline.Options{
		Folder:        folder,
		Threshold:     cfg.Scan.Threshold,
		Workers:       cfg.Scan.Workers,
		HashSize:      cfg.Scan.HashSize,
		Timeout:       time.Duration(cfg.Scan.TimeoutSeconds) * time.Second,
		CachePath:     cfg.CachePath(folder),
		QuarantineDir: cfg.Paths.QuarantineDir,
		DryRun:        dryRun,
		Analyzer:      newAnalyzer(),
		Out:           os.Stdout,
		Logger:        logger,
	}

	store, err := storage.NewStorage(cfg.Paths.HistoryDB)
	if err != nil {
		logger.Warn("run history unavailable", logging.Error(err))
	} else {
		defer store.Close()
		opts.Ledger = store
	}

	progress := newProgressLine()
	if progress != nil {
		opts.Progress = progress.update
	}

	_, err = pipeline.Run(cmd.Context(), opts)
	progress.clear()
	if err != nil {
		if errors.Is(err, pipeline.ErrNotDirectory) {
			return fmt.Errorf("folder not found: %w", err)
		}
		return err
	}
	return nil
}

func newAnalyzer() *quality.Analyzer {
	backend := opencv.New()
	return quality.NewAnalyzer(backend, backend)
}

// progressLine redraws a single status line on a terminal.
type progressLine struct {
	mu       sync.Mutex
	lastLine string
}

func newProgressLine() *progressLine {
	fd := os.Stderr.Fd()
	if !isatty.IsTerminal(fd) && !isatty.IsCygwinTerminal(fd) {
		return nil
	}
	return &progressLine{}
}

func (p *progressLine) update(scanned, total int, current string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.erase()
	shortPath := current
	if len(shortPath) > 50 {
		shortPath = "..." + shortPath[len(shortPath)-47:]
	}
	p.lastLine = fmt.Sprintf("Fingerprinting: %d/%d  %s", scanned, total, shortPath)
	fmt.Fprint(os.Stderr, p.lastLine)
}

func (p *progressLine) clear() {
	if p == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.erase()
}

func (p *progressLine) erase() {
	if p.lastLine != "" {
		fmt.Fprint(os.Stderr, "\r"+strings.Repeat(" ", len(p.lastLine))+"\r")
		p.lastLine = ""
	}
}
