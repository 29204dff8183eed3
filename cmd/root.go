package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"imagecull/internal/config"
	"imagecull/internal/logging"
)

var (
	configPath string
	dbPath     string
	logLevel   string
	logFormat  string

	cfg    *config.Config
	logger *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "imagecull <folder>",
	Short: "Find near-duplicate photos and quarantine the weaker copies",
	Long: `imagecull finds groups of visually similar images in a folder and keeps
the best one of each group.

Every image gets a 576-bit perceptual fingerprint, cached in the folder so
that later runs only hash new files. Images whose similarity to a group's
first image reaches the threshold join that group. Within a group, the image
with the highest quality score (sharpness, texture and low noise) is kept and
the others are moved to a quarantine subfolder.

Example usage:
  imagecull ./photos                      # Group, score and quarantine duplicates
  imagecull ./photos --threshold 85       # Only group very close matches
  imagecull ./photos --dry-run            # Report what would be moved
  imagecull history                       # Show previous runs
  imagecull restore 3f2a                  # Move a run's duplicates back`,
	Args:              cobra.ExactArgs(1),
	PersistentPreRunE: setup,
	RunE:              runCull,
	SilenceUsage:      true,
	SilenceErrors:     true,
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to config file (default ~/.config/imagecull/config.toml)")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "Path to the run history database")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "Log format (text, json)")
}

// setup loads the configuration, applies flag overrides and builds the logger.
func setup(cmd *cobra.Command, args []string) error {
	loaded, _, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if err := applyFlags(cmd, loaded); err != nil {
		return err
	}
	if err := loaded.Validate(); err != nil {
		return err
	}
	cfg = loaded

	logger, err = logging.New(logging.Options{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: os.Stderr,
	})
	return err
}

func applyFlags(cmd *cobra.Command, c *config.Config) error {
	flags := cmd.Flags()
	if flags.Changed("threshold") {
		c.Scan.Threshold = threshold
	}
	if flags.Changed("workers") {
		c.Scan.Workers = workers
	}
	if flags.Changed("hash-size") {
		c.Scan.HashSize = hashSize
	}
	if flags.Changed("timeout") {
		c.Scan.TimeoutSeconds = timeoutSeconds
	}
	if flags.Changed("quarantine") {
		c.Paths.QuarantineDir = quarantineDir
	}
	if flags.Changed("cache") {
		p, err := config.ExpandPath(cachePath)
		if err != nil {
			return fmt.Errorf("--cache: %w", err)
		}
		c.Paths.CacheFile = p
	}
	if flags.Changed("db") {
		p, err := config.ExpandPath(dbPath)
		if err != nil {
			return fmt.Errorf("--db: %w", err)
		}
		c.Paths.HistoryDB = p
	}
	if flags.Changed("log-level") {
		c.Logging.Level = strings.ToLower(strings.TrimSpace(logLevel))
	}
	if flags.Changed("log-format") {
		c.Logging.Format = strings.ToLower(strings.TrimSpace(logFormat))
	}
	return nil
}
