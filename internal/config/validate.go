package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"imagecull/internal/logging"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if c.Scan.Threshold < 0 || c.Scan.Threshold > 100 {
		return fmt.Errorf("scan.threshold must be between 0 and 100, got %v", c.Scan.Threshold)
	}
	if c.Scan.Workers < 1 {
		return fmt.Errorf("scan.workers must be at least 1, got %d", c.Scan.Workers)
	}
	if c.Scan.HashSize < 2 {
		return fmt.Errorf("scan.hash_size must be at least 2, got %d", c.Scan.HashSize)
	}
	if c.Scan.TimeoutSeconds < 0 {
		return fmt.Errorf("scan.timeout_seconds must not be negative, got %d", c.Scan.TimeoutSeconds)
	}
	q := c.Paths.QuarantineDir
	if q == "." || q == ".." || strings.ContainsAny(q, `/\`) || filepath.Base(q) != q {
		return fmt.Errorf("paths.quarantine_dir must be a plain directory name, got %q", q)
	}
	if !logging.ValidLevel(c.Logging.Level) {
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "", "text", "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	return nil
}
