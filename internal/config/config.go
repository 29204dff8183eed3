// Package config loads imagecull settings from an optional TOML file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

// Scan contains settings for fingerprinting and grouping.
type Scan struct {
	// Threshold is the minimum similarity percentage to group images.
	Threshold      float64 `toml:"threshold"`
	Workers        int     `toml:"workers"`
	HashSize       int     `toml:"hash_size"`
	TimeoutSeconds int     `toml:"timeout_seconds"`
}

// Paths contains file locations. Empty CacheFile means "inside the scanned folder".
type Paths struct {
	CacheFile     string `toml:"cache_file"`
	QuarantineDir string `toml:"quarantine_dir"`
	HistoryDB     string `toml:"history_db"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for imagecull.
type Config struct {
	Scan    Scan    `toml:"scan"`
	Paths   Paths   `toml:"paths"`
	Logging Logging `toml:"logging"`
}

// DefaultConfigPath returns the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/imagecull/config.toml")
}

// Load parses and validates the configuration file at path. A missing file is
// not an error; defaults are returned and exists is false.
func Load(path string) (cfg *Config, exists bool, err error) {
	c := Default()

	if path == "" {
		if path, err = DefaultConfigPath(); err != nil {
			return nil, false, err
		}
	} else if path, err = expandPath(path); err != nil {
		return nil, false, err
	}

	file, err := os.Open(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return nil, false, fmt.Errorf("open config: %w", err)
	default:
		defer file.Close()
		exists = true
		if err := toml.NewDecoder(file).DisallowUnknownFields().Decode(&c); err != nil {
			return nil, false, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := c.normalize(); err != nil {
		return nil, false, err
	}
	if err := c.Validate(); err != nil {
		return nil, false, err
	}
	return &c, exists, nil
}

// CachePath returns the fingerprint cache file used for folder.
func (c *Config) CachePath(folder string) string {
	if c.Paths.CacheFile != "" {
		return c.Paths.CacheFile
	}
	return filepath.Join(folder, DefaultCacheFileName)
}

func (c *Config) normalize() error {
	var err error
	if c.Paths.CacheFile, err = expandPath(c.Paths.CacheFile); err != nil {
		return fmt.Errorf("paths.cache_file: %w", err)
	}
	if strings.TrimSpace(c.Paths.HistoryDB) == "" {
		c.Paths.HistoryDB = defaultHistoryDB
	}
	if c.Paths.HistoryDB, err = expandPath(c.Paths.HistoryDB); err != nil {
		return fmt.Errorf("paths.history_db: %w", err)
	}
	c.Paths.QuarantineDir = strings.TrimSpace(c.Paths.QuarantineDir)
	if c.Paths.QuarantineDir == "" {
		c.Paths.QuarantineDir = defaultQuarantineDir
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	return nil
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	absolute, err := filepath.Abs(filepath.Clean(pathValue))
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", pathValue, err)
	}
	return absolute, nil
}

// ExpandPath exposes the path expansion rules for flag values.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}
