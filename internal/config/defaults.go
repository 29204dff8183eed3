package config

import "runtime"

const (
	defaultThreshold      = 70.0
	defaultHashSize       = 24
	defaultTimeoutSeconds = 30
	defaultQuarantineDir  = "duplicates"
	defaultHistoryDB      = "~/.imagecull/history.db"
	defaultLogFormat      = "text"
	defaultLogLevel       = "info"

	// DefaultCacheFileName is the fingerprint cache created inside the scanned folder.
	DefaultCacheFileName = ".imagecull_hashes.csv"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Scan: Scan{
			Threshold:      defaultThreshold,
			Workers:        runtime.NumCPU(),
			HashSize:       defaultHashSize,
			TimeoutSeconds: defaultTimeoutSeconds,
		},
		Paths: Paths{
			QuarantineDir: defaultQuarantineDir,
			HistoryDB:     defaultHistoryDB,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
