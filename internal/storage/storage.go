// Package storage keeps a SQLite ledger of runs, groups and moves so that
// quarantined files can be listed and restored later.
package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"imagecull/internal/models"
)

var (
	// ErrRunNotFound is returned when no run matches an id or prefix.
	ErrRunNotFound = errors.New("run not found")
	// ErrAmbiguousRun is returned when a prefix matches several runs.
	ErrAmbiguousRun = errors.New("run id prefix is ambiguous")
)

// Member roles recorded for group members
const (
	RoleKeep      = "keep"
	RoleDuplicate = "duplicate"
	RoleUnscored  = "unscored"
)

// Run is one recorded invocation
type Run struct {
	ID         string    `json:"id"`
	Folder     string    `json:"folder"`
	Threshold  float64   `json:"threshold"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Images     int       `json:"images"`
	Groups     int       `json:"groups"`
	Moved      int       `json:"moved"`
	Failed     int       `json:"failed"`
	DryRun     bool      `json:"dry_run"`
}

// Member is one image of a recorded group
type Member struct {
	GroupIndex    int
	Image         string
	Role          string
	Score         sql.NullFloat64
	AvgSimilarity float64
}

// Move is one recorded relocation
type Move struct {
	RunID       string
	Image       string
	Source      string
	Destination string
	Status      models.MoveStatus
	Error       string
	Restored    bool
}

// Storage handles persistence of the run ledger
type Storage struct {
	db     *sql.DB
	dbPath string
}

// NewStorage opens or creates the ledger at dbPath
func NewStorage(dbPath string) (*Storage, error) {
	dir := filepath.Dir(dbPath)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	s := &Storage{db: db, dbPath: dbPath}
	if err := s.init(); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

// Current schema version
const schemaVersion = 2

// migrations applied in order after the base schema
var migrations = []struct {
	version     int
	description string
	up          string
}{
	{
		version:     1,
		description: "Initial schema",
		up:          "", // Handled by base schema creation
	},
	{
		version:     2,
		description: "Track restored moves",
		up: `
			ALTER TABLE moves ADD COLUMN restored INTEGER NOT NULL DEFAULT 0;
			CREATE INDEX IF NOT EXISTS idx_moves_restored ON moves(run_id, restored);
		`,
	},
}

func (s *Storage) init() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create schema_version table: %w", err)
	}

	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		folder TEXT NOT NULL,
		threshold REAL NOT NULL,
		started_at TEXT NOT NULL,
		finished_at TEXT NOT NULL,
		images INTEGER NOT NULL,
		groups_found INTEGER NOT NULL,
		moved INTEGER NOT NULL,
		failed INTEGER NOT NULL,
		dry_run INTEGER NOT NULL DEFAULT 0
	);

	CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at);

	CREATE TABLE IF NOT EXISTS group_members (
		run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
		group_index INTEGER NOT NULL,
		position INTEGER NOT NULL,
		image TEXT NOT NULL,
		role TEXT NOT NULL,
		score REAL,
		avg_similarity REAL NOT NULL,
		PRIMARY KEY (run_id, group_index, position)
	);

	CREATE TABLE IF NOT EXISTS moves (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
		image TEXT NOT NULL,
		source TEXT NOT NULL,
		destination TEXT NOT NULL,
		status TEXT NOT NULL,
		error TEXT NOT NULL DEFAULT ''
	);

	CREATE INDEX IF NOT EXISTS idx_moves_run_id ON moves(run_id);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	if err := s.migrate(); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

func (s *Storage) migrate() error {
	currentVersion := s.getSchemaVersion()

	for _, m := range migrations {
		if m.version <= currentVersion || m.up == "" {
			continue
		}

		// Column may exist if a previous run crashed before recording the version
		if m.version == 2 && s.columnExists("moves", "restored") {
			if err := s.setSchemaVersion(m.version); err != nil {
				return err
			}
			continue
		}

		if _, err := s.db.Exec(m.up); err != nil {
			return fmt.Errorf("migration %d (%s) failed: %w", m.version, m.description, err)
		}

		if err := s.setSchemaVersion(m.version); err != nil {
			return err
		}
	}

	return nil
}

func (s *Storage) getSchemaVersion() int {
	var version int
	err := s.db.QueryRow(`SELECT COALESCE(MAX(version), 0) FROM schema_version`).Scan(&version)
	if err != nil {
		return 0
	}
	return version
}

func (s *Storage) setSchemaVersion(version int) error {
	if _, err := s.db.Exec(`INSERT OR REPLACE INTO schema_version (version) VALUES (?)`, version); err != nil {
		return fmt.Errorf("failed to record schema version %d: %w", version, err)
	}
	return nil
}

func (s *Storage) columnExists(table, column string) bool {
	var count int
	err := s.db.QueryRow(`
		SELECT COUNT(*) FROM pragma_table_info(?) WHERE name = ?
	`, table, column).Scan(&count)
	if err != nil {
		return false
	}
	return count > 0
}

// Close closes the database connection
func (s *Storage) Close() error {
	return s.db.Close()
}

// Path returns the database file location
func (s *Storage) Path() string {
	return s.dbPath
}

// RecordRun stores a finished run with its groups and moves
func (s *Storage) RecordRun(summary *models.RunSummary) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	moved, failed := models.CountMoves(summary.Moves)
	_, err = tx.Exec(`
		INSERT INTO runs (id, folder, threshold, started_at, finished_at, images, groups_found, moved, failed, dry_run)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		summary.ID,
		summary.Folder,
		summary.Threshold,
		formatTime(summary.StartedAt),
		formatTime(summary.FinishedAt),
		summary.Images,
		summary.GroupCount(),
		moved,
		failed,
		boolToInt(summary.DryRun),
	)
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}

	memberStmt, err := tx.Prepare(`
		INSERT INTO group_members (run_id, group_index, position, image, role, score, avg_similarity)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer memberStmt.Close()

	for _, res := range summary.Resolutions {
		for pos, id := range res.Group.Members {
			role := RoleDuplicate
			var score sql.NullFloat64
			if scored, ok := res.ScoreOf(id); ok {
				score = sql.NullFloat64{Float64: scored.Score, Valid: true}
			} else {
				role = RoleUnscored
			}
			if id == res.Keep {
				role = RoleKeep
			}
			if _, err := memberStmt.Exec(summary.ID, res.Group.Index, pos, id, role, score, res.AverageSimilarity); err != nil {
				return fmt.Errorf("failed to insert group member %s: %w", id, err)
			}
		}
	}

	moveStmt, err := tx.Prepare(`
		INSERT INTO moves (run_id, image, source, destination, status, error)
		VALUES (?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer moveStmt.Close()

	for _, m := range summary.Moves {
		if _, err := moveStmt.Exec(summary.ID, m.Image, m.Source, m.Destination, string(m.Status), m.Error); err != nil {
			return fmt.Errorf("failed to insert move %s: %w", m.Image, err)
		}
	}

	return tx.Commit()
}

const runColumns = `id, folder, threshold, started_at, finished_at, images, groups_found, moved, failed, dry_run`

// ListRuns returns the most recent runs first
func (s *Storage) ListRuns(limit int) ([]*Run, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.Query(`SELECT `+runColumns+` FROM runs ORDER BY started_at DESC, id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// GetRun finds a run by full id or unique prefix
func (s *Storage) GetRun(idOrPrefix string) (*Run, error) {
	rows, err := s.db.Query(`SELECT `+runColumns+` FROM runs WHERE id = ? OR id LIKE ? ESCAPE '\' ORDER BY id LIMIT 2`, idOrPrefix, likePrefix(idOrPrefix))
	if err != nil {
		return nil, fmt.Errorf("failed to query run: %w", err)
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		if run.ID == idOrPrefix {
			return run, nil
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	switch len(runs) {
	case 0:
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, idOrPrefix)
	case 1:
		return runs[0], nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrAmbiguousRun, idOrPrefix)
	}
}

// likePrefix builds a LIKE pattern matching ids that start with prefix literally
func likePrefix(prefix string) string {
	return likeEscaper.Replace(prefix) + "%"
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// GetMembers returns the recorded group members of a run in group order
func (s *Storage) GetMembers(runID string) ([]*Member, error) {
	rows, err := s.db.Query(`
		SELECT group_index, image, role, score, avg_similarity
		FROM group_members
		WHERE run_id = ?
		ORDER BY group_index, position
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query group members: %w", err)
	}
	defer rows.Close()

	var members []*Member
	for rows.Next() {
		m := &Member{}
		if err := rows.Scan(&m.GroupIndex, &m.Image, &m.Role, &m.Score, &m.AvgSimilarity); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		members = append(members, m)
	}
	return members, rows.Err()
}

// GetMoves returns the recorded moves of a run
func (s *Storage) GetMoves(runID string) ([]*Move, error) {
	rows, err := s.db.Query(`
		SELECT run_id, image, source, destination, status, error, restored
		FROM moves
		WHERE run_id = ?
		ORDER BY id
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query moves: %w", err)
	}
	defer rows.Close()

	var moves []*Move
	for rows.Next() {
		m := &Move{}
		var status string
		var restored int
		if err := rows.Scan(&m.RunID, &m.Image, &m.Source, &m.Destination, &status, &m.Error, &restored); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		m.Status = models.MoveStatus(status)
		m.Restored = restored == 1
		moves = append(moves, m)
	}
	return moves, rows.Err()
}

// MarkRestored flags a moved image as returned to its folder
func (s *Storage) MarkRestored(runID, image string) error {
	res, err := s.db.Exec(`UPDATE moves SET restored = 1 WHERE run_id = ? AND image = ? AND status = ?`, runID, image, string(models.MoveMoved))
	if err != nil {
		return fmt.Errorf("failed to mark %s restored: %w", image, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("no moved file %s in run %s", image, runID)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*Run, error) {
	run := &Run{}
	var started, finished string
	var dryRun int
	err := row.Scan(
		&run.ID,
		&run.Folder,
		&run.Threshold,
		&started,
		&finished,
		&run.Images,
		&run.Groups,
		&run.Moved,
		&run.Failed,
		&dryRun,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to scan row: %w", err)
	}
	run.StartedAt, _ = time.Parse(timeLayout, started)
	run.FinishedAt, _ = time.Parse(timeLayout, finished)
	run.DryRun = dryRun == 1
	return run, nil
}

// fixed width so that text ordering matches time ordering
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
