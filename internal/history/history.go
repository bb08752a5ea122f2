// Package history records executed release runs in a local SQLite
// database under the workspace state directory.
package history

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"relkit/internal/config"
)

// ErrNotFound is returned for lookups with no matching row.
var ErrNotFound = errors.New("not found")

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id            TEXT PRIMARY KEY,
	created_at    INTEGER NOT NULL,
	git_head      TEXT NOT NULL,
	mode          TEXT NOT NULL,
	fixed_version TEXT NOT NULL DEFAULT '',
	dry_run       INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS releases (
	run_id      TEXT NOT NULL REFERENCES runs(id),
	package     TEXT NOT NULL,
	old_version TEXT NOT NULL,
	new_version TEXT NOT NULL,
	level       TEXT NOT NULL,
	is_cascade  INTEGER NOT NULL DEFAULT 0,
	published   INTEGER NOT NULL DEFAULT 0,
	tag         TEXT NOT NULL,
	PRIMARY KEY (run_id, package)
);

CREATE TABLE IF NOT EXISTS fingerprints (
	package TEXT NOT NULL,
	tag     TEXT NOT NULL,
	digest  TEXT NOT NULL,
	PRIMARY KEY (package, tag)
);

CREATE INDEX IF NOT EXISTS idx_releases_package ON releases(package);
`

// Run is one recorded invocation of the release executor.
type Run struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"createdAt"`
	Head      string    `json:"head"`
	Mode      string    `json:"mode"`
	// FixedVersion is set for fixed-mode runs.
	FixedVersion string `json:"fixedVersion,omitempty"`
	DryRun       bool   `json:"dryRun"`
	Releases     []Release `json:"releases,omitempty"`
}

// Release is one package release within a run.
type Release struct {
	RunID      string `json:"-"`
	Package    string `json:"package"`
	OldVersion string `json:"oldVersion"`
	NewVersion string `json:"newVersion"`
	Level      string `json:"level"`
	Cascade    bool   `json:"cascade,omitempty"`
	Published  bool   `json:"published"`
	Tag        string `json:"tag"`
}

// Store is the release history database.
type Store struct {
	db *sql.DB
}

// DBName is the history database file under the state directory.
const DBName = "history.db"

// Open opens (creating if needed) the history store for a workspace
// root.
func Open(root string) (*Store, error) {
	dir := filepath.Join(root, config.StateDir)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating state dir: %w", err)
	}
	return OpenPath(filepath.Join(dir, DBName))
}

// OpenPath opens the store at an explicit database path.
func OpenPath(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening history db: %w", err)
	}

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("configuring history db: %w", err)
		}
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating history db: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// NewRunID returns a fresh run identifier.
func NewRunID() string {
	return uuid.New().String()
}

// RecordRun inserts a run and its releases in one transaction.
func (s *Store) RecordRun(run Run) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("recording run: %w", err)
	}
	defer tx.Rollback()

	createdAt := run.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	if _, err := tx.Exec(
		"INSERT INTO runs (id, created_at, git_head, mode, fixed_version, dry_run) VALUES (?, ?, ?, ?, ?, ?)",
		run.ID, createdAt.Unix(), run.Head, run.Mode, run.FixedVersion, boolInt(run.DryRun),
	); err != nil {
		return fmt.Errorf("recording run: %w", err)
	}

	for _, rel := range run.Releases {
		if _, err := tx.Exec(
			"INSERT INTO releases (run_id, package, old_version, new_version, level, is_cascade, published, tag) VALUES (?, ?, ?, ?, ?, ?, ?, ?)",
			run.ID, rel.Package, rel.OldVersion, rel.NewVersion, rel.Level, boolInt(rel.Cascade), boolInt(rel.Published), rel.Tag,
		); err != nil {
			return fmt.Errorf("recording release %s: %w", rel.Package, err)
		}
	}

	return tx.Commit()
}

// Runs lists recorded runs, newest first, with their releases.
func (s *Store) Runs(limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(
		"SELECT id, created_at, git_head, mode, fixed_version, dry_run FROM runs ORDER BY created_at DESC, id LIMIT ?",
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var run Run
		var createdAt int64
		var dryRun int
		if err := rows.Scan(&run.ID, &createdAt, &run.Head, &run.Mode, &run.FixedVersion, &dryRun); err != nil {
			return nil, err
		}
		run.CreatedAt = time.Unix(createdAt, 0)
		run.DryRun = dryRun != 0
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range runs {
		releases, err := s.ReleasesForRun(runs[i].ID)
		if err != nil {
			return nil, err
		}
		runs[i].Releases = releases
	}
	return runs, nil
}

// ReleasesForRun lists the releases of one run, by package name.
func (s *Store) ReleasesForRun(runID string) ([]Release, error) {
	rows, err := s.db.Query(
		"SELECT run_id, package, old_version, new_version, level, is_cascade, published, tag FROM releases WHERE run_id = ? ORDER BY package",
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing releases: %w", err)
	}
	defer rows.Close()

	var releases []Release
	for rows.Next() {
		rel, err := scanRelease(rows)
		if err != nil {
			return nil, err
		}
		releases = append(releases, rel)
	}
	return releases, rows.Err()
}

// LatestRelease returns a package's most recent non-dry-run release.
func (s *Store) LatestRelease(pkg string) (Release, error) {
	row := s.db.QueryRow(`
		SELECT r.run_id, r.package, r.old_version, r.new_version, r.level, r.is_cascade, r.published, r.tag
		FROM releases r
		JOIN runs ON runs.id = r.run_id
		WHERE r.package = ? AND runs.dry_run = 0
		ORDER BY runs.created_at DESC LIMIT 1
	`, pkg)

	var rel Release
	var cascade, published int
	err := row.Scan(&rel.RunID, &rel.Package, &rel.OldVersion, &rel.NewVersion, &rel.Level, &cascade, &published, &rel.Tag)
	if err == sql.ErrNoRows {
		return Release{}, ErrNotFound
	}
	if err != nil {
		return Release{}, err
	}
	rel.Cascade = cascade != 0
	rel.Published = published != 0
	return rel, nil
}

// RecordFingerprint stores a package's content digest at a release tag.
func (s *Store) RecordFingerprint(pkg, tag, digest string) error {
	_, err := s.db.Exec(
		"INSERT OR REPLACE INTO fingerprints (package, tag, digest) VALUES (?, ?, ?)",
		pkg, tag, digest,
	)
	if err != nil {
		return fmt.Errorf("recording fingerprint: %w", err)
	}
	return nil
}

// Fingerprint looks up the digest recorded for a package at a tag. It
// satisfies the planner's fingerprint lookup.
func (s *Store) Fingerprint(pkg, tag string) (string, bool) {
	var digest string
	err := s.db.QueryRow(
		"SELECT digest FROM fingerprints WHERE package = ? AND tag = ?",
		pkg, tag,
	).Scan(&digest)
	if err != nil {
		return "", false
	}
	return digest, true
}

func scanRelease(rows *sql.Rows) (Release, error) {
	var rel Release
	var cascade, published int
	if err := rows.Scan(&rel.RunID, &rel.Package, &rel.OldVersion, &rel.NewVersion, &rel.Level, &cascade, &published, &rel.Tag); err != nil {
		return Release{}, err
	}
	rel.Cascade = cascade != 0
	rel.Published = published != 0
	return rel, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
