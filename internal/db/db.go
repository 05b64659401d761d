package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// DB wraps a sql.DB with corpusd-specific helpers.
type DB struct {
	*sql.DB
	path string
}

// Open creates or opens a SQLite database at the given path.
func Open(path string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	sqlDB, err := sql.Open("sqlite", path+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if err := sqlDB.Ping(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	d := &DB{DB: sqlDB, path: path}
	if err := d.migrate(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return d, nil
}

// OpenMemory creates an in-memory SQLite database (useful for testing).
func OpenMemory() (*DB, error) {
	sqlDB, err := sql.Open("sqlite", ":memory:?_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("opening in-memory database: %w", err)
	}

	d := &DB{DB: sqlDB, path: ":memory:"}
	if err := d.migrate(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return d, nil
}

// Path returns the filesystem path of the database.
func (d *DB) Path() string { return d.path }

// migrate runs all schema migrations.
func (d *DB) migrate() error {
	_, err := d.Exec(schema)
	return err
}

// schema contains the full database schema. New tables are added here.
//
// records is append-only: rows are inserted with valid_to NULL and the
// only permitted mutations are setting valid_to/superseded_by once and
// bumping last_checked while a row is still current. The partial unique
// index enforces the single-current-version invariant per (source,
// identity) at the storage layer.
const schema = `
CREATE TABLE IF NOT EXISTS records (
    id TEXT PRIMARY KEY,
    source TEXT NOT NULL,
    identity TEXT NOT NULL,
    collection TEXT NOT NULL,
    title TEXT NOT NULL DEFAULT '',
    content TEXT NOT NULL,
    fingerprint TEXT NOT NULL,
    valid_from DATETIME NOT NULL,
    valid_to DATETIME,
    superseded_by TEXT,
    last_checked DATETIME NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_records_current
    ON records(source, identity) WHERE valid_to IS NULL;
CREATE INDEX IF NOT EXISTS idx_records_identity ON records(identity, valid_from);
CREATE INDEX IF NOT EXISTS idx_records_collection ON records(collection);

CREATE TABLE IF NOT EXISTS record_events (
    seq INTEGER PRIMARY KEY AUTOINCREMENT,
    record_id TEXT NOT NULL,
    source TEXT NOT NULL,
    identity TEXT NOT NULL,
    collection TEXT NOT NULL,
    kind TEXT NOT NULL CHECK(kind IN ('current','retired')),
    at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_record_events_collection ON record_events(collection, seq);

CREATE TABLE IF NOT EXISTS checkpoints (
    source TEXT NOT NULL,
    stream TEXT NOT NULL DEFAULT '',
    cursor TEXT NOT NULL,
    generation INTEGER NOT NULL,
    committed_at DATETIME NOT NULL,
    PRIMARY KEY(source, stream, generation)
);

CREATE TABLE IF NOT EXISTS fingerprints (
    source TEXT NOT NULL,
    identity TEXT NOT NULL,
    fingerprint TEXT NOT NULL,
    last_checked DATETIME NOT NULL,
    PRIMARY KEY(source, identity)
);

CREATE TABLE IF NOT EXISTS index_cursors (
    collection TEXT PRIMARY KEY,
    seq INTEGER NOT NULL DEFAULT 0,
    updated_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS cycles (
    id TEXT PRIMARY KEY,
    source TEXT NOT NULL,
    state TEXT NOT NULL DEFAULT 'running' CHECK(state IN ('running','completed','failed','cancelled')),
    started_at DATETIME NOT NULL,
    finished_at DATETIME,
    new_count INTEGER NOT NULL DEFAULT 0,
    updated_count INTEGER NOT NULL DEFAULT 0,
    unchanged_count INTEGER NOT NULL DEFAULT 0,
    repealed_count INTEGER NOT NULL DEFAULT 0,
    failed_count INTEGER NOT NULL DEFAULT 0,
    error TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_cycles_source ON cycles(source, started_at);
`
