// Package store persists per-file sync state in an embedded SQLite database.
// It is the sole owner of tracked-file records; the reconciler reads and
// writes through it and keeps no copy across cycles.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	apperrors "github.com/alexjbarnes/ragsync/internal/errors"
	sqlite3 "github.com/mattn/go-sqlite3"
)

// storeDirPerm is the permission mode for the database directory. The
// session cache shares this directory by default, so it stays owner-only.
const storeDirPerm = fs.FileMode(0o700)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS files (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	path         TEXT NOT NULL UNIQUE,
	display_name TEXT NOT NULL,
	extension    TEXT NOT NULL,
	fingerprint  TEXT NOT NULL,
	status       TEXT NOT NULL,
	remote_id    TEXT NOT NULL DEFAULT '',
	updated_at   INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_files_status ON files(status);
`

// Record is one tracked file's persisted sync state.
type Record struct {
	Path        string // absolute filesystem path, unique
	DisplayName string // path relative to root, the remote document name
	Extension   string // informational once stored
	Fingerprint string // hex digest of the last scanned content
	Status      Status
	RemoteID    string // empty until the remote confirms an upload
}

// Store wraps a sql.DB holding the files table.
type Store struct {
	conn *sql.DB
}

// Open opens (or creates) the SQLite database at path, creating its
// parent directory if needed, and applies the schema. Schema application
// is idempotent; conflicts with an existing incompatible table fail
// loudly rather than dropping data.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), storeDirPerm); err != nil {
		return nil, fmt.Errorf("store: create db directory: %w", err)
	}

	conn, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("store: open db: %w", err)
	}

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("store: ping: %w", err)
	}

	if _, err := conn.Exec(schemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("store: apply schema: %w", err)
	}

	return &Store{conn: conn}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.conn.Close()
}

// Get returns the record for a path, or ErrNotFound.
func (s *Store) Get(path string) (*Record, error) {
	row := s.conn.QueryRow(
		`SELECT path, display_name, extension, fingerprint, status, remote_id FROM files WHERE path = ?`, path)

	return scanRecord(row)
}

// ListByStatus returns all records in the given status.
func (s *Store) ListByStatus(status Status) ([]Record, error) {
	rows, err := s.conn.Query(
		`SELECT path, display_name, extension, fingerprint, status, remote_id FROM files WHERE status = ? ORDER BY path`, string(status))
	if err != nil {
		return nil, fmt.Errorf("store: list by status: %w", err)
	}
	defer rows.Close()

	return collectRecords(rows)
}

// ListAll returns every tracked record.
func (s *Store) ListAll() ([]Record, error) {
	rows, err := s.conn.Query(
		`SELECT path, display_name, extension, fingerprint, status, remote_id FROM files ORDER BY path`)
	if err != nil {
		return nil, fmt.Errorf("store: list all: %w", err)
	}
	defer rows.Close()

	return collectRecords(rows)
}

// Insert adds a new record. Returns ErrConflict if the path is already
// tracked.
func (s *Store) Insert(rec Record) error {
	if _, err := ParseStatus(string(rec.Status)); err != nil {
		return err
	}

	_, err := s.conn.Exec(
		`INSERT INTO files (path, display_name, extension, fingerprint, status, remote_id, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.Path, rec.DisplayName, rec.Extension, rec.Fingerprint, string(rec.Status), rec.RemoteID, now())
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique {
			return fmt.Errorf("%w: %s", apperrors.ErrConflict, rec.Path)
		}

		return fmt.Errorf("store: insert %s: %w", rec.Path, err)
	}

	return nil
}

// UpdateFingerprintAndStatus sets a record's fingerprint and status in
// one statement.
func (s *Store) UpdateFingerprintAndStatus(path, fingerprint string, status Status) error {
	if _, err := ParseStatus(string(status)); err != nil {
		return err
	}

	return s.update(path,
		`UPDATE files SET fingerprint = ?, status = ?, updated_at = ? WHERE path = ?`,
		fingerprint, string(status), now(), path)
}

// UpdateStatus sets a record's status.
func (s *Store) UpdateStatus(path string, status Status) error {
	if _, err := ParseStatus(string(status)); err != nil {
		return err
	}

	return s.update(path,
		`UPDATE files SET status = ?, updated_at = ? WHERE path = ?`,
		string(status), now(), path)
}

// UpdateRemoteID sets a record's remote document id.
func (s *Store) UpdateRemoteID(path, remoteID string) error {
	return s.update(path,
		`UPDATE files SET remote_id = ?, updated_at = ? WHERE path = ?`,
		remoteID, now(), path)
}

// UpdateStatusAndRemoteID sets a record's status and remote id in one
// statement.
func (s *Store) UpdateStatusAndRemoteID(path string, status Status, remoteID string) error {
	if _, err := ParseStatus(string(status)); err != nil {
		return err
	}

	return s.update(path,
		`UPDATE files SET status = ?, remote_id = ?, updated_at = ? WHERE path = ?`,
		string(status), remoteID, now(), path)
}

// UpdateStatusAll sets the status for every path, equivalent to applying
// UpdateStatus sequentially. On failure it returns the paths already
// updated alongside the error.
func (s *Store) UpdateStatusAll(paths []string, status Status) (applied []string, err error) {
	if _, err := ParseStatus(string(status)); err != nil {
		return nil, err
	}

	for _, path := range paths {
		if err := s.UpdateStatus(path, status); err != nil {
			return applied, fmt.Errorf("store: batch status update stopped at %s: %w", path, err)
		}

		applied = append(applied, path)
	}

	return applied, nil
}

// Delete removes a record. Deleting an untracked path is a no-op.
func (s *Store) Delete(path string) error {
	if _, err := s.conn.Exec(`DELETE FROM files WHERE path = ?`, path); err != nil {
		return fmt.Errorf("store: delete %s: %w", path, err)
	}

	return nil
}

func (s *Store) update(path, query string, args ...any) error {
	res, err := s.conn.Exec(query, args...)
	if err != nil {
		return fmt.Errorf("store: update %s: %w", path, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("store: update %s: %w", path, err)
	}

	if n == 0 {
		return fmt.Errorf("%w: %s", apperrors.ErrNotFound, path)
	}

	return nil
}

func scanRecord(row *sql.Row) (*Record, error) {
	var (
		rec    Record
		status string
	)

	err := row.Scan(&rec.Path, &rec.DisplayName, &rec.Extension, &rec.Fingerprint, &status, &rec.RemoteID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.ErrNotFound
	}

	if err != nil {
		return nil, fmt.Errorf("store: scan record: %w", err)
	}

	rec.Status, err = ParseStatus(status)
	if err != nil {
		return nil, err
	}

	return &rec, nil
}

func collectRecords(rows *sql.Rows) ([]Record, error) {
	var records []Record

	for rows.Next() {
		var (
			rec    Record
			status string
		)

		if err := rows.Scan(&rec.Path, &rec.DisplayName, &rec.Extension, &rec.Fingerprint, &status, &rec.RemoteID); err != nil {
			return nil, fmt.Errorf("store: scan record: %w", err)
		}

		parsed, err := ParseStatus(status)
		if err != nil {
			return nil, err
		}

		rec.Status = parsed
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: iterate records: %w", err)
	}

	return records, nil
}

func now() int64 {
	return time.Now().Unix()
}
