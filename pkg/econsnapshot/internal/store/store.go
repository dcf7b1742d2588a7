// Package store is the sqlite persistence layer for the Snapshot/Recovery
// component, adapted from the teacher's pkg/server/internal/db package: the
// same driver, the same CREATE TABLE IF NOT EXISTS / INSERT OR REPLACE
// style, JSON blob columns for the nested structures.
package store

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// Row is one persisted snapshot, serialized form. The caller (package
// econsnapshot) owns marshaling its Snapshot type to/from Payload JSON; this
// package only ever sees bytes plus the handful of columns it needs to
// index and prune on.
type Row struct {
	SnapshotID string
	CreatedAt  int64
	Checksum   string
	Payload    string // JSON-encoded econsnapshot.Snapshot
}

// Store wraps a sqlite connection holding the snapshots table.
type Store struct {
	*sql.DB
}

// Open creates/opens the sqlite database at dbPath and ensures its schema.
func Open(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, err
	}
	if err := createTables(db); err != nil {
		return nil, err
	}
	return &Store{db}, nil
}

func createTables(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS snapshots (
			snapshot_id TEXT PRIMARY KEY,
			created_at INTEGER NOT NULL,
			checksum TEXT NOT NULL,
			payload TEXT NOT NULL
		)
	`)
	return err
}

// Save upserts one snapshot row.
func (s *Store) Save(row Row) error {
	_, err := s.Exec(`
		INSERT OR REPLACE INTO snapshots (snapshot_id, created_at, checksum, payload)
		VALUES (?, ?, ?, ?)
	`, row.SnapshotID, row.CreatedAt, row.Checksum, row.Payload)
	return err
}

// Load fetches one snapshot row by ID.
func (s *Store) Load(snapshotID string) (Row, error) {
	var row Row
	err := s.QueryRow(`
		SELECT snapshot_id, created_at, checksum, payload
		FROM snapshots WHERE snapshot_id = ?
	`, snapshotID).Scan(&row.SnapshotID, &row.CreatedAt, &row.Checksum, &row.Payload)
	if err == sql.ErrNoRows {
		return Row{}, fmt.Errorf("snapshot not found: %s", snapshotID)
	}
	return row, err
}

// LoadLatest fetches the most recently created snapshot row.
func (s *Store) LoadLatest() (Row, error) {
	var row Row
	err := s.QueryRow(`
		SELECT snapshot_id, created_at, checksum, payload
		FROM snapshots ORDER BY created_at DESC LIMIT 1
	`).Scan(&row.SnapshotID, &row.CreatedAt, &row.Checksum, &row.Payload)
	if err == sql.ErrNoRows {
		return Row{}, fmt.Errorf("no snapshots stored")
	}
	return row, err
}

// ListIDsOldestFirst returns every snapshot ID ordered by creation time,
// oldest first — used by Prune to decide what to delete.
func (s *Store) ListIDsOldestFirst() ([]string, error) {
	rows, err := s.Query(`SELECT snapshot_id FROM snapshots ORDER BY created_at ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Delete removes one snapshot row.
func (s *Store) Delete(snapshotID string) error {
	_, err := s.Exec(`DELETE FROM snapshots WHERE snapshot_id = ?`, snapshotID)
	return err
}

// Close closes the underlying connection.
func (s *Store) Close() error {
	return s.DB.Close()
}
