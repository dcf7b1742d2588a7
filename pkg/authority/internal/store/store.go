// Package store is the sqlite persistence layer backing the Table
// Authority's event log and table definitions, adapted from the teacher's
// pkg/server/internal/db package in the same style: mattn/go-sqlite3,
// CREATE TABLE IF NOT EXISTS, INSERT OR REPLACE, JSON blob columns for
// nested structures.
package store

import (
	"database/sql"
	"encoding/json"

	_ "github.com/mattn/go-sqlite3"
)

// EventRow is one persisted authority event.
type EventRow struct {
	EventID   string
	Type      string
	ClubID    string
	TableID   string
	ActorID   string
	TargetID  string
	Data      string // JSON-encoded map[string]interface{}
	Timestamp int64
}

// TableRow is one persisted table definition, enough to reconstruct a Table
// after a process restart (seat occupancy is intentionally not persisted
// here — a restart always re-admits players through join_table).
type TableRow struct {
	TableID    string
	ClubID     string
	HostID     string
	MaxSeats   int
	MinToStart int
	Status     string
	CreatedAt  int64
}

// Store wraps a sqlite connection holding the authority schema.
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
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS authority_events (
			event_id TEXT PRIMARY KEY,
			type TEXT NOT NULL,
			club_id TEXT NOT NULL,
			table_id TEXT,
			actor_id TEXT,
			target_id TEXT,
			data TEXT DEFAULT '{}',
			timestamp INTEGER NOT NULL
		)
	`); err != nil {
		return err
	}

	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS tables (
			table_id TEXT PRIMARY KEY,
			club_id TEXT NOT NULL,
			host_id TEXT NOT NULL,
			max_seats INTEGER NOT NULL,
			min_to_start INTEGER NOT NULL,
			status TEXT NOT NULL DEFAULT 'open',
			created_at INTEGER NOT NULL
		)
	`)
	return err
}

// AppendEvent persists one authority event. data is marshaled to JSON by
// the caller's choosing, or nil for no payload.
func (s *Store) AppendEvent(row EventRow, data map[string]interface{}) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return err
	}
	_, err = s.Exec(`
		INSERT OR REPLACE INTO authority_events (event_id, type, club_id, table_id, actor_id, target_id, data, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, row.EventID, row.Type, row.ClubID, row.TableID, row.ActorID, row.TargetID, string(payload), row.Timestamp)
	return err
}

// EventsForTable returns every persisted event for tableID in timestamp
// order, for audit replay.
func (s *Store) EventsForTable(tableID string) ([]EventRow, error) {
	rows, err := s.Query(`
		SELECT event_id, type, club_id, table_id, actor_id, target_id, data, timestamp
		FROM authority_events WHERE table_id = ? ORDER BY timestamp ASC
	`, tableID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []EventRow
	for rows.Next() {
		var r EventRow
		if err := rows.Scan(&r.EventID, &r.Type, &r.ClubID, &r.TableID, &r.ActorID, &r.TargetID, &r.Data, &r.Timestamp); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// SaveTable upserts a table's durable definition.
func (s *Store) SaveTable(row TableRow) error {
	_, err := s.Exec(`
		INSERT OR REPLACE INTO tables (table_id, club_id, host_id, max_seats, min_to_start, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, row.TableID, row.ClubID, row.HostID, row.MaxSeats, row.MinToStart, row.Status, row.CreatedAt)
	return err
}

// LoadTables returns every persisted table definition, for rebuilding the
// in-memory Table registry after a restart.
func (s *Store) LoadTables() ([]TableRow, error) {
	rows, err := s.Query(`SELECT table_id, club_id, host_id, max_seats, min_to_start, status, created_at FROM tables`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []TableRow
	for rows.Next() {
		var r TableRow
		if err := rows.Scan(&r.TableID, &r.ClubID, &r.HostID, &r.MaxSeats, &r.MinToStart, &r.Status, &r.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Close closes the underlying connection.
func (s *Store) Close() error {
	return s.DB.Close()
}
