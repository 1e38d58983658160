// Package audit provides an append-only SQLite log of pairing state
// transitions and completed pairings, queryable through DB.Transitions
// and DB.RecentCompletedPairings; no iohc-admin verb reads it. It is
// additive to the pairing engine's own in-memory state: nothing here
// is read back by the Pairing Engine or Command Gateway.
package audit

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// DB wraps the SQLite connection backing the audit log.
type DB struct {
	conn *sql.DB
}

// Open opens or creates the SQLite database at path.
func Open(path string) (*DB, error) {
	conn, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open audit database: %w", err)
	}

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to migrate audit database: %w", err)
	}
	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// migrate creates the audit schema.
func (db *DB) migrate() error {
	schema := `
	-- Every pairing state transition the engine makes, one row per
	-- transition, never updated or deleted.
	CREATE TABLE IF NOT EXISTS pairing_transitions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		address TEXT NOT NULL,
		session_id TEXT NOT NULL,
		from_state TEXT NOT NULL,
		to_state TEXT NOT NULL,
		occurred_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_pairing_transitions_address
		ON pairing_transitions(address);

	-- One row per address each time completePairing succeeds, forming
	-- the durable "when did this device last pair" record.
	CREATE TABLE IF NOT EXISTS completed_pairings (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		address TEXT NOT NULL,
		name TEXT,
		node_type INTEGER,
		node_subtype INTEGER,
		manufacturer INTEGER,
		completed_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_completed_pairings_address
		ON completed_pairings(address);

	-- Every session-fatal failure: timeouts, auth rejection, send
	-- exhaustion.
	CREATE TABLE IF NOT EXISTS pairing_failures (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		address TEXT NOT NULL,
		session_id TEXT NOT NULL,
		reason TEXT NOT NULL,
		failed_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);
	`
	_, err := db.conn.Exec(schema)
	return err
}

// Transition is one row of the pairing_transitions table.
type Transition struct {
	Address    string
	SessionID  string
	FromState  string
	ToState    string
	OccurredAt time.Time
}

// RecordTransition appends one state transition to the log.
func (db *DB) RecordTransition(address, sessionID, fromState, toState string) error {
	_, err := db.conn.Exec(
		`INSERT INTO pairing_transitions (address, session_id, from_state, to_state) VALUES (?, ?, ?, ?)`,
		address, sessionID, fromState, toState,
	)
	return err
}

// RecordCompletedPairing appends a row recording a successful pairing.
func (db *DB) RecordCompletedPairing(address, name string, nodeType uint16, nodeSubtype, manufacturer uint8) error {
	_, err := db.conn.Exec(
		`INSERT INTO completed_pairings (address, name, node_type, node_subtype, manufacturer) VALUES (?, ?, ?, ?, ?)`,
		address, name, nodeType, nodeSubtype, manufacturer,
	)
	return err
}

// RecordFailure appends a row recording a session-fatal failure.
func (db *DB) RecordFailure(address, sessionID, reason string) error {
	_, err := db.conn.Exec(
		`INSERT INTO pairing_failures (address, session_id, reason) VALUES (?, ?, ?)`,
		address, sessionID, reason,
	)
	return err
}

// Transitions returns every recorded transition for address, oldest
// first.
func (db *DB) Transitions(address string) ([]Transition, error) {
	rows, err := db.conn.Query(
		`SELECT address, session_id, from_state, to_state, occurred_at
		 FROM pairing_transitions WHERE address = ? ORDER BY id ASC`,
		address,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Transition
	for rows.Next() {
		var t Transition
		if err := rows.Scan(&t.Address, &t.SessionID, &t.FromState, &t.ToState, &t.OccurredAt); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// CompletedPairing is one row of the completed_pairings table.
type CompletedPairing struct {
	Address      string
	Name         string
	NodeType     uint16
	NodeSubtype  uint8
	Manufacturer uint8
	CompletedAt  time.Time
}

// RecentCompletedPairings returns the most recent completed pairings,
// newest first, bounded by limit.
func (db *DB) RecentCompletedPairings(limit int) ([]CompletedPairing, error) {
	rows, err := db.conn.Query(
		`SELECT address, name, node_type, node_subtype, manufacturer, completed_at
		 FROM completed_pairings ORDER BY id DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []CompletedPairing
	for rows.Next() {
		var c CompletedPairing
		if err := rows.Scan(&c.Address, &c.Name, &c.NodeType, &c.NodeSubtype, &c.Manufacturer, &c.CompletedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
