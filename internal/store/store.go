// Package store persists local session state in SQLite: the last
// resume-analysis payload, per-mode submitted results, and UI preferences.
package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/kalkeesh/AI-mock-interviews/internal/scoring"
)

// ErrNotFound is returned when the requested row does not exist.
var ErrNotFound = errors.New("not found")

// Store wraps the local SQLite database.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the database at path and ensures the schema.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := createSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

// createSchema creates all tables. Safe to call multiple times.
func createSchema(db *sql.DB) error {
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

const schema = `
-- Latest resume-analysis payload; single row, replaced on upload.
CREATE TABLE IF NOT EXISTS analysis_payload (
    id INTEGER PRIMARY KEY CHECK (id = 1),
    payload TEXT NOT NULL,
    updated_at TIMESTAMP NOT NULL
);

-- One stored result per session mode.
CREATE TABLE IF NOT EXISTS session_result (
    id TEXT PRIMARY KEY,
    mode TEXT NOT NULL UNIQUE CHECK (mode IN ('interview', 'gd')),
    result TEXT NOT NULL,
    outcome TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL
);

-- Small key/value preferences (chosen mode, timer length).
CREATE TABLE IF NOT EXISTS preference (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL
);
`

// SaveAnalysis replaces the stored resume-analysis payload.
func (s *Store) SaveAnalysis(raw []byte) error {
	_, err := s.db.Exec(
		`INSERT INTO analysis_payload (id, payload, updated_at) VALUES (1, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET payload = excluded.payload, updated_at = excluded.updated_at`,
		string(raw), time.Now().UTC(),
	)
	return err
}

// Analysis returns the stored resume-analysis payload.
func (s *Store) Analysis() ([]byte, error) {
	var payload string
	err := s.db.QueryRow(`SELECT payload FROM analysis_payload WHERE id = 1`).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return []byte(payload), nil
}

// SaveResult stores a submitted session keyed by mode, replacing any earlier
// run of the same mode. Results of different modes coexist.
func (s *Store) SaveResult(mode scoring.Mode, result *scoring.SessionResult, outcome *scoring.Outcome) error {
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	outcomeJSON, err := json.Marshal(outcome)
	if err != nil {
		return fmt.Errorf("encode outcome: %w", err)
	}

	_, err = s.db.Exec(
		`INSERT INTO session_result (id, mode, result, outcome, created_at) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(mode) DO UPDATE SET id = excluded.id, result = excluded.result,
		     outcome = excluded.outcome, created_at = excluded.created_at`,
		uuid.NewString(), string(mode), string(resultJSON), string(outcomeJSON), time.Now().UTC(),
	)
	return err
}

// Result returns the stored submission for one mode.
func (s *Store) Result(mode scoring.Mode) (*scoring.SessionResult, *scoring.Outcome, error) {
	var resultJSON, outcomeJSON string
	err := s.db.QueryRow(
		`SELECT result, outcome FROM session_result WHERE mode = ?`, string(mode),
	).Scan(&resultJSON, &outcomeJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil, ErrNotFound
	}
	if err != nil {
		return nil, nil, err
	}

	var result scoring.SessionResult
	if err := json.Unmarshal([]byte(resultJSON), &result); err != nil {
		return nil, nil, fmt.Errorf("decode result: %w", err)
	}
	var outcome scoring.Outcome
	if err := json.Unmarshal([]byte(outcomeJSON), &outcome); err != nil {
		return nil, nil, fmt.Errorf("decode outcome: %w", err)
	}
	return &result, &outcome, nil
}

// Results returns all stored outcomes keyed by mode.
func (s *Store) Results() (map[scoring.Mode]*scoring.Outcome, error) {
	rows, err := s.db.Query(`SELECT mode, outcome FROM session_result`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	out := make(map[scoring.Mode]*scoring.Outcome)
	for rows.Next() {
		var mode, outcomeJSON string
		if err := rows.Scan(&mode, &outcomeJSON); err != nil {
			return nil, err
		}
		var outcome scoring.Outcome
		if err := json.Unmarshal([]byte(outcomeJSON), &outcome); err != nil {
			return nil, fmt.Errorf("decode outcome for mode %s: %w", mode, err)
		}
		out[scoring.Mode(mode)] = &outcome
	}
	return out, rows.Err()
}

// SetPreference stores one key/value preference.
func (s *Store) SetPreference(key, value string) error {
	_, err := s.db.Exec(
		`INSERT INTO preference (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		key, value,
	)
	return err
}

// Preference returns a stored preference value.
func (s *Store) Preference(key string) (string, error) {
	var value string
	err := s.db.QueryRow(`SELECT value FROM preference WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	return value, err
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}
