// Package statestore persists the digest scheduling state across restarts,
// so a restart during the digest hour neither replays a delivered digest nor
// resets the attempt counter.
package statestore

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS digest_state (
	id        INTEGER PRIMARY KEY CHECK (id = 1),
	last_date TEXT    NOT NULL DEFAULT '',
	attempts  INTEGER NOT NULL DEFAULT 0
);
INSERT OR IGNORE INTO digest_state (id) VALUES (1);
`

// Store is a single-row sqlite database holding the digest state.
type Store struct {
	db *sql.DB
}

// Open creates or opens the database at path and ensures the schema.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open state db: %w", err)
	}
	// The store is only touched from the scheduler goroutine.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init state schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Load returns the last delivered digest date (YYYY-MM-DD, empty if never)
// and the attempt counter.
func (s *Store) Load(ctx context.Context) (lastDate string, attempts int, err error) {
	row := s.db.QueryRowContext(ctx, `SELECT last_date, attempts FROM digest_state WHERE id = 1`)
	if err := row.Scan(&lastDate, &attempts); err != nil {
		return "", 0, fmt.Errorf("load digest state: %w", err)
	}
	return lastDate, attempts, nil
}

// Save overwrites the digest state.
func (s *Store) Save(ctx context.Context, lastDate string, attempts int) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE digest_state SET last_date = ?, attempts = ? WHERE id = 1`, lastDate, attempts)
	if err != nil {
		return fmt.Errorf("save digest state: %w", err)
	}
	return nil
}

func (s *Store) Close() error { return s.db.Close() }
