package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"content_ideas_assistant/dialogue"
)

// SQLiteRegistry keeps visits across restarts.
type SQLiteRegistry struct {
	db *sql.DB
}

// NewSQLiteRegistry opens (or creates) the registry database at path.
func NewSQLiteRegistry(path string) (*SQLiteRegistry, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create registry directory: %w", err)
		}
	}

	dsn := "file:" + path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open registry: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping registry: %w", err)
	}

	r := &SQLiteRegistry{db: db}
	if err := r.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return r, nil
}

func (r *SQLiteRegistry) initSchema() error {
	query := `
	CREATE TABLE IF NOT EXISTS visits (
		user_id INTEGER PRIMARY KEY,
		last_interaction INTEGER NOT NULL,
		session_count INTEGER NOT NULL DEFAULT 0
	);`
	if _, err := r.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Touch reads the previous visit and records a new one in a single transaction.
func (r *SQLiteRegistry) Touch(ctx context.Context, userID int64, now time.Time) (dialogue.Visit, bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return dialogue.Visit{}, false, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	var (
		prev dialogue.Visit
		last int64
	)
	err = tx.QueryRowContext(ctx,
		`SELECT last_interaction, session_count FROM visits WHERE user_id = ?`, userID,
	).Scan(&last, &prev.SessionCount)
	found := true
	switch {
	case errors.Is(err, sql.ErrNoRows):
		found = false
	case err != nil:
		return dialogue.Visit{}, false, fmt.Errorf("scan visit: %w", err)
	default:
		prev.LastInteraction = time.Unix(last, 0)
	}

	_, err = tx.ExecContext(ctx, `
	INSERT INTO visits (user_id, last_interaction, session_count)
	VALUES (?, ?, 1)
	ON CONFLICT(user_id) DO UPDATE SET
		last_interaction = excluded.last_interaction,
		session_count = visits.session_count + 1`,
		userID, now.Unix())
	if err != nil {
		return dialogue.Visit{}, false, fmt.Errorf("upsert visit: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return dialogue.Visit{}, false, fmt.Errorf("commit: %w", err)
	}
	return prev, found, nil
}

func (r *SQLiteRegistry) Close() error {
	return r.db.Close()
}
