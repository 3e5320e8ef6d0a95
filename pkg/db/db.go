// Package db provides the durable mirror of the per-user OAuth token map. It
// wraps a SQLite database with one table keyed by user ID; tokens are stored
// as serialized JSON so the oauth2.Token shape can evolve without schema
// migrations. The in-memory copy held by the token cache stays authoritative:
// writes here are best-effort and a failed write only costs durability across
// a process restart.
package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
	"golang.org/x/oauth2"
)

// DB wraps a sql.DB connection and exposes the token persistence helpers.
type DB struct {
	*sql.DB
}

// ErrNotFound is returned by GetToken when no record exists for the user.
var ErrNotFound = sql.ErrNoRows

// New opens the SQLite database located at path, creating the file and
// schema when missing.
func New(path string) (*DB, error) {
	d, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}
	if _, err := d.Exec(`CREATE TABLE IF NOT EXISTS spotify_tokens (user_id TEXT PRIMARY KEY, token TEXT NOT NULL)`); err != nil {
		d.Close()
		return nil, fmt.Errorf("init db: %w", err)
	}
	return &DB{d}, nil
}

// SaveToken persists the OAuth token for the given userID, replacing any
// existing record.
func (db *DB) SaveToken(ctx context.Context, userID string, token *oauth2.Token) error {
	b, err := json.Marshal(token)
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx, `INSERT INTO spotify_tokens(user_id, token) VALUES(?, ?) ON CONFLICT(user_id) DO UPDATE SET token=excluded.token`, userID, string(b))
	return err
}

// GetToken retrieves the stored token for userID. ErrNotFound is returned
// when the user has never connected on this installation.
func (db *DB) GetToken(ctx context.Context, userID string) (*oauth2.Token, error) {
	var data string
	if err := db.QueryRowContext(ctx, `SELECT token FROM spotify_tokens WHERE user_id=?`, userID).Scan(&data); err != nil {
		return nil, err
	}
	var tok oauth2.Token
	if err := json.Unmarshal([]byte(data), &tok); err != nil {
		return nil, err
	}
	return &tok, nil
}

// DeleteToken removes the stored token for userID. Deleting a missing record
// is not an error.
func (db *DB) DeleteToken(ctx context.Context, userID string) error {
	_, err := db.ExecContext(ctx, `DELETE FROM spotify_tokens WHERE user_id=?`, userID)
	return err
}
