package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// sqliteStore is the single-binary backend. Schema is created on open; there
// is no migration story for sqlite, the tables are additive-only.
type sqliteStore struct {
	db *sql.DB
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS session_archive (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	session_key TEXT NOT NULL,
	channel     TEXT NOT NULL,
	transcript  TEXT NOT NULL,
	turn_count  INTEGER NOT NULL,
	end_reason  TEXT NOT NULL,
	started_at  TIMESTAMP NOT NULL,
	ended_at    TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_session_archive_key ON session_archive(session_key);

CREATE TABLE IF NOT EXISTS cooldowns (
	session_key TEXT PRIMARY KEY,
	ended_at    TIMESTAMP NOT NULL
);
`

func openSQLite(path string) (Store, error) {
	switch {
	case path == "":
		path = filepath.Join(os.Getenv("HOME"), ".goconvo", "goconvo.db")
	case path == "~" || strings.HasPrefix(path, "~/"):
		path = filepath.Join(os.Getenv("HOME"), strings.TrimPrefix(path[1:], "/"))
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// modernc sqlite serializes writes; one connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &sqliteStore{db: db}, nil
}

func (s *sqliteStore) SaveSession(ctx context.Context, rec SessionArchive) error {
	transcript, err := json.Marshal(rec.Transcript)
	if err != nil {
		return fmt.Errorf("marshal transcript: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO session_archive (session_key, channel, transcript, turn_count, end_reason, started_at, ended_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.Key, rec.Channel, string(transcript), rec.TurnCount, rec.EndReason, rec.StartedAt, rec.EndedAt,
	)
	return err
}

func (s *sqliteStore) SaveCooldown(ctx context.Context, key string, endedAt time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO cooldowns (session_key, ended_at) VALUES (?, ?)
		 ON CONFLICT(session_key) DO UPDATE SET ended_at = excluded.ended_at`,
		key, endedAt,
	)
	return err
}

func (s *sqliteStore) LoadCooldowns(ctx context.Context, since time.Time) (map[string]time.Time, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT session_key, ended_at FROM cooldowns WHERE ended_at >= ?`, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]time.Time)
	for rows.Next() {
		var key string
		var endedAt time.Time
		if err := rows.Scan(&key, &endedAt); err != nil {
			return nil, err
		}
		out[key] = endedAt
	}
	return out, rows.Err()
}

func (s *sqliteStore) PruneCooldowns(ctx context.Context, before time.Time) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM cooldowns WHERE ended_at < ?`, before)
	return err
}

func (s *sqliteStore) Close() error { return s.db.Close() }
