package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// pgStore is the managed backend. Schema lives in migrations/ and is applied
// with the migrate command, never at open time.
type pgStore struct {
	db *sql.DB
}

func openPostgres(dsn string) (Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("postgres driver selected but no DSN configured")
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetConnMaxIdleTime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &pgStore{db: db}, nil
}

func (s *pgStore) SaveSession(ctx context.Context, rec SessionArchive) error {
	transcript, err := json.Marshal(rec.Transcript)
	if err != nil {
		return fmt.Errorf("marshal transcript: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO session_archive (session_key, channel, transcript, turn_count, end_reason, started_at, ended_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		rec.Key, rec.Channel, transcript, rec.TurnCount, rec.EndReason, rec.StartedAt, rec.EndedAt,
	)
	return err
}

func (s *pgStore) SaveCooldown(ctx context.Context, key string, endedAt time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO cooldowns (session_key, ended_at) VALUES ($1, $2)
		 ON CONFLICT (session_key) DO UPDATE SET ended_at = EXCLUDED.ended_at`,
		key, endedAt,
	)
	return err
}

func (s *pgStore) LoadCooldowns(ctx context.Context, since time.Time) (map[string]time.Time, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT session_key, ended_at FROM cooldowns WHERE ended_at >= $1`, since)
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

func (s *pgStore) PruneCooldowns(ctx context.Context, before time.Time) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM cooldowns WHERE ended_at < $1`, before)
	return err
}

func (s *pgStore) Close() error { return s.db.Close() }
