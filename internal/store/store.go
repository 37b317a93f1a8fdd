// Package store persists session archives and the cooldown ledger. Postgres
// backs multi-instance deployments, sqlite backs single-binary ones. Both are
// optional: the orchestrator runs fine with no store at all, it just forgets
// cooldowns across restarts.
package store

import (
	"context"
	"fmt"
	"time"
)

// TranscriptEntry is one archived dialogue line.
type TranscriptEntry struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// SessionArchive is the wrap-up record written when a dialogue ends.
type SessionArchive struct {
	Key        string            `json:"key"` // channel|room|participant
	Channel    string            `json:"channel"`
	Transcript []TranscriptEntry `json:"transcript"`
	TurnCount  int               `json:"turnCount"`
	EndReason  string            `json:"endReason"`
	StartedAt  time.Time         `json:"startedAt"`
	EndedAt    time.Time         `json:"endedAt"`
}

// Store is the persistence backend.
type Store interface {
	SaveSession(ctx context.Context, rec SessionArchive) error
	SaveCooldown(ctx context.Context, key string, endedAt time.Time) error
	// LoadCooldowns returns entries that ended at or after the cutoff,
	// keyed by encoded session key. Used to warm-start the ledger.
	LoadCooldowns(ctx context.Context, since time.Time) (map[string]time.Time, error)
	PruneCooldowns(ctx context.Context, before time.Time) error
	Close() error
}

// Open creates the store for the configured driver. An empty driver returns
// (nil, nil): persistence disabled.
func Open(driver, sqlitePath, postgresDSN string) (Store, error) {
	switch driver {
	case "":
		return nil, nil
	case "sqlite":
		return openSQLite(sqlitePath)
	case "postgres":
		return openPostgres(postgresDSN)
	default:
		return nil, fmt.Errorf("unknown database driver %q", driver)
	}
}
