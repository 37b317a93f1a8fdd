package orchestrator

import (
	"time"

	"github.com/nextlevelbuilder/goconvo/internal/providers"
)

// SessionState is the lifecycle state of an active dialogue.
type SessionState string

const (
	StateActive           SessionState = "active"
	StateGeneratingReport SessionState = "generating_report"
)

// End reasons recorded in the session archive.
const (
	EndReasonInterrupt = "interrupt"
	EndReasonReport    = "report"
	EndReasonTimeout   = "timeout"
	EndReasonFailure   = "failure"
)

// Session is one active multi-turn dialogue. Owned by the orchestrator and
// mutated only under its lock.
type Session struct {
	Key        Key
	Transcript []providers.Message // user/assistant entries, insertion order replayed verbatim
	TurnCount  int                 // assistant replies only

	State            SessionState
	StartedByMention bool
	RoomContext      string // captured once at creation, seeds the first reply only

	StartedAt      time.Time
	LastActivityAt time.Time

	// At most one reply/report call may be outstanding per session.
	ReplyPending     bool
	PendingRequestID string
	// Input arrived while a reply was outstanding; drained on resolution.
	NeedsReply bool
	// Report keyword seen while a reply was outstanding; takes precedence
	// over NeedsReply when the outstanding call resolves.
	WantReport bool
}

func (s *Session) appendUser(text string, now time.Time) {
	s.Transcript = append(s.Transcript, providers.Message{Role: "user", Content: text})
	s.LastActivityAt = now
}

func (s *Session) appendAssistant(text string, now time.Time) {
	s.Transcript = append(s.Transcript, providers.Message{Role: "assistant", Content: text})
	s.TurnCount++
	s.LastActivityAt = now
}
