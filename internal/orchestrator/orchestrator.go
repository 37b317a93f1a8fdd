package orchestrator

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nextlevelbuilder/goconvo/internal/bus"
	"github.com/nextlevelbuilder/goconvo/internal/config"
	"github.com/nextlevelbuilder/goconvo/internal/model"
	"github.com/nextlevelbuilder/goconvo/internal/normalize"
	"github.com/nextlevelbuilder/goconvo/internal/providers"
	"github.com/nextlevelbuilder/goconvo/internal/store"
)

// Sender delivers outbound messages. Implementations are fire-and-forget; no
// delivery confirmation flows back into the orchestrator.
type Sender interface {
	SendReply(channel, roomID, participantID, text string)
	SendForward(channel, roomID, participantID string, parts []bus.ForwardPart)
}

// ModelCaller dispatches an asynchronous model call; the result arrives later
// as a bus.ModelResult with the same request id.
type ModelCaller interface {
	Call(requestID string, messages []providers.Message, opts model.CallOptions)
}

// RoomFetcher dispatches asynchronous room context fetches; results arrive as
// bus.RoomInfoResult events.
type RoomFetcher interface {
	FetchNotice(requestID, channel, roomID string)
	FetchHistory(requestID, channel, roomID string, count int)
}

// Renderer turns the report's long-form markdown into an image. Optional; a
// nil or failing renderer falls back to chunked plain text.
type Renderer interface {
	RenderMarkdown(title, markdown string) ([]byte, error)
}

// Archive persists session wrap-ups and cooldown entries. Optional and
// best-effort: failures are logged, never surfaced to the dialogue.
type Archive interface {
	SaveSession(ctx context.Context, rec store.SessionArchive) error
	SaveCooldown(ctx context.Context, key string, endedAt time.Time) error
	PruneCooldowns(ctx context.Context, before time.Time) error
}

// Orchestrator is the session orchestrator facade. All four event entry
// points (HandleMessage, HandleModelResult, HandleRoomInfo, HandleTick)
// serialize on one mutex, preserving the single-writer semantics the state
// machine assumes. No entry point blocks on external calls and none lets a
// panic escape to the event loop.
type Orchestrator struct {
	mu      sync.Mutex
	cfg     config.OrchestratorConfig
	prompts promptSet

	sender   Sender
	models   ModelCaller
	rooms    RoomFetcher
	renderer Renderer
	archive  Archive

	sessions  map[Key]*Session
	batches   *batcher
	cooldowns *cooldownLedger
	pending   map[string]*pendingRequest

	now   func() time.Time
	newID func() string
}

// Options carries the collaborators for New. Renderer, Archive, and Rooms may
// be nil; Now and NewID default to the wall clock and uuid.
type Options struct {
	Config   config.OrchestratorConfig
	Sender   Sender
	Models   ModelCaller
	Rooms    RoomFetcher
	Renderer Renderer
	Archive  Archive
	Now      func() time.Time
	NewID    func() string
}

func New(opts Options) *Orchestrator {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	newID := opts.NewID
	if newID == nil {
		newID = uuid.NewString
	}
	return &Orchestrator{
		cfg:       opts.Config,
		prompts:   resolvePrompts(opts.Config.Prompts),
		sender:    opts.Sender,
		models:    opts.Models,
		rooms:     opts.Rooms,
		renderer:  opts.Renderer,
		archive:   opts.Archive,
		sessions:  make(map[Key]*Session),
		batches:   newBatcher(opts.Config.BatchCap),
		cooldowns: newCooldownLedger(),
		pending:   make(map[string]*pendingRequest),
		now:       now,
		newID:     newID,
	}
}

// Reload swaps in a new config snapshot between events. Live sessions keep
// running; new limits apply from the next event on.
func (o *Orchestrator) Reload(cfg config.OrchestratorConfig) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.cfg = cfg
	o.prompts = resolvePrompts(cfg.Prompts)
	o.batches.cap = cfg.BatchCap
}

// SeedCooldowns warm-starts the ledger from persisted entries, so a restart
// does not instantly re-trigger every recently ended dialogue.
func (o *Orchestrator) SeedCooldowns(entries map[string]time.Time) {
	o.mu.Lock()
	defer o.mu.Unlock()
	for enc, endedAt := range entries {
		if key, ok := DecodeKey(enc); ok {
			o.cooldowns.touch(key, endedAt)
		}
	}
}

// HandleMessage is the entry point for every inbound chat message.
func (o *Orchestrator) HandleMessage(msg bus.InboundMessage) {
	defer o.recoverEvent("message")
	o.mu.Lock()
	defer o.mu.Unlock()

	text := normalize.Text(msg, msg.Metadata["self_id"])
	if text == "" {
		return
	}
	mentions := normalize.Mentions(msg, msg.Metadata["self_id"])
	key := Key{Channel: msg.Channel, RoomID: msg.RoomID, ParticipantID: msg.SenderID}
	now := o.now()

	if s, ok := o.sessions[key]; ok {
		o.handleSessionMessage(s, text, now)
		return
	}

	// The assistant does not insert itself into conversations addressed at
	// someone else.
	if mentions.Other && !mentions.Assistant {
		return
	}
	if o.cooldowns.active(key, now, o.cfg.Cooldown()) {
		slog.Debug("message during cooldown, ignoring", "key", key.Masked())
		return
	}

	overflow := o.batches.offer(key, batchItem{At: now, Text: text, Mentioned: mentions.Assistant})
	if mentions.Assistant || overflow {
		// Urgent path and overflow safety valve both bypass the merge window.
		o.tryFlushLocked(key, now)
	}
}

// handleSessionMessage appends inbound text to an active session and advances
// the state machine: interrupt and report keywords are control actions,
// everything else asks for another assistant turn.
func (o *Orchestrator) handleSessionMessage(s *Session, text string, now time.Time) {
	s.appendUser(text, now)

	if matchKeyword(text, o.cfg.InterruptKeywords) {
		o.sendReplyTo(s.Key, o.prompts.interruptAck)
		o.endSession(s.Key, EndReasonInterrupt)
		return
	}

	if matchKeyword(text, o.cfg.ReportKeywords) {
		if s.State != StateActive {
			return // report already underway
		}
		if s.ReplyPending {
			s.WantReport = true
			return
		}
		o.startReport(s)
		return
	}

	if s.State != StateActive {
		// Report underway; the message is recorded but no further turn happens.
		return
	}
	if s.ReplyPending {
		s.NeedsReply = true
		return
	}
	o.issueReply(s)
}

// matchKeyword reports whether the normalized text equals one of the
// configured keywords (ASCII case-insensitive).
func matchKeyword(text string, keywords []string) bool {
	t := strings.TrimSpace(text)
	for _, kw := range keywords {
		if kw != "" && strings.EqualFold(t, kw) {
			return true
		}
	}
	return false
}

// endSession removes the session, starts the cooldown, and archives the
// transcript. The notice, if any, must be sent by the caller beforehand.
func (o *Orchestrator) endSession(key Key, reason string) {
	s, ok := o.sessions[key]
	if !ok {
		return
	}
	delete(o.sessions, key)
	if s.PendingRequestID != "" {
		delete(o.pending, s.PendingRequestID)
	}
	now := o.now()
	o.cooldowns.touch(key, now)

	slog.Info("session ended",
		"key", key.Masked(),
		"reason", reason,
		"turns", s.TurnCount,
		"duration", now.Sub(s.StartedAt),
	)

	if o.archive != nil {
		rec := store.SessionArchive{
			Key:        key.Encode(),
			Channel:    key.Channel,
			Transcript: transcriptLines(s.Transcript),
			TurnCount:  s.TurnCount,
			EndReason:  reason,
			StartedAt:  s.StartedAt,
			EndedAt:    now,
		}
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := o.archive.SaveCooldown(ctx, key.Encode(), now); err != nil {
				slog.Warn("persist cooldown failed", "key", key.Masked(), "error", err)
			}
			if err := o.archive.SaveSession(ctx, rec); err != nil {
				slog.Warn("archive session failed", "key", key.Masked(), "error", err)
			}
		}()
	}
}

func transcriptLines(msgs []providers.Message) []store.TranscriptEntry {
	out := make([]store.TranscriptEntry, len(msgs))
	for i, m := range msgs {
		out[i] = store.TranscriptEntry{Role: m.Role, Content: m.Content}
	}
	return out
}

func (o *Orchestrator) sendReplyTo(key Key, text string) {
	o.sender.SendReply(key.Channel, key.RoomID, key.ParticipantID, text)
}

// recoverEvent keeps one failing conversation from taking down the event
// loop for everyone else.
func (o *Orchestrator) recoverEvent(event string) {
	if r := recover(); r != nil {
		slog.Error("orchestrator event panicked", "event", event, "panic", r)
	}
}

// Maintain runs the scheduled deep sweep: expired cooldown entries are pruned
// in memory and in the store.
func (o *Orchestrator) Maintain() {
	o.mu.Lock()
	cutoff := o.now().Add(-o.cfg.Cooldown())
	pruned := o.cooldowns.prune(cutoff)
	o.mu.Unlock()

	if pruned > 0 {
		slog.Debug("cooldown ledger pruned", "entries", pruned)
	}
	if o.archive != nil {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := o.archive.PruneCooldowns(ctx, cutoff); err != nil {
				slog.Warn("prune cooldown store failed", "error", err)
			}
		}()
	}
}

// ActiveSessions reports the number of live dialogues (for logs and doctor).
func (o *Orchestrator) ActiveSessions() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.sessions)
}
