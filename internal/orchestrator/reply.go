package orchestrator

import (
	"log/slog"
	"strings"

	"github.com/nextlevelbuilder/goconvo/internal/bus"
	"github.com/nextlevelbuilder/goconvo/internal/model"
	"github.com/nextlevelbuilder/goconvo/internal/providers"
)

// HandleModelResult is the entry point for asynchronous model call results.
// Results with no matching pending request (already reaped, or from a session
// that ended meanwhile) are dropped.
func (o *Orchestrator) HandleModelResult(res bus.ModelResult) {
	defer o.recoverEvent("model_result")
	o.mu.Lock()
	defer o.mu.Unlock()

	p, ok := o.pending[res.RequestID]
	if !ok {
		slog.Debug("model result for unknown request", "request_id", res.RequestID)
		return
	}
	delete(o.pending, res.RequestID)

	switch p.kind {
	case kindTriage:
		o.resolveTriage(p, res)
	case kindReply:
		o.resolveReply(p, res)
	case kindReport:
		o.resolveReport(p, res)
	}
}

// issueReply dispatches the next assistant turn. At most one reply call is
// in flight per session; messages arriving meanwhile set NeedsReply instead.
func (o *Orchestrator) issueReply(s *Session) {
	id := o.newID()
	s.ReplyPending = true
	s.NeedsReply = false
	s.PendingRequestID = id
	o.pending[id] = &pendingRequest{id: id, kind: kindReply, key: s.Key, createdAt: o.now()}

	system := o.prompts.replySystem
	if s.TurnCount == 0 && s.RoomContext != "" {
		// Room context informs the opening turn only; later turns already
		// carry the dialogue itself.
		system += "\n\n" + s.RoomContext
	}
	messages := make([]providers.Message, 0, len(s.Transcript)+1)
	messages = append(messages, providers.Message{Role: "system", Content: system})
	messages = append(messages, s.Transcript...)

	o.models.Call(id, messages, model.CallOptions{
		Model:        o.cfg.ReplyModel,
		MaxTokens:    o.cfg.ReplyMaxTokens,
		EnableSearch: o.cfg.EnableSearch,
	})
}

// resolveReply consumes a reply model result. Caller holds o.mu.
func (o *Orchestrator) resolveReply(p *pendingRequest, res bus.ModelResult) {
	s, ok := o.sessions[p.key]
	if !ok || s.PendingRequestID != p.id {
		return
	}
	s.ReplyPending = false
	s.PendingRequestID = ""

	content := strings.TrimSpace(res.Content)
	if !res.Success || content == "" {
		slog.Warn("reply call failed", "key", p.key.Masked(), "turn", s.TurnCount)
		o.sendReplyTo(s.Key, o.prompts.replyFailed)
		o.endSession(s.Key, EndReasonFailure)
		return
	}

	s.appendAssistant(content, o.now())
	o.sendReplyTo(s.Key, content)

	switch {
	case s.WantReport:
		o.startReport(s)
	case s.TurnCount >= o.cfg.MaxTurns:
		// Turn ceiling reached; wrap up with a report instead of going quiet.
		o.startReport(s)
	case s.NeedsReply:
		o.issueReply(s)
	}
}
