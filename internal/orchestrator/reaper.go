package orchestrator

import (
	"log/slog"
	"time"
)

// HandleTick drives everything time-based: due batch flushes, idle session
// expiry, and the reaping of stuck asynchronous calls. The host has no other
// timers; a lost result only ever resolves here.
func (o *Orchestrator) HandleTick() {
	defer o.recoverEvent("tick")
	o.mu.Lock()
	defer o.mu.Unlock()

	now := o.now()
	o.flushDueBatches(now)
	o.expireIdleSessions(now)
	o.sweepPending(now)
}

func (o *Orchestrator) flushDueBatches(now time.Time) {
	for _, key := range o.batches.dueKeys(now, o.cfg.MergeWindow()) {
		o.tryFlushLocked(key, now)
	}
}

func (o *Orchestrator) expireIdleSessions(now time.Time) {
	timeout := o.cfg.SessionTimeout()
	for key, s := range o.sessions {
		if now.Sub(s.LastActivityAt) < timeout {
			continue
		}
		slog.Info("session idle, expiring", "key", key.Masked(), "state", s.State)
		o.sendReplyTo(key, o.prompts.sessionIdle)
		o.endSession(key, EndReasonTimeout)
	}
}

// sweepPending synthesizes failures for calls whose results never came back.
// Each kind has its own deadline and its own recovery.
func (o *Orchestrator) sweepPending(now time.Time) {
	for id, p := range o.pending {
		var deadline time.Duration
		switch p.kind {
		case kindTriage:
			deadline = o.cfg.TriageTimeout()
		case kindContext:
			deadline = o.cfg.ContextTimeout()
		case kindReply:
			deadline = o.cfg.ReplyTimeout()
		case kindReport:
			deadline = o.cfg.ReportTimeout()
		}
		if now.Sub(p.createdAt) < deadline {
			continue
		}
		delete(o.pending, id)
		slog.Warn("pending request timed out", "kind", p.kind, "key", p.key.Masked())

		switch p.kind {
		case kindTriage:
			o.batches.requeue(p.key, p.items)
			o.batches.setInFlight(p.key, false)
		case kindContext:
			// Context is best-effort; triage proceeds with what arrived.
			o.issueTriageLocked(p)
		case kindReply:
			o.reapReply(p)
		case kindReport:
			o.reapReport(p)
		}
	}
}

func (o *Orchestrator) reapReply(p *pendingRequest) {
	s, ok := o.sessions[p.key]
	if !ok || s.PendingRequestID != p.id {
		return
	}
	s.ReplyPending = false
	s.PendingRequestID = ""
	s.NeedsReply = false

	if s.StartedByMention {
		// The participant asked for this dialogue; tell them to resend
		// rather than vanishing on them.
		o.sendReplyTo(s.Key, o.prompts.replyTimedOut)
		if s.WantReport {
			o.startReport(s)
		}
		return
	}
	o.endSession(p.key, EndReasonTimeout)
}

func (o *Orchestrator) reapReport(p *pendingRequest) {
	s, ok := o.sessions[p.key]
	if !ok || s.PendingRequestID != p.id {
		return
	}
	s.ReplyPending = false
	s.PendingRequestID = ""
	o.sendReplyTo(s.Key, o.prompts.reportFailed)
	o.endSession(p.key, EndReasonFailure)
}
