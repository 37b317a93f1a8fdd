package orchestrator

import (
	"log/slog"
	"time"

	"github.com/nextlevelbuilder/goconvo/internal/bus"
	"github.com/nextlevelbuilder/goconvo/internal/model"
	"github.com/nextlevelbuilder/goconvo/internal/providers"
)

const triageMaxTokens = 256

// tryFlushLocked turns a participant's batched messages into a triage
// pipeline. Exactly one pipeline runs per batch at a time; messages arriving
// meanwhile accumulate and either join the new session or wait for the next
// window. Caller holds o.mu.
func (o *Orchestrator) tryFlushLocked(key Key, now time.Time) {
	if o.batches.inFlight(key) {
		return
	}
	items := o.batches.take(key, o.cfg.BatchCap)
	if len(items) == 0 {
		return
	}
	o.batches.setInFlight(key, true)

	payload, mentioned := mergeItems(items)
	p := &pendingRequest{
		key:       key,
		createdAt: now,
		evidence:  payload,
		items:     items,
		mentioned: mentioned,
	}

	if o.cfg.RoomContextEnabled && o.rooms != nil && key.RoomID != "" {
		p.kind = kindContext
		p.stage = stageNotice
		p.id = o.newID()
		o.pending[p.id] = p
		o.rooms.FetchNotice(p.id, key.Channel, key.RoomID)
		return
	}
	o.issueTriageLocked(p)
}

// issueTriageLocked dispatches the engagement triage call. Caller holds o.mu.
func (o *Orchestrator) issueTriageLocked(p *pendingRequest) {
	p.kind = kindTriage
	p.id = o.newID()
	p.createdAt = o.now()
	o.pending[p.id] = p

	messages := []providers.Message{
		{Role: "system", Content: o.prompts.triageSystem},
		{Role: "user", Content: triageUser(p.evidence, p.mentioned, p.roomContext())},
	}
	o.models.Call(p.id, messages, model.CallOptions{
		Model:     o.cfg.TriageModel,
		MaxTokens: triageMaxTokens,
	})
}

// HandleRoomInfo is the entry point for asynchronous room context results.
// Fetch failures degrade to triage with whatever context arrived.
func (o *Orchestrator) HandleRoomInfo(res bus.RoomInfoResult) {
	defer o.recoverEvent("room_info")
	o.mu.Lock()
	defer o.mu.Unlock()

	p, ok := o.pending[res.RequestID]
	if !ok || p.kind != kindContext {
		slog.Debug("room info result for unknown request", "request_id", res.RequestID)
		return
	}
	delete(o.pending, res.RequestID)

	switch p.stage {
	case stageNotice:
		if res.Success {
			p.notice = res.Content
		}
		p.stage = stageHistory
		p.id = o.newID()
		p.createdAt = o.now()
		o.pending[p.id] = p
		o.rooms.FetchHistory(p.id, p.key.Channel, p.key.RoomID, o.cfg.RoomHistoryCount)
	case stageHistory:
		if res.Success {
			p.history = res.Content
		}
		o.issueTriageLocked(p)
	}
}

// resolveTriage consumes a triage model result. Caller holds o.mu.
func (o *Orchestrator) resolveTriage(p *pendingRequest, res bus.ModelResult) {
	if !res.Success {
		// Put the evidence back so the next due window retries it.
		o.batches.requeue(p.key, p.items)
		o.batches.setInFlight(p.key, false)
		slog.Warn("triage call failed", "key", p.key.Masked())
		return
	}

	d := ParseDecision(res.Content)
	if !d.Engage {
		o.batches.setInFlight(p.key, false)
		slog.Debug("triage declined",
			"key", p.key.Masked(),
			"confidence", d.Confidence,
			"reason", d.Reason,
		)
		return
	}

	o.startSession(p)
}

// startSession opens a dialogue from an accepted triage: the evidence seeds
// the transcript, messages that piled up during triage join it, and the first
// assistant turn goes out immediately.
func (o *Orchestrator) startSession(p *pendingRequest) {
	now := o.now()
	s := &Session{
		Key:              p.key,
		State:            StateActive,
		StartedByMention: p.mentioned,
		RoomContext:      p.roomContext(),
		StartedAt:        now,
		LastActivityAt:   now,
	}
	s.Transcript = append(s.Transcript, providers.Message{Role: "user", Content: p.evidence})

	// Messages that arrived while triage was pending fold into the opening.
	late := o.batches.drain(p.key)
	for _, it := range late {
		s.appendUser(it.Text, now)
	}

	o.sessions[p.key] = s
	slog.Info("session started", "key", p.key.Masked(), "mentioned", p.mentioned)
	o.issueReply(s)
}
