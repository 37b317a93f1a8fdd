package orchestrator

import (
	"log/slog"
	"strings"

	"github.com/nextlevelbuilder/goconvo/internal/bus"
	"github.com/nextlevelbuilder/goconvo/internal/model"
	"github.com/nextlevelbuilder/goconvo/internal/providers"
)

const reportTitleBase = "Session wrap-up"

// startReport moves the session into report generation. A dialogue with no
// assistant turn yet has nothing to summarize and ends with a notice instead.
// Caller holds o.mu.
func (o *Orchestrator) startReport(s *Session) {
	s.WantReport = false
	if s.TurnCount == 0 || len(s.Transcript) < 2 {
		o.sendReplyTo(s.Key, o.prompts.nothingToSay)
		o.endSession(s.Key, EndReasonReport)
		return
	}

	id := o.newID()
	s.State = StateGeneratingReport
	s.ReplyPending = true
	s.PendingRequestID = id
	o.pending[id] = &pendingRequest{id: id, kind: kindReport, key: s.Key, createdAt: o.now()}

	messages := make([]providers.Message, 0, len(s.Transcript)+1)
	messages = append(messages, providers.Message{Role: "system", Content: o.prompts.reportSystem})
	messages = append(messages, s.Transcript...)

	slog.Info("report started", "key", s.Key.Masked(), "turns", s.TurnCount)
	o.models.Call(id, messages, model.CallOptions{
		Model:     o.cfg.ReportModel,
		MaxTokens: o.cfg.ReportMaxTokens,
	})
}

// resolveReport consumes a report model result, ends the session, and hands
// delivery off to a goroutine so rendering never blocks the event loop.
// Caller holds o.mu.
func (o *Orchestrator) resolveReport(p *pendingRequest, res bus.ModelResult) {
	s, ok := o.sessions[p.key]
	if !ok || s.PendingRequestID != p.id {
		return
	}
	s.ReplyPending = false
	s.PendingRequestID = ""

	content := strings.TrimSpace(res.Content)
	if !res.Success || content == "" {
		slog.Warn("report call failed", "key", p.key.Masked())
		o.sendReplyTo(s.Key, o.prompts.reportFailed)
		o.endSession(s.Key, EndReasonFailure)
		return
	}

	longform, actions := parseReportSections(content)
	key := s.Key
	o.endSession(key, EndReasonReport)

	renderer := o.renderer
	width := o.cfg.ReportChunkWidth
	go o.deliverReport(key, renderer, longform, actions, width)
}

// deliverReport assembles the forward bundle: the long-form section as a
// rendered image when a renderer is available (chunked text otherwise), the
// action summary always as text.
func (o *Orchestrator) deliverReport(key Key, renderer Renderer, longform, actions string, width int) {
	defer o.recoverEvent("deliver_report")

	var parts []bus.ForwardPart
	if longform != "" {
		rendered := false
		if renderer != nil {
			img, err := renderer.RenderMarkdown(reportTitleBase, longform)
			if err != nil {
				slog.Warn("report render failed, falling back to text", "key", key.Masked(), "error", err)
			} else if len(img) > 0 {
				parts = append(parts, bus.ForwardPart{Title: reportTitleBase, Image: img})
				rendered = true
			}
		}
		if !rendered {
			chunks := chunkText(longform, width)
			for i, c := range chunks {
				parts = append(parts, bus.ForwardPart{Title: reportTitle(reportTitleBase, i, len(chunks)), Content: c})
			}
		}
	}
	if actions != "" {
		chunks := chunkText(actions, width)
		for i, c := range chunks {
			parts = append(parts, bus.ForwardPart{Title: reportTitle("Actions", i, len(chunks)), Content: c})
		}
	}
	if len(parts) == 0 {
		return
	}
	o.sender.SendForward(key.Channel, key.RoomID, key.ParticipantID, parts)
}
