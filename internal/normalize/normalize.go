// Package normalize flattens platform rich-text messages into plain text that
// is safe to hand to a language model. Mentions are tokenized so participant
// identities never reach the model or the logs; media segments become short
// bracketed placeholders; quoted replies are dropped (their content is carried
// by the reply-context extractor, not duplicated here).
package normalize

import (
	"strings"

	"github.com/nextlevelbuilder/goconvo/internal/bus"
)

// Tokens emitted in place of mention segments.
const (
	TokenAssistant = "@assistant"
	TokenOther     = "@other"
	TokenAll       = "@all"
)

// MentionSummary classifies the mentions in a message.
type MentionSummary struct {
	Assistant bool
	Other     bool
	All       bool
}

// Text flattens msg into a single trimmed plain-text string. assistantID is
// the platform identity of the assistant account, used to classify mentions.
func Text(msg bus.InboundMessage, assistantID string) string {
	if len(msg.Segments) == 0 {
		return collapseWhitespace(msg.Content)
	}

	var b strings.Builder
	for _, seg := range msg.Segments {
		switch seg.Type {
		case bus.SegmentText:
			b.WriteString(seg.Text)
		case bus.SegmentAt:
			b.WriteByte(' ')
			b.WriteString(mentionToken(seg, assistantID))
			b.WriteByte(' ')
		case bus.SegmentImage:
			b.WriteString(" [image] ")
		case bus.SegmentVideo:
			b.WriteString(" [video] ")
		case bus.SegmentVoice:
			b.WriteString(" [voice] ")
		case bus.SegmentFile:
			b.WriteString(" [file] ")
		case bus.SegmentCard:
			b.WriteString(" [card] ")
		case bus.SegmentReply, bus.SegmentFace:
			// dropped
		}
	}
	return collapseWhitespace(b.String())
}

// Mentions summarizes who the message addresses. A message that mentions a
// specific other participant and not the assistant is not the assistant's
// conversation to join.
func Mentions(msg bus.InboundMessage, assistantID string) MentionSummary {
	var s MentionSummary
	if msg.MentionsAssistant {
		s.Assistant = true
	}
	for _, seg := range msg.Segments {
		if seg.Type != bus.SegmentAt {
			continue
		}
		switch {
		case seg.Target == "all":
			s.All = true
		case assistantID != "" && seg.Target == assistantID:
			s.Assistant = true
		default:
			s.Other = true
		}
	}
	return s
}

func mentionToken(seg bus.Segment, assistantID string) string {
	switch {
	case seg.Target == "all":
		return TokenAll
	case assistantID != "" && seg.Target == assistantID:
		return TokenAssistant
	default:
		return TokenOther
	}
}

func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
