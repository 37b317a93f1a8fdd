package orchestrator

import (
	"fmt"
	"strings"

	"github.com/nextlevelbuilder/goconvo/internal/config"
)

// Section delimiter the report model is instructed to emit between the
// long-form rendition and the action summary.
const reportDelimiter = "=====ACTIONS====="

// Built-in fallbacks for every prompt/notice the config may leave empty.
const (
	defaultTriageSystem = `You are a triage classifier for a chat assistant. ` +
		`You are shown recent messages from one participant. Decide whether the ` +
		`participant needs hands-on, multi-turn assistance that the assistant should ` +
		`proactively offer. Reply with EXACTLY one line of JSON: ` +
		`{"decision":"yes|no","confidence":0.0-1.0,"reason":"short reason"}. ` +
		`No other text.`

	defaultReplySystem = `You are a helpful assistant in an ongoing support dialogue. ` +
		`Be concise and concrete. Ask at most one clarifying question per turn. ` +
		`Do not mention that you were triggered automatically.`

	defaultReportSystem = `Write a wrap-up of the dialogue below. Output two sections ` +
		`separated by the exact line ` + reportDelimiter + `: first a long-form rendition ` +
		`of what was discussed and resolved (markdown), then a short copy-paste-friendly ` +
		`action summary (plain text, one action per line).`

	defaultInterruptAck  = "Okay, I'll stop here. Ping me if you need anything else."
	defaultNothingToSay  = "Not enough happened to write up — closing this out."
	defaultReplyFailed   = "Sorry, I couldn't produce a reply. Let's stop here for now."
	defaultReplyTimedOut = "That reply timed out — please resend your last message."
	defaultReportFailed  = "Sorry, I couldn't generate the report."
	defaultSessionIdle   = "This session has been idle for a while, so I'm closing it."
)

// promptSet is the resolved set of templates and notices for one config
// snapshot.
type promptSet struct {
	triageSystem string
	replySystem  string
	reportSystem string

	interruptAck  string
	nothingToSay  string
	replyFailed   string
	replyTimedOut string
	reportFailed  string
	sessionIdle   string
}

func resolvePrompts(cfg config.PromptsConfig) promptSet {
	pick := func(v, def string) string {
		if strings.TrimSpace(v) == "" {
			return def
		}
		return v
	}
	return promptSet{
		triageSystem:  pick(cfg.TriageSystem, defaultTriageSystem),
		replySystem:   pick(cfg.ReplySystem, defaultReplySystem),
		reportSystem:  pick(cfg.ReportSystem, defaultReportSystem),
		interruptAck:  pick(cfg.InterruptAck, defaultInterruptAck),
		nothingToSay:  pick(cfg.NothingToSay, defaultNothingToSay),
		replyFailed:   pick(cfg.ReplyFailed, defaultReplyFailed),
		replyTimedOut: pick(cfg.ReplyTimedOut, defaultReplyTimedOut),
		reportFailed:  pick(cfg.ReportFailed, defaultReportFailed),
		sessionIdle:   pick(cfg.SessionIdle, defaultSessionIdle),
	}
}

// triageUser renders the user turn of a triage call from the merged evidence.
func triageUser(evidence string, mentioned bool, roomContext string) string {
	var b strings.Builder
	if roomContext != "" {
		b.WriteString(roomContext)
		b.WriteString("\n\n")
	}
	b.WriteString("Recent messages from the participant:\n")
	b.WriteString(evidence)
	if mentioned {
		b.WriteString("\n\n(The participant mentioned the assistant directly.)")
	}
	return b.String()
}

// parseReportSections splits report output on the delimiter. When the model
// ignored the instruction, everything becomes the long-form section.
func parseReportSections(content string) (longform, actions string) {
	idx := strings.Index(content, reportDelimiter)
	if idx < 0 {
		return strings.TrimSpace(content), ""
	}
	longform = strings.TrimSpace(content[:idx])
	actions = strings.TrimSpace(content[idx+len(reportDelimiter):])
	return longform, actions
}

// reportTitle labels a forward part with its chunk position.
func reportTitle(base string, i, total int) string {
	if total <= 1 {
		return base
	}
	return fmt.Sprintf("%s (%d/%d)", base, i+1, total)
}
