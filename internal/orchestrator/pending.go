package orchestrator

import "time"

// requestKind classifies an outstanding asynchronous call.
type requestKind string

const (
	kindTriage  requestKind = "triage"
	kindReply   requestKind = "reply"
	kindReport  requestKind = "report"
	kindContext requestKind = "context"
)

// Context pipeline stages for kindContext requests.
const (
	stageNotice  = "notice"
	stageHistory = "history"
)

// pendingRequest is one outstanding asynchronous call. The pending map is the
// sole mechanism for resuming work when a result arrives: a completion whose
// id is not in the map is simply not ours.
type pendingRequest struct {
	id        string
	kind      requestKind
	key       Key
	createdAt time.Time

	// triage/context pipeline payload
	evidence  string      // merged numbered evidence block
	items     []batchItem // originals, for requeue on failure
	mentioned bool
	stage     string // kindContext: which fetch is outstanding
	notice    string // room announcements accumulated so far
	history   string // recent room history accumulated so far
}

// roomContext renders the accumulated room snapshot, empty when nothing was
// fetched.
func (p *pendingRequest) roomContext() string {
	switch {
	case p.notice != "" && p.history != "":
		return "Room announcements:\n" + p.notice + "\n\nRecent room history:\n" + p.history
	case p.notice != "":
		return "Room announcements:\n" + p.notice
	case p.history != "":
		return "Recent room history:\n" + p.history
	}
	return ""
}
