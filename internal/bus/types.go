// Package bus defines the event types exchanged between channels, the model
// caller, and the session orchestrator, plus the in-process message bus that
// carries them. The orchestrator consumes events one at a time from a single
// loop; everything asynchronous resumes through an event on this bus.
package bus

// SegmentType identifies a typed message segment.
type SegmentType string

const (
	SegmentText  SegmentType = "text"
	SegmentAt    SegmentType = "at"
	SegmentImage SegmentType = "image"
	SegmentVideo SegmentType = "video"
	SegmentVoice SegmentType = "record"
	SegmentFile  SegmentType = "file"
	SegmentReply SegmentType = "reply"
	SegmentCard  SegmentType = "json"
	SegmentFace  SegmentType = "face"
)

// Segment is one typed part of an inbound message. Platform adapters map their
// native rich-text representation into this shape; the normalizer flattens it.
type Segment struct {
	Type   SegmentType `json:"type"`
	Text   string      `json:"text,omitempty"`   // SegmentText
	Target string      `json:"target,omitempty"` // SegmentAt: mentioned participant ID, or "all"
	URL    string      `json:"url,omitempty"`    // media segments; never shown to the model
}

// InboundMessage is one chat message delivered by a channel adapter.
type InboundMessage struct {
	Channel           string            `json:"channel"`
	SenderID          string            `json:"sender_id"`
	SenderName        string            `json:"sender_name,omitempty"`
	RoomID            string            `json:"room_id,omitempty"` // empty for direct messages
	Content           string            `json:"content"`           // plain-text fallback when Segments is empty
	Segments          []Segment         `json:"segments,omitempty"`
	MentionsAssistant bool              `json:"mentions_assistant"`
	MessageID         string            `json:"message_id,omitempty"`
	Metadata          map[string]string `json:"metadata,omitempty"`
}

// OutboundMessage is a plain-text reply to be sent by a channel adapter.
type OutboundMessage struct {
	Channel  string            `json:"channel"`
	RoomID   string            `json:"room_id,omitempty"`
	SenderID string            `json:"sender_id"` // delivery target for DMs
	Content  string            `json:"content"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// ForwardPart is one node of a forward-style multi-part message.
type ForwardPart struct {
	Title   string `json:"title"`
	Content string `json:"content,omitempty"`
	Image   []byte `json:"image,omitempty"` // rendered PNG; takes precedence over Content
}

// ForwardBundle is a forward-style multi-part message. Channels without a
// native forward format deliver the parts as sequential sends.
type ForwardBundle struct {
	Channel  string        `json:"channel"`
	RoomID   string        `json:"room_id,omitempty"`
	SenderID string        `json:"sender_id"`
	Parts    []ForwardPart `json:"parts"`
}

// ModelResult is the asynchronous completion of a model call, matched back to
// its originating continuation solely by RequestID.
type ModelResult struct {
	RequestID string `json:"request_id"`
	Success   bool   `json:"success"`
	Content   string `json:"content"`
}

// Room info types delivered through RoomInfoResult.
const (
	RoomInfoNotice  = "notice"
	RoomInfoHistory = "history"
)

// RoomInfoResult is the asynchronous completion of a room context fetch.
type RoomInfoResult struct {
	RequestID string `json:"request_id"`
	InfoType  string `json:"info_type"` // RoomInfoNotice or RoomInfoHistory
	Success   bool   `json:"success"`
	Content   string `json:"content"`
}
