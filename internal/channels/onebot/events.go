package onebot

import (
	"encoding/json"
	"strconv"

	"github.com/nextlevelbuilder/goconvo/internal/bus"
)

// messageEvent is the OneBot v11 message event shape (array message format).
type messageEvent struct {
	MessageType string       `json:"message_type"` // "group" or "private"
	MessageID   json.Number  `json:"message_id"`
	UserID      json.Number  `json:"user_id"`
	GroupID     json.Number  `json:"group_id,omitempty"`
	SelfID      json.Number  `json:"self_id"`
	Message     []rawSegment `json:"message"`
	RawMessage  string       `json:"raw_message"`
	Sender      struct {
		Nickname string `json:"nickname"`
		Card     string `json:"card"`
	} `json:"sender"`
}

type rawSegment struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

func (c *Channel) handleMessageEvent(data []byte) {
	var ev messageEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return
	}
	selfID := ev.SelfID.String()
	if c.cfg.SelfID != "" {
		selfID = c.cfg.SelfID
	}
	// Never react to our own messages echoed back.
	if ev.UserID.String() == selfID {
		return
	}

	msg := bus.InboundMessage{
		SenderID:   ev.UserID.String(),
		SenderName: senderName(ev),
		MessageID:  ev.MessageID.String(),
		Content:    ev.RawMessage,
		Metadata:   map[string]string{"self_id": selfID},
	}
	if ev.MessageType == "group" {
		msg.RoomID = ev.GroupID.String()
	}

	for _, rs := range ev.Message {
		seg, ok := mapSegment(rs)
		if !ok {
			continue
		}
		if seg.Type == bus.SegmentAt && seg.Target == selfID {
			msg.MentionsAssistant = true
		}
		msg.Segments = append(msg.Segments, seg)
	}

	c.HandleMessage(msg)
}

func senderName(ev messageEvent) string {
	if ev.Sender.Card != "" {
		return ev.Sender.Card
	}
	return ev.Sender.Nickname
}

// mapSegment converts one OneBot segment into the bus representation.
func mapSegment(rs rawSegment) (bus.Segment, bool) {
	switch rs.Type {
	case "text":
		var d struct {
			Text string `json:"text"`
		}
		if err := json.Unmarshal(rs.Data, &d); err != nil {
			return bus.Segment{}, false
		}
		return bus.Segment{Type: bus.SegmentText, Text: d.Text}, true
	case "at":
		var d struct {
			QQ string `json:"qq"`
		}
		if err := json.Unmarshal(rs.Data, &d); err != nil {
			return bus.Segment{}, false
		}
		return bus.Segment{Type: bus.SegmentAt, Target: d.QQ}, true
	case "image", "video", "record", "file":
		var d struct {
			URL  string `json:"url"`
			File string `json:"file"`
		}
		_ = json.Unmarshal(rs.Data, &d)
		url := d.URL
		if url == "" {
			url = d.File
		}
		return bus.Segment{Type: bus.SegmentType(rs.Type), URL: url}, true
	case "reply":
		return bus.Segment{Type: bus.SegmentReply}, true
	case "face":
		return bus.Segment{Type: bus.SegmentFace}, true
	case "json":
		return bus.Segment{Type: bus.SegmentCard}, true
	default:
		return bus.Segment{}, false
	}
}

func parseInt64(s string) int64 {
	v, _ := strconv.ParseInt(s, 10, 64)
	return v
}
