// Package orchestrator decides, per chat participant, whether an automated
// assistance dialogue should begin, drives it turn-by-turn through the model
// caller, and tears it down on completion, interruption, or timeout. All state
// lives in memory behind one mutex; progress is made only by event delivery
// (inbound message, model result, room info result, periodic tick).
package orchestrator

import (
	"fmt"
	"strings"
)

// Key identifies one dialogue slot: a participant within a room on a channel.
// RoomID is empty for direct conversations.
type Key struct {
	Channel       string
	RoomID        string
	ParticipantID string
}

// Encode renders the key in its stable storage form.
func (k Key) Encode() string {
	return fmt.Sprintf("%s|%s|%s", k.Channel, k.RoomID, k.ParticipantID)
}

// DecodeKey parses the stable storage form produced by Encode.
func DecodeKey(s string) (Key, bool) {
	parts := strings.SplitN(s, "|", 3)
	if len(parts) != 3 || parts[0] == "" || parts[2] == "" {
		return Key{}, false
	}
	return Key{Channel: parts[0], RoomID: parts[1], ParticipantID: parts[2]}, true
}

// Masked renders the key for logging with the participant identity masked.
func (k Key) Masked() string {
	return fmt.Sprintf("%s|%s|%s", k.Channel, k.RoomID, maskID(k.ParticipantID))
}

// maskID hides the middle of an identifier. Short ids are fully masked.
func maskID(id string) string {
	r := []rune(id)
	if len(r) <= 4 {
		return "***"
	}
	return string(r[:2]) + "***" + string(r[len(r)-2:])
}
