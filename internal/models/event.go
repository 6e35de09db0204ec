package models

import (
	"encoding/json"
	"strconv"
	"time"
)

// Push-channel event types. Unknown types are ignored by consumers so the
// server can introduce new kinds without breaking older clients.
const (
	EventTypeMessage = "message"
	EventTypeTyping  = "typing"
)

// Event is the wire shape shared by inbound and outbound push-channel frames.
// Outbound frames omit the server-only fields.
type Event struct {
	Type       string         `json:"type"`
	Room       int            `json:"room"`
	SenderID   int            `json:"senderId,omitempty"`
	SenderName string         `json:"senderName,omitempty"`
	Content    string         `json:"content,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Timestamp  time.Time      `json:"timestamp,omitempty"`
}

// MessageID extracts the message id a "message" event refers to. The value
// arrives inside metadata and, depending on the decoder, may be a float64,
// json.Number or string.
func (e Event) MessageID() (int, bool) {
	raw, ok := e.Metadata["message_id"]
	if !ok {
		return 0, false
	}
	return toInt(raw)
}

// MessageKind returns the message kind carried in metadata, defaulting to text.
func (e Event) MessageKind() string {
	if kind, ok := e.Metadata["kind"].(string); ok && kind != "" {
		return kind
	}
	return MessageKindText
}

// Attachment returns the opaque attachment reference, if any.
func (e Event) Attachment() string {
	ref, _ := e.Metadata["attachment"].(string)
	return ref
}

func toInt(raw any) (int, bool) {
	switch v := raw.(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	case json.Number:
		n, err := v.Int64()
		if err != nil {
			return 0, false
		}
		return int(n), true
	case string:
		n, err := strconv.Atoi(v)
		if err != nil {
			return 0, false
		}
		return n, true
	default:
		return 0, false
	}
}
