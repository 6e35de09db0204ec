package models

import "time"

// Message kinds form a closed set mirroring the server's enum.
const (
	MessageKindText   = "text"
	MessageKindImage  = "image"
	MessageKindFile   = "file"
	MessageKindSystem = "system"
)

// Message is a single entry in a room timeline. IDs are server-assigned and
// unique within a room.
type Message struct {
	ID           int           `json:"id"`
	RoomID       int           `json:"room_id"`
	SenderID     int           `json:"sender_id"`
	SenderName   string        `json:"sender_name,omitempty"`
	Content      string        `json:"content"`
	Kind         string        `json:"kind"`
	Attachment   string        `json:"attachment,omitempty"`
	SentAt       time.Time     `json:"sent_at"`
	EditedAt     *time.Time    `json:"edited_at,omitempty"`
	Deleted      bool          `json:"deleted"`
	DeliveredAt  *time.Time    `json:"delivered_at,omitempty"`
	ReadAt       *time.Time    `json:"read_at,omitempty"`
	ReadReceipts []ReadReceipt `json:"read_receipts,omitempty"`
}

// ReadReceipt records that a specific user has read a specific message.
// Unique per (message, reader) pair and safe to re-apply.
type ReadReceipt struct {
	MessageID  int       `json:"message_id"`
	ReaderID   int       `json:"reader_id"`
	ReaderName string    `json:"reader_name,omitempty"`
	ReadAt     time.Time `json:"read_at"`
}

// HasReceipt reports whether the message already carries a receipt for the
// given reader.
func (m *Message) HasReceipt(readerID int) bool {
	for _, r := range m.ReadReceipts {
		if r.ReaderID == readerID {
			return true
		}
	}
	return false
}
