package models

import "time"

// Room kinds form a closed set; the server rejects anything else.
const (
	RoomKindGeneral = "general"
	RoomKindClass   = "class"
	RoomKindDirect  = "direct"
	RoomKindSupport = "support"
)

// Room is a named channel grouping participants and messages. Rooms are never
// deleted locally, only marked inactive.
type Room struct {
	ID           int           `json:"id"`
	Name         string        `json:"name"`
	Description  string        `json:"description,omitempty"`
	Kind         string        `json:"kind"`
	CreatedBy    int           `json:"created_by"`
	CreatedAt    time.Time     `json:"created_at"`
	Active       bool          `json:"active"`
	LastMessage  *LastMessage  `json:"last_message,omitempty"`
	UnreadCount  int           `json:"unread_count"`
	Participants []Participant `json:"participants,omitempty"`
}

// LastMessage is the denormalized summary a room carries for list views.
type LastMessage struct {
	ID         int       `json:"id"`
	SenderID   int       `json:"sender_id"`
	SenderName string    `json:"sender_name,omitempty"`
	Content    string    `json:"content"`
	SentAt     time.Time `json:"sent_at"`
}

// Participant links a room to a user. A user has at most one active
// participant record per room.
type Participant struct {
	RoomID     int       `json:"room_id"`
	UserID     int       `json:"user_id"`
	Username   string    `json:"username"`
	JoinedAt   time.Time `json:"joined_at"`
	LastSeenAt time.Time `json:"last_seen_at,omitempty"`
	Active     bool      `json:"active"`
}

// User is the search-result shape returned by the collaborator.
type User struct {
	ID       int    `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email,omitempty"`
}
