package membership

import (
	"context"
	"fmt"
	"log"
	"sync"

	"chat-sync/internal/api"
	"chat-sync/internal/models"
)

// Controller owns the authoritative local room list and the user's
// membership in it. Rooms are read-only to every other component.
type Controller struct {
	backend api.Collaborator
	userID  int

	mu    sync.RWMutex
	rooms []models.Room
	index map[int]int
}

// NewController builds a Controller for the given local user.
func NewController(backend api.Collaborator, userID int) *Controller {
	return &Controller{
		backend: backend,
		userID:  userID,
		index:   map[int]int{},
	}
}

// LoadRooms pulls the full room list with denormalized unread counts. On
// failure the prior local state is left untouched and the error is returned
// to the caller.
func (c *Controller) LoadRooms(ctx context.Context) error {
	rooms, err := c.backend.ListRooms(ctx)
	if err != nil {
		return fmt.Errorf("load rooms: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.replace(rooms)
	return nil
}

// Join registers the user in a room and refreshes the room list. Joining a
// room the user already belongs to is benign.
func (c *Controller) Join(ctx context.Context, roomID int) error {
	if err := c.backend.JoinRoom(ctx, roomID); err != nil && !api.IsConflict(err) {
		return fmt.Errorf("join room %d: %w", roomID, err)
	}
	return c.LoadRooms(ctx)
}

// Leave removes the user from a room and refreshes the room list. A
// duplicate leave ("not a member") is benign.
func (c *Controller) Leave(ctx context.Context, roomID int) error {
	if err := c.backend.LeaveRoom(ctx, roomID); err != nil {
		if !api.IsNotFound(err) && !api.IsConflict(err) {
			return fmt.Errorf("leave room %d: %w", roomID, err)
		}
		log.Printf("leave room=%d already left: %v", roomID, err)
	}
	return c.LoadRooms(ctx)
}

// IsMember reports whether the local user has an active participant record
// in the room. Advisory only, not a security boundary.
func (c *Controller) IsMember(roomID int) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	i, ok := c.index[roomID]
	if !ok {
		return false
	}
	for _, p := range c.rooms[i].Participants {
		if p.UserID == c.userID && p.Active {
			return true
		}
	}
	return false
}

// Rooms returns a copy of the current room list.
func (c *Controller) Rooms() []models.Room {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]models.Room, len(c.rooms))
	copy(out, c.rooms)
	return out
}

// Room returns a room by id.
func (c *Controller) Room(roomID int) (models.Room, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	i, ok := c.index[roomID]
	if !ok {
		return models.Room{}, false
	}
	return c.rooms[i], true
}

// NoteMessage denormalizes a freshly pushed message into the room's
// last-message summary and unread counter. Used for rooms other than the
// active one, whose timeline is not loaded.
func (c *Controller) NoteMessage(msg models.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	i, ok := c.index[msg.RoomID]
	if !ok {
		return
	}
	c.rooms[i].UnreadCount++
	c.rooms[i].LastMessage = &models.LastMessage{
		ID:         msg.ID,
		SenderID:   msg.SenderID,
		SenderName: msg.SenderName,
		Content:    msg.Content,
		SentAt:     msg.SentAt,
	}
}

// ClearUnread zeroes a room's unread counter, typically after the whole room
// has been marked read.
func (c *Controller) ClearUnread(roomID int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if i, ok := c.index[roomID]; ok {
		c.rooms[i].UnreadCount = 0
	}
}

// CreateRoom creates a room on the collaborator and refreshes the list.
func (c *Controller) CreateRoom(ctx context.Context, req api.CreateRoomRequest) (models.Room, error) {
	room, err := c.backend.CreateRoom(ctx, req)
	if err != nil {
		return models.Room{}, fmt.Errorf("create room: %w", err)
	}
	if err := c.LoadRooms(ctx); err != nil {
		return room, err
	}
	return room, nil
}

// StartPrivate returns the existing or newly created direct room with the
// target user and refreshes the list.
func (c *Controller) StartPrivate(ctx context.Context, userID int) (models.Room, error) {
	room, err := c.backend.StartPrivate(ctx, userID)
	if err != nil {
		return models.Room{}, fmt.Errorf("start private room: %w", err)
	}
	if err := c.LoadRooms(ctx); err != nil {
		return room, err
	}
	return room, nil
}

// SearchUsers looks up users for starting a direct room.
func (c *Controller) SearchUsers(ctx context.Context, query string) ([]models.User, error) {
	return c.backend.SearchUsers(ctx, query)
}

func (c *Controller) replace(rooms []models.Room) {
	c.rooms = rooms
	c.index = make(map[int]int, len(rooms))
	for i, r := range rooms {
		c.index[r.ID] = i
	}
}
