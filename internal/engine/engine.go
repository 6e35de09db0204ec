package engine

import (
	"context"
	"log"
	"sync"
	"time"

	"chat-sync/internal/membership"
	"chat-sync/internal/models"
	"chat-sync/internal/presence"
	"chat-sync/internal/telemetry"
	"chat-sync/internal/timeline"
	"chat-sync/internal/transport"
)

// Transport is the push-channel surface the engine drives. Satisfied by
// *transport.Manager.
type Transport interface {
	OnEvent(transport.Handler)
	OnStateChange(func(transport.State))
	Emit(kind string, roomID int, payload map[string]any) error
	JoinRoom(roomID int)
	LeaveRoom(roomID int)
	State() transport.State
	Close()
}

// Engine is the owning coordinator: it composes the connection manager, the
// membership controller, the timeline store and the presence tracker, and
// routes inbound push events to their owners. At any time the transport is
// subscribed to at most one room, the active one.
type Engine struct {
	transport Transport
	members   *membership.Controller
	timeline  *timeline.Store
	presence  *presence.Tracker
	audit     *telemetry.Emitter
	userID    int

	mu         sync.Mutex
	activeRoom int
}

// New wires the components together and installs the event routes.
func New(tr Transport, members *membership.Controller, store *timeline.Store, tracker *presence.Tracker, audit *telemetry.Emitter, userID int) *Engine {
	e := &Engine{
		transport: tr,
		members:   members,
		timeline:  store,
		presence:  tracker,
		audit:     audit,
		userID:    userID,
	}
	tr.OnEvent(e.handleEvent)
	tr.OnStateChange(func(s transport.State) {
		log.Printf("push channel %s", s)
		e.audit.ConnectionChanged(context.Background(), s.String())
	})
	return e
}

// Bootstrap loads the initial room list.
func (e *Engine) Bootstrap(ctx context.Context) error {
	return e.members.LoadRooms(ctx)
}

// OpenRoom makes roomID the active room: the previous room's transport
// subscription is dropped, the new room's is established, the timeline is
// reloaded from the server and typing presence reset. Opening the already
// active room is a no-op.
func (e *Engine) OpenRoom(ctx context.Context, roomID int) error {
	e.mu.Lock()
	prev := e.activeRoom
	if prev == roomID {
		e.mu.Unlock()
		return nil
	}
	e.activeRoom = roomID
	e.mu.Unlock()

	if prev != 0 {
		e.transport.LeaveRoom(prev)
	}
	e.transport.JoinRoom(roomID)
	e.presence.Reset()

	if err := e.timeline.SetActiveRoom(ctx, roomID); err != nil {
		return err
	}

	// Opening a room consumes its unread backlog.
	if err := e.timeline.MarkRoomRead(ctx, roomID); err != nil {
		log.Printf("open room=%d: %v", roomID, err)
	} else {
		e.members.ClearUnread(roomID)
	}
	return nil
}

// CloseRoom detaches from the active room: unsubscribes, clears the
// timeline and the typing set.
func (e *Engine) CloseRoom() {
	e.mu.Lock()
	prev := e.activeRoom
	e.activeRoom = 0
	e.mu.Unlock()

	if prev != 0 {
		e.transport.LeaveRoom(prev)
	}
	e.timeline.Clear()
	e.presence.Reset()
}

// ActiveRoom returns the currently open room id, 0 if none.
func (e *Engine) ActiveRoom() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.activeRoom
}

// Join adds the local user to a room.
func (e *Engine) Join(ctx context.Context, roomID int) error {
	return e.members.Join(ctx, roomID)
}

// Leave removes the local user from a room. Leaving the active room also
// closes it.
func (e *Engine) Leave(ctx context.Context, roomID int) error {
	if err := e.members.Leave(ctx, roomID); err != nil {
		return err
	}
	if e.ActiveRoom() == roomID {
		e.CloseRoom()
	}
	return nil
}

// Send posts a message to the active room and returns the canonical server
// copy.
func (e *Engine) Send(ctx context.Context, content, kind string) (models.Message, error) {
	return e.timeline.Send(ctx, content, kind)
}

// MarkRead records a read receipt, healing stale membership at most once.
// A permanent failure is recorded for UI display and audited; it is never
// retried automatically.
func (e *Engine) MarkRead(ctx context.Context, messageID int) error {
	err := e.timeline.MarkRead(ctx, messageID)
	if err != nil {
		e.audit.ActionFailed(ctx, "mark_read", messageID, err)
	}
	return err
}

// MarkDelivered records delivery of a message under the same recovery policy
// as MarkRead.
func (e *Engine) MarkDelivered(ctx context.Context, messageID int) error {
	err := e.timeline.MarkDelivered(ctx, messageID)
	if err != nil {
		e.audit.ActionFailed(ctx, "mark_delivered", messageID, err)
	}
	return err
}

// SendTyping broadcasts a typing signal for the active room.
func (e *Engine) SendTyping(isTyping bool) {
	roomID := e.ActiveRoom()
	if roomID == 0 {
		return
	}
	e.presence.SendTyping(roomID, isTyping)
}

// Typing returns who is typing in the active room.
func (e *Engine) Typing() []string {
	return e.presence.Typing()
}

// Rooms returns the local room list.
func (e *Engine) Rooms() []models.Room {
	return e.members.Rooms()
}

// Messages returns the active room's timeline.
func (e *Engine) Messages() []models.Message {
	return e.timeline.Messages()
}

// Close tears down the push channel and local ephemeral state.
func (e *Engine) Close() {
	e.CloseRoom()
	e.transport.Close()
}

// Snapshot is the state summary served by the debug endpoint.
type Snapshot struct {
	ConnectionState string   `json:"connection_state"`
	ActiveRoom      int      `json:"active_room"`
	Rooms           int      `json:"rooms"`
	Messages        int      `json:"messages"`
	Pending         []int    `json:"pending,omitempty"`
	Failed          []int    `json:"failed,omitempty"`
	Typing          []string `json:"typing,omitempty"`
}

// Snapshot reports the engine's current state.
func (e *Engine) Snapshot() Snapshot {
	return Snapshot{
		ConnectionState: e.transport.State().String(),
		ActiveRoom:      e.ActiveRoom(),
		Rooms:           len(e.members.Rooms()),
		Messages:        len(e.timeline.Messages()),
		Pending:         e.timeline.Pending(),
		Failed:          e.timeline.Failed(),
		Typing:          e.presence.Typing(),
	}
}

// handleEvent routes inbound push events: messages to the timeline (active
// room) or the room list summary (any other room), typing signals to the
// presence tracker. Unknown event types are ignored so future kinds do not
// break older clients.
func (e *Engine) handleEvent(evt models.Event) {
	switch evt.Type {
	case models.EventTypeMessage:
		e.handleMessage(evt)
	case models.EventTypeTyping:
		if evt.Room == e.ActiveRoom() {
			e.presence.Observe(evt)
		}
	}
}

func (e *Engine) handleMessage(evt models.Event) {
	if evt.Room == e.ActiveRoom() {
		if e.timeline.Ingest(evt) && evt.SenderID != e.userID {
			// Receiving a foreign message is what makes it delivered; do it
			// off the read pump so a slow collaborator cannot stall inbound
			// events.
			if id, ok := evt.MessageID(); ok {
				go func() {
					ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
					defer cancel()
					if err := e.timeline.MarkDelivered(ctx, id); err != nil {
						log.Printf("mark delivered message=%d: %v", id, err)
					}
				}()
			}
		}
		return
	}

	id, ok := evt.MessageID()
	if !ok {
		return
	}
	e.members.NoteMessage(models.Message{
		ID:         id,
		RoomID:     evt.Room,
		SenderID:   evt.SenderID,
		SenderName: evt.SenderName,
		Content:    evt.Content,
		Kind:       evt.MessageKind(),
		SentAt:     evt.Timestamp,
	})
}
