package transport

import (
	"context"
	"errors"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"

	"chat-sync/internal/models"
	"chat-sync/internal/observability"
)

// State is the push-channel connection state, owned exclusively by the
// Manager.
type State int

const (
	Disconnected State = iota
	Connecting
	Connected
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	default:
		return "disconnected"
	}
}

// Handler consumes inbound push-channel events. A Manager has a single
// consumer.
type Handler func(models.Event)

const writeWait = 5 * time.Second

// ErrNotConnected is returned by Emit when no session is established.
var ErrNotConnected = errors.New("push channel not connected")

// Channel-level control frames. Subscribing to a room's events is
// independent from REST-level membership.
const (
	frameJoin  = "join"
	frameLeave = "leave"
)

// Manager owns the push-channel lifecycle: connect, teardown and the typed
// inbound/outbound event streams. Transitions are driven only by transport
// lifecycle signals, never by application logic.
type Manager struct {
	url      string
	userID   int
	username string

	mu        sync.Mutex
	state     State
	conn      *websocket.Conn
	session   uint64
	handler   Handler
	stateHook func(State)

	// writeMu serializes outbound frames; the websocket permits a single
	// concurrent writer.
	writeMu sync.Mutex
}

// NewManager builds a Manager dialing the given websocket URL. The local
// identity is stamped onto outbound frames.
func NewManager(url string, userID int, username string) *Manager {
	return &Manager{url: url, userID: userID, username: username}
}

// OnEvent registers the single consumer for all inbound events. Must be
// called before Connect.
func (m *Manager) OnEvent(h Handler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handler = h
}

// OnStateChange registers a hook invoked on every state transition.
func (m *Manager) OnStateChange(h func(State)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stateHook = h
}

// State returns the current connection state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Connect establishes the push channel, authenticating with the bearer
// token. A failed dial settles in Disconnected without raising an
// application error; retrying is the caller's policy. Re-entrant: any
// previous session is torn down first.
func (m *Manager) Connect(ctx context.Context, token string) {
	ctx, span := otel.Tracer("chat-sync/transport").Start(ctx, "push.connect")
	defer span.End()

	m.teardown()
	m.setState(Connecting)

	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)
	header.Set("X-Conn-Id", uuid.NewString())

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, m.url, header)
	if err != nil {
		log.Printf("push connect failed url=%s: %v", m.url, err)
		m.setState(Disconnected)
		return
	}

	m.mu.Lock()
	m.conn = conn
	m.session++
	session := m.session
	m.mu.Unlock()

	m.setState(Connected)
	go m.readPump(conn, session)
}

// Close tears down the channel and settles in Disconnected.
func (m *Manager) Close() {
	m.teardown()
	m.setState(Disconnected)
}

// Emit sends a fire-and-forget outbound event. No acknowledgement is
// awaited; a lost frame is an accepted loss at this layer.
func (m *Manager) Emit(kind string, roomID int, payload map[string]any) error {
	evt := models.Event{
		Type:       kind,
		Room:       roomID,
		SenderID:   m.userID,
		SenderName: m.username,
		Metadata:   payload,
	}
	return m.write(evt)
}

// JoinRoom subscribes the channel to a room's events. This does not
// authorize REST operations on the room.
func (m *Manager) JoinRoom(roomID int) {
	if err := m.write(models.Event{Type: frameJoin, Room: roomID, SenderID: m.userID}); err != nil {
		log.Printf("push join room=%d failed: %v", roomID, err)
	}
}

// LeaveRoom cancels the channel subscription for a room.
func (m *Manager) LeaveRoom(roomID int) {
	if err := m.write(models.Event{Type: frameLeave, Room: roomID, SenderID: m.userID}); err != nil {
		log.Printf("push leave room=%d failed: %v", roomID, err)
	}
}

func (m *Manager) write(evt models.Event) error {
	m.mu.Lock()
	conn := m.conn
	m.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}

	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(evt); err != nil {
		return err
	}
	observability.IncPushEvent("out", evt.Type)
	return nil
}

func (m *Manager) readPump(conn *websocket.Conn, session uint64) {
	for {
		var evt models.Event
		if err := conn.ReadJSON(&evt); err != nil {
			m.mu.Lock()
			stale := m.session != session
			if !stale {
				m.conn = nil
			}
			m.mu.Unlock()
			conn.Close()
			if !stale {
				if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					log.Printf("push read error: %v", err)
				}
				m.setState(Disconnected)
			}
			return
		}

		m.mu.Lock()
		stale := m.session != session
		handler := m.handler
		m.mu.Unlock()
		if stale {
			return
		}

		observability.IncPushEvent("in", evt.Type)
		if handler != nil {
			handler(evt)
		}
	}
}

func (m *Manager) teardown() {
	m.mu.Lock()
	conn := m.conn
	m.conn = nil
	m.session++
	m.mu.Unlock()
	if conn != nil {
		conn.Close()
	}
}

func (m *Manager) setState(s State) {
	m.mu.Lock()
	if m.state == s {
		m.mu.Unlock()
		return
	}
	m.state = s
	hook := m.stateHook
	m.mu.Unlock()

	observability.SetConnectionState(int(s))
	if hook != nil {
		hook(s)
	}
}
