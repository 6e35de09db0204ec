package engine

import (
	"context"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"chat-sync/internal/api"
	"chat-sync/internal/membership"
	"chat-sync/internal/mocks"
	"chat-sync/internal/models"
	"chat-sync/internal/presence"
	"chat-sync/internal/telemetry"
	"chat-sync/internal/timeline"
	"chat-sync/internal/transport"
)

// fakeTransport records subscriptions and lets tests inject inbound events.
type fakeTransport struct {
	mu      sync.Mutex
	handler transport.Handler
	state   transport.State
	joins   []int
	leaves  []int
	emitted []models.Event
}

func (f *fakeTransport) OnEvent(h transport.Handler) { f.handler = h }

func (f *fakeTransport) OnStateChange(func(transport.State)) {}

func (f *fakeTransport) Emit(kind string, roomID int, payload map[string]any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.emitted = append(f.emitted, models.Event{Type: kind, Room: roomID, Metadata: payload})
	return nil
}

func (f *fakeTransport) JoinRoom(roomID int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.joins = append(f.joins, roomID)
}

func (f *fakeTransport) LeaveRoom(roomID int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.leaves = append(f.leaves, roomID)
}

func (f *fakeTransport) State() transport.State { return f.state }

func (f *fakeTransport) Close() {}

func (f *fakeTransport) push(evt models.Event) { f.handler(evt) }

func (f *fakeTransport) subscriptions() (joins, leaves []int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int(nil), f.joins...), append([]int(nil), f.leaves...)
}

func newTestEngine(t *testing.T) (*Engine, *fakeTransport, *mocks.CollaboratorMock) {
	t.Helper()
	backend := new(mocks.CollaboratorMock)
	tr := &fakeTransport{}
	members := membership.NewController(backend, 1)
	store := timeline.NewStore(backend, members, 1, "alice")
	tracker := presence.NewTracker(tr, 1, presence.DefaultTTL)
	eng := New(tr, members, store, tracker, nil, 1)
	return eng, tr, backend
}

func expectOpenRoom(backend *mocks.CollaboratorMock, roomID int, history api.RoomHistory) {
	backend.On("RoomMessages", mock.Anything, roomID).Return(history, nil).Once()
	backend.On("MarkRoomRead", mock.Anything, roomID).Return(nil).Once()
}

func msgEvent(id, roomID, senderID int, name, content string) models.Event {
	return models.Event{
		Type:       models.EventTypeMessage,
		Room:       roomID,
		SenderID:   senderID,
		SenderName: name,
		Content:    content,
		Metadata:   map[string]any{"message_id": id},
		Timestamp:  time.Now(),
	}
}

func TestOpenRoomSubscribesExactlyOne(t *testing.T) {
	eng, tr, backend := newTestEngine(t)

	expectOpenRoom(backend, 5, api.RoomHistory{})
	require.NoError(t, eng.OpenRoom(context.Background(), 5))

	expectOpenRoom(backend, 7, api.RoomHistory{})
	require.NoError(t, eng.OpenRoom(context.Background(), 7))

	joins, leaves := tr.subscriptions()
	assert.Equal(t, []int{5, 7}, joins)
	assert.Equal(t, []int{5}, leaves)
	assert.Equal(t, 7, eng.ActiveRoom())
	backend.AssertExpectations(t)
}

func TestOpenRoomTwiceIsNoOp(t *testing.T) {
	eng, tr, backend := newTestEngine(t)

	expectOpenRoom(backend, 5, api.RoomHistory{})
	require.NoError(t, eng.OpenRoom(context.Background(), 5))
	require.NoError(t, eng.OpenRoom(context.Background(), 5))

	joins, _ := tr.subscriptions()
	assert.Equal(t, []int{5}, joins)
	backend.AssertNumberOfCalls(t, "RoomMessages", 1)
}

func TestCloseRoomClearsEphemeralState(t *testing.T) {
	eng, tr, backend := newTestEngine(t)

	expectOpenRoom(backend, 5, api.RoomHistory{
		Messages: []models.Message{{ID: 1, RoomID: 5, Content: "old"}},
	})
	require.NoError(t, eng.OpenRoom(context.Background(), 5))
	require.Len(t, eng.Messages(), 1)

	eng.CloseRoom()
	assert.Zero(t, eng.ActiveRoom())
	assert.Empty(t, eng.Messages())
	assert.Empty(t, eng.Typing())

	_, leaves := tr.subscriptions()
	assert.Equal(t, []int{5}, leaves)
}

func TestInboundMessageForActiveRoom(t *testing.T) {
	eng, tr, backend := newTestEngine(t)

	expectOpenRoom(backend, 5, api.RoomHistory{})
	require.NoError(t, eng.OpenRoom(context.Background(), 5))

	delivered := make(chan int, 1)
	backend.On("MarkDelivered", mock.Anything, 9).
		Run(func(args mock.Arguments) { delivered <- args.Int(1) }).
		Return(nil).Once()

	tr.push(msgEvent(9, 5, 2, "bob", "hello"))

	msgs := eng.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, 9, msgs[0].ID)

	select {
	case id := <-delivered:
		assert.Equal(t, 9, id)
	case <-time.After(time.Second):
		t.Fatal("delivery was never acknowledged")
	}
}

func TestOwnEchoIsNotMarkedDelivered(t *testing.T) {
	eng, tr, backend := newTestEngine(t)

	expectOpenRoom(backend, 5, api.RoomHistory{})
	require.NoError(t, eng.OpenRoom(context.Background(), 5))

	tr.push(msgEvent(9, 5, 1, "alice", "mine"))

	require.Len(t, eng.Messages(), 1)
	backend.AssertNotCalled(t, "MarkDelivered", mock.Anything, mock.Anything)
}

func TestInboundMessageForOtherRoomBumpsUnread(t *testing.T) {
	eng, tr, backend := newTestEngine(t)

	backend.On("ListRooms", mock.Anything).Return([]models.Room{
		{ID: 5, Name: "general", Active: true},
		{ID: 7, Name: "class", Active: true},
	}, nil).Once()
	require.NoError(t, eng.Bootstrap(context.Background()))

	expectOpenRoom(backend, 5, api.RoomHistory{})
	require.NoError(t, eng.OpenRoom(context.Background(), 5))

	tr.push(msgEvent(9, 7, 2, "bob", "elsewhere"))

	assert.Empty(t, eng.Messages(), "other room's message must not enter the active timeline")
	for _, room := range eng.Rooms() {
		if room.ID == 7 {
			assert.Equal(t, 1, room.UnreadCount)
			require.NotNil(t, room.LastMessage)
			assert.Equal(t, "elsewhere", room.LastMessage.Content)
		}
	}
	backend.AssertNotCalled(t, "MarkDelivered", mock.Anything, mock.Anything)
}

func TestTypingRoutedOnlyForActiveRoom(t *testing.T) {
	eng, tr, backend := newTestEngine(t)

	expectOpenRoom(backend, 5, api.RoomHistory{})
	require.NoError(t, eng.OpenRoom(context.Background(), 5))

	tr.push(models.Event{Type: models.EventTypeTyping, Room: 5, SenderID: 2, SenderName: "bob"})
	tr.push(models.Event{Type: models.EventTypeTyping, Room: 7, SenderID: 3, SenderName: "carol"})

	assert.Equal(t, []string{"bob"}, eng.Typing())
}

func TestSendTypingRequiresActiveRoom(t *testing.T) {
	eng, tr, _ := newTestEngine(t)

	eng.SendTyping(true)

	tr.mu.Lock()
	defer tr.mu.Unlock()
	assert.Empty(t, tr.emitted)
}

func TestUnknownEventTypesAreIgnored(t *testing.T) {
	eng, tr, backend := newTestEngine(t)

	expectOpenRoom(backend, 5, api.RoomHistory{})
	require.NoError(t, eng.OpenRoom(context.Background(), 5))

	tr.push(models.Event{Type: "reaction_added", Room: 5, SenderID: 2})

	assert.Empty(t, eng.Messages())
}

func TestFailedMarkReadIsAudited(t *testing.T) {
	backend := new(mocks.CollaboratorMock)
	tr := &fakeTransport{}
	members := membership.NewController(backend, 1)
	store := timeline.NewStore(backend, members, 1, "alice")
	tracker := presence.NewTracker(tr, 1, presence.DefaultTTL)

	publisher := new(mocks.PublisherMock)
	var envelope telemetry.Envelope
	publisher.On("Publish", mock.Anything, "sync_audit.client", mock.Anything).
		Run(func(args mock.Arguments) { envelope = args.Get(2).(telemetry.Envelope) }).
		Return(nil).Once()
	audit := telemetry.NewEmitter(publisher, "sync_audit.client", "chat-sync", "test", 1)

	eng := New(tr, members, store, tracker, audit, 1)

	backend.On("MarkRead", mock.Anything, 55).
		Return(&api.StatusError{Code: http.StatusInternalServerError, Message: "boom"}).Once()

	require.Error(t, eng.MarkRead(context.Background(), 55))

	publisher.AssertExpectations(t)
	assert.Equal(t, "action_failed", envelope.Payload.Event)
	assert.Equal(t, 55, envelope.Payload.MessageID)
	assert.Contains(t, envelope.Payload.Detail, "mark_read")
}

func TestLeaveActiveRoomClosesIt(t *testing.T) {
	eng, tr, backend := newTestEngine(t)

	expectOpenRoom(backend, 5, api.RoomHistory{})
	require.NoError(t, eng.OpenRoom(context.Background(), 5))

	backend.On("LeaveRoom", mock.Anything, 5).Return(nil).Once()
	backend.On("ListRooms", mock.Anything).Return([]models.Room{}, nil).Once()
	require.NoError(t, eng.Leave(context.Background(), 5))

	assert.Zero(t, eng.ActiveRoom())
	_, leaves := tr.subscriptions()
	assert.Equal(t, []int{5}, leaves)
}
