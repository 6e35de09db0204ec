package presence

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chat-sync/internal/models"
)

type recordingEmitter struct {
	mu     sync.Mutex
	frames []emittedFrame
	err    error
}

type emittedFrame struct {
	kind    string
	roomID  int
	payload map[string]any
}

func (e *recordingEmitter) Emit(kind string, roomID int, payload map[string]any) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.frames = append(e.frames, emittedFrame{kind: kind, roomID: roomID, payload: payload})
	return e.err
}

func (e *recordingEmitter) all() []emittedFrame {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]emittedFrame(nil), e.frames...)
}

func typingEvent(senderID int, name string) models.Event {
	return models.Event{Type: models.EventTypeTyping, Room: 5, SenderID: senderID, SenderName: name}
}

func TestSendTypingEmitsOnlyStart(t *testing.T) {
	emitter := &recordingEmitter{}
	tracker := NewTracker(emitter, 1, DefaultTTL)

	tracker.SendTyping(5, true)
	tracker.SendTyping(5, false)

	frames := emitter.all()
	require.Len(t, frames, 1)
	assert.Equal(t, models.EventTypeTyping, frames[0].kind)
	assert.Equal(t, 5, frames[0].roomID)
	assert.Equal(t, true, frames[0].payload["is_typing"])
}

func TestObserveExpiresAfterTTL(t *testing.T) {
	tracker := NewTracker(&recordingEmitter{}, 1, 40*time.Millisecond)

	tracker.Observe(typingEvent(2, "bob"))
	assert.Equal(t, []string{"bob"}, tracker.Typing())

	require.Eventually(t, func() bool {
		return len(tracker.Typing()) == 0
	}, time.Second, 10*time.Millisecond)
}

func TestObserveRenewalExtendsExpiry(t *testing.T) {
	tracker := NewTracker(&recordingEmitter{}, 1, 80*time.Millisecond)

	tracker.Observe(typingEvent(2, "bob"))
	time.Sleep(50 * time.Millisecond)
	tracker.Observe(typingEvent(2, "bob"))
	time.Sleep(50 * time.Millisecond)

	// 100ms after the first signal the renewed timer must still be live.
	assert.Equal(t, []string{"bob"}, tracker.Typing())

	require.Eventually(t, func() bool {
		return len(tracker.Typing()) == 0
	}, time.Second, 10*time.Millisecond)
}

func TestObserveIgnoresLocalUser(t *testing.T) {
	tracker := NewTracker(&recordingEmitter{}, 1, DefaultTTL)

	tracker.Observe(typingEvent(1, "alice"))
	assert.Empty(t, tracker.Typing())
}

func TestObserveIgnoresNonTypingEvents(t *testing.T) {
	tracker := NewTracker(&recordingEmitter{}, 1, DefaultTTL)

	tracker.Observe(models.Event{Type: models.EventTypeMessage, Room: 5, SenderID: 2, SenderName: "bob"})
	assert.Empty(t, tracker.Typing())
}

func TestTypingIsSorted(t *testing.T) {
	tracker := NewTracker(&recordingEmitter{}, 1, DefaultTTL)

	tracker.Observe(typingEvent(3, "carol"))
	tracker.Observe(typingEvent(2, "bob"))
	assert.Equal(t, []string{"bob", "carol"}, tracker.Typing())
}

func TestResetClearsTypingSet(t *testing.T) {
	tracker := NewTracker(&recordingEmitter{}, 1, DefaultTTL)

	tracker.Observe(typingEvent(2, "bob"))
	tracker.Observe(typingEvent(3, "carol"))
	tracker.Reset()
	assert.Empty(t, tracker.Typing())
}
