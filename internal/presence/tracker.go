package presence

import (
	"log"
	"sort"
	"sync"
	"time"

	"chat-sync/internal/models"
	"chat-sync/internal/observability"
)

// DefaultTTL is how long a typing signal stays alive without renewal.
const DefaultTTL = 3 * time.Second

// Emitter is the outbound half of the push channel the tracker broadcasts
// through.
type Emitter interface {
	Emit(kind string, roomID int, payload map[string]any) error
}

// Tracker keeps the "currently typing" set for the active room. Signals are
// ephemeral: nothing is persisted, and the only stop signal is the absence
// of renewal. Each sender's entry expires on its own timer.
type Tracker struct {
	emitter Emitter
	userID  int
	ttl     time.Duration

	mu     sync.Mutex
	names  map[int]string
	timers map[int]*time.Timer
}

// NewTracker builds a Tracker for the local user. ttl <= 0 selects
// DefaultTTL.
func NewTracker(emitter Emitter, userID int, ttl time.Duration) *Tracker {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Tracker{
		emitter: emitter,
		userID:  userID,
		ttl:     ttl,
		names:   map[int]string{},
		timers:  map[int]*time.Timer{},
	}
}

// SendTyping broadcasts a typing signal for the room. Fire and forget: no
// retry, no queueing, a dropped signal is an accepted loss. A false signal
// emits nothing; remote sets decay by expiry alone.
func (t *Tracker) SendTyping(roomID int, isTyping bool) {
	if !isTyping {
		return
	}
	if err := t.emitter.Emit(models.EventTypeTyping, roomID, map[string]any{"is_typing": true}); err != nil {
		log.Printf("typing emit room=%d dropped: %v", roomID, err)
	}
}

// Observe consumes an inbound typing event. Signals from the local user are
// ignored; any other sender is added to the typing set and its expiry timer
// re-armed.
func (t *Tracker) Observe(evt models.Event) {
	if evt.Type != models.EventTypeTyping || evt.SenderID == t.userID {
		return
	}
	name := evt.SenderName
	if name == "" {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.names[evt.SenderID] = name
	if timer, ok := t.timers[evt.SenderID]; ok {
		timer.Reset(t.ttl)
	} else {
		senderID := evt.SenderID
		t.timers[senderID] = time.AfterFunc(t.ttl, func() { t.expire(senderID) })
	}
	observability.SetTypingActive(len(t.names))
}

// Typing returns the display names currently typing, sorted for stable
// presentation.
func (t *Tracker) Typing() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]string, 0, len(t.names))
	for _, name := range t.names {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Reset clears the typing set, typically on a room switch.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for id, timer := range t.timers {
		timer.Stop()
		delete(t.timers, id)
	}
	t.names = map[int]string{}
	observability.SetTypingActive(0)
}

func (t *Tracker) expire(senderID int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.names, senderID)
	delete(t.timers, senderID)
	observability.SetTypingActive(len(t.names))
}
