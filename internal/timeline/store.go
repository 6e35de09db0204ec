package timeline

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"go.opentelemetry.io/otel"

	"chat-sync/internal/api"
	"chat-sync/internal/models"
	"chat-sync/internal/observability"
)

// ErrNoActiveRoom is returned by operations that need a bound room.
var ErrNoActiveRoom = errors.New("no active room")

// deliveryStatus is the per-message read-marking state machine:
// idle -> pending -> {read, failed}. A message is never pending and failed
// at the same time because a single enum value holds the whole state.
type deliveryStatus int8

const (
	statusIdle deliveryStatus = iota
	statusPending
	statusRead
	statusFailed
)

// Joiner is the slice of the membership controller the self-heal path is
// allowed to touch. Membership state is only ever mutated through it.
type Joiner interface {
	Join(ctx context.Context, roomID int) error
}

// Store owns the in-memory message timeline of the currently active room and
// drives each message through sent -> delivered -> read.
type Store struct {
	backend  api.Collaborator
	members  Joiner
	userID   int
	username string

	mu           sync.Mutex
	roomID       int
	epoch        uint64
	messages     []models.Message
	index        map[int]int
	participants []models.Participant
	status       map[int]deliveryStatus

	heal recoveryPolicy
}

// NewStore builds a Store for the given local user.
func NewStore(backend api.Collaborator, members Joiner, userID int, username string) *Store {
	return &Store{
		backend:  backend,
		members:  members,
		userID:   userID,
		username: username,
		index:    map[int]int{},
		status:   map[int]deliveryStatus{},
		heal: recoveryPolicy{
			maxRecoveries: 1,
			recoverable:   api.IsForbidden,
		},
	}
}

// SetActiveRoom switches the working room. The previous timeline is
// discarded immediately, never merged: the server copy is authoritative on
// every switch. A response that arrives after a further switch is dropped.
func (s *Store) SetActiveRoom(ctx context.Context, roomID int) error {
	s.mu.Lock()
	s.roomID = roomID
	s.epoch++
	epoch := s.epoch
	s.messages = nil
	s.index = map[int]int{}
	s.participants = nil
	s.status = map[int]deliveryStatus{}
	s.mu.Unlock()

	return s.reload(ctx, roomID, epoch)
}

// Clear drops the timeline and detaches from any room.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.roomID = 0
	s.epoch++
	s.messages = nil
	s.index = map[int]int{}
	s.participants = nil
	s.status = map[int]deliveryStatus{}
}

// ActiveRoom returns the id of the room the timeline is bound to, 0 if none.
func (s *Store) ActiveRoom() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.roomID
}

// Messages returns a copy of the current timeline.
func (s *Store) Messages() []models.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// Participants returns a copy of the active room's participants.
func (s *Store) Participants() []models.Participant {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Participant, len(s.participants))
	copy(out, s.participants)
	return out
}

// Send posts a message and appends the canonical server copy to the
// timeline. There is no optimistic local echo: a failed send leaves the
// timeline untouched and the error propagates to the caller.
func (s *Store) Send(ctx context.Context, content, kind string) (models.Message, error) {
	s.mu.Lock()
	roomID := s.roomID
	epoch := s.epoch
	s.mu.Unlock()
	if roomID == 0 {
		return models.Message{}, ErrNoActiveRoom
	}

	msg, err := s.backend.PostMessage(ctx, roomID, content, kind)
	if err != nil {
		return models.Message{}, fmt.Errorf("send message: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.epoch == epoch {
		s.merge(msg)
	}
	return msg, nil
}

// Ingest merges an inbound push-channel message into the timeline. The merge
// is idempotent by message id: the channel is at-least-once and a message may
// surface again after the REST response that created it, or be redelivered
// outright. Events for other rooms are ignored here.
func (s *Store) Ingest(evt models.Event) bool {
	id, ok := evt.MessageID()
	if !ok {
		observability.IncTimelineMerge(observability.MergeDropped)
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.roomID == 0 || evt.Room != s.roomID {
		observability.IncTimelineMerge(observability.MergeDropped)
		return false
	}
	if _, dup := s.index[id]; dup {
		observability.IncTimelineMerge(observability.MergeDuplicate)
		return false
	}

	s.merge(models.Message{
		ID:         id,
		RoomID:     evt.Room,
		SenderID:   evt.SenderID,
		SenderName: evt.SenderName,
		Content:    evt.Content,
		Kind:       evt.MessageKind(),
		Attachment: evt.Attachment(),
		SentAt:     evt.Timestamp,
	})
	observability.IncTimelineMerge(observability.MergeAppended)
	return true
}

// MarkDelivered records delivery of a message with the collaborator, then
// stamps the local copy. Subject to the same one-shot self-heal as MarkRead.
func (s *Store) MarkDelivered(ctx context.Context, messageID int) error {
	err := s.heal.run(ctx,
		func(ctx context.Context) error { return s.backend.MarkDelivered(ctx, messageID) },
		func(ctx context.Context) error { return s.recoverMembership(ctx, messageID) },
	)
	if err != nil {
		return fmt.Errorf("mark delivered %d: %w", messageID, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if i, ok := s.index[messageID]; ok && s.messages[i].DeliveredAt == nil {
		now := time.Now().UTC()
		s.messages[i].DeliveredAt = &now
	}
	return nil
}

// MarkRead records a read receipt for the local user. While the call is in
// flight the message is pending; a failure the self-heal could not recover
// moves it to failed, where it stays until a manual retry. Marking an
// already-read message again is a no-op on both sides.
func (s *Store) MarkRead(ctx context.Context, messageID int) error {
	ctx, span := otel.Tracer("chat-sync/timeline").Start(ctx, "timeline.mark_read")
	defer span.End()

	s.setStatus(messageID, statusPending)

	err := s.heal.run(ctx,
		func(ctx context.Context) error { return s.backend.MarkRead(ctx, messageID) },
		func(ctx context.Context) error { return s.recoverMembership(ctx, messageID) },
	)
	if err != nil {
		s.setStatus(messageID, statusFailed)
		return fmt.Errorf("mark read %d: %w", messageID, err)
	}

	s.applyRead(messageID)
	return nil
}

// MarkRoomRead marks the whole active room read.
func (s *Store) MarkRoomRead(ctx context.Context, roomID int) error {
	if err := s.backend.MarkRoomRead(ctx, roomID); err != nil {
		return fmt.Errorf("mark room %d read: %w", roomID, err)
	}
	return nil
}

// Pending returns the ids of messages whose read-marking is in flight.
func (s *Store) Pending() []int {
	return s.idsWithStatus(statusPending)
}

// Failed returns the ids of messages whose read-marking permanently failed.
func (s *Store) Failed() []int {
	return s.idsWithStatus(statusFailed)
}

// recoverMembership is the one-shot self-heal: resolve the room owning the
// message, join it, and reload room state so the retried call sees a
// recognized membership.
func (s *Store) recoverMembership(ctx context.Context, messageID int) error {
	roomID, err := s.resolveRoom(ctx, messageID)
	if err != nil {
		observability.IncSelfHeal(observability.HealAbandoned)
		return fmt.Errorf("resolve room for message %d: %w", messageID, err)
	}

	if err := s.members.Join(ctx, roomID); err != nil {
		observability.IncSelfHeal(observability.HealAbandoned)
		return err
	}

	s.mu.Lock()
	active := s.roomID == roomID
	epoch := s.epoch
	s.mu.Unlock()
	if active {
		if err := s.reload(ctx, roomID, epoch); err != nil {
			log.Printf("self-heal reload room=%d failed: %v", roomID, err)
		}
	}

	observability.IncSelfHeal(observability.HealRecovered)
	log.Printf("self-heal joined room=%d for message=%d", roomID, messageID)
	return nil
}

func (s *Store) resolveRoom(ctx context.Context, messageID int) (int, error) {
	s.mu.Lock()
	i, ok := s.index[messageID]
	var roomID int
	if ok {
		roomID = s.messages[i].RoomID
	}
	s.mu.Unlock()
	if ok {
		return roomID, nil
	}

	msg, err := s.backend.GetMessage(ctx, messageID)
	if err != nil {
		return 0, err
	}
	return msg.RoomID, nil
}

// reload fetches a room's messages and participants and installs them if the
// room is still the active one for the captured epoch. Late responses for a
// room that is no longer active are dropped, never applied.
func (s *Store) reload(ctx context.Context, roomID int, epoch uint64) error {
	history, err := s.backend.RoomMessages(ctx, roomID)
	if err != nil {
		return fmt.Errorf("load room %d messages: %w", roomID, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.epoch != epoch || s.roomID != roomID {
		return nil
	}
	s.messages = history.Messages
	s.index = make(map[int]int, len(history.Messages))
	for i, m := range history.Messages {
		s.index[m.ID] = i
	}
	s.participants = history.Participants
	return nil
}

// merge appends a message if its id is not present. Callers hold s.mu.
func (s *Store) merge(msg models.Message) {
	if _, ok := s.index[msg.ID]; ok {
		return
	}
	s.index[msg.ID] = len(s.messages)
	s.messages = append(s.messages, msg)
}

// applyRead stamps read state locally and appends the local user's receipt.
// Re-applying is a silent no-op, matching the receipt's (message, reader)
// uniqueness.
func (s *Store) applyRead(messageID int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status[messageID] = statusRead
	i, ok := s.index[messageID]
	if !ok {
		return
	}
	now := time.Now().UTC()
	if s.messages[i].ReadAt == nil {
		s.messages[i].ReadAt = &now
	}
	if !s.messages[i].HasReceipt(s.userID) {
		s.messages[i].ReadReceipts = append(s.messages[i].ReadReceipts, models.ReadReceipt{
			MessageID:  messageID,
			ReaderID:   s.userID,
			ReaderName: s.username,
			ReadAt:     now,
		})
	}
}

func (s *Store) setStatus(messageID int, status deliveryStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status[messageID] = status
}

func (s *Store) idsWithStatus(want deliveryStatus) []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []int
	for id, st := range s.status {
		if st == want {
			ids = append(ids, id)
		}
	}
	sort.Ints(ids)
	return ids
}
