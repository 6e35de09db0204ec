package telemetry

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"
)

// Publisher is the broker the emitter writes through.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, event any) error
	Close() error
}

// Emitter publishes sync-engine audit events. A nil Emitter is safe to call
// and does nothing, so wiring it is optional.
type Emitter struct {
	publisher   Publisher
	routingKey  string
	service     string
	environment string
	userID      int
}

// Envelope is the audit event wire shape.
type Envelope struct {
	SchemaVersion int     `json:"schema_version"`
	EventID       string  `json:"event_id"`
	EventType     string  `json:"event_type"`
	OccurredAt    string  `json:"occurred_at"`
	Service       string  `json:"service"`
	Environment   string  `json:"environment"`
	UserID        int     `json:"user_id"`
	Payload       Payload `json:"payload"`
}

// Payload carries the event details.
type Payload struct {
	Event     string `json:"event"`
	Detail    string `json:"detail,omitempty"`
	RoomID    int    `json:"room_id,omitempty"`
	MessageID int    `json:"message_id,omitempty"`
}

// NewEmitter builds an Emitter bound to a user identity.
func NewEmitter(publisher Publisher, routingKey, service, environment string, userID int) *Emitter {
	return &Emitter{
		publisher:   publisher,
		routingKey:  routingKey,
		service:     service,
		environment: environment,
		userID:      userID,
	}
}

// ConnectionChanged records a push-channel state transition.
func (e *Emitter) ConnectionChanged(ctx context.Context, state string) {
	e.emit(ctx, Payload{Event: "connection_changed", Detail: state})
}

// ActionFailed records an action that permanently failed after recovery was
// exhausted. These are the failures a UI offers a manual retry for.
func (e *Emitter) ActionFailed(ctx context.Context, op string, messageID int, err error) {
	e.emit(ctx, Payload{Event: "action_failed", Detail: op + ": " + err.Error(), MessageID: messageID})
}

func (e *Emitter) emit(ctx context.Context, payload Payload) {
	if e == nil || e.publisher == nil {
		return
	}

	envelope := Envelope{
		SchemaVersion: 1,
		EventID:       uuid.NewString(),
		EventType:     "sync_audit",
		OccurredAt:    time.Now().UTC().Format(time.RFC3339Nano),
		Service:       e.service,
		Environment:   e.environment,
		UserID:        e.userID,
		Payload:       payload,
	}
	if err := e.publisher.Publish(ctx, e.routingKey, envelope); err != nil {
		log.Printf("audit publish failed event=%s: %v", payload.Event, err)
	}
}
