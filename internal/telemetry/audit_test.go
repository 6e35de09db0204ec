package telemetry_test

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"chat-sync/internal/mocks"
	"chat-sync/internal/telemetry"
)

func newTestEmitter(publisher *mocks.PublisherMock) *telemetry.Emitter {
	return telemetry.NewEmitter(publisher, "sync_audit.client", "chat-sync", "test", 1)
}

func capturedEnvelope(t *testing.T, args mock.Arguments) telemetry.Envelope {
	t.Helper()
	envelope, ok := args.Get(2).(telemetry.Envelope)
	require.True(t, ok, "published event is not an Envelope")
	return envelope
}

func TestActionFailedPublishesEnvelope(t *testing.T) {
	publisher := new(mocks.PublisherMock)
	var envelope telemetry.Envelope
	publisher.On("Publish", mock.Anything, "sync_audit.client", mock.Anything).
		Run(func(args mock.Arguments) { envelope = capturedEnvelope(t, args) }).
		Return(nil).Once()

	emitter := newTestEmitter(publisher)
	emitter.ActionFailed(context.Background(), "mark_read", 55, errors.New("forbidden"))

	publisher.AssertExpectations(t)
	assert.Equal(t, 1, envelope.SchemaVersion)
	assert.Equal(t, "sync_audit", envelope.EventType)
	assert.Equal(t, "chat-sync", envelope.Service)
	assert.Equal(t, "test", envelope.Environment)
	assert.Equal(t, 1, envelope.UserID)
	assert.NotEmpty(t, envelope.OccurredAt)
	_, err := uuid.Parse(envelope.EventID)
	assert.NoError(t, err, "event id must be a uuid")

	assert.Equal(t, "action_failed", envelope.Payload.Event)
	assert.Equal(t, "mark_read: forbidden", envelope.Payload.Detail)
	assert.Equal(t, 55, envelope.Payload.MessageID)
}

func TestConnectionChangedPublishesEnvelope(t *testing.T) {
	publisher := new(mocks.PublisherMock)
	var envelope telemetry.Envelope
	publisher.On("Publish", mock.Anything, "sync_audit.client", mock.Anything).
		Run(func(args mock.Arguments) { envelope = capturedEnvelope(t, args) }).
		Return(nil).Once()

	emitter := newTestEmitter(publisher)
	emitter.ConnectionChanged(context.Background(), "connected")

	publisher.AssertExpectations(t)
	assert.Equal(t, "connection_changed", envelope.Payload.Event)
	assert.Equal(t, "connected", envelope.Payload.Detail)
	assert.Zero(t, envelope.Payload.MessageID)
}

func TestPublishFailureIsSwallowed(t *testing.T) {
	publisher := new(mocks.PublisherMock)
	publisher.On("Publish", mock.Anything, "sync_audit.client", mock.Anything).
		Return(assert.AnError).Once()

	emitter := newTestEmitter(publisher)

	// Audit is best-effort; a broker failure must not propagate.
	emitter.ConnectionChanged(context.Background(), "disconnected")
	publisher.AssertExpectations(t)
}

func TestNilEmitterIsSafe(t *testing.T) {
	var emitter *telemetry.Emitter

	emitter.ConnectionChanged(context.Background(), "connected")
	emitter.ActionFailed(context.Background(), "mark_read", 55, errors.New("boom"))
}
