package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"chat-sync/internal/api"
	"chat-sync/internal/models"
)

type CollaboratorMock struct {
	mock.Mock
}

func (m *CollaboratorMock) ListRooms(ctx context.Context) ([]models.Room, error) {
	args := m.Called(ctx)
	var rooms []models.Room
	if val := args.Get(0); val != nil {
		rooms = val.([]models.Room)
	}
	return rooms, args.Error(1)
}

func (m *CollaboratorMock) CreateRoom(ctx context.Context, req api.CreateRoomRequest) (models.Room, error) {
	args := m.Called(ctx, req)
	var room models.Room
	if val := args.Get(0); val != nil {
		room = val.(models.Room)
	}
	return room, args.Error(1)
}

func (m *CollaboratorMock) JoinRoom(ctx context.Context, roomID int) error {
	args := m.Called(ctx, roomID)
	return args.Error(0)
}

func (m *CollaboratorMock) LeaveRoom(ctx context.Context, roomID int) error {
	args := m.Called(ctx, roomID)
	return args.Error(0)
}

func (m *CollaboratorMock) RoomMessages(ctx context.Context, roomID int) (api.RoomHistory, error) {
	args := m.Called(ctx, roomID)
	var history api.RoomHistory
	if val := args.Get(0); val != nil {
		history = val.(api.RoomHistory)
	}
	return history, args.Error(1)
}

func (m *CollaboratorMock) PostMessage(ctx context.Context, roomID int, content, kind string) (models.Message, error) {
	args := m.Called(ctx, roomID, content, kind)
	var msg models.Message
	if val := args.Get(0); val != nil {
		msg = val.(models.Message)
	}
	return msg, args.Error(1)
}

func (m *CollaboratorMock) MarkRoomRead(ctx context.Context, roomID int) error {
	args := m.Called(ctx, roomID)
	return args.Error(0)
}

func (m *CollaboratorMock) MarkDelivered(ctx context.Context, messageID int) error {
	args := m.Called(ctx, messageID)
	return args.Error(0)
}

func (m *CollaboratorMock) MarkRead(ctx context.Context, messageID int) error {
	args := m.Called(ctx, messageID)
	return args.Error(0)
}

func (m *CollaboratorMock) GetMessage(ctx context.Context, messageID int) (models.Message, error) {
	args := m.Called(ctx, messageID)
	var msg models.Message
	if val := args.Get(0); val != nil {
		msg = val.(models.Message)
	}
	return msg, args.Error(1)
}

func (m *CollaboratorMock) SearchUsers(ctx context.Context, query string) ([]models.User, error) {
	args := m.Called(ctx, query)
	var users []models.User
	if val := args.Get(0); val != nil {
		users = val.([]models.User)
	}
	return users, args.Error(1)
}

func (m *CollaboratorMock) StartPrivate(ctx context.Context, userID int) (models.Room, error) {
	args := m.Called(ctx, userID)
	var room models.Room
	if val := args.Get(0); val != nil {
		room = val.(models.Room)
	}
	return room, args.Error(1)
}

type JoinerMock struct {
	mock.Mock
}

func (m *JoinerMock) Join(ctx context.Context, roomID int) error {
	args := m.Called(ctx, roomID)
	return args.Error(0)
}

var _ api.Collaborator = (*CollaboratorMock)(nil)
