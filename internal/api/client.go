package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"chat-sync/internal/models"
	"chat-sync/internal/observability"
)

// Collaborator is the REST surface of the course platform consumed by the
// sync engine. All request/response bodies are JSON.
type Collaborator interface {
	ListRooms(ctx context.Context) ([]models.Room, error)
	CreateRoom(ctx context.Context, req CreateRoomRequest) (models.Room, error)
	JoinRoom(ctx context.Context, roomID int) error
	LeaveRoom(ctx context.Context, roomID int) error
	RoomMessages(ctx context.Context, roomID int) (RoomHistory, error)
	PostMessage(ctx context.Context, roomID int, content, kind string) (models.Message, error)
	MarkRoomRead(ctx context.Context, roomID int) error
	MarkDelivered(ctx context.Context, messageID int) error
	MarkRead(ctx context.Context, messageID int) error
	GetMessage(ctx context.Context, messageID int) (models.Message, error)
	SearchUsers(ctx context.Context, query string) ([]models.User, error)
	StartPrivate(ctx context.Context, userID int) (models.Room, error)
}

// CreateRoomRequest is the payload for POST /rooms.
type CreateRoomRequest struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Kind        string `json:"kind"`
}

// RoomHistory is the combined response of GET /rooms/{id}/messages.
type RoomHistory struct {
	Messages     []models.Message     `json:"messages"`
	Participants []models.Participant `json:"participants"`
}

// Client is the HTTP implementation of Collaborator.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewClient builds a Client for the given base URL and bearer token.
func NewClient(baseURL, token string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:    baseURL,
		token:      token,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// ListRooms fetches the full room list with participant and unread summaries.
func (c *Client) ListRooms(ctx context.Context) ([]models.Room, error) {
	var resp struct {
		Rooms []models.Room `json:"rooms"`
	}
	if err := c.do(ctx, http.MethodGet, "/rooms", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Rooms, nil
}

// CreateRoom creates a room and returns the canonical server copy.
func (c *Client) CreateRoom(ctx context.Context, req CreateRoomRequest) (models.Room, error) {
	var room models.Room
	if err := c.do(ctx, http.MethodPost, "/rooms", req, &room); err != nil {
		return models.Room{}, err
	}
	return room, nil
}

// JoinRoom registers the caller as an active participant.
func (c *Client) JoinRoom(ctx context.Context, roomID int) error {
	return c.do(ctx, http.MethodPost, "/rooms/"+strconv.Itoa(roomID)+"/join", nil, nil)
}

// LeaveRoom deactivates the caller's participant record.
func (c *Client) LeaveRoom(ctx context.Context, roomID int) error {
	return c.do(ctx, http.MethodPost, "/rooms/"+strconv.Itoa(roomID)+"/leave", nil, nil)
}

// RoomMessages loads a room's messages together with its participants.
func (c *Client) RoomMessages(ctx context.Context, roomID int) (RoomHistory, error) {
	var history RoomHistory
	if err := c.do(ctx, http.MethodGet, "/rooms/"+strconv.Itoa(roomID)+"/messages", nil, &history); err != nil {
		return RoomHistory{}, err
	}
	return history, nil
}

// PostMessage sends a message and returns the canonical server copy with its
// assigned id and timestamp.
func (c *Client) PostMessage(ctx context.Context, roomID int, content, kind string) (models.Message, error) {
	if kind == "" {
		kind = models.MessageKindText
	}
	body := struct {
		Content string `json:"content"`
		Kind    string `json:"kind"`
	}{Content: content, Kind: kind}

	var msg models.Message
	if err := c.do(ctx, http.MethodPost, "/rooms/"+strconv.Itoa(roomID)+"/messages", body, &msg); err != nil {
		return models.Message{}, err
	}
	return msg, nil
}

// MarkRoomRead marks the whole room read for the caller.
func (c *Client) MarkRoomRead(ctx context.Context, roomID int) error {
	return c.do(ctx, http.MethodPost, "/rooms/"+strconv.Itoa(roomID)+"/read", nil, nil)
}

// MarkDelivered records delivery of a single message.
func (c *Client) MarkDelivered(ctx context.Context, messageID int) error {
	return c.do(ctx, http.MethodPut, "/messages/"+strconv.Itoa(messageID)+"/delivered", nil, nil)
}

// MarkRead records a read receipt for a single message. Returns a 403
// StatusError when the caller is not an active participant of the owning
// room.
func (c *Client) MarkRead(ctx context.Context, messageID int) error {
	return c.do(ctx, http.MethodPut, "/messages/"+strconv.Itoa(messageID)+"/read", nil, nil)
}

// GetMessage fetches a single message, used to resolve its owning room.
func (c *Client) GetMessage(ctx context.Context, messageID int) (models.Message, error) {
	var msg models.Message
	if err := c.do(ctx, http.MethodGet, "/messages/"+strconv.Itoa(messageID), nil, &msg); err != nil {
		return models.Message{}, err
	}
	return msg, nil
}

// SearchUsers looks up users for starting a direct room.
func (c *Client) SearchUsers(ctx context.Context, query string) ([]models.User, error) {
	var resp struct {
		Users []models.User `json:"users"`
	}
	path := "/users?q=" + url.QueryEscape(query)
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Users, nil
}

// StartPrivate returns the existing or newly created direct room with the
// target user.
func (c *Client) StartPrivate(ctx context.Context, userID int) (models.Room, error) {
	body := struct {
		UserID int `json:"user_id"`
	}{UserID: userID}

	var room models.Room
	if err := c.do(ctx, http.MethodPost, "/private", body, &room); err != nil {
		return models.Room{}, err
	}
	return room, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		observability.IncAPIRequest(method, "error")
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	observability.IncAPIRequest(method, strconv.Itoa(resp.StatusCode))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return statusErrorFromResponse(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func statusErrorFromResponse(resp *http.Response) error {
	var payload struct {
		Error string `json:"error"`
	}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err := json.Unmarshal(raw, &payload); err != nil || payload.Error == "" {
		payload.Error = string(bytes.TrimSpace(raw))
	}
	return &StatusError{Code: resp.StatusCode, Message: payload.Error}
}

var _ Collaborator = (*Client)(nil)
