// Package api contains typed wrappers over the transport client for the chat
// backend's request/response endpoints: authentication, rooms and messages,
// and the plain pass-through contracts (friend list, profile edit, avatar
// upload).
package api

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/hearthchat/hearth-client/transport"
)

// RoomKind discriminates direct, group, and bot rooms.
type RoomKind string

const (
	RoomDirect RoomKind = "direct"
	RoomGroup  RoomKind = "group"
	RoomBot    RoomKind = "bot"
)

// MessageKind discriminates message content types.
type MessageKind string

const (
	MessageText  MessageKind = "text"
	MessageImage MessageKind = "image"
	MessageLink  MessageKind = "link"
	MessageFile  MessageKind = "file"
)

// User mirrors the backend user resource.
type User struct {
	ID            string `json:"id"`
	Email         string `json:"email"`
	Nickname      string `json:"nickname"`
	AvatarURL     string `json:"avatarUrl,omitempty"`
	StatusMessage string `json:"statusMessage,omitempty"`
}

// Room mirrors the backend room resource.
type Room struct {
	ID           string   `json:"id"`
	Kind         RoomKind `json:"kind"`
	Name         string   `json:"name"`
	Participants []User   `json:"participants"`
	LastMessage  *Message `json:"lastMessage,omitempty"`
}

// Message mirrors the backend message resource. ClientRef echoes the
// client-generated correlation id of the provisional entry it confirms.
type Message struct {
	ID        string      `json:"id"`
	RoomID    string      `json:"roomId"`
	SenderID  string      `json:"senderId"`
	Content   string      `json:"content"`
	Kind      MessageKind `json:"kind"`
	Timestamp time.Time   `json:"timestamp"`
	Edited    bool        `json:"edited,omitempty"`
	ClientRef string      `json:"clientRef,omitempty"`
}

// LoginResult is the payload of login, register, and token refresh.
type LoginResult struct {
	User      User      `json:"user"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt,omitempty"`
}

// Client exposes the chat backend API.
type Client struct {
	Transport *transport.Client
}

// Login authenticates with email/password and returns the issued token.
func (c *Client) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	if email == "" || password == "" {
		return nil, fmt.Errorf("email and password required")
	}
	var out LoginResult
	body := map[string]string{"email": email, "password": password}
	if err := c.Transport.Do(ctx, http.MethodPost, "/auth/login", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Registration is the payload for creating an account.
type Registration struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Nickname string `json:"nickname"`
}

// Register creates an account and returns the issued token.
func (c *Client) Register(ctx context.Context, reg Registration) (*LoginResult, error) {
	var out LoginResult
	if err := c.Transport.Do(ctx, http.MethodPost, "/auth/register", reg, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Logout invalidates the current token server-side.
func (c *Client) Logout(ctx context.Context) error {
	return c.Transport.Do(ctx, http.MethodPost, "/auth/logout", nil, nil)
}

// RefreshToken rotates the current token.
func (c *Client) RefreshToken(ctx context.Context) (*LoginResult, error) {
	var out LoginResult
	if err := c.Transport.Do(ctx, http.MethodPost, "/auth/refresh", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Me fetches the authenticated user's profile.
func (c *Client) Me(ctx context.Context) (*User, error) {
	var out User
	if err := c.Transport.Do(ctx, http.MethodGet, "/users/me", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ProfileUpdate carries the editable profile fields.
type ProfileUpdate struct {
	Nickname      string `json:"nickname,omitempty"`
	StatusMessage string `json:"statusMessage,omitempty"`
}

// UpdateProfile edits the authenticated user's profile (pass-through contract).
func (c *Client) UpdateProfile(ctx context.Context, upd ProfileUpdate) (*User, error) {
	var out User
	if err := c.Transport.Do(ctx, http.MethodPut, "/users/me", upd, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UploadAvatar uploads a profile image via the multipart path.
func (c *Client) UploadAvatar(ctx context.Context, filename string, content io.Reader) (string, error) {
	var out struct {
		URL string `json:"url"`
	}
	if err := c.Transport.Upload(ctx, "/users/me/avatar", "file", filename, content, &out); err != nil {
		return "", err
	}
	return out.URL, nil
}

// ListFriends returns the friend list (pass-through contract).
func (c *Client) ListFriends(ctx context.Context) ([]User, error) {
	var out []User
	if err := c.Transport.Do(ctx, http.MethodGet, "/friends", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ListRooms returns all rooms visible to the user.
func (c *Client) ListRooms(ctx context.Context) ([]Room, error) {
	var out []Room
	if err := c.Transport.Do(ctx, http.MethodGet, "/rooms", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// NewRoom is the payload for room creation.
type NewRoom struct {
	Name           string   `json:"name,omitempty"`
	Kind           RoomKind `json:"kind"`
	ParticipantIDs []string `json:"participantIds"`
}

// CreateRoom persists a new room.
func (c *Client) CreateRoom(ctx context.Context, nr NewRoom) (*Room, error) {
	var out Room
	if err := c.Transport.Do(ctx, http.MethodPost, "/rooms", nr, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListMessages returns a room's messages. Ordering is not guaranteed by the
// server; callers sort by timestamp.
func (c *Client) ListMessages(ctx context.Context, roomID string) ([]Message, error) {
	if roomID == "" {
		return nil, fmt.Errorf("roomID empty")
	}
	var out []Message
	path := "/rooms/" + url.PathEscape(roomID) + "/messages"
	if err := c.Transport.Do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// OutgoingMessage is the persist payload for a message. ClientRef is the
// provisional id used to reconcile the confirmation.
type OutgoingMessage struct {
	Content   string      `json:"content"`
	Kind      MessageKind `json:"kind"`
	ClientRef string      `json:"clientRef"`
}

// SendMessage persists a message and returns the confirmed resource.
func (c *Client) SendMessage(ctx context.Context, roomID string, msg OutgoingMessage) (*Message, error) {
	if roomID == "" {
		return nil, fmt.Errorf("roomID empty")
	}
	var out Message
	path := "/rooms/" + url.PathEscape(roomID) + "/messages"
	if err := c.Transport.Do(ctx, http.MethodPost, path, msg, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
