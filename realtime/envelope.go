// Package realtime manages the persistent push channel: one websocket
// connection per authenticated session, per-room subscriptions, and a
// supervised reconnect loop. No subscription state survives a disconnect;
// every successful (re)connect subscribes the user's inbox plus the full
// current room set from scratch.
package realtime

import "time"

// EventType is the discriminator of a pushed envelope.
type EventType string

const (
	EventNewMessage EventType = "NEW_MESSAGE"
	EventTyping     EventType = "TYPING_INDICATOR"
	EventUserJoined EventType = "USER_JOINED"
	EventUserLeft   EventType = "USER_LEFT"
	EventError      EventType = "ERROR"
)

// Envelope is the wire shape of a server-initiated event.
type Envelope struct {
	Type        EventType `json:"type"`
	ID          string    `json:"id,omitempty"`
	SenderID    string    `json:"senderId,omitempty"`
	RoomID      string    `json:"roomId,omitempty"`
	Text        string    `json:"text,omitempty"`
	Timestamp   time.Time `json:"timestamp,omitempty"`
	MessageType string    `json:"messageType,omitempty"`

	// Ref echoes the client-generated correlation id of a provisional
	// message so the synchronizer can reconcile instead of appending twice.
	Ref string `json:"ref,omitempty"`
}

// frame is a client-to-server control message.
type frame struct {
	Action      string `json:"action"` // subscribe | unsubscribe | publish
	Destination string `json:"destination"`
	Body        any    `json:"body,omitempty"`
}

// typingSignal is the fire-and-forget payload published to a room's typing
// destination.
type typingSignal struct {
	UserID   string `json:"userId"`
	IsTyping bool   `json:"isTyping"`
}

// InboxDestination is the private per-user destination.
func InboxDestination(userID string) string { return "user/" + userID + "/inbox" }

// RoomDestination is the per-room event destination.
func RoomDestination(roomID string) string { return "room/" + roomID }

// TypingDestination is the per-room outbound typing destination.
func TypingDestination(roomID string) string { return "room/" + roomID + "/typing" }
