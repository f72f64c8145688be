// Package state owns canonical room/message state. It applies optimistic
// local mutations, reconciles them with server responses and pushed events,
// and exposes read snapshots. All mutation happens behind one lock; no lock
// is held across a network call.
package state

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hearthchat/hearth-client/api"
	"github.com/hearthchat/hearth-client/notify"
	"github.com/hearthchat/hearth-client/realtime"
	"github.com/hearthchat/hearth-client/telemetry"
)

// provisionalPrefix marks client-generated message ids; server-issued ids
// never carry it, so the two lifecycles are distinguishable by shape.
const provisionalPrefix = "local-"

// typingTTL bounds how long a typing indicator is considered live.
const typingTTL = 6 * time.Second

// RoomAPI is the subset of the backend API the synchronizer persists through.
type RoomAPI interface {
	ListRooms(ctx context.Context) ([]api.Room, error)
	CreateRoom(ctx context.Context, nr api.NewRoom) (*api.Room, error)
	ListMessages(ctx context.Context, roomID string) ([]api.Message, error)
	SendMessage(ctx context.Context, roomID string, msg api.OutgoingMessage) (*api.Message, error)
}

// ChannelSubscriber lets the synchronizer attach a newly created room to the
// push channel without a reconnect.
type ChannelSubscriber interface {
	Subscribe(roomID string)
}

// IsProvisional reports whether a message id is client-generated.
func IsProvisional(id string) bool { return strings.HasPrefix(id, provisionalPrefix) }

// NewProvisionalID mints a client-generated id that doubles as the
// correlation ref sent with the persist request.
func NewProvisionalID() string { return provisionalPrefix + uuid.New().String() }

// Synchronizer is the single owner of canonical chat state.
type Synchronizer struct {
	API        RoomAPI
	Channel    ChannelSubscriber
	Classifier *notify.Classifier

	mu       sync.Mutex
	selfID   string
	rooms    []api.Room
	messages map[string][]api.Message
	loaded   map[string]bool
	presence map[string]map[string]struct{}
	typing   map[string]map[string]time.Time
	activeID string

	updates chan struct{}
}

func NewSynchronizer(apiClient RoomAPI, channel ChannelSubscriber, classifier *notify.Classifier) *Synchronizer {
	return &Synchronizer{
		API:        apiClient,
		Channel:    channel,
		Classifier: classifier,
		messages:   make(map[string][]api.Message),
		loaded:     make(map[string]bool),
		presence:   make(map[string]map[string]struct{}),
		typing:     make(map[string]map[string]time.Time),
		updates:    make(chan struct{}, 1),
	}
}

// SetIdentity records the logged-in user id, used as the sender of
// provisional messages.
func (s *Synchronizer) SetIdentity(userID string) {
	s.mu.Lock()
	s.selfID = userID
	s.mu.Unlock()
}

// Updates is a coalesced change signal: one pending tick at most, emitted
// whenever a snapshot-visible mutation lands.
func (s *Synchronizer) Updates() <-chan struct{} { return s.updates }

func (s *Synchronizer) signal() {
	select {
	case s.updates <- struct{}{}:
	default:
	}
}

// LoadRooms replaces the room list. If no room is active, the first loaded
// room becomes active (with its lazy message load).
func (s *Synchronizer) LoadRooms(ctx context.Context) error {
	rooms, err := s.API.ListRooms(ctx)
	if err != nil {
		s.Classifier.NotifyError(err, "loadRooms")
		return err
	}

	s.mu.Lock()
	s.rooms = rooms
	activate := ""
	if s.activeID == "" && len(rooms) > 0 {
		activate = rooms[0].ID
	}
	s.mu.Unlock()
	s.signal()

	if activate != "" {
		return s.SetActiveRoom(ctx, activate)
	}
	return nil
}

// LoadMessages replaces the message sequence for a room, sorted ascending by
// timestamp. Idempotent; callers decide when a refetch is warranted.
func (s *Synchronizer) LoadMessages(ctx context.Context, roomID string) error {
	msgs, err := s.API.ListMessages(ctx, roomID)
	if err != nil {
		s.Classifier.NotifyError(err, "loadMessages")
		return err
	}
	sort.SliceStable(msgs, func(i, j int) bool { return msgs[i].Timestamp.Before(msgs[j].Timestamp) })

	s.mu.Lock()
	s.messages[roomID] = msgs
	s.loaded[roomID] = true
	s.mu.Unlock()
	s.signal()
	return nil
}

// SetActiveRoom switches the active pointer. Messages are fetched lazily: at
// most once per empty cached sequence, so re-activating a loaded room does
// not refetch.
func (s *Synchronizer) SetActiveRoom(ctx context.Context, roomID string) error {
	s.mu.Lock()
	s.activeID = roomID
	needLoad := len(s.messages[roomID]) == 0 && !s.loaded[roomID]
	s.mu.Unlock()
	s.signal()

	if needLoad {
		return s.LoadMessages(ctx, roomID)
	}
	return nil
}

// SendMessage applies the optimistic mutation: a provisional entry appears
// immediately, the persist call follows, and a failure rolls the entry back
// before the fault is routed to the classifier.
func (s *Synchronizer) SendMessage(ctx context.Context, roomID, content string, kind api.MessageKind) error {
	s.mu.Lock()
	provisional := api.Message{
		ID:        NewProvisionalID(),
		RoomID:    roomID,
		SenderID:  s.selfID,
		Content:   content,
		Kind:      kind,
		Timestamp: time.Now().UTC(),
	}
	s.messages[roomID] = append(s.messages[roomID], provisional)
	s.setLastMessageLocked(roomID, provisional)
	s.mu.Unlock()
	s.signal()

	confirmed, err := s.API.SendMessage(ctx, roomID, api.OutgoingMessage{
		Content:   content,
		Kind:      kind,
		ClientRef: provisional.ID,
	})
	if err != nil {
		s.rollback(roomID, provisional.ID)
		s.Classifier.NotifyError(err, "sendMessage")
		return err
	}

	if c := telemetry.MessagesSent; c != nil {
		c.Inc()
	}
	s.mu.Lock()
	s.reconcileLocked(roomID, *confirmed, provisional.ID)
	s.mu.Unlock()
	s.signal()
	return nil
}

// rollback removes a provisional entry, restoring the pre-attempt sequence.
func (s *Synchronizer) rollback(roomID, provisionalID string) {
	s.mu.Lock()
	seq := s.messages[roomID]
	for i, m := range seq {
		if m.ID == provisionalID {
			s.messages[roomID] = append(seq[:i:i], seq[i+1:]...)
			break
		}
	}
	s.refreshLastMessageLocked(roomID)
	s.mu.Unlock()
	s.signal()
	if c := telemetry.MessagesRolledBack; c != nil {
		c.Inc()
	}
}

// reconcileLocked merges a confirmed message into a room's sequence: replace
// the matching provisional entry in place, drop an exact duplicate, or
// append. ref may be empty when the confirmation carries no correlation id.
func (s *Synchronizer) reconcileLocked(roomID string, confirmed api.Message, ref string) {
	if confirmed.ClientRef != "" {
		ref = confirmed.ClientRef
	}
	seq := s.messages[roomID]
	if ref != "" {
		for i, m := range seq {
			if m.ID == ref {
				seq[i] = confirmed
				s.setLastMessageLocked(roomID, confirmed)
				if c := telemetry.PushesReconciled; c != nil {
					c.Inc()
				}
				return
			}
		}
	}
	for _, m := range seq {
		if m.ID == confirmed.ID {
			// Already merged via the other channel.
			return
		}
	}
	s.messages[roomID] = append(seq, confirmed)
	s.setLastMessageLocked(roomID, confirmed)
}

// HandlePush merges a pushed event into canonical state (realtime.EventSink).
func (s *Synchronizer) HandlePush(ev realtime.Envelope) {
	switch ev.Type {
	case realtime.EventNewMessage:
		msg := api.Message{
			ID:        ev.ID,
			RoomID:    ev.RoomID,
			SenderID:  ev.SenderID,
			Content:   ev.Text,
			Kind:      api.MessageKind(ev.MessageType),
			Timestamp: ev.Timestamp,
			ClientRef: ev.Ref,
		}
		s.mu.Lock()
		if !s.knownRoomLocked(ev.RoomID) {
			s.mu.Unlock()
			slog.Debug("push for unknown room dropped", slog.String("room_id", ev.RoomID))
			return
		}
		s.reconcileLocked(ev.RoomID, msg, ev.Ref)
		s.mu.Unlock()
		s.signal()
		if c := telemetry.PushesApplied; c != nil {
			c.Inc()
		}

	case realtime.EventTyping:
		s.mu.Lock()
		if s.typing[ev.RoomID] == nil {
			s.typing[ev.RoomID] = make(map[string]time.Time)
		}
		s.typing[ev.RoomID][ev.SenderID] = time.Now()
		s.mu.Unlock()
		s.signal()

	case realtime.EventUserJoined:
		s.mu.Lock()
		if s.presence[ev.RoomID] == nil {
			s.presence[ev.RoomID] = make(map[string]struct{})
		}
		s.presence[ev.RoomID][ev.SenderID] = struct{}{}
		s.mu.Unlock()
		s.signal()

	case realtime.EventUserLeft:
		s.mu.Lock()
		delete(s.presence[ev.RoomID], ev.SenderID)
		delete(s.typing[ev.RoomID], ev.SenderID)
		s.mu.Unlock()
		s.signal()
	}
}

// CreateRoom persists a new room, appends it, and subscribes the push channel
// to it immediately.
func (s *Synchronizer) CreateRoom(ctx context.Context, nr api.NewRoom) (*api.Room, error) {
	room, err := s.API.CreateRoom(ctx, nr)
	if err != nil {
		s.Classifier.NotifyError(err, "createRoom")
		return nil, err
	}

	s.mu.Lock()
	s.rooms = append(s.rooms, *room)
	// Fresh rooms have no history; skip the lazy fetch on first activation.
	s.loaded[room.ID] = true
	s.mu.Unlock()
	s.signal()

	if s.Channel != nil {
		s.Channel.Subscribe(room.ID)
	}
	return room, nil
}

func (s *Synchronizer) knownRoomLocked(roomID string) bool {
	for i := range s.rooms {
		if s.rooms[i].ID == roomID {
			return true
		}
	}
	return false
}

func (s *Synchronizer) setLastMessageLocked(roomID string, msg api.Message) {
	for i := range s.rooms {
		if s.rooms[i].ID == roomID {
			cp := msg
			s.rooms[i].LastMessage = &cp
			return
		}
	}
}

func (s *Synchronizer) refreshLastMessageLocked(roomID string) {
	seq := s.messages[roomID]
	for i := range s.rooms {
		if s.rooms[i].ID == roomID {
			if len(seq) == 0 {
				s.rooms[i].LastMessage = nil
			} else {
				cp := seq[len(seq)-1]
				s.rooms[i].LastMessage = &cp
			}
			return
		}
	}
}

// Snapshots -----------------------------------------------------------------

// Rooms returns a copy of the room list.
func (s *Synchronizer) Rooms() []api.Room {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]api.Room, len(s.rooms))
	copy(out, s.rooms)
	return out
}

// RoomIDs implements realtime.RoomSource.
func (s *Synchronizer) RoomIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.rooms))
	for i := range s.rooms {
		out = append(out, s.rooms[i].ID)
	}
	return out
}

// ActiveRoomID returns the active room pointer ("" when none).
func (s *Synchronizer) ActiveRoomID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeID
}

// Messages returns a copy of a room's message sequence.
func (s *Synchronizer) Messages(roomID string) []api.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	seq := s.messages[roomID]
	out := make([]api.Message, len(seq))
	copy(out, seq)
	return out
}

// ActiveMessages returns the active room's sequence, the mirror the UI renders.
func (s *Synchronizer) ActiveMessages() []api.Message {
	s.mu.Lock()
	active := s.activeID
	s.mu.Unlock()
	if active == "" {
		return nil
	}
	return s.Messages(active)
}

// TypingUsers returns users with a live typing indicator in a room.
func (s *Synchronizer) TypingUsers(roomID string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	now := time.Now()
	for userID, at := range s.typing[roomID] {
		if now.Sub(at) <= typingTTL {
			out = append(out, userID)
		} else {
			delete(s.typing[roomID], userID)
		}
	}
	sort.Strings(out)
	return out
}

// PresentUsers returns users seen joining a room and not yet leaving.
func (s *Synchronizer) PresentUsers(roomID string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.presence[roomID]))
	for userID := range s.presence[roomID] {
		out = append(out, userID)
	}
	sort.Strings(out)
	return out
}
