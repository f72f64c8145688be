package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/hearthchat/hearth-client/notify"
	"github.com/hearthchat/hearth-client/storage"
	"github.com/hearthchat/hearth-client/telemetry"
)

const (
	// contextLabel is the fixed error-classifier context for channel faults.
	contextLabel = "realtime"

	initialBackoff = 1 * time.Second
	maxBackoff     = 30 * time.Second

	writeTimeout = 5 * time.Second
	readTimeout  = 60 * time.Second
	pingInterval = 25 * time.Second

	outboundQueueSize = 64
)

// RoomSource yields the room ids currently known to the state synchronizer,
// consulted on every (re)connect to rebuild the subscription set.
type RoomSource interface {
	RoomIDs() []string
}

// EventSink receives decoded push events.
type EventSink interface {
	HandlePush(ev Envelope)
}

// Manager owns the single push-channel connection for the session.
type Manager struct {
	URL        string // ws:// or wss:// base
	Creds      storage.TokenReader
	Rooms      RoomSource
	Sink       EventSink
	Classifier *notify.Classifier
	Dialer     *websocket.Dialer

	// TypingDebounce suppresses repeat typing=true signals per room.
	TypingDebounce time.Duration

	mu         sync.Mutex
	cancel     context.CancelFunc
	userID     string
	conn       *websocket.Conn
	out        chan []byte
	subs       map[string]struct{}
	lastTyping map[string]time.Time
	done       chan struct{}
}

func (m *Manager) dialer() *websocket.Dialer {
	if m.Dialer != nil {
		return m.Dialer
	}
	return websocket.DefaultDialer
}

// Connect starts the supervised connection for userID. It is idempotent: a
// no-op while a supervisor is already running. The supervisor retries until
// ctx is canceled or Disconnect is called.
func (m *Manager) Connect(ctx context.Context, userID string) {
	m.mu.Lock()
	if m.cancel != nil {
		m.mu.Unlock()
		return
	}
	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.userID = userID
	done := make(chan struct{})
	m.done = done
	m.mu.Unlock()

	go m.supervise(runCtx, done)
}

// Disconnect tears the connection down and stops the reconnect supervisor.
// Safe to call when not connected.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	cancel := m.cancel
	done := m.done
	m.cancel = nil
	m.done = nil
	m.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
	slog.Info("realtime channel torn down")
}

// Connected reports whether the socket is currently up.
func (m *Manager) Connected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.conn != nil
}

// supervise runs connect sessions forever, with bounded exponential backoff
// between attempts, until the context is canceled.
func (m *Manager) supervise(ctx context.Context, done chan struct{}) {
	defer close(done)
	delay := initialBackoff
	for {
		start := time.Now()
		err := m.runOnce(ctx)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			slog.Warn("realtime channel dropped", slog.Any("err", err), slog.String("component", "realtime"))
			if m.Classifier != nil {
				m.Classifier.NotifyError(err, contextLabel)
			}
		}
		// A session that lived a while resets the backoff; rapid-fire
		// failures keep doubling it up to the cap.
		if time.Since(start) > maxBackoff {
			delay = initialBackoff
		}
		if c := telemetry.ChannelReconnects; c != nil {
			c.Inc()
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
		delay *= 2
		if delay > maxBackoff {
			delay = maxBackoff
		}
	}
}

// runOnce dials, rebuilds the subscription set, and pumps the socket until it
// fails or the context is canceled.
func (m *Manager) runOnce(ctx context.Context) error {
	header := http.Header{}
	if m.Creds != nil {
		if tok := m.Creds.Token(); tok != "" {
			header.Set("Authorization", "Bearer "+tok)
		}
	}
	conn, resp, err := m.dialer().DialContext(ctx, m.URL+"/ws", header)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("channel handshake rejected (%d): %w", resp.StatusCode, err)
		}
		return fmt.Errorf("channel dial: %w", err)
	}

	out := make(chan []byte, outboundQueueSize)
	m.mu.Lock()
	m.conn = conn
	m.out = out
	m.subs = make(map[string]struct{})
	userID := m.userID
	m.mu.Unlock()

	if c := telemetry.ChannelConnects; c != nil {
		c.Inc()
	}
	telemetry.SetConnected(true)
	slog.Info("realtime channel connected", slog.String("component", "realtime"))

	defer func() {
		m.mu.Lock()
		m.conn = nil
		m.out = nil
		m.subs = nil
		m.mu.Unlock()
		_ = conn.Close()
		telemetry.SetConnected(false)
		telemetry.SetSubscriptions(0)
	}()

	// Subscriptions are stateless across reconnects: inbox plus the full
	// current room set, rebuilt from scratch every time.
	m.enqueueSubscribe(InboxDestination(userID))
	for _, roomID := range m.Rooms.RoomIDs() {
		m.enqueueSubscribe(RoomDestination(roomID))
	}

	writeDone := make(chan error, 1)
	go m.writePump(ctx, conn, out, writeDone)

	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(readTimeout))
	})
	_ = conn.SetReadDeadline(time.Now().Add(readTimeout))

	readDone := make(chan error, 1)
	go func() {
		for {
			var ev Envelope
			if err := conn.ReadJSON(&ev); err != nil {
				readDone <- err
				return
			}
			m.dispatch(ev)
		}
	}()

	select {
	case <-ctx.Done():
		return nil
	case err := <-writeDone:
		return err
	case err := <-readDone:
		return err
	}
}

func (m *Manager) writePump(ctx context.Context, conn *websocket.Conn, out <-chan []byte, done chan<- error) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeTimeout))
			done <- nil
			return
		case b := <-out:
			_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
				done <- err
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout)); err != nil {
				done <- err
				return
			}
		}
	}
}

func (m *Manager) dispatch(ev Envelope) {
	if c := telemetry.ChannelEnvelopes; c != nil {
		c.WithLabelValues(string(ev.Type)).Inc()
	}
	switch ev.Type {
	case EventError:
		if m.Classifier != nil {
			m.Classifier.NotifyError(errors.New(ev.Text), contextLabel)
		}
	case EventNewMessage, EventTyping, EventUserJoined, EventUserLeft:
		if m.Sink != nil {
			m.Sink.HandlePush(ev)
		}
	default:
		slog.Debug("unknown envelope type", slog.String("type", string(ev.Type)))
	}
}

// Subscribe adds a room destination without a full reconnect (e.g. a newly
// created room). A no-op while disconnected; the next reconnect will pick the
// room up from RoomSource anyway.
func (m *Manager) Subscribe(roomID string) {
	m.enqueueSubscribe(RoomDestination(roomID))
}

// Unsubscribe removes a room destination.
func (m *Manager) Unsubscribe(roomID string) {
	dest := RoomDestination(roomID)
	m.mu.Lock()
	if m.subs != nil {
		delete(m.subs, dest)
		telemetry.SetSubscriptions(len(m.subs))
	}
	m.mu.Unlock()
	m.enqueue(frame{Action: "unsubscribe", Destination: dest})
}

// PublishTyping publishes an ephemeral typing signal, fire-and-forget. Repeat
// typing=true signals within the debounce window are dropped.
func (m *Manager) PublishTyping(roomID, userID string, isTyping bool) {
	if isTyping && m.TypingDebounce > 0 {
		m.mu.Lock()
		if m.lastTyping == nil {
			m.lastTyping = make(map[string]time.Time)
		}
		if last, ok := m.lastTyping[roomID]; ok && time.Since(last) < m.TypingDebounce {
			m.mu.Unlock()
			return
		}
		m.lastTyping[roomID] = time.Now()
		m.mu.Unlock()
	}
	m.enqueue(frame{
		Action:      "publish",
		Destination: TypingDestination(roomID),
		Body:        typingSignal{UserID: userID, IsTyping: isTyping},
	})
}

func (m *Manager) enqueueSubscribe(dest string) {
	m.mu.Lock()
	if m.subs != nil {
		if _, ok := m.subs[dest]; ok {
			m.mu.Unlock()
			return
		}
		m.subs[dest] = struct{}{}
		telemetry.SetSubscriptions(len(m.subs))
	}
	m.mu.Unlock()
	m.enqueue(frame{Action: "subscribe", Destination: dest})
}

// enqueue marshals and queues a frame for the write pump. Frames are dropped
// when disconnected or when the queue is full; nothing on this channel
// expects an acknowledgement.
func (m *Manager) enqueue(f frame) {
	b, err := json.Marshal(f)
	if err != nil {
		slog.Warn("failed to encode frame", slog.Any("err", err))
		return
	}
	m.mu.Lock()
	out := m.out
	m.mu.Unlock()
	if out == nil {
		return
	}
	select {
	case out <- b:
	default:
		slog.Warn("outbound channel queue full; dropping frame", slog.String("action", f.Action), slog.String("destination", f.Destination))
	}
}
