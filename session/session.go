// Package session owns the authentication token and user identity lifecycle.
// It is the sole writer of credential storage. Every transition into the
// Authenticated state starts the realtime channel; every transition away
// stops it.
package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/hearthchat/hearth-client/api"
	"github.com/hearthchat/hearth-client/notify"
	"github.com/hearthchat/hearth-client/storage"
	"github.com/hearthchat/hearth-client/transport"
)

// Status is the session state machine position.
type Status int

const (
	Anonymous Status = iota
	Authenticating
	Authenticated
	// Invalidated is terminal until an explicit re-login, which re-enters
	// Authenticating.
	Invalidated
)

func (s Status) String() string {
	switch s {
	case Anonymous:
		return "anonymous"
	case Authenticating:
		return "authenticating"
	case Authenticated:
		return "authenticated"
	case Invalidated:
		return "invalidated"
	default:
		return "unknown"
	}
}

// ChannelController is the realtime channel surface the session drives.
type ChannelController interface {
	Connect(ctx context.Context, userID string)
	Disconnect()
}

// Manager drives the session state machine.
type Manager struct {
	API        *api.Client
	Store      storage.Store
	Channel    ChannelController
	Classifier *notify.Classifier

	// OnIdentity is invoked with the user id after every successful
	// authentication (restore, login, register).
	OnIdentity func(userID string)
	// OnChange observes status transitions.
	OnChange func(Status)

	// runCtx bounds the realtime channel supervisor's lifetime.
	runCtx context.Context

	mu        sync.Mutex
	status    Status
	expiresAt time.Time
}

// NewManager constructs the session manager. runCtx is the process root
// context; the channel supervisor is bound to it.
func NewManager(runCtx context.Context, apiClient *api.Client, store storage.Store, channel ChannelController, classifier *notify.Classifier) *Manager {
	return &Manager{
		API:        apiClient,
		Store:      store,
		Channel:    channel,
		Classifier: classifier,
		runCtx:     runCtx,
		status:     Anonymous,
	}
}

// Status returns the current state machine position.
func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// User returns the cached profile of the authenticated user.
func (m *Manager) User() (*storage.Profile, bool) {
	return m.Store.User()
}

func (m *Manager) setStatus(s Status) {
	m.mu.Lock()
	prev := m.status
	m.status = s
	m.mu.Unlock()
	if prev == s {
		return
	}
	slog.Info("session status changed", slog.String("from", prev.String()), slog.String("to", s.String()))
	if m.OnChange != nil {
		m.OnChange(s)
	}
	if m.Channel != nil {
		switch {
		case s == Authenticated:
			if u, ok := m.Store.User(); ok {
				m.Channel.Connect(m.runCtx, u.ID)
			}
		case prev == Authenticated:
			m.Channel.Disconnect()
		}
	}
}

// Restore re-establishes a persisted session on startup. A stored token that
// the server rejects is cleared silently: the session lands in Invalidated
// with exactly one login-prompt notification and no error returned. Other
// faults (server down, network) keep the token for a later retry.
func (m *Manager) Restore(ctx context.Context) error {
	if m.Store.Token() == "" {
		return nil
	}
	m.setStatus(Authenticating)

	user, err := m.API.Me(ctx)
	if err != nil {
		if f, ok := transport.AsFault(err); ok && f.Class == transport.FaultAuth {
			if cerr := m.Store.Clear(); cerr != nil {
				slog.Error("failed to clear stored session", slog.Any("err", cerr))
			}
			m.setStatus(Invalidated)
			m.Classifier.Notify(f, "restore")
			return nil
		}
		m.setStatus(Anonymous)
		m.Classifier.NotifyError(err, "restore")
		return err
	}

	if err := m.Store.SetUser(&storage.Profile{
		ID: user.ID, Email: user.Email, Nickname: user.Nickname,
		AvatarURL: user.AvatarURL, StatusMessage: user.StatusMessage,
	}); err != nil {
		slog.Error("failed to cache profile", slog.Any("err", err))
	}
	if m.OnIdentity != nil {
		m.OnIdentity(user.ID)
	}
	m.setStatus(Authenticated)
	return nil
}

// Login authenticates with credentials. On fault the state reverts to
// Anonymous and the fault is re-raised after classification.
func (m *Manager) Login(ctx context.Context, email, password string) error {
	m.setStatus(Authenticating)
	res, err := m.API.Login(ctx, email, password)
	if err != nil {
		m.setStatus(Anonymous)
		m.Classifier.NotifyError(err, "login")
		return err
	}
	return m.establish(res)
}

// Register creates an account and authenticates in one step.
func (m *Manager) Register(ctx context.Context, reg api.Registration) error {
	m.setStatus(Authenticating)
	res, err := m.API.Register(ctx, reg)
	if err != nil {
		m.setStatus(Anonymous)
		m.Classifier.NotifyError(err, "register")
		return err
	}
	return m.establish(res)
}

// establish persists the issued token and profile and enters Authenticated.
func (m *Manager) establish(res *api.LoginResult) error {
	if err := m.Store.SetToken(res.Token); err != nil {
		return err
	}
	if err := m.Store.SetUser(&storage.Profile{
		ID: res.User.ID, Email: res.User.Email, Nickname: res.User.Nickname,
		AvatarURL: res.User.AvatarURL, StatusMessage: res.User.StatusMessage,
	}); err != nil {
		return err
	}
	m.mu.Lock()
	m.expiresAt = res.ExpiresAt
	m.mu.Unlock()
	if m.OnIdentity != nil {
		m.OnIdentity(res.User.ID)
	}
	m.setStatus(Authenticated)
	return nil
}

// Logout invalidates the session. The server call is best effort: a failure
// is logged, never surfaced, and local state is cleared unconditionally.
func (m *Manager) Logout(ctx context.Context) {
	if err := m.API.Logout(ctx); err != nil {
		slog.Warn("server logout failed", slog.Any("err", err))
	}
	if err := m.Store.Clear(); err != nil {
		slog.Error("failed to clear credentials", slog.Any("err", err))
	}
	m.mu.Lock()
	m.expiresAt = time.Time{}
	m.mu.Unlock()
	m.setStatus(Invalidated)
}

// invalidate drops the session after the backend stops honoring its token.
func (m *Manager) invalidate(f *transport.Fault) {
	if err := m.Store.Clear(); err != nil {
		slog.Error("failed to clear credentials", slog.Any("err", err))
	}
	m.setStatus(Invalidated)
	m.Classifier.Notify(f, "session")
}
