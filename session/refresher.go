package session

import (
	"context"
	"log/slog"
	"math/rand"
	"time"

	"github.com/hearthchat/hearth-client/storage"
	"github.com/hearthchat/hearth-client/transport"
)

// StartRefresher launches a goroutine that rotates the session token before
// it expires. interval: how often to wake up and check. window: refresh when
// remaining lifetime <= window. Sessions without a known expiry are skipped.
// Refresh failures are logged, never surfaced; an auth fault on refresh means
// the token is already dead and invalidates the session.
func (m *Manager) StartRefresher(ctx context.Context, interval, window time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	if window <= 0 {
		window = 15 * time.Minute
	}
	// Randomize the initial delay so restarts don't line up refresh calls.
	//nolint:gosec // G404: math/rand is sufficient for scheduling jitter
	initialJitter := time.Duration(rand.Int63n(int64(interval / 2)))
	go func() {
		select {
		case <-ctx.Done():
			return
		case <-time.After(initialJitter):
		}
		for {
			jitterRange := int64(interval / 5)
			//nolint:gosec // G404: math/rand is sufficient for scheduling jitter
			jitter := time.Duration(rand.Int63n(jitterRange*2) - jitterRange)
			select {
			case <-ctx.Done():
				return
			case <-time.After(interval + jitter):
			}
			m.refreshOnce(ctx, window)
		}
	}()
}

func (m *Manager) refreshOnce(ctx context.Context, window time.Duration) {
	m.mu.Lock()
	status := m.status
	exp := m.expiresAt
	m.mu.Unlock()
	if status != Authenticated || exp.IsZero() || time.Until(exp) > window {
		return
	}

	rctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	res, err := m.API.RefreshToken(rctx)
	cancel()
	if err != nil {
		if f, ok := transport.AsFault(err); ok && f.Class == transport.FaultAuth {
			slog.Warn("token refresh rejected; invalidating session", slog.Any("err", err))
			m.invalidate(f)
			return
		}
		slog.Warn("token refresh failed", slog.Any("err", err))
		return
	}

	if err := m.Store.SetToken(res.Token); err != nil {
		slog.Warn("token persist failed", slog.Any("err", err))
		return
	}
	if res.User.ID != "" {
		_ = m.Store.SetUser(&storage.Profile{
			ID: res.User.ID, Email: res.User.Email, Nickname: res.User.Nickname,
			AvatarURL: res.User.AvatarURL, StatusMessage: res.User.StatusMessage,
		})
	}
	m.mu.Lock()
	m.expiresAt = res.ExpiresAt
	m.mu.Unlock()
	slog.Info("session token refreshed")
}
