package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/hearthchat/hearth-client/notify"
	"github.com/hearthchat/hearth-client/realtime"
	"github.com/hearthchat/hearth-client/session"
	"github.com/hearthchat/hearth-client/state"
)

// Deps holds the services the local surface reports on.
type Deps struct {
	Session *session.Manager
	Channel *realtime.Manager
	State   *state.Synchronizer
	Notices *notify.Ring
}

// Handlers holds dependencies for all HTTP handlers.
type Handlers struct {
	deps *Deps
}

// NewHandlers creates a new Handlers instance with the given dependencies.
func NewHandlers(deps *Deps) *Handlers {
	return &Handlers{deps: deps}
}

// HandleHealthz responds to liveness probes.
func (h *Handlers) HandleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// HandleReadyz reports readiness: the client is ready once the session has
// settled out of Authenticating and, when authenticated, the push channel is
// up.
func (h *Handlers) HandleReadyz(w http.ResponseWriter, r *http.Request) {
	status := h.deps.Session.Status()
	ready := status != session.Authenticating
	reason := ""
	if status == session.Authenticated && !h.deps.Channel.Connected() {
		ready = false
		reason = "push channel down"
	}
	if !ready {
		if reason == "" {
			reason = "session " + status.String()
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "not_ready", "reason": reason})
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ready"})
}

type noticeView struct {
	Severity string `json:"severity"`
	Title    string `json:"title"`
	Message  string `json:"message"`
	Context  string `json:"context,omitempty"`
}

type statusView struct {
	Session       string       `json:"session"`
	User          string       `json:"user,omitempty"`
	Connected     bool         `json:"connected"`
	Rooms         int          `json:"rooms"`
	ActiveRoom    string       `json:"activeRoom,omitempty"`
	Messages      int          `json:"messagesInActiveRoom"`
	Time          time.Time    `json:"time"`
	Notifications []noticeView `json:"notifications,omitempty"`
}

// HandleStatus reports a snapshot of the synchronization state.
func (h *Handlers) HandleStatus(w http.ResponseWriter, r *http.Request) {
	v := statusView{
		Session:    h.deps.Session.Status().String(),
		Connected:  h.deps.Channel.Connected(),
		Rooms:      len(h.deps.State.Rooms()),
		ActiveRoom: h.deps.State.ActiveRoomID(),
		Messages:   len(h.deps.State.ActiveMessages()),
		Time:       time.Now().UTC(),
	}
	if u, ok := h.deps.Session.User(); ok {
		v.User = u.Nickname
	}
	if h.deps.Notices != nil {
		for _, n := range h.deps.Notices.Recent() {
			v.Notifications = append(v.Notifications, noticeView{
				Severity: string(n.Severity),
				Title:    n.Title,
				Message:  n.Message,
				Context:  n.Context,
			})
		}
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
