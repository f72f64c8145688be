package session

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/hearthchat/hearth-client/api"
	"github.com/hearthchat/hearth-client/notify"
	"github.com/hearthchat/hearth-client/storage"
	"github.com/hearthchat/hearth-client/transport"
)

type fakeChannel struct {
	mu          sync.Mutex
	connects    []string
	disconnects int
}

func (f *fakeChannel) Connect(ctx context.Context, userID string) {
	f.mu.Lock()
	f.connects = append(f.connects, userID)
	f.mu.Unlock()
}

func (f *fakeChannel) Disconnect() {
	f.mu.Lock()
	f.disconnects++
	f.mu.Unlock()
}

type fixture struct {
	manager   *Manager
	store     *storage.MemStore
	channel   *fakeChannel
	published *[]notify.Notification
}

func newFixture(t *testing.T, handler http.Handler) *fixture {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	store := storage.NewMemStore()
	apiClient := &api.Client{Transport: &transport.Client{
		BaseURL:   srv.URL,
		APIPrefix: "/api/v1",
		Creds:     store,
	}}

	var mu sync.Mutex
	var published []notify.Notification
	classifier := &notify.Classifier{
		Sink: notify.SinkFunc(func(n notify.Notification) {
			mu.Lock()
			published = append(published, n)
			mu.Unlock()
		}),
	}

	channel := &fakeChannel{}
	m := NewManager(context.Background(), apiClient, store, channel, classifier)
	return &fixture{manager: m, store: store, channel: channel, published: &published}
}

func writeJSON(t *testing.T, w http.ResponseWriter, v any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		t.Errorf("encode response: %v", err)
	}
}

func TestLoginPersistsTokenAndAuthorizesSubsequentCalls(t *testing.T) {
	var meAuth string
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/auth/login", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, api.LoginResult{
			User:  api.User{ID: "u1", Email: "a@b.c", Nickname: "ada"},
			Token: "tok-1",
		})
	})
	mux.HandleFunc("/api/v1/users/me", func(w http.ResponseWriter, r *http.Request) {
		meAuth = r.Header.Get("Authorization")
		writeJSON(t, w, api.User{ID: "u1"})
	})
	fx := newFixture(t, mux)

	var identity string
	fx.manager.OnIdentity = func(userID string) { identity = userID }

	if err := fx.manager.Login(context.Background(), "a@b.c", "pw"); err != nil {
		t.Fatalf("Login: %v", err)
	}
	if got := fx.manager.Status(); got != Authenticated {
		t.Errorf("status = %v, want Authenticated", got)
	}
	if fx.store.Token() != "tok-1" {
		t.Errorf("stored token = %q, want tok-1", fx.store.Token())
	}
	if identity != "u1" {
		t.Errorf("OnIdentity got %q, want u1", identity)
	}
	if u, ok := fx.store.User(); !ok || u.Nickname != "ada" {
		t.Errorf("cached profile = %+v", u)
	}
	if len(fx.channel.connects) != 1 || fx.channel.connects[0] != "u1" {
		t.Errorf("channel connects = %v, want [u1]", fx.channel.connects)
	}

	// The persisted token must flow into the next API call.
	if _, err := fx.manager.API.Me(context.Background()); err != nil {
		t.Fatalf("Me: %v", err)
	}
	if meAuth != "Bearer tok-1" {
		t.Errorf("Authorization = %q, want Bearer tok-1", meAuth)
	}
}

func TestLoginFaultRevertsToAnonymous(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/auth/login", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		writeJSON(t, w, map[string]string{"message": "bad credentials"})
	})
	fx := newFixture(t, mux)

	if err := fx.manager.Login(context.Background(), "a@b.c", "wrong"); err == nil {
		t.Fatal("expected error")
	}
	if got := fx.manager.Status(); got != Anonymous {
		t.Errorf("status = %v, want Anonymous", got)
	}
	if fx.store.Token() != "" {
		t.Errorf("token persisted on failed login")
	}
	if len(fx.channel.connects) != 0 {
		t.Errorf("channel connected on failed login")
	}
	if len(*fx.published) != 1 || (*fx.published)[0].Context != "login" {
		t.Errorf("notifications = %+v", *fx.published)
	}
}

func TestRestoreWithoutTokenIsNoop(t *testing.T) {
	called := false
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) { called = true })
	fx := newFixture(t, mux)

	if err := fx.manager.Restore(context.Background()); err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if called {
		t.Error("server contacted without a stored token")
	}
	if got := fx.manager.Status(); got != Anonymous {
		t.Errorf("status = %v, want Anonymous", got)
	}
}

func TestRestoreRejectedTokenClearsSilently(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/users/me", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		writeJSON(t, w, map[string]string{"message": "token expired"})
	})
	fx := newFixture(t, mux)
	fx.store.SetToken("stale-token")

	// A rejected stored token is an expected outcome, not an error.
	if err := fx.manager.Restore(context.Background()); err != nil {
		t.Fatalf("Restore returned error: %v", err)
	}
	if got := fx.manager.Status(); got != Invalidated {
		t.Errorf("status = %v, want Invalidated", got)
	}
	if fx.store.Token() != "" {
		t.Errorf("stale token not cleared")
	}
	if len(fx.channel.connects) != 0 {
		t.Errorf("channel connected with a rejected token")
	}
	pubs := *fx.published
	if len(pubs) != 1 || pubs[0].Context != "restore" {
		t.Fatalf("notifications = %+v, want exactly one under restore", pubs)
	}
}

func TestRestoreKeepsTokenOnNonAuthFault(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/users/me", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		writeJSON(t, w, map[string]string{"message": "gone fishing"})
	})
	fx := newFixture(t, mux)
	fx.store.SetToken("maybe-good")

	if err := fx.manager.Restore(context.Background()); err == nil {
		t.Fatal("expected error")
	}
	if got := fx.manager.Status(); got != Anonymous {
		t.Errorf("status = %v, want Anonymous", got)
	}
	// The token may still be valid; keep it for a later retry.
	if fx.store.Token() != "maybe-good" {
		t.Errorf("token dropped on a transient fault")
	}
}

func TestRestoreSucceedsWithStoredToken(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/users/me", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer stored-tok" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		writeJSON(t, w, api.User{ID: "u1", Nickname: "ada"})
	})
	fx := newFixture(t, mux)
	fx.store.SetToken("stored-tok")

	if err := fx.manager.Restore(context.Background()); err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if got := fx.manager.Status(); got != Authenticated {
		t.Errorf("status = %v, want Authenticated", got)
	}
	if len(fx.channel.connects) != 1 || fx.channel.connects[0] != "u1" {
		t.Errorf("channel connects = %v, want [u1]", fx.channel.connects)
	}
	if u, ok := fx.store.User(); !ok || u.Nickname != "ada" {
		t.Errorf("profile not cached: %+v", u)
	}
}

func TestLogoutClearsLocallyEvenWhenServerFails(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/auth/login", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, api.LoginResult{User: api.User{ID: "u1"}, Token: "tok-1"})
	})
	mux.HandleFunc("/api/v1/auth/logout", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		writeJSON(t, w, map[string]string{"message": "already gone"})
	})
	fx := newFixture(t, mux)

	if err := fx.manager.Login(context.Background(), "a@b.c", "pw"); err != nil {
		t.Fatalf("Login: %v", err)
	}
	fx.manager.Logout(context.Background())

	if got := fx.manager.Status(); got != Invalidated {
		t.Errorf("status = %v, want Invalidated", got)
	}
	if fx.store.Token() != "" {
		t.Errorf("token survived logout")
	}
	if _, ok := fx.store.User(); ok {
		t.Errorf("profile survived logout")
	}
	if fx.channel.disconnects != 1 {
		t.Errorf("disconnects = %d, want 1", fx.channel.disconnects)
	}
	if len(*fx.published) != 0 {
		t.Errorf("server logout failure surfaced to the user: %+v", *fx.published)
	}
}

func TestStatusStrings(t *testing.T) {
	cases := map[Status]string{
		Anonymous:      "anonymous",
		Authenticating: "authenticating",
		Authenticated:  "authenticated",
		Invalidated:    "invalidated",
		Status(99):     "unknown",
	}
	for s, want := range cases {
		if got := s.String(); got != want {
			t.Errorf("Status(%d).String() = %q, want %q", int(s), got, want)
		}
	}
}
