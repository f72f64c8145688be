package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

// MockChatServer creates a test server that mocks chat backend API responses
type MockChatServer struct {
	*httptest.Server
	Handlers map[string]http.HandlerFunc
}

// NewMockChatServer creates a new mock chat backend server. Handlers are keyed
// by request path including the API prefix, e.g. "/api/v1/auth/login".
func NewMockChatServer(t *testing.T) *MockChatServer {
	t.Helper()
	m := &MockChatServer{
		Handlers: make(map[string]http.HandlerFunc),
	}
	m.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.URL.Path
		if handler, ok := m.Handlers[key]; ok {
			handler(w, r)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	t.Cleanup(m.Close)
	return m
}

// MockLoginResponse adds a handler for the login endpoint
func (m *MockChatServer) MockLoginResponse(userID, nickname, token string) {
	m.Handlers["/api/v1/auth/login"] = func(w http.ResponseWriter, r *http.Request) {
		response := map[string]interface{}{
			"user":  map[string]string{"id": userID, "nickname": nickname},
			"token": token,
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(response) //nolint:errcheck // test mock response
	}
}

// MockMeResponse adds a handler for the current-user endpoint
func (m *MockChatServer) MockMeResponse(userID, nickname string) {
	m.Handlers["/api/v1/users/me"] = func(w http.ResponseWriter, r *http.Request) {
		response := map[string]string{"id": userID, "nickname": nickname}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(response) //nolint:errcheck // test mock response
	}
}

// MockRoomsResponse adds a handler for the room list endpoint
func (m *MockChatServer) MockRoomsResponse(rooms []map[string]interface{}) {
	m.Handlers["/api/v1/rooms"] = func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(rooms) //nolint:errcheck // test mock response
	}
}

// MockMessagesResponse adds a handler for a room's message list endpoint
func (m *MockChatServer) MockMessagesResponse(roomID string, messages []map[string]interface{}) {
	m.Handlers["/api/v1/rooms/"+roomID+"/messages"] = func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(messages) //nolint:errcheck // test mock response
	}
}

// MockFaultResponse adds a handler that fails with the given status and message
func (m *MockChatServer) MockFaultResponse(path string, status int, message string) {
	m.Handlers[path] = func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(map[string]string{"message": message}) //nolint:errcheck // test mock response
	}
}
