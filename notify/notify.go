// Package notify maps classified faults to user-facing notifications and
// holds the registry of per-context retry callbacks. The registry is only
// consulted when the user triggers a notification's action, never
// automatically.
package notify

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Severity of a notification.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
	SeverityInfo    Severity = "info"
)

// Action is a recovery affordance attached to a notification. Run executes
// when the user triggers it.
type Action struct {
	Label string
	Run   func(ctx context.Context) error
}

// Notification is the user-facing rendering of a fault.
type Notification struct {
	ID          string
	Severity    Severity
	Title       string
	Message     string
	AutoDismiss time.Duration
	Actions     []Action

	// Context is the operation label the fault was raised under.
	Context string
}

// NewNotification stamps a fresh id.
func NewNotification(sev Severity, title, message string) Notification {
	return Notification{ID: uuid.New().String(), Severity: sev, Title: title, Message: message}
}

// Sink receives notifications for display. Implementations must not block.
type Sink interface {
	Publish(n Notification)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(n Notification)

func (f SinkFunc) Publish(n Notification) { f(n) }

// RetryFunc is an async recovery callback registered under a context string.
type RetryFunc func(ctx context.Context) error

// Registry holds transient per-context retry callbacks. Callers register
// around risky operations and unregister when the surface goes away.
type Registry struct {
	mu        sync.RWMutex
	callbacks map[string]RetryFunc
}

func NewRegistry() *Registry {
	return &Registry{callbacks: make(map[string]RetryFunc)}
}

// Register installs (or replaces) the callback for a context label.
func (r *Registry) Register(contextLabel string, fn RetryFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.callbacks[contextLabel] = fn
}

// Unregister removes the callback for a context label.
func (r *Registry) Unregister(contextLabel string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.callbacks, contextLabel)
}

// Lookup returns the callback registered for a context label.
func (r *Registry) Lookup(contextLabel string) (RetryFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.callbacks[contextLabel]
	return fn, ok
}
