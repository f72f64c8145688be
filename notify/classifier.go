package notify

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/hearthchat/hearth-client/transport"
)

const (
	dismissShort = 5 * time.Second
	dismissLong  = 8 * time.Second
)

// Classifier turns (fault, context) pairs into notifications and publishes
// them to the sink. RedirectLogin and ReloadView are host-app hooks backing
// the corresponding notification actions; either may be nil, in which case
// the action is omitted.
type Classifier struct {
	Sink     Sink
	Registry *Registry

	RedirectLogin func(ctx context.Context) error
	ReloadView    func(ctx context.Context) error
}

// Notify classifies the fault raised under contextLabel, publishes the
// resulting notification, and returns it.
func (c *Classifier) Notify(f *transport.Fault, contextLabel string) Notification {
	n := c.build(f, contextLabel)
	n.Context = contextLabel
	if c.Sink != nil {
		c.Sink.Publish(n)
	}
	slog.Debug("fault notified",
		slog.String("context", contextLabel),
		slog.String("class", f.Class.String()),
		slog.Int("status", f.Status),
		slog.String("severity", string(n.Severity)))
	return n
}

// NotifyError routes any error: typed faults go through the table, everything
// else is reported as an unknown fault.
func (c *Classifier) NotifyError(err error, contextLabel string) Notification {
	if f, ok := transport.AsFault(err); ok {
		return c.Notify(f, contextLabel)
	}
	return c.Notify(&transport.Fault{Class: transport.FaultUnknown, Message: err.Error()}, contextLabel)
}

func (c *Classifier) build(f *transport.Fault, contextLabel string) Notification {
	msg := f.Display()

	switch f.Class {
	case transport.FaultValidation:
		n := NewNotification(SeverityError, "Invalid input", msg)
		if len(f.FieldErrors) > 0 {
			// The message already lists every rejected field; give the user
			// longer to read it.
			n.AutoDismiss = dismissLong
		} else {
			n.AutoDismiss = dismissShort
		}
		return n

	case transport.FaultAuth:
		n := NewNotification(SeverityError, "Not signed in", msg)
		n.AutoDismiss = dismissShort
		if f.Status == http.StatusUnauthorized && c.RedirectLogin != nil {
			n.Actions = []Action{{Label: "Sign in", Run: c.RedirectLogin}}
		}
		return n

	case transport.FaultResource:
		title := "Request failed"
		switch f.Status {
		case http.StatusNotFound:
			title = "Not found"
		case http.StatusConflict:
			title = "Out of date"
		case http.StatusRequestEntityTooLarge:
			title = "Too large"
		}
		n := NewNotification(SeverityError, title, msg)
		n.AutoDismiss = dismissShort
		if f.Status == http.StatusConflict && c.ReloadView != nil {
			n.Actions = []Action{{Label: "Reload", Run: c.ReloadView}}
		}
		return n

	case transport.FaultRateLimit:
		n := NewNotification(SeverityWarning, "Slow down", msg)
		n.AutoDismiss = dismissShort
		return n

	case transport.FaultServer:
		retry, registered := c.lookup(contextLabel)
		if f.Status == http.StatusInternalServerError {
			n := NewNotification(SeverityError, "Server error", msg)
			n.AutoDismiss = dismissShort
			if registered {
				n.Actions = []Action{{Label: "Retry", Run: retry}}
			} else if c.ReloadView != nil {
				n.Actions = []Action{{Label: "Reload", Run: c.ReloadView}}
			}
			return n
		}
		// 502/503/504: retry callback only, no reload fallback.
		n := NewNotification(SeverityError, "Service unavailable", msg)
		n.AutoDismiss = dismissLong
		if registered {
			n.Actions = []Action{{Label: "Retry", Run: retry}}
		}
		return n

	case transport.FaultNetwork:
		n := NewNotification(SeverityError, "Connection problem", msg)
		n.AutoDismiss = dismissLong
		if retry, registered := c.lookup(contextLabel); registered {
			n.Actions = []Action{{Label: "Retry", Run: retry}}
		}
		return n

	case transport.FaultUnknown:
		n := NewNotification(SeverityError, "Something went wrong", msg)
		n.AutoDismiss = dismissShort
		return n

	default:
		n := NewNotification(SeverityError, "Something went wrong", msg)
		n.AutoDismiss = dismissShort
		return n
	}
}

func (c *Classifier) lookup(contextLabel string) (func(ctx context.Context) error, bool) {
	if c.Registry == nil {
		return nil, false
	}
	fn, ok := c.Registry.Lookup(contextLabel)
	if !ok {
		return nil, false
	}
	// Resolve through the registry at run time so an action outlives a
	// re-registration under the same label.
	return func(ctx context.Context) error {
		if cur, ok := c.Registry.Lookup(contextLabel); ok {
			return cur(ctx)
		}
		return fn(ctx)
	}, true
}
