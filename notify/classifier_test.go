package notify

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/hearthchat/hearth-client/transport"
)

type captureSink struct {
	got []Notification
}

func (s *captureSink) Publish(n Notification) { s.got = append(s.got, n) }

func newClassifier() (*Classifier, *captureSink, *Registry) {
	sink := &captureSink{}
	reg := NewRegistry()
	cl := &Classifier{
		Sink:          sink,
		Registry:      reg,
		RedirectLogin: func(ctx context.Context) error { return nil },
		ReloadView:    func(ctx context.Context) error { return nil },
	}
	return cl, sink, reg
}

func TestClassificationTable(t *testing.T) {
	tests := []struct {
		name        string
		fault       *transport.Fault
		wantSev     Severity
		wantDismiss time.Duration
		wantActions []string
	}{
		{
			name:        "422 with field errors",
			fault:       &transport.Fault{Class: transport.FaultValidation, Status: 422, Message: "validation failed", FieldErrors: map[string]string{"email": "bad"}},
			wantSev:     SeverityError,
			wantDismiss: 8 * time.Second,
		},
		{
			name:        "400 without field errors",
			fault:       &transport.Fault{Class: transport.FaultValidation, Status: 400, Message: "bad request"},
			wantSev:     SeverityError,
			wantDismiss: 5 * time.Second,
		},
		{
			name:        "401 offers sign-in",
			fault:       &transport.Fault{Class: transport.FaultAuth, Status: 401, Message: "token expired"},
			wantSev:     SeverityError,
			wantDismiss: 5 * time.Second,
			wantActions: []string{"Sign in"},
		},
		{
			name:        "403 has no action",
			fault:       &transport.Fault{Class: transport.FaultAuth, Status: 403, Message: "forbidden"},
			wantSev:     SeverityError,
			wantDismiss: 5 * time.Second,
		},
		{
			name:        "404 has no action",
			fault:       &transport.Fault{Class: transport.FaultResource, Status: 404, Message: "gone"},
			wantSev:     SeverityError,
			wantDismiss: 5 * time.Second,
		},
		{
			name:        "409 offers reload",
			fault:       &transport.Fault{Class: transport.FaultResource, Status: 409, Message: "conflict"},
			wantSev:     SeverityError,
			wantDismiss: 5 * time.Second,
			wantActions: []string{"Reload"},
		},
		{
			name:        "413 has no action",
			fault:       &transport.Fault{Class: transport.FaultResource, Status: 413, Message: "too large"},
			wantSev:     SeverityError,
			wantDismiss: 5 * time.Second,
		},
		{
			name:        "429 is a warning",
			fault:       &transport.Fault{Class: transport.FaultRateLimit, Status: 429, Message: "slow down"},
			wantSev:     SeverityWarning,
			wantDismiss: 5 * time.Second,
		},
		{
			name:        "500 without callback falls back to reload",
			fault:       &transport.Fault{Class: transport.FaultServer, Status: 500, Message: "boom"},
			wantSev:     SeverityError,
			wantDismiss: 5 * time.Second,
			wantActions: []string{"Reload"},
		},
		{
			name:        "503 without callback has no action",
			fault:       &transport.Fault{Class: transport.FaultServer, Status: 503, Message: "unavailable"},
			wantSev:     SeverityError,
			wantDismiss: 8 * time.Second,
		},
		{
			name:        "network fault without callback has no action",
			fault:       &transport.Fault{Class: transport.FaultNetwork, Message: "timeout"},
			wantSev:     SeverityError,
			wantDismiss: 8 * time.Second,
		},
		{
			name:        "unknown status",
			fault:       &transport.Fault{Class: transport.FaultUnknown, Status: 418, Message: "teapot"},
			wantSev:     SeverityError,
			wantDismiss: 5 * time.Second,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cl, sink, _ := newClassifier()
			n := cl.Notify(tt.fault, "op")
			if n.Severity != tt.wantSev {
				t.Errorf("severity = %v, want %v", n.Severity, tt.wantSev)
			}
			if n.AutoDismiss != tt.wantDismiss {
				t.Errorf("dismiss = %v, want %v", n.AutoDismiss, tt.wantDismiss)
			}
			var labels []string
			for _, a := range n.Actions {
				labels = append(labels, a.Label)
			}
			if len(labels) != len(tt.wantActions) {
				t.Fatalf("actions = %v, want %v", labels, tt.wantActions)
			}
			for i := range labels {
				if labels[i] != tt.wantActions[i] {
					t.Errorf("actions = %v, want %v", labels, tt.wantActions)
				}
			}
			if len(sink.got) != 1 {
				t.Errorf("published %d notifications, want 1", len(sink.got))
			}
		})
	}
}

func TestRegisteredRetryCallbackWinsOverReload(t *testing.T) {
	cl, _, reg := newClassifier()
	ran := false
	reg.Register("sendMessage", func(ctx context.Context) error {
		ran = true
		return nil
	})

	for _, status := range []int{500, 502, 503, 504} {
		ran = false
		n := cl.Notify(&transport.Fault{Class: transport.FaultServer, Status: status, Message: "x"}, "sendMessage")
		if len(n.Actions) != 1 || n.Actions[0].Label != "Retry" {
			t.Fatalf("status %d: actions = %v, want single Retry", status, n.Actions)
		}
		// The registry is consulted only when the user triggers the action.
		if ran {
			t.Errorf("status %d: callback ran before the user triggered it", status)
		}
		if err := n.Actions[0].Run(context.Background()); err != nil {
			t.Fatalf("run action: %v", err)
		}
		if !ran {
			t.Errorf("status %d: callback did not run on trigger", status)
		}
	}
}

func TestNetworkFaultUsesRegisteredCallback(t *testing.T) {
	cl, _, reg := newClassifier()
	ran := false
	reg.Register("loadRooms", func(ctx context.Context) error { ran = true; return nil })
	n := cl.Notify(transport.NewNetworkFault("timeout", nil), "loadRooms")
	if len(n.Actions) != 1 {
		t.Fatalf("actions = %v", n.Actions)
	}
	_ = n.Actions[0].Run(context.Background())
	if !ran {
		t.Errorf("callback not invoked")
	}
}

func TestUnregisterRemovesCallback(t *testing.T) {
	cl, _, reg := newClassifier()
	reg.Register("op", func(ctx context.Context) error { return nil })
	reg.Unregister("op")
	n := cl.Notify(&transport.Fault{Class: transport.FaultServer, Status: 503, Message: "x"}, "op")
	if len(n.Actions) != 0 {
		t.Errorf("actions = %v, want none after unregister", n.Actions)
	}
}

func TestNotifyErrorWrapsPlainErrors(t *testing.T) {
	cl, sink, _ := newClassifier()
	cl.NotifyError(context.DeadlineExceeded, "op")
	if len(sink.got) != 1 || sink.got[0].Severity != SeverityError {
		t.Fatalf("published = %v", sink.got)
	}
}

func TestFieldErrorMessageListsAllFields(t *testing.T) {
	cl, _, _ := newClassifier()
	f := &transport.Fault{
		Class:       transport.FaultValidation,
		Status:      422,
		Message:     "validation failed",
		FieldErrors: map[string]string{"email": "must be an email", "password": "too short"},
	}
	n := cl.Notify(f, "register")
	for _, want := range []string{"email: must be an email", "password: too short"} {
		if !strings.Contains(n.Message, want) {
			t.Errorf("message %q missing %q", n.Message, want)
		}
	}
}
