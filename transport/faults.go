// Package transport is the request/response wrapper for the chat backend:
// deadline enforcement, bounded retry, response decoding, and classification
// of failures into the typed fault taxonomy consumed by the error classifier.
package transport

import (
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
)

// FaultClass is the closed set of failure categories that drive retry and
// notification policy.
type FaultClass int

const (
	FaultUnknown FaultClass = iota
	// FaultAuth covers unauthenticated (401) and forbidden (403).
	FaultAuth
	// FaultValidation covers 400/422 request rejections, with optional
	// field-level errors.
	FaultValidation
	// FaultResource covers not-found (404), conflict (409), and
	// payload-too-large (413).
	FaultResource
	// FaultRateLimit covers 429.
	FaultRateLimit
	// FaultServer covers 5xx responses.
	FaultServer
	// FaultNetwork covers timeouts and connection failures (no response).
	FaultNetwork
)

func (c FaultClass) String() string {
	switch c {
	case FaultAuth:
		return "auth"
	case FaultValidation:
		return "validation"
	case FaultResource:
		return "resource"
	case FaultRateLimit:
		return "rate_limit"
	case FaultServer:
		return "server"
	case FaultNetwork:
		return "network"
	case FaultUnknown:
		return "unknown"
	default:
		return "unknown"
	}
}

// Fault is a classified request failure. Status is zero for network-class
// faults (no response was received).
type Fault struct {
	Class       FaultClass
	Status      int
	Message     string
	UserMessage string
	FieldErrors map[string]string
	Err         error
}

func (f *Fault) Error() string {
	if f.Status > 0 {
		return fmt.Sprintf("%s fault (%d): %s", f.Class, f.Status, f.Message)
	}
	return fmt.Sprintf("%s fault: %s", f.Class, f.Message)
}

func (f *Fault) Unwrap() error { return f.Err }

// Retryable reports whether the retry policy applies: only server-class and
// network-class faults are ever retried.
func (f *Fault) Retryable() bool {
	return f.Class == FaultServer || f.Class == FaultNetwork
}

// Display returns the message intended for the user: the server-provided
// userMessage when present, else a field-error summary, else the message.
func (f *Fault) Display() string {
	if f.UserMessage != "" {
		return f.UserMessage
	}
	if len(f.FieldErrors) > 0 {
		fields := make([]string, 0, len(f.FieldErrors))
		for k, v := range f.FieldErrors {
			fields = append(fields, k+": "+v)
		}
		sort.Strings(fields)
		return strings.Join(fields, "; ")
	}
	return f.Message
}

// AsFault unwraps err into a *Fault if it carries one.
func AsFault(err error) (*Fault, bool) {
	var f *Fault
	if errors.As(err, &f) {
		return f, true
	}
	return nil, false
}

// NewNetworkFault builds a network-class fault around a transport error.
func NewNetworkFault(message string, err error) *Fault {
	return &Fault{Class: FaultNetwork, Message: message, Err: err}
}

// faultBody is the structured error body the backend returns on non-2xx.
type faultBody struct {
	Message          string            `json:"message"`
	ValidationErrors map[string]string `json:"validationErrors,omitempty"`
	UserMessage      string            `json:"userMessage,omitempty"`
}

// classifyStatus maps an HTTP status to its fault class.
func classifyStatus(status int) FaultClass {
	switch {
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		return FaultAuth
	case status == http.StatusBadRequest, status == http.StatusUnprocessableEntity:
		return FaultValidation
	case status == http.StatusNotFound, status == http.StatusConflict, status == http.StatusRequestEntityTooLarge:
		return FaultResource
	case status == http.StatusTooManyRequests:
		return FaultRateLimit
	case status >= 500 && status <= 599:
		return FaultServer
	default:
		return FaultUnknown
	}
}
