package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hearthchat/hearth-client/storage"
	"github.com/hearthchat/hearth-client/telemetry"
)

const (
	defaultTimeout = 10 * time.Second
	relaxedTimeout = 15 * time.Second

	// maxAttempts is the total request budget: one initial attempt plus two
	// retries, with a fixed delay in between (no backoff growth).
	maxAttempts = 3
	retryDelay  = 1 * time.Second
)

// Client issues JSON request/response calls against the chat backend. The
// auth token is read fresh from Creds on every call so rotation takes effect
// immediately.
type Client struct {
	BaseURL    string
	APIPrefix  string
	HTTPClient *http.Client
	Creds      storage.TokenReader

	// Relaxed widens the per-attempt deadline from 10s to 15s.
	Relaxed bool
}

func (c *Client) http() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return http.DefaultClient
}

func (c *Client) timeout() time.Duration {
	if c.Relaxed {
		return relaxedTimeout
	}
	return defaultTimeout
}

func (c *Client) url(path string) string {
	return c.BaseURL + c.APIPrefix + path
}

// Do issues a request and decodes the response body into out. A 204 or
// zero-length body leaves out untouched. body may be nil; out may be nil to
// discard the response. Server-class and network-class faults are retried up
// to the attempt budget with a fixed delay; everything else fails immediately
// as a typed *Fault.
func (c *Client) Do(ctx context.Context, method, path string, body, out any) error {
	ctx, span := telemetry.StartSpan(ctx, "transport", method+" "+path,
		telemetry.HTTPMethodAttr(method),
		telemetry.HTTPRouteAttr(path),
	)
	defer span.End()

	start := time.Now()
	defer func() {
		if obs := telemetry.RequestDuration; obs != nil {
			obs.Observe(time.Since(start).Seconds())
		}
	}()

	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request body: %w", err)
		}
	}

	var err error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if attempt > 1 {
			inc(telemetry.RequestRetries)
			select {
			case <-ctx.Done():
				err = NewNetworkFault("request canceled", ctx.Err())
				telemetry.CountFault(FaultNetwork.String())
				telemetry.RecordError(span, err)
				return err
			case <-time.After(retryDelay):
			}
		}
		inc(telemetry.RequestAttempts)
		err = c.attempt(ctx, method, path, payload, out)
		if err == nil {
			return nil
		}
		f, ok := AsFault(err)
		if !ok || !f.Retryable() {
			break
		}
		slog.Debug("request attempt failed",
			slog.String("method", method),
			slog.String("path", path),
			slog.Int("attempt", attempt),
			slog.String("class", f.Class.String()),
			slog.Any("err", err))
	}
	if f, ok := AsFault(err); ok {
		telemetry.CountFault(f.Class.String())
	}
	telemetry.RecordError(span, err)
	return err
}

func (c *Client) attempt(ctx context.Context, method, path string, payload []byte, out any) error {
	actx, cancel := context.WithTimeout(ctx, c.timeout())
	defer cancel()

	var rd io.Reader
	if payload != nil {
		rd = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(actx, method, c.url(path), rd)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	c.authorize(req)

	resp, err := c.http().Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return NewNetworkFault("timeout", err)
		}
		return NewNetworkFault("connection failed", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			slog.Warn("failed to close response body", slog.Any("err", err))
		}
	}()
	return decodeResponse(resp, out)
}

// Upload sends a multipart form with a single file field. Only the auth
// header is attached manually; the multipart writer supplies its own content
// type. Fault parsing matches Do, but the body is consumed streaming so no
// retry is attempted.
func (c *Client) Upload(ctx context.Context, path, field, filename string, content io.Reader, out any) error {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile(field, filename)
	if err != nil {
		return fmt.Errorf("create form file: %w", err)
	}
	if _, err := io.Copy(fw, content); err != nil {
		return fmt.Errorf("write form file: %w", err)
	}
	if err := mw.Close(); err != nil {
		return fmt.Errorf("finish multipart body: %w", err)
	}

	actx, cancel := context.WithTimeout(ctx, c.timeout())
	defer cancel()

	req, err := http.NewRequestWithContext(actx, http.MethodPost, c.url(path), &buf)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	c.authorize(req)

	inc(telemetry.RequestAttempts)
	resp, err := c.http().Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return NewNetworkFault("timeout", err)
		}
		return NewNetworkFault("connection failed", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			slog.Warn("failed to close response body", slog.Any("err", err))
		}
	}()
	return decodeResponse(resp, out)
}

func (c *Client) authorize(req *http.Request) {
	if c.Creds == nil {
		return
	}
	if tok := c.Creds.Token(); tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
}

// decodeResponse handles status dispatch: 2xx decodes into out (204 and
// empty bodies skip decoding), anything else becomes a typed fault.
func decodeResponse(resp *http.Response, out any) error {
	if resp.StatusCode >= 200 && resp.StatusCode <= 299 {
		if resp.StatusCode == http.StatusNoContent || out == nil {
			return nil
		}
		b, err := io.ReadAll(resp.Body)
		if err != nil {
			return NewNetworkFault("read response body", err)
		}
		if len(b) == 0 {
			return nil
		}
		if err := json.Unmarshal(b, out); err != nil {
			return fmt.Errorf("decode response body: %w", err)
		}
		return nil
	}

	f := &Fault{
		Class:  classifyStatus(resp.StatusCode),
		Status: resp.StatusCode,
	}
	b, _ := io.ReadAll(resp.Body)
	var fb faultBody
	if len(b) > 0 && json.Unmarshal(b, &fb) == nil && fb.Message != "" {
		f.Message = fb.Message
		f.UserMessage = fb.UserMessage
		f.FieldErrors = fb.ValidationErrors
	} else {
		// Unparseable fault body: fall back to the status text.
		f.Message = resp.Status
	}
	return f
}

func inc(c prometheus.Counter) {
	if c != nil {
		c.Inc()
	}
}
