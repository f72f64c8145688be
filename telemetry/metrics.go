// Package telemetry provides Prometheus metrics, OpenTelemetry tracing setup,
// and correlation-id aware logging helpers.
package telemetry

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	once sync.Once

	// Transport
	RequestAttempts prometheus.Counter
	RequestRetries  prometheus.Counter
	RequestFaults   *prometheus.CounterVec
	RequestDuration prometheus.Observer

	// Realtime channel
	ChannelConnects   prometheus.Counter
	ChannelReconnects prometheus.Counter
	ChannelEnvelopes  *prometheus.CounterVec
	ChannelConnected  prometheus.Gauge
	Subscriptions     prometheus.Gauge

	// State synchronizer
	MessagesSent       prometheus.Counter
	MessagesRolledBack prometheus.Counter
	PushesApplied      prometheus.Counter
	PushesReconciled   prometheus.Counter
)

// Init registers metrics (idempotent).
func Init() {
	once.Do(func() {
		RequestAttempts = promauto.NewCounter(prometheus.CounterOpts{Name: "chat_request_attempts_total", Help: "HTTP request attempts including retries"})
		RequestRetries = promauto.NewCounter(prometheus.CounterOpts{Name: "chat_request_retries_total", Help: "HTTP request retry attempts"})
		RequestFaults = promauto.NewCounterVec(prometheus.CounterOpts{Name: "chat_request_faults_total", Help: "Classified request faults"}, []string{"class"})
		RequestDuration = promauto.NewHistogram(prometheus.HistogramOpts{Name: "chat_request_duration_seconds", Help: "Logical request duration seconds (all attempts)", Buckets: prometheus.DefBuckets})
		ChannelConnects = promauto.NewCounter(prometheus.CounterOpts{Name: "chat_channel_connects_total", Help: "Successful realtime channel connects"})
		ChannelReconnects = promauto.NewCounter(prometheus.CounterOpts{Name: "chat_channel_reconnects_total", Help: "Reconnect attempts after a dropped channel"})
		ChannelEnvelopes = promauto.NewCounterVec(prometheus.CounterOpts{Name: "chat_channel_envelopes_total", Help: "Inbound realtime envelopes by type"}, []string{"type"})
		ChannelConnected = promauto.NewGauge(prometheus.GaugeOpts{Name: "chat_channel_connected", Help: "Realtime channel connected=1 disconnected=0"})
		Subscriptions = promauto.NewGauge(prometheus.GaugeOpts{Name: "chat_channel_subscriptions", Help: "Current number of active destination subscriptions"})
		MessagesSent = promauto.NewCounter(prometheus.CounterOpts{Name: "chat_messages_sent_total", Help: "Messages persisted through the request channel"})
		MessagesRolledBack = promauto.NewCounter(prometheus.CounterOpts{Name: "chat_messages_rolled_back_total", Help: "Provisional messages rolled back after a failed send"})
		PushesApplied = promauto.NewCounter(prometheus.CounterOpts{Name: "chat_pushes_applied_total", Help: "Pushed events merged into canonical state"})
		PushesReconciled = promauto.NewCounter(prometheus.CounterOpts{Name: "chat_pushes_reconciled_total", Help: "Pushed events reconciled against a provisional entry"})
	})
}

// CountFault increments the fault counter for a class label if metrics are up.
func CountFault(class string) {
	if RequestFaults != nil {
		RequestFaults.WithLabelValues(class).Inc()
	}
}

// SetConnected flips the channel connected gauge.
func SetConnected(connected bool) {
	if ChannelConnected != nil {
		if connected {
			ChannelConnected.Set(1)
		} else {
			ChannelConnected.Set(0)
		}
	}
}

// SetSubscriptions records the current subscription count.
func SetSubscriptions(n int) {
	if Subscriptions != nil {
		Subscriptions.Set(float64(n))
	}
}

// TimeFunc measures the duration of fn and records it in obs if non-nil.
func TimeFunc(obs prometheus.Observer, fn func()) time.Duration {
	start := time.Now()
	fn()
	d := time.Since(start)
	if obs != nil {
		obs.Observe(d.Seconds())
	}
	return d
}

// Correlation ID helpers ----------------------------------------------------

type corrKeyType struct{}

var corrKey corrKeyType

// WithCorrelation returns a new context embedding the correlation id.
func WithCorrelation(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, corrKey, id)
}

// GetCorrelation returns the correlation id or empty string.
func GetCorrelation(ctx context.Context) string {
	if s, ok := ctx.Value(corrKey).(string); ok {
		return s
	}
	return ""
}

// LoggerWithCorr returns a logger with a corr attribute if present.
func LoggerWithCorr(ctx context.Context) *slog.Logger {
	if id := GetCorrelation(ctx); id != "" {
		return slog.Default().With(slog.String("corr", id))
	}
	return slog.Default()
}
