package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestMetricsInitialized(t *testing.T) {
	Init()

	if RequestAttempts == nil {
		t.Error("RequestAttempts counter not initialized")
	}
	if RequestFaults == nil {
		t.Error("RequestFaults counter vec not initialized")
	}
	if RequestDuration == nil {
		t.Error("RequestDuration histogram not initialized")
	}
	if ChannelConnected == nil {
		t.Error("ChannelConnected gauge not initialized")
	}

	// Init is idempotent; a second call must not re-register.
	Init()
}

func TestNilGuardedHelpers(t *testing.T) {
	Init()

	// None of these may panic regardless of input.
	CountFault("server")
	CountFault("network")
	CountFault("")
	SetConnected(true)
	SetConnected(false)
	SetSubscriptions(0)
	SetSubscriptions(42)
}

func TestTimeFuncRecordsObservation(t *testing.T) {
	testHistogram := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "test_duration_seconds",
		Help:    "Test duration",
		Buckets: prometheus.DefBuckets,
	})
	prometheus.MustRegister(testHistogram)
	defer prometheus.Unregister(testHistogram)

	executed := false
	duration := TimeFunc(testHistogram, func() {
		time.Sleep(10 * time.Millisecond)
		executed = true
	})

	if !executed {
		t.Error("TimeFunc did not execute provided function")
	}
	if duration < 10*time.Millisecond {
		t.Errorf("TimeFunc duration = %v, want >= 10ms", duration)
	}

	metric := &dto.Metric{}
	if err := testHistogram.Write(metric); err != nil {
		t.Fatalf("Failed to write metric: %v", err)
	}
	if metric.Histogram == nil || *metric.Histogram.SampleCount == 0 {
		t.Error("TimeFunc did not record observation in histogram")
	}
}

func TestCorrelationContext(t *testing.T) {
	ctx := context.Background()
	if got := GetCorrelation(ctx); got != "" {
		t.Errorf("GetCorrelation on empty context = %q", got)
	}

	ctx = WithCorrelation(ctx, "corr-1")
	if got := GetCorrelation(ctx); got != "corr-1" {
		t.Errorf("GetCorrelation = %q, want corr-1", got)
	}

	// Logger construction must work with and without an id attached.
	if LoggerWithCorr(ctx) == nil {
		t.Error("LoggerWithCorr returned nil")
	}
	if LoggerWithCorr(context.Background()) == nil {
		t.Error("LoggerWithCorr without correlation returned nil")
	}
}
