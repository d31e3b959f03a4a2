package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestCountersInitialized(t *testing.T) {
	Init()

	counters := map[string]prometheus.Counter{
		"UpdatesReceived":   UpdatesReceived,
		"MediaSynced":       MediaSynced,
		"DuplicatesSkipped": DuplicatesSkipped,
		"OversizeSkipped":   OversizeSkipped,
		"DownloadsFailed":   DownloadsFailed,
		"UploadsFailed":     UploadsFailed,
		"AlbumsCreated":     AlbumsCreated,
	}
	for name, c := range counters {
		if c == nil {
			t.Errorf("%s counter not initialized", name)
		}
	}
	if DownloadDuration == nil || UploadDuration == nil || SyncDuration == nil {
		t.Error("duration histograms not initialized")
	}
}

func TestIncToleratesNil(t *testing.T) {
	// Inc on an unregistered counter is a no-op, not a panic.
	Inc(nil)

	Init()
	Inc(MediaSynced)
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

func TestCorrelationRoundTrip(t *testing.T) {
	ctx := context.Background()
	if got := GetCorrelation(ctx); got != "" {
		t.Errorf("GetCorrelation on bare context = %q, want empty", got)
	}
	ctx = WithCorrelation(ctx, "abc-123")
	if got := GetCorrelation(ctx); got != "abc-123" {
		t.Errorf("GetCorrelation = %q, want abc-123", got)
	}
}

func TestLoggerWithCorr(t *testing.T) {
	if LoggerWithCorr(context.Background()) == nil {
		t.Error("LoggerWithCorr returned nil for bare context")
	}
	ctx := WithCorrelation(context.Background(), "abc-123")
	if LoggerWithCorr(ctx) == nil {
		t.Error("LoggerWithCorr returned nil for correlated context")
	}
}
