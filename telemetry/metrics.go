// Package telemetry provides Prometheus metrics and correlation-id aware logging helpers.
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

    // Counters
    UpdatesReceived   prometheus.Counter
    MediaSynced       prometheus.Counter
    DuplicatesSkipped prometheus.Counter
    OversizeSkipped   prometheus.Counter
    DownloadsFailed   prometheus.Counter
    UploadsFailed     prometheus.Counter
    AlbumsCreated     prometheus.Counter

    // Histograms (seconds)
    DownloadDuration prometheus.Observer
    UploadDuration   prometheus.Observer
    SyncDuration     prometheus.Observer
)

// Init registers metrics (idempotent).
func Init() {
    once.Do(func() {
        UpdatesReceived = promauto.NewCounter(prometheus.CounterOpts{Name: "bridge_updates_received_total", Help: "Number of Telegram updates received"})
        MediaSynced = promauto.NewCounter(prometheus.CounterOpts{Name: "bridge_media_synced_total", Help: "Number of media items uploaded to Google Photos"})
        DuplicatesSkipped = promauto.NewCounter(prometheus.CounterOpts{Name: "bridge_duplicates_skipped_total", Help: "Number of already-processed messages skipped"})
        OversizeSkipped = promauto.NewCounter(prometheus.CounterOpts{Name: "bridge_oversize_skipped_total", Help: "Number of files skipped for exceeding size limits"})
        DownloadsFailed = promauto.NewCounter(prometheus.CounterOpts{Name: "bridge_downloads_failed_total", Help: "Number of Telegram downloads failed"})
        UploadsFailed = promauto.NewCounter(prometheus.CounterOpts{Name: "bridge_uploads_failed_total", Help: "Number of Google Photos uploads failed"})
        AlbumsCreated = promauto.NewCounter(prometheus.CounterOpts{Name: "bridge_albums_created_total", Help: "Number of albums resolved remotely (cache misses)"})
        DownloadDuration = promauto.NewHistogram(prometheus.HistogramOpts{Name: "bridge_download_duration_seconds", Help: "Telegram download duration seconds", Buckets: prometheus.DefBuckets})
        UploadDuration = promauto.NewHistogram(prometheus.HistogramOpts{Name: "bridge_upload_duration_seconds", Help: "Google Photos upload duration seconds", Buckets: prometheus.DefBuckets})
        SyncDuration = promauto.NewHistogram(prometheus.HistogramOpts{Name: "bridge_sync_duration_seconds", Help: "End-to-end per-message sync duration seconds", Buckets: prometheus.DefBuckets})
    })
}

// Inc increments a counter if it has been registered.
func Inc(c prometheus.Counter) { if c != nil { c.Inc() } }

// TimeFunc measures the duration of fn and records in observer if non-nil.
func TimeFunc(obs prometheus.Observer, fn func()) time.Duration {
    start := time.Now()
    fn()
    d := time.Since(start)
    if obs != nil { obs.Observe(d.Seconds()) }
    return d
}

// Correlation ID helpers ----------------------------------------------------
type corrKeyType struct{}
var corrKey corrKeyType

// WithCorrelation returns a new context embedding correlation id (if absent) and the id.
func WithCorrelation(ctx context.Context, id string) context.Context { return context.WithValue(ctx, corrKey, id) }

// GetCorrelation returns correlation id or empty string.
func GetCorrelation(ctx context.Context) string {
    v := ctx.Value(corrKey)
    if s, ok := v.(string); ok { return s }
    return ""
}

// LoggerWithCorr returns a logger with corr attribute if present.
func LoggerWithCorr(ctx context.Context) *slog.Logger {
    if id := GetCorrelation(ctx); id != "" { return slog.Default().With(slog.String("corr", id)) }
    return slog.Default()
}
