package telegram

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/avelichka/photobridge/telemetry"
)

const (
	// DefaultPollTimeout is the getUpdates long poll hold time in seconds.
	DefaultPollTimeout = 50
	// DefaultRetryDelay is the pause after a failed getUpdates call.
	DefaultRetryDelay = 5 * time.Second
)

// Poller drives the getUpdates long poll loop on a single goroutine and hands
// each update to Handle in arrival order. The offset advances past every
// delivered update whether or not handling succeeded, so a poisoned update
// cannot wedge the loop.
type Poller struct {
	Client      *Client
	Handle      func(ctx context.Context, u Update)
	PollTimeout int
	RetryDelay  time.Duration

	sleep func(time.Duration) // test hook
}

// Run polls until ctx is cancelled.
func (p *Poller) Run(ctx context.Context) {
	timeout := p.PollTimeout
	if timeout <= 0 {
		timeout = DefaultPollTimeout
	}
	retryDelay := p.RetryDelay
	if retryDelay <= 0 {
		retryDelay = DefaultRetryDelay
	}
	sleep := p.sleep
	if sleep == nil {
		sleep = func(d time.Duration) {
			select {
			case <-ctx.Done():
			case <-time.After(d):
			}
		}
	}
	slog.Info("update poller starting", slog.Int("timeout_s", timeout))
	var offset int64
	for {
		if ctx.Err() != nil {
			slog.Info("update poller stopped")
			return
		}
		updates, err := p.Client.GetUpdates(ctx, offset, timeout)
		if err != nil {
			if ctx.Err() != nil {
				slog.Info("update poller stopped")
				return
			}
			slog.Warn("getUpdates failed", slog.Any("err", err), slog.Duration("retry_in", retryDelay))
			sleep(retryDelay)
			continue
		}
		for _, u := range updates {
			offset = u.UpdateID + 1
			uctx := telemetry.WithCorrelation(ctx, uuid.NewString())
			p.Handle(uctx, u)
		}
	}
}
