package main

import (
	"context"
	"log/slog"
	"time"

	"vivpro-songs/internal/observability/metrics"
)

type sessionPurger interface {
	PurgeExpired(ctx context.Context) (int64, error)
}

type backlogCounter interface {
	Len() int
}

// every calls fn on each tick of a fresh interval ticker until ctx ends.
func every(ctx context.Context, interval time.Duration, fn func(context.Context)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	onTicks(ctx, ticker.C, fn)
}

func onTicks(ctx context.Context, ticks <-chan time.Time, fn func(context.Context)) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticks:
			fn(ctx)
		}
	}
}

// purgeExpired runs one purge pass. Failures are logged and left for the
// next tick; expired rows are also removed lazily on validation.
func purgeExpired(ctx context.Context, sessions sessionPurger, logger *slog.Logger, recorder *metrics.Recorder) {
	removed, err := sessions.PurgeExpired(ctx)
	if err != nil {
		if ctx.Err() == nil {
			logger.Error("failed to purge expired sessions", "error", err)
		}
		return
	}
	if removed == 0 {
		return
	}
	logger.Info("purged expired sessions", "count", removed)
	if recorder != nil {
		recorder.SessionEvent("purged", int(removed))
	}
}

// reportBacklog publishes the pending deletion count immediately and then on
// every tick.
func reportBacklog(ctx context.Context, queue backlogCounter, recorder *metrics.Recorder, ticks <-chan time.Time) {
	publish := func(context.Context) { recorder.SetDeletionBacklog(queue.Len()) }
	publish(ctx)
	onTicks(ctx, ticks, publish)
}
