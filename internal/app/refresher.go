package app

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
)

const (
	defaultRefreshInterval = 30 * time.Second
	maxBackoff             = 5 * time.Minute
)

// Refresher reloads one source of server state.
type Refresher interface {
	Refresh(ctx context.Context) error
}

// RefreshFunc adapts a function to Refresher.
type RefreshFunc func(ctx context.Context) error

// Refresh calls f.
func (f RefreshFunc) Refresh(ctx context.Context) error { return f(ctx) }

// StartRefresher launches a background goroutine that refreshes every target
// at a fixed cadence, backing off while refreshes fail. It returns
// immediately.
func StartRefresher(ctx context.Context, interval time.Duration, logger *slog.Logger, targets ...Refresher) {
	if interval <= 0 {
		interval = defaultRefreshInterval
	}
	go func() {
		failures := 0
		for {
			wait := calculateBackoff(failures, interval)
			timer := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				timer.Stop()
				return
			case <-timer.C:
			}

			if err := refreshAll(ctx, targets); err != nil {
				failures++
				logger.Warn("background refresh failed",
					"error", err,
					"failures", failures,
					"next_in", calculateBackoff(failures, interval))
				continue
			}
			failures = 0
		}
	}()
}

// refreshAll runs every target concurrently and returns the first error.
func refreshAll(ctx context.Context, targets []Refresher) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, t := range targets {
		g.Go(func() error {
			return t.Refresh(gctx)
		})
	}
	return g.Wait()
}

// calculateBackoff doubles the interval per consecutive failure, capped at
// maxBackoff.
func calculateBackoff(failures int, base time.Duration) time.Duration {
	if failures <= 0 {
		return base
	}
	wait := base
	for i := 0; i < failures; i++ {
		wait *= 2
		if wait >= maxBackoff {
			return maxBackoff
		}
	}
	return wait
}
