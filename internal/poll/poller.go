package poll

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/five82/kiosk/internal/shop"
)

const (
	DefaultInitialDelay = 1000 * time.Millisecond
	DefaultMaxDelay     = 5000 * time.Millisecond
	DefaultMultiplier   = 1.5
	DefaultTimeout      = 120 * time.Second
)

// Fetcher reads the current representation of a product.
type Fetcher interface {
	FetchProduct(ctx context.Context, id string) (*shop.Product, error)
}

// Sink marks cached product queries stale.
type Sink interface {
	InvalidateList()
	InvalidateDetail(id string)
}

// Outcome describes why a poll ended.
type Outcome int

const (
	OutcomeSkipped Outcome = iota
	OutcomeCompleted
	OutcomeVanished
	OutcomeTimedOut
	OutcomeCancelled
)

func (o Outcome) String() string {
	switch o {
	case OutcomeCompleted:
		return "completed"
	case OutcomeVanished:
		return "vanished"
	case OutcomeTimedOut:
		return "timed-out"
	case OutcomeCancelled:
		return "cancelled"
	default:
		return "skipped"
	}
}

// Target is the resource currently under observation.
type Target struct {
	ResourceID string
	StartedAt  time.Time
	Delay      time.Duration
	Attempt    int
}

// Options tune a Poller. Zero values use the defaults above.
type Options struct {
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	Timeout      time.Duration
	Clock        Clock
	Logger       *slog.Logger
}

func (o Options) withDefaults() Options {
	if o.InitialDelay <= 0 {
		o.InitialDelay = DefaultInitialDelay
	}
	if o.MaxDelay <= 0 {
		o.MaxDelay = DefaultMaxDelay
	}
	if o.MaxDelay < o.InitialDelay {
		o.MaxDelay = o.InitialDelay
	}
	if o.Multiplier < 1 {
		o.Multiplier = DefaultMultiplier
	}
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	if o.Clock == nil {
		o.Clock = RealClock{}
	}
	if o.Logger == nil {
		o.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return o
}

// Poller watches one product's image processing at a time. Each UI surface
// owns its own Poller; a start request while a poll is active is ignored.
type Poller struct {
	fetcher Fetcher
	opts    Options

	active atomic.Bool
	mu     sync.Mutex
	target *Target
}

// New returns a Poller reading through fetcher.
func New(fetcher Fetcher, opts Options) *Poller {
	return &Poller{fetcher: fetcher, opts: opts.withDefaults()}
}

// Active reports whether a poll is running.
func (p *Poller) Active() bool {
	return p.active.Load()
}

// Current returns the active target, if any.
func (p *Poller) Current() (Target, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.target == nil {
		return Target{}, false
	}
	return *p.target, true
}

// Start launches a poll for resourceID in a new goroutine and returns true.
// It returns false without doing anything when resourceID is empty or a poll
// is already active. onDone may be nil.
func (p *Poller) Start(ctx context.Context, resourceID string, sink Sink, onDone func()) bool {
	if !p.acquire(resourceID) {
		return false
	}
	go func() {
		_ = p.run(ctx, resourceID, sink, onDone)
	}()
	return true
}

// Run polls resourceID on the calling goroutine until a terminal status,
// disappearance, timeout or cancellation. It returns OutcomeSkipped when the
// guard rejects the call.
func (p *Poller) Run(ctx context.Context, resourceID string, sink Sink, onDone func()) Outcome {
	if !p.acquire(resourceID) {
		return OutcomeSkipped
	}
	return p.run(ctx, resourceID, sink, onDone)
}

func (p *Poller) acquire(resourceID string) bool {
	if strings.TrimSpace(resourceID) == "" || p.fetcher == nil {
		return false
	}
	return p.active.CompareAndSwap(false, true)
}

// run requires the guard to be held and always releases it.
func (p *Poller) run(ctx context.Context, resourceID string, sink Sink, onDone func()) Outcome {
	clock := p.opts.Clock
	logger := p.opts.Logger.With("component", "poll", "resource", resourceID)

	target := &Target{ResourceID: resourceID, StartedAt: clock.Now()}
	p.setTarget(target)
	defer func() {
		p.setTarget(nil)
		p.active.Store(false)
	}()

	delays := &backoff.ExponentialBackOff{
		InitialInterval:     p.opts.InitialDelay,
		RandomizationFactor: 0,
		Multiplier:          p.opts.Multiplier,
		MaxInterval:         p.opts.MaxDelay,
	}
	delays.Reset()

	for {
		elapsed := clock.Now().Sub(target.StartedAt)
		if elapsed >= p.opts.Timeout {
			break
		}
		// The last sleep ends at the deadline, never past it.
		delay := min(delays.NextBackOff(), p.opts.Timeout-elapsed)
		p.advance(delay)
		if err := sleep(ctx, clock, delay); err != nil {
			logger.Debug("poll cancelled", "attempt", target.Attempt)
			return OutcomeCancelled
		}
		if clock.Now().Sub(target.StartedAt) >= p.opts.Timeout {
			break
		}

		product, err := p.fetch(ctx, resourceID)
		switch {
		case errors.Is(err, shop.ErrNotFound):
			logger.Info("resource vanished while processing", "attempt", target.Attempt)
			return OutcomeVanished
		case err != nil:
			if ctx.Err() != nil {
				return OutcomeCancelled
			}
			logger.Debug("poll fetch failed", "attempt", target.Attempt, "error", err)
			continue
		case product == nil:
			logger.Info("resource vanished while processing", "attempt", target.Attempt)
			return OutcomeVanished
		}

		if !product.ImageProcessingStatus.IsTerminal() {
			continue
		}

		logger.Info("image processing finished",
			"status", string(product.ImageProcessingStatus),
			"attempt", target.Attempt,
			"elapsed", clock.Now().Sub(target.StartedAt))
		if sink != nil {
			callback(logger, "invalidate list", sink.InvalidateList)
			callback(logger, "invalidate detail", func() { sink.InvalidateDetail(resourceID) })
		}
		if onDone != nil {
			callback(logger, "done", onDone)
		}
		return OutcomeCompleted
	}

	logger.Warn("image processing poll timed out", "attempt", target.Attempt, "timeout", p.opts.Timeout)
	return OutcomeTimedOut
}

// fetch converts fetcher panics into errors so nothing escapes the loop.
func (p *Poller) fetch(ctx context.Context, id string) (product *shop.Product, err error) {
	defer func() {
		if r := recover(); r != nil {
			product, err = nil, fmt.Errorf("fetch panicked: %v", r)
		}
	}()
	return p.fetcher.FetchProduct(ctx, id)
}

// callback runs fn and logs any panic it raises.
func callback(logger *slog.Logger, name string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("poll callback panicked", "callback", name, "panic", r)
		}
	}()
	fn()
}

func (p *Poller) setTarget(t *Target) {
	p.mu.Lock()
	p.target = t
	p.mu.Unlock()
}

func (p *Poller) advance(delay time.Duration) {
	p.mu.Lock()
	if p.target != nil {
		p.target.Attempt++
		p.target.Delay = delay
	}
	p.mu.Unlock()
}
