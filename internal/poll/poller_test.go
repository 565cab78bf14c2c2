package poll

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"reflect"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/five82/kiosk/internal/shop"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// stepClock advances virtual time by the requested delay and fires at once.
type stepClock struct {
	mu     sync.Mutex
	now    time.Time
	delays []time.Duration
}

func newStepClock() *stepClock {
	return &stepClock{now: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *stepClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	c.delays = append(c.delays, d)
	ch := make(chan time.Time, 1)
	ch <- c.now
	return ch
}

func (c *stepClock) Delays() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]time.Duration(nil), c.delays...)
}

// stuckClock never fires and signals each time a sleep begins.
type stuckClock struct {
	sleeping chan struct{}
}

func (c stuckClock) Now() time.Time { return time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC) }

func (c stuckClock) After(time.Duration) <-chan time.Time {
	select {
	case c.sleeping <- struct{}{}:
	default:
	}
	return nil
}

type fetchFunc func(ctx context.Context, id string) (*shop.Product, error)

func (f fetchFunc) FetchProduct(ctx context.Context, id string) (*shop.Product, error) {
	return f(ctx, id)
}

type recordingSink struct {
	mu      sync.Mutex
	lists   int
	details []string
}

func (s *recordingSink) InvalidateList() {
	s.mu.Lock()
	s.lists++
	s.mu.Unlock()
}

func (s *recordingSink) InvalidateDetail(id string) {
	s.mu.Lock()
	s.details = append(s.details, id)
	s.mu.Unlock()
}

func (s *recordingSink) counts() (int, []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lists, append([]string(nil), s.details...)
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func product(status shop.ProcessingStatus) *shop.Product {
	return &shop.Product{ID: "p-1", Name: "Mug", ImageProcessingStatus: status}
}

func TestPoller_BackoffScheduleAndTimeout(t *testing.T) {
	clock := newStepClock()
	start := clock.Now()
	var fetchTimes []time.Time
	fetcher := fetchFunc(func(context.Context, string) (*shop.Product, error) {
		fetchTimes = append(fetchTimes, clock.Now())
		return product(shop.StatusPending), nil
	})
	sink := &recordingSink{}
	done := 0

	p := New(fetcher, Options{Clock: clock, Logger: quietLogger()})
	outcome := p.Run(context.Background(), "p-1", sink, func() { done++ })
	if outcome != OutcomeTimedOut {
		t.Fatalf("outcome = %v, want timed-out", outcome)
	}

	delays := clock.Delays()
	wantPrefix := []time.Duration{
		1000 * time.Millisecond,
		1500 * time.Millisecond,
		2250 * time.Millisecond,
		3375 * time.Millisecond,
		5000 * time.Millisecond,
		5000 * time.Millisecond,
	}
	if len(delays) < len(wantPrefix) || !reflect.DeepEqual(delays[:len(wantPrefix)], wantPrefix) {
		t.Fatalf("delays = %v, want prefix %v", delays, wantPrefix)
	}
	for i, d := range delays[4 : len(delays)-1] {
		if d != 5000*time.Millisecond {
			t.Fatalf("delay %d = %v, want cap of 5s", i+4, d)
		}
	}
	// 8.125s of ramp plus 22 capped sleeps leaves 1.875s to the deadline.
	if final := delays[len(delays)-1]; final != 1875*time.Millisecond {
		t.Fatalf("final delay = %v, want 1.875s", final)
	}
	var total time.Duration
	for _, d := range delays {
		total += d
	}
	if total != DefaultTimeout {
		t.Fatalf("slept %v in total, want exactly %v", total, DefaultTimeout)
	}

	// Sleep comes first, so the first fetch happens one initial delay in.
	if len(fetchTimes) == 0 || fetchTimes[0].Sub(start) != time.Second {
		t.Fatalf("first fetch at %v, want +1s", fetchTimes)
	}
	// The sleep that reaches the deadline is not followed by a fetch.
	if len(fetchTimes) != len(delays)-1 {
		t.Fatalf("fetches = %d, sleeps = %d", len(fetchTimes), len(delays))
	}
	if last := fetchTimes[len(fetchTimes)-1].Sub(start); last >= DefaultTimeout {
		t.Fatalf("fetch at %v, after the %v timeout", last, DefaultTimeout)
	}

	lists, details := sink.counts()
	if lists != 0 || len(details) != 0 || done != 0 {
		t.Fatalf("timeout must not invalidate or complete: lists=%d details=%v done=%d", lists, details, done)
	}
	if p.Active() {
		t.Fatalf("guard should be released after timeout")
	}
}

func TestPoller_TerminalStatusInvalidatesOnce(t *testing.T) {
	statuses := []shop.ProcessingStatus{"completed", "COMPLETED", " Failed ", "error"}
	for _, terminal := range statuses {
		t.Run(string(terminal), func(t *testing.T) {
			clock := newStepClock()
			calls := 0
			fetcher := fetchFunc(func(context.Context, string) (*shop.Product, error) {
				calls++
				if calls < 3 {
					return product("PENDING"), nil
				}
				return product(terminal), nil
			})
			sink := &recordingSink{}
			done := 0

			p := New(fetcher, Options{Clock: clock, Logger: quietLogger()})
			if outcome := p.Run(context.Background(), "p-1", sink, func() { done++ }); outcome != OutcomeCompleted {
				t.Fatalf("outcome = %v, want completed", outcome)
			}
			lists, details := sink.counts()
			if lists != 1 || !reflect.DeepEqual(details, []string{"p-1"}) {
				t.Fatalf("invalidations lists=%d details=%v", lists, details)
			}
			if done != 1 {
				t.Fatalf("onDone calls = %d, want 1", done)
			}
			if calls != 3 {
				t.Fatalf("fetches = %d, want 3", calls)
			}
		})
	}
}

func TestPoller_CompletionAtDeadlineTimesOut(t *testing.T) {
	tests := []struct {
		name        string
		completedAt time.Duration
		want        Outcome
	}{
		{"before the last sleep", 118 * time.Second, OutcomeCompleted},
		{"during the last sleep", 119 * time.Second, OutcomeTimedOut},
		{"after the timeout", 121 * time.Second, OutcomeTimedOut},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clock := newStepClock()
			start := clock.Now()
			fetcher := fetchFunc(func(context.Context, string) (*shop.Product, error) {
				if clock.Now().Sub(start) >= tt.completedAt {
					return product(shop.StatusCompleted), nil
				}
				return product(shop.StatusPending), nil
			})
			sink := &recordingSink{}
			done := 0

			p := New(fetcher, Options{Clock: clock, Logger: quietLogger()})
			if outcome := p.Run(context.Background(), "p-1", sink, func() { done++ }); outcome != tt.want {
				t.Fatalf("outcome = %v, want %v", outcome, tt.want)
			}

			lists, details := sink.counts()
			if tt.want == OutcomeTimedOut && (lists != 0 || len(details) != 0 || done != 0) {
				t.Fatalf("timed out poll invalidated: lists=%d details=%v done=%d", lists, details, done)
			}
			if tt.want == OutcomeCompleted && (lists != 1 || done != 1) {
				t.Fatalf("completed poll: lists=%d done=%d", lists, done)
			}
		})
	}
}

type panickingSink struct {
	details atomic.Int32
}

func (s *panickingSink) InvalidateList() { panic("list cache closed") }

func (s *panickingSink) InvalidateDetail(string) { s.details.Add(1) }

func TestPoller_CallbackPanicsAreRecovered(t *testing.T) {
	fetcher := fetchFunc(func(context.Context, string) (*shop.Product, error) {
		return product(shop.StatusCompleted), nil
	})

	t.Run("sink during Run", func(t *testing.T) {
		sink := &panickingSink{}
		done := 0
		p := New(fetcher, Options{Clock: newStepClock(), Logger: quietLogger()})

		if outcome := p.Run(context.Background(), "p-1", sink, func() { done++ }); outcome != OutcomeCompleted {
			t.Fatalf("outcome = %v, want completed", outcome)
		}
		if sink.details.Load() != 1 || done != 1 {
			t.Fatalf("details = %d, done = %d; later callbacks should still run", sink.details.Load(), done)
		}
		if p.Active() {
			t.Fatalf("guard should be released")
		}
	})

	t.Run("onDone during Start", func(t *testing.T) {
		p := New(fetcher, Options{Clock: newStepClock(), Logger: quietLogger()})
		called := make(chan struct{})

		if !p.Start(context.Background(), "p-1", &recordingSink{}, func() {
			close(called)
			panic("view gone")
		}) {
			t.Fatalf("Start returned false")
		}
		select {
		case <-called:
		case <-time.After(2 * time.Second):
			t.Fatalf("onDone was not called")
		}

		deadline := time.Now().Add(2 * time.Second)
		for p.Active() {
			if time.Now().After(deadline) {
				t.Fatalf("guard was not released")
			}
			time.Sleep(time.Millisecond)
		}
		if !p.Start(context.Background(), "p-2", nil, nil) {
			t.Fatalf("a new poll should start after the panic")
		}
		for p.Active() {
			if time.Now().After(deadline) {
				t.Fatalf("second poll did not finish")
			}
			time.Sleep(time.Millisecond)
		}
	})
}

func TestPoller_SingleActivePoll(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	var fetches atomic.Int32
	fetcher := fetchFunc(func(context.Context, string) (*shop.Product, error) {
		if fetches.Add(1) == 1 {
			close(entered)
			<-release
		}
		return product(shop.StatusCompleted), nil
	})
	p := New(fetcher, Options{Clock: newStepClock(), Logger: quietLogger()})

	finished := make(chan Outcome, 1)
	go func() {
		finished <- p.Run(context.Background(), "p-1", nil, nil)
	}()
	<-entered

	if !p.Active() {
		t.Fatalf("poll should be active")
	}
	if target, ok := p.Current(); !ok || target.ResourceID != "p-1" || target.Attempt != 1 {
		t.Fatalf("Current = %#v, %v", target, ok)
	}
	if p.Start(context.Background(), "p-2", nil, nil) {
		t.Fatalf("Start should be ignored while a poll is active")
	}
	if outcome := p.Run(context.Background(), "p-1", nil, nil); outcome != OutcomeSkipped {
		t.Fatalf("Run while active = %v, want skipped", outcome)
	}

	close(release)
	if outcome := <-finished; outcome != OutcomeCompleted {
		t.Fatalf("outcome = %v, want completed", outcome)
	}
	if fetches.Load() != 1 {
		t.Fatalf("fetches = %d, want 1", fetches.Load())
	}
	if p.Active() {
		t.Fatalf("guard should be released")
	}
	if _, ok := p.Current(); ok {
		t.Fatalf("no target after completion")
	}
}

func TestPoller_StartRunsInBackground(t *testing.T) {
	fetcher := fetchFunc(func(context.Context, string) (*shop.Product, error) {
		return product(shop.StatusCompleted), nil
	})
	p := New(fetcher, Options{Clock: newStepClock(), Logger: quietLogger()})
	sink := &recordingSink{}
	done := make(chan struct{})

	if !p.Start(context.Background(), "p-1", sink, func() { close(done) }) {
		t.Fatalf("Start returned false")
	}
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("poll did not complete")
	}

	deadline := time.Now().Add(2 * time.Second)
	for p.Active() {
		if time.Now().After(deadline) {
			t.Fatalf("guard was not released")
		}
		time.Sleep(time.Millisecond)
	}
	if lists, _ := sink.counts(); lists != 1 {
		t.Fatalf("list invalidations = %d, want 1", lists)
	}
}

func TestPoller_EmptyResourceIDIsNoop(t *testing.T) {
	called := false
	fetcher := fetchFunc(func(context.Context, string) (*shop.Product, error) {
		called = true
		return nil, nil
	})
	p := New(fetcher, Options{Clock: newStepClock(), Logger: quietLogger()})

	if p.Start(context.Background(), "", nil, nil) {
		t.Fatalf("Start with empty id should return false")
	}
	if outcome := p.Run(context.Background(), "  ", nil, nil); outcome != OutcomeSkipped {
		t.Fatalf("Run with blank id = %v, want skipped", outcome)
	}
	if called || p.Active() {
		t.Fatalf("empty id must not fetch or hold the guard")
	}
}

func TestPoller_NotFoundEndsSilently(t *testing.T) {
	calls := 0
	fetcher := fetchFunc(func(context.Context, string) (*shop.Product, error) {
		calls++
		return nil, shop.ErrNotFound
	})
	sink := &recordingSink{}
	done := 0
	p := New(fetcher, Options{Clock: newStepClock(), Logger: quietLogger()})

	if outcome := p.Run(context.Background(), "p-1", sink, func() { done++ }); outcome != OutcomeVanished {
		t.Fatalf("outcome = %v, want vanished", outcome)
	}
	lists, details := sink.counts()
	if calls != 1 || lists != 0 || len(details) != 0 || done != 0 {
		t.Fatalf("calls=%d lists=%d details=%v done=%d", calls, lists, details, done)
	}
	if p.Active() {
		t.Fatalf("guard should be released")
	}
}

func TestPoller_TransientErrorsAndPanicsAreSwallowed(t *testing.T) {
	calls := 0
	fetcher := fetchFunc(func(context.Context, string) (*shop.Product, error) {
		calls++
		switch calls {
		case 1:
			return nil, errors.New("connection refused")
		case 2:
			panic("decoder exploded")
		case 3:
			return product(shop.StatusPending), nil
		default:
			return product(shop.StatusFailed), nil
		}
	})
	sink := &recordingSink{}
	p := New(fetcher, Options{Clock: newStepClock(), Logger: quietLogger()})

	if outcome := p.Run(context.Background(), "p-1", sink, nil); outcome != OutcomeCompleted {
		t.Fatalf("outcome = %v, want completed", outcome)
	}
	if calls != 4 {
		t.Fatalf("fetches = %d, want 4", calls)
	}
	if lists, _ := sink.counts(); lists != 1 {
		t.Fatalf("list invalidations = %d, want 1", lists)
	}
	if p.Active() {
		t.Fatalf("guard should be released")
	}
}

func TestPoller_CancelDuringSleep(t *testing.T) {
	clock := stuckClock{sleeping: make(chan struct{}, 1)}
	called := false
	fetcher := fetchFunc(func(context.Context, string) (*shop.Product, error) {
		called = true
		return product(shop.StatusCompleted), nil
	})
	sink := &recordingSink{}
	p := New(fetcher, Options{Clock: clock, Logger: quietLogger()})

	ctx, cancel := context.WithCancel(context.Background())
	finished := make(chan Outcome, 1)
	go func() {
		finished <- p.Run(ctx, "p-1", sink, nil)
	}()
	<-clock.sleeping
	cancel()

	if outcome := <-finished; outcome != OutcomeCancelled {
		t.Fatalf("outcome = %v, want cancelled", outcome)
	}
	if lists, details := sink.counts(); called || lists != 0 || len(details) != 0 {
		t.Fatalf("cancelled poll must not fetch or invalidate")
	}
	if p.Active() {
		t.Fatalf("guard should be released")
	}

	// A fresh poll may start after cancellation.
	if outcome := New(fetcher, Options{Clock: newStepClock(), Logger: quietLogger()}).Run(context.Background(), "p-1", nil, nil); outcome != OutcomeCompleted {
		t.Fatalf("outcome = %v, want completed", outcome)
	}
}

func TestPoller_AlreadyCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p := New(fetchFunc(func(context.Context, string) (*shop.Product, error) {
		t.Fatalf("fetch should not run")
		return nil, nil
	}), Options{Clock: newStepClock(), Logger: quietLogger()})

	if outcome := p.Run(ctx, "p-1", nil, nil); outcome != OutcomeCancelled {
		t.Fatalf("outcome = %v, want cancelled", outcome)
	}
	if p.Active() {
		t.Fatalf("guard should be released")
	}
}

func TestOptions_Defaults(t *testing.T) {
	o := Options{InitialDelay: 10 * time.Second, MaxDelay: time.Second, Multiplier: 0.5}.withDefaults()
	if o.MaxDelay != o.InitialDelay {
		t.Fatalf("MaxDelay = %v, want clamped to %v", o.MaxDelay, o.InitialDelay)
	}
	if o.Multiplier != DefaultMultiplier || o.Timeout != DefaultTimeout {
		t.Fatalf("defaults not applied: %#v", o)
	}
	if _, ok := o.Clock.(RealClock); !ok {
		t.Fatalf("Clock = %T, want RealClock", o.Clock)
	}
}

func TestOutcome_String(t *testing.T) {
	if OutcomeTimedOut.String() != "timed-out" || OutcomeSkipped.String() != "skipped" {
		t.Fatalf("unexpected outcome names")
	}
}
