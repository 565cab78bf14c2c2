// Package notify collects user-facing notices for the UI to display.
package notify

import (
	"strings"
	"sync"
	"time"
)

// Level classifies a notice.
type Level int

const (
	LevelSuccess Level = iota
	LevelError
	LevelInfo
)

func (l Level) String() string {
	switch l {
	case LevelSuccess:
		return "success"
	case LevelError:
		return "error"
	default:
		return "info"
	}
}

// Notice is a short message with a title and a description.
type Notice struct {
	Level       Level
	Title       string
	Description string
	At          time.Time
}

// Notifier accepts notices.
type Notifier interface {
	Notify(Notice)
}

const defaultCapacity = 50

// Feed keeps the most recent notices in arrival order. The zero value is
// ready to use with the default capacity.
type Feed struct {
	mu       sync.Mutex
	notices  []Notice
	capacity int
	now      func() time.Time
	changed  chan struct{}
}

// NewFeed returns a Feed holding at most capacity notices.
func NewFeed(capacity int) *Feed {
	return &Feed{capacity: capacity}
}

// Notify records n, stamping it with the current time when unset.
func (f *Feed) Notify(n Notice) {
	n.Title = strings.TrimSpace(n.Title)
	n.Description = strings.TrimSpace(n.Description)

	f.mu.Lock()
	defer f.mu.Unlock()
	f.init()
	if n.At.IsZero() {
		n.At = f.now()
	}
	f.notices = append(f.notices, n)
	if over := len(f.notices) - f.capacity; over > 0 {
		f.notices = append([]Notice(nil), f.notices[over:]...)
	}
	select {
	case f.changed <- struct{}{}:
	default:
	}
}

// Latest returns the newest notice.
func (f *Feed) Latest() (Notice, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.notices) == 0 {
		return Notice{}, false
	}
	return f.notices[len(f.notices)-1], true
}

// Recent returns a copy of the stored notices, oldest first.
func (f *Feed) Recent() []Notice {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.notices) == 0 {
		return nil
	}
	dup := make([]Notice, len(f.notices))
	copy(dup, f.notices)
	return dup
}

// Changed returns a channel that receives after notices are added. Multiple
// additions between reads coalesce into one signal.
func (f *Feed) Changed() <-chan struct{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.init()
	return f.changed
}

func (f *Feed) init() {
	if f.capacity <= 0 {
		f.capacity = defaultCapacity
	}
	if f.now == nil {
		f.now = time.Now
	}
	if f.changed == nil {
		f.changed = make(chan struct{}, 1)
	}
}
