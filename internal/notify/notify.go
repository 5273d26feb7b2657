// Package notify delivers user-visible transient notices, the storefront's
// equivalent of toast messages. Remote failures end up here instead of
// propagating as fatal errors.
package notify

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Level is the severity of a notice.
type Level string

const (
	LevelSuccess Level = "success"
	LevelError   Level = "error"
)

// Notice is one transient message for the user.
type Notice struct {
	Level   Level
	Message string
	At      time.Time
}

// Notifier receives notices.
type Notifier interface {
	Notify(ctx context.Context, n Notice)
}

// Success sends a success notice.
func Success(ctx context.Context, to Notifier, msg string) {
	send(ctx, to, Notice{Level: LevelSuccess, Message: msg})
}

// Error sends an error notice. err is logged, not shown.
func Error(ctx context.Context, to Notifier, msg string, err error) {
	if err != nil {
		slog.Warn(msg, "error", err)
	}
	send(ctx, to, Notice{Level: LevelError, Message: msg})
}

func send(ctx context.Context, to Notifier, n Notice) {
	if to == nil {
		return
	}
	n.At = time.Now()
	to.Notify(ctx, n)
}

// Log writes notices to the default slog logger.
type Log struct{}

// Notify logs the notice.
func (Log) Notify(_ context.Context, n Notice) {
	if n.Level == LevelError {
		slog.Error("notice", "message", n.Message)
		return
	}
	slog.Info("notice", "message", n.Message)
}

// Queue buffers the most recent notices until they are drained.
// The server keeps one per session and hands them to the browser.
type Queue struct {
	mu      sync.Mutex
	max     int
	notices []Notice
}

// NewQueue creates a queue keeping at most max notices.
func NewQueue(max int) *Queue {
	if max <= 0 {
		max = 32
	}
	return &Queue{max: max}
}

// Notify appends a notice, dropping the oldest when full.
func (q *Queue) Notify(_ context.Context, n Notice) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.notices = append(q.notices, n)
	if over := len(q.notices) - q.max; over > 0 {
		q.notices = append([]Notice(nil), q.notices[over:]...)
	}
}

// Drain returns the buffered notices and empties the queue. A nil queue
// has nothing to drain.
func (q *Queue) Drain() []Notice {
	if q == nil {
		return nil
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	out := q.notices
	q.notices = nil
	return out
}

// Multi fans a notice out to several notifiers.
type Multi []Notifier

// Notify forwards n to every notifier.
func (m Multi) Notify(ctx context.Context, n Notice) {
	for _, to := range m {
		if to != nil {
			to.Notify(ctx, n)
		}
	}
}
