package dispatch

import (
	"log/slog"
	"runtime"
	"sync"
)

// Queue runs tasks somewhere. Async must not block waiting for the task.
//
// Whether tasks submitted from one goroutine run in submission order is a
// property of the implementation: Serial and the lanes of Striped preserve it,
// Concurrent does not.
type Queue interface {
	Async(task func())
}

// QueueFunc adapts a plain submit function, such as a UI toolkit's
// "post to main thread" call, to Queue.
type QueueFunc func(task func())

func (f QueueFunc) Async(task func()) {
	f(task)
}

type inlineQueue struct{}

func (inlineQueue) Async(task func()) {
	task()
}

// Inline runs every task immediately on the calling goroutine.
var Inline Queue = inlineQueue{}

// IsInline reports whether q delivers on the caller's goroutine. A nil Queue
// is inline, and so is a nil *Serial, *Concurrent or QueueFunc.
func IsInline(q Queue) bool {
	switch q := q.(type) {
	case nil, inlineQueue:
		return true
	case nilQueue:
		return q.isNil()
	}
	return false
}

type nilQueue interface {
	isNil() bool
}

func (f QueueFunc) isNil() bool { return f == nil }

var (
	mainOnce   sync.Once
	mainQueue  *Serial
	globalOnce sync.Once
	globalPool *Concurrent
)

// Main returns the process-wide serial queue. It is never closed.
func Main() *Serial {
	mainOnce.Do(func() {
		mainQueue = NewSerial("main")
	})
	return mainQueue
}

// Global returns the process-wide concurrent queue, sized to GOMAXPROCS.
// It is never closed.
func Global() *Concurrent {
	globalOnce.Do(func() {
		globalPool = NewConcurrent("global", runtime.GOMAXPROCS(0))
	})
	return globalPool
}

// Option configures a queue.
type Option func(*pool)

// WithLogger sets the logger used to report tasks that panic.
func WithLogger(logger *slog.Logger) Option {
	return func(p *pool) {
		if logger != nil {
			p.logger = logger
		}
	}
}
