package observable

import (
	"sync"
	"sync/atomic"
)

// Disposable is the handle for one subscription. Dispose ends it; calling
// Dispose again is a no-op.
type Disposable struct {
	once     sync.Once
	disposed atomic.Bool
	dispose  func()
}

// NewDisposable wraps fn so that it runs at most once.
func NewDisposable(fn func()) *Disposable {
	return &Disposable{dispose: fn}
}

// Dispose ends the subscription. No notification starts after Dispose
// returns, except one that had already passed its liveness check: that
// callback may still be starting or running on another goroutine, and
// Dispose does not wait for it.
func (d *Disposable) Dispose() {
	if d == nil {
		return
	}
	d.once.Do(func() {
		d.disposed.Store(true)
		if d.dispose != nil {
			d.dispose()
		}
		d.dispose = nil
	})
}

func (d *Disposable) IsDisposed() bool {
	return d == nil || d.disposed.Load()
}

// AddTo hands the subscription's lifetime to bag.
func (d *Disposable) AddTo(bag *Disposal) {
	bag.Add(d)
}

// Disposal collects Disposables so an owner can end all of its subscriptions
// at once. The zero value is ready to use.
type Disposal struct {
	mu       sync.Mutex
	items    []*Disposable
	disposed bool
}

// Add appends ds. If the bag was already disposed they are disposed right
// away instead of being kept.
func (b *Disposal) Add(ds ...*Disposable) {
	b.mu.Lock()
	if b.disposed {
		b.mu.Unlock()
		for _, d := range ds {
			d.Dispose()
		}
		return
	}
	b.items = append(b.items, ds...)
	b.mu.Unlock()
}

// Dispose disposes every item in insertion order and empties the bag.
func (b *Disposal) Dispose() {
	b.mu.Lock()
	items := b.items
	b.items = nil
	b.disposed = true
	b.mu.Unlock()

	for _, d := range items {
		d.Dispose()
	}
}

func (b *Disposal) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.items)
}

func (b *Disposal) IsDisposed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.disposed
}
