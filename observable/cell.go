package observable

import (
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"weak"

	"github.com/roberthein/Observable/dispatch"
)

// SubscriptionID identifies one Observe call on one cell.
type SubscriptionID uint64

// Observer receives the new value and the value it replaced. old is nil for
// the replay delivered on subscription.
type Observer[T any] func(value T, old *T)

type notification[T any] struct {
	value  T
	old    T
	hasOld bool
}

// subscription owns a FIFO of notifications waiting to be delivered to one
// observer. Notifications are appended under the cell lock, so each mailbox
// holds them in commit order.
type subscription[T any] struct {
	id     SubscriptionID
	fn     Observer[T]
	queue  dispatch.Queue // nil means inline
	cell   string
	rec    Recorder
	logger *slog.Logger
	live   atomic.Bool

	mu       sync.Mutex
	pending  []notification[T]
	draining bool
}

func (s *subscription[T]) push(n notification[T]) {
	s.mu.Lock()
	s.pending = append(s.pending, n)
	s.mu.Unlock()
}

func (s *subscription[T]) pop() (notification[T], bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.popLocked()
}

func (s *subscription[T]) popLocked() (notification[T], bool) {
	if len(s.pending) == 0 {
		return notification[T]{}, false
	}
	n := s.pending[0]
	s.pending[0] = notification[T]{}
	s.pending = s.pending[1:]
	return n, true
}

// inlineBatch caps how many notifications one goroutine delivers for an
// inline subscription before handing the rest of the mailbox to a new
// goroutine.
const inlineBatch = 256

// kick delivers whatever is pending. For an inline subscription the caller
// becomes the drainer unless another goroutine, or an outer frame of this
// one, already is; that drainer picks the new work up. A deferred
// subscription gets one pop-and-deliver task per notification.
func (s *subscription[T]) kick() {
	if s.queue != nil {
		s.queue.Async(s.deliverNext)
		return
	}
	s.mu.Lock()
	if s.draining {
		s.mu.Unlock()
		return
	}
	s.draining = true
	s.mu.Unlock()
	s.drain()
}

// drain must only be called by the goroutine that set draining. After
// inlineBatch deliveries it passes draining on to a fresh goroutine, so a
// writer is never kept busy by a steady stream of other writers.
func (s *subscription[T]) drain() {
	released := false
	defer func() {
		if !released {
			s.mu.Lock()
			s.draining = false
			s.mu.Unlock()
		}
	}()
	for n := 0; ; n++ {
		s.mu.Lock()
		if len(s.pending) == 0 {
			s.draining = false
			s.mu.Unlock()
			released = true
			return
		}
		if n == inlineBatch {
			s.mu.Unlock()
			released = true
			go s.drainDetached()
			return
		}
		next, _ := s.popLocked()
		s.mu.Unlock()
		s.deliver(next)
	}
}

// drainDetached is drain on a goroutine nobody is waiting for, where a
// panicking observer is logged rather than allowed to crash the process.
func (s *subscription[T]) drainDetached() {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("observable: observer panicked", "cell", s.cell, "id", uint64(s.id), "panic", r)
		}
	}()
	s.drain()
}

func (s *subscription[T]) deliverNext() {
	if n, ok := s.pop(); ok {
		s.deliver(n)
	}
}

func (s *subscription[T]) deliver(n notification[T]) {
	if !s.live.Load() {
		return
	}
	if n.hasOld {
		old := n.old
		s.fn(n.value, &old)
	} else {
		s.fn(n.value, nil)
	}
	s.rec.Delivered(s.cell, s.queue != nil)
}

func (s *subscription[T]) cancel() {
	s.live.Store(false)
	s.mu.Lock()
	s.pending = nil
	s.mu.Unlock()
}

// cell is the state shared by Observable, MutableObservable and Subject.
type cell[T any] struct {
	mu        sync.RWMutex
	value     T
	hasValue  bool
	observers map[SubscriptionID]*subscription[T]
	nextID    SubscriptionID

	self      weak.Pointer[cell[T]]
	name      string
	onDispose func()
	logger    *slog.Logger
	rec       Recorder
}

func newCell[T any](value T, hasValue bool, opts []Option) *cell[T] {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	c := &cell[T]{
		value:     value,
		hasValue:  hasValue,
		observers: map[SubscriptionID]*subscription[T]{},
		name:      o.name,
		onDispose: o.onDispose,
		logger:    o.logger,
		rec:       o.recorder,
	}
	c.self = weak.Make(c)
	return c
}

func (c *cell[T]) read() (T, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.value, c.hasValue
}

func (c *cell[T]) write(v T) {
	c.mu.Lock()
	subs := c.commitLocked(v)
	c.mu.Unlock()
	c.fanOut(subs)
}

// update runs fn under the cell lock; fn must not touch the cell.
func (c *cell[T]) update(fn func(T) T) {
	subs := func() []*subscription[T] {
		c.mu.Lock()
		defer c.mu.Unlock()
		return c.commitLocked(fn(c.value))
	}()
	c.fanOut(subs)
}

func (c *cell[T]) commitLocked(v T) []*subscription[T] {
	n := notification[T]{value: v, old: c.value, hasOld: c.hasValue}
	c.value = v
	c.hasValue = true

	subs := make([]*subscription[T], 0, len(c.observers))
	for _, s := range c.observers {
		s.push(n)
		subs = append(subs, s)
	}
	return subs
}

func (c *cell[T]) fanOut(subs []*subscription[T]) {
	c.rec.Written(c.name)
	for _, s := range subs {
		s.kick()
	}
}

func (c *cell[T]) observe(q dispatch.Queue, fn Observer[T], requireValue bool) (*Disposable, error) {
	if fn == nil {
		panic("observable: nil observer")
	}
	inline := dispatch.IsInline(q)

	c.mu.Lock()
	if requireValue && !c.hasValue {
		c.mu.Unlock()
		return nil, ErrNoValueYet
	}
	if c.nextID == math.MaxUint64 {
		c.mu.Unlock()
		panic("observable: subscription ids exhausted")
	}
	c.nextID++
	s := &subscription[T]{
		id:     c.nextID,
		fn:     fn,
		cell:   c.name,
		rec:    c.rec,
		logger: c.logger,
	}
	if !inline {
		s.queue = q
	}
	s.live.Store(true)
	replay := c.hasValue
	if replay {
		s.pending = append(s.pending, notification[T]{value: c.value})
	}
	// The observing goroutine owns the first drain so the replay is
	// delivered before Observe returns.
	s.draining = inline
	c.observers[s.id] = s
	c.mu.Unlock()

	c.rec.Observed(c.name)
	c.logger.Debug("observable: subscribed", "cell", c.name, "id", uint64(s.id), "inline", inline)

	token := c.token(s)
	switch {
	case inline:
		s.drain()
	case replay:
		s.queue.Async(s.deliverNext)
	}
	return token, nil
}

// token holds the cell weakly: a token kept past the cell's lifetime only
// silences its subscription.
func (c *cell[T]) token(s *subscription[T]) *Disposable {
	ref := c.self
	id := s.id
	return NewDisposable(func() {
		s.cancel()
		if owner := ref.Value(); owner != nil {
			owner.remove(id)
		}
	})
}

func (c *cell[T]) remove(id SubscriptionID) {
	c.mu.Lock()
	_, ok := c.observers[id]
	delete(c.observers, id)
	onDispose := c.onDispose
	c.mu.Unlock()

	if ok {
		c.rec.Disposed(c.name)
	}
	c.logger.Debug("observable: disposed", "cell", c.name, "id", uint64(id), "registered", ok)
	if onDispose != nil {
		onDispose()
	}
}

func (c *cell[T]) removeAll() {
	c.mu.Lock()
	subs := c.observers
	c.observers = map[SubscriptionID]*subscription[T]{}
	for _, s := range subs {
		s.cancel()
	}
	c.mu.Unlock()

	c.rec.Cleared(c.name, len(subs))
	c.logger.Debug("observable: cleared", "cell", c.name, "count", len(subs))
}

func (c *cell[T]) count() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.observers)
}
