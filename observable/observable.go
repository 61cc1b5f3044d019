package observable

import "github.com/roberthein/Observable/dispatch"

// Source is anything that can be observed: Observable, MutableObservable and
// Subject.
type Source[T any] interface {
	Observe(q dispatch.Queue, fn Observer[T]) *Disposable
}

// Observable is a read-only view of a value cell. It can be read and
// observed but not written.
type Observable[T any] struct {
	c *cell[T]
}

// NewObservable returns a read-only cell holding value. Use New when the
// value needs to change.
func NewObservable[T any](value T, opts ...Option) *Observable[T] {
	return &Observable[T]{c: newCell(value, true, opts)}
}

func (o *Observable[T]) Value() T {
	v, _ := o.c.read()
	return v
}

// Observe registers fn and immediately replays the current value to it as
// (value, nil). With any queue other than nil or dispatch.Inline every
// delivery, the replay included, is submitted to q; per-observer ordering then
// holds only if q runs tasks in submission order.
//
// With a nil or dispatch.Inline queue the replay runs before Observe returns,
// and a lone writer sees fn run for its write before SetValue returns. Under
// concurrent writers only one goroutine delivers to fn at a time: a write that
// lands while another goroutine is delivering is handed to that goroutine, so
// fn may run on another writer's goroutine after the caller's SetValue has
// returned. A goroutine delivers at most a bounded batch before passing the
// backlog to a new goroutine.
//
// fn may call back into the cell, including writing to it. Writes made from
// inside fn are delivered to fn after it returns, never nested.
func (o *Observable[T]) Observe(q dispatch.Queue, fn Observer[T]) *Disposable {
	d, _ := o.c.observe(q, fn, false)
	return d
}

func (o *Observable[T]) ObserverCount() int {
	return o.c.count()
}

// MutableObservable is a thread-safe value cell that notifies observers of
// every write.
type MutableObservable[T any] struct {
	Observable[T]
}

func New[T any](value T, opts ...Option) *MutableObservable[T] {
	return &MutableObservable[T]{Observable: Observable[T]{c: newCell(value, true, opts)}}
}

// SetValue replaces the value and notifies every observer with the new value
// and exactly the value this write replaced. Concurrent writers are
// serialized; none of their notifications is dropped or merged.
func (m *MutableObservable[T]) SetValue(v T) {
	m.c.write(v)
}

// Update replaces the value with fn(current) atomically. fn runs with the
// cell locked and must not use the cell.
func (m *MutableObservable[T]) Update(fn func(T) T) {
	m.c.update(fn)
}

// RemoveAllObservers drops every subscription. Deliveries already under way
// may finish; nothing new is delivered to them. Their tokens stay valid and
// disposing them later is harmless.
func (m *MutableObservable[T]) RemoveAllObservers() {
	m.c.removeAll()
}

// AsObservable returns a read-only view sharing this cell.
func (m *MutableObservable[T]) AsObservable() *Observable[T] {
	return &m.Observable
}
