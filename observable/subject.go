package observable

import "github.com/roberthein/Observable/dispatch"

// Subject is a value cell that starts empty. Observers registered before the
// first Update hear nothing until a value arrives; that first notification
// has no old value.
type Subject[T any] struct {
	c *cell[T]
}

func NewSubject[T any](opts ...Option) *Subject[T] {
	var zero T
	return &Subject[T]{c: newCell(zero, false, opts)}
}

func (s *Subject[T]) Update(v T) {
	s.c.write(v)
}

// Value returns ErrNoValueYet until the first Update.
func (s *Subject[T]) Value() (T, error) {
	v, ok := s.c.read()
	if !ok {
		return v, ErrNoValueYet
	}
	return v, nil
}

func (s *Subject[T]) HasValue() bool {
	_, ok := s.c.read()
	return ok
}

// Observe registers fn whether or not a value exists yet, replaying the
// current value if there is one. See Observable.Observe for delivery rules.
func (s *Subject[T]) Observe(q dispatch.Queue, fn Observer[T]) *Disposable {
	d, _ := s.c.observe(q, fn, false)
	return d
}

// ObserveValue is Observe for callers that need a value right away: on an
// empty Subject it registers nothing and returns ErrNoValueYet.
func (s *Subject[T]) ObserveValue(q dispatch.Queue, fn Observer[T]) (*Disposable, error) {
	return s.c.observe(q, fn, true)
}

func (s *Subject[T]) RemoveAllObservers() {
	s.c.removeAll()
}

func (s *Subject[T]) ObserverCount() int {
	return s.c.count()
}
