// Package binding pushes the values of an observable cell into a field of
// some other object.
//
// Targets are held weakly. A binding never keeps its target alive; once the
// target has been collected the next notification disposes the binding.
package binding

import (
	"runtime"
	"sync/atomic"
	"weak"

	"github.com/roberthein/Observable/dispatch"
	"github.com/roberthein/Observable/observable"
)

// Bind writes transform(v) into target through set for the current value of
// src and for every later write, on the notifying goroutine. The returned
// token is also added to bag when bag is non-nil.
func Bind[T, O, R any](src observable.Source[T], target *O, set func(*O, R), bag *observable.Disposal, transform func(T) R) *observable.Disposable {
	return BindOn(dispatch.Inline, src, target, set, bag, transform)
}

// BindOn is Bind with deliveries made on q.
func BindOn[T, O, R any](q dispatch.Queue, src observable.Source[T], target *O, set func(*O, R), bag *observable.Disposal, transform func(T) R) *observable.Disposable {
	if target == nil {
		panic("binding: nil target")
	}
	if set == nil || transform == nil {
		panic("binding: nil setter or transform")
	}

	ref := weak.Make(target)
	var (
		token atomic.Pointer[observable.Disposable]
		gone  atomic.Bool
	)
	d := src.Observe(q, func(v T, _ *T) {
		t := ref.Value()
		if t == nil {
			gone.Store(true)
			if d := token.Load(); d != nil {
				d.Dispose()
			}
			return
		}
		set(t, transform(v))
	})
	token.Store(d)
	runtime.KeepAlive(target)
	if gone.Load() {
		d.Dispose()
	}

	if bag != nil {
		bag.Add(d)
	}
	return d
}

// BindValue binds src to a field of the same type.
func BindValue[T, O any](src observable.Source[T], target *O, set func(*O, T), bag *observable.Disposal) *observable.Disposable {
	return Bind(src, target, set, bag, identity[T])
}

// BindOptional binds src to a pointer field. A nil transform result clears
// the field.
func BindOptional[T, O, R any](src observable.Source[T], target *O, set func(*O, *R), bag *observable.Disposal, transform func(T) *R) *observable.Disposable {
	return Bind(src, target, set, bag, transform)
}

// Field builds a setter from an accessor returning the address of a field
// of O.
//
//	binding.BindValue(name, label, binding.Field(func(l *Label) *string { return &l.Text }), &bag)
func Field[O, R any](field func(*O) *R) func(*O, R) {
	return func(o *O, r R) {
		*field(o) = r
	}
}

func identity[T any](v T) T { return v }
