package observable

import "runtime"

const InlineBatch = inlineBatch

// OnCellCollected runs fn once the cell behind m has been garbage collected.
func OnCellCollected[T any](m *MutableObservable[T], fn func()) {
	runtime.AddCleanup(m.c, func(fn func()) { fn() }, fn)
}
