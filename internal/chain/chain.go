// Package chain checks that the notifications an observer saw describe one
// consistent history of writes.
package chain

import (
	"fmt"
	"sync"

	mapset "github.com/deckarep/golang-set/v2"
)

// Link is one notification: the value written and the value it replaced.
// Old is nil for the replay delivered on subscription.
type Link[T comparable] struct {
	New T
	Old *T
}

// Log records notifications. Its Observe method has the shape of an
// observable.Observer and is safe for concurrent use.
type Log[T comparable] struct {
	mu    sync.Mutex
	links []Link[T]
}

func (l *Log[T]) Observe(value T, old *T) {
	link := Link[T]{New: value}
	if old != nil {
		o := *old
		link.Old = &o
	}
	l.mu.Lock()
	l.links = append(l.links, link)
	l.mu.Unlock()
}

func (l *Log[T]) Links() []Link[T] {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Link[T], len(l.links))
	copy(out, l.links)
	return out
}

func (l *Log[T]) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.links)
}

// Values returns the new values in delivery order.
func (l *Log[T]) Values() []T {
	links := l.Links()
	out := make([]T, len(links))
	for i, link := range links {
		out[i] = link.New
	}
	return out
}

// Ordered checks links in delivery order: the first must be a replay, every
// later one must replace exactly the value delivered before it, and no value
// may appear twice. It returns the sequence of values.
func Ordered[T comparable](links []Link[T]) ([]T, error) {
	if len(links) == 0 {
		return nil, nil
	}
	if links[0].Old != nil {
		return nil, fmt.Errorf("first notification %v has old value %v, want a replay", links[0].New, *links[0].Old)
	}
	seen := mapset.NewThreadUnsafeSet[T]()
	order := make([]T, 0, len(links))
	for i, link := range links {
		if i > 0 {
			if link.Old == nil {
				return nil, fmt.Errorf("notification %d (%v) has no old value", i, link.New)
			}
			if prev := order[i-1]; *link.Old != prev {
				return nil, fmt.Errorf("notification %d replaced %v, want %v", i, *link.Old, prev)
			}
		}
		if !seen.Add(link.New) {
			return nil, fmt.Errorf("value %v delivered twice", link.New)
		}
		order = append(order, link.New)
	}
	return order, nil
}

// Reconstruct rebuilds the commit order from links seen in any order,
// starting at start. Every link must be used exactly once.
func Reconstruct[T comparable](start T, links []Link[T]) ([]T, error) {
	next := make(map[T]T, len(links))
	for _, link := range links {
		if link.Old == nil {
			continue
		}
		if prev, dup := next[*link.Old]; dup {
			return nil, fmt.Errorf("value %v replaced twice, by %v and %v", *link.Old, prev, link.New)
		}
		next[*link.Old] = link.New
	}

	seen := mapset.NewThreadUnsafeSet(start)
	order := []T{start}
	cur := start
	for {
		n, ok := next[cur]
		if !ok {
			break
		}
		if !seen.Add(n) {
			return nil, fmt.Errorf("cycle at %v", n)
		}
		order = append(order, n)
		cur = n
	}
	if len(order)-1 != len(next) {
		return nil, fmt.Errorf("chain from %v covers %d of %d writes", start, len(order)-1, len(next))
	}
	return order, nil
}

// Respects checks that program appears in order as a subsequence of order,
// i.e. that one writer's writes were committed in the order it issued them.
func Respects[T comparable](order, program []T) error {
	pos := make(map[T]int, len(order))
	for i, v := range order {
		pos[v] = i
	}
	last := -1
	for _, v := range program {
		p, ok := pos[v]
		if !ok {
			return fmt.Errorf("write %v missing from history", v)
		}
		if p <= last {
			return fmt.Errorf("write %v committed out of program order", v)
		}
		last = p
	}
	return nil
}
