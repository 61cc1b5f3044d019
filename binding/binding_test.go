package binding_test

import (
	"runtime"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/roberthein/Observable/binding"
	"github.com/roberthein/Observable/dispatch"
	"github.com/roberthein/Observable/observable"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type label struct {
	Text  string
	Title *string
	Count int
	owner *string
}

func TestBindTransform(t *testing.T) {
	var bag observable.Disposal
	defer bag.Dispose()

	cell := observable.New(5)
	target := &label{}
	binding.Bind(cell, target, binding.Field(func(l *label) *int { return &l.Count }), &bag, func(v int) int { return v * 2 })

	assert.Equal(t, 10, target.Count)
	cell.SetValue(7)
	assert.Equal(t, 14, target.Count)
	assert.Equal(t, 1, bag.Len())
}

func TestBindValue(t *testing.T) {
	var bag observable.Disposal
	cell := observable.New("hello")
	target := &label{}
	binding.BindValue(cell.AsObservable(), target, func(l *label, s string) { l.Text = s }, &bag)

	assert.Equal(t, "hello", target.Text)
	cell.SetValue("world")
	assert.Equal(t, "world", target.Text)

	bag.Dispose()
	cell.SetValue("ignored")
	assert.Equal(t, "world", target.Text)
	assert.Equal(t, 0, cell.ObserverCount())
}

func TestBindOptional(t *testing.T) {
	cell := observable.New("")
	target := &label{}
	tok := binding.BindOptional(cell, target, func(l *label, s *string) { l.Title = s }, nil, func(v string) *string {
		if v == "" {
			return nil
		}
		up := strings.ToUpper(v)
		return &up
	})
	defer tok.Dispose()

	assert.Nil(t, target.Title)
	cell.SetValue("home")
	require.NotNil(t, target.Title)
	assert.Equal(t, "HOME", *target.Title)
	cell.SetValue("")
	assert.Nil(t, target.Title)
}

func TestBindSubjectWaitsForValue(t *testing.T) {
	s := observable.NewSubject[int]()
	target := &label{Text: "unset"}
	tok := binding.Bind(s, target, binding.Field(func(l *label) *string { return &l.Text }), nil, strconv.Itoa)
	defer tok.Dispose()

	assert.Equal(t, "unset", target.Text)
	s.Update(42)
	assert.Equal(t, "42", target.Text)
}

func TestBindOn(t *testing.T) {
	q := dispatch.NewSerial("binding")
	t.Cleanup(q.Close)

	var bag observable.Disposal
	defer bag.Dispose()

	cell := observable.New(1)
	target := &label{}
	binding.BindOn(q, cell, target, binding.Field(func(l *label) *int { return &l.Count }), &bag, func(v int) int { return v + 100 })

	cell.SetValue(2)
	var got int
	q.Sync(func() { got = target.Count })
	assert.Equal(t, 102, got)
}

func TestBindReleasesCollectedTarget(t *testing.T) {
	cell := observable.New(0)
	writes := 0

	func() {
		target := &label{owner: new(string)}
		binding.Bind(cell, target, func(l *label, v int) {
			writes++
			l.Count = v
		}, nil, func(v int) int { return v })
	}()
	require.Equal(t, 1, writes)
	require.Equal(t, 1, cell.ObserverCount())

	require.Eventually(t, func() bool {
		runtime.GC()
		cell.Update(func(v int) int { return v + 1 })
		return cell.ObserverCount() == 0
	}, 2*time.Second, 10*time.Millisecond)

	before := writes
	cell.SetValue(-1)
	assert.Equal(t, before, writes)
}

func TestBindRejectsNilTarget(t *testing.T) {
	cell := observable.New(0)
	assert.Panics(t, func() {
		binding.BindValue[int, label](cell, nil, func(*label, int) {}, nil)
	})
	assert.Equal(t, 0, cell.ObserverCount())
}
