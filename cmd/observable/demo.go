package main

import (
	"context"
	"errors"
	"io"
	"os"
	"sync"

	"github.com/roberthein/Observable/binding"
	"github.com/roberthein/Observable/dispatch"
	"github.com/roberthein/Observable/observable"
	"github.com/urfave/cli/v3"
	"github.com/valyala/quicktemplate"
)

func demoCommand() *cli.Command {
	return &cli.Command{
		Name:   "demo",
		Usage:  "Walk through replay, old/new pairs, re-entrant writes, subjects and bindings",
		Flags:  []cli.Flag{configFlag(), queueFlag()},
		Action: demo,
	}
}

func demo(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	q, closeQueue, err := namedQueue(stringSetting(cmd, queueKey, cfg.Queue))
	if err != nil {
		return err
	}
	defer closeQueue()

	return runDemo(os.Stdout, q)
}

type demoLine struct {
	value  int
	old    *int
	source string
}

func runDemo(w io.Writer, q dispatch.Queue) error {
	if _, ok := q.(*dispatch.Concurrent); ok {
		return errors.New("demo needs an ordered queue")
	}

	qw := quicktemplate.AcquireWriter(w)
	defer quicktemplate.ReleaseWriter(qw)
	out := qw.N()

	var (
		mu    sync.Mutex
		lines []demoLine
	)
	record := func(source string) observable.Observer[int] {
		return func(v int, old *int) {
			mu.Lock()
			lines = append(lines, demoLine{value: v, old: old, source: source})
			mu.Unlock()
		}
	}
	flush := func() {
		drain(q)
		mu.Lock()
		defer mu.Unlock()
		for _, l := range lines {
			out.S("  ")
			out.S(l.source)
			out.S(": new=")
			out.D(l.value)
			out.S(" old=")
			if l.old == nil {
				out.S("none")
			} else {
				out.D(*l.old)
			}
			out.S("\n")
		}
		lines = lines[:0]
	}

	var bag observable.Disposal
	defer bag.Dispose()

	out.S("replay and old/new pairs\n")
	counter := observable.New(0, observable.WithName("counter"))
	counter.Observe(q, record("counter")).AddTo(&bag)
	counter.SetValue(1)
	counter.SetValue(2)
	flush()

	out.S("re-entrant writes\n")
	reentrant := observable.New(0)
	reentrant.Observe(q, func(v int, old *int) {
		record("reentrant")(v, old)
		if v < 3 {
			reentrant.SetValue(v + 1)
		}
	}).AddTo(&bag)
	flush()

	out.S("dispose between writes\n")
	short := observable.New(10)
	tok := short.Observe(q, record("short"))
	short.SetValue(11)
	drain(q)
	tok.Dispose()
	short.SetValue(12)
	flush()

	out.S("empty subject\n")
	subject := observable.NewSubject[int]()
	if _, err := subject.Value(); errors.Is(err, observable.ErrNoValueYet) {
		out.S("  value: ")
		out.S(err.Error())
		out.S("\n")
	}
	subject.Observe(q, record("subject")).AddTo(&bag)
	subject.Update(7)
	flush()

	out.S("binding with transform\n")
	type gauge struct{ Reading int }
	target := &gauge{}
	source := observable.New(5)
	binding.BindOn(q, source, target, binding.Field(func(g *gauge) *int { return &g.Reading }), &bag, func(v int) int { return v * 2 })
	source.SetValue(7)
	drain(q)
	out.S("  target.Reading=")
	out.D(target.Reading)
	out.S("\n")

	return nil
}
