package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"sync/atomic"
	"time"

	"github.com/jamiealquiza/tachymeter"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/roberthein/Observable/dispatch"
	"github.com/roberthein/Observable/observable"
	"github.com/urfave/cli/v3"
)

const (
	observersKey  = "observers"
	iterationsKey = "iterations"
)

func benchCommand() *cli.Command {
	return &cli.Command{
		Name:  "bench",
		Usage: "Measure write latency for growing numbers of observers",
		Flags: []cli.Flag{
			configFlag(),
			&cli.IntSliceFlag{
				Name:  observersKey,
				Usage: "Observer counts to measure",
				Value: []int64{1, 10, 100, 1_000},
			},
			&cli.IntFlag{
				Name:  iterationsKey,
				Usage: "Writes per measurement",
				Value: 1_000,
			},
		},
		Action: bench,
	}
}

func bench(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	counts := cfg.Bench.Observers
	if len(counts) == 0 || cmd.IsSet(observersKey) {
		counts = counts[:0]
		for _, n := range cmd.IntSlice(observersKey) {
			counts = append(counts, int(n))
		}
	}
	iters := intSetting(cmd, iterationsKey, cfg.Bench.Iterations)
	if iters < 1 {
		return fmt.Errorf("--%s must be positive", iterationsKey)
	}

	log.Printf("warming up")
	benchmarkWrites("inline", dispatch.Inline, counts, iters, false)

	benchmarkWrites("inline", dispatch.Inline, counts, iters, true)

	serial := dispatch.NewSerial("bench")
	defer serial.Close()
	benchmarkWrites("serial", serial, counts, iters, true)

	return nil
}

func benchmarkWrites(title string, q dispatch.Queue, counts []int, iters int, shouldRender bool) {
	tbl := table.NewWriter()
	tbl.SetTitle(fmt.Sprintf("SetValue, %s observers", title))
	tbl.SetOutputMirror(os.Stdout)
	tbl.AppendHeader(table.Row{"observers", "avg", "min", "p75", "p99", "max", "delivered"})

	for _, n := range counts {
		tach := tachymeter.New(&tachymeter.Config{Size: iters})

		var delivered atomic.Int64
		var bag observable.Disposal
		cell := observable.New(0)
		for i := 0; i < n; i++ {
			cell.Observe(q, func(int, *int) {
				delivered.Add(1)
			}).AddTo(&bag)
		}

		for i := 0; i < iters; i++ {
			start := time.Now()
			cell.SetValue(i + 1)
			tach.AddTime(time.Since(start))
		}
		drain(q)

		want := int64(n * (iters + 1))
		if got := delivered.Load(); got != want {
			log.Printf("%s/%d: delivered %d notifications, want %d", title, n, got, want)
		}
		bag.Dispose()

		calc := tach.Calc()
		tbl.AppendRow(table.Row{
			n,
			calc.Time.Avg,
			calc.Time.Min,
			calc.Time.P75,
			calc.Time.P99,
			calc.Time.Max,
			delivered.Load(),
		})
	}

	if shouldRender {
		tbl.Render()
	}
}
