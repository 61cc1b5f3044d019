package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/roberthein/Observable/filewatch"
	"github.com/roberthein/Observable/metrics"
	"github.com/roberthein/Observable/observable"
	"github.com/urfave/cli/v3"
	"github.com/valyala/quicktemplate"
)

const (
	metricsAddrKey = "metrics-addr"
	lingerKey      = "linger"
)

func watchCommand() *cli.Command {
	return &cli.Command{
		Name:      "watch",
		Usage:     "Print a YAML file's top-level keys every time it changes",
		ArgsUsage: "FILE",
		Flags: []cli.Flag{
			configFlag(),
			queueFlag(),
			&cli.StringFlag{
				Name:  metricsAddrKey,
				Usage: "Serve Prometheus metrics on this address, e.g. :9090",
			},
			&cli.DurationFlag{
				Name:  lingerKey,
				Usage: "Stop after this long; zero waits for a signal",
			},
		},
		Action: watch,
	}
}

func watch(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	path := cmd.Args().First()
	if path == "" {
		return errors.New("watch needs a FILE argument")
	}

	q, closeQueue, err := namedQueue(stringSetting(cmd, queueKey, cfg.Queue))
	if err != nil {
		return err
	}
	defer closeQueue()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	if linger := durationSetting(cmd, lingerKey, cfg.Watch.Linger); linger > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, linger)
		defer cancel()
	}

	reg := prometheus.NewRegistry()
	collector := metrics.New(metrics.WithRegistry(reg))
	if addr := stringSetting(cmd, metricsAddrKey, cfg.Watch.MetricsAddr); addr != "" {
		srv := &http.Server{
			Addr:    addr,
			Handler: promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Printf("metrics server: %v", err)
			}
		}()
		defer srv.Close()
		log.Printf("Serving metrics on %s", addr)
	}

	file := filewatch.New(path, filewatch.YAML[map[string]any],
		filewatch.WithCellOptions(observable.WithName(path), observable.WithRecorder(collector)))
	defer file.Close()

	var mu sync.Mutex
	tok, err := file.Observe(q, func(v map[string]any, old *map[string]any) {
		mu.Lock()
		defer mu.Unlock()
		printChange(os.Stdout, v, old)
	})
	if err != nil {
		return fmt.Errorf("watch %s: %w", path, err)
	}
	defer tok.Dispose()

	log.Printf("Watching %s", path)
	<-ctx.Done()
	log.Printf("Stopped watching %s", path)
	return nil
}

// printChange writes one line per top-level key that was added, removed or
// changed. The first load prints every key.
func printChange(w io.Writer, v map[string]any, old *map[string]any) {
	qw := quicktemplate.AcquireWriter(w)
	defer quicktemplate.ReleaseWriter(qw)
	out := qw.N()

	var prev map[string]any
	if old != nil {
		prev = *old
	}

	keys := make([]string, 0, len(v)+len(prev))
	for k := range v {
		keys = append(keys, k)
	}
	for k := range prev {
		if _, ok := v[k]; !ok {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	out.S(time.Now().Format(time.TimeOnly))
	out.S("\n")
	for _, k := range keys {
		cur, inNew := v[k]
		was, inOld := prev[k]
		switch {
		case !inOld:
			out.S("  + ")
			out.S(k)
			out.S(": ")
			out.V(cur)
		case !inNew:
			out.S("  - ")
			out.S(k)
		case fmt.Sprint(cur) != fmt.Sprint(was):
			out.S("  ~ ")
			out.S(k)
			out.S(": ")
			out.V(was)
			out.S(" -> ")
			out.V(cur)
		default:
			continue
		}
		out.S("\n")
	}
}
