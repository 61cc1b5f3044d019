package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/olekukonko/tablewriter"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/roberthein/Observable/dispatch"
	"github.com/roberthein/Observable/internal/chain"
	"github.com/roberthein/Observable/metrics"
	"github.com/roberthein/Observable/observable"
	"github.com/urfave/cli/v3"
)

const (
	writersKey = "writers"
	writesKey  = "writes"
	lanesKey   = "lanes"
)

func stressCommand() *cli.Command {
	return &cli.Command{
		Name:  "stress",
		Usage: "Hammer one cell from many goroutines and check every observer saw one consistent history",
		Flags: []cli.Flag{
			configFlag(),
			&cli.IntFlag{Name: writersKey, Usage: "Concurrent writers", Value: 4},
			&cli.IntFlag{Name: writesKey, Usage: "Writes per writer", Value: 10_000},
			&cli.IntFlag{Name: observersKey, Usage: "Observers on serial lanes, plus one inline observer", Value: 4},
			&cli.IntFlag{Name: lanesKey, Usage: "Serial lanes shared by the observers", Value: 2},
		},
		Action: stress,
	}
}

type stressConfig struct {
	writers   int
	writes    int
	observers int
	lanes     int
}

type observerReport struct {
	name          string
	queue         string
	notifications int
	err           error
}

type stressReport struct {
	duration  time.Duration
	writes    int
	final     int
	observers []observerReport
	registry  *prometheus.Registry
}

func (r stressReport) failed() bool {
	for _, o := range r.observers {
		if o.err != nil {
			return true
		}
	}
	return false
}

func stress(ctx context.Context, cmd *cli.Command) error {
	fc, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	cfg := stressConfig{
		writers:   intSetting(cmd, writersKey, fc.Stress.Writers),
		writes:    intSetting(cmd, writesKey, fc.Stress.Writes),
		observers: intSetting(cmd, observersKey, fc.Stress.Observers),
		lanes:     intSetting(cmd, lanesKey, fc.Stress.Lanes),
	}
	if cfg.writers < 1 || cfg.writes < 1 {
		return fmt.Errorf("--%s and --%s must be positive", writersKey, writesKey)
	}

	log.Printf("Running %d writers x %s writes", cfg.writers, humanize.Comma(int64(cfg.writes)))
	report := runStress(cfg)
	renderStress(os.Stdout, report)
	if report.failed() {
		return fmt.Errorf("history check failed")
	}
	return nil
}

func runStress(cfg stressConfig) stressReport {
	reg := prometheus.NewRegistry()
	collector := metrics.New(metrics.WithRegistry(reg))

	lanes := dispatch.NewStriped("stress", cfg.lanes)
	defer lanes.Close()

	cell := observable.New(0, observable.WithName("stress"), observable.WithRecorder(collector))

	type watched struct {
		name  string
		queue *dispatch.Serial
		log   chain.Log[int]
	}
	all := make([]*watched, 0, cfg.observers+1)
	all = append(all, &watched{name: "inline"})
	for i := 0; i < cfg.observers; i++ {
		name := fmt.Sprintf("observer-%d", i)
		all = append(all, &watched{name: name, queue: lanes.Lane(name)})
	}

	var bag observable.Disposal
	defer bag.Dispose()
	watchedQueues := map[string]bool{}
	for _, w := range all {
		var q dispatch.Queue = dispatch.Inline
		if w.queue != nil {
			q = w.queue
			if !watchedQueues[w.queue.Label()] {
				watchedQueues[w.queue.Label()] = true
				collector.WatchQueue(w.queue.Label(), w.queue.Pending)
			}
		}
		cell.Observe(q, w.log.Observe).AddTo(&bag)
	}

	programs := make([][]int, cfg.writers)
	for w := range programs {
		programs[w] = make([]int, cfg.writes)
		for i := range programs[w] {
			programs[w][i] = w*cfg.writes + i + 1
		}
	}

	start := time.Now()
	var wg sync.WaitGroup
	for _, program := range programs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for _, v := range program {
				cell.SetValue(v)
			}
		}()
	}
	wg.Wait()
	want := cfg.writers*cfg.writes + 1
	for _, w := range all {
		if w.queue != nil {
			drain(w.queue)
			continue
		}
		// inline backlogs handed to another goroutine may still be running
		deadline := time.Now().Add(5 * time.Second)
		for w.log.Len() < want && time.Now().Before(deadline) {
			time.Sleep(time.Millisecond)
		}
	}
	duration := time.Since(start)

	report := stressReport{
		duration: duration,
		writes:   cfg.writers * cfg.writes,
		final:    cell.Value(),
		registry: reg,
	}
	for _, w := range all {
		queue := "inline"
		if w.queue != nil {
			queue = w.queue.Label()
		}
		report.observers = append(report.observers, observerReport{
			name:          w.name,
			queue:         queue,
			notifications: w.log.Len(),
			err:           verifyHistory(w.log.Links(), programs, report.final),
		})
	}
	return report
}

// verifyHistory checks one observer's notifications against what the
// writers issued: a single old/new chain covering every write, each
// writer's writes in the order it made them, ending at the final value.
func verifyHistory(links []chain.Link[int], programs [][]int, final int) error {
	total := 0
	for _, p := range programs {
		total += len(p)
	}
	if len(links) != total+1 {
		return fmt.Errorf("saw %d notifications, want %d", len(links), total+1)
	}
	order, err := chain.Ordered(links)
	if err != nil {
		return err
	}
	rebuilt, err := chain.Reconstruct(order[0], links)
	if err != nil {
		return err
	}
	if len(rebuilt) != len(order) {
		return fmt.Errorf("rebuilt history has %d values, delivery order %d", len(rebuilt), len(order))
	}
	for i, p := range programs {
		if err := chain.Respects(order, p); err != nil {
			return fmt.Errorf("writer %d: %w", i, err)
		}
	}
	if last := order[len(order)-1]; last != final {
		return fmt.Errorf("last notification %d, cell holds %d", last, final)
	}
	return nil
}

func renderStress(w io.Writer, r stressReport) {
	rate := float64(r.writes) / r.duration.Seconds()

	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"observer", "queue", "notifications", "history"})
	for _, o := range r.observers {
		status := "ok"
		if o.err != nil {
			status = o.err.Error()
		}
		table.Append([]string{
			o.name,
			o.queue,
			humanize.Comma(int64(o.notifications)),
			status,
		})
	}
	table.SetFooter([]string{
		"writes " + humanize.Comma(int64(r.writes)),
		r.duration.Round(time.Millisecond).String(),
		humanize.Comma(int64(rate)) + "/s",
		"",
	})
	table.Render()

	renderMetrics(w, r.registry)
}

func renderMetrics(w io.Writer, reg *prometheus.Registry) {
	families, err := reg.Gather()
	if err != nil {
		log.Printf("gather metrics: %v", err)
		return
	}

	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"metric", "labels", "value"})
	var rows [][]string
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			labels := make([]string, 0, len(m.GetLabel()))
			for _, lp := range m.GetLabel() {
				labels = append(labels, lp.GetName()+"="+lp.GetValue())
			}
			var value float64
			switch {
			case m.Counter != nil:
				value = m.GetCounter().GetValue()
			case m.Gauge != nil:
				value = m.GetGauge().GetValue()
			default:
				continue
			}
			rows = append(rows, []string{
				mf.GetName(),
				strings.Join(labels, ","),
				humanize.Commaf(value),
			})
		}
	}
	sort.SliceStable(rows, func(i, j int) bool { return rows[i][0] < rows[j][0] })
	table.AppendBulk(rows)
	table.Render()
}
