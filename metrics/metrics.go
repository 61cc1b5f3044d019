// Package metrics exports cell and queue activity to Prometheus.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Config configures a Collector.
type Config struct {
	// Namespace is the metrics namespace (default: "observable").
	Namespace string

	// Subsystem is the metrics subsystem (default: "").
	Subsystem string

	// ConstLabels are added to every metric.
	ConstLabels prometheus.Labels

	// Registry defaults to prometheus.DefaultRegisterer.
	Registry prometheus.Registerer
}

type Option func(*Config)

func WithNamespace(namespace string) Option {
	return func(c *Config) {
		c.Namespace = namespace
	}
}

func WithSubsystem(subsystem string) Option {
	return func(c *Config) {
		c.Subsystem = subsystem
	}
}

func WithConstLabels(labels prometheus.Labels) Option {
	return func(c *Config) {
		c.ConstLabels = labels
	}
}

func WithRegistry(registry prometheus.Registerer) Option {
	return func(c *Config) {
		c.Registry = registry
	}
}

func defaultConfig() Config {
	return Config{
		Namespace: "observable",
		Registry:  prometheus.DefaultRegisterer,
	}
}

// Collector implements observable.Recorder. Pass it to cells with
// observable.WithRecorder; cells are told apart by observable.WithName.
type Collector struct {
	cfg     Config
	factory promauto.Factory

	observers  *prometheus.GaugeVec
	subscribes *prometheus.CounterVec
	writes     *prometheus.CounterVec
	deliveries *prometheus.CounterVec
	cleared    *prometheus.CounterVec
}

// New registers the collector's metrics. It panics if they are already
// registered with the chosen registry, like promauto.
func New(opts ...Option) *Collector {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	factory := promauto.With(cfg.Registry)

	return &Collector{
		cfg:     cfg,
		factory: factory,

		observers: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace:   cfg.Namespace,
			Subsystem:   cfg.Subsystem,
			Name:        "observers",
			Help:        "Subscriptions currently registered on a cell",
			ConstLabels: cfg.ConstLabels,
		}, []string{"cell"}),

		subscribes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   cfg.Namespace,
			Subsystem:   cfg.Subsystem,
			Name:        "subscriptions_total",
			Help:        "Total number of Observe calls on a cell",
			ConstLabels: cfg.ConstLabels,
		}, []string{"cell"}),

		writes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   cfg.Namespace,
			Subsystem:   cfg.Subsystem,
			Name:        "writes_total",
			Help:        "Total number of values written to a cell",
			ConstLabels: cfg.ConstLabels,
		}, []string{"cell"}),

		deliveries: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   cfg.Namespace,
			Subsystem:   cfg.Subsystem,
			Name:        "deliveries_total",
			Help:        "Total number of notifications handed to observers",
			ConstLabels: cfg.ConstLabels,
		}, []string{"cell", "mode"}),

		cleared: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   cfg.Namespace,
			Subsystem:   cfg.Subsystem,
			Name:        "cleared_observers_total",
			Help:        "Total number of subscriptions dropped by RemoveAllObservers",
			ConstLabels: cfg.ConstLabels,
		}, []string{"cell"}),
	}
}

func (c *Collector) Observed(cell string) {
	c.observers.WithLabelValues(cell).Inc()
	c.subscribes.WithLabelValues(cell).Inc()
}

func (c *Collector) Disposed(cell string) {
	c.observers.WithLabelValues(cell).Dec()
}

func (c *Collector) Cleared(cell string, n int) {
	c.observers.WithLabelValues(cell).Sub(float64(n))
	c.cleared.WithLabelValues(cell).Add(float64(n))
}

func (c *Collector) Written(cell string) {
	c.writes.WithLabelValues(cell).Inc()
}

func (c *Collector) Delivered(cell string, deferred bool) {
	mode := "inline"
	if deferred {
		mode = "deferred"
	}
	c.deliveries.WithLabelValues(cell, mode).Inc()
}

// WatchQueue exports the backlog of a dispatch queue, read through pending
// at scrape time.
//
//	collector.WatchQueue("main", dispatch.Main().Pending)
func (c *Collector) WatchQueue(label string, pending func() int) {
	labels := prometheus.Labels{"queue": label}
	for k, v := range c.cfg.ConstLabels {
		labels[k] = v
	}
	c.factory.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace:   c.cfg.Namespace,
		Subsystem:   c.cfg.Subsystem,
		Name:        "queue_pending_tasks",
		Help:        "Tasks submitted to a dispatch queue and not yet started",
		ConstLabels: labels,
	}, func() float64 {
		return float64(pending())
	})
}
