package observable

import "log/slog"

// Recorder receives lifecycle events from cells, for metrics. Implementations
// must be safe for concurrent use and must not call back into the cell.
type Recorder interface {
	Observed(cell string)
	Disposed(cell string)
	Cleared(cell string, n int)
	Written(cell string)
	Delivered(cell string, deferred bool)
}

type nopRecorder struct{}

func (nopRecorder) Observed(string)        {}
func (nopRecorder) Disposed(string)        {}
func (nopRecorder) Cleared(string, int)    {}
func (nopRecorder) Written(string)         {}
func (nopRecorder) Delivered(string, bool) {}

type options struct {
	name      string
	onDispose func()
	logger    *slog.Logger
	recorder  Recorder
}

func defaultOptions() options {
	return options{
		logger:   slog.New(slog.DiscardHandler),
		recorder: nopRecorder{},
	}
}

// Option configures a cell at construction.
type Option func(*options)

// WithOnDispose registers fn to run each time one of the cell's
// subscriptions is disposed. Call ObserverCount from fn to find out whether
// anyone is still listening.
func WithOnDispose(fn func()) Option {
	return func(o *options) {
		o.onDispose = fn
	}
}

// WithName labels the cell in logs and metrics.
func WithName(name string) Option {
	return func(o *options) {
		o.name = name
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

func WithRecorder(r Recorder) Option {
	return func(o *options) {
		if r != nil {
			o.recorder = r
		}
	}
}
