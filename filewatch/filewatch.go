// Package filewatch exposes the decoded contents of a file as an observable
// value. The file is only watched while somebody observes it.
package filewatch

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/roberthein/Observable/dispatch"
	"github.com/roberthein/Observable/observable"
	"gopkg.in/yaml.v3"
)

// ErrClosed is returned by Observe after Close.
var ErrClosed = errors.New("filewatch: closed")

// Decoder turns the raw contents of the file into a value.
type Decoder[T any] func([]byte) (T, error)

// Bytes passes the contents through.
func Bytes(data []byte) ([]byte, error) {
	return data, nil
}

// YAML decodes the contents into a T.
func YAML[T any](data []byte) (T, error) {
	var v T
	if err := yaml.Unmarshal(data, &v); err != nil {
		return v, fmt.Errorf("decode yaml: %w", err)
	}
	return v, nil
}

type config struct {
	logger  *slog.Logger
	cellOps []observable.Option
}

type Option func(*config)

func WithLogger(logger *slog.Logger) Option {
	return func(c *config) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithCellOptions passes options such as observable.WithName or
// observable.WithRecorder to the underlying cell.
func WithCellOptions(opts ...observable.Option) Option {
	return func(c *config) {
		c.cellOps = append(c.cellOps, opts...)
	}
}

// File is the last successfully decoded contents of one file.
//
// The first Observe starts an fsnotify watcher on the file's directory and
// loads the file. When the last subscription is disposed the watcher stops.
// Contents that fail to decode are logged and skipped, so observers keep
// the last good value.
//
// An empty file is taken to be a write in progress and is never decoded or
// published, even if the decoder would accept it. Observers keep the last
// good value, or hear nothing if there never was one.
type File[T any] struct {
	path    string
	decode  Decoder[T]
	logger  *slog.Logger
	subject *observable.Subject[T]

	mu      sync.Mutex
	active  int
	closed  bool
	last    []byte
	stop    chan struct{}
	done    chan struct{}
	reloads sync.Mutex
}

func New[T any](path string, decode Decoder[T], opts ...Option) *File[T] {
	cfg := config{logger: slog.Default()}
	for _, opt := range opts {
		opt(&cfg)
	}
	f := &File[T]{
		path:   filepath.Clean(path),
		decode: decode,
		logger: cfg.logger,
	}
	cellOps := append([]observable.Option{observable.WithLogger(cfg.logger)}, cfg.cellOps...)
	cellOps = append(cellOps, observable.WithOnDispose(f.release))
	f.subject = observable.NewSubject[T](cellOps...)
	return f
}

func (f *File[T]) Path() string {
	return f.path
}

// Value returns the last decoded contents, or observable.ErrNoValueYet if
// the file has never been loaded.
func (f *File[T]) Value() (T, error) {
	return f.subject.Value()
}

// Watching reports whether the fsnotify watcher is running.
func (f *File[T]) Watching() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stop != nil
}

// Observe subscribes fn and makes sure the file is being watched. fn hears
// nothing until the file has been decoded once.
func (f *File[T]) Observe(q dispatch.Queue, fn observable.Observer[T]) (*observable.Disposable, error) {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return nil, ErrClosed
	}
	if f.stop == nil {
		if err := f.startLocked(); err != nil {
			f.mu.Unlock()
			return nil, err
		}
	}
	f.active++
	f.mu.Unlock()

	return f.subject.Observe(q, fn), nil
}

// Reload reads and decodes the file now. Unchanged and empty contents are
// not published.
func (f *File[T]) Reload() error {
	f.reloads.Lock()
	defer f.reloads.Unlock()

	data, err := os.ReadFile(f.path)
	if err != nil {
		return fmt.Errorf("read %s: %w", f.path, err)
	}
	if len(data) == 0 {
		// Truncated by a writer that has not finished yet.
		return nil
	}

	f.mu.Lock()
	unchanged := f.last != nil && bytes.Equal(f.last, data)
	f.mu.Unlock()
	if unchanged {
		return nil
	}

	v, err := f.decode(data)
	if err != nil {
		return fmt.Errorf("%s: %w", f.path, err)
	}

	f.mu.Lock()
	f.last = data
	f.mu.Unlock()
	f.subject.Update(v)
	return nil
}

// Close stops the watcher, waits for it to exit and drops every observer.
func (f *File[T]) Close() error {
	f.mu.Lock()
	f.closed = true
	done := f.stopLocked()
	f.mu.Unlock()

	if done != nil {
		<-done
	}
	f.subject.RemoveAllObservers()
	return nil
}

func (f *File[T]) startLocked() error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("filewatch: %w", err)
	}
	// Watch the directory: a file replaced by rename loses its own watch.
	if err := w.Add(filepath.Dir(f.path)); err != nil {
		w.Close()
		return fmt.Errorf("filewatch: watch %s: %w", filepath.Dir(f.path), err)
	}

	f.stop = make(chan struct{})
	f.done = make(chan struct{})
	go f.loop(w, f.stop, f.done)

	go f.reload()
	return nil
}

func (f *File[T]) stopLocked() chan struct{} {
	if f.stop == nil {
		return nil
	}
	close(f.stop)
	done := f.done
	f.stop, f.done = nil, nil
	return done
}

// release runs on every disposal. It must not wait for the loop, since it
// may be called from an observer running on the loop goroutine.
func (f *File[T]) release() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.active > 0 {
		f.active--
	}
	if f.active == 0 {
		f.stopLocked()
	}
}

func (f *File[T]) loop(w *fsnotify.Watcher, stop, done chan struct{}) {
	defer close(done)
	defer w.Close()
	for {
		select {
		case <-stop:
			return
		case evt, ok := <-w.Events:
			if !ok {
				return
			}
			if filepath.Clean(evt.Name) != f.path {
				continue
			}
			if evt.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) != 0 {
				f.reload()
			}
		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			f.logger.Warn("filewatch: watcher error", "path", f.path, "error", err)
		}
	}
}

func (f *File[T]) reload() {
	if err := f.Reload(); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			f.logger.Debug("filewatch: file missing", "path", f.path)
			return
		}
		f.logger.Warn("filewatch: keeping last value", "path", f.path, "error", err)
	}
}
