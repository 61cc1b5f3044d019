package filewatch_test

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/roberthein/Observable/filewatch"
	"github.com/roberthein/Observable/observable"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type settings struct {
	Name    string `yaml:"name"`
	Workers int    `yaml:"workers"`
}

type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func writeFile(t *testing.T, path, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
}

func TestFileFollowsWrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.yaml")
	writeFile(t, path, "name: first\nworkers: 2\n")

	f := filewatch.New(path, filewatch.YAML[settings])
	t.Cleanup(func() { f.Close() })

	var mu sync.Mutex
	var seen []settings
	tok, err := f.Observe(nil, func(v settings, _ *settings) {
		mu.Lock()
		seen = append(seen, v)
		mu.Unlock()
	})
	require.NoError(t, err)
	defer tok.Dispose()
	assert.True(t, f.Watching())

	last := func() settings {
		mu.Lock()
		defer mu.Unlock()
		if len(seen) == 0 {
			return settings{}
		}
		return seen[len(seen)-1]
	}

	require.Eventually(t, func() bool {
		return last() == settings{Name: "first", Workers: 2}
	}, 2*time.Second, 10*time.Millisecond)

	writeFile(t, path, "name: second\nworkers: 8\n")
	require.Eventually(t, func() bool {
		return last() == settings{Name: "second", Workers: 8}
	}, 2*time.Second, 10*time.Millisecond)

	v, err := f.Value()
	require.NoError(t, err)
	assert.Equal(t, "second", v.Name)
}

func TestFileKeepsLastGoodValue(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.yaml")
	writeFile(t, path, "name: good\n")

	logs := &lockedBuffer{}
	f := filewatch.New(path, filewatch.YAML[settings],
		filewatch.WithLogger(slog.New(slog.NewTextHandler(logs, nil))))
	t.Cleanup(func() { f.Close() })

	require.NoError(t, f.Reload())
	writeFile(t, path, "name: [unterminated\n")
	err := f.Reload()
	require.Error(t, err)
	assert.Contains(t, err.Error(), path)

	v, err := f.Value()
	require.NoError(t, err)
	assert.Equal(t, "good", v.Name)

	tok, err := f.Observe(nil, func(settings, *settings) {})
	require.NoError(t, err)
	defer tok.Dispose()
	require.Eventually(t, func() bool {
		return strings.Contains(logs.String(), "keeping last value")
	}, 2*time.Second, 10*time.Millisecond)
}

func TestEmptyFileIsNotPublished(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.yaml")
	writeFile(t, path, "")

	f := filewatch.New(path, filewatch.YAML[settings])
	t.Cleanup(func() { f.Close() })

	require.NoError(t, f.Reload())
	_, err := f.Value()
	assert.ErrorIs(t, err, observable.ErrNoValueYet)

	writeFile(t, path, "name: kept\n")
	require.NoError(t, f.Reload())
	writeFile(t, path, "")
	require.NoError(t, f.Reload())

	v, err := f.Value()
	require.NoError(t, err)
	assert.Equal(t, "kept", v.Name)
}

func TestFileStopsWatchingWhenUnobserved(t *testing.T) {
	path := filepath.Join(t.TempDir(), "raw.txt")
	writeFile(t, path, "v1")

	f := filewatch.New(path, filewatch.Bytes, filewatch.WithCellOptions(observable.WithName("raw")))
	t.Cleanup(func() { f.Close() })
	assert.False(t, f.Watching())

	a, err := f.Observe(nil, func([]byte, *[]byte) {})
	require.NoError(t, err)
	b, err := f.Observe(nil, func([]byte, *[]byte) {})
	require.NoError(t, err)

	a.Dispose()
	assert.True(t, f.Watching())
	b.Dispose()
	assert.False(t, f.Watching())

	c, err := f.Observe(nil, func([]byte, *[]byte) {})
	require.NoError(t, err)
	assert.True(t, f.Watching())
	c.Dispose()
	assert.False(t, f.Watching())
}

func TestFileDisposeFromCallback(t *testing.T) {
	path := filepath.Join(t.TempDir(), "raw.txt")
	writeFile(t, path, "v1")

	f := filewatch.New(path, filewatch.Bytes)
	t.Cleanup(func() { f.Close() })

	var tok *observable.Disposable
	var mu sync.Mutex
	fired := make(chan struct{})
	var once sync.Once
	mu.Lock()
	d, err := f.Observe(nil, func([]byte, *[]byte) {
		mu.Lock()
		self := tok
		mu.Unlock()
		self.Dispose()
		once.Do(func() { close(fired) })
	})
	tok = d
	mu.Unlock()
	require.NoError(t, err)

	select {
	case <-fired:
	case <-time.After(2 * time.Second):
		require.FailNow(t, "observer never ran")
	}
	require.Eventually(t, func() bool { return !f.Watching() }, time.Second, 10*time.Millisecond)
}

func TestFileMissingUntilCreated(t *testing.T) {
	path := filepath.Join(t.TempDir(), "later.yaml")

	f := filewatch.New(path, filewatch.YAML[settings])
	t.Cleanup(func() { f.Close() })

	got := make(chan settings, 4)
	tok, err := f.Observe(nil, func(v settings, _ *settings) { got <- v })
	require.NoError(t, err)
	defer tok.Dispose()

	_, err = f.Value()
	assert.ErrorIs(t, err, observable.ErrNoValueYet)

	writeFile(t, path, "name: created\n")
	select {
	case v := <-got:
		assert.Equal(t, "created", v.Name)
	case <-time.After(2 * time.Second):
		require.FailNow(t, "created file was not picked up")
	}
}

func TestObserveAfterClose(t *testing.T) {
	f := filewatch.New(filepath.Join(t.TempDir(), "x"), filewatch.Bytes)
	require.NoError(t, f.Close())

	_, err := f.Observe(nil, func([]byte, *[]byte) {})
	assert.ErrorIs(t, err, filewatch.ErrClosed)
}
