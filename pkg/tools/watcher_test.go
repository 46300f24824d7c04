package tools

import (
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatcher_ReloadsOnManifestChange(t *testing.T) {
	dir := t.TempDir()
	var reloads atomic.Int32

	w, err := NewWatcher(WatcherConfig{
		Dir:      dir,
		Debounce: 20 * time.Millisecond,
		OnChange: func() error {
			reloads.Add(1)
			return nil
		},
	})
	require.NoError(t, err)
	require.NoError(t, w.Start())
	defer w.Stop()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "manifest.json"), []byte("{}"), 0o644))

	require.Eventually(t, func() bool {
		return reloads.Load() >= 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestWatcher_DebouncesBursts(t *testing.T) {
	dir := t.TempDir()
	var reloads atomic.Int32

	w, err := NewWatcher(WatcherConfig{
		Dir:      dir,
		Debounce: 100 * time.Millisecond,
		OnChange: func() error {
			reloads.Add(1)
			return nil
		},
	})
	require.NoError(t, err)
	require.NoError(t, w.Start())
	defer w.Stop()

	// A burst of writes inside one debounce window collapses to one reload.
	for i := 0; i < 5; i++ {
		require.NoError(t, os.WriteFile(filepath.Join(dir, "burst.js"), []byte("function run(args) {}"), 0o644))
		time.Sleep(5 * time.Millisecond)
	}

	require.Eventually(t, func() bool {
		return reloads.Load() >= 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, int32(1), reloads.Load())
}

func TestWatcher_IgnoresTempAndForeignFiles(t *testing.T) {
	w := &Watcher{}

	assert.False(t, w.relevant(fsnotify.Event{Name: "/store/.tmp-12345", Op: fsnotify.Create}))
	assert.False(t, w.relevant(fsnotify.Event{Name: "/store/notes.txt", Op: fsnotify.Write}))
	assert.False(t, w.relevant(fsnotify.Event{Name: "/store/double.js", Op: fsnotify.Chmod}))
	assert.True(t, w.relevant(fsnotify.Event{Name: "/store/manifest.json", Op: fsnotify.Write}))
	assert.True(t, w.relevant(fsnotify.Event{Name: "/store/double.js", Op: fsnotify.Remove}))
}

func TestWatcher_RequiresDirAndCallback(t *testing.T) {
	_, err := NewWatcher(WatcherConfig{OnChange: func() error { return nil }})
	assert.Error(t, err)

	_, err = NewWatcher(WatcherConfig{Dir: t.TempDir()})
	assert.Error(t, err)
}

func TestWatcher_StopIsIdempotent(t *testing.T) {
	w, err := NewWatcher(WatcherConfig{
		Dir:      t.TempDir(),
		OnChange: func() error { return nil },
	})
	require.NoError(t, err)
	require.NoError(t, w.Start())

	require.NoError(t, w.Stop())
	// A second Stop must not panic on the closed channel.
	w.Stop()
}