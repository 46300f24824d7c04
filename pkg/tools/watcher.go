package tools

import (
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
)

// Watcher monitors the Manifest Store directory and triggers a registry
// reload when persisted manifests are edited out of band (an operator fixing
// a tool over SSH, a restored backup, another process). Events are debounced
// so a burst of writes produces a single reload.
type Watcher struct {
	watcher   *fsnotify.Watcher
	dir       string
	debounce  time.Duration
	onChange  func() error
	done      chan struct{}
	timerMu   sync.Mutex
	timer     *time.Timer
	stopOnce  sync.Once
}

// WatcherConfig holds configuration for a store watcher.
type WatcherConfig struct {
	// Dir is the Manifest Store directory to watch.
	Dir string
	// Debounce is how long to wait for the directory to settle before
	// reloading. Defaults to 500ms.
	Debounce time.Duration
	// OnChange is invoked after the debounce window, typically
	// Registry.Reload.
	OnChange func() error
}

// NewWatcher creates a store watcher.
func NewWatcher(cfg WatcherConfig) (*Watcher, error) {
	if cfg.Dir == "" {
		return nil, fmt.Errorf("watch directory is required")
	}
	if cfg.OnChange == nil {
		return nil, fmt.Errorf("onChange callback is required")
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = 500 * time.Millisecond
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	return &Watcher{
		watcher:  fsw,
		dir:      cfg.Dir,
		debounce: cfg.Debounce,
		onChange: cfg.OnChange,
		done:     make(chan struct{}),
	}, nil
}

// Start begins watching the store directory.
func (w *Watcher) Start() error {
	if err := w.watcher.Add(w.dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", w.dir, err)
	}

	go w.eventLoop()

	log.Info().Str("dir", w.dir).Msg("Manifest store watcher started")
	return nil
}

// Stop stops the watcher.
func (w *Watcher) Stop() error {
	w.stopOnce.Do(func() {
		close(w.done)
	})

	w.timerMu.Lock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timerMu.Unlock()

	if err := w.watcher.Close(); err != nil {
		return fmt.Errorf("failed to close watcher: %w", err)
	}
	log.Info().Msg("Manifest store watcher stopped")
	return nil
}

func (w *Watcher) eventLoop() {
	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if w.relevant(event) {
				w.scheduleReload()
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Warn().Err(err).Msg("Store watcher error")
		}
	}
}

// relevant filters out temp files from the store's own atomic writes.
func (w *Watcher) relevant(event fsnotify.Event) bool {
	base := filepath.Base(event.Name)
	if strings.HasPrefix(base, ".tmp-") {
		return false
	}
	if base != "manifest.json" && !strings.HasSuffix(base, ".js") {
		return false
	}
	return event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) != 0
}

func (w *Watcher) scheduleReload() {
	w.timerMu.Lock()
	defer w.timerMu.Unlock()

	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, func() {
		select {
		case <-w.done:
			return
		default:
		}
		log.Info().Msg("Store changed on disk, reloading registry")
		if err := w.onChange(); err != nil {
			log.Error().Err(err).Msg("Registry reload after store change failed")
		}
	})
}
