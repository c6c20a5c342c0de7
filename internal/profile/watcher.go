package profile

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Store holds the active profile. Readers never block on reloads.
type Store struct {
	current atomic.Pointer[Profile]
}

// NewStore returns a store holding p
func NewStore(p *Profile) *Store {
	s := &Store{}
	s.current.Store(p)
	return s
}

// Current returns the active profile. Callers must not modify it.
func (s *Store) Current() *Profile {
	return s.current.Load()
}

// Set replaces the active profile
func (s *Store) Set(p *Profile) {
	s.current.Store(p)
}

// ReloadCallback is called after a reload attempt; err is nil on success
type ReloadCallback func(p *Profile, err error)

// Watcher reloads a profile file into a Store when it changes
type Watcher struct {
	watcher  *fsnotify.Watcher
	store    *Store
	path     string
	callback ReloadCallback
	logger   *slog.Logger
	debounce time.Duration

	timer *time.Timer
	mu    sync.Mutex

	cancel context.CancelFunc
	done   chan struct{}
}

// NewWatcher watches path. The parent directory is watched rather than the
// file so editors that replace the file on save are picked up.
func NewWatcher(path string, store *Store, callback ReloadCallback) (*Watcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		watcher.Close()
		return nil, err
	}
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		watcher.Close()
		return nil, err
	}

	return &Watcher{
		watcher:  watcher,
		store:    store,
		path:     abs,
		callback: callback,
		logger:   slog.Default(),
		debounce: 250 * time.Millisecond,
		done:     make(chan struct{}),
	}, nil
}

// SetDebounce sets how long bursts of writes are batched before a reload
func (w *Watcher) SetDebounce(d time.Duration) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.debounce = d
}

// SetLogger replaces the diagnostic logger
func (w *Watcher) SetLogger(l *slog.Logger) {
	w.logger = l
}

// Run watches until ctx is done
func (w *Watcher) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	w.mu.Lock()
	w.cancel = cancel
	w.mu.Unlock()
	defer close(w.done)
	defer w.watcher.Close()

	for {
		select {
		case <-ctx.Done():
			w.mu.Lock()
			if w.timer != nil {
				w.timer.Stop()
			}
			w.mu.Unlock()
			return nil
		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			w.handleEvent(event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("profile watcher error", "error", err)
		}
	}
}

// Stop ends Run and waits for it to return
func (w *Watcher) Stop() {
	w.mu.Lock()
	cancel := w.cancel
	w.mu.Unlock()
	if cancel == nil {
		w.watcher.Close()
		return
	}
	cancel()
	<-w.done
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if filepath.Clean(event.Name) != w.path {
		return
	}
	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, w.reload)
}

// reload keeps the previous profile when the file does not parse
func (w *Watcher) reload() {
	p, err := Load(w.path)
	if err != nil {
		w.logger.Warn("profile reload failed, keeping previous", "path", w.path, "error", err)
	} else {
		w.store.Set(p)
		w.logger.Info("profile reloaded", "path", w.path, "name", p.Name)
	}
	if w.callback != nil {
		w.callback(p, err)
	}
}
