package config

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

const debounceWindow = 250 * time.Millisecond

// Watcher reloads the config file on change and hands the result to a
// callback. Events are debounced so editors that write in several
// steps trigger one reload.
type Watcher struct {
	mu       sync.Mutex
	log      *zap.Logger
	path     string
	onReload func(*Config)

	fsw     *fsnotify.Watcher
	stopCh  chan struct{}
	doneCh  chan struct{}
	running bool
}

// NewWatcher creates a stopped watcher for path.
func NewWatcher(path string, log *zap.Logger, onReload func(*Config)) *Watcher {
	if log == nil {
		log = zap.NewNop()
	}
	return &Watcher{
		log:      log.Named("config-watcher"),
		path:     path,
		onReload: onReload,
	}
}

// Start begins watching the config file's directory. Watching the
// directory instead of the file survives rename-based saves.
func (w *Watcher) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return nil
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create fs watcher: %w", err)
	}
	dir := filepath.Dir(w.path)
	if err := fsw.Add(dir); err != nil {
		fsw.Close()
		return fmt.Errorf("watch %s: %w", dir, err)
	}
	w.fsw = fsw
	w.stopCh = make(chan struct{})
	w.doneCh = make(chan struct{})
	w.running = true
	go w.run(fsw, w.stopCh, w.doneCh)
	w.log.Info("watching config", zap.String("path", w.path))
	return nil
}

// Stop halts the watcher and waits for its goroutine.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	stopCh, doneCh, fsw := w.stopCh, w.doneCh, w.fsw
	w.mu.Unlock()

	close(stopCh)
	fsw.Close()
	<-doneCh

	w.mu.Lock()
	w.running = false
	w.mu.Unlock()
}

func (w *Watcher) run(fsw *fsnotify.Watcher, stopCh <-chan struct{}, doneCh chan<- struct{}) {
	defer close(doneCh)

	var debounce *time.Timer
	var debounceCh <-chan time.Time
	target := filepath.Clean(w.path)

	for {
		select {
		case <-stopCh:
			return
		case ev, ok := <-fsw.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != target {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if debounce == nil {
				debounce = time.NewTimer(debounceWindow)
				debounceCh = debounce.C
			} else {
				if !debounce.Stop() {
					select {
					case <-debounce.C:
					default:
					}
				}
				debounce.Reset(debounceWindow)
			}
		case <-debounceCh:
			debounce = nil
			debounceCh = nil
			w.reload()
		case err, ok := <-fsw.Errors:
			if !ok {
				return
			}
			w.log.Warn("fs watcher error", zap.Error(err))
		}
	}
}

func (w *Watcher) reload() {
	cfg, err := Load(w.path)
	if err != nil {
		w.log.Warn("config reload failed", zap.Error(err))
		return
	}
	w.log.Info("config reloaded", zap.String("path", w.path))
	if w.onReload != nil {
		w.onReload(cfg)
	}
}
