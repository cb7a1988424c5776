package config

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	log "github.com/sirupsen/logrus"
)

// DefaultDebounce is the quiet period after the last file event before the
// configuration is reloaded.
const DefaultDebounce = 200 * time.Millisecond

// Watcher reloads the configuration file when it changes on disk.
type Watcher struct {
	path     string
	debounce time.Duration
	onChange func(*Config)

	mu    sync.Mutex
	timer *time.Timer
}

// NewWatcher returns a watcher for path. onChange receives every successfully
// loaded configuration; invalid files are logged and ignored so the previous
// configuration stays in effect.
func NewWatcher(path string, debounce time.Duration, onChange func(*Config)) *Watcher {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &Watcher{path: path, debounce: debounce, onChange: onChange}
}

// Run watches until ctx is cancelled. The parent directory is watched rather
// than the file itself so editors that replace the file are followed.
func (w *Watcher) Run(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("config watcher: create: %w", err)
	}
	defer func() { _ = fsw.Close() }()

	absPath, err := filepath.Abs(w.path)
	if err != nil {
		return fmt.Errorf("config watcher: resolve %s: %w", w.path, err)
	}
	if err := fsw.Add(filepath.Dir(absPath)); err != nil {
		return fmt.Errorf("config watcher: watch %s: %w", filepath.Dir(absPath), err)
	}
	log.Infof("config watcher: watching %s", absPath)

	for {
		select {
		case <-ctx.Done():
			w.stopTimer()
			return nil
		case event, ok := <-fsw.Events:
			if !ok {
				return fmt.Errorf("config watcher: event channel closed")
			}
			if filepath.Clean(event.Name) != absPath {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			log.Debugf("config watcher: %s %s", event.Op, event.Name)
			w.schedule()
		case err, ok := <-fsw.Errors:
			if !ok {
				return fmt.Errorf("config watcher: error channel closed")
			}
			log.Warnf("config watcher: %v", err)
		}
	}
}

func (w *Watcher) schedule() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, w.reload)
}

func (w *Watcher) stopTimer() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
}

func (w *Watcher) reload() {
	cfg, err := LoadConfig(w.path)
	if err != nil {
		log.Errorf("config watcher: reload failed, keeping previous configuration: %v", err)
		return
	}
	log.Infof("config watcher: reloaded %s", w.path)
	if w.onChange != nil {
		w.onChange(cfg)
	}
}
