package app

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/kilianp07/induction/infra/logger"
)

const watchDebounce = 200 * time.Millisecond

// storeWatcher reloads the fleet snapshot when its file changes. The parent
// directory is watched so editors that replace the file by rename are seen.
type storeWatcher struct {
	path     string
	watcher  *fsnotify.Watcher
	reload   func() error
	debounce time.Duration
	log      logger.Logger
}

func newStoreWatcher(path string, reload func() error, log logger.Logger) (*storeWatcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := w.Add(filepath.Dir(abs)); err != nil {
		_ = w.Close()
		return nil, err
	}
	return &storeWatcher{path: abs, watcher: w, reload: reload, debounce: watchDebounce, log: log}, nil
}

// Run dispatches debounced reloads until ctx is canceled, then closes the
// watcher.
func (w *storeWatcher) Run(ctx context.Context) {
	defer func() { _ = w.watcher.Close() }()
	var timer *time.Timer
	var fire <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !w.relevant(ev) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
				fire = timer.C
			} else {
				timer.Reset(w.debounce)
			}
		case <-fire:
			timer, fire = nil, nil
			if err := w.reload(); err != nil {
				w.log.Errorf("reload fleet snapshot: %v", err)
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.log.Warnf("fleet snapshot watcher: %v", err)
		}
	}
}

func (w *storeWatcher) relevant(ev fsnotify.Event) bool {
	if filepath.Clean(ev.Name) != w.path {
		return false
	}
	return ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) || ev.Has(fsnotify.Rename)
}
