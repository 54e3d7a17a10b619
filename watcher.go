package rconkit

import (
	"fmt"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// AllowListWatcher reloads an AllowList whenever its backing file is written,
// created or replaced. The parent directory is watched so editors that save by
// rename are picked up too.
type AllowListWatcher struct {
	list     *AllowList
	path     string
	watcher  *fsnotify.Watcher
	log      *zap.SugaredLogger
	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
	onReload func(err error)
}

// WatchAllowList starts watching path and refreshing list on change.
// onReload, if non-nil, is called after every reload attempt.
func WatchAllowList(list *AllowList, path string, log *zap.SugaredLogger, onReload func(err error)) (*AllowListWatcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve allow-list path: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, NewRconError(KindResource, "watch", "failed to create watcher", err)
	}
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		watcher.Close()
		return nil, NewRconError(KindResource, "watch", "failed to watch "+filepath.Dir(abs), err)
	}

	w := &AllowListWatcher{
		list:     list,
		path:     abs,
		watcher:  watcher,
		log:      orNop(log),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
		onReload: onReload,
	}
	go w.run()
	return w, nil
}

func (w *AllowListWatcher) run() {
	defer close(w.done)
	for {
		select {
		case <-w.stop:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) && !event.Has(fsnotify.Remove) {
				continue
			}
			err := w.list.Refresh(w.path)
			if err != nil {
				w.log.Warnw("allow-list reload failed", "path", w.path, "error", err)
			}
			if w.onReload != nil {
				w.onReload(err)
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.log.Errorw("allow-list watcher error", "error", err)
		}
	}
}

// Close stops the watcher and waits for its goroutine to exit.
func (w *AllowListWatcher) Close() error {
	var err error
	w.stopOnce.Do(func() {
		close(w.stop)
		err = w.watcher.Close()
		<-w.done
	})
	return err
}
