package credentials

import (
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

const reloadDelay = time.Millisecond * 500

// Watcher reports writes made to a credential file by other processes.
type Watcher struct {
	watcher *fsnotify.Watcher
	done    chan struct{}
}

// Watch calls callback after the file at path (or one of its SQLite
// journal siblings) changes. Bursts of events are collapsed into one call.
func Watch(path string, callback func()) (*Watcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	// SQLite replaces and journals next to the file, so watch the directory
	err = watcher.Add(filepath.Dir(path))
	if err != nil {
		watcher.Close()
		return nil, err
	}

	w := &Watcher{
		watcher: watcher,
		done:    make(chan struct{}),
	}

	reload := make(chan struct{}, 1)
	go scheduleReload(reload, w.done, callback)
	go handleWatcher(watcher, filepath.Base(path), reload)
	return w, nil
}

func (w *Watcher) Close() error {
	close(w.done)
	return w.watcher.Close()
}

func handleWatcher(watcher *fsnotify.Watcher, name string, reload chan<- struct{}) {
	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if !strings.HasPrefix(filepath.Base(event.Name), name) {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Remove) || event.Has(fsnotify.Create) {
				select {
				case reload <- struct{}{}:
				default:
				}
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			slog.Warn("credential watcher error", slog.String("error", err.Error()))
		}
	}
}

func scheduleReload(reload <-chan struct{}, done <-chan struct{}, callback func()) {
	var timer *time.Timer = nil
	var c <-chan time.Time = nil
	for {
		select {
		case <-reload:
			if timer != nil {
				timer.Reset(reloadDelay)
			} else {
				timer = time.NewTimer(reloadDelay)
				c = timer.C
			}

		case <-c:
			c = nil
			timer = nil
			callback()

		case <-done:
			if timer != nil {
				timer.Stop()
			}
			return
		}
	}
}
