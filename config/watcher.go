package config

import (
	"errors"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/dshills/agenthook/internal/log"
)

// ErrWatcherClosed is returned when closing an already-closed watcher.
var ErrWatcherClosed = errors.New("config: watcher is closed")

// DefaultDebounce coalesces bursts of file events into one notification.
const DefaultDebounce = 200 * time.Millisecond

// Watcher reports changes to a configuration file.
//
// Editors typically replace files via rename-and-write, so the watcher
// monitors the file's directory and filters events down to the one path it
// cares about. Rapid event bursts are debounced into a single callback.
type Watcher struct {
	path     string
	debounce time.Duration
	onChange func()

	fw     *fsnotify.Watcher
	done   chan struct{}
	wg     sync.WaitGroup
	closed bool
	mu     sync.Mutex
}

// NewWatcher watches the configuration file at path and calls onChange
// after modifications settle. A debounce of zero or less uses
// DefaultDebounce.
func NewWatcher(path string, debounce time.Duration, onChange func()) (*Watcher, error) {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fw.Add(filepath.Dir(path)); err != nil {
		fw.Close()
		return nil, err
	}

	w := &Watcher{
		path:     path,
		debounce: debounce,
		onChange: onChange,
		fw:       fw,
		done:     make(chan struct{}),
	}

	w.wg.Add(1)
	go w.run()
	return w, nil
}

// Close stops the watcher. Further calls return ErrWatcherClosed.
func (w *Watcher) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return ErrWatcherClosed
	}
	w.closed = true
	close(w.done)
	w.mu.Unlock()

	err := w.fw.Close()
	w.wg.Wait()
	return err
}

func (w *Watcher) run() {
	defer w.wg.Done()

	var timer *time.Timer
	var timerC <-chan time.Time

	for {
		select {
		case <-w.done:
			if timer != nil {
				timer.Stop()
			}
			return

		case ev, ok := <-w.fw.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != filepath.Clean(w.path) {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
				timerC = timer.C
			} else {
				timer.Reset(w.debounce)
			}

		case err, ok := <-w.fw.Errors:
			if !ok {
				return
			}
			log.Warn("config watcher: %v", err)

		case <-timerC:
			timer = nil
			timerC = nil
			w.onChange()
		}
	}
}
