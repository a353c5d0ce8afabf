package config

import (
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/impulse-sw/lbrp-go/internal/applog"
)

// ReloadEvent carries nothing but its occurrence; the receiver always
// re-reads the file, the same way the original watcher never ships the new
// bytes over the channel itself.
type ReloadEvent struct {
	At time.Time
}

// Watcher watches one file for modification and fans reload events out to
// every subscriber. Each subscriber gets its own buffered channel (capacity
// 16, matching the broadcast-channel contract) so a slow subscriber never
// blocks another.
type Watcher struct {
	path string
	fsw  *fsnotify.Watcher

	mu   sync.Mutex
	subs []chan ReloadEvent

	debounce time.Duration
}

// NewWatcher starts watching path for writes/creates/renames/chmods.
func NewWatcher(path string) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsw.Add(path); err != nil {
		fsw.Close()
		return nil, err
	}
	w := &Watcher{path: path, fsw: fsw, debounce: 150 * time.Millisecond}
	go w.run()
	return w, nil
}

// Subscribe returns a new channel that receives every future reload event.
func (w *Watcher) Subscribe() <-chan ReloadEvent {
	ch := make(chan ReloadEvent, 16)
	w.mu.Lock()
	w.subs = append(w.subs, ch)
	w.mu.Unlock()
	return ch
}

// Close stops the underlying filesystem watch.
func (w *Watcher) Close() error {
	return w.fsw.Close()
}

func (w *Watcher) run() {
	logger := applog.For("config.watcher")
	var pending bool
	timer := time.NewTimer(time.Hour)
	if !timer.Stop() {
		<-timer.C
	}

	for {
		select {
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Chmod) == 0 {
				continue
			}
			if !pending {
				pending = true
				timer.Reset(w.debounce)
			}
		case <-timer.C:
			pending = false
			w.publish()
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			logger.Error().Err(err).Str("path", w.path).Msg("config watcher error")
		}
	}
}

func (w *Watcher) publish() {
	evt := ReloadEvent{At: time.Now()}
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, sub := range w.subs {
		select {
		case sub <- evt:
		default:
			// Subscriber's buffer is full; it will still observe a later
			// event and re-read the file from scratch, so dropping here
			// cannot desynchronize it from the on-disk config.
		}
	}
}
