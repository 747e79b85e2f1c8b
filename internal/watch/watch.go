// Package watch reports catalog files appearing in watched directories.
package watch

import (
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"

	"fitsalign/internal/catalog"
)

// Event is a change to a catalog file.
type Event struct {
	Path      string    `json:"path"`
	Operation string    `json:"operation"` // "created", "modified"
	Time      time.Time `json:"time"`
	Size      int64     `json:"size"`
}

// Watcher monitors directories for new or rewritten catalog files.
type Watcher struct {
	watcher *fsnotify.Watcher
	log     *slog.Logger
	events  chan Event
	dirs    []string
	done    chan struct{}
	stop    sync.Once
	started atomic.Bool
	exited  chan struct{}
}

// New creates a watcher over dirs. Events are buffered up to buffer
// entries; further events are dropped with a warning.
func New(dirs []string, buffer int, logger *slog.Logger) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if buffer < 1 {
		buffer = 100
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{
		watcher: fw,
		log:     logger,
		events:  make(chan Event, buffer),
		dirs:    dirs,
		done:    make(chan struct{}),
		exited:  make(chan struct{}),
	}, nil
}

// Events returns the event channel. It is closed after Stop.
func (w *Watcher) Events() <-chan Event { return w.events }

// Start begins monitoring the configured directories. When a directory
// cannot be added the watcher is shut down and cannot be restarted.
func (w *Watcher) Start() error {
	for _, dir := range w.dirs {
		if err := w.watcher.Add(dir); err != nil {
			w.Stop()
			return fmt.Errorf("watch %s: %w", dir, err)
		}
		w.log.Info("watching directory", "dir", dir)
	}
	w.started.Store(true)
	go w.loop()
	return nil
}

// Stop ends monitoring and closes the event channel. It is safe to call
// without Start and more than once.
func (w *Watcher) Stop() error {
	var err error
	w.stop.Do(func() {
		close(w.done)
		err = w.watcher.Close()
		if w.started.Load() {
			<-w.exited
			return
		}
		close(w.events)
		close(w.exited)
	})
	return err
}

func (w *Watcher) loop() {
	defer close(w.exited)
	defer close(w.events)
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			ev, keep := convert(event)
			if !keep {
				continue
			}
			select {
			case w.events <- ev:
			default:
				w.log.Warn("event buffer full, dropping event", "path", ev.Path)
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.log.Error("filesystem watcher error", "error", err)

		case <-w.done:
			return
		}
	}
}

// convert maps an fsnotify event onto an Event. Only creations and writes
// of catalog files are kept.
func convert(event fsnotify.Event) (Event, bool) {
	var op string
	switch {
	case event.Op.Has(fsnotify.Create):
		op = "created"
	case event.Op.Has(fsnotify.Write):
		op = "modified"
	default:
		return Event{}, false
	}
	if !catalog.IsCatalogFile(event.Name) {
		return Event{}, false
	}
	ev := Event{Path: event.Name, Operation: op, Time: time.Now()}
	if info, err := os.Stat(event.Name); err == nil {
		if info.IsDir() {
			return Event{}, false
		}
		ev.Size = info.Size()
	}
	return ev, true
}

// Debouncer coalesces bursts of events on one path: a path is emitted once
// it has been quiet for the given delay. Catalog writers often produce a
// create followed by several writes.
type Debouncer struct {
	delay time.Duration
	mu    sync.Mutex
	timer map[string]*time.Timer
	out   chan Event
	wg    sync.WaitGroup
}

// NewDebouncer returns a debouncer emitting on a channel of size buffer.
func NewDebouncer(delay time.Duration, buffer int) *Debouncer {
	return &Debouncer{delay: delay, timer: make(map[string]*time.Timer), out: make(chan Event, buffer)}
}

// Out returns the coalesced events.
func (d *Debouncer) Out() <-chan Event { return d.out }

// Add schedules ev, replacing a pending event for the same path.
func (d *Debouncer) Add(ev Event) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if t, ok := d.timer[ev.Path]; ok && t.Stop() {
		d.wg.Done()
	}
	d.wg.Add(1)
	var t *time.Timer
	t = time.AfterFunc(d.delay, func() {
		defer d.wg.Done()
		d.mu.Lock()
		if d.timer[ev.Path] == t {
			delete(d.timer, ev.Path)
		}
		d.mu.Unlock()
		d.out <- ev
	})
	d.timer[ev.Path] = t
}

// Close waits for pending events to be emitted and closes Out.
func (d *Debouncer) Close() {
	d.wg.Wait()
	close(d.out)
}
