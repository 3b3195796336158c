package resolution

import (
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// SaveWatcher watches saved documents for writes and emits the path once a
// write burst settles. Editors write container files in several bursts and
// may briefly hold a lock afterwards, so events are debounced and the
// caller re-reads with bounded retries.
type SaveWatcher struct {
	fsWatcher *fsnotify.Watcher
	debounce  time.Duration

	mu      sync.Mutex
	watched map[string]bool      // absolute document paths
	pending map[string]time.Time // path -> last write seen

	events chan string
	errors chan error

	done chan struct{}
	wg   sync.WaitGroup
}

// NewSaveWatcher creates a watcher; Start must be called before Watch.
func NewSaveWatcher(debounce time.Duration) (*SaveWatcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if debounce <= 0 {
		debounce = 500 * time.Millisecond
	}
	return &SaveWatcher{
		fsWatcher: fsw,
		debounce:  debounce,
		watched:   make(map[string]bool),
		pending:   make(map[string]time.Time),
		events:    make(chan string, 16),
		errors:    make(chan error, 4),
		done:      make(chan struct{}),
	}, nil
}

// Events returns the channel of settled save paths.
func (w *SaveWatcher) Events() <-chan string {
	return w.events
}

// Errors returns the channel of watcher errors.
func (w *SaveWatcher) Errors() <-chan error {
	return w.errors
}

// Start begins the event and debounce loops.
func (w *SaveWatcher) Start() {
	w.wg.Add(2)
	go w.eventLoop()
	go w.debounceLoop()
}

// Watch adds a document file. The containing directory is watched because
// editors replace the file on save rather than writing in place.
func (w *SaveWatcher) Watch(path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}

	w.mu.Lock()
	already := w.watched[abs]
	w.watched[abs] = true
	w.mu.Unlock()
	if already {
		return nil
	}
	return w.fsWatcher.Add(filepath.Dir(abs))
}

// Unwatch stops watching a document (the window closed).
func (w *SaveWatcher) Unwatch(path string) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return
	}
	w.mu.Lock()
	delete(w.watched, abs)
	delete(w.pending, abs)
	w.mu.Unlock()
}

// Close stops the watcher.
func (w *SaveWatcher) Close() error {
	close(w.done)
	err := w.fsWatcher.Close()
	w.wg.Wait()
	return err
}

func (w *SaveWatcher) eventLoop() {
	defer w.wg.Done()

	for {
		select {
		case <-w.done:
			return
		case ev, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			abs, err := filepath.Abs(ev.Name)
			if err != nil {
				continue
			}
			w.mu.Lock()
			if w.watched[abs] {
				w.pending[abs] = time.Now()
			}
			w.mu.Unlock()
		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			select {
			case w.errors <- err:
			default:
			}
		}
	}
}

func (w *SaveWatcher) debounceLoop() {
	defer w.wg.Done()

	interval := w.debounce / 4
	if interval < 10*time.Millisecond {
		interval = 10 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-w.done:
			return
		case now := <-ticker.C:
			w.flushSettled(now)
		}
	}
}

// flushSettled emits paths whose last write is older than the debounce.
func (w *SaveWatcher) flushSettled(now time.Time) {
	threshold := now.Add(-w.debounce)

	w.mu.Lock()
	var settled []string
	for path, last := range w.pending {
		if last.Before(threshold) {
			settled = append(settled, path)
		}
	}
	for _, path := range settled {
		delete(w.pending, path)
	}
	w.mu.Unlock()

	for _, path := range settled {
		select {
		case w.events <- path:
		default:
			// Channel full; the save will be picked up again on the next
			// write. Dropping here is safer than blocking the loop.
		}
	}
}
