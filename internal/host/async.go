package host

import (
	"log/slog"
	"sync"
)

// AsyncAnnouncer decouples announcement producers from a possibly slow
// backend. Announce enqueues and returns immediately; a single delivery
// goroutine drains the queue in order. When the queue is full the oldest
// pending entry is dropped and counted.
type AsyncAnnouncer struct {
	backend Announcer
	log     *slog.Logger

	mu      sync.Mutex
	queue   []string
	depth   int
	dropped uint64
	wake    chan struct{}
	done    chan struct{}
	closed  bool
}

// NewAsyncAnnouncer wraps backend with a queue of the given depth and
// starts the delivery goroutine. A depth of zero or less uses
// DefaultQueueDepth.
func NewAsyncAnnouncer(backend Announcer, depth int, log *slog.Logger) *AsyncAnnouncer {
	if depth <= 0 {
		depth = DefaultQueueDepth
	}
	if log == nil {
		log = slog.Default()
	}
	a := &AsyncAnnouncer{
		backend: backend,
		log:     log,
		depth:   depth,
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
	go a.deliver()
	return a
}

// Announce enqueues text for delivery. Never blocks; on a full queue the
// oldest pending announcement is discarded to make room.
func (a *AsyncAnnouncer) Announce(text string) {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return
	}
	if len(a.queue) >= a.depth {
		a.queue = a.queue[1:]
		a.dropped++
	}
	a.queue = append(a.queue, text)
	a.mu.Unlock()

	select {
	case a.wake <- struct{}{}:
	default:
	}
}

// Dropped returns how many announcements were discarded on queue overflow.
func (a *AsyncAnnouncer) Dropped() uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.dropped
}

// Close stops delivery after draining what is already queued.
func (a *AsyncAnnouncer) Close() {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return
	}
	a.closed = true
	a.mu.Unlock()

	select {
	case a.wake <- struct{}{}:
	default:
	}
	<-a.done
}

func (a *AsyncAnnouncer) deliver() {
	defer close(a.done)
	for {
		a.mu.Lock()
		batch := a.queue
		a.queue = nil
		closed := a.closed
		a.mu.Unlock()

		for _, text := range batch {
			a.backend.Announce(text)
		}

		if closed {
			// One last sweep: Announce may have raced the closed flag.
			a.mu.Lock()
			rest := a.queue
			a.queue = nil
			a.mu.Unlock()
			for _, text := range rest {
				a.backend.Announce(text)
			}
			return
		}
		<-a.wake
	}
}
