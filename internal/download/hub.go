package download

import (
	"context"
	"sync"

	"github.com/ytget/media-taskd/internal/logger"
	"github.com/ytget/media-taskd/internal/model"
)

// Hub fans task snapshots out to subscribers. Every subscriber owns an
// unbounded mailbox drained by its own goroutine, so Publish never blocks
// on a callback and each subscriber sees snapshots in publish order.
type Hub struct {
	mu     sync.Mutex
	subs   map[uint64]*subscriber
	nextID uint64
	closed bool
	log    *logger.Logger
}

type subscriber struct {
	id       uint64
	callback func([]model.DownloadTask)

	mu     sync.Mutex
	queue  [][]model.DownloadTask
	signal chan struct{}
	quit   chan struct{}
	done   chan struct{}
	once   sync.Once
}

// NewHub creates an empty hub
func NewHub(log *logger.Logger) *Hub {
	if log == nil {
		log = logger.NewNop()
	}
	return &Hub{
		subs: make(map[uint64]*subscriber),
		log:  log,
	}
}

// Subscribe registers callback and returns a function removing it. The
// unsubscribe function is safe to call more than once and from inside the
// callback itself.
func (h *Hub) Subscribe(callback func([]model.DownloadTask)) func() {
	return h.subscribe(callback, nil)
}

// subscribe registers callback with an optional first snapshot queued
// ahead of any later publish.
func (h *Hub) subscribe(callback func([]model.DownloadTask), initial []model.DownloadTask) func() {
	h.mu.Lock()
	defer h.mu.Unlock()

	sub := &subscriber{
		callback: callback,
		signal:   make(chan struct{}, 1),
		quit:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	if h.closed {
		close(sub.done)
		return func() {}
	}

	h.nextID++
	sub.id = h.nextID
	h.subs[sub.id] = sub
	if initial != nil {
		sub.enqueue(initial)
	}
	go h.drain(sub)

	return func() {
		h.mu.Lock()
		delete(h.subs, sub.id)
		h.mu.Unlock()
		sub.stop()
	}
}

// Publish queues snapshot for every subscriber
func (h *Hub) Publish(snapshot []model.DownloadTask) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}
	if snapshot == nil {
		snapshot = []model.DownloadTask{}
	}
	for _, sub := range h.subs {
		sub.enqueue(snapshot)
	}
}

// Len returns the number of active subscribers
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Close stops accepting publishes and waits for every mailbox to drain
func (h *Hub) Close(ctx context.Context) error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	subs := make([]*subscriber, 0, len(h.subs))
	for _, sub := range h.subs {
		subs = append(subs, sub)
	}
	h.subs = make(map[uint64]*subscriber)
	h.mu.Unlock()

	for _, sub := range subs {
		sub.finish()
	}
	for _, sub := range subs {
		select {
		case <-sub.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (s *subscriber) enqueue(snapshot []model.DownloadTask) {
	s.mu.Lock()
	s.queue = append(s.queue, snapshot)
	s.mu.Unlock()

	select {
	case s.signal <- struct{}{}:
	default:
	}
}

// stop drops whatever is still queued
func (s *subscriber) stop() {
	s.once.Do(func() { close(s.quit) })
}

// finish delivers what is queued, then stops
func (s *subscriber) finish() {
	s.mu.Lock()
	s.queue = append(s.queue, nil)
	s.mu.Unlock()

	select {
	case s.signal <- struct{}{}:
	default:
	}
}

func (h *Hub) drain(sub *subscriber) {
	defer close(sub.done)

	for {
		select {
		case <-sub.quit:
			return
		case <-sub.signal:
		}

		for {
			sub.mu.Lock()
			if len(sub.queue) == 0 {
				sub.mu.Unlock()
				break
			}
			next := sub.queue[0]
			sub.queue[0] = nil
			sub.queue = sub.queue[1:]
			sub.mu.Unlock()

			// nil marks the end of the mailbox after Close
			if next == nil {
				return
			}

			select {
			case <-sub.quit:
				return
			default:
			}
			h.deliver(sub, next)
		}
	}
}

func (h *Hub) deliver(sub *subscriber, snapshot []model.DownloadTask) {
	defer func() {
		if r := recover(); r != nil {
			h.log.Errorw("hub_subscriber_panic", "subscriber", sub.id, "panic", r)
		}
	}()

	tasks := make([]model.DownloadTask, len(snapshot))
	copy(tasks, snapshot)
	sub.callback(tasks)
}
