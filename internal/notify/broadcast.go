package notify

import (
	"sync"

	"github.com/ytget/media-taskd/internal/download"
	"github.com/ytget/media-taskd/internal/logger"
	"github.com/ytget/media-taskd/internal/model"
)

const DefaultClientBuffer = 64

// MessageType tells websocket clients how to decode a Message
type MessageType string

const (
	MessageTasks MessageType = "tasks"
	MessageEvent MessageType = "event"
)

// Message is the JSON frame pushed to websocket clients
type Message struct {
	Type  MessageType          `json:"type"`
	Tasks []model.DownloadTask `json:"tasks,omitempty"`
	Event *download.Event      `json:"event,omitempty"`
}

// Client is one registered receiver. A client that cannot keep up with its
// buffer is dropped: its channel is closed and Done fires.
type Client struct {
	id uint64
	ch chan Message

	mu     sync.Mutex
	closed bool
	done   chan struct{}
}

// C returns the message channel, closed when the client is dropped
func (c *Client) C() <-chan Message {
	return c.ch
}

// Done is closed when the client is dropped or unregistered
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Send queues m without blocking. It reports false if the client is gone.
func (c *Client) Send(m Message) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return false
	}
	select {
	case c.ch <- m:
		return true
	default:
		c.closeLocked()
		return false
	}
}

func (c *Client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeLocked()
}

func (c *Client) closeLocked() {
	if c.closed {
		return
	}
	c.closed = true
	close(c.ch)
	close(c.done)
}

// Broadcaster fans notification events out to registered clients. It
// implements download.Notifier.
type Broadcaster struct {
	mu      sync.Mutex
	clients map[uint64]*Client
	nextID  uint64
	buffer  int
	log     *logger.Logger
}

func NewBroadcaster(buffer int, log *logger.Logger) *Broadcaster {
	if buffer <= 0 {
		buffer = DefaultClientBuffer
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &Broadcaster{
		clients: make(map[uint64]*Client),
		buffer:  buffer,
		log:     log.Named("broadcast"),
	}
}

// Register adds a client
func (b *Broadcaster) Register() *Client {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	c := &Client{
		id:   b.nextID,
		ch:   make(chan Message, b.buffer),
		done: make(chan struct{}),
	}
	b.clients[c.id] = c
	b.log.Debugw("client_registered", "client", c.id, "clients", len(b.clients))
	return c
}

// Unregister removes c and closes its channel. Safe to call twice.
func (b *Broadcaster) Unregister(c *Client) {
	b.mu.Lock()
	delete(b.clients, c.id)
	remaining := len(b.clients)
	b.mu.Unlock()

	c.close()
	b.log.Debugw("client_unregistered", "client", c.id, "clients", remaining)
}

// Notify pushes e to every client
func (b *Broadcaster) Notify(e download.Event) {
	event := e
	b.broadcast(Message{Type: MessageEvent, Event: &event})
}

func (b *Broadcaster) broadcast(m Message) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for id, c := range b.clients {
		if !c.Send(m) {
			delete(b.clients, id)
			b.log.Warnw("client_dropped", "client", id, "reason", "buffer full")
		}
	}
}

// Len returns the number of registered clients
func (b *Broadcaster) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.clients)
}

// Close drops every client
func (b *Broadcaster) Close() {
	b.mu.Lock()
	clients := b.clients
	b.clients = make(map[uint64]*Client)
	b.mu.Unlock()

	for _, c := range clients {
		c.close()
	}
}
