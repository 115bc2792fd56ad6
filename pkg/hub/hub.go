// Package hub fans dashboard events out to websocket clients.
//
// Membership is guarded by a mutex; a single Run goroutine drains the
// broadcast queue so publishers never wait on a slow socket.
package hub

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
)

// queueSize bounds both the broadcast queue and each client's backlog.
const queueSize = 256

// Message is one encoded text frame.
type Message struct {
	Data []byte
}

func NewJSONMessage(data []byte) Message { return Message{Data: data} }

// Event is the envelope of every dashboard frame: {"type":..., "data":...}.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

func NewEvent(eventType string, data any) (Message, error) {
	b, err := json.Marshal(Event{Type: eventType, Data: data})
	if err != nil {
		return Message{}, err
	}
	return Message{Data: b}, nil
}

// Hub is a named set of clients sharing one event stream.
type Hub struct {
	name   string
	logger *slog.Logger
	queue  chan Message

	mu      sync.RWMutex
	members map[*Client]struct{}
	closed  bool

	running atomic.Bool
}

func New(name string, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		name:    name,
		logger:  logger.With("component", "hub", "hub", name),
		queue:   make(chan Message, queueSize),
		members: make(map[*Client]struct{}),
	}
}

// Run delivers queued messages until ctx ends, then closes every client
// and refuses new ones.
func (h *Hub) Run(ctx context.Context) {
	h.running.Store(true)
	defer h.shutdown()

	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-h.queue:
			h.deliver(msg)
		}
	}
}

func (h *Hub) deliver(msg Message) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.members {
		select {
		case c.send <- msg:
		default:
			delete(h.members, c)
			close(c.send)
			h.logger.Warn("dropped slow client", "clients", len(h.members))
		}
	}
}

func (h *Hub) shutdown() {
	h.mu.Lock()
	h.closed = true
	for c := range h.members {
		delete(h.members, c)
		close(c.send)
	}
	h.mu.Unlock()
	h.running.Store(false)
}

// Broadcast queues msg for every client. A full queue drops it.
func (h *Hub) Broadcast(msg Message) {
	select {
	case h.queue <- msg:
	default:
		h.logger.Warn("broadcast queue full, dropping message")
	}
}

// BroadcastEvent encodes an Event and broadcasts it.
func (h *Hub) BroadcastEvent(eventType string, data any) error {
	msg, err := NewEvent(eventType, data)
	if err != nil {
		return err
	}
	h.Broadcast(msg)
	return nil
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.members)
}

func (h *Hub) IsRunning() bool { return h.running.Load() }

func (h *Hub) Name() string { return h.name }

// join adds c. It fails once the hub has shut down.
func (h *Hub) join(c *Client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.members[c] = struct{}{}
	h.logger.Debug("client connected", "clients", len(h.members))
	return true
}

// leave removes c and closes its queue if it is still a member.
func (h *Hub) leave(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.members[c]; !ok {
		return
	}
	delete(h.members, c)
	close(c.send)
	h.logger.Debug("client disconnected", "clients", len(h.members))
}
