package gallery

import (
	"encoding/json"
	"sync"

	"github.com/comfypanel/comfypanel/client"
)

const subscriberBuffer = 16

// Hub fans out frames to websocket subscribers. Frames for a subscriber whose buffer is
// full are dropped; gallery_updated only tells clients to re-query, so a dropped frame
// is recovered by the next one.
type Hub struct {
	mu     sync.Mutex
	subs   map[chan []byte]struct{}
	closed bool
}

func NewHub() *Hub {
	return &Hub{subs: make(map[chan []byte]struct{})}
}

// Subscribe registers a subscriber. The returned cancel func unregisters it and closes
// the channel; it is safe to call more than once.
func (h *Hub) Subscribe() (<-chan []byte, func()) {
	ch := make(chan []byte, subscriberBuffer)

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	h.subs[ch] = struct{}{}
	wsSubscribers.Inc()
	h.mu.Unlock()

	return ch, func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if _, ok := h.subs[ch]; ok {
			delete(h.subs, ch)
			wsSubscribers.Dec()
			close(ch)
		}
	}
}

// Publish sends msg to every subscriber without blocking and returns how many received it.
func (h *Hub) Publish(msg []byte) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	delivered := 0
	for ch := range h.subs {
		select {
		case ch <- msg:
			delivered++
		default:
			// drop if client not reading
		}
	}
	return delivered
}

// PublishEvent encodes ev as a stream frame and publishes it.
func (h *Hub) PublishEvent(ev client.StreamEvent) (int, error) {
	b, err := json.Marshal(ev)
	if err != nil {
		return 0, err
	}
	return h.Publish(b), nil
}

// Len returns the number of subscribers.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Close closes every subscriber channel and refuses new subscribers.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for ch := range h.subs {
		delete(h.subs, ch)
		wsSubscribers.Dec()
		close(ch)
	}
}
