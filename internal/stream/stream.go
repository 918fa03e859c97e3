package stream

import (
	"context"
	"sync"
	"time"
)

// UpdateType distinguishes the two notifications the hub carries.
type UpdateType string

const (
	TypeSaved   UpdateType = "saved"
	TypeDeleted UpdateType = "deleted"
)

// Update describes an event save or deletion for live listeners.
type Update struct {
	Type    UpdateType `json:"type"`
	EventID string     `json:"event_id"`
	Name    string     `json:"name,omitempty"`
	At      time.Time  `json:"at"`
}

// Hub fans out updates to SSE subscribers. Publishing never blocks; a slow
// subscriber loses updates rather than stalling writers.
type Hub struct {
	mu   sync.Mutex
	subs map[chan Update]struct{}
}

// New creates an empty hub.
func New() *Hub {
	return &Hub{subs: make(map[chan Update]struct{})}
}

// Subscribe registers a listener bound to ctx; the channel closes when the
// context is done.
func (h *Hub) Subscribe(ctx context.Context) <-chan Update {
	ch := make(chan Update, 16)

	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()

	go func() {
		<-ctx.Done()
		h.mu.Lock()
		delete(h.subs, ch)
		h.mu.Unlock()
		close(ch)
	}()

	return ch
}

// Publish delivers the update to every live subscriber.
func (h *Hub) Publish(u Update) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs {
		select {
		case ch <- u:
		default:
		}
	}
}
