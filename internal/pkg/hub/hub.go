package hub

import (
	"sync"
	"sync/atomic"
)

// DefaultBuffer is the per-subscriber channel capacity used when none is given
const DefaultBuffer = 64

// Hub fans events out to subscribers grouped by key. Every subscriber owns a
// bounded channel; Publish never blocks, and an event that does not fit in a
// subscriber's channel is dropped for that subscriber only and counted.
type Hub[K comparable, T any] struct {
	mu          sync.RWMutex
	buffer      int
	subscribers map[K]map[chan T]struct{}
	dropped     atomic.Int64
}

// New creates a new Hub whose subscriber channels hold buffer events
func New[K comparable, T any](buffer int) *Hub[K, T] {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &Hub[K, T]{
		buffer:      buffer,
		subscribers: make(map[K]map[chan T]struct{}),
	}
}

// Subscribe registers a new subscriber for key and returns the event channel
// and a cleanup function. Cleanup closes the channel; calling it again is a no-op.
func (h *Hub[K, T]) Subscribe(key K) (<-chan T, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	ch := make(chan T, h.buffer)

	if h.subscribers[key] == nil {
		h.subscribers[key] = make(map[chan T]struct{})
	}
	h.subscribers[key][ch] = struct{}{}

	var once sync.Once
	cleanup := func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			if _, ok := h.subscribers[key][ch]; !ok {
				return
			}
			delete(h.subscribers[key], ch)
			close(ch)
			if len(h.subscribers[key]) == 0 {
				delete(h.subscribers, key)
			}
		})
	}

	return ch, cleanup
}

// Publish sends an event to all subscribers of key and reports how many
// subscribers received it.
func (h *Hub[K, T]) Publish(key K, event T) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	delivered := 0
	for ch := range h.subscribers[key] {
		select {
		case ch <- event:
			delivered++
		default:
			h.dropped.Add(1)
		}
	}
	return delivered
}

// PublishToMany sends an event to the subscribers of several keys
func (h *Hub[K, T]) PublishToMany(keys []K, event T) {
	for _, key := range keys {
		h.Publish(key, event)
	}
}

// CloseAll closes every subscriber channel. Outstanding cleanup funcs stay safe to call.
func (h *Hub[K, T]) CloseAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for key, subs := range h.subscribers {
		for ch := range subs {
			close(ch)
		}
		delete(h.subscribers, key)
	}
}

// SubscriberCount returns the number of active subscribers for key
func (h *Hub[K, T]) SubscriberCount(key K) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return len(h.subscribers[key])
}

// TotalSubscribers returns the total number of active subscribers across all keys
func (h *Hub[K, T]) TotalSubscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	total := 0
	for _, subs := range h.subscribers {
		total += len(subs)
	}
	return total
}

// Keys returns every key with at least one subscriber
func (h *Hub[K, T]) Keys() []K {
	h.mu.RLock()
	defer h.mu.RUnlock()

	keys := make([]K, 0, len(h.subscribers))
	for key := range h.subscribers {
		keys = append(keys, key)
	}
	return keys
}

// Dropped returns how many deliveries were skipped because a subscriber was full
func (h *Hub[K, T]) Dropped() int64 {
	return h.dropped.Load()
}
