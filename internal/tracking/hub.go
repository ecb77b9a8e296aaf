// Package tracking fans GPS samples out to live subscribers of a ride.
package tracking

import (
	"sync"

	"github.com/diewo77/vtc-exchange/internal/models"
)

// DefaultBuffer is the per-subscriber queue length used by the websocket stream.
const DefaultBuffer = 16

type subscriber struct {
	ch chan models.RideTracking
}

// Hub keeps the subscribers of each ride. Publishing never blocks: a
// subscriber whose queue is full misses the sample.
type Hub struct {
	mu   sync.Mutex
	subs map[uint]map[*subscriber]struct{}
}

func NewHub() *Hub {
	return &Hub{subs: make(map[uint]map[*subscriber]struct{})}
}

// Subscribe registers a subscriber for rideID. The returned cancel func
// unregisters it and closes the channel; it is safe to call more than once.
func (h *Hub) Subscribe(rideID uint, buf int) (<-chan models.RideTracking, func()) {
	if buf <= 0 {
		buf = DefaultBuffer
	}
	sub := &subscriber{ch: make(chan models.RideTracking, buf)}
	h.mu.Lock()
	set, ok := h.subs[rideID]
	if !ok {
		set = make(map[*subscriber]struct{})
		h.subs[rideID] = set
	}
	set[sub] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			if set, ok := h.subs[rideID]; ok {
				delete(set, sub)
				if len(set) == 0 {
					delete(h.subs, rideID)
				}
			}
			close(sub.ch)
		})
	}
	return sub.ch, cancel
}

// Publish delivers sample to the subscribers of its ride.
func (h *Hub) Publish(sample models.RideTracking) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for sub := range h.subs[sample.RideID] {
		select {
		case sub.ch <- sample:
		default:
		}
	}
}

// Subscribers returns the number of live subscribers of rideID.
func (h *Hub) Subscribers(rideID uint) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[rideID])
}
