package transfer

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"
)

// Publisher delivers events to subscribers, locally or through a relay.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

// Hub fans events out to per-owner subscriptions in this process.
type Hub struct {
	mu     sync.RWMutex
	subs   map[uint64]map[*Subscription]struct{}
	buffer int
}

// Subscription receives events of one owner on C until Close.
type Subscription struct {
	C <-chan Event

	ch    chan Event
	owner uint64
	hub   *Hub
	once  sync.Once
}

func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = 32
	}
	return &Hub{subs: make(map[uint64]map[*Subscription]struct{}), buffer: buffer}
}

func (h *Hub) Subscribe(ownerID uint64) *Subscription {
	ch := make(chan Event, h.buffer)
	sub := &Subscription{C: ch, ch: ch, owner: ownerID, hub: h}
	h.mu.Lock()
	set, ok := h.subs[ownerID]
	if !ok {
		set = make(map[*Subscription]struct{})
		h.subs[ownerID] = set
	}
	set[sub] = struct{}{}
	h.mu.Unlock()
	return sub
}

// Close detaches the subscription and closes C.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.hub.mu.Lock()
		if set, ok := s.hub.subs[s.owner]; ok {
			delete(set, s)
			if len(set) == 0 {
				delete(s.hub.subs, s.owner)
			}
		}
		close(s.ch)
		s.hub.mu.Unlock()
	})
}

// Publish never blocks; a subscriber with a full buffer misses the event.
func (h *Hub) Publish(_ context.Context, ev Event) error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for sub := range h.subs[ev.OwnerID] {
		select {
		case sub.ch <- ev:
		default:
			logrus.WithFields(logrus.Fields{
				"owner_id":    ev.OwnerID,
				"transfer_id": ev.Transfer.ID,
			}).Warn("subscriber too slow, event dropped")
		}
	}
	return nil
}

// Subscribers returns the number of live subscriptions for an owner.
func (h *Hub) Subscribers(ownerID uint64) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[ownerID])
}
