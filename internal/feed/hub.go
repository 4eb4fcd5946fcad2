// Package feed fans committed ledger events out to in-process listeners and
// websocket clients.
package feed

import (
	"sync"

	evbus "github.com/asaskevich/EventBus"
	"go.uber.org/zap"

	"karmastakes.app/stakes/internal/types"
)

const topicLedgerEvent = "ledger:event"

// DefaultBuffer is the channel capacity of a subscription.
const DefaultBuffer = 256

// Hub publishes committed events on an event bus. Callback handlers attach
// to the bus directly; channel subscribers share one bus handler.
type Hub struct {
	bus evbus.Bus
	log *zap.Logger

	mu   sync.RWMutex
	subs map[*Subscription]struct{}
}

// Subscription receives events on C until it is closed or falls behind.
type Subscription struct {
	C <-chan types.Event

	ch     chan types.Event
	hub    *Hub
	once   sync.Once
	lagged bool
}

// NewHub creates a hub with its own bus.
func NewHub(log *zap.Logger) *Hub {
	if log == nil {
		log = zap.NewNop()
	}
	h := &Hub{
		bus:  evbus.New(),
		log:  log.Named("feed"),
		subs: make(map[*Subscription]struct{}),
	}
	if err := h.bus.Subscribe(topicLedgerEvent, h.fanOut); err != nil {
		h.log.Error("attach fan-out", zap.Error(err))
	}
	return h
}

// Publish delivers events in order. It matches the ledger OnCommit hook.
func (h *Hub) Publish(events []types.Event) {
	for _, ev := range events {
		h.bus.Publish(topicLedgerEvent, ev)
	}
}

// OnEvent calls fn for every published event, synchronously.
func (h *Hub) OnEvent(fn func(types.Event)) error {
	return h.bus.Subscribe(topicLedgerEvent, fn)
}

// Subscribe returns a channel subscription with room for buffer events. A
// subscriber that lets its buffer fill is dropped and its channel closed.
func (h *Hub) Subscribe(buffer int) *Subscription {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	ch := make(chan types.Event, buffer)
	sub := &Subscription{C: ch, ch: ch, hub: h}
	h.mu.Lock()
	h.subs[sub] = struct{}{}
	h.mu.Unlock()
	return sub
}

// Subscribers is the number of open channel subscriptions.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

func (h *Hub) fanOut(ev types.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for sub := range h.subs {
		select {
		case sub.ch <- ev:
		default:
			sub.lagged = true
			delete(h.subs, sub)
			sub.once.Do(func() { close(sub.ch) })
			h.log.Warn("dropped lagging subscriber", zap.Uint64("seq", ev.Seq))
		}
	}
}

// Close detaches the subscription and closes C.
func (s *Subscription) Close() {
	s.hub.mu.Lock()
	delete(s.hub.subs, s)
	s.hub.mu.Unlock()
	s.once.Do(func() { close(s.ch) })
}

// Lagged reports whether the hub dropped this subscription for falling
// behind.
func (s *Subscription) Lagged() bool {
	s.hub.mu.RLock()
	defer s.hub.mu.RUnlock()
	return s.lagged
}
