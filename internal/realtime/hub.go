package realtime

import (
	"errors"
	"sync"

	"github.com/rs/zerolog"
)

// ErrConnectionDropped closes a subscriber whose send queue overflowed. It is
// never returned to the publisher.
var ErrConnectionDropped = errors.New("connection dropped: send queue full")

// Subscriber is anything that can receive events from the hub.
type Subscriber interface {
	ID() string
	Accepts(topic string) bool
	// Offer enqueues ev without blocking and reports whether it fit.
	Offer(ev Event) bool
	Close(reason error)
}

// Hub fans events out to subscribers. Publish never blocks on a slow client:
// a subscriber whose queue is full is dropped.
type Hub struct {
	mu   sync.RWMutex
	subs map[string]Subscriber
	log  zerolog.Logger
}

func NewHub(log zerolog.Logger) *Hub {
	return &Hub{
		subs: make(map[string]Subscriber),
		log:  log.With().Str("component", "realtime").Logger(),
	}
}

func (h *Hub) Register(s Subscriber) {
	h.mu.Lock()
	h.subs[s.ID()] = s
	n := len(h.subs)
	h.mu.Unlock()
	subscribersGauge.Set(float64(n))
	h.log.Debug().Str("subscriber_id", s.ID()).Int("subscribers", n).Msg("subscriber registered")
}

// Unregister removes a subscriber without closing it.
func (h *Hub) Unregister(id string) {
	h.mu.Lock()
	delete(h.subs, id)
	n := len(h.subs)
	h.mu.Unlock()
	subscribersGauge.Set(float64(n))
}

// Count is the number of registered subscribers.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Publish delivers ev once to every subscriber that accepts any of topics and
// returns how many received it. When topics is empty ev.Topic is used.
func (h *Hub) Publish(ev Event, topics ...string) int {
	if len(topics) == 0 {
		topics = []string{ev.Topic}
	}

	var (
		delivered int
		dropped   []Subscriber
	)
	h.mu.RLock()
	for _, s := range h.subs {
		if !acceptsAny(s, topics) {
			continue
		}
		if s.Offer(ev) {
			delivered++
			continue
		}
		dropped = append(dropped, s)
	}
	h.mu.RUnlock()

	eventsPublishedTotal.WithLabelValues(string(ev.Type)).Inc()
	for _, s := range dropped {
		h.Unregister(s.ID())
		s.Close(ErrConnectionDropped)
		connectionsDroppedTotal.Inc()
		h.log.Warn().Err(ErrConnectionDropped).Str("subscriber_id", s.ID()).Str("event", string(ev.Type)).Msg("slow subscriber dropped")
	}
	return delivered
}

// CloseAll closes every subscriber, for shutdown.
func (h *Hub) CloseAll(reason error) {
	h.mu.Lock()
	subs := h.subs
	h.subs = make(map[string]Subscriber)
	h.mu.Unlock()
	for _, s := range subs {
		s.Close(reason)
	}
	subscribersGauge.Set(0)
}

func acceptsAny(s Subscriber, topics []string) bool {
	for _, t := range topics {
		if s.Accepts(t) {
			return true
		}
	}
	return false
}
