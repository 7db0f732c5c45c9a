package realtime

import "sync"

// Queue is a Subscriber backed by a bounded FIFO. The connection that owns it
// drains Events and stops when Done is closed.
type Queue struct {
	id     string
	mu     sync.Mutex
	topics map[string]struct{}
	events chan Event
	done   chan struct{}
	closed bool
	reason error
}

// NewQueue creates a queue holding at most size undelivered events.
func NewQueue(id string, size int, topics ...string) *Queue {
	if size < 1 {
		size = 1
	}
	q := &Queue{
		id:     id,
		topics: make(map[string]struct{}, len(topics)),
		events: make(chan Event, size),
		done:   make(chan struct{}),
	}
	for _, t := range topics {
		q.topics[t] = struct{}{}
	}
	return q
}

func (q *Queue) ID() string { return q.id }

func (q *Queue) Accepts(topic string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	_, ok := q.topics[topic]
	return ok
}

func (q *Queue) Offer(ev Event) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return false
	}
	select {
	case q.events <- ev:
		return true
	default:
		return false
	}
}

// Close stops the queue. Only the first reason is kept.
func (q *Queue) Close(reason error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	q.reason = reason
	close(q.done)
}

func (q *Queue) Subscribe(topic string) {
	q.mu.Lock()
	q.topics[topic] = struct{}{}
	q.mu.Unlock()
}

func (q *Queue) Unsubscribe(topic string) {
	q.mu.Lock()
	delete(q.topics, topic)
	q.mu.Unlock()
}

func (q *Queue) Topics() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]string, 0, len(q.topics))
	for t := range q.topics {
		out = append(out, t)
	}
	return out
}

func (q *Queue) Events() <-chan Event { return q.events }

func (q *Queue) Done() <-chan struct{} { return q.done }

// Err is the reason the queue was closed, or nil while open.
func (q *Queue) Err() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.reason
}
