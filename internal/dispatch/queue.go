package dispatch

import (
	"container/heap"
	"sync"
	"time"
)

type queueItem struct {
	callID     string
	rank       int
	receivedAt time.Time
	seq        uint64
	index      int
}

type itemHeap []*queueItem

func (h itemHeap) Len() int { return len(h) }

func (h itemHeap) Less(i, j int) bool {
	a, b := h[i], h[j]
	if a.rank != b.rank {
		return a.rank > b.rank
	}
	if !a.receivedAt.Equal(b.receivedAt) {
		return a.receivedAt.Before(b.receivedAt)
	}
	return a.seq < b.seq
}

func (h itemHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *itemHeap) Push(x any) {
	item := x.(*queueItem)
	item.index = len(*h)
	*h = append(*h, item)
}

func (h *itemHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	item.index = -1
	*h = old[:n-1]
	return item
}

// PendingQueue orders calls waiting for resources: higher priority first, then
// earlier receipt, then arrival order in the queue.
type PendingQueue struct {
	mu    sync.Mutex
	items itemHeap
	byID  map[string]*queueItem
	seq   uint64
}

// NewPendingQueue returns an empty queue.
func NewPendingQueue() *PendingQueue {
	return &PendingQueue{byID: make(map[string]*queueItem)}
}

// Push adds a call or refreshes its priority if it is already queued.
func (q *PendingQueue) Push(callID string, p Priority, receivedAt time.Time) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if item, ok := q.byID[callID]; ok {
		item.rank = p.Rank()
		heap.Fix(&q.items, item.index)
		return
	}
	q.seq++
	item := &queueItem{callID: callID, rank: p.Rank(), receivedAt: receivedAt, seq: q.seq}
	heap.Push(&q.items, item)
	q.byID[callID] = item
}

// Remove drops a call. It reports whether the call was queued.
func (q *PendingQueue) Remove(callID string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	item, ok := q.byID[callID]
	if !ok {
		return false
	}
	heap.Remove(&q.items, item.index)
	delete(q.byID, callID)
	return true
}

// Contains reports whether a call is queued.
func (q *PendingQueue) Contains(callID string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	_, ok := q.byID[callID]
	return ok
}

// Len is the number of queued calls.
func (q *PendingQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Ordered returns the queued call IDs in allocation order without removing them.
func (q *PendingQueue) Ordered() []string {
	q.mu.Lock()
	defer q.mu.Unlock()

	tmp := make(itemHeap, len(q.items))
	for i, item := range q.items {
		cp := *item
		cp.index = i
		tmp[i] = &cp
	}
	out := make([]string, 0, len(tmp))
	for tmp.Len() > 0 {
		out = append(out, heap.Pop(&tmp).(*queueItem).callID)
	}
	return out
}
