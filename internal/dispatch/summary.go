package dispatch

import (
	"sync"
	"time"
)

// Summary is a point-in-time count of calls per status. Version increases by
// one on every change.
type Summary struct {
	Pending     int       `json:"pending"`
	Dispatched  int       `json:"dispatched"`
	EnRoute     int       `json:"en_route"`
	OnScene     int       `json:"on_scene"`
	Cleared     int       `json:"cleared"`
	Cancelled   int       `json:"cancelled"`
	Version     uint64    `json:"version"`
	GeneratedAt time.Time `json:"generated_at"`
}

// Active is the number of calls that are neither cleared nor cancelled.
func (s Summary) Active() int {
	return s.Pending + s.Dispatched + s.EnRoute + s.OnScene
}

// Counts returns the summary as a status map.
func (s Summary) Counts() map[Status]int {
	return map[Status]int{
		StatusPending:    s.Pending,
		StatusDispatched: s.Dispatched,
		StatusEnRoute:    s.EnRoute,
		StatusOnScene:    s.OnScene,
		StatusCleared:    s.Cleared,
		StatusCancelled:  s.Cancelled,
	}
}

// Aggregator keeps incremental per-status counts. The publish hook runs inside
// the aggregator lock so observers see versions in order.
type Aggregator struct {
	mu      sync.Mutex
	counts  map[Status]int
	version uint64
	now     func() time.Time
	publish func(Summary)
}

// NewAggregator starts from zero counts. publish may be nil.
func NewAggregator(now func() time.Time, publish func(Summary)) *Aggregator {
	if now == nil {
		now = time.Now
	}
	return &Aggregator{
		counts:  make(map[Status]int, len(Statuses)),
		now:     now,
		publish: publish,
	}
}

// Created counts a new PENDING call.
func (a *Aggregator) Created() Summary {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.counts[StatusPending]++
	return a.bumpLocked()
}

// Transition moves one call from one bucket to another.
func (a *Aggregator) Transition(from, to Status) Summary {
	a.mu.Lock()
	defer a.mu.Unlock()
	if from == to {
		return a.snapshotLocked()
	}
	a.counts[from]--
	a.counts[to]++
	return a.bumpLocked()
}

// Snapshot returns the current counts.
func (a *Aggregator) Snapshot() Summary {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.snapshotLocked()
}

// Replace installs recounted values. It reports whether they differed from the
// incremental counts, and publishes a new version either way when they did.
func (a *Aggregator) Replace(counts map[Status]int) (before Summary, after Summary, drifted bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	before = a.snapshotLocked()
	for _, s := range Statuses {
		if a.counts[s] != counts[s] {
			drifted = true
		}
	}
	if !drifted {
		return before, before, false
	}
	a.counts = make(map[Status]int, len(Statuses))
	for _, s := range Statuses {
		a.counts[s] = counts[s]
	}
	after = a.bumpLocked()
	return before, after, true
}

func (a *Aggregator) bumpLocked() Summary {
	a.version++
	snap := a.snapshotLocked()
	if a.publish != nil {
		a.publish(snap)
	}
	return snap
}

func (a *Aggregator) snapshotLocked() Summary {
	return Summary{
		Pending:     a.counts[StatusPending],
		Dispatched:  a.counts[StatusDispatched],
		EnRoute:     a.counts[StatusEnRoute],
		OnScene:     a.counts[StatusOnScene],
		Cleared:     a.counts[StatusCleared],
		Cancelled:   a.counts[StatusCancelled],
		Version:     a.version,
		GeneratedAt: a.now().UTC(),
	}
}
