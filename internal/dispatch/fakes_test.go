package dispatch

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

type fakeRegistry struct {
	mu        sync.Mutex
	calls     map[string]Call
	saveErr   error
	saveDelay time.Duration
}

func newFakeRegistry() *fakeRegistry {
	return &fakeRegistry{calls: make(map[string]Call)}
}

func (f *fakeRegistry) failSaves(err error) {
	f.mu.Lock()
	f.saveErr = err
	f.mu.Unlock()
}

func (f *fakeRegistry) slowSaves(d time.Duration) {
	f.mu.Lock()
	f.saveDelay = d
	f.mu.Unlock()
}

// put bypasses version checks.
func (f *fakeRegistry) put(c Call) {
	f.mu.Lock()
	f.calls[c.ID] = c.Clone()
	f.mu.Unlock()
}

func (f *fakeRegistry) Save(ctx context.Context, call Call) error {
	f.mu.Lock()
	failure, delay := f.saveErr, f.saveDelay
	f.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if failure != nil {
		return failure
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	stored, ok := f.calls[call.ID]
	if (!ok && call.Version != 1) || (ok && stored.Version != call.Version-1) {
		return fmt.Errorf("%w: version %d", ErrConflict, call.Version)
	}
	for id, c := range f.calls {
		if id != call.ID && c.CallNumber == call.CallNumber {
			return ErrDuplicateCallNumber
		}
	}
	f.calls[call.ID] = call.Clone()
	return nil
}

func (f *fakeRegistry) Load(_ context.Context, id string) (Call, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.calls[id]
	if !ok {
		return Call{}, fmt.Errorf("call %s: %w", id, ErrNotFound)
	}
	return c.Clone(), nil
}

func (f *fakeRegistry) LoadByNumber(_ context.Context, number string) (Call, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.calls {
		if c.CallNumber == number {
			return c.Clone(), nil
		}
	}
	return Call{}, ErrNotFound
}

func (f *fakeRegistry) List(_ context.Context, filter CallFilter) ([]Call, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Call
	for _, c := range f.calls {
		if filter.Matches(c) {
			out = append(out, c.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ReceivedAt.After(out[j].ReceivedAt) })
	return out, nil
}

func (f *fakeRegistry) CountByStatus(_ context.Context) (map[Status]int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	counts := make(map[Status]int)
	for _, c := range f.calls {
		counts[c.Status]++
	}
	return counts, nil
}

type fakeRoster struct {
	mu           sync.Mutex
	stations     []Station
	firefighters []Firefighter
	dutyErr      error
	// dutyGate, when set, holds every duty write until closed; dutyEntered
	// receives once per held write.
	dutyGate    chan struct{}
	dutyEntered chan struct{}
}

func (r *fakeRoster) Stations(context.Context) ([]Station, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Station(nil), r.stations...), nil
}

func (r *fakeRoster) Firefighters(context.Context) ([]Firefighter, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Firefighter(nil), r.firefighters...), nil
}

func (r *fakeRoster) SetFirefighterDuty(_ context.Context, id int64, onDuty bool) error {
	r.mu.Lock()
	gate, entered := r.dutyGate, r.dutyEntered
	r.mu.Unlock()
	if gate != nil {
		entered <- struct{}{}
		<-gate
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.dutyErr != nil {
		return r.dutyErr
	}
	for i := range r.firefighters {
		if r.firefighters[i].ID == id {
			if onDuty {
				r.firefighters[i].Availability = Available
			} else {
				r.firefighters[i].Availability = OffDuty
			}
			return nil
		}
	}
	return ErrNotFound
}

// recorder keeps every notification in emission order.
type recorder struct {
	mu        sync.Mutex
	log       []string
	updates   []Call
	summaries []Summary
	alerts    []Alert
}

func (r *recorder) CallCreated(c Call) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.log = append(r.log, "NEW_CALL "+c.ID)
}

func (r *recorder) CallUpdated(c Call, previous Status) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.log = append(r.log, fmt.Sprintf("STATUS_UPDATE %s %s->%s", c.ID, previous, c.Status))
	r.updates = append(r.updates, c)
}

func (r *recorder) PriorityChanged(c Call, previous Priority) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.log = append(r.log, fmt.Sprintf("PRIORITY_UPDATE %s %s->%s", c.ID, previous, c.Priority))
}

func (r *recorder) LocationReported(c Call) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.log = append(r.log, "LOCATION_UPDATE "+c.ID)
}

func (r *recorder) SummaryChanged(s Summary) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.log = append(r.log, fmt.Sprintf("SUMMARY_UPDATE v%d", s.Version))
	r.summaries = append(r.summaries, s)
}

func (r *recorder) Alert(a Alert) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.log = append(r.log, "SYSTEM_ALERT "+string(a.Type))
	r.alerts = append(r.alerts, a)
}

func (r *recorder) statusUpdates() []Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Call(nil), r.updates...)
}

func (r *recorder) entries() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.log...)
}

func (r *recorder) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.log, r.updates, r.summaries, r.alerts = nil, nil, nil, nil
}

type harness struct {
	coord    *Coordinator
	registry *fakeRegistry
	roster   *fakeRoster
	events   *recorder
}

// tickingClock advances one second per reading.
func tickingClock() func() time.Time {
	base := time.Date(2024, 5, 4, 9, 30, 0, 0, time.UTC)
	var n atomic.Int64
	return func() time.Time {
		return base.Add(time.Duration(n.Add(1)) * time.Second)
	}
}

func newHarness(t *testing.T, stations []Station, firefighters []Firefighter, opts Options) *harness {
	t.Helper()
	if opts.Now == nil {
		opts.Now = tickingClock()
	}
	h := &harness{
		registry: newFakeRegistry(),
		roster:   &fakeRoster{stations: stations, firefighters: firefighters},
		events:   &recorder{},
	}
	h.coord = NewCoordinator(h.registry, h.roster, h.events, opts, zerolog.Nop())
	require.NoError(t, h.coord.Recover(context.Background()))
	return h
}

// singleStation is one station with room for one call and a crew of two.
func singleStation() ([]Station, []Firefighter) {
	return []Station{{ID: 1, Code: "ST-01", Active: true, Capacity: 1, StandardCrew: 2}},
		[]Firefighter{
			{ID: 1, StationID: 1, Availability: Available},
			{ID: 2, StationID: 1, Availability: Available},
			{ID: 3, StationID: 1, Availability: Available},
		}
}

func newCall(p Priority) NewCall {
	return NewCall{
		CallerName:      "Jane Doe",
		CallerPhone:     "+33 6 00 00 00 00",
		IncidentAddress: "12 rue de la Paix",
		IncidentType:    IncidentFire,
		Priority:        p,
	}
}
