package dispatch

import (
	"fmt"
	"sort"
	"sync"
)

// Ledger owns station load and firefighter availability. Every read-modify-write
// happens under one mutex, so a station slot or a firefighter can only be
// claimed by one call at a time.
type Ledger struct {
	mu           sync.Mutex
	alloc        Allocator
	stations     map[int64]Station
	load         map[int64]int
	firefighters map[int64]Firefighter
	claims       map[string]Reservation
}

// NewLedger builds a ledger with every station empty. Firefighters keep their
// duty state; ASSIGNED is reset to AVAILABLE until Restore claims them again.
func NewLedger(alloc Allocator, stations []Station, firefighters []Firefighter) *Ledger {
	l := &Ledger{
		alloc:        alloc,
		stations:     make(map[int64]Station, len(stations)),
		load:         make(map[int64]int, len(stations)),
		firefighters: make(map[int64]Firefighter, len(firefighters)),
		claims:       make(map[string]Reservation),
	}
	for _, st := range stations {
		l.stations[st.ID] = st
	}
	for _, ff := range firefighters {
		if ff.Availability != OffDuty {
			ff.Availability = Available
		}
		l.firefighters[ff.ID] = ff
	}
	return l
}

// Reserve finds and claims resources for req in one critical section.
// It returns false when nothing eligible is free.
func (l *Ledger) Reserve(req Request) (Reservation, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if existing, ok := l.claims[req.CallID]; ok {
		return cloneReservation(existing), true
	}

	res, ok := l.alloc.Select(l.viewsLocked(), req)
	if !ok {
		return Reservation{}, false
	}
	l.claimLocked(res)
	return cloneReservation(res), true
}

// Restore re-applies a claim recorded before a restart. Inconsistencies are
// reported but the claim is still recorded so the call keeps its crew.
func (l *Ledger) Restore(res Reservation) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.claims[res.CallID]; ok {
		return fmt.Errorf("%w: call %s already holds a claim", ErrConflict, res.CallID)
	}
	var problem error
	st, ok := l.stations[res.StationID]
	switch {
	case !ok:
		problem = fmt.Errorf("%w: station %d", ErrNotFound, res.StationID)
	case l.load[res.StationID] >= st.Capacity:
		problem = fmt.Errorf("%w: station %d already at capacity", ErrInternalConsistency, res.StationID)
	}
	for _, id := range res.FirefighterIDs {
		ff, ok := l.firefighters[id]
		if !ok {
			problem = fmt.Errorf("%w: firefighter %d", ErrNotFound, id)
			continue
		}
		if ff.Availability == Assigned {
			problem = fmt.Errorf("%w: firefighter %d claimed twice", ErrInternalConsistency, id)
		}
	}
	l.claimLocked(res)
	return problem
}

// Release returns the call's station slot and crew. It is a no-op when the call
// holds nothing.
func (l *Ledger) Release(callID string) (Reservation, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	res, ok := l.claims[callID]
	if !ok {
		return Reservation{}, false
	}
	delete(l.claims, callID)
	if l.load[res.StationID] > 0 {
		l.load[res.StationID]--
	}
	for _, id := range res.FirefighterIDs {
		ff, ok := l.firefighters[id]
		if !ok {
			continue
		}
		if ff.Availability == Assigned {
			ff.Availability = Available
		}
		l.firefighters[id] = ff
	}
	return res, true
}

// Claim returns the reservation held by a call.
func (l *Ledger) Claim(callID string) (Reservation, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	res, ok := l.claims[callID]
	return cloneReservation(res), ok
}

// SetDuty moves a firefighter between AVAILABLE and OFF_DUTY. A firefighter
// attached to a call cannot change duty until the call releases them.
func (l *Ledger) SetDuty(id int64, onDuty bool) (Firefighter, Availability, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	ff, ok := l.firefighters[id]
	if !ok {
		return Firefighter{}, "", fmt.Errorf("%w: firefighter %d", ErrNotFound, id)
	}
	if ff.Availability == Assigned {
		return ff, ff.Availability, fmt.Errorf("%w: firefighter %d is assigned to a call", ErrConflict, id)
	}
	prev := ff.Availability
	if onDuty {
		ff.Availability = Available
	} else {
		ff.Availability = OffDuty
	}
	l.firefighters[id] = ff
	return ff, prev, nil
}

// CheckDuty returns the firefighter if a duty change is currently allowed.
func (l *Ledger) CheckDuty(id int64) (Firefighter, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	ff, ok := l.firefighters[id]
	if !ok {
		return Firefighter{}, fmt.Errorf("%w: firefighter %d", ErrNotFound, id)
	}
	if ff.Availability == Assigned {
		return ff, fmt.Errorf("%w: firefighter %d is assigned to a call", ErrConflict, id)
	}
	return ff, nil
}

// RestoreDuty puts a firefighter back to a previous availability. Used to roll
// back a duty change that could not be persisted.
func (l *Ledger) RestoreDuty(id int64, prev Availability) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if ff, ok := l.firefighters[id]; ok && ff.Availability != Assigned {
		ff.Availability = prev
		l.firefighters[id] = ff
	}
}

// Stations returns every station with its current load, ordered by ID.
func (l *Ledger) Stations() []StationView {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.viewsLocked()
}

// Firefighters returns the roster with current availability, ordered by ID.
func (l *Ledger) Firefighters() []Firefighter {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Firefighter, 0, len(l.firefighters))
	for _, ff := range l.firefighters {
		out = append(out, ff)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Station looks up a station by ID.
func (l *Ledger) Station(id int64) (Station, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	st, ok := l.stations[id]
	return st, ok
}

func (l *Ledger) viewsLocked() []StationView {
	free := make(map[int64][]int64, len(l.stations))
	for _, ff := range l.firefighters {
		if ff.Availability == Available {
			free[ff.StationID] = append(free[ff.StationID], ff.ID)
		}
	}
	views := make([]StationView, 0, len(l.stations))
	for id, st := range l.stations {
		ids := free[id]
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
		views = append(views, StationView{Station: st, Load: l.load[id], Available: ids})
	}
	sort.Slice(views, func(i, j int) bool { return views[i].Station.ID < views[j].Station.ID })
	return views
}

func (l *Ledger) claimLocked(res Reservation) {
	l.claims[res.CallID] = cloneReservation(res)
	l.load[res.StationID]++
	for _, id := range res.FirefighterIDs {
		if ff, ok := l.firefighters[id]; ok {
			ff.Availability = Assigned
			l.firefighters[id] = ff
		}
	}
}

func cloneReservation(res Reservation) Reservation {
	res.FirefighterIDs = append([]int64(nil), res.FirefighterIDs...)
	return res
}
