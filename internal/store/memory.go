package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"fire/command/internal/dispatch"
)

// Memory is an in-process registry and roster. It enforces the same version
// and call-number rules as Postgres, which makes it suitable for tests and
// local runs.
type Memory struct {
	mu           sync.RWMutex
	calls        map[string]dispatch.Call
	numbers      map[string]string
	stations     map[int64]dispatch.Station
	firefighters map[int64]dispatch.Firefighter
}

// NewMemory returns a store seeded with the given roster.
func NewMemory(stations []dispatch.Station, firefighters []dispatch.Firefighter) *Memory {
	m := &Memory{
		calls:        make(map[string]dispatch.Call),
		numbers:      make(map[string]string),
		stations:     make(map[int64]dispatch.Station, len(stations)),
		firefighters: make(map[int64]dispatch.Firefighter, len(firefighters)),
	}
	for _, st := range stations {
		m.stations[st.ID] = st
	}
	for _, ff := range firefighters {
		m.firefighters[ff.ID] = ff
	}
	return m
}

func (m *Memory) Save(ctx context.Context, call dispatch.Call) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	stored, exists := m.calls[call.ID]
	switch {
	case !exists && call.Version != 1:
		return fmt.Errorf("%w: call %s does not exist at version %d", dispatch.ErrConflict, call.ID, call.Version-1)
	case exists && stored.Version != call.Version-1:
		return fmt.Errorf("%w: call %s is at version %d, not %d", dispatch.ErrConflict, call.ID, stored.Version, call.Version-1)
	case exists && stored.CallNumber != call.CallNumber:
		return fmt.Errorf("%w: call number of %s is immutable", dispatch.ErrConflict, call.ID)
	}
	if owner, taken := m.numbers[call.CallNumber]; taken && owner != call.ID {
		return fmt.Errorf("%w: %s", dispatch.ErrDuplicateCallNumber, call.CallNumber)
	}

	m.calls[call.ID] = call.Clone()
	m.numbers[call.CallNumber] = call.ID
	return nil
}

func (m *Memory) Load(ctx context.Context, id string) (dispatch.Call, error) {
	if err := ctx.Err(); err != nil {
		return dispatch.Call{}, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	call, ok := m.calls[id]
	if !ok {
		return dispatch.Call{}, fmt.Errorf("%w: call %s", dispatch.ErrNotFound, id)
	}
	return call.Clone(), nil
}

func (m *Memory) LoadByNumber(ctx context.Context, number string) (dispatch.Call, error) {
	if err := ctx.Err(); err != nil {
		return dispatch.Call{}, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.numbers[number]
	if !ok {
		return dispatch.Call{}, fmt.Errorf("%w: call number %s", dispatch.ErrNotFound, number)
	}
	return m.calls[id].Clone(), nil
}

func (m *Memory) List(ctx context.Context, filter dispatch.CallFilter) ([]dispatch.Call, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	out := make([]dispatch.Call, 0)
	for _, call := range m.calls {
		if filter.Matches(call) {
			out = append(out, call.Clone())
		}
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].ReceivedAt.Equal(out[j].ReceivedAt) {
			return out[i].ReceivedAt.After(out[j].ReceivedAt)
		}
		return out[i].CallNumber > out[j].CallNumber
	})
	return page(out, filter.Limit, filter.Offset), nil
}

func (m *Memory) CountByStatus(ctx context.Context) (map[dispatch.Status]int, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	counts := make(map[dispatch.Status]int, len(dispatch.Statuses))
	for _, call := range m.calls {
		counts[call.Status]++
	}
	return counts, nil
}

func (m *Memory) Stations(ctx context.Context) ([]dispatch.Station, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]dispatch.Station, 0, len(m.stations))
	for _, st := range m.stations {
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) Firefighters(ctx context.Context) ([]dispatch.Firefighter, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]dispatch.Firefighter, 0, len(m.firefighters))
	for _, ff := range m.firefighters {
		out = append(out, ff)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) SetFirefighterDuty(ctx context.Context, id int64, onDuty bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	ff, ok := m.firefighters[id]
	if !ok {
		return fmt.Errorf("%w: firefighter %d", dispatch.ErrNotFound, id)
	}
	ff.Availability = dispatch.OffDuty
	if onDuty {
		ff.Availability = dispatch.Available
	}
	m.firefighters[id] = ff
	return nil
}

func page(calls []dispatch.Call, limit, offset int) []dispatch.Call {
	if offset > 0 {
		if offset >= len(calls) {
			return []dispatch.Call{}
		}
		calls = calls[offset:]
	}
	if limit > 0 && limit < len(calls) {
		calls = calls[:limit]
	}
	return calls
}
