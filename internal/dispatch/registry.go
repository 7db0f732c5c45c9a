package dispatch

import (
	"context"
	"time"
)

// CallFilter narrows a call listing. Zero values mean "no constraint".
type CallFilter struct {
	Statuses  []Status
	From      *time.Time
	To        *time.Time
	StationID *int64
	Limit     int
	Offset    int
}

// Matches applies the filter to a single call, ignoring paging.
func (f CallFilter) Matches(c Call) bool {
	if len(f.Statuses) > 0 {
		found := false
		for _, s := range f.Statuses {
			if c.Status == s {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.From != nil && c.ReceivedAt.Before(*f.From) {
		return false
	}
	if f.To != nil && c.ReceivedAt.After(*f.To) {
		return false
	}
	if f.StationID != nil && (c.AssignedStationID == nil || *c.AssignedStationID != *f.StationID) {
		return false
	}
	return true
}

// Registry is the durable store of call records.
//
// Save writes a call whose Version is exactly one more than the stored one
// (1 for a new call). Any other version, or a call number already taken by a
// different call, yields ErrConflict.
type Registry interface {
	Save(ctx context.Context, call Call) error
	Load(ctx context.Context, id string) (Call, error)
	LoadByNumber(ctx context.Context, number string) (Call, error)
	List(ctx context.Context, filter CallFilter) ([]Call, error)
	CountByStatus(ctx context.Context) (map[Status]int, error)
}

// Roster supplies stations and firefighters and persists duty changes.
type Roster interface {
	Stations(ctx context.Context) ([]Station, error)
	Firefighters(ctx context.Context) ([]Firefighter, error)
	SetFirefighterDuty(ctx context.Context, id int64, onDuty bool) error
}

// Notifier receives every accepted change, in per-call order.
type Notifier interface {
	CallCreated(call Call)
	CallUpdated(call Call, previous Status)
	PriorityChanged(call Call, previous Priority)
	LocationReported(call Call)
	SummaryChanged(summary Summary)
	Alert(alert Alert)
}

type nopNotifier struct{}

func (nopNotifier) CallCreated(Call)               {}
func (nopNotifier) CallUpdated(Call, Status)       {}
func (nopNotifier) PriorityChanged(Call, Priority) {}
func (nopNotifier) LocationReported(Call)          {}
func (nopNotifier) SummaryChanged(Summary)         {}
func (nopNotifier) Alert(Alert)                    {}
