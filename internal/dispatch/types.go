// Package dispatch holds the emergency-call lifecycle, the allocation ledger and
// the coordinator that serialises commands against both.
package dispatch

import (
	"fmt"
	"strings"
	"time"
)

// IncidentType classifies an emergency call. It never changes after intake.
type IncidentType string

const (
	IncidentFire            IncidentType = "FIRE"
	IncidentMedical         IncidentType = "MEDICAL_EMERGENCY"
	IncidentTrafficAccident IncidentType = "TRAFFIC_ACCIDENT"
	IncidentHazmat          IncidentType = "HAZMAT"
	IncidentRescue          IncidentType = "RESCUE"
	IncidentFalseAlarm      IncidentType = "FALSE_ALARM"
	IncidentOther           IncidentType = "OTHER"
)

// IncidentTypes lists every accepted incident type.
var IncidentTypes = []IncidentType{
	IncidentFire, IncidentMedical, IncidentTrafficAccident, IncidentHazmat,
	IncidentRescue, IncidentFalseAlarm, IncidentOther,
}

// ParseIncidentType accepts any casing of a known incident type.
func ParseIncidentType(raw string) (IncidentType, error) {
	t := IncidentType(strings.ToUpper(strings.TrimSpace(raw)))
	for _, known := range IncidentTypes {
		if t == known {
			return t, nil
		}
	}
	return "", fmt.Errorf("%w: unknown incident type %q", ErrInvalidCommand, raw)
}

// Priority orders pending calls for allocation.
type Priority string

const (
	PriorityLow      Priority = "LOW"
	PriorityMedium   Priority = "MEDIUM"
	PriorityHigh     Priority = "HIGH"
	PriorityCritical Priority = "CRITICAL"
)

// Rank is higher for more urgent priorities; unknown values rank lowest.
func (p Priority) Rank() int {
	switch p {
	case PriorityCritical:
		return 4
	case PriorityHigh:
		return 3
	case PriorityMedium:
		return 2
	case PriorityLow:
		return 1
	default:
		return 0
	}
}

// ParsePriority accepts any casing of a known priority.
func ParsePriority(raw string) (Priority, error) {
	p := Priority(strings.ToUpper(strings.TrimSpace(raw)))
	if p.Rank() == 0 {
		return "", fmt.Errorf("%w: unknown priority %q", ErrInvalidCommand, raw)
	}
	return p, nil
}

// Status is the lifecycle position of a call.
type Status string

const (
	StatusPending    Status = "PENDING"
	StatusDispatched Status = "DISPATCHED"
	StatusEnRoute    Status = "EN_ROUTE"
	StatusOnScene    Status = "ON_SCENE"
	StatusCleared    Status = "CLEARED"
	StatusCancelled  Status = "CANCELLED"
)

// Statuses lists every status in lifecycle order.
var Statuses = []Status{
	StatusPending, StatusDispatched, StatusEnRoute, StatusOnScene, StatusCleared, StatusCancelled,
}

// ActiveStatuses are the statuses of calls that still need attention.
var ActiveStatuses = []Status{StatusPending, StatusDispatched, StatusEnRoute, StatusOnScene}

// ParseStatus accepts any casing of a known status.
func ParseStatus(raw string) (Status, error) {
	s := Status(strings.ToUpper(strings.TrimSpace(raw)))
	for _, known := range Statuses {
		if s == known {
			return s, nil
		}
	}
	return "", fmt.Errorf("%w: unknown status %q", ErrInvalidCommand, raw)
}

// Terminal reports whether no further transition is possible.
func (s Status) Terminal() bool {
	return s == StatusCleared || s == StatusCancelled
}

// HoldsAssignment reports whether a call in this status owns a station slot and crew.
func (s Status) HoldsAssignment() bool {
	return s == StatusDispatched || s == StatusEnRoute || s == StatusOnScene
}

// Call is an emergency call as tracked by the engine.
type Call struct {
	ID                  string
	CallNumber          string
	CallerName          string
	CallerPhone         string
	IncidentAddress     string
	Latitude            *float64
	Longitude           *float64
	IncidentType        IncidentType
	Priority            Priority
	Description         string
	Status              Status
	ReceivedAt          time.Time
	DispatchedAt        *time.Time
	EnRouteAt           *time.Time
	ArrivedAt           *time.Time
	ClearedAt           *time.Time
	CancelledAt         *time.Time
	UpdatedAt           time.Time
	AssignedStationID   *int64
	FirefighterIDs      []int64
	ResponderLatitude   *float64
	ResponderLongitude  *float64
	ResponderReportedAt *time.Time
	Version             int64
}

// Clone returns a deep copy so callers never share pointers with the registry.
func (c Call) Clone() Call {
	out := c
	out.Latitude = cloneFloat(c.Latitude)
	out.Longitude = cloneFloat(c.Longitude)
	out.DispatchedAt = cloneTime(c.DispatchedAt)
	out.EnRouteAt = cloneTime(c.EnRouteAt)
	out.ArrivedAt = cloneTime(c.ArrivedAt)
	out.ClearedAt = cloneTime(c.ClearedAt)
	out.CancelledAt = cloneTime(c.CancelledAt)
	out.ResponderLatitude = cloneFloat(c.ResponderLatitude)
	out.ResponderLongitude = cloneFloat(c.ResponderLongitude)
	out.ResponderReportedAt = cloneTime(c.ResponderReportedAt)
	if c.AssignedStationID != nil {
		id := *c.AssignedStationID
		out.AssignedStationID = &id
	}
	if c.FirefighterIDs != nil {
		out.FirefighterIDs = append([]int64(nil), c.FirefighterIDs...)
	}
	return out
}

// HasLocation reports whether the incident coordinates are known.
func (c Call) HasLocation() bool {
	return c.Latitude != nil && c.Longitude != nil
}

// latestTimestamp is the most recent lifecycle timestamp recorded on the call.
func (c Call) latestTimestamp() time.Time {
	latest := c.ReceivedAt
	for _, ts := range []*time.Time{c.DispatchedAt, c.EnRouteAt, c.ArrivedAt, c.ClearedAt, c.CancelledAt} {
		if ts != nil && ts.After(latest) {
			latest = *ts
		}
	}
	return latest
}

func cloneFloat(v *float64) *float64 {
	if v == nil {
		return nil
	}
	out := *v
	return &out
}

func cloneTime(v *time.Time) *time.Time {
	if v == nil {
		return nil
	}
	out := *v
	return &out
}

// StationType mirrors the station categories used by the command center.
type StationType string

const (
	StationMain   StationType = "MAIN_STATION"
	StationBranch StationType = "BRANCH_STATION"
	StationSub    StationType = "SUB_STATION"
	StationMobile StationType = "MOBILE_UNIT"
)

// Station is a response base. Capacity bounds how many calls it serves at once.
type Station struct {
	ID           int64
	Code         string
	Name         string
	Address      string
	Type         StationType
	Latitude     float64
	Longitude    float64
	Capacity     int
	StandardCrew int
	Active       bool
}

// Availability is a firefighter's allocation state.
type Availability string

const (
	Available Availability = "AVAILABLE"
	Assigned  Availability = "ASSIGNED"
	OffDuty   Availability = "OFF_DUTY"
)

// Firefighter belongs to exactly one station.
type Firefighter struct {
	ID           int64
	Name         string
	Rank         string
	StationID    int64
	Availability Availability
}

// AlertType grades operator-facing system alerts.
type AlertType string

const (
	AlertInfo     AlertType = "INFO"
	AlertWarning  AlertType = "WARNING"
	AlertCritical AlertType = "CRITICAL"
)

// Alert is a broadcast message that is not tied to a single call.
type Alert struct {
	Message   string
	Type      AlertType
	Timestamp time.Time
}
