// Package realtime fans dispatch changes out to connected monitoring clients.
package realtime

import (
	"strconv"
	"strings"
	"time"

	"fire/command/internal/dispatch"
)

// EventType discriminates the payload carried by an Event.
type EventType string

const (
	EventNewCall        EventType = "NEW_CALL"
	EventStatusUpdate   EventType = "STATUS_UPDATE"
	EventSummaryUpdate  EventType = "SUMMARY_UPDATE"
	EventSystemAlert    EventType = "SYSTEM_ALERT"
	EventLocationUpdate EventType = "LOCATION_UPDATE"
	EventPriorityUpdate EventType = "PRIORITY_UPDATE"
	EventSnapshot       EventType = "SNAPSHOT"
	EventCommandResult  EventType = "COMMAND_RESULT"
)

const (
	TopicEmergencyCalls = "emergency-calls"
	TopicCallUpdates    = "call-updates"
	TopicDashboard      = "dashboard-updates"
	TopicSystemAlerts   = "system-alerts"
)

// DefaultTopics are subscribed on connect.
var DefaultTopics = []string{TopicEmergencyCalls, TopicCallUpdates, TopicDashboard, TopicSystemAlerts}

// CallTopic carries updates for a single call.
func CallTopic(callID string) string {
	return TopicCallUpdates + "/" + callID
}

// StationTopic carries dispatch notices for a single station.
func StationTopic(stationID int64) string {
	return "station/" + strconv.FormatInt(stationID, 10)
}

// ValidTopic reports whether a client may subscribe to topic.
func ValidTopic(topic string) bool {
	switch topic {
	case TopicEmergencyCalls, TopicCallUpdates, TopicDashboard, TopicSystemAlerts:
		return true
	}
	if id, ok := strings.CutPrefix(topic, TopicCallUpdates+"/"); ok {
		return id != ""
	}
	if id, ok := strings.CutPrefix(topic, "station/"); ok {
		_, err := strconv.ParseInt(id, 10, 64)
		return err == nil
	}
	return false
}

// Event is the envelope written to clients: {"type", "topic", "data"}.
type Event struct {
	Type  EventType `json:"type"`
	Topic string    `json:"topic,omitempty"`
	Data  any       `json:"data"`
}

type GeoPoint struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// CallView is the wire shape of a call, shared by the event stream and the HTTP API.
type CallView struct {
	ID                  string     `json:"id"`
	CallNumber          string     `json:"call_number"`
	CallerName          string     `json:"caller_name,omitempty"`
	CallerPhone         string     `json:"caller_phone,omitempty"`
	IncidentAddress     string     `json:"incident_address"`
	Location            *GeoPoint  `json:"location,omitempty"`
	IncidentType        string     `json:"incident_type"`
	Priority            string     `json:"priority"`
	Description         string     `json:"description,omitempty"`
	Status              string     `json:"status"`
	ReceivedAt          time.Time  `json:"received_at"`
	DispatchedAt        *time.Time `json:"dispatched_at,omitempty"`
	EnRouteAt           *time.Time `json:"en_route_at,omitempty"`
	ArrivedAt           *time.Time `json:"arrived_at,omitempty"`
	ClearedAt           *time.Time `json:"cleared_at,omitempty"`
	CancelledAt         *time.Time `json:"cancelled_at,omitempty"`
	UpdatedAt           time.Time  `json:"updated_at"`
	AssignedStationID   *int64     `json:"assigned_station_id,omitempty"`
	FirefighterIDs      []int64    `json:"firefighter_ids,omitempty"`
	ResponderLocation   *GeoPoint  `json:"responder_location,omitempty"`
	ResponderReportedAt *time.Time `json:"responder_reported_at,omitempty"`
	Version             int64      `json:"version"`
}

// NewCallView maps a call to its wire shape.
func NewCallView(c dispatch.Call) CallView {
	c = c.Clone()
	v := CallView{
		ID:                  c.ID,
		CallNumber:          c.CallNumber,
		CallerName:          c.CallerName,
		CallerPhone:         c.CallerPhone,
		IncidentAddress:     c.IncidentAddress,
		IncidentType:        string(c.IncidentType),
		Priority:            string(c.Priority),
		Description:         c.Description,
		Status:              string(c.Status),
		ReceivedAt:          c.ReceivedAt,
		DispatchedAt:        c.DispatchedAt,
		EnRouteAt:           c.EnRouteAt,
		ArrivedAt:           c.ArrivedAt,
		ClearedAt:           c.ClearedAt,
		CancelledAt:         c.CancelledAt,
		UpdatedAt:           c.UpdatedAt,
		AssignedStationID:   c.AssignedStationID,
		FirefighterIDs:      c.FirefighterIDs,
		ResponderReportedAt: c.ResponderReportedAt,
		Version:             c.Version,
	}
	if c.HasLocation() {
		v.Location = &GeoPoint{Latitude: *c.Latitude, Longitude: *c.Longitude}
	}
	if c.ResponderLatitude != nil && c.ResponderLongitude != nil {
		v.ResponderLocation = &GeoPoint{Latitude: *c.ResponderLatitude, Longitude: *c.ResponderLongitude}
	}
	return v
}

// StatusChange is the payload of STATUS_UPDATE.
type StatusChange struct {
	Call           CallView `json:"call"`
	PreviousStatus string   `json:"previous_status"`
}

// PriorityChange is the payload of PRIORITY_UPDATE.
type PriorityChange struct {
	Call             CallView `json:"call"`
	PreviousPriority string   `json:"previous_priority"`
}

// LocationChange is the payload of LOCATION_UPDATE.
type LocationChange struct {
	CallID     string    `json:"call_id"`
	CallNumber string    `json:"call_number"`
	Status     string    `json:"status"`
	Location   GeoPoint  `json:"location"`
	ReportedAt time.Time `json:"reported_at"`
	Version    int64     `json:"version"`
}

// AlertPayload is the payload of SYSTEM_ALERT.
type AlertPayload struct {
	Message   string    `json:"message"`
	AlertType string    `json:"alert_type"`
	Timestamp time.Time `json:"timestamp"`
}

// Snapshot is sent once on connect so a client can rebuild its view.
type Snapshot struct {
	Calls   []CallView       `json:"calls"`
	Summary dispatch.Summary `json:"summary"`
}

// CommandResult answers a command sent over the stream.
type CommandResult struct {
	RequestID string    `json:"request_id,omitempty"`
	CallID    string    `json:"call_id,omitempty"`
	Outcome   string    `json:"outcome,omitempty"`
	Error     string    `json:"error,omitempty"`
	Call      *CallView `json:"call,omitempty"`
}

func NewCallEvent(c dispatch.Call) Event {
	return Event{Type: EventNewCall, Topic: TopicEmergencyCalls, Data: NewCallView(c)}
}

func StatusEvent(c dispatch.Call, previous dispatch.Status) Event {
	return Event{
		Type:  EventStatusUpdate,
		Topic: TopicCallUpdates,
		Data:  StatusChange{Call: NewCallView(c), PreviousStatus: string(previous)},
	}
}

func PriorityEvent(c dispatch.Call, previous dispatch.Priority) Event {
	return Event{
		Type:  EventPriorityUpdate,
		Topic: TopicCallUpdates,
		Data:  PriorityChange{Call: NewCallView(c), PreviousPriority: string(previous)},
	}
}

// LocationEvent requires the responder position to be set on c.
func LocationEvent(c dispatch.Call) Event {
	payload := LocationChange{CallID: c.ID, CallNumber: c.CallNumber, Status: string(c.Status), Version: c.Version}
	if c.ResponderLatitude != nil && c.ResponderLongitude != nil {
		payload.Location = GeoPoint{Latitude: *c.ResponderLatitude, Longitude: *c.ResponderLongitude}
	}
	if c.ResponderReportedAt != nil {
		payload.ReportedAt = *c.ResponderReportedAt
	}
	return Event{Type: EventLocationUpdate, Topic: TopicCallUpdates, Data: payload}
}

func SummaryEvent(s dispatch.Summary) Event {
	return Event{Type: EventSummaryUpdate, Topic: TopicDashboard, Data: s}
}

func AlertEvent(a dispatch.Alert) Event {
	return Event{
		Type:  EventSystemAlert,
		Topic: TopicSystemAlerts,
		Data:  AlertPayload{Message: a.Message, AlertType: string(a.Type), Timestamp: a.Timestamp},
	}
}

func SnapshotEvent(calls []dispatch.Call, s dispatch.Summary) Event {
	views := make([]CallView, 0, len(calls))
	for _, c := range calls {
		views = append(views, NewCallView(c))
	}
	return Event{Type: EventSnapshot, Data: Snapshot{Calls: views, Summary: s}}
}

// Fence records the call and summary versions a SNAPSHOT carried. A subscriber
// is registered before its snapshot is read, so events queued in between may
// already be reflected in it; Covers reports those so they can be skipped.
type Fence struct {
	calls   map[string]int64
	summary uint64
}

func NewFence(calls []dispatch.Call, s dispatch.Summary) Fence {
	f := Fence{calls: make(map[string]int64, len(calls)), summary: s.Version}
	for _, c := range calls {
		f.calls[c.ID] = c.Version
	}
	return f
}

// Covers reports whether ev carries nothing newer than the snapshot.
func (f Fence) Covers(ev Event) bool {
	switch data := ev.Data.(type) {
	case CallView:
		return f.seen(data.ID, data.Version)
	case StatusChange:
		return f.seen(data.Call.ID, data.Call.Version)
	case PriorityChange:
		return f.seen(data.Call.ID, data.Call.Version)
	case LocationChange:
		return f.seen(data.CallID, data.Version)
	case dispatch.Summary:
		return data.Version <= f.summary
	}
	return false
}

func (f Fence) seen(callID string, version int64) bool {
	v, ok := f.calls[callID]
	return ok && version <= v
}

func ResultEvent(r CommandResult) Event {
	return Event{Type: EventCommandResult, Data: r}
}
