package server

import (
	"time"

	"fire/command/internal/dispatch"
	"fire/command/internal/realtime"
)

// CallResponse is the HTTP shape of a call. It matches the event stream.
type CallResponse = realtime.CallView

type CreateCallRequest struct {
	CallerName      string   `json:"caller_name" validate:"omitempty,max=100"`
	CallerPhone     string   `json:"caller_phone" validate:"omitempty,max=32"`
	IncidentAddress string   `json:"incident_address" validate:"required,max=255"`
	Latitude        *float64 `json:"latitude" validate:"required_with=Longitude,omitempty,latitude"`
	Longitude       *float64 `json:"longitude" validate:"required_with=Latitude,omitempty,longitude"`
	IncidentType    string   `json:"incident_type" validate:"required,incident_type"`
	Priority        string   `json:"priority" validate:"required,priority"`
	Description     string   `json:"description" validate:"omitempty,max=2000"`
}

type UpdateCallStatusRequest struct {
	Status string `json:"status" validate:"required,max=32"`
}

type UpdateCallPriorityRequest struct {
	Priority string `json:"priority" validate:"required,priority"`
}

type ReportLocationRequest struct {
	Latitude  *float64 `json:"latitude" validate:"required,latitude"`
	Longitude *float64 `json:"longitude" validate:"required,longitude"`
}

type UpdateDutyRequest struct {
	OnDuty *bool `json:"on_duty" validate:"required"`
}

type BroadcastAlertRequest struct {
	Message   string `json:"message" validate:"required,max=500"`
	AlertType string `json:"alert_type" validate:"omitempty,oneof=INFO WARNING CRITICAL"`
}

// CommandResponse reports the outcome of a command together with the call.
type CommandResponse struct {
	Outcome string       `json:"outcome"`
	Call    CallResponse `json:"call"`
}

type StationResponse struct {
	ID                    int64             `json:"id"`
	Code                  string            `json:"code"`
	Name                  string            `json:"name"`
	Address               string            `json:"address"`
	Type                  string            `json:"type"`
	Location              realtime.GeoPoint `json:"location"`
	Capacity              int               `json:"capacity"`
	StandardCrew          int               `json:"standard_crew"`
	Active                bool              `json:"active"`
	Load                  int               `json:"load"`
	AvailableFirefighters int               `json:"available_firefighters"`
}

type FirefighterResponse struct {
	ID           int64  `json:"id"`
	Name         string `json:"name"`
	Rank         string `json:"rank"`
	StationID    int64  `json:"station_id"`
	Availability string `json:"availability"`
}

type ReconcileResponse struct {
	Drifted bool             `json:"drifted"`
	Before  dispatch.Summary `json:"before"`
	After   dispatch.Summary `json:"after"`
}

type AlertResponse struct {
	Message   string    `json:"message"`
	AlertType string    `json:"alert_type"`
	Timestamp time.Time `json:"timestamp"`
}

type HealthResponse struct {
	Status      string `json:"status"`
	Env         string `json:"env"`
	Uptime      string `json:"uptime"`
	Store       string `json:"store"`
	QueueDepth  int    `json:"queue_depth"`
	Subscribers int    `json:"subscribers"`
}

func mapCalls(calls []dispatch.Call) []CallResponse {
	out := make([]CallResponse, 0, len(calls))
	for _, c := range calls {
		out = append(out, realtime.NewCallView(c))
	}
	return out
}

func mapCommand(res dispatch.Result) CommandResponse {
	return CommandResponse{Outcome: string(res.Outcome), Call: realtime.NewCallView(res.Call)}
}

func mapStation(v dispatch.StationView) StationResponse {
	st := v.Station
	return StationResponse{
		ID:                    st.ID,
		Code:                  st.Code,
		Name:                  st.Name,
		Address:               st.Address,
		Type:                  string(st.Type),
		Location:              realtime.GeoPoint{Latitude: st.Latitude, Longitude: st.Longitude},
		Capacity:              st.Capacity,
		StandardCrew:          st.StandardCrew,
		Active:                st.Active,
		Load:                  v.Load,
		AvailableFirefighters: len(v.Available),
	}
}

func mapFirefighter(ff dispatch.Firefighter) FirefighterResponse {
	return FirefighterResponse{
		ID:           ff.ID,
		Name:         ff.Name,
		Rank:         ff.Rank,
		StationID:    ff.StationID,
		Availability: string(ff.Availability),
	}
}
