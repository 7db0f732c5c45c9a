package server

import (
	"net/http"
	"strconv"
)

// handleListStations godoc
// @Title List stations
// @Description Lists stations with their live load and free firefighters.
// @Resource Stations
// @Produce json
// @Success 200 {array} StationResponse
// @Route /v1/stations [get]
func (s *Server) handleListStations(w http.ResponseWriter, r *http.Request) {
	views := s.coord.Stations()
	resp := make([]StationResponse, 0, len(views))
	for _, v := range views {
		resp = append(resp, mapStation(v))
	}
	s.writeJSON(w, http.StatusOK, resp)
}

// handleListStationCalls godoc
// @Title List station calls
// @Description Lists calls assigned to a station, optionally filtered by status.
// @Resource Stations
// @Produce json
// @Param stationID path int true "Station ID"
// @Param status query string false "Comma separated statuses"
// @Success 200 {array} CallResponse
// @Failure 400 {object} APIError
// @Route /v1/stations/{stationID}/calls [get]
func (s *Server) handleListStationCalls(w http.ResponseWriter, r *http.Request) {
	stationID, err := s.parseInt64Param(r, "stationID")
	if err != nil {
		s.writeError(w, http.StatusBadRequest, errInvalidStationID, err.Error())
		return
	}

	filter, err := s.callFilter(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, errInvalidQuery, err.Error())
		return
	}
	filter.StationID = &stationID

	calls, err := s.coord.Calls(r.Context(), filter)
	if err != nil {
		s.writeDispatchError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, mapCalls(calls))
}

// handleListFirefighters godoc
// @Title List firefighters
// @Description Lists the roster with live availability.
// @Resource Stations
// @Produce json
// @Param station_id query int false "Only firefighters of this station"
// @Success 200 {array} FirefighterResponse
// @Route /v1/firefighters [get]
func (s *Server) handleListFirefighters(w http.ResponseWriter, r *http.Request) {
	var stationID int64
	if raw := r.URL.Query().Get("station_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			s.writeError(w, http.StatusBadRequest, errInvalidStationID, nil)
			return
		}
		stationID = id
	}

	resp := make([]FirefighterResponse, 0)
	for _, ff := range s.coord.Firefighters() {
		if stationID != 0 && ff.StationID != stationID {
			continue
		}
		resp = append(resp, mapFirefighter(ff))
	}
	s.writeJSON(w, http.StatusOK, resp)
}

// handleUpdateFirefighterDuty godoc
// @Title Set firefighter duty
// @Description Moves a firefighter on or off duty. Firefighters assigned to a call cannot go off duty.
// @Resource Stations
// @Accept json
// @Produce json
// @Param firefighterID path int true "Firefighter ID"
// @Param payload body UpdateDutyRequest true "Duty flag"
// @Success 200 {object} FirefighterResponse
// @Failure 404 {object} APIError
// @Failure 409 {object} APIError
// @Route /v1/firefighters/{firefighterID}/duty [patch]
func (s *Server) handleUpdateFirefighterDuty(w http.ResponseWriter, r *http.Request) {
	id, err := s.parseInt64Param(r, "firefighterID")
	if err != nil {
		s.writeError(w, http.StatusBadRequest, errInvalidFirefighterID, err.Error())
		return
	}

	var req UpdateDutyRequest
	if err := s.decodeAndValidate(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, errInvalidPayload, err.Error())
		return
	}

	ff, err := s.coord.SetFirefighterDuty(r.Context(), id, *req.OnDuty)
	if err != nil {
		s.writeDispatchError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, mapFirefighter(ff))
}
