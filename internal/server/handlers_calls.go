package server

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"fire/command/internal/dispatch"
	"fire/command/internal/realtime"

	"github.com/go-chi/chi/v5"
)

// handleCreateCall godoc
// @Title Create emergency call
// @Description Registers a new call as PENDING. With auto dispatch on, an allocation pass runs immediately.
// @Resource Calls
// @Accept json
// @Produce json
// @Param payload body CreateCallRequest true "Call payload"
// @Success 201 {object} CallResponse
// @Failure 400 {object} APIError
// @Failure 503 {object} APIError
// @Route /v1/calls [post]
func (s *Server) handleCreateCall(w http.ResponseWriter, r *http.Request) {
	var req CreateCallRequest
	if err := s.decodeAndValidate(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, errInvalidPayload, err.Error())
		return
	}

	// Both were checked by the validator.
	kind, _ := dispatch.ParseIncidentType(req.IncidentType)
	priority, _ := dispatch.ParsePriority(req.Priority)

	call, err := s.coord.CreateCall(r.Context(), dispatch.NewCall{
		CallerName:      strings.TrimSpace(req.CallerName),
		CallerPhone:     strings.TrimSpace(req.CallerPhone),
		IncidentAddress: strings.TrimSpace(req.IncidentAddress),
		Latitude:        req.Latitude,
		Longitude:       req.Longitude,
		IncidentType:    kind,
		Priority:        priority,
		Description:     req.Description,
	})
	if err != nil {
		s.writeDispatchError(w, r, err)
		return
	}

	s.log.Info().
		Str("call_id", call.ID).
		Str("call_number", call.CallNumber).
		Str("actor", actor(r)).
		Msg("emergency call received")
	s.writeJSON(w, http.StatusCreated, realtime.NewCallView(call))
}

// handleListCalls godoc
// @Title List calls
// @Description Lists calls newest first, filtered by status, received time range and station.
// @Resource Calls
// @Produce json
// @Param status query string false "Comma separated statuses"
// @Param from query string false "Received at or after (RFC3339)"
// @Param to query string false "Received at or before (RFC3339)"
// @Param station_id query int false "Assigned station"
// @Param limit query int false "Max results"
// @Param offset query int false "Offset"
// @Success 200 {array} CallResponse
// @Failure 400 {object} APIError
// @Route /v1/calls [get]
func (s *Server) handleListCalls(w http.ResponseWriter, r *http.Request) {
	filter, err := s.callFilter(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, errInvalidQuery, err.Error())
		return
	}

	calls, err := s.coord.Calls(r.Context(), filter)
	if err != nil {
		s.writeDispatchError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, mapCalls(calls))
}

// handleListActiveCalls godoc
// @Title List active calls
// @Description Lists every call that is neither cleared nor cancelled.
// @Resource Calls
// @Produce json
// @Success 200 {array} CallResponse
// @Route /v1/calls/active [get]
func (s *Server) handleListActiveCalls(w http.ResponseWriter, r *http.Request) {
	calls, err := s.coord.ActiveCalls(r.Context())
	if err != nil {
		s.writeDispatchError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, mapCalls(calls))
}

// handleGetCall godoc
// @Title Get call
// @Resource Calls
// @Produce json
// @Param callID path string true "Call ID"
// @Success 200 {object} CallResponse
// @Failure 404 {object} APIError
// @Route /v1/calls/{callID} [get]
func (s *Server) handleGetCall(w http.ResponseWriter, r *http.Request) {
	id, err := s.parseCallIDParam(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, errInvalidCallID, err.Error())
		return
	}

	call, err := s.coord.Call(r.Context(), id)
	if err != nil {
		s.writeDispatchError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, realtime.NewCallView(call))
}

// handleGetCallByNumber godoc
// @Title Get call by number
// @Resource Calls
// @Produce json
// @Param callNumber path string true "Call number, e.g. CALL-20240101-120000-0001"
// @Success 200 {object} CallResponse
// @Failure 404 {object} APIError
// @Route /v1/calls/by-number/{callNumber} [get]
func (s *Server) handleGetCallByNumber(w http.ResponseWriter, r *http.Request) {
	number := strings.TrimSpace(chi.URLParam(r, "callNumber"))
	if number == "" {
		s.writeError(w, http.StatusBadRequest, "invalid call number", nil)
		return
	}

	call, err := s.coord.CallByNumber(r.Context(), number)
	if err != nil {
		s.writeDispatchError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, realtime.NewCallView(call))
}

// handleDispatchCall godoc
// @Title Request dispatch
// @Description Runs an allocation pass. NO_CAPACITY is a normal outcome; the call stays queued.
// @Resource Calls
// @Produce json
// @Param callID path string true "Call ID"
// @Success 200 {object} CommandResponse
// @Failure 404 {object} APIError
// @Failure 409 {object} APIError
// @Route /v1/calls/{callID}/dispatch [post]
func (s *Server) handleDispatchCall(w http.ResponseWriter, r *http.Request) {
	id, err := s.parseCallIDParam(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, errInvalidCallID, err.Error())
		return
	}

	res, err := s.coord.RequestDispatch(r.Context(), id)
	if err != nil {
		s.writeDispatchError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, mapCommand(res))
}

// handleUpdateCallStatus godoc
// @Title Advance call status
// @Description Applies the event leading to the requested status. Accepts a status (EN_ROUTE) or an event name (ARRIVE).
// @Resource Calls
// @Accept json
// @Produce json
// @Param callID path string true "Call ID"
// @Param payload body UpdateCallStatusRequest true "Target status"
// @Success 200 {object} CommandResponse
// @Failure 400 {object} APIError
// @Failure 409 {object} APIError
// @Route /v1/calls/{callID}/status [patch]
func (s *Server) handleUpdateCallStatus(w http.ResponseWriter, r *http.Request) {
	id, err := s.parseCallIDParam(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, errInvalidCallID, err.Error())
		return
	}

	var req UpdateCallStatusRequest
	if err := s.decodeAndValidate(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, errInvalidPayload, err.Error())
		return
	}
	ev, err := dispatch.ParseEvent(req.Status)
	if err != nil {
		s.writeDispatchError(w, r, err)
		return
	}

	res, err := s.coord.AdvanceStatus(r.Context(), id, ev)
	if err != nil {
		s.writeDispatchError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, mapCommand(res))
}

// handleCancelCall godoc
// @Title Cancel call
// @Description Cancels a PENDING or DISPATCHED call and releases its resources.
// @Resource Calls
// @Produce json
// @Param callID path string true "Call ID"
// @Success 200 {object} CommandResponse
// @Failure 409 {object} APIError
// @Route /v1/calls/{callID}/cancel [post]
func (s *Server) handleCancelCall(w http.ResponseWriter, r *http.Request) {
	id, err := s.parseCallIDParam(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, errInvalidCallID, err.Error())
		return
	}

	res, err := s.coord.CancelCall(r.Context(), id)
	if err != nil {
		s.writeDispatchError(w, r, err)
		return
	}
	s.log.Info().Str("call_id", id).Str("actor", actor(r)).Msg("call cancelled")
	s.writeJSON(w, http.StatusOK, mapCommand(res))
}

// handleUpdateCallPriority godoc
// @Title Re-evaluate priority
// @Description Changes the priority of a call that is still PENDING.
// @Resource Calls
// @Accept json
// @Produce json
// @Param callID path string true "Call ID"
// @Param payload body UpdateCallPriorityRequest true "New priority"
// @Success 200 {object} CommandResponse
// @Failure 409 {object} APIError
// @Route /v1/calls/{callID}/priority [patch]
func (s *Server) handleUpdateCallPriority(w http.ResponseWriter, r *http.Request) {
	id, err := s.parseCallIDParam(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, errInvalidCallID, err.Error())
		return
	}

	var req UpdateCallPriorityRequest
	if err := s.decodeAndValidate(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, errInvalidPayload, err.Error())
		return
	}

	priority, _ := dispatch.ParsePriority(req.Priority)
	res, err := s.coord.UpdatePriority(r.Context(), id, priority)
	if err != nil {
		s.writeDispatchError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, mapCommand(res))
}

// handleReportCallLocation godoc
// @Title Report responder location
// @Description Records the position of the unit assigned to an active call.
// @Resource Calls
// @Accept json
// @Produce json
// @Param callID path string true "Call ID"
// @Param payload body ReportLocationRequest true "Position"
// @Success 200 {object} CommandResponse
// @Failure 409 {object} APIError
// @Route /v1/calls/{callID}/location [post]
func (s *Server) handleReportCallLocation(w http.ResponseWriter, r *http.Request) {
	id, err := s.parseCallIDParam(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, errInvalidCallID, err.Error())
		return
	}

	var req ReportLocationRequest
	if err := s.decodeAndValidate(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, errInvalidPayload, err.Error())
		return
	}

	res, err := s.coord.ReportLocation(r.Context(), id, *req.Latitude, *req.Longitude)
	if err != nil {
		s.writeDispatchError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, mapCommand(res))
}

func (s *Server) callFilter(r *http.Request) (dispatch.CallFilter, error) {
	query := r.URL.Query()
	var filter dispatch.CallFilter
	filter.Limit, filter.Offset = s.paginate(r, defaultPageSize)

	if raw := query.Get("status"); raw != "" {
		for _, part := range strings.Split(raw, ",") {
			status, err := dispatch.ParseStatus(part)
			if err != nil {
				return filter, err
			}
			filter.Statuses = append(filter.Statuses, status)
		}
	}
	if raw := query.Get("from"); raw != "" {
		from, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return filter, errors.New("from must be RFC3339")
		}
		filter.From = &from
	}
	if raw := query.Get("to"); raw != "" {
		to, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return filter, errors.New("to must be RFC3339")
		}
		filter.To = &to
	}
	if filter.From != nil && filter.To != nil && filter.To.Before(*filter.From) {
		return filter, errors.New("to is before from")
	}
	if raw := query.Get("station_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			return filter, errors.New("station_id must be a positive integer")
		}
		filter.StationID = &id
	}
	return filter, nil
}
