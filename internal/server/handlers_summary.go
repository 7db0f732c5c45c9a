package server

import (
	"net/http"
	"strings"

	"fire/command/internal/dispatch"
)

// handleGetSummary godoc
// @Title Live summary
// @Description Returns the incrementally maintained count of calls per status.
// @Resource Summary
// @Produce json
// @Success 200 {object} dispatch.Summary
// @Route /v1/summary [get]
func (s *Server) handleGetSummary(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.coord.Summary())
}

// handleReconcileSummary godoc
// @Title Reconcile summary
// @Description Recounts calls from the registry and replaces the live counts when they drifted.
// @Resource Summary
// @Produce json
// @Success 200 {object} ReconcileResponse
// @Failure 503 {object} APIError
// @Route /v1/summary/reconcile [post]
func (s *Server) handleReconcileSummary(w http.ResponseWriter, r *http.Request) {
	report, err := s.coord.Reconcile(r.Context())
	if err != nil {
		s.writeDispatchError(w, r, err)
		return
	}
	s.log.Info().
		Bool("drifted", report.Drifted).
		Uint64("version", report.After.Version).
		Str("actor", actor(r)).
		Msg("summary reconciled on demand")
	s.writeJSON(w, http.StatusOK, ReconcileResponse{
		Drifted: report.Drifted,
		Before:  report.Before,
		After:   report.After,
	})
}

// handleBroadcastAlert godoc
// @Title Broadcast alert
// @Description Sends a SYSTEM_ALERT to every connected client.
// @Resource Alerts
// @Accept json
// @Produce json
// @Param payload body BroadcastAlertRequest true "Alert"
// @Success 201 {object} AlertResponse
// @Failure 400 {object} APIError
// @Route /v1/alerts [post]
func (s *Server) handleBroadcastAlert(w http.ResponseWriter, r *http.Request) {
	var req BroadcastAlertRequest
	if err := s.decodeAndValidate(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, errInvalidPayload, err.Error())
		return
	}

	alert, err := s.coord.BroadcastAlert(dispatch.AlertType(strings.ToUpper(req.AlertType)), req.Message)
	if err != nil {
		s.writeDispatchError(w, r, err)
		return
	}
	s.log.Info().Str("alert_type", string(alert.Type)).Str("actor", actor(r)).Msg("operator alert broadcast")
	s.writeJSON(w, http.StatusCreated, AlertResponse{
		Message:   alert.Message,
		AlertType: string(alert.Type),
		Timestamp: alert.Timestamp,
	})
}
