package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"fire/command/internal/dispatch"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

type APIError struct {
	Error   string      `json:"error"`
	Details interface{} `json:"details,omitempty"`
}

const (
	errInvalidPayload       = "invalid payload"
	errInvalidCallID        = "invalid call id"
	errInvalidStationID     = "invalid station id"
	errInvalidFirefighterID = "invalid firefighter id"
	errInvalidQuery         = "invalid query"
)

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload != nil {
		_ = json.NewEncoder(w).Encode(payload)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string, details interface{}) {
	s.writeJSON(w, status, APIError{Error: message, Details: details})
}

// writeDispatchError maps engine errors to HTTP statuses.
func (s *Server) writeDispatchError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusForError(err)
	if status >= http.StatusInternalServerError {
		s.log.Error().Err(err).Str("path", r.URL.Path).Msg("dispatch command failed")
	}
	s.writeError(w, status, http.StatusText(status), err.Error())
}

func statusForError(err error) int {
	switch {
	case errors.Is(err, dispatch.ErrInvalidCommand):
		return http.StatusBadRequest
	case errors.Is(err, dispatch.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, dispatch.ErrInvalidTransition), errors.Is(err, dispatch.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, dispatch.ErrPersistenceTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, dispatch.ErrPersistenceFailed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) decodeAndValidate(r *http.Request, dst interface{}) error {
	defer r.Body.Close()
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		return err
	}
	if err := s.validate.Struct(dst); err != nil {
		return err
	}
	return nil
}

func (s *Server) parseCallIDParam(r *http.Request) (string, error) {
	raw := strings.TrimSpace(chi.URLParam(r, "callID"))
	if raw == "" {
		return "", errors.New("missing id")
	}
	parsed, err := uuid.Parse(raw)
	if err != nil {
		return "", err
	}
	return parsed.String(), nil
}

func (s *Server) parseInt64Param(r *http.Request, key string) (int64, error) {
	raw := strings.TrimSpace(chi.URLParam(r, key))
	if raw == "" {
		return 0, errors.New("missing id")
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, err
	}
	if id <= 0 {
		return 0, errors.New("id must be positive")
	}
	return id, nil
}

func (s *Server) paginate(r *http.Request, defaultLimit int) (limit int, offset int) {
	query := r.URL.Query()
	limit = defaultLimit
	offset = 0
	if l := query.Get("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	if o := query.Get("offset"); o != "" {
		if parsed, err := strconv.Atoi(o); err == nil && parsed >= 0 {
			offset = parsed
		}
	}
	return
}

const (
	defaultPageSize = 50
	maxPageSize     = 500
)
