package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"tidbyt.dev/timetable"
	"tidbyt.dev/timetable/logging"
)

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func (s *Server) writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	err := json.NewEncoder(w).Encode(v)
	if err != nil {
		logging.LogError(logging.FromContext(r.Context()), "failed to encode response", err)
	}
}

func (s *Server) errorResponse(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	s.writeJSON(w, r, status, errorBody{Error: code, Message: message})
}

// Maps core errors onto HTTP statuses.
func (s *Server) simulationErrorResponse(w http.ResponseWriter, r *http.Request, err error) {
	status, code := classify(err)

	if s.metrics != nil {
		s.metrics.SimulationErrors.WithLabelValues(code).Inc()
	}
	if status >= 500 {
		logging.LogError(logging.FromContext(r.Context()), "request failed", err,
			slog.String("path", r.URL.Path))
	}

	s.errorResponse(w, r, status, code, err.Error())
}

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, timetable.ErrStationNotFound), errors.Is(err, timetable.ErrRouteNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, timetable.ErrEmptyDirection), errors.Is(err, timetable.ErrInvalidHeadway):
		return http.StatusUnprocessableEntity, "unprocessable"
	case errors.Is(err, timetable.ErrDataLoad):
		return http.StatusServiceUnavailable, "unavailable"
	}
	return http.StatusInternalServerError, "internal"
}
