package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"tidbyt.dev/timetable/logging"
)

const RequestIDHeader = "X-Request-ID"

// Captures the status code written by a handler.
type statusWriter struct {
	http.ResponseWriter
	statusCode int
}

func (w *statusWriter) WriteHeader(code int) {
	w.statusCode = code
	w.ResponseWriter.WriteHeader(code)
}

// Assigns each request an id, makes a logger carrying it available
// to handlers, and logs the request once served.
func (s *Server) requestLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		requestID := r.Header.Get(RequestIDHeader)
		if requestID == "" {
			requestID = uuid.New().String()
		}
		w.Header().Set(RequestIDHeader, requestID)

		logger := s.logger.With(slog.String("request_id", requestID))
		r = r.WithContext(logging.WithLogger(r.Context(), logger))

		wrapped := &statusWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(wrapped, r)

		logging.LogHTTPRequest(logger,
			r.Method,
			r.URL.Path,
			wrapped.statusCode,
			float64(time.Since(start).Nanoseconds())/1e6,
			slog.String("user_agent", r.Header.Get("User-Agent")),
		)
	})
}
