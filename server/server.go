package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/bluele/gcache"
	"github.com/julienschmidt/httprouter"

	"tidbyt.dev/timetable"
	"tidbyt.dev/timetable/metrics"
	"tidbyt.dev/timetable/publisher"
)

type Options struct {
	Logger *slog.Logger

	// Optional. When set, requests are instrumented.
	Metrics *metrics.Collector

	// Serve Metrics on /metrics.
	ExposeMetrics bool

	// Optional. Computed timetables and reloads are announced here.
	Publisher publisher.Publisher

	// Timetables kept in the LRU result cache. 0 disables it.
	CacheSize int
	CacheTTL  time.Duration

	RestMinutes int
	Window      timetable.DayWindow

	// Zone used for "at" query parameters and the current time.
	Location *time.Location
	TimeNow  func() time.Time
}

// HTTP API for route listings and timetable simulation.
type Server struct {
	repo      *timetable.Repository
	logger    *slog.Logger
	metrics   *metrics.Collector
	publisher publisher.Publisher
	cache     gcache.Cache

	restMinutes int
	window      timetable.DayWindow
	location    *time.Location
	timeNow     func() time.Time

	router *httprouter.Router
}

func New(repo *timetable.Repository, opts Options) *Server {
	s := &Server{
		repo:        repo,
		logger:      opts.Logger,
		metrics:     opts.Metrics,
		publisher:   opts.Publisher,
		restMinutes: opts.RestMinutes,
		window:      opts.Window,
		location:    opts.Location,
		timeNow:     opts.TimeNow,
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.publisher == nil {
		s.publisher = publisher.Nop{}
	}
	if s.location == nil {
		s.location = time.Local
	}
	if s.timeNow == nil {
		s.timeNow = time.Now
	}
	if opts.CacheSize > 0 {
		builder := gcache.New(opts.CacheSize).LRU()
		if opts.CacheTTL > 0 {
			builder = builder.Expiration(opts.CacheTTL)
		}
		s.cache = builder.Build()
	}

	s.router = httprouter.New()
	s.handle(http.MethodGet, "/healthz", "healthz", s.handleHealthz)
	s.handle(http.MethodGet, "/routes", "routes", s.handleRoutes)
	s.handle(http.MethodGet, "/routes/:route/stations", "stations", s.handleStations)
	s.handle(http.MethodGet, "/routes/:route/timetable", "timetable", s.handleTimetable)
	s.handle(http.MethodPost, "/reload", "reload", s.handleReload)
	if s.metrics != nil && opts.ExposeMetrics {
		s.router.Handler(http.MethodGet, "/metrics", s.metrics.Handler())
	}
	s.router.NotFound = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.errorResponse(w, r, http.StatusNotFound, "not_found", "no such endpoint")
	})

	return s
}

func (s *Server) Handler() http.Handler {
	return s.requestLogging(s.router)
}

// Serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http listening", slog.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serving: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err := srv.Shutdown(shutdownCtx)
	if err != nil {
		return fmt.Errorf("shutting down: %w", err)
	}
	return nil
}

// Registers a handler, instrumented under the given name.
func (s *Server) handle(method, path, name string, h http.HandlerFunc) {
	s.router.Handler(method, path, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.metrics == nil {
			h(w, r)
			return
		}
		start := time.Now()
		rw := &statusWriter{ResponseWriter: w, statusCode: http.StatusOK}
		h(rw, r)
		s.metrics.ObserveRequest(name, rw.statusCode, time.Since(start))
	}))
}

func (s *Server) purgeCache() {
	if s.cache != nil {
		s.cache.Purge()
	}
}
