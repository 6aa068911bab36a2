package server

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/bluele/gcache"
	"github.com/julienschmidt/httprouter"

	"tidbyt.dev/timetable"
	"tidbyt.dev/timetable/logging"
	"tidbyt.dev/timetable/model"
	"tidbyt.dev/timetable/publisher"
)

type datasetBody struct {
	Source      string    `json:"source"`
	Hash        string    `json:"hash"`
	RouteCount  int       `json:"routeCount"`
	StopCount   int       `json:"stopCount"`
	RetrievedAt time.Time `json:"retrievedAt"`
}

type healthBody struct {
	Status  string       `json:"status"`
	Dataset *datasetBody `json:"dataset,omitempty"`
}

type directionBody struct {
	Direction model.Direction `json:"direction"`
	Name      string          `json:"name"`
}

type routeBody struct {
	ID         string          `json:"id"`
	Display    string          `json:"display"`
	Directions []directionBody `json:"directions"`
}

type routesBody struct {
	Routes []routeBody `json:"routes"`
}

type stationsBody struct {
	RouteID   string          `json:"routeId"`
	Direction model.Direction `json:"direction,omitempty"`
	Stations  []string        `json:"stations"`
}

func (s *Server) datasetBody() *datasetBody {
	m := s.repo.Metadata()
	if m == nil {
		return nil
	}
	return &datasetBody{
		Source:      m.Source,
		Hash:        m.Hash,
		RouteCount:  m.RouteCount,
		StopCount:   m.StopCount,
		RetrievedAt: m.RetrievedAt,
	}
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	body := healthBody{Status: "ok", Dataset: s.datasetBody()}
	if body.Dataset == nil {
		body.Status = "loading"
	}
	s.writeJSON(w, r, http.StatusOK, body)
}

func (s *Server) handleRoutes(w http.ResponseWriter, r *http.Request) {
	stops, err := s.repo.Load(r.Context())
	if err != nil {
		s.simulationErrorResponse(w, r, err)
		return
	}

	body := routesBody{Routes: []routeBody{}}
	for _, route := range timetable.Routes(stops) {
		rb := routeBody{ID: route.ID, Display: route.Display, Directions: []directionBody{}}
		for _, d := range route.Directions {
			rb.Directions = append(rb.Directions, directionBody{Direction: d.Direction, Name: d.Name})
		}
		body.Routes = append(body.Routes, rb)
	}

	s.writeJSON(w, r, http.StatusOK, body)
}

func (s *Server) handleStations(w http.ResponseWriter, r *http.Request) {
	routeID := httprouter.ParamsFromContext(r.Context()).ByName("route")

	direction, err := parseDirection(r.URL.Query().Get("direction"))
	if err != nil {
		s.errorResponse(w, r, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	stops, err := s.repo.Load(r.Context())
	if err != nil {
		s.simulationErrorResponse(w, r, err)
		return
	}

	stations, err := timetable.Stations(stops, routeID, direction)
	if err != nil {
		s.simulationErrorResponse(w, r, err)
		return
	}

	s.writeJSON(w, r, http.StatusOK, stationsBody{
		RouteID:   routeID,
		Direction: direction,
		Stations:  stations,
	})
}

func (s *Server) handleTimetable(w http.ResponseWriter, r *http.Request) {
	q, err := s.parseQuery(r)
	if err != nil {
		s.errorResponse(w, r, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	tt, err := s.simulate(r, q)
	if err != nil {
		s.simulationErrorResponse(w, r, err)
		return
	}

	s.writeJSON(w, r, http.StatusOK, publisher.NewTimetableMessage(tt, s.timeNow()))
}

func (s *Server) handleReload(w http.ResponseWriter, r *http.Request) {
	_, err := s.repo.Reload(r.Context())
	if err != nil {
		if s.metrics != nil {
			s.metrics.DatasetReloads.WithLabelValues("error").Inc()
		}
		s.simulationErrorResponse(w, r, err)
		return
	}

	s.purgeCache()

	metadata := s.repo.Metadata()
	if s.metrics != nil {
		s.metrics.DatasetReloads.WithLabelValues("ok").Inc()
		s.metrics.ObserveDataset(metadata.RouteCount, metadata.StopCount)
	}

	err = s.publisher.PublishReload(metadata)
	if err != nil {
		logging.LogError(logging.FromContext(r.Context()), "publishing reload", err)
	}

	s.writeJSON(w, r, http.StatusOK, s.datasetBody())
}

// Computes a timetable, or serves it from cache.
func (s *Server) simulate(r *http.Request, q timetable.Query) (*timetable.Timetable, error) {
	key := cacheKey(q)

	if s.cache != nil {
		cached, err := s.cache.Get(key)
		if err == nil {
			if s.metrics != nil {
				s.metrics.CacheHits.Inc()
			}
			return cached.(*timetable.Timetable), nil
		}
		if err != gcache.KeyNotFoundError {
			logging.LogError(logging.FromContext(r.Context()), "reading cache", err)
		}
		if s.metrics != nil {
			s.metrics.CacheMisses.Inc()
		}
	}

	stops, err := s.repo.Load(r.Context())
	if err != nil {
		return nil, err
	}

	start := time.Now()
	tt, err := timetable.Simulate(stops, q)
	if err != nil {
		return nil, err
	}
	if s.metrics != nil {
		s.metrics.SimulationDuration.Observe(time.Since(start).Seconds())
		s.metrics.TimetablesComputed.Inc()
	}

	if s.cache != nil {
		err = s.cache.Set(key, tt)
		if err != nil {
			logging.LogError(logging.FromContext(r.Context()), "writing cache", err)
		}
	}

	err = s.publisher.PublishTimetable(tt)
	if err != nil {
		logging.LogError(logging.FromContext(r.Context()), "publishing timetable", err)
	}

	return tt, nil
}

func (s *Server) parseQuery(r *http.Request) (timetable.Query, error) {
	params := r.URL.Query()

	q := timetable.Query{
		RouteID: httprouter.ParamsFromContext(r.Context()).ByName("route"),
		Station: strings.TrimSpace(params.Get("station")),
		Window:  s.window,
	}
	if q.Station == "" {
		return q, fmt.Errorf("station is required")
	}

	now := s.timeNow().In(s.location)
	q.At = now
	if v := params.Get("at"); v != "" {
		t, err := time.Parse(timetable.ClockFormat, v)
		if err != nil {
			return q, fmt.Errorf("at must be HH:MM")
		}
		q.At = time.Date(now.Year(), now.Month(), now.Day(), t.Hour(), t.Minute(), 0, 0, s.location)
	}

	rest := s.restMinutes
	if v := params.Get("rest"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return q, fmt.Errorf("rest must be a non-negative integer")
		}
		rest = n
	}
	q.RestMinutes = &rest

	direction, err := parseDirection(params.Get("direction"))
	if err != nil {
		return q, err
	}
	q.Direction = direction

	return q, nil
}

func parseDirection(v string) (model.Direction, error) {
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	d := model.Direction(n)
	if err != nil || int(d) != n || !d.Valid() {
		return 0, fmt.Errorf("direction must be %d or %d", model.DirectionOutbound, model.DirectionReturn)
	}
	return d, nil
}

func cacheKey(q timetable.Query) string {
	rest := -1
	if q.RestMinutes != nil {
		rest = *q.RestMinutes
	}
	return fmt.Sprintf(
		"%s\x00%s\x00%s\x00%d\x00%d",
		q.RouteID, q.Station, q.At.Format("2006-01-02T15:04"), rest, q.Direction,
	)
}
