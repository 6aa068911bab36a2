package metrics

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Collector struct {
	reg *prometheus.Registry

	Requests        *prometheus.CounterVec   // handler, code
	RequestDuration *prometheus.HistogramVec // handler

	TimetablesComputed prometheus.Counter
	SimulationErrors   *prometheus.CounterVec // reason: not_found|unprocessable|unavailable|other
	SimulationDuration prometheus.Histogram

	CacheHits   prometheus.Counter
	CacheMisses prometheus.Counter

	DatasetReloads *prometheus.CounterVec // result: ok|error
	DatasetRoutes  prometheus.Gauge
	DatasetStops   prometheus.Gauge

	NATSPublished   prometheus.Counter
	NATSPublishErrs prometheus.Counter
	NATSConnected   prometheus.Gauge
	PublishDuration prometheus.Histogram

	RestMinutes prometheus.Gauge
}

func NewCollector(restMinutes int) *Collector {
	reg := prometheus.NewRegistry()

	c := &Collector{
		reg: reg,
		Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "timetable_http_requests_total",
			Help: "HTTP requests served.",
		}, []string{"handler", "code"}),
		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "timetable_http_request_duration_seconds",
			Help:    "Time spent serving HTTP requests.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 15),
		}, []string{"handler"}),
		TimetablesComputed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "timetable_simulations_total",
			Help: "Timetables computed.",
		}),
		SimulationErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "timetable_simulation_errors_total",
			Help: "Timetable requests that failed.",
		}, []string{"reason"}),
		SimulationDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "timetable_simulation_duration_seconds",
			Help:    "Time spent computing a timetable.",
			Buckets: prometheus.ExponentialBuckets(0.0001, 2, 15),
		}),
		CacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "timetable_cache_hits_total",
			Help: "Timetables served from cache.",
		}),
		CacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "timetable_cache_misses_total",
			Help: "Timetables not found in cache.",
		}),
		DatasetReloads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "timetable_dataset_reloads_total",
			Help: "Dataset reload attempts.",
		}, []string{"result"}),
		DatasetRoutes: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "timetable_dataset_routes",
			Help: "Routes in the loaded dataset.",
		}),
		DatasetStops: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "timetable_dataset_stops",
			Help: "Stop records in the loaded dataset.",
		}),
		NATSPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "timetable_nats_published_total",
			Help: "Total NATS messages published.",
		}),
		NATSPublishErrs: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "timetable_nats_publish_errors_total",
			Help: "Total NATS publish errors.",
		}),
		NATSConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "timetable_nats_connected",
			Help: "1 if NATS connection is established, 0 otherwise.",
		}),
		PublishDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "timetable_publish_duration_seconds",
			Help:    "Duration to marshal and publish a NATS message.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 15),
		}),
		RestMinutes: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "timetable_rest_minutes",
			Help: "Default turnaround time added to each lap.",
		}),
	}

	reg.MustRegister(
		c.Requests, c.RequestDuration,
		c.TimetablesComputed, c.SimulationErrors, c.SimulationDuration,
		c.CacheHits, c.CacheMisses,
		c.DatasetReloads, c.DatasetRoutes, c.DatasetStops,
		c.NATSPublished, c.NATSPublishErrs, c.NATSConnected, c.PublishDuration,
		c.RestMinutes,
	)

	c.RestMinutes.Set(float64(restMinutes))

	return c
}

func (c *Collector) ObserveRequest(handler string, code int, d time.Duration) {
	c.Requests.WithLabelValues(handler, strconv.Itoa(code)).Inc()
	c.RequestDuration.WithLabelValues(handler).Observe(d.Seconds())
}

func (c *Collector) ObserveDataset(routes, stops int) {
	c.DatasetRoutes.Set(float64(routes))
	c.DatasetStops.Set(float64(stops))
}

// Implements publisher.PublisherMetrics.

func (c *Collector) NATSPublishedInc() { c.NATSPublished.Inc() }
func (c *Collector) NATSPublishErrInc() { c.NATSPublishErrs.Inc() }
func (c *Collector) PublishObserve(d time.Duration) { c.PublishDuration.Observe(d.Seconds()) }
func (c *Collector) NATSSetConnected(connected bool) {
	if connected {
		c.NATSConnected.Set(1)
	} else {
		c.NATSConnected.Set(0)
	}
}

func (c *Collector) Registry() *prometheus.Registry { return c.reg }

func (c *Collector) Handler() http.Handler { return promhttp.HandlerFor(c.reg, promhttp.HandlerOpts{}) }

// Serve starts an HTTP server exposing /metrics on the given address.
func (c *Collector) Serve(addr string, logger *slog.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", c.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server error", slog.String("error", err.Error()))
		}
	}()
	logger.Info("metrics listening", slog.String("addr", addr))
	return srv
}
