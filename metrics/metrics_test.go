package metrics

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollector(t *testing.T) {
	c := NewCollector(10)

	c.ObserveRequest("timetable", 200, 3*time.Millisecond)
	c.ObserveRequest("timetable", 200, 5*time.Millisecond)
	c.ObserveRequest("timetable", 404, time.Millisecond)
	c.ObserveDataset(3, 42)
	c.NATSPublishedInc()
	c.NATSPublishErrInc()
	c.NATSSetConnected(true)

	assert.Equal(t, 2.0, testutil.ToFloat64(c.Requests.WithLabelValues("timetable", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.Requests.WithLabelValues("timetable", "404")))
	assert.Equal(t, 3.0, testutil.ToFloat64(c.DatasetRoutes))
	assert.Equal(t, 42.0, testutil.ToFloat64(c.DatasetStops))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.NATSPublished))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.NATSPublishErrs))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.NATSConnected))
	assert.Equal(t, 10.0, testutil.ToFloat64(c.RestMinutes))

	c.NATSSetConnected(false)
	assert.Equal(t, 0.0, testutil.ToFloat64(c.NATSConnected))
}

func TestHandler(t *testing.T) {
	c := NewCollector(10)
	c.TimetablesComputed.Inc()

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, 200, rec.Code)

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "timetable_simulations_total 1")
	assert.Contains(t, string(body), "timetable_rest_minutes 10")
}

func TestCollectorsAreIndependent(t *testing.T) {
	a := NewCollector(1)
	b := NewCollector(2)
	a.CacheHits.Inc()
	assert.Equal(t, 1.0, testutil.ToFloat64(a.CacheHits))
	assert.Equal(t, 0.0, testutil.ToFloat64(b.CacheHits))
}
