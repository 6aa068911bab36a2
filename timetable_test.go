package timetable

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tidbyt.dev/timetable/model"
	"tidbyt.dev/timetable/testutil"
)

func TestSimulate(t *testing.T) {
	stops := testutil.LoadStops(t, "sqlite", testutil.SimpleRoute())

	tt, err := Simulate(stops, Query{
		RouteID: "r1",
		Station: "B",
		At:      clock(8, 10),
	})
	require.NoError(t, err)

	assert.Equal(t, "r1", tt.RouteID)
	assert.Equal(t, "Route One", tt.RouteDisplay)
	assert.Equal(t, "Eastbound", tt.OutboundName)
	assert.Equal(t, "Westbound", tt.ReturnName)
	assert.Equal(t, 22*time.Minute, tt.Departures.Headway)
	assert.Equal(t, clock(8, 10), tt.At)

	col := tt.Grid.Column("08:05")
	require.NotEqual(t, -1, col)
	assert.Equal(t, []string{"A"}, stations(tt.Outbound))
	assert.Equal(t, []string{"B", "C"}, stations(tt.Return))
	assert.Equal(t, "08:05", tt.Outbound.Rows[0].Cells[col])
	assert.Equal(t, "08:10", tt.Return.Rows[0].Cells[col])
	assert.Equal(t, "08:17", tt.Return.Rows[1].Cells[col])
}

func TestSimulateRest(t *testing.T) {
	stops := testutil.LoadStops(t, "memory", testutil.SimpleRoute())

	zero := 0
	tt, err := Simulate(stops, Query{RouteID: "r1", Station: "A", At: clock(12, 0), RestMinutes: &zero})
	require.NoError(t, err)
	assert.Equal(t, 12*time.Minute, tt.Departures.Headway)

	negative := -5
	_, err = Simulate(stops, Query{RouteID: "r1", Station: "A", At: clock(12, 0), RestMinutes: &negative})
	assert.True(t, errors.Is(err, ErrInvalidHeadway))
}

func TestSimulateDefaultNames(t *testing.T) {
	stops := testutil.LoadStops(t, "memory", []string{
		"route_id,direction,order,stop_name,time_to_next",
		"7,1,1,A,3",
		"7,1,2,B,",
		"7,2,1,B,3",
		"7,2,2,A,",
	})

	tt, err := Simulate(stops, Query{RouteID: "7", Station: "A", At: clock(12, 0)})
	require.NoError(t, err)
	assert.Equal(t, "7", tt.RouteDisplay)
	assert.Equal(t, DefaultOutboundName, tt.OutboundName)
	assert.Equal(t, DefaultReturnName, tt.ReturnName)
}

func TestSimulateDirectionScopesStation(t *testing.T) {
	stops := testutil.LoadStops(t, "memory", testutil.SimpleRoute())

	_, err := Simulate(stops, Query{RouteID: "r1", Station: "C", At: clock(8, 0), Direction: model.DirectionOutbound})
	assert.True(t, errors.Is(err, ErrStationNotFound))

	tt, err := Simulate(stops, Query{RouteID: "r1", Station: "C", At: clock(8, 0), Direction: model.DirectionReturn})
	require.NoError(t, err)

	// Direction doesn't limit the simulation
	assert.Equal(t, 1, len(tt.Outbound.Rows))
	assert.Equal(t, 2, len(tt.Return.Rows))

	_, err = Simulate(stops, Query{RouteID: "r1", Station: "C", At: clock(8, 0), Direction: 3})
	assert.Error(t, err)
}

func TestSimulateNotFound(t *testing.T) {
	stops := testutil.LoadStops(t, "memory", testutil.SimpleRoute())

	tt, err := Simulate(stops, Query{RouteID: "r1", Station: "nope", At: clock(8, 0)})
	assert.True(t, errors.Is(err, ErrStationNotFound))
	assert.Nil(t, tt)

	tt, err = Simulate(stops, Query{RouteID: "r2", Station: "A", At: clock(8, 0)})
	assert.True(t, errors.Is(err, ErrRouteNotFound))
	assert.Nil(t, tt)

	_, err = Simulate(stops, Query{RouteID: "r2", Station: "A", At: clock(8, 0), Direction: model.DirectionOutbound})
	assert.True(t, errors.Is(err, ErrRouteNotFound))
}
