package timetable

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tidbyt.dev/timetable/model"
	"tidbyt.dev/timetable/testutil"
)

func stations(table *Table) []string {
	s := []string{}
	for _, r := range table.Rows {
		s = append(s, r.Station)
	}
	return s
}

func TestPresent(t *testing.T) {
	_, _, grid := scenarioGrid(t)

	outbound, ret := Present(grid)

	assert.Equal(t, model.DirectionOutbound, outbound.Direction)
	assert.Equal(t, model.DirectionReturn, ret.Direction)
	assert.Equal(t, grid.Columns, outbound.Columns)
	assert.Equal(t, grid.Columns, ret.Columns)

	assert.Equal(t, []string{"A"}, stations(outbound))
	assert.Equal(t, []string{"B", "C"}, stations(ret))
	assert.Equal(t, grid.Row("B_order2").Cells, ret.Rows[0].Cells)

	// Tables don't share memory with the grid
	ret.Rows[0].Cells[0] = "xx:xx"
	ret.Columns[0] = "xx:xx"
	assert.NotEqual(t, "xx:xx", grid.Row("B_order2").Cells[0])
	assert.NotEqual(t, "xx:xx", grid.Columns[0])
}

func TestPresentSharedTerminal(t *testing.T) {
	loop, err := BuildLoop(testutil.LoadStops(t, "memory", []string{
		testutil.Header,
		"r1,,1,,1,T,3",
		"r1,,1,,2,X,4",
		"r1,,1,,3,Y,",
		"r1,,2,,1,Y,2",
		"r1,,2,,2,Z,6",
		"r1,,2,,3,T,",
	}), "r1")
	require.NoError(t, err)

	deps, err := GenerateDepartures(loop, "T", clock(12, 0), DefaultDepartureOptions())
	require.NoError(t, err)

	grid, err := BuildGrid(loop, deps.Times, clock(12, 0), deps.AnchorKey)
	require.NoError(t, err)

	outbound, ret := Present(grid)
	assert.Equal(t, []string{"T", "X"}, stations(outbound))
	assert.Equal(t, []string{"Y", "Z", "T"}, stations(ret))

	// The terminal shows both its departure and its arrival
	col := grid.Column("12:00")
	require.NotEqual(t, -1, col)
	assert.Equal(t, "12:00", outbound.Rows[0].Cells[col])
	assert.Equal(t, "12:15", ret.Rows[2].Cells[col])
}
