package timetable

import (
	"fmt"
	"sort"
	"time"

	"tidbyt.dev/timetable/model"
)

// Times in grids are zero padded "HH:MM" strings. Within a single day
// these sort lexicographically in chronological order, which the
// aggregation and suppression below rely on.
//
// TODO: compare time.Time values instead if grids ever span midnight.
const ClockFormat = "15:04"

type GridRow struct {
	Key       model.StationKey
	StopName  string
	Position  int
	Direction model.Direction

	// Arrival times, aligned with Grid.Columns. Empty string
	// where there is no arrival to show.
	Cells []string
}

// Arrival times per loop stop (rows, in loop order) and departure
// (columns, chronological).
type Grid struct {
	Columns   []string
	Rows      []GridRow
	AnchorKey model.StationKey
}

type gridCell struct {
	key       model.StationKey
	stopName  string
	departure string
	direction model.Direction
}

// Expands departures into per stop arrival times.
//
// Arrivals at the anchor station earlier than at are blanked in all
// columns before the one departing at the implied start, hiding laps
// that have already passed.
func BuildGrid(
	loop *RouteLoop,
	departures []time.Time,
	at time.Time,
	anchorKey model.StationKey,
) (*Grid, error) {

	anchor, found := loop.Stop(anchorKey)
	if !found {
		return nil, fmt.Errorf("%w: %q on route %q", ErrStationNotFound, anchorKey, loop.RouteID)
	}

	// Earliest arrival per stop and departure.
	arrivals := map[gridCell]string{}
	columnSet := map[string]bool{}
	for _, dep := range departures {
		depStr := dep.Format(ClockFormat)
		columnSet[depStr] = true

		for _, stop := range loop.Stops {
			cell := gridCell{
				key:       stop.Key,
				stopName:  stop.StopName,
				departure: depStr,
				direction: stop.Direction,
			}
			arrival := dep.Add(stop.Cumulative).Format(ClockFormat)
			if prev, ok := arrivals[cell]; !ok || arrival < prev {
				arrivals[cell] = arrival
			}
		}
	}

	columns := make([]string, 0, len(columnSet))
	for c := range columnSet {
		columns = append(columns, c)
	}
	sort.Strings(columns)

	grid := &Grid{
		Columns:   columns,
		Rows:      make([]GridRow, 0, len(loop.Stops)),
		AnchorKey: anchorKey,
	}

	anchorRow := -1
	for _, stop := range loop.Stops {
		row := GridRow{
			Key:       stop.Key,
			StopName:  stop.StopName,
			Position:  stop.Position,
			Direction: stop.Direction,
			Cells:     make([]string, len(columns)),
		}
		for i, c := range columns {
			row.Cells[i] = arrivals[gridCell{
				key:       stop.Key,
				stopName:  stop.StopName,
				departure: c,
				direction: stop.Direction,
			}]
		}
		if stop.Key == anchorKey {
			anchorRow = len(grid.Rows)
		}
		grid.Rows = append(grid.Rows, row)
	}

	// Suppress departed laps at the anchor.
	atStr := at.Format(ClockFormat)
	userDeparture := at.Add(-anchor.Cumulative).Format(ClockFormat)
	userColumn := grid.Column(userDeparture)
	if userColumn < 0 {
		userColumn = 0
	}
	cells := grid.Rows[anchorRow].Cells
	for i := 0; i < userColumn; i++ {
		if cells[i] != "" && cells[i] < atStr {
			cells[i] = ""
		}
	}

	return grid, nil
}

// Row for the given key, or nil.
func (g *Grid) Row(key model.StationKey) *GridRow {
	for i := range g.Rows {
		if g.Rows[i].Key == key {
			return &g.Rows[i]
		}
	}
	return nil
}

// Index of the column with the given "HH:MM" departure, or -1.
func (g *Grid) Column(departure string) int {
	i := sort.SearchStrings(g.Columns, departure)
	if i < len(g.Columns) && g.Columns[i] == departure {
		return i
	}
	return -1
}
