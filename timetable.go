package timetable

import (
	"fmt"
	"time"

	"tidbyt.dev/timetable/model"
)

const (
	DefaultOutboundName = "Outbound"
	DefaultReturnName   = "Return"
)

// A timetable request: "I am at Station on RouteID at At".
type Query struct {
	RouteID string
	Station string
	At      time.Time

	// Scopes station selection only. If set, Station must exist
	// in this direction. The simulation always covers the full
	// loop.
	Direction model.Direction

	// Nil means DefaultRestMinutes.
	RestMinutes *int

	// Zero value means DefaultDayWindow().
	Window DayWindow
}

type Timetable struct {
	RouteID      string
	RouteDisplay string
	Station      string
	At           time.Time

	Loop       *RouteLoop
	Departures *Departures
	Grid       *Grid

	Outbound     *Table
	Return       *Table
	OutboundName string
	ReturnName   string
}

// Simulates a day of service on a route and lays it out as per
// direction arrival tables.
func Simulate(stops []*model.StopRecord, q Query) (*Timetable, error) {
	if q.Direction != 0 {
		if !q.Direction.Valid() {
			return nil, fmt.Errorf("invalid direction %d", q.Direction)
		}
		stations, err := Stations(stops, q.RouteID, q.Direction)
		if err != nil {
			return nil, err
		}
		found := false
		for _, s := range stations {
			if s == q.Station {
				found = true
				break
			}
		}
		if !found {
			return nil, fmt.Errorf(
				"%w: %q in direction %d of route %q",
				ErrStationNotFound, q.Station, q.Direction, q.RouteID,
			)
		}
	}

	loop, err := BuildLoop(stops, q.RouteID)
	if err != nil {
		return nil, fmt.Errorf("building loop: %w", err)
	}

	opts := DepartureOptions{
		RestMinutes: DefaultRestMinutes,
		Window:      q.Window,
	}
	if q.RestMinutes != nil {
		opts.RestMinutes = *q.RestMinutes
	}

	departures, err := GenerateDepartures(loop, q.Station, q.At, opts)
	if err != nil {
		return nil, fmt.Errorf("generating departures: %w", err)
	}

	at := departures.ImpliedStart.Add(departures.AnchorOffset)
	grid, err := BuildGrid(loop, departures.Times, at, departures.AnchorKey)
	if err != nil {
		return nil, fmt.Errorf("building grid: %w", err)
	}

	outbound, ret := Present(grid)

	tt := &Timetable{
		RouteID:      loop.RouteID,
		RouteDisplay: loop.RouteDisplay,
		Station:      q.Station,
		At:           at,
		Loop:         loop,
		Departures:   departures,
		Grid:         grid,
		Outbound:     outbound,
		Return:       ret,
		OutboundName: loop.OutboundName,
		ReturnName:   loop.ReturnName,
	}
	if tt.OutboundName == "" {
		tt.OutboundName = DefaultOutboundName
	}
	if tt.ReturnName == "" {
		tt.ReturnName = DefaultReturnName
	}
	if tt.RouteDisplay == "" {
		tt.RouteDisplay = tt.RouteID
	}

	return tt, nil
}
