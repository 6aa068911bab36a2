package timetable

import (
	"fmt"
	"time"

	"tidbyt.dev/timetable/model"
)

const DefaultRestMinutes = 10

// Operating hours of a simulated day, as local clock readings
// (hours and minutes past midnight). Both ends are inclusive.
type DayWindow struct {
	Start time.Duration
	End   time.Duration
}

func DefaultDayWindow() DayWindow {
	return DayWindow{
		Start: 5 * time.Hour,
		End:   23*time.Hour + 59*time.Minute,
	}
}

// Wall clock time of a window offset on the calendar day of t. On
// DST transition days this differs from midnight plus offset.
func clockOn(offset time.Duration, t time.Time) time.Time {
	h := int(offset / time.Hour)
	m := int(offset % time.Hour / time.Minute)
	return time.Date(t.Year(), t.Month(), t.Day(), h, m, 0, 0, t.Location())
}

func (w DayWindow) Validate() error {
	if w.Start < 0 || w.End >= 24*time.Hour || w.Start > w.End {
		return fmt.Errorf("day window %s-%s out of range", w.Start, w.End)
	}
	return nil
}

type DepartureOptions struct {
	// Turnaround time added to each lap.
	RestMinutes int

	// Zero value means DefaultDayWindow().
	Window DayWindow
}

func DefaultDepartureOptions() DepartureOptions {
	return DepartureOptions{
		RestMinutes: DefaultRestMinutes,
		Window:      DefaultDayWindow(),
	}
}

// A day of departures from the first stop of a loop, phased so that
// one of them reaches the anchor station at the anchor time.
type Departures struct {
	Times   []time.Time
	Headway time.Duration

	// The anchor, i.e. the first loop stop matching the requested
	// station, and its offset from the start of the loop.
	AnchorKey    model.StationKey
	AnchorOffset time.Duration

	// When the lap reaching the anchor at the anchor time left
	// the first stop.
	ImpliedStart time.Time
}

// Generates departures for the calendar day of at.
//
// Departures are spaced by the loop duration plus rest, and all fall
// within the day window. Seconds of at are ignored. Times never roll
// over to the next day.
func GenerateDepartures(
	loop *RouteLoop,
	station string,
	at time.Time,
	opts DepartureOptions,
) (*Departures, error) {

	anchor, found := loop.Find(station)
	if !found {
		return nil, fmt.Errorf("%w: %q on route %q", ErrStationNotFound, station, loop.RouteID)
	}

	if opts.RestMinutes < 0 {
		return nil, fmt.Errorf("%w: rest of %d minutes", ErrInvalidHeadway, opts.RestMinutes)
	}
	headway := loop.Duration() + time.Duration(opts.RestMinutes)*time.Minute
	if headway <= 0 {
		return nil, fmt.Errorf("%w: %s", ErrInvalidHeadway, headway)
	}

	window := opts.Window
	if window == (DayWindow{}) {
		window = DefaultDayWindow()
	}
	err := window.Validate()
	if err != nil {
		return nil, err
	}

	at = time.Date(at.Year(), at.Month(), at.Day(), at.Hour(), at.Minute(), 0, 0, at.Location())
	dayStart := clockOn(window.Start, at)
	dayEnd := clockOn(window.End, at)

	implied := at.Add(-anchor.Cumulative)

	// Earliest departure in phase with the implied start.
	first := implied
	for !first.Add(-headway).Before(dayStart) {
		first = first.Add(-headway)
	}
	for first.Before(dayStart) {
		first = first.Add(headway)
	}

	times := []time.Time{}
	for t := first; !t.After(dayEnd); t = t.Add(headway) {
		times = append(times, t)
	}

	return &Departures{
		Times:        times,
		Headway:      headway,
		AnchorKey:    anchor.Key,
		AnchorOffset: anchor.Cumulative,
		ImpliedStart: implied,
	}, nil
}
