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

func clock(h, m int) time.Time {
	return time.Date(2024, 3, 4, h, m, 0, 0, time.UTC)
}

func simpleLoop(t *testing.T) *RouteLoop {
	loop, err := BuildLoop(testutil.LoadStops(t, "memory", testutil.SimpleRoute()), "r1")
	require.NoError(t, err)
	return loop
}

func formatTimes(times []time.Time) []string {
	s := []string{}
	for _, t := range times {
		s = append(s, t.Format(ClockFormat))
	}
	return s
}

func TestGenerateDepartures(t *testing.T) {
	loop := simpleLoop(t)

	deps, err := GenerateDepartures(loop, "B", clock(8, 10), DefaultDepartureOptions())
	require.NoError(t, err)

	assert.Equal(t, 22*time.Minute, deps.Headway)
	assert.Equal(t, model.StationKey("B_order2"), deps.AnchorKey)
	assert.Equal(t, 5*time.Minute, deps.AnchorOffset)
	assert.Equal(t, clock(8, 5), deps.ImpliedStart)

	times := formatTimes(deps.Times)
	assert.Contains(t, times, "08:05")
	assert.Contains(t, times, "08:27")
	assert.Contains(t, times, "08:49")

	// Walked back as far as the window allows
	assert.Equal(t, clock(5, 9), deps.Times[0])
	assert.True(t, deps.Times[0].Add(-deps.Headway).Before(clock(5, 0)))

	// And forward through the end of the day
	last := deps.Times[len(deps.Times)-1]
	assert.False(t, last.After(clock(23, 59)))
	assert.True(t, last.Add(deps.Headway).After(clock(23, 59)))

	for i := 1; i < len(deps.Times); i++ {
		assert.Equal(t, deps.Headway, deps.Times[i].Sub(deps.Times[i-1]))
	}
}

func TestGenerateDeparturesWindow(t *testing.T) {
	loop := simpleLoop(t)

	for _, tc := range []struct {
		Name     string
		Station  string
		At       time.Time
		Options  DepartureOptions
		Expected []string
	}{
		{
			Name:     "custom window",
			Station:  "B",
			At:       clock(8, 10),
			Options:  DepartureOptions{RestMinutes: 10, Window: DayWindow{Start: 8 * time.Hour, End: 9 * time.Hour}},
			Expected: []string{"08:05", "08:27", "08:49"},
		},
		{
			Name:     "window boundaries are inclusive",
			Station:  "A",
			At:       clock(8, 0),
			Options:  DepartureOptions{RestMinutes: 18, Window: DayWindow{Start: 8 * time.Hour, End: 9 * time.Hour}},
			Expected: []string{"08:00", "08:30", "09:00"},
		},
		{
			Name:     "implied start before window walks forward",
			Station:  "C",
			At:       clock(8, 5),
			Options:  DepartureOptions{RestMinutes: 10, Window: DayWindow{Start: 8 * time.Hour, End: 9 * time.Hour}},
			Expected: []string{"08:15", "08:37", "08:59"},
		},
		{
			Name:     "anchor after window",
			Station:  "A",
			At:       clock(10, 0),
			Options:  DepartureOptions{RestMinutes: 18, Window: DayWindow{Start: 8 * time.Hour, End: 9 * time.Hour}},
			Expected: []string{"08:00", "08:30", "09:00"},
		},
		{
			Name:     "zero window means default",
			Station:  "A",
			At:       clock(12, 0),
			Options:  DepartureOptions{RestMinutes: 6*60 - 12},
			Expected: []string{"06:00", "12:00", "18:00"},
		},
	} {
		t.Run(tc.Name, func(t *testing.T) {
			deps, err := GenerateDepartures(loop, tc.Station, tc.At, tc.Options)
			require.NoError(t, err)
			assert.Equal(t, tc.Expected, formatTimes(deps.Times))
		})
	}
}

func TestGenerateDeparturesIgnoresSeconds(t *testing.T) {
	loop := simpleLoop(t)

	at := time.Date(2024, 3, 4, 8, 10, 45, 123, time.UTC)
	deps, err := GenerateDepartures(loop, "B", at, DefaultDepartureOptions())
	require.NoError(t, err)
	assert.Equal(t, clock(8, 5), deps.ImpliedStart)
}

func TestGenerateDeparturesLocation(t *testing.T) {
	loop := simpleLoop(t)

	tz, err := time.LoadLocation("Asia/Taipei")
	require.NoError(t, err)

	at := time.Date(2024, 3, 4, 8, 10, 0, 0, tz)
	deps, err := GenerateDepartures(loop, "B", at, DefaultDepartureOptions())
	require.NoError(t, err)

	assert.Equal(t, time.Date(2024, 3, 4, 5, 9, 0, 0, tz), deps.Times[0])
	assert.Equal(t, tz, deps.Times[0].Location())
}

func TestGenerateDeparturesDSTTransition(t *testing.T) {
	loop := simpleLoop(t)

	tz, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	for _, tc := range []struct {
		Name  string
		Day   int
		Month time.Month
	}{
		{"spring forward", 10, time.March},
		{"fall back", 3, time.November},
	} {
		t.Run(tc.Name, func(t *testing.T) {
			at := time.Date(2024, tc.Month, tc.Day, 8, 10, 0, 0, tz)
			deps, err := GenerateDepartures(loop, "B", at, DefaultDepartureOptions())
			require.NoError(t, err)
			require.NotEmpty(t, deps.Times)

			assert.Equal(t, time.Date(2024, tc.Month, tc.Day, 5, 9, 0, 0, tz), deps.Times[0])
			assert.Equal(t, time.Date(2024, tc.Month, tc.Day, 23, 51, 0, 0, tz), deps.Times[len(deps.Times)-1])
			assert.Equal(t, 52, len(deps.Times))

			for _, dep := range deps.Times {
				assert.Equal(t, tc.Day, dep.Day(), dep.String())
			}
			times := formatTimes(deps.Times)
			assert.Contains(t, times, "08:05")

			// Columns stay chronological
			grid, err := BuildGrid(loop, deps.Times, at, deps.AnchorKey)
			require.NoError(t, err)
			assert.Equal(t, times, grid.Columns)
		})
	}
}

func TestGenerateDeparturesErrors(t *testing.T) {
	loop := simpleLoop(t)

	_, err := GenerateDepartures(loop, "nope", clock(8, 10), DefaultDepartureOptions())
	assert.True(t, errors.Is(err, ErrStationNotFound))

	_, err = GenerateDepartures(loop, "B", clock(8, 10), DepartureOptions{RestMinutes: -1})
	assert.True(t, errors.Is(err, ErrInvalidHeadway))

	_, err = GenerateDepartures(loop, "B", clock(8, 10), DepartureOptions{
		RestMinutes: 10,
		Window:      DayWindow{Start: 10 * time.Hour, End: 9 * time.Hour},
	})
	assert.Error(t, err)

	// A loop without travel times and no rest has zero headway
	stalled, err := BuildLoop(testutil.LoadStops(t, "memory", []string{
		testutil.Header,
		"r1,,1,,1,A,",
		"r1,,1,,2,B,",
		"r1,,2,,1,B,",
		"r1,,2,,2,A,",
	}), "r1")
	require.NoError(t, err)

	_, err = GenerateDepartures(stalled, "A", clock(8, 10), DepartureOptions{RestMinutes: 0})
	assert.True(t, errors.Is(err, ErrInvalidHeadway))

	deps, err := GenerateDepartures(stalled, "A", clock(8, 10), DepartureOptions{RestMinutes: 60})
	require.NoError(t, err)
	assert.Equal(t, time.Hour, deps.Headway)
	assert.Equal(t, clock(5, 10), deps.Times[0])
}
