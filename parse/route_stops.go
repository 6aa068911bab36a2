package parse

import (
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/gocarina/gocsv"
	"github.com/pkg/errors"

	"tidbyt.dev/timetable/model"
	"tidbyt.dev/timetable/storage"
)

type RouteStopCSV struct {
	RouteID       string `csv:"route_id"`
	RouteDisplay  string `csv:"route_display"`
	Direction     string `csv:"direction"`
	DirectionName string `csv:"direction_name"`
	Order         string `csv:"order"`
	StopName      string `csv:"stop_name"`
	TimeToNext    string `csv:"time_to_next"`
}

// Parses an integer column. Datasets exported from dataframes
// sometimes carry integers as "3.0".
func parseWholeNumber(s string) (int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty value")
	}
	if i, err := strconv.Atoi(s); err == nil {
		return i, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("non-integer '%s'", s)
	}
	if f != math.Trunc(f) {
		return 0, fmt.Errorf("non-integer '%s'", s)
	}
	return int(f), nil
}

// Parses time_to_next. Blank and NaN mean "no next stop".
func parseTimeToNext(s string) (*float64, error) {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, "nan") {
		return nil, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, fmt.Errorf("non-numeric '%s'", s)
	}
	if math.IsNaN(f) {
		return nil, nil
	}
	if f < 0 || math.IsInf(f, 0) {
		return nil, fmt.Errorf("invalid minutes '%s'", s)
	}
	return &f, nil
}

// Parses route_stops.csv into writer. Rows without route_id are
// skipped. Returns the number of distinct routes and of records
// written.
func ParseRouteStops(writer storage.DatasetWriter, data io.Reader) (int, int, error) {
	type orderKey struct {
		routeID   string
		direction model.Direction
		order     int
	}
	seen := map[orderKey]bool{}
	routes := map[string]bool{}
	written := 0

	i := -1
	err := gocsv.UnmarshalToCallbackWithError(data, func(rs *RouteStopCSV) error {
		i += 1

		routeID := strings.TrimSpace(rs.RouteID)
		if routeID == "" {
			return nil
		}

		dir, err := parseWholeNumber(rs.Direction)
		if err != nil {
			return errors.Wrapf(err, "parsing direction (row %d)", i+1)
		}
		direction := model.Direction(dir)
		if !direction.Valid() {
			return fmt.Errorf("invalid direction %d (row %d)", dir, i+1)
		}

		order, err := parseWholeNumber(rs.Order)
		if err != nil {
			return errors.Wrapf(err, "parsing order (row %d)", i+1)
		}

		stopName := strings.TrimSpace(rs.StopName)
		if stopName == "" {
			return fmt.Errorf("missing stop_name (row %d)", i+1)
		}

		timeToNext, err := parseTimeToNext(rs.TimeToNext)
		if err != nil {
			return errors.Wrapf(err, "parsing time_to_next (row %d)", i+1)
		}

		key := orderKey{routeID, direction, order}
		if seen[key] {
			return fmt.Errorf("duplicate order %d for route '%s' direction %d (row %d)", order, routeID, dir, i+1)
		}
		seen[key] = true
		routes[routeID] = true

		err = writer.WriteStop(&model.StopRecord{
			RouteID:       routeID,
			RouteDisplay:  strings.TrimSpace(rs.RouteDisplay),
			Direction:     direction,
			DirectionName: strings.TrimSpace(rs.DirectionName),
			Order:         order,
			StopName:      stopName,
			TimeToNext:    timeToNext,
		})
		if err != nil {
			return errors.Wrapf(err, "writing route stop (row %d)", i+1)
		}
		written++

		return nil
	})
	if err != nil {
		return 0, 0, errors.Wrap(err, "unmarshaling route_stops csv")
	}

	return len(routes), written, nil
}
