package timetable

import "errors"

var (
	// The dataset could not be fetched, read or parsed.
	ErrDataLoad = errors.New("dataset unavailable")

	ErrRouteNotFound   = errors.New("route not found")
	ErrStationNotFound = errors.New("station not found")

	// The route has stops in only one direction, so no loop can
	// be formed.
	ErrEmptyDirection = errors.New("route lacks outbound or return stops")

	ErrInvalidHeadway = errors.New("invalid headway")
)
