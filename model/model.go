package model

import (
	"strconv"
	"time"
)

// Holds all external facing types and constants.

type Direction int8

const (
	DirectionOutbound Direction = 1
	DirectionReturn   Direction = 2
)

func (d Direction) Valid() bool {
	return d == DirectionOutbound || d == DirectionReturn
}

// A single row of the route stops dataset.
type StopRecord struct {
	RouteID       string
	RouteDisplay  string
	Direction     Direction
	DirectionName string
	Order         int
	StopName      string

	// Minutes of travel to the next stop in the same
	// direction. Nil for the last stop of a direction.
	TimeToNext *float64
}

// Travel time to the next stop. Missing values count as zero.
func (s *StopRecord) TravelTime() time.Duration {
	if s.TimeToNext == nil {
		return 0
	}
	return time.Duration(*s.TimeToNext * float64(time.Minute))
}

type RouteDirection struct {
	Direction Direction
	Name      string
}

// A route as offered by the route picker.
type Route struct {
	ID         string
	Display    string
	Directions []RouteDirection
}

// Identifies a stop by name and loop position. Stops sharing a name
// (e.g. a terminal visited twice) get distinct keys.
type StationKey string

func NewStationKey(stopName string, position int) StationKey {
	return StationKey(stopName + "_order" + strconv.Itoa(position))
}
