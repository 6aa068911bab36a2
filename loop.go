package timetable

import (
	"fmt"
	"sort"
	"time"

	"tidbyt.dev/timetable/model"
)

// A stop on a RouteLoop.
type LoopStop struct {
	// 1-based position in the loop.
	Position      int
	Key           model.StationKey
	StopName      string
	Direction     model.Direction
	DirectionName string
	TimeToNext    time.Duration

	// Travel time from the first stop of the loop.
	Cumulative time.Duration
}

// The outbound and return stops of a route merged into a single
// circular sequence. The outbound terminal is assumed to be the
// return's first stop, and appears only once.
type RouteLoop struct {
	RouteID      string
	RouteDisplay string
	OutboundName string
	ReturnName   string
	Stops        []LoopStop
}

// Merges the outbound and return stops of a route into a loop.
//
// Returns ErrRouteNotFound if no stop belongs to the route, and
// ErrEmptyDirection if either direction has no stops.
func BuildLoop(stops []*model.StopRecord, routeID string) (*RouteLoop, error) {
	outbound := []*model.StopRecord{}
	ret := []*model.StopRecord{}
	for _, s := range stops {
		if s.RouteID != routeID {
			continue
		}
		switch s.Direction {
		case model.DirectionOutbound:
			outbound = append(outbound, s)
		case model.DirectionReturn:
			ret = append(ret, s)
		}
	}

	if len(outbound) == 0 && len(ret) == 0 {
		return nil, fmt.Errorf("%w: %q", ErrRouteNotFound, routeID)
	}
	if len(outbound) == 0 || len(ret) == 0 {
		return nil, fmt.Errorf(
			"route %q has %d outbound and %d return stops: %w",
			routeID, len(outbound), len(ret), ErrEmptyDirection,
		)
	}

	sort.SliceStable(outbound, func(i, j int) bool { return outbound[i].Order < outbound[j].Order })
	sort.SliceStable(ret, func(i, j int) bool { return ret[i].Order < ret[j].Order })

	merged := make([]*model.StopRecord, 0, len(outbound)+len(ret)-1)
	merged = append(merged, outbound[:len(outbound)-1]...)
	merged = append(merged, ret...)

	loop := &RouteLoop{
		RouteID:      routeID,
		RouteDisplay: outbound[0].RouteDisplay,
		OutboundName: outbound[0].DirectionName,
		ReturnName:   ret[0].DirectionName,
		Stops:        make([]LoopStop, 0, len(merged)),
	}

	// Cumulative is travel time from the loop start to this stop, so
	// it excludes the stop's own TimeToNext.
	var cumulative time.Duration
	for i, s := range merged {
		position := i + 1
		loop.Stops = append(loop.Stops, LoopStop{
			Position:      position,
			Key:           model.NewStationKey(s.StopName, position),
			StopName:      s.StopName,
			Direction:     s.Direction,
			DirectionName: s.DirectionName,
			TimeToNext:    s.TravelTime(),
			Cumulative:    cumulative,
		})
		cumulative += s.TravelTime()
	}

	return loop, nil
}

// Total travel time of one lap around the loop.
func (l *RouteLoop) Duration() time.Duration {
	var total time.Duration
	for _, s := range l.Stops {
		total += s.TimeToNext
	}
	return total
}

// First stop with the given name, in loop order.
func (l *RouteLoop) Find(stopName string) (LoopStop, bool) {
	for _, s := range l.Stops {
		if s.StopName == stopName {
			return s, true
		}
	}
	return LoopStop{}, false
}

func (l *RouteLoop) Stop(key model.StationKey) (LoopStop, bool) {
	for _, s := range l.Stops {
		if s.Key == key {
			return s, true
		}
	}
	return LoopStop{}, false
}
