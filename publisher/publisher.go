package publisher

import (
	"time"

	"tidbyt.dev/timetable"
	"tidbyt.dev/timetable/storage"
)

// Announces computed timetables and dataset changes to downstream
// consumers.
type Publisher interface {
	PublishTimetable(tt *timetable.Timetable) error
	PublishReload(metadata *storage.DatasetMetadata) error
	Close()
}

type PublisherMetrics interface {
	NATSPublishedInc()
	NATSPublishErrInc()
	PublishObserve(d time.Duration)
	NATSSetConnected(connected bool)
}

type TableMessage struct {
	Name     string     `json:"name"`
	Columns  []string   `json:"columns"`
	Stations []string   `json:"stations"`
	Cells    [][]string `json:"cells"`
}

type TimetableMessage struct {
	RouteID        string       `json:"routeId"`
	RouteDisplay   string       `json:"routeDisplay"`
	Station        string       `json:"station"`
	At             string       `json:"at"`
	AnchorKey      string       `json:"anchorKey"`
	HeadwayMinutes float64      `json:"headwayMinutes"`
	Departures     []string     `json:"departures"`
	Outbound       TableMessage `json:"outbound"`
	Return         TableMessage `json:"return"`
	ComputedAt     time.Time    `json:"computedAt"`
}

type ReloadMessage struct {
	Source      string    `json:"source"`
	Hash        string    `json:"hash"`
	RouteCount  int       `json:"routeCount"`
	StopCount   int       `json:"stopCount"`
	RetrievedAt time.Time `json:"retrievedAt"`
}

func NewTimetableMessage(tt *timetable.Timetable, now time.Time) TimetableMessage {
	deps := make([]string, 0, len(tt.Departures.Times))
	for _, d := range tt.Departures.Times {
		deps = append(deps, d.Format(timetable.ClockFormat))
	}
	return TimetableMessage{
		RouteID:        tt.RouteID,
		RouteDisplay:   tt.RouteDisplay,
		Station:        tt.Station,
		At:             tt.At.Format(timetable.ClockFormat),
		AnchorKey:      string(tt.Departures.AnchorKey),
		HeadwayMinutes: tt.Departures.Headway.Minutes(),
		Departures:     deps,
		Outbound:       newTableMessage(tt.OutboundName, tt.Outbound),
		Return:         newTableMessage(tt.ReturnName, tt.Return),
		ComputedAt:     now.UTC(),
	}
}

func newTableMessage(name string, t *timetable.Table) TableMessage {
	m := TableMessage{
		Name:     name,
		Columns:  t.Columns,
		Stations: make([]string, 0, len(t.Rows)),
		Cells:    make([][]string, 0, len(t.Rows)),
	}
	for _, r := range t.Rows {
		m.Stations = append(m.Stations, r.Station)
		m.Cells = append(m.Cells, r.Cells)
	}
	return m
}

func NewReloadMessage(metadata *storage.DatasetMetadata) ReloadMessage {
	return ReloadMessage{
		Source:      metadata.Source,
		Hash:        metadata.Hash,
		RouteCount:  metadata.RouteCount,
		StopCount:   metadata.StopCount,
		RetrievedAt: metadata.RetrievedAt,
	}
}

// Discards everything. Used when no broker is configured.
type Nop struct{}

func (Nop) PublishTimetable(*timetable.Timetable) error { return nil }
func (Nop) PublishReload(*storage.DatasetMetadata) error { return nil }
func (Nop) Close() {}
