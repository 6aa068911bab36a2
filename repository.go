package timetable

import (
	"context"
	"crypto/sha256"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"tidbyt.dev/timetable/downloader"
	"tidbyt.dev/timetable/model"
	"tidbyt.dev/timetable/parse"
	"tidbyt.dev/timetable/storage"
)

const (
	DefaultDatasetTimeout = 60 * time.Second
	DefaultDatasetMaxSize = 100 << 20 // 100 MB
)

// Repository provides the route stops dataset.
//
// The dataset is fetched on first Load() and held in memory until
// Reload() replaces it. Parsed datasets are kept in storage, keyed by
// content hash, so unchanged data is never parsed twice.
type Repository struct {
	// Path to a CSV file, or an http(s) URL.
	Source string

	// Sent along when Source is a URL.
	Headers map[string]string

	Timeout    time.Duration
	MaxSize    int
	Downloader downloader.Downloader
	TimeNow    func() time.Time

	// How long the downloader may serve Source from its cache. 0
	// disables caching.
	CacheTTL time.Duration

	storage storage.Storage

	// Serializes fetches.
	loadMutex sync.Mutex

	mutex    sync.RWMutex
	stops    []*model.StopRecord
	metadata *storage.DatasetMetadata
}

func NewRepository(s storage.Storage, source string) *Repository {
	return &Repository{
		Source:     source,
		Timeout:    DefaultDatasetTimeout,
		MaxSize:    DefaultDatasetMaxSize,
		Downloader: downloader.NewMemory(),
		TimeNow:    time.Now,
		storage:    s,
	}
}

// Returns all stop records, ordered by route, direction and order.
//
// The returned slice is shared between callers and must not be
// modified.
func (r *Repository) Load(ctx context.Context) ([]*model.StopRecord, error) {
	r.mutex.RLock()
	stops := r.stops
	r.mutex.RUnlock()
	if stops != nil {
		return stops, nil
	}

	r.loadMutex.Lock()
	defer r.loadMutex.Unlock()

	// Someone else may have loaded while we waited.
	r.mutex.RLock()
	stops = r.stops
	r.mutex.RUnlock()
	if stops != nil {
		return stops, nil
	}

	return r.refresh(ctx)
}

// Fetches the dataset again and replaces the cached copy. On failure
// the previous copy, if any, is kept.
func (r *Repository) Reload(ctx context.Context) ([]*model.StopRecord, error) {
	r.loadMutex.Lock()
	defer r.loadMutex.Unlock()

	return r.refresh(ctx)
}

// Metadata of the currently cached dataset, or nil if nothing has
// been loaded.
func (r *Repository) Metadata() *storage.DatasetMetadata {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	return r.metadata
}

func (r *Repository) refresh(ctx context.Context) ([]*model.StopRecord, error) {
	stops, metadata, err := r.fetch(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDataLoad, err)
	}

	r.mutex.Lock()
	r.stops = stops
	r.metadata = metadata
	r.mutex.Unlock()

	return stops, nil
}

func (r *Repository) fetch(ctx context.Context) ([]*model.StopRecord, *storage.DatasetMetadata, error) {
	body, err := r.read(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("reading %s: %w", r.Source, err)
	}
	hash := fmt.Sprintf("%x", sha256.Sum256(body))

	datasets, err := r.storage.ListDatasets(storage.ListDatasetsFilter{Hash: hash})
	if err != nil {
		return nil, nil, fmt.Errorf("listing datasets: %w", err)
	}

	var metadata *storage.DatasetMetadata
	for _, d := range datasets {
		if d.Source == r.Source {
			metadata = d
			break
		}
	}

	if len(datasets) == 0 {
		// Not seen before. Parse it.
		writer, err := r.storage.GetWriter(hash)
		if err != nil {
			return nil, nil, fmt.Errorf("getting writer: %w", err)
		}

		metadata, err = parse.ParseDataset(writer, body)
		if err != nil {
			writer.Close()
			return nil, nil, fmt.Errorf("parsing %s: %w", r.Source, err)
		}
	} else if metadata == nil {
		// Same data, different source. Reuse the records.
		copied := *datasets[0]
		metadata = &copied
	}

	if metadata.Source != r.Source || metadata.Hash != hash || metadata.RetrievedAt.IsZero() {
		metadata.Source = r.Source
		metadata.Hash = hash
		metadata.RetrievedAt = r.TimeNow().UTC()
		err = r.storage.WriteDatasetMetadata(metadata)
		if err != nil {
			return nil, nil, fmt.Errorf("writing metadata: %w", err)
		}
	}

	reader, err := r.storage.GetReader(hash)
	if err != nil {
		return nil, nil, fmt.Errorf("getting reader: %w", err)
	}

	stops, err := reader.Stops()
	if err != nil {
		return nil, nil, fmt.Errorf("reading stops: %w", err)
	}

	return stops, metadata, nil
}

func (r *Repository) read(ctx context.Context) ([]byte, error) {
	if r.Source == "" {
		return nil, fmt.Errorf("no dataset source configured")
	}

	if strings.HasPrefix(r.Source, "http://") || strings.HasPrefix(r.Source, "https://") {
		return r.Downloader.Get(ctx, r.Source, r.Headers, downloader.GetOptions{
			Timeout:  r.Timeout,
			MaxSize:  r.MaxSize,
			Cache:    r.CacheTTL > 0,
			CacheTTL: r.CacheTTL,
		})
	}

	return os.ReadFile(r.Source)
}

// Distinct routes in dataset order, with the names of their
// directions.
func Routes(stops []*model.StopRecord) []model.Route {
	routes := []model.Route{}
	index := map[string]int{}
	seen := map[string]bool{}

	for _, s := range stops {
		i, found := index[s.RouteID]
		if !found {
			i = len(routes)
			index[s.RouteID] = i
			display := s.RouteDisplay
			if display == "" {
				display = s.RouteID
			}
			routes = append(routes, model.Route{
				ID:         s.RouteID,
				Display:    display,
				Directions: []model.RouteDirection{},
			})
		}

		dirKey := fmt.Sprintf("%s/%d", s.RouteID, s.Direction)
		if seen[dirKey] {
			continue
		}
		seen[dirKey] = true

		name := s.DirectionName
		if name == "" {
			name = defaultDirectionName(s.Direction)
		}
		routes[i].Directions = append(routes[i].Directions, model.RouteDirection{
			Direction: s.Direction,
			Name:      name,
		})
	}

	return routes
}

// Stop names of one direction of a route, in stop order. Passing
// direction 0 lists stops of both directions.
func Stations(stops []*model.StopRecord, routeID string, direction model.Direction) ([]string, error) {
	found := false
	stations := []string{}
	for _, s := range stops {
		if s.RouteID != routeID {
			continue
		}
		found = true
		if direction != 0 && s.Direction != direction {
			continue
		}
		stations = append(stations, s.StopName)
	}

	if !found {
		return nil, fmt.Errorf("%w: %q", ErrRouteNotFound, routeID)
	}

	return stations, nil
}

func defaultDirectionName(d model.Direction) string {
	if d == model.DirectionReturn {
		return DefaultReturnName
	}
	return DefaultOutboundName
}
