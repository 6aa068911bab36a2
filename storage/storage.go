package storage

import (
	"time"

	"tidbyt.dev/timetable/model"
)

type Storage interface {
	// Retrieves all dataset metadata records matching the given
	// filter, most recently retrieved first.
	ListDatasets(filter ListDatasetsFilter) ([]*DatasetMetadata, error)

	// Writes a DatasetMetadata record. If a record with the same
	// source and hash exists, it is updated.
	WriteDatasetMetadata(metadata *DatasetMetadata) error

	// Gets a reader for the dataset with the given hash.
	GetReader(dataset string) (DatasetReader, error)

	// Gets a writer for the dataset with the given hash. Any
	// previous data for the hash is discarded.
	GetWriter(dataset string) (DatasetWriter, error)
}

type ListDatasetsFilter struct {
	// If set, only include datasets loaded from this source.
	Source string

	// If set, only include datasets with the given hash.
	Hash string
}

// Metadata for a parsed route stops dataset. The records can be
// accessed via DatasetReader.
type DatasetMetadata struct {
	Source      string
	Hash        string
	RetrievedAt time.Time
	RouteCount  int
	StopCount   int
}

// Writes route stop records for a single dataset.
//
// BeginStops() and EndStops() are called before and after all calls
// to WriteStop(), allowing transactions/batching.
type DatasetWriter interface {
	BeginStops() error
	WriteStop(stop *model.StopRecord) error
	EndStops() error
	Close() error
}

type DatasetReader interface {
	// All records of the dataset, ordered by route, direction
	// and order.
	Stops() ([]*model.StopRecord, error)

	// Records matching the filter, in the same order as Stops().
	StopsFor(filter StopFilter) ([]*model.StopRecord, error)
}

type StopFilter struct {
	// Limit results to a route.
	RouteID string

	// Limit results to a direction. Pass 0 to include all
	// directions.
	Direction model.Direction
}

// Orders records by route, direction and order.
func lessStop(a, b *model.StopRecord) bool {
	if a.RouteID != b.RouteID {
		return a.RouteID < b.RouteID
	}
	if a.Direction != b.Direction {
		return a.Direction < b.Direction
	}
	return a.Order < b.Order
}

func matches(filter StopFilter, s *model.StopRecord) bool {
	if filter.RouteID != "" && s.RouteID != filter.RouteID {
		return false
	}
	if filter.Direction != 0 && s.Direction != filter.Direction {
		return false
	}
	return true
}
