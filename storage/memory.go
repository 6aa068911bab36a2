package storage

import (
	"fmt"
	"sort"
	"sync"

	"tidbyt.dev/timetable/model"
)

// In memory implementation of Storage below

type memoryMetadataKey struct {
	Source string
	Hash   string
}

type MemoryStorage struct {
	Datasets map[string]*MemoryStorageDataset
	Metadata map[memoryMetadataKey]*DatasetMetadata

	mutex sync.Mutex
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		Datasets: map[string]*MemoryStorageDataset{},
		Metadata: map[memoryMetadataKey]*DatasetMetadata{},
	}
}

func (s *MemoryStorage) ListDatasets(filter ListDatasetsFilter) ([]*DatasetMetadata, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	datasets := []*DatasetMetadata{}
	for _, metadata := range s.Metadata {
		if filter.Source != "" && metadata.Source != filter.Source {
			continue
		}
		if filter.Hash != "" && metadata.Hash != filter.Hash {
			continue
		}
		datasets = append(datasets, metadata)
	}
	sort.Slice(datasets, func(i, j int) bool {
		return datasets[i].RetrievedAt.After(datasets[j].RetrievedAt)
	})
	return datasets, nil
}

func (s *MemoryStorage) WriteDatasetMetadata(metadata *DatasetMetadata) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.Metadata[memoryMetadataKey{metadata.Source, metadata.Hash}] = metadata
	return nil
}

func (s *MemoryStorage) GetReader(dataset string) (DatasetReader, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	d, ok := s.Datasets[dataset]
	if !ok {
		return nil, fmt.Errorf("dataset %s not found", dataset)
	}
	return d, nil
}

func (s *MemoryStorage) GetWriter(dataset string) (DatasetWriter, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	d := &MemoryStorageDataset{}
	s.Datasets[dataset] = d
	return d, nil
}

type MemoryStorageDataset struct {
	stops []*model.StopRecord
}

func (d *MemoryStorageDataset) BeginStops() error {
	return nil
}

func (d *MemoryStorageDataset) WriteStop(stop *model.StopRecord) error {
	cp := *stop
	if stop.TimeToNext != nil {
		t := *stop.TimeToNext
		cp.TimeToNext = &t
	}
	d.stops = append(d.stops, &cp)
	return nil
}

func (d *MemoryStorageDataset) EndStops() error {
	sort.SliceStable(d.stops, func(i, j int) bool {
		return lessStop(d.stops[i], d.stops[j])
	})
	return nil
}

func (d *MemoryStorageDataset) Close() error {
	return nil
}

func (d *MemoryStorageDataset) Stops() ([]*model.StopRecord, error) {
	return d.StopsFor(StopFilter{})
}

func (d *MemoryStorageDataset) StopsFor(filter StopFilter) ([]*model.StopRecord, error) {
	stops := []*model.StopRecord{}
	for _, s := range d.stops {
		if matches(filter, s) {
			stops = append(stops, s)
		}
	}
	return stops, nil
}
