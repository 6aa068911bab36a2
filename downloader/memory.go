package downloader

import (
	"context"
	"sync"
	"time"
)

// Keeps downloaded datasets in memory. The default for long running
// processes, where a dataset is refetched on reload.
type Memory struct {
	TimeNow func() time.Time

	mutex   sync.Mutex
	entries map[string]memoryEntry
}

type memoryEntry struct {
	body        []byte
	retrievedAt time.Time
}

func NewMemory() *Memory {
	return &Memory{
		TimeNow: time.Now,
		entries: map[string]memoryEntry{},
	}
}

func (d *Memory) Get(
	ctx context.Context,
	url string,
	headers map[string]string,
	options GetOptions,
) ([]byte, error) {
	key := cacheKey(url, headers)

	if options.Cache {
		d.mutex.Lock()
		entry, found := d.entries[key]
		d.mutex.Unlock()

		if found && usable(entry.body, entry.retrievedAt, options, d.TimeNow()) {
			return entry.body, nil
		}
	}

	body, err := HTTPGet(ctx, url, headers, options)
	if err != nil {
		if evicts(err) {
			d.mutex.Lock()
			delete(d.entries, key)
			d.mutex.Unlock()
		}
		return nil, err
	}

	if options.Cache {
		d.mutex.Lock()
		d.entries[key] = memoryEntry{body: body, retrievedAt: d.TimeNow()}
		d.mutex.Unlock()
	}

	return body, nil
}

// Number of cached datasets, expired or not.
func (d *Memory) Len() int {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	return len(d.entries)
}

// Drops all cached datasets.
func (d *Memory) Purge() {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	d.entries = map[string]memoryEntry{}
}
