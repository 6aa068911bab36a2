package downloader

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"
)

// Keeps downloaded datasets in a JSON file, so that repeated CLI
// invocations within the TTL share a single fetch. Expired entries
// are pruned whenever the file is rewritten.
type Filesystem struct {
	Path    string
	TimeNow func() time.Time

	mutex   sync.Mutex
	entries map[string]fsEntry
}

type fsEntry struct {
	URL         string    `json:"url"`
	Body        []byte    `json:"body"`
	RetrievedAt time.Time `json:"retrieved_at"`
	TTL         Duration  `json:"ttl"`
}

// A time.Duration that marshals as a string, e.g. "1h0m0s".
type Duration time.Duration

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(buf []byte) error {
	var s string
	err := json.Unmarshal(buf, &s)
	if err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

func NewFilesystem(path string) (*Filesystem, error) {
	fs := &Filesystem{
		Path:    path,
		TimeNow: time.Now,
		entries: map[string]fsEntry{},
	}

	buf, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return fs, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	err = json.Unmarshal(buf, &fs.entries)
	if err != nil {
		return nil, fmt.Errorf("decoding %s: %w", path, err)
	}

	return fs, nil
}

func (f *Filesystem) Get(
	ctx context.Context,
	url string,
	headers map[string]string,
	options GetOptions,
) ([]byte, error) {
	key := cacheKey(url, headers)

	f.mutex.Lock()
	defer f.mutex.Unlock()

	if options.Cache {
		entry, found := f.entries[key]
		if found && usable(entry.Body, entry.RetrievedAt, options, f.TimeNow()) {
			return entry.Body, nil
		}
	}

	body, err := HTTPGet(ctx, url, headers, options)
	if err != nil {
		if _, found := f.entries[key]; found && evicts(err) {
			delete(f.entries, key)
			if saveErr := f.save(); saveErr != nil {
				return nil, fmt.Errorf("saving cache: %w", saveErr)
			}
		}
		return nil, err
	}

	if options.Cache {
		f.entries[key] = fsEntry{
			URL:         url,
			Body:        body,
			RetrievedAt: f.TimeNow().UTC(),
			TTL:         Duration(options.CacheTTL),
		}
		err = f.save()
		if err != nil {
			return nil, fmt.Errorf("saving cache: %w", err)
		}
	}

	return body, nil
}

// Writes the cache, dropping entries past their TTL.
func (f *Filesystem) save() error {
	now := f.TimeNow()
	for key, entry := range f.entries {
		if !entry.RetrievedAt.Add(time.Duration(entry.TTL)).After(now) {
			delete(f.entries, key)
		}
	}

	buf, err := json.Marshal(f.entries)
	if err != nil {
		return fmt.Errorf("encoding: %w", err)
	}

	err = os.WriteFile(f.Path, buf, 0644)
	if err != nil {
		return fmt.Errorf("writing %s: %w", f.Path, err)
	}

	return nil
}
