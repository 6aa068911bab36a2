package downloader

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingServer struct {
	hits   atomic.Int64
	body   string
	status atomic.Int64
	server *httptest.Server
}

func newCountingServer(t *testing.T, body string) *countingServer {
	c := &countingServer{body: body}
	c.status.Store(http.StatusOK)
	c.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c.hits.Add(1)
		if r.Header.Get("User-Agent") != UserAgent {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.WriteHeader(int(c.status.Load()))
		w.Write([]byte(c.body))
	}))
	t.Cleanup(c.server.Close)
	return c
}

func TestHTTPGet(t *testing.T) {
	srv := newCountingServer(t, "route_id,direction\n")

	body, err := HTTPGet(context.Background(), srv.server.URL, nil, GetOptions{})
	require.NoError(t, err)
	assert.Equal(t, "route_id,direction\n", string(body))

	// Oversized bodies are rejected
	_, err = HTTPGet(context.Background(), srv.server.URL, nil, GetOptions{MaxSize: 5})
	assert.Error(t, err)

	// Non-200 is a StatusError
	srv.status.Store(http.StatusNotFound)
	_, err = HTTPGet(context.Background(), srv.server.URL, nil, GetOptions{})
	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusNotFound, statusErr.StatusCode)
}

func TestMemoryCaching(t *testing.T) {
	srv := newCountingServer(t, "abc")
	now := time.Date(2023, 1, 1, 12, 0, 0, 0, time.UTC)

	d := NewMemory()
	d.TimeNow = func() time.Time { return now }

	opts := GetOptions{Cache: true, CacheTTL: time.Minute}

	for i := 0; i < 3; i++ {
		body, err := d.Get(context.Background(), srv.server.URL, nil, opts)
		require.NoError(t, err)
		assert.Equal(t, "abc", string(body))
	}
	assert.EqualValues(t, 1, srv.hits.Load())

	// Expired
	now = now.Add(2 * time.Minute)
	_, err := d.Get(context.Background(), srv.server.URL, nil, opts)
	require.NoError(t, err)
	assert.EqualValues(t, 2, srv.hits.Load())

	// Purged
	d.Purge()
	_, err = d.Get(context.Background(), srv.server.URL, nil, opts)
	require.NoError(t, err)
	assert.EqualValues(t, 3, srv.hits.Load())

	// No caching requested
	_, err = d.Get(context.Background(), srv.server.URL, nil, GetOptions{})
	require.NoError(t, err)
	assert.EqualValues(t, 4, srv.hits.Load())
}

func TestFilesystemCaching(t *testing.T) {
	srv := newCountingServer(t, "xyz")
	path := filepath.Join(t.TempDir(), "cache.json")

	fs, err := NewFilesystem(path)
	require.NoError(t, err)

	opts := GetOptions{Cache: true, CacheTTL: time.Hour}
	body, err := fs.Get(context.Background(), srv.server.URL, nil, opts)
	require.NoError(t, err)
	assert.Equal(t, "xyz", string(body))
	assert.EqualValues(t, 1, srv.hits.Load())

	// A fresh instance picks up the cache from disk
	fs2, err := NewFilesystem(path)
	require.NoError(t, err)
	body, err = fs2.Get(context.Background(), srv.server.URL, nil, opts)
	require.NoError(t, err)
	assert.Equal(t, "xyz", string(body))
	assert.EqualValues(t, 1, srv.hits.Load())

	// Until it expires
	fs2.TimeNow = func() time.Time { return time.Now().Add(2 * time.Hour) }
	_, err = fs2.Get(context.Background(), srv.server.URL, nil, opts)
	require.NoError(t, err)
	assert.EqualValues(t, 2, srv.hits.Load())
}

func TestCacheKeyedByHeaders(t *testing.T) {
	srv := newCountingServer(t, "abc")
	d := NewMemory()
	opts := GetOptions{Cache: true, CacheTTL: time.Hour}

	for _, key := range []string{"a", "b", "a", "b"} {
		_, err := d.Get(context.Background(), srv.server.URL, map[string]string{"X-Api-Key": key}, opts)
		require.NoError(t, err)
	}
	assert.EqualValues(t, 2, srv.hits.Load())
	assert.Equal(t, 2, d.Len())

	assert.Equal(t, srv.server.URL, cacheKey(srv.server.URL, nil))
	assert.Equal(t,
		cacheKey("u", map[string]string{"A": "1", "B": "2"}),
		cacheKey("u", map[string]string{"b": "2", "A": "1"}),
	)
}

func TestCachedBodyRespectsMaxSize(t *testing.T) {
	srv := newCountingServer(t, "abcdef")
	d := NewMemory()

	_, err := d.Get(context.Background(), srv.server.URL, nil, GetOptions{Cache: true, CacheTTL: time.Hour})
	require.NoError(t, err)

	// The cached copy is too large, so it's refetched and rejected
	_, err = d.Get(context.Background(), srv.server.URL, nil, GetOptions{Cache: true, CacheTTL: time.Hour, MaxSize: 3})
	assert.Error(t, err)
	assert.EqualValues(t, 2, srv.hits.Load())
}

func TestMemoryEviction(t *testing.T) {
	srv := newCountingServer(t, "abc")
	now := time.Date(2023, 1, 1, 12, 0, 0, 0, time.UTC)
	d := NewMemory()
	d.TimeNow = func() time.Time { return now }
	opts := GetOptions{Cache: true, CacheTTL: time.Minute}

	_, err := d.Get(context.Background(), srv.server.URL, nil, opts)
	require.NoError(t, err)
	now = now.Add(2 * time.Minute)

	// Transient failures keep the entry
	srv.status.Store(http.StatusServiceUnavailable)
	_, err = d.Get(context.Background(), srv.server.URL, nil, opts)
	assert.Error(t, err)
	assert.Equal(t, 1, d.Len())

	// A missing dataset drops it
	srv.status.Store(http.StatusNotFound)
	_, err = d.Get(context.Background(), srv.server.URL, nil, opts)
	assert.Error(t, err)
	assert.Equal(t, 0, d.Len())
}

func TestFilesystemEviction(t *testing.T) {
	srv := newCountingServer(t, "xyz")
	path := filepath.Join(t.TempDir(), "cache.json")
	opts := GetOptions{Cache: true, CacheTTL: time.Hour}

	fs, err := NewFilesystem(path)
	require.NoError(t, err)
	_, err = fs.Get(context.Background(), srv.server.URL, nil, opts)
	require.NoError(t, err)

	// Expire, then fail with 410
	fs.TimeNow = func() time.Time { return time.Now().Add(2 * time.Hour) }
	srv.status.Store(http.StatusGone)
	_, err = fs.Get(context.Background(), srv.server.URL, nil, opts)
	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusGone, statusErr.StatusCode)

	// Nothing is left on disk
	fs2, err := NewFilesystem(path)
	require.NoError(t, err)
	srv.status.Store(http.StatusOK)
	_, err = fs2.Get(context.Background(), srv.server.URL, nil, opts)
	require.NoError(t, err)
	assert.EqualValues(t, 3, srv.hits.Load())
}

func TestFilesystemPrunesExpired(t *testing.T) {
	first := newCountingServer(t, "one")
	second := newCountingServer(t, "two")
	path := filepath.Join(t.TempDir(), "cache.json")
	now := time.Date(2023, 1, 1, 12, 0, 0, 0, time.UTC)

	fs, err := NewFilesystem(path)
	require.NoError(t, err)
	fs.TimeNow = func() time.Time { return now }

	_, err = fs.Get(context.Background(), first.server.URL, nil, GetOptions{Cache: true, CacheTTL: time.Minute})
	require.NoError(t, err)

	now = now.Add(time.Hour)
	_, err = fs.Get(context.Background(), second.server.URL, nil, GetOptions{Cache: true, CacheTTL: time.Hour})
	require.NoError(t, err)

	reopened, err := NewFilesystem(path)
	require.NoError(t, err)
	assert.Equal(t, 1, len(reopened.entries))
	entry, found := reopened.entries[second.server.URL]
	require.True(t, found)
	assert.Equal(t, "two", string(entry.Body))
	assert.Equal(t, Duration(time.Hour), entry.TTL)

	buf, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(buf), `"ttl":"1h0m0s"`)
}
