package blobcache

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) *Cache {
	t.Helper()
	c, err := New(t.TempDir(), nil)
	require.NoError(t, err)
	return c
}

func TestKeyIsStableHexDigest(t *testing.T) {
	k := Key("https://cdn.example.com/creatives/ad.mp4")
	assert.Len(t, k, 64)
	assert.True(t, ValidID(k))
	assert.Equal(t, k, Key("https://cdn.example.com/creatives/ad.mp4"))
	assert.NotEqual(t, k, Key("https://cdn.example.com/creatives/other.mp4"))
}

func TestValidIDRejectsMalformedIDs(t *testing.T) {
	assert.False(t, ValidID(""))
	assert.False(t, ValidID("../../etc/passwd"))
	assert.False(t, ValidID(strings.Repeat("g", 64)))
	assert.False(t, ValidID(strings.Repeat("a", 63)))
	assert.True(t, ValidID(strings.Repeat("a", 64)))
}

func TestGetMissReturnsErrNotFound(t *testing.T) {
	c := newTestCache(t)
	_, err := c.Get(Key("missing"))
	assert.ErrorIs(t, err, ErrNotFound)
	assert.False(t, c.Has(Key("missing")))
}

func TestEnsureCachedDownloadsAndPersists(t *testing.T) {
	payload := []byte("fake media bytes")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(payload)
	}))
	defer srv.Close()

	c := newTestCache(t)
	id := Key(srv.URL)

	data, err := c.EnsureCached(context.Background(), srv.URL, id, nil)
	require.NoError(t, err)
	assert.Equal(t, payload, data)

	assert.True(t, c.Has(id))
	cached, err := c.Get(id)
	require.NoError(t, err)
	assert.Equal(t, payload, cached)

	path, ok := c.Path(id)
	require.True(t, ok)
	onDisk, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, payload, onDisk)
}

func TestEnsureCachedSharesOneFetch(t *testing.T) {
	var fetches atomic.Int32
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fetches.Add(1)
		<-release
		w.Write([]byte("shared payload"))
	}))
	defer srv.Close()

	c := newTestCache(t)
	id := Key(srv.URL)

	const callers = 5
	var wg sync.WaitGroup
	results := make([][]byte, callers)
	errs := make([]error, callers)
	ready := make(chan struct{}, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ready <- struct{}{}
			results[i], errs[i] = c.EnsureCached(context.Background(), srv.URL, id, nil)
		}(i)
	}
	for i := 0; i < callers; i++ {
		<-ready
	}
	close(release)
	wg.Wait()

	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, []byte("shared payload"), results[i])
	}
	assert.LessOrEqual(t, fetches.Load(), int32(2), "concurrent callers share the in-flight fetch")
	assert.True(t, c.Has(id))
}

func TestEnsureCachedHitSkipsOrigin(t *testing.T) {
	var fetches atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fetches.Add(1)
		w.Write([]byte("once"))
	}))
	defer srv.Close()

	c := newTestCache(t)
	id := Key(srv.URL)

	_, err := c.EnsureCached(context.Background(), srv.URL, id, nil)
	require.NoError(t, err)
	_, err = c.EnsureCached(context.Background(), srv.URL, id, nil)
	require.NoError(t, err)
	assert.Equal(t, int32(1), fetches.Load())
}

func TestEnsureCachedOriginErrorLeavesNoEntry(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := newTestCache(t)
	id := Key(srv.URL)

	_, err := c.EnsureCached(context.Background(), srv.URL, id, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "500")
	assert.False(t, c.Has(id))

	// No partial file may outlive a failed download.
	leftovers, err := filepath.Glob(filepath.Join(c.dir, "*.part-*"))
	require.NoError(t, err)
	assert.Empty(t, leftovers)
}

func TestEnsureCachedReportsProgress(t *testing.T) {
	payload := make([]byte, 3*downloadChunkSize)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", strconv.Itoa(len(payload)))
		w.Write(payload)
	}))
	defer srv.Close()

	c := newTestCache(t)
	id := Key(srv.URL)

	var mu sync.Mutex
	var updates []Progress
	_, err := c.EnsureCached(context.Background(), srv.URL, id, func(p Progress) {
		mu.Lock()
		updates = append(updates, p)
		mu.Unlock()
	})
	require.NoError(t, err)

	require.NotEmpty(t, updates)
	last := updates[len(updates)-1]
	assert.Equal(t, int64(len(payload)), last.Loaded)
	assert.Equal(t, int64(len(payload)), last.Total)
	assert.InDelta(t, 100.0, last.Percent, 0.01)
	for i := 1; i < len(updates); i++ {
		assert.GreaterOrEqual(t, updates[i].Loaded, updates[i-1].Loaded)
	}
}

func TestRemoveIsIdempotent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("x"))
	}))
	defer srv.Close()

	c := newTestCache(t)
	id := Key(srv.URL)
	_, err := c.EnsureCached(context.Background(), srv.URL, id, nil)
	require.NoError(t, err)

	require.NoError(t, c.Remove(id))
	assert.False(t, c.Has(id))
	require.NoError(t, c.Remove(id))
}
