// Package blobcache is the persistent local store for downloaded media bytes.
// Entries are keyed by a content-derived identifier; a download is only
// persisted once it is complete, and concurrent requests for the same entry
// share a single fetch.
package blobcache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// ErrNotFound is returned by Get when no entry exists for the id.
var ErrNotFound = errors.New("blobcache: entry not found")

const downloadChunkSize = 64 * 1024

var idPattern = regexp.MustCompile(`^[0-9a-f]{64}$`)

// Progress reports how far a tracked download has come. Total is zero when the
// origin does not announce a content length.
type Progress struct {
	Loaded  int64   `json:"loaded"`
	Total   int64   `json:"total"`
	Percent float64 `json:"percent"`
}

// ProgressFunc receives download progress as chunks arrive.
type ProgressFunc func(Progress)

// Key derives the stable cache identifier for a content reference.
func Key(ref string) string {
	sum := sha256.Sum256([]byte(ref))
	return hex.EncodeToString(sum[:])
}

// ValidID reports whether id has the shape produced by Key.
func ValidID(id string) bool {
	return idPattern.MatchString(id)
}

// Cache stores media blobs as files under a single directory.
type Cache struct {
	dir    string
	client *http.Client
	group  singleflight.Group
	logger *zap.Logger
}

// New creates a cache rooted at dir, creating it if needed.
func New(dir string, logger *zap.Logger) (*Cache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Cache{
		dir:    dir,
		client: &http.Client{Timeout: 10 * time.Minute},
		logger: logger,
	}, nil
}

// Has reports whether a complete entry exists for id.
func (c *Cache) Has(id string) bool {
	info, err := os.Stat(c.path(id))
	return err == nil && info.Mode().IsRegular()
}

// Get returns the cached bytes for id, or ErrNotFound.
func (c *Cache) Get(id string) ([]byte, error) {
	data, err := os.ReadFile(c.path(id))
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	return data, err
}

// Path returns the on-disk location of a cached entry and whether it exists.
func (c *Cache) Path(id string) (string, bool) {
	return c.path(id), c.Has(id)
}

// Remove deletes a cached entry. Missing entries are not an error.
func (c *Cache) Remove(id string) error {
	err := os.Remove(c.path(id))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

// EnsureCached returns the bytes for id, downloading and persisting them from
// ref on a miss. Concurrent calls for the same id share one download. Partial
// downloads are never persisted.
func (c *Cache) EnsureCached(ctx context.Context, ref, id string, onProgress ProgressFunc) ([]byte, error) {
	v, err, _ := c.group.Do(id, func() (any, error) {
		if data, err := c.Get(id); err == nil {
			return data, nil
		}
		return c.download(ctx, ref, id, onProgress)
	})
	if err != nil {
		return nil, err
	}
	return v.([]byte), nil
}

func (c *Cache) download(ctx context.Context, ref, id string, onProgress ProgressFunc) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ref, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch status: %d", resp.StatusCode)
	}

	tmp, err := os.CreateTemp(c.dir, id+".part-*")
	if err != nil {
		return nil, fmt.Errorf("create temp: %w", err)
	}
	defer func() {
		tmp.Close()
		os.Remove(tmp.Name())
	}()

	total := resp.ContentLength
	var loaded int64
	data := make([]byte, 0, int(max64(total, 0)))
	buf := make([]byte, downloadChunkSize)
	for {
		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			if _, werr := tmp.Write(buf[:n]); werr != nil {
				return nil, fmt.Errorf("write temp: %w", werr)
			}
			data = append(data, buf[:n]...)
			loaded += int64(n)
			if onProgress != nil {
				onProgress(progressOf(loaded, total))
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return nil, fmt.Errorf("read body: %w", readErr)
		}
	}

	if err := tmp.Close(); err != nil {
		return nil, fmt.Errorf("close temp: %w", err)
	}
	if err := os.Rename(tmp.Name(), c.path(id)); err != nil {
		return nil, fmt.Errorf("persist entry: %w", err)
	}
	c.logger.Info("media cached",
		zap.String("id", id), zap.Int64("bytes", loaded), zap.String("ref", ref))
	return data, nil
}

func (c *Cache) path(id string) string {
	return filepath.Join(c.dir, id)
}

func progressOf(loaded, total int64) Progress {
	p := Progress{Loaded: loaded, Total: max64(total, 0)}
	if p.Total > 0 {
		p.Percent = float64(loaded) / float64(p.Total) * 100
	}
	return p
}

func max64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}
