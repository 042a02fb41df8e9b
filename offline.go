package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/boltdb/bolt"
)

// cacheStatusHeader reports how the offline cache answered a request:
// hit, stored, stale or bypass.
const cacheStatusHeader = "X-Startpage-Cache"

// OfflineCache stores response copies in a bolt database, one bucket per
// cache generation.
type OfflineCache struct {
	db         *bolt.DB
	generation []byte
}

type cachedResponse struct {
	Status   int         `json:"status"`
	Header   http.Header `json:"header"`
	Body     []byte      `json:"body"`
	StoredAt time.Time   `json:"storedAt"`
}

// GenerationStats describes one stored cache generation.
type GenerationStats struct {
	Generation string `json:"generation"`
	Current    bool   `json:"current"`
	Entries    int    `json:"entries"`
	Bytes      int64  `json:"bytes"`
}

func OpenOfflineCache(path, generation string) (*OfflineCache, error) {
	if generation == "" {
		return nil, errors.New("cache generation must not be empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("creating cache directory: %w", err)
	}

	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening offline cache: %w", err)
	}

	c := &OfflineCache{db: db, generation: []byte(generation)}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(c.generation)
		return err
	}); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating cache generation %q: %w", generation, err)
	}

	return c, nil
}

func (c *OfflineCache) Generation() string {
	return string(c.generation)
}

// Activate deletes every stored generation other than the current one and
// returns the names it removed.
func (c *OfflineCache) Activate() ([]string, error) {
	var purged []string
	err := c.db.Update(func(tx *bolt.Tx) error {
		var stale [][]byte
		if err := tx.ForEach(func(name []byte, _ *bolt.Bucket) error {
			if !bytes.Equal(name, c.generation) {
				stale = append(stale, append([]byte(nil), name...))
			}
			return nil
		}); err != nil {
			return err
		}

		for _, name := range stale {
			if err := tx.DeleteBucket(name); err != nil {
				return fmt.Errorf("deleting generation %q: %w", name, err)
			}
			purged = append(purged, string(name))
		}

		_, err := tx.CreateBucketIfNotExists(c.generation)
		return err
	})
	if err != nil {
		return nil, err
	}
	return purged, nil
}

func (c *OfflineCache) Match(key string) (cachedResponse, bool, error) {
	var entry cachedResponse
	var found bool
	err := c.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(c.generation)
		if b == nil {
			return nil
		}
		data := b.Get([]byte(key))
		if data == nil {
			return nil
		}
		found = true
		return json.Unmarshal(data, &entry)
	})
	if err != nil {
		return cachedResponse{}, false, fmt.Errorf("reading cache entry %q: %w", key, err)
	}
	return entry, found, nil
}

func (c *OfflineCache) Put(key string, entry cachedResponse) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encoding cache entry: %w", err)
	}
	return c.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(c.generation)
		if err != nil {
			return err
		}
		return b.Put([]byte(key), data)
	})
}

func (c *OfflineCache) Stats() ([]GenerationStats, error) {
	var stats []GenerationStats
	err := c.db.View(func(tx *bolt.Tx) error {
		return tx.ForEach(func(name []byte, b *bolt.Bucket) error {
			s := GenerationStats{
				Generation: string(name),
				Current:    bytes.Equal(name, c.generation),
			}
			err := b.ForEach(func(_, v []byte) error {
				s.Entries++
				s.Bytes += int64(len(v))
				return nil
			})
			stats = append(stats, s)
			return err
		})
	})
	return stats, err
}

func (c *OfflineCache) Close() error {
	return c.db.Close()
}

func (e cachedResponse) toResponse(req *http.Request, status string) *http.Response {
	header := e.Header.Clone()
	if header == nil {
		header = http.Header{}
	}
	header.Set(cacheStatusHeader, status)
	header.Del("Content-Length")

	return &http.Response{
		Status:        fmt.Sprintf("%d %s", e.Status, http.StatusText(e.Status)),
		StatusCode:    e.Status,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        header,
		Body:          io.NopCloser(bytes.NewReader(e.Body)),
		ContentLength: int64(len(e.Body)),
		Request:       req,
	}
}

type CacheStrategy int

const (
	CacheFirst CacheStrategy = iota
	NetworkFirst
)

func (s CacheStrategy) String() string {
	switch s {
	case NetworkFirst:
		return "network-first"
	default:
		return "cache-first"
	}
}

// CachingTransport is an http.RoundTripper that answers GET requests from
// the offline cache according to the strategy its host maps to. Hosts of
// the live data services are network-first; everything else is cache-first.
type CachingTransport struct {
	cache             *OfflineCache
	next              http.RoundTripper
	networkFirstHosts map[string]bool
	strategies        map[CacheStrategy]func(*http.Request) (*http.Response, error)
	logger            *slog.Logger
}

func NewCachingTransport(cache *OfflineCache, next http.RoundTripper, networkFirstHosts []string, logger *slog.Logger) *CachingTransport {
	if next == nil {
		next = http.DefaultTransport
	}

	t := &CachingTransport{
		cache:             cache,
		next:              next,
		networkFirstHosts: make(map[string]bool, len(networkFirstHosts)),
		logger:            logger,
	}
	for _, h := range networkFirstHosts {
		if h = strings.ToLower(strings.TrimSpace(h)); h != "" {
			t.networkFirstHosts[h] = true
		}
	}
	t.strategies = map[CacheStrategy]func(*http.Request) (*http.Response, error){
		CacheFirst:   t.cacheFirst,
		NetworkFirst: t.networkFirst,
	}
	return t
}

// Classify returns the strategy that applies to req.
func (t *CachingTransport) Classify(req *http.Request) CacheStrategy {
	if t.networkFirstHosts[strings.ToLower(req.URL.Hostname())] {
		return NetworkFirst
	}
	return CacheFirst
}

func (t *CachingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Method != http.MethodGet {
		return t.next.RoundTrip(req)
	}
	return t.strategies[t.Classify(req)](req)
}

func (t *CachingTransport) networkFirst(req *http.Request) (*http.Response, error) {
	key := cacheKey(req)

	resp, err := t.next.RoundTrip(req)
	if err == nil {
		if !isSuccess(resp.StatusCode) {
			return resp, nil
		}
		stored, storeErr := t.store(key, resp)
		if storeErr == nil {
			return stored.toResponse(req, "stored"), nil
		}
		err = storeErr
	}

	entry, found, matchErr := t.cache.Match(key)
	if matchErr != nil {
		t.logger.Warn("offline cache lookup failed", "key", key, "error", matchErr)
	}
	if !found {
		return nil, err
	}

	t.logger.Info("network failed, serving cached copy", "url", req.URL.String(), "storedAt", entry.StoredAt, "error", err)
	return entry.toResponse(req, "stale"), nil
}

func (t *CachingTransport) cacheFirst(req *http.Request) (*http.Response, error) {
	key := cacheKey(req)

	entry, found, err := t.cache.Match(key)
	if err != nil {
		t.logger.Warn("offline cache lookup failed", "key", key, "error", err)
	}
	if found {
		return entry.toResponse(req, "hit"), nil
	}

	resp, err := t.next.RoundTrip(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return resp, nil
	}

	stored, err := t.store(key, resp)
	if err != nil {
		return nil, err
	}
	return stored.toResponse(req, "stored"), nil
}

// store drains resp and writes a copy. A failed cache write is logged, not
// returned; only a failed body read is an error.
func (t *CachingTransport) store(key string, resp *http.Response) (cachedResponse, error) {
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return cachedResponse{}, fmt.Errorf("reading response body: %w", err)
	}

	entry := cachedResponse{
		Status:   resp.StatusCode,
		Header:   resp.Header.Clone(),
		Body:     body,
		StoredAt: time.Now().UTC(),
	}
	if err := t.cache.Put(key, entry); err != nil {
		t.logger.Warn("offline cache write failed", "key", key, "error", err)
	}
	return entry, nil
}

// Precache fetches urls from the network and stores every 200 response in
// the current generation, replacing older copies.
func (t *CachingTransport) Precache(ctx context.Context, urls []string) error {
	var errs []error
	for _, u := range urls {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			errs = append(errs, fmt.Errorf("precache %s: %w", u, err))
			continue
		}

		resp, err := t.next.RoundTrip(req)
		if err != nil {
			errs = append(errs, fmt.Errorf("precache %s: %w", u, err))
			continue
		}
		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			errs = append(errs, fmt.Errorf("precache %s: %w", u, &statusError{url: u, status: resp.StatusCode}))
			continue
		}
		if _, err := t.store(cacheKey(req), resp); err != nil {
			errs = append(errs, fmt.Errorf("precache %s: %w", u, err))
		}
	}
	return errors.Join(errs...)
}

func cacheKey(req *http.Request) string {
	return req.Method + " " + req.URL.String()
}

func isSuccess(status int) bool {
	return status >= 200 && status < 300
}
