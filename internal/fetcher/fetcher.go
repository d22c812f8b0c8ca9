// Package fetcher retrieves tiles over HTTP with bounded concurrency,
// in-flight deduplication and linear-backoff retries.
package fetcher

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/geoclash/maptiles/internal/provider"
	"github.com/geoclash/maptiles/internal/repository/cache"
	"github.com/geoclash/maptiles/pkg/geo"
	"github.com/geoclash/maptiles/pkg/logger"
	"github.com/geoclash/maptiles/pkg/metrics"
)

// Configuration failures are terminal: retrying cannot fix them.
var (
	ErrMissingCredential = errors.New("provider requires an api key")
	ErrInvalidCoordinate = errors.New("tile coordinate out of range")
)

const (
	defaultMaxConcurrent = 4
	defaultMaxAttempts   = 3
	defaultRetryDelay    = time.Second
	defaultTimeout       = 10 * time.Second
	defaultUserAgent     = "geoclash-maptiles/1.0"
)

// Options tune the coordinator. Zero fields fall back to defaults.
type Options struct {
	MaxConcurrent int
	MaxAttempts   int
	RetryDelay    time.Duration
	Timeout       time.Duration
	UserAgent     string
}

func (o Options) withDefaults() Options {
	if o.MaxConcurrent <= 0 {
		o.MaxConcurrent = defaultMaxConcurrent
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = defaultMaxAttempts
	}
	if o.RetryDelay <= 0 {
		o.RetryDelay = defaultRetryDelay
	}
	if o.Timeout <= 0 {
		o.Timeout = defaultTimeout
	}
	if o.UserAgent == "" {
		o.UserAgent = defaultUserAgent
	}
	return o
}

// Result is the terminal outcome of one fetch instance. Err is nil on
// success; on failure Tile carries Failed=true and the retry count.
type Result struct {
	Key        cache.Key
	Tile       cache.Tile
	Generation uint64
	Err        error
}

// Fetcher coordinates upstream tile retrieval. At most MaxConcurrent
// network fetches run at once and a given key is never fetched twice
// concurrently. An optional byte store (redis) is consulted before the
// network and written through after a successful fetch.
type Fetcher struct {
	opts   Options
	client *http.Client
	store  cache.Store
	logger logger.Logger

	mu       sync.Mutex
	inflight map[cache.Key]struct{}
	sem      chan struct{}
}

// New creates a Fetcher. store may be nil.
func New(opts Options, store cache.Store, l logger.Logger) *Fetcher {
	opts = opts.withDefaults()
	return &Fetcher{
		opts:     opts,
		client:   &http.Client{Timeout: opts.Timeout},
		store:    store,
		logger:   l,
		inflight: make(map[cache.Key]struct{}),
		sem:      make(chan struct{}, opts.MaxConcurrent),
	}
}

// InFlight reports whether a fetch for key is currently running.
func (f *Fetcher) InFlight(key cache.Key) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.inflight[key]
	return ok
}

// Fetch starts retrieval of a tile in the background and reports the
// terminal result through onDone, exactly once per started fetch. It
// returns false without invoking onDone when the key is already in
// flight; registering secondary waiters is the caller's concern.
func (f *Fetcher) Fetch(key cache.Key, coord geo.TileCoordinate, cfg provider.Config, generation uint64, onDone func(Result)) bool {
	f.mu.Lock()
	if _, dup := f.inflight[key]; dup {
		f.mu.Unlock()
		return false
	}
	f.inflight[key] = struct{}{}
	f.mu.Unlock()

	go func() {
		res := f.fetch(key, coord, cfg, generation)

		// Clear the marker before completion so the callback can start a
		// fresh fetch for the same key.
		f.mu.Lock()
		delete(f.inflight, key)
		f.mu.Unlock()

		if onDone != nil {
			onDone(res)
		}
	}()

	return true
}

func (f *Fetcher) fetch(key cache.Key, coord geo.TileCoordinate, cfg provider.Config, generation uint64) Result {
	res := Result{Key: key, Generation: generation}

	if !validCoordinate(coord) {
		res.Err = fmt.Errorf("%w: %d/%d/%d", ErrInvalidCoordinate, coord.Zoom, coord.X, coord.Y)
		res.Tile = failedTile(coord, 0)
		metrics.FetchFailures.WithLabelValues("invalid_coordinate").Inc()
		return res
	}

	url, ok := provider.ResolveURL(cfg, coord)
	if !ok {
		res.Err = fmt.Errorf("%w: %s", ErrMissingCredential, cfg.Provider)
		res.Tile = failedTile(coord, 0)
		metrics.FetchFailures.WithLabelValues("configuration").Inc()
		f.logger.Warn("tile url resolution failed", "provider", cfg.Provider.String(), "z", coord.Zoom, "x", coord.X, "y", coord.Y)
		return res
	}

	f.sem <- struct{}{}
	defer func() { <-f.sem }()

	if tile, ok := f.fromStore(key, coord); ok {
		res.Tile = tile
		return res
	}

	var lastErr error
	for attempt := 1; attempt <= f.opts.MaxAttempts; attempt++ {
		data, img, err := f.attempt(url)
		if err == nil {
			res.Tile = cache.Tile{
				Coordinate: coord,
				Image:      img,
				Data:       data,
				FetchedAt:  time.Now(),
				RetryCount: attempt - 1,
			}
			f.storeThrough(key, data)
			f.logger.Debug("tile fetched", "url", url, "attempt", attempt, "size", len(data))
			return res
		}

		lastErr = err
		f.logger.Warn("tile fetch attempt failed", "url", url, "attempt", attempt, "error", err)
		if attempt < f.opts.MaxAttempts {
			time.Sleep(f.opts.RetryDelay * time.Duration(attempt))
		}
	}

	metrics.FetchFailures.WithLabelValues("transient").Inc()
	res.Err = fmt.Errorf("fetch %d/%d/%d: %w", coord.Zoom, coord.X, coord.Y, lastErr)
	res.Tile = failedTile(coord, f.opts.MaxAttempts)
	return res
}

// attempt performs one HTTP GET plus decode. The whole sequence counts as
// a single retry attempt.
func (f *Fetcher) attempt(url string) ([]byte, image.Image, error) {
	metrics.FetchAttempts.Inc()
	start := time.Now()

	ctx, cancel := context.WithTimeout(context.Background(), f.opts.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", f.opts.UserAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, nil, fmt.Errorf("upstream returned status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read body: %w", err)
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to decode tile image: %w", err)
	}

	metrics.UpstreamLatency.Observe(time.Since(start).Seconds())
	return data, img, nil
}

// fromStore tries the shared byte store. Store errors degrade to a miss.
func (f *Fetcher) fromStore(key cache.Key, coord geo.TileCoordinate) (cache.Tile, bool) {
	if f.store == nil {
		return cache.Tile{}, false
	}

	ctx, cancel := context.WithTimeout(context.Background(), f.opts.Timeout)
	defer cancel()

	data, found, err := f.store.Get(ctx, key)
	if err != nil {
		f.logger.Warn("tile store lookup failed", "error", err)
		return cache.Tile{}, false
	}
	if !found {
		return cache.Tile{}, false
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		f.logger.Warn("stored tile is not a valid image", "error", err)
		return cache.Tile{}, false
	}

	return cache.Tile{
		Coordinate: coord,
		Image:      img,
		Data:       data,
		FetchedAt:  time.Now(),
	}, true
}

// storeThrough persists fetched bytes to the shared store, fire and forget.
func (f *Fetcher) storeThrough(key cache.Key, data []byte) {
	if f.store == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), f.opts.Timeout)
		defer cancel()
		if err := f.store.Set(ctx, key, data); err != nil {
			f.logger.Warn("failed to write tile to store", "error", err)
		}
	}()
}

func failedTile(coord geo.TileCoordinate, retries int) cache.Tile {
	return cache.Tile{
		Coordinate: coord,
		FetchedAt:  time.Now(),
		Failed:     true,
		RetryCount: retries,
	}
}

func validCoordinate(t geo.TileCoordinate) bool {
	if t.Zoom < 0 || t.Zoom > 22 {
		return false
	}
	limit := 1<<uint(t.Zoom) - 1
	return t.X >= 0 && t.X <= limit && t.Y >= 0 && t.Y <= limit
}
