// Package usecase wires the cache, fetcher and provider resolver into the
// tile service consumed by the game client and the proxy handlers.
package usecase

import (
	"context"
	"errors"
	"image"
	"sync"

	"github.com/geoclash/maptiles/internal/fetcher"
	"github.com/geoclash/maptiles/internal/provider"
	"github.com/geoclash/maptiles/internal/repository/cache"
	"github.com/geoclash/maptiles/pkg/geo"
	"github.com/geoclash/maptiles/pkg/logger"
)

// ErrNoOfflineStore is returned by DownloadAreaForOffline when no durable
// store was configured.
var ErrNoOfflineStore = errors.New("offline tile store not configured")

// ProgressFunc reports offline download progress.
type ProgressFunc func(completed, total int)

// TileLoadedFunc is invoked at most once per completed fetch, after the
// tile has been inserted into the cache.
type TileLoadedFunc func(coord geo.TileCoordinate, tile cache.Tile)

// Options bound the zoom range the service will serve.
type Options struct {
	MinZoom int
	MaxZoom int
}

func (o Options) withDefaults() Options {
	if o.MaxZoom <= 0 {
		o.MaxZoom = 19
	}
	return o
}

// TileService is the facade over the tile acquisition layer. Lookups are
// non-blocking: a cache miss triggers a background fetch and returns nil,
// the caller asks again on a later frame or registers a callback.
type TileService struct {
	opts    Options
	cache   *cache.MemoryCache
	fetcher *fetcher.Fetcher
	offline cache.Store
	logger  logger.Logger

	mu         sync.Mutex
	cfg        provider.Config
	generation uint64
	waiters    map[cache.Key][]func(cache.Tile)
	onLoaded   TileLoadedFunc
}

// NewTileService creates the facade. offline may be nil; then
// DownloadAreaForOffline reports ErrNoOfflineStore.
func NewTileService(cfg provider.Config, opts Options, c *cache.MemoryCache, f *fetcher.Fetcher, offline cache.Store, l logger.Logger) *TileService {
	return &TileService{
		opts:    opts.withDefaults(),
		cache:   c,
		fetcher: f,
		offline: offline,
		logger:  l,
		cfg:     cfg,
		waiters: make(map[cache.Key][]func(cache.Tile)),
	}
}

// SetOnTileLoaded registers the renderer notification. Pass nil to remove.
func (s *TileService) SetOnTileLoaded(fn TileLoadedFunc) {
	s.mu.Lock()
	s.onLoaded = fn
	s.mu.Unlock()
}

// Config returns the active provider configuration.
func (s *TileService) Config() provider.Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg
}

func (s *TileService) zoomInRange(zoom int) bool {
	return zoom >= s.opts.MinZoom && zoom <= s.opts.MaxZoom
}

// GetTile returns the cached image for coord, or nil after triggering a
// background fetch. A cached failed entry also yields nil without starting
// a new fetch; it is retried once it expires or the cache is invalidated.
func (s *TileService) GetTile(coord geo.TileCoordinate) image.Image {
	if !s.zoomInRange(coord.Zoom) {
		return nil
	}

	key := cache.KeyFor(s.Config(), coord)
	if tile, ok := s.cache.Get(key); ok {
		if tile.Failed {
			return nil
		}
		return tile.Image
	}

	s.trigger(key, coord, nil)
	return nil
}

// GetTileAsync invokes cb with the tile: synchronously on a cache hit or
// an out-of-range zoom, otherwise exactly once when the pending or newly
// triggered fetch completes. Pending callbacks are dropped on a provider
// or style change, since the tile they asked for no longer exists under
// the new config.
func (s *TileService) GetTileAsync(coord geo.TileCoordinate, cb func(cache.Tile)) {
	if !s.zoomInRange(coord.Zoom) {
		cb(cache.Tile{Coordinate: coord, Failed: true})
		return
	}

	key := cache.KeyFor(s.Config(), coord)
	if tile, ok := s.cache.Get(key); ok {
		cb(tile)
		return
	}

	s.trigger(key, coord, cb)
}

// GetTileSync blocks until the tile is available or ctx expires. Used by
// the proxy handlers, which unlike the renderer want a blocking contract.
func (s *TileService) GetTileSync(ctx context.Context, coord geo.TileCoordinate) (cache.Tile, error) {
	if !s.zoomInRange(coord.Zoom) {
		return cache.Tile{}, fetcher.ErrInvalidCoordinate
	}

	ch := make(chan cache.Tile, 1)
	s.GetTileAsync(coord, func(t cache.Tile) {
		ch <- t
	})

	select {
	case tile := <-ch:
		if tile.Failed {
			return tile, errors.New("tile fetch failed")
		}
		return tile, nil
	case <-ctx.Done():
		return cache.Tile{}, ctx.Err()
	}
}

// trigger registers cb as a waiter and starts a fetch unless one is
// already in flight for key.
func (s *TileService) trigger(key cache.Key, coord geo.TileCoordinate, cb func(cache.Tile)) bool {
	s.mu.Lock()
	if cb != nil {
		s.waiters[key] = append(s.waiters[key], cb)
	}
	cfg := s.cfg
	gen := s.generation
	s.mu.Unlock()

	return s.fetcher.Fetch(key, coord, cfg, gen, s.onFetchDone)
}

// onFetchDone is the single completion path for every fetch. Results from
// a generation older than the current one are discarded: the configuration
// changed while the fetch was in flight. Waiters that registered after the
// change and landed on the doomed fetch are still owed a result, so the
// fetch is restarted for them under the current configuration.
func (s *TileService) onFetchDone(res fetcher.Result) {
	s.mu.Lock()
	if res.Generation != s.generation {
		cfg := s.cfg
		gen := s.generation
		refetch := len(s.waiters[res.Key]) > 0
		s.mu.Unlock()

		s.logger.Debug("discarding stale tile result",
			"z", res.Key.Z, "x", res.Key.X, "y", res.Key.Y, "generation", res.Generation)
		if refetch {
			s.fetcher.Fetch(res.Key, res.Tile.Coordinate, cfg, gen, s.onFetchDone)
		}
		return
	}

	waiters := s.waiters[res.Key]
	delete(s.waiters, res.Key)
	notify := s.onLoaded
	// The generation check and the insert are one critical section so an
	// invalidation cannot slip in between and get a stale tile re-inserted.
	s.cache.Put(res.Key, res.Tile)
	s.mu.Unlock()

	if res.Err != nil {
		s.logger.Warn("tile fetch failed",
			"z", res.Key.Z, "x", res.Key.X, "y", res.Key.Y, "error", res.Err)
	}

	for _, cb := range waiters {
		cb(res.Tile)
	}
	if notify != nil {
		notify(res.Tile.Coordinate, res.Tile)
	}
}

// PreloadArea triggers fetches for every uncached tile covering bounds at
// zoom and returns how many fetches were newly started. Cached tiles and
// tiles already in flight are not counted.
func (s *TileService) PreloadArea(bounds geo.GeoBounds, zoom int) int {
	if !s.zoomInRange(zoom) {
		return 0
	}

	cfg := s.Config()
	minTile, maxTile := geo.TileRange(bounds, zoom)

	started := 0
	for x := minTile.X; x <= maxTile.X; x++ {
		for y := minTile.Y; y <= maxTile.Y; y++ {
			coord := geo.TileCoordinate{X: x, Y: y, Zoom: zoom}
			key := cache.KeyFor(cfg, coord)
			if _, ok := s.cache.Get(key); ok {
				continue
			}
			if s.trigger(key, coord, nil) {
				started++
			}
		}
	}

	s.logger.Info("area preload triggered", "zoom", zoom, "fetches", started)
	return started
}

// SetProvider switches the active provider and optionally installs its api
// key. The cache is invalidated: tiles from different providers are not
// interchangeable. In-flight fetches for the old provider complete and are
// discarded by the generation check.
func (s *TileService) SetProvider(p provider.Provider, apiKey string) {
	s.mu.Lock()
	s.cfg.Provider = p
	switch p {
	case provider.Mapbox:
		if apiKey != "" {
			s.cfg.MapboxKey = apiKey
		}
	case provider.GoogleMaps:
		if apiKey != "" {
			s.cfg.GoogleKey = apiKey
		}
	case provider.MapTiler:
		if apiKey != "" {
			s.cfg.MapTilerKey = apiKey
		}
	}
	s.invalidateLocked()
	s.mu.Unlock()

	s.logger.Info("tile provider changed", "provider", p.String())
}

// SetStyle switches the rendering style and invalidates the cache.
func (s *TileService) SetStyle(style provider.Style) {
	s.mu.Lock()
	s.cfg.Style = style
	s.invalidateLocked()
	s.mu.Unlock()

	s.logger.Info("tile style changed", "style", style.String())
}

// SetCustomURLTemplate installs the template used by the Custom provider.
func (s *TileService) SetCustomURLTemplate(tmpl string) {
	s.mu.Lock()
	s.cfg.CustomURLTemplate = tmpl
	s.invalidateLocked()
	s.mu.Unlock()
}

func (s *TileService) invalidateLocked() {
	s.generation++
	s.waiters = make(map[cache.Key][]func(cache.Tile))
	s.cache.Invalidate()
}

// ClearCache empties the tile cache without touching the configuration.
// The generation is left alone: evicted tiles are still valid for their
// keys, so in-flight fetches keep their waiters and land in the fresh
// cache as usual.
func (s *TileService) ClearCache() {
	s.mu.Lock()
	s.cache.Invalidate()
	s.mu.Unlock()
}

// Stats snapshots the cache counters.
func (s *TileService) Stats() cache.Stats {
	return s.cache.Stats()
}

// DownloadAreaForOffline fetches every tile covering bounds for each zoom
// level in [minZoom, maxZoom] and persists it to the offline store,
// reporting progress along the way. Tiles already archived are counted as
// completed without refetching. Returns the number of tiles persisted.
func (s *TileService) DownloadAreaForOffline(ctx context.Context, bounds geo.GeoBounds, minZoom, maxZoom int, progress ProgressFunc) (int, error) {
	if s.offline == nil {
		return 0, ErrNoOfflineStore
	}
	if minZoom < s.opts.MinZoom {
		minZoom = s.opts.MinZoom
	}
	if maxZoom > s.opts.MaxZoom {
		maxZoom = s.opts.MaxZoom
	}
	if minZoom > maxZoom {
		return 0, fetcher.ErrInvalidCoordinate
	}

	var coords []geo.TileCoordinate
	for zoom := minZoom; zoom <= maxZoom; zoom++ {
		minTile, maxTile := geo.TileRange(bounds, zoom)
		for x := minTile.X; x <= maxTile.X; x++ {
			for y := minTile.Y; y <= maxTile.Y; y++ {
				coords = append(coords, geo.TileCoordinate{X: x, Y: y, Zoom: zoom})
			}
		}
	}

	cfg := s.Config()
	total := len(coords)
	persisted := 0

	for i, coord := range coords {
		if err := ctx.Err(); err != nil {
			return persisted, err
		}

		key := cache.KeyFor(cfg, coord)
		if _, found, err := s.offline.Get(ctx, key); err == nil && found {
			if progress != nil {
				progress(i+1, total)
			}
			continue
		}

		tile, err := s.GetTileSync(ctx, coord)
		if err != nil {
			s.logger.Warn("offline download skipping tile",
				"z", coord.Zoom, "x", coord.X, "y", coord.Y, "error", err)
		} else if err := s.offline.Set(ctx, key, tile.Data); err != nil {
			s.logger.Error("offline store write failed",
				"z", coord.Zoom, "x", coord.X, "y", coord.Y, "error", err)
		} else {
			persisted++
		}

		if progress != nil {
			progress(i+1, total)
		}
	}

	s.logger.Info("offline area download finished", "tiles", total, "persisted", persisted)
	return persisted, nil
}
