// Package cache holds the tile caching layer: the bounded in-memory cache
// used by the tile service, plus optional byte-level stores (redis, sqlite)
// shared between processes or persisted for offline use.
package cache

import (
	"context"
	"image"
	"time"

	"github.com/geoclash/maptiles/internal/provider"
	"github.com/geoclash/maptiles/pkg/geo"
)

// Key identifies a cached tile. Tiles for the same coordinate under a
// different provider or style are distinct entries.
type Key struct {
	Provider provider.Provider
	Style    provider.Style
	Z        int
	X        int
	Y        int
}

// KeyFor derives the cache key for a tile under the given configuration.
func KeyFor(cfg provider.Config, t geo.TileCoordinate) Key {
	return Key{
		Provider: cfg.Provider,
		Style:    cfg.Style,
		Z:        t.Zoom,
		X:        t.X,
		Y:        t.Y,
	}
}

// Tile is a cache entry. A fetch that exhausted its retries is stored with
// Failed set so callers can distinguish "known bad" from "not fetched yet".
type Tile struct {
	Coordinate geo.TileCoordinate
	Image      image.Image
	Data       []byte
	FetchedAt  time.Time
	Failed     bool
	RetryCount int
}

// Stats is a point-in-time snapshot of cache counters.
type Stats struct {
	Count       int   `json:"count"`
	Hits        int64 `json:"hits"`
	Misses      int64 `json:"misses"`
	Evictions   int64 `json:"evictions"`
	FailedCount int   `json:"failed_count"`
}

// Store is a byte-level tile store consulted outside the in-memory cache:
// a shared redis layer or a durable offline archive.
type Store interface {
	Get(ctx context.Context, k Key) ([]byte, bool, error)
	Set(ctx context.Context, k Key, data []byte) error
}
