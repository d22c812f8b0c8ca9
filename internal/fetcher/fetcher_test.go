package fetcher

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/png"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/geoclash/maptiles/internal/provider"
	"github.com/geoclash/maptiles/internal/repository/cache"
	"github.com/geoclash/maptiles/pkg/geo"
	"github.com/geoclash/maptiles/pkg/logger"
)

func tilePNG(t testing.TB) []byte {
	t.Helper()
	var buf bytes.Buffer
	img := image.NewRGBA(image.Rect(0, 0, 2, 2))
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("failed to encode test tile: %v", err)
	}
	return buf.Bytes()
}

func testOptions() Options {
	return Options{
		MaxConcurrent: 4,
		MaxAttempts:   3,
		RetryDelay:    time.Millisecond,
		Timeout:       2 * time.Second,
	}
}

func customConfig(baseURL string) provider.Config {
	return provider.Config{
		Provider:          provider.Custom,
		CustomURLTemplate: baseURL + "/{z}/{x}/{y}.png",
	}
}

func fetchAndWait(t *testing.T, f *Fetcher, coord geo.TileCoordinate, cfg provider.Config) Result {
	t.Helper()

	key := cache.KeyFor(cfg, coord)
	done := make(chan Result, 1)
	if started := f.Fetch(key, coord, cfg, 0, func(r Result) { done <- r }); !started {
		t.Fatal("Fetch reported duplicate for a fresh key")
	}

	select {
	case res := <-done:
		return res
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for fetch completion")
		return Result{}
	}
}

func TestFetchSuccess(t *testing.T) {
	payload := tilePNG(t)
	var requests atomic.Int32

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		w.Write(payload)
	}))
	defer ts.Close()

	f := New(testOptions(), nil, logger.NewNop())
	coord := geo.TileCoordinate{X: 1, Y: 2, Zoom: 3}
	res := fetchAndWait(t, f, coord, customConfig(ts.URL))

	if res.Err != nil {
		t.Fatalf("fetch failed: %v", res.Err)
	}
	if res.Tile.Failed {
		t.Error("successful fetch produced a failed tile")
	}
	if res.Tile.Image == nil {
		t.Error("tile image not decoded")
	}
	if !bytes.Equal(res.Tile.Data, payload) {
		t.Error("tile bytes do not match the response body")
	}
	if res.Tile.FetchedAt.IsZero() {
		t.Error("FetchedAt not set")
	}
	if res.Tile.RetryCount != 0 {
		t.Errorf("RetryCount = %d, want 0", res.Tile.RetryCount)
	}
	if got := requests.Load(); got != 1 {
		t.Errorf("observed %d HTTP requests, want 1", got)
	}
}

func TestFetchSetsUserAgent(t *testing.T) {
	payload := tilePNG(t)
	gotAgent := make(chan string, 1)

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAgent <- r.Header.Get("User-Agent")
		w.Write(payload)
	}))
	defer ts.Close()

	opts := testOptions()
	opts.UserAgent = "geoclash/2.3"
	f := New(opts, nil, logger.NewNop())
	fetchAndWait(t, f, geo.TileCoordinate{X: 0, Y: 0, Zoom: 1}, customConfig(ts.URL))

	if agent := <-gotAgent; agent != "geoclash/2.3" {
		t.Errorf("User-Agent = %q, want %q", agent, "geoclash/2.3")
	}
}

func TestFetchDeduplicatesInFlight(t *testing.T) {
	payload := tilePNG(t)
	var requests atomic.Int32
	release := make(chan struct{})

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		<-release
		w.Write(payload)
	}))
	defer ts.Close()

	f := New(testOptions(), nil, logger.NewNop())
	cfg := customConfig(ts.URL)
	coord := geo.TileCoordinate{X: 512, Y: 380, Zoom: 10}
	key := cache.KeyFor(cfg, coord)

	done := make(chan Result, 1)
	if !f.Fetch(key, coord, cfg, 0, func(r Result) { done <- r }) {
		t.Fatal("first Fetch not started")
	}

	// Wait until the request hits the test server, then ask again.
	for i := 0; requests.Load() == 0 && i < 100; i++ {
		time.Sleep(5 * time.Millisecond)
	}
	if f.Fetch(key, coord, cfg, 0, func(Result) { t.Error("duplicate callback invoked") }) {
		t.Error("second Fetch for in-flight key reported started")
	}

	close(release)
	<-done

	if got := requests.Load(); got != 1 {
		t.Errorf("observed %d HTTP requests for one key, want 1", got)
	}
}

func TestFetchRetriesUntilExhausted(t *testing.T) {
	var requests atomic.Int32

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer ts.Close()

	f := New(testOptions(), nil, logger.NewNop())
	res := fetchAndWait(t, f, geo.TileCoordinate{X: 1, Y: 1, Zoom: 5}, customConfig(ts.URL))

	if res.Err == nil {
		t.Fatal("expected terminal error after exhausting retries")
	}
	if !res.Tile.Failed {
		t.Error("tile not marked failed")
	}
	if res.Tile.RetryCount != 3 {
		t.Errorf("RetryCount = %d, want 3", res.Tile.RetryCount)
	}
	if got := requests.Load(); got != 3 {
		t.Errorf("observed %d HTTP attempts, want exactly 3", got)
	}
}

func TestFetchRecoversOnLaterAttempt(t *testing.T) {
	payload := tilePNG(t)
	var requests atomic.Int32

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if requests.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write(payload)
	}))
	defer ts.Close()

	f := New(testOptions(), nil, logger.NewNop())
	res := fetchAndWait(t, f, geo.TileCoordinate{X: 2, Y: 3, Zoom: 6}, customConfig(ts.URL))

	if res.Err != nil {
		t.Fatalf("fetch failed: %v", res.Err)
	}
	if res.Tile.RetryCount != 1 {
		t.Errorf("RetryCount = %d, want 1", res.Tile.RetryCount)
	}
	if got := requests.Load(); got != 2 {
		t.Errorf("observed %d HTTP attempts, want 2", got)
	}
}

func TestFetchDecodeFailureIsTransient(t *testing.T) {
	var requests atomic.Int32

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		w.Write([]byte("this is not an image"))
	}))
	defer ts.Close()

	f := New(testOptions(), nil, logger.NewNop())
	res := fetchAndWait(t, f, geo.TileCoordinate{X: 4, Y: 4, Zoom: 7}, customConfig(ts.URL))

	if res.Err == nil {
		t.Fatal("expected failure on undecodable payload")
	}
	if got := requests.Load(); got != 3 {
		t.Errorf("decode failure retried %d times, want 3 attempts", got)
	}
}

func TestFetchMissingCredentialFailsImmediately(t *testing.T) {
	f := New(testOptions(), nil, logger.NewNop())

	cfg := provider.Config{Provider: provider.Mapbox}
	coord := geo.TileCoordinate{X: 1, Y: 1, Zoom: 4}
	res := fetchAndWait(t, f, coord, cfg)

	if !errors.Is(res.Err, ErrMissingCredential) {
		t.Errorf("err = %v, want ErrMissingCredential", res.Err)
	}
	if !res.Tile.Failed {
		t.Error("tile not marked failed")
	}
	if res.Tile.RetryCount != 0 {
		t.Errorf("RetryCount = %d, configuration failure must not consume attempts", res.Tile.RetryCount)
	}
}

func TestFetchRejectsInvalidCoordinate(t *testing.T) {
	var requests atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
	}))
	defer ts.Close()

	f := New(testOptions(), nil, logger.NewNop())

	for _, coord := range []geo.TileCoordinate{
		{X: -1, Y: 0, Zoom: 3},
		{X: 0, Y: 8, Zoom: 3},
		{X: 0, Y: 0, Zoom: -1},
	} {
		res := fetchAndWait(t, f, coord, customConfig(ts.URL))
		if !errors.Is(res.Err, ErrInvalidCoordinate) {
			t.Errorf("err for %+v = %v, want ErrInvalidCoordinate", coord, res.Err)
		}
	}

	if got := requests.Load(); got != 0 {
		t.Errorf("invalid coordinates reached the network %d times", got)
	}
}

type fakeStore struct {
	data map[cache.Key][]byte
	sets chan cache.Key
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		data: make(map[cache.Key][]byte),
		sets: make(chan cache.Key, 16),
	}
}

func (s *fakeStore) Get(_ context.Context, k cache.Key) ([]byte, bool, error) {
	data, ok := s.data[k]
	return data, ok, nil
}

func (s *fakeStore) Set(_ context.Context, k cache.Key, data []byte) error {
	s.sets <- k
	return nil
}

func TestFetchServedFromStoreSkipsNetwork(t *testing.T) {
	var requests atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
	}))
	defer ts.Close()

	cfg := customConfig(ts.URL)
	coord := geo.TileCoordinate{X: 3, Y: 3, Zoom: 8}
	key := cache.KeyFor(cfg, coord)

	store := newFakeStore()
	store.data[key] = tilePNG(t)

	f := New(testOptions(), store, logger.NewNop())
	res := fetchAndWait(t, f, coord, cfg)

	if res.Err != nil {
		t.Fatalf("fetch failed: %v", res.Err)
	}
	if res.Tile.Image == nil {
		t.Error("stored tile not decoded")
	}
	if got := requests.Load(); got != 0 {
		t.Errorf("store hit still issued %d HTTP requests", got)
	}
}

func TestFetchWritesThroughToStore(t *testing.T) {
	payload := tilePNG(t)
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(payload)
	}))
	defer ts.Close()

	cfg := customConfig(ts.URL)
	coord := geo.TileCoordinate{X: 6, Y: 6, Zoom: 9}
	store := newFakeStore()

	f := New(testOptions(), store, logger.NewNop())
	res := fetchAndWait(t, f, coord, cfg)
	if res.Err != nil {
		t.Fatalf("fetch failed: %v", res.Err)
	}

	select {
	case k := <-store.sets:
		if k != cache.KeyFor(cfg, coord) {
			t.Errorf("stored under key %+v", k)
		}
	case <-time.After(2 * time.Second):
		t.Error("fetched tile never written to the store")
	}
}

func TestFetchConcurrencyBound(t *testing.T) {
	payload := tilePNG(t)
	var active, peak atomic.Int32

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := active.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		active.Add(-1)
		w.Write(payload)
	}))
	defer ts.Close()

	opts := testOptions()
	opts.MaxConcurrent = 2
	f := New(opts, nil, logger.NewNop())
	cfg := customConfig(ts.URL)

	const tiles = 8
	done := make(chan Result, tiles)
	for i := 0; i < tiles; i++ {
		coord := geo.TileCoordinate{X: i, Y: 0, Zoom: 10}
		f.Fetch(cache.KeyFor(cfg, coord), coord, cfg, 0, func(r Result) { done <- r })
	}
	for i := 0; i < tiles; i++ {
		select {
		case <-done:
		case <-time.After(10 * time.Second):
			t.Fatal("timed out waiting for fetches")
		}
	}

	if p := peak.Load(); p > 2 {
		t.Errorf("peak concurrency %d exceeds bound 2", p)
	}
}
