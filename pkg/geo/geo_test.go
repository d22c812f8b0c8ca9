package geo

import (
	"math"
	"testing"
)

func TestTileFromLatLon(t *testing.T) {
	tests := []struct {
		name string
		lat  float64
		lon  float64
		zoom int
		x    int
		y    int
	}{
		{"origin at zoom 0", 0, 0, 0, 0, 0},
		{"vienna va zoom 15", 38.9012, -77.2653, 15, 9351, 12534},
		{"london zoom 10", 51.5074, -0.1278, 10, 511, 340},
		{"sydney zoom 12", -33.8688, 151.2093, 12, 3768, 2457},
		{"north pole clamped", 90, 0, 5, 16, 0},
		{"south pole clamped", -90, 0, 5, 16, 31},
		{"date line west", 0, -180, 8, 0, 128},
		{"date line east clamped", 0, 180, 8, 255, 128},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := TileFromLatLon(tt.lat, tt.lon, tt.zoom)
			want := expectedTile(tt.lat, tt.lon, tt.zoom)
			if got != want {
				t.Errorf("TileFromLatLon(%v, %v, %d) = %+v, want %+v", tt.lat, tt.lon, tt.zoom, got, want)
			}
			if got.X != tt.x || got.Y != tt.y {
				t.Errorf("TileFromLatLon(%v, %v, %d) = %d/%d, want %d/%d", tt.lat, tt.lon, tt.zoom, got.X, got.Y, tt.x, tt.y)
			}
		})
	}
}

// expectedTile is an independent oracle using the reference slippy-map
// projection formula.
func expectedTile(lat, lon float64, zoom int) TileCoordinate {
	if lat > MaxLatitude {
		lat = MaxLatitude
	}
	if lat < -MaxLatitude {
		lat = -MaxLatitude
	}
	n := math.Exp2(float64(zoom))
	x := int(math.Floor((lon + 180) / 360 * n))
	latRad := lat * math.Pi / 180
	y := int(math.Floor((1 - math.Log(math.Tan(latRad)+1/math.Cos(latRad))/math.Pi) / 2 * n))
	limit := int(n) - 1
	if x < 0 {
		x = 0
	}
	if x > limit {
		x = limit
	}
	if y < 0 {
		y = 0
	}
	if y > limit {
		y = limit
	}
	return TileCoordinate{X: x, Y: y, Zoom: zoom}
}

func TestTileFromLatLonBounds(t *testing.T) {
	lats := []float64{-90, -85.05, -45, 0, 45, 85.05, 90}
	lons := []float64{-180, -90, 0, 90, 179.999}

	for zoom := 0; zoom <= 18; zoom += 3 {
		limit := 1<<uint(zoom) - 1
		for _, lat := range lats {
			for _, lon := range lons {
				tile := TileFromLatLon(lat, lon, zoom)
				if tile.X < 0 || tile.X > limit || tile.Y < 0 || tile.Y > limit {
					t.Errorf("TileFromLatLon(%v, %v, %d) = %d/%d out of [0,%d]",
						lat, lon, zoom, tile.X, tile.Y, limit)
				}
			}
		}
	}
}

func TestTileCenterRoundTrip(t *testing.T) {
	points := []GeoCoordinate{
		{38.9012, -77.2653},
		{51.5074, -0.1278},
		{-33.8688, 151.2093},
		{0.001, 0.001},
	}

	for _, p := range points {
		for _, zoom := range []int{5, 10, 15} {
			tile := TileFromLatLon(p.Latitude, p.Longitude, zoom)
			center := TileCenter(tile)

			// The center must project back into the same tile.
			back := TileFromLatLon(center.Latitude, center.Longitude, zoom)
			if back != tile {
				t.Errorf("TileCenter(%+v) = %+v projects to %+v", tile, center, back)
			}
		}
	}
}

func TestTileNorthWest(t *testing.T) {
	nw := TileNorthWest(TileCoordinate{X: 0, Y: 0, Zoom: 0})
	if nw.Longitude != -180 {
		t.Errorf("world tile north-west longitude = %v, want -180", nw.Longitude)
	}
	if math.Abs(nw.Latitude-85.0511) > 0.001 {
		t.Errorf("world tile north-west latitude = %v, want ~85.0511", nw.Latitude)
	}
}

func TestPixelRoundTrip(t *testing.T) {
	const tileSize = 256
	p := GeoCoordinate{Latitude: 48.8566, Longitude: 2.3522}

	px, py := LatLonToPixel(p.Latitude, p.Longitude, 12, tileSize)
	back := PixelToLatLon(px, py, 12, tileSize)

	if math.Abs(back.Latitude-p.Latitude) > 1e-6 || math.Abs(back.Longitude-p.Longitude) > 1e-6 {
		t.Errorf("pixel round trip = %+v, want %+v", back, p)
	}
}

func TestMetersPerPixel(t *testing.T) {
	// At the equator and zoom 0 a 256px tile spans the full circumference.
	got := MetersPerPixel(0, 0, 256)
	want := EarthCircumference / 256
	if math.Abs(got-want) > 1e-6 {
		t.Errorf("MetersPerPixel(0, 0, 256) = %v, want %v", got, want)
	}

	// Resolution halves with each zoom level.
	z10 := MetersPerPixel(45, 10, 256)
	z11 := MetersPerPixel(45, 11, 256)
	if math.Abs(z10/z11-2) > 1e-9 {
		t.Errorf("zoom 10/11 resolution ratio = %v, want 2", z10/z11)
	}
}

func TestHaversineDistance(t *testing.T) {
	tests := []struct {
		name                   string
		lat1, lon1, lat2, lon2 float64
		want                   float64
		tolerance              float64
	}{
		{"same point", 38.9, -77.26, 38.9, -77.26, 0, 0.001},
		{"paris to london", 48.8566, 2.3522, 51.5074, -0.1278, 343560, 1000},
		{"one degree longitude at equator", 0, 0, 0, 1, 111195, 200},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := HaversineDistance(tt.lat1, tt.lon1, tt.lat2, tt.lon2)
			if math.Abs(got-tt.want) > tt.tolerance {
				t.Errorf("HaversineDistance = %v, want %v ± %v", got, tt.want, tt.tolerance)
			}
		})
	}
}

func TestTileRange(t *testing.T) {
	bounds := GeoBounds{North: 38.92, South: 38.88, East: -77.24, West: -77.29}
	minTile, maxTile := TileRange(bounds, 15)

	if minTile.X > maxTile.X || minTile.Y > maxTile.Y {
		t.Fatalf("invalid range %+v..%+v", minTile, maxTile)
	}

	center := TileFromLatLon(38.9012, -77.2653, 15)
	if center.X < minTile.X || center.X > maxTile.X || center.Y < minTile.Y || center.Y > maxTile.Y {
		t.Errorf("center tile %+v outside range %+v..%+v", center, minTile, maxTile)
	}
}
