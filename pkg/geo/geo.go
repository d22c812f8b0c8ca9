// Package geo implements Web Mercator slippy-map math: conversions between
// geographic coordinates, world pixel space and tile addresses at a given
// zoom level. All functions are pure and allocation free.
package geo

import "math"

const (
	// EarthRadius is the mean earth radius in meters.
	EarthRadius = 6371000.0
	// EarthCircumference is the equatorial circumference in meters.
	EarthCircumference = 40075016.686
	// MaxLatitude is the Web Mercator projection limit. Latitudes beyond it
	// are clamped before projecting to avoid the tan singularity at the poles.
	MaxLatitude = 85.05113
)

// TileCoordinate addresses a single slippy-map tile. Valid coordinates
// satisfy 0 <= X,Y < 2^Zoom.
type TileCoordinate struct {
	X    int
	Y    int
	Zoom int
}

// GeoCoordinate is a point in degrees, latitude in [-90,90] and
// longitude in [-180,180].
type GeoCoordinate struct {
	Latitude  float64
	Longitude float64
}

// GeoBounds is a geographic rectangle. North >= South is the caller's
// responsibility and is not enforced.
type GeoBounds struct {
	North float64
	South float64
	East  float64
	West  float64
}

func radians(deg float64) float64 { return deg * math.Pi / 180 }

func degrees(rad float64) float64 { return rad * 180 / math.Pi }

// ClampLatitude limits a latitude to the Web Mercator valid range.
func ClampLatitude(lat float64) float64 {
	if lat > MaxLatitude {
		return MaxLatitude
	}
	if lat < -MaxLatitude {
		return -MaxLatitude
	}
	return lat
}

// TileFromLatLon converts geographic coordinates to the tile containing them.
// The result is clamped into [0, 2^zoom-1] on both axes.
func TileFromLatLon(lat, lon float64, zoom int) TileCoordinate {
	lat = ClampLatitude(lat)
	n := math.Pow(2, float64(zoom))
	latRad := radians(lat)

	x := int(math.Floor((lon + 180.0) / 360.0 * n))
	y := int(math.Floor((1.0 - math.Asinh(math.Tan(latRad))/math.Pi) / 2.0 * n))

	maxTile := int(n) - 1
	x = max(0, min(x, maxTile))
	y = max(0, min(y, maxTile))

	return TileCoordinate{X: x, Y: y, Zoom: zoom}
}

// TileNorthWest returns the geographic coordinate of the tile's
// north-west corner.
func TileNorthWest(t TileCoordinate) GeoCoordinate {
	n := math.Pow(2, float64(t.Zoom))
	lon := float64(t.X)/n*360.0 - 180.0
	latRad := math.Atan(math.Sinh(math.Pi * (1 - 2*float64(t.Y)/n)))
	return GeoCoordinate{Latitude: degrees(latRad), Longitude: lon}
}

// TileCenter returns the geographic coordinate of the tile's center.
func TileCenter(t TileCoordinate) GeoCoordinate {
	n := math.Pow(2, float64(t.Zoom))
	lon := (float64(t.X)+0.5)/n*360.0 - 180.0
	latRad := math.Atan(math.Sinh(math.Pi * (1 - 2*(float64(t.Y)+0.5)/n)))
	return GeoCoordinate{Latitude: degrees(latRad), Longitude: lon}
}

// LatLonToPixel converts geographic coordinates to world pixel coordinates
// at the given zoom level and tile size.
func LatLonToPixel(lat, lon float64, zoom, tileSize int) (float64, float64) {
	lat = ClampLatitude(lat)
	n := math.Pow(2, float64(zoom))
	latRad := radians(lat)

	px := float64(tileSize) * n * (lon + 180.0) / 360.0
	py := float64(tileSize) * n * (1.0 - math.Asinh(math.Tan(latRad))/math.Pi) / 2.0
	return px, py
}

// PixelToLatLon is the inverse of LatLonToPixel.
func PixelToLatLon(px, py float64, zoom, tileSize int) GeoCoordinate {
	n := math.Pow(2, float64(zoom))
	world := float64(tileSize) * n

	lon := px/world*360.0 - 180.0
	latRad := math.Atan(math.Sinh(math.Pi * (1 - 2*py/world)))
	return GeoCoordinate{Latitude: degrees(latRad), Longitude: lon}
}

// MetersPerPixel returns the ground resolution at a latitude and zoom level.
func MetersPerPixel(lat float64, zoom, tileSize int) float64 {
	return EarthCircumference * math.Cos(radians(lat)) / (float64(tileSize) * math.Pow(2, float64(zoom)))
}

// HaversineDistance returns the great-circle distance in meters between
// two geographic points.
func HaversineDistance(lat1, lon1, lat2, lon2 float64) float64 {
	dLat := radians(lat2 - lat1)
	dLon := radians(lon2 - lon1)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(radians(lat1))*math.Cos(radians(lat2))*
			math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return EarthRadius * c
}

// TileRange returns the tile rectangle covering bounds at the given zoom.
// The second tile is inclusive on both axes.
func TileRange(b GeoBounds, zoom int) (TileCoordinate, TileCoordinate) {
	minTile := TileFromLatLon(b.North, b.West, zoom)
	maxTile := TileFromLatLon(b.South, b.East, zoom)
	return minTile, maxTile
}
