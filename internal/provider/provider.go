// Package provider maps tile coordinates to fetchable URLs across the
// supported third-party tile services.
package provider

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/geoclash/maptiles/pkg/geo"
)

// Provider identifies a tile service.
type Provider int

const (
	OpenStreetMap Provider = iota
	OpenStreetMapDE
	OpenStreetMapFR
	CartoDBPositron
	CartoDBDarkMatter
	CartoDBVoyager
	StamenToner
	StamenTerrain
	StamenWatercolor
	EsriWorldImagery
	EsriWorldStreetMap
	EsriWorldTopoMap
	OpenTopoMap
	Mapbox
	GoogleMaps
	MapTiler
	Custom
)

var providerNames = map[Provider]string{
	OpenStreetMap:      "osm",
	OpenStreetMapDE:    "osm-de",
	OpenStreetMapFR:    "osm-fr",
	CartoDBPositron:    "carto-positron",
	CartoDBDarkMatter:  "carto-darkmatter",
	CartoDBVoyager:     "carto-voyager",
	StamenToner:        "stamen-toner",
	StamenTerrain:      "stamen-terrain",
	StamenWatercolor:   "stamen-watercolor",
	EsriWorldImagery:   "esri-imagery",
	EsriWorldStreetMap: "esri-street",
	EsriWorldTopoMap:   "esri-topo",
	OpenTopoMap:        "opentopomap",
	Mapbox:             "mapbox",
	GoogleMaps:         "google",
	MapTiler:           "maptiler",
	Custom:             "custom",
}

func (p Provider) String() string {
	if name, ok := providerNames[p]; ok {
		return name
	}
	return "unknown"
}

// ParseProvider resolves a provider by its configuration name.
func ParseProvider(name string) (Provider, bool) {
	for p, n := range providerNames {
		if n == name {
			return p, true
		}
	}
	return OpenStreetMap, false
}

// Style is a rendering style requested by the caller. Each provider maps it
// to its own style identifier, falling back to the provider default when the
// style is not offered.
type Style int

const (
	StyleStreets Style = iota
	StyleSatellite
	StyleHybrid
	StyleDark
	StyleLight
	StyleTerrain
	StyleTopographic
	StyleWatercolor
)

var styleNames = map[Style]string{
	StyleStreets:     "streets",
	StyleSatellite:   "satellite",
	StyleHybrid:      "hybrid",
	StyleDark:        "dark",
	StyleLight:       "light",
	StyleTerrain:     "terrain",
	StyleTopographic: "topographic",
	StyleWatercolor:  "watercolor",
}

func (s Style) String() string {
	if name, ok := styleNames[s]; ok {
		return name
	}
	return "unknown"
}

// ParseStyle resolves a style by its configuration name.
func ParseStyle(name string) (Style, bool) {
	for s, n := range styleNames {
		if n == name {
			return s, true
		}
	}
	return StyleStreets, false
}

// Config is the active provider configuration. A zero value selects
// OpenStreetMap streets at 256px.
type Config struct {
	Provider          Provider
	Style             Style
	TileSize          int
	MapboxKey         string
	GoogleKey         string
	MapTilerKey       string
	CustomURLTemplate string
}

// mapboxStyles maps the generic style enum to Mapbox style IDs.
var mapboxStyles = map[Style]string{
	StyleStreets:   "streets-v12",
	StyleSatellite: "satellite-v9",
	StyleHybrid:    "satellite-streets-v12",
	StyleDark:      "dark-v11",
	StyleLight:     "light-v11",
	StyleTerrain:   "outdoors-v12",
}

const mapboxDefaultStyle = "streets-v12"

// maptilerStyles maps the generic style enum to MapTiler map IDs.
var maptilerStyles = map[Style]string{
	StyleStreets:     "streets-v2",
	StyleSatellite:   "satellite",
	StyleHybrid:      "hybrid",
	StyleDark:        "streets-v2-dark",
	StyleLight:       "streets-v2-light",
	StyleTerrain:     "outdoor-v2",
	StyleTopographic: "topo-v2",
}

const maptilerDefaultStyle = "streets-v2"

// googleLayers maps the generic style enum to Google Static Maps map types.
var googleLayers = map[Style]string{
	StyleStreets:   "roadmap",
	StyleSatellite: "satellite",
	StyleHybrid:    "hybrid",
	StyleTerrain:   "terrain",
}

const googleDefaultLayer = "roadmap"

// Subdomain returns the load-balancing subdomain for a tile. The choice is
// deterministic per coordinate so repeat lookups hit the same CDN edge.
func Subdomain(t geo.TileCoordinate) string {
	return string("abc"[(t.X+t.Y)%3])
}

// RequiresAPIKey reports whether the provider cannot be used without
// credentials.
func RequiresAPIKey(p Provider) bool {
	switch p {
	case Mapbox, GoogleMaps, MapTiler:
		return true
	}
	return false
}

// ResolveURL builds the fetch URL for a tile under the given configuration.
// It returns ok=false when the provider needs a credential that is missing,
// or when the Custom provider has no template. A false result is a
// configuration failure, not a network failure, and must not be retried.
func ResolveURL(cfg Config, t geo.TileCoordinate) (string, bool) {
	z, x, y := t.Zoom, t.X, t.Y
	s := Subdomain(t)

	switch cfg.Provider {
	case OpenStreetMap:
		return fmt.Sprintf("https://%s.tile.openstreetmap.org/%d/%d/%d.png", s, z, x, y), true
	case OpenStreetMapDE:
		return fmt.Sprintf("https://%s.tile.openstreetmap.de/%d/%d/%d.png", s, z, x, y), true
	case OpenStreetMapFR:
		return fmt.Sprintf("https://%s.tile.openstreetmap.fr/osmfr/%d/%d/%d.png", s, z, x, y), true
	case CartoDBPositron:
		return fmt.Sprintf("https://%s.basemaps.cartocdn.com/light_all/%d/%d/%d.png", s, z, x, y), true
	case CartoDBDarkMatter:
		return fmt.Sprintf("https://%s.basemaps.cartocdn.com/dark_all/%d/%d/%d.png", s, z, x, y), true
	case CartoDBVoyager:
		return fmt.Sprintf("https://%s.basemaps.cartocdn.com/rastertiles/voyager/%d/%d/%d.png", s, z, x, y), true
	case StamenToner:
		return fmt.Sprintf("https://stamen-tiles-%s.a.ssl.fastly.net/toner/%d/%d/%d.png", s, z, x, y), true
	case StamenTerrain:
		return fmt.Sprintf("https://stamen-tiles-%s.a.ssl.fastly.net/terrain/%d/%d/%d.jpg", s, z, x, y), true
	case StamenWatercolor:
		return fmt.Sprintf("https://stamen-tiles-%s.a.ssl.fastly.net/watercolor/%d/%d/%d.jpg", s, z, x, y), true
	case EsriWorldImagery:
		// Esri addresses tiles as z/y/x.
		return fmt.Sprintf("https://server.arcgisonline.com/ArcGIS/rest/services/World_Imagery/MapServer/tile/%d/%d/%d", z, y, x), true
	case EsriWorldStreetMap:
		return fmt.Sprintf("https://server.arcgisonline.com/ArcGIS/rest/services/World_Street_Map/MapServer/tile/%d/%d/%d", z, y, x), true
	case EsriWorldTopoMap:
		return fmt.Sprintf("https://server.arcgisonline.com/ArcGIS/rest/services/World_Topo_Map/MapServer/tile/%d/%d/%d", z, y, x), true
	case OpenTopoMap:
		return fmt.Sprintf("https://%s.tile.opentopomap.org/%d/%d/%d.png", s, z, x, y), true
	case Mapbox:
		if cfg.MapboxKey == "" {
			return "", false
		}
		style, ok := mapboxStyles[cfg.Style]
		if !ok {
			style = mapboxDefaultStyle
		}
		size := cfg.TileSize
		if size != 512 {
			size = 256
		}
		return fmt.Sprintf("https://api.mapbox.com/styles/v1/mapbox/%s/tiles/%d/%d/%d/%d@2x?access_token=%s",
			style, size, z, x, y, cfg.MapboxKey), true
	case GoogleMaps:
		if cfg.GoogleKey == "" {
			return "", false
		}
		layer, ok := googleLayers[cfg.Style]
		if !ok {
			layer = googleDefaultLayer
		}
		size := cfg.TileSize
		if size <= 0 {
			size = 256
		}
		// Google has no public slippy tile endpoint; the Static Maps API is
		// addressed by the tile's center instead.
		center := geo.TileCenter(t)
		return fmt.Sprintf("https://maps.googleapis.com/maps/api/staticmap?center=%.6f,%.6f&zoom=%d&size=%dx%d&maptype=%s&key=%s",
			center.Latitude, center.Longitude, z, size, size, layer, cfg.GoogleKey), true
	case MapTiler:
		if cfg.MapTilerKey == "" {
			return "", false
		}
		style, ok := maptilerStyles[cfg.Style]
		if !ok {
			style = maptilerDefaultStyle
		}
		return fmt.Sprintf("https://api.maptiler.com/maps/%s/%d/%d/%d.png?key=%s", style, z, x, y, cfg.MapTilerKey), true
	case Custom:
		if cfg.CustomURLTemplate == "" {
			return "", false
		}
		return fillTemplate(cfg.CustomURLTemplate, t), true
	}

	return "", false
}

// fillTemplate substitutes {x} {y} {z} {zoom} {s} tokens in a user supplied
// URL template.
func fillTemplate(tmpl string, t geo.TileCoordinate) string {
	r := strings.NewReplacer(
		"{x}", strconv.Itoa(t.X),
		"{y}", strconv.Itoa(t.Y),
		"{zoom}", strconv.Itoa(t.Zoom),
		"{z}", strconv.Itoa(t.Zoom),
		"{s}", Subdomain(t),
	)
	return r.Replace(tmpl)
}
