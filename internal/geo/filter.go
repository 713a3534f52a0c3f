// Package geo answers geofence and distance questions about listings.
package geo

import (
	stderrors "errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/planar"

	"sjsage522/flatworker/logger"
)

// Filter holds the exclusion polygons. It is immutable after loading and safe
// for concurrent use.
type Filter struct {
	polygons []orb.Polygon
}

// NewFilter creates a filter from already loaded polygons
func NewFilter(polygons ...orb.Polygon) *Filter {
	return &Filter{polygons: polygons}
}

// LoadFilter reads exclusion polygons from a GeoJSON feature collection.
// A missing file yields a filter that excludes nothing.
func LoadFilter(path string) (*Filter, error) {
	log := logger.ForGeo()

	data, err := os.ReadFile(path)
	if stderrors.Is(err, fs.ErrNotExist) {
		log.Info().Str("path", path).Msg("Exclusion regions file not found, continuing without exclusions")
		return NewFilter(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read exclusion regions: %w", err)
	}

	filter, err := ParseFilter(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	log.Info().Str("path", path).Int("regions", filter.Len()).Msg("Loaded exclusion regions")
	return filter, nil
}

// ParseFilter builds a filter from GeoJSON feature collection bytes. Polygon
// and MultiPolygon geometries become exclusion polygons; other geometry types
// are ignored.
func ParseFilter(data []byte) (*Filter, error) {
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, fmt.Errorf("decode feature collection: %w", err)
	}

	var polygons []orb.Polygon
	for i, feature := range fc.Features {
		switch g := feature.Geometry.(type) {
		case orb.Polygon:
			polygons = append(polygons, g)
		case orb.MultiPolygon:
			polygons = append(polygons, g...)
		default:
			logger.ForGeo().Warn().Int("feature", i).Msgf("Ignoring %T geometry", feature.Geometry)
		}
	}

	return NewFilter(polygons...), nil
}

// Len returns the number of exclusion polygons
func (f *Filter) Len() int {
	return len(f.polygons)
}

// IsExcluded reports whether (lat, lon) lies in any exclusion polygon. Points
// on a polygon's boundary count as inside.
func (f *Filter) IsExcluded(lat, lon float64) bool {
	point := orb.Point{lon, lat}
	for _, polygon := range f.polygons {
		if planar.PolygonContains(polygon, point) {
			return true
		}
	}
	return false
}

// Distance returns the great-circle distance in meters between two points
func Distance(lat1, lon1, lat2, lon2 float64) float64 {
	return geo.DistanceHaversine(orb.Point{lon1, lat1}, orb.Point{lon2, lat2})
}
