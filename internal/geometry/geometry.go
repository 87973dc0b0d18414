// Package geometry wraps the polygon and point operations needed by the
// scenario overlay and merge engine. Geometries are held in memory as orb
// values; set operations (intersection, union, buffering, containment) are
// delegated to PostGIS, which is the single geometry engine for the whole
// system.
package geometry

import (
	"context"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/planar"
)

// SRID is the working projection for all stored geometries (WGS 84).
const SRID = 4326

// Ops is the set of geometry operations the core consumes. All operations
// are pure with respect to their inputs: implementations must not mutate
// the given geometries.
type Ops interface {
	// Intersects reports whether a and b share any point.
	Intersects(ctx context.Context, a, b orb.Geometry) (bool, error)

	// Within reports whether a lies fully inside b.
	Within(ctx context.Context, a, b orb.Geometry) (bool, error)

	// Intersection returns the shared region of a and b.
	Intersection(ctx context.Context, a, b orb.Geometry) (orb.Geometry, error)

	// UnionAll merges the given geometries into one.
	UnionAll(ctx context.Context, gs []orb.Geometry) (orb.Geometry, error)

	// Centroid returns the geometric centre of g.
	Centroid(ctx context.Context, g orb.Geometry) (orb.Point, error)

	// Buffer expands g by the given distance in meters. Implementations
	// must perform the expansion in a geography space; buffering in the
	// working projection would interpret meters as degrees.
	Buffer(ctx context.Context, g orb.Geometry, meters float64) (orb.Geometry, error)
}

// GeometryType returns the GeoJSON type name of g ("Polygon",
// "MultiPolygon", ...), or "" for a nil geometry.
func GeometryType(g orb.Geometry) string {
	if g == nil {
		return ""
	}
	return g.GeoJSONType()
}

// IsPolygonal reports whether g is a Polygon or MultiPolygon.
func IsPolygonal(g orb.Geometry) bool {
	switch g.(type) {
	case orb.Polygon, orb.MultiPolygon:
		return true
	default:
		return false
	}
}

// IsEmpty reports whether g contains no points, or carries polygonal rings
// with zero area.
func IsEmpty(g orb.Geometry) bool {
	switch v := g.(type) {
	case nil:
		return true
	case orb.Polygon:
		return len(v) == 0 || planar.Area(v) == 0
	case orb.MultiPolygon:
		return len(v) == 0 || planar.Area(v) == 0
	case orb.LineString:
		return len(v) == 0
	case orb.MultiLineString:
		return len(v) == 0
	case orb.MultiPoint:
		return len(v) == 0
	case orb.Collection:
		for _, m := range v {
			if !IsEmpty(m) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// ToGeoJSON serializes g as a GeoJSON geometry for the presentation layer.
func ToGeoJSON(g orb.Geometry) ([]byte, error) {
	return geojson.NewGeometry(g).MarshalJSON()
}

// FromGeoJSON parses a GeoJSON geometry.
func FromGeoJSON(data []byte) (orb.Geometry, error) {
	g, err := geojson.UnmarshalGeometry(data)
	if err != nil {
		return nil, err
	}
	return g.Geometry(), nil
}
