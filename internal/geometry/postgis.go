package geometry

import (
	"context"
	"fmt"

	"github.com/lib/pq"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkb"

	"github.com/onnwee/urbanscape/internal/db"
)

// SQL executed by PostGISOps. Geometries travel as WKB in both directions.
// bufferSQL casts through geography before the distance expansion and back
// to geometry afterward; without the casts PostGIS would treat meters as
// degrees in SRID 4326.
const (
	intersectsSQL   = `SELECT ST_Intersects(ST_GeomFromWKB($1, 4326), ST_GeomFromWKB($2, 4326))`
	withinSQL       = `SELECT ST_Within(ST_GeomFromWKB($1, 4326), ST_GeomFromWKB($2, 4326))`
	intersectionSQL = `SELECT ST_AsBinary(ST_Intersection(ST_GeomFromWKB($1, 4326), ST_GeomFromWKB($2, 4326)))`
	unionSQL        = `SELECT ST_AsBinary(ST_Union(geom)) FROM (SELECT ST_GeomFromWKB(unnest($1::bytea[]), 4326) AS geom) AS gs`
	centroidSQL     = `SELECT ST_AsBinary(ST_Centroid(ST_GeomFromWKB($1, 4326)))`
	bufferSQL       = `SELECT ST_AsBinary(ST_Buffer(ST_GeomFromWKB($1, 4326)::geography, $2)::geometry)`
)

// PostGISOps implements Ops by delegating every operation to PostGIS over a
// single connection pool or transaction.
type PostGISOps struct {
	q db.Querier
}

// NewPostGISOps creates a PostGIS-backed Ops over the given querier.
func NewPostGISOps(q db.Querier) *PostGISOps {
	return &PostGISOps{q: q}
}

// Intersects reports whether a and b share any point.
func (o *PostGISOps) Intersects(ctx context.Context, a, b orb.Geometry) (bool, error) {
	aw, bw, err := marshalPair(a, b)
	if err != nil {
		return false, err
	}
	var out bool
	if err := o.q.QueryRowContext(ctx, intersectsSQL, aw, bw).Scan(&out); err != nil {
		return false, fmt.Errorf("ST_Intersects: %w", err)
	}
	return out, nil
}

// Within reports whether a lies fully inside b.
func (o *PostGISOps) Within(ctx context.Context, a, b orb.Geometry) (bool, error) {
	aw, bw, err := marshalPair(a, b)
	if err != nil {
		return false, err
	}
	var out bool
	if err := o.q.QueryRowContext(ctx, withinSQL, aw, bw).Scan(&out); err != nil {
		return false, fmt.Errorf("ST_Within: %w", err)
	}
	return out, nil
}

// Intersection returns the shared region of a and b.
func (o *PostGISOps) Intersection(ctx context.Context, a, b orb.Geometry) (orb.Geometry, error) {
	aw, bw, err := marshalPair(a, b)
	if err != nil {
		return nil, err
	}
	return o.scanGeometry(ctx, intersectionSQL, aw, bw)
}

// UnionAll merges the given geometries into one.
func (o *PostGISOps) UnionAll(ctx context.Context, gs []orb.Geometry) (orb.Geometry, error) {
	if len(gs) == 0 {
		return nil, nil
	}
	blobs := make([][]byte, len(gs))
	for i, g := range gs {
		w, err := wkb.Marshal(g)
		if err != nil {
			return nil, fmt.Errorf("encoding geometry %d: %w", i, err)
		}
		blobs[i] = w
	}
	return o.scanGeometry(ctx, unionSQL, pq.ByteaArray(blobs))
}

// Centroid returns the geometric centre of g.
func (o *PostGISOps) Centroid(ctx context.Context, g orb.Geometry) (orb.Point, error) {
	w, err := wkb.Marshal(g)
	if err != nil {
		return orb.Point{}, fmt.Errorf("encoding geometry: %w", err)
	}
	out, err := o.scanGeometry(ctx, centroidSQL, w)
	if err != nil {
		return orb.Point{}, err
	}
	p, ok := out.(orb.Point)
	if !ok {
		return orb.Point{}, fmt.Errorf("centroid returned %s, want Point", GeometryType(out))
	}
	return p, nil
}

// Buffer expands g by meters, computed over geography for metric accuracy.
func (o *PostGISOps) Buffer(ctx context.Context, g orb.Geometry, meters float64) (orb.Geometry, error) {
	w, err := wkb.Marshal(g)
	if err != nil {
		return nil, fmt.Errorf("encoding geometry: %w", err)
	}
	return o.scanGeometry(ctx, bufferSQL, w, meters)
}

func (o *PostGISOps) scanGeometry(ctx context.Context, query string, args ...any) (orb.Geometry, error) {
	var raw []byte
	if err := o.q.QueryRowContext(ctx, query, args...).Scan(&raw); err != nil {
		return nil, fmt.Errorf("geometry query: %w", err)
	}
	g, err := wkb.Unmarshal(raw)
	if err != nil {
		return nil, fmt.Errorf("decoding geometry result: %w", err)
	}
	return g, nil
}

func marshalPair(a, b orb.Geometry) ([]byte, []byte, error) {
	aw, err := wkb.Marshal(a)
	if err != nil {
		return nil, nil, fmt.Errorf("encoding first geometry: %w", err)
	}
	bw, err := wkb.Marshal(b)
	if err != nil {
		return nil, nil, fmt.Errorf("encoding second geometry: %w", err)
	}
	return aw, bw, nil
}
