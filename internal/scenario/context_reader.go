package scenario

import (
	"context"
	"fmt"

	"github.com/lib/pq"

	"github.com/onnwee/urbanscape/internal/db"
	"github.com/onnwee/urbanscape/internal/hierarchy"
)

// TerritoryHierarchy resolves direct adjacency in the territory tree so the
// context closure can be computed as an iterative fixed point in process,
// the same way function-dictionary filters are expanded.
type TerritoryHierarchy interface {
	// ChildTerritories returns the direct children of the given territories.
	ChildTerritories(ctx context.Context, ids []int64) ([]int64, error)

	// ParentTerritories returns the direct parents of the given territories.
	ParentTerritories(ctx context.Context, ids []int64) ([]int64, error)
}

// ExpandRelatedTerritories returns the context territories plus all their
// descendants and ancestors, sorted ascending.
func ExpandRelatedTerritories(ctx context.Context, h TerritoryHierarchy, ids []int64) ([]int64, error) {
	down, err := hierarchy.Expand(ids, func(batch []int64) ([]int64, error) {
		return h.ChildTerritories(ctx, batch)
	})
	if err != nil {
		return nil, fmt.Errorf("expanding context descendants: %w", err)
	}
	up, err := hierarchy.Expand(ids, func(batch []int64) ([]int64, error) {
		return h.ParentTerritories(ctx, batch)
	})
	if err != nil {
		return nil, fmt.Errorf("expanding context ancestors: %w", err)
	}
	return hierarchy.Union(down, up), nil
}

// PostgresTerritoryHierarchy reads territory adjacency from
// territories_data one level at a time.
type PostgresTerritoryHierarchy struct {
	q db.Querier
}

// NewPostgresTerritoryHierarchy creates a database-backed hierarchy.
func NewPostgresTerritoryHierarchy(q db.Querier) *PostgresTerritoryHierarchy {
	return &PostgresTerritoryHierarchy{q: q}
}

// ChildTerritories returns the direct children of the given territories.
func (h *PostgresTerritoryHierarchy) ChildTerritories(ctx context.Context, ids []int64) ([]int64, error) {
	return queryIDColumn(ctx, h.q,
		`SELECT territory_id FROM territories_data
		 WHERE parent_id = ANY($1) ORDER BY territory_id`, ids)
}

// ParentTerritories returns the direct parents of the given territories.
func (h *PostgresTerritoryHierarchy) ParentTerritories(ctx context.Context, ids []int64) ([]int64, error) {
	return queryIDColumn(ctx, h.q,
		`SELECT DISTINCT parent_id FROM territories_data
		 WHERE territory_id = ANY($1) AND parent_id IS NOT NULL ORDER BY parent_id`, ids)
}

// InMemoryTerritoryHierarchy is a map-backed TerritoryHierarchy for tests.
type InMemoryTerritoryHierarchy struct {
	Children map[int64][]int64
	Parents  map[int64][]int64
}

// ChildTerritories returns the direct children of the given territories.
func (h *InMemoryTerritoryHierarchy) ChildTerritories(_ context.Context, ids []int64) ([]int64, error) {
	return expandMap(h.Children, ids), nil
}

// ParentTerritories returns the direct parents of the given territories.
func (h *InMemoryTerritoryHierarchy) ParentTerritories(_ context.Context, ids []int64) ([]int64, error) {
	return expandMap(h.Parents, ids), nil
}

// contextScopeSQL builds the read scope for context listings: public
// geometries inside a related territory ($2, the precomputed closure of the
// context territories) that touch the union of the context polygons ($1).
const contextScopeSQL = `
	WITH mask AS (
	    SELECT ST_Union(geometry) AS geom FROM territories_data WHERE territory_id = ANY($1)
	), scoped AS (
	    SELECT og.object_geometry_id
	      FROM object_geometries_data og
	     WHERE og.territory_id = ANY($2)
	       AND ST_Intersects(og.geometry, (SELECT geom FROM mask))
	)`

// contextScopeArgs expands the related closure of contextIDs and returns
// the positional arguments contextScopeSQL expects.
func (r *Reader) contextScopeArgs(ctx context.Context, contextIDs []int64) ([]any, error) {
	related, err := ExpandRelatedTerritories(ctx, r.terr, contextIDs)
	if err != nil {
		return nil, err
	}
	return []any{pq.Array(contextIDs), pq.Array(related)}, nil
}

// ListContextGeometries returns the public geometries surrounding the
// project, clipped to the unified context polygon. Context reads never see
// scenario overrides.
func (r *Reader) ListContextGeometries(ctx context.Context, contextIDs []int64, f GeometryFilters) ([]GeometryItem, error) {
	args, err := r.contextScopeArgs(ctx, contextIDs)
	if err != nil {
		return nil, err
	}

	query := contextScopeSQL + `
		SELECT DISTINCT og.object_geometry_id, og.territory_id, t.name,
		       ST_AsGeoJSON(ST_Intersection(og.geometry, (SELECT geom FROM mask)))::jsonb,
		       ST_AsGeoJSON(ST_Centroid(ST_Intersection(og.geometry, (SELECT geom FROM mask))))::jsonb,
		       og.address, og.osm_id, og.created_at, og.updated_at
		  FROM object_geometries_data og
		  JOIN urban_objects_data uo ON uo.object_geometry_id = og.object_geometry_id
		  JOIN territories_data t ON t.territory_id = og.territory_id
		 WHERE og.object_geometry_id IN (SELECT object_geometry_id FROM scoped)`
	query, args = appendFilter(query, args, "uo.physical_object_id", f.PhysicalObjectID)
	query, args = appendFilter(query, args, "uo.service_id", f.ServiceID)

	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing context geometries: %w", err)
	}
	defer rows.Close()

	var out []GeometryItem
	for rows.Next() {
		var g GeometryItem
		if err := rows.Scan(&g.ID, &g.TerritoryID, &g.TerritoryName,
			&g.Geometry, &g.CentrePoint,
			&g.Address, &g.OSMID, &g.CreatedAt, &g.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning context geometry: %w", err)
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

// ListContextPhysicalObjects returns the public physical objects inside
// the context scope.
func (r *Reader) ListContextPhysicalObjects(ctx context.Context, contextIDs []int64, f PhysicalObjectFilters) ([]PhysicalObjectItem, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	functionIDs, err := r.expandPhysicalFunction(ctx, f.FunctionID)
	if err != nil {
		return nil, err
	}
	args, err := r.contextScopeArgs(ctx, contextIDs)
	if err != nil {
		return nil, err
	}

	query := contextScopeSQL + `
		SELECT DISTINCT po.physical_object_id, pot.physical_object_type_id, pot.name,
		       pof.physical_object_function_id, pof.name,
		       po.name, po.properties, po.created_at, po.updated_at
		  FROM urban_objects_data uo
		  JOIN physical_objects_data po ON po.physical_object_id = uo.physical_object_id
		  JOIN physical_object_types_dict pot ON pot.physical_object_type_id = po.physical_object_type_id
		  LEFT JOIN physical_object_functions_dict pof
		    ON pof.physical_object_function_id = pot.physical_object_function_id
		 WHERE uo.object_geometry_id IN (SELECT object_geometry_id FROM scoped)`
	query, args = appendFilter(query, args, "po.physical_object_type_id", f.TypeID)
	query, args = appendSetFilter(query, args, "pot.physical_object_function_id", functionIDs)

	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing context physical objects: %w", err)
	}
	defer rows.Close()

	var out []PhysicalObjectItem
	for rows.Next() {
		var p PhysicalObjectItem
		if err := rows.Scan(&p.ID, &p.TypeID, &p.TypeName,
			&p.FunctionID, &p.FunctionName,
			&p.Name, &p.Properties, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning context physical object: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// ListContextServices returns the public services inside the context
// scope.
func (r *Reader) ListContextServices(ctx context.Context, contextIDs []int64, f ServiceFilters) ([]ServiceItem, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	functionIDs, err := r.expandUrbanFunction(ctx, f.UrbanFunctionID)
	if err != nil {
		return nil, err
	}
	args, err := r.contextScopeArgs(ctx, contextIDs)
	if err != nil {
		return nil, err
	}

	query := contextScopeSQL + `
		SELECT DISTINCT s.service_id, st.service_type_id, st.name, st.urban_function_id,
		       s.name, s.capacity, s.is_capacity_real, s.properties, s.created_at, s.updated_at
		  FROM urban_objects_data uo
		  JOIN services_data s ON s.service_id = uo.service_id
		  JOIN service_types_dict st ON st.service_type_id = s.service_type_id
		 WHERE uo.object_geometry_id IN (SELECT object_geometry_id FROM scoped)`
	query, args = appendFilter(query, args, "s.service_type_id", f.TypeID)
	query, args = appendSetFilter(query, args, "st.urban_function_id", functionIDs)

	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing context services: %w", err)
	}
	defer rows.Close()

	var out []ServiceItem
	for rows.Next() {
		var s ServiceItem
		if err := rows.Scan(&s.ID, &s.TypeID, &s.TypeName, &s.UrbanFunctionID,
			&s.Name, &s.Capacity, &s.IsCapacityReal, &s.Properties, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning context service: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
