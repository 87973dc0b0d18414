package scenario

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"

	"github.com/onnwee/urbanscape/internal/db"
	"github.com/onnwee/urbanscape/internal/overlay"
)

// regionalJoin is one join row of a regional scenario selected for
// promotion into a new project scenario.
type regionalJoin struct {
	publicUrbanObjectID sql.NullInt64
	geometryID          sql.NullInt64
	physicalObjectID    sql.NullInt64
	serviceID           sql.NullInt64
	publicGeometryID    sql.NullInt64
	publicPhysicalID    sql.NullInt64
	publicServiceID     sql.NullInt64
}

// PromoteFromRegion copies the regional scenario's urban objects falling
// inside the project polygon into newScenarioID. Scenario-local rows are
// deep-copied through fresh ids; geometry pointers into the public dataset
// become clipped scenario-local shadows; physical-object and service
// pointers are carried as-is. Full-inheritance markers are copied by their
// public urban object id.
func (e *Engine) PromoteFromRegion(ctx context.Context, q db.Querier, regionalScenarioID, projectID, newScenarioID int64) error {
	mask := fmt.Sprintf(projectMaskSQL, projectID)
	query := fmt.Sprintf(
		`SELECT puod.public_urban_object_id,
		        puod.object_geometry_id, puod.physical_object_id, puod.service_id,
		        puod.public_object_geometry_id, puod.public_physical_object_id, puod.public_service_id
		   FROM projects_urban_objects_data puod
		   LEFT JOIN projects_object_geometries_data pog
		     ON pog.object_geometry_id = puod.object_geometry_id
		   LEFT JOIN object_geometries_data og
		     ON og.object_geometry_id = puod.public_object_geometry_id
		  WHERE puod.scenario_id = $1
		    AND (ST_Intersects(pog.geometry, %[1]s) OR ST_Intersects(og.geometry, %[1]s))`, mask)

	rows, err := q.QueryContext(ctx, query, regionalScenarioID)
	if err != nil {
		return fmt.Errorf("selecting regional urban objects: %w", err)
	}
	defer rows.Close()

	var joins []regionalJoin
	for rows.Next() {
		var j regionalJoin
		if err := rows.Scan(&j.publicUrbanObjectID,
			&j.geometryID, &j.physicalObjectID, &j.serviceID,
			&j.publicGeometryID, &j.publicPhysicalID, &j.publicServiceID); err != nil {
			return fmt.Errorf("scanning regional urban object: %w", err)
		}
		joins = append(joins, j)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("reading regional urban objects: %w", err)
	}
	if len(joins) == 0 {
		return nil
	}

	geomIDs := collectIDs(joins, func(j regionalJoin) sql.NullInt64 { return j.geometryID })
	publicGeomIDs := collectIDs(joins, func(j regionalJoin) sql.NullInt64 { return j.publicGeometryID })
	physIDs := collectIDs(joins, func(j regionalJoin) sql.NullInt64 { return j.physicalObjectID })
	svcIDs := collectIDs(joins, func(j regionalJoin) sql.NullInt64 { return j.serviceID })

	geomMap, err := e.copyClippedGeometries(ctx, q, projectID, geomIDs)
	if err != nil {
		return err
	}
	publicGeomMap, err := e.copyPublicGeometries(ctx, q, projectID, publicGeomIDs)
	if err != nil {
		return err
	}
	physMap, err := e.copyEntities(ctx, q, overlay.PhysicalObjects, physIDs)
	if err != nil {
		return err
	}
	svcMap, err := e.copyEntities(ctx, q, overlay.Services, svcIDs)
	if err != nil {
		return err
	}

	return e.insertPromotedJoins(ctx, q, newScenarioID, joins, geomMap, publicGeomMap, physMap, svcMap)
}

// copyClippedGeometries deep-copies scenario-local geometry rows, clipping
// each against the project polygon, and returns the old to new id mapping.
func (e *Engine) copyClippedGeometries(ctx context.Context, q db.Querier, projectID int64, ids []int64) (map[int64]int64, error) {
	if len(ids) == 0 {
		return map[int64]int64{}, nil
	}
	mask := fmt.Sprintf(projectMaskSQL, projectID)
	query := fmt.Sprintf(
		`INSERT INTO projects_object_geometries_data
		        (public_object_geometry_id, territory_id, geometry, centre_point, address, osm_id)
		 SELECT public_object_geometry_id, territory_id,
		        ST_Intersection(geometry, %[1]s),
		        ST_Centroid(ST_Intersection(geometry, %[1]s)),
		        address, osm_id
		   FROM projects_object_geometries_data
		  WHERE object_geometry_id = $1
		 RETURNING object_geometry_id`, mask)

	out := make(map[int64]int64, len(ids))
	for _, id := range ids {
		var newID int64
		if err := q.QueryRowContext(ctx, query, id).Scan(&newID); err != nil {
			return nil, fmt.Errorf("copying scenario geometry %d: %w", id, err)
		}
		out[id] = newID
	}
	return out, nil
}

// insertPromotedJoins writes the copied join rows for the new scenario.
// Marker rows keep their public urban object pointer; detail rows remap
// each slot through the copy mappings.
func (e *Engine) insertPromotedJoins(ctx context.Context, q db.Querier, newScenarioID int64, joins []regionalJoin,
	geomMap, publicGeomMap, physMap, svcMap map[int64]int64) error {

	var values []string
	args := []any{newScenarioID}
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	for _, j := range joins {
		if j.publicUrbanObjectID.Valid {
			values = append(values, fmt.Sprintf(
				"($1, %s, NULL, NULL, NULL, NULL, NULL)", arg(j.publicUrbanObjectID.Int64)))
			continue
		}

		var geomArg string
		switch {
		case j.publicGeometryID.Valid:
			geomArg = arg(publicGeomMap[j.publicGeometryID.Int64])
		case j.geometryID.Valid:
			geomArg = arg(geomMap[j.geometryID.Int64])
		default:
			geomArg = "NULL"
		}
		physArg := "NULL"
		if j.physicalObjectID.Valid {
			physArg = arg(physMap[j.physicalObjectID.Int64])
		}
		svcArg := "NULL"
		if j.serviceID.Valid {
			svcArg = arg(svcMap[j.serviceID.Int64])
		}
		pubPhysArg := "NULL"
		if j.publicPhysicalID.Valid {
			pubPhysArg = arg(j.publicPhysicalID.Int64)
		}
		pubSvcArg := "NULL"
		if j.publicServiceID.Valid {
			pubSvcArg = arg(j.publicServiceID.Int64)
		}
		values = append(values, fmt.Sprintf("($1, NULL, %s, %s, %s, %s, %s)",
			geomArg, physArg, svcArg, pubPhysArg, pubSvcArg))
	}

	query := `INSERT INTO projects_urban_objects_data
	       (scenario_id, public_urban_object_id, object_geometry_id, physical_object_id, service_id,
	        public_physical_object_id, public_service_id) VALUES ` + strings.Join(values, ", ")
	if _, err := q.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("inserting promoted join rows: %w", err)
	}
	return nil
}

// collectIDs gathers the distinct non-null values of one slot across the
// selected join rows, in ascending order.
func collectIDs(joins []regionalJoin, get func(regionalJoin) sql.NullInt64) []int64 {
	seen := make(map[int64]struct{})
	var out []int64
	for _, j := range joins {
		v := get(j)
		if !v.Valid {
			continue
		}
		if _, dup := seen[v.Int64]; dup {
			continue
		}
		seen[v.Int64] = struct{}{}
		out = append(out, v.Int64)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
