package scenario

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/lib/pq"

	"github.com/onnwee/urbanscape/internal/db"
)

// Bootstrap seeds a fresh scenario with clipped copies of the public
// geometries straddling the project boundary. A geometry qualifies when it
// intersects the project polygon without lying fully inside it, the overlap
// covers at least the configured fraction of its own area, and none of its
// physical objects is a building. Qualifying geometries are clipped to the
// boundary and inserted as scenario-local shadows; the returned map goes
// from public geometry id to the new local id.
func (e *Engine) Bootstrap(ctx context.Context, q db.Querier, projectID int64) (map[int64]int64, error) {
	started := time.Now()

	mask := fmt.Sprintf(projectMaskSQL, projectID)
	query := fmt.Sprintf(
		`WITH boundary AS (
		    SELECT DISTINCT og.object_geometry_id
		      FROM object_geometries_data og
		      JOIN urban_objects_data uo ON uo.object_geometry_id = og.object_geometry_id
		      JOIN physical_objects_data po ON po.physical_object_id = uo.physical_object_id
		      JOIN physical_object_types_dict pot ON pot.physical_object_type_id = po.physical_object_type_id
		     WHERE ST_Intersects(og.geometry, %[1]s)
		       AND NOT ST_Within(og.geometry, %[1]s)
		       AND ST_Area(ST_Intersection(og.geometry, %[1]s)) >= $1 * ST_Area(og.geometry)
		       AND pot.name NOT ILIKE '%%' || $2 || '%%'
		)
		INSERT INTO projects_object_geometries_data
		       (public_object_geometry_id, territory_id, geometry, centre_point, address, osm_id)
		SELECT og.object_geometry_id, og.territory_id,
		       ST_Intersection(og.geometry, %[1]s),
		       ST_Centroid(ST_Intersection(og.geometry, %[1]s)),
		       og.address, og.osm_id
		  FROM object_geometries_data og
		 WHERE og.object_geometry_id IN (SELECT object_geometry_id FROM boundary)
		RETURNING public_object_geometry_id, object_geometry_id`, mask)

	rows, err := q.QueryContext(ctx, query, e.areaFraction, e.excludeName)
	if err != nil {
		return nil, fmt.Errorf("clipping boundary geometries: %w", err)
	}
	defer rows.Close()

	out := make(map[int64]int64)
	for rows.Next() {
		var publicID, localID int64
		if err := rows.Scan(&publicID, &localID); err != nil {
			return nil, fmt.Errorf("scanning clipped geometry ids: %w", err)
		}
		out[publicID] = localID
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading clipped geometry ids: %w", err)
	}

	e.metrics.AddBootstrapCopies(len(out))
	e.metrics.ObserveBootstrapDuration(time.Since(started).Seconds())
	e.logger.Debug("bootstrapped boundary geometries",
		slog.Int64("project_id", projectID), slog.Int("copied", len(out)))
	return out, nil
}

// InsertUrbanObjects mirrors the public urban objects attached to the
// clipped geometries into the scenario join table: one full-inheritance
// marker per public urban object, plus one row binding the new local
// geometry with the physical object and service kept as public pointers.
func (e *Engine) InsertUrbanObjects(ctx context.Context, q db.Querier, scenarioID int64, idMap map[int64]int64) error {
	if len(idMap) == 0 {
		return nil
	}
	publicIDs := make([]int64, 0, len(idMap))
	localIDs := make([]int64, 0, len(idMap))
	for pub, local := range idMap {
		publicIDs = append(publicIDs, pub)
		localIDs = append(localIDs, local)
	}

	// Shadow geometry rows carry no scenario id, so the join on the
	// public pointer must also pin the local side to this scenario's
	// fresh copies.
	const markers = `
		INSERT INTO projects_urban_objects_data (scenario_id, public_urban_object_id)
		SELECT $1, uo.urban_object_id
		  FROM urban_objects_data uo
		  JOIN projects_object_geometries_data pog
		    ON pog.public_object_geometry_id = uo.object_geometry_id
		 WHERE uo.object_geometry_id = ANY($2) AND pog.object_geometry_id = ANY($3)`
	if _, err := q.ExecContext(ctx, markers, scenarioID, pq.Array(publicIDs), pq.Array(localIDs)); err != nil {
		return fmt.Errorf("inserting bootstrap markers: %w", err)
	}

	const detailed = `
		INSERT INTO projects_urban_objects_data
		       (scenario_id, object_geometry_id, public_physical_object_id, public_service_id)
		SELECT $1, pog.object_geometry_id, uo.physical_object_id, uo.service_id
		  FROM urban_objects_data uo
		  JOIN projects_object_geometries_data pog
		    ON pog.public_object_geometry_id = uo.object_geometry_id
		 WHERE uo.object_geometry_id = ANY($2) AND pog.object_geometry_id = ANY($3)`
	if _, err := q.ExecContext(ctx, detailed, scenarioID, pq.Array(publicIDs), pq.Array(localIDs)); err != nil {
		return fmt.Errorf("inserting bootstrap urban objects: %w", err)
	}
	return nil
}

// CopyFunctionalZones clips the public functional zones against the
// project polygon and inserts the polygonal, non-empty results into the
// scenario.
func (e *Engine) CopyFunctionalZones(ctx context.Context, q db.Querier, scenarioID, projectID int64) error {
	query := fmt.Sprintf(
		`INSERT INTO projects_functional_zones
		        (scenario_id, functional_zone_type_id, geometry, year, source, properties)
		 SELECT $1, fz.functional_zone_type_id,
		        ST_Intersection(fz.geometry, %[1]s),
		        fz.year, fz.source, fz.properties
		   FROM functional_zones_data fz
		  WHERE ST_Intersects(fz.geometry, %[1]s)
		    AND ST_GeometryType(ST_Intersection(fz.geometry, %[1]s)) IN ('ST_Polygon', 'ST_MultiPolygon')
		    AND NOT ST_IsEmpty(ST_Intersection(fz.geometry, %[1]s))`,
		fmt.Sprintf(projectMaskSQL, projectID))

	if _, err := q.ExecContext(ctx, query, scenarioID); err != nil {
		return fmt.Errorf("copying functional zones: %w", err)
	}
	return nil
}
