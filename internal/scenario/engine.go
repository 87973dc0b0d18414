package scenario

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkb"

	"github.com/onnwee/urbanscape/internal/apperr"
	"github.com/onnwee/urbanscape/internal/db"
	"github.com/onnwee/urbanscape/internal/overlay"
)

// Attrs carries caller-supplied attribute overrides for a shadow copy,
// keyed by column name. Missing keys keep the public row's value, which
// gives patch semantics for free. orb.Geometry values are sent as WKB and
// decoded by the database.
type Attrs map[string]any

// projectMaskSQL selects the territory polygon of a project for use as a
// subquery mask.
const projectMaskSQL = `(SELECT geometry FROM projects_territory_data WHERE project_id = %d)`

// Engine is the copy-on-write core: it materializes scenario-local shadow
// rows over the public dataset and keeps the scenario join table consistent
// while doing so. Every method runs against the caller's transaction and
// performs no commits of its own.
type Engine struct {
	logger  *slog.Logger
	metrics *Metrics

	// areaFraction is the minimum overlap, as a fraction of the public
	// geometry's own area, for a boundary geometry to be clipped into a
	// new scenario during bootstrap.
	areaFraction float64

	// excludeName filters out building-type objects from bootstrap
	// clipping; buildings are never truncated at the project boundary.
	excludeName string
}

// Config tunes the bootstrap heuristics. Zero values fall back to the
// defaults the public dataset was built with.
type Config struct {
	BootstrapAreaFraction float64
	BootstrapExcludeName  string
}

// NewEngine creates an Engine. A nil logger falls back to slog.Default; a
// nil metrics disables instrumentation.
func NewEngine(cfg Config, logger *slog.Logger, metrics *Metrics) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.BootstrapAreaFraction == 0 {
		cfg.BootstrapAreaFraction = 0.01
	}
	if cfg.BootstrapExcludeName == "" {
		cfg.BootstrapExcludeName = "здание"
	}
	return &Engine{
		logger:       logger,
		metrics:      metrics,
		areaFraction: cfg.BootstrapAreaFraction,
		excludeName:  cfg.BootstrapExcludeName,
	}
}

// MaterializeShadow inserts a scenario-local copy of the public row
// identified by publicID, with attrs overriding the copied columns, and
// returns the new local id. The shadow pointer column records the source
// row. Attribute keys outside the kind's copy columns are rejected.
func (e *Engine) MaterializeShadow(ctx context.Context, q db.Querier, k overlay.Kind, publicID int64, attrs Attrs) (int64, error) {
	columns := []string{k.ShadowColumn}
	selects := []string{"$1"}
	args := []any{publicID}

	for _, col := range k.CopyColumns {
		columns = append(columns, col)
		val, ok := attrs[col]
		if !ok {
			selects = append(selects, col)
			continue
		}
		if g, isGeom := val.(orb.Geometry); isGeom {
			raw, err := wkb.Marshal(g)
			if err != nil {
				return 0, fmt.Errorf("encoding %s %s: %w", k.Name, col, err)
			}
			args = append(args, raw)
			selects = append(selects, fmt.Sprintf("ST_GeomFromWKB($%d, 4326)", len(args)))
			continue
		}
		args = append(args, val)
		selects = append(selects, fmt.Sprintf("$%d", len(args)))
	}
	for col := range attrs {
		if !containsColumn(k.CopyColumns, col) {
			return 0, apperr.NewInvalidRequest(fmt.Sprintf("unknown %s attribute %q", k.Name, col))
		}
	}

	query := fmt.Sprintf(
		`INSERT INTO %s (%s) SELECT %s FROM %s WHERE %s = $1 RETURNING %s`,
		k.ScenarioTable, strings.Join(columns, ", "),
		strings.Join(selects, ", "), k.PublicTable, k.IDColumn, k.IDColumn)

	var localID int64
	if err := q.QueryRowContext(ctx, query, args...).Scan(&localID); err != nil {
		if err == sql.ErrNoRows {
			return 0, apperr.NewNotFound(k.Name, publicID)
		}
		return 0, fmt.Errorf("materializing %s shadow: %w", k.Name, err)
	}
	e.metrics.IncShadowWrites(k.Name)
	return localID, nil
}

// publicJoin is one public urban-object row awaiting mirroring, with its
// three slot values keyed by slot column name.
type publicJoin struct {
	urbanObjectID int64
	slots         map[string]sql.NullInt64
}

// RewriteJoins redirects the scenario's join rows from the public row
// publicID to the freshly materialized local row. Public urban objects
// referencing publicID inside the project polygon and not yet mirrored in
// this scenario get two rows each: a full-inheritance marker suppressing
// the public row, and a parallel row carrying the new local id with the
// other two slots as public pointers. Finally, pre-existing scenario join
// rows pointing at publicID are redirected in place.
func (e *Engine) RewriteJoins(ctx context.Context, q db.Querier, k overlay.Kind, scenarioID, projectID, publicID, newLocalID int64) error {
	rows, err := e.selectUnmirrored(ctx, q, k, scenarioID, projectID, publicID)
	if err != nil {
		return err
	}

	if len(rows) > 0 {
		if err := e.insertMarkers(ctx, q, scenarioID, rows); err != nil {
			return err
		}
		if err := e.insertParallels(ctx, q, k, scenarioID, newLocalID, rows); err != nil {
			return err
		}
	}

	redirect := fmt.Sprintf(
		`UPDATE projects_urban_objects_data SET %s = $1, %s = NULL WHERE scenario_id = $2 AND %s = $3`,
		k.JoinLocalColumn, k.JoinPublicColumn, k.JoinPublicColumn)
	if _, err := q.ExecContext(ctx, redirect, newLocalID, scenarioID, publicID); err != nil {
		return fmt.Errorf("redirecting %s join rows: %w", k.Name, err)
	}
	return nil
}

// DeleteShadowTarget removes a geometry, physical object or service from a
// scenario. A scenario-local row is dropped together with its join rows;
// when it shadowed a public row, this scenario's suppression markers for
// that public row are dropped too, so the public version resurfaces. A
// public row is tombstoned: its pointer join rows are deleted and the
// covering public urban objects are suppressed with full-inheritance
// markers.
func (e *Engine) DeleteShadowTarget(ctx context.Context, q db.Querier, k overlay.Kind, scenarioID, projectID, entityID int64, isScenarioObject bool) error {
	if !isScenarioObject {
		drop := fmt.Sprintf(
			`DELETE FROM projects_urban_objects_data WHERE scenario_id = $1 AND %s = $2`,
			k.JoinPublicColumn)
		if _, err := q.ExecContext(ctx, drop, scenarioID, entityID); err != nil {
			return fmt.Errorf("deleting %s pointer rows: %w", k.Name, err)
		}

		rows, err := e.selectUnmirrored(ctx, q, k, scenarioID, projectID, entityID)
		if err != nil {
			return err
		}
		if len(rows) > 0 {
			return e.insertMarkers(ctx, q, scenarioID, rows)
		}
		return nil
	}

	var shadow sql.NullInt64
	lookup := fmt.Sprintf(`SELECT %s FROM %s WHERE %s = $1`, k.ShadowColumn, k.ScenarioTable, k.IDColumn)
	if err := q.QueryRowContext(ctx, lookup, entityID).Scan(&shadow); err != nil {
		if err == sql.ErrNoRows {
			return apperr.NewNotFound(k.Name, entityID)
		}
		return fmt.Errorf("looking up %s shadow pointer: %w", k.Name, err)
	}

	// Shadow deletion also lifts this scenario's suppression of the
	// shadowed public row, so deleting a local override restores the
	// public version instead of leaving a hole.
	if shadow.Valid {
		unsuppress := fmt.Sprintf(
			`DELETE FROM projects_urban_objects_data
			  WHERE scenario_id = $1
			    AND public_urban_object_id IN (SELECT urban_object_id FROM urban_objects_data WHERE %s = $2)`,
			k.JoinLocalColumn)
		if _, err := q.ExecContext(ctx, unsuppress, scenarioID, shadow.Int64); err != nil {
			return fmt.Errorf("lifting %s suppression markers: %w", k.Name, err)
		}
	}

	dropJoins := fmt.Sprintf(
		`DELETE FROM projects_urban_objects_data WHERE scenario_id = $1 AND %s = $2`,
		k.JoinLocalColumn)
	if _, err := q.ExecContext(ctx, dropJoins, scenarioID, entityID); err != nil {
		return fmt.Errorf("deleting %s join rows: %w", k.Name, err)
	}

	dropRow := fmt.Sprintf(`DELETE FROM %s WHERE %s = $1`, k.ScenarioTable, k.IDColumn)
	if _, err := q.ExecContext(ctx, dropRow, entityID); err != nil {
		return fmt.Errorf("deleting scenario %s: %w", k.Name, err)
	}
	return nil
}

// selectUnmirrored reads the public urban objects referencing entityID in
// the kind's slot, lying within the project polygon and not yet mirrored
// by a full-inheritance marker in this scenario. Rows are read into memory
// before any insert so the NOT IN subquery never sees the rows being
// added.
func (e *Engine) selectUnmirrored(ctx context.Context, q db.Querier, k overlay.Kind, scenarioID, projectID, entityID int64) ([]publicJoin, error) {
	query := fmt.Sprintf(
		`SELECT uo.urban_object_id, uo.object_geometry_id, uo.physical_object_id, uo.service_id
		   FROM urban_objects_data uo
		   JOIN object_geometries_data og ON og.object_geometry_id = uo.object_geometry_id
		  WHERE uo.%s = $1
		    AND uo.urban_object_id NOT IN (
		        SELECT public_urban_object_id FROM projects_urban_objects_data
		         WHERE scenario_id = $2 AND public_urban_object_id IS NOT NULL)
		    AND ST_Within(og.geometry, `+projectMaskSQL+`)`,
		k.JoinLocalColumn, projectID)

	rows, err := q.QueryContext(ctx, query, entityID, scenarioID)
	if err != nil {
		return nil, fmt.Errorf("selecting unmirrored %s urban objects: %w", k.Name, err)
	}
	defer rows.Close()

	var out []publicJoin
	for rows.Next() {
		var (
			pj     publicJoin
			geomID sql.NullInt64
			physID sql.NullInt64
			svcID  sql.NullInt64
		)
		if err := rows.Scan(&pj.urbanObjectID, &geomID, &physID, &svcID); err != nil {
			return nil, fmt.Errorf("scanning urban object row: %w", err)
		}
		pj.slots = map[string]sql.NullInt64{
			overlay.Geometries.JoinLocalColumn:      geomID,
			overlay.PhysicalObjects.JoinLocalColumn: physID,
			overlay.Services.JoinLocalColumn:        svcID,
		}
		out = append(out, pj)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading urban object rows: %w", err)
	}
	return out, nil
}

// insertMarkers adds one full-inheritance row per public urban object,
// excluding each from the scenario's merged view.
func (e *Engine) insertMarkers(ctx context.Context, q db.Querier, scenarioID int64, rows []publicJoin) error {
	values := make([]string, len(rows))
	args := make([]any, 0, len(rows)+1)
	args = append(args, scenarioID)
	for i, row := range rows {
		args = append(args, row.urbanObjectID)
		values[i] = fmt.Sprintf("($1, $%d)", len(args))
	}
	query := `INSERT INTO projects_urban_objects_data (scenario_id, public_urban_object_id) VALUES ` +
		strings.Join(values, ", ")
	if _, err := q.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("inserting suppression markers: %w", err)
	}
	return nil
}

// insertParallels adds one join row per suppressed public urban object
// carrying the new local id in the kind's slot and the other two slots as
// public pointers.
func (e *Engine) insertParallels(ctx context.Context, q db.Querier, k overlay.Kind, scenarioID, newLocalID int64, rows []publicJoin) error {
	others := otherKinds(k)
	columns := []string{"scenario_id", k.JoinLocalColumn, others[0].JoinPublicColumn, others[1].JoinPublicColumn}

	values := make([]string, len(rows))
	args := []any{scenarioID, newLocalID}
	for i, row := range rows {
		a := row.slots[others[0].JoinLocalColumn]
		b := row.slots[others[1].JoinLocalColumn]
		args = append(args, a, b)
		values[i] = fmt.Sprintf("($1, $2, $%d, $%d)", len(args)-1, len(args))
	}
	query := fmt.Sprintf(`INSERT INTO projects_urban_objects_data (%s) VALUES %s`,
		strings.Join(columns, ", "), strings.Join(values, ", "))
	if _, err := q.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("inserting parallel %s rows: %w", k.Name, err)
	}
	return nil
}

// otherKinds returns the two entity kinds sharing an urban object with k,
// in declaration order.
func otherKinds(k overlay.Kind) [2]overlay.Kind {
	all := []overlay.Kind{overlay.Geometries, overlay.PhysicalObjects, overlay.Services}
	var out [2]overlay.Kind
	i := 0
	for _, other := range all {
		if other.Name != k.Name {
			out[i] = other
			i++
		}
	}
	return out
}

// copyEntities deep-copies scenario-local rows of kind k and returns the
// old to new id mapping. Copies go one row at a time so the mapping stays
// exact regardless of insert ordering.
func (e *Engine) copyEntities(ctx context.Context, q db.Querier, k overlay.Kind, ids []int64) (map[int64]int64, error) {
	if len(ids) == 0 {
		return map[int64]int64{}, nil
	}
	sorted := append([]int64(nil), ids...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	cols := strings.Join(append([]string{k.ShadowColumn}, k.CopyColumns...), ", ")
	query := fmt.Sprintf(
		`INSERT INTO %s (%s) SELECT %s FROM %s WHERE %s = $1 RETURNING %s`,
		k.ScenarioTable, cols, cols, k.ScenarioTable, k.IDColumn, k.IDColumn)

	out := make(map[int64]int64, len(sorted))
	for _, id := range sorted {
		var newID int64
		if err := q.QueryRowContext(ctx, query, id).Scan(&newID); err != nil {
			return nil, fmt.Errorf("copying %s %d: %w", k.Name, id, err)
		}
		out[id] = newID
	}
	return out, nil
}

// copyPublicGeometries clips public geometries against the project polygon
// and inserts them as scenario-local shadows, returning the old to new id
// mapping.
func (e *Engine) copyPublicGeometries(ctx context.Context, q db.Querier, projectID int64, ids []int64) (map[int64]int64, error) {
	if len(ids) == 0 {
		return map[int64]int64{}, nil
	}
	sorted := append([]int64(nil), ids...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	query := fmt.Sprintf(
		`INSERT INTO projects_object_geometries_data
		        (public_object_geometry_id, territory_id, geometry, centre_point, address, osm_id)
		 SELECT object_geometry_id, territory_id,
		        ST_Intersection(geometry, `+projectMaskSQL+`),
		        ST_Centroid(ST_Intersection(geometry, `+projectMaskSQL+`)),
		        address, osm_id
		   FROM object_geometries_data
		  WHERE object_geometry_id = $1
		 RETURNING object_geometry_id`, projectID, projectID)

	out := make(map[int64]int64, len(sorted))
	for _, id := range sorted {
		var newID int64
		if err := q.QueryRowContext(ctx, query, id).Scan(&newID); err != nil {
			return nil, fmt.Errorf("copying public geometry %d: %w", id, err)
		}
		out[id] = newID
	}
	return out, nil
}

func containsColumn(cols []string, col string) bool {
	for _, c := range cols {
		if c == col {
			return true
		}
	}
	return false
}
