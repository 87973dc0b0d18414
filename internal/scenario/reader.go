package scenario

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/lib/pq"

	"github.com/onnwee/urbanscape/internal/apperr"
	"github.com/onnwee/urbanscape/internal/db"
)

// Reader assembles the merged view of a scenario: the public dataset rows
// still visible inside the project polygon plus the scenario-local
// overrides, combined by identity. Each listing runs exactly two queries,
// one per bucket, so no row can appear in both within one read.
type Reader struct {
	q       db.Querier
	dict    FunctionDictionary
	terr    TerritoryHierarchy
	logger  *slog.Logger
	metrics *Metrics
}

// NewReader creates a Reader over the given querier. A nil logger falls
// back to slog.Default; a nil metrics disables instrumentation.
func NewReader(q db.Querier, dict FunctionDictionary, terr TerritoryHierarchy, logger *slog.Logger, metrics *Metrics) *Reader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reader{q: q, dict: dict, terr: terr, logger: logger, metrics: metrics}
}

// scenarioProject resolves the owning project of a scenario, failing with
// NotFound when the scenario does not exist.
func (r *Reader) scenarioProject(ctx context.Context, scenarioID int64) (int64, error) {
	var projectID int64
	err := r.q.QueryRowContext(ctx,
		`SELECT project_id FROM scenarios_data WHERE scenario_id = $1`, scenarioID).Scan(&projectID)
	if err == sql.ErrNoRows {
		return 0, apperr.NewNotFound("scenario", scenarioID)
	}
	if err != nil {
		return 0, fmt.Errorf("resolving scenario project: %w", err)
	}
	return projectID, nil
}

// notSuppressedSQL excludes public urban objects hidden in this scenario
// by a full-inheritance marker row.
const notSuppressedSQL = `uo.urban_object_id NOT IN (
	SELECT public_urban_object_id FROM projects_urban_objects_data
	 WHERE scenario_id = $1 AND public_urban_object_id IS NOT NULL)`

// ListPhysicalObjects returns the merged physical objects of a scenario.
func (r *Reader) ListPhysicalObjects(ctx context.Context, scenarioID int64, f PhysicalObjectFilters) ([]PhysicalObjectItem, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	projectID, err := r.scenarioProject(ctx, scenarioID)
	if err != nil {
		return nil, err
	}
	functionIDs, err := r.expandPhysicalFunction(ctx, f.FunctionID)
	if err != nil {
		return nil, err
	}

	public, err := r.publicPhysicalObjects(ctx, scenarioID, projectID, f.TypeID, functionIDs)
	if err != nil {
		return nil, err
	}
	local, err := r.scenarioPhysicalObjects(ctx, scenarioID, f.TypeID, functionIDs)
	if err != nil {
		return nil, err
	}
	r.metrics.IncMergeReads("physical object")
	return MergePhysicalObjects(public, local), nil
}

func (r *Reader) expandPhysicalFunction(ctx context.Context, functionID *int64) ([]int64, error) {
	if functionID == nil {
		return nil, nil
	}
	ids, err := ExpandPhysicalObjectFunction(ctx, r.dict, *functionID)
	if err != nil {
		return nil, fmt.Errorf("expanding physical object function %d: %w", *functionID, err)
	}
	return ids, nil
}

func (r *Reader) expandUrbanFunction(ctx context.Context, functionID *int64) ([]int64, error) {
	if functionID == nil {
		return nil, nil
	}
	ids, err := ExpandUrbanFunction(ctx, r.dict, *functionID)
	if err != nil {
		return nil, fmt.Errorf("expanding urban function %d: %w", *functionID, err)
	}
	return ids, nil
}

func (r *Reader) publicPhysicalObjects(ctx context.Context, scenarioID, projectID int64, typeID *int64, functionIDs []int64) ([]PhysicalObjectItem, error) {
	query := fmt.Sprintf(
		`SELECT po.physical_object_id, pot.physical_object_type_id, pot.name,
		        pof.physical_object_function_id, pof.name,
		        po.name, po.properties, po.created_at, po.updated_at
		   FROM urban_objects_data uo
		   JOIN physical_objects_data po ON po.physical_object_id = uo.physical_object_id
		   JOIN object_geometries_data og ON og.object_geometry_id = uo.object_geometry_id
		   JOIN physical_object_types_dict pot ON pot.physical_object_type_id = po.physical_object_type_id
		   LEFT JOIN physical_object_functions_dict pof
		     ON pof.physical_object_function_id = pot.physical_object_function_id
		  WHERE `+notSuppressedSQL+`
		    AND ST_Within(og.geometry, `+projectMaskSQL+`)`, projectID)
	args := []any{scenarioID}
	query, args = appendFilter(query, args, "po.physical_object_type_id", typeID)
	query, args = appendSetFilter(query, args, "pot.physical_object_function_id", functionIDs)

	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing public physical objects: %w", err)
	}
	defer rows.Close()

	var out []PhysicalObjectItem
	for rows.Next() {
		var p PhysicalObjectItem
		if err := rows.Scan(&p.ID, &p.TypeID, &p.TypeName,
			&p.FunctionID, &p.FunctionName,
			&p.Name, &p.Properties, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning public physical object: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *Reader) scenarioPhysicalObjects(ctx context.Context, scenarioID int64, typeID *int64, functionIDs []int64) ([]PhysicalObjectItem, error) {
	query := `
		SELECT puod.physical_object_id, puod.public_physical_object_id,
		       pot.physical_object_type_id, pot.name,
		       pof.physical_object_function_id, pof.name,
		       ppo.name, ppo.properties, ppo.created_at, ppo.updated_at,
		       po.name, po.properties, po.created_at, po.updated_at
		  FROM projects_urban_objects_data puod
		  LEFT JOIN projects_physical_objects_data ppo
		    ON ppo.physical_object_id = puod.physical_object_id
		  LEFT JOIN physical_objects_data po
		    ON po.physical_object_id = puod.public_physical_object_id
		  LEFT JOIN physical_object_types_dict pot
		    ON pot.physical_object_type_id = COALESCE(ppo.physical_object_type_id, po.physical_object_type_id)
		  LEFT JOIN physical_object_functions_dict pof
		    ON pof.physical_object_function_id = pot.physical_object_function_id
		 WHERE puod.scenario_id = $1
		   AND puod.public_urban_object_id IS NULL
		   AND (puod.physical_object_id IS NOT NULL OR puod.public_physical_object_id IS NOT NULL)`
	args := []any{scenarioID}
	query, args = appendFilter(query, args, "COALESCE(ppo.physical_object_type_id, po.physical_object_type_id)", typeID)
	query, args = appendSetFilter(query, args, "pot.physical_object_function_id", functionIDs)

	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing scenario physical objects: %w", err)
	}
	defer rows.Close()

	var out []PhysicalObjectItem
	for rows.Next() {
		var (
			slot                     SlotRef
			p                        PhysicalObjectItem
			localName, pubName       sql.NullString
			localProps, pubProps     []byte
			localCreated, pubCreated sql.NullTime
			localUpdated, pubUpdated sql.NullTime
		)
		if err := rows.Scan(&slot.LocalID, &slot.PublicID,
			&p.TypeID, &p.TypeName,
			&p.FunctionID, &p.FunctionName,
			&localName, &localProps, &localCreated, &localUpdated,
			&pubName, &pubProps, &pubCreated, &pubUpdated); err != nil {
			return nil, fmt.Errorf("scanning scenario physical object: %w", err)
		}
		p.ID = slot.ID()
		p.IsScenarioObject = slot.IsScenario()
		p.Name = nullString(pick(slot, localName, pubName))
		p.Properties = pick(slot, localProps, pubProps)
		p.CreatedAt = pick(slot, localCreated, pubCreated).Time
		p.UpdatedAt = pick(slot, localUpdated, pubUpdated).Time
		out = append(out, p)
	}
	return out, rows.Err()
}

// ListServices returns the merged services of a scenario.
func (r *Reader) ListServices(ctx context.Context, scenarioID int64, f ServiceFilters) ([]ServiceItem, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	projectID, err := r.scenarioProject(ctx, scenarioID)
	if err != nil {
		return nil, err
	}
	functionIDs, err := r.expandUrbanFunction(ctx, f.UrbanFunctionID)
	if err != nil {
		return nil, err
	}

	public, err := r.publicServices(ctx, scenarioID, projectID, f.TypeID, functionIDs)
	if err != nil {
		return nil, err
	}
	local, err := r.scenarioServices(ctx, scenarioID, f.TypeID, functionIDs)
	if err != nil {
		return nil, err
	}
	r.metrics.IncMergeReads("service")
	return MergeServices(public, local), nil
}

func (r *Reader) publicServices(ctx context.Context, scenarioID, projectID int64, typeID *int64, functionIDs []int64) ([]ServiceItem, error) {
	query := fmt.Sprintf(
		`SELECT DISTINCT s.service_id, st.service_type_id, st.name, st.urban_function_id,
		        s.name, s.capacity, s.is_capacity_real, s.properties, s.created_at, s.updated_at
		   FROM urban_objects_data uo
		   JOIN services_data s ON s.service_id = uo.service_id
		   JOIN object_geometries_data og ON og.object_geometry_id = uo.object_geometry_id
		   JOIN service_types_dict st ON st.service_type_id = s.service_type_id
		  WHERE `+notSuppressedSQL+`
		    AND ST_Within(og.geometry, `+projectMaskSQL+`)`, projectID)
	args := []any{scenarioID}
	query, args = appendFilter(query, args, "s.service_type_id", typeID)
	query, args = appendSetFilter(query, args, "st.urban_function_id", functionIDs)

	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing public services: %w", err)
	}
	defer rows.Close()

	var out []ServiceItem
	for rows.Next() {
		var s ServiceItem
		if err := rows.Scan(&s.ID, &s.TypeID, &s.TypeName, &s.UrbanFunctionID,
			&s.Name, &s.Capacity, &s.IsCapacityReal, &s.Properties, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning public service: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *Reader) scenarioServices(ctx context.Context, scenarioID int64, typeID *int64, functionIDs []int64) ([]ServiceItem, error) {
	query := `
		SELECT puod.service_id, puod.public_service_id,
		       st.service_type_id, st.name, st.urban_function_id,
		       ps.name, ps.capacity, ps.is_capacity_real, ps.properties, ps.created_at, ps.updated_at,
		       s.name, s.capacity, s.is_capacity_real, s.properties, s.created_at, s.updated_at
		  FROM projects_urban_objects_data puod
		  LEFT JOIN projects_services_data ps ON ps.service_id = puod.service_id
		  LEFT JOIN services_data s ON s.service_id = puod.public_service_id
		  LEFT JOIN service_types_dict st
		    ON st.service_type_id = COALESCE(ps.service_type_id, s.service_type_id)
		 WHERE puod.scenario_id = $1
		   AND puod.public_urban_object_id IS NULL
		   AND (puod.service_id IS NOT NULL OR puod.public_service_id IS NOT NULL)`
	args := []any{scenarioID}
	query, args = appendFilter(query, args, "COALESCE(ps.service_type_id, s.service_type_id)", typeID)
	query, args = appendSetFilter(query, args, "st.urban_function_id", functionIDs)

	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing scenario services: %w", err)
	}
	defer rows.Close()

	var out []ServiceItem
	for rows.Next() {
		var (
			slot                     SlotRef
			s                        ServiceItem
			localName, pubName       sql.NullString
			localCap, pubCap         sql.NullInt64
			localReal, pubReal       sql.NullBool
			localProps, pubProps     []byte
			localCreated, pubCreated sql.NullTime
			localUpdated, pubUpdated sql.NullTime
		)
		if err := rows.Scan(&slot.LocalID, &slot.PublicID,
			&s.TypeID, &s.TypeName, &s.UrbanFunctionID,
			&localName, &localCap, &localReal, &localProps, &localCreated, &localUpdated,
			&pubName, &pubCap, &pubReal, &pubProps, &pubCreated, &pubUpdated); err != nil {
			return nil, fmt.Errorf("scanning scenario service: %w", err)
		}
		s.ID = slot.ID()
		s.IsScenarioObject = slot.IsScenario()
		s.Name = nullString(pick(slot, localName, pubName))
		s.Capacity = nullInt(pick(slot, localCap, pubCap))
		s.IsCapacityReal = nullBool(pick(slot, localReal, pubReal))
		s.Properties = pick(slot, localProps, pubProps)
		s.CreatedAt = pick(slot, localCreated, pubCreated).Time
		s.UpdatedAt = pick(slot, localUpdated, pubUpdated).Time
		out = append(out, s)
	}
	return out, rows.Err()
}

// ListGeometries returns the merged geometries of a scenario.
func (r *Reader) ListGeometries(ctx context.Context, scenarioID int64, f GeometryFilters) ([]GeometryItem, error) {
	projectID, err := r.scenarioProject(ctx, scenarioID)
	if err != nil {
		return nil, err
	}

	public, err := r.publicGeometries(ctx, scenarioID, projectID, f)
	if err != nil {
		return nil, err
	}
	local, err := r.scenarioGeometries(ctx, scenarioID, f)
	if err != nil {
		return nil, err
	}
	r.metrics.IncMergeReads("object geometry")
	return MergeGeometries(public, local), nil
}

func (r *Reader) publicGeometries(ctx context.Context, scenarioID, projectID int64, f GeometryFilters) ([]GeometryItem, error) {
	query := fmt.Sprintf(
		`SELECT DISTINCT og.object_geometry_id, og.territory_id, t.name,
		        ST_AsGeoJSON(og.geometry)::jsonb, ST_AsGeoJSON(og.centre_point)::jsonb,
		        og.address, og.osm_id, og.created_at, og.updated_at
		   FROM urban_objects_data uo
		   JOIN object_geometries_data og ON og.object_geometry_id = uo.object_geometry_id
		   JOIN territories_data t ON t.territory_id = og.territory_id
		  WHERE `+notSuppressedSQL+`
		    AND ST_Within(og.geometry, `+projectMaskSQL+`)`, projectID)
	args := []any{scenarioID}
	query, args = appendFilter(query, args, "uo.physical_object_id", f.PhysicalObjectID)
	query, args = appendFilter(query, args, "uo.service_id", f.ServiceID)

	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing public geometries: %w", err)
	}
	defer rows.Close()

	var out []GeometryItem
	for rows.Next() {
		var g GeometryItem
		if err := rows.Scan(&g.ID, &g.TerritoryID, &g.TerritoryName,
			&g.Geometry, &g.CentrePoint,
			&g.Address, &g.OSMID, &g.CreatedAt, &g.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning public geometry: %w", err)
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

func (r *Reader) scenarioGeometries(ctx context.Context, scenarioID int64, f GeometryFilters) ([]GeometryItem, error) {
	query := `
		SELECT DISTINCT puod.object_geometry_id, puod.public_object_geometry_id,
		       COALESCE(pog.territory_id, og.territory_id), t.name,
		       ST_AsGeoJSON(pog.geometry)::jsonb, ST_AsGeoJSON(pog.centre_point)::jsonb,
		       pog.address, pog.osm_id, pog.created_at, pog.updated_at,
		       ST_AsGeoJSON(og.geometry)::jsonb, ST_AsGeoJSON(og.centre_point)::jsonb,
		       og.address, og.osm_id, og.created_at, og.updated_at
		  FROM projects_urban_objects_data puod
		  LEFT JOIN projects_object_geometries_data pog
		    ON pog.object_geometry_id = puod.object_geometry_id
		  LEFT JOIN object_geometries_data og
		    ON og.object_geometry_id = puod.public_object_geometry_id
		  LEFT JOIN territories_data t
		    ON t.territory_id = COALESCE(pog.territory_id, og.territory_id)
		 WHERE puod.scenario_id = $1
		   AND puod.public_urban_object_id IS NULL
		   AND (puod.object_geometry_id IS NOT NULL OR puod.public_object_geometry_id IS NOT NULL)`
	args := []any{scenarioID}
	query, args = appendFilter(query, args, "COALESCE(puod.physical_object_id, puod.public_physical_object_id)", f.PhysicalObjectID)
	query, args = appendFilter(query, args, "COALESCE(puod.service_id, puod.public_service_id)", f.ServiceID)

	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing scenario geometries: %w", err)
	}
	defer rows.Close()

	var out []GeometryItem
	for rows.Next() {
		var (
			slot                     SlotRef
			g                        GeometryItem
			localGeom, pubGeom       []byte
			localCentre, pubCentre   []byte
			localAddr, pubAddr       sql.NullString
			localOSM, pubOSM         sql.NullString
			localCreated, pubCreated sql.NullTime
			localUpdated, pubUpdated sql.NullTime
		)
		if err := rows.Scan(&slot.LocalID, &slot.PublicID,
			&g.TerritoryID, &g.TerritoryName,
			&localGeom, &localCentre, &localAddr, &localOSM, &localCreated, &localUpdated,
			&pubGeom, &pubCentre, &pubAddr, &pubOSM, &pubCreated, &pubUpdated); err != nil {
			return nil, fmt.Errorf("scanning scenario geometry: %w", err)
		}
		g.ID = slot.ID()
		g.IsScenarioObject = slot.IsScenario()
		g.Geometry = pick(slot, localGeom, pubGeom)
		g.CentrePoint = pick(slot, localCentre, pubCentre)
		g.Address = nullString(pick(slot, localAddr, pubAddr))
		g.OSMID = nullString(pick(slot, localOSM, pubOSM))
		g.CreatedAt = pick(slot, localCreated, pubCreated).Time
		g.UpdatedAt = pick(slot, localUpdated, pubUpdated).Time
		out = append(out, g)
	}
	return out, rows.Err()
}

// ListGeometriesWithAllObjects returns the scenario's merged geometries
// with their physical objects and services nested under each, children
// deduplicated by identity and provenance.
func (r *Reader) ListGeometriesWithAllObjects(ctx context.Context, scenarioID int64) ([]GeometryWithObjects, error) {
	geometries, err := r.ListGeometries(ctx, scenarioID, GeometryFilters{})
	if err != nil {
		return nil, err
	}
	physical, err := r.ListPhysicalObjects(ctx, scenarioID, PhysicalObjectFilters{})
	if err != nil {
		return nil, err
	}
	services, err := r.ListServices(ctx, scenarioID, ServiceFilters{})
	if err != nil {
		return nil, err
	}
	bindings, err := r.listBindings(ctx, scenarioID)
	if err != nil {
		return nil, err
	}
	return assembleRows(geometries, physical, services, bindings), nil
}

// binding is one (geometry, physical object, service) association from a
// join row, each side tagged with its provenance.
type binding struct {
	geometry SlotRef
	physical SlotRef
	service  SlotRef
}

// listBindings reads the scenario's associations from both buckets: public
// urban objects still visible inside the project, and scenario join rows.
func (r *Reader) listBindings(ctx context.Context, scenarioID int64) ([]binding, error) {
	projectID, err := r.scenarioProject(ctx, scenarioID)
	if err != nil {
		return nil, err
	}

	publicQuery := fmt.Sprintf(
		`SELECT uo.object_geometry_id, uo.physical_object_id, uo.service_id
		   FROM urban_objects_data uo
		   JOIN object_geometries_data og ON og.object_geometry_id = uo.object_geometry_id
		  WHERE `+notSuppressedSQL+`
		    AND ST_Within(og.geometry, `+projectMaskSQL+`)`, projectID)
	rows, err := r.q.QueryContext(ctx, publicQuery, scenarioID)
	if err != nil {
		return nil, fmt.Errorf("listing public bindings: %w", err)
	}
	defer rows.Close()

	var out []binding
	for rows.Next() {
		var geomID, physID, svcID sql.NullInt64
		if err := rows.Scan(&geomID, &physID, &svcID); err != nil {
			return nil, fmt.Errorf("scanning public binding: %w", err)
		}
		out = append(out, binding{
			geometry: SlotRef{PublicID: nullInt(geomID)},
			physical: SlotRef{PublicID: nullInt(physID)},
			service:  SlotRef{PublicID: nullInt(svcID)},
		})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	const scenarioQuery = `
		SELECT object_geometry_id, public_object_geometry_id,
		       physical_object_id, public_physical_object_id,
		       service_id, public_service_id
		  FROM projects_urban_objects_data
		 WHERE scenario_id = $1 AND public_urban_object_id IS NULL`
	srows, err := r.q.QueryContext(ctx, scenarioQuery, scenarioID)
	if err != nil {
		return nil, fmt.Errorf("listing scenario bindings: %w", err)
	}
	defer srows.Close()

	for srows.Next() {
		var b binding
		if err := srows.Scan(&b.geometry.LocalID, &b.geometry.PublicID,
			&b.physical.LocalID, &b.physical.PublicID,
			&b.service.LocalID, &b.service.PublicID); err != nil {
			return nil, fmt.Errorf("scanning scenario binding: %w", err)
		}
		out = append(out, b)
	}
	return out, srows.Err()
}

// assembleRows turns listed items and bindings into flat triples and folds
// them into per-geometry groups, preserving merge order.
func assembleRows(geometries []GeometryItem, physical []PhysicalObjectItem, services []ServiceItem, bindings []binding) []GeometryWithObjects {
	geomIndex := make(map[childKey]GeometryItem, len(geometries))
	for _, g := range geometries {
		geomIndex[childKey{g.ID, g.IsScenarioObject}] = g
	}
	physIndex := make(map[childKey]PhysicalObjectItem, len(physical))
	for _, p := range physical {
		physIndex[childKey{p.ID, p.IsScenarioObject}] = p
	}
	svcIndex := make(map[childKey]ServiceItem, len(services))
	for _, s := range services {
		svcIndex[childKey{s.ID, s.IsScenarioObject}] = s
	}

	var rows []urbanObjectRow
	// Seed the groups in merge order so geometries without children still
	// appear, and appear in the same order as ListGeometries.
	for _, g := range geometries {
		rows = append(rows, urbanObjectRow{Geometry: g})
	}
	for _, b := range bindings {
		if b.geometry.Empty() {
			continue
		}
		g, ok := geomIndex[childKey{b.geometry.ID(), b.geometry.IsScenario()}]
		if !ok {
			continue
		}
		row := urbanObjectRow{Geometry: g}
		if !b.physical.Empty() {
			if p, ok := physIndex[childKey{b.physical.ID(), b.physical.IsScenario()}]; ok {
				row.PhysicalObject = &p
			}
		}
		if !b.service.Empty() {
			if s, ok := svcIndex[childKey{b.service.ID(), b.service.IsScenario()}]; ok {
				row.Service = &s
			}
		}
		rows = append(rows, row)
	}
	return groupByGeometry(rows)
}

// appendFilter adds an equality predicate when the value is present.
func appendFilter(query string, args []any, column string, value *int64) (string, []any) {
	if value == nil {
		return query, args
	}
	args = append(args, *value)
	return query + fmt.Sprintf(" AND %s = $%d", column, len(args)), args
}

// appendSetFilter adds a membership predicate when the set is non-empty.
func appendSetFilter(query string, args []any, column string, ids []int64) (string, []any) {
	if len(ids) == 0 {
		return query, args
	}
	args = append(args, pq.Array(ids))
	return query + fmt.Sprintf(" AND %s = ANY($%d)", column, len(args)), args
}

func nullString(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}

func nullBool(v sql.NullBool) *bool {
	if !v.Valid {
		return nil
	}
	b := v.Bool
	return &b
}

func nullInt(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	n := v.Int64
	return &n
}
