//go:build integration

// Integration tests in this package run the copy-on-write flow against a
// real PostGIS instance started with testcontainers.
// Run with: go test -tags=integration -v ./internal/scenario/...
package scenario_test

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/onnwee/urbanscape/internal/db"
	"github.com/onnwee/urbanscape/internal/overlay"
	"github.com/onnwee/urbanscape/internal/scenario"
)

// startPostGIS launches a disposable PostGIS container, applies the
// migrations and returns an open pool.
func startPostGIS(t *testing.T) *sql.DB {
	t.Helper()
	ctx := context.Background()

	ctr, err := tcpostgres.Run(ctx, "postgis/postgis:16-3.4",
		tcpostgres.WithDatabase("urbanscape_test"),
		tcpostgres.WithUsername("postgres"),
		tcpostgres.WithPassword("postgres"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(2*time.Minute)),
	)
	if err != nil {
		t.Skipf("container start failed (is Docker available?): %v", err)
	}
	t.Cleanup(func() {
		if err := testcontainers.TerminateContainer(ctr); err != nil {
			t.Logf("terminating container: %v", err)
		}
	})

	dsn, err := ctr.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("connection string: %v", err)
	}

	pool, err := db.Open(ctx, dsn)
	if err != nil {
		t.Fatalf("opening database: %v", err)
	}
	t.Cleanup(func() { pool.Close() })

	applyMigrations(t, pool)
	return pool
}

func applyMigrations(t *testing.T, pool *sql.DB) {
	t.Helper()
	entries, err := os.ReadDir(filepath.Join("..", "..", "migrations"))
	if err != nil {
		t.Fatalf("reading migrations dir: %v", err)
	}
	var files []string
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".up.sql") {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)
	for _, name := range files {
		raw, err := os.ReadFile(filepath.Join("..", "..", "migrations", name))
		if err != nil {
			t.Fatalf("reading %s: %v", name, err)
		}
		if _, err := pool.Exec(string(raw)); err != nil {
			t.Fatalf("applying %s: %v", name, err)
		}
	}
}

// fixture holds the ids of one seeded public urban object and the project
// and scenario wrapped around it.
type fixture struct {
	territoryID      int64
	objectGeometryID int64
	physicalObjectID int64
	serviceID        int64
	urbanObjectID    int64
	projectID        int64
	scenarioID       int64
}

// seed inserts one public urban object (a park with a hosted service) whose
// geometry lies inside the project polygon, plus a functional zone
// straddling it.
func seed(t *testing.T, pool *sql.DB) fixture {
	t.Helper()
	ctx := context.Background()
	var f fixture

	row := func(query string, args ...any) int64 {
		var id int64
		if err := pool.QueryRowContext(ctx, query, args...).Scan(&id); err != nil {
			t.Fatalf("seeding (%s): %v", query, err)
		}
		return id
	}

	f.territoryID = row(`INSERT INTO territories_data (name, level, is_city, geometry)
		VALUES ('Test City', 4, true, ST_GeomFromText('POLYGON((0 0,10 0,10 10,0 10,0 0))', 4326))
		RETURNING territory_id`)

	funcID := row(`INSERT INTO physical_object_functions_dict (name)
		VALUES ('recreation') RETURNING physical_object_function_id`)
	typeID := row(`INSERT INTO physical_object_types_dict (physical_object_function_id, name)
		VALUES ($1, 'park') RETURNING physical_object_type_id`, funcID)
	urbanFuncID := row(`INSERT INTO urban_functions_dict (name)
		VALUES ('leisure') RETURNING urban_function_id`)
	serviceTypeID := row(`INSERT INTO service_types_dict (urban_function_id, name)
		VALUES ($1, 'playground') RETURNING service_type_id`, urbanFuncID)
	zoneTypeID := row(`INSERT INTO functional_zone_types_dict (name)
		VALUES ('recreational') RETURNING functional_zone_type_id`)

	f.objectGeometryID = row(`INSERT INTO object_geometries_data
		(territory_id, geometry, centre_point, address, osm_id)
		VALUES ($1, ST_GeomFromText('POLYGON((1 1,2 1,2 2,1 2,1 1))', 4326),
		        ST_Centroid(ST_GeomFromText('POLYGON((1 1,2 1,2 2,1 2,1 1))', 4326)),
		        'Old Park Lane 1', 'way/100')
		RETURNING object_geometry_id`, f.territoryID)
	f.physicalObjectID = row(`INSERT INTO physical_objects_data (physical_object_type_id, name)
		VALUES ($1, 'Central Park') RETURNING physical_object_id`, typeID)
	f.serviceID = row(`INSERT INTO services_data (service_type_id, name, capacity, is_capacity_real)
		VALUES ($1, 'North Playground', 40, true) RETURNING service_id`, serviceTypeID)
	f.urbanObjectID = row(`INSERT INTO urban_objects_data
		(object_geometry_id, physical_object_id, service_id)
		VALUES ($1, $2, $3) RETURNING urban_object_id`,
		f.objectGeometryID, f.physicalObjectID, f.serviceID)

	row(`INSERT INTO functional_zones_data (territory_id, functional_zone_type_id, geometry, year, source)
		VALUES ($1, $2, ST_GeomFromText('POLYGON((0 0,6 0,6 6,0 6,0 0))', 4326), 2024, 'OSM')
		RETURNING functional_zone_id`, f.territoryID, zoneTypeID)

	f.projectID = row(`INSERT INTO projects_data (user_id, name, territory_id, description)
		VALUES ('itest-user', 'Park redevelopment', $1, '') RETURNING project_id`, f.territoryID)
	if _, err := pool.ExecContext(ctx, `INSERT INTO projects_territory_data (project_id, geometry, centre_point)
		VALUES ($1, ST_GeomFromText('POLYGON((0 0,5 0,5 5,0 5,0 0))', 4326),
		        ST_Centroid(ST_GeomFromText('POLYGON((0 0,5 0,5 5,0 5,0 0))', 4326)))`,
		f.projectID); err != nil {
		t.Fatalf("seeding project territory: %v", err)
	}
	f.scenarioID = row(`INSERT INTO scenarios_data (project_id, name, is_based)
		VALUES ($1, 'base', true) RETURNING scenario_id`, f.projectID)

	return f
}

func TestCopyOnWriteFlow(t *testing.T) {
	pool := startPostGIS(t)
	f := seed(t, pool)
	ctx := context.Background()

	reader := scenario.NewReader(pool, scenario.NewPostgresFunctionDictionary(pool), scenario.NewPostgresTerritoryHierarchy(pool), nil, nil)
	engine := scenario.NewEngine(scenario.Config{}, nil, nil)
	editor := scenario.NewEditor(pool, engine, nil)

	// The fresh scenario sees the public geometry through the merge view.
	items, err := reader.ListGeometries(ctx, f.scenarioID, scenario.GeometryFilters{})
	if err != nil {
		t.Fatalf("listing geometries: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("expected 1 geometry, got %d", len(items))
	}
	if items[0].IsScenarioObject {
		t.Error("untouched public geometry should not be a scenario object")
	}
	if items[0].ID != f.objectGeometryID {
		t.Errorf("expected public id %d, got %d", f.objectGeometryID, items[0].ID)
	}

	// Editing the public geometry materializes a scenario-local shadow.
	newID, err := editor.UpdateEntity(ctx, overlay.Geometries,
		f.scenarioID, f.projectID, f.objectGeometryID, false,
		scenario.Attrs{"address": "New Park Lane 1"})
	if err != nil {
		t.Fatalf("updating geometry: %v", err)
	}
	if newID == f.objectGeometryID {
		t.Fatal("shadow id should differ from the public id")
	}

	items, err = reader.ListGeometries(ctx, f.scenarioID, scenario.GeometryFilters{})
	if err != nil {
		t.Fatalf("listing geometries after edit: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("expected 1 geometry after edit, got %d", len(items))
	}
	if !items[0].IsScenarioObject {
		t.Error("edited geometry should be a scenario object")
	}
	if items[0].ID != newID {
		t.Errorf("expected shadow id %d, got %d", newID, items[0].ID)
	}
	if items[0].Address == nil || *items[0].Address != "New Park Lane 1" {
		t.Errorf("expected overridden address, got %v", items[0].Address)
	}

	// The public physical object and service stay reachable through the
	// parallel join row.
	objects, err := reader.ListPhysicalObjects(ctx, f.scenarioID, scenario.PhysicalObjectFilters{})
	if err != nil {
		t.Fatalf("listing physical objects: %v", err)
	}
	if len(objects) != 1 {
		t.Fatalf("expected 1 physical object, got %d", len(objects))
	}
	if objects[0].IsScenarioObject {
		t.Error("physical object should still be the public one")
	}

	// Deleting the shadow lifts the suppression and the public geometry
	// reappears untouched.
	if err := editor.DeleteEntity(ctx, overlay.Geometries,
		f.scenarioID, f.projectID, newID, true); err != nil {
		t.Fatalf("deleting shadow: %v", err)
	}
	items, err = reader.ListGeometries(ctx, f.scenarioID, scenario.GeometryFilters{})
	if err != nil {
		t.Fatalf("listing geometries after delete: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("expected 1 geometry after delete, got %d", len(items))
	}
	if items[0].IsScenarioObject {
		t.Error("geometry should be public again after shadow delete")
	}
	if items[0].Address == nil || *items[0].Address != "Old Park Lane 1" {
		t.Errorf("expected original address back, got %v", items[0].Address)
	}
}

func TestFunctionalZoneCopy(t *testing.T) {
	pool := startPostGIS(t)
	f := seed(t, pool)
	ctx := context.Background()

	engine := scenario.NewEngine(scenario.Config{}, nil, nil)
	err := db.WithTx(ctx, pool, func(tx *sql.Tx) error {
		return engine.CopyFunctionalZones(ctx, tx, f.scenarioID, f.projectID)
	})
	if err != nil {
		t.Fatalf("copying functional zones: %v", err)
	}

	reader := scenario.NewReader(pool, scenario.NewPostgresFunctionDictionary(pool), scenario.NewPostgresTerritoryHierarchy(pool), nil, nil)
	zones, err := reader.ListFunctionalZones(ctx, f.scenarioID)
	if err != nil {
		t.Fatalf("listing functional zones: %v", err)
	}
	if len(zones) != 1 {
		t.Fatalf("expected 1 functional zone, got %d", len(zones))
	}
	if zones[0].TypeName != "recreational" {
		t.Errorf("expected zone type name recreational, got %s", zones[0].TypeName)
	}
	if zones[0].Year == nil || *zones[0].Year != 2024 {
		t.Errorf("expected zone year 2024, got %v", zones[0].Year)
	}

	// The copy is clipped to the project polygon: its area can be at most
	// the 5x5 mask even though the source zone is 6x6.
	var area float64
	err = pool.QueryRowContext(ctx,
		`SELECT ST_Area(geometry) FROM projects_functional_zones WHERE scenario_id = $1`,
		f.scenarioID).Scan(&area)
	if err != nil {
		t.Fatalf("querying zone area: %v", err)
	}
	if area > 25.0 {
		t.Errorf("zone should be clipped to the project polygon, area %f", area)
	}
}

func TestContextListings(t *testing.T) {
	pool := startPostGIS(t)
	f := seed(t, pool)
	ctx := context.Background()

	row := func(query string, args ...any) int64 {
		var id int64
		if err := pool.QueryRowContext(ctx, query, args...).Scan(&id); err != nil {
			t.Fatalf("seeding (%s): %v", query, err)
		}
		return id
	}

	// A second geometry in an unrelated territory must stay out of scope
	// even though the filters would otherwise admit it.
	otherID := row(`INSERT INTO territories_data (name, level, is_city, geometry)
		VALUES ('Far City', 4, true, ST_GeomFromText('POLYGON((100 100,110 100,110 110,100 110,100 100))', 4326))
		RETURNING territory_id`)
	geomID := row(`INSERT INTO object_geometries_data (territory_id, geometry, centre_point)
		VALUES ($1, ST_GeomFromText('POLYGON((101 101,102 101,102 102,101 102,101 101))', 4326),
		        ST_Centroid(ST_GeomFromText('POLYGON((101 101,102 101,102 102,101 102,101 101))', 4326)))
		RETURNING object_geometry_id`, otherID)
	poID := row(`INSERT INTO physical_objects_data (physical_object_type_id, name)
		SELECT physical_object_type_id, 'Far Park' FROM physical_object_types_dict LIMIT 1
		RETURNING physical_object_id`)
	row(`INSERT INTO urban_objects_data (object_geometry_id, physical_object_id)
		VALUES ($1, $2) RETURNING urban_object_id`, geomID, poID)

	// A district below the seeded city joins the scope through the
	// descendant closure.
	districtID := row(`INSERT INTO territories_data (parent_id, name, level, is_city, geometry)
		VALUES ($1, 'Harbour District', 5, false, ST_GeomFromText('POLYGON((3 3,4 3,4 4,3 4,3 3))', 4326))
		RETURNING territory_id`, f.territoryID)
	dGeomID := row(`INSERT INTO object_geometries_data (territory_id, geometry, centre_point)
		VALUES ($1, ST_GeomFromText('POLYGON((3 3,4 3,4 4,3 4,3 3))', 4326),
		        ST_Centroid(ST_GeomFromText('POLYGON((3 3,4 3,4 4,3 4,3 3))', 4326)))
		RETURNING object_geometry_id`, districtID)
	dpoID := row(`INSERT INTO physical_objects_data (physical_object_type_id, name)
		SELECT physical_object_type_id, 'Harbour Warehouse' FROM physical_object_types_dict LIMIT 1
		RETURNING physical_object_id`)
	row(`INSERT INTO urban_objects_data (object_geometry_id, physical_object_id)
		VALUES ($1, $2) RETURNING urban_object_id`, dGeomID, dpoID)

	reader := scenario.NewReader(pool, scenario.NewPostgresFunctionDictionary(pool), scenario.NewPostgresTerritoryHierarchy(pool), nil, nil)

	items, err := reader.ListContextGeometries(ctx, []int64{f.territoryID}, scenario.GeometryFilters{})
	if err != nil {
		t.Fatalf("listing context geometries: %v", err)
	}
	got := map[int64]bool{}
	for _, item := range items {
		got[item.ID] = true
	}
	if !got[f.objectGeometryID] {
		t.Errorf("expected context to include the city geometry %d", f.objectGeometryID)
	}
	if !got[dGeomID] {
		t.Errorf("expected context to include the district geometry %d", dGeomID)
	}
	if got[geomID] {
		t.Errorf("context must not include geometry %d from an unrelated territory", geomID)
	}
}
