// Package overlay decides what a caller-supplied identifier refers to
// inside a scenario: a public record, a scenario-local record, or a public
// record already shadowed by a scenario-local copy. Every mutating
// operation on a geometry, physical object or service runs this check
// first, inside the same transaction as the write that follows.
package overlay

// Kind describes one of the three entity kinds making up an urban object.
// The descriptor carries every table and column name the copy-on-write
// machinery needs, so bootstrap, promotion and shadow materialization share
// one generic implementation instead of three hand-written ones.
type Kind struct {
	// Name is the human-readable entity kind used in error values.
	Name string

	// PublicTable is the immutable shared-dataset table.
	PublicTable string

	// ScenarioTable is the per-scenario shadow table.
	ScenarioTable string

	// IDColumn names the primary identifier in both tables.
	IDColumn string

	// ShadowColumn names the scenario-table column pointing at the public
	// source row; non-null marks the row as a shadow.
	ShadowColumn string

	// JoinLocalColumn and JoinPublicColumn name the mutually exclusive
	// slot columns in the scenario join table.
	JoinLocalColumn  string
	JoinPublicColumn string

	// CopyColumns are the attribute columns duplicated when a row is
	// copied between the public and scenario tables (identifier and
	// shadow pointer excluded).
	CopyColumns []string
}

// The three entity kinds glued together by an urban object join row.
var (
	Geometries = Kind{
		Name:             "object geometry",
		PublicTable:      "object_geometries_data",
		ScenarioTable:    "projects_object_geometries_data",
		IDColumn:         "object_geometry_id",
		ShadowColumn:     "public_object_geometry_id",
		JoinLocalColumn:  "object_geometry_id",
		JoinPublicColumn: "public_object_geometry_id",
		CopyColumns:      []string{"territory_id", "geometry", "centre_point", "address", "osm_id"},
	}

	PhysicalObjects = Kind{
		Name:             "physical object",
		PublicTable:      "physical_objects_data",
		ScenarioTable:    "projects_physical_objects_data",
		IDColumn:         "physical_object_id",
		ShadowColumn:     "public_physical_object_id",
		JoinLocalColumn:  "physical_object_id",
		JoinPublicColumn: "public_physical_object_id",
		CopyColumns:      []string{"physical_object_type_id", "name", "properties"},
	}

	Services = Kind{
		Name:             "service",
		PublicTable:      "services_data",
		ScenarioTable:    "projects_services_data",
		IDColumn:         "service_id",
		ShadowColumn:     "public_service_id",
		JoinLocalColumn:  "service_id",
		JoinPublicColumn: "public_service_id",
		CopyColumns:      []string{"service_type_id", "name", "capacity", "is_capacity_real", "properties"},
	}
)
