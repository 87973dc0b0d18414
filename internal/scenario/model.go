// Package scenario implements the copy-on-write engine and the merge
// reader for project scenarios: scenario-local shadow rows layered over
// the immutable public dataset, joined through the scenario urban-object
// table and read back as one unified view.
package scenario

import (
	"encoding/json"
	"time"
)

// Scenario is a project-scoped overlay workspace. Exactly one scenario per
// ordinary project has IsBased set; ParentID points at the regional
// scenario it was derived from.
type Scenario struct {
	ID        int64
	ProjectID int64
	Name      string
	IsBased   bool
	ParentID  *int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// GeometryItem is one geometry in a merged scenario view. Geometry and
// CentrePoint are GeoJSON, serialized by the database.
type GeometryItem struct {
	ID               int64           `json:"object_geometry_id"`
	TerritoryID      int64           `json:"territory_id"`
	TerritoryName    string          `json:"territory_name"`
	Geometry         json.RawMessage `json:"geometry"`
	CentrePoint      json.RawMessage `json:"centre_point"`
	Address          *string         `json:"address"`
	OSMID            *string         `json:"osm_id"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
	IsScenarioObject bool            `json:"is_scenario_object"`
}

// PhysicalObjectItem is one physical object in a merged scenario view.
type PhysicalObjectItem struct {
	ID               int64           `json:"physical_object_id"`
	TypeID           int64           `json:"physical_object_type_id"`
	TypeName         string          `json:"physical_object_type_name"`
	FunctionID       *int64          `json:"physical_object_function_id"`
	FunctionName     *string         `json:"physical_object_function_name"`
	Name             *string         `json:"name"`
	Properties       json.RawMessage `json:"properties"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
	IsScenarioObject bool            `json:"is_scenario_object"`
}

// ServiceItem is one service in a merged scenario view.
type ServiceItem struct {
	ID               int64           `json:"service_id"`
	TypeID           int64           `json:"service_type_id"`
	TypeName         string          `json:"service_type_name"`
	UrbanFunctionID  *int64          `json:"urban_function_id"`
	Name             *string         `json:"name"`
	Capacity         *int64          `json:"capacity"`
	IsCapacityReal   *bool           `json:"is_capacity_real"`
	Properties       json.RawMessage `json:"properties"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
	IsScenarioObject bool            `json:"is_scenario_object"`
}

// GeometryWithObjects groups a geometry with the deduplicated physical
// objects and services attached to it through join rows.
type GeometryWithObjects struct {
	GeometryItem
	PhysicalObjects []PhysicalObjectItem `json:"physical_objects"`
	Services        []ServiceItem        `json:"services"`
}
