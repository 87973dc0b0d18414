// Package project implements the project lifecycle: creation with context
// computation and dataset bootstrap, scenario promotion from regional
// projects, access control, and cascading deletion.
package project

import (
	"time"

	"github.com/paulmach/orb"
)

// BaseScenarioName is the default name given to a project's base scenario.
const BaseScenarioName = "Исходный пользовательский сценарий"

// Properties is the computed spatial context stored with each ordinary
// project. It is derived once at creation time from the live territory
// hierarchy and never recomputed.
type Properties struct {
	Territories []string `json:"territories"`
	Districts   []string `json:"districts"`
	Context     []int64  `json:"context"`
}

// Project is a planning workspace over a territory. Regional projects are
// region-level templates; ordinary projects carry their own polygon and a
// base scenario derived from the enclosing region's.
type Project struct {
	ID          int64
	UserID      string
	Name        string
	TerritoryID int64
	Description *string
	Public      bool
	IsRegional  bool
	IsCity      bool
	Properties  Properties
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// CreateInput carries the attributes of a new project. Geometry is the
// project's own polygon and is required for ordinary projects.
type CreateInput struct {
	Name        string
	TerritoryID int64
	Description *string
	Public      bool
	IsRegional  bool
	IsCity      bool
	Geometry    orb.Geometry
}

// UpdateInput replaces every mutable attribute of a project.
type UpdateInput struct {
	Name        string
	Description *string
	Public      bool
}

// PatchInput updates only the attributes that are set.
type PatchInput struct {
	Name        *string
	Description *string
	Public      *bool
}

// OrderBy names a sortable projects column.
type OrderBy string

// Sortable columns for listings.
const (
	OrderByCreatedAt OrderBy = "created_at"
	OrderByUpdatedAt OrderBy = "updated_at"
)

// ListFilters narrows and orders project listings.
type ListFilters struct {
	OnlyOwn        bool
	IsRegional     bool
	TerritoryID    *int64
	Name           *string
	CreatedAtAfter *time.Time
	OrderBy        OrderBy
	Descending     bool
}
