// Package territory provides the territory hierarchy model and resolver:
// ancestor/descendant closures over the parent chain and the spatial
// context computation used to seed project properties.
package territory

import (
	"github.com/paulmach/orb"
)

// Territory is one node of the territorial hierarchy. The parent chain is
// acyclic and terminates at a node with a nil ParentID; Level grows
// downward from the root.
type Territory struct {
	ID       int64
	ParentID *int64
	Name     string
	Level    int
	IsCity   bool
	Geometry orb.Geometry
}

// Context is the computed spatial context of a project territory:
// "territories" and "districts" are names of intersecting divisions one and
// two levels below the city level; "context" holds ids of non-city
// divisions one level below the city level that fall inside the buffered
// project geometry.
type Context struct {
	Territories []string `json:"territories"`
	Districts   []string `json:"districts"`
	Context     []int64  `json:"context"`
}

// DefaultBufferMeters is the buffer distance used to find context
// territories around a project geometry.
const DefaultBufferMeters = 3000.0
