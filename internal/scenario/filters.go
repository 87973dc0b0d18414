package scenario

import (
	"context"
	"fmt"

	"github.com/lib/pq"

	"github.com/onnwee/urbanscape/internal/apperr"
	"github.com/onnwee/urbanscape/internal/db"
	"github.com/onnwee/urbanscape/internal/hierarchy"
)

// GeometryFilters narrows geometry reads to objects referencing a
// particular physical object or service.
type GeometryFilters struct {
	PhysicalObjectID *int64
	ServiceID        *int64
}

// PhysicalObjectFilters narrows physical-object reads. TypeID and
// FunctionID are mutually exclusive: a type already implies its function.
type PhysicalObjectFilters struct {
	TypeID     *int64
	FunctionID *int64
}

// Validate rejects conflicting filter combinations.
func (f PhysicalObjectFilters) Validate() error {
	if f.TypeID != nil && f.FunctionID != nil {
		return apperr.NewInvalidRequest(
			"physical_object_type_id and physical_object_function_id cannot be given together")
	}
	return nil
}

// ServiceFilters narrows service reads. TypeID and UrbanFunctionID are
// mutually exclusive.
type ServiceFilters struct {
	TypeID          *int64
	UrbanFunctionID *int64
}

// Validate rejects conflicting filter combinations.
func (f ServiceFilters) Validate() error {
	if f.TypeID != nil && f.UrbanFunctionID != nil {
		return apperr.NewInvalidRequest(
			"service_type_id and urban_function_id cannot be given together")
	}
	return nil
}

// FunctionDictionary resolves the child functions of function-dictionary
// nodes, for expanding a function filter into its whole subtree.
type FunctionDictionary interface {
	// ChildPhysicalObjectFunctions returns direct children in the
	// physical-object function dictionary.
	ChildPhysicalObjectFunctions(ctx context.Context, ids []int64) ([]int64, error)

	// ChildUrbanFunctions returns direct children in the urban function
	// dictionary.
	ChildUrbanFunctions(ctx context.Context, ids []int64) ([]int64, error)
}

// ExpandPhysicalObjectFunction returns functionID and all its descendants.
func ExpandPhysicalObjectFunction(ctx context.Context, dict FunctionDictionary, functionID int64) ([]int64, error) {
	return hierarchy.Expand([]int64{functionID}, func(ids []int64) ([]int64, error) {
		return dict.ChildPhysicalObjectFunctions(ctx, ids)
	})
}

// ExpandUrbanFunction returns functionID and all its descendants.
func ExpandUrbanFunction(ctx context.Context, dict FunctionDictionary, functionID int64) ([]int64, error) {
	return hierarchy.Expand([]int64{functionID}, func(ids []int64) ([]int64, error) {
		return dict.ChildUrbanFunctions(ctx, ids)
	})
}

// PostgresFunctionDictionary reads the function dictionaries from the
// database.
type PostgresFunctionDictionary struct {
	q db.Querier
}

// NewPostgresFunctionDictionary creates a database-backed dictionary.
func NewPostgresFunctionDictionary(q db.Querier) *PostgresFunctionDictionary {
	return &PostgresFunctionDictionary{q: q}
}

// ChildPhysicalObjectFunctions returns direct children in
// physical_object_functions_dict.
func (d *PostgresFunctionDictionary) ChildPhysicalObjectFunctions(ctx context.Context, ids []int64) ([]int64, error) {
	return queryIDColumn(ctx, d.q,
		`SELECT physical_object_function_id FROM physical_object_functions_dict
		 WHERE parent_id = ANY($1) ORDER BY physical_object_function_id`, ids)
}

// ChildUrbanFunctions returns direct children in urban_functions_dict.
func (d *PostgresFunctionDictionary) ChildUrbanFunctions(ctx context.Context, ids []int64) ([]int64, error) {
	return queryIDColumn(ctx, d.q,
		`SELECT urban_function_id FROM urban_functions_dict
		 WHERE parent_id = ANY($1) ORDER BY urban_function_id`, ids)
}

// queryIDColumn runs a single-column id query with an id-array parameter.
func queryIDColumn(ctx context.Context, q db.Querier, query string, ids []int64) ([]int64, error) {
	rows, err := q.QueryContext(ctx, query, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("querying id column: %w", err)
	}
	defer rows.Close()

	var out []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning id: %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// InMemoryFunctionDictionary is a map-backed FunctionDictionary for tests.
type InMemoryFunctionDictionary struct {
	PhysicalObjectChildren map[int64][]int64
	UrbanChildren          map[int64][]int64
}

// ChildPhysicalObjectFunctions returns direct children in the
// physical-object function dictionary.
func (d *InMemoryFunctionDictionary) ChildPhysicalObjectFunctions(_ context.Context, ids []int64) ([]int64, error) {
	return expandMap(d.PhysicalObjectChildren, ids), nil
}

// ChildUrbanFunctions returns direct children in the urban function
// dictionary.
func (d *InMemoryFunctionDictionary) ChildUrbanFunctions(_ context.Context, ids []int64) ([]int64, error) {
	return expandMap(d.UrbanChildren, ids), nil
}

func expandMap(adj map[int64][]int64, ids []int64) []int64 {
	var out []int64
	for _, id := range ids {
		out = append(out, adj[id]...)
	}
	return out
}
