package territory

import (
	"context"
	"sort"
)

// Repository defines the territory data operations the resolver needs. The
// adjacency accessors take id batches so closure expansion issues one query
// per level instead of one per node.
type Repository interface {
	// GetByID retrieves a territory by id, or nil when absent.
	GetByID(ctx context.Context, id int64) (*Territory, error)

	// ChildrenOf returns the ids of all direct children of the given ids.
	ChildrenOf(ctx context.Context, ids []int64) ([]int64, error)

	// ParentsOf returns the ids of the direct parents of the given ids.
	ParentsOf(ctx context.Context, ids []int64) ([]int64, error)

	// GetMany retrieves full rows for the given ids, sorted by id.
	GetMany(ctx context.Context, ids []int64) ([]Territory, error)
}

// InMemoryRepository is a map-backed Repository used for testing and
// development.
type InMemoryRepository struct {
	byID     map[int64]Territory
	children map[int64][]int64
}

// NewInMemoryRepository creates an in-memory repository over the given
// territories.
func NewInMemoryRepository(territories []Territory) *InMemoryRepository {
	r := &InMemoryRepository{
		byID:     make(map[int64]Territory, len(territories)),
		children: make(map[int64][]int64),
	}
	for _, t := range territories {
		r.byID[t.ID] = t
		if t.ParentID != nil {
			r.children[*t.ParentID] = append(r.children[*t.ParentID], t.ID)
		}
	}
	return r
}

// GetByID retrieves a territory by id, or nil when absent.
func (r *InMemoryRepository) GetByID(_ context.Context, id int64) (*Territory, error) {
	t, ok := r.byID[id]
	if !ok {
		return nil, nil
	}
	return &t, nil
}

// ChildrenOf returns the ids of all direct children of the given ids.
func (r *InMemoryRepository) ChildrenOf(_ context.Context, ids []int64) ([]int64, error) {
	var out []int64
	for _, id := range ids {
		out = append(out, r.children[id]...)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

// ParentsOf returns the ids of the direct parents of the given ids.
func (r *InMemoryRepository) ParentsOf(_ context.Context, ids []int64) ([]int64, error) {
	var out []int64
	for _, id := range ids {
		if t, ok := r.byID[id]; ok && t.ParentID != nil {
			out = append(out, *t.ParentID)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

// GetMany retrieves full rows for the given ids, sorted by id.
func (r *InMemoryRepository) GetMany(_ context.Context, ids []int64) ([]Territory, error) {
	out := make([]Territory, 0, len(ids))
	for _, id := range ids {
		if t, ok := r.byID[id]; ok {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}
