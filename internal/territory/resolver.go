package territory

import (
	"context"
	"fmt"
	"iter"

	"github.com/onnwee/urbanscape/internal/apperr"
	"github.com/onnwee/urbanscape/internal/geometry"
	"github.com/onnwee/urbanscape/internal/hierarchy"
)

// Resolver computes hierarchy closures and spatial context over a territory
// repository. Geometry predicates are delegated to the Ops implementation.
type Resolver struct {
	repo Repository
	geo  geometry.Ops
}

// NewResolver creates a Resolver.
func NewResolver(repo Repository, geo geometry.Ops) *Resolver {
	return &Resolver{repo: repo, geo: geo}
}

// Descendants yields the ids of the subtree rooted at rootID, inclusive,
// discovered level by level. Each id is yielded once, so the sequence is
// finite even on malformed cyclic data.
func (r *Resolver) Descendants(ctx context.Context, rootID int64) iter.Seq2[int64, error] {
	return r.traverse(ctx, rootID, r.repo.ChildrenOf)
}

// Ancestors yields the ids on the parent chain from rootID to the root,
// inclusive of rootID.
func (r *Resolver) Ancestors(ctx context.Context, rootID int64) iter.Seq2[int64, error] {
	return r.traverse(ctx, rootID, r.repo.ParentsOf)
}

func (r *Resolver) traverse(ctx context.Context, rootID int64, step func(context.Context, []int64) ([]int64, error)) iter.Seq2[int64, error] {
	return func(yield func(int64, error) bool) {
		if !yield(rootID, nil) {
			return
		}
		seen := map[int64]struct{}{rootID: {}}
		frontier := []int64{rootID}
		for len(frontier) > 0 {
			next, err := step(ctx, frontier)
			if err != nil {
				yield(0, err)
				return
			}
			frontier = frontier[:0]
			for _, id := range next {
				if _, ok := seen[id]; ok {
					continue
				}
				seen[id] = struct{}{}
				if !yield(id, nil) {
					return
				}
				frontier = append(frontier, id)
			}
		}
	}
}

// Related returns the sorted union of ancestors and descendants of id.
func (r *Resolver) Related(ctx context.Context, id int64) ([]int64, error) {
	down, err := hierarchy.Expand([]int64{id}, func(ids []int64) ([]int64, error) {
		return r.repo.ChildrenOf(ctx, ids)
	})
	if err != nil {
		return nil, fmt.Errorf("expanding descendants of %d: %w", id, err)
	}
	up, err := hierarchy.Expand([]int64{id}, func(ids []int64) ([]int64, error) {
		return r.repo.ParentsOf(ctx, ids)
	})
	if err != nil {
		return nil, fmt.Errorf("expanding ancestors of %d: %w", id, err)
	}
	return hierarchy.Union(down, up), nil
}

// ComputeContext derives the spatial context of the given territory: the
// names of intersecting divisions one and two levels below the hierarchy's
// city level, and the ids of non-city divisions one level below the city
// level that intersect a bufferMeters buffer around the territory geometry.
// The result is deterministic for identical territory data: all three lists
// are ordered by territory id.
func (r *Resolver) ComputeContext(ctx context.Context, territoryID int64, bufferMeters float64) (Context, error) {
	out := Context{Territories: []string{}, Districts: []string{}, Context: []int64{}}

	root, err := r.repo.GetByID(ctx, territoryID)
	if err != nil {
		return out, fmt.Errorf("loading territory %d: %w", territoryID, err)
	}
	if root == nil {
		return out, apperr.NewNotFound("territory", territoryID)
	}

	relatedIDs, err := r.Related(ctx, territoryID)
	if err != nil {
		return out, err
	}
	related, err := r.repo.GetMany(ctx, relatedIDs)
	if err != nil {
		return out, fmt.Errorf("loading related territories: %w", err)
	}

	// The city level is the deepest city-flagged node in the hierarchy
	// around the project territory. Without one there is no frame of
	// reference and the context stays empty.
	cityLevel, found := 0, false
	for _, t := range related {
		if t.IsCity && (!found || t.Level > cityLevel) {
			cityLevel = t.Level
			found = true
		}
	}
	if !found {
		return out, nil
	}

	buffered := root.Geometry
	if bufferMeters > 0 {
		buffered, err = r.geo.Buffer(ctx, root.Geometry, bufferMeters)
		if err != nil {
			return out, fmt.Errorf("buffering project geometry: %w", err)
		}
	}

	for _, t := range related {
		if t.Geometry == nil {
			continue
		}
		switch t.Level {
		case cityLevel - 1:
			if !t.IsCity {
				hit, err := r.geo.Intersects(ctx, t.Geometry, root.Geometry)
				if err != nil {
					return out, fmt.Errorf("intersecting territory %d: %w", t.ID, err)
				}
				if hit {
					out.Territories = append(out.Territories, t.Name)
				}
				hit, err = r.geo.Intersects(ctx, t.Geometry, buffered)
				if err != nil {
					return out, fmt.Errorf("intersecting buffered territory %d: %w", t.ID, err)
				}
				if hit {
					out.Context = append(out.Context, t.ID)
				}
			}
		case cityLevel - 2:
			hit, err := r.geo.Intersects(ctx, t.Geometry, root.Geometry)
			if err != nil {
				return out, fmt.Errorf("intersecting district %d: %w", t.ID, err)
			}
			if hit {
				out.Districts = append(out.Districts, t.Name)
			}
		}
	}
	return out, nil
}
