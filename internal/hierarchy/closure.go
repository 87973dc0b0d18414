// Package hierarchy implements iterative fixed-point closure over adjacency
// relations. It replaces unbounded recursive SQL traversal for territory and
// function-dictionary hierarchies so depth and cost stay visible.
package hierarchy

import (
	"errors"
	"sort"
)

// ErrClosureTooLarge is returned when expansion exceeds maxNodes. The domain
// guarantees acyclic data, but traversal must not loop forever on a
// malformed parent chain.
var ErrClosureTooLarge = errors.New("hierarchy closure exceeded node limit")

// maxNodes caps the size of any closure. Real city hierarchies stay under a
// few thousand nodes.
const maxNodes = 1 << 16

// ChildrenFunc returns the direct successors of the given node ids. It is
// called with batches of newly discovered ids, never with an empty slice.
type ChildrenFunc func(ids []int64) ([]int64, error)

// Expand computes the closure of start under children: the set of all nodes
// reachable from start, inclusive. Revisited nodes are ignored, so cyclic
// data terminates instead of looping. The result is sorted ascending.
func Expand(start []int64, children ChildrenFunc) ([]int64, error) {
	seen := make(map[int64]struct{}, len(start))
	frontier := make([]int64, 0, len(start))
	for _, id := range start {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		frontier = append(frontier, id)
	}

	for len(frontier) > 0 {
		next, err := children(frontier)
		if err != nil {
			return nil, err
		}
		frontier = frontier[:0]
		for _, id := range next {
			if _, ok := seen[id]; ok {
				continue
			}
			if len(seen) >= maxNodes {
				return nil, ErrClosureTooLarge
			}
			seen[id] = struct{}{}
			frontier = append(frontier, id)
		}
	}

	out := make([]int64, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

// Union merges two sorted id slices, deduplicating.
func Union(a, b []int64) []int64 {
	seen := make(map[int64]struct{}, len(a)+len(b))
	out := make([]int64, 0, len(a)+len(b))
	for _, s := range [][]int64{a, b} {
		for _, id := range s {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			out = append(out, id)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
