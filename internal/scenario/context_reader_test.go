package scenario

import (
	"context"
	"reflect"
	"strings"
	"testing"
)

// contextTree builds a small hierarchy: region 1 holds city 2, the city
// holds districts 3 and 4, district 3 holds block 5.
func contextTree() *InMemoryTerritoryHierarchy {
	return &InMemoryTerritoryHierarchy{
		Children: map[int64][]int64{
			1: {2},
			2: {3, 4},
			3: {5},
		},
		Parents: map[int64][]int64{
			2: {1},
			3: {2},
			4: {2},
			5: {3},
		},
	}
}

func TestExpandRelatedTerritories(t *testing.T) {
	tests := []struct {
		name    string
		context []int64
		want    []int64
	}{
		{
			name:    "mid level collects ancestors and descendants",
			context: []int64{3},
			want:    []int64{1, 2, 3, 5},
		},
		{
			name:    "leaf collects the parent chain only",
			context: []int64{4},
			want:    []int64{1, 2, 4},
		},
		{
			name:    "multiple context territories merge their closures",
			context: []int64{4, 5},
			want:    []int64{1, 2, 3, 4, 5},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExpandRelatedTerritories(context.Background(), contextTree(), tt.context)
			if err != nil {
				t.Fatalf("ExpandRelatedTerritories: %v", err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("ExpandRelatedTerritories(%v) = %v, want %v", tt.context, got, tt.want)
			}
		})
	}
}

func TestContextScopeTakesPrecomputedClosure(t *testing.T) {
	// The related closure is expanded in process and handed to the scope
	// query as an array parameter; the query itself must stay a plain
	// lookup with a bounded mask.
	if strings.Contains(contextScopeSQL, "RECURSIVE") {
		t.Fatal("context scope query must not traverse the hierarchy recursively")
	}
	if !strings.Contains(contextScopeSQL, "ANY($2)") {
		t.Fatal("context scope query must filter by the precomputed related set")
	}
}
