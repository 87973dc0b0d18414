package scenario

import (
	"context"
	"errors"
	"testing"

	"github.com/onnwee/urbanscape/internal/apperr"
)

func TestPhysicalObjectFiltersValidate(t *testing.T) {
	typeID, fnID := int64(1), int64(2)
	tests := []struct {
		name    string
		f       PhysicalObjectFilters
		wantErr bool
	}{
		{"empty", PhysicalObjectFilters{}, false},
		{"type only", PhysicalObjectFilters{TypeID: &typeID}, false},
		{"function only", PhysicalObjectFilters{FunctionID: &fnID}, false},
		{"both", PhysicalObjectFilters{TypeID: &typeID, FunctionID: &fnID}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.f.Validate()
			if tt.wantErr {
				var invalid *apperr.InvalidRequest
				if !errors.As(err, &invalid) {
					t.Fatalf("Validate() = %v, want InvalidRequest", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Validate() = %v, want nil", err)
			}
		})
	}
}

func TestServiceFiltersValidate(t *testing.T) {
	typeID, fnID := int64(1), int64(2)
	if err := (ServiceFilters{TypeID: &typeID, UrbanFunctionID: &fnID}).Validate(); err == nil {
		t.Error("both filters set should be rejected")
	}
	if err := (ServiceFilters{TypeID: &typeID}).Validate(); err != nil {
		t.Errorf("single filter rejected: %v", err)
	}
}

func TestExpandPhysicalObjectFunction(t *testing.T) {
	dict := &InMemoryFunctionDictionary{
		PhysicalObjectChildren: map[int64][]int64{
			1: {2, 3},
			3: {4},
		},
	}
	got, err := ExpandPhysicalObjectFunction(context.Background(), dict, 1)
	if err != nil {
		t.Fatalf("ExpandPhysicalObjectFunction: %v", err)
	}
	want := []int64{1, 2, 3, 4}
	if len(got) != len(want) {
		t.Fatalf("expanded to %v, want %v", got, want)
	}
	for i, id := range want {
		if got[i] != id {
			t.Errorf("expanded[%d] = %d, want %d", i, got[i], id)
		}
	}
}

func TestExpandUrbanFunctionLeaf(t *testing.T) {
	dict := &InMemoryFunctionDictionary{}
	got, err := ExpandUrbanFunction(context.Background(), dict, 7)
	if err != nil {
		t.Fatalf("ExpandUrbanFunction: %v", err)
	}
	if len(got) != 1 || got[0] != 7 {
		t.Errorf("leaf expansion = %v, want [7]", got)
	}
}
