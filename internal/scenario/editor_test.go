package scenario

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/onnwee/urbanscape/internal/apperr"
	"github.com/onnwee/urbanscape/internal/db"
	"github.com/onnwee/urbanscape/internal/overlay"
)

func newTestEditor(resolver overlay.Resolver) *Editor {
	ed := NewEditor(nil, NewEngine(Config{}, nil, nil), nil)
	ed.newResolver = func(db.Querier) overlay.Resolver { return resolver }
	ed.runTx = func(ctx context.Context, fn func(q db.Querier) error) error {
		return fn(nil)
	}
	return ed
}

func TestUpdateEntityRejectsEmptyAttrs(t *testing.T) {
	ed := newTestEditor(overlay.NewInMemoryResolver())
	_, err := ed.UpdateEntity(context.Background(), overlay.Services, 1, 1, 5, false, nil)
	var invalid *apperr.InvalidRequest
	if !errors.As(err, &invalid) {
		t.Fatalf("got %v, want InvalidRequest", err)
	}
}

func TestUpdateEntityUnknownTarget(t *testing.T) {
	ed := newTestEditor(overlay.NewInMemoryResolver())
	_, err := ed.UpdateEntity(context.Background(), overlay.Services, 1, 1, 5, false, Attrs{"name": "x"})
	var nf *apperr.NotFound
	if !errors.As(err, &nf) {
		t.Fatalf("got %v, want NotFound", err)
	}
}

func TestUpdateEntityRejectsAlreadyShadowed(t *testing.T) {
	resolver := overlay.NewInMemoryResolver()
	resolver.AddPublic(overlay.Services, 5)
	resolver.AddScenario(overlay.Services, 1, 90, 5)
	ed := newTestEditor(resolver)

	_, err := ed.UpdateEntity(context.Background(), overlay.Services, 1, 1, 5, false, Attrs{"name": "x"})
	var dup *apperr.AlreadyExists
	if !errors.As(err, &dup) {
		t.Fatalf("got %v, want AlreadyExists", err)
	}
}

func TestDeleteEntityUnknownTarget(t *testing.T) {
	ed := newTestEditor(overlay.NewInMemoryResolver())
	err := ed.DeleteEntity(context.Background(), overlay.PhysicalObjects, 1, 1, 5, false)
	var nf *apperr.NotFound
	if !errors.As(err, &nf) {
		t.Fatalf("got %v, want NotFound", err)
	}
}

func TestBuildLocalUpdate(t *testing.T) {
	query, args, err := buildLocalUpdate(overlay.Services, 9, Attrs{
		"name":     "Клиника",
		"capacity": int64(120),
	})
	if err != nil {
		t.Fatalf("buildLocalUpdate: %v", err)
	}
	if !strings.HasPrefix(query, "UPDATE projects_services_data SET ") {
		t.Errorf("query = %q", query)
	}
	if !strings.Contains(query, "updated_at = now()") {
		t.Errorf("query must bump updated_at: %q", query)
	}
	if !strings.Contains(query, "WHERE service_id = $1") {
		t.Errorf("query = %q", query)
	}
	if len(args) != 3 || args[0] != int64(9) {
		t.Errorf("args = %v", args)
	}
}

func TestBuildLocalUpdateUnknownColumn(t *testing.T) {
	_, _, err := buildLocalUpdate(overlay.Services, 9, Attrs{"owner": "x"})
	var invalid *apperr.InvalidRequest
	if !errors.As(err, &invalid) {
		t.Fatalf("got %v, want InvalidRequest", err)
	}
}
