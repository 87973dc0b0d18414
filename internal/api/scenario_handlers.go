package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/paulmach/orb/geojson"

	"github.com/onnwee/urbanscape/internal/auth"
	"github.com/onnwee/urbanscape/internal/middleware"
	"github.com/onnwee/urbanscape/internal/overlay"
	"github.com/onnwee/urbanscape/internal/project"
	"github.com/onnwee/urbanscape/internal/scenario"
)

// ScenarioResponse is the JSON shape of a scenario.
type ScenarioResponse struct {
	ID        int64     `json:"scenario_id"`
	ProjectID int64     `json:"project_id"`
	Name      string    `json:"name"`
	IsBased   bool      `json:"is_based"`
	ParentID  *int64    `json:"parent_id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// UpdateEntityResponse reports the row an entity edit landed on. Editing a
// public entity materializes a scenario-local shadow, so the resulting id
// can differ from the one addressed.
type UpdateEntityResponse struct {
	ID               int64 `json:"id"`
	IsScenarioObject bool  `json:"is_scenario_object"`
}

// ScenarioAccessor gates scenario reads and edits through project access
// rules.
type ScenarioAccessor interface {
	ScenarioAccess(ctx context.Context, user *auth.User, scenarioID int64, toEdit bool) (*project.Project, *scenario.Scenario, error)
}

// ScenarioReader serves the merged and context views of a scenario.
type ScenarioReader interface {
	ListGeometries(ctx context.Context, scenarioID int64, f scenario.GeometryFilters) ([]scenario.GeometryItem, error)
	ListPhysicalObjects(ctx context.Context, scenarioID int64, f scenario.PhysicalObjectFilters) ([]scenario.PhysicalObjectItem, error)
	ListServices(ctx context.Context, scenarioID int64, f scenario.ServiceFilters) ([]scenario.ServiceItem, error)
	ListGeometriesWithAllObjects(ctx context.Context, scenarioID int64) ([]scenario.GeometryWithObjects, error)
	ListFunctionalZones(ctx context.Context, scenarioID int64) ([]scenario.FunctionalZoneItem, error)
	ListContextGeometries(ctx context.Context, contextIDs []int64, f scenario.GeometryFilters) ([]scenario.GeometryItem, error)
	ListContextPhysicalObjects(ctx context.Context, contextIDs []int64, f scenario.PhysicalObjectFilters) ([]scenario.PhysicalObjectItem, error)
	ListContextServices(ctx context.Context, contextIDs []int64, f scenario.ServiceFilters) ([]scenario.ServiceItem, error)
}

// ScenarioEditor applies copy-on-write edits to scenario entities.
type ScenarioEditor interface {
	UpdateEntity(ctx context.Context, k overlay.Kind, scenarioID, projectID, entityID int64, isScenarioObject bool, attrs scenario.Attrs) (int64, error)
	DeleteEntity(ctx context.Context, k overlay.Kind, scenarioID, projectID, entityID int64, isScenarioObject bool) error
}

// ScenarioHandlers holds dependencies for scenario HTTP handlers. Access
// control goes through the project service; reads through the merge
// reader; writes through the copy-on-write editor.
type ScenarioHandlers struct {
	svc    ScenarioAccessor
	reader ScenarioReader
	editor ScenarioEditor
}

// NewScenarioHandlers creates a new ScenarioHandlers instance.
func NewScenarioHandlers(svc ScenarioAccessor, reader ScenarioReader, editor ScenarioEditor) *ScenarioHandlers {
	return &ScenarioHandlers{svc: svc, reader: reader, editor: editor}
}

// Register wires the scenario routes onto mux.
func (h *ScenarioHandlers) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /scenarios/{id}", h.GetScenario)
	mux.HandleFunc("GET /scenarios/{id}/geometries", h.ListGeometries)
	mux.HandleFunc("GET /scenarios/{id}/physical_objects", h.ListPhysicalObjects)
	mux.HandleFunc("GET /scenarios/{id}/services", h.ListServices)
	mux.HandleFunc("GET /scenarios/{id}/geometries_with_all_objects", h.ListGeometriesWithAllObjects)
	mux.HandleFunc("GET /scenarios/{id}/functional_zones", h.ListFunctionalZones)
	mux.HandleFunc("GET /scenarios/{id}/context/geometries", h.ListContextGeometries)
	mux.HandleFunc("GET /scenarios/{id}/context/physical_objects", h.ListContextPhysicalObjects)
	mux.HandleFunc("GET /scenarios/{id}/context/services", h.ListContextServices)
	mux.HandleFunc("PATCH /scenarios/{id}/{kind}/{entity_id}", h.UpdateEntity)
	mux.HandleFunc("DELETE /scenarios/{id}/{kind}/{entity_id}", h.DeleteEntity)
}

// entityKind maps a path segment to its overlay kind.
func entityKind(segment string) (overlay.Kind, bool) {
	switch segment {
	case "geometries":
		return overlay.Geometries, true
	case "physical_objects":
		return overlay.PhysicalObjects, true
	case "services":
		return overlay.Services, true
	default:
		return overlay.Kind{}, false
	}
}

// readAccess resolves the scenario for a read, applying project access
// rules. Returns nil if access was denied and the error already written.
func (h *ScenarioHandlers) readAccess(w http.ResponseWriter, r *http.Request) (*project.Project, *scenario.Scenario, bool) {
	return h.access(w, r, false)
}

func (h *ScenarioHandlers) editAccess(w http.ResponseWriter, r *http.Request) (*project.Project, *scenario.Scenario, bool) {
	return h.access(w, r, true)
}

func (h *ScenarioHandlers) access(w http.ResponseWriter, r *http.Request, toEdit bool) (*project.Project, *scenario.Scenario, bool) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return nil, nil, false
	}
	p, sc, err := h.svc.ScenarioAccess(r.Context(), auth.UserFromContext(r.Context()), id, toEdit)
	if err != nil {
		WriteDomainError(w, r, err)
		return nil, nil, false
	}
	return p, sc, true
}

// GetScenario handles GET /scenarios/{id}.
func (h *ScenarioHandlers) GetScenario(w http.ResponseWriter, r *http.Request) {
	_, sc, ok := h.readAccess(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, ScenarioResponse{
		ID:        sc.ID,
		ProjectID: sc.ProjectID,
		Name:      sc.Name,
		IsBased:   sc.IsBased,
		ParentID:  sc.ParentID,
		CreatedAt: sc.CreatedAt,
		UpdatedAt: sc.UpdatedAt,
	})
}

// queryID parses an optional integer query parameter.
func queryID(w http.ResponseWriter, r *http.Request, name string) (*int64, bool) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return nil, true
	}
	id, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeValidation)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, name+" must be an integer")
		return nil, false
	}
	return &id, true
}

func geometryFilters(w http.ResponseWriter, r *http.Request) (scenario.GeometryFilters, bool) {
	var f scenario.GeometryFilters
	var ok bool
	if f.PhysicalObjectID, ok = queryID(w, r, "physical_object_id"); !ok {
		return f, false
	}
	if f.ServiceID, ok = queryID(w, r, "service_id"); !ok {
		return f, false
	}
	return f, true
}

func physicalObjectFilters(w http.ResponseWriter, r *http.Request) (scenario.PhysicalObjectFilters, bool) {
	var f scenario.PhysicalObjectFilters
	var ok bool
	if f.TypeID, ok = queryID(w, r, "physical_object_type_id"); !ok {
		return f, false
	}
	if f.FunctionID, ok = queryID(w, r, "physical_object_function_id"); !ok {
		return f, false
	}
	return f, true
}

func serviceFilters(w http.ResponseWriter, r *http.Request) (scenario.ServiceFilters, bool) {
	var f scenario.ServiceFilters
	var ok bool
	if f.TypeID, ok = queryID(w, r, "service_type_id"); !ok {
		return f, false
	}
	if f.UrbanFunctionID, ok = queryID(w, r, "urban_function_id"); !ok {
		return f, false
	}
	return f, true
}

// ListGeometries handles GET /scenarios/{id}/geometries.
func (h *ScenarioHandlers) ListGeometries(w http.ResponseWriter, r *http.Request) {
	_, sc, ok := h.readAccess(w, r)
	if !ok {
		return
	}
	f, ok := geometryFilters(w, r)
	if !ok {
		return
	}
	items, err := h.reader.ListGeometries(r.Context(), sc.ID, f)
	if err != nil {
		WriteDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

// ListPhysicalObjects handles GET /scenarios/{id}/physical_objects.
func (h *ScenarioHandlers) ListPhysicalObjects(w http.ResponseWriter, r *http.Request) {
	_, sc, ok := h.readAccess(w, r)
	if !ok {
		return
	}
	f, ok := physicalObjectFilters(w, r)
	if !ok {
		return
	}
	items, err := h.reader.ListPhysicalObjects(r.Context(), sc.ID, f)
	if err != nil {
		WriteDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

// ListServices handles GET /scenarios/{id}/services.
func (h *ScenarioHandlers) ListServices(w http.ResponseWriter, r *http.Request) {
	_, sc, ok := h.readAccess(w, r)
	if !ok {
		return
	}
	f, ok := serviceFilters(w, r)
	if !ok {
		return
	}
	items, err := h.reader.ListServices(r.Context(), sc.ID, f)
	if err != nil {
		WriteDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

// ListGeometriesWithAllObjects handles GET
// /scenarios/{id}/geometries_with_all_objects.
func (h *ScenarioHandlers) ListGeometriesWithAllObjects(w http.ResponseWriter, r *http.Request) {
	_, sc, ok := h.readAccess(w, r)
	if !ok {
		return
	}
	items, err := h.reader.ListGeometriesWithAllObjects(r.Context(), sc.ID)
	if err != nil {
		WriteDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

// ListFunctionalZones handles GET /scenarios/{id}/functional_zones.
func (h *ScenarioHandlers) ListFunctionalZones(w http.ResponseWriter, r *http.Request) {
	_, sc, ok := h.readAccess(w, r)
	if !ok {
		return
	}
	items, err := h.reader.ListFunctionalZones(r.Context(), sc.ID)
	if err != nil {
		WriteDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

// ListContextGeometries handles GET /scenarios/{id}/context/geometries.
func (h *ScenarioHandlers) ListContextGeometries(w http.ResponseWriter, r *http.Request) {
	p, _, ok := h.readAccess(w, r)
	if !ok {
		return
	}
	f, ok := geometryFilters(w, r)
	if !ok {
		return
	}
	items, err := h.reader.ListContextGeometries(r.Context(), p.Properties.Context, f)
	if err != nil {
		WriteDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

// ListContextPhysicalObjects handles GET
// /scenarios/{id}/context/physical_objects.
func (h *ScenarioHandlers) ListContextPhysicalObjects(w http.ResponseWriter, r *http.Request) {
	p, _, ok := h.readAccess(w, r)
	if !ok {
		return
	}
	f, ok := physicalObjectFilters(w, r)
	if !ok {
		return
	}
	items, err := h.reader.ListContextPhysicalObjects(r.Context(), p.Properties.Context, f)
	if err != nil {
		WriteDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

// ListContextServices handles GET /scenarios/{id}/context/services.
func (h *ScenarioHandlers) ListContextServices(w http.ResponseWriter, r *http.Request) {
	p, _, ok := h.readAccess(w, r)
	if !ok {
		return
	}
	f, ok := serviceFilters(w, r)
	if !ok {
		return
	}
	items, err := h.reader.ListContextServices(r.Context(), p.Properties.Context, f)
	if err != nil {
		WriteDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

// decodeAttrs converts a JSON edit body into engine attributes. Geometry
// fields arrive as GeoJSON and are decoded to geometry values; properties
// stay raw JSON; everything else passes through as scanned.
func decodeAttrs(body map[string]json.RawMessage) (scenario.Attrs, error) {
	attrs := make(scenario.Attrs, len(body))
	for key, raw := range body {
		switch key {
		case "geometry", "centre_point":
			g, err := geojson.UnmarshalGeometry(raw)
			if err != nil {
				return nil, err
			}
			attrs[key] = g.Geometry()
		case "properties":
			attrs[key] = []byte(raw)
		default:
			var v any
			if err := json.Unmarshal(raw, &v); err != nil {
				return nil, err
			}
			attrs[key] = v
		}
	}
	return attrs, nil
}

// UpdateEntity handles PATCH /scenarios/{id}/{kind}/{entity_id}. The
// is_scenario_object query parameter tells whether entity_id addresses a
// scenario-local row or a public one.
func (h *ScenarioHandlers) UpdateEntity(w http.ResponseWriter, r *http.Request) {
	p, sc, ok := h.editAccess(w, r)
	if !ok {
		return
	}
	k, ok := entityKind(r.PathValue("kind"))
	if !ok {
		http.NotFound(w, r)
		return
	}
	entityID, ok := pathID(w, r, "entity_id")
	if !ok {
		return
	}
	isScenarioObject := r.URL.Query().Get("is_scenario_object") == "true"

	var body map[string]json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeBadJSON(w, r)
		return
	}
	attrs, err := decodeAttrs(body)
	if err != nil {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeValidation)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, "invalid attribute value: "+err.Error())
		return
	}

	resultID, err := h.editor.UpdateEntity(r.Context(), k, sc.ID, p.ID, entityID, isScenarioObject, attrs)
	if err != nil {
		WriteDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, UpdateEntityResponse{ID: resultID, IsScenarioObject: true})
}

// DeleteEntity handles DELETE /scenarios/{id}/{kind}/{entity_id}.
func (h *ScenarioHandlers) DeleteEntity(w http.ResponseWriter, r *http.Request) {
	p, sc, ok := h.editAccess(w, r)
	if !ok {
		return
	}
	k, ok := entityKind(r.PathValue("kind"))
	if !ok {
		http.NotFound(w, r)
		return
	}
	entityID, ok := pathID(w, r, "entity_id")
	if !ok {
		return
	}
	isScenarioObject := r.URL.Query().Get("is_scenario_object") == "true"

	if err := h.editor.DeleteEntity(r.Context(), k, sc.ID, p.ID, entityID, isScenarioObject); err != nil {
		WriteDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
