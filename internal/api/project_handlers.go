package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/paulmach/orb/geojson"

	"github.com/onnwee/urbanscape/internal/auth"
	"github.com/onnwee/urbanscape/internal/middleware"
	"github.com/onnwee/urbanscape/internal/project"
)

// CreateProjectRequest represents the request body for creating a project.
type CreateProjectRequest struct {
	Name        string            `json:"name"`
	TerritoryID int64             `json:"territory_id"`
	Description *string           `json:"description,omitempty"`
	Public      bool              `json:"public"`
	IsRegional  bool              `json:"is_regional"`
	IsCity      bool              `json:"is_city"`
	Geometry    *geojson.Geometry `json:"geometry,omitempty"`
}

// UpdateProjectRequest replaces every mutable project attribute.
type UpdateProjectRequest struct {
	Name        string  `json:"name"`
	Description *string `json:"description,omitempty"`
	Public      bool    `json:"public"`
}

// PatchProjectRequest updates only the attributes that are present.
type PatchProjectRequest struct {
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
	Public      *bool   `json:"public,omitempty"`
}

// CreateBaseScenarioRequest names the regional scenario a base scenario is
// derived from.
type CreateBaseScenarioRequest struct {
	RegionalScenarioID int64 `json:"regional_scenario_id"`
}

// ProjectResponse is the JSON shape of a project.
type ProjectResponse struct {
	ID          int64              `json:"project_id"`
	UserID      string             `json:"user_id"`
	Name        string             `json:"name"`
	TerritoryID int64              `json:"territory_id"`
	Description *string            `json:"description"`
	Public      bool               `json:"public"`
	IsRegional  bool               `json:"is_regional"`
	IsCity      bool               `json:"is_city"`
	Properties  project.Properties `json:"properties"`
	CreatedAt   time.Time          `json:"created_at"`
	UpdatedAt   time.Time          `json:"updated_at"`
	ImageURL    *string            `json:"image_url,omitempty"`
}

func toProjectResponse(p *project.Project) ProjectResponse {
	return ProjectResponse{
		ID:          p.ID,
		UserID:      p.UserID,
		Name:        p.Name,
		TerritoryID: p.TerritoryID,
		Description: p.Description,
		Public:      p.Public,
		IsRegional:  p.IsRegional,
		IsCity:      p.IsCity,
		Properties:  p.Properties,
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
	}
}

// ProjectService is the project lifecycle surface the handlers call.
// *project.Service implements it.
type ProjectService interface {
	Create(ctx context.Context, user *auth.User, in project.CreateInput) (*project.Project, error)
	Get(ctx context.Context, user *auth.User, id int64) (*project.Project, error)
	List(ctx context.Context, user *auth.User, f project.ListFilters) ([]project.Project, error)
	Put(ctx context.Context, user *auth.User, id int64, in project.UpdateInput) (*project.Project, error)
	Patch(ctx context.Context, user *auth.User, id int64, in project.PatchInput) (*project.Project, error)
	Delete(ctx context.Context, user *auth.User, id int64) error
	CreateBaseScenarioFromRegion(ctx context.Context, user *auth.User, projectID, regionalScenarioID int64) (int64, error)
	UploadPreview(ctx context.Context, user *auth.User, projectID int64, contentType string, body io.Reader) error
	GetPreview(ctx context.Context, user *auth.User, projectID int64) (io.ReadCloser, error)
	PreviewURL(ctx context.Context, user *auth.User, projectID int64) (string, error)
	PreviewURLs(ctx context.Context, projectIDs []int64) ([]string, error)
}

// ProjectHandlers holds dependencies for project HTTP handlers.
type ProjectHandlers struct {
	svc ProjectService
}

// NewProjectHandlers creates a new ProjectHandlers instance.
func NewProjectHandlers(svc ProjectService) *ProjectHandlers {
	return &ProjectHandlers{svc: svc}
}

// Register wires the project routes onto mux.
func (h *ProjectHandlers) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /projects", h.CreateProject)
	mux.HandleFunc("GET /projects", h.ListProjects)
	mux.HandleFunc("GET /projects/{id}", h.GetProject)
	mux.HandleFunc("PUT /projects/{id}", h.PutProject)
	mux.HandleFunc("PATCH /projects/{id}", h.PatchProject)
	mux.HandleFunc("DELETE /projects/{id}", h.DeleteProject)
	mux.HandleFunc("POST /projects/{id}/base_scenario", h.CreateBaseScenario)
	mux.HandleFunc("PUT /projects/{id}/image", h.UploadPreview)
	mux.HandleFunc("GET /projects/{id}/image", h.GetPreview)
	mux.HandleFunc("GET /projects/{id}/image_url", h.GetPreviewURL)
}

// writeJSON encodes v as the response body with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// pathID parses the {id} segment of the request path.
func pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue(name), 10, 64)
	if err != nil || id <= 0 {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeBadRequest, name+" must be a positive integer")
		return 0, false
	}
	return id, true
}

func writeBadJSON(w http.ResponseWriter, r *http.Request) {
	ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
	WriteError(w, ctx, http.StatusBadRequest, ErrCodeBadRequest, "Invalid JSON in request body")
}

// CreateProject handles POST /projects.
func (h *ProjectHandlers) CreateProject(w http.ResponseWriter, r *http.Request) {
	var req CreateProjectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadJSON(w, r)
		return
	}

	in := project.CreateInput{
		Name:        strings.TrimSpace(req.Name),
		TerritoryID: req.TerritoryID,
		Description: req.Description,
		Public:      req.Public,
		IsRegional:  req.IsRegional,
		IsCity:      req.IsCity,
	}
	if req.Geometry != nil {
		in.Geometry = req.Geometry.Geometry()
	}

	p, err := h.svc.Create(r.Context(), auth.UserFromContext(r.Context()), in)
	if err != nil {
		WriteDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toProjectResponse(p))
}

// GetProject handles GET /projects/{id}.
func (h *ProjectHandlers) GetProject(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	p, err := h.svc.Get(r.Context(), auth.UserFromContext(r.Context()), id)
	if err != nil {
		WriteDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toProjectResponse(p))
}

// ListProjects handles GET /projects. Query parameters: only_own,
// is_regional, territory_id, name, created_at_after (RFC 3339 date),
// order_by (created_at|updated_at), ordering (asc|desc), include_image_urls.
func (h *ProjectHandlers) ListProjects(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	f := project.ListFilters{
		OnlyOwn:    q.Get("only_own") == "true",
		IsRegional: q.Get("is_regional") == "true",
		Descending: q.Get("ordering") == "desc",
	}
	if v := q.Get("territory_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			ctx := middleware.SetErrorCode(r.Context(), ErrCodeValidation)
			WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, "territory_id must be an integer")
			return
		}
		f.TerritoryID = &id
	}
	if v := q.Get("name"); v != "" {
		f.Name = &v
	}
	if v := q.Get("created_at_after"); v != "" {
		t, err := time.Parse("2006-01-02", v)
		if err != nil {
			ctx := middleware.SetErrorCode(r.Context(), ErrCodeValidation)
			WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, "created_at_after must be a YYYY-MM-DD date")
			return
		}
		f.CreatedAtAfter = &t
	}
	switch q.Get("order_by") {
	case "":
	case string(project.OrderByCreatedAt):
		f.OrderBy = project.OrderByCreatedAt
	case string(project.OrderByUpdatedAt):
		f.OrderBy = project.OrderByUpdatedAt
	default:
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeValidation)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, "order_by must be created_at or updated_at")
		return
	}

	projects, err := h.svc.List(r.Context(), auth.UserFromContext(r.Context()), f)
	if err != nil {
		WriteDomainError(w, r, err)
		return
	}

	out := make([]ProjectResponse, len(projects))
	for i := range projects {
		out[i] = toProjectResponse(&projects[i])
	}
	if q.Get("include_image_urls") == "true" && len(projects) > 0 {
		ids := make([]int64, len(projects))
		for i := range projects {
			ids[i] = projects[i].ID
		}
		urls, err := h.svc.PreviewURLs(r.Context(), ids)
		if err != nil {
			WriteDomainError(w, r, err)
			return
		}
		for i := range out {
			if urls[i] != "" {
				out[i].ImageURL = &urls[i]
			}
		}
	}
	writeJSON(w, http.StatusOK, out)
}

// PutProject handles PUT /projects/{id}.
func (h *ProjectHandlers) PutProject(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req UpdateProjectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadJSON(w, r)
		return
	}

	p, err := h.svc.Put(r.Context(), auth.UserFromContext(r.Context()), id, project.UpdateInput{
		Name:        strings.TrimSpace(req.Name),
		Description: req.Description,
		Public:      req.Public,
	})
	if err != nil {
		WriteDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toProjectResponse(p))
}

// PatchProject handles PATCH /projects/{id}.
func (h *ProjectHandlers) PatchProject(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req PatchProjectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadJSON(w, r)
		return
	}

	p, err := h.svc.Patch(r.Context(), auth.UserFromContext(r.Context()), id, project.PatchInput{
		Name:        req.Name,
		Description: req.Description,
		Public:      req.Public,
	})
	if err != nil {
		WriteDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toProjectResponse(p))
}

// DeleteProject handles DELETE /projects/{id}.
func (h *ProjectHandlers) DeleteProject(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	if err := h.svc.Delete(r.Context(), auth.UserFromContext(r.Context()), id); err != nil {
		WriteDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// CreateBaseScenario handles POST /projects/{id}/base_scenario.
func (h *ProjectHandlers) CreateBaseScenario(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req CreateBaseScenarioRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadJSON(w, r)
		return
	}

	scenarioID, err := h.svc.CreateBaseScenarioFromRegion(
		r.Context(), auth.UserFromContext(r.Context()), id, req.RegionalScenarioID)
	if err != nil {
		WriteDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]int64{"scenario_id": scenarioID})
}

// UploadPreview handles PUT /projects/{id}/image.
func (h *ProjectHandlers) UploadPreview(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	contentType := r.Header.Get("Content-Type")
	err := h.svc.UploadPreview(r.Context(), auth.UserFromContext(r.Context()), id, contentType, r.Body)
	if err != nil {
		WriteDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusCreated)
}

// GetPreview handles GET /projects/{id}/image, streaming the stored bytes.
func (h *ProjectHandlers) GetPreview(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	body, err := h.svc.GetPreview(r.Context(), auth.UserFromContext(r.Context()), id)
	if err != nil {
		WriteDomainError(w, r, err)
		return
	}
	defer body.Close()

	w.Header().Set("Content-Type", "application/octet-stream")
	w.WriteHeader(http.StatusOK)
	_, _ = io.Copy(w, body)
}

// GetPreviewURL handles GET /projects/{id}/image_url.
func (h *ProjectHandlers) GetPreviewURL(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	url, err := h.svc.PreviewURL(r.Context(), auth.UserFromContext(r.Context()), id)
	if err != nil {
		WriteDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"url": url})
}
