package project

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkb"

	"github.com/onnwee/urbanscape/internal/apperr"
	"github.com/onnwee/urbanscape/internal/auth"
	"github.com/onnwee/urbanscape/internal/db"
	"github.com/onnwee/urbanscape/internal/scenario"
)

// Repository persists projects and their scenarios. Every method takes a
// db.Querier so the same call runs against the pool or inside the
// caller's transaction.
type Repository interface {
	Insert(ctx context.Context, q db.Querier, p *Project) (int64, error)
	InsertTerritory(ctx context.Context, q db.Querier, projectID int64, geometry orb.Geometry) error
	GetByID(ctx context.Context, q db.Querier, id int64) (*Project, error)
	List(ctx context.Context, q db.Querier, user *auth.User, f ListFilters) ([]Project, error)
	Update(ctx context.Context, q db.Querier, p *Project) error
	Delete(ctx context.Context, q db.Querier, id int64) error

	InsertScenario(ctx context.Context, q db.Querier, s *scenario.Scenario) (int64, error)
	GetScenario(ctx context.Context, q db.Querier, id int64) (*scenario.Scenario, error)
	FindRegionalBaseScenario(ctx context.Context, q db.Querier, territoryID int64) (int64, error)
	HasBaseScenarioFrom(ctx context.Context, q db.Querier, projectID, parentID int64) (bool, error)
}

// PostgresRepository implements Repository against the live schema.
type PostgresRepository struct{}

// NewPostgresRepository creates a PostgresRepository.
func NewPostgresRepository() *PostgresRepository {
	return &PostgresRepository{}
}

const projectColumns = `project_id, user_id, name, territory_id, description, public,
	is_regional, is_city, properties, created_at, updated_at`

// Insert stores a new project and returns its id.
func (r *PostgresRepository) Insert(ctx context.Context, q db.Querier, p *Project) (int64, error) {
	props, err := json.Marshal(p.Properties)
	if err != nil {
		return 0, fmt.Errorf("encoding project properties: %w", err)
	}
	var id int64
	err = q.QueryRowContext(ctx,
		`INSERT INTO projects_data (user_id, name, territory_id, description, public, is_regional, is_city, properties)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 RETURNING project_id`,
		p.UserID, p.Name, p.TerritoryID, p.Description, p.Public, p.IsRegional, p.IsCity, props).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("inserting project: %w", err)
	}
	return id, nil
}

// InsertTerritory stores the project's own polygon; the centre point is
// derived in the database.
func (r *PostgresRepository) InsertTerritory(ctx context.Context, q db.Querier, projectID int64, geometry orb.Geometry) error {
	raw, err := wkb.Marshal(geometry)
	if err != nil {
		return fmt.Errorf("encoding project geometry: %w", err)
	}
	_, err = q.ExecContext(ctx,
		`INSERT INTO projects_territory_data (project_id, geometry, centre_point)
		 VALUES ($1, ST_GeomFromWKB($2, 4326), ST_Centroid(ST_GeomFromWKB($2, 4326)))`,
		projectID, raw)
	if err != nil {
		return fmt.Errorf("inserting project territory: %w", err)
	}
	return nil
}

// GetByID loads a project, failing with NotFound when absent.
func (r *PostgresRepository) GetByID(ctx context.Context, q db.Querier, id int64) (*Project, error) {
	row := q.QueryRowContext(ctx,
		`SELECT `+projectColumns+` FROM projects_data WHERE project_id = $1`, id)
	p, err := scanProject(row)
	if err == sql.ErrNoRows {
		return nil, apperr.NewNotFound("project", id)
	}
	if err != nil {
		return nil, fmt.Errorf("loading project %d: %w", id, err)
	}
	return p, nil
}

// List returns the projects visible to user, narrowed and ordered by f.
func (r *PostgresRepository) List(ctx context.Context, q db.Querier, user *auth.User, f ListFilters) ([]Project, error) {
	query := `SELECT ` + projectColumns + ` FROM projects_data WHERE is_regional = $1`
	args := []any{f.IsRegional}

	switch {
	case f.OnlyOwn:
		if user == nil {
			return nil, apperr.NewInvalidRequest("only_own requires an authenticated user")
		}
		args = append(args, user.ID)
		query += fmt.Sprintf(" AND user_id = $%d", len(args))
	case user == nil:
		query += " AND public"
	case !user.IsSuperuser:
		args = append(args, user.ID)
		query += fmt.Sprintf(" AND (user_id = $%d OR public)", len(args))
	}

	if f.TerritoryID != nil {
		args = append(args, *f.TerritoryID)
		query += fmt.Sprintf(" AND territory_id = $%d", len(args))
	}
	if f.Name != nil {
		args = append(args, *f.Name)
		query += fmt.Sprintf(" AND name ILIKE '%%' || $%d || '%%'", len(args))
	}
	if f.CreatedAtAfter != nil {
		args = append(args, *f.CreatedAtAfter)
		query += fmt.Sprintf(" AND created_at >= $%d", len(args))
	}

	column := OrderByCreatedAt
	if f.OrderBy == OrderByUpdatedAt {
		column = OrderByUpdatedAt
	}
	direction := "ASC"
	if f.Descending {
		direction = "DESC"
	}
	query += fmt.Sprintf(" ORDER BY %s %s, project_id", column, direction)

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing projects: %w", err)
	}
	defer rows.Close()

	var out []Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning project: %w", err)
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

// Update replaces the mutable attributes of a project.
func (r *PostgresRepository) Update(ctx context.Context, q db.Querier, p *Project) error {
	res, err := q.ExecContext(ctx,
		`UPDATE projects_data SET name = $1, description = $2, public = $3, updated_at = now()
		 WHERE project_id = $4`,
		p.Name, p.Description, p.Public, p.ID)
	if err != nil {
		return fmt.Errorf("updating project %d: %w", p.ID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return apperr.NewNotFound("project", p.ID)
	}
	return nil
}

// Delete removes a project and every scenario-local row reachable from
// its scenarios. Join rows and scenarios go with the project through
// foreign keys; the local triad rows carry no scenario id and must be
// collected first.
func (r *PostgresRepository) Delete(ctx context.Context, q db.Querier, id int64) error {
	rows, err := q.QueryContext(ctx,
		`SELECT puod.object_geometry_id, puod.physical_object_id, puod.service_id
		   FROM projects_urban_objects_data puod
		   JOIN scenarios_data s ON s.scenario_id = puod.scenario_id
		  WHERE s.project_id = $1`, id)
	if err != nil {
		return fmt.Errorf("collecting scenario rows: %w", err)
	}
	defer rows.Close()

	var geomIDs, physIDs, svcIDs []int64
	for rows.Next() {
		var g, p, s sql.NullInt64
		if err := rows.Scan(&g, &p, &s); err != nil {
			return fmt.Errorf("scanning scenario row: %w", err)
		}
		if g.Valid {
			geomIDs = append(geomIDs, g.Int64)
		}
		if p.Valid {
			physIDs = append(physIDs, p.Int64)
		}
		if s.Valid {
			svcIDs = append(svcIDs, s.Int64)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("reading scenario rows: %w", err)
	}

	deletes := []struct {
		table, column string
		ids           []int64
	}{
		{"projects_object_geometries_data", "object_geometry_id", geomIDs},
		{"projects_physical_objects_data", "physical_object_id", physIDs},
		{"projects_services_data", "service_id", svcIDs},
	}
	for _, d := range deletes {
		if len(d.ids) == 0 {
			continue
		}
		query := fmt.Sprintf(`DELETE FROM %s WHERE %s = ANY($1)`, d.table, d.column)
		if _, err := q.ExecContext(ctx, query, pq.Array(d.ids)); err != nil {
			return fmt.Errorf("deleting from %s: %w", d.table, err)
		}
	}

	res, err := q.ExecContext(ctx, `DELETE FROM projects_data WHERE project_id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting project %d: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return apperr.NewNotFound("project", id)
	}
	return nil
}

// InsertScenario stores a new scenario and returns its id.
func (r *PostgresRepository) InsertScenario(ctx context.Context, q db.Querier, s *scenario.Scenario) (int64, error) {
	var id int64
	err := q.QueryRowContext(ctx,
		`INSERT INTO scenarios_data (project_id, name, is_based, parent_id)
		 VALUES ($1, $2, $3, $4) RETURNING scenario_id`,
		s.ProjectID, s.Name, s.IsBased, s.ParentID).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("inserting scenario: %w", err)
	}
	return id, nil
}

// GetScenario loads a scenario, failing with NotFound when absent.
func (r *PostgresRepository) GetScenario(ctx context.Context, q db.Querier, id int64) (*scenario.Scenario, error) {
	var s scenario.Scenario
	err := q.QueryRowContext(ctx,
		`SELECT scenario_id, project_id, name, is_based, parent_id, created_at, updated_at
		   FROM scenarios_data WHERE scenario_id = $1`, id).
		Scan(&s.ID, &s.ProjectID, &s.Name, &s.IsBased, &s.ParentID, &s.CreatedAt, &s.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, apperr.NewNotFound("scenario", id)
	}
	if err != nil {
		return nil, fmt.Errorf("loading scenario %d: %w", id, err)
	}
	return &s, nil
}

// FindRegionalBaseScenario finds the base scenario of the regional
// project covering territoryID.
func (r *PostgresRepository) FindRegionalBaseScenario(ctx context.Context, q db.Querier, territoryID int64) (int64, error) {
	var id int64
	err := q.QueryRowContext(ctx,
		`SELECT s.scenario_id
		   FROM scenarios_data s
		   JOIN projects_data p ON p.project_id = s.project_id
		  WHERE p.territory_id = $1 AND p.is_regional AND s.is_based`, territoryID).Scan(&id)
	if err == sql.ErrNoRows {
		return 0, apperr.NewNotFoundByParams("parent regional scenario", territoryID)
	}
	if err != nil {
		return 0, fmt.Errorf("finding regional base scenario: %w", err)
	}
	return id, nil
}

// HasBaseScenarioFrom reports whether projectID already has a base
// scenario derived from parentID.
func (r *PostgresRepository) HasBaseScenarioFrom(ctx context.Context, q db.Querier, projectID, parentID int64) (bool, error) {
	var exists bool
	err := q.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM scenarios_data
		  WHERE project_id = $1 AND parent_id = $2 AND is_based)`, projectID, parentID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("checking existing base scenario: %w", err)
	}
	return exists, nil
}

// scanner covers *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanProject(s scanner) (*Project, error) {
	var (
		p     Project
		props []byte
	)
	err := s.Scan(&p.ID, &p.UserID, &p.Name, &p.TerritoryID, &p.Description, &p.Public,
		&p.IsRegional, &p.IsCity, &props, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if len(props) > 0 {
		if err := json.Unmarshal(props, &p.Properties); err != nil {
			return nil, fmt.Errorf("decoding project properties: %w", err)
		}
	}
	return &p, nil
}

// InMemoryRepository is a map-backed Repository for testing and
// development. The db.Querier arguments are ignored.
type InMemoryRepository struct {
	projects    map[int64]*Project
	territories map[int64]orb.Geometry
	scenarios   map[int64]*scenario.Scenario
	nextProject int64
	nextScen    int64
}

// NewInMemoryRepository creates an empty in-memory repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		projects:    make(map[int64]*Project),
		territories: make(map[int64]orb.Geometry),
		scenarios:   make(map[int64]*scenario.Scenario),
	}
}

// Insert stores a new project and returns its id.
func (r *InMemoryRepository) Insert(_ context.Context, _ db.Querier, p *Project) (int64, error) {
	r.nextProject++
	stored := *p
	stored.ID = r.nextProject
	stored.CreatedAt = time.Now()
	stored.UpdatedAt = stored.CreatedAt
	r.projects[stored.ID] = &stored
	return stored.ID, nil
}

// InsertTerritory stores the project's polygon.
func (r *InMemoryRepository) InsertTerritory(_ context.Context, _ db.Querier, projectID int64, geometry orb.Geometry) error {
	r.territories[projectID] = geometry
	return nil
}

// GetByID loads a project, failing with NotFound when absent.
func (r *InMemoryRepository) GetByID(_ context.Context, _ db.Querier, id int64) (*Project, error) {
	p, ok := r.projects[id]
	if !ok {
		return nil, apperr.NewNotFound("project", id)
	}
	cp := *p
	return &cp, nil
}

// List returns the projects visible to user, narrowed by f.
func (r *InMemoryRepository) List(_ context.Context, _ db.Querier, user *auth.User, f ListFilters) ([]Project, error) {
	var out []Project
	for id := int64(1); id <= r.nextProject; id++ {
		p, ok := r.projects[id]
		if !ok || p.IsRegional != f.IsRegional {
			continue
		}
		switch {
		case f.OnlyOwn:
			if user == nil || p.UserID != user.ID {
				continue
			}
		case user == nil:
			if !p.Public {
				continue
			}
		case !user.IsSuperuser:
			if p.UserID != user.ID && !p.Public {
				continue
			}
		}
		if f.TerritoryID != nil && p.TerritoryID != *f.TerritoryID {
			continue
		}
		if f.Name != nil && !strings.Contains(strings.ToLower(p.Name), strings.ToLower(*f.Name)) {
			continue
		}
		if f.CreatedAtAfter != nil && p.CreatedAt.Before(*f.CreatedAtAfter) {
			continue
		}
		out = append(out, *p)
	}
	return out, nil
}

// Update replaces the mutable attributes of a project.
func (r *InMemoryRepository) Update(_ context.Context, _ db.Querier, p *Project) error {
	stored, ok := r.projects[p.ID]
	if !ok {
		return apperr.NewNotFound("project", p.ID)
	}
	stored.Name = p.Name
	stored.Description = p.Description
	stored.Public = p.Public
	stored.UpdatedAt = time.Now()
	return nil
}

// Delete removes a project and its scenarios.
func (r *InMemoryRepository) Delete(_ context.Context, _ db.Querier, id int64) error {
	if _, ok := r.projects[id]; !ok {
		return apperr.NewNotFound("project", id)
	}
	delete(r.projects, id)
	delete(r.territories, id)
	for sid, s := range r.scenarios {
		if s.ProjectID == id {
			delete(r.scenarios, sid)
		}
	}
	return nil
}

// InsertScenario stores a new scenario and returns its id.
func (r *InMemoryRepository) InsertScenario(_ context.Context, _ db.Querier, s *scenario.Scenario) (int64, error) {
	r.nextScen++
	stored := *s
	stored.ID = r.nextScen
	stored.CreatedAt = time.Now()
	stored.UpdatedAt = stored.CreatedAt
	r.scenarios[stored.ID] = &stored
	return stored.ID, nil
}

// GetScenario loads a scenario, failing with NotFound when absent.
func (r *InMemoryRepository) GetScenario(_ context.Context, _ db.Querier, id int64) (*scenario.Scenario, error) {
	s, ok := r.scenarios[id]
	if !ok {
		return nil, apperr.NewNotFound("scenario", id)
	}
	cp := *s
	return &cp, nil
}

// FindRegionalBaseScenario finds the base scenario of the regional
// project covering territoryID.
func (r *InMemoryRepository) FindRegionalBaseScenario(_ context.Context, _ db.Querier, territoryID int64) (int64, error) {
	for sid := int64(1); sid <= r.nextScen; sid++ {
		s, ok := r.scenarios[sid]
		if !ok || !s.IsBased {
			continue
		}
		p, ok := r.projects[s.ProjectID]
		if ok && p.IsRegional && p.TerritoryID == territoryID {
			return sid, nil
		}
	}
	return 0, apperr.NewNotFoundByParams("parent regional scenario", territoryID)
}

// HasBaseScenarioFrom reports whether projectID already has a base
// scenario derived from parentID.
func (r *InMemoryRepository) HasBaseScenarioFrom(_ context.Context, _ db.Querier, projectID, parentID int64) (bool, error) {
	for _, s := range r.scenarios {
		if s.ProjectID == projectID && s.IsBased && s.ParentID != nil && *s.ParentID == parentID {
			return true, nil
		}
	}
	return false, nil
}
