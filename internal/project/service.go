package project

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/onnwee/urbanscape/internal/apperr"
	"github.com/onnwee/urbanscape/internal/auth"
	"github.com/onnwee/urbanscape/internal/db"
	"github.com/onnwee/urbanscape/internal/events"
	"github.com/onnwee/urbanscape/internal/scenario"
	"github.com/onnwee/urbanscape/internal/territory"
)

// CopyEngine is the scenario-population surface the service drives when a
// project or base scenario is created.
type CopyEngine interface {
	PromoteFromRegion(ctx context.Context, q db.Querier, regionalScenarioID, projectID, newScenarioID int64) error
	Bootstrap(ctx context.Context, q db.Querier, projectID int64) (map[int64]int64, error)
	InsertUrbanObjects(ctx context.Context, q db.Querier, scenarioID int64, idMap map[int64]int64) error
	CopyFunctionalZones(ctx context.Context, q db.Querier, scenarioID, projectID int64) error
}

// ContextResolver derives the territorial context stored in project
// properties.
type ContextResolver interface {
	ComputeContext(ctx context.Context, territoryID int64, bufferMeters float64) (territory.Context, error)
}

// IndicatorRequester asks the indicator service to recalculate a scenario.
type IndicatorRequester interface {
	RequestRecalc(ctx context.Context, projectID, scenarioID int64) error
}

// ObjectStore is the object-storage surface used for project preview
// images and cleanup.
type ObjectStore interface {
	Upload(ctx context.Context, key, contentType string, body io.Reader) error
	Get(ctx context.Context, keys []string) ([]io.ReadCloser, error)
	Presign(ctx context.Context, keys []string) []string
	DeletePrefix(ctx context.Context, prefix string) error
}

// Service orchestrates the project lifecycle: creation with base-scenario
// population, access-checked reads and updates, and cascading deletion.
type Service struct {
	pool         *sql.DB
	repo         Repository
	engine       CopyEngine
	contexts     ContextResolver
	indicators   IndicatorRequester
	events       events.Publisher
	storage      ObjectStore
	logger       *slog.Logger
	metrics      *Metrics
	bufferMeters float64

	// baseCtx bounds background work spawned outside the request path; bg
	// tracks it so shutdown can wait instead of orphaning goroutines.
	baseCtx context.Context
	bg      sync.WaitGroup

	// runTx is swappable so service tests run without a live pool.
	runTx func(ctx context.Context, fn func(q db.Querier) error) error
}

// NewService creates a project Service. indicators, publisher, storage and
// metrics may be nil when the corresponding integration is disabled.
func NewService(
	pool *sql.DB,
	repo Repository,
	engine CopyEngine,
	contexts ContextResolver,
	indicators IndicatorRequester,
	publisher events.Publisher,
	storage ObjectStore,
	logger *slog.Logger,
	metrics *Metrics,
	bufferMeters float64,
) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	if bufferMeters <= 0 {
		bufferMeters = territory.DefaultBufferMeters
	}
	s := &Service{
		pool:         pool,
		repo:         repo,
		engine:       engine,
		contexts:     contexts,
		indicators:   indicators,
		events:       publisher,
		storage:      storage,
		logger:       logger,
		metrics:      metrics,
		bufferMeters: bufferMeters,
		baseCtx:      context.Background(),
	}
	s.runTx = func(ctx context.Context, fn func(q db.Querier) error) error {
		if pool == nil {
			// In-memory repositories manage their own state.
			return fn(nil)
		}
		return db.WithTx(ctx, pool, func(tx *sql.Tx) error { return fn(tx) })
	}
	return s
}

// Create stores a new project. For ordinary projects it also derives the
// territorial context, creates the base scenario and populates it from the
// parent regional scenario and the public dataset, all in one transaction.
// Regional projects get no scenario and no context.
func (s *Service) Create(ctx context.Context, user *auth.User, in CreateInput) (*Project, error) {
	if user == nil {
		return nil, apperr.NewAccessDenied("project", 0)
	}
	if in.Name == "" {
		return nil, apperr.NewInvalidRequest("project name must not be empty")
	}
	if in.Geometry == nil {
		return nil, apperr.NewInvalidRequest("project geometry must not be empty")
	}

	p := &Project{
		UserID:      user.ID,
		Name:        in.Name,
		TerritoryID: in.TerritoryID,
		Description: in.Description,
		Public:      in.Public,
		IsRegional:  in.IsRegional,
		IsCity:      in.IsCity,
	}

	if in.IsRegional {
		err := s.runTx(ctx, func(q db.Querier) error {
			id, err := s.repo.Insert(ctx, q, p)
			if err != nil {
				return err
			}
			p.ID = id
			return s.repo.InsertTerritory(ctx, q, id, in.Geometry)
		})
		if err != nil {
			return nil, err
		}
		s.metrics.IncCreations(true)
		s.logger.Info("regional project created", slog.Int64("project_id", p.ID))
		return p, nil
	}

	tctx, err := s.contexts.ComputeContext(ctx, in.TerritoryID, s.bufferMeters)
	if err != nil {
		return nil, err
	}
	p.Properties = Properties{
		Territories: tctx.Territories,
		Districts:   tctx.Districts,
		Context:     tctx.Context,
	}

	regionalScenarioID, err := s.repo.FindRegionalBaseScenario(ctx, s.pool, in.TerritoryID)
	if err != nil {
		return nil, err
	}

	var baseScenarioID int64
	err = s.runTx(ctx, func(q db.Querier) error {
		id, err := s.repo.Insert(ctx, q, p)
		if err != nil {
			return err
		}
		p.ID = id
		if err := s.repo.InsertTerritory(ctx, q, id, in.Geometry); err != nil {
			return err
		}
		baseScenarioID, err = s.repo.InsertScenario(ctx, q, &scenario.Scenario{
			ProjectID: id,
			Name:      BaseScenarioName,
			IsBased:   true,
			ParentID:  &regionalScenarioID,
		})
		if err != nil {
			return err
		}
		return s.populateBaseScenario(ctx, q, id, baseScenarioID, regionalScenarioID)
	})
	if err != nil {
		return nil, err
	}

	s.metrics.IncCreations(false)
	s.logger.Info("project created",
		slog.Int64("project_id", p.ID),
		slog.Int64("base_scenario_id", baseScenarioID))
	s.afterScenarioCreated(p.ID, baseScenarioID)
	if err := s.events.PublishProjectCreated(ctx, events.ProjectCreated{
		ProjectID:      p.ID,
		BaseScenarioID: baseScenarioID,
		TerritoryID:    p.TerritoryID,
	}); err != nil {
		s.logger.Warn("publishing project-created event failed", slog.Any("error", err))
	}
	return p, nil
}

// CreateBaseScenarioFromRegion creates the base scenario of projectID from
// the given regional scenario and populates it. The target project must be
// ordinary, the source scenario regional, and the project must not already
// have a base scenario derived from that source.
func (s *Service) CreateBaseScenarioFromRegion(ctx context.Context, user *auth.User, projectID, regionalScenarioID int64) (int64, error) {
	p, err := s.repo.GetByID(ctx, s.pool, projectID)
	if err != nil {
		return 0, err
	}
	if err := checkAccess(p, user, true, false); err != nil {
		return 0, err
	}

	src, err := s.repo.GetScenario(ctx, s.pool, regionalScenarioID)
	if err != nil {
		return 0, err
	}
	srcProject, err := s.repo.GetByID(ctx, s.pool, src.ProjectID)
	if err != nil {
		return 0, err
	}
	if !srcProject.IsRegional {
		return 0, apperr.ErrNotAllowedInProjectScenario
	}

	exists, err := s.repo.HasBaseScenarioFrom(ctx, s.pool, projectID, regionalScenarioID)
	if err != nil {
		return 0, err
	}
	if exists {
		return 0, apperr.NewAlreadyExists("base scenario", projectID)
	}

	var scenarioID int64
	err = s.runTx(ctx, func(q db.Querier) error {
		scenarioID, err = s.repo.InsertScenario(ctx, q, &scenario.Scenario{
			ProjectID: projectID,
			Name:      BaseScenarioName,
			IsBased:   true,
			ParentID:  &regionalScenarioID,
		})
		if err != nil {
			return err
		}
		return s.populateBaseScenario(ctx, q, projectID, scenarioID, regionalScenarioID)
	})
	if err != nil {
		return 0, err
	}

	s.logger.Info("base scenario created",
		slog.Int64("project_id", projectID),
		slog.Int64("scenario_id", scenarioID))
	s.afterScenarioCreated(projectID, scenarioID)
	if err := s.events.PublishBaseScenarioCreated(ctx, events.BaseScenarioCreated{
		ProjectID:          projectID,
		BaseScenarioID:     scenarioID,
		RegionalScenarioID: regionalScenarioID,
	}); err != nil {
		s.logger.Warn("publishing base-scenario event failed", slog.Any("error", err))
	}
	return scenarioID, nil
}

// populateBaseScenario fills a freshly inserted base scenario: promoted
// regional edits first, then clipped boundary copies of the public set,
// then functional zones.
func (s *Service) populateBaseScenario(ctx context.Context, q db.Querier, projectID, scenarioID, regionalScenarioID int64) error {
	if err := s.engine.PromoteFromRegion(ctx, q, regionalScenarioID, projectID, scenarioID); err != nil {
		return fmt.Errorf("promoting regional edits: %w", err)
	}
	idMap, err := s.engine.Bootstrap(ctx, q, projectID)
	if err != nil {
		return fmt.Errorf("bootstrapping boundary geometries: %w", err)
	}
	if err := s.engine.InsertUrbanObjects(ctx, q, scenarioID, idMap); err != nil {
		return fmt.Errorf("attaching boundary copies: %w", err)
	}
	if err := s.engine.CopyFunctionalZones(ctx, q, scenarioID, projectID); err != nil {
		return fmt.Errorf("copying functional zones: %w", err)
	}
	return nil
}

// BindLifetime ties background indicator requests to ctx so server
// shutdown cancels them instead of leaving the goroutines orphaned. Call
// before serving requests.
func (s *Service) BindLifetime(ctx context.Context) {
	s.baseCtx = ctx
}

// Wait blocks until all in-flight background work has finished.
func (s *Service) Wait() {
	s.bg.Wait()
}

// afterScenarioCreated requests an indicator recalculation outside the
// request path. Failures are logged by the client and never surface.
func (s *Service) afterScenarioCreated(projectID, scenarioID int64) {
	if s.indicators == nil {
		return
	}
	s.bg.Add(1)
	go func() {
		defer s.bg.Done()
		_ = s.indicators.RequestRecalc(s.baseCtx, projectID, scenarioID)
	}()
}

// ScenarioAccess loads a scenario and its project and checks that user may
// read or edit the scenario through the project's access rules.
func (s *Service) ScenarioAccess(ctx context.Context, user *auth.User, scenarioID int64, toEdit bool) (*Project, *scenario.Scenario, error) {
	sc, err := s.repo.GetScenario(ctx, s.pool, scenarioID)
	if err != nil {
		return nil, nil, err
	}
	p, err := s.repo.GetByID(ctx, s.pool, sc.ProjectID)
	if err != nil {
		return nil, nil, err
	}
	if err := checkAccess(p, user, toEdit, true); err != nil {
		return nil, nil, err
	}
	return p, sc, nil
}

// Get returns a project the user may read.
func (s *Service) Get(ctx context.Context, user *auth.User, id int64) (*Project, error) {
	p, err := s.repo.GetByID(ctx, s.pool, id)
	if err != nil {
		return nil, err
	}
	if err := checkAccess(p, user, false, true); err != nil {
		return nil, err
	}
	return p, nil
}

// List returns the projects visible to user.
func (s *Service) List(ctx context.Context, user *auth.User, f ListFilters) ([]Project, error) {
	return s.repo.List(ctx, s.pool, user, f)
}

// Put fully replaces a project's mutable attributes.
func (s *Service) Put(ctx context.Context, user *auth.User, id int64, in UpdateInput) (*Project, error) {
	p, err := s.repo.GetByID(ctx, s.pool, id)
	if err != nil {
		return nil, err
	}
	if err := checkAccess(p, user, true, true); err != nil {
		return nil, err
	}
	if in.Name == "" {
		return nil, apperr.NewInvalidRequest("project name must not be empty")
	}
	p.Name = in.Name
	p.Description = in.Description
	p.Public = in.Public
	if err := s.repo.Update(ctx, s.pool, p); err != nil {
		return nil, err
	}
	return p, nil
}

// Patch updates only the attributes set in in.
func (s *Service) Patch(ctx context.Context, user *auth.User, id int64, in PatchInput) (*Project, error) {
	p, err := s.repo.GetByID(ctx, s.pool, id)
	if err != nil {
		return nil, err
	}
	if err := checkAccess(p, user, true, true); err != nil {
		return nil, err
	}
	if in.Name == nil && in.Description == nil && in.Public == nil {
		return nil, apperr.NewInvalidRequest("at least one attribute is required")
	}
	if in.Name != nil {
		if *in.Name == "" {
			return nil, apperr.NewInvalidRequest("project name must not be empty")
		}
		p.Name = *in.Name
	}
	if in.Description != nil {
		p.Description = in.Description
	}
	if in.Public != nil {
		p.Public = *in.Public
	}
	if err := s.repo.Update(ctx, s.pool, p); err != nil {
		return nil, err
	}
	return p, nil
}

// Delete removes a project, every scenario-local row its scenarios own, and
// its stored files.
func (s *Service) Delete(ctx context.Context, user *auth.User, id int64) error {
	p, err := s.repo.GetByID(ctx, s.pool, id)
	if err != nil {
		return err
	}
	if err := checkAccess(p, user, true, true); err != nil {
		return err
	}

	err = s.runTx(ctx, func(q db.Querier) error {
		return s.repo.Delete(ctx, q, id)
	})
	if err != nil {
		return err
	}

	if s.storage != nil {
		if err := s.storage.DeletePrefix(ctx, storagePrefix(id)); err != nil {
			s.logger.Warn("deleting project files failed",
				slog.Int64("project_id", id), slog.Any("error", err))
		}
	}
	s.metrics.IncDeletions()
	s.logger.Info("project deleted", slog.Int64("project_id", id))
	return nil
}

func storagePrefix(projectID int64) string {
	return fmt.Sprintf("projects/%d/", projectID)
}
