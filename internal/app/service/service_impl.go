package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/flagship/internal/app/domain"
	auditdomain "github.com/smallbiznis/flagship/internal/audit/domain"
	"github.com/smallbiznis/flagship/internal/cache"
	"github.com/smallbiznis/flagship/internal/clock"
	envdomain "github.com/smallbiznis/flagship/internal/environment/domain"
	obscontext "github.com/smallbiznis/flagship/internal/observability/context"
	obslogger "github.com/smallbiznis/flagship/internal/observability/logger"
	dbpkg "github.com/smallbiznis/flagship/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB           *gorm.DB
	Log          *zap.Logger
	GenID        *snowflake.Node
	Clock        clock.Clock
	Repo         domain.Repository
	Environments envdomain.Repository
	Cache        *cache.Layer
	Audit        auditdomain.Service
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
	repo  domain.Repository
	envs  envdomain.Repository
	cache *cache.Layer
	audit auditdomain.Service
}

func New(p Params) domain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("app.service"),
		genID: p.GenID,
		clock: p.Clock,
		repo:  p.Repo,
		envs:  p.Environments,
		cache: p.Cache,
		audit: p.Audit,
	}
}

// Create writes the app and then its Production environment as two independent writes.
// When the second write fails the app is kept, ErrProductionProvisionFailed is returned
// together with the response, and the reconciler restores Production later.
func (s *Service) Create(ctx context.Context, req domain.CreateRequest) (*domain.CreateResponse, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, domain.ErrInvalidName
	}
	actor := resolveActor(ctx, req.CreatedBy)

	existing, err := s.repo.FindByName(ctx, s.db, name)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, domain.ErrNameTaken
	}

	now := s.clock.Now()
	app := domain.App{
		ID:        s.genID.Generate(),
		Name:      name,
		IsActive:  true,
		CreatedBy: actor,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.Insert(ctx, s.db, &app); err != nil {
		if dbpkg.IsDuplicateKeyErr(err) {
			return nil, domain.ErrNameTaken
		}
		return nil, err
	}
	s.invalidate(ctx, &app)

	s.audit.Record(ctx, auditdomain.Entry{
		Actor:      actor,
		Action:     auditdomain.ActionAppCreate,
		TargetType: auditdomain.TargetApp,
		TargetID:   app.ID.String(),
		Message:    fmt.Sprintf("created app %s", app.Name),
	})

	resp := &domain.CreateResponse{App: app}
	production, err := s.insertProduction(ctx, app.ID, actor)
	if err != nil {
		obslogger.WithApp(obslogger.WithContext(ctx, s.log), app.ID.String()).
			Warn("production environment not provisioned, app needs reconciliation", zap.Error(err))
		return resp, fmt.Errorf("%w: %v", domain.ErrProductionProvisionFailed, err)
	}
	resp.Production = production
	return resp, nil
}

// EnsureProduction creates the Production environment if the app lacks one.
func (s *Service) EnsureProduction(ctx context.Context, appID string) (*envdomain.Environment, error) {
	id, err := parseID(appID)
	if err != nil {
		return nil, err
	}
	app, err := s.repo.FindByID(ctx, s.db, id.Int64())
	if err != nil {
		return nil, err
	}
	if app == nil {
		return nil, domain.ErrNotFound
	}

	production, err := s.envs.FindByName(ctx, s.db, id.Int64(), envdomain.ProductionName)
	if err != nil {
		return nil, err
	}
	if production != nil {
		return production, nil
	}

	actor := obscontext.ActorFromContext(ctx)
	production, err = s.insertProduction(ctx, id, actor)
	if err != nil {
		if dbpkg.IsDuplicateKeyErr(err) {
			return s.envs.FindByName(ctx, s.db, id.Int64(), envdomain.ProductionName)
		}
		return nil, err
	}

	obslogger.WithApp(obslogger.WithContext(ctx, s.log), app.ID.String()).Info("production environment restored")
	s.audit.Record(ctx, auditdomain.Entry{
		Actor:      actor,
		Action:     auditdomain.ActionProductionRepair,
		TargetType: auditdomain.TargetEnvironment,
		TargetID:   production.ID.String(),
		Message:    fmt.Sprintf("restored Production for app %s", app.Name),
	})
	return production, nil
}

func (s *Service) GetByID(ctx context.Context, id string) (*domain.App, error) {
	appID, err := parseID(id)
	if err != nil {
		return nil, err
	}
	key := cache.IDKey(cache.KindApp, appID.String())
	if cached, ok := cache.GetJSON[domain.App](ctx, s.cache, key); ok {
		return &cached, nil
	}

	app, err := s.repo.FindByID(ctx, s.db, appID.Int64())
	if err != nil {
		return nil, err
	}
	if app == nil {
		return nil, domain.ErrNotFound
	}
	cache.FillJSON(ctx, s.cache, key, app, 0)
	return app, nil
}

func (s *Service) GetByName(ctx context.Context, name string) (*domain.App, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, domain.ErrInvalidName
	}
	key := cache.NameKey(cache.KindApp, name)
	if cached, ok := cache.GetJSON[domain.App](ctx, s.cache, key); ok {
		return &cached, nil
	}

	app, err := s.repo.FindByName(ctx, s.db, name)
	if err != nil {
		return nil, err
	}
	if app == nil {
		return nil, domain.ErrNotFound
	}
	cache.FillJSON(ctx, s.cache, key, app, 0)
	return app, nil
}

// List serves allApps, which is kept until the next app mutation.
func (s *Service) List(ctx context.Context) ([]domain.App, error) {
	key := cache.AllKey(cache.KindApp)
	if cached, ok := cache.GetJSON[[]domain.App](ctx, s.cache, key); ok {
		return cached, nil
	}

	items, err := s.repo.List(ctx, s.db)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []domain.App{}
	}
	cache.FillJSON(ctx, s.cache, key, items, cache.NoExpiry)
	return items, nil
}

func (s *Service) SetActive(ctx context.Context, req domain.SetActiveRequest) (*domain.App, error) {
	appID, err := parseID(req.ID)
	if err != nil {
		return nil, err
	}
	app, err := s.repo.FindByID(ctx, s.db, appID.Int64())
	if err != nil {
		return nil, err
	}
	if app == nil {
		return nil, domain.ErrNotFound
	}

	app.IsActive = req.IsActive
	app.UpdatedAt = s.clock.Now()
	if err := s.repo.Update(ctx, s.db, app); err != nil {
		return nil, err
	}
	s.invalidate(ctx, app)

	s.audit.Record(ctx, auditdomain.Entry{
		Actor:      resolveActor(ctx, req.Actor),
		Action:     auditdomain.ActionAppUpdate,
		TargetType: auditdomain.TargetApp,
		TargetID:   app.ID.String(),
		Message:    fmt.Sprintf("set app %s active=%t", app.Name, app.IsActive),
	})
	return app, nil
}

func (s *Service) insertProduction(ctx context.Context, appID snowflake.ID, actor string) (*envdomain.Environment, error) {
	now := s.clock.Now()
	production := &envdomain.Environment{
		ID:        s.genID.Generate(),
		AppID:     appID,
		Name:      envdomain.ProductionName,
		IsActive:  true,
		CreatedBy: actor,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.envs.Insert(ctx, s.db, production); err != nil {
		return nil, err
	}
	return production, nil
}

// invalidate drops stale app keys and writes the fresh snapshot back under id and name.
func (s *Service) invalidate(ctx context.Context, app *domain.App) {
	s.cache.InvalidateApp(ctx, cache.AppRef{ID: app.ID.String(), Name: app.Name})
	cache.SetJSON(ctx, s.cache, cache.IDKey(cache.KindApp, app.ID.String()), app, 0)
	cache.SetJSON(ctx, s.cache, cache.NameKey(cache.KindApp, app.Name), app, 0)
}

func parseID(value string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(value))
	if err != nil || id == 0 {
		return 0, domain.ErrInvalidID
	}
	return id, nil
}

func resolveActor(ctx context.Context, actor string) string {
	if actor = strings.TrimSpace(actor); actor != "" {
		return actor
	}
	return obscontext.ActorFromContext(ctx)
}
