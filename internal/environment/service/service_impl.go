package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	appdomain "github.com/smallbiznis/flagship/internal/app/domain"
	auditdomain "github.com/smallbiznis/flagship/internal/audit/domain"
	"github.com/smallbiznis/flagship/internal/clock"
	"github.com/smallbiznis/flagship/internal/environment/domain"
	obscontext "github.com/smallbiznis/flagship/internal/observability/context"
	obslogger "github.com/smallbiznis/flagship/internal/observability/logger"
	"github.com/smallbiznis/flagship/internal/propagation"
	dbpkg "github.com/smallbiznis/flagship/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	GenID       *snowflake.Node
	Clock       clock.Clock
	Repo        domain.Repository
	Apps        appdomain.Repository
	Propagation propagation.Manager
	Audit       auditdomain.Service
}

type Service struct {
	db          *gorm.DB
	log         *zap.Logger
	genID       *snowflake.Node
	clock       clock.Clock
	repo        domain.Repository
	apps        appdomain.Repository
	propagation propagation.Manager
	audit       auditdomain.Service
}

func New(p Params) domain.Service {
	return &Service{
		db:          p.DB,
		log:         p.Log.Named("environment.service"),
		genID:       p.GenID,
		clock:       p.Clock,
		repo:        p.Repo,
		apps:        p.Apps,
		propagation: p.Propagation,
		audit:       p.Audit,
	}
}

// Create writes the environment and then backfills a setting on every flag of the app.
// The result of the primary write decides the outcome; the sweep is only reported.
func (s *Service) Create(ctx context.Context, req domain.CreateRequest) (*domain.CreateResponse, error) {
	appID, err := snowflake.ParseString(strings.TrimSpace(req.AppID))
	if err != nil || appID == 0 {
		return nil, domain.ErrInvalidAppID
	}
	name := strings.TrimSpace(req.Name)
	if name == "" || slug.Make(name) == "" {
		return nil, domain.ErrInvalidName
	}
	if domain.IsProductionName(name) {
		return nil, domain.ErrProductionReserved
	}
	actor := resolveActor(ctx, req.Actor)

	app, err := s.apps.FindByID(ctx, s.db, appID.Int64())
	if err != nil {
		return nil, err
	}
	if app == nil {
		return nil, domain.ErrAppNotFound
	}

	existing, err := s.repo.FindByName(ctx, s.db, appID.Int64(), name)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, domain.ErrNameTaken
	}

	now := s.clock.Now()
	env := domain.Environment{
		ID:        s.genID.Generate(),
		AppID:     appID,
		Name:      name,
		IsActive:  true,
		CreatedBy: actor,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.Insert(ctx, s.db, &env); err != nil {
		if dbpkg.IsDuplicateKeyErr(err) {
			return nil, domain.ErrNameTaken
		}
		return nil, err
	}

	s.audit.Record(ctx, auditdomain.Entry{
		Actor:      actor,
		Action:     auditdomain.ActionEnvironmentCreate,
		TargetType: auditdomain.TargetEnvironment,
		TargetID:   env.ID.String(),
		Message:    fmt.Sprintf("created environment %s for app %s", env.Name, app.Name),
	})

	report, sweepErr := s.propagation.OnEnvironmentCreated(ctx, appID, env.ID, actor)
	return &domain.CreateResponse{
		Environment: env,
		Sweep:       s.summarize(ctx, appID, report, sweepErr),
	}, nil
}

func (s *Service) Delete(ctx context.Context, req domain.DeleteRequest) (*domain.DeleteResponse, error) {
	envID, err := parseID(req.ID)
	if err != nil {
		return nil, err
	}
	env, err := s.repo.FindByID(ctx, s.db, envID.Int64())
	if err != nil {
		return nil, err
	}
	if env == nil {
		return nil, domain.ErrNotFound
	}
	if env.IsProduction() {
		return nil, domain.ErrProductionImmutable
	}
	actor := resolveActor(ctx, req.Actor)

	affected, err := s.repo.Delete(ctx, s.db, envID.Int64())
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, domain.ErrNotFound
	}

	s.audit.Record(ctx, auditdomain.Entry{
		Actor:      actor,
		Action:     auditdomain.ActionEnvironmentDelete,
		TargetType: auditdomain.TargetEnvironment,
		TargetID:   env.ID.String(),
		Message:    fmt.Sprintf("deleted environment %s", env.Name),
	})

	report, sweepErr := s.propagation.OnEnvironmentDeleted(ctx, env.AppID, env.ID, actor)
	return &domain.DeleteResponse{
		Environment: *env,
		Sweep:       s.summarize(ctx, env.AppID, report, sweepErr),
	}, nil
}

func (s *Service) GetByID(ctx context.Context, id string) (*domain.Environment, error) {
	envID, err := parseID(id)
	if err != nil {
		return nil, err
	}
	env, err := s.repo.FindByID(ctx, s.db, envID.Int64())
	if err != nil {
		return nil, err
	}
	if env == nil {
		return nil, domain.ErrNotFound
	}
	return env, nil
}

func (s *Service) List(ctx context.Context, appID string) ([]domain.Environment, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(appID))
	if err != nil || id == 0 {
		return nil, domain.ErrInvalidAppID
	}
	app, err := s.apps.FindByID(ctx, s.db, id.Int64())
	if err != nil {
		return nil, err
	}
	if app == nil {
		return nil, domain.ErrAppNotFound
	}
	items, err := s.repo.ListByApp(ctx, s.db, id.Int64())
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []domain.Environment{}
	}
	return items, nil
}

func (s *Service) summarize(ctx context.Context, appID snowflake.ID, report propagation.Report, sweepErr error) domain.SweepSummary {
	summary := domain.SweepSummary{
		Updated: report.Updated,
		Skipped: report.Skipped,
		Failed:  report.Failed(),
	}
	if sweepErr == nil {
		sweepErr = report.Err()
	}
	if sweepErr != nil {
		obslogger.WithApp(obslogger.WithContext(ctx, s.log), appID.String()).
			Error("environment sweep incomplete", zap.Error(sweepErr))
		summary.Error = sweepErr.Error()
	}
	return summary
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
