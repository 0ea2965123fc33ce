package service

import (
	"context"
	"fmt"
	"maps"
	"strings"

	"github.com/bwmarrin/snowflake"
	appdomain "github.com/smallbiznis/flagship/internal/app/domain"
	auditdomain "github.com/smallbiznis/flagship/internal/audit/domain"
	"github.com/smallbiznis/flagship/internal/cache"
	"github.com/smallbiznis/flagship/internal/clock"
	obscontext "github.com/smallbiznis/flagship/internal/observability/context"
	"github.com/smallbiznis/flagship/internal/user/domain"
	"github.com/smallbiznis/flagship/pkg/repository"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
	Repo  repository.Repository[domain.User]
	Apps  appdomain.Repository
	Cache *cache.Layer
	Audit auditdomain.Service
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
	repo  repository.Repository[domain.User]
	apps  appdomain.Repository
	cache *cache.Layer
	audit auditdomain.Service
}

func New(p Params) domain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("user.service"),
		genID: p.GenID,
		clock: p.Clock,
		repo:  p.Repo,
		apps:  p.Apps,
		cache: p.Cache,
		audit: p.Audit,
	}
}

// Identify upserts the user by (app, externalId) and merges metadata.
func (s *Service) Identify(ctx context.Context, req domain.IdentifyRequest) (*domain.User, error) {
	appID, err := parseAppID(req.AppID)
	if err != nil {
		return nil, err
	}
	externalID := strings.TrimSpace(req.ExternalID)
	if externalID == "" {
		return nil, domain.ErrInvalidExternalID
	}

	app, err := s.apps.FindByID(ctx, s.db, appID.Int64())
	if err != nil {
		return nil, err
	}
	if app == nil {
		return nil, domain.ErrAppNotFound
	}

	now := s.clock.Now()
	user, err := s.repo.FindOne(ctx, &domain.User{AppID: appID, ExternalID: externalID})
	if err != nil {
		return nil, err
	}
	created := user == nil
	if created {
		user = &domain.User{
			ID:         s.genID.Generate(),
			AppID:      appID,
			ExternalID: externalID,
			IsActive:   true,
			CreatedAt:  now,
		}
	}
	if len(req.Metadata) > 0 {
		merged := map[string]any{}
		maps.Copy(merged, user.Metadata)
		maps.Copy(merged, req.Metadata)
		user.Metadata = datatypes.JSONMap(merged)
	}
	user.UpdatedAt = now

	if err := s.repo.Save(ctx, user); err != nil {
		return nil, err
	}
	s.invalidate(ctx, user)

	if created {
		s.audit.Record(ctx, auditdomain.Entry{
			Actor:      resolveActor(ctx, req.Actor),
			Action:     auditdomain.ActionUserIdentify,
			TargetType: auditdomain.TargetUser,
			TargetID:   user.ID.String(),
			Message:    fmt.Sprintf("identified user for app %s", app.Name),
		})
	}
	return user, nil
}

func (s *Service) GetByID(ctx context.Context, id string) (*domain.User, error) {
	userID, err := parseID(id)
	if err != nil {
		return nil, err
	}
	key := cache.IDKey(cache.KindUser, userID.String())
	if cached, ok := cache.GetJSON[domain.User](ctx, s.cache, key); ok {
		return &cached, nil
	}
	user, err := s.repo.FindByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, domain.ErrNotFound
	}
	cache.FillJSON(ctx, s.cache, key, user, 0)
	return user, nil
}

func (s *Service) GetByExternalID(ctx context.Context, appID, externalID string) (*domain.User, error) {
	id, err := parseAppID(appID)
	if err != nil {
		return nil, err
	}
	externalID = strings.TrimSpace(externalID)
	if externalID == "" {
		return nil, domain.ErrInvalidExternalID
	}
	key := cache.ByUserKey(cache.KindUser, id.String(), externalID)
	if cached, ok := cache.GetJSON[domain.User](ctx, s.cache, key); ok {
		return &cached, nil
	}
	user, err := s.repo.FindOne(ctx, &domain.User{AppID: id, ExternalID: externalID})
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, domain.ErrNotFound
	}
	cache.FillJSON(ctx, s.cache, key, user, 0)
	return user, nil
}

func (s *Service) ListByApp(ctx context.Context, appID string) ([]domain.User, error) {
	id, err := parseAppID(appID)
	if err != nil {
		return nil, err
	}
	key := cache.ByAppKey(cache.KindUser, id.String())
	if cached, ok := cache.GetJSON[[]domain.User](ctx, s.cache, key); ok {
		return cached, nil
	}
	rows, err := s.repo.Find(ctx, &domain.User{AppID: id}, repository.WithOrder("external_id asc"))
	if err != nil {
		return nil, err
	}
	items := make([]domain.User, 0, len(rows))
	for _, row := range rows {
		if row != nil {
			items = append(items, *row)
		}
	}
	cache.FillJSON(ctx, s.cache, key, items, 0)
	return items, nil
}

func (s *Service) SetActive(ctx context.Context, req domain.SetActiveRequest) (*domain.User, error) {
	userID, err := parseID(req.ID)
	if err != nil {
		return nil, err
	}
	user, err := s.repo.FindByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, domain.ErrNotFound
	}
	user.IsActive = req.IsActive
	user.UpdatedAt = s.clock.Now()
	if err := s.repo.Save(ctx, user); err != nil {
		return nil, err
	}
	s.invalidate(ctx, user)

	s.audit.Record(ctx, auditdomain.Entry{
		Actor:      resolveActor(ctx, req.Actor),
		Action:     auditdomain.ActionUserUpdate,
		TargetType: auditdomain.TargetUser,
		TargetID:   user.ID.String(),
		Message:    fmt.Sprintf("set user active=%t", user.IsActive),
	})
	return user, nil
}

// invalidate drops the user's keys; only the id key is written back.
func (s *Service) invalidate(ctx context.Context, user *domain.User) {
	s.cache.InvalidateUser(ctx, cache.UserRef{
		ID:         user.ID.String(),
		AppID:      user.AppID.String(),
		ExternalID: user.ExternalID,
	})
	cache.SetJSON(ctx, s.cache, cache.IDKey(cache.KindUser, user.ID.String()), user, 0)
}

func parseID(value string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(value))
	if err != nil || id == 0 {
		return 0, domain.ErrInvalidID
	}
	return id, nil
}

func parseAppID(value string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(value))
	if err != nil || id == 0 {
		return 0, domain.ErrInvalidAppID
	}
	return id, nil
}

func resolveActor(ctx context.Context, actor string) string {
	if actor = strings.TrimSpace(actor); actor != "" {
		return actor
	}
	return obscontext.ActorFromContext(ctx)
}
