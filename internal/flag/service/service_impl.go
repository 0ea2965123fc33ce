package service

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	appdomain "github.com/smallbiznis/flagship/internal/app/domain"
	auditdomain "github.com/smallbiznis/flagship/internal/audit/domain"
	"github.com/smallbiznis/flagship/internal/cache"
	"github.com/smallbiznis/flagship/internal/clock"
	"github.com/smallbiznis/flagship/internal/flag/domain"
	obscontext "github.com/smallbiznis/flagship/internal/observability/context"
	"github.com/smallbiznis/flagship/internal/propagation"
	dbpkg "github.com/smallbiznis/flagship/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
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
	Cache       *cache.Layer
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
	cache       *cache.Layer
	audit       auditdomain.Service
}

func New(p Params) domain.Service {
	return &Service{
		db:          p.DB,
		log:         p.Log.Named("flag.service"),
		genID:       p.GenID,
		clock:       p.Clock,
		repo:        p.Repo,
		apps:        p.Apps,
		propagation: p.Propagation,
		cache:       p.Cache,
		audit:       p.Audit,
	}
}

// Create stores the flag with one setting per existing environment of the app, built from req.Defaults.
func (s *Service) Create(ctx context.Context, req domain.CreateRequest) (*domain.Flag, error) {
	appID, err := parseAppID(req.AppID)
	if err != nil {
		return nil, err
	}
	name := strings.TrimSpace(req.Name)
	if !slug.IsSlug(name) {
		return nil, domain.ErrInvalidName
	}
	flagType, err := domain.NormalizeType(req.Type)
	if err != nil {
		return nil, err
	}
	enumValues, err := domain.ValidateEnumValues(flagType, req.EnumValues)
	if err != nil {
		return nil, err
	}
	defaults, err := req.Defaults.Normalize()
	if err != nil {
		return nil, err
	}
	if err := defaults.Validate(flagType, enumValues); err != nil {
		return nil, err
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

	settings, err := s.propagation.BuildSettings(ctx, appID, defaults, actor)
	if err != nil {
		return nil, fmt.Errorf("build environment settings: %w", err)
	}

	now := s.clock.Now()
	flag := &domain.Flag{
		ID:           s.genID.Generate(),
		AppID:        appID,
		Name:         name,
		Description:  strings.TrimSpace(req.Description),
		Type:         flagType,
		Environments: datatypes.NewJSONSlice(settings),
		CreatedBy:    actor,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if len(enumValues) > 0 {
		flag.EnumValues = datatypes.NewJSONSlice(enumValues)
	}
	if err := s.repo.Insert(ctx, s.db, flag); err != nil {
		if dbpkg.IsDuplicateKeyErr(err) {
			return nil, domain.ErrNameTaken
		}
		return nil, err
	}
	s.invalidate(ctx, flag)

	s.audit.Record(ctx, auditdomain.Entry{
		Actor:      actor,
		Action:     auditdomain.ActionFlagCreate,
		TargetType: auditdomain.TargetFlag,
		TargetID:   flag.ID.String(),
		Message:    fmt.Sprintf("created %s flag %s", flag.Type, flag.Name),
	})
	return flag, nil
}

// Toggle flips isActive of one environment setting. Concurrent toggles are last-write-wins.
func (s *Service) Toggle(ctx context.Context, req domain.ToggleRequest) (*domain.Flag, error) {
	actor := resolveActor(ctx, req.Actor)
	var active bool
	flag, err := s.mutateSetting(ctx, req.FlagID, req.EnvironmentID, func(f *domain.Flag, setting *domain.EnvironmentSetting) error {
		setting.IsActive = !setting.IsActive
		setting.UpdatedBy = actor
		setting.UpdatedAt = s.clock.Now()
		active = setting.IsActive
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.audit.Record(ctx, auditdomain.Entry{
		Actor:      actor,
		Action:     auditdomain.ActionFlagToggle,
		TargetType: auditdomain.TargetFlag,
		TargetID:   flag.ID.String(),
		Message:    fmt.Sprintf("toggled flag %s in environment %s to %t", flag.Name, strings.TrimSpace(req.EnvironmentID), active),
	})
	return flag, nil
}

func (s *Service) UpdateSetting(ctx context.Context, req domain.UpdateSettingRequest) (*domain.Flag, error) {
	input, err := req.Setting.Normalize()
	if err != nil {
		return nil, err
	}
	actor := resolveActor(ctx, req.Actor)

	flag, err := s.mutateSetting(ctx, req.FlagID, req.EnvironmentID, func(f *domain.Flag, setting *domain.EnvironmentSetting) error {
		if err := input.Validate(f.Type, f.EnumValues); err != nil {
			return err
		}
		*setting = input.Bind(setting.EnvironmentID, actor, s.clock.Now())
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.audit.Record(ctx, auditdomain.Entry{
		Actor:      actor,
		Action:     auditdomain.ActionFlagSettingUpdate,
		TargetType: auditdomain.TargetFlag,
		TargetID:   flag.ID.String(),
		Message:    fmt.Sprintf("updated %s setting of flag %s", input.Strategy, flag.Name),
	})
	return flag, nil
}

func (s *Service) Update(ctx context.Context, req domain.UpdateRequest) (*domain.Flag, error) {
	flagID, err := parseID(req.ID)
	if err != nil {
		return nil, err
	}
	flag, err := s.repo.FindByID(ctx, s.db, flagID.Int64())
	if err != nil {
		return nil, err
	}
	if flag == nil {
		return nil, domain.ErrNotFound
	}

	if req.Description != nil {
		flag.Description = strings.TrimSpace(*req.Description)
	}
	if req.EnumValues != nil {
		values, err := domain.ValidateEnumValues(flag.Type, req.EnumValues)
		if err != nil {
			return nil, err
		}
		for _, setting := range flag.Environments {
			if err := setting.Input().Validate(flag.Type, values); err != nil {
				return nil, err
			}
		}
		flag.EnumValues = datatypes.NewJSONSlice(values)
	}
	flag.UpdatedAt = s.clock.Now()

	if err := s.repo.Update(ctx, s.db, flag); err != nil {
		return nil, err
	}
	s.invalidate(ctx, flag)

	s.audit.Record(ctx, auditdomain.Entry{
		Actor:      resolveActor(ctx, req.Actor),
		Action:     auditdomain.ActionFlagUpdate,
		TargetType: auditdomain.TargetFlag,
		TargetID:   flag.ID.String(),
		Message:    fmt.Sprintf("updated flag %s", flag.Name),
	})
	return flag, nil
}

func (s *Service) Delete(ctx context.Context, req domain.DeleteRequest) error {
	flagID, err := parseID(req.ID)
	if err != nil {
		return err
	}
	flag, err := s.repo.FindByID(ctx, s.db, flagID.Int64())
	if err != nil {
		return err
	}
	if flag == nil {
		return domain.ErrNotFound
	}

	affected, err := s.repo.Delete(ctx, s.db, flagID.Int64())
	if err != nil {
		return err
	}
	s.cache.InvalidateFlag(ctx, refOf(flag))
	if affected == 0 {
		return domain.ErrNotFound
	}

	s.audit.Record(ctx, auditdomain.Entry{
		Actor:      resolveActor(ctx, req.Actor),
		Action:     auditdomain.ActionFlagDelete,
		TargetType: auditdomain.TargetFlag,
		TargetID:   flag.ID.String(),
		Message:    fmt.Sprintf("deleted flag %s", flag.Name),
	})
	return nil
}

func (s *Service) GetByID(ctx context.Context, id string) (*domain.Flag, error) {
	flagID, err := parseID(id)
	if err != nil {
		return nil, err
	}
	key := cache.IDKey(cache.KindFlag, flagID.String())
	if cached, ok := cache.GetJSON[domain.Flag](ctx, s.cache, key); ok {
		return &cached, nil
	}

	flag, err := s.repo.FindByID(ctx, s.db, flagID.Int64())
	if err != nil {
		return nil, err
	}
	if flag == nil {
		return nil, domain.ErrNotFound
	}
	cache.FillJSON(ctx, s.cache, key, flag, 0)
	return flag, nil
}

func (s *Service) GetByName(ctx context.Context, appID, name string) (*domain.Flag, error) {
	id, err := parseAppID(appID)
	if err != nil {
		return nil, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, domain.ErrInvalidName
	}
	key := cache.NameKey(cache.KindFlag, id.String(), name)
	if cached, ok := cache.GetJSON[domain.Flag](ctx, s.cache, key); ok {
		return &cached, nil
	}

	flag, err := s.repo.FindByName(ctx, s.db, id.Int64(), name)
	if err != nil {
		return nil, err
	}
	if flag == nil {
		return nil, domain.ErrNotFound
	}
	cache.FillJSON(ctx, s.cache, key, flag, 0)
	return flag, nil
}

func (s *Service) List(ctx context.Context) ([]domain.Flag, error) {
	key := cache.AllKey(cache.KindFlag)
	if cached, ok := cache.GetJSON[[]domain.Flag](ctx, s.cache, key); ok {
		return cached, nil
	}
	items, err := s.repo.List(ctx, s.db)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []domain.Flag{}
	}
	cache.FillJSON(ctx, s.cache, key, items, 0)
	return items, nil
}

func (s *Service) ListByApp(ctx context.Context, appID string) ([]domain.Flag, error) {
	id, err := parseAppID(appID)
	if err != nil {
		return nil, err
	}
	key := cache.ByAppKey(cache.KindFlag, id.String())
	if cached, ok := cache.GetJSON[[]domain.Flag](ctx, s.cache, key); ok {
		return cached, nil
	}
	items, err := s.listByApp(ctx, id)
	if err != nil {
		return nil, err
	}
	cache.FillJSON(ctx, s.cache, key, items, 0)
	return items, nil
}

// ListTargetingUser returns the flags whose allow or deny lists name userID.
func (s *Service) ListTargetingUser(ctx context.Context, appID, userID string) ([]domain.Flag, error) {
	id, err := parseAppID(appID)
	if err != nil {
		return nil, err
	}
	userID = strings.TrimSpace(userID)
	key := cache.ByUserKey(cache.KindFlag, id.String(), userID)
	if cached, ok := cache.GetJSON[[]domain.Flag](ctx, s.cache, key); ok {
		return cached, nil
	}
	items, err := s.listByApp(ctx, id)
	if err != nil {
		return nil, err
	}
	targeting := slices.DeleteFunc(items, func(f domain.Flag) bool {
		return !f.Targets(userID)
	})
	cache.FillJSON(ctx, s.cache, key, targeting, 0)
	return targeting, nil
}

func (s *Service) listByApp(ctx context.Context, appID snowflake.ID) ([]domain.Flag, error) {
	app, err := s.apps.FindByID(ctx, s.db, appID.Int64())
	if err != nil {
		return nil, err
	}
	if app == nil {
		return nil, domain.ErrAppNotFound
	}
	items, err := s.repo.ListByApp(ctx, s.db, appID.Int64())
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []domain.Flag{}
	}
	return items, nil
}

type settingMutation func(flag *domain.Flag, setting *domain.EnvironmentSetting) error

// mutateSetting is a read-modify-write on the stored flag without a concurrency token.
func (s *Service) mutateSetting(ctx context.Context, flagRef, envRef string, mutate settingMutation) (*domain.Flag, error) {
	flagID, err := parseID(flagRef)
	if err != nil {
		return nil, err
	}
	envID, err := snowflake.ParseString(strings.TrimSpace(envRef))
	if err != nil || envID == 0 {
		return nil, domain.ErrInvalidEnvironmentID
	}

	flag, err := s.repo.FindByID(ctx, s.db, flagID.Int64())
	if err != nil {
		return nil, err
	}
	if flag == nil {
		return nil, domain.ErrNotFound
	}
	setting, ok := flag.SettingFor(envID)
	if !ok {
		return nil, fmt.Errorf("flag %s environment %s: %w", flag.ID, envID, domain.ErrSettingNotFound)
	}
	if err := mutate(flag, setting); err != nil {
		return nil, err
	}
	flag.UpdatedAt = s.clock.Now()

	if err := s.repo.UpdateSettings(ctx, s.db, flag); err != nil {
		return nil, err
	}
	s.invalidate(ctx, flag)
	return flag, nil
}

// invalidate drops every derived key and writes the fresh snapshot back under id and name only.
func (s *Service) invalidate(ctx context.Context, flag *domain.Flag) {
	s.cache.InvalidateFlag(ctx, refOf(flag))
	cache.SetJSON(ctx, s.cache, cache.IDKey(cache.KindFlag, flag.ID.String()), flag, 0)
	cache.SetJSON(ctx, s.cache, cache.NameKey(cache.KindFlag, flag.AppID.String(), flag.Name), flag, 0)
}

func refOf(flag *domain.Flag) cache.FlagRef {
	return cache.FlagRef{
		ID:    flag.ID.String(),
		AppID: flag.AppID.String(),
		Name:  flag.Name,
	}
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
