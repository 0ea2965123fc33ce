package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/bwmarrin/snowflake"
	appdomain "github.com/smallbiznis/flagship/internal/app/domain"
	apprepo "github.com/smallbiznis/flagship/internal/app/repository"
	auditdomain "github.com/smallbiznis/flagship/internal/audit/domain"
	"github.com/smallbiznis/flagship/internal/cache"
	envdomain "github.com/smallbiznis/flagship/internal/environment/domain"
	envrepo "github.com/smallbiznis/flagship/internal/environment/repository"
	"github.com/smallbiznis/flagship/internal/flag/domain"
	"github.com/smallbiznis/flagship/internal/flag/repository"
	"github.com/smallbiznis/flagship/internal/propagation"
	"github.com/smallbiznis/flagship/internal/testutil"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type testEnv struct {
	db      *gorm.DB
	node    *snowflake.Node
	svc     domain.Service
	store   *cache.MemoryStore
	audit   *testutil.AuditRecorder
	app     appdomain.App
	prod    envdomain.Environment
	staging envdomain.Environment
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	ctx := context.Background()
	db := testutil.NewDB(t)
	node := testutil.NewNode(t)
	clk := testutil.NewClock()
	layer, store := testutil.NewCache(t)
	apps := apprepo.Provide()
	envs := envrepo.Provide()
	flags := repository.Provide()

	env := &testEnv{db: db, node: node, store: store, audit: &testutil.AuditRecorder{}}
	env.svc = New(Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Clock: clk,
		Repo:  flags,
		Apps:  apps,
		Propagation: propagation.New(propagation.Params{
			DB:           db,
			Log:          zap.NewNop(),
			Clock:        clk,
			Cache:        layer,
			Flags:        flags,
			Environments: envs,
		}),
		Cache: layer,
		Audit: env.audit,
	})

	env.app = appdomain.App{ID: node.Generate(), Name: "checkout", IsActive: true, CreatedAt: clk.Now(), UpdatedAt: clk.Now()}
	if err := apps.Insert(ctx, db, &env.app); err != nil {
		t.Fatalf("insert app: %v", err)
	}
	for _, e := range []*envdomain.Environment{&env.prod, &env.staging} {
		*e = envdomain.Environment{ID: node.Generate(), AppID: env.app.ID, IsActive: true, CreatedAt: clk.Now(), UpdatedAt: clk.Now()}
	}
	env.prod.Name = envdomain.ProductionName
	env.staging.Name = "Staging"
	for _, e := range []*envdomain.Environment{&env.prod, &env.staging} {
		if err := envs.Insert(ctx, db, e); err != nil {
			t.Fatalf("insert environment: %v", err)
		}
	}
	return env
}

func (e *testEnv) create(t *testing.T, req domain.CreateRequest) *domain.Flag {
	t.Helper()
	if req.AppID == "" {
		req.AppID = e.app.ID.String()
	}
	flag, err := e.svc.Create(context.Background(), req)
	if err != nil {
		t.Fatalf("create flag %s: %v", req.Name, err)
	}
	return flag
}

func TestCreateCoversEveryEnvironment(t *testing.T) {
	env := newTestEnv(t)

	flag := env.create(t, domain.CreateRequest{Name: "dark-mode", Actor: "alice"})
	if flag.Type != domain.TypeBoolean {
		t.Fatalf("expected default BOOLEAN type, got %s", flag.Type)
	}
	if len(flag.Environments) != 2 || !flag.HasSetting(env.prod.ID) || !flag.HasSetting(env.staging.ID) {
		t.Fatalf("expected a setting per environment, got %+v", flag.Environments)
	}
	for _, s := range flag.Environments {
		if s.IsActive || s.Strategy != domain.StrategyBoolean || s.UpdatedBy != "alice" {
			t.Fatalf("unexpected default setting %+v", s)
		}
	}
	if got := env.audit.Actions(); len(got) != 1 || got[0] != auditdomain.ActionFlagCreate {
		t.Fatalf("unexpected audit actions %v", got)
	}
}

func TestCreateValidation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	appID := env.app.ID.String()
	env.create(t, domain.CreateRequest{Name: "dark-mode"})

	cases := []struct {
		name string
		req  domain.CreateRequest
		want error
	}{
		{name: "bad app id", req: domain.CreateRequest{AppID: "x", Name: "a"}, want: domain.ErrInvalidAppID},
		{name: "not a slug", req: domain.CreateRequest{AppID: appID, Name: "Dark Mode"}, want: domain.ErrInvalidName},
		{name: "unknown type", req: domain.CreateRequest{AppID: appID, Name: "a", Type: "NUMBER"}, want: domain.ErrInvalidType},
		{name: "enum without values", req: domain.CreateRequest{AppID: appID, Name: "a", Type: domain.TypeEnum}, want: domain.ErrInvalidEnumValues},
		{name: "bad percentage", req: domain.CreateRequest{AppID: appID, Name: "a", Defaults: domain.SettingInput{Strategy: domain.StrategyPercentage}}, want: domain.ErrInvalidPercentage},
		{name: "duplicate", req: domain.CreateRequest{AppID: appID, Name: "dark-mode"}, want: domain.ErrNameTaken},
		{name: "unknown app", req: domain.CreateRequest{AppID: env.node.Generate().String(), Name: "a"}, want: domain.ErrAppNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := env.svc.Create(ctx, tc.req); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestCreateWithoutProductionFails(t *testing.T) {
	env := newTestEnv(t)
	if err := env.db.Exec("DELETE FROM environments WHERE id = ?", env.prod.ID).Error; err != nil {
		t.Fatalf("delete production: %v", err)
	}
	_, err := env.svc.Create(context.Background(), domain.CreateRequest{AppID: env.app.ID.String(), Name: "dark-mode"})
	if !errors.Is(err, propagation.ErrProductionMissing) {
		t.Fatalf("expected ErrProductionMissing, got %v", err)
	}
}

func TestToggleFlipsOneEnvironmentAndInvalidates(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	flag := env.create(t, domain.CreateRequest{Name: "dark-mode"})

	if _, err := env.svc.ListByApp(ctx, env.app.ID.String()); err != nil {
		t.Fatalf("list by app: %v", err)
	}
	byAppKey := cache.ByAppKey(cache.KindFlag, env.app.ID.String())
	if _, ok, _ := env.store.Get(ctx, byAppKey); !ok {
		t.Fatalf("expected byApp list cached")
	}

	toggled, err := env.svc.Toggle(ctx, domain.ToggleRequest{FlagID: flag.ID.String(), EnvironmentID: env.staging.ID.String(), Actor: "bob"})
	if err != nil {
		t.Fatalf("toggle: %v", err)
	}
	staging, _ := toggled.SettingFor(env.staging.ID)
	prod, _ := toggled.SettingFor(env.prod.ID)
	if !staging.IsActive || staging.UpdatedBy != "bob" || prod.IsActive {
		t.Fatalf("expected only Staging flipped, got staging=%+v prod=%+v", staging, prod)
	}
	if _, ok, _ := env.store.Get(ctx, byAppKey); ok {
		t.Fatalf("expected byApp list invalidated")
	}

	fresh, err := env.svc.GetByID(ctx, flag.ID.String())
	if err != nil {
		t.Fatalf("get by id: %v", err)
	}
	if s, _ := fresh.SettingFor(env.staging.ID); !s.IsActive {
		t.Fatalf("expected read after toggle to observe new state")
	}
	byName, err := env.svc.GetByName(ctx, env.app.ID.String(), "dark-mode")
	if err != nil {
		t.Fatalf("get by name: %v", err)
	}
	if s, _ := byName.SettingFor(env.staging.ID); !s.IsActive {
		t.Fatalf("expected name snapshot refreshed")
	}

	again, err := env.svc.Toggle(ctx, domain.ToggleRequest{FlagID: flag.ID.String(), EnvironmentID: env.staging.ID.String()})
	if err != nil {
		t.Fatalf("toggle back: %v", err)
	}
	if s, _ := again.SettingFor(env.staging.ID); s.IsActive {
		t.Fatalf("expected second toggle to restore inactive")
	}
}

func TestToggleErrors(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	flag := env.create(t, domain.CreateRequest{Name: "dark-mode"})

	if _, err := env.svc.Toggle(ctx, domain.ToggleRequest{FlagID: flag.ID.String(), EnvironmentID: env.node.Generate().String()}); !errors.Is(err, domain.ErrSettingNotFound) {
		t.Fatalf("expected ErrSettingNotFound, got %v", err)
	}
	if _, err := env.svc.Toggle(ctx, domain.ToggleRequest{FlagID: env.node.Generate().String(), EnvironmentID: env.prod.ID.String()}); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := env.svc.Toggle(ctx, domain.ToggleRequest{FlagID: flag.ID.String(), EnvironmentID: "0"}); !errors.Is(err, domain.ErrInvalidEnvironmentID) {
		t.Fatalf("expected ErrInvalidEnvironmentID, got %v", err)
	}
}

func TestUpdateSettingValidatesAgainstFlagType(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	flag := env.create(t, domain.CreateRequest{
		Name:       "theme",
		Type:       domain.TypeEnum,
		EnumValues: []string{"light", "dark"},
		Defaults:   domain.SettingInput{Value: json.RawMessage(`"light"`)},
	})

	_, err := env.svc.UpdateSetting(ctx, domain.UpdateSettingRequest{
		FlagID:        flag.ID.String(),
		EnvironmentID: env.prod.ID.String(),
		Setting:       domain.SettingInput{Value: json.RawMessage(`"blue"`)},
	})
	if !errors.Is(err, domain.ErrInvalidValue) {
		t.Fatalf("expected ErrInvalidValue, got %v", err)
	}

	pct := 25.0
	updated, err := env.svc.UpdateSetting(ctx, domain.UpdateSettingRequest{
		FlagID:        flag.ID.String(),
		EnvironmentID: env.prod.ID.String(),
		Setting: domain.SettingInput{
			IsActive:   true,
			Strategy:   domain.StrategyPercentage,
			Percentage: &pct,
			Value:      json.RawMessage(`"dark"`),
		},
		Actor: "carol",
	})
	if err != nil {
		t.Fatalf("update setting: %v", err)
	}
	s, _ := updated.SettingFor(env.prod.ID)
	if s.Strategy != domain.StrategyPercentage || s.Percentage == nil || *s.Percentage != 25 || s.UpdatedBy != "carol" {
		t.Fatalf("unexpected setting %+v", s)
	}
	if staging, _ := updated.SettingFor(env.staging.ID); staging.Strategy != domain.StrategyBoolean {
		t.Fatalf("Staging must be untouched, got %+v", staging)
	}

	if _, err := env.svc.Update(ctx, domain.UpdateRequest{ID: flag.ID.String(), EnumValues: []string{"light"}}); !errors.Is(err, domain.ErrInvalidValue) {
		t.Fatalf("expected shrinking enum below a live value to fail, got %v", err)
	}
	desc := "colour scheme"
	changed, err := env.svc.Update(ctx, domain.UpdateRequest{ID: flag.ID.String(), Description: &desc, EnumValues: []string{"light", "dark", "system"}})
	if err != nil {
		t.Fatalf("update flag: %v", err)
	}
	if changed.Description != desc || len(changed.EnumValues) != 3 {
		t.Fatalf("unexpected flag %+v", changed)
	}
}

func TestListTargetingUser(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.create(t, domain.CreateRequest{Name: "beta", Defaults: domain.SettingInput{Strategy: domain.StrategyUser, AllowedUsers: []string{"alice"}}})
	env.create(t, domain.CreateRequest{Name: "legacy", Defaults: domain.SettingInput{Strategy: domain.StrategyUser, DisallowedUsers: []string{"alice", "bob"}}})
	env.create(t, domain.CreateRequest{Name: "plain"})

	items, err := env.svc.ListTargetingUser(ctx, env.app.ID.String(), "alice")
	if err != nil {
		t.Fatalf("list targeting: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 flags naming alice, got %d", len(items))
	}
	key := cache.ByUserKey(cache.KindFlag, env.app.ID.String(), "alice")
	if _, ok, _ := env.store.Get(ctx, key); !ok {
		t.Fatalf("expected byUser list cached")
	}

	items, err = env.svc.ListTargetingUser(ctx, env.app.ID.String(), "bob")
	if err != nil || len(items) != 1 || items[0].Name != "legacy" {
		t.Fatalf("expected only legacy for bob, got %+v err=%v", items, err)
	}
}

func TestDeleteRemovesFlagAndKeys(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	flag := env.create(t, domain.CreateRequest{Name: "dark-mode"})
	if _, err := env.svc.List(ctx); err != nil {
		t.Fatalf("list: %v", err)
	}

	if err := env.svc.Delete(ctx, domain.DeleteRequest{ID: flag.ID.String()}); err != nil {
		t.Fatalf("delete: %v", err)
	}
	for _, key := range []string{
		cache.IDKey(cache.KindFlag, flag.ID.String()),
		cache.NameKey(cache.KindFlag, env.app.ID.String(), flag.Name),
		cache.AllKey(cache.KindFlag),
	} {
		if _, ok, _ := env.store.Get(ctx, key); ok {
			t.Fatalf("expected %s removed", key)
		}
	}
	if _, err := env.svc.GetByID(ctx, flag.ID.String()); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := env.svc.Delete(ctx, domain.DeleteRequest{ID: flag.ID.String()}); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second delete, got %v", err)
	}
}
