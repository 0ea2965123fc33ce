package propagation

import (
	"context"
	"errors"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/flagship/internal/cache"
	"github.com/smallbiznis/flagship/internal/clock"
	"github.com/smallbiznis/flagship/internal/config"
	envdomain "github.com/smallbiznis/flagship/internal/environment/domain"
	envrepo "github.com/smallbiznis/flagship/internal/environment/repository"
	flagdomain "github.com/smallbiznis/flagship/internal/flag/domain"
	flagrepo "github.com/smallbiznis/flagship/internal/flag/repository"
	"github.com/smallbiznis/flagship/internal/testutil"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type fixture struct {
	db      *gorm.DB
	node    *snowflake.Node
	clock   *clock.FakeClock
	cache   *cache.Layer
	store   *cache.MemoryStore
	flags   flagdomain.Repository
	envs    envdomain.Repository
	manager Manager
	appID   snowflake.ID
	prod    envdomain.Environment
}

type failingFlagRepo struct {
	flagdomain.Repository
	failFor snowflake.ID
}

func (r *failingFlagRepo) UpdateSettings(ctx context.Context, db *gorm.DB, flag *flagdomain.Flag) error {
	if flag.ID == r.failFor {
		return errors.New("write failed")
	}
	return r.Repository.UpdateSettings(ctx, db, flag)
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		db:    testutil.NewDB(t),
		node:  testutil.NewNode(t),
		clock: testutil.NewClock(),
		flags: flagrepo.Provide(),
		envs:  envrepo.Provide(),
	}
	f.cache, f.store = testutil.NewCache(t)
	f.appID = f.node.Generate()
	f.prod = f.insertEnv(t, envdomain.ProductionName)
	f.manager = f.newManager(f.flags)
	return f
}

func (f *fixture) newManager(flags flagdomain.Repository) Manager {
	return New(Params{
		DB:           f.db,
		Log:          zap.NewNop(),
		Clock:        f.clock,
		Cache:        f.cache,
		Flags:        flags,
		Environments: f.envs,
		Runtime:      config.NewStaticRuntimeHolder(config.Runtime{PropagationConcurrency: 2, BatchConcurrency: 2}),
	})
}

func (f *fixture) insertEnv(t *testing.T, name string) envdomain.Environment {
	t.Helper()
	env := envdomain.Environment{
		ID:        f.node.Generate(),
		AppID:     f.appID,
		Name:      name,
		IsActive:  true,
		CreatedBy: "test",
		CreatedAt: f.clock.Now(),
		UpdatedAt: f.clock.Now(),
	}
	if err := f.envs.Insert(context.Background(), f.db, &env); err != nil {
		t.Fatalf("insert environment: %v", err)
	}
	return env
}

func (f *fixture) insertFlag(t *testing.T, name string, settings ...flagdomain.EnvironmentSetting) *flagdomain.Flag {
	t.Helper()
	flag := &flagdomain.Flag{
		ID:           f.node.Generate(),
		AppID:        f.appID,
		Name:         name,
		Type:         flagdomain.TypeBoolean,
		Environments: datatypes.NewJSONSlice(settings),
		CreatedBy:    "test",
		CreatedAt:    f.clock.Now(),
		UpdatedAt:    f.clock.Now(),
	}
	if err := f.flags.Insert(context.Background(), f.db, flag); err != nil {
		t.Fatalf("insert flag: %v", err)
	}
	return flag
}

func (f *fixture) reload(t *testing.T, id snowflake.ID) *flagdomain.Flag {
	t.Helper()
	flag, err := f.flags.FindByID(context.Background(), f.db, id.Int64())
	if err != nil || flag == nil {
		t.Fatalf("reload flag %s: %v", id, err)
	}
	return flag
}

func countFor(flag *flagdomain.Flag, envID snowflake.ID) int {
	n := 0
	for _, s := range flag.Environments {
		if s.EnvironmentID == envID {
			n++
		}
	}
	return n
}

func TestOnEnvironmentCreatedClonesProduction(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	flag := f.insertFlag(t, "dark-mode", flagdomain.EnvironmentSetting{
		EnvironmentID: f.prod.ID,
		IsActive:      true,
		Strategy:      flagdomain.StrategyUser,
		AllowedUsers:  []string{"alice"},
		UpdatedBy:     "creator",
	})
	staging := f.insertEnv(t, "Staging")

	f.clock.Advance(1)
	report, err := f.manager.OnEnvironmentCreated(ctx, f.appID, staging.ID, "ops")
	if err != nil {
		t.Fatalf("propagate: %v", err)
	}
	if report.Updated != 1 || report.Failed() != 0 {
		t.Fatalf("unexpected report %+v", report)
	}

	stored := f.reload(t, flag.ID)
	setting, ok := stored.SettingFor(staging.ID)
	if !ok {
		t.Fatalf("expected Staging setting")
	}
	if !setting.IsActive || setting.Strategy != flagdomain.StrategyUser || len(setting.AllowedUsers) != 1 {
		t.Fatalf("expected copy of Production, got %+v", setting)
	}
	if setting.UpdatedBy != "ops" {
		t.Fatalf("expected updatedBy ops, got %q", setting.UpdatedBy)
	}
	prodSetting, _ := stored.SettingFor(f.prod.ID)
	if prodSetting.UpdatedBy != "creator" {
		t.Fatalf("Production setting must be untouched, got %q", prodSetting.UpdatedBy)
	}
}

func TestOnEnvironmentCreatedIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	flag := f.insertFlag(t, "dark-mode", flagdomain.EnvironmentSetting{EnvironmentID: f.prod.ID, Strategy: flagdomain.StrategyBoolean})
	staging := f.insertEnv(t, "Staging")

	if _, err := f.manager.OnEnvironmentCreated(ctx, f.appID, staging.ID, "ops"); err != nil {
		t.Fatalf("first propagate: %v", err)
	}
	report, err := f.manager.OnEnvironmentCreated(ctx, f.appID, staging.ID, "ops")
	if err != nil {
		t.Fatalf("second propagate: %v", err)
	}
	if report.Updated != 0 || report.Skipped != 1 {
		t.Fatalf("expected second run to skip, got %+v", report)
	}
	if n := countFor(f.reload(t, flag.ID), staging.ID); n != 1 {
		t.Fatalf("expected exactly one Staging setting, got %d", n)
	}
}

func TestOnEnvironmentCreatedCoversEveryFlag(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	var ids []snowflake.ID
	for _, name := range []string{"a", "b", "c", "d", "e"} {
		flag := f.insertFlag(t, name, flagdomain.EnvironmentSetting{EnvironmentID: f.prod.ID, Strategy: flagdomain.StrategyBoolean})
		ids = append(ids, flag.ID)
	}

	envs := []envdomain.Environment{f.prod}
	for _, name := range []string{"Staging", "QA", "Dev"} {
		env := f.insertEnv(t, name)
		envs = append(envs, env)
		if _, err := f.manager.OnEnvironmentCreated(ctx, f.appID, env.ID, "ops"); err != nil {
			t.Fatalf("propagate %s: %v", name, err)
		}
	}

	for _, id := range ids {
		flag := f.reload(t, id)
		if len(flag.Environments) != len(envs) {
			t.Fatalf("flag %s has %d settings, want %d", flag.Name, len(flag.Environments), len(envs))
		}
		for _, env := range envs {
			if countFor(flag, env.ID) != 1 {
				t.Fatalf("flag %s missing single setting for %s", flag.Name, env.Name)
			}
		}
	}
}

func TestOnEnvironmentCreatedRequiresProduction(t *testing.T) {
	f := newFixture(t)
	other := f.node.Generate()

	_, err := f.manager.OnEnvironmentCreated(context.Background(), other, f.node.Generate(), "ops")
	if !errors.Is(err, ErrProductionMissing) {
		t.Fatalf("expected ErrProductionMissing, got %v", err)
	}
}

func TestOnEnvironmentCreatedIsolatesFailures(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	broken := f.insertFlag(t, "broken", flagdomain.EnvironmentSetting{EnvironmentID: f.prod.ID, Strategy: flagdomain.StrategyBoolean})
	noBaseline := f.insertFlag(t, "no-baseline")
	healthy := f.insertFlag(t, "healthy", flagdomain.EnvironmentSetting{EnvironmentID: f.prod.ID, Strategy: flagdomain.StrategyBoolean})
	staging := f.insertEnv(t, "Staging")

	manager := f.newManager(&failingFlagRepo{Repository: f.flags, failFor: broken.ID})
	report, err := manager.OnEnvironmentCreated(ctx, f.appID, staging.ID, "ops")
	if err != nil {
		t.Fatalf("sweep must not fail as a whole: %v", err)
	}
	if report.Updated != 1 || report.Failed() != 2 {
		t.Fatalf("unexpected report %+v", report)
	}
	if !errors.Is(report.Err(), ErrProductionMissing) {
		t.Fatalf("expected aggregated ErrProductionMissing, got %v", report.Err())
	}
	if !f.reload(t, healthy.ID).HasSetting(staging.ID) {
		t.Fatalf("healthy flag must be propagated despite other failures")
	}
	if f.reload(t, noBaseline.ID).HasSetting(staging.ID) {
		t.Fatalf("flag without Production setting must not gain a setting")
	}
}

func TestOnEnvironmentDeletedStripsSettings(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	staging := f.insertEnv(t, "Staging")
	flag := f.insertFlag(t, "dark-mode",
		flagdomain.EnvironmentSetting{EnvironmentID: f.prod.ID, Strategy: flagdomain.StrategyBoolean},
		flagdomain.EnvironmentSetting{EnvironmentID: staging.ID, Strategy: flagdomain.StrategyBoolean},
	)
	untouched := f.insertFlag(t, "other", flagdomain.EnvironmentSetting{EnvironmentID: f.prod.ID, Strategy: flagdomain.StrategyBoolean})

	report, err := f.manager.OnEnvironmentDeleted(ctx, f.appID, staging.ID, "ops")
	if err != nil {
		t.Fatalf("propagate delete: %v", err)
	}
	if report.Updated != 1 || report.Skipped != 1 {
		t.Fatalf("unexpected report %+v", report)
	}
	if f.reload(t, flag.ID).HasSetting(staging.ID) {
		t.Fatalf("expected Staging setting removed")
	}
	if len(f.reload(t, untouched.ID).Environments) != 1 {
		t.Fatalf("expected other flag untouched")
	}
}

func TestSweepInvalidatesCachedSnapshots(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	flag := f.insertFlag(t, "dark-mode", flagdomain.EnvironmentSetting{EnvironmentID: f.prod.ID, Strategy: flagdomain.StrategyBoolean})
	staging := f.insertEnv(t, "Staging")

	idKey := cache.IDKey(cache.KindFlag, flag.ID.String())
	nameKey := cache.NameKey(cache.KindFlag, f.appID.String(), flag.Name)
	appKey := cache.ByAppKey(cache.KindFlag, f.appID.String())
	for _, key := range []string{idKey, nameKey, appKey} {
		cache.SetJSON(ctx, f.cache, key, flag, 0)
	}

	if _, err := f.manager.OnEnvironmentCreated(ctx, f.appID, staging.ID, "ops"); err != nil {
		t.Fatalf("propagate: %v", err)
	}
	for _, key := range []string{idKey, nameKey, appKey} {
		if _, ok, _ := f.store.Get(ctx, key); ok {
			t.Fatalf("expected %s invalidated", key)
		}
	}
}

func TestBuildSettingsCoversEveryEnvironment(t *testing.T) {
	f := newFixture(t)
	staging := f.insertEnv(t, "Staging")

	settings, err := f.manager.BuildSettings(context.Background(), f.appID, flagdomain.SettingInput{
		Strategy: flagdomain.StrategyBoolean,
		IsActive: true,
	}, "creator")
	if err != nil {
		t.Fatalf("build settings: %v", err)
	}
	if len(settings) != 2 {
		t.Fatalf("expected 2 settings, got %d", len(settings))
	}
	seen := map[snowflake.ID]bool{}
	for _, s := range settings {
		seen[s.EnvironmentID] = true
		if !s.IsActive || s.UpdatedBy != "creator" {
			t.Fatalf("expected defaults applied, got %+v", s)
		}
	}
	if !seen[f.prod.ID] || !seen[staging.ID] {
		t.Fatalf("expected Production and Staging, got %v", seen)
	}

	if _, err := f.manager.BuildSettings(context.Background(), f.node.Generate(), flagdomain.SettingInput{}, "x"); !errors.Is(err, ErrProductionMissing) {
		t.Fatalf("expected ErrProductionMissing for app without environments, got %v", err)
	}
}

func TestRepairRestoresCoverage(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	staging := f.insertEnv(t, "Staging")
	gone := f.node.Generate()

	flag := f.insertFlag(t, "dark-mode",
		flagdomain.EnvironmentSetting{EnvironmentID: f.prod.ID, Strategy: flagdomain.StrategyBoolean, IsActive: true},
		flagdomain.EnvironmentSetting{EnvironmentID: f.prod.ID, Strategy: flagdomain.StrategyBoolean},
		flagdomain.EnvironmentSetting{EnvironmentID: gone, Strategy: flagdomain.StrategyBoolean},
	)
	healthy := f.insertFlag(t, "healthy",
		flagdomain.EnvironmentSetting{EnvironmentID: f.prod.ID, Strategy: flagdomain.StrategyBoolean},
		flagdomain.EnvironmentSetting{EnvironmentID: staging.ID, Strategy: flagdomain.StrategyBoolean},
	)

	report, err := f.manager.Repair(ctx, f.appID)
	if err != nil {
		t.Fatalf("repair: %v", err)
	}
	if report.Updated != 1 || report.Skipped != 1 {
		t.Fatalf("unexpected report %+v", report)
	}

	stored := f.reload(t, flag.ID)
	if len(stored.Environments) != 2 || countFor(stored, f.prod.ID) != 1 || countFor(stored, staging.ID) != 1 {
		t.Fatalf("expected one setting per environment, got %+v", stored.Environments)
	}
	restored, _ := stored.SettingFor(staging.ID)
	if !restored.IsActive || restored.UpdatedBy != RepairActor {
		t.Fatalf("expected clone of first Production setting, got %+v", restored)
	}
	if len(f.reload(t, healthy.ID).Environments) != 2 {
		t.Fatalf("healthy flag must be unchanged")
	}
}
