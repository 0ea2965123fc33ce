package propagation

import (
	"context"
	"fmt"
	"sync"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/flagship/internal/cache"
	"github.com/smallbiznis/flagship/internal/clock"
	"github.com/smallbiznis/flagship/internal/config"
	envdomain "github.com/smallbiznis/flagship/internal/environment/domain"
	flagdomain "github.com/smallbiznis/flagship/internal/flag/domain"
	obslogger "github.com/smallbiznis/flagship/internal/observability/logger"
	"github.com/smallbiznis/flagship/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

const defaultConcurrency = 8

type Params struct {
	fx.In

	DB           *gorm.DB
	Log          *zap.Logger
	Clock        clock.Clock
	Cache        *cache.Layer
	Flags        flagdomain.Repository
	Environments envdomain.Repository
	Runtime      *config.RuntimeHolder `optional:"true"`
	Metrics      *metrics.Metrics      `optional:"true"`
}

type manager struct {
	db      *gorm.DB
	log     *zap.Logger
	clock   clock.Clock
	cache   *cache.Layer
	flags   flagdomain.Repository
	envs    envdomain.Repository
	runtime *config.RuntimeHolder
	metrics *metrics.Metrics
}

func New(p Params) Manager {
	return &manager{
		db:      p.DB,
		log:     p.Log.Named("propagation.manager"),
		clock:   p.Clock,
		cache:   p.Cache,
		flags:   p.Flags,
		envs:    p.Environments,
		runtime: p.Runtime,
		metrics: p.Metrics,
	}
}

// flagStep mutates one freshly read flag. changed=false means nothing to persist.
type flagStep func(flag *flagdomain.Flag) (changed bool, err error)

func (m *manager) OnEnvironmentCreated(ctx context.Context, appID, envID snowflake.ID, actor string) (Report, error) {
	production, err := m.production(ctx, appID)
	if err != nil {
		return Report{}, err
	}
	now := m.clock.Now()

	return m.sweep(ctx, OperationEnvironmentCreated, appID, func(flag *flagdomain.Flag) (bool, error) {
		if flag.HasSetting(envID) {
			return false, nil
		}
		baseline, ok := flag.SettingFor(production.ID)
		if !ok {
			return false, fmt.Errorf("flag %s: %w", flag.ID, ErrProductionMissing)
		}
		flag.Environments = append(flag.Environments, baseline.Clone(envID, actor, now))
		flag.UpdatedAt = now
		return true, nil
	})
}

func (m *manager) OnEnvironmentDeleted(ctx context.Context, appID, envID snowflake.ID, actor string) (Report, error) {
	now := m.clock.Now()
	return m.sweep(ctx, OperationEnvironmentDeleted, appID, func(flag *flagdomain.Flag) (bool, error) {
		if flag.RemoveSetting(envID) == 0 {
			return false, nil
		}
		flag.UpdatedAt = now
		return true, nil
	})
}

func (m *manager) BuildSettings(ctx context.Context, appID snowflake.ID, defaults flagdomain.SettingInput, actor string) ([]flagdomain.EnvironmentSetting, error) {
	envs, err := m.envs.ListByApp(ctx, m.db, int64(appID))
	if err != nil {
		return nil, err
	}
	hasProduction := false
	for _, env := range envs {
		if env.IsProduction() {
			hasProduction = true
			break
		}
	}
	if !hasProduction {
		return nil, ErrProductionMissing
	}

	now := m.clock.Now()
	settings := make([]flagdomain.EnvironmentSetting, 0, len(envs))
	for _, env := range envs {
		settings = append(settings, defaults.Bind(env.ID, actor, now))
	}
	return settings, nil
}

// Repair restores one setting per existing environment on every flag of the app.
// Missing settings are cloned from Production, orphaned and duplicate ones are dropped.
func (m *manager) Repair(ctx context.Context, appID snowflake.ID) (Report, error) {
	envs, err := m.envs.ListByApp(ctx, m.db, int64(appID))
	if err != nil {
		return Report{}, err
	}
	var productionID snowflake.ID
	existing := make(map[snowflake.ID]struct{}, len(envs))
	for _, env := range envs {
		existing[env.ID] = struct{}{}
		if env.IsProduction() {
			productionID = env.ID
		}
	}
	if productionID == 0 {
		return Report{}, ErrProductionMissing
	}
	now := m.clock.Now()

	return m.sweep(ctx, OperationRepair, appID, func(flag *flagdomain.Flag) (bool, error) {
		seen := make(map[snowflake.ID]struct{}, len(flag.Environments))
		kept := make([]flagdomain.EnvironmentSetting, 0, len(envs))
		for _, s := range flag.Environments {
			if _, ok := existing[s.EnvironmentID]; !ok {
				continue
			}
			if _, dup := seen[s.EnvironmentID]; dup {
				continue
			}
			seen[s.EnvironmentID] = struct{}{}
			kept = append(kept, s)
		}
		changed := len(kept) != len(flag.Environments)
		flag.Environments = kept

		if len(seen) < len(envs) {
			baseline, ok := flag.SettingFor(productionID)
			if !ok {
				return changed, fmt.Errorf("flag %s: %w", flag.ID, ErrProductionMissing)
			}
			base := *baseline
			for _, env := range envs {
				if _, ok := seen[env.ID]; ok {
					continue
				}
				flag.Environments = append(flag.Environments, base.Clone(env.ID, RepairActor, now))
				changed = true
			}
		}
		if changed {
			flag.UpdatedAt = now
		}
		return changed, nil
	})
}

func (m *manager) production(ctx context.Context, appID snowflake.ID) (*envdomain.Environment, error) {
	production, err := m.envs.FindByName(ctx, m.db, int64(appID), envdomain.ProductionName)
	if err != nil {
		return nil, err
	}
	if production == nil {
		return nil, ErrProductionMissing
	}
	return production, nil
}

// sweep applies step to every flag of the app in parallel, isolating per-flag failures.
func (m *manager) sweep(ctx context.Context, operation string, appID snowflake.ID, step flagStep) (Report, error) {
	flags, err := m.flags.ListByApp(ctx, m.db, int64(appID))
	if err != nil {
		return Report{}, err
	}

	log := obslogger.WithApp(obslogger.WithContext(ctx, m.log), appID.String()).
		With(zap.String("operation", operation))

	var (
		mu     sync.Mutex
		report Report
	)
	record := func(flagID snowflake.ID, outcome string, err error) {
		mu.Lock()
		defer mu.Unlock()
		switch outcome {
		case OutcomeUpdated:
			report.Updated++
		case OutcomeSkipped:
			report.Skipped++
		default:
			report.Failures = append(report.Failures, Failure{FlagID: flagID, Err: err})
		}
		m.metrics.RecordPropagation(ctx, operation, outcome)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.concurrency())
	for _, f := range flags {
		flagID := f.ID
		g.Go(func() error {
			outcome, err := m.apply(gctx, flagID, step)
			if err != nil {
				obslogger.WithFlag(log, flagID.String(), "").Error("settings propagation failed", zap.Error(err))
			}
			record(flagID, outcome, err)
			return nil
		})
	}
	_ = g.Wait()

	m.cache.InvalidateAppFlags(ctx, appID.String())

	log.Info("settings propagation finished",
		zap.Int("flags", len(flags)),
		zap.Int("updated", report.Updated),
		zap.Int("skipped", report.Skipped),
		zap.Int("failed", report.Failed()),
	)
	return report, nil
}

// apply re-reads the flag so the step works on the latest stored copy.
func (m *manager) apply(ctx context.Context, flagID snowflake.ID, step flagStep) (string, error) {
	if err := ctx.Err(); err != nil {
		return OutcomeFailed, err
	}
	flag, err := m.flags.FindByID(ctx, m.db, int64(flagID))
	if err != nil {
		return OutcomeFailed, err
	}
	if flag == nil {
		return OutcomeSkipped, nil
	}

	changed, stepErr := step(flag)
	if changed {
		if err := m.flags.UpdateSettings(ctx, m.db, flag); err != nil {
			return OutcomeFailed, err
		}
		m.cache.InvalidateFlag(ctx, cache.FlagRef{
			ID:    flag.ID.String(),
			AppID: flag.AppID.String(),
			Name:  flag.Name,
		})
	}
	if stepErr != nil {
		return OutcomeFailed, stepErr
	}
	if !changed {
		return OutcomeSkipped, nil
	}
	return OutcomeUpdated, nil
}

func (m *manager) concurrency() int {
	if m.runtime == nil {
		return defaultConcurrency
	}
	if n := m.runtime.Get().PropagationConcurrency; n > 0 {
		return n
	}
	return defaultConcurrency
}
