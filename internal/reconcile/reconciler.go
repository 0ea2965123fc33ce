package reconcile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hashicorp/go-multierror"
	appdomain "github.com/smallbiznis/flagship/internal/app/domain"
	"github.com/smallbiznis/flagship/internal/clock"
	envdomain "github.com/smallbiznis/flagship/internal/environment/domain"
	obscontext "github.com/smallbiznis/flagship/internal/observability/context"
	obslogger "github.com/smallbiznis/flagship/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/flagship/internal/observability/metrics"
	"github.com/smallbiznis/flagship/internal/propagation"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const jobRepair = "repair"

var ErrInvalidConfig = errors.New("invalid_reconciler_config")

type Params struct {
	fx.In

	DB           *gorm.DB
	Log          *zap.Logger
	Clock        clock.Clock
	Apps         appdomain.Service
	Environments envdomain.Repository
	Propagation  propagation.Manager
	Locker       *Locker                      `optional:"true"`
	Config       Config                       `optional:"true"`
	Metrics      *obsmetrics.ReconcileMetrics `optional:"true"`
}

// Summary describes one repair pass over every app.
type Summary struct {
	Apps               int `json:"apps"`
	ProductionRepaired int `json:"production_repaired"`
	FlagsRepaired      int `json:"flags_repaired"`
	FlagsFailed        int `json:"flags_failed"`
	// LockSkipped is set when another replica held the lock and nothing ran.
	LockSkipped bool `json:"lock_skipped"`
}

type Reconciler struct {
	db          *gorm.DB
	log         *zap.Logger
	clock       clock.Clock
	cfg         Config
	apps        appdomain.Service
	envs        envdomain.Repository
	propagation propagation.Manager
	locker      *Locker
	metrics     *obsmetrics.ReconcileMetrics
}

func New(p Params) (*Reconciler, error) {
	if p.DB == nil || p.Log == nil || p.Clock == nil || p.Apps == nil || p.Environments == nil || p.Propagation == nil {
		return nil, ErrInvalidConfig
	}
	m := p.Metrics
	if m == nil {
		m = obsmetrics.Reconcile()
	}
	return &Reconciler{
		db:          p.DB,
		log:         p.Log.Named("reconciler").With(zap.String("component", "reconciler")),
		clock:       p.Clock,
		cfg:         p.Config.withDefaults(),
		apps:        p.Apps,
		envs:        p.Environments,
		propagation: p.Propagation,
		locker:      p.Locker,
		metrics:     m,
	}, nil
}

// RunOnce ensures every app has Production and one setting per environment on every flag.
// Failures of one app do not stop the others; they are aggregated into the returned error.
func (r *Reconciler) RunOnce(parent context.Context) (Summary, error) {
	start := r.clock.Now()
	ctx, cancel := context.WithTimeout(parent, r.cfg.Timeout)
	defer cancel()
	ctx = obscontext.WithActor(ctx, propagation.RepairActor)

	if r.locker != nil {
		token, ok, err := r.locker.TryLock(ctx, r.cfg.LockKey, r.cfg.LockTTL)
		if err != nil {
			r.metrics.IncError(jobRepair, err)
			return Summary{}, fmt.Errorf("acquire reconcile lock: %w", err)
		}
		if !ok {
			r.metrics.IncLockSkipped()
			r.log.Debug("reconcile lock held elsewhere, skipping run")
			return Summary{LockSkipped: true}, nil
		}
		defer func() {
			releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
			defer cancel()
			if err := r.locker.Release(releaseCtx, r.cfg.LockKey, token); err != nil {
				r.log.Warn("failed to release reconcile lock", zap.Error(err))
			}
		}()
	}

	r.metrics.IncRun(jobRepair)
	summary, err := r.repairAll(ctx)
	r.metrics.ObserveDuration(jobRepair, r.clock.Now().Sub(start))
	r.metrics.AddRepaired(obsmetrics.RepairProductionEnvironment, summary.ProductionRepaired)
	r.metrics.AddRepaired(obsmetrics.RepairFlagSettings, summary.FlagsRepaired)
	if err != nil {
		r.metrics.IncError(jobRepair, err)
	}

	r.log.Info("reconcile run finished",
		zap.Int("apps", summary.Apps),
		zap.Int("production_repaired", summary.ProductionRepaired),
		zap.Int("flags_repaired", summary.FlagsRepaired),
		zap.Int("flags_failed", summary.FlagsFailed),
	)
	return summary, err
}

func (r *Reconciler) repairAll(ctx context.Context) (Summary, error) {
	var summary Summary
	apps, err := r.apps.List(ctx)
	if err != nil {
		return summary, fmt.Errorf("list apps: %w", err)
	}
	summary.Apps = len(apps)

	var result *multierror.Error
	for _, app := range apps {
		if err := ctx.Err(); err != nil {
			result = multierror.Append(result, err)
			break
		}
		if err := r.repairApp(ctx, app, &summary); err != nil {
			obslogger.WithApp(r.log, app.ID.String()).Error("app reconciliation failed", zap.Error(err))
			result = multierror.Append(result, fmt.Errorf("app %s: %w", app.ID, err))
		}
	}
	return summary, result.ErrorOrNil()
}

func (r *Reconciler) repairApp(ctx context.Context, app appdomain.App, summary *Summary) error {
	existing, err := r.envs.FindByName(ctx, r.db, app.ID.Int64(), envdomain.ProductionName)
	if err != nil {
		return err
	}
	if existing == nil {
		if _, err := r.apps.EnsureProduction(ctx, app.ID.String()); err != nil {
			return fmt.Errorf("ensure production: %w", err)
		}
		summary.ProductionRepaired++
	}

	report, err := r.propagation.Repair(ctx, app.ID)
	if err != nil {
		return fmt.Errorf("repair settings: %w", err)
	}
	summary.FlagsRepaired += report.Updated
	summary.FlagsFailed += report.Failed()
	return report.Err()
}

// RunForever reconciles on every interval tick until ctx is done.
func (r *Reconciler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()
	nextRun := r.clock.Now().Add(r.cfg.Interval)

	for {
		if lag := r.clock.Now().Sub(nextRun); lag > 0 {
			r.metrics.ObserveRunLoopLag(lag)
		}
		if _, err := r.RunOnce(ctx); err != nil {
			r.log.Warn("reconcile run failed", zap.Error(err))
		}
		nextRun = nextRun.Add(r.cfg.Interval)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
