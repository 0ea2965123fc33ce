package metrics

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/gorm"
)

const (
	ReconcileReasonDeadlineExceeded     = "deadline_exceeded"
	ReconcileReasonDBLockTimeout        = "db_lock_timeout"
	ReconcileReasonSerializationFailure = "serialization_failure"
	ReconcileReasonUniqueViolation      = "unique_violation"
	ReconcileReasonUnknown              = "unknown"
)

const (
	RepairProductionEnvironment = "production_environment"
	RepairFlagSettings          = "flag_settings"
)

// ReconcileMetrics captures health signals of the background repair loop.
type ReconcileMetrics struct {
	runs       *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	errors     *prometheus.CounterVec
	repaired   *prometheus.CounterVec
	lockSkips  prometheus.Counter
	runLoopLag prometheus.Observer
}

var (
	reconcileMetricsOnce sync.Once
	reconcileMetrics     *ReconcileMetrics
)

// Reconcile returns the singleton reconciler metrics registry.
func Reconcile() *ReconcileMetrics {
	return ReconcileWithConfig(Config{})
}

// ReconcileWithConfig returns the singleton reconciler metrics registry using config labels.
func ReconcileWithConfig(cfg Config) *ReconcileMetrics {
	reconcileMetricsOnce.Do(func() {
		reconcileMetrics = newReconcileMetrics(prometheus.DefaultRegisterer, cfg)
	})
	return reconcileMetrics
}

// ResetReconcileMetricsForTest resets the reconciler metrics singleton for tests.
func ResetReconcileMetricsForTest() {
	reconcileMetricsOnce = sync.Once{}
	reconcileMetrics = nil
}

func newReconcileMetrics(registerer prometheus.Registerer, cfg Config) *ReconcileMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	serviceName := strings.TrimSpace(cfg.ServiceName)
	if serviceName == "" {
		serviceName = "flagship"
	}
	environment := strings.TrimSpace(cfg.Environment)
	if environment == "" {
		environment = "unknown"
	}
	constLabels := prometheus.Labels{
		"service": serviceName,
		"env":     environment,
	}

	runs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "flagship_reconcile_runs_total",
		Help:        "Reconciler job runs by name.",
		ConstLabels: constLabels,
	}, []string{"job"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:        "flagship_reconcile_duration_seconds",
		Help:        "Reconciler job latency.",
		Buckets:     []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		ConstLabels: constLabels,
	}, []string{"job"})
	errs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "flagship_reconcile_errors_total",
		Help:        "Reconciler job errors by low-cardinality reason.",
		ConstLabels: constLabels,
	}, []string{"job", "reason"})
	repaired := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "flagship_reconcile_repaired_total",
		Help:        "Items repaired by the reconciler, by repair kind.",
		ConstLabels: constLabels,
	}, []string{"kind"})
	lockSkips := prometheus.NewCounter(prometheus.CounterOpts{
		Name:        "flagship_reconcile_lock_skipped_total",
		Help:        "Reconciler runs skipped because another replica holds the lock.",
		ConstLabels: constLabels,
	})
	runLoopLag := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:        "flagship_reconcile_runloop_lag_seconds",
		Help:        "Reconciler run loop lag beyond the configured interval.",
		Buckets:     []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		ConstLabels: constLabels,
	})

	registerer.MustRegister(runs, duration, errs, repaired, lockSkips, runLoopLag)

	return &ReconcileMetrics{
		runs:       runs,
		duration:   duration,
		errors:     errs,
		repaired:   repaired,
		lockSkips:  lockSkips,
		runLoopLag: runLoopLag,
	}
}

// IncRun increments the run counter for a reconciler job.
func (m *ReconcileMetrics) IncRun(job string) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(job).Inc()
}

// ObserveDuration records job latency in seconds.
func (m *ReconcileMetrics) ObserveDuration(job string, d time.Duration) {
	if m == nil {
		return
	}
	m.duration.WithLabelValues(job).Observe(d.Seconds())
}

// IncError increments the job error counter with classification.
func (m *ReconcileMetrics) IncError(job string, err error) {
	if m == nil || err == nil {
		return
	}
	m.errors.WithLabelValues(job, ClassifyReconcileReason(err)).Inc()
}

// AddRepaired records repaired items of a kind.
func (m *ReconcileMetrics) AddRepaired(kind string, count int) {
	if m == nil || count <= 0 {
		return
	}
	m.repaired.WithLabelValues(kind).Add(float64(count))
}

// IncLockSkipped counts runs that lost the distributed lock race.
func (m *ReconcileMetrics) IncLockSkipped() {
	if m == nil {
		return
	}
	m.lockSkips.Inc()
}

// ObserveRunLoopLag records lag between the scheduled tick and actual run start.
func (m *ReconcileMetrics) ObserveRunLoopLag(d time.Duration) {
	if m == nil {
		return
	}
	if d < 0 {
		d = 0
	}
	m.runLoopLag.Observe(d.Seconds())
}

// ClassifyReconcileReason maps job errors to low-cardinality reasons.
func ClassifyReconcileReason(err error) string {
	if err == nil {
		return ReconcileReasonUnknown
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return ReconcileReasonDeadlineExceeded
	}
	if hasPGCode(err, "55P03") {
		return ReconcileReasonDBLockTimeout
	}
	if hasPGCode(err, "40001") {
		return ReconcileReasonSerializationFailure
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) || hasPGCode(err, "23505") {
		return ReconcileReasonUniqueViolation
	}
	return ReconcileReasonUnknown
}

func hasPGCode(err error, code string) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == code
	}
	return false
}
