package metrics

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"gorm.io/gorm"
)

func TestClassifyReconcileReason(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want string
	}{
		{name: "deadline", err: context.DeadlineExceeded, want: ReconcileReasonDeadlineExceeded},
		{name: "db_lock_timeout", err: &pgconn.PgError{Code: "55P03"}, want: ReconcileReasonDBLockTimeout},
		{name: "serialization_failure", err: &pgconn.PgError{Code: "40001"}, want: ReconcileReasonSerializationFailure},
		{name: "unique_violation", err: gorm.ErrDuplicatedKey, want: ReconcileReasonUniqueViolation},
		{name: "unknown", err: errors.New("boom"), want: ReconcileReasonUnknown},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ClassifyReconcileReason(tc.err); got != tc.want {
				t.Fatalf("expected reason %q, got %q", tc.want, got)
			}
		})
	}
}

func TestReconcileMetricsCounters(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := newReconcileMetrics(registry, Config{ServiceName: "flagship", Environment: "test"})

	m.IncRun("repair")
	m.IncRun("repair")
	m.IncError("repair", context.DeadlineExceeded)
	m.AddRepaired(RepairFlagSettings, 3)
	m.AddRepaired(RepairFlagSettings, 0)
	m.ObserveDuration("repair", 20*time.Millisecond)

	if got := testutil.ToFloat64(m.runs.WithLabelValues("repair")); got != 2 {
		t.Fatalf("expected 2 runs, got %v", got)
	}
	if got := testutil.ToFloat64(m.errors.WithLabelValues("repair", ReconcileReasonDeadlineExceeded)); got != 1 {
		t.Fatalf("expected 1 error, got %v", got)
	}
	if got := testutil.ToFloat64(m.repaired.WithLabelValues(RepairFlagSettings)); got != 3 {
		t.Fatalf("expected 3 repaired, got %v", got)
	}
}
