// Package testutil builds the shared fixtures used by service tests.
package testutil

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/flagship/internal/audit/domain"
	"github.com/smallbiznis/flagship/internal/cache"
	"github.com/smallbiznis/flagship/internal/clock"
	"github.com/smallbiznis/flagship/internal/migration"
	dbpkg "github.com/smallbiznis/flagship/pkg/db"
	"gorm.io/gorm"
)

// Epoch is the fixed start time of FakeClocks returned by NewClock.
var Epoch = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

func NewDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := dbpkg.NewTest()
	if err != nil {
		t.Fatalf("failed to create test db: %v", err)
	}
	if err := migration.Apply(db, "sqlite"); err != nil {
		t.Fatalf("failed to migrate test db: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

func NewNode(t *testing.T) *snowflake.Node {
	t.Helper()
	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("failed to create id generator: %v", err)
	}
	return node
}

// NewCache returns a cache layer over a fresh memory store, plus the store for direct inspection.
func NewCache(t *testing.T) (*cache.Layer, *cache.MemoryStore) {
	t.Helper()
	store := cache.NewMemoryStore()
	t.Cleanup(func() { _ = store.Close() })
	return cache.NewLayer(store, cache.LayerOptions{}), store
}

func NewClock() *clock.FakeClock {
	return clock.NewFakeClock(Epoch)
}

// AuditRecorder captures audit entries synchronously.
type AuditRecorder struct {
	mu      sync.Mutex
	entries []auditdomain.Entry
}

func (r *AuditRecorder) Record(_ context.Context, entry auditdomain.Entry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, entry)
}

func (r *AuditRecorder) List(context.Context, auditdomain.ListRequest) ([]auditdomain.AuditLog, error) {
	return nil, nil
}

func (r *AuditRecorder) Entries() []auditdomain.Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]auditdomain.Entry, len(r.entries))
	copy(out, r.entries)
	return out
}

// Actions returns the recorded action names in order.
func (r *AuditRecorder) Actions() []string {
	entries := r.Entries()
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Action)
	}
	return out
}
