package logger

import (
	"context"
	"testing"

	obscontext "github.com/smallbiznis/flagship/internal/observability/context"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestWithContextAddsCorrelationFields(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	base := zap.New(core)

	ctx := obscontext.WithRequestID(context.Background(), "req-1")
	ctx = obscontext.WithActor(ctx, "ops@acme")
	WithContext(ctx, base).Info("hello")

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["request_id"] != "req-1" {
		t.Fatalf("expected request_id req-1, got %v", fields["request_id"])
	}
	if fields["actor"] != "ops@acme" {
		t.Fatalf("expected actor ops@acme, got %v", fields["actor"])
	}
	if _, ok := fields["trace_id"]; ok {
		t.Fatalf("expected no trace_id without a span")
	}
}

func TestWithFlagScopesEnvironment(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	WithFlag(zap.New(core), "11", "").Info("a")
	WithFlag(zap.New(core), "11", "22").Info("b")

	entries := logs.All()
	if _, ok := entries[0].ContextMap()["environment_id"]; ok {
		t.Fatalf("expected no environment_id when empty")
	}
	if entries[1].ContextMap()["environment_id"] != "22" {
		t.Fatalf("expected environment_id 22, got %v", entries[1].ContextMap()["environment_id"])
	}
}

func TestDescribeSQL(t *testing.T) {
	cases := []struct {
		sql       string
		operation string
		table     string
	}{
		{sql: "SELECT id, name FROM flags WHERE app_id = ?", operation: "SELECT", table: "flags"},
		{sql: "  update environments set name = ?", operation: "UPDATE", table: "environments"},
		{sql: `INSERT INTO "audit_logs" (id) VALUES (?)`, operation: "INSERT", table: "audit_logs"},
		{sql: "DELETE FROM apps WHERE id = ?", operation: "DELETE", table: "apps"},
		{sql: "", operation: "UNKNOWN", table: "unknown"},
	}
	for _, tc := range cases {
		operation, table := describeSQL(tc.sql)
		if operation != tc.operation || table != tc.table {
			t.Fatalf("describeSQL(%q) = %q, %q, want %q, %q", tc.sql, operation, table, tc.operation, tc.table)
		}
	}
}
