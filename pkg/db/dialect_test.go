package db

import (
	"errors"
	"fmt"
	"testing"

	"gorm.io/gorm"
)

func TestDialectRejectsUnknownType(t *testing.T) {
	if _, err := Dialect(Config{Type: "oracle"}); err == nil {
		t.Fatalf("expected unsupported dialect error")
	}
	for _, kind := range []string{"postgres", "mysql", "sqlite"} {
		d, err := Dialect(Config{Type: kind, Name: "flagship"})
		if err != nil {
			t.Fatalf("dialect %s: %v", kind, err)
		}
		if d == nil {
			t.Fatalf("expected dialector for %s", kind)
		}
	}
}

func TestIsDuplicateKeyErr(t *testing.T) {
	cases := []struct {
		err  error
		want bool
	}{
		{err: nil, want: false},
		{err: gorm.ErrDuplicatedKey, want: true},
		{err: fmt.Errorf("create app: %w", gorm.ErrDuplicatedKey), want: true},
		{err: errors.New("UNIQUE constraint failed: apps.name"), want: true},
		{err: errors.New("connection refused"), want: false},
	}
	for _, tc := range cases {
		if got := IsDuplicateKeyErr(tc.err); got != tc.want {
			t.Fatalf("IsDuplicateKeyErr(%v) = %v, want %v", tc.err, got, tc.want)
		}
	}
}
