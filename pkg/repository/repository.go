package repository

import (
	"context"

	"gorm.io/gorm"
)

// Repository is the generic entity store used by domains without hand-written SQL.
type Repository[T any] interface {
	WithTrx(tx *gorm.DB) Repository[T]
	FindByID(ctx context.Context, id any) (*T, error)
	FindOne(ctx context.Context, query *T, opts ...QueryOption) (*T, error)
	Find(ctx context.Context, query *T, opts ...QueryOption) ([]*T, error)
	Count(ctx context.Context, query *T) (int64, error)
	Save(ctx context.Context, resource *T) error
	DeleteByID(ctx context.Context, id any) (int64, error)
}

type QueryOption interface {
	Apply(db *gorm.DB) *gorm.DB
}

type queryOptionFunc func(db *gorm.DB) *gorm.DB

func (f queryOptionFunc) Apply(db *gorm.DB) *gorm.DB { return f(db) }

func WithOrder(order string) QueryOption {
	return queryOptionFunc(func(db *gorm.DB) *gorm.DB {
		if order == "" {
			return db
		}
		return db.Order(order)
	})
}

func WithLimit(limit int) QueryOption {
	return queryOptionFunc(func(db *gorm.DB) *gorm.DB {
		if limit <= 0 {
			return db
		}
		return db.Limit(limit)
	})
}
