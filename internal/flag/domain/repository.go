package domain

import (
	"context"

	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, flag *Flag) error
	FindByID(ctx context.Context, db *gorm.DB, id int64) (*Flag, error)
	FindByName(ctx context.Context, db *gorm.DB, appID int64, name string) (*Flag, error)
	ListByApp(ctx context.Context, db *gorm.DB, appID int64) ([]Flag, error)
	List(ctx context.Context, db *gorm.DB) ([]Flag, error)
	Update(ctx context.Context, db *gorm.DB, flag *Flag) error
	UpdateSettings(ctx context.Context, db *gorm.DB, flag *Flag) error
	Delete(ctx context.Context, db *gorm.DB, id int64) (int64, error)
}
