package domain

import (
	"context"

	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, env *Environment) error
	FindByID(ctx context.Context, db *gorm.DB, id int64) (*Environment, error)
	FindByName(ctx context.Context, db *gorm.DB, appID int64, name string) (*Environment, error)
	ListByApp(ctx context.Context, db *gorm.DB, appID int64) ([]Environment, error)
	Delete(ctx context.Context, db *gorm.DB, id int64) (int64, error)
}
