package domain

import (
	"context"

	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, app *App) error
	FindByID(ctx context.Context, db *gorm.DB, id int64) (*App, error)
	FindByName(ctx context.Context, db *gorm.DB, name string) (*App, error)
	List(ctx context.Context, db *gorm.DB) ([]App, error)
	Update(ctx context.Context, db *gorm.DB, app *App) error
}
