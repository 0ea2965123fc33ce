package repository

import (
	"context"

	"github.com/smallbiznis/flagship/internal/app/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, app *domain.App) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO apps (id, name, is_active, created_by, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		app.ID,
		app.Name,
		app.IsActive,
		app.CreatedBy,
		app.CreatedAt,
		app.UpdatedAt,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id int64) (*domain.App, error) {
	var a domain.App
	err := db.WithContext(ctx).Raw(
		`SELECT id, name, is_active, created_by, created_at, updated_at
		 FROM apps WHERE id = ?`,
		id,
	).Scan(&a).Error
	if err != nil {
		return nil, err
	}
	if a.ID == 0 {
		return nil, nil
	}
	return &a, nil
}

func (r *repo) FindByName(ctx context.Context, db *gorm.DB, name string) (*domain.App, error) {
	var a domain.App
	err := db.WithContext(ctx).Raw(
		`SELECT id, name, is_active, created_by, created_at, updated_at
		 FROM apps WHERE name = ?`,
		name,
	).Scan(&a).Error
	if err != nil {
		return nil, err
	}
	if a.ID == 0 {
		return nil, nil
	}
	return &a, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB) ([]domain.App, error) {
	var items []domain.App
	err := db.WithContext(ctx).Raw(
		`SELECT id, name, is_active, created_by, created_at, updated_at
		 FROM apps ORDER BY created_at ASC, id ASC`,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) Update(ctx context.Context, db *gorm.DB, app *domain.App) error {
	if app == nil {
		return gorm.ErrInvalidData
	}
	return db.WithContext(ctx).Exec(
		`UPDATE apps SET is_active = ?, updated_at = ? WHERE id = ?`,
		app.IsActive,
		app.UpdatedAt,
		app.ID,
	).Error
}
