package repository

import (
	"context"

	"github.com/smallbiznis/flagship/internal/environment/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, env *domain.Environment) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO environments (id, app_id, name, is_active, created_by, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		env.ID,
		env.AppID,
		env.Name,
		env.IsActive,
		env.CreatedBy,
		env.CreatedAt,
		env.UpdatedAt,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id int64) (*domain.Environment, error) {
	var e domain.Environment
	err := db.WithContext(ctx).Raw(
		`SELECT id, app_id, name, is_active, created_by, created_at, updated_at
		 FROM environments WHERE id = ?`,
		id,
	).Scan(&e).Error
	if err != nil {
		return nil, err
	}
	if e.ID == 0 {
		return nil, nil
	}
	return &e, nil
}

func (r *repo) FindByName(ctx context.Context, db *gorm.DB, appID int64, name string) (*domain.Environment, error) {
	var e domain.Environment
	err := db.WithContext(ctx).Raw(
		`SELECT id, app_id, name, is_active, created_by, created_at, updated_at
		 FROM environments WHERE app_id = ? AND LOWER(name) = LOWER(?)`,
		appID,
		name,
	).Scan(&e).Error
	if err != nil {
		return nil, err
	}
	if e.ID == 0 {
		return nil, nil
	}
	return &e, nil
}

func (r *repo) ListByApp(ctx context.Context, db *gorm.DB, appID int64) ([]domain.Environment, error) {
	var items []domain.Environment
	err := db.WithContext(ctx).Raw(
		`SELECT id, app_id, name, is_active, created_by, created_at, updated_at
		 FROM environments WHERE app_id = ? ORDER BY created_at ASC, id ASC`,
		appID,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) Delete(ctx context.Context, db *gorm.DB, id int64) (int64, error) {
	res := db.WithContext(ctx).Exec(`DELETE FROM environments WHERE id = ?`, id)
	return res.RowsAffected, res.Error
}
