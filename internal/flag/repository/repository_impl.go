package repository

import (
	"context"

	"github.com/smallbiznis/flagship/internal/flag/domain"
	"gorm.io/gorm"
)

const flagColumns = `id, app_id, name, description, flag_type, enum_values, environments, created_by, created_at, updated_at`

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, flag *domain.Flag) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO flags (`+flagColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		flag.ID,
		flag.AppID,
		flag.Name,
		flag.Description,
		flag.Type,
		flag.EnumValues,
		flag.Environments,
		flag.CreatedBy,
		flag.CreatedAt,
		flag.UpdatedAt,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id int64) (*domain.Flag, error) {
	var f domain.Flag
	err := db.WithContext(ctx).Raw(
		`SELECT `+flagColumns+` FROM flags WHERE id = ?`,
		id,
	).Scan(&f).Error
	if err != nil {
		return nil, err
	}
	if f.ID == 0 {
		return nil, nil
	}
	return &f, nil
}

func (r *repo) FindByName(ctx context.Context, db *gorm.DB, appID int64, name string) (*domain.Flag, error) {
	var f domain.Flag
	err := db.WithContext(ctx).Raw(
		`SELECT `+flagColumns+` FROM flags WHERE app_id = ? AND name = ?`,
		appID,
		name,
	).Scan(&f).Error
	if err != nil {
		return nil, err
	}
	if f.ID == 0 {
		return nil, nil
	}
	return &f, nil
}

func (r *repo) ListByApp(ctx context.Context, db *gorm.DB, appID int64) ([]domain.Flag, error) {
	var items []domain.Flag
	err := db.WithContext(ctx).Raw(
		`SELECT `+flagColumns+` FROM flags WHERE app_id = ? ORDER BY name ASC`,
		appID,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB) ([]domain.Flag, error) {
	var items []domain.Flag
	err := db.WithContext(ctx).Raw(
		`SELECT ` + flagColumns + ` FROM flags ORDER BY app_id ASC, name ASC`,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

// Update overwrites the whole mutable row; concurrent writers are last-write-wins.
func (r *repo) Update(ctx context.Context, db *gorm.DB, flag *domain.Flag) error {
	if flag == nil {
		return gorm.ErrInvalidData
	}
	return db.WithContext(ctx).Exec(
		`UPDATE flags
		 SET description = ?, enum_values = ?, environments = ?, updated_at = ?
		 WHERE id = ?`,
		flag.Description,
		flag.EnumValues,
		flag.Environments,
		flag.UpdatedAt,
		flag.ID,
	).Error
}

func (r *repo) UpdateSettings(ctx context.Context, db *gorm.DB, flag *domain.Flag) error {
	if flag == nil {
		return gorm.ErrInvalidData
	}
	return db.WithContext(ctx).Exec(
		`UPDATE flags SET environments = ?, updated_at = ? WHERE id = ?`,
		flag.Environments,
		flag.UpdatedAt,
		flag.ID,
	).Error
}

func (r *repo) Delete(ctx context.Context, db *gorm.DB, id int64) (int64, error) {
	res := db.WithContext(ctx).Exec(`DELETE FROM flags WHERE id = ?`, id)
	return res.RowsAffected, res.Error
}
