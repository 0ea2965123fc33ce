package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

type App struct {
	ID        snowflake.ID `gorm:"primaryKey" json:"id"`
	Name      string       `gorm:"type:text;not null;uniqueIndex:ux_apps_name" json:"name"`
	IsActive  bool         `gorm:"not null" json:"is_active"`
	CreatedBy string       `gorm:"type:text;not null" json:"created_by"`
	CreatedAt time.Time    `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time    `gorm:"not null" json:"updated_at"`
}

func (App) TableName() string { return "apps" }
