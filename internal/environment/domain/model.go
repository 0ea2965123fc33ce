package domain

import (
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
)

// ProductionName is the mandatory baseline environment of every app.
const ProductionName = "Production"

type Environment struct {
	ID        snowflake.ID `gorm:"primaryKey" json:"id"`
	AppID     snowflake.ID `gorm:"column:app_id;not null;uniqueIndex:ux_environments_app_name,priority:1" json:"app_id"`
	Name      string       `gorm:"type:text;not null;uniqueIndex:ux_environments_app_name,priority:2" json:"name"`
	IsActive  bool         `gorm:"not null" json:"is_active"`
	CreatedBy string       `gorm:"type:text;not null" json:"created_by"`
	CreatedAt time.Time    `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time    `gorm:"not null" json:"updated_at"`
}

func (Environment) TableName() string { return "environments" }

func (e Environment) IsProduction() bool {
	return IsProductionName(e.Name)
}

func IsProductionName(name string) bool {
	return strings.EqualFold(strings.TrimSpace(name), ProductionName)
}
