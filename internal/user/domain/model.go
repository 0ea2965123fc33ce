package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// User is an end user of an app, addressed by the app's own identifier.
type User struct {
	ID         snowflake.ID      `gorm:"primaryKey" json:"id"`
	AppID      snowflake.ID      `gorm:"column:app_id;not null;uniqueIndex:ux_users_app_external,priority:1" json:"app_id"`
	ExternalID string            `gorm:"column:external_id;type:text;not null;uniqueIndex:ux_users_app_external,priority:2" json:"external_id"`
	IsActive   bool              `gorm:"not null" json:"is_active"`
	Metadata   datatypes.JSONMap `gorm:"column:metadata" json:"metadata,omitempty"`
	CreatedAt  time.Time         `gorm:"not null" json:"created_at"`
	UpdatedAt  time.Time         `gorm:"not null" json:"updated_at"`
}

func (User) TableName() string { return "users" }
