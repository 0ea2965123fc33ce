package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

type AuditLog struct {
	ID         snowflake.ID      `gorm:"primaryKey" json:"id"`
	Actor      string            `gorm:"type:text;not null" json:"actor"`
	Action     string            `gorm:"type:text;not null;index:ix_audit_logs_action" json:"action"`
	TargetType string            `gorm:"type:text;not null;index:ix_audit_logs_target,priority:1" json:"target_type"`
	TargetID   string            `gorm:"type:text;not null;index:ix_audit_logs_target,priority:2" json:"target_id"`
	Message    string            `gorm:"type:text;not null" json:"message"`
	RequestID  string            `gorm:"type:text" json:"request_id,omitempty"`
	Metadata   datatypes.JSONMap `gorm:"column:metadata" json:"metadata,omitempty"`
	CreatedAt  time.Time         `gorm:"not null;index:ix_audit_logs_created_at" json:"created_at"`
}

func (AuditLog) TableName() string { return "audit_logs" }

type ListFilter struct {
	Action     string
	TargetType string
	TargetID   string
	Limit      int
}
