package domain

import (
	"context"
	"errors"
)

const (
	ActionAppCreate         = "app.create"
	ActionAppUpdate         = "app.update"
	ActionProductionRepair  = "environment.production_repair"
	ActionEnvironmentCreate = "environment.create"
	ActionEnvironmentDelete = "environment.delete"
	ActionFlagCreate        = "flag.create"
	ActionFlagToggle        = "flag.toggle"
	ActionFlagUpdate        = "flag.update"
	ActionFlagSettingUpdate = "flag.setting_update"
	ActionFlagDelete        = "flag.delete"
	ActionUserIdentify      = "user.identify"
	ActionUserUpdate        = "user.update"
	TargetApp               = "app"
	TargetEnvironment       = "environment"
	TargetFlag              = "flag"
	TargetUser              = "user"
)

type Entry struct {
	Actor      string
	Action     string
	TargetType string
	TargetID   string
	Message    string
	Metadata   map[string]any
}

type ListRequest struct {
	Action     string `form:"action"`
	TargetType string `form:"target_type"`
	TargetID   string `form:"target_id"`
	Limit      int    `form:"limit"`
}

// Service records audit entries off the request path. Record never blocks on storage and never fails the caller.
type Service interface {
	Record(ctx context.Context, entry Entry)
	List(ctx context.Context, req ListRequest) ([]AuditLog, error)
}

var (
	ErrInvalidAction = errors.New("invalid_action")
)
