package domain

import (
	"context"
	"errors"
)

type Service interface {
	Create(ctx context.Context, req CreateRequest) (*Flag, error)
	Toggle(ctx context.Context, req ToggleRequest) (*Flag, error)
	UpdateSetting(ctx context.Context, req UpdateSettingRequest) (*Flag, error)
	Update(ctx context.Context, req UpdateRequest) (*Flag, error)
	Delete(ctx context.Context, req DeleteRequest) error
	GetByID(ctx context.Context, id string) (*Flag, error)
	GetByName(ctx context.Context, appID, name string) (*Flag, error)
	List(ctx context.Context) ([]Flag, error)
	ListByApp(ctx context.Context, appID string) ([]Flag, error)
	ListTargetingUser(ctx context.Context, appID, userID string) ([]Flag, error)
}

type CreateRequest struct {
	AppID       string       `json:"app_id"`
	Name        string       `json:"name"`
	Description string       `json:"description"`
	Type        FlagType     `json:"type"`
	EnumValues  []string     `json:"enum_values,omitempty"`
	Defaults    SettingInput `json:"defaults"`
	Actor       string       `json:"-"`
}

type ToggleRequest struct {
	FlagID        string `json:"flag_id"`
	EnvironmentID string `json:"environment_id"`
	Actor         string `json:"-"`
}

type UpdateSettingRequest struct {
	FlagID        string       `json:"flag_id"`
	EnvironmentID string       `json:"environment_id"`
	Setting       SettingInput `json:"setting"`
	Actor         string       `json:"-"`
}

type UpdateRequest struct {
	ID          string   `json:"id"`
	Description *string  `json:"description,omitempty"`
	EnumValues  []string `json:"enum_values,omitempty"`
	Actor       string   `json:"-"`
}

type DeleteRequest struct {
	ID    string `json:"id"`
	Actor string `json:"-"`
}

var (
	ErrInvalidID            = errors.New("invalid_flag_id")
	ErrInvalidAppID         = errors.New("invalid_app_id")
	ErrInvalidEnvironmentID = errors.New("invalid_environment_id")
	ErrInvalidName          = errors.New("invalid_flag_name")
	ErrInvalidType          = errors.New("invalid_flag_type")
	ErrInvalidStrategy      = errors.New("invalid_evaluation_strategy")
	ErrInvalidPercentage    = errors.New("invalid_evaluation_percentage")
	ErrUserListsRequired    = errors.New("user_lists_required")
	ErrInvalidValue         = errors.New("invalid_value")
	ErrInvalidEnumValues    = errors.New("invalid_enum_values")
	ErrNameTaken            = errors.New("flag_name_taken")
	ErrNotFound             = errors.New("flag_not_found")
	ErrAppNotFound          = errors.New("app_not_found")
	ErrSettingNotFound      = errors.New("environment_setting_not_found")
)
