package domain

import (
	"context"
	"errors"
)

type Service interface {
	Identify(ctx context.Context, req IdentifyRequest) (*User, error)
	GetByID(ctx context.Context, id string) (*User, error)
	GetByExternalID(ctx context.Context, appID, externalID string) (*User, error)
	ListByApp(ctx context.Context, appID string) ([]User, error)
	SetActive(ctx context.Context, req SetActiveRequest) (*User, error)
}

type IdentifyRequest struct {
	AppID      string         `json:"app_id"`
	ExternalID string         `json:"external_id"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Actor      string         `json:"-"`
}

type SetActiveRequest struct {
	ID       string `json:"id"`
	IsActive bool   `json:"is_active"`
	Actor    string `json:"-"`
}

var (
	ErrInvalidID         = errors.New("invalid_user_id")
	ErrInvalidAppID      = errors.New("invalid_app_id")
	ErrInvalidExternalID = errors.New("invalid_external_id")
	ErrNotFound          = errors.New("user_not_found")
	ErrAppNotFound       = errors.New("app_not_found")
)
