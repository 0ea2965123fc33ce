package domain

import (
	"context"
	"errors"
)

type Service interface {
	Create(ctx context.Context, req CreateRequest) (*CreateResponse, error)
	Delete(ctx context.Context, req DeleteRequest) (*DeleteResponse, error)
	GetByID(ctx context.Context, id string) (*Environment, error)
	List(ctx context.Context, appID string) ([]Environment, error)
}

type CreateRequest struct {
	AppID string `json:"app_id"`
	Name  string `json:"name"`
	Actor string `json:"-"`
}

type DeleteRequest struct {
	ID    string `json:"id"`
	Actor string `json:"-"`
}

// SweepSummary reports what the settings sweep did after the primary write.
type SweepSummary struct {
	Updated int    `json:"updated"`
	Skipped int    `json:"skipped"`
	Failed  int    `json:"failed"`
	Error   string `json:"error,omitempty"`
}

type CreateResponse struct {
	Environment Environment  `json:"environment"`
	Sweep       SweepSummary `json:"sweep"`
}

type DeleteResponse struct {
	Environment Environment  `json:"environment"`
	Sweep       SweepSummary `json:"sweep"`
}

var (
	ErrInvalidID           = errors.New("invalid_environment_id")
	ErrInvalidAppID        = errors.New("invalid_app_id")
	ErrInvalidName         = errors.New("invalid_environment_name")
	ErrNameTaken           = errors.New("environment_name_taken")
	ErrNotFound            = errors.New("environment_not_found")
	ErrAppNotFound         = errors.New("app_not_found")
	ErrProductionReserved  = errors.New("production_name_reserved")
	ErrProductionImmutable = errors.New("production_immutable")
)
