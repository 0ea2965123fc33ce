package domain

import (
	"context"
	"errors"

	envdomain "github.com/smallbiznis/flagship/internal/environment/domain"
)

type Service interface {
	Create(ctx context.Context, req CreateRequest) (*CreateResponse, error)
	EnsureProduction(ctx context.Context, appID string) (*envdomain.Environment, error)
	GetByID(ctx context.Context, id string) (*App, error)
	GetByName(ctx context.Context, name string) (*App, error)
	List(ctx context.Context) ([]App, error)
	SetActive(ctx context.Context, req SetActiveRequest) (*App, error)
}

type CreateRequest struct {
	Name      string `json:"name"`
	CreatedBy string `json:"created_by"`
}

// CreateResponse carries the Production environment when the second write succeeded.
type CreateResponse struct {
	App        App                    `json:"app"`
	Production *envdomain.Environment `json:"production,omitempty"`
}

type SetActiveRequest struct {
	ID       string `json:"id"`
	IsActive bool   `json:"is_active"`
	Actor    string `json:"-"`
}

var (
	ErrInvalidID                 = errors.New("invalid_app_id")
	ErrInvalidName               = errors.New("invalid_app_name")
	ErrNameTaken                 = errors.New("app_name_taken")
	ErrNotFound                  = errors.New("app_not_found")
	ErrProductionProvisionFailed = errors.New("production_provision_failed")
)
