package propagation

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/hashicorp/go-multierror"
	flagdomain "github.com/smallbiznis/flagship/internal/flag/domain"
)

const (
	OperationEnvironmentCreated = "environment_created"
	OperationEnvironmentDeleted = "environment_deleted"
	OperationRepair             = "repair"

	OutcomeUpdated = "updated"
	OutcomeSkipped = "skipped"
	OutcomeFailed  = "failed"

	// RepairActor is recorded as updatedBy on settings restored by Repair.
	RepairActor = "system:reconciler"
)

var ErrProductionMissing = errors.New("production_environment_missing")

// Manager keeps every flag's settings aligned with its app's environments.
type Manager interface {
	OnEnvironmentCreated(ctx context.Context, appID, envID snowflake.ID, actor string) (Report, error)
	OnEnvironmentDeleted(ctx context.Context, appID, envID snowflake.ID, actor string) (Report, error)
	BuildSettings(ctx context.Context, appID snowflake.ID, defaults flagdomain.SettingInput, actor string) ([]flagdomain.EnvironmentSetting, error)
	Repair(ctx context.Context, appID snowflake.ID) (Report, error)
}

// Report summarizes a sweep. Failures never abort the sweep.
type Report struct {
	Updated  int
	Skipped  int
	Failures []Failure
}

type Failure struct {
	FlagID snowflake.ID
	Err    error
}

func (r Report) Failed() int { return len(r.Failures) }

// Err joins the per-flag failures, or returns nil.
func (r Report) Err() error {
	if len(r.Failures) == 0 {
		return nil
	}
	var result *multierror.Error
	for _, f := range r.Failures {
		result = multierror.Append(result, f.Err)
	}
	return result.ErrorOrNil()
}
