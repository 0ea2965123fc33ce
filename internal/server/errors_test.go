package server

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/hashicorp/go-multierror"
	appdomain "github.com/smallbiznis/flagship/internal/app/domain"
	envdomain "github.com/smallbiznis/flagship/internal/environment/domain"
	flagdomain "github.com/smallbiznis/flagship/internal/flag/domain"
	userdomain "github.com/smallbiznis/flagship/internal/user/domain"
	"github.com/stretchr/testify/require"
)

func TestMapError(t *testing.T) {
	cases := []struct {
		name     string
		err      error
		status   int
		kind     string
		code     string
		errField string
	}{
		{"invalid id", appdomain.ErrInvalidID, http.StatusBadRequest, "validation_error", "invalid_app_id", "app_id"},
		{"reserved production", envdomain.ErrProductionReserved, http.StatusBadRequest, "validation_error", "production_name_reserved", ""},
		{"bad percentage", fmt.Errorf("defaults: %w", flagdomain.ErrInvalidPercentage), http.StatusBadRequest, "validation_error", "invalid_evaluation_percentage", "evaluation_percentage"},
		{"setting missing", flagdomain.ErrSettingNotFound, http.StatusNotFound, "not_found", "environment_setting_not_found", ""},
		{"user missing", userdomain.ErrNotFound, http.StatusNotFound, "not_found", "user_not_found", ""},
		{"flag taken", flagdomain.ErrNameTaken, http.StatusConflict, "conflict", "flag_name_taken", ""},
		{"provision failed", fmt.Errorf("%w: disk full", appdomain.ErrProductionProvisionFailed), http.StatusInternalServerError, "invariant_violation", "production_provision_failed", ""},
		{"aggregated", multierror.Append(nil, flagdomain.ErrSettingNotFound), http.StatusNotFound, "not_found", "environment_setting_not_found", ""},
		{"unknown", fmt.Errorf("boom"), http.StatusInternalServerError, "internal_error", "internal server error", ""},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			status, payload := mapError(tc.err)
			require.Equal(t, tc.status, status)
			require.Equal(t, tc.kind, payload.Type)

			if tc.kind == "validation_error" {
				require.Len(t, payload.Errors, 1)
				require.Equal(t, tc.code, payload.Errors[0].Code)
				require.Equal(t, tc.errField, payload.Errors[0].Field)
				return
			}
			require.Equal(t, tc.code, payload.Message)
		})
	}
}

func TestMapErrorKeepsExplicitValidationErrors(t *testing.T) {
	status, payload := mapError(newValidationError("is_active", "invalid_is_active", "is_active is required"))
	require.Equal(t, http.StatusBadRequest, status)
	require.Equal(t, []ValidationError{{Field: "is_active", Code: "invalid_is_active", Message: "is_active is required"}}, payload.Errors)
}
