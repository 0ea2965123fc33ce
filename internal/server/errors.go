package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	appdomain "github.com/smallbiznis/flagship/internal/app/domain"
	auditdomain "github.com/smallbiznis/flagship/internal/audit/domain"
	envdomain "github.com/smallbiznis/flagship/internal/environment/domain"
	"github.com/smallbiznis/flagship/internal/evaluation"
	flagdomain "github.com/smallbiznis/flagship/internal/flag/domain"
	"github.com/smallbiznis/flagship/internal/propagation"
	userdomain "github.com/smallbiznis/flagship/internal/user/domain"
	"gorm.io/gorm"
)

type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func (v ValidationErrors) Error() string {
	return "validation error"
}

type errorPayload struct {
	Type    string            `json:"type"`
	Message string            `json:"message"`
	Errors  []ValidationError `json:"errors,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrConflict       = errors.New("conflict")
	ErrInternal       = errors.New("internal_error")
	ErrNotFound       = errors.New("not_found")
	ErrInvalidRequest = errors.New("invalid_request")
)

var validationErrors = []error{
	ErrInvalidRequest,
	appdomain.ErrInvalidID,
	appdomain.ErrInvalidName,
	envdomain.ErrInvalidID,
	envdomain.ErrInvalidAppID,
	envdomain.ErrInvalidName,
	envdomain.ErrProductionReserved,
	envdomain.ErrProductionImmutable,
	flagdomain.ErrInvalidID,
	flagdomain.ErrInvalidAppID,
	flagdomain.ErrInvalidEnvironmentID,
	flagdomain.ErrInvalidName,
	flagdomain.ErrInvalidType,
	flagdomain.ErrInvalidStrategy,
	flagdomain.ErrInvalidPercentage,
	flagdomain.ErrUserListsRequired,
	flagdomain.ErrInvalidValue,
	flagdomain.ErrInvalidEnumValues,
	userdomain.ErrInvalidID,
	userdomain.ErrInvalidAppID,
	userdomain.ErrInvalidExternalID,
	evaluation.ErrInvalidFlagRef,
	evaluation.ErrInvalidEnvironmentID,
	auditdomain.ErrInvalidAction,
}

var notFoundErrors = []error{
	ErrNotFound,
	appdomain.ErrNotFound,
	envdomain.ErrNotFound,
	envdomain.ErrAppNotFound,
	flagdomain.ErrNotFound,
	flagdomain.ErrAppNotFound,
	flagdomain.ErrSettingNotFound,
	userdomain.ErrNotFound,
	userdomain.ErrAppNotFound,
	gorm.ErrRecordNotFound,
}

var conflictErrors = []error{
	ErrConflict,
	appdomain.ErrNameTaken,
	envdomain.ErrNameTaken,
	flagdomain.ErrNameTaken,
	gorm.ErrDuplicatedKey,
}

// Structural invariants of the model that the request could not restore.
var invariantErrors = []error{
	propagation.ErrProductionMissing,
	appdomain.ErrProductionProvisionFailed,
}

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func invalidRequestError() error {
	return newValidationError("request", "invalid_request", "invalid request")
}

func newValidationError(field, code, message string) error {
	return &ValidationErrors{
		Errors: []ValidationError{
			{
				Field:   field,
				Code:    code,
				Message: message,
			},
		},
	}
}

func mapError(err error) (int, errorPayload) {
	if err == nil {
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}

	if vErr := asValidationErrors(err); vErr != nil {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors:  vErr.Errors,
		}
	}

	if sentinel := matchAny(err, validationErrors); sentinel != nil {
		code := sentinel.Error()
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors: []ValidationError{
				{
					Field:   validationErrorField(code),
					Code:    code,
					Message: validationErrorMessage(code),
				},
			},
		}
	}

	switch {
	case matchAny(err, notFoundErrors) != nil:
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: matchAny(err, notFoundErrors).Error(),
		}
	case matchAny(err, conflictErrors) != nil:
		return http.StatusConflict, errorPayload{
			Type:    "conflict",
			Message: matchAny(err, conflictErrors).Error(),
		}
	case matchAny(err, invariantErrors) != nil:
		return http.StatusInternalServerError, errorPayload{
			Type:    "invariant_violation",
			Message: matchAny(err, invariantErrors).Error(),
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}

// classifyErrorForLog returns the response type and code logged next to a failed request.
func classifyErrorForLog(err error) (string, string) {
	_, payload := mapError(err)
	code := payload.Message
	if len(payload.Errors) > 0 {
		code = payload.Errors[0].Code
	}
	return payload.Type, code
}

func matchAny(err error, targets []error) error {
	for _, target := range targets {
		if errors.Is(err, target) {
			return target
		}
	}
	return nil
}

func asValidationErrors(err error) *ValidationErrors {
	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		return vErr
	}
	return nil
}

func validationErrorField(code string) string {
	if code == "invalid_request" {
		return "request"
	}
	if strings.HasPrefix(code, "invalid_") {
		return strings.TrimPrefix(code, "invalid_")
	}
	return ""
}

func validationErrorMessage(code string) string {
	switch code {
	case "invalid_request":
		return "invalid request"
	case "production_name_reserved":
		return "Production is created together with its app"
	case "production_immutable":
		return "Production cannot be deleted"
	case "user_lists_required":
		return "USER strategy needs an allow or deny list"
	default:
		return "invalid value"
	}
}
