package evaluation

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/hashicorp/go-multierror"
	"github.com/smallbiznis/flagship/internal/config"
	flagdomain "github.com/smallbiznis/flagship/internal/flag/domain"
	obslogger "github.com/smallbiznis/flagship/internal/observability/logger"
	"github.com/smallbiznis/flagship/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	OutcomeEnabled  = "enabled"
	OutcomeDisabled = "disabled"
	OutcomeNotFound = "setting_not_found"

	defaultTimeout          = 2 * time.Second
	defaultBatchConcurrency = 16
)

var (
	ErrInvalidFlagRef       = errors.New("invalid_flag_reference")
	ErrInvalidEnvironmentID = errors.New("invalid_environment_id")
)

type Request struct {
	FlagID        string `json:"flag_id,omitempty"`
	AppID         string `json:"app_id,omitempty"`
	FlagName      string `json:"flag_name,omitempty"`
	EnvironmentID string `json:"environment_id"`
	UserID        string `json:"user_id,omitempty"`
}

type BatchRequest struct {
	AppID         string `json:"app_id"`
	EnvironmentID string `json:"environment_id"`
	UserID        string `json:"user_id,omitempty"`
}

type Service interface {
	Evaluate(ctx context.Context, req Request) (*Result, error)
	EvaluateAll(ctx context.Context, req BatchRequest) ([]Result, error)
}

type Params struct {
	fx.In

	Config  config.Config
	Log     *zap.Logger
	Flags   flagdomain.Service
	Engine  *Engine
	Runtime *config.RuntimeHolder `optional:"true"`
	Metrics *metrics.Metrics      `optional:"true"`
}

type service struct {
	log     *zap.Logger
	flags   flagdomain.Service
	engine  *Engine
	timeout time.Duration
	runtime *config.RuntimeHolder
	metrics *metrics.Metrics
}

func NewService(p Params) Service {
	timeout := p.Config.EvaluationTimeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &service{
		log:     p.Log.Named("evaluation.service"),
		flags:   p.Flags,
		engine:  p.Engine,
		timeout: timeout,
		runtime: p.Runtime,
		metrics: p.Metrics,
	}
}

// Evaluate resolves the flag by id, or by app and name, through the cached read path.
func (s *service) Evaluate(ctx context.Context, req Request) (*Result, error) {
	envID, err := parseEnvironmentID(req.EnvironmentID)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var flag *flagdomain.Flag
	switch {
	case strings.TrimSpace(req.FlagID) != "":
		flag, err = s.flags.GetByID(ctx, req.FlagID)
	case strings.TrimSpace(req.AppID) != "" && strings.TrimSpace(req.FlagName) != "":
		flag, err = s.flags.GetByName(ctx, req.AppID, req.FlagName)
	default:
		return nil, ErrInvalidFlagRef
	}
	if err != nil {
		return nil, err
	}

	result, err := s.engine.Evaluate(flag, envID, strings.TrimSpace(req.UserID))
	if err != nil {
		s.metrics.RecordEvaluation(ctx, "", OutcomeNotFound)
		obslogger.WithFlag(obslogger.WithContext(ctx, s.log), flag.ID.String(), envID.String()).
			Warn("flag has no setting for environment")
		return nil, err
	}
	s.record(ctx, result)
	return &result, nil
}

// EvaluateAll decides every flag of the app. Flags missing a setting for the
// environment are reported in the returned multierror next to the other results.
func (s *service) EvaluateAll(ctx context.Context, req BatchRequest) ([]Result, error) {
	envID, err := parseEnvironmentID(req.EnvironmentID)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	flags, err := s.flags.ListByApp(ctx, req.AppID)
	if err != nil {
		return nil, err
	}

	results, batchErr := s.engine.EvaluateMany(ctx, flags, envID, strings.TrimSpace(req.UserID), s.batchConcurrency())
	if results == nil {
		return nil, batchErr
	}
	for _, result := range results {
		s.record(ctx, result)
	}
	if merr, ok := batchErr.(*multierror.Error); ok {
		for range merr.Errors {
			s.metrics.RecordEvaluation(ctx, "", OutcomeNotFound)
		}
	}
	return results, batchErr
}

func (s *service) record(ctx context.Context, result Result) {
	outcome := OutcomeDisabled
	if result.IsEnabled {
		outcome = OutcomeEnabled
	}
	s.metrics.RecordEvaluation(ctx, string(result.Strategy), outcome)
}

func (s *service) batchConcurrency() int {
	if s.runtime == nil {
		return defaultBatchConcurrency
	}
	if n := s.runtime.Get().BatchConcurrency; n > 0 {
		return n
	}
	return defaultBatchConcurrency
}

func parseEnvironmentID(value string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(value))
	if err != nil || id == 0 {
		return 0, ErrInvalidEnvironmentID
	}
	return id, nil
}
