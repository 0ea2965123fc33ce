package evaluation

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"slices"
	"sync"

	"github.com/bwmarrin/snowflake"
	"github.com/hashicorp/go-multierror"
	flagdomain "github.com/smallbiznis/flagship/internal/flag/domain"
	"golang.org/x/sync/errgroup"
)

// Random is the uniform source behind PROBABILISTIC rollouts. Float64 returns a value in [0,1).
type Random interface {
	Float64() float64
}

type globalRandom struct{}

func (globalRandom) Float64() float64 { return rand.Float64() }

// Result is the decision for one flag. Value is only set for enabled non-BOOLEAN flags.
type Result struct {
	FlagID    snowflake.ID        `json:"id"`
	Name      string              `json:"name"`
	Type      flagdomain.FlagType `json:"type"`
	Strategy  flagdomain.Strategy `json:"evaluation_strategy"`
	IsEnabled bool                `json:"is_enabled"`
	Value     json.RawMessage     `json:"value,omitempty"`
}

// Engine decides flag outcomes. It holds no state besides the random source.
type Engine struct {
	random Random
}

func NewEngine(random Random) *Engine {
	if random == nil {
		random = globalRandom{}
	}
	return &Engine{random: random}
}

// Evaluate decides flag for the environment. A flag without a setting for envID
// yields ErrSettingNotFound rather than a disabled result.
func (e *Engine) Evaluate(flag *flagdomain.Flag, envID snowflake.ID, userID string) (Result, error) {
	setting, ok := flag.SettingFor(envID)
	if !ok {
		return Result{}, fmt.Errorf("flag %s environment %s: %w", flag.Name, envID, flagdomain.ErrSettingNotFound)
	}

	result := Result{
		FlagID:    flag.ID,
		Name:      flag.Name,
		Type:      flag.Type,
		Strategy:  setting.Strategy,
		IsEnabled: e.decide(setting, userID),
	}
	if result.IsEnabled && flag.Type != flagdomain.TypeBoolean && len(setting.Value) > 0 {
		result.Value = slices.Clone(setting.Value)
	}
	return result, nil
}

func (e *Engine) decide(setting *flagdomain.EnvironmentSetting, userID string) bool {
	switch setting.Strategy {
	case flagdomain.StrategyBoolean:
		return setting.IsActive
	case flagdomain.StrategyUser:
		return decideUser(setting, userID)
	case flagdomain.StrategyPercentage:
		if setting.Percentage == nil {
			return false
		}
		return UserPercentage(userID) <= *setting.Percentage
	case flagdomain.StrategyProbabilistic:
		if setting.Percentage == nil {
			return false
		}
		return e.random.Float64()*100 <= *setting.Percentage
	default:
		return false
	}
}

// decideUser keeps the permissive rule: a user named in both lists, or in neither, is enabled.
func decideUser(setting *flagdomain.EnvironmentSetting, userID string) bool {
	if len(setting.AllowedUsers) == 0 && len(setting.DisallowedUsers) == 0 {
		return setting.IsActive
	}
	allowed := slices.Contains(setting.AllowedUsers, userID)
	disallowed := slices.Contains(setting.DisallowedUsers, userID)
	return setting.IsActive && (allowed || !disallowed)
}

// EvaluateMany decides every flag independently. Flags lacking a setting are left out
// of results and reported through the aggregated error. Result order is not guaranteed.
func (e *Engine) EvaluateMany(ctx context.Context, flags []flagdomain.Flag, envID snowflake.ID, userID string, limit int) ([]Result, error) {
	var (
		mu      sync.Mutex
		results = make([]Result, 0, len(flags))
		errs    *multierror.Error
	)

	g, gctx := errgroup.WithContext(ctx)
	if limit > 0 {
		g.SetLimit(limit)
	}
	for i := range flags {
		flag := &flags[i]
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			result, err := e.Evaluate(flag, envID, userID)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = multierror.Append(errs, err)
				return nil
			}
			results = append(results, result)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, errs.ErrorOrNil()
}
