package domain

import (
	"encoding/json"
	"math"
	"slices"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
)

type Strategy string

const (
	StrategyBoolean       Strategy = "BOOLEAN"
	StrategyUser          Strategy = "USER"
	StrategyPercentage    Strategy = "PERCENTAGE"
	StrategyProbabilistic Strategy = "PROBABILISTIC"
)

// EnvironmentSetting is the per-environment evaluation rule embedded in a flag.
type EnvironmentSetting struct {
	EnvironmentID   snowflake.ID    `json:"environment_id"`
	IsActive        bool            `json:"is_active"`
	Value           json.RawMessage `json:"value,omitempty"`
	Strategy        Strategy        `json:"evaluation_strategy"`
	Percentage      *float64        `json:"evaluation_percentage,omitempty"`
	AllowedUsers    []string        `json:"allowed_users,omitempty"`
	DisallowedUsers []string        `json:"disallowed_users,omitempty"`
	UpdatedBy       string          `json:"updated_by"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// SettingInput is the caller-supplied part of a setting.
type SettingInput struct {
	IsActive        bool            `json:"is_active"`
	Value           json.RawMessage `json:"value,omitempty"`
	Strategy        Strategy        `json:"evaluation_strategy"`
	Percentage      *float64        `json:"evaluation_percentage,omitempty"`
	AllowedUsers    []string        `json:"allowed_users,omitempty"`
	DisallowedUsers []string        `json:"disallowed_users,omitempty"`
}

func NormalizeStrategy(raw Strategy) (Strategy, error) {
	s := Strategy(strings.ToUpper(strings.TrimSpace(string(raw))))
	if s == "" {
		return StrategyBoolean, nil
	}
	switch s {
	case StrategyBoolean, StrategyUser, StrategyPercentage, StrategyProbabilistic:
		return s, nil
	default:
		return "", ErrInvalidStrategy
	}
}

func NormalizeType(raw FlagType) (FlagType, error) {
	t := FlagType(strings.ToUpper(strings.TrimSpace(string(raw))))
	if t == "" {
		return TypeBoolean, nil
	}
	switch t {
	case TypeBoolean, TypeText, TypeJSON, TypeEnum:
		return t, nil
	default:
		return "", ErrInvalidType
	}
}

// Normalize trims user lists and canonicalizes the strategy name.
func (in SettingInput) Normalize() (SettingInput, error) {
	strategy, err := NormalizeStrategy(in.Strategy)
	if err != nil {
		return SettingInput{}, err
	}
	in.Strategy = strategy
	in.AllowedUsers = normalizeUsers(in.AllowedUsers)
	in.DisallowedUsers = normalizeUsers(in.DisallowedUsers)
	if len(in.Value) > 0 && string(in.Value) == "null" {
		in.Value = nil
	}
	return in, nil
}

// Validate checks the strategy and value shape against the flag type.
func (in SettingInput) Validate(t FlagType, enumValues []string) error {
	switch in.Strategy {
	case StrategyBoolean:
	case StrategyUser:
		if len(in.AllowedUsers) == 0 && len(in.DisallowedUsers) == 0 {
			return ErrUserListsRequired
		}
	case StrategyPercentage, StrategyProbabilistic:
		if !ValidPercentage(in.Percentage) {
			return ErrInvalidPercentage
		}
	default:
		return ErrInvalidStrategy
	}
	return validateValue(t, enumValues, in.Value)
}

// Bind materializes the input as the setting of envID.
func (in SettingInput) Bind(envID snowflake.ID, actor string, now time.Time) EnvironmentSetting {
	s := EnvironmentSetting{
		EnvironmentID:   envID,
		IsActive:        in.IsActive,
		Value:           slices.Clone(in.Value),
		Strategy:        in.Strategy,
		AllowedUsers:    slices.Clone(in.AllowedUsers),
		DisallowedUsers: slices.Clone(in.DisallowedUsers),
		UpdatedBy:       actor,
		UpdatedAt:       now,
	}
	if in.Percentage != nil {
		p := *in.Percentage
		s.Percentage = &p
	}
	return s
}

// Clone copies the setting onto another environment with a fresh updatedBy.
func (s EnvironmentSetting) Clone(envID snowflake.ID, actor string, now time.Time) EnvironmentSetting {
	return s.Input().Bind(envID, actor, now)
}

func (s EnvironmentSetting) Input() SettingInput {
	return SettingInput{
		IsActive:        s.IsActive,
		Value:           s.Value,
		Strategy:        s.Strategy,
		Percentage:      s.Percentage,
		AllowedUsers:    s.AllowedUsers,
		DisallowedUsers: s.DisallowedUsers,
	}
}

func (s EnvironmentSetting) Mentions(userID string) bool {
	return slices.Contains(s.AllowedUsers, userID) || slices.Contains(s.DisallowedUsers, userID)
}

func ValidPercentage(p *float64) bool {
	if p == nil || math.IsNaN(*p) {
		return false
	}
	return *p >= 0 && *p <= 100
}

func ValidateEnumValues(t FlagType, values []string) ([]string, error) {
	if t != TypeEnum {
		if len(values) > 0 {
			return nil, ErrInvalidEnumValues
		}
		return nil, nil
	}
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" || slices.Contains(out, v) {
			return nil, ErrInvalidEnumValues
		}
		out = append(out, v)
	}
	if len(out) == 0 {
		return nil, ErrInvalidEnumValues
	}
	return out, nil
}

func validateValue(t FlagType, enumValues []string, value json.RawMessage) error {
	switch t {
	case TypeBoolean:
		if len(value) > 0 {
			return ErrInvalidValue
		}
		return nil
	case TypeText:
		var s string
		if len(value) == 0 || json.Unmarshal(value, &s) != nil {
			return ErrInvalidValue
		}
		return nil
	case TypeJSON:
		if len(value) == 0 || !json.Valid(value) {
			return ErrInvalidValue
		}
		return nil
	case TypeEnum:
		var s string
		if len(value) == 0 || json.Unmarshal(value, &s) != nil || !slices.Contains(enumValues, s) {
			return ErrInvalidValue
		}
		return nil
	default:
		return ErrInvalidType
	}
}

func normalizeUsers(users []string) []string {
	if len(users) == 0 {
		return nil
	}
	out := make([]string, 0, len(users))
	for _, u := range users {
		u = strings.TrimSpace(u)
		if u == "" || slices.Contains(out, u) {
			continue
		}
		out = append(out, u)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
