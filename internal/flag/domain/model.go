package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

type FlagType string

const (
	TypeBoolean FlagType = "BOOLEAN"
	TypeText    FlagType = "TEXT"
	TypeJSON    FlagType = "JSON"
	TypeEnum    FlagType = "ENUM"
)

// Flag is a feature toggle or, for non-BOOLEAN types, a typed config value.
// Environments holds exactly one setting per environment of the owning app.
type Flag struct {
	ID           snowflake.ID                            `gorm:"primaryKey" json:"id"`
	AppID        snowflake.ID                            `gorm:"column:app_id;not null;uniqueIndex:ux_flags_app_name,priority:1" json:"app_id"`
	Name         string                                  `gorm:"type:text;not null;uniqueIndex:ux_flags_app_name,priority:2" json:"name"`
	Description  string                                  `gorm:"type:text;not null;default:''" json:"description"`
	Type         FlagType                                `gorm:"column:flag_type;type:text;not null" json:"type"`
	EnumValues   datatypes.JSONSlice[string]             `gorm:"column:enum_values" json:"enum_values,omitempty"`
	Environments datatypes.JSONSlice[EnvironmentSetting] `gorm:"column:environments" json:"environments"`
	CreatedBy    string                                  `gorm:"type:text;not null" json:"created_by"`
	CreatedAt    time.Time                               `gorm:"not null" json:"created_at"`
	UpdatedAt    time.Time                               `gorm:"not null" json:"updated_at"`
}

func (Flag) TableName() string { return "flags" }

// SettingFor returns the setting bound to envID.
func (f *Flag) SettingFor(envID snowflake.ID) (*EnvironmentSetting, bool) {
	for i := range f.Environments {
		if f.Environments[i].EnvironmentID == envID {
			return &f.Environments[i], true
		}
	}
	return nil, false
}

func (f *Flag) HasSetting(envID snowflake.ID) bool {
	_, ok := f.SettingFor(envID)
	return ok
}

// RemoveSetting drops every setting bound to envID and reports how many were removed.
func (f *Flag) RemoveSetting(envID snowflake.ID) int {
	kept := f.Environments[:0]
	removed := 0
	for _, s := range f.Environments {
		if s.EnvironmentID == envID {
			removed++
			continue
		}
		kept = append(kept, s)
	}
	f.Environments = kept
	return removed
}

// Targets reports whether any setting names userID in its allow or deny list.
func (f *Flag) Targets(userID string) bool {
	for _, s := range f.Environments {
		if s.Mentions(userID) {
			return true
		}
	}
	return false
}
