package models

import (
	"database/sql/driver"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// StepUnit enumerates the delay unit of a follow-up step
type StepUnit string

const (
	StepUnitMinutes StepUnit = "minutes"
	StepUnitHours   StepUnit = "hours"
	StepUnitDays    StepUnit = "days"
)

// String returns the string representation of the unit
func (u StepUnit) String() string {
	return string(u)
}

// Valid checks if the unit is valid
func (u StepUnit) Valid() bool {
	switch u {
	case StepUnitMinutes, StepUnitHours, StepUnitDays:
		return true
	default:
		return false
	}
}

// Scan implements the sql.Scanner interface for StepUnit
func (u *StepUnit) Scan(value any) error {
	if value == nil {
		*u = ""
		return nil
	}
	switch v := value.(type) {
	case string:
		*u = StepUnit(v)
	case []byte:
		*u = StepUnit(string(v))
	default:
		return fmt.Errorf("cannot scan %T into StepUnit", value)
	}
	return nil
}

// Value implements the driver.Valuer interface for StepUnit
func (u StepUnit) Value() (driver.Value, error) {
	if !u.Valid() {
		return nil, fmt.Errorf("invalid StepUnit: %s", u)
	}
	return string(u), nil
}

// FollowupConfig defines the re-engagement cadence for one agent of one tenant.
// Steps are matched by identity, not index, so a config with in-flight chains
// must not be mutated in place.
type FollowupConfig struct {
	ID                  uint           `gorm:"primaryKey" json:"id"`
	UUID                uuid.UUID      `gorm:"type:uuid;uniqueIndex:idx_followup_configs_uuid;not null" json:"uuid"`
	TenantID            uint           `gorm:"not null;index:idx_followup_configs_tenant_agent" json:"tenant_id"`
	AgentID             uint           `gorm:"not null;index:idx_followup_configs_tenant_agent" json:"agent_id"`
	TriggerDelayMinutes int            `gorm:"not null;default:5" json:"trigger_delay_minutes"`
	AutoMessage         bool           `gorm:"not null;default:false" json:"auto_message"`
	IsInfiniteLoop      bool           `gorm:"not null;default:false" json:"is_infinite_loop"`
	IsActive            *bool          `gorm:"not null;default:true;index:idx_followup_configs_is_active" json:"is_active"`
	Steps               []FollowupStep `gorm:"foreignKey:ConfigID" json:"steps,omitempty"`
	CreatedAt           time.Time      `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC');not null" json:"created_at"`
	UpdatedAt           time.Time      `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC');not null" json:"updated_at"`
}

func (FollowupConfig) TableName() string { return "followup_configs" }

// FollowupStep is one ordered stage of a config. step_order is the
// authoritative progression path within a config.
type FollowupStep struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	ConfigID  uint      `gorm:"not null;uniqueIndex:idx_followup_steps_config_order" json:"config_id"`
	StepOrder int       `gorm:"not null;uniqueIndex:idx_followup_steps_config_order" json:"step_order"`
	StepUnit  StepUnit  `gorm:"type:step_unit;not null" json:"step_unit"`
	StepValue int       `gorm:"not null" json:"step_value"`
	Title     string    `gorm:"size:200;not null" json:"title"`
	Message   string    `gorm:"type:text;not null" json:"message"`
	CreatedAt time.Time `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC');not null" json:"created_at"`
}

func (FollowupStep) TableName() string { return "followup_steps" }

// FollowupConfigFilter provides filter fields for repository queries
type FollowupConfigFilter struct {
	TenantID *uint
	AgentID  *uint
	IsActive *bool
}
