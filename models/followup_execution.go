package models

import (
	"database/sql/driver"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ExecutionStatus enumerates the lifecycle of a follow-up execution
type ExecutionStatus string

const (
	ExecutionStatusScheduled ExecutionStatus = "scheduled"
	ExecutionStatusPending   ExecutionStatus = "pending"
	ExecutionStatusSent      ExecutionStatus = "sent"
	ExecutionStatusFailed    ExecutionStatus = "failed"
)

// String returns the string representation of the status
func (s ExecutionStatus) String() string {
	return string(s)
}

// Valid checks if the status is valid
func (s ExecutionStatus) Valid() bool {
	switch s {
	case ExecutionStatusScheduled, ExecutionStatusPending,
		ExecutionStatusSent, ExecutionStatusFailed:
		return true
	default:
		return false
	}
}

// Active reports whether the status occupies the per-conversation
// uniqueness gate.
func (s ExecutionStatus) Active() bool {
	return s == ExecutionStatusScheduled || s == ExecutionStatusPending
}

// Scan implements the sql.Scanner interface for ExecutionStatus
func (s *ExecutionStatus) Scan(value any) error {
	if value == nil {
		*s = ""
		return nil
	}
	switch v := value.(type) {
	case string:
		*s = ExecutionStatus(v)
	case []byte:
		*s = ExecutionStatus(string(v))
	default:
		return fmt.Errorf("cannot scan %T into ExecutionStatus", value)
	}
	return nil
}

// Value implements the driver.Valuer interface for ExecutionStatus
func (s ExecutionStatus) Value() (driver.Value, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("invalid ExecutionStatus: %s", s)
	}
	return string(s), nil
}

// FollowupExecution is one scheduled/attempted firing of a single step for one
// conversation. At most one execution per conversation may be in an active
// status at any time; the migration carries a partial unique index on
// (conversation_id) WHERE status IN ('scheduled','pending') backing that.
type FollowupExecution struct {
	ID             uint            `gorm:"primaryKey" json:"id"`
	UUID           uuid.UUID       `gorm:"type:uuid;uniqueIndex:idx_followup_executions_uuid;not null" json:"uuid"`
	TenantID       uint            `gorm:"not null;index:idx_followup_executions_tenant_id" json:"tenant_id"`
	ConversationID uint            `gorm:"not null;index:idx_followup_executions_conversation_id" json:"conversation_id"`
	ConfigID       uint            `gorm:"not null" json:"config_id"`
	StepID         uint            `gorm:"not null" json:"step_id"`
	Status         ExecutionStatus `gorm:"type:execution_status;not null;default:'scheduled';index:idx_followup_executions_status_scheduled_at" json:"status"`
	ScheduledAt    time.Time       `gorm:"not null;index:idx_followup_executions_status_scheduled_at" json:"scheduled_at"`
	SentAt         *time.Time      `json:"sent_at,omitempty"`
	MessageSent    *string         `gorm:"type:text" json:"message_sent,omitempty"`
	FailureReason  *string         `gorm:"type:text" json:"failure_reason,omitempty"`
	IsInfiniteLoop bool            `gorm:"not null;default:false" json:"is_infinite_loop"`
	LoopIteration  int             `gorm:"not null;default:0" json:"loop_iteration"`
	CreatedAt      time.Time       `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC');not null" json:"created_at"`
	UpdatedAt      time.Time       `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC');not null" json:"updated_at"`
}

func (FollowupExecution) TableName() string { return "followup_executions" }

// FollowupExecutionFilter provides filter fields for repository queries
type FollowupExecutionFilter struct {
	TenantID       *uint
	ConversationID *uint
	ConfigID       *uint
	Status         *ExecutionStatus
	ScheduledUntil *time.Time
}
