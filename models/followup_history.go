package models

import (
	"encoding/json"
	"time"
)

// HistoryEvent enumerates audit events recorded for a follow-up chain
type HistoryEvent string

const (
	HistoryEventStarted           HistoryEvent = "started"
	HistoryEventScheduledStep     HistoryEvent = "scheduled_step"
	HistoryEventStepSent          HistoryEvent = "step_sent"
	HistoryEventNextStepScheduled HistoryEvent = "next_step_scheduled"
	HistoryEventStepFailed        HistoryEvent = "step_failed"
	HistoryEventNoResponse        HistoryEvent = "no_response"
)

// FollowupHistory is the append-only audit log of chain events. Rows are never
// mutated or deleted; writes are best-effort and must not block business logic.
type FollowupHistory struct {
	ID             uint            `gorm:"primaryKey" json:"id"`
	TenantID       uint            `gorm:"not null;index:idx_followup_history_tenant_id" json:"tenant_id"`
	ConversationID uint            `gorm:"not null;index:idx_followup_history_conversation_id" json:"conversation_id"`
	ExecutionID    *uint           `gorm:"index:idx_followup_history_execution_id" json:"execution_id,omitempty"`
	ConfigID       uint            `gorm:"not null" json:"config_id"`
	Event          HistoryEvent    `gorm:"size:32;not null;index:idx_followup_history_event" json:"event"`
	Metadata       json.RawMessage `gorm:"type:jsonb" json:"metadata,omitempty"`
	CreatedAt      time.Time       `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC');not null;index:idx_followup_history_created_at" json:"created_at"`
}

func (FollowupHistory) TableName() string { return "followup_history" }
