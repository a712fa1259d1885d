package models

import "time"

// PreFollowupStatus enumerates the lifecycle of a queued follow-up trigger
type PreFollowupStatus string

const (
	PreFollowupStatusPending   PreFollowupStatus = "pending"
	PreFollowupStatusProcessed PreFollowupStatus = "processed"
)

// PreFollowup is a queued signal that a conversation went idle after an
// outbound agent message. The chat subsystem creates these; the monitor pass
// consumes them. Once processed the row is terminal and never reconsidered.
type PreFollowup struct {
	ID             uint              `gorm:"primaryKey" json:"id"`
	TenantID       uint              `gorm:"not null;index:idx_pre_followup_tenant_agent" json:"tenant_id"`
	AgentID        uint              `gorm:"not null;index:idx_pre_followup_tenant_agent" json:"agent_id"`
	ConversationID uint              `gorm:"not null;index:idx_pre_followup_conversation_id" json:"conversation_id"`
	RemoteJID      string            `gorm:"size:128;not null" json:"remote_jid"`
	Status         PreFollowupStatus `gorm:"size:16;not null;default:'pending';index:idx_pre_followup_status" json:"status"`
	CreatedAt      time.Time         `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC');not null;index:idx_pre_followup_created_at" json:"created_at"`
	ExpiresAt      time.Time         `gorm:"not null" json:"expires_at"`
	ProcessedAt    *time.Time        `json:"processed_at,omitempty"`
}

func (PreFollowup) TableName() string { return "pre_followup" }

// PreFollowupFilter provides filter fields for repository queries
type PreFollowupFilter struct {
	TenantID       *uint
	AgentID        *uint
	ConversationID *uint
	Status         *PreFollowupStatus
}
