package models

import "time"

// GroupJIDSuffix marks WhatsApp group conversations; the engine never
// follows up in groups.
const GroupJIDSuffix = "@g.us"

// Agent is the read-side view of an AI agent owned by the chat subsystem.
// The engine only consults the activation flags for eligibility.
type Agent struct {
	ID               uint      `gorm:"primaryKey" json:"id"`
	TenantID         uint      `gorm:"not null;index:idx_agents_tenant_id" json:"tenant_id"`
	Name             string    `gorm:"size:200;not null" json:"name"`
	IsActive         *bool     `gorm:"not null;default:true" json:"is_active"`
	IsPausedGlobally *bool     `gorm:"not null;default:false" json:"is_paused_globally"`
	InstanceID       *uint     `json:"instance_id,omitempty"`
	CreatedAt        time.Time `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC');not null" json:"created_at"`
	UpdatedAt        time.Time `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC');not null" json:"updated_at"`
}

func (Agent) TableName() string { return "agents" }

// AgentConversation is the read-side view of a chat conversation. The engine
// treats it as read-only input for eligibility and dispatch addressing.
type AgentConversation struct {
	ID           uint       `gorm:"primaryKey" json:"id"`
	TenantID     uint       `gorm:"not null;index:idx_agent_conversations_tenant_id" json:"tenant_id"`
	AgentID      uint       `gorm:"not null;index:idx_agent_conversations_agent_id" json:"agent_id"`
	RemoteJID    string     `gorm:"size:128;not null;index:idx_agent_conversations_remote_jid" json:"remote_jid"`
	ContactName  *string    `gorm:"size:200" json:"contact_name,omitempty"`
	ContactPhone *string    `gorm:"size:32" json:"contact_phone,omitempty"`
	IsPaused     *bool      `gorm:"not null;default:false" json:"is_paused"`
	InstanceID   *uint      `json:"instance_id,omitempty"`
	Agent        *Agent     `gorm:"foreignKey:AgentID" json:"agent,omitempty"`
	LastAgentMsg *time.Time `json:"last_agent_msg,omitempty"`
	CreatedAt    time.Time  `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC');not null" json:"created_at"`
	UpdatedAt    time.Time  `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC');not null" json:"updated_at"`
}

func (AgentConversation) TableName() string { return "agent_conversations" }

// IsGroup reports whether the conversation addresses a WhatsApp group.
func (c *AgentConversation) IsGroup() bool {
	return len(c.RemoteJID) >= len(GroupJIDSuffix) &&
		c.RemoteJID[len(c.RemoteJID)-len(GroupJIDSuffix):] == GroupJIDSuffix
}
