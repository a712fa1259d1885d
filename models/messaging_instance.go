package models

import "time"

// MessagingInstance is a tenant's bound WhatsApp transport credential. One
// instance is shared by all conversations of the tenant; a conversation with
// no connected instance cannot be followed up.
type MessagingInstance struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	TenantID    uint      `gorm:"not null;index:idx_messaging_instances_tenant_id" json:"tenant_id"`
	Name        string    `gorm:"size:100;not null" json:"name"`
	Provider    string    `gorm:"size:50;not null" json:"provider"`
	APIURL      string    `gorm:"size:255;not null" json:"api_url"`
	APIToken    string    `gorm:"size:255;not null" json:"api_token"`
	IsConnected *bool     `gorm:"not null;default:false" json:"is_connected"`
	CreatedAt   time.Time `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC');not null" json:"created_at"`
	UpdatedAt   time.Time `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC');not null" json:"updated_at"`
}

func (MessagingInstance) TableName() string { return "messaging_instances" }
