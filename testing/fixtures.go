// Package testing provides in-memory repository fakes and fixtures for testing the engine flows
package testing

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/zapcrm/followup-engine/models"
	"github.com/zapcrm/followup-engine/utils"
)

// TestFixtures provides helper methods for seeding the fake store
type TestFixtures struct {
	Store *FakeStore
}

// NewTestFixtures creates a new test fixtures instance
func NewTestFixtures(store *FakeStore) *TestFixtures {
	return &TestFixtures{Store: store}
}

// CreateAgent seeds an active agent for the tenant
func (tf *TestFixtures) CreateAgent(tenantID uint) *models.Agent {
	agent := &models.Agent{
		ID:               tf.Store.NextID(),
		TenantID:         tenantID,
		Name:             fmt.Sprintf("Agent %d", tenantID),
		IsActive:         utils.ToPtr(true),
		IsPausedGlobally: utils.ToPtr(false),
		CreatedAt:        utils.UTCNow(),
		UpdatedAt:        utils.UTCNow(),
	}
	tf.Store.Agents[agent.ID] = agent
	return agent
}

// CreateConversation seeds a direct (non-group) conversation for the agent
func (tf *TestFixtures) CreateConversation(agent *models.Agent, remoteJID string) *models.AgentConversation {
	conv := &models.AgentConversation{
		ID:           tf.Store.NextID(),
		TenantID:     agent.TenantID,
		AgentID:      agent.ID,
		RemoteJID:    remoteJID,
		ContactName:  utils.ToPtr("Maria Silva"),
		ContactPhone: utils.ToPtr("5511999990000"),
		IsPaused:     utils.ToPtr(false),
		CreatedAt:    utils.UTCNow(),
		UpdatedAt:    utils.UTCNow(),
	}
	tf.Store.Conversations[conv.ID] = conv
	return conv
}

// CreateInstance seeds a connected messaging instance for the tenant
func (tf *TestFixtures) CreateInstance(tenantID uint, provider string) *models.MessagingInstance {
	inst := &models.MessagingInstance{
		ID:          tf.Store.NextID(),
		TenantID:    tenantID,
		Name:        fmt.Sprintf("instance-%d", tenantID),
		Provider:    provider,
		APIURL:      "https://wa.example.com",
		APIToken:    "test-token",
		IsConnected: utils.ToPtr(true),
		CreatedAt:   utils.UTCNow(),
		UpdatedAt:   utils.UTCNow(),
	}
	tf.Store.Instances[inst.ID] = inst
	return inst
}

// CreateConfig seeds an active static-message config with the given step
// delays, all in minutes, ordered 1..n.
func (tf *TestFixtures) CreateConfig(agent *models.Agent, delaysMinutes ...int) *models.FollowupConfig {
	cfg := &models.FollowupConfig{
		ID:                  tf.Store.NextID(),
		UUID:                uuid.New(),
		TenantID:            agent.TenantID,
		AgentID:             agent.ID,
		TriggerDelayMinutes: 5,
		IsActive:            utils.ToPtr(true),
		CreatedAt:           utils.UTCNow(),
		UpdatedAt:           utils.UTCNow(),
	}
	for i, delay := range delaysMinutes {
		cfg.Steps = append(cfg.Steps, models.FollowupStep{
			ID:        tf.Store.NextID(),
			ConfigID:  cfg.ID,
			StepOrder: i + 1,
			StepUnit:  models.StepUnitMinutes,
			StepValue: delay,
			Title:     fmt.Sprintf("Step %d", i+1),
			Message:   fmt.Sprintf("Oi! Tudo bem? Passando para lembrar do passo %d.", i+1),
			CreatedAt: utils.UTCNow(),
		})
	}
	tf.Store.Configs[cfg.ID] = cfg
	return cfg
}

// CreatePreFollowup seeds a pending pre-followup created idleFor ago with a
// one-hour expiry window remaining.
func (tf *TestFixtures) CreatePreFollowup(conv *models.AgentConversation, idleFor time.Duration) *models.PreFollowup {
	now := utils.UTCNow()
	pf := &models.PreFollowup{
		ID:             tf.Store.NextID(),
		TenantID:       conv.TenantID,
		AgentID:        conv.AgentID,
		ConversationID: conv.ID,
		RemoteJID:      conv.RemoteJID,
		Status:         models.PreFollowupStatusPending,
		CreatedAt:      now.Add(-idleFor),
		ExpiresAt:      now.Add(time.Hour),
	}
	tf.Store.PreFollowups[pf.ID] = pf
	return pf
}
