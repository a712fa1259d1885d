package businessflow

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/zapcrm/followup-engine/models"
	"github.com/zapcrm/followup-engine/utils"
)

func eligibleFixture(now time.Time) (*models.PreFollowup, *models.AgentConversation, *models.Agent, *models.FollowupConfig) {
	pf := &models.PreFollowup{
		TenantID:       1,
		AgentID:        2,
		ConversationID: 3,
		RemoteJID:      "5511999990000@s.whatsapp.net",
		Status:         models.PreFollowupStatusPending,
		CreatedAt:      now.Add(-20 * time.Minute),
		ExpiresAt:      now.Add(time.Hour),
	}
	conv := &models.AgentConversation{
		ID:        3,
		TenantID:  1,
		AgentID:   2,
		RemoteJID: pf.RemoteJID,
		IsPaused:  utils.ToPtr(false),
	}
	agent := &models.Agent{
		ID:               2,
		TenantID:         1,
		IsActive:         utils.ToPtr(true),
		IsPausedGlobally: utils.ToPtr(false),
	}
	cfg := &models.FollowupConfig{
		ID:                  4,
		TenantID:            1,
		AgentID:             2,
		TriggerDelayMinutes: 10,
		IsActive:            utils.ToPtr(true),
	}
	return pf, conv, agent, cfg
}

func TestEligibilityCutoffEnforcesFloor(t *testing.T) {
	now := time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)

	// Configured delays below the floor are clamped to it
	assert.Equal(t, now.Add(-5*time.Minute), EligibilityCutoff(now, 0))
	assert.Equal(t, now.Add(-5*time.Minute), EligibilityCutoff(now, 3))
	assert.Equal(t, now.Add(-5*time.Minute), EligibilityCutoff(now, 5))
	assert.Equal(t, now.Add(-30*time.Minute), EligibilityCutoff(now, 30))
}

func TestEligiblePreFollowup(t *testing.T) {
	now := time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)
	pf, conv, agent, cfg := eligibleFixture(now)

	assert.True(t, EligiblePreFollowup(pf, conv, agent, cfg, now))
}

func TestEligiblePreFollowupIdlenessBoundary(t *testing.T) {
	now := time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)
	pf, conv, agent, cfg := eligibleFixture(now)

	// Created exactly at the cutoff is still too fresh
	pf.CreatedAt = now.Add(-10 * time.Minute)
	assert.False(t, EligiblePreFollowup(pf, conv, agent, cfg, now))

	pf.CreatedAt = now.Add(-10*time.Minute - time.Second)
	assert.True(t, EligiblePreFollowup(pf, conv, agent, cfg, now))
}

func TestEligiblePreFollowupExpiry(t *testing.T) {
	now := time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)
	pf, conv, agent, cfg := eligibleFixture(now)

	// Expiry exactly at now is already too late
	pf.ExpiresAt = now
	assert.False(t, EligiblePreFollowup(pf, conv, agent, cfg, now))

	pf.ExpiresAt = now.Add(-time.Minute)
	assert.False(t, EligiblePreFollowup(pf, conv, agent, cfg, now))
}

func TestEligiblePreFollowupExclusions(t *testing.T) {
	now := time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)

	t.Run("group conversation", func(t *testing.T) {
		pf, conv, agent, cfg := eligibleFixture(now)
		pf.RemoteJID = "123456789-987654@g.us"
		assert.False(t, EligiblePreFollowup(pf, conv, agent, cfg, now))
	})

	t.Run("already processed", func(t *testing.T) {
		pf, conv, agent, cfg := eligibleFixture(now)
		pf.Status = models.PreFollowupStatusProcessed
		assert.False(t, EligiblePreFollowup(pf, conv, agent, cfg, now))
	})

	t.Run("paused conversation", func(t *testing.T) {
		pf, conv, agent, cfg := eligibleFixture(now)
		conv.IsPaused = utils.ToPtr(true)
		assert.False(t, EligiblePreFollowup(pf, conv, agent, cfg, now))
	})

	t.Run("inactive agent", func(t *testing.T) {
		pf, conv, agent, cfg := eligibleFixture(now)
		agent.IsActive = utils.ToPtr(false)
		assert.False(t, EligiblePreFollowup(pf, conv, agent, cfg, now))
	})

	t.Run("globally paused agent", func(t *testing.T) {
		pf, conv, agent, cfg := eligibleFixture(now)
		agent.IsPausedGlobally = utils.ToPtr(true)
		assert.False(t, EligiblePreFollowup(pf, conv, agent, cfg, now))
	})

	t.Run("tenant mismatch", func(t *testing.T) {
		pf, conv, agent, cfg := eligibleFixture(now)
		cfg.TenantID = 99
		assert.False(t, EligiblePreFollowup(pf, conv, agent, cfg, now))
	})

	t.Run("nil inputs", func(t *testing.T) {
		pf, conv, agent, cfg := eligibleFixture(now)
		assert.False(t, EligiblePreFollowup(nil, conv, agent, cfg, now))
		assert.False(t, EligiblePreFollowup(pf, nil, agent, cfg, now))
		assert.False(t, EligiblePreFollowup(pf, conv, nil, cfg, now))
		assert.False(t, EligiblePreFollowup(pf, conv, agent, nil, now))
	})
}
