package businessflow

import (
	"strings"
	"time"

	"github.com/zapcrm/followup-engine/models"
)

// MinTriggerDelayMinutes is a hard floor on conversation idleness before a
// follow-up may start, regardless of configuration.
const MinTriggerDelayMinutes = 5

// EligibilityCutoff returns the creation-time cutoff for pre-followups of a
// config: rows created at or after the cutoff are too fresh to trigger.
func EligibilityCutoff(now time.Time, triggerDelayMinutes int) time.Time {
	delay := triggerDelayMinutes
	if delay < MinTriggerDelayMinutes {
		delay = MinTriggerDelayMinutes
	}
	return now.Add(-time.Duration(delay) * time.Minute)
}

// EligiblePreFollowup is the chain-start predicate. The repository applies the
// same conditions in SQL; the monitor flow re-checks here so the policy stays
// unit-testable and the two cannot drift apart.
func EligiblePreFollowup(pf *models.PreFollowup, conv *models.AgentConversation, agent *models.Agent, config *models.FollowupConfig, now time.Time) bool {
	if pf == nil || conv == nil || agent == nil || config == nil {
		return false
	}
	if pf.Status != models.PreFollowupStatusPending {
		return false
	}
	if pf.TenantID != config.TenantID || pf.AgentID != config.AgentID {
		return false
	}
	if !pf.CreatedAt.Before(EligibilityCutoff(now, config.TriggerDelayMinutes)) {
		return false
	}
	if !pf.ExpiresAt.After(now) {
		return false
	}
	if strings.HasSuffix(pf.RemoteJID, models.GroupJIDSuffix) {
		return false
	}
	if conv.IsPaused != nil && *conv.IsPaused {
		return false
	}
	if agent.IsActive == nil || !*agent.IsActive {
		return false
	}
	if agent.IsPausedGlobally != nil && *agent.IsPausedGlobally {
		return false
	}
	return true
}
