package tests

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	businessflow "github.com/zapcrm/followup-engine/business_flow"
	"github.com/zapcrm/followup-engine/models"
	"github.com/zapcrm/followup-engine/utils"
)

// seedDueExecution inserts a scheduled execution whose fire time has passed
func seedDueExecution(t *testing.T, env *engineEnv, cfg *models.FollowupConfig, conv *models.AgentConversation, step *models.FollowupStep, infinite bool) *models.FollowupExecution {
	t.Helper()
	execution := &models.FollowupExecution{
		UUID:           uuid.New(),
		TenantID:       cfg.TenantID,
		ConversationID: conv.ID,
		ConfigID:       cfg.ID,
		StepID:         step.ID,
		Status:         models.ExecutionStatusScheduled,
		ScheduledAt:    utils.UTCNow().Add(-time.Minute),
		IsInfiniteLoop: infinite,
	}
	require.NoError(t, env.execRepo.Create(context.Background(), execution))
	return execution
}

func TestFirePassDeliversAndAdvancesChain(t *testing.T) {
	env := newEngineEnv()
	agent := env.fixtures.CreateAgent(1)
	conv := env.fixtures.CreateConversation(agent, "5511999990000@s.whatsapp.net")
	env.fixtures.CreateInstance(1, "uazapi")
	cfg := env.fixtures.CreateConfig(agent, 30, 60)
	execution := seedDueExecution(t, env, cfg, conv, &cfg.Steps[0], false)

	resp, err := env.fire.RunFirePass(context.Background(), 100)
	require.NoError(t, err)
	assert.Equal(t, 1, resp.ExecutionsFired)
	assert.Equal(t, 0, resp.ExecutionsFail)

	// Delivered with the marker, recorded as sent
	sent := env.dispatcher.SentMessages()
	require.Len(t, sent, 1)
	assert.Equal(t, conv.RemoteJID, sent[0].RemoteJID)
	assert.Equal(t, businessflow.FollowupMarker+cfg.Steps[0].Message, sent[0].Text)

	fired := env.store.Executions[execution.ID]
	assert.Equal(t, models.ExecutionStatusSent, fired.Status)
	require.NotNil(t, fired.MessageSent)
	assert.Equal(t, sent[0].Text, *fired.MessageSent)
	require.NotNil(t, fired.SentAt)

	// Next step scheduled 60 minutes out
	scheduled := env.store.ExecutionsByStatus(models.ExecutionStatusScheduled)
	require.Len(t, scheduled, 1)
	assert.Equal(t, cfg.Steps[1].ID, scheduled[0].StepID)
	assert.WithinDuration(t, utils.UTCNow().Add(60*time.Minute), scheduled[0].ScheduledAt, 5*time.Second)

	events := env.store.HistoryEvents()
	assert.Equal(t, []models.HistoryEvent{models.HistoryEventStepSent, models.HistoryEventNextStepScheduled}, events)
}

func TestFireLastStepEndsChain(t *testing.T) {
	env := newEngineEnv()
	agent := env.fixtures.CreateAgent(1)
	conv := env.fixtures.CreateConversation(agent, "5511999990000@s.whatsapp.net")
	env.fixtures.CreateInstance(1, "uazapi")
	cfg := env.fixtures.CreateConfig(agent, 30)
	seedDueExecution(t, env, cfg, conv, &cfg.Steps[0], false)

	resp, err := env.fire.RunFirePass(context.Background(), 100)
	require.NoError(t, err)
	assert.Equal(t, 1, resp.ExecutionsFired)

	// Nothing further scheduled; the contact never responded
	assert.Empty(t, env.store.ExecutionsByStatus(models.ExecutionStatusScheduled))
	events := env.store.HistoryEvents()
	assert.Equal(t, []models.HistoryEvent{models.HistoryEventStepSent, models.HistoryEventNoResponse}, events)
}

func TestFireLastStepRestartsInfiniteChain(t *testing.T) {
	env := newEngineEnv()
	agent := env.fixtures.CreateAgent(1)
	conv := env.fixtures.CreateConversation(agent, "5511999990000@s.whatsapp.net")
	env.fixtures.CreateInstance(1, "uazapi")
	cfg := env.fixtures.CreateConfig(agent, 30)
	cfg.IsInfiniteLoop = true
	seedDueExecution(t, env, cfg, conv, &cfg.Steps[0], true)

	resp, err := env.fire.RunFirePass(context.Background(), 100)
	require.NoError(t, err)
	assert.Equal(t, 1, resp.ExecutionsFired)

	// Chain re-seeds from the first step with a bumped iteration counter
	scheduled := env.store.ExecutionsByStatus(models.ExecutionStatusScheduled)
	require.Len(t, scheduled, 1)
	assert.Equal(t, cfg.Steps[0].ID, scheduled[0].StepID)
	assert.Equal(t, 1, scheduled[0].LoopIteration)
	assert.True(t, scheduled[0].IsInfiniteLoop)

	events := env.store.HistoryEvents()
	assert.Equal(t, []models.HistoryEvent{models.HistoryEventStepSent, models.HistoryEventNextStepScheduled}, events)
}

func TestFireDispatchFailureMarksFailedWithoutAdvancing(t *testing.T) {
	env := newEngineEnv()
	agent := env.fixtures.CreateAgent(1)
	conv := env.fixtures.CreateConversation(agent, "5511999990000@s.whatsapp.net")
	env.fixtures.CreateInstance(1, "uazapi")
	cfg := env.fixtures.CreateConfig(agent, 30, 60)
	execution := seedDueExecution(t, env, cfg, conv, &cfg.Steps[0], false)

	env.dispatcher.Err = errors.New("transport http status 500: gateway exploded")

	resp, err := env.fire.RunFirePass(context.Background(), 100)
	require.NoError(t, err)
	assert.Equal(t, 0, resp.ExecutionsFired)
	assert.Equal(t, 1, resp.ExecutionsFail)

	failed := env.store.Executions[execution.ID]
	assert.Equal(t, models.ExecutionStatusFailed, failed.Status)
	require.NotNil(t, failed.FailureReason)
	assert.Contains(t, *failed.FailureReason, "gateway exploded")

	// The chain stops; no retry, no next step
	assert.Empty(t, env.store.ExecutionsByStatus(models.ExecutionStatusScheduled))
	events := env.store.HistoryEvents()
	assert.Equal(t, []models.HistoryEvent{models.HistoryEventStepFailed}, events)
}

func TestFireDetectsTerminalConversationState(t *testing.T) {
	t.Run("paused conversation", func(t *testing.T) {
		env := newEngineEnv()
		agent := env.fixtures.CreateAgent(1)
		conv := env.fixtures.CreateConversation(agent, "5511999990000@s.whatsapp.net")
		env.fixtures.CreateInstance(1, "uazapi")
		cfg := env.fixtures.CreateConfig(agent, 30)
		execution := seedDueExecution(t, env, cfg, conv, &cfg.Steps[0], false)

		conv.IsPaused = utils.ToPtr(true)

		resp, err := env.fire.RunFirePass(context.Background(), 100)
		require.NoError(t, err)
		assert.Equal(t, 1, resp.ExecutionsFail)
		assert.Equal(t, models.ExecutionStatusFailed, env.store.Executions[execution.ID].Status)
		assert.Empty(t, env.dispatcher.SentMessages())
	})

	t.Run("deactivated agent", func(t *testing.T) {
		env := newEngineEnv()
		agent := env.fixtures.CreateAgent(1)
		conv := env.fixtures.CreateConversation(agent, "5511999990000@s.whatsapp.net")
		env.fixtures.CreateInstance(1, "uazapi")
		cfg := env.fixtures.CreateConfig(agent, 30)
		execution := seedDueExecution(t, env, cfg, conv, &cfg.Steps[0], false)

		agent.IsActive = utils.ToPtr(false)

		resp, err := env.fire.RunFirePass(context.Background(), 100)
		require.NoError(t, err)
		assert.Equal(t, 1, resp.ExecutionsFail)
		assert.Equal(t, models.ExecutionStatusFailed, env.store.Executions[execution.ID].Status)
		assert.Empty(t, env.dispatcher.SentMessages())
	})

	t.Run("no connected instance", func(t *testing.T) {
		env := newEngineEnv()
		agent := env.fixtures.CreateAgent(1)
		conv := env.fixtures.CreateConversation(agent, "5511999990000@s.whatsapp.net")
		cfg := env.fixtures.CreateConfig(agent, 30)
		execution := seedDueExecution(t, env, cfg, conv, &cfg.Steps[0], false)

		resp, err := env.fire.RunFirePass(context.Background(), 100)
		require.NoError(t, err)
		assert.Equal(t, 1, resp.ExecutionsFail)
		failed := env.store.Executions[execution.ID]
		assert.Equal(t, models.ExecutionStatusFailed, failed.Status)
		require.NotNil(t, failed.FailureReason)
		assert.Contains(t, *failed.FailureReason, "instance")
	})
}

func TestFireExecutionByID(t *testing.T) {
	env := newEngineEnv()
	agent := env.fixtures.CreateAgent(1)
	conv := env.fixtures.CreateConversation(agent, "5511999990000@s.whatsapp.net")
	env.fixtures.CreateInstance(1, "uazapi")
	cfg := env.fixtures.CreateConfig(agent, 30)
	execution := seedDueExecution(t, env, cfg, conv, &cfg.Steps[0], false)

	resp, err := env.fire.FireExecution(context.Background(), &execution.ID)
	require.NoError(t, err)
	assert.True(t, resp.Success)
	assert.Equal(t, execution.ID, resp.ExecutionID)
	assert.Equal(t, "Maria Silva", resp.Contact)
	assert.Equal(t, "5511999990000", resp.Phone)
	assert.Equal(t, 1, resp.Step)
	assert.NotEmpty(t, resp.APIURL)
	assert.Equal(t, businessflow.FollowupMarker+cfg.Steps[0].Message, resp.Message)

	// Firing a sent execution again is rejected
	_, err = env.fire.FireExecution(context.Background(), &execution.ID)
	require.Error(t, err)
	assert.ErrorIs(t, err, businessflow.ErrExecutionNotFireable)
}

func TestFireExecutionPicksEligibleWhenUnspecified(t *testing.T) {
	env := newEngineEnv()
	agent := env.fixtures.CreateAgent(1)
	conv := env.fixtures.CreateConversation(agent, "5511999990000@s.whatsapp.net")
	env.fixtures.CreateInstance(1, "uazapi")
	cfg := env.fixtures.CreateConfig(agent, 30)

	// Nothing eligible yet
	_, err := env.fire.FireExecution(context.Background(), nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, businessflow.ErrNoEligibleExecution)

	execution := seedDueExecution(t, env, cfg, conv, &cfg.Steps[0], false)

	resp, err := env.fire.FireExecution(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, execution.ID, resp.ExecutionID)
}

func TestFireUnknownExecutionID(t *testing.T) {
	env := newEngineEnv()
	missing := uint(4242)

	_, err := env.fire.FireExecution(context.Background(), &missing)
	require.Error(t, err)
	assert.ErrorIs(t, err, businessflow.ErrExecutionNotFound)

	var be *businessflow.BusinessError
	require.ErrorAs(t, err, &be)
	assert.Equal(t, "EXECUTION_NOT_FOUND", be.Code)
}

func TestHistoryWriteFailureDoesNotBlockDelivery(t *testing.T) {
	env := newEngineEnv()
	agent := env.fixtures.CreateAgent(1)
	conv := env.fixtures.CreateConversation(agent, "5511999990000@s.whatsapp.net")
	env.fixtures.CreateInstance(1, "uazapi")
	cfg := env.fixtures.CreateConfig(agent, 30, 60)
	execution := seedDueExecution(t, env, cfg, conv, &cfg.Steps[0], false)

	env.histRepo.Err = errors.New("history table unavailable")

	resp, err := env.fire.RunFirePass(context.Background(), 100)
	require.NoError(t, err)
	assert.Equal(t, 1, resp.ExecutionsFired)

	// Message delivered and chain advanced despite the audit failure
	assert.Equal(t, models.ExecutionStatusSent, env.store.Executions[execution.ID].Status)
	assert.Len(t, env.store.ExecutionsByStatus(models.ExecutionStatusScheduled), 1)
	assert.Empty(t, env.store.HistoryEvents())
}
