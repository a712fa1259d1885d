// Package tests contains flow-level test cases wired over the in-memory fakes
package tests

import (
	"context"
	"io"
	"log"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zapcrm/followup-engine/app/services"
	businessflow "github.com/zapcrm/followup-engine/business_flow"
	"github.com/zapcrm/followup-engine/models"
	testingutil "github.com/zapcrm/followup-engine/testing"
	"github.com/zapcrm/followup-engine/utils"
)

type engineEnv struct {
	store      *testingutil.FakeStore
	fixtures   *testingutil.TestFixtures
	configRepo *testingutil.FakeConfigRepository
	preRepo    *testingutil.FakePreFollowupRepository
	execRepo   *testingutil.FakeExecutionRepository
	histRepo   *testingutil.FakeHistoryRepository
	convRepo   *testingutil.FakeConversationRepository
	dispatcher *services.MockDispatcher

	monitor businessflow.MonitorFlow
	fire    businessflow.FireFlow
}

func newEngineEnv() *engineEnv {
	store := testingutil.NewFakeStore()
	env := &engineEnv{
		store:      store,
		fixtures:   testingutil.NewTestFixtures(store),
		configRepo: &testingutil.FakeConfigRepository{Store: store},
		preRepo:    &testingutil.FakePreFollowupRepository{Store: store},
		execRepo:   &testingutil.FakeExecutionRepository{Store: store},
		histRepo:   &testingutil.FakeHistoryRepository{Store: store},
		convRepo:   &testingutil.FakeConversationRepository{Store: store},
		dispatcher: services.NewMockDispatcher(),
	}

	quiet := log.New(io.Discard, "", 0)
	env.monitor = businessflow.NewMonitorFlow(env.configRepo, env.preRepo, env.execRepo, env.convRepo, env.histRepo, nil, quiet)
	env.fire = businessflow.NewFireFlow(env.execRepo, env.configRepo, env.convRepo, env.histRepo, businessflow.NewComposer(nil, quiet), env.dispatcher, nil, quiet)
	return env
}

func TestMonitorPassStartsChain(t *testing.T) {
	env := newEngineEnv()
	agent := env.fixtures.CreateAgent(1)
	conv := env.fixtures.CreateConversation(agent, "5511999990000@s.whatsapp.net")
	cfg := env.fixtures.CreateConfig(agent, 30, 60)
	pf := env.fixtures.CreatePreFollowup(conv, 20*time.Minute)

	resp, err := env.monitor.RunMonitorPass(context.Background())
	require.NoError(t, err)
	assert.True(t, resp.Success)
	assert.Equal(t, 1, resp.ConversationsProcessed)
	assert.Equal(t, 1, resp.ExecutionsCreated)

	scheduled := env.store.ExecutionsByStatus(models.ExecutionStatusScheduled)
	require.Len(t, scheduled, 1)
	assert.Equal(t, conv.ID, scheduled[0].ConversationID)
	assert.Equal(t, cfg.ID, scheduled[0].ConfigID)
	assert.Equal(t, cfg.Steps[0].ID, scheduled[0].StepID)
	assert.Equal(t, 0, scheduled[0].LoopIteration)

	// First step fires 30 minutes from now
	wantAt := utils.UTCNow().Add(30 * time.Minute)
	assert.WithinDuration(t, wantAt, scheduled[0].ScheduledAt, 5*time.Second)

	// Trigger consumed
	assert.Equal(t, models.PreFollowupStatusProcessed, env.store.PreFollowups[pf.ID].Status)
	require.NotNil(t, env.store.PreFollowups[pf.ID].ProcessedAt)

	events := env.store.HistoryEvents()
	assert.Equal(t, []models.HistoryEvent{models.HistoryEventStarted, models.HistoryEventScheduledStep}, events)
}

func TestMonitorPassIsIdempotent(t *testing.T) {
	env := newEngineEnv()
	agent := env.fixtures.CreateAgent(1)
	conv := env.fixtures.CreateConversation(agent, "5511999990000@s.whatsapp.net")
	env.fixtures.CreateConfig(agent, 30)
	env.fixtures.CreatePreFollowup(conv, 20*time.Minute)

	_, err := env.monitor.RunMonitorPass(context.Background())
	require.NoError(t, err)
	resp, err := env.monitor.RunMonitorPass(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 0, resp.ExecutionsCreated)
	assert.Len(t, env.store.ExecutionsByStatus(models.ExecutionStatusScheduled), 1)
}

func TestMonitorPassSkipsConversationWithActiveChain(t *testing.T) {
	env := newEngineEnv()
	agent := env.fixtures.CreateAgent(1)
	conv := env.fixtures.CreateConversation(agent, "5511999990000@s.whatsapp.net")
	cfg := env.fixtures.CreateConfig(agent, 30)
	pf := env.fixtures.CreatePreFollowup(conv, 20*time.Minute)

	err := env.execRepo.Create(context.Background(), &models.FollowupExecution{
		UUID:           uuid.New(),
		TenantID:       cfg.TenantID,
		ConversationID: conv.ID,
		ConfigID:       cfg.ID,
		StepID:         cfg.Steps[0].ID,
		Status:         models.ExecutionStatusScheduled,
		ScheduledAt:    utils.UTCNow().Add(time.Hour),
	})
	require.NoError(t, err)

	resp, err := env.monitor.RunMonitorPass(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, resp.ExecutionsCreated)

	// Pre-followup stays pending; the existing chain owns the conversation
	assert.Equal(t, models.PreFollowupStatusPending, env.store.PreFollowups[pf.ID].Status)
	assert.Len(t, env.store.ExecutionsByStatus(models.ExecutionStatusScheduled), 1)
}

func TestMonitorPassSkipsFreshAndExpiredTriggers(t *testing.T) {
	env := newEngineEnv()
	agent := env.fixtures.CreateAgent(1)
	env.fixtures.CreateConfig(agent, 30)

	fresh := env.fixtures.CreateConversation(agent, "5511111110000@s.whatsapp.net")
	pfFresh := env.fixtures.CreatePreFollowup(fresh, 2*time.Minute)

	expired := env.fixtures.CreateConversation(agent, "5511222220000@s.whatsapp.net")
	pfExpired := env.fixtures.CreatePreFollowup(expired, 20*time.Minute)
	env.store.PreFollowups[pfExpired.ID].ExpiresAt = utils.UTCNow().Add(-time.Minute)

	resp, err := env.monitor.RunMonitorPass(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, resp.ExecutionsCreated)

	// Fresh triggers wait, expired ones are simply never picked up
	assert.Equal(t, models.PreFollowupStatusPending, env.store.PreFollowups[pfFresh.ID].Status)
	assert.Equal(t, models.PreFollowupStatusPending, env.store.PreFollowups[pfExpired.ID].Status)
}

func TestMonitorPassSkipsPausedAndGroupConversations(t *testing.T) {
	env := newEngineEnv()
	agent := env.fixtures.CreateAgent(1)
	env.fixtures.CreateConfig(agent, 30)

	paused := env.fixtures.CreateConversation(agent, "5511333330000@s.whatsapp.net")
	paused.IsPaused = utils.ToPtr(true)
	env.fixtures.CreatePreFollowup(paused, 20*time.Minute)

	group := env.fixtures.CreateConversation(agent, "123456789-987654@g.us")
	env.fixtures.CreatePreFollowup(group, 20*time.Minute)

	resp, err := env.monitor.RunMonitorPass(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, resp.ExecutionsCreated)
	assert.Empty(t, env.store.ExecutionsByStatus(models.ExecutionStatusScheduled))
}

func TestMonitorPassSkipsConfigWithoutSteps(t *testing.T) {
	env := newEngineEnv()
	agent := env.fixtures.CreateAgent(1)
	conv := env.fixtures.CreateConversation(agent, "5511999990000@s.whatsapp.net")
	env.fixtures.CreateConfig(agent) // no steps
	env.fixtures.CreatePreFollowup(conv, 20*time.Minute)

	resp, err := env.monitor.RunMonitorPass(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, resp.ConversationsProcessed)
	assert.Empty(t, env.store.ExecutionsByStatus(models.ExecutionStatusScheduled))
}

func TestConcurrentMonitorPassesCreateSingleExecution(t *testing.T) {
	env := newEngineEnv()
	agent := env.fixtures.CreateAgent(1)
	conv := env.fixtures.CreateConversation(agent, "5511999990000@s.whatsapp.net")
	env.fixtures.CreateConfig(agent, 30)
	env.fixtures.CreatePreFollowup(conv, 20*time.Minute)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := env.monitor.RunMonitorPass(context.Background())
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	// The storage-level gate lets exactly one chain through
	assert.Len(t, env.store.ExecutionsByStatus(models.ExecutionStatusScheduled), 1)
}
