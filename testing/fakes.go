// Package testing provides in-memory repository fakes and fixtures for testing the engine flows
package testing

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/zapcrm/followup-engine/models"
	"github.com/zapcrm/followup-engine/repository"
)

// FakeStore is a shared in-memory backing store for all repository fakes. It
// enforces the same per-conversation active-execution gate the partial unique
// index does, so concurrency tests exercise the real invariant.
type FakeStore struct {
	mu sync.Mutex

	Configs       map[uint]*models.FollowupConfig
	PreFollowups  map[uint]*models.PreFollowup
	Executions    map[uint]*models.FollowupExecution
	History       []*models.FollowupHistory
	Conversations map[uint]*models.AgentConversation
	Agents        map[uint]*models.Agent
	Instances     map[uint]*models.MessagingInstance

	nextID uint
}

// NewFakeStore creates an empty in-memory store
func NewFakeStore() *FakeStore {
	return &FakeStore{
		Configs:       make(map[uint]*models.FollowupConfig),
		PreFollowups:  make(map[uint]*models.PreFollowup),
		Executions:    make(map[uint]*models.FollowupExecution),
		Conversations: make(map[uint]*models.AgentConversation),
		Agents:        make(map[uint]*models.Agent),
		Instances:     make(map[uint]*models.MessagingInstance),
	}
}

// NextID hands out sequential identifiers across all entity kinds
func (s *FakeStore) NextID() uint {
	s.nextID++
	return s.nextID
}

// ExecutionsByStatus returns executions in the given status, ordered by ID
func (s *FakeStore) ExecutionsByStatus(status models.ExecutionStatus) []*models.FollowupExecution {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*models.FollowupExecution
	for _, e := range s.Executions {
		if e.Status == status {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// HistoryEvents returns the recorded event names in append order
func (s *FakeStore) HistoryEvents() []models.HistoryEvent {
	s.mu.Lock()
	defer s.mu.Unlock()

	events := make([]models.HistoryEvent, 0, len(s.History))
	for _, h := range s.History {
		events = append(events, h.Event)
	}
	return events
}

// FakeConfigRepository is an in-memory FollowupConfigRepository
type FakeConfigRepository struct {
	Store *FakeStore
}

func (r *FakeConfigRepository) ByID(ctx context.Context, id uint) (*models.FollowupConfig, error) {
	r.Store.mu.Lock()
	defer r.Store.mu.Unlock()
	cfg, ok := r.Store.Configs[id]
	if !ok {
		return nil, nil
	}
	copied := *cfg
	return &copied, nil
}

func (r *FakeConfigRepository) Save(ctx context.Context, config *models.FollowupConfig) error {
	r.Store.mu.Lock()
	defer r.Store.mu.Unlock()
	if config.ID == 0 {
		config.ID = r.Store.NextID()
	}
	r.Store.Configs[config.ID] = config
	return nil
}

func (r *FakeConfigRepository) ListActive(ctx context.Context) ([]*models.FollowupConfig, error) {
	r.Store.mu.Lock()
	defer r.Store.mu.Unlock()

	var out []*models.FollowupConfig
	for _, cfg := range r.Store.Configs {
		if cfg.IsActive != nil && *cfg.IsActive {
			copied := *cfg
			out = append(out, &copied)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *FakeConfigRepository) StepsByConfig(ctx context.Context, configID uint) ([]*models.FollowupStep, error) {
	r.Store.mu.Lock()
	defer r.Store.mu.Unlock()
	cfg, ok := r.Store.Configs[configID]
	if !ok {
		return nil, nil
	}
	out := make([]*models.FollowupStep, 0, len(cfg.Steps))
	for i := range cfg.Steps {
		step := cfg.Steps[i]
		out = append(out, &step)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StepOrder < out[j].StepOrder })
	return out, nil
}

func (r *FakeConfigRepository) StepByID(ctx context.Context, stepID uint) (*models.FollowupStep, error) {
	r.Store.mu.Lock()
	defer r.Store.mu.Unlock()
	for _, cfg := range r.Store.Configs {
		for i := range cfg.Steps {
			if cfg.Steps[i].ID == stepID {
				step := cfg.Steps[i]
				return &step, nil
			}
		}
	}
	return nil, nil
}

// FakePreFollowupRepository is an in-memory PreFollowupRepository
type FakePreFollowupRepository struct {
	Store *FakeStore
}

func (r *FakePreFollowupRepository) ByID(ctx context.Context, id uint) (*models.PreFollowup, error) {
	r.Store.mu.Lock()
	defer r.Store.mu.Unlock()
	pf, ok := r.Store.PreFollowups[id]
	if !ok {
		return nil, nil
	}
	copied := *pf
	return &copied, nil
}

func (r *FakePreFollowupRepository) Save(ctx context.Context, pf *models.PreFollowup) error {
	r.Store.mu.Lock()
	defer r.Store.mu.Unlock()
	if pf.ID == 0 {
		pf.ID = r.Store.NextID()
	}
	r.Store.PreFollowups[pf.ID] = pf
	return nil
}

func (r *FakePreFollowupRepository) ListEligible(ctx context.Context, config *models.FollowupConfig, cutoff, now time.Time) ([]*models.PreFollowup, error) {
	r.Store.mu.Lock()
	defer r.Store.mu.Unlock()

	var out []*models.PreFollowup
	for _, pf := range r.Store.PreFollowups {
		if pf.Status != models.PreFollowupStatusPending {
			continue
		}
		if pf.TenantID != config.TenantID || pf.AgentID != config.AgentID {
			continue
		}
		if !pf.CreatedAt.Before(cutoff) {
			continue
		}
		if !pf.ExpiresAt.After(now) {
			continue
		}
		conv := r.Store.Conversations[pf.ConversationID]
		if conv == nil || conv.IsGroup() {
			continue
		}
		if conv.IsPaused != nil && *conv.IsPaused {
			continue
		}
		agent := r.Store.Agents[pf.AgentID]
		if agent == nil || agent.IsActive == nil || !*agent.IsActive {
			continue
		}
		if agent.IsPausedGlobally != nil && *agent.IsPausedGlobally {
			continue
		}
		copied := *pf
		out = append(out, &copied)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *FakePreFollowupRepository) MarkProcessed(ctx context.Context, id uint, processedAt time.Time) error {
	r.Store.mu.Lock()
	defer r.Store.mu.Unlock()
	pf, ok := r.Store.PreFollowups[id]
	if !ok || pf.Status != models.PreFollowupStatusPending {
		return nil
	}
	pf.Status = models.PreFollowupStatusProcessed
	pf.ProcessedAt = &processedAt
	return nil
}

// FakeExecutionRepository is an in-memory FollowupExecutionRepository. Create
// enforces the per-conversation active-execution gate atomically under the
// store lock, mirroring the partial unique index.
type FakeExecutionRepository struct {
	Store *FakeStore
}

func (r *FakeExecutionRepository) ByID(ctx context.Context, id uint) (*models.FollowupExecution, error) {
	r.Store.mu.Lock()
	defer r.Store.mu.Unlock()
	e, ok := r.Store.Executions[id]
	if !ok {
		return nil, nil
	}
	copied := *e
	return &copied, nil
}

func (r *FakeExecutionRepository) HasActive(ctx context.Context, conversationID uint) (bool, error) {
	r.Store.mu.Lock()
	defer r.Store.mu.Unlock()
	return r.hasActiveLocked(conversationID), nil
}

func (r *FakeExecutionRepository) hasActiveLocked(conversationID uint) bool {
	for _, e := range r.Store.Executions {
		if e.ConversationID == conversationID && e.Status.Active() {
			return true
		}
	}
	return false
}

func (r *FakeExecutionRepository) Create(ctx context.Context, execution *models.FollowupExecution) error {
	r.Store.mu.Lock()
	defer r.Store.mu.Unlock()
	if execution.Status.Active() && r.hasActiveLocked(execution.ConversationID) {
		return repository.ErrActiveExecutionExists
	}
	if execution.ID == 0 {
		execution.ID = r.Store.NextID()
	}
	copied := *execution
	r.Store.Executions[execution.ID] = &copied
	return nil
}

func (r *FakeExecutionRepository) MarkSent(ctx context.Context, executionID uint, messageText string, sentAt time.Time) error {
	r.Store.mu.Lock()
	defer r.Store.mu.Unlock()
	e, ok := r.Store.Executions[executionID]
	if !ok {
		return nil
	}
	e.Status = models.ExecutionStatusSent
	e.SentAt = &sentAt
	e.MessageSent = &messageText
	e.UpdatedAt = sentAt
	return nil
}

func (r *FakeExecutionRepository) MarkFailed(ctx context.Context, executionID uint, reason string) error {
	r.Store.mu.Lock()
	defer r.Store.mu.Unlock()
	e, ok := r.Store.Executions[executionID]
	if !ok {
		return nil
	}
	e.Status = models.ExecutionStatusFailed
	e.FailureReason = &reason
	return nil
}

func (r *FakeExecutionRepository) ListDue(ctx context.Context, now time.Time, limit int) ([]*models.FollowupExecution, error) {
	r.Store.mu.Lock()
	defer r.Store.mu.Unlock()

	var out []*models.FollowupExecution
	for _, e := range r.Store.Executions {
		if e.Status == models.ExecutionStatusScheduled && !e.ScheduledAt.After(now) {
			copied := *e
			out = append(out, &copied)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ScheduledAt.Before(out[j].ScheduledAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *FakeExecutionRepository) PickForTestSend(ctx context.Context, now time.Time) (*models.FollowupExecution, error) {
	due, err := r.ListDue(ctx, now, 1)
	if err != nil {
		return nil, err
	}
	if len(due) > 0 {
		return due[0], nil
	}

	r.Store.mu.Lock()
	defer r.Store.mu.Unlock()
	var newest *models.FollowupExecution
	for _, e := range r.Store.Executions {
		if e.Status != models.ExecutionStatusFailed {
			continue
		}
		if newest == nil || e.ID > newest.ID {
			newest = e
		}
	}
	if newest == nil {
		return nil, nil
	}
	copied := *newest
	return &copied, nil
}

// FakeHistoryRepository is an in-memory FollowupHistoryRepository
type FakeHistoryRepository struct {
	Store *FakeStore
	// Err makes every Append fail, for best-effort write tests
	Err error
}

func (r *FakeHistoryRepository) Append(ctx context.Context, event *models.FollowupHistory) error {
	if r.Err != nil {
		return r.Err
	}
	r.Store.mu.Lock()
	defer r.Store.mu.Unlock()
	if event.ID == 0 {
		event.ID = r.Store.NextID()
	}
	r.Store.History = append(r.Store.History, event)
	return nil
}

func (r *FakeHistoryRepository) ListByConversation(ctx context.Context, conversationID uint, limit, offset int) ([]*models.FollowupHistory, error) {
	r.Store.mu.Lock()
	defer r.Store.mu.Unlock()

	// Newest first, matching the SQL ordering.
	var out []*models.FollowupHistory
	for i := len(r.Store.History) - 1; i >= 0; i-- {
		if h := r.Store.History[i]; h.ConversationID == conversationID {
			out = append(out, h)
		}
	}
	if offset > 0 {
		if offset >= len(out) {
			return nil, nil
		}
		out = out[offset:]
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// FakeConversationRepository is an in-memory ConversationRepository
type FakeConversationRepository struct {
	Store *FakeStore
}

func (r *FakeConversationRepository) ByID(ctx context.Context, id uint) (*models.AgentConversation, error) {
	r.Store.mu.Lock()
	defer r.Store.mu.Unlock()
	conv, ok := r.Store.Conversations[id]
	if !ok {
		return nil, nil
	}
	copied := *conv
	if agent, ok := r.Store.Agents[conv.AgentID]; ok {
		agentCopy := *agent
		copied.Agent = &agentCopy
	}
	return &copied, nil
}

func (r *FakeConversationRepository) AgentByID(ctx context.Context, id uint) (*models.Agent, error) {
	r.Store.mu.Lock()
	defer r.Store.mu.Unlock()
	agent, ok := r.Store.Agents[id]
	if !ok {
		return nil, nil
	}
	copied := *agent
	return &copied, nil
}

func (r *FakeConversationRepository) InstanceForConversation(ctx context.Context, conversation *models.AgentConversation) (*models.MessagingInstance, error) {
	r.Store.mu.Lock()
	defer r.Store.mu.Unlock()

	if conversation.InstanceID != nil {
		if inst, ok := r.Store.Instances[*conversation.InstanceID]; ok {
			copied := *inst
			return &copied, nil
		}
	}
	if agent, ok := r.Store.Agents[conversation.AgentID]; ok && agent.InstanceID != nil {
		if inst, ok := r.Store.Instances[*agent.InstanceID]; ok {
			copied := *inst
			return &copied, nil
		}
	}
	var fallback *models.MessagingInstance
	for _, inst := range r.Store.Instances {
		if inst.TenantID != conversation.TenantID {
			continue
		}
		if inst.IsConnected == nil || !*inst.IsConnected {
			continue
		}
		if fallback == nil || inst.ID < fallback.ID {
			fallback = inst
		}
	}
	if fallback == nil {
		return nil, nil
	}
	copied := *fallback
	return &copied, nil
}
