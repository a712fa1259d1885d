package businessflow

import (
	"context"
	"errors"
	"log"

	"github.com/google/uuid"
	"github.com/zapcrm/followup-engine/app/dto"
	"github.com/zapcrm/followup-engine/models"
	"github.com/zapcrm/followup-engine/repository"
	"github.com/zapcrm/followup-engine/utils"
	"gorm.io/gorm"
)

// MonitorFlow scans idle conversations and starts follow-up chains.
type MonitorFlow interface {
	// RunMonitorPass is idempotent and safe to invoke on every clock tick.
	// Per-item failures are logged and skipped; only total infrastructure
	// failure (configs unreadable) returns an error.
	RunMonitorPass(ctx context.Context) (*dto.MonitorPassResponse, error)
}

// MonitorFlowImpl implements the monitor pass
type MonitorFlowImpl struct {
	configRepo repository.FollowupConfigRepository
	preRepo    repository.PreFollowupRepository
	execRepo   repository.FollowupExecutionRepository
	convRepo   repository.ConversationRepository
	history    *historyWriter
	db         *gorm.DB
	logger     *log.Logger
}

// NewMonitorFlow creates a new monitor flow instance
func NewMonitorFlow(
	configRepo repository.FollowupConfigRepository,
	preRepo repository.PreFollowupRepository,
	execRepo repository.FollowupExecutionRepository,
	convRepo repository.ConversationRepository,
	historyRepo repository.FollowupHistoryRepository,
	db *gorm.DB,
	logger *log.Logger,
) MonitorFlow {
	if logger == nil {
		logger = log.Default()
	}
	return &MonitorFlowImpl{
		configRepo: configRepo,
		preRepo:    preRepo,
		execRepo:   execRepo,
		convRepo:   convRepo,
		history:    newHistoryWriter(historyRepo, logger),
		db:         db,
		logger:     logger,
	}
}

// RunMonitorPass loads all active configs and converts eligible pre-followups
// into new execution chains.
func (s *MonitorFlowImpl) RunMonitorPass(ctx context.Context) (*dto.MonitorPassResponse, error) {
	configs, err := s.configRepo.ListActive(ctx)
	if err != nil {
		return nil, NewBusinessError("CONFIG_LOAD_FAILED", "failed to load active followup configs", err)
	}

	resp := &dto.MonitorPassResponse{Success: true}

	for _, cfg := range configs {
		if len(cfg.Steps) == 0 {
			s.logger.Printf("monitor: config id=%d has no steps, skipping", cfg.ID)
			continue
		}

		now := utils.UTCNow()
		cutoff := EligibilityCutoff(now, cfg.TriggerDelayMinutes)
		candidates, err := s.preRepo.ListEligible(ctx, cfg, cutoff, now)
		if err != nil {
			// One tenant's misconfiguration must not block the others.
			s.logger.Printf("monitor: eligibility query failed for config id=%d: %v", cfg.ID, err)
			continue
		}

		for _, pf := range candidates {
			created, err := s.startChain(ctx, cfg, pf)
			if err != nil {
				s.logger.Printf("monitor: start chain failed for pre-followup id=%d: %v", pf.ID, err)
				continue
			}
			resp.ConversationsProcessed++
			if created {
				resp.ExecutionsCreated++
			}
		}
	}

	return resp, nil
}

// startChain converts one eligible pre-followup into a scheduled execution for
// the config's first step. Returns false when the conversation was skipped
// without error (active chain already running, or predicate re-check failed).
func (s *MonitorFlowImpl) startChain(ctx context.Context, cfg *models.FollowupConfig, pf *models.PreFollowup) (bool, error) {
	conv, err := s.convRepo.ByID(ctx, pf.ConversationID)
	if err != nil {
		return false, err
	}
	if conv == nil {
		return false, ErrConversationNotFound
	}
	agent := conv.Agent
	if agent == nil {
		agent, err = s.convRepo.AgentByID(ctx, pf.AgentID)
		if err != nil {
			return false, err
		}
	}

	now := utils.UTCNow()
	if !EligiblePreFollowup(pf, conv, agent, cfg, now) {
		s.logger.Printf("monitor: pre-followup id=%d no longer eligible, skipping", pf.ID)
		return false, nil
	}

	hasActive, err := s.execRepo.HasActive(ctx, pf.ConversationID)
	if err != nil {
		return false, err
	}
	if hasActive {
		s.logger.Printf("monitor: conversation id=%d already has an active execution, skipping", pf.ConversationID)
		return false, nil
	}

	first := FirstStep(cfg.Steps)
	if first == nil {
		return false, ErrConfigHasNoStep
	}
	scheduledAt, err := ComputeScheduledTime(now, first)
	if err != nil {
		return false, err
	}

	execution := &models.FollowupExecution{
		UUID:           uuid.New(),
		TenantID:       cfg.TenantID,
		ConversationID: pf.ConversationID,
		ConfigID:       cfg.ID,
		StepID:         first.ID,
		Status:         models.ExecutionStatusScheduled,
		ScheduledAt:    scheduledAt,
		IsInfiniteLoop: cfg.IsInfiniteLoop,
		LoopIteration:  0,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	err = repository.WithTransaction(ctx, s.db, func(txCtx context.Context) error {
		if err := s.execRepo.Create(txCtx, execution); err != nil {
			return err
		}
		return s.preRepo.MarkProcessed(txCtx, pf.ID, now)
	})
	if err != nil {
		if errors.Is(err, repository.ErrActiveExecutionExists) {
			// Lost the race against a concurrent pass; the pre-followup stays
			// pending and the storage-level gate kept the invariant.
			s.logger.Printf("monitor: concurrent chain creation for conversation id=%d, skipping", pf.ConversationID)
			return false, nil
		}
		return false, err
	}

	s.history.append(ctx, models.HistoryEventStarted, cfg.TenantID, pf.ConversationID, cfg.ID, &execution.ID, map[string]any{
		"pre_followup_id": pf.ID,
		"remote_jid":      pf.RemoteJID,
	})
	s.history.append(ctx, models.HistoryEventScheduledStep, cfg.TenantID, pf.ConversationID, cfg.ID, &execution.ID, map[string]any{
		"step_id":      first.ID,
		"step_order":   first.StepOrder,
		"scheduled_at": scheduledAt,
	})

	return true, nil
}
