package businessflow

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/zapcrm/followup-engine/app/dto"
	"github.com/zapcrm/followup-engine/models"
	"github.com/zapcrm/followup-engine/repository"
	"github.com/zapcrm/followup-engine/utils"
	"gorm.io/gorm"
)

// Dispatcher is the minimal transport surface the fire pass needs. The
// provider-aware resolver in app/services implements it.
type Dispatcher interface {
	Send(ctx context.Context, instance *models.MessagingInstance, remoteJID, text string) (string, error)
}

// FireFlow delivers due executions and advances their chains.
type FireFlow interface {
	// RunFirePass fires every scheduled execution whose time has come.
	// Per-execution failures are recorded and do not abort the batch.
	RunFirePass(ctx context.Context, limit int) (*dto.FirePassResponse, error)
	// FireExecution fires one execution: the given one, or — for manual
	// test-sends — one scheduled-or-failed eligible execution.
	FireExecution(ctx context.Context, executionID *uint) (*dto.FireExecutionResponse, error)
}

// FireFlowImpl implements the due-execution pass
type FireFlowImpl struct {
	execRepo   repository.FollowupExecutionRepository
	configRepo repository.FollowupConfigRepository
	convRepo   repository.ConversationRepository
	history    *historyWriter
	composer   *Composer
	dispatcher Dispatcher
	db         *gorm.DB
	logger     *log.Logger
}

// NewFireFlow creates a new fire flow instance
func NewFireFlow(
	execRepo repository.FollowupExecutionRepository,
	configRepo repository.FollowupConfigRepository,
	convRepo repository.ConversationRepository,
	historyRepo repository.FollowupHistoryRepository,
	composer *Composer,
	dispatcher Dispatcher,
	db *gorm.DB,
	logger *log.Logger,
) FireFlow {
	if logger == nil {
		logger = log.Default()
	}
	return &FireFlowImpl{
		execRepo:   execRepo,
		configRepo: configRepo,
		convRepo:   convRepo,
		history:    newHistoryWriter(historyRepo, logger),
		composer:   composer,
		dispatcher: dispatcher,
		db:         db,
		logger:     logger,
	}
}

func (s *FireFlowImpl) RunFirePass(ctx context.Context, limit int) (*dto.FirePassResponse, error) {
	due, err := s.execRepo.ListDue(ctx, utils.UTCNow(), limit)
	if err != nil {
		return nil, NewBusinessError("DUE_LIST_FAILED", "failed to list due executions", err)
	}

	resp := &dto.FirePassResponse{Success: true}
	for _, execution := range due {
		if _, err := s.fire(ctx, execution); err != nil {
			resp.ExecutionsFail++
			s.logger.Printf("fire: execution id=%d failed: %v", execution.ID, err)
			continue
		}
		resp.ExecutionsFired++
	}
	return resp, nil
}

func (s *FireFlowImpl) FireExecution(ctx context.Context, executionID *uint) (*dto.FireExecutionResponse, error) {
	var execution *models.FollowupExecution
	var err error

	if executionID != nil {
		execution, err = s.execRepo.ByID(ctx, *executionID)
		if err != nil {
			return nil, NewBusinessError("EXECUTION_LOOKUP_FAILED", "failed to lookup execution", err)
		}
		if execution == nil {
			return nil, NewBusinessError("EXECUTION_NOT_FOUND", "execution not found", ErrExecutionNotFound)
		}
		if execution.Status != models.ExecutionStatusScheduled && execution.Status != models.ExecutionStatusFailed {
			return nil, NewBusinessErrorf("EXECUTION_NOT_FIREABLE", "execution %d has status %s", ErrExecutionNotFireable, execution.ID, execution.Status)
		}
	} else {
		execution, err = s.execRepo.PickForTestSend(ctx, utils.UTCNow())
		if err != nil {
			return nil, NewBusinessError("EXECUTION_PICK_FAILED", "failed to pick execution", err)
		}
		if execution == nil {
			return nil, NewBusinessError("NO_ELIGIBLE_EXECUTION", "no scheduled or failed execution to fire", ErrNoEligibleExecution)
		}
	}

	return s.fire(ctx, execution)
}

// fire composes, dispatches, records the outcome, and advances the chain.
func (s *FireFlowImpl) fire(ctx context.Context, execution *models.FollowupExecution) (*dto.FireExecutionResponse, error) {
	cfg, err := s.configRepo.ByID(ctx, execution.ConfigID)
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		return s.fail(ctx, execution, "followup config not found", ErrConfigNotFound)
	}

	step := stepByID(cfg.Steps, execution.StepID)
	if step == nil {
		return s.fail(ctx, execution, "followup step not found", ErrStepNotFound)
	}

	conv, err := s.convRepo.ByID(ctx, execution.ConversationID)
	if err != nil {
		return nil, err
	}
	if conv == nil {
		return s.fail(ctx, execution, "conversation not found", ErrConversationNotFound)
	}

	// Terminal-state detection: a chain dies when the conversation is taken
	// over or the agent is switched off between scheduling and firing.
	if conv.IsPaused != nil && *conv.IsPaused {
		return s.fail(ctx, execution, "conversation is paused", ErrConversationPaused)
	}
	if conv.Agent != nil {
		if !utils.IsTrue(conv.Agent.IsActive) || utils.IsTrue(conv.Agent.IsPausedGlobally) {
			return s.fail(ctx, execution, "agent inactive or globally paused", ErrAgentInactive)
		}
	}

	instance, err := s.convRepo.InstanceForConversation(ctx, conv)
	if err != nil {
		return nil, err
	}
	if instance == nil || !utils.IsTrue(instance.IsConnected) {
		return s.fail(ctx, execution, "no connected messaging instance", ErrNoMessagingInstance)
	}

	text := s.composer.Compose(ctx, cfg, step, conv)

	apiURL, sendErr := s.dispatcher.Send(ctx, instance, conv.RemoteJID, text)
	if sendErr != nil {
		resp, err := s.fail(ctx, execution, sendErr.Error(), ErrDispatchFailed)
		if resp != nil {
			resp.APIURL = apiURL
		}
		return resp, err
	}

	now := utils.UTCNow()
	if err := s.execRepo.MarkSent(ctx, execution.ID, text, now); err != nil {
		return nil, err
	}
	s.history.append(ctx, models.HistoryEventStepSent, execution.TenantID, execution.ConversationID, execution.ConfigID, &execution.ID, map[string]any{
		"step_id":    step.ID,
		"step_order": step.StepOrder,
		"message":    text,
		"api_url":    apiURL,
	})

	if err := s.advance(ctx, execution, cfg, step, now); err != nil {
		// The message went out; a scheduling failure must not unmark it.
		s.logger.Printf("fire: advance failed for execution id=%d: %v", execution.ID, err)
	}

	return &dto.FireExecutionResponse{
		Success:     true,
		ExecutionID: execution.ID,
		Contact:     derefOr(conv.ContactName, conv.RemoteJID),
		Phone:       derefOr(conv.ContactPhone, ""),
		Message:     text,
		Step:        step.StepOrder,
		APIURL:      apiURL,
	}, nil
}

// advance schedules the next step, restarts an infinite chain, or records the
// no-response terminal event.
func (s *FireFlowImpl) advance(ctx context.Context, execution *models.FollowupExecution, cfg *models.FollowupConfig, current *models.FollowupStep, now time.Time) error {
	next := NextStep(cfg.Steps, current.StepOrder)
	loopIteration := execution.LoopIteration
	loopRestarted := false

	if next == nil {
		if !execution.IsInfiniteLoop {
			s.history.append(ctx, models.HistoryEventNoResponse, execution.TenantID, execution.ConversationID, execution.ConfigID, &execution.ID, map[string]any{
				"last_step_order": current.StepOrder,
				"loop_iteration":  execution.LoopIteration,
			})
			return nil
		}
		// Infinite chains re-seed from the first step.
		next = FirstStep(cfg.Steps)
		if next == nil {
			return ErrConfigHasNoStep
		}
		loopIteration++
		loopRestarted = true
	}

	scheduledAt, err := ComputeScheduledTime(now, next)
	if err != nil {
		return err
	}

	nextExecution := &models.FollowupExecution{
		UUID:           uuid.New(),
		TenantID:       execution.TenantID,
		ConversationID: execution.ConversationID,
		ConfigID:       cfg.ID,
		StepID:         next.ID,
		Status:         models.ExecutionStatusScheduled,
		ScheduledAt:    scheduledAt,
		IsInfiniteLoop: execution.IsInfiniteLoop,
		LoopIteration:  loopIteration,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.execRepo.Create(ctx, nextExecution); err != nil {
		return err
	}

	s.history.append(ctx, models.HistoryEventNextStepScheduled, execution.TenantID, execution.ConversationID, execution.ConfigID, &nextExecution.ID, map[string]any{
		"step_id":        next.ID,
		"step_order":     next.StepOrder,
		"scheduled_at":   scheduledAt,
		"loop_iteration": loopIteration,
		"loop_restarted": loopRestarted,
	})
	return nil
}

// fail marks the execution failed and records the reason. The engine never
// retries automatically; retry is an explicit external re-trigger.
func (s *FireFlowImpl) fail(ctx context.Context, execution *models.FollowupExecution, reason string, cause error) (*dto.FireExecutionResponse, error) {
	if err := s.execRepo.MarkFailed(ctx, execution.ID, reason); err != nil {
		s.logger.Printf("fire: mark failed errored for execution id=%d: %v", execution.ID, err)
	}
	s.history.append(ctx, models.HistoryEventStepFailed, execution.TenantID, execution.ConversationID, execution.ConfigID, &execution.ID, map[string]any{
		"reason": reason,
	})
	return &dto.FireExecutionResponse{
		Success:     false,
		ExecutionID: execution.ID,
		Error:       reason,
	}, NewBusinessErrorf("EXECUTION_FAILED", "execution %d failed: %s", cause, execution.ID, reason)
}

func stepByID(steps []models.FollowupStep, stepID uint) *models.FollowupStep {
	for i := range steps {
		if steps[i].ID == stepID {
			return &steps[i]
		}
	}
	return nil
}

func derefOr(s *string, fallback string) string {
	if s != nil && *s != "" {
		return *s
	}
	return fallback
}
