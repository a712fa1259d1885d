// Package repository provides data access layer implementations and interfaces for database operations
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/zapcrm/followup-engine/models"
)

// RepositoryContext key for transaction in context
type contextKey string

const TxContextKey contextKey = "tx"

// ErrActiveExecutionExists is returned when inserting an execution for a
// conversation that already has one in an active status. Backed by the
// partial unique index on followup_executions.
var ErrActiveExecutionExists = errors.New("conversation already has an active execution")

// FollowupConfigRepository defines operations for follow-up configurations
type FollowupConfigRepository interface {
	ByID(ctx context.Context, id uint) (*models.FollowupConfig, error)
	Save(ctx context.Context, config *models.FollowupConfig) error
	ListActive(ctx context.Context) ([]*models.FollowupConfig, error)
	StepsByConfig(ctx context.Context, configID uint) ([]*models.FollowupStep, error)
	StepByID(ctx context.Context, stepID uint) (*models.FollowupStep, error)
}

// PreFollowupRepository defines operations for queued follow-up triggers
type PreFollowupRepository interface {
	ByID(ctx context.Context, id uint) (*models.PreFollowup, error)
	Save(ctx context.Context, pf *models.PreFollowup) error
	// ListEligible returns pending pre-followups for the config's tenant/agent
	// created before cutoff, not expired at now, excluding group chats and
	// paused conversations/agents.
	ListEligible(ctx context.Context, config *models.FollowupConfig, cutoff, now time.Time) ([]*models.PreFollowup, error)
	MarkProcessed(ctx context.Context, id uint, processedAt time.Time) error
}

// FollowupExecutionRepository defines operations for the execution state store
type FollowupExecutionRepository interface {
	ByID(ctx context.Context, id uint) (*models.FollowupExecution, error)
	// HasActive reports whether the conversation holds a scheduled or pending
	// execution. Fast-path check only; Create is the authoritative gate.
	HasActive(ctx context.Context, conversationID uint) (bool, error)
	// Create inserts a new scheduled execution. Returns
	// ErrActiveExecutionExists when the uniqueness gate rejects the insert.
	Create(ctx context.Context, execution *models.FollowupExecution) error
	MarkSent(ctx context.Context, executionID uint, messageText string, sentAt time.Time) error
	MarkFailed(ctx context.Context, executionID uint, reason string) error
	// ListDue returns scheduled executions with scheduled_at <= now.
	ListDue(ctx context.Context, now time.Time, limit int) ([]*models.FollowupExecution, error)
	// PickForTestSend returns the oldest due scheduled execution, falling back
	// to the most recent failed one. Nil when nothing is eligible.
	PickForTestSend(ctx context.Context, now time.Time) (*models.FollowupExecution, error)
}

// FollowupHistoryRepository defines operations for the append-only audit log
type FollowupHistoryRepository interface {
	Append(ctx context.Context, event *models.FollowupHistory) error
	ListByConversation(ctx context.Context, conversationID uint, limit, offset int) ([]*models.FollowupHistory, error)
}

// ConversationRepository defines read-side access to chat entities
type ConversationRepository interface {
	ByID(ctx context.Context, id uint) (*models.AgentConversation, error)
	AgentByID(ctx context.Context, id uint) (*models.Agent, error)
	// InstanceForConversation resolves the bound messaging instance, preferring
	// the conversation's own binding over the agent's, then the tenant default.
	InstanceForConversation(ctx context.Context, conversation *models.AgentConversation) (*models.MessagingInstance, error)
}
