package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"github.com/zapcrm/followup-engine/models"
	"github.com/zapcrm/followup-engine/utils"
	"gorm.io/gorm"
)

// pgUniqueViolation is the Postgres error code raised when the partial unique
// index on active executions rejects an insert.
const pgUniqueViolation = "23505"

// isUniqueViolation reports whether err carries a Postgres unique-constraint
// violation. gorm's postgres driver is pgx-backed, so the pgconn shape is what
// a live connection returns; the lib/pq shape covers connections opened over
// database/sql.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolation
	}
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && string(pqErr.Code) == pgUniqueViolation
}

// FollowupExecutionRepositoryImpl implements FollowupExecutionRepository
type FollowupExecutionRepositoryImpl struct {
	*BaseRepository[models.FollowupExecution]
}

func NewFollowupExecutionRepository(db *gorm.DB) FollowupExecutionRepository {
	return &FollowupExecutionRepositoryImpl{BaseRepository: NewBaseRepository[models.FollowupExecution](db)}
}

func (r *FollowupExecutionRepositoryImpl) HasActive(ctx context.Context, conversationID uint) (bool, error) {
	db := r.getDB(ctx)
	var count int64
	err := db.Model(&models.FollowupExecution{}).
		Where("conversation_id = ? AND status IN ?", conversationID,
			[]models.ExecutionStatus{models.ExecutionStatusScheduled, models.ExecutionStatusPending}).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("failed to check active execution for conversation %d: %w", conversationID, err)
	}
	return count > 0, nil
}

// Create inserts a scheduled execution. Two concurrent monitor passes can both
// pass HasActive; the partial unique index is what actually closes the race,
// surfaced here as ErrActiveExecutionExists.
func (r *FollowupExecutionRepositoryImpl) Create(ctx context.Context, execution *models.FollowupExecution) error {
	if err := r.Save(ctx, execution); err != nil {
		if isUniqueViolation(err) {
			return ErrActiveExecutionExists
		}
		return err
	}
	return nil
}

func (r *FollowupExecutionRepositoryImpl) MarkSent(ctx context.Context, executionID uint, messageText string, sentAt time.Time) error {
	db := r.getDB(ctx)
	res := db.Model(&models.FollowupExecution{}).
		Where("id = ?", executionID).
		Updates(map[string]any{
			"status":       models.ExecutionStatusSent,
			"message_sent": messageText,
			"sent_at":      sentAt,
			"updated_at":   utils.UTCNow(),
		})
	if res.Error != nil {
		return fmt.Errorf("failed to mark execution %d sent: %w", executionID, res.Error)
	}
	return nil
}

func (r *FollowupExecutionRepositoryImpl) MarkFailed(ctx context.Context, executionID uint, reason string) error {
	db := r.getDB(ctx)
	res := db.Model(&models.FollowupExecution{}).
		Where("id = ?", executionID).
		Updates(map[string]any{
			"status":         models.ExecutionStatusFailed,
			"failure_reason": reason,
			"updated_at":     utils.UTCNow(),
		})
	if res.Error != nil {
		return fmt.Errorf("failed to mark execution %d failed: %w", executionID, res.Error)
	}
	return nil
}

func (r *FollowupExecutionRepositoryImpl) ListDue(ctx context.Context, now time.Time, limit int) ([]*models.FollowupExecution, error) {
	if limit <= 0 {
		limit = 100
	}
	db := r.getDB(ctx)
	var rows []*models.FollowupExecution
	err := db.Where("status = ? AND scheduled_at <= ?", models.ExecutionStatusScheduled, now).
		Order("scheduled_at ASC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list due executions: %w", err)
	}
	return rows, nil
}

func (r *FollowupExecutionRepositoryImpl) PickForTestSend(ctx context.Context, now time.Time) (*models.FollowupExecution, error) {
	db := r.getDB(ctx)

	var row models.FollowupExecution
	err := db.Where("status = ? AND scheduled_at <= ?", models.ExecutionStatusScheduled, now).
		Order("scheduled_at ASC").
		First(&row).Error
	if err == nil {
		return &row, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("failed to pick scheduled execution: %w", err)
	}

	err = db.Where("status = ?", models.ExecutionStatusFailed).
		Order("updated_at DESC").
		First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to pick failed execution: %w", err)
	}
	return &row, nil
}
