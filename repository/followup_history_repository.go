package repository

import (
	"context"
	"fmt"

	"github.com/zapcrm/followup-engine/models"
	"gorm.io/gorm"
)

// FollowupHistoryRepositoryImpl implements FollowupHistoryRepository
type FollowupHistoryRepositoryImpl struct {
	*BaseRepository[models.FollowupHistory]
}

func NewFollowupHistoryRepository(db *gorm.DB) FollowupHistoryRepository {
	return &FollowupHistoryRepositoryImpl{BaseRepository: NewBaseRepository[models.FollowupHistory](db)}
}

// Append inserts one audit event. Callers treat failures as best-effort; the
// flows log and continue.
func (r *FollowupHistoryRepositoryImpl) Append(ctx context.Context, event *models.FollowupHistory) error {
	return r.Save(ctx, event)
}

func (r *FollowupHistoryRepositoryImpl) ListByConversation(ctx context.Context, conversationID uint, limit, offset int) ([]*models.FollowupHistory, error) {
	if limit <= 0 {
		limit = 100
	}
	db := r.getDB(ctx)
	var rows []*models.FollowupHistory
	err := db.Where("conversation_id = ?", conversationID).
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list history for conversation %d: %w", conversationID, err)
	}
	return rows, nil
}
