package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/zapcrm/followup-engine/models"
	"gorm.io/gorm"
)

// PreFollowupRepositoryImpl implements PreFollowupRepository
type PreFollowupRepositoryImpl struct {
	*BaseRepository[models.PreFollowup]
}

func NewPreFollowupRepository(db *gorm.DB) PreFollowupRepository {
	return &PreFollowupRepositoryImpl{BaseRepository: NewBaseRepository[models.PreFollowup](db)}
}

// ListEligible applies the chain-start predicate in SQL. The monitor flow
// re-applies the same predicate in Go over the joined rows, so the two cannot
// drift silently.
func (r *PreFollowupRepositoryImpl) ListEligible(ctx context.Context, config *models.FollowupConfig, cutoff, now time.Time) ([]*models.PreFollowup, error) {
	db := r.getDB(ctx)
	var rows []*models.PreFollowup
	err := db.
		Joins("JOIN agent_conversations ON agent_conversations.id = pre_followup.conversation_id").
		Joins("JOIN agents ON agents.id = pre_followup.agent_id").
		Where("pre_followup.status = ?", models.PreFollowupStatusPending).
		Where("pre_followup.tenant_id = ? AND pre_followup.agent_id = ?", config.TenantID, config.AgentID).
		Where("pre_followup.created_at < ?", cutoff).
		Where("pre_followup.expires_at > ?", now).
		Where("pre_followup.remote_jid NOT LIKE ?", "%"+models.GroupJIDSuffix).
		Where("agent_conversations.is_paused = ?", false).
		Where("agents.is_active = ? AND agents.is_paused_globally = ?", true, false).
		Order("pre_followup.created_at ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list eligible pre-followups for config %d: %w", config.ID, err)
	}
	return rows, nil
}

// MarkProcessed flips a pending pre-followup to its terminal status
func (r *PreFollowupRepositoryImpl) MarkProcessed(ctx context.Context, id uint, processedAt time.Time) error {
	db := r.getDB(ctx)
	res := db.Model(&models.PreFollowup{}).
		Where("id = ? AND status = ?", id, models.PreFollowupStatusPending).
		Updates(map[string]any{
			"status":       models.PreFollowupStatusProcessed,
			"processed_at": processedAt,
		})
	if res.Error != nil {
		return fmt.Errorf("failed to mark pre-followup %d processed: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("pre-followup %d was not pending: %w", id, gorm.ErrRecordNotFound)
	}
	return nil
}
