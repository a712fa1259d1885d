package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/zapcrm/followup-engine/models"
	"gorm.io/gorm"
)

// FollowupConfigRepositoryImpl implements FollowupConfigRepository
type FollowupConfigRepositoryImpl struct {
	*BaseRepository[models.FollowupConfig]
}

func NewFollowupConfigRepository(db *gorm.DB) FollowupConfigRepository {
	return &FollowupConfigRepositoryImpl{BaseRepository: NewBaseRepository[models.FollowupConfig](db)}
}

func (r *FollowupConfigRepositoryImpl) ByID(ctx context.Context, id uint) (*models.FollowupConfig, error) {
	db := r.getDB(ctx)
	var row models.FollowupConfig
	err := db.Preload("Steps", func(db *gorm.DB) *gorm.DB {
		return db.Order("step_order ASC")
	}).Last(&row, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find followup config %d: %w", id, err)
	}
	return &row, nil
}

// ListActive returns all active configs with their steps preloaded in order
func (r *FollowupConfigRepositoryImpl) ListActive(ctx context.Context) ([]*models.FollowupConfig, error) {
	db := r.getDB(ctx)
	var rows []*models.FollowupConfig
	err := db.Where("is_active = ?", true).
		Preload("Steps", func(db *gorm.DB) *gorm.DB {
			return db.Order("step_order ASC")
		}).
		Order("id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list active followup configs: %w", err)
	}
	return rows, nil
}

func (r *FollowupConfigRepositoryImpl) StepsByConfig(ctx context.Context, configID uint) ([]*models.FollowupStep, error) {
	db := r.getDB(ctx)
	var rows []*models.FollowupStep
	err := db.Where("config_id = ?", configID).Order("step_order ASC").Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list steps for config %d: %w", configID, err)
	}
	return rows, nil
}

func (r *FollowupConfigRepositoryImpl) StepByID(ctx context.Context, stepID uint) (*models.FollowupStep, error) {
	db := r.getDB(ctx)
	var row models.FollowupStep
	if err := db.Last(&row, stepID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find step %d: %w", stepID, err)
	}
	return &row, nil
}
