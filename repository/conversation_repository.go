package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/zapcrm/followup-engine/models"
	"gorm.io/gorm"
)

// ConversationRepositoryImpl implements ConversationRepository
type ConversationRepositoryImpl struct {
	*BaseRepository[models.AgentConversation]
}

func NewConversationRepository(db *gorm.DB) ConversationRepository {
	return &ConversationRepositoryImpl{BaseRepository: NewBaseRepository[models.AgentConversation](db)}
}

func (r *ConversationRepositoryImpl) ByID(ctx context.Context, id uint) (*models.AgentConversation, error) {
	db := r.getDB(ctx)
	var row models.AgentConversation
	err := db.Preload("Agent").Last(&row, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find conversation %d: %w", id, err)
	}
	return &row, nil
}

func (r *ConversationRepositoryImpl) AgentByID(ctx context.Context, id uint) (*models.Agent, error) {
	db := r.getDB(ctx)
	var row models.Agent
	if err := db.Last(&row, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find agent %d: %w", id, err)
	}
	return &row, nil
}

// InstanceForConversation resolves the transport credential in binding order:
// conversation, then agent, then the tenant's first connected instance.
func (r *ConversationRepositoryImpl) InstanceForConversation(ctx context.Context, conversation *models.AgentConversation) (*models.MessagingInstance, error) {
	db := r.getDB(ctx)

	loadByID := func(id uint) (*models.MessagingInstance, error) {
		var inst models.MessagingInstance
		if err := db.Last(&inst, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, nil
			}
			return nil, fmt.Errorf("failed to find messaging instance %d: %w", id, err)
		}
		return &inst, nil
	}

	if conversation.InstanceID != nil {
		inst, err := loadByID(*conversation.InstanceID)
		if err != nil || inst != nil {
			return inst, err
		}
	}

	if conversation.Agent != nil && conversation.Agent.InstanceID != nil {
		inst, err := loadByID(*conversation.Agent.InstanceID)
		if err != nil || inst != nil {
			return inst, err
		}
	}

	var inst models.MessagingInstance
	err := db.Where("tenant_id = ? AND is_connected = ?", conversation.TenantID, true).
		Order("id ASC").
		First(&inst).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find instance for tenant %d: %w", conversation.TenantID, err)
	}
	return &inst, nil
}
