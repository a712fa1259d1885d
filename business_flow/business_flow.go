// Package businessflow contains the business logic for the follow-up engine.
package businessflow

import (
	"context"
	"encoding/json"
	"log"

	"github.com/zapcrm/followup-engine/models"
	"github.com/zapcrm/followup-engine/repository"
	"github.com/zapcrm/followup-engine/utils"
)

// historyWriter appends audit events best-effort: a history-write failure is
// logged and never escalates to the surrounding operation.
type historyWriter struct {
	repo   repository.FollowupHistoryRepository
	logger *log.Logger
}

func newHistoryWriter(repo repository.FollowupHistoryRepository, logger *log.Logger) *historyWriter {
	if logger == nil {
		logger = log.Default()
	}
	return &historyWriter{repo: repo, logger: logger}
}

func (h *historyWriter) append(ctx context.Context, event models.HistoryEvent, tenantID, conversationID, configID uint, executionID *uint, metadata map[string]any) {
	if h.repo == nil {
		return
	}
	var payload json.RawMessage
	if metadata != nil {
		if b, err := json.Marshal(metadata); err == nil {
			payload = b
		}
	}
	row := &models.FollowupHistory{
		TenantID:       tenantID,
		ConversationID: conversationID,
		ExecutionID:    executionID,
		ConfigID:       configID,
		Event:          event,
		Metadata:       payload,
		CreatedAt:      utils.UTCNow(),
	}
	if err := h.repo.Append(ctx, row); err != nil {
		h.logger.Printf("followup: history append failed event=%s conversation_id=%d: %v", event, conversationID, err)
	}
}
