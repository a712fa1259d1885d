package businessflow

import (
	"context"

	"github.com/zapcrm/followup-engine/app/dto"
	"github.com/zapcrm/followup-engine/repository"
)

// HistoryFlow exposes the read side of the audit log.
type HistoryFlow interface {
	ListConversationHistory(ctx context.Context, conversationID uint, limit, offset int) (*dto.ConversationHistoryResponse, error)
}

// HistoryFlowImpl implements history reads
type HistoryFlowImpl struct {
	historyRepo repository.FollowupHistoryRepository
}

// NewHistoryFlow creates a new history flow instance
func NewHistoryFlow(historyRepo repository.FollowupHistoryRepository) HistoryFlow {
	return &HistoryFlowImpl{historyRepo: historyRepo}
}

func (s *HistoryFlowImpl) ListConversationHistory(ctx context.Context, conversationID uint, limit, offset int) (*dto.ConversationHistoryResponse, error) {
	rows, err := s.historyRepo.ListByConversation(ctx, conversationID, limit, offset)
	if err != nil {
		return nil, NewBusinessError("HISTORY_LIST_FAILED", "failed to list followup history", err)
	}

	resp := &dto.ConversationHistoryResponse{
		Success:        true,
		ConversationID: conversationID,
	}
	for _, row := range rows {
		resp.Events = append(resp.Events, dto.HistoryEventEntry{
			ID:          row.ID,
			ExecutionID: row.ExecutionID,
			Event:       string(row.Event),
			Metadata:    row.Metadata,
			CreatedAt:   row.CreatedAt,
		})
	}
	return resp, nil
}
