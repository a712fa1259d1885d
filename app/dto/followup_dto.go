// Package dto contains request and response data transfer objects for the API endpoints
package dto

import (
	"encoding/json"
	"time"
)

// APIResponse is the generic envelope returned by all endpoints
type APIResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
	Data    any    `json:"data,omitempty"`
}

// MonitorPassResponse reports the aggregate outcome of one monitor pass
type MonitorPassResponse struct {
	Success                bool `json:"success"`
	ConversationsProcessed int  `json:"conversationsProcessed"`
	ExecutionsCreated      int  `json:"executionsCreated"`
}

// FireExecutionRequest optionally targets a specific execution; when omitted
// the engine picks one scheduled-or-failed eligible execution.
type FireExecutionRequest struct {
	ExecutionID *uint `json:"execution_id,omitempty" validate:"omitempty,gt=0"`
}

// FireExecutionResponse reports the outcome of firing one execution
type FireExecutionResponse struct {
	Success     bool   `json:"success"`
	ExecutionID uint   `json:"execution_id"`
	Contact     string `json:"contact"`
	Phone       string `json:"phone"`
	Message     string `json:"message"`
	Step        int    `json:"step"`
	APIURL      string `json:"api_url"`
	Error       string `json:"error,omitempty"`
}

// HistoryEventEntry is one audit event in a conversation's chain history
type HistoryEventEntry struct {
	ID          uint            `json:"id"`
	ExecutionID *uint           `json:"execution_id,omitempty"`
	Event       string          `json:"event"`
	Metadata    json.RawMessage `json:"metadata,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}

// ConversationHistoryResponse lists the recorded chain events, newest first
type ConversationHistoryResponse struct {
	Success        bool                `json:"success"`
	ConversationID uint                `json:"conversation_id"`
	Events         []HistoryEventEntry `json:"events"`
}

// FirePassResponse reports the aggregate outcome of one due-execution pass
type FirePassResponse struct {
	Success         bool `json:"success"`
	ExecutionsFired int  `json:"executionsFired"`
	ExecutionsFail  int  `json:"executionsFailed"`
}
