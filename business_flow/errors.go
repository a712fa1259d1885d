// Package businessflow contains the core business logic and use cases for follow-up workflows
package businessflow

import (
	"errors"
	"fmt"
)

// Business flow error constants
var (
	// Config-related errors
	ErrConfigNotFound  = errors.New("followup config not found")
	ErrConfigInactive  = errors.New("followup config is inactive")
	ErrConfigHasNoStep = errors.New("followup config has no steps")
	ErrStepNotFound    = errors.New("followup step not found")
	ErrInvalidStepUnit = errors.New("invalid step unit")

	// Pre-followup errors
	ErrPreFollowupNotFound = errors.New("pre-followup not found")
	ErrPreFollowupExpired  = errors.New("pre-followup has expired")

	// Execution errors
	ErrExecutionNotFound    = errors.New("execution not found")
	ErrExecutionNotFireable = errors.New("execution is not in a fireable status")
	ErrNoEligibleExecution  = errors.New("no eligible execution to fire")

	// Conversation/dispatch errors
	ErrConversationNotFound = errors.New("conversation not found")
	ErrConversationPaused   = errors.New("conversation is paused")
	ErrAgentInactive        = errors.New("agent is inactive or globally paused")
	ErrNoMessagingInstance  = errors.New("no connected messaging instance for tenant")
	ErrDispatchFailed       = errors.New("message dispatch failed")
)

type BusinessError struct {
	Code    string
	Message string
	Err     error
}

func (e *BusinessError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *BusinessError) Unwrap() error {
	return e.Err
}

func NewBusinessError(code, message string, err error) *BusinessError {
	return &BusinessError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

func NewBusinessErrorf(code, message string, err error, args ...any) *BusinessError {
	return &BusinessError{
		Code:    code,
		Message: fmt.Sprintf(message, args...),
		Err:     err,
	}
}
