// Package handlers contains HTTP request handlers and presentation layer logic for the API endpoints
package handlers

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/zapcrm/followup-engine/app/dto"
	businessflow "github.com/zapcrm/followup-engine/business_flow"
)

// FollowupHandlerInterface defines the contract for follow-up trigger handlers
type FollowupHandlerInterface interface {
	MonitorPass(c fiber.Ctx) error
	FireExecution(c fiber.Ctx) error
	ConversationHistory(c fiber.Ctx) error
}

// FollowupHandler handles the inbound engine triggers and history reads
type FollowupHandler struct {
	monitorFlow businessflow.MonitorFlow
	fireFlow    businessflow.FireFlow
	historyFlow businessflow.HistoryFlow
	validator   *validator.Validate
}

// NewFollowupHandler creates a new follow-up handler
func NewFollowupHandler(monitorFlow businessflow.MonitorFlow, fireFlow businessflow.FireFlow, historyFlow businessflow.HistoryFlow) *FollowupHandler {
	return &FollowupHandler{
		monitorFlow: monitorFlow,
		fireFlow:    fireFlow,
		historyFlow: historyFlow,
		validator:   validator.New(),
	}
}

// createRequestContext mirrors other handlers for request-scoped deadlines
func (h *FollowupHandler) createRequestContext(timeout time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), timeout)
}

// MonitorPass triggers one monitor pass over all active configs
func (h *FollowupHandler) MonitorPass(c fiber.Ctx) error {
	ctx, cancel := h.createRequestContext(60 * time.Second)
	defer cancel()

	resp, err := h.monitorFlow.RunMonitorPass(ctx)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(dto.APIResponse{
			Success: false,
			Error:   err.Error(),
		})
	}
	return c.Status(fiber.StatusOK).JSON(resp)
}

// FireExecution fires one due execution, or the one named in the request body
func (h *FollowupHandler) FireExecution(c fiber.Ctx) error {
	var req dto.FireExecutionRequest
	if len(c.Body()) > 0 {
		if err := c.Bind().JSON(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(dto.FireExecutionResponse{
				Success: false,
				Error:   "invalid request body",
			})
		}
		if err := h.validator.Struct(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(dto.FireExecutionResponse{
				Success: false,
				Error:   "execution_id must be a positive integer",
			})
		}
	}

	ctx, cancel := h.createRequestContext(30 * time.Second)
	defer cancel()

	resp, err := h.fireFlow.FireExecution(ctx, req.ExecutionID)
	if err != nil {
		status := fiber.StatusInternalServerError
		switch {
		case errors.Is(err, businessflow.ErrExecutionNotFound),
			errors.Is(err, businessflow.ErrNoEligibleExecution):
			status = fiber.StatusNotFound
		case errors.Is(err, businessflow.ErrExecutionNotFireable):
			status = fiber.StatusConflict
		}
		if resp == nil {
			resp = &dto.FireExecutionResponse{Success: false, Error: err.Error()}
		}
		return c.Status(status).JSON(resp)
	}
	return c.Status(fiber.StatusOK).JSON(resp)
}

// ConversationHistory lists the recorded chain events for one conversation
func (h *FollowupHandler) ConversationHistory(c fiber.Ctx) error {
	conversationID, err := strconv.ParseUint(c.Params("conversation_id"), 10, 64)
	if err != nil || conversationID == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(dto.APIResponse{
			Success: false,
			Error:   "conversation_id must be a positive integer",
		})
	}

	limit, _ := strconv.Atoi(c.Query("limit", "50"))
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	offset, _ := strconv.Atoi(c.Query("offset", "0"))
	if offset < 0 {
		offset = 0
	}

	ctx, cancel := h.createRequestContext(15 * time.Second)
	defer cancel()

	resp, err := h.historyFlow.ListConversationHistory(ctx, uint(conversationID), limit, offset)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(dto.APIResponse{
			Success: false,
			Error:   err.Error(),
		})
	}
	return c.Status(fiber.StatusOK).JSON(resp)
}
