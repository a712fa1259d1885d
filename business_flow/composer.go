package businessflow

import (
	"context"
	"log"
	"strings"

	"github.com/zapcrm/followup-engine/models"
)

// FollowupMarker prefixes every automated re-engagement message so operators
// can tell it apart from organic agent replies in the chat log.
const FollowupMarker = "⏳ "

// FallbackMessage is sent when auto-generation fails. The chain must never
// stay blocked on a composer failure.
const FallbackMessage = "Oi! Só passando para saber se você ainda tem interesse. Posso ajudar em algo?"

// Generator is the minimal generation surface the composer needs. This keeps
// the flow independent of the HTTP client and easy to test.
type Generator interface {
	Generate(ctx context.Context, conversationID, agentID uint, stepTitle string) (string, error)
}

// Composer produces the outgoing follow-up text for one step.
type Composer struct {
	generator Generator
	logger    *log.Logger
}

// NewComposer creates a new composer instance
func NewComposer(generator Generator, logger *log.Logger) *Composer {
	if logger == nil {
		logger = log.Default()
	}
	return &Composer{
		generator: generator,
		logger:    logger,
	}
}

// Compose returns the marked message text for a step. Static configs use the
// step template verbatim; auto configs delegate to the generation capability
// and fall back to a generic sentence on any failure.
func (c *Composer) Compose(ctx context.Context, config *models.FollowupConfig, step *models.FollowupStep, conversation *models.AgentConversation) string {
	if !config.AutoMessage {
		return FollowupMarker + step.Message
	}

	if c.generator == nil {
		c.logger.Printf("composer: no generator configured for auto config id=%d, using fallback", config.ID)
		return FollowupMarker + FallbackMessage
	}

	text, err := c.generator.Generate(ctx, conversation.ID, config.AgentID, step.Title)
	if err != nil || strings.TrimSpace(text) == "" {
		c.logger.Printf("composer: generation failed for conversation id=%d step id=%d: %v", conversation.ID, step.ID, err)
		return FollowupMarker + FallbackMessage
	}
	return FollowupMarker + text
}
