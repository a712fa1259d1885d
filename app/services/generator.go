package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"
)

// GeneratorService invokes the external message-generation capability.
type GeneratorService interface {
	Generate(ctx context.Context, conversationID, agentID uint, stepTitle string) (string, error)
}

// GeneratorConfig holds the generation capability endpoint settings
type GeneratorConfig struct {
	URL     string
	APIKey  string
	Timeout time.Duration
}

// GeneratorServiceImpl implements GeneratorService over HTTP
type GeneratorServiceImpl struct {
	config GeneratorConfig
	client *http.Client
}

type generateRequest struct {
	ConversationID uint   `json:"conversation_id"`
	AgentID        uint   `json:"agent_id"`
	StepTitle      string `json:"step_title"`
}

type generateResponse struct {
	Message string `json:"message"`
}

// NewGeneratorService creates a new generator service instance
func NewGeneratorService(cfg GeneratorConfig) GeneratorService {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &GeneratorServiceImpl{
		config: cfg,
		client: &http.Client{Timeout: timeout},
	}
}

// Generate asks the capability for re-engagement text for one conversation
func (s *GeneratorServiceImpl) Generate(ctx context.Context, conversationID, agentID uint, stepTitle string) (string, error) {
	if s.config.URL == "" {
		return "", fmt.Errorf("generator url not configured")
	}

	body, err := json.Marshal(generateRequest{
		ConversationID: conversationID,
		AgentID:        agentID,
		StepTitle:      stepTitle,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal generate request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.config.URL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create generate request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.config.APIKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("generate request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("generate http status: %d", resp.StatusCode)
	}

	var out generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("failed to decode generate response: %w", err)
	}
	if out.Message == "" {
		return "", fmt.Errorf("empty generated message")
	}
	return out.Message, nil
}

// MockGeneratorService implements GeneratorService for testing
type MockGeneratorService struct {
	mu       sync.Mutex
	Response string
	Err      error
	Calls    []MockGeneratorCall
}

// MockGeneratorCall records one Generate invocation
type MockGeneratorCall struct {
	ConversationID uint
	AgentID        uint
	StepTitle      string
}

func NewMockGeneratorService() *MockGeneratorService {
	return &MockGeneratorService{Response: "mock generated message"}
}

func (m *MockGeneratorService) Generate(_ context.Context, conversationID, agentID uint, stepTitle string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = append(m.Calls, MockGeneratorCall{
		ConversationID: conversationID,
		AgentID:        agentID,
		StepTitle:      stepTitle,
	})
	if m.Err != nil {
		return "", m.Err
	}
	return m.Response, nil
}
