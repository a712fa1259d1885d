package services

import (
	"context"
	"sync"

	"github.com/zapcrm/followup-engine/models"
)

// MockDispatcher records outgoing messages for testing instead of calling a
// provider.
type MockDispatcher struct {
	mu     sync.Mutex
	Err    error
	APIURL string
	Sent   []MockDispatch
}

// MockDispatch records one Send invocation
type MockDispatch struct {
	InstanceID uint
	RemoteJID  string
	Text       string
}

func NewMockDispatcher() *MockDispatcher {
	return &MockDispatcher{APIURL: "https://mock.transport/send/text"}
}

func (m *MockDispatcher) Send(_ context.Context, instance *models.MessagingInstance, remoteJID, text string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.APIURL, m.Err
	}
	var instanceID uint
	if instance != nil {
		instanceID = instance.ID
	}
	m.Sent = append(m.Sent, MockDispatch{
		InstanceID: instanceID,
		RemoteJID:  remoteJID,
		Text:       text,
	})
	return m.APIURL, nil
}

// SentMessages returns a copy of the recorded dispatches
func (m *MockDispatcher) SentMessages() []MockDispatch {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]MockDispatch, len(m.Sent))
	copy(out, m.Sent)
	return out
}
