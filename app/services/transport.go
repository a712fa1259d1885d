// Package services provides external service integrations and technical concerns like message transports
package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/zapcrm/followup-engine/models"
)

// DirectJIDSuffix is appended to bare phone numbers for direct chats.
const DirectJIDSuffix = "@s.whatsapp.net"

// Transport sends one text message through a concrete provider wire shape.
type Transport interface {
	// Name identifies the provider shape, for logs and history payloads.
	Name() string
	// Matches reports whether this transport handles the given instance,
	// by provider tag or API base-URL pattern.
	Matches(instance *models.MessagingInstance) bool
	// Send delivers text to the remote identifier and returns the endpoint
	// used. Non-2xx responses are errors carrying the response body.
	Send(ctx context.Context, instance *models.MessagingInstance, remoteJID, text string) (string, error)
}

// NormalizeJID turns a bare phone number into a direct-chat identifier.
// Identifiers that already carry a server part (including group JIDs) are
// passed through unchanged.
func NormalizeJID(remote string) string {
	if strings.Contains(remote, "@") {
		return remote
	}
	return remote + DirectJIDSuffix
}

// legacyTransport speaks the older gateway shape: apitoken header and
// /message/sendText/{instance}.
type legacyTransport struct {
	client *http.Client
}

func (t *legacyTransport) Name() string { return "legacy" }

func (t *legacyTransport) Matches(instance *models.MessagingInstance) bool {
	return strings.EqualFold(instance.Provider, "evolution") ||
		strings.Contains(strings.ToLower(instance.APIURL), "evolution")
}

func (t *legacyTransport) Send(ctx context.Context, instance *models.MessagingInstance, remoteJID, text string) (string, error) {
	url := strings.TrimRight(instance.APIURL, "/") + "/message/sendText/" + instance.Name
	payload := map[string]any{
		"number": NormalizeJID(remoteJID),
		"textMessage": map[string]string{
			"text": text,
		},
	}
	body, _ := json.Marshal(payload)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return url, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("apitoken", instance.APIToken)
	return url, doSend(t.client, req)
}

// modernTransport speaks the newer gateway shape: token header and /send/text.
type modernTransport struct {
	client *http.Client
}

func (t *modernTransport) Name() string { return "modern" }

func (t *modernTransport) Matches(instance *models.MessagingInstance) bool {
	return strings.EqualFold(instance.Provider, "uazapi") ||
		strings.Contains(strings.ToLower(instance.APIURL), "uazapi")
}

func (t *modernTransport) Send(ctx context.Context, instance *models.MessagingInstance, remoteJID, text string) (string, error) {
	url := strings.TrimRight(instance.APIURL, "/") + "/send/text"
	payload := map[string]string{
		"number": NormalizeJID(remoteJID),
		"text":   text,
	}
	body, _ := json.Marshal(payload)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return url, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("token", instance.APIToken)
	return url, doSend(t.client, req)
}

func doSend(client *http.Client, req *http.Request) error {
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("transport request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("transport http status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return nil
}

// TransportResolver picks the provider shape for an instance and dispatches
// through it. Unknown providers fall back to the modern shape.
type TransportResolver struct {
	transports []Transport
	fallback   Transport
}

// NewTransportResolver builds a resolver with both wire shapes over one
// bounded HTTP client.
func NewTransportResolver(timeout time.Duration) *TransportResolver {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	client := &http.Client{Timeout: timeout}
	modern := &modernTransport{client: client}
	return &TransportResolver{
		transports: []Transport{
			&legacyTransport{client: client},
			modern,
		},
		fallback: modern,
	}
}

// Resolve returns the transport handling the instance.
func (r *TransportResolver) Resolve(instance *models.MessagingInstance) Transport {
	for _, t := range r.transports {
		if t.Matches(instance) {
			return t
		}
	}
	return r.fallback
}

// Send resolves the provider shape and dispatches the message, returning the
// endpoint used.
func (r *TransportResolver) Send(ctx context.Context, instance *models.MessagingInstance, remoteJID, text string) (string, error) {
	return r.Resolve(instance).Send(ctx, instance, remoteJID, text)
}
