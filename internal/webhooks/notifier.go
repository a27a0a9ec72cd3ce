// Package webhooks delivers best-effort "assessment updated" events to an
// external notification sink. Delivery failures are logged and never
// propagate to the assessment write path.
package webhooks

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Standard event types
const (
	EventAssessmentUpdated = "assessment.updated"
	EventEvidenceAttached  = "assessment.evidence_attached"
	EventEvidenceDeleted   = "assessment.evidence_deleted"
	EventMaturityRescored  = "maturity.rescored"
)

// Payload is the JSON body sent to the sink.
type Payload struct {
	ID             string                 `json:"id"`
	Type           string                 `json:"type"`
	OrganizationID string                 `json:"organization_id"`
	Data           map[string]interface{} `json:"data,omitempty"`
	Timestamp      time.Time              `json:"timestamp"`
}

// Notifier posts signed event payloads to a single configured endpoint,
// optionally filtered to a subscribed set of event types.
type Notifier struct {
	url    string
	secret string
	events map[string]struct{} // empty = all event types
	client *http.Client
	logger *zap.Logger
}

// NewNotifier creates a notifier for the given endpoint. An empty URL
// yields a notifier whose Emit is a no-op; an empty eventTypes list
// subscribes the sink to every event.
func NewNotifier(url, secret string, eventTypes []string, logger *zap.Logger) *Notifier {
	events := make(map[string]struct{}, len(eventTypes))
	for _, e := range eventTypes {
		if e != "" {
			events[e] = struct{}{}
		}
	}
	return &Notifier{
		url:    url,
		secret: secret,
		events: events,
		client: &http.Client{Timeout: 10 * time.Second},
		logger: logger,
	}
}

// Subscribed reports whether the sink receives the given event type.
func (n *Notifier) Subscribed(eventType string) bool {
	if len(n.events) == 0 {
		return true
	}
	_, ok := n.events[eventType]
	return ok
}

// Emit sends one event. Failures are logged, never returned: a sink outage
// must not fail the assessment write that triggered the event.
func (n *Notifier) Emit(ctx context.Context, eventType string, orgID uuid.UUID, data map[string]interface{}) {
	if n.url == "" {
		return
	}
	if !n.Subscribed(eventType) {
		n.logger.Debug("event type not subscribed, skipping",
			zap.String("event", eventType))
		return
	}

	payload := Payload{
		ID:             uuid.New().String(),
		Type:           eventType,
		OrganizationID: orgID.String(),
		Data:           data,
		Timestamp:      time.Now().UTC(),
	}

	body, err := json.Marshal(payload)
	if err != nil {
		n.logger.Error("marshal webhook payload", zap.Error(err))
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		n.logger.Error("build webhook request", zap.Error(err))
		return
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Attestor-Event", eventType)
	if n.secret != "" {
		req.Header.Set("X-Attestor-Signature", Sign(n.secret, body))
	}

	resp, err := n.client.Do(req)
	if err != nil {
		n.logger.Warn("webhook delivery failed",
			zap.String("event", eventType),
			zap.Error(err))
		return
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 300 {
		n.logger.Warn("webhook rejected",
			zap.String("event", eventType),
			zap.Int("status", resp.StatusCode))
		return
	}

	n.logger.Debug("webhook delivered",
		zap.String("event", eventType),
		zap.String("event_id", payload.ID))
}

// Sign computes the hex HMAC-SHA256 signature header value for a body.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return fmt.Sprintf("sha256=%s", hex.EncodeToString(mac.Sum(nil)))
}

// VerifySignature checks a received signature against the body.
func VerifySignature(secret string, body []byte, signature string) bool {
	return hmac.Equal([]byte(Sign(secret, body)), []byte(signature))
}
