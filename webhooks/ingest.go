// Package webhooks ingests inbound deliveries: HMAC verification, dedup by
// external event id or canonical payload hash, storage and audit. Invalid
// signatures never drop an event; the event is stored flagged unverified so
// it stays available for forensic review.
package webhooks

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-schedsync/core"
)

const (
	AuditActionReceived = "webhook_received"
	AuditActionDeduped  = "webhook_deduped"

	auditActorWebhook = "webhook"
)

type Payload struct {
	EventID   string         `json:"eventId,omitempty"`
	EventType string         `json:"eventType"`
	Timestamp string         `json:"timestamp,omitempty"`
	Data      map[string]any `json:"data"`
}

type ReceiveResult struct {
	Success     bool
	IsDuplicate bool
	Verified    bool
	Message     string
	WebhookID   string
	EventID     string
}

type ProcessResult struct {
	Success bool
	Err     string
}

type IngestServiceConfig struct {
	Secret string
	Events core.WebhookEventStore
	Audit  core.AuditLogStore
	Logger core.Logger
	Now    func() time.Time
}

type IngestService struct {
	config IngestServiceConfig
}

func NewIngestService(cfg IngestServiceConfig) (*IngestService, error) {
	if cfg.Events == nil {
		return nil, fmt.Errorf("webhooks: webhook event store is required")
	}
	if cfg.Audit == nil {
		return nil, fmt.Errorf("webhooks: audit log store is required")
	}
	if strings.TrimSpace(cfg.Secret) == "" {
		return nil, core.NewConfigError("webhooks: shared secret is required")
	}
	if cfg.Now == nil {
		cfg.Now = func() time.Time { return time.Now().UTC() }
	}
	return &IngestService{config: cfg}, nil
}

// ReceiveWebhook dedups, verifies and stores one delivery. The result is
// success-shaped even for invalid signatures; only store failures surface
// as errors.
func (s *IngestService) ReceiveWebhook(
	ctx context.Context,
	payload Payload,
	signature string,
	rawBody []byte,
) (ReceiveResult, error) {
	if s == nil {
		return ReceiveResult{}, fmt.Errorf("webhooks: ingest service is not configured")
	}
	eventType := strings.TrimSpace(payload.EventType)
	if eventType == "" {
		return ReceiveResult{Success: false, Message: "eventType is required"}, nil
	}
	eventID := strings.TrimSpace(payload.EventID)

	if eventID != "" {
		existing, err := s.config.Events.GetByEventID(ctx, eventID)
		if err == nil {
			return s.dedupedResult(ctx, existing, "duplicate event id")
		}
		if !errors.Is(err, core.ErrWebhookEventNotFound) {
			return ReceiveResult{}, err
		}
	}

	payloadHash, err := PayloadHash(eventType, payload.Data)
	if err != nil {
		return ReceiveResult{}, err
	}
	if eventID == "" {
		existing, lookupErr := s.config.Events.GetByPayloadHash(ctx, payloadHash)
		if lookupErr == nil {
			return s.dedupedResult(ctx, existing, "payload hash duplicate")
		}
		if !errors.Is(lookupErr, core.ErrWebhookEventNotFound) {
			return ReceiveResult{}, lookupErr
		}
	}

	verified := VerifySignature(rawBody, signature, s.config.Secret)
	event := core.WebhookEvent{
		EventID:     eventID,
		PayloadHash: payloadHash,
		EventType:   eventType,
		Verified:    verified,
		Status:      core.WebhookEventStatusReceived,
		Payload:     payload.Data,
		RawBody:     rawBody,
		CreatedAt:   s.config.Now().UTC(),
	}
	created, err := s.config.Events.Create(ctx, event)
	if err != nil {
		return ReceiveResult{}, err
	}

	s.audit(ctx, AuditActionReceived, map[string]any{
		"webhook_id": created.ID,
		"event_id":   created.EventID,
		"event_type": created.EventType,
		"verified":   created.Verified,
	})

	message := "webhook received"
	if !verified {
		message = "signature invalid"
		s.logWarnable(ctx, "webhook stored with invalid signature", map[string]any{
			"webhook_id": created.ID,
			"event_type": created.EventType,
		})
	}
	return ReceiveResult{
		Success:     true,
		IsDuplicate: false,
		Verified:    verified,
		Message:     message,
		WebhookID:   created.ID,
		EventID:     created.EventID,
	}, nil
}

// ProcessEvent refuses unverified events and otherwise marks the event
// processed. The actual downstream handling hangs off the stored payload.
func (s *IngestService) ProcessEvent(ctx context.Context, event core.WebhookEvent) (ProcessResult, error) {
	if s == nil {
		return ProcessResult{}, fmt.Errorf("webhooks: ingest service is not configured")
	}
	if !event.Verified {
		return ProcessResult{
			Success: false,
			Err:     fmt.Sprintf("webhook event %q is not verified", event.ID),
		}, nil
	}

	processedAt := s.config.Now().UTC()
	if err := s.config.Events.UpdateStatus(ctx, event.ID, core.WebhookEventStatusProcessed, &processedAt); err != nil {
		return ProcessResult{}, err
	}
	return ProcessResult{Success: true}, nil
}

func (s *IngestService) dedupedResult(
	ctx context.Context,
	existing core.WebhookEvent,
	reason string,
) (ReceiveResult, error) {
	s.audit(ctx, AuditActionDeduped, map[string]any{
		"webhook_id": existing.ID,
		"event_id":   existing.EventID,
		"event_type": existing.EventType,
		"reason":     reason,
	})
	return ReceiveResult{
		Success:     true,
		IsDuplicate: true,
		Verified:    existing.Verified,
		Message:     fmt.Sprintf("duplicate webhook ignored: %s", reason),
		WebhookID:   existing.ID,
		EventID:     existing.EventID,
	}, nil
}

func (s *IngestService) audit(ctx context.Context, action string, payload map[string]any) {
	if _, err := s.config.Audit.Append(ctx, core.AuditEntry{
		Action:    action,
		ActorType: auditActorWebhook,
		Payload:   payload,
		CreatedAt: s.config.Now().UTC(),
	}); err != nil {
		s.logWarnable(ctx, "audit append failed", map[string]any{
			"action": action,
			"error":  err.Error(),
		})
	}
}

func (s *IngestService) logWarnable(ctx context.Context, message string, fields map[string]any) {
	if s.config.Logger == nil {
		return
	}
	logger := s.config.Logger
	if ctx != nil {
		logger = logger.WithContext(ctx)
	}
	if fieldsLogger, ok := logger.(core.FieldsLogger); ok {
		logger = fieldsLogger.WithFields(fields)
	}
	logger.Error(message)
}
