package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/gymcore/access-service/internal/config"
	"github.com/gymcore/access-service/internal/domain"
	"github.com/gymcore/access-service/internal/events"
)

// NotificationService handles emitting notifications for access events.
type NotificationService struct {
	dispatcher events.Dispatcher
	logger     *zap.Logger
	cfg        config.EventsConfig
	client     *http.Client
}

// NewNotificationService creates the service. Webhook calls are bounded by
// cfg.WebhookTimeout.
func NewNotificationService(dispatcher events.Dispatcher, logger *zap.Logger, cfg config.EventsConfig) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationService{
		dispatcher: dispatcher,
		logger:     logger,
		cfg:        cfg,
		client:     &http.Client{Timeout: cfg.WebhookTimeout()},
	}
}

// RegisterHandlers subscribes to events.
func (n *NotificationService) RegisterHandlers() {
	if n.dispatcher == nil {
		return
	}
	n.dispatcher.Subscribe(events.EventAccessGranted, n.handleAccessGranted)
	n.dispatcher.Subscribe(events.EventAccessDenied, n.handleAccessDenied)
	n.dispatcher.Subscribe(events.EventManualEntry, n.handleManualEntry)
}

func (n *NotificationService) handleAccessGranted(_ context.Context, event events.Event) error {
	n.logger.Debug("AccessGranted", zap.String("subject_id", event.SubjectID), zap.Any("payload", event.Payload))
	return nil
}

func (n *NotificationService) handleAccessDenied(ctx context.Context, event events.Event) error {
	n.logger.Info("AccessDenied", zap.String("subject_id", event.SubjectID), zap.Any("payload", event.Payload))
	if payload, ok := event.Payload.(events.AccessDecisionPayload); ok && isMembershipDenial(payload.Reason) {
		return n.sendWebhook(ctx, event)
	}
	return nil
}

func (n *NotificationService) handleManualEntry(ctx context.Context, event events.Event) error {
	n.logger.Info("ManualEntry",
		zap.String("subject_id", event.SubjectID),
		zap.String("staff_id", event.Actor.StaffID),
		zap.Any("payload", event.Payload))
	return n.sendWebhook(ctx, event)
}

// isMembershipDenial reports whether the member needs to act on their account.
func isMembershipDenial(reason domain.DenialReason) bool {
	switch reason {
	case domain.ReasonMembershipExpired, domain.ReasonMembershipSuspended, domain.ReasonMembershipPendingPayment:
		return true
	}
	return false
}

// sendWebhook POSTs the event as JSON to the configured URL. Any non-2xx status is an error.
func (n *NotificationService) sendWebhook(ctx context.Context, event events.Event) error {
	url := strings.TrimSpace(n.cfg.WebhookURL)
	if url == "" {
		return nil
	}

	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode webhook event %s: %w", event.ID, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Event-Type", string(event.Type))
	req.Header.Set("X-Event-ID", event.ID)

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("deliver webhook %s: %w", event.ID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("deliver webhook %s: unexpected status %d", event.ID, resp.StatusCode)
	}
	n.logger.Debug("webhook delivered",
		zap.String("event_id", event.ID),
		zap.String("event_type", string(event.Type)),
		zap.Int("status", resp.StatusCode))
	return nil
}
