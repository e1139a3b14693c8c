package service

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/gymcore/access-service/internal/config"
	"github.com/gymcore/access-service/internal/domain"
	"github.com/gymcore/access-service/internal/events"
)

type webhookCall struct {
	eventType string
	body      map[string]any
}

type webhookRecorder struct {
	mu     sync.Mutex
	calls  []webhookCall
	status int
}

func (w *webhookRecorder) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	raw, _ := io.ReadAll(r.Body)
	var body map[string]any
	_ = json.Unmarshal(raw, &body)

	w.mu.Lock()
	w.calls = append(w.calls, webhookCall{eventType: r.Header.Get("X-Event-Type"), body: body})
	status := w.status
	w.mu.Unlock()

	if status == 0 {
		status = http.StatusNoContent
	}
	rw.WriteHeader(status)
}

func (w *webhookRecorder) snapshot() []webhookCall {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]webhookCall(nil), w.calls...)
}

func newWebhookNotifications(t *testing.T, recorder http.Handler) events.Dispatcher {
	t.Helper()
	srv := httptest.NewServer(recorder)
	t.Cleanup(srv.Close)

	dispatcher := events.NewInMemoryDispatcher()
	n := NewNotificationService(dispatcher, zap.NewNop(), config.EventsConfig{
		WebhookURL:            srv.URL,
		WebhookTimeoutSeconds: 1,
	})
	n.RegisterHandlers()
	return dispatcher
}

func TestWebhookReceivesMembershipDenials(t *testing.T) {
	recorder := &webhookRecorder{}
	dispatcher := newWebhookNotifications(t, recorder)

	err := dispatcher.Publish(context.Background(), events.Event{
		ID:        "evt-1",
		Type:      events.EventAccessDenied,
		SubjectID: "S2",
		Payload: events.AccessDecisionPayload{
			RecordID: "rec-1",
			Outcome:  domain.AccessDenied,
			Reason:   domain.ReasonMembershipSuspended,
		},
	})
	require.NoError(t, err)

	calls := recorder.snapshot()
	require.Len(t, calls, 1)
	assert.Equal(t, string(events.EventAccessDenied), calls[0].eventType)
	assert.Equal(t, "S2", calls[0].body["subject_id"])
	payload := calls[0].body["payload"].(map[string]any)
	assert.Equal(t, string(domain.ReasonMembershipSuspended), payload["reason"])
}

func TestWebhookSkipsOtherDenialsAndGrants(t *testing.T) {
	recorder := &webhookRecorder{}
	dispatcher := newWebhookNotifications(t, recorder)

	require.NoError(t, dispatcher.Publish(context.Background(), events.Event{
		Type:    events.EventAccessDenied,
		Payload: events.AccessDecisionPayload{Outcome: domain.AccessDenied, Reason: domain.ReasonCodeExpired},
	}))
	require.NoError(t, dispatcher.Publish(context.Background(), events.Event{
		Type:    events.EventAccessGranted,
		Payload: events.AccessDecisionPayload{Outcome: domain.AccessGranted},
	}))

	assert.Empty(t, recorder.snapshot())
}

func TestWebhookReceivesManualEntries(t *testing.T) {
	recorder := &webhookRecorder{}
	dispatcher := newWebhookNotifications(t, recorder)

	require.NoError(t, dispatcher.Publish(context.Background(), events.Event{
		ID:        "evt-2",
		Type:      events.EventManualEntry,
		SubjectID: "S1",
		Actor:     events.Actor{Type: domain.SubjectTypeStaff, StaffID: "staff-1"},
		Payload:   events.ManualEntryPayload{RecordID: "rec-2", Reason: domain.ManualReasonPhoneDead},
	}))

	calls := recorder.snapshot()
	require.Len(t, calls, 1)
	actor := calls[0].body["actor"].(map[string]any)
	assert.Equal(t, "staff-1", actor["staff_id"])
}

func TestWebhookReportsFailedDelivery(t *testing.T) {
	recorder := &webhookRecorder{status: http.StatusBadGateway}
	dispatcher := newWebhookNotifications(t, recorder)

	err := dispatcher.Publish(context.Background(), events.Event{
		ID:      "evt-3",
		Type:    events.EventManualEntry,
		Payload: events.ManualEntryPayload{Reason: domain.ManualReasonEmergency},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}

func TestWebhookIsBoundedByTimeout(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	slow := http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	})
	dispatcher := newWebhookNotifications(t, slow)

	start := time.Now()
	err := dispatcher.Publish(context.Background(), events.Event{
		Type:    events.EventManualEntry,
		Payload: events.ManualEntryPayload{Reason: domain.ManualReasonEmergency},
	})
	require.Error(t, err)
	assert.Less(t, time.Since(start), 3*time.Second)
}

func TestWebhookDisabledWithoutURL(t *testing.T) {
	dispatcher := events.NewInMemoryDispatcher()
	NewNotificationService(dispatcher, zap.NewNop(), config.EventsConfig{}).RegisterHandlers()

	assert.NoError(t, dispatcher.Publish(context.Background(), events.Event{
		Type:    events.EventManualEntry,
		Payload: events.ManualEntryPayload{Reason: domain.ManualReasonEmergency},
	}))
}
