package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/streadway/amqp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/gymcore/access-service/internal/domain"
)

type published struct {
	exchange string
	key      string
	msg      amqp.Publishing
}

type fakeChannel struct {
	declared   []string
	published  []published
	publishErr error
	closed     bool
}

func (f *fakeChannel) ExchangeDeclare(name, kind string, durable, _, _, _ bool, _ amqp.Table) error {
	f.declared = append(f.declared, name+":"+kind)
	return nil
}

func (f *fakeChannel) Publish(exchange, key string, _, _ bool, msg amqp.Publishing) error {
	if f.publishErr != nil {
		return f.publishErr
	}
	f.published = append(f.published, published{exchange: exchange, key: key, msg: msg})
	return nil
}

func (f *fakeChannel) Close() error {
	f.closed = true
	return nil
}

func TestDispatcherRunsAllHandlers(t *testing.T) {
	d := NewInMemoryDispatcher()
	var calls []string
	boom := errors.New("boom")

	d.Subscribe(EventAccessDenied, func(context.Context, Event) error {
		calls = append(calls, "first")
		return boom
	})
	d.Subscribe(EventAccessDenied, func(context.Context, Event) error {
		calls = append(calls, "second")
		return nil
	})
	d.Subscribe(EventAccessGranted, func(context.Context, Event) error {
		calls = append(calls, "other")
		return nil
	})

	err := d.Publish(context.Background(), Event{Type: EventAccessDenied})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, []string{"first", "second"}, calls)

	assert.NoError(t, d.Publish(context.Background(), Event{Type: EventManualEntry}))
}

func TestAMQPPublisherForwardsEvents(t *testing.T) {
	ch := &fakeChannel{}
	publisher, err := NewAMQPPublisher(ch, "gym.access", zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, []string{"gym.access:topic"}, ch.declared)

	d := NewInMemoryDispatcher()
	publisher.Register(d)

	event := Event{
		ID:        "evt-1",
		Type:      EventAccessDenied,
		SubjectID: "member-1",
		Actor:     Actor{Type: domain.SubjectTypeStaff, StaffID: "staff-1"},
		Timestamp: time.Date(2025, time.May, 5, 9, 0, 0, 0, time.UTC),
		Payload:   AccessDecisionPayload{RecordID: "rec-1", Outcome: domain.AccessDenied, Reason: domain.ReasonCodeExpired},
	}
	require.NoError(t, d.Publish(context.Background(), event))

	require.Len(t, ch.published, 1)
	got := ch.published[0]
	assert.Equal(t, "gym.access", got.exchange)
	assert.Equal(t, "access.access_denied", got.key)
	assert.Equal(t, amqp.Persistent, got.msg.DeliveryMode)
	assert.Equal(t, "evt-1", got.msg.MessageId)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(got.msg.Body, &decoded))
	assert.Equal(t, "member-1", decoded["subject_id"])
	payload := decoded["payload"].(map[string]interface{})
	assert.Equal(t, "CODE_EXPIRED", payload["reason"])

	require.NoError(t, publisher.Close())
	assert.True(t, ch.closed)
}

func TestAMQPPublisherReturnsPublishErrors(t *testing.T) {
	ch := &fakeChannel{publishErr: amqp.ErrClosed}
	publisher, err := NewAMQPPublisher(ch, "gym.access", zap.NewNop())
	require.NoError(t, err)

	err = publisher.Handle(context.Background(), Event{ID: "evt-2", Type: EventAccessGranted})
	assert.ErrorIs(t, err, amqp.ErrClosed)
}

func TestQueuedDispatcherDoesNotWaitForSubscribers(t *testing.T) {
	inner := NewInMemoryDispatcher()
	release := make(chan struct{})
	delivered := make(chan Event, 1)
	inner.Subscribe(EventAccessGranted, func(ctx context.Context, event Event) error {
		<-release
		delivered <- event
		return nil
	})

	d := NewQueuedDispatcher(inner, 4, time.Second, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go d.Run(ctx)

	start := time.Now()
	require.NoError(t, d.Publish(context.Background(), Event{ID: "evt-1", Type: EventAccessGranted}))
	assert.Less(t, time.Since(start), 100*time.Millisecond)

	close(release)
	select {
	case event := <-delivered:
		assert.Equal(t, "evt-1", event.ID)
	case <-time.After(time.Second):
		t.Fatal("event was not delivered")
	}
}

func TestQueuedDispatcherRejectsWhenFull(t *testing.T) {
	d := NewQueuedDispatcher(NewInMemoryDispatcher(), 1, time.Second, zap.NewNop())

	require.NoError(t, d.Publish(context.Background(), Event{Type: EventAccessDenied}))
	assert.ErrorIs(t, d.Publish(context.Background(), Event{Type: EventAccessDenied}), ErrQueueFull)
}

func TestQueuedDispatcherFlushesOnShutdown(t *testing.T) {
	inner := NewInMemoryDispatcher()
	var got []string
	inner.Subscribe(EventManualEntry, func(_ context.Context, event Event) error {
		got = append(got, event.ID)
		return nil
	})

	d := NewQueuedDispatcher(inner, 4, time.Second, zap.NewNop())
	require.NoError(t, d.Publish(context.Background(), Event{ID: "a", Type: EventManualEntry}))
	require.NoError(t, d.Publish(context.Background(), Event{ID: "b", Type: EventManualEntry}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	d.Run(ctx)

	assert.Equal(t, []string{"a", "b"}, got)
}

func TestQueuedDispatcherDetachesFromPublisherContext(t *testing.T) {
	inner := NewInMemoryDispatcher()
	deliveredErr := make(chan error, 1)
	inner.Subscribe(EventAccessDenied, func(ctx context.Context, _ Event) error {
		deliveredErr <- ctx.Err()
		return nil
	})

	d := NewQueuedDispatcher(inner, 1, time.Second, zap.NewNop())
	requestCtx, cancelRequest := context.WithCancel(context.Background())
	require.NoError(t, d.Publish(requestCtx, Event{Type: EventAccessDenied}))
	cancelRequest()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go d.Run(ctx)

	select {
	case err := <-deliveredErr:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("event was not delivered")
	}
}
