package events

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

// ErrQueueFull is returned by QueuedDispatcher.Publish when the buffer is exhausted.
var ErrQueueFull = errors.New("event queue full")

const (
	defaultQueueSize       = 256
	defaultDeliveryTimeout = 10 * time.Second
)

// QueuedDispatcher decouples publishers from subscribers. Publish only enqueues; Run
// delivers events to the wrapped dispatcher on its own goroutine.
type QueuedDispatcher struct {
	inner   Dispatcher
	queue   chan Event
	timeout time.Duration
	logger  *zap.Logger
}

// NewQueuedDispatcher wraps inner with a buffer of size events. Each delivery gets its own
// context bounded by timeout.
func NewQueuedDispatcher(inner Dispatcher, size int, timeout time.Duration, logger *zap.Logger) *QueuedDispatcher {
	if size <= 0 {
		size = defaultQueueSize
	}
	if timeout <= 0 {
		timeout = defaultDeliveryTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &QueuedDispatcher{
		inner:   inner,
		queue:   make(chan Event, size),
		timeout: timeout,
		logger:  logger,
	}
}

// Publish enqueues event without waiting for subscribers. It never blocks.
func (d *QueuedDispatcher) Publish(_ context.Context, event Event) error {
	select {
	case d.queue <- event:
		return nil
	default:
		return ErrQueueFull
	}
}

// Subscribe registers handler on the wrapped dispatcher.
func (d *QueuedDispatcher) Subscribe(eventType EventType, handler EventHandler) {
	d.inner.Subscribe(eventType, handler)
}

// Run delivers queued events until ctx is done, then flushes what is already buffered.
func (d *QueuedDispatcher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			d.flush()
			return
		case event := <-d.queue:
			d.deliver(event)
		}
	}
}

func (d *QueuedDispatcher) flush() {
	for {
		select {
		case event := <-d.queue:
			d.deliver(event)
		default:
			return
		}
	}
}

func (d *QueuedDispatcher) deliver(event Event) {
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()

	if err := d.inner.Publish(ctx, event); err != nil {
		d.logger.Warn("event delivery failed",
			zap.String("event_id", event.ID),
			zap.String("event_type", string(event.Type)),
			zap.Error(err))
	}
}
