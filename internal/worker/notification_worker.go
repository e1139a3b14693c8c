package worker

import (
	"github.com/gymcore/access-service/internal/events"
	"github.com/gymcore/access-service/internal/service"
)

// StartNotificationWorker registers notification handlers and, when configured, the
// AMQP forwarder on the dispatcher.
func StartNotificationWorker(dispatcher events.Dispatcher, notificationService *service.NotificationService, publisher *events.AMQPPublisher) {
	if notificationService != nil {
		notificationService.RegisterHandlers()
	}
	if publisher != nil && dispatcher != nil {
		publisher.Register(dispatcher)
	}
}
