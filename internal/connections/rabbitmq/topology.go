package rabbitmq

import (
	amqp "github.com/rabbitmq/amqp091-go"

	"order-platform/internal/domain"
)

const (
	EventsExchange = "kitchen_events"
	DeadLetterX    = "dlx"
	DeadLetterQ    = "dlq"

	WaitingQueue       = "waiting.q"
	AllocatorQueue     = "allocator.q"
	NotificationsQueue = "notifications.q"
)

var deadLettered = amqp.Table{
	"x-dead-letter-exchange":    DeadLetterX,
	"x-dead-letter-routing-key": DeadLetterQ,
}

// DeclareTopology declares exchanges, queues and bindings. Safe to call from
// every process on start.
func DeclareTopology(ch *amqp.Channel) error {
	if err := ch.ExchangeDeclare(EventsExchange, "topic", true, false, false, false, nil); err != nil {
		return err
	}
	if err := ch.ExchangeDeclare(DeadLetterX, "direct", true, false, false, false, nil); err != nil {
		return err
	}
	if _, err := ch.QueueDeclare(DeadLetterQ, true, false, false, false, nil); err != nil {
		return err
	}
	if err := ch.QueueBind(DeadLetterQ, DeadLetterQ, DeadLetterX, false, nil); err != nil {
		return err
	}
	for _, q := range []string{WaitingQueue, AllocatorQueue, NotificationsQueue} {
		if _, err := ch.QueueDeclare(q, true, false, false, false, deadLettered); err != nil {
			return err
		}
	}
	bindings := []struct{ queue, key string }{
		{AllocatorQueue, domain.SourceOrders + "." + domain.EventOrderCreated},
		{AllocatorQueue, domain.SourceKitchen + "." + domain.EventKitchenSpaceAvailable},
		{NotificationsQueue, "#"},
	}
	for _, b := range bindings {
		if err := ch.QueueBind(b.queue, b.key, EventsExchange, false, nil); err != nil {
			return err
		}
	}
	return nil
}
