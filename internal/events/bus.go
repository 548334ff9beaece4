package events

import (
	"context"
	"encoding/json"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"

	"order-platform/internal/common/apperr"
	"order-platform/internal/connections/rabbitmq"
	"order-platform/internal/domain"
)

// Publisher sends domain events to whoever subscribes.
type Publisher interface {
	Publish(ctx context.Context, ev domain.Event) error
}

// Emit builds an event and publishes it.
func Emit(ctx context.Context, p Publisher, source, typ, tenantID string, detail any) error {
	ev, err := domain.NewEvent(source, typ, tenantID, detail)
	if err != nil {
		return err
	}
	return p.Publish(ctx, ev)
}

// RabbitBus publishes on the kitchen_events topic exchange with publisher
// confirms.
type RabbitBus struct {
	client *rabbitmq.Client
}

func NewRabbitBus(client *rabbitmq.Client) *RabbitBus { return &RabbitBus{client: client} }

func (b *RabbitBus) Publish(ctx context.Context, ev domain.Event) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	err = b.client.Publish(ctx, rabbitmq.Message{
		Exchange:      rabbitmq.EventsExchange,
		Key:           ev.RoutingKey(),
		Body:          body,
		MessageID:     ev.ID,
		CorrelationID: ev.OrderID(),
		Headers: amqp.Table{
			"x-source": ev.Source,
			"x-tenant": ev.TenantID,
		},
	})
	return apperr.Queue("publish "+ev.RoutingKey(), err)
}

// Decode parses a delivery body into an event.
func Decode(body []byte) (domain.Event, error) {
	var ev domain.Event
	if err := json.Unmarshal(body, &ev); err != nil {
		return domain.Event{}, err
	}
	if ev.Type == "" || ev.TenantID == "" {
		return domain.Event{}, fmt.Errorf("event without type or tenant")
	}
	return ev, nil
}
