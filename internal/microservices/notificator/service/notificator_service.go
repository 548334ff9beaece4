package service

import (
	"context"
	"errors"
	"fmt"

	amqp091 "github.com/rabbitmq/amqp091-go"

	"order-platform/internal/common/apperr"
	"order-platform/internal/common/logger"
	"order-platform/internal/connections/rabbitmq"
	"order-platform/internal/domain"
	"order-platform/internal/events"
	trackersvc "order-platform/internal/microservices/tracker/service"
)

var (
	ErrRequeue = errors.New("requeue")
	ErrDLQ     = errors.New("dead_letter")
)

// NotificatorService consumes every domain event: it appends the order
// timeline, pushes the event to the tenant's live connections and logs
// operations alerts.
type NotificatorService struct {
	client  *rabbitmq.Client
	tracker trackersvc.TrackerServiceInterface
	hub     *Hub
	log     *logger.Logger

	Queue    string
	Prefetch int
}

func NewNotificatorService(client *rabbitmq.Client, tracker trackersvc.TrackerServiceInterface, hub *Hub, log *logger.Logger, prefetch int) *NotificatorService {
	if prefetch <= 0 {
		prefetch = 1
	}
	return &NotificatorService{
		client:   client,
		tracker:  tracker,
		hub:      hub,
		log:      log,
		Queue:    rabbitmq.NotificationsQueue,
		Prefetch: prefetch,
	}
}

func (ns *NotificatorService) Notify(ctx context.Context) error {
	ch, err := ns.client.NewChannel()
	if err != nil {
		return fmt.Errorf("open consume channel: %w", err)
	}
	defer ch.Close()

	closeCh := ch.NotifyClose(make(chan *amqp091.Error, 1))
	go func() {
		if e := <-closeCh; e != nil {
			ns.log.Error("amqp_channel_closed", e, map[string]any{"code": e.Code, "reason": e.Reason})
		}
	}()

	if err := rabbitmq.DeclareTopology(ch); err != nil {
		return fmt.Errorf("declare topology: %w", err)
	}
	if err := ch.Qos(ns.Prefetch, 0, false); err != nil {
		return err
	}
	const consumerTag = "notificator"
	msgs, err := ch.Consume(ns.Queue, consumerTag, false, false, false, false, nil)
	if err != nil {
		return err
	}
	ns.log.Info("consumer_started", map[string]any{"queue": ns.Queue, "prefetch": ns.Prefetch})

	done := make(chan struct{})
	go func() {
		defer close(done)
		for d := range msgs {
			err := ns.Handle(ctx, d.Body)
			switch {
			case err == nil:
				_ = d.Ack(false)
			case errors.Is(err, ErrDLQ):
				_ = d.Nack(false, false)
			default:
				_ = d.Nack(false, true)
			}
		}
	}()

	<-ctx.Done()
	ns.log.Info("graceful_shutdown", map[string]any{"queue": ns.Queue})
	_ = ch.Cancel(consumerTag, false)
	<-done
	ns.hub.Close(context.Background())
	return nil
}

// Handle processes one delivery body.
func (ns *NotificatorService) Handle(ctx context.Context, body []byte) error {
	ev, err := events.Decode(body)
	if err != nil {
		ns.log.Warn("event_malformed", map[string]any{"error": err.Error()})
		return ErrDLQ
	}
	fields := map[string]any{"event_id": ev.ID, "type": ev.RoutingKey(), "tenant_id": ev.TenantID}

	stored, err := ns.tracker.Apply(ctx, ev)
	if err != nil {
		ns.log.Error("timeline_append_failed", err, fields)
		if apperr.CodeOf(err) == apperr.BadRequest {
			return ErrDLQ
		}
		return ErrRequeue
	}
	if !stored && ev.OrderID() != "" {
		ns.log.Debug("event_duplicate", fields)
		return nil
	}

	if ev.Source == domain.SourceOperations {
		var alert domain.KitchenCapacityAlertDetail
		_ = ev.Decode(&alert)
		fields["order_id"] = alert.OrderID
		fields["kitchen_id"] = alert.KitchenID
		fields["message"] = alert.Message
		ns.log.Warn("operations_alert", fields)
	}

	// клиенты видят только свои заказы, алерты только для персонала
	aud := Audience{Creator: ev.Creator(), StaffOnly: ev.Source == domain.SourceOperations}
	fields["delivered"] = ns.hub.Broadcast(ctx, ev.TenantID, aud, Push{Type: ev.Type, Data: ev.Detail})
	ns.log.Debug("event_pushed", fields)
	return nil
}
