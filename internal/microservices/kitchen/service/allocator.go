package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	amqp091 "github.com/rabbitmq/amqp091-go"

	"order-platform/internal/common/apperr"
	"order-platform/internal/common/logger"
	"order-platform/internal/connections/rabbitmq"
	"order-platform/internal/domain"
	"order-platform/internal/events"
	"order-platform/internal/microservices/kitchen/repository"
)

var (
	ErrRequeue = errors.New("requeue")     // nack(requeue=true)
	ErrDLQ     = errors.New("dead_letter") // nack(requeue=false)
)

// Allocator consumes OrderCreated and KitchenSpaceAvailable events and runs
// admission and queue draining for them.
type Allocator struct {
	svc     KitchenServiceInterface
	workers repository.WorkerRepositoryInterface
	client  *rabbitmq.Client
	log     *logger.Logger

	WorkerName string
	Queue      string
	Prefetch   int
	BeatEvery  time.Duration
}

func NewAllocator(svc KitchenServiceInterface, workers repository.WorkerRepositoryInterface, client *rabbitmq.Client, log *logger.Logger, workerName string, prefetch int, heartbeat time.Duration) *Allocator {
	if prefetch <= 0 {
		prefetch = 1
	}
	if heartbeat <= 0 {
		heartbeat = 30 * time.Second
	}
	return &Allocator{
		svc:        svc,
		workers:    workers,
		client:     client,
		log:        log,
		WorkerName: workerName,
		Queue:      rabbitmq.AllocatorQueue,
		Prefetch:   prefetch,
		BeatEvery:  heartbeat,
	}
}

func (a *Allocator) Run(ctx context.Context) error {
	if strings.TrimSpace(a.WorkerName) == "" {
		return fmt.Errorf("worker name is empty: pass --worker-name")
	}

	// Регистрация воркера (защита от дублей online)
	if _, err := a.workers.RegisterOrFail(ctx, repository.SystemTenant, a.WorkerName, domain.WorkerAllocator); err != nil {
		a.log.Error("worker_registration_failed", err, map[string]any{"name": a.WorkerName})
		return err
	}
	a.log.Info("worker_registered", map[string]any{"name": a.WorkerName, "type": domain.WorkerAllocator})

	consCh, err := a.client.NewChannel()
	if err != nil {
		return fmt.Errorf("open consume channel: %w", err)
	}
	defer consCh.Close()

	// Диагностика закрытий канала/консюмера
	closeCh := consCh.NotifyClose(make(chan *amqp091.Error, 1))
	cancelCh := consCh.NotifyCancel(make(chan string, 1))
	go func() {
		for {
			select {
			case e := <-closeCh:
				if e != nil {
					a.log.Error("amqp_channel_closed", e, map[string]any{"code": e.Code, "reason": e.Reason})
				}
				return
			case tag := <-cancelCh:
				if tag != "" {
					a.log.Warn("consumer_canceled", map[string]any{"tag": tag})
				}
			}
		}
	}()

	if err := rabbitmq.DeclareTopology(consCh); err != nil {
		return fmt.Errorf("declare topology: %w", err)
	}
	if err := consCh.Qos(a.Prefetch, 0, false); err != nil {
		return err
	}

	consumerTag := a.WorkerName
	msgs, err := consCh.Consume(a.Queue, consumerTag, false, false, false, false, nil)
	if err != nil {
		return err
	}

	stopBeat := make(chan struct{})
	go func() {
		t := time.NewTicker(a.BeatEvery)
		defer t.Stop()
		for {
			select {
			case <-stopBeat:
				return
			case <-ctx.Done():
				return
			case <-t.C:
				if err := a.workers.Heartbeat(context.Background(), repository.SystemTenant, a.WorkerName); err == nil {
					a.log.Debug("heartbeat_sent", map[string]any{"worker": a.WorkerName})
				}
			}
		}
	}()

	a.log.Info("consumer_started", map[string]any{"queue": a.Queue, "prefetch": a.Prefetch, "worker": a.WorkerName})

	done := make(chan struct{})
	go func() {
		defer close(done)
		for d := range msgs {
			err := a.Handle(ctx, d.Body)
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
	a.log.Info("graceful_shutdown", map[string]any{"worker": a.WorkerName})

	_ = consCh.Cancel(consumerTag, false) // перестаём принимать новые
	_ = a.workers.SetOffline(context.Background(), repository.SystemTenant, a.WorkerName)
	close(stopBeat)
	<-done // дождёмся дренажа

	return nil
}

// Handle processes one delivery body. The returned error tells the loop
// whether to requeue (ErrRequeue) or dead-letter (ErrDLQ).
func (a *Allocator) Handle(ctx context.Context, body []byte) error {
	ev, err := events.Decode(body)
	if err != nil {
		a.log.Warn("event_malformed", map[string]any{"error": err.Error()})
		return ErrDLQ
	}
	fields := map[string]any{"event_id": ev.ID, "type": ev.Type, "tenant_id": ev.TenantID}

	switch ev.Type {
	case domain.EventOrderCreated:
		var d domain.OrderCreatedDetail
		if err := ev.Decode(&d); err != nil || d.OrderID == "" {
			return ErrDLQ
		}
		res, err := a.svc.OnOrderCreated(ctx, ev.TenantID, d.OrderID, d.KitchenID)
		if err != nil {
			return a.classify(err, fields)
		}
		fields["outcome"] = res.Outcome
		a.log.Debug("order_created_handled", fields)
	case domain.EventKitchenSpaceAvailable:
		var d domain.KitchenSpaceAvailableDetail
		if err := ev.Decode(&d); err != nil || d.KitchenID == "" {
			return ErrDLQ
		}
		res, err := a.svc.OnKitchenSpaceAvailable(ctx, ev.TenantID, d)
		if err != nil {
			return a.classify(err, fields)
		}
		fields["promoted"] = len(res.Promoted)
		a.log.Debug("space_available_handled", fields)
	default:
		// не наше событие: подтверждаем и забываем
	}
	return nil
}

func (a *Allocator) classify(err error, fields map[string]any) error {
	a.log.Error("event_handling_failed", err, fields)
	switch apperr.CodeOf(err) {
	case apperr.OrderNotFound, apperr.KitchenNotFound, apperr.BadRequest, apperr.InvalidTransition:
		return ErrDLQ
	}
	return ErrRequeue
}
