package waitingqueue

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"order-platform/internal/common/apperr"
	"order-platform/internal/common/logger"
	"order-platform/internal/connections/rabbitmq"
	"order-platform/internal/domain"
)

const pollEvery = 100 * time.Millisecond

// Rabbit is a Queue over the shared durable waiting.q. Leases are unacked
// basic.get deliveries; the broker puts them back if the channel dies.
type Rabbit struct {
	client *rabbitmq.Client
	log    *logger.Logger

	mu  sync.Mutex
	ch  *amqp.Channel
	gen uint64
}

func NewRabbit(client *rabbitmq.Client, log *logger.Logger) *Rabbit {
	return &Rabbit{client: client, log: log}
}

func (q *Rabbit) Enqueue(ctx context.Context, entry domain.QueueEntry) error {
	body, err := json.Marshal(entry)
	if err != nil {
		return apperr.Wrap(apperr.Internal, "marshal queue entry", err)
	}
	err = q.client.Publish(ctx, rabbitmq.Message{
		Exchange:      "",
		Key:           rabbitmq.WaitingQueue,
		Body:          body,
		MessageID:     entry.OrderID,
		CorrelationID: entry.OrderID,
		Headers:       amqp.Table{"x-tenant": entry.TenantID, "x-kitchen": entry.KitchenID},
	})
	return apperr.Queue("enqueue "+entry.OrderID, err)
}

// channel returns the consuming channel, reopening it after a close. Leases
// from an older generation are void: the broker already requeued them.
func (q *Rabbit) channel() (*amqp.Channel, uint64, error) {
	if q.ch != nil && !q.ch.IsClosed() {
		return q.ch, q.gen, nil
	}
	ch, err := q.client.NewChannel()
	if err != nil {
		return nil, 0, apperr.Queue("open waiting queue channel", err)
	}
	q.ch = ch
	q.gen++
	return q.ch, q.gen, nil
}

func (q *Rabbit) Receive(ctx context.Context, max int, wait time.Duration) ([]Lease, error) {
	if max <= 0 {
		max = 1
	}
	deadline := time.Now().Add(wait)
	for {
		leases, err := q.getBatch(max)
		if err != nil || len(leases) > 0 {
			return leases, err
		}
		if !time.Now().Before(deadline) {
			return nil, nil
		}
		select {
		case <-time.After(pollEvery):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func (q *Rabbit) getBatch(max int) ([]Lease, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	ch, gen, err := q.channel()
	if err != nil {
		return nil, err
	}
	var out []Lease
	for len(out) < max {
		d, ok, err := ch.Get(rabbitmq.WaitingQueue, false)
		if err != nil {
			return out, apperr.Queue("basic.get", err)
		}
		if !ok {
			break
		}
		var entry domain.QueueEntry
		if err := json.Unmarshal(d.Body, &entry); err != nil || entry.OrderID == "" {
			// битое сообщение — в DLQ
			q.log.Warn("waiting_entry_malformed", map[string]any{"message_id": d.MessageId})
			_ = d.Nack(false, false)
			continue
		}
		out = append(out, Lease{Entry: entry, token: d.DeliveryTag, gen: gen})
	}
	return out, nil
}

func (q *Rabbit) Ack(_ context.Context, l Lease) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if l.gen != q.gen || q.ch == nil || q.ch.IsClosed() {
		return ErrUnknownLease
	}
	return apperr.Queue("ack", q.ch.Ack(l.token, false))
}

func (q *Rabbit) Return(_ context.Context, l Lease) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if l.gen != q.gen || q.ch == nil || q.ch.IsClosed() {
		return ErrUnknownLease
	}
	return apperr.Queue("return", q.ch.Nack(l.token, false, true))
}

func (q *Rabbit) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.ch != nil {
		_ = q.ch.Close()
		q.ch = nil
	}
}
