package testkit

import (
	"context"
	"errors"
	"sync"

	"order-platform/internal/domain"
	"order-platform/internal/waitingqueue"
)

// Bus records published events and hands them to subscribers on the
// publishing goroutine.
type Bus struct {
	mu      sync.Mutex
	events  []domain.Event
	subs    []func(ctx context.Context, ev domain.Event) error
	subErrs []error
	// Fail makes Publish return an error without recording.
	Fail bool
}

func NewBus() *Bus { return &Bus{} }

func (b *Bus) Subscribe(fn func(ctx context.Context, ev domain.Event) error) {
	b.mu.Lock()
	b.subs = append(b.subs, fn)
	b.mu.Unlock()
}

func (b *Bus) Publish(ctx context.Context, ev domain.Event) error {
	b.mu.Lock()
	if b.Fail {
		b.mu.Unlock()
		return errors.New("bus unavailable")
	}
	b.events = append(b.events, ev)
	subs := append([]func(context.Context, domain.Event) error(nil), b.subs...)
	b.mu.Unlock()

	// ошибки подписчиков не относятся к публикации
	for _, fn := range subs {
		if err := fn(ctx, ev); err != nil {
			b.mu.Lock()
			b.subErrs = append(b.subErrs, err)
			b.mu.Unlock()
		}
	}
	return nil
}

// SubscriberErrors lists errors returned by subscribers so far.
func (b *Bus) SubscriberErrors() []error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]error(nil), b.subErrs...)
}

func (b *Bus) Events() []domain.Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]domain.Event(nil), b.events...)
}

// OfType returns the published events of one type, in order.
func (b *Bus) OfType(typ string) []domain.Event {
	var out []domain.Event
	for _, ev := range b.Events() {
		if ev.Type == typ {
			out = append(out, ev)
		}
	}
	return out
}

func (b *Bus) Reset() {
	b.mu.Lock()
	b.events = nil
	b.mu.Unlock()
}

// FailingQueue wraps a queue and fails Enqueue while EnqueueErr is set.
type FailingQueue struct {
	waitingqueue.Queue
	EnqueueErr error
}

func (q *FailingQueue) Enqueue(ctx context.Context, e domain.QueueEntry) error {
	if q.EnqueueErr != nil {
		return q.EnqueueErr
	}
	return q.Queue.Enqueue(ctx, e)
}
