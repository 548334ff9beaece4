// Package waitingqueue holds orders that found no free kitchen capacity.
//
// Consumption is lease based: Receive hides entries from other consumers
// until they are acknowledged (consumed) or returned (made visible again in
// their original position).
package waitingqueue

import (
	"context"
	"errors"
	"time"

	"order-platform/internal/domain"
)

var ErrUnknownLease = errors.New("lease is unknown or expired")

type Lease struct {
	Entry domain.QueueEntry
	token uint64
	gen   uint64
}

type Queue interface {
	Enqueue(ctx context.Context, entry domain.QueueEntry) error
	// Receive returns up to max leases, waiting at most wait for the first.
	Receive(ctx context.Context, max int, wait time.Duration) ([]Lease, error)
	Ack(ctx context.Context, l Lease) error
	Return(ctx context.Context, l Lease) error
}
