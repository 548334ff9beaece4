package waitingqueue

import (
	"context"
	"sort"
	"sync"
	"time"

	"order-platform/internal/domain"
)

type memItem struct {
	seq      uint64
	entry    domain.QueueEntry
	token    uint64 // 0 when visible
	leasedAt time.Time
}

// Memory is an in-process Queue with the same lease semantics as Rabbit.
// Entries keep their enqueue position when returned or when a lease expires.
type Memory struct {
	mu         sync.Mutex
	items      []*memItem
	seq        uint64
	tokens     uint64
	visibility time.Duration
	now        func() time.Time
	notify     chan struct{}
}

func NewMemory(visibility time.Duration) *Memory {
	if visibility <= 0 {
		visibility = 30 * time.Second
	}
	return &Memory{visibility: visibility, now: time.Now, notify: make(chan struct{})}
}

func (q *Memory) Enqueue(_ context.Context, entry domain.QueueEntry) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.seq++
	if entry.EnqueuedAt.IsZero() {
		entry.EnqueuedAt = q.now().UTC()
	}
	q.items = append(q.items, &memItem{seq: q.seq, entry: entry})
	q.wakeLocked()
	return nil
}

func (q *Memory) wakeLocked() {
	close(q.notify)
	q.notify = make(chan struct{})
}

func (q *Memory) Receive(ctx context.Context, max int, wait time.Duration) ([]Lease, error) {
	if max <= 0 {
		max = 1
	}
	deadline := time.NewTimer(wait)
	defer deadline.Stop()
	for {
		q.mu.Lock()
		leases := q.takeLocked(max)
		ch := q.notify
		q.mu.Unlock()
		if len(leases) > 0 || wait <= 0 {
			return leases, nil
		}
		select {
		case <-ch:
		case <-deadline.C:
			return nil, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func (q *Memory) takeLocked(max int) []Lease {
	now := q.now()
	var out []Lease
	for _, it := range q.items {
		if len(out) == max {
			break
		}
		if it.token != 0 && now.Sub(it.leasedAt) < q.visibility {
			continue
		}
		q.tokens++
		it.token = q.tokens
		it.leasedAt = now
		out = append(out, Lease{Entry: it.entry, token: it.token})
	}
	return out
}

func (q *Memory) Ack(_ context.Context, l Lease) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i, it := range q.items {
		if it.token == l.token && l.token != 0 {
			q.items = append(q.items[:i], q.items[i+1:]...)
			return nil
		}
	}
	return ErrUnknownLease
}

func (q *Memory) Return(_ context.Context, l Lease) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, it := range q.items {
		if it.token == l.token && l.token != 0 {
			it.token = 0
			q.wakeLocked()
			return nil
		}
	}
	return ErrUnknownLease
}

// Snapshot lists entries in queue order, leased ones included.
func (q *Memory) Snapshot() []domain.QueueEntry {
	q.mu.Lock()
	defer q.mu.Unlock()
	items := append([]*memItem(nil), q.items...)
	sort.Slice(items, func(i, j int) bool { return items[i].seq < items[j].seq })
	out := make([]domain.QueueEntry, 0, len(items))
	for _, it := range items {
		out = append(out, it.entry)
	}
	return out
}

func (q *Memory) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
