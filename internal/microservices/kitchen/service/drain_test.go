package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"order-platform/internal/domain"
	"order-platform/internal/waitingqueue"
)

func queued(f *fixture) []string {
	var out []string
	for _, e := range f.queue.Snapshot() {
		out = append(out, e.OrderID)
	}
	return out
}

func TestReleaseIsIdempotent(t *testing.T) {
	f := newFixture(t)
	f.capacity.AddKitchen(tenant, "K1", 2)
	f.admit(t, "A", "K1")
	f.admit(t, "B", "K1")
	f.leave(t, "A")

	require.NoError(t, f.svc.Release(context.Background(), tenant, "K1", "A"))
	require.NoError(t, f.svc.Release(context.Background(), tenant, "K1", "A"))

	assert.Equal(t, 1, f.capacity.Current(tenant, "K1"))
	assert.Len(t, f.bus.OfType(domain.EventKitchenSpaceAvailable), 1)
	assert.Equal(t, float64(1), testutil.ToFloat64(f.metrics.Releases.WithLabelValues("released")))
	assert.Equal(t, float64(1), testutil.ToFloat64(f.metrics.Releases.WithLabelValues("duplicate")))
}

func TestReleaseNeverGoesNegative(t *testing.T) {
	f := newFixture(t)
	f.capacity.AddKitchen(tenant, "K1", 1)

	for i := 0; i < 3; i++ {
		require.NoError(t, f.svc.Release(context.Background(), tenant, "K1", "ghost"))
	}
	assert.Equal(t, 0, f.capacity.Current(tenant, "K1"))
	assert.Empty(t, f.bus.OfType(domain.EventKitchenSpaceAvailable))
}

func TestReleaseStoreErrorStillAnnounces(t *testing.T) {
	f := newFixture(t)
	f.capacity.AddKitchen(tenant, "K1", 1)
	f.admit(t, "A", "K1")
	f.admit(t, "B", "K1")
	f.leave(t, "A")

	f.capacity.SetFailRelease(errors.New("connection reset"))
	err := f.svc.Release(context.Background(), tenant, "K1", "A")
	require.Error(t, err)
	assert.Equal(t, 1, f.capacity.Current(tenant, "K1"))

	evs := f.bus.OfType(domain.EventKitchenSpaceAvailable)
	require.Len(t, evs, 1)
	var d domain.KitchenSpaceAvailableDetail
	require.NoError(t, evs[0].Decode(&d))
	assert.False(t, d.Released)
	assert.Equal(t, "A", d.FreedByOrderID)

	// the drainer applies the release once the store is back
	f.capacity.SetFailRelease(nil)
	res, err := f.svc.OnKitchenSpaceAvailable(context.Background(), tenant, d)
	require.NoError(t, err)
	assert.Equal(t, []string{"B"}, res.Promoted)
	assert.Equal(t, 1, f.capacity.Current(tenant, "K1"))
	assert.Equal(t, domain.StatusCooking, f.status(t, "B"))
}

func TestDrainIsFIFO(t *testing.T) {
	f := newFixture(t)
	f.capacity.AddKitchen(tenant, "K1", 1)
	f.admit(t, "A", "K1")
	for _, id := range []string{"O1", "O2", "O3"} {
		assert.Equal(t, Queued, f.admit(t, id, "K1").Outcome)
	}

	f.leave(t, "A")
	res, err := f.svc.OnKitchenSpaceAvailable(context.Background(), tenant, domain.KitchenSpaceAvailableDetail{
		KitchenID: "K1", FreedByOrderID: "A", Released: false,
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"O1"}, res.Promoted)
	assert.True(t, res.Full)
	assert.Equal(t, domain.StatusCooking, f.status(t, "O1"))
	assert.Equal(t, domain.StatusQueued, f.status(t, "O2"))
	assert.Equal(t, 1, f.capacity.Current(tenant, "K1"))
	if diff := cmp.Diff([]string{"O2", "O3"}, queued(f)); diff != "" {
		t.Fatalf("waiting queue (-want +got):\n%s", diff)
	}
}

func TestDrainReturnsOtherKitchensEntries(t *testing.T) {
	f := newFixture(t)
	f.capacity.AddKitchen(tenant, "K1", 1)
	f.capacity.AddKitchen(tenant, "K2", 1)
	f.admit(t, "A1", "K1")
	f.admit(t, "A2", "K2")

	// three K2 entries ahead of the K1 one, more than one batch
	for _, id := range []string{"X1", "X2", "X3"} {
		f.admit(t, id, "K2")
	}
	f.admit(t, "Y", "K1")

	f.leave(t, "A1")
	require.NoError(t, f.svc.Release(context.Background(), tenant, "K1", "A1"))
	res, err := f.svc.OnKitchenSpaceAvailable(context.Background(), tenant, domain.KitchenSpaceAvailableDetail{KitchenID: "K1", Released: true})
	require.NoError(t, err)

	assert.Equal(t, []string{"Y"}, res.Promoted)
	assert.Equal(t, 3, res.Returned)
	if diff := cmp.Diff([]string{"X1", "X2", "X3"}, queued(f)); diff != "" {
		t.Fatalf("waiting queue (-want +got):\n%s", diff)
	}
	for _, id := range []string{"X1", "X2", "X3"} {
		assert.Equal(t, domain.StatusQueued, f.status(t, id))
	}

	// the K2 entries are still there for a K2 drain
	f.leave(t, "A2")
	require.NoError(t, f.svc.Release(context.Background(), tenant, "K2", "A2"))
	res, err = f.svc.OnKitchenSpaceAvailable(context.Background(), tenant, domain.KitchenSpaceAvailableDetail{KitchenID: "K2", Released: true})
	require.NoError(t, err)
	assert.Equal(t, []string{"X1"}, res.Promoted)
}

func TestDrainIgnoresOtherTenants(t *testing.T) {
	f := newFixture(t)
	f.capacity.AddKitchen(tenant, "K1", 1)
	f.capacity.AddKitchen("t2", "K1", 1)
	require.NoError(t, f.queue.Enqueue(context.Background(), domain.QueueEntry{TenantID: "t2", KitchenID: "K1", OrderID: "Z"}))

	res, err := f.svc.OnKitchenSpaceAvailable(context.Background(), tenant, domain.KitchenSpaceAvailableDetail{KitchenID: "K1", Released: true})
	require.NoError(t, err)
	assert.Empty(t, res.Promoted)
	assert.Equal(t, 1, res.Returned)
	assert.Equal(t, 1, f.queue.Len())
	assert.Equal(t, 0, f.capacity.Current("t2", "K1"))
}

func TestDrainSkipsCancelledEntries(t *testing.T) {
	f := newFixture(t)
	f.capacity.AddKitchen(tenant, "K1", 1)
	f.admit(t, "A", "K1")
	f.admit(t, "O1", "K1")
	f.admit(t, "O2", "K1")
	f.orders.SetStatus(tenant, "O1", domain.StatusCancelled)

	f.leave(t, "A")
	require.NoError(t, f.svc.Release(context.Background(), tenant, "K1", "A"))
	res, err := f.svc.OnKitchenSpaceAvailable(context.Background(), tenant, domain.KitchenSpaceAvailableDetail{KitchenID: "K1", FreedByOrderID: "A", Released: true})
	require.NoError(t, err)

	assert.Equal(t, []string{"O2"}, res.Promoted)
	assert.Equal(t, 1, res.Skipped)
	assert.Equal(t, 0, f.queue.Len())
	assert.Equal(t, domain.StatusCancelled, f.status(t, "O1"))
}

func TestDrainAnyKitchenEntry(t *testing.T) {
	f := newFixture(t)
	f.capacity.AddKitchen(tenant, "K1", 1)
	f.admit(t, "A", "")
	assert.Equal(t, Queued, f.admit(t, "B", "").Outcome)

	f.leave(t, "A")
	require.NoError(t, f.svc.Release(context.Background(), tenant, "K1", "A"))
	res, err := f.svc.OnKitchenSpaceAvailable(context.Background(), tenant, domain.KitchenSpaceAvailableDetail{KitchenID: "K1", Released: true})
	require.NoError(t, err)
	assert.Equal(t, []string{"B"}, res.Promoted)

	o, _ := f.orders.GetOrder(context.Background(), tenant, "B")
	assert.Equal(t, "K1", o.KitchenID)
}

func TestDrainRedeliveredEventDoesNotDoubleRelease(t *testing.T) {
	f := newFixture(t)
	f.capacity.AddKitchen(tenant, "K1", 2)
	f.admit(t, "A", "K1")
	f.admit(t, "B", "K1")
	f.leave(t, "A")
	require.NoError(t, f.svc.Release(context.Background(), tenant, "K1", "A"))

	ev := domain.KitchenSpaceAvailableDetail{KitchenID: "K1", FreedByOrderID: "A", Released: true}
	for i := 0; i < 3; i++ {
		_, err := f.svc.OnKitchenSpaceAvailable(context.Background(), tenant, ev)
		require.NoError(t, err)
	}
	assert.Equal(t, 1, f.capacity.Current(tenant, "K1"))
	assert.True(t, f.capacity.Holds(tenant, "B"))
}

func TestDrainEmptyQueueIsNoop(t *testing.T) {
	f := newFixture(t)
	f.capacity.AddKitchen(tenant, "K1", 1)
	res, err := f.svc.OnKitchenSpaceAvailable(context.Background(), tenant, domain.KitchenSpaceAvailableDetail{KitchenID: "K1", Released: true})
	require.NoError(t, err)
	assert.Equal(t, DrainResult{}, res)
}

func TestDrainStatusRaceCompensates(t *testing.T) {
	f := newFixture(t)
	f.capacity.AddKitchen(tenant, "K1", 1)
	f.admit(t, "A", "K1")
	f.admit(t, "B", "K1")
	f.leave(t, "A")
	require.NoError(t, f.svc.Release(context.Background(), tenant, "K1", "A"))

	// B gets cancelled between the status check and the update
	f.orders.BeforeTransition = func(ch domain.StatusChange) error {
		if ch.OrderID == "B" && ch.To == domain.StatusCooking {
			f.orders.SetStatus(tenant, "B", domain.StatusCancelled)
		}
		return nil
	}
	res, err := f.svc.OnKitchenSpaceAvailable(context.Background(), tenant, domain.KitchenSpaceAvailableDetail{KitchenID: "K1", Released: true})
	require.NoError(t, err)
	assert.Empty(t, res.Promoted)
	assert.Equal(t, 1, res.Skipped)
	assert.Equal(t, 0, f.capacity.Current(tenant, "K1"))
	assert.Equal(t, 0, f.queue.Len())
}

// afterFirstAck runs fn once, right after the first acknowledged lease.
type afterFirstAck struct {
	waitingqueue.Queue
	once sync.Once
	fn   func()
}

func (q *afterFirstAck) Ack(ctx context.Context, l waitingqueue.Lease) error {
	err := q.Queue.Ack(ctx, l)
	q.once.Do(q.fn)
	return err
}

func TestDrainReannouncesKitchenItHeldBack(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.capacity.AddKitchen(tenant, "K1", 1)
	f.capacity.AddKitchen(tenant, "K2", 1)
	f.admit(t, "A1", "K1")
	f.admit(t, "A2", "K2")
	f.admit(t, "X", "K2")
	f.admit(t, "Y", "K1")
	f.leave(t, "A1")
	f.leave(t, "A2")
	require.NoError(t, f.svc.Release(ctx, tenant, "K1", "A1"))
	require.NoError(t, f.svc.Release(ctx, tenant, "K2", "A2"))
	f.bus.Reset()

	// K2 drain runs while the K1 drain still has X leased
	q := &afterFirstAck{Queue: f.queue}
	svc := f.build(q)
	var k2 DrainResult
	q.fn = func() {
		var err error
		k2, err = svc.OnKitchenSpaceAvailable(ctx, tenant, domain.KitchenSpaceAvailableDetail{KitchenID: "K2", Released: true})
		assert.NoError(t, err)
	}

	res, err := svc.OnKitchenSpaceAvailable(ctx, tenant, domain.KitchenSpaceAvailableDetail{KitchenID: "K1", Released: true})
	require.NoError(t, err)
	assert.Equal(t, []string{"Y"}, res.Promoted)
	assert.Empty(t, k2.Promoted)
	assert.Equal(t, domain.StatusQueued, f.status(t, "X"))

	evs := f.bus.OfType(domain.EventKitchenSpaceAvailable)
	require.Len(t, evs, 1)
	var d domain.KitchenSpaceAvailableDetail
	require.NoError(t, evs[0].Decode(&d))
	assert.Equal(t, "K2", d.KitchenID)
	assert.Empty(t, d.FreedByOrderID)

	res, err = f.svc.OnKitchenSpaceAvailable(ctx, tenant, d)
	require.NoError(t, err)
	assert.Equal(t, []string{"X"}, res.Promoted)
	assert.Equal(t, 1, f.capacity.Current(tenant, "K2"))
	assert.Equal(t, 0, f.queue.Len())
}

func TestDrainDoesNotReannounceFullKitchen(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.capacity.AddKitchen(tenant, "K1", 1)
	f.capacity.AddKitchen(tenant, "K2", 1)
	f.admit(t, "A1", "K1")
	f.admit(t, "A2", "K2")
	f.admit(t, "X", "K2")
	f.admit(t, "Y", "K1")
	f.leave(t, "A1")
	require.NoError(t, f.svc.Release(ctx, tenant, "K1", "A1"))
	f.bus.Reset()

	res, err := f.svc.OnKitchenSpaceAvailable(ctx, tenant, domain.KitchenSpaceAvailableDetail{KitchenID: "K1", Released: true})
	require.NoError(t, err)
	assert.Equal(t, []string{"Y"}, res.Promoted)
	assert.Equal(t, 1, res.Returned)
	assert.Empty(t, f.bus.OfType(domain.EventKitchenSpaceAvailable))
}

func TestConcurrentDrainsOfOneKitchen(t *testing.T) {
	for i := 0; i < 20; i++ {
		f := newFixture(t)
		ctx := context.Background()
		f.capacity.AddKitchen(tenant, "K1", 3)
		running := ids("RUN-", 3)
		for _, id := range running {
			f.admit(t, id, "K1")
		}
		for _, id := range ids("ORD-", 10) {
			require.Equal(t, Queued, f.admit(t, id, "K1").Outcome)
		}
		for _, id := range running {
			f.leave(t, id)
			_, err := f.capacity.Release(ctx, tenant, "K1", id)
			require.NoError(t, err)
		}

		var (
			wg       sync.WaitGroup
			mu       sync.Mutex
			promoted []string
		)
		for j := 0; j < 3; j++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				res, err := f.svc.OnKitchenSpaceAvailable(ctx, tenant, domain.KitchenSpaceAvailableDetail{KitchenID: "K1", Released: true})
				assert.NoError(t, err)
				mu.Lock()
				promoted = append(promoted, res.Promoted...)
				mu.Unlock()
			}()
		}
		wg.Wait()

		assert.Len(t, promoted, 3)
		assert.Equal(t, 3, f.capacity.Current(tenant, "K1"))
		assert.LessOrEqual(t, f.capacity.Peak["K1"], 3)
		assert.Equal(t, 7, f.queue.Len())
		for _, id := range promoted {
			assert.Equal(t, domain.StatusCooking, f.status(t, id))
		}
	}
}
