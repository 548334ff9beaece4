package service

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"order-platform/internal/common/apperr"
	"order-platform/internal/common/logger"
	"order-platform/internal/domain"
)

func body(t *testing.T, source, typ string, detail any) []byte {
	t.Helper()
	ev, err := domain.NewEvent(source, typ, tenant, detail)
	require.NoError(t, err)
	b, err := json.Marshal(ev)
	require.NoError(t, err)
	return b
}

func TestAllocatorHandle(t *testing.T) {
	f := newFixture(t)
	f.capacity.AddKitchen(tenant, "K1", 1)
	f.newOrder(t, "A", "K1")
	f.newOrder(t, "B", "K1")
	a := NewAllocator(f.svc, f.workers, nil, logger.NewNop(), "alloc-1", 1, 0)
	ctx := context.Background()

	assert.ErrorIs(t, a.Handle(ctx, []byte("{not json")), ErrDLQ)
	assert.ErrorIs(t, a.Handle(ctx, body(t, domain.SourceOrders, domain.EventOrderCreated, map[string]string{})), ErrDLQ)

	require.NoError(t, a.Handle(ctx, body(t, domain.SourceOrders, domain.EventOrderCreated, domain.OrderCreatedDetail{OrderID: "A", KitchenID: "K1"})))
	require.NoError(t, a.Handle(ctx, body(t, domain.SourceOrders, domain.EventOrderCreated, domain.OrderCreatedDetail{OrderID: "B", KitchenID: "K1"})))
	assert.Equal(t, domain.StatusCooking, f.status(t, "A"))
	assert.Equal(t, domain.StatusQueued, f.status(t, "B"))

	// redelivery is harmless
	require.NoError(t, a.Handle(ctx, body(t, domain.SourceOrders, domain.EventOrderCreated, domain.OrderCreatedDetail{OrderID: "A", KitchenID: "K1"})))
	assert.Equal(t, 1, f.capacity.Current(tenant, "K1"))

	assert.ErrorIs(t, a.Handle(ctx, body(t, domain.SourceOrders, domain.EventOrderCreated, domain.OrderCreatedDetail{OrderID: "missing"})), ErrDLQ)

	f.leave(t, "A")
	require.NoError(t, a.Handle(ctx, body(t, domain.SourceKitchen, domain.EventKitchenSpaceAvailable, domain.KitchenSpaceAvailableDetail{
		KitchenID: "K1", FreedByOrderID: "A",
	})))
	assert.Equal(t, domain.StatusCooking, f.status(t, "B"))

	// events the allocator does not handle are acked
	require.NoError(t, a.Handle(ctx, body(t, domain.SourceKitchen, domain.EventOrderAllocated, domain.OrderAllocatedDetail{OrderID: "B"})))
}

func TestAllocatorRequeuesOnStoreOutage(t *testing.T) {
	f := newFixture(t)
	f.capacity.AddKitchen(tenant, "K1", 1)
	f.newOrder(t, "A", "K1")
	f.orders.BeforeTransition = func(domain.StatusChange) error {
		return apperr.New(apperr.StoreUnavailable, "db down")
	}
	a := NewAllocator(f.svc, f.workers, nil, logger.NewNop(), "alloc-1", 1, 0)

	err := a.Handle(context.Background(), body(t, domain.SourceOrders, domain.EventOrderCreated, domain.OrderCreatedDetail{OrderID: "A", KitchenID: "K1"}))
	assert.ErrorIs(t, err, ErrRequeue)
	assert.Equal(t, 0, f.capacity.Current(tenant, "K1"), "reservation is compensated")
}
