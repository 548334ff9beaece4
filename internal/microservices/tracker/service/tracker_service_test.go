package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"order-platform/internal/common/apperr"
	"order-platform/internal/domain"
	"order-platform/internal/microservices/tracker/models"
	"order-platform/internal/testkit"
)

type memTimeline struct {
	mu     sync.Mutex
	seen   map[string]bool
	events []models.TimelineEvent
}

func (m *memTimeline) AppendEvent(_ context.Context, e models.TimelineEvent) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.seen[e.EventID] {
		return false, nil
	}
	m.seen[e.EventID] = true
	m.events = append(m.events, e)
	return true, nil
}

func (m *memTimeline) GetOrderTimeline(_ context.Context, tenantID, orderID string, limit, offset int) ([]models.TimelineEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.TimelineEvent
	for _, e := range m.events {
		if e.TenantID == tenantID && e.OrderID == orderID {
			out = append(out, e)
		}
	}
	if offset >= len(out) {
		return []models.TimelineEvent{}, nil
	}
	out = out[offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func TestApplyAndTimeline(t *testing.T) {
	ctx := context.Background()
	orders := testkit.NewOrderStore()
	require.NoError(t, orders.CreateOrder(ctx, domain.Order{TenantID: "t1", OrderID: "ORD-1", Status: domain.StatusCreated, CreatedBy: "c1"}))
	svc := NewTrackerService(&memTimeline{seen: map[string]bool{}}, orders)

	created, err := domain.NewEvent(domain.SourceOrders, domain.EventOrderCreated, "t1", domain.OrderCreatedDetail{OrderID: "ORD-1", CreatedBy: "c1"})
	require.NoError(t, err)
	allocated, err := domain.NewEvent(domain.SourceKitchen, domain.EventOrderAllocated, "t1", domain.OrderAllocatedDetail{OrderID: "ORD-1", KitchenID: "K1", Status: domain.StatusCooking})
	require.NoError(t, err)
	space, err := domain.NewEvent(domain.SourceKitchen, domain.EventKitchenSpaceAvailable, "t1", domain.KitchenSpaceAvailableDetail{KitchenID: "K1", Released: true})
	require.NoError(t, err)

	for _, ev := range []domain.Event{created, allocated, created} {
		_, err := svc.Apply(ctx, ev)
		require.NoError(t, err)
	}
	stored, err := svc.Apply(ctx, space)
	require.NoError(t, err)
	assert.False(t, stored, "capacity notices have no order")

	owner := domain.Actor{UserID: "c1", TenantID: "t1", Role: domain.RoleCustomer}
	tl, err := svc.GetOrderTimeline(ctx, owner, "ORD-1", 0, 0)
	require.NoError(t, err)
	require.Len(t, tl, 2, "redelivered event is stored once")
	assert.Equal(t, "orders.OrderCreated", tl[0].EventType)
	assert.Equal(t, "kitchen.OrderAllocated", tl[1].EventType)
	assert.Equal(t, "K1", tl[1].Payload["kitchenId"])

	other := domain.Actor{UserID: "c2", TenantID: "t1", Role: domain.RoleCustomer}
	_, err = svc.GetOrderTimeline(ctx, other, "ORD-1", 10, 0)
	assert.Equal(t, apperr.Forbidden, apperr.CodeOf(err))

	foreign := domain.Actor{UserID: "a", TenantID: "t2", Role: domain.RoleAdmin}
	_, err = svc.GetOrderStatus(ctx, foreign, "ORD-1")
	assert.Equal(t, apperr.OrderNotFound, apperr.CodeOf(err))

	view, err := svc.GetOrderStatus(ctx, domain.Actor{UserID: "k", TenantID: "t1", Role: domain.RoleKitchen}, "ORD-1")
	require.NoError(t, err)
	assert.Equal(t, "CREATED", view.Status)
	assert.WithinDuration(t, time.Now(), view.UpdatedAt, time.Minute)
}
