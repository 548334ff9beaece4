package service

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"order-platform/internal/common/apperr"
	"order-platform/internal/domain"
)

func TestSubmitOrderValidation(t *testing.T) {
	f := newFixture(t, false)
	f.capacity.AddKitchen(tenant, "K1", 1)
	ctx := context.Background()

	tests := []struct {
		name string
		req  domain.SubmitOrderRequest
		want string
	}{
		{"no items", domain.SubmitOrderRequest{}, apperr.BadRequest},
		{"zero quantity", domain.SubmitOrderRequest{Items: []domain.OrderItem{{Name: "x", Quantity: 0, Price: 1}}}, apperr.BadRequest},
		{"negative price", domain.SubmitOrderRequest{Items: []domain.OrderItem{{Name: "x", Quantity: 1, Price: -1}}}, apperr.BadRequest},
		{"nameless item", domain.SubmitOrderRequest{Items: []domain.OrderItem{{Quantity: 1, Price: 1}}}, apperr.BadRequest},
		{"unknown kitchen", pizza("K9"), apperr.KitchenNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.SubmitOrder(ctx, customer, tt.req, "")
			assert.Equal(t, tt.want, apperr.CodeOf(err))
		})
	}
	assert.Empty(t, f.bus.Events())
}

func TestSubmitOrderCreatesAndAnnounces(t *testing.T) {
	f := newFixture(t, false)
	req := domain.SubmitOrderRequest{
		OrderType: "delivery",
		Items: []domain.OrderItem{
			{Name: "margherita", Quantity: 2, Price: 7.5},
			{Name: "cola", Quantity: 3, Price: 1.1},
		},
	}
	resp, err := f.svc.SubmitOrder(context.Background(), customer, req, "")
	require.NoError(t, err)

	assert.Regexp(t, `^ORD-`, resp.OrderID)
	assert.Equal(t, domain.StatusCreated, resp.Status)
	assert.InDelta(t, 18.3, resp.Total, 1e-9)

	o := f.order(t, resp.OrderID)
	assert.Equal(t, "DELIVERY", o.OrderType)
	assert.Equal(t, customer.UserID, o.CreatedBy)
	assert.Empty(t, o.KitchenID)

	created := f.bus.OfType(domain.EventOrderCreated)
	require.Len(t, created, 1)
	var d domain.OrderCreatedDetail
	require.NoError(t, created[0].Decode(&d))
	want := domain.OrderCreatedDetail{OrderID: resp.OrderID, CreatedBy: customer.UserID, OrderType: "DELIVERY"}
	if diff := cmp.Diff(want, d); diff != "" {
		t.Errorf("OrderCreated detail (-want +got):\n%s", diff)
	}
	assert.Equal(t, domain.SourceOrders, created[0].Source)
}

func TestSubmitOrderDefaultsToStore(t *testing.T) {
	f := newFixture(t, false)
	id := f.submit(t, customer, "")
	assert.Equal(t, "STORE", f.order(t, id).OrderType)
}

func TestSubmitOrderIdempotencyKey(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	first, err := f.svc.SubmitOrder(ctx, customer, pizza(""), "key-1")
	require.NoError(t, err)
	again, err := f.svc.SubmitOrder(ctx, customer, pizza(""), "key-1")
	require.NoError(t, err)
	other, err := f.svc.SubmitOrder(ctx, customer, pizza(""), "key-2")
	require.NoError(t, err)

	assert.Equal(t, first.OrderID, again.OrderID)
	assert.NotEqual(t, first.OrderID, other.OrderID)
	assert.Len(t, f.bus.OfType(domain.EventOrderCreated), 2)
}

func TestSubmitOrderIsAdmittedByAllocator(t *testing.T) {
	f := newFixture(t, true)
	f.capacity.AddKitchen(tenant, "K1", 1)

	a := f.submit(t, customer, "K1")
	b := f.submit(t, customer, "K1")

	assert.Equal(t, domain.StatusCooking, f.order(t, a).Status)
	assert.Equal(t, domain.StatusQueued, f.order(t, b).Status)
	assert.Equal(t, 1, f.capacity.Current(tenant, "K1"))
	assert.Empty(t, f.bus.SubscriberErrors())
}

// Releasing A's unit when it leaves the kitchen hands the unit to B, which
// was waiting for the same kitchen.
func TestFinishedOrderHandsCapacityToWaiting(t *testing.T) {
	f := newFixture(t, true)
	f.capacity.AddKitchen(tenant, "K1", 1)
	_, err := f.workers.RegisterOrFail(context.Background(), tenant, courier.UserID, domain.WorkerDelivery)
	require.NoError(t, err)

	a := f.submit(t, customer, "K1")
	b := f.submit(t, customer, "K1")
	require.Equal(t, domain.StatusQueued, f.order(t, b).Status)

	resp, err := f.update(cook, a, "READY")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusSended, resp.Status)
	assert.Equal(t, courier.UserID, f.order(t, a).DeliveryUserID)

	assert.Equal(t, domain.StatusCooking, f.order(t, b).Status)
	assert.Equal(t, "K1", f.order(t, b).KitchenID)
	assert.Equal(t, 1, f.capacity.Current(tenant, "K1"))
	assert.Equal(t, 0, f.queue.Len())
	assert.Empty(t, f.bus.SubscriberErrors())

	_, err = f.update(courier, a, "DELIVERED")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusDelivered, f.order(t, a).Status)
	assert.Equal(t, 1, f.capacity.Current(tenant, "K1"), "delivering does not release twice")
}

func TestCancelQueuedOrderIsSkippedByDrainer(t *testing.T) {
	f := newFixture(t, true)
	f.capacity.AddKitchen(tenant, "K1", 1)

	a := f.submit(t, customer, "K1")
	b := f.submit(t, customer, "K1")
	c := f.submit(t, customer, "K1")

	_, err := f.update(customer, b, "CANCELLED")
	require.NoError(t, err)

	_, err = f.update(admin, a, "CANCELED")
	require.NoError(t, err)

	assert.Equal(t, domain.StatusCancelled, f.order(t, b).Status)
	assert.Equal(t, domain.StatusCooking, f.order(t, c).Status)
	assert.False(t, f.capacity.Holds(tenant, b))
	assert.Equal(t, 1, f.capacity.Current(tenant, "K1"))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Drains.WithLabelValues("stale")))
}

func TestManualStartWithoutAllocator(t *testing.T) {
	f := newFixture(t, false)
	f.capacity.AddKitchen(tenant, "K1", 1)
	a := f.submit(t, customer, "K1")
	b := f.submit(t, customer, "K1")

	resp, err := f.update(cook, a, "PREPARING")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCooking, resp.Status)
	assert.Equal(t, "K1", resp.KitchenID)

	// no room: the order is parked rather than refused
	resp, err = f.update(cook, b, "COOKING")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusQueued, resp.Status)

	// still no room for the manual promotion
	_, err = f.update(cook, b, "COOKING")
	assert.Equal(t, apperr.CapacityExhausted, apperr.CodeOf(err))
	assert.Equal(t, domain.StatusQueued, f.order(t, b).Status)

	_, err = f.update(admin, a, "CANCELLED")
	require.NoError(t, err)
	resp, err = f.update(cook, b, "COOKING")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCooking, resp.Status)
	assert.Equal(t, 1, f.capacity.Current(tenant, "K1"))

	updates := f.bus.OfType(domain.EventOrderStatusUpdated)
	require.NotEmpty(t, updates)
	var last domain.OrderStatusUpdatedDetail
	require.NoError(t, updates[len(updates)-1].Decode(&last))
	assert.Equal(t, domain.StatusQueued, last.From)
	assert.Equal(t, domain.StatusCooking, last.To)
}

func TestUpdateOrderStatusErrors(t *testing.T) {
	f := newFixture(t, false)
	f.capacity.AddKitchen(tenant, "K1", 2)
	id := f.submit(t, customer, "K1")
	_, err := f.update(cook, id, "COOKING")
	require.NoError(t, err)

	tests := []struct {
		name   string
		actor  domain.Actor
		status string
		want   string
	}{
		{"unknown status", cook, "BURNT", apperr.BadRequest},
		{"customer cannot send", customer, "SENDED", apperr.Forbidden},
		{"skipping is invalid", cook, "DELIVERED", apperr.InvalidTransition},
		{"creator cannot cancel cooking", customer, "CANCELLED", apperr.Forbidden},
		{"other tenant sees nothing", domain.Actor{UserID: "x", TenantID: "t2", Role: domain.RoleAdmin}, "SENDED", apperr.OrderNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.update(tt.actor, id, tt.status)
			assert.Equal(t, tt.want, apperr.CodeOf(err))
		})
	}
	assert.Equal(t, domain.StatusCooking, f.order(t, id).Status)

	_, err = f.update(admin, "ORD-missing", "COOKING")
	assert.Equal(t, apperr.OrderNotFound, apperr.CodeOf(err))
}

func TestDeliveredIsTerminal(t *testing.T) {
	f := newFixture(t, false)
	f.capacity.AddKitchen(tenant, "K1", 1)
	id := f.submit(t, customer, "K1")
	for _, step := range []struct {
		actor  domain.Actor
		status string
	}{{cook, "COOKING"}, {cook, "SENDED"}, {courier, "DELIVERED"}} {
		_, err := f.update(step.actor, id, step.status)
		require.NoError(t, err, step.status)
	}
	for _, st := range []string{"CREATED", "QUEUED", "COOKING", "SENDED", "CANCELLED"} {
		_, err := f.update(admin, id, st)
		assert.Equal(t, apperr.InvalidTransition, apperr.CodeOf(err), st)
	}
	assert.Equal(t, 0, f.capacity.Current(tenant, "K1"))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Transitions.WithLabelValues("SENDED", "DELIVERED")))
}

func TestSendWithExplicitCourier(t *testing.T) {
	f := newFixture(t, false)
	f.capacity.AddKitchen(tenant, "K1", 1)
	id := f.submit(t, customer, "K1")
	_, err := f.update(cook, id, "COOKING")
	require.NoError(t, err)

	_, err = f.svc.UpdateOrderStatus(context.Background(), cook, id, domain.UpdateStatusRequest{Status: "SENDED", DeliveryUserID: "courier-9"})
	require.NoError(t, err)
	assert.Equal(t, "courier-9", f.order(t, id).DeliveryUserID)
}

func TestOrderVisibility(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()
	mine := f.submit(t, customer, "")
	theirs := f.submit(t, stranger, "")

	_, err := f.svc.GetOrder(ctx, customer, mine)
	require.NoError(t, err)
	_, err = f.svc.GetOrder(ctx, customer, theirs)
	assert.Equal(t, apperr.Forbidden, apperr.CodeOf(err))
	_, err = f.svc.GetOrder(ctx, cook, theirs)
	require.NoError(t, err)

	list, err := f.svc.ListOrders(ctx, customer, nil, 0)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, mine, list[0].OrderID)

	board, err := f.svc.ListOrders(ctx, admin, nil, 0)
	require.NoError(t, err)
	assert.Len(t, board, 2)

	_, err = f.svc.ListOrders(ctx, admin, []string{"nope"}, 0)
	assert.Equal(t, apperr.BadRequest, apperr.CodeOf(err))

	_, err = f.svc.History(ctx, stranger, mine)
	assert.Equal(t, apperr.Forbidden, apperr.CodeOf(err))
	hist, err := f.svc.History(ctx, customer, mine)
	require.NoError(t, err)
	require.Len(t, hist, 1)
	assert.Equal(t, domain.StatusCreated, hist[0].To)
}
