package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"order-platform/internal/common/logger"
	"order-platform/internal/common/metrics"
	"order-platform/internal/common/postcommit"
	"order-platform/internal/domain"
	kitchensvc "order-platform/internal/microservices/kitchen/service"
	"order-platform/internal/testkit"
	"order-platform/internal/waitingqueue"
)

const tenant = "t1"

var (
	admin    = domain.Actor{UserID: "admin-1", TenantID: tenant, Role: domain.RoleAdmin}
	cook     = domain.Actor{UserID: "cook-1", TenantID: tenant, Role: domain.RoleKitchen}
	courier  = domain.Actor{UserID: "courier-1", TenantID: tenant, Role: domain.RoleDelivery}
	customer = domain.Actor{UserID: "cust-1", TenantID: tenant, Role: domain.RoleCustomer}
	stranger = domain.Actor{UserID: "cust-2", TenantID: tenant, Role: domain.RoleCustomer}
)

type fixture struct {
	svc      *OrderService
	kitchen  *kitchensvc.KitchenService
	capacity *testkit.CapacityStore
	orders   *testkit.OrderStore
	workers  *testkit.WorkerStore
	queue    *waitingqueue.Memory
	bus      *testkit.Bus
	metrics  *metrics.Metrics
}

// newFixture wires the order service to a real kitchen service. With
// allocator set, OrderCreated and KitchenSpaceAvailable are handled inline
// the way the allocator worker handles them from the broker.
func newFixture(t *testing.T, allocator bool) *fixture {
	t.Helper()
	log := logger.NewNop()
	f := &fixture{
		capacity: testkit.NewCapacityStore(),
		orders:   testkit.NewOrderStore(),
		workers:  testkit.NewWorkerStore(),
		queue:    waitingqueue.NewMemory(time.Minute),
		bus:      testkit.NewBus(),
		metrics:  metrics.New(),
	}
	hooks := postcommit.NewRunner(log, 3, 0)
	f.kitchen = kitchensvc.NewKitchenService(kitchensvc.Deps{
		Capacity: f.capacity,
		Workers:  f.workers,
		Orders:   f.orders,
		Queue:    f.queue,
		Bus:      f.bus,
		Hooks:    hooks,
		Metrics:  f.metrics,
		Log:      log,
	}, kitchensvc.Options{DrainBatch: 2, DrainRounds: 5})
	f.svc = NewOrderService(Deps{
		Orders:      f.orders,
		Idempotency: testkit.NewIdempotencyStore(),
		Workers:     f.workers,
		Kitchen:     f.kitchen,
		Bus:         f.bus,
		Hooks:       hooks,
		Metrics:     f.metrics,
		Log:         log,
	})
	if allocator {
		a := kitchensvc.NewAllocator(f.kitchen, f.workers, nil, log, "alloc-test", 1, 0)
		f.bus.Subscribe(func(ctx context.Context, ev domain.Event) error {
			body, err := json.Marshal(ev)
			if err != nil {
				return err
			}
			return a.Handle(ctx, body)
		})
	}
	return f
}

func pizza(kitchenID string) domain.SubmitOrderRequest {
	return domain.SubmitOrderRequest{
		KitchenID: kitchenID,
		Items:     []domain.OrderItem{{Name: "margherita", Quantity: 2, Price: 7.5}},
	}
}

func (f *fixture) submit(t *testing.T, actor domain.Actor, kitchenID string) string {
	t.Helper()
	resp, err := f.svc.SubmitOrder(context.Background(), actor, pizza(kitchenID), "")
	require.NoError(t, err)
	return resp.OrderID
}

func (f *fixture) order(t *testing.T, id string) domain.Order {
	t.Helper()
	o, err := f.orders.GetOrder(context.Background(), tenant, id)
	require.NoError(t, err)
	return o
}

func (f *fixture) update(actor domain.Actor, id, status string) (domain.UpdateStatusResponse, error) {
	return f.svc.UpdateOrderStatus(context.Background(), actor, id, domain.UpdateStatusRequest{Status: status})
}
