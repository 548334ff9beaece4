package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"order-platform/internal/common/logger"
	"order-platform/internal/common/metrics"
	"order-platform/internal/common/postcommit"
	"order-platform/internal/domain"
	"order-platform/internal/testkit"
	"order-platform/internal/waitingqueue"
)

const tenant = "t1"

type fixture struct {
	svc      *KitchenService
	capacity *testkit.CapacityStore
	orders   *testkit.OrderStore
	workers  *testkit.WorkerStore
	queue    *waitingqueue.Memory
	bus      *testkit.Bus
	metrics  *metrics.Metrics
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		capacity: testkit.NewCapacityStore(),
		orders:   testkit.NewOrderStore(),
		workers:  testkit.NewWorkerStore(),
		queue:    waitingqueue.NewMemory(time.Minute),
		bus:      testkit.NewBus(),
		metrics:  metrics.New(),
	}
	f.svc = f.build(f.queue)
	return f
}

func (f *fixture) build(q waitingqueue.Queue) *KitchenService {
	log := logger.NewNop()
	return NewKitchenService(Deps{
		Capacity: f.capacity,
		Workers:  f.workers,
		Orders:   f.orders,
		Queue:    q,
		Bus:      f.bus,
		Hooks:    postcommit.NewRunner(log, 3, 0),
		Metrics:  f.metrics,
		Log:      log,
	}, Options{DrainBatch: 2, DrainRounds: 5})
}

// newOrder stores a CREATED order and returns its id.
func (f *fixture) newOrder(t *testing.T, id, kitchenID string) string {
	t.Helper()
	require.NoError(t, f.orders.CreateOrder(context.Background(), domain.Order{
		TenantID:  tenant,
		OrderID:   id,
		Status:    domain.StatusCreated,
		KitchenID: kitchenID,
		Items:     []domain.OrderItem{{Name: "pizza", Quantity: 1, Price: 10}},
		Total:     10,
		OrderType: "STORE",
		CreatedBy: "customer-1",
	}))
	return id
}

func (f *fixture) admit(t *testing.T, id, kitchenID string) AdmitResult {
	t.Helper()
	f.newOrder(t, id, kitchenID)
	res, err := f.svc.Admit(context.Background(), tenant, id, kitchenID, ByAllocator)
	require.NoError(t, err)
	return res
}

func (f *fixture) status(t *testing.T, id string) domain.Status {
	t.Helper()
	o, err := f.orders.GetOrder(context.Background(), tenant, id)
	require.NoError(t, err)
	return o.Status
}

// leave moves a cooking order to SENDED the way the order service does
// before releasing.
func (f *fixture) leave(t *testing.T, id string) {
	t.Helper()
	_, err := f.orders.TransitionStatus(context.Background(), domain.StatusChange{
		TenantID: tenant, OrderID: id, From: domain.StatusCooking, To: domain.StatusSended, ChangedBy: "kitchen-1",
	})
	require.NoError(t, err)
}

func ids(prefix string, n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("%s%02d", prefix, i)
	}
	return out
}
