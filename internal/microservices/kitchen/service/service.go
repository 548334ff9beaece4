package service

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"order-platform/internal/common/apperr"
	"order-platform/internal/common/logger"
	"order-platform/internal/common/metrics"
	"order-platform/internal/common/postcommit"
	"order-platform/internal/domain"
	"order-platform/internal/events"
	"order-platform/internal/microservices/kitchen/repository"
	orderrepo "order-platform/internal/microservices/order/repository"
	"order-platform/internal/waitingqueue"
)

// changedBy values for transitions made by the workflow itself.
const (
	ByAllocator = "kitchen-allocator"
	ByDrainer   = "queue-drainer"
)

type KitchenServiceInterface interface {
	Admit(ctx context.Context, tenantID, orderID, kitchenID, changedBy string) (AdmitResult, error)
	Promote(ctx context.Context, tenantID, orderID, changedBy string) (domain.Order, error)
	Release(ctx context.Context, tenantID, kitchenID, orderID string) error
	OnKitchenSpaceAvailable(ctx context.Context, tenantID string, d domain.KitchenSpaceAvailableDetail) (DrainResult, error)
	OnOrderCreated(ctx context.Context, tenantID, orderID, kitchenID string) (AdmitResult, error)

	CreateKitchen(ctx context.Context, actor domain.Actor, req domain.CreateKitchenRequest) (domain.Kitchen, error)
	GetKitchen(ctx context.Context, tenantID, kitchenID string) (domain.Kitchen, error)
	ListKitchens(ctx context.Context, tenantID string) ([]domain.Kitchen, error)
	CheckIn(ctx context.Context, actor domain.Actor) error
	CheckOut(ctx context.Context, actor domain.Actor) error
	ListWorkers(ctx context.Context, tenantID string) ([]domain.Worker, error)
}

type Options struct {
	DefaultMaxCooking int
	DrainBatch        int
	DrainWait         time.Duration
	DrainRounds       int
}

type Deps struct {
	Capacity repository.CapacityRepositoryInterface
	Workers  repository.WorkerRepositoryInterface
	Orders   orderrepo.OrderRepositoryInterface
	Queue    waitingqueue.Queue
	Bus      events.Publisher
	Hooks    *postcommit.Runner
	Metrics  *metrics.Metrics
	Log      *logger.Logger
}

type KitchenService struct {
	capacity repository.CapacityRepositoryInterface
	workers  repository.WorkerRepositoryInterface
	orders   orderrepo.OrderRepositoryInterface
	queue    waitingqueue.Queue
	bus      events.Publisher
	hooks    *postcommit.Runner
	metrics  *metrics.Metrics
	log      *logger.Logger
	opts     Options
}

func NewKitchenService(d Deps, opts Options) *KitchenService {
	if opts.DefaultMaxCooking <= 0 {
		opts.DefaultMaxCooking = 5
	}
	if opts.DrainBatch <= 0 {
		opts.DrainBatch = 10
	}
	if opts.DrainRounds <= 0 {
		opts.DrainRounds = 5
	}
	if d.Log == nil {
		d.Log = logger.NewNop()
	}
	if d.Metrics == nil {
		d.Metrics = metrics.New()
	}
	if d.Hooks == nil {
		d.Hooks = postcommit.NewRunner(d.Log, 3, 200*time.Millisecond)
	}
	return &KitchenService{
		capacity: d.Capacity,
		workers:  d.Workers,
		orders:   d.Orders,
		queue:    d.Queue,
		bus:      d.Bus,
		hooks:    d.Hooks,
		metrics:  d.Metrics,
		log:      d.Log,
		opts:     opts,
	}
}

func (ks *KitchenService) runHooks(ctx context.Context, hooks postcommit.Hooks) {
	if n := ks.hooks.Run(ctx, hooks); n > 0 {
		ks.metrics.HookFailures.Add(float64(n))
	}
}

func (ks *KitchenService) publish(ctx context.Context, source, typ, tenantID string, detail any) error {
	return events.Emit(ctx, ks.bus, source, typ, tenantID, detail)
}

func (ks *KitchenService) emit(hooks *postcommit.Hooks, source, typ, tenantID string, detail any) {
	hooks.Add("publish_"+typ, func(ctx context.Context) error {
		return ks.publish(ctx, source, typ, tenantID, detail)
	})
}

func (ks *KitchenService) CreateKitchen(ctx context.Context, actor domain.Actor, req domain.CreateKitchenRequest) (domain.Kitchen, error) {
	if actor.Role != domain.RoleAdmin && actor.Role != domain.RoleOwner {
		return domain.Kitchen{}, apperr.New(apperr.Forbidden, "only admin or owner may register kitchens")
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return domain.Kitchen{}, apperr.New(apperr.BadRequest, "name is required")
	}
	if req.MaxCooking < 0 {
		return domain.Kitchen{}, apperr.New(apperr.BadRequest, "maxCooking must be positive")
	}
	k := domain.Kitchen{
		TenantID:   actor.TenantID,
		KitchenID:  strings.TrimSpace(req.KitchenID),
		Name:       name,
		MaxCooking: req.MaxCooking,
		Active:     true,
	}
	if k.KitchenID == "" {
		k.KitchenID = "KIT-" + uuid.NewString()[:8]
	}
	if k.MaxCooking == 0 {
		k.MaxCooking = ks.opts.DefaultMaxCooking
	}
	out, err := ks.capacity.CreateKitchen(ctx, k)
	if err != nil {
		return domain.Kitchen{}, err
	}
	ks.log.Info("kitchen_registered", map[string]any{"tenant_id": out.TenantID, "kitchen_id": out.KitchenID, "max_cooking": out.MaxCooking})
	return out, nil
}

func (ks *KitchenService) GetKitchen(ctx context.Context, tenantID, kitchenID string) (domain.Kitchen, error) {
	return ks.capacity.GetKitchen(ctx, tenantID, kitchenID)
}

func (ks *KitchenService) ListKitchens(ctx context.Context, tenantID string) ([]domain.Kitchen, error) {
	return ks.capacity.ListKitchens(ctx, tenantID)
}

func workerType(r domain.Role) (string, bool) {
	switch r {
	case domain.RoleKitchen:
		return domain.WorkerKitchen, true
	case domain.RoleDelivery:
		return domain.WorkerDelivery, true
	}
	return "", false
}

// CheckIn puts a kitchen or delivery worker on shift so assignments can
// pick them.
func (ks *KitchenService) CheckIn(ctx context.Context, actor domain.Actor) error {
	wtype, ok := workerType(actor.Role)
	if !ok {
		return apperr.New(apperr.Forbidden, "only kitchen or delivery staff check in")
	}
	if _, err := ks.workers.RegisterOrFail(ctx, actor.TenantID, actor.UserID, wtype); err != nil {
		return err
	}
	ks.log.Info("worker_registered", map[string]any{"tenant_id": actor.TenantID, "name": actor.UserID, "type": wtype})
	return nil
}

func (ks *KitchenService) CheckOut(ctx context.Context, actor domain.Actor) error {
	if _, ok := workerType(actor.Role); !ok {
		return apperr.New(apperr.Forbidden, "only kitchen or delivery staff check out")
	}
	return ks.workers.SetOffline(ctx, actor.TenantID, actor.UserID)
}

func (ks *KitchenService) ListWorkers(ctx context.Context, tenantID string) ([]domain.Worker, error) {
	return ks.workers.ListWorkers(ctx, tenantID)
}
