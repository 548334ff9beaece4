package service

import (
	"context"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	"order-platform/internal/common/apperr"
	"order-platform/internal/common/logger"
	"order-platform/internal/common/metrics"
	"order-platform/internal/common/postcommit"
	"order-platform/internal/domain"
	"order-platform/internal/events"
	kitchenrepo "order-platform/internal/microservices/kitchen/repository"
	kitchensvc "order-platform/internal/microservices/kitchen/service"
	"order-platform/internal/microservices/order/repository"
)

type OrderServiceInterface interface {
	SubmitOrder(ctx context.Context, actor domain.Actor, req domain.SubmitOrderRequest, idemKey string) (domain.SubmitOrderResponse, error)
	UpdateOrderStatus(ctx context.Context, actor domain.Actor, orderID string, req domain.UpdateStatusRequest) (domain.UpdateStatusResponse, error)
	GetOrder(ctx context.Context, actor domain.Actor, orderID string) (domain.Order, error)
	ListOrders(ctx context.Context, actor domain.Actor, statuses []string, limit int) ([]domain.Order, error)
	History(ctx context.Context, actor domain.Actor, orderID string) ([]domain.StatusRecord, error)
}

type Deps struct {
	Orders      repository.OrderRepositoryInterface
	Idempotency repository.IdempotencyStoreInterface
	Workers     kitchenrepo.WorkerRepositoryInterface
	Kitchen     kitchensvc.KitchenServiceInterface
	Bus         events.Publisher
	Hooks       *postcommit.Runner
	Metrics     *metrics.Metrics
	Log         *logger.Logger
}

type OrderService struct {
	orders  repository.OrderRepositoryInterface
	idem    repository.IdempotencyStoreInterface
	workers kitchenrepo.WorkerRepositoryInterface
	kitchen kitchensvc.KitchenServiceInterface
	bus     events.Publisher
	hooks   *postcommit.Runner
	metrics *metrics.Metrics
	log     *logger.Logger
}

func NewOrderService(d Deps) *OrderService {
	if d.Log == nil {
		d.Log = logger.NewNop()
	}
	if d.Metrics == nil {
		d.Metrics = metrics.New()
	}
	if d.Hooks == nil {
		d.Hooks = postcommit.NewRunner(d.Log, 3, 200*time.Millisecond)
	}
	return &OrderService{
		orders:  d.Orders,
		idem:    d.Idempotency,
		workers: d.Workers,
		kitchen: d.Kitchen,
		bus:     d.Bus,
		hooks:   d.Hooks,
		metrics: d.Metrics,
		log:     d.Log,
	}
}

func (s *OrderService) runHooks(ctx context.Context, hooks postcommit.Hooks) {
	if n := s.hooks.Run(ctx, hooks); n > 0 {
		s.metrics.HookFailures.Add(float64(n))
	}
}

func (s *OrderService) SubmitOrder(ctx context.Context, actor domain.Actor, req domain.SubmitOrderRequest, idemKey string) (domain.SubmitOrderResponse, error) {
	// 1. Validation
	if actor.TenantID == "" || actor.UserID == "" {
		return domain.SubmitOrderResponse{}, apperr.New(apperr.Forbidden, "actor without tenant")
	}
	if len(req.Items) == 0 {
		return domain.SubmitOrderResponse{}, apperr.New(apperr.BadRequest, "at least one item is required")
	}
	total := 0.0
	for _, item := range req.Items {
		if strings.TrimSpace(item.Name) == "" && item.MenuItemID == "" {
			return domain.SubmitOrderResponse{}, apperr.New(apperr.BadRequest, "item needs a name or menuItemId")
		}
		if item.Quantity <= 0 {
			return domain.SubmitOrderResponse{}, apperr.Newf(apperr.BadRequest, "invalid quantity for item %s", item.Name)
		}
		if item.Price < 0 {
			return domain.SubmitOrderResponse{}, apperr.Newf(apperr.BadRequest, "invalid price for item %s", item.Name)
		}
		total += float64(item.Quantity) * item.Price
	}
	total = math.Round(total*100) / 100

	orderType := strings.ToUpper(strings.TrimSpace(req.OrderType))
	if orderType == "" {
		orderType = "STORE"
	}
	kitchenID := strings.TrimSpace(req.KitchenID)
	if kitchenID != "" {
		if _, err := s.kitchen.GetKitchen(ctx, actor.TenantID, kitchenID); err != nil {
			return domain.SubmitOrderResponse{}, err
		}
	}

	// 2. Idempotency key
	orderID := "ORD-" + uuid.NewString()
	if idemKey != "" {
		prev, claimed, err := s.idem.Claim(ctx, actor.TenantID, idemKey, orderID)
		if err != nil {
			return domain.SubmitOrderResponse{}, err
		}
		if !claimed {
			o, err := s.orders.GetOrder(ctx, actor.TenantID, prev)
			if err != nil {
				return domain.SubmitOrderResponse{}, err
			}
			s.log.Debug("order_submit_repeated", map[string]any{"tenant_id": actor.TenantID, "order_id": prev})
			return domain.SubmitOrderResponse{OrderID: o.OrderID, Status: o.Status, Total: o.Total}, nil
		}
	}

	// 3. Persist
	now := time.Now().UTC()
	o := domain.Order{
		TenantID:  actor.TenantID,
		OrderID:   orderID,
		Status:    domain.StatusCreated,
		KitchenID: kitchenID,
		Items:     req.Items,
		Total:     total,
		OrderType: orderType,
		Details:   req.Details,
		CreatedBy: actor.UserID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.orders.CreateOrder(ctx, o); err != nil {
		if idemKey != "" {
			if ferr := s.idem.Forget(ctx, actor.TenantID, idemKey); ferr != nil {
				s.log.Warn("idempotency_forget_failed", map[string]any{"tenant_id": actor.TenantID, "key": idemKey, "error": ferr.Error()})
			}
		}
		return domain.SubmitOrderResponse{}, err
	}
	s.log.Info("order_created", map[string]any{"tenant_id": o.TenantID, "order_id": o.OrderID, "kitchen_id": kitchenID, "total": total})

	// 4. Announce; admission happens in the allocator
	var hooks postcommit.Hooks
	hooks.Add("publish_"+domain.EventOrderCreated, func(ctx context.Context) error {
		return events.Emit(ctx, s.bus, domain.SourceOrders, domain.EventOrderCreated, o.TenantID, domain.OrderCreatedDetail{
			OrderID:   o.OrderID,
			KitchenID: o.KitchenID,
			CreatedBy: o.CreatedBy,
			OrderType: o.OrderType,
		})
	})
	s.runHooks(ctx, hooks)

	return domain.SubmitOrderResponse{OrderID: o.OrderID, Status: o.Status, Total: o.Total}, nil
}

func (s *OrderService) UpdateOrderStatus(ctx context.Context, actor domain.Actor, orderID string, req domain.UpdateStatusRequest) (domain.UpdateStatusResponse, error) {
	to, ok := domain.ParseStatus(req.Status)
	if !ok {
		return domain.UpdateStatusResponse{}, apperr.Newf(apperr.BadRequest, "unknown status %q", req.Status)
	}
	o, err := s.orders.GetOrder(ctx, actor.TenantID, orderID)
	if err != nil {
		return domain.UpdateStatusResponse{}, err
	}
	if err := ValidateTransition(o, to, actor); err != nil {
		return domain.UpdateStatusResponse{}, err
	}

	var updated domain.Order
	switch {
	case o.Status == domain.StatusCreated && to == domain.StatusCooking:
		res, err := s.kitchen.Admit(ctx, actor.TenantID, orderID, o.KitchenID, actor.UserID)
		if err != nil {
			return domain.UpdateStatusResponse{}, err
		}
		if res.Outcome == kitchensvc.Skipped {
			return domain.UpdateStatusResponse{}, apperr.Newf(apperr.Conflict, "order %s is already %s", orderID, res.Order.Status)
		}
		updated = res.Order
	case o.Status == domain.StatusQueued && to == domain.StatusCooking:
		if updated, err = s.kitchen.Promote(ctx, actor.TenantID, orderID, actor.UserID); err != nil {
			return domain.UpdateStatusResponse{}, err
		}
	default:
		if updated, err = s.transition(ctx, actor, o, to, req.DeliveryUserID); err != nil {
			return domain.UpdateStatusResponse{}, err
		}
	}

	var hooks postcommit.Hooks
	hooks.Add("publish_"+domain.EventOrderStatusUpdated, func(ctx context.Context) error {
		return events.Emit(ctx, s.bus, domain.SourceOrders, domain.EventOrderStatusUpdated, updated.TenantID, domain.OrderStatusUpdatedDetail{
			OrderID:        updated.OrderID,
			From:           o.Status,
			To:             updated.Status,
			ChangedBy:      actor.UserID,
			KitchenID:      updated.KitchenID,
			DeliveryUserID: updated.DeliveryUserID,
			CreatedBy:      updated.CreatedBy,
		})
	})
	if updated.Status == domain.StatusSended && updated.DeliveryUserID != "" {
		hooks.Add("count_delivery", func(ctx context.Context) error {
			return s.workers.IncrementProcessed(ctx, updated.TenantID, updated.DeliveryUserID)
		})
	}
	s.runHooks(ctx, hooks)

	return domain.UpdateStatusResponse{OrderID: updated.OrderID, Status: updated.Status, KitchenID: updated.KitchenID}, nil
}

// transition applies a plain conditional change and gives the kitchen unit
// back when the order stops cooking.
func (s *OrderService) transition(ctx context.Context, actor domain.Actor, o domain.Order, to domain.Status, deliveryUserID string) (domain.Order, error) {
	ch := domain.StatusChange{
		TenantID:  o.TenantID,
		OrderID:   o.OrderID,
		From:      o.Status,
		To:        to,
		ChangedBy: actor.UserID,
	}
	if to == domain.StatusSended {
		ch.DeliveryUserID = strings.TrimSpace(deliveryUserID)
		if ch.DeliveryUserID == "" {
			courier, err := s.workers.PickWorker(ctx, o.TenantID, domain.WorkerDelivery)
			if err != nil {
				s.log.Warn("delivery_pick_failed", map[string]any{"tenant_id": o.TenantID, "order_id": o.OrderID, "error": err.Error()})
			}
			ch.DeliveryUserID = courier
		}
	}

	updated, err := s.orders.TransitionStatus(ctx, ch)
	if err != nil {
		return domain.Order{}, err
	}
	s.metrics.Transitions.WithLabelValues(string(o.Status), string(to)).Inc()
	s.log.Info("order_status_updated", map[string]any{
		"tenant_id": o.TenantID, "order_id": o.OrderID, "from": o.Status, "to": to, "changed_by": actor.UserID,
	})

	if o.Status.HoldsCapacity() && updated.KitchenID != "" {
		// статус уже закоммичен, ошибку освобождения только логируем
		if err := s.kitchen.Release(ctx, o.TenantID, updated.KitchenID, o.OrderID); err != nil {
			s.log.Error("capacity_release_failed", err, map[string]any{"tenant_id": o.TenantID, "order_id": o.OrderID, "kitchen_id": updated.KitchenID})
		}
	}
	return updated, nil
}

func (s *OrderService) GetOrder(ctx context.Context, actor domain.Actor, orderID string) (domain.Order, error) {
	o, err := s.orders.GetOrder(ctx, actor.TenantID, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	if !actor.IsStaff() && o.CreatedBy != actor.UserID {
		return domain.Order{}, apperr.New(apperr.Forbidden, "not your order")
	}
	return o, nil
}

// ListOrders gives staff the active board oldest first and customers their
// own orders newest first.
func (s *OrderService) ListOrders(ctx context.Context, actor domain.Actor, statuses []string, limit int) ([]domain.Order, error) {
	f := domain.OrderFilter{TenantID: actor.TenantID, Limit: limit}
	for _, raw := range statuses {
		if raw = strings.TrimSpace(raw); raw == "" {
			continue
		}
		st, ok := domain.ParseStatus(raw)
		if !ok {
			return nil, apperr.Newf(apperr.BadRequest, "unknown status %q", raw)
		}
		f.Statuses = append(f.Statuses, st)
	}
	if actor.IsStaff() {
		if len(f.Statuses) == 0 {
			f.Statuses = append([]domain.Status(nil), domain.ActiveStatuses...)
		}
		f.Ascending = true
	} else {
		f.CreatedBy = actor.UserID
	}
	out, err := s.orders.ListOrders(ctx, f)
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = []domain.Order{}
	}
	return out, nil
}

func (s *OrderService) History(ctx context.Context, actor domain.Actor, orderID string) ([]domain.StatusRecord, error) {
	if _, err := s.GetOrder(ctx, actor, orderID); err != nil {
		return nil, err
	}
	out, err := s.orders.History(ctx, actor.TenantID, orderID)
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = []domain.StatusRecord{}
	}
	return out, nil
}
