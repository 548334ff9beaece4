package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"order-platform/internal/common/apperr"
	"order-platform/internal/common/postcommit"
	"order-platform/internal/domain"
	"order-platform/internal/microservices/kitchen/repository"
)

type Outcome string

const (
	Admitted Outcome = "ADMITTED"
	Queued   Outcome = "QUEUED"
	// Skipped: the order had already left CREATED, e.g. a redelivered event.
	Skipped Outcome = "SKIPPED"
)

type AdmitResult struct {
	Outcome Outcome
	Order   domain.Order
}

// Admit moves a CREATED order to COOKING when a kitchen has room, otherwise
// to QUEUED with an entry in the waiting queue. Without a kitchen the first
// active kitchen with room, in registration order, takes it.
func (ks *KitchenService) Admit(ctx context.Context, tenantID, orderID, kitchenID, changedBy string) (AdmitResult, error) {
	res, err := ks.admit(ctx, tenantID, orderID, kitchenID, changedBy)
	if err != nil {
		ks.metrics.Admissions.WithLabelValues("error").Inc()
		return AdmitResult{}, err
	}
	ks.metrics.Admissions.WithLabelValues(strings.ToLower(string(res.Outcome))).Inc()
	return res, nil
}

func (ks *KitchenService) admit(ctx context.Context, tenantID, orderID, kitchenID, changedBy string) (AdmitResult, error) {
	o, err := ks.orders.GetOrder(ctx, tenantID, orderID)
	if err != nil {
		return AdmitResult{}, err
	}
	if o.Status != domain.StatusCreated {
		ks.log.Debug("admission_skipped", map[string]any{"tenant_id": tenantID, "order_id": orderID, "status": o.Status})
		return AdmitResult{Outcome: Skipped, Order: o}, nil
	}
	if kitchenID == "" {
		kitchenID = o.KitchenID
	}

	var resv repository.Reservation
	if kitchenID != "" {
		resv, err = ks.capacity.Reserve(ctx, tenantID, kitchenID, orderID)
		if err != nil {
			return AdmitResult{}, err
		}
	} else {
		resv, err = ks.firstFit(ctx, tenantID, orderID)
		if err != nil {
			return AdmitResult{}, err
		}
	}

	if resv.Result == repository.Full {
		return ks.enqueue(ctx, o, kitchenID, changedBy)
	}
	return ks.allocate(ctx, o, resv, domain.StatusCreated, changedBy)
}

// firstFit tries the tenant's kitchens in registration order. A Full result
// with an empty KitchenID means no kitchen had room.
func (ks *KitchenService) firstFit(ctx context.Context, tenantID, orderID string) (repository.Reservation, error) {
	kitchens, err := ks.capacity.ListKitchens(ctx, tenantID)
	if err != nil {
		return repository.Reservation{}, err
	}
	for _, k := range kitchens {
		if !k.HasRoom() {
			continue
		}
		resv, err := ks.capacity.Reserve(ctx, tenantID, k.KitchenID, orderID)
		if errors.Is(err, apperr.ErrKitchenNotFound) {
			continue
		}
		if err != nil {
			return repository.Reservation{}, err
		}
		if resv.Result != repository.Full {
			return resv, nil
		}
	}
	return repository.Reservation{Result: repository.Full}, nil
}

// allocate records the reservation on the order. If the order moved on in
// the meantime a freshly granted unit is given back.
func (ks *KitchenService) allocate(ctx context.Context, o domain.Order, resv repository.Reservation, from domain.Status, changedBy string) (AdmitResult, error) {
	updated, err := ks.orders.TransitionStatus(ctx, domain.StatusChange{
		TenantID:  o.TenantID,
		OrderID:   o.OrderID,
		From:      from,
		To:        domain.StatusCooking,
		ChangedBy: changedBy,
		KitchenID: resv.KitchenID,
		Notes:     "capacity reserved",
	})
	if err != nil {
		if resv.Result == repository.Granted {
			ks.compensate(ctx, o.TenantID, resv.KitchenID, o.OrderID)
		}
		if errors.Is(err, apperr.ErrConflict) {
			cur, gerr := ks.orders.GetOrder(ctx, o.TenantID, o.OrderID)
			if gerr != nil {
				return AdmitResult{}, gerr
			}
			return AdmitResult{Outcome: Skipped, Order: cur}, nil
		}
		return AdmitResult{}, err
	}
	ks.metrics.Transitions.WithLabelValues(string(from), string(domain.StatusCooking)).Inc()
	ks.log.Info("order_admitted", map[string]any{
		"tenant_id": o.TenantID, "order_id": o.OrderID, "kitchen_id": resv.KitchenID, "reservation": resv.Result.String(),
	})

	var hooks postcommit.Hooks
	ks.allocatedHooks(&hooks, &updated)
	ks.runHooks(ctx, hooks)
	return AdmitResult{Outcome: Admitted, Order: updated}, nil
}

// allocatedHooks assigns a chef (best effort) and announces the allocation.
func (ks *KitchenService) allocatedHooks(hooks *postcommit.Hooks, o *domain.Order) {
	hooks.Add("assign_chef", func(ctx context.Context) error {
		chef, err := ks.workers.PickWorker(ctx, o.TenantID, domain.WorkerKitchen)
		if err != nil || chef == "" {
			return err
		}
		if err := ks.orders.AssignChef(ctx, o.TenantID, o.OrderID, chef); err != nil {
			return err
		}
		o.ChefAssigned = chef
		return ks.workers.IncrementProcessed(ctx, o.TenantID, chef)
	})
	hooks.Add("publish_"+domain.EventOrderAllocated, func(ctx context.Context) error {
		return ks.publish(ctx, domain.SourceKitchen, domain.EventOrderAllocated, o.TenantID, domain.OrderAllocatedDetail{
			OrderID:      o.OrderID,
			KitchenID:    o.KitchenID,
			Status:       o.Status,
			ChefAssigned: o.ChefAssigned,
			CreatedBy:    o.CreatedBy,
		})
	})
}

// enqueue parks the order. Status goes first so the queue never holds an
// entry for an order that is not QUEUED; a failed enqueue is rolled back.
func (ks *KitchenService) enqueue(ctx context.Context, o domain.Order, kitchenID, changedBy string) (AdmitResult, error) {
	queued, err := ks.orders.TransitionStatus(ctx, domain.StatusChange{
		TenantID:  o.TenantID,
		OrderID:   o.OrderID,
		From:      domain.StatusCreated,
		To:        domain.StatusQueued,
		ChangedBy: changedBy,
		Notes:     "no kitchen capacity",
	})
	if errors.Is(err, apperr.ErrConflict) {
		cur, gerr := ks.orders.GetOrder(ctx, o.TenantID, o.OrderID)
		if gerr != nil {
			return AdmitResult{}, gerr
		}
		return AdmitResult{Outcome: Skipped, Order: cur}, nil
	}
	if err != nil {
		return AdmitResult{}, err
	}

	entry := domain.QueueEntry{
		TenantID:   o.TenantID,
		KitchenID:  kitchenID,
		OrderID:    o.OrderID,
		Payload:    queued,
		EnqueuedAt: time.Now().UTC(),
	}
	if qerr := ks.queue.Enqueue(ctx, entry); qerr != nil {
		_, cerr := ks.orders.TransitionStatus(ctx, domain.StatusChange{
			TenantID:  o.TenantID,
			OrderID:   o.OrderID,
			From:      domain.StatusQueued,
			To:        domain.StatusCreated,
			ChangedBy: changedBy,
			Notes:     "enqueue failed",
		})
		if cerr != nil {
			ks.log.Error("enqueue_compensation_failed", cerr, map[string]any{"tenant_id": o.TenantID, "order_id": o.OrderID})
		}
		return AdmitResult{}, apperr.Wrap(apperr.QueueUnavailable, "enqueue "+o.OrderID, qerr)
	}
	ks.metrics.Transitions.WithLabelValues(string(domain.StatusCreated), string(domain.StatusQueued)).Inc()
	ks.log.Info("order_queued", map[string]any{"tenant_id": o.TenantID, "order_id": o.OrderID, "kitchen_id": kitchenID})

	var hooks postcommit.Hooks
	ks.emit(&hooks, domain.SourceKitchen, domain.EventOrderQueued, o.TenantID, domain.OrderQueuedDetail{
		OrderID: o.OrderID, KitchenID: kitchenID, Status: domain.StatusQueued, CreatedBy: o.CreatedBy,
	})
	msg := "no kitchen has free capacity"
	if kitchenID != "" {
		msg = "kitchen " + kitchenID + " is at full capacity"
	}
	ks.emit(&hooks, domain.SourceOperations, domain.EventKitchenCapacityAlert, o.TenantID, domain.KitchenCapacityAlertDetail{
		OrderID: o.OrderID, KitchenID: kitchenID, Message: msg,
	})
	ks.runHooks(ctx, hooks)
	return AdmitResult{Outcome: Queued, Order: queued}, nil
}

// Promote is the manual QUEUED -> COOKING edge. Nothing changes when no
// kitchen has room.
func (ks *KitchenService) Promote(ctx context.Context, tenantID, orderID, changedBy string) (domain.Order, error) {
	o, err := ks.orders.GetOrder(ctx, tenantID, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	if o.Status != domain.StatusQueued {
		return domain.Order{}, apperr.Newf(apperr.Conflict, "order %s is %s, not QUEUED", orderID, o.Status)
	}

	var resv repository.Reservation
	if o.KitchenID != "" {
		resv, err = ks.capacity.Reserve(ctx, tenantID, o.KitchenID, orderID)
	} else {
		resv, err = ks.firstFit(ctx, tenantID, orderID)
	}
	if err != nil {
		return domain.Order{}, err
	}
	if resv.Result == repository.Full {
		return domain.Order{}, apperr.Newf(apperr.CapacityExhausted, "no capacity to start order %s", orderID)
	}

	res, err := ks.allocate(ctx, o, resv, domain.StatusQueued, changedBy)
	if err != nil {
		return domain.Order{}, err
	}
	if res.Outcome != Admitted {
		return domain.Order{}, apperr.Newf(apperr.Conflict, "order %s changed concurrently", orderID)
	}
	// the waiting entry stays behind; the drainer drops it lazily
	return res.Order, nil
}

func (ks *KitchenService) OnOrderCreated(ctx context.Context, tenantID, orderID, kitchenID string) (AdmitResult, error) {
	return ks.Admit(ctx, tenantID, orderID, kitchenID, ByAllocator)
}
