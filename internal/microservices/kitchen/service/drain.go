package service

import (
	"context"
	"errors"

	"order-platform/internal/common/apperr"
	"order-platform/internal/common/postcommit"
	"order-platform/internal/domain"
	"order-platform/internal/microservices/kitchen/repository"
	"order-platform/internal/waitingqueue"
)

type DrainResult struct {
	Promoted []string
	Skipped  int // stale entries dropped
	Returned int // entries of other tenants or kitchens put back
	Full     bool
}

// OnKitchenSpaceAvailable pulls waiting orders for the kitchen, oldest
// first, and starts them while the kitchen has room.
//
// The waiting queue is shared by every kitchen. Entries that belong to
// someone else are returned at the end of each round; the next round asks
// for that many more so it still reaches deeper into the queue. While they
// were leased a drain of their own kitchen could have missed them, so their
// kitchens are re-announced if they have room.
func (ks *KitchenService) OnKitchenSpaceAvailable(ctx context.Context, tenantID string, d domain.KitchenSpaceAvailableDetail) (DrainResult, error) {
	var res DrainResult
	fields := map[string]any{"tenant_id": tenantID, "kitchen_id": d.KitchenID, "freed_by": d.FreedByOrderID}

	// освобождение, на которое ссылается событие, применяем повторно:
	// для уже снятого резерва это no-op
	if d.FreedByOrderID != "" {
		applied, err := ks.releaseQuiet(ctx, tenantID, d.KitchenID, d.FreedByOrderID)
		if err != nil {
			return res, err
		}
		if applied {
			ks.log.Info("capacity_release_applied_by_drainer", fields)
		}
	}

	self := kitchenRef{tenant: tenantID, kitchen: d.KitchenID}
	returned := map[string]bool{}
	woken := map[kitchenRef]bool{self: true}
	ahead := 0

	for round := 0; round < ks.opts.DrainRounds; round++ {
		wait := ks.opts.DrainWait
		if round > 0 {
			wait = 0
		}
		want := ks.opts.DrainBatch + ahead
		leases, err := ks.queue.Receive(ctx, want, wait)
		if err != nil {
			return res, apperr.Queue("receive waiting entries", err)
		}
		if len(leases) == 0 {
			break
		}

		var foreign []waitingqueue.Lease
		for i, l := range leases {
			if res.Full {
				ks.giveBack(ctx, l)
				continue
			}
			if !l.Entry.Matches(tenantID, d.KitchenID) {
				foreign = append(foreign, l)
				returned[l.Entry.TenantID+"/"+l.Entry.OrderID] = true
				continue
			}
			if err := ks.drainOne(ctx, tenantID, d.KitchenID, l, &res); err != nil {
				for _, rest := range leases[i:] {
					ks.giveBack(ctx, rest)
				}
				ks.returnForeign(ctx, foreign, woken)
				res.Returned = len(returned)
				return res, err
			}
		}
		ks.returnForeign(ctx, foreign, woken)
		ahead = len(foreign)

		if res.Full || len(leases) < want {
			break
		}
	}
	res.Returned = len(returned)

	if len(res.Promoted) > 0 || res.Skipped > 0 {
		fields["promoted"] = res.Promoted
		fields["skipped"] = res.Skipped
		fields["returned"] = res.Returned
		ks.log.Info("queue_drained", fields)
	}
	return res, nil
}

type kitchenRef struct{ tenant, kitchen string }

// returnForeign puts back leases of other kitchens and re-announces every
// kitchen among them that has room. Each kitchen is announced at most once
// per drain.
func (ks *KitchenService) returnForeign(ctx context.Context, leases []waitingqueue.Lease, woken map[kitchenRef]bool) {
	if len(leases) == 0 {
		return
	}
	for _, l := range leases {
		ks.giveBack(ctx, l)
	}

	var hooks postcommit.Hooks
	for _, l := range leases {
		ref := kitchenRef{tenant: l.Entry.TenantID, kitchen: l.Entry.KitchenID}
		if woken[ref] {
			continue
		}
		woken[ref] = true
		k, ok := ks.roomIn(ctx, ref)
		if !ok {
			continue
		}
		kref := kitchenRef{tenant: k.TenantID, kitchen: k.KitchenID}
		if ref.kitchen == "" && woken[kref] {
			continue
		}
		woken[kref] = true
		ks.log.Info("kitchen_space_reannounced", map[string]any{"tenant_id": k.TenantID, "kitchen_id": k.KitchenID, "order_id": l.Entry.OrderID})
		ks.emit(&hooks, domain.SourceKitchen, domain.EventKitchenSpaceAvailable, k.TenantID, domain.KitchenSpaceAvailableDetail{
			KitchenID: k.KitchenID, Released: true,
		})
	}
	ks.runHooks(ctx, hooks)
}

// roomIn finds the kitchen an entry waits for when it has room. Entries
// without a kitchen take the first kitchen of the tenant with room.
func (ks *KitchenService) roomIn(ctx context.Context, ref kitchenRef) (domain.Kitchen, bool) {
	if ref.kitchen != "" {
		k, err := ks.capacity.GetKitchen(ctx, ref.tenant, ref.kitchen)
		if err != nil {
			ks.log.Warn("kitchen_lookup_failed", map[string]any{"tenant_id": ref.tenant, "kitchen_id": ref.kitchen, "error": err.Error()})
			return domain.Kitchen{}, false
		}
		return k, k.HasRoom()
	}
	kitchens, err := ks.capacity.ListKitchens(ctx, ref.tenant)
	if err != nil {
		ks.log.Warn("kitchen_lookup_failed", map[string]any{"tenant_id": ref.tenant, "error": err.Error()})
		return domain.Kitchen{}, false
	}
	for _, k := range kitchens {
		if k.HasRoom() {
			return k, true
		}
	}
	return domain.Kitchen{}, false
}

// drainOne handles a lease that belongs to the kitchen. On error the lease
// is left for the caller to return.
func (ks *KitchenService) drainOne(ctx context.Context, tenantID, kitchenID string, l waitingqueue.Lease, res *DrainResult) error {
	o, err := ks.orders.GetOrder(ctx, l.Entry.TenantID, l.Entry.OrderID)
	if errors.Is(err, apperr.ErrOrderNotFound) {
		ks.ack(ctx, l)
		ks.metrics.Drains.WithLabelValues("dropped").Inc()
		res.Skipped++
		return nil
	}
	if err != nil {
		return err
	}
	if o.Status != domain.StatusQueued {
		// отменён или запущен вручную
		ks.ack(ctx, l)
		ks.metrics.Drains.WithLabelValues("stale").Inc()
		res.Skipped++
		return nil
	}

	resv, err := ks.capacity.Reserve(ctx, tenantID, kitchenID, o.OrderID)
	if err != nil {
		return err
	}
	if resv.Result == repository.Full {
		ks.giveBack(ctx, l)
		ks.metrics.Drains.WithLabelValues("full").Inc()
		res.Full = true
		return nil
	}

	ar, err := ks.allocate(ctx, o, resv, domain.StatusQueued, ByDrainer)
	if err != nil {
		return err
	}
	ks.ack(ctx, l)
	if ar.Outcome != Admitted {
		ks.metrics.Drains.WithLabelValues("stale").Inc()
		res.Skipped++
		return nil
	}
	ks.metrics.Drains.WithLabelValues("promoted").Inc()
	res.Promoted = append(res.Promoted, o.OrderID)
	return nil
}

func (ks *KitchenService) ack(ctx context.Context, l waitingqueue.Lease) {
	if err := ks.queue.Ack(ctx, l); err != nil {
		// запись вернётся в очередь и будет пропущена как устаревшая
		ks.log.Warn("waiting_entry_ack_failed", map[string]any{"order_id": l.Entry.OrderID, "error": err.Error()})
	}
}

func (ks *KitchenService) giveBack(ctx context.Context, l waitingqueue.Lease) {
	ks.metrics.QueueReturns.Inc()
	if err := ks.queue.Return(ctx, l); err != nil {
		ks.log.Warn("waiting_entry_return_failed", map[string]any{"order_id": l.Entry.OrderID, "error": err.Error()})
	}
}
