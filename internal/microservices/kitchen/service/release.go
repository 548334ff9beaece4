package service

import (
	"context"

	"order-platform/internal/common/postcommit"
	"order-platform/internal/domain"
)

// Release gives back the unit an order held when it leaves COOKING and
// announces the free slot. A repeated release is logged and swallowed. If
// the store fails the event still goes out with Released=false so the
// drainer can apply the release later; the error is returned for logging.
func (ks *KitchenService) Release(ctx context.Context, tenantID, kitchenID, orderID string) error {
	released, err := ks.capacity.Release(ctx, tenantID, kitchenID, orderID)
	fields := map[string]any{"tenant_id": tenantID, "kitchen_id": kitchenID, "order_id": orderID}

	var hooks postcommit.Hooks
	switch {
	case err != nil:
		ks.metrics.Releases.WithLabelValues("error").Inc()
		ks.log.Error("capacity_release_failed", err, fields)
		ks.emit(&hooks, domain.SourceKitchen, domain.EventKitchenSpaceAvailable, tenantID, domain.KitchenSpaceAvailableDetail{
			KitchenID: kitchenID, FreedByOrderID: orderID, Released: false,
		})
	case !released:
		ks.metrics.Releases.WithLabelValues("duplicate").Inc()
		ks.log.Warn("capacity_release_duplicate", fields)
		return nil
	default:
		ks.metrics.Releases.WithLabelValues("released").Inc()
		ks.log.Info("capacity_released", fields)
		ks.emit(&hooks, domain.SourceKitchen, domain.EventKitchenSpaceAvailable, tenantID, domain.KitchenSpaceAvailableDetail{
			KitchenID: kitchenID, FreedByOrderID: orderID, Released: true,
		})
	}
	ks.runHooks(ctx, hooks)
	return err
}

// releaseQuiet applies a release without announcing it.
func (ks *KitchenService) releaseQuiet(ctx context.Context, tenantID, kitchenID, orderID string) (bool, error) {
	released, err := ks.capacity.Release(ctx, tenantID, kitchenID, orderID)
	if err != nil {
		return false, err
	}
	if released {
		ks.metrics.Releases.WithLabelValues("released").Inc()
	}
	return released, nil
}

// compensate undoes a reservation whose status update was lost to a race.
func (ks *KitchenService) compensate(ctx context.Context, tenantID, kitchenID, orderID string) {
	fields := map[string]any{"tenant_id": tenantID, "kitchen_id": kitchenID, "order_id": orderID}
	if _, err := ks.releaseQuiet(ctx, tenantID, kitchenID, orderID); err != nil {
		ks.log.Error("reservation_compensation_failed", err, fields)
		return
	}
	ks.log.Warn("reservation_compensated", fields)
}
