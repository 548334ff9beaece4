package service

import (
	"context"
	"encoding/json"

	"order-platform/internal/common/apperr"
	"order-platform/internal/domain"
	orderrepo "order-platform/internal/microservices/order/repository"
	"order-platform/internal/microservices/tracker/models"
	"order-platform/internal/microservices/tracker/repository"
)

type TrackerServiceInterface interface {
	Apply(ctx context.Context, ev domain.Event) (bool, error)
	GetOrderStatus(ctx context.Context, actor domain.Actor, orderID string) (models.OrderStatusView, error)
	GetOrderTimeline(ctx context.Context, actor domain.Actor, orderID string, limit, offset int) ([]models.TimelineEvent, error)
}

type TrackerService struct {
	repo   repository.TrackerRepoInterface
	orders orderrepo.OrderRepositoryInterface
}

func NewTrackerService(repo repository.TrackerRepoInterface, orders orderrepo.OrderRepositoryInterface) *TrackerService {
	return &TrackerService{repo: repo, orders: orders}
}

// Apply appends an order-scoped event to the timeline. Events that name no
// order (capacity notices) are not part of any timeline.
func (s *TrackerService) Apply(ctx context.Context, ev domain.Event) (bool, error) {
	orderID := ev.OrderID()
	if orderID == "" {
		return false, nil
	}
	var payload map[string]any
	if len(ev.Detail) > 0 {
		if err := json.Unmarshal(ev.Detail, &payload); err != nil {
			return false, apperr.Wrap(apperr.BadRequest, "event detail", err)
		}
	}
	return s.repo.AppendEvent(ctx, models.TimelineEvent{
		EventID:    ev.ID,
		TenantID:   ev.TenantID,
		OrderID:    orderID,
		EventType:  ev.RoutingKey(),
		Payload:    payload,
		OccurredAt: ev.OccurredAt,
	})
}

func (s *TrackerService) visible(ctx context.Context, actor domain.Actor, orderID string) (domain.Order, error) {
	o, err := s.orders.GetOrder(ctx, actor.TenantID, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	if !actor.IsStaff() && o.CreatedBy != actor.UserID {
		return domain.Order{}, apperr.New(apperr.Forbidden, "not your order")
	}
	return o, nil
}

func (s *TrackerService) GetOrderStatus(ctx context.Context, actor domain.Actor, orderID string) (models.OrderStatusView, error) {
	o, err := s.visible(ctx, actor, orderID)
	if err != nil {
		return models.OrderStatusView{}, err
	}
	return models.OrderStatusView{OrderID: o.OrderID, Status: string(o.Status), KitchenID: o.KitchenID, UpdatedAt: o.UpdatedAt}, nil
}

func (s *TrackerService) GetOrderTimeline(ctx context.Context, actor domain.Actor, orderID string, limit, offset int) ([]models.TimelineEvent, error) {
	if _, err := s.visible(ctx, actor, orderID); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return s.repo.GetOrderTimeline(ctx, actor.TenantID, orderID, limit, offset)
}
