package testkit

import (
	"context"
	"sort"
	"sync"
	"time"

	"order-platform/internal/common/apperr"
	"order-platform/internal/domain"
	orderrepo "order-platform/internal/microservices/order/repository"
)

type OrderStore struct {
	mu      sync.Mutex
	orders  map[key]*domain.Order
	history map[key][]domain.StatusRecord

	// BeforeTransition, when set, runs before every transition and may
	// fail it; used to inject races and outages.
	BeforeTransition func(ch domain.StatusChange) error
}

func NewOrderStore() *OrderStore {
	return &OrderStore{orders: map[key]*domain.Order{}, history: map[key][]domain.StatusRecord{}}
}

func (s *OrderStore) CreateOrder(_ context.Context, o domain.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := key{o.TenantID, o.OrderID}
	if _, ok := s.orders[k]; ok {
		return apperr.Newf(apperr.Conflict, "order %s exists", o.OrderID)
	}
	if o.CreatedAt.IsZero() {
		o.CreatedAt = time.Now().UTC()
	}
	o.UpdatedAt = o.CreatedAt
	cp := o
	s.orders[k] = &cp
	s.history[k] = append(s.history[k], domain.StatusRecord{To: o.Status, ChangedBy: o.CreatedBy, ChangedAt: o.CreatedAt})
	return nil
}

// Put stores an order as is, without history; handy for fixtures.
func (s *OrderStore) Put(o domain.Order) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := o
	s.orders[key{o.TenantID, o.OrderID}] = &cp
}

func (s *OrderStore) GetOrder(_ context.Context, tenantID, orderID string) (domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[key{tenantID, orderID}]
	if !ok {
		return domain.Order{}, apperr.Newf(apperr.OrderNotFound, "order %s", orderID)
	}
	return *o, nil
}

func (s *OrderStore) TransitionStatus(_ context.Context, ch domain.StatusChange) (domain.Order, error) {
	s.mu.Lock()
	hook := s.BeforeTransition
	s.mu.Unlock()
	if hook != nil {
		if err := hook(ch); err != nil {
			return domain.Order{}, err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	k := key{ch.TenantID, ch.OrderID}
	o, ok := s.orders[k]
	if !ok {
		return domain.Order{}, apperr.Newf(apperr.OrderNotFound, "order %s", ch.OrderID)
	}
	if o.Status != ch.From {
		return domain.Order{}, apperr.Newf(apperr.Conflict, "order %s is no longer %s", ch.OrderID, ch.From)
	}
	o.Status = ch.To
	if ch.KitchenID != "" {
		o.KitchenID = ch.KitchenID
	}
	if ch.DeliveryUserID != "" {
		o.DeliveryUserID = ch.DeliveryUserID
	}
	o.UpdatedAt = time.Now().UTC()
	s.history[k] = append(s.history[k], domain.StatusRecord{
		From: ch.From, To: ch.To, ChangedBy: ch.ChangedBy, ChangedAt: o.UpdatedAt, Notes: ch.Notes,
	})
	return *o, nil
}

// SetStatus forces a status, bypassing the conditional check.
func (s *OrderStore) SetStatus(tenantID, orderID string, st domain.Status) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if o, ok := s.orders[key{tenantID, orderID}]; ok {
		o.Status = st
	}
}

func (s *OrderStore) AssignChef(_ context.Context, tenantID, orderID, chef string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[key{tenantID, orderID}]
	if !ok {
		return apperr.Newf(apperr.OrderNotFound, "order %s", orderID)
	}
	o.ChefAssigned = chef
	return nil
}

func (s *OrderStore) ListOrders(_ context.Context, f domain.OrderFilter) ([]domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	want := map[domain.Status]bool{}
	for _, st := range f.Statuses {
		want[st] = true
	}
	var out []domain.Order
	for k, o := range s.orders {
		if k.tenant != f.TenantID {
			continue
		}
		if len(want) > 0 && !want[o.Status] {
			continue
		}
		if f.CreatedBy != "" && o.CreatedBy != f.CreatedBy {
			continue
		}
		out = append(out, *o)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			if f.Ascending {
				return out[i].CreatedAt.Before(out[j].CreatedAt)
			}
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		if f.Ascending {
			return out[i].OrderID < out[j].OrderID
		}
		return out[i].OrderID > out[j].OrderID
	})
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (s *OrderStore) History(_ context.Context, tenantID, orderID string) ([]domain.StatusRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.StatusRecord(nil), s.history[key{tenantID, orderID}]...), nil
}

var _ orderrepo.OrderRepositoryInterface = (*OrderStore)(nil)

// IdempotencyStore is a map-backed Claim/Forget.
type IdempotencyStore struct {
	mu   sync.Mutex
	keys map[key]string
}

func NewIdempotencyStore() *IdempotencyStore { return &IdempotencyStore{keys: map[key]string{}} }

func (s *IdempotencyStore) Claim(_ context.Context, tenantID, k, orderID string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if prev, ok := s.keys[key{tenantID, k}]; ok {
		return prev, false, nil
	}
	s.keys[key{tenantID, k}] = orderID
	return orderID, true, nil
}

func (s *IdempotencyStore) Forget(_ context.Context, tenantID, k string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.keys, key{tenantID, k})
	return nil
}

var _ orderrepo.IdempotencyStoreInterface = (*IdempotencyStore)(nil)
