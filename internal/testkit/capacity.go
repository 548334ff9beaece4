// Package testkit provides in-memory collaborators for service tests. Each
// store guards its state with one mutex so every method is atomic, which is
// what the Postgres transactions give the real stores.
package testkit

import (
	"context"
	"sort"
	"sync"
	"time"

	"order-platform/internal/common/apperr"
	"order-platform/internal/domain"
	"order-platform/internal/microservices/kitchen/repository"
)

type key struct{ tenant, id string }

type CapacityStore struct {
	mu           sync.Mutex
	kitchens     map[key]*domain.Kitchen
	seq          map[key]int
	next         int
	reservations map[key]string

	// ReleaseErr, when set, fails every Release before touching state.
	ReleaseErr error
	// Peak records the highest current_cooking ever seen per kitchen.
	Peak map[string]int
}

func NewCapacityStore() *CapacityStore {
	return &CapacityStore{
		kitchens:     map[key]*domain.Kitchen{},
		seq:          map[key]int{},
		reservations: map[key]string{},
		Peak:         map[string]int{},
	}
}

// AddKitchen registers a kitchen directly.
func (s *CapacityStore) AddKitchen(tenantID, kitchenID string, max int) {
	_, _ = s.CreateKitchen(context.Background(), domain.Kitchen{TenantID: tenantID, KitchenID: kitchenID, Name: kitchenID, MaxCooking: max, Active: true})
}

func (s *CapacityStore) CreateKitchen(_ context.Context, k domain.Kitchen) (domain.Kitchen, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kk := key{k.TenantID, k.KitchenID}
	if _, ok := s.kitchens[kk]; ok {
		return domain.Kitchen{}, apperr.Newf(apperr.Conflict, "kitchen %s already exists", k.KitchenID)
	}
	now := time.Now().UTC()
	k.CurrentCooking, k.Active, k.CreatedAt, k.UpdatedAt = 0, true, now, now
	s.next++
	s.seq[kk] = s.next
	s.kitchens[kk] = &k
	return k, nil
}

func (s *CapacityStore) GetKitchen(_ context.Context, tenantID, kitchenID string) (domain.Kitchen, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k, ok := s.kitchens[key{tenantID, kitchenID}]
	if !ok {
		return domain.Kitchen{}, apperr.Newf(apperr.KitchenNotFound, "kitchen %s", kitchenID)
	}
	return *k, nil
}

func (s *CapacityStore) ListKitchens(_ context.Context, tenantID string) ([]domain.Kitchen, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Kitchen
	for kk, k := range s.kitchens {
		if kk.tenant == tenantID {
			out = append(out, *k)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return s.seq[key{tenantID, out[i].KitchenID}] < s.seq[key{tenantID, out[j].KitchenID}]
	})
	return out, nil
}

func (s *CapacityStore) Reserve(_ context.Context, tenantID, kitchenID, orderID string) (repository.Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if held, ok := s.reservations[key{tenantID, orderID}]; ok {
		return repository.Reservation{Result: repository.Held, KitchenID: held}, nil
	}
	k, ok := s.kitchens[key{tenantID, kitchenID}]
	if !ok {
		return repository.Reservation{}, apperr.Newf(apperr.KitchenNotFound, "kitchen %s", kitchenID)
	}
	if !k.Active || k.CurrentCooking >= k.MaxCooking {
		return repository.Reservation{Result: repository.Full, KitchenID: kitchenID}, nil
	}
	k.CurrentCooking++
	if k.CurrentCooking > s.Peak[kitchenID] {
		s.Peak[kitchenID] = k.CurrentCooking
	}
	s.reservations[key{tenantID, orderID}] = kitchenID
	return repository.Reservation{Result: repository.Granted, KitchenID: kitchenID}, nil
}

func (s *CapacityStore) Release(_ context.Context, tenantID, kitchenID, orderID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ReleaseErr != nil {
		return false, s.ReleaseErr
	}
	held, ok := s.reservations[key{tenantID, orderID}]
	if !ok {
		return false, nil
	}
	delete(s.reservations, key{tenantID, orderID})
	k, ok := s.kitchens[key{tenantID, held}]
	if !ok || k.CurrentCooking == 0 {
		return false, nil
	}
	k.CurrentCooking--
	return true, nil
}

// Current returns current_cooking of a kitchen, -1 if unknown.
func (s *CapacityStore) Current(tenantID, kitchenID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if k, ok := s.kitchens[key{tenantID, kitchenID}]; ok {
		return k.CurrentCooking
	}
	return -1
}

// Holds reports whether the order holds a unit.
func (s *CapacityStore) Holds(tenantID, orderID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.reservations[key{tenantID, orderID}]
	return ok
}

func (s *CapacityStore) SetFailRelease(err error) {
	s.mu.Lock()
	s.ReleaseErr = err
	s.mu.Unlock()
}

var _ repository.CapacityRepositoryInterface = (*CapacityStore)(nil)
