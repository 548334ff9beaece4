package testkit

import (
	"context"
	"sort"
	"sync"
	"time"

	"order-platform/internal/domain"
	"order-platform/internal/microservices/kitchen/repository"
)

type WorkerStore struct {
	mu      sync.Mutex
	workers map[key]*domain.Worker
}

func NewWorkerStore() *WorkerStore { return &WorkerStore{workers: map[key]*domain.Worker{}} }

func (s *WorkerStore) RegisterOrFail(_ context.Context, tenantID, name, wtype string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.workers[key{tenantID, name}]
	if !ok {
		s.workers[key{tenantID, name}] = &domain.Worker{TenantID: tenantID, Name: name, Type: wtype, Status: "online", LastSeen: time.Now()}
		return false, nil
	}
	w.Type, w.Status, w.LastSeen = wtype, "online", time.Now()
	return false, nil
}

func (s *WorkerStore) SetOffline(_ context.Context, tenantID, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if w, ok := s.workers[key{tenantID, name}]; ok {
		w.Status = "offline"
	}
	return nil
}

func (s *WorkerStore) Heartbeat(_ context.Context, tenantID, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if w, ok := s.workers[key{tenantID, name}]; ok {
		w.LastSeen = time.Now()
	}
	return nil
}

func (s *WorkerStore) PickWorker(_ context.Context, tenantID, wtype string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var best *domain.Worker
	for kk, w := range s.workers {
		if kk.tenant != tenantID || w.Type != wtype || w.Status != "online" {
			continue
		}
		if best == nil || w.OrdersProcessed < best.OrdersProcessed ||
			(w.OrdersProcessed == best.OrdersProcessed && w.Name < best.Name) {
			best = w
		}
	}
	if best == nil {
		return "", nil
	}
	return best.Name, nil
}

func (s *WorkerStore) IncrementProcessed(_ context.Context, tenantID, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if w, ok := s.workers[key{tenantID, name}]; ok {
		w.OrdersProcessed++
	}
	return nil
}

func (s *WorkerStore) ListWorkers(_ context.Context, tenantID string) ([]domain.Worker, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Worker
	for kk, w := range s.workers {
		if kk.tenant == tenantID {
			out = append(out, *w)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

var _ repository.WorkerRepositoryInterface = (*WorkerStore)(nil)
