package service

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"order-platform/internal/common/logger"
	"order-platform/internal/domain"
)

// Conn is the part of a websocket connection the hub writes to.
type Conn interface {
	WriteJSON(v any) error
	Close() error
}

// Push is the message shape clients receive.
type Push struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// Audience narrows a broadcast. Staff receive everything; anyone else only
// events about orders they created.
type Audience struct {
	Creator   string
	StaffOnly bool
}

func (a Audience) admits(actor domain.Actor) bool {
	if actor.IsStaff() {
		return true
	}
	return !a.StaffOnly && a.Creator != "" && a.Creator == actor.UserID
}

type client struct {
	conn    Conn
	actor   domain.Actor
	writeMu sync.Mutex
}

// Hub holds this process's push connections grouped by tenant.
type Hub struct {
	mu       sync.RWMutex
	tenants  map[string]map[string]*client
	registry Registry
	gauge    prometheus.Gauge
	instance string
	log      *logger.Logger
}

func NewHub(registry Registry, gauge prometheus.Gauge, instance string, log *logger.Logger) *Hub {
	return &Hub{
		tenants:  map[string]map[string]*client{},
		registry: registry,
		gauge:    gauge,
		instance: instance,
		log:      log,
	}
}

func (h *Hub) member(id string) string { return h.instance + ":" + id }

// Register adds conn under the actor's tenant and returns its id.
func (h *Hub) Register(ctx context.Context, actor domain.Actor, conn Conn) string {
	id := uuid.NewString()
	tenantID := actor.TenantID
	h.mu.Lock()
	if h.tenants[tenantID] == nil {
		h.tenants[tenantID] = map[string]*client{}
	}
	h.tenants[tenantID][id] = &client{conn: conn, actor: actor}
	h.mu.Unlock()

	h.gauge.Inc()
	if err := h.registry.Add(ctx, tenantID, h.member(id)); err != nil {
		h.log.Warn("ws_registry_add_failed", map[string]any{"tenant_id": tenantID, "error": err.Error()})
	}
	h.log.Debug("ws_connected", map[string]any{"tenant_id": tenantID, "conn_id": id, "user_id": actor.UserID, "role": actor.Role})
	return id
}

// Unregister drops the connection; unknown ids are ignored.
func (h *Hub) Unregister(ctx context.Context, tenantID, id string) {
	h.mu.Lock()
	cl, ok := h.tenants[tenantID][id]
	if ok {
		delete(h.tenants[tenantID], id)
		if len(h.tenants[tenantID]) == 0 {
			delete(h.tenants, tenantID)
		}
	}
	h.mu.Unlock()
	if !ok {
		return
	}

	_ = cl.conn.Close()
	h.gauge.Dec()
	if err := h.registry.Remove(ctx, tenantID, h.member(id)); err != nil {
		h.log.Warn("ws_registry_remove_failed", map[string]any{"tenant_id": tenantID, "error": err.Error()})
	}
}

// Broadcast writes msg to the tenant's connections the audience admits and
// drops those that fail. It returns how many received it.
func (h *Hub) Broadcast(ctx context.Context, tenantID string, aud Audience, msg any) int {
	h.mu.RLock()
	targets := make(map[string]*client, len(h.tenants[tenantID]))
	for id, cl := range h.tenants[tenantID] {
		if aud.admits(cl.actor) {
			targets[id] = cl
		}
	}
	h.mu.RUnlock()

	sent := 0
	var stale []string
	for id, cl := range targets {
		cl.writeMu.Lock()
		err := cl.conn.WriteJSON(msg)
		cl.writeMu.Unlock()
		if err != nil {
			stale = append(stale, id)
			continue
		}
		sent++
	}
	for _, id := range stale {
		h.log.Debug("ws_stale_removed", map[string]any{"tenant_id": tenantID, "conn_id": id})
		h.Unregister(ctx, tenantID, id)
	}
	return sent
}

// Count is the number of local connections of a tenant.
func (h *Hub) Count(tenantID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.tenants[tenantID])
}

// Close drops every connection, used on shutdown.
func (h *Hub) Close(ctx context.Context) {
	h.mu.RLock()
	all := map[string][]string{}
	for tenantID, conns := range h.tenants {
		for id := range conns {
			all[tenantID] = append(all[tenantID], id)
		}
	}
	h.mu.RUnlock()
	for tenantID, ids := range all {
		for _, id := range ids {
			h.Unregister(ctx, tenantID, id)
		}
	}
}
