package domain

import (
	"time"
)

type SubmitOrderRequest struct {
	KitchenID string         `json:"kitchenId,omitempty"`
	OrderType string         `json:"orderType,omitempty"`
	Items     []OrderItem    `json:"items"`
	Details   map[string]any `json:"details,omitempty"`
}

type SubmitOrderResponse struct {
	OrderID string  `json:"orderId"`
	Status  Status  `json:"status"`
	Total   float64 `json:"total"`
}

type UpdateStatusRequest struct {
	Status         string `json:"status"`
	DeliveryUserID string `json:"deliveryUserId,omitempty"`
}

type UpdateStatusResponse struct {
	OrderID   string `json:"orderId"`
	Status    Status `json:"status"`
	KitchenID string `json:"kitchenId,omitempty"`
}

type CreateKitchenRequest struct {
	KitchenID  string `json:"kitchenId,omitempty"`
	Name       string `json:"name"`
	MaxCooking int    `json:"maxCooking"`
}

// QueueEntry is one order waiting for capacity. An empty KitchenID means any
// kitchen of the tenant may take it.
type QueueEntry struct {
	TenantID   string    `json:"tenantId"`
	KitchenID  string    `json:"kitchenId,omitempty"`
	OrderID    string    `json:"orderId"`
	Payload    Order     `json:"payload"`
	EnqueuedAt time.Time `json:"enqueuedAt"`
}

// Matches reports whether a drain for (tenant, kitchen) may take this entry.
func (q QueueEntry) Matches(tenantID, kitchenID string) bool {
	return q.TenantID == tenantID && (q.KitchenID == "" || q.KitchenID == kitchenID)
}
