package models

import "time"

// TimelineEvent is one entry of an order's audit timeline.
type TimelineEvent struct {
	EventID    string         `json:"eventId"`
	TenantID   string         `json:"tenantId"`
	OrderID    string         `json:"orderId"`
	EventType  string         `json:"eventType"` // routing key, e.g. "kitchen.OrderAllocated"
	Payload    map[string]any `json:"payload"`
	OccurredAt time.Time      `json:"occurredAt"`
}

// OrderStatusView is what GET .../status answers with.
type OrderStatusView struct {
	OrderID   string    `json:"orderId"`
	Status    string    `json:"status"`
	KitchenID string    `json:"kitchenId,omitempty"`
	UpdatedAt time.Time `json:"updatedAt"`
}
