package domain

import "time"

type Role string

const (
	RoleAdmin    Role = "admin"
	RoleOwner    Role = "owner"
	RoleKitchen  Role = "kitchen"
	RoleDelivery Role = "delivery"
	RoleCustomer Role = "customer"
	// RoleSystem is used by internal workers (allocator, drainer).
	RoleSystem Role = "system"
)

// Actor is whoever asks for a change; taken from the JWT claims.
type Actor struct {
	UserID   string `json:"sub"`
	TenantID string `json:"tenantId"`
	Role     Role   `json:"role"`
}

// IsStaff reports whether the actor works for the tenant.
func (a Actor) IsStaff() bool {
	switch a.Role {
	case RoleAdmin, RoleOwner, RoleKitchen, RoleDelivery, RoleSystem:
		return true
	}
	return false
}

type Kitchen struct {
	TenantID       string    `json:"tenantId"`
	KitchenID      string    `json:"kitchenId"`
	Name           string    `json:"name"`
	MaxCooking     int       `json:"maxCooking"`
	CurrentCooking int       `json:"currentCooking"`
	Active         bool      `json:"active"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// HasRoom is a hint only; Reserve is the authority.
func (k Kitchen) HasRoom() bool { return k.Active && k.CurrentCooking < k.MaxCooking }

type OrderItem struct {
	MenuItemID string  `json:"menuItemId,omitempty"`
	Name       string  `json:"name"`
	Quantity   int     `json:"quantity"`
	Price      float64 `json:"price"`
}

type Order struct {
	TenantID       string         `json:"tenantId"`
	OrderID        string         `json:"orderId"`
	Status         Status         `json:"status"`
	KitchenID      string         `json:"kitchenId,omitempty"`
	Items          []OrderItem    `json:"items"`
	Total          float64        `json:"total"`
	OrderType      string         `json:"orderType"`
	Details        map[string]any `json:"details,omitempty"`
	CreatedBy      string         `json:"createdBy"`
	DeliveryUserID string         `json:"deliveryUserId,omitempty"`
	ChefAssigned   string         `json:"chefAssigned,omitempty"`
	CreatedAt      time.Time      `json:"createdAt"`
	UpdatedAt      time.Time      `json:"updatedAt"`
}

// StatusChange is one conditional transition plus its audit row.
type StatusChange struct {
	TenantID       string
	OrderID        string
	From           Status
	To             Status
	ChangedBy      string
	KitchenID      string // set when non-empty
	DeliveryUserID string // set when non-empty
	Notes          string
}

type StatusRecord struct {
	From      Status    `json:"from"`
	To        Status    `json:"to"`
	ChangedBy string    `json:"changedBy"`
	ChangedAt time.Time `json:"changedAt"`
	Notes     string    `json:"notes,omitempty"`
}

// OrderFilter drives ListOrders.
type OrderFilter struct {
	TenantID  string
	Statuses  []Status
	CreatedBy string
	Ascending bool
	Limit     int
}

type Worker struct {
	TenantID        string    `json:"tenantId"`
	Name            string    `json:"name"`
	Type            string    `json:"type"`
	Status          string    `json:"status"`
	OrdersProcessed int       `json:"ordersProcessed"`
	LastSeen        time.Time `json:"lastSeen"`
}

const (
	WorkerKitchen   = "kitchen"
	WorkerDelivery  = "delivery"
	WorkerAllocator = "allocator"
)
