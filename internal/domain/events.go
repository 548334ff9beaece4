package domain

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const (
	SourceOrders     = "orders"
	SourceKitchen    = "kitchen"
	SourceOperations = "operations"
)

const (
	EventOrderCreated          = "OrderCreated"
	EventOrderAllocated        = "OrderAllocated"
	EventOrderQueued           = "OrderQueued"
	EventKitchenSpaceAvailable = "KitchenSpaceAvailable"
	EventOrderStatusUpdated    = "OrderStatusUpdated"
	EventKitchenCapacityAlert  = "KitchenCapacityAlert"
)

// Event is the envelope published on the bus. Detail holds one of the
// *Detail structs below.
type Event struct {
	ID         string          `json:"id"`
	Source     string          `json:"source"`
	Type       string          `json:"type"`
	TenantID   string          `json:"tenantId"`
	OccurredAt time.Time       `json:"occurredAt"`
	Detail     json.RawMessage `json:"detail"`
}

func NewEvent(source, typ, tenantID string, detail any) (Event, error) {
	b, err := json.Marshal(detail)
	if err != nil {
		return Event{}, fmt.Errorf("marshal %s detail: %w", typ, err)
	}
	return Event{
		ID:         uuid.NewString(),
		Source:     source,
		Type:       typ,
		TenantID:   tenantID,
		OccurredAt: time.Now().UTC(),
		Detail:     b,
	}, nil
}

// RoutingKey is "<source>.<type>", used as the topic key.
func (e Event) RoutingKey() string { return e.Source + "." + e.Type }

func (e Event) Decode(v any) error {
	if len(e.Detail) == 0 {
		return fmt.Errorf("event %s has no detail", e.Type)
	}
	return json.Unmarshal(e.Detail, v)
}

// OrderID extracts the order id common to most details, empty if none.
func (e Event) OrderID() string {
	var d struct {
		OrderID string `json:"orderId"`
	}
	_ = json.Unmarshal(e.Detail, &d)
	return d.OrderID
}

// Creator is the createdBy of the order the event is about, empty if the
// event carries none.
func (e Event) Creator() string {
	var d struct {
		CreatedBy string `json:"createdBy"`
	}
	_ = json.Unmarshal(e.Detail, &d)
	return d.CreatedBy
}

type OrderCreatedDetail struct {
	OrderID   string `json:"orderId"`
	KitchenID string `json:"kitchenId,omitempty"`
	CreatedBy string `json:"createdBy"`
	OrderType string `json:"orderType"`
}

type OrderAllocatedDetail struct {
	OrderID      string `json:"orderId"`
	KitchenID    string `json:"kitchenId"`
	Status       Status `json:"status"`
	ChefAssigned string `json:"chefAssigned,omitempty"`
	CreatedBy    string `json:"createdBy,omitempty"`
}

type OrderQueuedDetail struct {
	OrderID   string `json:"orderId"`
	KitchenID string `json:"kitchenId,omitempty"`
	Status    Status `json:"status"`
	CreatedBy string `json:"createdBy,omitempty"`
}

type KitchenSpaceAvailableDetail struct {
	KitchenID      string `json:"kitchenId"`
	FreedByOrderID string `json:"freedByOrderId,omitempty"`
	// Released is false when the releaser could not apply the decrement;
	// the drainer applies it then.
	Released bool `json:"released"`
}

type OrderStatusUpdatedDetail struct {
	OrderID        string `json:"orderId"`
	From           Status `json:"from"`
	To             Status `json:"to"`
	ChangedBy      string `json:"changedBy"`
	KitchenID      string `json:"kitchenId,omitempty"`
	DeliveryUserID string `json:"deliveryUserId,omitempty"`
	CreatedBy      string `json:"createdBy,omitempty"`
}

type KitchenCapacityAlertDetail struct {
	OrderID   string `json:"orderId"`
	KitchenID string `json:"kitchenId,omitempty"`
	Message   string `json:"message"`
}
