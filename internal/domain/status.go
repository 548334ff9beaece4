package domain

import "strings"

type Status string

const (
	StatusCreated   Status = "CREATED"
	StatusQueued    Status = "QUEUED"
	StatusCooking   Status = "COOKING"
	StatusSended    Status = "SENDED"
	StatusDelivered Status = "DELIVERED"
	StatusCancelled Status = "CANCELLED"
)

// synonyms accepted from older clients
var statusAliases = map[string]Status{
	"PENDING":   StatusCreated,
	"PREPARING": StatusCooking,
	"READY":     StatusSended,
	"CANCELED":  StatusCancelled,
}

// ParseStatus normalises a client-supplied status to its canonical value.
func ParseStatus(s string) (Status, bool) {
	v := strings.ToUpper(strings.TrimSpace(s))
	if a, ok := statusAliases[v]; ok {
		return a, true
	}
	switch st := Status(v); st {
	case StatusCreated, StatusQueued, StatusCooking, StatusSended, StatusDelivered, StatusCancelled:
		return st, true
	}
	return "", false
}

// HoldsCapacity reports whether an order in this status occupies a kitchen slot.
func (s Status) HoldsCapacity() bool { return s == StatusCooking }

// NeedsKitchen reports whether kitchenId must be set in this status.
func (s Status) NeedsKitchen() bool {
	return s == StatusCooking || s == StatusSended || s == StatusDelivered
}

func (s Status) Terminal() bool { return s == StatusDelivered || s == StatusCancelled }

// ActiveStatuses are the ones staff list views show.
var ActiveStatuses = []Status{StatusCreated, StatusQueued, StatusCooking, StatusSended}
