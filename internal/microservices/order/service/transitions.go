package service

import (
	"order-platform/internal/common/apperr"
	"order-platform/internal/domain"
)

type edge struct{ from, to domain.Status }

type rule struct {
	roles []domain.Role
	// creator lets the customer who placed the order take the edge.
	creator bool
}

var transitions = map[edge]rule{
	{domain.StatusCreated, domain.StatusCooking}:   {roles: []domain.Role{domain.RoleAdmin, domain.RoleKitchen}},
	{domain.StatusQueued, domain.StatusCooking}:    {roles: []domain.Role{domain.RoleAdmin, domain.RoleKitchen}},
	{domain.StatusCreated, domain.StatusCancelled}: {roles: []domain.Role{domain.RoleAdmin, domain.RoleOwner}, creator: true},
	{domain.StatusQueued, domain.StatusCancelled}:  {roles: []domain.Role{domain.RoleAdmin, domain.RoleOwner}, creator: true},
	{domain.StatusCooking, domain.StatusSended}:    {roles: []domain.Role{domain.RoleAdmin, domain.RoleKitchen}},
	{domain.StatusCooking, domain.StatusCancelled}: {roles: []domain.Role{domain.RoleAdmin, domain.RoleOwner}},
	{domain.StatusSended, domain.StatusDelivered}:  {roles: []domain.Role{domain.RoleAdmin, domain.RoleDelivery}},
}

// ValidateTransition checks the edge first and the actor second, so an
// impossible change is reported as such whoever asks for it.
func ValidateTransition(o domain.Order, to domain.Status, actor domain.Actor) error {
	r, ok := transitions[edge{o.Status, to}]
	if !ok {
		return apperr.Newf(apperr.InvalidTransition, "%s -> %s is not allowed", o.Status, to)
	}
	for _, role := range r.roles {
		if actor.Role == role {
			return nil
		}
	}
	if r.creator && actor.UserID != "" && actor.UserID == o.CreatedBy {
		return nil
	}
	return apperr.Newf(apperr.Forbidden, "role %q may not move an order %s -> %s", actor.Role, o.Status, to)
}
