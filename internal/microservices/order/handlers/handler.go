package handlers

import (
	"github.com/gofiber/fiber/v2"

	"order-platform/internal/common/auth"
	"order-platform/internal/microservices/order/service"
)

type Handler struct {
	OrderHandler *OrderHandler
}

func New(s *service.Service) *Handler {
	return &Handler{
		OrderHandler: NewOrderHandler(s.OrderService),
	}
}

// Routes mounts the order API under r; every route needs a bearer token.
func (h *Handler) Routes(r fiber.Router, v *auth.Verifier) {
	g := r.Group("/orders", v.Middleware())
	g.Post("/", h.OrderHandler.SubmitOrder)
	g.Get("/", h.OrderHandler.ListOrders)
	g.Get("/:id", h.OrderHandler.GetOrder)
	g.Patch("/:id/status", h.OrderHandler.UpdateStatus)
	g.Get("/:id/history", h.OrderHandler.History)
}
