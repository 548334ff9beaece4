package handler

import (
	"github.com/gofiber/fiber/v2"

	"order-platform/internal/common/auth"
	"order-platform/internal/microservices/tracker/service"
)

type Handler struct {
	TrackerHandler *TrackerHandler
}

func New(svc service.TrackerServiceInterface) *Handler {
	return &Handler{
		TrackerHandler: NewTrackerHandler(svc),
	}
}

func (h *Handler) Routes(r fiber.Router, v *auth.Verifier) {
	g := r.Group("/tracking/orders", v.Middleware())
	g.Get("/:id/status", h.TrackerHandler.GetStatus)
	g.Get("/:id/timeline", h.TrackerHandler.GetTimeline)
}
