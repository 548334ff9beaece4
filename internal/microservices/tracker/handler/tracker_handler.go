package handler

import (
	"github.com/gofiber/fiber/v2"

	"order-platform/internal/common/auth"
	"order-platform/internal/common/httpx"
	"order-platform/internal/microservices/tracker/service"
)

type TrackerHandler struct {
	service service.TrackerServiceInterface
}

func NewTrackerHandler(svc service.TrackerServiceInterface) *TrackerHandler {
	return &TrackerHandler{service: svc}
}

func (h *TrackerHandler) GetStatus(c *fiber.Ctx) error {
	a, _ := auth.ActorFrom(c)
	v, err := h.service.GetOrderStatus(c.UserContext(), a, c.Params("id"))
	if err != nil {
		return httpx.WriteError(c, err)
	}
	return c.JSON(v)
}

// GetTimeline отдаёт события заказа, ?limit= и ?offset= для пагинации
func (h *TrackerHandler) GetTimeline(c *fiber.Ctx) error {
	a, _ := auth.ActorFrom(c)
	id := c.Params("id")
	events, err := h.service.GetOrderTimeline(c.UserContext(), a, id, c.QueryInt("limit", 50), c.QueryInt("offset", 0))
	if err != nil {
		return httpx.WriteError(c, err)
	}
	return c.JSON(fiber.Map{"orderId": id, "events": events})
}
