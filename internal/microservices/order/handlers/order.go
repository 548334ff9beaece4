package handlers

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"order-platform/internal/common/auth"
	"order-platform/internal/common/httpx"
	"order-platform/internal/domain"
	"order-platform/internal/microservices/order/service"
)

type OrderHandler struct {
	service service.OrderServiceInterface
}

func NewOrderHandler(s service.OrderServiceInterface) *OrderHandler {
	return &OrderHandler{service: s}
}

func actor(c *fiber.Ctx) (domain.Actor, error) {
	a, ok := auth.ActorFrom(c)
	if !ok {
		return domain.Actor{}, fiber.NewError(fiber.StatusUnauthorized, "missing actor")
	}
	return a, nil
}

func (oh *OrderHandler) SubmitOrder(c *fiber.Ctx) error {
	a, err := actor(c)
	if err != nil {
		return err
	}
	var req domain.SubmitOrderRequest
	if err := c.BodyParser(&req); err != nil {
		return httpx.WriteProblem(c, fiber.StatusBadRequest, "BadRequest", "invalid JSON body")
	}

	resp, err := oh.service.SubmitOrder(c.UserContext(), a, req, strings.TrimSpace(c.Get("Idempotency-Key")))
	if err != nil {
		return httpx.WriteError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(resp)
}

// ListOrders accepts ?status=COOKING,QUEUED and ?limit=N.
func (oh *OrderHandler) ListOrders(c *fiber.Ctx) error {
	a, err := actor(c)
	if err != nil {
		return err
	}
	var statuses []string
	if raw := c.Query("status"); raw != "" {
		statuses = strings.Split(raw, ",")
	}
	orders, err := oh.service.ListOrders(c.UserContext(), a, statuses, c.QueryInt("limit", 0))
	if err != nil {
		return httpx.WriteError(c, err)
	}
	return c.JSON(orders)
}

func (oh *OrderHandler) GetOrder(c *fiber.Ctx) error {
	a, err := actor(c)
	if err != nil {
		return err
	}
	o, err := oh.service.GetOrder(c.UserContext(), a, c.Params("id"))
	if err != nil {
		return httpx.WriteError(c, err)
	}
	return c.JSON(o)
}

func (oh *OrderHandler) UpdateStatus(c *fiber.Ctx) error {
	a, err := actor(c)
	if err != nil {
		return err
	}
	var req domain.UpdateStatusRequest
	if err := c.BodyParser(&req); err != nil || strings.TrimSpace(req.Status) == "" {
		return httpx.WriteProblem(c, fiber.StatusBadRequest, "BadRequest", "body must carry a status")
	}

	resp, err := oh.service.UpdateOrderStatus(c.UserContext(), a, c.Params("id"), req)
	if err != nil {
		return httpx.WriteError(c, err)
	}
	return c.JSON(resp)
}

func (oh *OrderHandler) History(c *fiber.Ctx) error {
	a, err := actor(c)
	if err != nil {
		return err
	}
	hist, err := oh.service.History(c.UserContext(), a, c.Params("id"))
	if err != nil {
		return httpx.WriteError(c, err)
	}
	return c.JSON(hist)
}
