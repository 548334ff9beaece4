package handlers

import (
	"github.com/gofiber/fiber/v2"

	"order-platform/internal/common/auth"
	"order-platform/internal/common/httpx"
	"order-platform/internal/domain"
	"order-platform/internal/microservices/kitchen/service"
)

type KitchenHandler struct {
	service service.KitchenServiceInterface
}

func NewKitchenHandler(s service.KitchenServiceInterface) *KitchenHandler {
	return &KitchenHandler{service: s}
}

// Routes mounts kitchen registration and worker shifts.
func (kh *KitchenHandler) Routes(r fiber.Router, v *auth.Verifier) {
	k := r.Group("/kitchens", v.Middleware())
	k.Post("/", kh.CreateKitchen)
	k.Get("/", auth.RequireRole(staff...), kh.ListKitchens)
	k.Get("/:id", auth.RequireRole(staff...), kh.GetKitchen)

	w := r.Group("/workers", v.Middleware())
	w.Post("/checkin", kh.CheckIn)
	w.Post("/checkout", kh.CheckOut)
	w.Get("/", auth.RequireRole(domain.RoleAdmin, domain.RoleOwner), kh.ListWorkers)
}

var staff = []domain.Role{domain.RoleAdmin, domain.RoleOwner, domain.RoleKitchen, domain.RoleDelivery}

func (kh *KitchenHandler) CreateKitchen(c *fiber.Ctx) error {
	a, _ := auth.ActorFrom(c)
	var req domain.CreateKitchenRequest
	if err := c.BodyParser(&req); err != nil {
		return httpx.WriteProblem(c, fiber.StatusBadRequest, "BadRequest", "invalid JSON body")
	}
	k, err := kh.service.CreateKitchen(c.UserContext(), a, req)
	if err != nil {
		return httpx.WriteError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(k)
}

func (kh *KitchenHandler) ListKitchens(c *fiber.Ctx) error {
	a, _ := auth.ActorFrom(c)
	ks, err := kh.service.ListKitchens(c.UserContext(), a.TenantID)
	if err != nil {
		return httpx.WriteError(c, err)
	}
	if ks == nil {
		ks = []domain.Kitchen{}
	}
	return c.JSON(ks)
}

func (kh *KitchenHandler) GetKitchen(c *fiber.Ctx) error {
	a, _ := auth.ActorFrom(c)
	k, err := kh.service.GetKitchen(c.UserContext(), a.TenantID, c.Params("id"))
	if err != nil {
		return httpx.WriteError(c, err)
	}
	return c.JSON(k)
}

func (kh *KitchenHandler) CheckIn(c *fiber.Ctx) error {
	a, _ := auth.ActorFrom(c)
	if err := kh.service.CheckIn(c.UserContext(), a); err != nil {
		return httpx.WriteError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (kh *KitchenHandler) CheckOut(c *fiber.Ctx) error {
	a, _ := auth.ActorFrom(c)
	if err := kh.service.CheckOut(c.UserContext(), a); err != nil {
		return httpx.WriteError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (kh *KitchenHandler) ListWorkers(c *fiber.Ctx) error {
	a, _ := auth.ActorFrom(c)
	ws, err := kh.service.ListWorkers(c.UserContext(), a.TenantID)
	if err != nil {
		return httpx.WriteError(c, err)
	}
	if ws == nil {
		ws = []domain.Worker{}
	}
	return c.JSON(ws)
}
