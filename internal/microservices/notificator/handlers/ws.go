package handlers

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"

	"order-platform/internal/common/auth"
	"order-platform/internal/domain"
	"order-platform/internal/microservices/notificator/service"
)

type WSHandler struct {
	hub *service.Hub
}

func NewWSHandler(hub *service.Hub) *WSHandler { return &WSHandler{hub: hub} }

// Routes mounts GET /ws; the token may come as ?token= since browsers
// cannot set headers on upgrades.
func (h *WSHandler) Routes(r fiber.Router, v *auth.Verifier) {
	r.Use("/ws", v.Middleware(), func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	r.Get("/ws", websocket.New(h.serve))
}

func (h *WSHandler) serve(c *websocket.Conn) {
	actor, ok := c.Locals("actor").(domain.Actor)
	if !ok || actor.TenantID == "" {
		_ = c.Close()
		return
	}
	// до регистрации пишем только мы
	if err := c.WriteJSON(fiber.Map{"type": "connected", "data": fiber.Map{"tenantId": actor.TenantID}}); err != nil {
		_ = c.Close()
		return
	}

	id := h.hub.Register(context.Background(), actor, c)
	defer h.hub.Unregister(context.Background(), actor.TenantID, id)

	for {
		if _, _, err := c.ReadMessage(); err != nil {
			return
		}
	}
}
