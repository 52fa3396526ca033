package handler

import (
	"chatbot-backend/internal/middleware"
	"chatbot-backend/internal/service"

	"github.com/gofiber/fiber/v2"
)

type NotificationHandler struct {
	dispatcher *service.Dispatcher
}

func NewNotificationHandler(dispatcher *service.Dispatcher) *NotificationHandler {
	return &NotificationHandler{dispatcher: dispatcher}
}

// List returns the hand-off requests waiting for the calling staff member.
// GET /api/v1/notifications
func (h *NotificationHandler) List(c *fiber.Ctx) error {
	identity, _ := middleware.IdentityFrom(c)

	list, err := h.dispatcher.List(c.Context(), identity.ID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"notifications": list})
}

// Accept takes over the conversation behind the notification. Accepting a
// request someone else already resolved succeeds without effect.
// POST /api/v1/notifications/:id/accept
func (h *NotificationHandler) Accept(c *fiber.Ctx) error {
	identity, _ := middleware.IdentityFrom(c)

	if err := h.dispatcher.Accept(c.Context(), c.Params("id"), identity); err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"ok": true})
}

// POST /api/v1/notifications/:id/decline
func (h *NotificationHandler) Decline(c *fiber.Ctx) error {
	identity, _ := middleware.IdentityFrom(c)

	if err := h.dispatcher.Decline(c.Context(), c.Params("id"), identity); err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"ok": true})
}
