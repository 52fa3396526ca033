package handler

import (
	"context"
	"errors"
	"log"

	"chatbot-backend/internal/model"
	"chatbot-backend/internal/repository"
	"chatbot-backend/internal/service"

	"github.com/gofiber/fiber/v2"
)

// RoleStore persists role changes made by operators.
type RoleStore interface {
	SetRole(ctx context.Context, id string, role model.Role) error
}

type AdminHandler struct {
	registry *service.Registry
	roles    RoleStore
	settings *service.SettingsCache
}

func NewAdminHandler(registry *service.Registry, roles RoleStore, settings *service.SettingsCache) *AdminHandler {
	return &AdminHandler{registry: registry, roles: roles, settings: settings}
}

// GET /api/v1/admin/stats
func (h *AdminHandler) Stats(c *fiber.Ctx) error {
	business := c.Query("business")
	identities := h.registry.OnlineIdentities(business)
	staff := 0
	for _, i := range identities {
		if i.IsStaff() {
			staff++
		}
	}
	return c.JSON(fiber.Map{
		"connections":       h.registry.OnlineCount(),
		"identities_online": len(identities),
		"staff_online":      staff,
	})
}

type setRoleRequest struct {
	Role model.Role `json:"role"`
}

// SetRole changes an identity's role in storage and on its live connections.
// PUT /api/v1/admin/identities/:id/role
func (h *AdminHandler) SetRole(c *fiber.Ctx) error {
	var req setRoleRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid request body"})
	}
	if !req.Role.Valid() || req.Role == model.RoleBot {
		return c.Status(400).JSON(fiber.Map{"error": "role must be guest, user or staff"})
	}

	id := c.Params("id")
	if err := h.roles.SetRole(c.Context(), id, req.Role); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return c.Status(404).JSON(fiber.Map{"error": "identity not found"})
		}
		log.Printf("[Admin] set role %s for %s failed: %v", req.Role, id, err)
		return c.Status(500).JSON(fiber.Map{"error": "failed to set role"})
	}
	touched := h.registry.SetRole(id, req.Role)
	log.Printf("[Admin] %s is now %s (%d live connections)", id, req.Role, touched)

	return c.JSON(fiber.Map{"ok": true, "connections": touched})
}

// InvalidateSettings drops the cached bot settings of a business after the
// settings UI changed them.
// POST /api/v1/admin/settings/:business/invalidate
func (h *AdminHandler) InvalidateSettings(c *fiber.Ctx) error {
	h.settings.Invalidate(c.Params("business"))
	return c.JSON(fiber.Map{"ok": true})
}
