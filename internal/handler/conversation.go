package handler

import (
	"chatbot-backend/internal/middleware"
	"chatbot-backend/internal/model"
	"chatbot-backend/internal/service"

	"github.com/gofiber/fiber/v2"
)

type ConversationHandler struct {
	conversations *service.ConversationService
}

func NewConversationHandler(conversations *service.ConversationService) *ConversationHandler {
	return &ConversationHandler{conversations: conversations}
}

// List returns the caller's conversations with their unread counts.
// GET /api/v1/conversations
func (h *ConversationHandler) List(c *fiber.Ctx) error {
	identity, _ := middleware.IdentityFrom(c)

	list, err := h.conversations.ListFor(c.Context(), identity.ID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"conversations": list})
}

// Get returns one conversation the caller takes part in.
// GET /api/v1/conversations/:id
func (h *ConversationHandler) Get(c *fiber.Ctx) error {
	identity, _ := middleware.IdentityFrom(c)

	conv, err := h.conversations.GetFor(c.Context(), c.Params("id"), identity)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(model.ConversationSummary{Conversation: *conv, UnreadCount: conv.UnreadCount(identity.ID)})
}

// StartBot opens (or reopens) the caller's conversation with the business bot.
// POST /api/v1/conversations/bot
func (h *ConversationHandler) StartBot(c *fiber.Ctx) error {
	identity, _ := middleware.IdentityFrom(c)

	conv, err := h.conversations.FindOrCreate(c.Context(), identity, []string{identity.BusinessID})
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(model.ConversationSummary{Conversation: *conv, UnreadCount: conv.UnreadCount(identity.ID)})
}

// Read marks the conversation read for the caller.
// POST /api/v1/conversations/:id/read
func (h *ConversationHandler) Read(c *fiber.Ctx) error {
	identity, _ := middleware.IdentityFrom(c)

	if err := h.conversations.ReadMessages(c.Context(), c.Params("id"), identity); err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"ok": true})
}

// NewSession clears the conversation and resets its hand-off state.
// POST /api/v1/conversations/:id/new-session
func (h *ConversationHandler) NewSession(c *fiber.Ctx) error {
	identity, _ := middleware.IdentityFrom(c)

	if _, err := h.conversations.GetFor(c.Context(), c.Params("id"), identity); err != nil {
		return respondError(c, err)
	}
	conv, err := h.conversations.NewSession(c.Context(), c.Params("id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"ok": true, "conversation_id": conv.ID, "state": conv.State()})
}

// EndSupport hands a staff-supported conversation back to the bot.
// POST /api/v1/conversations/:id/end-support
func (h *ConversationHandler) EndSupport(c *fiber.Ctx) error {
	identity, _ := middleware.IdentityFrom(c)

	if _, err := h.conversations.GetFor(c.Context(), c.Params("id"), identity); err != nil {
		return respondError(c, err)
	}
	if err := h.conversations.EndSupport(c.Context(), c.Params("id"), identity); err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"ok": true})
}
