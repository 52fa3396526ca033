package handler

import (
	"errors"
	"log"

	"chatbot-backend/internal/service"

	"github.com/gofiber/fiber/v2"
)

func statusFor(err error) int {
	switch {
	case service.IsValidation(err):
		return 400
	case errors.Is(err, service.ErrNotFound):
		return 404
	case errors.Is(err, service.ErrNotParticipant), errors.Is(err, service.ErrForbidden):
		return 403
	}
	return 500
}

// publicError hides internal failures from clients.
func publicError(err error) string {
	if statusFor(err) == 500 {
		return "internal error"
	}
	return err.Error()
}

func respondError(c *fiber.Ctx, err error) error {
	status := statusFor(err)
	if status == 500 {
		log.Printf("[API] %s %s failed: %v", c.Method(), c.Path(), err)
	}
	return c.Status(status).JSON(fiber.Map{"error": publicError(err)})
}
