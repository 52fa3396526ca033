package middleware

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
)

// RateLimit limits requests per identity, or per IP before Auth has run.
func RateLimit(max int, window time.Duration) fiber.Handler {
	return limiter.New(limiter.Config{
		Max:          max,
		Expiration:   window,
		KeyGenerator: rateKey,
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(429).JSON(fiber.Map{"error": "too many requests"})
		},
	})
}

func rateKey(c *fiber.Ctx) string {
	if identity, ok := IdentityFrom(c); ok {
		return "id:" + identity.ID
	}
	return "ip:" + c.IP()
}
