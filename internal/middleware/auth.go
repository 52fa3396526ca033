package middleware

import (
	"strings"

	"chatbot-backend/internal/model"

	"github.com/gofiber/fiber/v2"
)

const identityKey = "identity"

// IdentityResolver turns a signed token into an identity.
type IdentityResolver interface {
	ResolveIdentity(token string) (model.Identity, error)
}

// Auth resolves the caller from a Bearer token, the widget cookie or, for
// socket upgrades, the token query parameter.
func Auth(resolver IdentityResolver, cookieName string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		token := TokenFrom(c, cookieName)
		if token == "" {
			return c.Status(401).JSON(fiber.Map{"error": "missing credentials"})
		}
		identity, err := resolver.ResolveIdentity(token)
		if err != nil {
			return c.Status(401).JSON(fiber.Map{"error": "invalid or expired token"})
		}
		c.Locals(identityKey, identity)
		return c.Next()
	}
}

func TokenFrom(c *fiber.Ctx, cookieName string) string {
	if header := c.Get("Authorization"); header != "" {
		if token := strings.TrimPrefix(header, "Bearer "); token != header {
			return strings.TrimSpace(token)
		}
	}
	if cookieName != "" {
		if token := c.Cookies(cookieName); token != "" {
			return token
		}
	}
	return c.Query("token")
}

// IdentityFrom returns the identity Auth stored on the request.
func IdentityFrom(c *fiber.Ctx) (model.Identity, bool) {
	identity, ok := c.Locals(identityKey).(model.Identity)
	return identity, ok
}

// RequireStaff rejects callers that are not staff. It must run after Auth.
func RequireStaff() fiber.Handler {
	return func(c *fiber.Ctx) error {
		identity, ok := IdentityFrom(c)
		if !ok || !identity.IsStaff() {
			return c.Status(403).JSON(fiber.Map{"error": "staff only"})
		}
		return c.Next()
	}
}

func AdminKey(expectedKey string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		key := c.Get("X-Admin-Key")
		if key == "" || key != expectedKey {
			return c.Status(403).JSON(fiber.Map{"error": "invalid admin key"})
		}
		return c.Next()
	}
}
