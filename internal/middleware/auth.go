package middleware

import (
	"github.com/gofiber/fiber/v2"
	"github.com/tajious/portalauth/internal/models"
	"github.com/tajious/portalauth/internal/session"
)

const principalKey = "principal"

type SessionReader interface {
	ReadSession(v session.Values) (models.Principal, bool)
}

type AuthMiddleware struct {
	sessions SessionReader
}

func NewAuthMiddleware(sessions SessionReader) *AuthMiddleware {
	return &AuthMiddleware{
		sessions: sessions,
	}
}

// Authenticate resolves the principal from the session cookies. A request
// without a valid session passes through unauthenticated.
func (m *AuthMiddleware) Authenticate() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if p, ok := m.sessions.ReadSession(session.ValuesFrom(c)); ok {
			c.Locals(principalKey, p)
		}
		return c.Next()
	}
}

func (m *AuthMiddleware) RequireKind(kinds ...models.PrincipalKind) fiber.Handler {
	return func(c *fiber.Ctx) error {
		p, ok := PrincipalFrom(c)
		if !ok {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Authentication required",
			})
		}

		for _, kind := range kinds {
			if p.Kind == kind {
				return c.Next()
			}
		}

		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"error": "Insufficient permissions",
		})
	}
}

// PrincipalFrom returns the principal Authenticate stored on the request.
func PrincipalFrom(c *fiber.Ctx) (models.Principal, bool) {
	p, ok := c.Locals(principalKey).(models.Principal)
	return p, ok
}
