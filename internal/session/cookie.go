package session

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/tajious/portalauth/internal/models"
)

const (
	CustomerCookie = "portal_session"
	AdminCookie    = "portal_admin"
	ResellerCookie = "portal_reseller"
)

// Values holds the raw cookie values of one request.
type Values struct {
	Customer string
	Admin    string
	Reseller string
}

func CookieName(kind models.PrincipalKind) string {
	switch kind {
	case models.KindAdmin:
		return AdminCookie
	case models.KindReseller:
		return ResellerCookie
	default:
		return CustomerCookie
	}
}

func ValuesFrom(c *fiber.Ctx) Values {
	return Values{
		Customer: c.Cookies(CustomerCookie),
		Admin:    c.Cookies(AdminCookie),
		Reseller: c.Cookies(ResellerCookie),
	}
}

// SetCookie writes a session cookie for kind that expires with the token.
func (m *Manager) SetCookie(c *fiber.Ctx, kind models.PrincipalKind, value string, expiresAt time.Time) {
	c.Cookie(m.cookie(CookieName(kind), value, expiresAt))
}

// ClearAll expires every session cookie regardless of which one is active.
func (m *Manager) ClearAll(c *fiber.Ctx) {
	for _, name := range []string{CustomerCookie, AdminCookie, ResellerCookie} {
		c.Cookie(m.cookie(name, "", time.Unix(0, 0)))
	}
}

func (m *Manager) cookie(name, value string, expiresAt time.Time) *fiber.Cookie {
	return &fiber.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Expires:  expiresAt,
		HTTPOnly: true,
		Secure:   m.secure,
		SameSite: fiber.CookieSameSiteLaxMode,
	}
}
