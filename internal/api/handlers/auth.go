package handlers

import (
	"errors"
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/tajious/portalauth/internal/auth"
	"github.com/tajious/portalauth/internal/gate"
	sl "github.com/tajious/portalauth/internal/lib/logger/sl"
	"github.com/tajious/portalauth/internal/magiclink"
	"github.com/tajious/portalauth/internal/middleware"
	"github.com/tajious/portalauth/internal/models"
	"github.com/tajious/portalauth/internal/ratelimit"
	"github.com/tajious/portalauth/internal/validation"
)

type AuthHandler struct {
	auth *auth.Service
	log  *slog.Logger
}

func NewAuthHandler(svc *auth.Service, log *slog.Logger) *AuthHandler {
	return &AuthHandler{
		auth: svc,
		log:  log,
	}
}

func (h *AuthHandler) RequestMagicLink(c *fiber.Ctx) error {
	var req models.MagicLinkRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	if err := validation.ValidateStruct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": validation.Message(err),
		})
	}

	if err := h.auth.RequestMagicLink(c.Context(), c.IP(), req.Method, req.Destination); err != nil {
		return h.respondError(c, err)
	}

	// Same answer whether or not the destination is known.
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"message": "If the destination is registered, a login link is on its way",
	})
}

func (h *AuthHandler) VerifyMagicLink(c *fiber.Ctx) error {
	sess, err := h.auth.VerifyMagicLink(c.Context(), c.IP(), c.Query("token"))
	if err != nil {
		return h.respondError(c, err)
	}
	return h.startSession(c, sess)
}

func (h *AuthHandler) AdminLogin(c *fiber.Ctx) error {
	var req models.AdminLoginRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	if err := validation.ValidateStruct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": validation.Message(err),
		})
	}

	sess, err := h.auth.AuthenticateAdmin(c.Context(), c.IP(), req.Secret)
	if err != nil {
		return h.respondError(c, err)
	}
	return h.startSession(c, sess)
}

func (h *AuthHandler) ResellerLogin(c *fiber.Ctx) error {
	var req models.ResellerLoginRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	if err := validation.ValidateStruct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": validation.Message(err),
		})
	}

	sess, err := h.auth.AuthenticateReseller(c.Context(), c.IP(), req.Name, req.Secret)
	if err != nil {
		return h.respondError(c, err)
	}
	return h.startSession(c, sess)
}

// Logout clears every session scope, whichever one was active.
func (h *AuthHandler) Logout(c *fiber.Ctx) error {
	h.auth.ClearAllSessions(c)
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *AuthHandler) Me(c *fiber.Ctx) error {
	p, ok := middleware.PrincipalFrom(c)
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Authentication required",
		})
	}
	return c.JSON(fiber.Map{"principal": p})
}

func (h *AuthHandler) startSession(c *fiber.Ctx, sess *auth.Session) error {
	h.auth.SetSessionCookie(c, sess)
	return c.JSON(models.SessionResponse{
		Principal: sess.Principal,
		ExpiresAt: sess.ExpiresAt,
	})
}

func (h *AuthHandler) respondError(c *fiber.Ctx, err error) error {
	var limited *ratelimit.LimitedError

	switch {
	case errors.As(err, &limited):
		return middleware.TooManyRequests(c, limited.RetryAfter)
	case errors.Is(err, gate.ErrInvalidCredentials):
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Invalid credentials",
		})
	case errors.Is(err, magiclink.ErrTokenNotFound), errors.Is(err, magiclink.ErrTokenExpired):
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Invalid or expired login link",
		})
	case errors.Is(err, magiclink.ErrInvalidMethod):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Unsupported delivery method",
		})
	case errors.Is(err, magiclink.ErrDelivery):
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
			"error": "Could not deliver the login link, please try again",
		})
	default:
		h.log.Error("request failed", slog.String("path", c.Path()), sl.Err(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Internal server error",
		})
	}
}
