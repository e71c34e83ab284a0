package router

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/tajious/portalauth/internal/api/handlers"
	"github.com/tajious/portalauth/internal/middleware"
	"github.com/tajious/portalauth/internal/models"
)

type Router struct {
	app            *fiber.App
	authHandler    *handlers.AuthHandler
	authMiddleware *middleware.AuthMiddleware
	rateLimiter    *middleware.RateLimiter
	verifyLimit    int
	verifyWindow   time.Duration
}

func NewRouter(
	app *fiber.App,
	authHandler *handlers.AuthHandler,
	authMiddleware *middleware.AuthMiddleware,
	rateLimiter *middleware.RateLimiter,
	verifyLimit int,
	verifyWindow time.Duration,
) *Router {
	return &Router{
		app:            app,
		authHandler:    authHandler,
		authMiddleware: authMiddleware,
		rateLimiter:    rateLimiter,
		verifyLimit:    verifyLimit,
		verifyWindow:   verifyWindow,
	}
}

func (r *Router) SetupRoutes() {
	api := r.app.Group("/api/v1", r.authMiddleware.Authenticate())

	// Public routes
	api.Post("/auth/magic-link", r.authHandler.RequestMagicLink)
	api.Get("/auth/magic-link/verify", r.rateLimiter.RateLimit(middleware.RateLimitConfig{
		Enabled: true,
		Action:  "magic-link-verify",
		Limit:   r.verifyLimit,
		Window:  r.verifyWindow,
	}), r.authHandler.VerifyMagicLink)
	api.Post("/auth/admin/login", r.authHandler.AdminLogin)
	api.Post("/auth/reseller/login", r.authHandler.ResellerLogin)
	api.Post("/auth/logout", r.authHandler.Logout)

	// Session-bound routes
	api.Get("/me", r.authHandler.Me)
	api.Get("/admin/session", r.authMiddleware.RequireKind(models.KindAdmin), r.authHandler.Me)
	api.Get("/reseller/session", r.authMiddleware.RequireKind(models.KindReseller), r.authHandler.Me)
}
