package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/redis/go-redis/v9"
	"github.com/tajious/portalauth/internal/api/handlers"
	"github.com/tajious/portalauth/internal/api/router"
	"github.com/tajious/portalauth/internal/auth"
	"github.com/tajious/portalauth/internal/config"
	"github.com/tajious/portalauth/internal/delivery"
	"github.com/tajious/portalauth/internal/gate"
	sl "github.com/tajious/portalauth/internal/lib/logger/sl"
	"github.com/tajious/portalauth/internal/magiclink"
	"github.com/tajious/portalauth/internal/middleware"
	"github.com/tajious/portalauth/internal/ratelimit"
	"github.com/tajious/portalauth/internal/session"
	"github.com/tajious/portalauth/internal/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", sl.Err(err))
		os.Exit(1)
	}

	log := setupLogger(cfg.Server.Environment)
	log.Info("starting portal auth", slog.String("env", cfg.Server.Environment))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := storage.Open(cfg.Database)
	if err != nil {
		log.Error("failed to initialize storage", sl.Err(err))
		os.Exit(1)
	}

	limiter, err := setupLimiter(ctx, cfg, log)
	if err != nil {
		log.Error("failed to initialize rate limiter", sl.Err(err))
		os.Exit(1)
	}

	admins, err := gate.NewAdmin(cfg.Session.AdminSecret, cfg.Session.BcryptCost)
	if err != nil {
		log.Error("failed to build admin gate", sl.Err(err))
		os.Exit(1)
	}

	resellerSecrets, err := cfg.ResellerSecrets()
	if err != nil {
		log.Error("failed to parse reseller credentials", sl.Err(err))
		os.Exit(1)
	}
	resellers, err := gate.New(resellerSecrets, cfg.Session.BcryptCost)
	if err != nil {
		log.Error("failed to build reseller gate", sl.Err(err))
		os.Exit(1)
	}
	log.Info("credential gates ready", slog.Int("resellers", resellers.Len()))

	sender, closeSender, err := setupDelivery(cfg, log)
	if err != nil {
		log.Error("failed to initialize delivery", sl.Err(err))
		os.Exit(1)
	}
	defer closeSender()

	links := magiclink.New(store, sender, log, cfg.MagicLink.TTL, cfg.MagicLink.BaseURL)
	go links.RunCleanup(ctx, cfg.MagicLink.CleanupInterval)

	sessions := session.NewManager(session.Options{
		Secret:        cfg.Session.Secret,
		CustomerTTL:   cfg.Session.CustomerTTL,
		AdminTTL:      cfg.Session.AdminTTL,
		ResellerTTL:   cfg.Session.ResellerTTL,
		SecureCookies: cfg.Session.SecureCookies,
	}, resellers)

	authService := auth.NewService(auth.Deps{
		Limiter: limiter,
		Rules: auth.DefaultRules(
			ratelimit.Rule{Max: cfg.RateLimit.LoginMax, Window: cfg.RateLimit.LoginWindow},
			ratelimit.Rule{Max: cfg.RateLimit.VerifyMax, Window: cfg.RateLimit.VerifyWindow},
		),
		Links:     links,
		Customers: store,
		Admins:    admins,
		Resellers: resellers,
		Sessions:  sessions,
		Log:       log,
	})

	app := fiber.New(fiber.Config{
		AppName: "Portal Auth",
	})

	app.Use(recover.New())
	app.Use(cors.New())
	app.Use(logger.New())

	apiRouter := router.NewRouter(
		app,
		handlers.NewAuthHandler(authService, log),
		middleware.NewAuthMiddleware(authService),
		middleware.NewRateLimiter(limiter, true, log),
		cfg.RateLimit.VerifyMax,
		cfg.RateLimit.VerifyWindow,
	)
	apiRouter.SetupRoutes()

	go func() {
		log.Info("server starting", slog.String("port", cfg.Server.Port))
		if err := app.Listen(":" + cfg.Server.Port); err != nil {
			log.Error("server failed", sl.Err(err))
			stop()
		}
	}()

	<-ctx.Done()

	log.Info("shutting down")
	if err := app.ShutdownWithTimeout(5 * time.Second); err != nil {
		log.Error("server shutdown error", sl.Err(err))
	}
	log.Info("server stopped")
}

func setupLimiter(ctx context.Context, cfg *config.Config, log *slog.Logger) (ratelimit.Limiter, error) {
	if cfg.RateLimit.Backend == "redis" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr(),
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			return nil, err
		}
		log.Info("rate limiter backed by redis", slog.String("addr", cfg.Redis.Addr()))
		return ratelimit.NewRedisLimiter(client), nil
	}

	l := ratelimit.NewMemoryLimiter()
	go l.Run(ctx, cfg.RateLimit.SweepEvery)
	log.Info("rate limiter in process memory")
	return l, nil
}

// setupDelivery sends e-mail over SMTP directly unless EMAIL_VIA_QUEUE is
// set. SMS always goes through the queue, so it is unavailable without
// RABBITMQ_URL.
func setupDelivery(cfg *config.Config, log *slog.Logger) (delivery.Channels, func(), error) {
	channels := delivery.Channels{}
	closeFn := func() {}

	if cfg.SMTP.Host != "" {
		channels.Email = &delivery.Mailer{
			Host:     cfg.SMTP.Host,
			Port:     cfg.SMTP.Port,
			Username: cfg.SMTP.Username,
			Password: cfg.SMTP.Password,
			From:     cfg.SMTP.From,
			LinkTTL:  cfg.MagicLink.TTL,
		}
	}

	if cfg.RabbitMQ.URL == "" {
		log.Warn("RABBITMQ_URL not set, sms login links disabled")
		return channels, closeFn, nil
	}

	pub, err := delivery.NewQueuePublisher(cfg.RabbitMQ.URL, cfg.RabbitMQ.EmailQueue, cfg.RabbitMQ.SMSQueue, cfg.MagicLink.TTL)
	if err != nil {
		return delivery.Channels{}, closeFn, err
	}

	channels.SMS = pub
	log.Warn("sms login links are queued for an external gateway worker", slog.String("queue", cfg.RabbitMQ.SMSQueue))
	if cfg.RabbitMQ.EmailViaQueue || channels.Email == nil {
		channels.Email = pub
	}

	return channels, pub.Close, nil
}

func setupLogger(env string) *slog.Logger {
	var log *slog.Logger

	switch env {
	case config.EnvDevelopment:
		log = slog.New(
			slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}),
		)
	case config.EnvStaging:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}),
		)
	default:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}),
		)
	}

	return log
}
