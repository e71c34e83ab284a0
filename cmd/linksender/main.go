package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/tajious/portalauth/internal/config"
	"github.com/tajious/portalauth/internal/delivery"
	sl "github.com/tajious/portalauth/internal/lib/logger/sl"
)

// linksender drains the e-mail login-link queue into SMTP. The SMS queue
// belongs to an external gateway worker.
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadWorker()
	if err != nil {
		slog.Error("failed to load configuration", sl.Err(err))
		os.Exit(1)
	}

	log := slog.New(slog.NewJSONHandler(os.Stdout, nil)).With(slog.String("service", "linksender"))

	m := &delivery.Mailer{
		Host:     cfg.SMTP.Host,
		Port:     cfg.SMTP.Port,
		Username: cfg.SMTP.Username,
		Password: cfg.SMTP.Password,
		From:     cfg.SMTP.From,
		LinkTTL:  cfg.MagicLink.TTL,
	}

	log.Info("consumer starting", slog.String("queue", cfg.RabbitMQ.EmailQueue))

	err = delivery.Consume(ctx, cfg.RabbitMQ.URL, cfg.RabbitMQ.EmailQueue, func(ctx context.Context, msg delivery.LinkMessage) error {
		if err := m.SendLoginLinkEmail(ctx, msg.To, msg.Link); err != nil {
			log.Error("failed to send login link", sl.Err(err))
			return err
		}
		log.Info("login link sent")
		return nil
	})
	if err != nil {
		log.Error("consumer stopped", sl.Err(err))
		os.Exit(1)
	}

	log.Info("consumer stopped")
}
