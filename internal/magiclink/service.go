package magiclink

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/google/uuid"
	sl "github.com/tajious/portalauth/internal/lib/logger/sl"
	"github.com/tajious/portalauth/internal/models"
	"github.com/tajious/portalauth/internal/storage"
)

const (
	DefaultTTL = 15 * time.Minute
	// 32 bytes = 256 bits of entropy.
	tokenBytes = 32
)

var (
	ErrTokenNotFound = errors.New("magic link not found or already used")
	ErrTokenExpired  = errors.New("magic link expired")
	ErrStorage       = errors.New("magic link storage failure")
	ErrDelivery      = errors.New("magic link delivery failure")
	ErrInvalidMethod = errors.New("unsupported delivery method")
)

// Store is the durable bookkeeping the service needs.
type Store interface {
	// ReplaceMagicLink drops the customer's unused links and stores link in
	// one step.
	ReplaceMagicLink(ctx context.Context, link *models.MagicLink) error
	FindActiveMagicLinkByHash(ctx context.Context, tokenHash string) (*models.MagicLink, error)
	MarkMagicLinkUsed(ctx context.Context, id string, usedAt time.Time) (bool, error)
	PurgeExpiredMagicLinks(ctx context.Context, before time.Time) (int64, error)
}

// Sender hands a login URL to an out-of-band channel.
type Sender interface {
	SendLoginLinkEmail(ctx context.Context, to, link string) error
	SendLoginLinkSms(ctx context.Context, to, link string) error
}

type Service struct {
	store   Store
	sender  Sender
	log     *slog.Logger
	ttl     time.Duration
	baseURL string
	now     func() time.Time
}

func New(store Store, sender Sender, log *slog.Logger, ttl time.Duration, baseURL string) *Service {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Service{
		store:   store,
		sender:  sender,
		log:     log,
		ttl:     ttl,
		baseURL: baseURL,
		now:     time.Now,
	}
}

// WithClock replaces the time source. Intended for tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Issue creates a fresh link for the customer and returns the raw token. Any
// outstanding link for the same customer stops working.
func (s *Service) Issue(ctx context.Context, customerID int64, method models.DeliveryMethod, deliveredTo string) (string, error) {
	const op = "magiclink.Service.Issue"

	log := s.log.With(slog.String("op", op), slog.Int64("customer_id", customerID))

	if !method.Valid() {
		return "", fmt.Errorf("%s: %w", op, ErrInvalidMethod)
	}

	raw, err := generateToken()
	if err != nil {
		log.Error("failed to generate token", sl.Err(err))
		return "", fmt.Errorf("%s: %w", op, err)
	}

	now := s.now().UTC()
	link := &models.MagicLink{
		ID:             uuid.NewString(),
		CustomerID:     customerID,
		TokenHash:      HashToken(raw),
		DeliveryMethod: method,
		DeliveredTo:    deliveredTo,
		CreatedAt:      now,
		ExpiresAt:      now.Add(s.ttl),
	}

	if err := s.store.ReplaceMagicLink(ctx, link); err != nil {
		log.Error("failed to save magic link", sl.Err(err))
		return "", fmt.Errorf("%s: %w: %w", op, ErrStorage, err)
	}

	log.Info("magic link issued",
		slog.String("link_id", link.ID),
		slog.String("method", string(method)),
	)

	return raw, nil
}

// Deliver issues a link and sends it through the channel matching method.
// A delivery failure is reported as ErrDelivery; the stored record stays
// valid until it expires or is replaced by the next Deliver.
func (s *Service) Deliver(ctx context.Context, customerID int64, method models.DeliveryMethod, destination string) error {
	const op = "magiclink.Service.Deliver"

	log := s.log.With(slog.String("op", op), slog.Int64("customer_id", customerID))

	raw, err := s.Issue(ctx, customerID, method, destination)
	if err != nil {
		return err
	}

	link := s.LinkURL(raw)

	switch method {
	case models.DeliveryEmail:
		err = s.sender.SendLoginLinkEmail(ctx, destination, link)
	case models.DeliverySMS:
		err = s.sender.SendLoginLinkSms(ctx, destination, link)
	}
	if err != nil {
		log.Error("failed to deliver magic link", slog.String("method", string(method)), sl.Err(err))
		return fmt.Errorf("%s: %w: %w", op, ErrDelivery, err)
	}

	log.Info("magic link delivered", slog.String("method", string(method)))

	return nil
}

// Verify consumes a raw token and returns the customer it was issued for.
// A token verifies at most once.
func (s *Service) Verify(ctx context.Context, raw string) (int64, error) {
	const op = "magiclink.Service.Verify"

	log := s.log.With(slog.String("op", op))

	if raw == "" {
		return 0, ErrTokenNotFound
	}

	link, err := s.store.FindActiveMagicLinkByHash(ctx, HashToken(raw))
	if err != nil {
		if errors.Is(err, storage.ErrMagicLinkNotFound) {
			log.Warn("magic link not found")
			return 0, ErrTokenNotFound
		}
		log.Error("failed to look up magic link", sl.Err(err))
		return 0, fmt.Errorf("%s: %w: %w", op, ErrStorage, err)
	}

	now := s.now().UTC()
	if link.IsExpired(now) {
		log.Warn("magic link expired", slog.String("link_id", link.ID))
		return 0, ErrTokenExpired
	}

	ok, err := s.store.MarkMagicLinkUsed(ctx, link.ID, now)
	if err != nil {
		log.Error("failed to mark magic link used", sl.Err(err))
		return 0, fmt.Errorf("%s: %w: %w", op, ErrStorage, err)
	}
	if !ok {
		log.Warn("magic link consumed concurrently", slog.String("link_id", link.ID))
		return 0, ErrTokenNotFound
	}

	log.Info("magic link verified",
		slog.String("link_id", link.ID),
		slog.Int64("customer_id", link.CustomerID),
	)

	return link.CustomerID, nil
}

// CleanupExpired removes records that expired before now.
func (s *Service) CleanupExpired(ctx context.Context) (int64, error) {
	const op = "magiclink.Service.CleanupExpired"

	deleted, err := s.store.PurgeExpiredMagicLinks(ctx, s.now().UTC())
	if err != nil {
		return 0, fmt.Errorf("%s: %w: %w", op, ErrStorage, err)
	}

	s.log.Info("cleanup completed", slog.String("op", op), slog.Int64("deleted", deleted))

	return deleted, nil
}

// RunCleanup calls CleanupExpired every interval until ctx is done.
func (s *Service) RunCleanup(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.CleanupExpired(ctx); err != nil {
				s.log.Warn("magic link cleanup failed", sl.Err(err))
			}
		}
	}
}

// LinkURL builds the URL a customer follows to log in.
func (s *Service) LinkURL(raw string) string {
	return fmt.Sprintf("%s/api/v1/auth/magic-link/verify?token=%s", s.baseURL, url.QueryEscape(raw))
}

// HashToken is the one-way digest stored in place of the raw token.
func HashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

func generateToken() (string, error) {
	b := make([]byte, tokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to read random bytes: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
