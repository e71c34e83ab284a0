package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/tajious/portalauth/internal/gate"
	sl "github.com/tajious/portalauth/internal/lib/logger/sl"
	"github.com/tajious/portalauth/internal/magiclink"
	"github.com/tajious/portalauth/internal/models"
	"github.com/tajious/portalauth/internal/ratelimit"
	"github.com/tajious/portalauth/internal/session"
	"github.com/tajious/portalauth/internal/storage"
)

// Rate-limited actions. Each has its own quota per client.
const (
	ActionAdminLogin      = "admin-login"
	ActionResellerLogin   = "reseller-login"
	ActionMagicLink       = "magic-link"
	ActionMagicLinkVerify = "magic-link-verify"
)

// Authenticator is a credential gate.
type Authenticator interface {
	Authenticate(name, secret string) (string, error)
}

type CustomerFinder interface {
	GetCustomerByID(ctx context.Context, id int64) (*models.Customer, error)
	GetCustomerByEmail(ctx context.Context, email string) (*models.Customer, error)
	GetCustomerByPhone(ctx context.Context, phone string) (*models.Customer, error)
}

type Deps struct {
	Limiter   ratelimit.Limiter
	Rules     map[string]ratelimit.Rule
	Links     *magiclink.Service
	Customers CustomerFinder
	Admins    Authenticator
	Resellers Authenticator
	Sessions  *session.Manager
	Log       *slog.Logger
}

// Session is a freshly started session, ready to be written as a cookie.
type Session struct {
	Kind      models.PrincipalKind
	Value     string
	ExpiresAt time.Time
	Principal models.Principal
}

// Service is the surface the HTTP layer and other collaborators call into.
// Every credential-submitting operation passes the rate limiter before any
// secret is compared or any record is read.
type Service struct {
	limiter   ratelimit.Limiter
	rules     map[string]ratelimit.Rule
	links     *magiclink.Service
	customers CustomerFinder
	admins    Authenticator
	resellers Authenticator
	sessions  *session.Manager
	log       *slog.Logger
}

func NewService(d Deps) *Service {
	return &Service{
		limiter:   d.Limiter,
		rules:     d.Rules,
		links:     d.Links,
		customers: d.Customers,
		admins:    d.Admins,
		resellers: d.Resellers,
		sessions:  d.Sessions,
		log:       d.Log,
	}
}

// DefaultRules applies the login rule to credential endpoints and the verify
// rule to magic-link consumption.
func DefaultRules(login, verify ratelimit.Rule) map[string]ratelimit.Rule {
	return map[string]ratelimit.Rule{
		ActionAdminLogin:      login,
		ActionResellerLogin:   login,
		ActionMagicLink:       login,
		ActionMagicLinkVerify: verify,
	}
}

// CheckRateLimit counts one attempt of action by client. Actions without a
// rule are not limited. A limiter failure is returned as is and denies the
// attempt.
func (s *Service) CheckRateLimit(ctx context.Context, action, client string) error {
	const op = "auth.Service.CheckRateLimit"

	rule, ok := s.rules[action]
	if !ok {
		return nil
	}

	err := ratelimit.Enforce(ctx, s.limiter, ratelimit.Key(action, client), rule)
	if err == nil {
		return nil
	}

	log := s.log.With(slog.String("op", op), slog.String("action", action), slog.String("client", client))
	if errors.Is(err, ratelimit.ErrLimited) {
		log.Warn("rate limit exceeded")
		return err
	}

	log.Error("rate limiter unavailable", sl.Err(err))
	return fmt.Errorf("%s: %w", op, err)
}

// RequestMagicLink looks the destination up and delivers a login link when
// it belongs to a customer. Unknown destinations succeed silently.
func (s *Service) RequestMagicLink(ctx context.Context, client string, method models.DeliveryMethod, destination string) error {
	const op = "auth.Service.RequestMagicLink"

	if err := s.CheckRateLimit(ctx, ActionMagicLink, client); err != nil {
		return err
	}

	log := s.log.With(slog.String("op", op), slog.String("method", string(method)))

	var (
		customer *models.Customer
		err      error
	)
	switch method {
	case models.DeliveryEmail:
		customer, err = s.customers.GetCustomerByEmail(ctx, strings.TrimSpace(destination))
	case models.DeliverySMS:
		customer, err = s.customers.GetCustomerByPhone(ctx, strings.TrimSpace(destination))
	default:
		return fmt.Errorf("%s: %w", op, magiclink.ErrInvalidMethod)
	}
	if err != nil {
		if errors.Is(err, storage.ErrCustomerNotFound) {
			log.Info("magic link requested for unknown destination")
			return nil
		}
		log.Error("failed to look up customer", sl.Err(err))
		return fmt.Errorf("%s: %w: %w", op, magiclink.ErrStorage, err)
	}

	return s.links.Deliver(ctx, customer.ID, method, strings.TrimSpace(destination))
}

// IssueMagicLink creates a link without delivering it. The caller owns the
// raw token.
func (s *Service) IssueMagicLink(ctx context.Context, customerID int64, method models.DeliveryMethod, deliveredTo string) (string, error) {
	return s.links.Issue(ctx, customerID, method, deliveredTo)
}

// VerifyMagicLink consumes a raw token and starts a customer session for the
// customer it was issued to.
func (s *Service) VerifyMagicLink(ctx context.Context, client, raw string) (*Session, error) {
	const op = "auth.Service.VerifyMagicLink"

	if err := s.CheckRateLimit(ctx, ActionMagicLinkVerify, client); err != nil {
		return nil, err
	}

	customerID, err := s.links.Verify(ctx, raw)
	if err != nil {
		return nil, err
	}

	customer, err := s.customers.GetCustomerByID(ctx, customerID)
	if err != nil {
		if errors.Is(err, storage.ErrCustomerNotFound) {
			s.log.Warn("magic link bound to missing customer",
				slog.String("op", op),
				slog.Int64("customer_id", customerID),
			)
			return nil, magiclink.ErrTokenNotFound
		}
		return nil, fmt.Errorf("%s: %w: %w", op, magiclink.ErrStorage, err)
	}

	return s.StartCustomerSession(models.CustomerIdentity{
		ID:    customer.ID,
		Email: customer.Email,
		Name:  customer.Name,
	})
}

func (s *Service) AuthenticateAdmin(ctx context.Context, client, secret string) (*Session, error) {
	const op = "auth.Service.AuthenticateAdmin"

	if err := s.CheckRateLimit(ctx, ActionAdminLogin, client); err != nil {
		return nil, err
	}

	if _, err := s.admins.Authenticate(gate.AdminName, secret); err != nil {
		s.log.Warn("admin login failed", slog.String("op", op), slog.String("client", client))
		return nil, err
	}

	value, expiresAt, err := s.sessions.StartAdmin()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	s.log.Info("admin logged in", slog.String("op", op), slog.String("client", client))

	return &Session{
		Kind:      models.KindAdmin,
		Value:     value,
		ExpiresAt: expiresAt,
		Principal: models.AdminPrincipal(),
	}, nil
}

func (s *Service) AuthenticateReseller(ctx context.Context, client, name, secret string) (*Session, error) {
	const op = "auth.Service.AuthenticateReseller"

	if err := s.CheckRateLimit(ctx, ActionResellerLogin, client); err != nil {
		return nil, err
	}

	matched, err := s.resellers.Authenticate(name, secret)
	if err != nil {
		s.log.Warn("reseller login failed", slog.String("op", op), slog.String("client", client))
		return nil, err
	}

	value, expiresAt, err := s.sessions.StartReseller(matched)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	s.log.Info("reseller logged in", slog.String("op", op), slog.String("reseller", matched))

	return &Session{
		Kind:      models.KindReseller,
		Value:     value,
		ExpiresAt: expiresAt,
		Principal: models.ResellerPrincipal(matched),
	}, nil
}

func (s *Service) StartCustomerSession(id models.CustomerIdentity) (*Session, error) {
	const op = "auth.Service.StartCustomerSession"

	value, expiresAt, err := s.sessions.StartCustomer(id)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &Session{
		Kind:      models.KindCustomer,
		Value:     value,
		ExpiresAt: expiresAt,
		Principal: models.CustomerPrincipal(id),
	}, nil
}

func (s *Service) ReadCustomerSession(raw string) (models.Principal, bool) {
	return s.sessions.ReadCustomer(raw)
}

func (s *Service) ReadAdminSession(raw string) (models.Principal, bool) {
	return s.sessions.ReadAdmin(raw)
}

func (s *Service) ReadResellerSession(raw string) (models.Principal, bool) {
	return s.sessions.ReadReseller(raw)
}

// ReadSession resolves the first valid principal among the cookie values.
func (s *Service) ReadSession(v session.Values) (models.Principal, bool) {
	return s.sessions.Read(v)
}

// SetSessionCookie writes sess as the cookie of its kind.
func (s *Service) SetSessionCookie(c *fiber.Ctx, sess *Session) {
	s.sessions.SetCookie(c, sess.Kind, sess.Value, sess.ExpiresAt)
}

// ClearAllSessions expires every session cookie on the response.
func (s *Service) ClearAllSessions(c *fiber.Ctx) {
	s.sessions.ClearAll(c)
}
