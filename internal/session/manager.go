package session

import (
	"time"

	"github.com/tajious/portalauth/internal/models"
	"github.com/tajious/portalauth/internal/token"
)

const (
	DefaultCustomerTTL = 7 * 24 * time.Hour
	DefaultAdminTTL    = 24 * time.Hour
	DefaultResellerTTL = 24 * time.Hour
)

// Roster reports whether a reseller name is still configured.
type Roster interface {
	Has(name string) bool
}

type Options struct {
	Secret        string
	CustomerTTL   time.Duration
	AdminTTL      time.Duration
	ResellerTTL   time.Duration
	SecureCookies bool
}

// Manager mints and reads the three independent session kinds. Every kind is
// a signed token; there is no server-side session table.
type Manager struct {
	customers *token.Codec
	admins    *token.Codec
	resellers *token.Codec
	roster    Roster
	secure    bool
}

func NewManager(opts Options, roster Roster) *Manager {
	if opts.CustomerTTL <= 0 {
		opts.CustomerTTL = DefaultCustomerTTL
	}
	if opts.AdminTTL <= 0 {
		opts.AdminTTL = DefaultAdminTTL
	}
	if opts.ResellerTTL <= 0 {
		opts.ResellerTTL = DefaultResellerTTL
	}
	return &Manager{
		customers: token.NewCodec(opts.Secret, audienceCustomer, opts.CustomerTTL),
		admins:    token.NewCodec(opts.Secret, audienceAdmin, opts.AdminTTL),
		resellers: token.NewCodec(opts.Secret, audienceReseller, opts.ResellerTTL),
		roster:    roster,
		secure:    opts.SecureCookies,
	}
}

// WithClock replaces the time source of every codec. Intended for tests.
func (m *Manager) WithClock(now func() time.Time) *Manager {
	m.customers.WithClock(now)
	m.admins.WithClock(now)
	m.resellers.WithClock(now)
	return m
}

func (m *Manager) StartCustomer(id models.CustomerIdentity) (string, time.Time, error) {
	return m.customers.Issue(newCustomerClaims(id))
}

func (m *Manager) StartAdmin() (string, time.Time, error) {
	return m.admins.Issue(&AdminClaims{})
}

func (m *Manager) StartReseller(name string) (string, time.Time, error) {
	return m.resellers.Issue(&ResellerClaims{Reseller: name})
}

func (m *Manager) ReadCustomer(raw string) (models.Principal, bool) {
	var claims CustomerClaims
	if err := m.customers.Verify(raw, &claims); err != nil || claims.CustomerID == 0 {
		return models.Principal{}, false
	}
	return models.CustomerPrincipal(claims.Identity()), true
}

func (m *Manager) ReadAdmin(raw string) (models.Principal, bool) {
	var claims AdminClaims
	if err := m.admins.Verify(raw, &claims); err != nil {
		return models.Principal{}, false
	}
	return models.AdminPrincipal(), true
}

// ReadReseller also rejects names that have since been removed from the
// roster.
func (m *Manager) ReadReseller(raw string) (models.Principal, bool) {
	var claims ResellerClaims
	if err := m.resellers.Verify(raw, &claims); err != nil || claims.Reseller == "" {
		return models.Principal{}, false
	}
	if m.roster != nil && !m.roster.Has(claims.Reseller) {
		return models.Principal{}, false
	}
	return models.ResellerPrincipal(claims.Reseller), true
}

// Read returns the first valid principal among customer, admin and reseller.
func (m *Manager) Read(v Values) (models.Principal, bool) {
	if p, ok := m.ReadCustomer(v.Customer); ok {
		return p, true
	}
	if p, ok := m.ReadAdmin(v.Admin); ok {
		return p, true
	}
	if p, ok := m.ReadReseller(v.Reseller); ok {
		return p, true
	}
	return models.Principal{}, false
}
