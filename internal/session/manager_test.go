package session

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tajious/portalauth/internal/models"
)

const testSecret = "test-session-secret-0123456789abcdef"

type staticRoster map[string]bool

func (r staticRoster) Has(name string) bool { return r[name] }

type clock struct{ now time.Time }

func (c *clock) Now() time.Time { return c.now }

func newTestManager(roster Roster) (*Manager, *clock) {
	clk := &clock{now: time.Date(2025, 2, 3, 4, 5, 6, 0, time.UTC)}
	m := NewManager(Options{Secret: testSecret}, roster).WithClock(clk.Now)
	return m, clk
}

func TestCustomerSessionLifecycle(t *testing.T) {
	m, clk := newTestManager(nil)
	id := models.CustomerIdentity{ID: 42, Email: "c42@example.com", Name: "Cee"}

	raw, expiresAt, err := m.StartCustomer(id)
	require.NoError(t, err)
	require.Equal(t, clk.now.Add(7*24*time.Hour), expiresAt)

	p, ok := m.ReadCustomer(raw)
	require.True(t, ok)
	require.Equal(t, models.KindCustomer, p.Kind)
	require.Equal(t, id, *p.Customer)

	// Active -> Active on repeated reads before expiry.
	clk.now = expiresAt.Add(-time.Minute)
	_, ok = m.ReadCustomer(raw)
	require.True(t, ok)

	clk.now = expiresAt.Add(time.Second)
	_, ok = m.ReadCustomer(raw)
	require.False(t, ok)
}

func TestAdminSession(t *testing.T) {
	m, clk := newTestManager(nil)

	raw, expiresAt, err := m.StartAdmin()
	require.NoError(t, err)
	require.Equal(t, clk.now.Add(24*time.Hour), expiresAt)

	p, ok := m.ReadAdmin(raw)
	require.True(t, ok)
	require.Equal(t, models.AdminPrincipal(), p)

	clk.now = expiresAt.Add(time.Second)
	_, ok = m.ReadAdmin(raw)
	require.False(t, ok)
}

func TestResellerSessionRespectsRoster(t *testing.T) {
	roster := staticRoster{"Shun": true}
	m, _ := newTestManager(roster)

	raw, _, err := m.StartReseller("Shun")
	require.NoError(t, err)

	p, ok := m.ReadReseller(raw)
	require.True(t, ok)
	require.Equal(t, "Shun", p.Reseller)

	delete(roster, "Shun")
	_, ok = m.ReadReseller(raw)
	require.False(t, ok)
}

func TestKindsAreNotInterchangeable(t *testing.T) {
	m, _ := newTestManager(staticRoster{"Shun": true})

	customer, _, err := m.StartCustomer(models.CustomerIdentity{ID: 1, Email: "a@b.c", Name: "A"})
	require.NoError(t, err)
	admin, _, err := m.StartAdmin()
	require.NoError(t, err)
	reseller, _, err := m.StartReseller("Shun")
	require.NoError(t, err)

	_, ok := m.ReadAdmin(customer)
	assert.False(t, ok)
	_, ok = m.ReadReseller(customer)
	assert.False(t, ok)
	_, ok = m.ReadCustomer(admin)
	assert.False(t, ok)
	_, ok = m.ReadReseller(admin)
	assert.False(t, ok)
	_, ok = m.ReadAdmin(reseller)
	assert.False(t, ok)
	_, ok = m.ReadCustomer(reseller)
	assert.False(t, ok)
}

func TestReadPrefersFirstValid(t *testing.T) {
	m, _ := newTestManager(staticRoster{"Shun": true})
	admin, _, err := m.StartAdmin()
	require.NoError(t, err)

	p, ok := m.Read(Values{Customer: "garbage", Admin: admin})
	require.True(t, ok)
	require.Equal(t, models.KindAdmin, p.Kind)

	_, ok = m.Read(Values{})
	require.False(t, ok)
}

func TestSecretChangeLogsEveryoneOut(t *testing.T) {
	m, _ := newTestManager(nil)
	raw, _, err := m.StartCustomer(models.CustomerIdentity{ID: 5, Email: "e@x.y", Name: "E"})
	require.NoError(t, err)

	rotated := NewManager(Options{Secret: "another-secret-0123456789abcdefghij"}, nil)
	_, ok := rotated.ReadCustomer(raw)
	require.False(t, ok)
}

func TestCookies(t *testing.T) {
	m := NewManager(Options{Secret: testSecret, SecureCookies: true}, nil)
	app := fiber.New()

	app.Get("/set", func(c *fiber.Ctx) error {
		m.SetCookie(c, models.KindAdmin, "value-1", time.Now().Add(time.Hour))
		return c.SendStatus(fiber.StatusNoContent)
	})
	app.Get("/clear", func(c *fiber.Ctx) error {
		m.ClearAll(c)
		return c.SendStatus(fiber.StatusNoContent)
	})
	app.Get("/values", func(c *fiber.Ctx) error {
		v := ValuesFrom(c)
		return c.JSON(fiber.Map{"customer": v.Customer, "admin": v.Admin, "reseller": v.Reseller})
	})

	resp, err := app.Test(httptest.NewRequest("GET", "/set", nil))
	require.NoError(t, err)
	cookies := resp.Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, AdminCookie, cookies[0].Name)
	assert.Equal(t, "value-1", cookies[0].Value)
	assert.True(t, cookies[0].HttpOnly)
	assert.True(t, cookies[0].Secure)
	assert.Equal(t, "/", cookies[0].Path)

	resp, err = app.Test(httptest.NewRequest("GET", "/clear", nil))
	require.NoError(t, err)
	names := map[string]bool{}
	for _, ck := range resp.Cookies() {
		names[ck.Name] = true
		assert.Empty(t, ck.Value)
		assert.True(t, ck.Expires.Before(time.Now()))
	}
	assert.Equal(t, map[string]bool{CustomerCookie: true, AdminCookie: true, ResellerCookie: true}, names)

	req := httptest.NewRequest("GET", "/values", nil)
	req.Header.Set("Cookie", CustomerCookie+"=c1; "+ResellerCookie+"=r1")
	resp, err = app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
}

func TestCookieName(t *testing.T) {
	assert.Equal(t, CustomerCookie, CookieName(models.KindCustomer))
	assert.Equal(t, AdminCookie, CookieName(models.KindAdmin))
	assert.Equal(t, ResellerCookie, CookieName(models.KindReseller))
}
