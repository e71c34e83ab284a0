package session

import (
	"strconv"

	"github.com/tajious/portalauth/internal/models"
	"github.com/tajious/portalauth/internal/token"
)

const (
	audienceCustomer = "customer"
	audienceAdmin    = "admin"
	audienceReseller = "reseller"
)

type CustomerClaims struct {
	token.Base
	CustomerID int64  `json:"cid"`
	Email      string `json:"email"`
	Name       string `json:"name"`
}

func newCustomerClaims(id models.CustomerIdentity) *CustomerClaims {
	c := &CustomerClaims{CustomerID: id.ID, Email: id.Email, Name: id.Name}
	c.Subject = strconv.FormatInt(id.ID, 10)
	return c
}

func (c *CustomerClaims) Identity() models.CustomerIdentity {
	return models.CustomerIdentity{ID: c.CustomerID, Email: c.Email, Name: c.Name}
}

// AdminClaims carry nothing beyond the registered claims: the admin role is
// undifferentiated.
type AdminClaims struct {
	token.Base
}

type ResellerClaims struct {
	token.Base
	Reseller string `json:"rsl"`
}
