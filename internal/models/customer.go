package models

import (
	"time"
)

type Customer struct {
	ID        int64     `json:"id" gorm:"primaryKey"`
	Email     string    `json:"email" gorm:"not null;uniqueIndex"`
	Phone     string    `json:"phone,omitempty" gorm:"index"`
	Name      string    `json:"name" gorm:"not null"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type PrincipalKind string

const (
	KindCustomer PrincipalKind = "customer"
	KindAdmin    PrincipalKind = "admin"
	KindReseller PrincipalKind = "reseller"
)

// CustomerIdentity is the part of a customer carried inside a session token.
type CustomerIdentity struct {
	ID    int64  `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
}

// Principal is the authenticated identity resolved from a session artifact.
// Only one of Customer and Reseller is set, according to Kind. Admin carries
// no identity.
type Principal struct {
	Kind     PrincipalKind     `json:"kind"`
	Customer *CustomerIdentity `json:"customer,omitempty"`
	Reseller string            `json:"reseller,omitempty"`
}

func CustomerPrincipal(id CustomerIdentity) Principal {
	return Principal{Kind: KindCustomer, Customer: &id}
}

func AdminPrincipal() Principal {
	return Principal{Kind: KindAdmin}
}

func ResellerPrincipal(name string) Principal {
	return Principal{Kind: KindReseller, Reseller: name}
}
