package models

import (
	"time"
)

type DeliveryMethod string

const (
	DeliveryEmail DeliveryMethod = "email"
	DeliverySMS   DeliveryMethod = "sms"
)

func (m DeliveryMethod) Valid() bool {
	return m == DeliveryEmail || m == DeliverySMS
}

// MagicLink is the stored half of a login link. Only the SHA-256 of the
// token is kept. A customer has at most one unused record.
type MagicLink struct {
	ID             string         `json:"id" gorm:"primaryKey;size:36"`
	CustomerID     int64          `json:"customer_id" gorm:"not null;index;uniqueIndex:idx_magic_links_live_customer,where:used_at IS NULL"`
	TokenHash      string         `json:"-" gorm:"not null;uniqueIndex;size:64"`
	DeliveryMethod DeliveryMethod `json:"delivery_method" gorm:"not null;size:8"`
	DeliveredTo    string         `json:"delivered_to" gorm:"not null"`
	CreatedAt      time.Time      `json:"created_at"`
	ExpiresAt      time.Time      `json:"expires_at" gorm:"not null;index"`
	UsedAt         *time.Time     `json:"used_at,omitempty"`
}

func (m *MagicLink) IsExpired(now time.Time) bool {
	return now.After(m.ExpiresAt)
}

func (m *MagicLink) IsUsed() bool {
	return m.UsedAt != nil
}

func (m *MagicLink) IsActive(now time.Time) bool {
	return !m.IsUsed() && !m.IsExpired(now)
}
