package models

import (
	"time"
)

type MagicLinkRequest struct {
	Method      DeliveryMethod `json:"method" validate:"required,oneof=email sms"`
	Destination string         `json:"destination" validate:"required,max=254"`
}

type AdminLoginRequest struct {
	Secret string `json:"secret" validate:"required,max=72"`
}

type ResellerLoginRequest struct {
	Name   string `json:"name" validate:"required,max=64"`
	Secret string `json:"secret" validate:"required,max=72"`
}

type SessionResponse struct {
	Principal Principal `json:"principal"`
	ExpiresAt time.Time `json:"expires_at"`
}
