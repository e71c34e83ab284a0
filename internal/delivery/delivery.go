package delivery

import (
	"context"
	"errors"
)

var ErrNoChannel = errors.New("delivery channel not configured")

const (
	ChannelEmail = "email"
	ChannelSMS   = "sms"
)

// LinkMessage is the payload published for a login link.
type LinkMessage struct {
	Channel string `json:"channel"`
	To      string `json:"to"`
	Link    string `json:"link"`
}

type EmailSender interface {
	SendLoginLinkEmail(ctx context.Context, to, link string) error
}

type SMSSender interface {
	SendLoginLinkSms(ctx context.Context, to, link string) error
}

// Channels routes each delivery method to its own sender. A nil sender makes
// that method fail with ErrNoChannel.
type Channels struct {
	Email EmailSender
	SMS   SMSSender
}

func (c Channels) SendLoginLinkEmail(ctx context.Context, to, link string) error {
	if c.Email == nil {
		return ErrNoChannel
	}
	return c.Email.SendLoginLinkEmail(ctx, to, link)
}

func (c Channels) SendLoginLinkSms(ctx context.Context, to, link string) error {
	if c.SMS == nil {
		return ErrNoChannel
	}
	return c.SMS.SendLoginLinkSms(ctx, to, link)
}
