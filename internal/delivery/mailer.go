package delivery

import (
	"context"
	"fmt"
	"time"

	"gopkg.in/gomail.v2"
)

const loginSubject = "Your sign-in link"

type Mailer struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	// LinkTTL is the lifetime stated in the message body.
	LinkTTL time.Duration
}

func (m *Mailer) SendLoginLinkEmail(ctx context.Context, to, link string) error {
	const op = "delivery.Mailer.SendLoginLinkEmail"

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	dialer := gomail.NewDialer(m.Host, m.Port, m.Username, m.Password)
	if err := dialer.DialAndSend(m.loginMessage(to, link)); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (m *Mailer) loginMessage(to, link string) *gomail.Message {
	msg := gomail.NewMessage()
	msg.SetHeader("From", m.From)
	msg.SetHeader("To", to)
	msg.SetHeader("Subject", loginSubject)

	msg.SetBody("text/plain", fmt.Sprintf(
		"Use the link below to sign in. It works once and expires in %s.\n\n%s\n\nIf you did not ask for it, ignore this message.\n",
		humanDuration(m.LinkTTL), link,
	))
	return msg
}

func humanDuration(d time.Duration) string {
	switch {
	case d <= 0:
		return "a short while"
	case d%time.Hour == 0:
		return plural(int(d/time.Hour), "hour")
	case d%time.Minute == 0:
		return plural(int(d/time.Minute), "minute")
	default:
		return d.String()
	}
}

func plural(n int, unit string) string {
	if n == 1 {
		return "1 " + unit
	}
	return fmt.Sprintf("%d %ss", n, unit)
}
