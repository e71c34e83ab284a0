package delivery

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	to, link string
	err      error
}

func (r *recorder) SendLoginLinkEmail(_ context.Context, to, link string) error {
	r.to, r.link = to, link
	return r.err
}

func (r *recorder) SendLoginLinkSms(_ context.Context, to, link string) error {
	r.to, r.link = to, link
	return r.err
}

func TestChannelsRouting(t *testing.T) {
	email := &recorder{}
	sms := &recorder{}
	ch := Channels{Email: email, SMS: sms}

	require.NoError(t, ch.SendLoginLinkEmail(context.Background(), "a@example.com", "https://x/1"))
	require.NoError(t, ch.SendLoginLinkSms(context.Background(), "+1555", "https://x/2"))

	assert.Equal(t, "a@example.com", email.to)
	assert.Equal(t, "https://x/1", email.link)
	assert.Equal(t, "+1555", sms.to)
	assert.Equal(t, "https://x/2", sms.link)
}

func TestChannelsMissingSender(t *testing.T) {
	ch := Channels{Email: &recorder{}}
	err := ch.SendLoginLinkSms(context.Background(), "+1555", "https://x")
	require.ErrorIs(t, err, ErrNoChannel)
}

func TestChannelsPropagatesFailure(t *testing.T) {
	boom := errors.New("boom")
	ch := Channels{Email: &recorder{err: boom}}
	require.ErrorIs(t, ch.SendLoginLinkEmail(context.Background(), "a", "b"), boom)
}

func TestEncodeDecodeLinkMessage(t *testing.T) {
	now := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	pub, err := encodeLinkMessage(LinkMessage{Channel: ChannelSMS, To: "+1555", Link: "https://x?token=abc"}, now, 15*time.Minute)
	require.NoError(t, err)

	assert.Equal(t, "application/json", pub.ContentType)
	assert.Equal(t, "900000", pub.Expiration)
	assert.Equal(t, amqp.Persistent, pub.DeliveryMode)
	assert.Equal(t, now, pub.Timestamp)

	var raw map[string]string
	require.NoError(t, json.Unmarshal(pub.Body, &raw))
	assert.Equal(t, "sms", raw["channel"])

	msg, err := DecodeLinkMessage(pub.Body)
	require.NoError(t, err)
	assert.Equal(t, "+1555", msg.To)
	assert.Equal(t, "https://x?token=abc", msg.Link)

	_, err = DecodeLinkMessage([]byte(`{"channel":"email"}`))
	require.Error(t, err)
	_, err = DecodeLinkMessage([]byte(`not json`))
	require.Error(t, err)
}

func TestExpirationFollowsLinkTTL(t *testing.T) {
	msg := LinkMessage{Channel: ChannelEmail, To: "a@b.c", Link: "https://x"}

	pub, err := encodeLinkMessage(msg, time.Now(), 2*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, "7200000", pub.Expiration)

	pub, err = encodeLinkMessage(msg, time.Now(), 0)
	require.NoError(t, err)
	assert.Empty(t, pub.Expiration)
}

func TestMailerStatesLinkLifetime(t *testing.T) {
	tests := []struct {
		ttl  time.Duration
		want string
	}{
		{15 * time.Minute, "expires in 15 minutes"},
		{time.Hour, "expires in 1 hour"},
		{2 * time.Hour, "expires in 2 hours"},
		{90 * time.Second, "expires in 1m30s"},
	}

	for _, tt := range tests {
		m := &Mailer{From: "support@portal.example.com", LinkTTL: tt.ttl}
		var body strings.Builder
		_, err := m.loginMessage("c@example.com", "https://x").WriteTo(&body)
		require.NoError(t, err)
		assert.Contains(t, body.String(), tt.want)
	}
}

func TestMailerLoginMessage(t *testing.T) {
	m := &Mailer{From: "support@portal.example.com"}
	msg := m.loginMessage("c@example.com", "https://portal.example.com/verify?token=t")

	assert.Equal(t, []string{"support@portal.example.com"}, msg.GetHeader("From"))
	assert.Equal(t, []string{"c@example.com"}, msg.GetHeader("To"))
	assert.Equal(t, []string{loginSubject}, msg.GetHeader("Subject"))

	var body strings.Builder
	_, err := msg.WriteTo(&body)
	require.NoError(t, err)
	assert.Contains(t, body.String(), "https://portal.example.com/verify?token")
}

func TestMailerHonoursCancelledContext(t *testing.T) {
	m := &Mailer{Host: "127.0.0.1", Port: 1}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, m.SendLoginLinkEmail(ctx, "a@b.c", "x"), context.Canceled)
}
