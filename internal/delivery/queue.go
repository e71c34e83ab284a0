package delivery

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// QueuePublisher publishes login links to durable queues, one per channel.
// cmd/linksender drains the e-mail queue. Nothing in this module drains the
// SMS queue: an external SMS gateway worker must consume it, otherwise SMS
// links are accepted here and never sent.
type QueuePublisher struct {
	conn       *amqp.Connection
	channel    *amqp.Channel
	emailQueue string
	smsQueue   string
	linkTTL    time.Duration
}

// NewQueuePublisher declares both queues. Messages expire from the broker
// after linkTTL, the lifetime of the link they carry.
func NewQueuePublisher(url, emailQueue, smsQueue string, linkTTL time.Duration) (*QueuePublisher, error) {
	const op = "delivery.NewQueuePublisher"

	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	for _, name := range []string{emailQueue, smsQueue} {
		if _, err := ch.QueueDeclare(name, true, false, false, false, nil); err != nil {
			ch.Close()
			conn.Close()
			return nil, fmt.Errorf("%s: %w", op, err)
		}
	}

	return &QueuePublisher{
		conn:       conn,
		channel:    ch,
		emailQueue: emailQueue,
		smsQueue:   smsQueue,
		linkTTL:    linkTTL,
	}, nil
}

func (p *QueuePublisher) SendLoginLinkEmail(ctx context.Context, to, link string) error {
	return p.publish(ctx, p.emailQueue, LinkMessage{Channel: ChannelEmail, To: to, Link: link})
}

func (p *QueuePublisher) SendLoginLinkSms(ctx context.Context, to, link string) error {
	return p.publish(ctx, p.smsQueue, LinkMessage{Channel: ChannelSMS, To: to, Link: link})
}

func (p *QueuePublisher) publish(ctx context.Context, queue string, msg LinkMessage) error {
	const op = "delivery.QueuePublisher.publish"

	pub, err := encodeLinkMessage(msg, time.Now(), p.linkTTL)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if err := p.channel.PublishWithContext(ctx, "", queue, false, false, pub); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (p *QueuePublisher) Close() {
	_ = p.channel.Close()
	_ = p.conn.Close()
}

func encodeLinkMessage(msg LinkMessage, now time.Time, ttl time.Duration) (amqp.Publishing, error) {
	body, err := json.Marshal(msg)
	if err != nil {
		return amqp.Publishing{}, err
	}
	pub := amqp.Publishing{
		ContentType:  "application/json",
		Body:         body,
		DeliveryMode: amqp.Persistent,
		Timestamp:    now,
	}
	// Stale links are dropped by the broker.
	if ttl > 0 {
		pub.Expiration = strconv.FormatInt(ttl.Milliseconds(), 10)
	}
	return pub, nil
}

// DecodeLinkMessage parses a delivery body published by QueuePublisher.
func DecodeLinkMessage(body []byte) (LinkMessage, error) {
	var msg LinkMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		return LinkMessage{}, err
	}
	if msg.To == "" || msg.Link == "" {
		return LinkMessage{}, fmt.Errorf("delivery: incomplete link message")
	}
	return msg, nil
}

// Consume calls handle for each message on queue until ctx is done. A
// message is acked when handle succeeds and dropped otherwise.
func Consume(ctx context.Context, url, queue string, handle func(context.Context, LinkMessage) error) error {
	const op = "delivery.Consume"

	conn, err := amqp.Dial(url)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer ch.Close()

	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	msgs, err := ch.Consume(queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-msgs:
			if !ok {
				return fmt.Errorf("%s: delivery channel closed", op)
			}
			msg, err := DecodeLinkMessage(d.Body)
			if err == nil {
				err = handle(ctx, msg)
			}
			if err != nil {
				_ = d.Nack(false, false)
				continue
			}
			_ = d.Ack(false)
		}
	}
}
