package rabbitmq

import (
	"context"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/quarks-tech/orderflow-go/pkg/event"
	"github.com/quarks-tech/orderflow-go/pkg/transport/rabbitmq/connpool"
	"github.com/quarks-tech/orderflow-go/pkg/transport/rabbitmq/message"
)

type senderOptions struct {
	exchange     string
	deliveryMode uint8
	marshaler    Marshaler
}

func defaultSenderOptions() senderOptions {
	return senderOptions{
		exchange:     DefaultExchange,
		deliveryMode: amqp.Persistent,
		marshaler:    message.Marshaler{},
	}
}

type SenderOption func(opts *senderOptions)

func WithExchange(exchange string) SenderOption {
	return func(opts *senderOptions) {
		opts.exchange = exchange
	}
}

func WithTransientDeliveryMode() SenderOption {
	return func(opts *senderOptions) {
		opts.deliveryMode = amqp.Transient
	}
}

func WithSenderMarshaler(m Marshaler) SenderOption {
	return func(opts *senderOptions) {
		opts.marshaler = m
	}
}

// Sender publishes events to a topic exchange using the event type as the
// routing key.
type Sender struct {
	client  *Client
	options senderOptions
}

func NewSender(client *Client, opts ...SenderOption) *Sender {
	options := defaultSenderOptions()

	for _, opt := range opts {
		opt(&options)
	}

	return &Sender{
		client:  client,
		options: options,
	}
}

func (s *Sender) Send(ctx context.Context, md *event.Metadata, data []byte) error {
	publishing, err := s.options.marshaler.Marshal(md, data)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	publishing.DeliveryMode = s.options.deliveryMode
	if publishing.MessageId == "" {
		publishing.MessageId = md.ID
	}
	if publishing.Timestamp.IsZero() {
		publishing.Timestamp = md.Time
	}

	return s.client.Process(ctx, func(ctx context.Context, conn *connpool.Conn) error {
		return conn.Channel().PublishWithContext(ctx, s.options.exchange, md.Type, false, false, publishing)
	})
}
