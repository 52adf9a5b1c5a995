package deadletter

import (
	"context"
	"fmt"
	"io"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/xid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/quarks-tech/orderflow-go/pkg/transport/rabbitmq"
	"github.com/quarks-tech/orderflow-go/pkg/transport/rabbitmq/connpool"
	"github.com/quarks-tech/orderflow-go/pkg/transport/rabbitmq/message"
)

type drainerOptions struct {
	queue     string
	keyField  string
	marshaler rabbitmq.Marshaler
	logger    logrus.FieldLogger
	onRecord  func(*Record)
}

type DrainerOption func(o *drainerOptions)

func WithDrainerQueue(queue string) DrainerOption {
	return func(o *drainerOptions) {
		o.queue = queue
	}
}

func WithDrainerLogger(l logrus.FieldLogger) DrainerOption {
	return func(o *drainerOptions) {
		o.logger = l
	}
}

// WithRecordHook is called with every record before it is acknowledged.
func WithRecordHook(fn func(*Record)) DrainerOption {
	return func(o *drainerOptions) {
		o.onRecord = fn
	}
}

// Drainer consumes the dead-letter queue, logs every message and acks it
// unconditionally, so nothing loops back to the primary queue.
type Drainer struct {
	client  *rabbitmq.Client
	options drainerOptions
	decoder decoder
}

func NewDrainer(client *rabbitmq.Client, opts ...DrainerOption) *Drainer {
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	options := drainerOptions{
		queue:     rabbitmq.DefaultDeadLetterQueue,
		keyField:  defaultKeyField,
		marshaler: message.Marshaler{},
		logger:    logger,
	}

	for _, opt := range opts {
		opt(&options)
	}

	return &Drainer{
		client:  client,
		options: options,
		decoder: decoder{
			marshaler: options.marshaler,
			keyField:  options.keyField,
			now:       time.Now,
		},
	}
}

func (d *Drainer) Run(ctx context.Context) error {
	return d.client.Process(ctx, func(ctx context.Context, conn *connpool.Conn) error {
		return d.run(ctx, conn)
	})
}

func (d *Drainer) run(ctx context.Context, conn *connpool.Conn) error {
	consumerTag := fmt.Sprintf("dlq-drainer-%s", xid.New())

	deliveries, err := conn.Channel().Consume(d.options.queue, consumerTag, false, false, false, false, nil)
	if err != nil {
		return err
	}

	eg, egCtx := errgroup.WithContext(context.Background())

	eg.Go(func() error {
		select {
		case <-ctx.Done():
			return conn.Channel().Cancel(consumerTag, false)
		case <-egCtx.Done():
			return conn.Close()
		case connErr := <-conn.NotifyClose(make(chan *amqp.Error, 1)):
			if connErr == nil {
				return amqp.ErrClosed
			}

			return connErr
		}
	})

	eg.Go(func() error {
		var pos int

		for delivery := range deliveries {
			if err := d.settle(&delivery, pos); err != nil {
				return err
			}

			pos++
		}

		return nil
	})

	return eg.Wait()
}

func (d *Drainer) settle(delivery *amqp.Delivery, pos int) error {
	rec, _, _ := d.decoder.decode(delivery, pos)

	d.options.logger.WithFields(logrus.Fields{
		"orderId":       rec.OrderID,
		"failureReason": rec.FailureReason,
		"originalQueue": rec.OriginalQueue,
		"retryCount":    rec.RetryCount,
	}).Warn("dead-lettered message discarded")

	if d.options.onRecord != nil {
		d.options.onRecord(rec)
	}

	if err := delivery.Ack(false); err != nil {
		return fmt.Errorf("ack dead-lettered message: %w", err)
	}

	return nil
}
