package rabbitmq

import (
	"context"
	"fmt"
	"io"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/xid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/quarks-tech/orderflow-go/pkg/event"
	"github.com/quarks-tech/orderflow-go/pkg/eventbus"
	"github.com/quarks-tech/orderflow-go/pkg/transport/rabbitmq/connpool"
	"github.com/quarks-tech/orderflow-go/pkg/transport/rabbitmq/message"
)

// ReprocessedHeader marks a message that was republished from the dead-letter queue.
const ReprocessedHeader = "x-reprocessed"

// Outcome is the acknowledgment given to a single delivery.
type Outcome string

const (
	OutcomeAcked    Outcome = "acked"
	OutcomeRequeued Outcome = "requeued"
	OutcomeRejected Outcome = "rejected"
)

type receiverOptions struct {
	queue         string
	exchange      string
	prefetchCount int
	workerCount   int
	topology      *Topology
	setupBindings bool
	marshaler     Marshaler
	logger        logrus.FieldLogger
	outcomeHook   func(Outcome)
}

func defaultReceiverOptions() receiverOptions {
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	return receiverOptions{
		queue:         DefaultQueue,
		exchange:      DefaultExchange,
		prefetchCount: 1,
		workerCount:   1,
		marshaler:     message.Marshaler{},
		logger:        logger,
	}
}

type ReceiverOption func(o *receiverOptions)

func WithQueue(queue string) ReceiverOption {
	return func(o *receiverOptions) {
		o.queue = queue
	}
}

func WithPrefetchCount(c int) ReceiverOption {
	return func(o *receiverOptions) {
		o.prefetchCount = c
	}
}

func WithWorkerNum(c int) ReceiverOption {
	return func(o *receiverOptions) {
		o.workerCount = c
	}
}

// WithTopologySetup declares t during Setup and consumes t.Queue.
func WithTopologySetup(t Topology) ReceiverOption {
	return func(o *receiverOptions) {
		o.topology = &t
		o.queue = t.Queue
		o.exchange = t.Exchange
	}
}

// WithBindingsSetup binds the queue to the exchange once per subscribed event type.
func WithBindingsSetup() ReceiverOption {
	return func(o *receiverOptions) {
		o.setupBindings = true
	}
}

func WithMarshaler(m Marshaler) ReceiverOption {
	return func(o *receiverOptions) {
		o.marshaler = m
	}
}

func WithLogger(l logrus.FieldLogger) ReceiverOption {
	return func(o *receiverOptions) {
		o.logger = l
	}
}

// WithOutcomeHook registers fn to be called after every acknowledgment.
func WithOutcomeHook(fn func(Outcome)) ReceiverOption {
	return func(o *receiverOptions) {
		o.outcomeHook = fn
	}
}

// Receiver consumes a queue with manual acknowledgments. Retries are left to
// the broker: a failed delivery is requeued and the queue's delivery limit
// decides when it is dead-lettered.
type Receiver struct {
	client      *Client
	options     receiverOptions
	consumerTag string
}

func NewReceiver(client *Client, opts ...ReceiverOption) *Receiver {
	options := defaultReceiverOptions()

	for _, opt := range opts {
		opt(&options)
	}

	if options.workerCount < 1 {
		options.workerCount = 1
	}

	return &Receiver{
		client:  client,
		options: options,
	}
}

func (r *Receiver) Setup(ctx context.Context, consumerName string, eventTypes ...string) error {
	r.consumerTag = fmt.Sprintf("%s-%s", consumerName, xid.New())

	if r.options.topology != nil {
		if err := DeclareTopology(ctx, r.client, *r.options.topology); err != nil {
			return err
		}
	}

	if !r.options.setupBindings {
		return nil
	}

	return r.client.Process(ctx, func(ctx context.Context, conn *connpool.Conn) error {
		for _, eventType := range eventTypes {
			if err := conn.Channel().QueueBind(r.options.queue, eventType, r.options.exchange, false, nil); err != nil {
				return &TopologyError{Object: "binding " + eventType, Err: err}
			}
		}

		return nil
	})
}

func (r *Receiver) Receive(ctx context.Context, processor eventbus.Processor) error {
	return r.client.Process(ctx, func(ctx context.Context, conn *connpool.Conn) error {
		return r.receive(ctx, conn, processor)
	})
}

func (r *Receiver) receive(ctx context.Context, conn *connpool.Conn, processor eventbus.Processor) error {
	if err := conn.Channel().Qos(r.options.prefetchCount, 0, false); err != nil {
		return err
	}

	deliveries, err := conn.Channel().Consume(r.options.queue, r.consumerTag, false, false, false, false, nil)
	if err != nil {
		return err
	}

	r.options.logger.WithFields(logrus.Fields{
		"queue":       r.options.queue,
		"consumerTag": r.consumerTag,
	}).Info("consuming")

	eg, egCtx := errgroup.WithContext(context.Background())

	eg.Go(func() error {
		select {
		case <-ctx.Done():
			return conn.Channel().Cancel(r.consumerTag, false)
		case <-egCtx.Done():
			return conn.Close()
		case connErr := <-conn.NotifyClose(make(chan *amqp.Error, 1)):
			if connErr == nil {
				return amqp.ErrClosed
			}

			return connErr
		}
	})

	for i := 0; i < r.options.workerCount; i++ {
		eg.Go(func() error {
			for delivery := range deliveries {
				select {
				case <-egCtx.Done():
					return nil
				default:
					if err := r.handle(ctx, &delivery, processor); err != nil {
						return err
					}
				}
			}

			return nil
		})
	}

	return eg.Wait()
}

func (r *Receiver) handle(ctx context.Context, d *amqp.Delivery, processor eventbus.Processor) error {
	md, data, err := r.options.marshaler.Unmarshal(d)
	if err != nil {
		err = eventbus.NewUnprocessableEventError(fmt.Errorf("unmarshal delivery: %w", err))
	} else {
		err = processor(ctx, md, data)
	}

	outcome, ackErr := doAcknowledge(d, err)
	if ackErr != nil {
		return fmt.Errorf("do acknowledge: %w", ackErr)
	}

	r.report(d, md, outcome, err)

	return nil
}

func (r *Receiver) report(d *amqp.Delivery, md *event.Metadata, outcome Outcome, err error) {
	if r.options.outcomeHook != nil {
		r.options.outcomeHook(outcome)
	}

	entry := r.options.logger.WithFields(deliveryFields(d, md))

	switch outcome {
	case OutcomeAcked:
		entry.Debug("event processed")
	case OutcomeRequeued:
		entry.WithError(err).Warn("event processing failed, requeued")
	case OutcomeRejected:
		entry.WithError(err).Error("event rejected, dead-lettering")
	}
}

func deliveryFields(d *amqp.Delivery, md *event.Metadata) logrus.Fields {
	fields := logrus.Fields{
		"deliveryCount": DeliveryCount(d.Headers),
		"reprocessed":   IsReprocessed(d.Headers),
		"eventId":       d.MessageId,
		"eventType":     d.Type,
	}

	if md != nil {
		fields["orderId"] = md.Subject
		fields["eventId"] = md.ID
		fields["eventType"] = md.Type
	}

	return fields
}

// IsReprocessed reports whether headers carry the reprocessing marker.
func IsReprocessed(headers amqp.Table) bool {
	v, _ := headers[ReprocessedHeader].(bool)

	return v
}

// doAcknowledge settles d exactly once: success acks, an unprocessable event
// is rejected without requeue and any other failure is requeued.
func doAcknowledge(d *amqp.Delivery, err error) (Outcome, error) {
	switch {
	case err == nil:
		return OutcomeAcked, d.Ack(false)
	case eventbus.IsUnprocessableEventError(err):
		return OutcomeRejected, d.Reject(false)
	default:
		return OutcomeRequeued, d.Nack(false, true)
	}
}
