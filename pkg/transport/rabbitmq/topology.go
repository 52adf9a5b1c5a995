package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/quarks-tech/orderflow-go/pkg/transport/rabbitmq/connpool"
)

const (
	DefaultExchange           = "events_exchange"
	DefaultQueue              = "orders_queue"
	DefaultBindingKey         = "orders.*"
	DefaultDeadLetterExchange = "dlq_exchange"
	DefaultDeadLetterKey      = "dlq.orders"
	DefaultDeadLetterQueue    = "dlq_queue"
	DefaultDeadLetterBinding  = "dlq.#"
	DefaultDeliveryLimit      = 3
	DefaultMessageTTL         = 24 * time.Hour
	DefaultDeadLetterTTL      = 7 * 24 * time.Hour
)

// Topology describes the primary queue and the dead-letter path behind it.
// Once DeliveryLimit deliveries of a message have been requeued the broker
// reroutes it through DeadLetterExchange with DeadLetterKey.
type Topology struct {
	Exchange   string
	Queue      string
	BindingKey string

	DeadLetterExchange string
	DeadLetterKey      string
	DeadLetterQueue    string
	DeadLetterBinding  string

	DeliveryLimit int
	MessageTTL    time.Duration
	DeadLetterTTL time.Duration
}

func DefaultTopology() Topology {
	return Topology{
		Exchange:           DefaultExchange,
		Queue:              DefaultQueue,
		BindingKey:         DefaultBindingKey,
		DeadLetterExchange: DefaultDeadLetterExchange,
		DeadLetterKey:      DefaultDeadLetterKey,
		DeadLetterQueue:    DefaultDeadLetterQueue,
		DeadLetterBinding:  DefaultDeadLetterBinding,
		DeliveryLimit:      DefaultDeliveryLimit,
		MessageTTL:         DefaultMessageTTL,
		DeadLetterTTL:      DefaultDeadLetterTTL,
	}
}

func (t Topology) Validate() error {
	if t.DeliveryLimit < 1 {
		return fmt.Errorf("delivery limit must be at least 1, got %d", t.DeliveryLimit)
	}

	names := []struct{ field, value string }{
		{"exchange", t.Exchange},
		{"queue", t.Queue},
		{"binding key", t.BindingKey},
		{"dead letter exchange", t.DeadLetterExchange},
		{"dead letter key", t.DeadLetterKey},
		{"dead letter queue", t.DeadLetterQueue},
		{"dead letter binding", t.DeadLetterBinding},
	}

	for _, n := range names {
		if n.value == "" {
			return fmt.Errorf("%s must not be empty", n.field)
		}
	}

	if t.MessageTTL < 0 || t.DeadLetterTTL < 0 {
		return errors.New("message ttl must not be negative")
	}

	return nil
}

// QueueArgs returns the arguments of the primary queue.
func (t Topology) QueueArgs() amqp.Table {
	args := amqp.Table{
		"x-queue-type":              "quorum",
		"x-delivery-limit":          int64(t.DeliveryLimit),
		"x-dead-letter-exchange":    t.DeadLetterExchange,
		"x-dead-letter-routing-key": t.DeadLetterKey,
	}

	if t.MessageTTL > 0 {
		args["x-message-ttl"] = t.MessageTTL.Milliseconds()
	}

	return args
}

func (t Topology) DeadLetterQueueArgs() amqp.Table {
	if t.DeadLetterTTL <= 0 {
		return nil
	}

	return amqp.Table{
		"x-message-ttl": t.DeadLetterTTL.Milliseconds(),
	}
}

// TopologyError is returned when the broker refuses a declaration, for
// example because an existing queue was declared with other arguments.
// Messages cannot be routed correctly until the topology is fixed.
type TopologyError struct {
	Object string
	Err    error
}

func (e *TopologyError) Error() string {
	return fmt.Sprintf("declare %s: %s", e.Object, e.Err)
}

func (e *TopologyError) Unwrap() error { return e.Err }

func IsTopologyError(err error) bool {
	var topologyErr *TopologyError

	return errors.As(err, &topologyErr)
}

// DeclareTopology declares exchanges, queues and bindings of t. Declarations
// are idempotent as long as the arguments match what the broker already has.
func DeclareTopology(ctx context.Context, client *Client, t Topology) error {
	if err := t.Validate(); err != nil {
		return &TopologyError{Object: "topology", Err: err}
	}

	return client.Process(ctx, func(ctx context.Context, conn *connpool.Conn) error {
		return declareTopology(conn.Channel(), t)
	})
}

type declarer interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	QueueBind(name, key, exchange string, noWait bool, args amqp.Table) error
}

func declareTopology(ch declarer, t Topology) error {
	if err := ch.ExchangeDeclare(t.Exchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		return &TopologyError{Object: "exchange " + t.Exchange, Err: err}
	}

	if err := ch.ExchangeDeclare(t.DeadLetterExchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		return &TopologyError{Object: "exchange " + t.DeadLetterExchange, Err: err}
	}

	if _, err := ch.QueueDeclare(t.DeadLetterQueue, true, false, false, false, t.DeadLetterQueueArgs()); err != nil {
		return &TopologyError{Object: "queue " + t.DeadLetterQueue, Err: err}
	}

	if err := ch.QueueBind(t.DeadLetterQueue, t.DeadLetterBinding, t.DeadLetterExchange, false, nil); err != nil {
		return &TopologyError{Object: "binding " + t.DeadLetterQueue, Err: err}
	}

	if _, err := ch.QueueDeclare(t.Queue, true, false, false, false, t.QueueArgs()); err != nil {
		return &TopologyError{Object: "queue " + t.Queue, Err: err}
	}

	if err := ch.QueueBind(t.Queue, t.BindingKey, t.Exchange, false, nil); err != nil {
		return &TopologyError{Object: "binding " + t.Queue, Err: err}
	}

	return nil
}
