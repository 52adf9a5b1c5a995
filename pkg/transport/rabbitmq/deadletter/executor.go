package deadletter

import (
	"context"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/quarks-tech/orderflow-go/pkg/transport/rabbitmq"
	"github.com/quarks-tech/orderflow-go/pkg/transport/rabbitmq/connpool"
)

// Channel is the subset of *amqp.Channel a scan needs. Deliveries returned by
// Get are settled through their own Acknowledger.
type Channel interface {
	Get(queue string, autoAck bool) (amqp.Delivery, bool, error)
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	QueueDeclarePassive(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
}

// Executor runs fn on one channel held exclusively for the duration of the
// call. It must not retry fn.
type Executor func(ctx context.Context, fn func(ctx context.Context, ch Channel) error) error

// ClientExecutor runs scans on the pooled channels of client, one attempt each.
func ClientExecutor(client *rabbitmq.Client) Executor {
	return func(ctx context.Context, fn func(ctx context.Context, ch Channel) error) error {
		return client.Exec(ctx, func(ctx context.Context, conn *connpool.Conn) error {
			return fn(ctx, conn.Channel())
		})
	}
}
