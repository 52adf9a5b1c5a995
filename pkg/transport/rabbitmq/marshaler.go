package rabbitmq

import (
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/quarks-tech/orderflow-go/pkg/event"
)

type Marshaler interface {
	Unmarshal(d *amqp.Delivery) (*event.Metadata, []byte, error)
	Marshal(md *event.Metadata, data []byte) (amqp.Publishing, error)
}
