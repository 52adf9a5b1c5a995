package deadletter

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/quarks-tech/orderflow-go/pkg/event"
	"github.com/quarks-tech/orderflow-go/pkg/transport/rabbitmq"
	"github.com/quarks-tech/orderflow-go/pkg/transport/rabbitmq/message"
)

var errInjected = errors.New("injected failure")

type pending struct {
	queue    string
	delivery amqp.Delivery
}

// fakeBroker keeps queues in memory and settles deliveries like RabbitMQ:
// requeued messages go to the tail and queues with a delivery limit
// dead-letter a message once it was returned that many times.
type fakeBroker struct {
	mu sync.Mutex

	queues  map[string][]amqp.Delivery
	unacked map[uint64]pending
	nextTag uint64

	deliveryLimit map[string]int
	deadLetterTo  string
	now           time.Time

	gets        int
	onGet       func(n int)
	failGetAt   int
	failPublish error
	failAck     error
}

func newFakeBroker() *fakeBroker {
	return &fakeBroker{
		queues:        make(map[string][]amqp.Delivery),
		unacked:       make(map[uint64]pending),
		deliveryLimit: make(map[string]int),
		deadLetterTo:  rabbitmq.DefaultDeadLetterQueue,
		now:           time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		failGetAt:     -1,
	}
}

func (b *fakeBroker) executor() Executor {
	return func(ctx context.Context, fn func(ctx context.Context, ch Channel) error) error {
		return fn(ctx, b)
	}
}

func (b *fakeBroker) Get(queue string, autoAck bool) (amqp.Delivery, bool, error) {
	if b.onGet != nil {
		b.onGet(b.getCount())
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.failGetAt >= 0 && b.gets == b.failGetAt {
		return amqp.Delivery{}, false, errInjected
	}
	b.gets++

	q := b.queues[queue]
	if len(q) == 0 {
		return amqp.Delivery{}, false, nil
	}

	d := q[0]
	b.queues[queue] = q[1:]

	b.nextTag++
	d.DeliveryTag = b.nextTag
	d.Acknowledger = b

	if !autoAck {
		b.unacked[d.DeliveryTag] = pending{queue: queue, delivery: d}
	}

	return d, true, nil
}

func (b *fakeBroker) PublishWithContext(ctx context.Context, exchange, key string, _, _ bool, msg amqp.Publishing) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	if b.failPublish != nil {
		return b.failPublish
	}

	if exchange != "" {
		return &amqp.Error{Code: amqp.NotFound, Reason: "only the default exchange is supported"}
	}

	b.queues[key] = append(b.queues[key], amqp.Delivery{
		Headers:         msg.Headers,
		ContentType:     msg.ContentType,
		ContentEncoding: msg.ContentEncoding,
		DeliveryMode:    msg.DeliveryMode,
		CorrelationId:   msg.CorrelationId,
		MessageId:       msg.MessageId,
		Timestamp:       msg.Timestamp,
		Type:            msg.Type,
		AppId:           msg.AppId,
		RoutingKey:      key,
		Body:            msg.Body,
	})

	return nil
}

func (b *fakeBroker) QueueDeclarePassive(name string, _, _, _, _ bool, _ amqp.Table) (amqp.Queue, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	q, ok := b.queues[name]
	if !ok {
		return amqp.Queue{}, &amqp.Error{Code: amqp.NotFound, Reason: "NOT_FOUND - no queue '" + name + "'"}
	}

	return amqp.Queue{Name: name, Messages: len(q)}, nil
}

func (b *fakeBroker) Ack(tag uint64, _ bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.failAck != nil {
		return b.failAck
	}

	if _, ok := b.unacked[tag]; !ok {
		return errors.New("unknown delivery tag")
	}

	delete(b.unacked, tag)

	return nil
}

func (b *fakeBroker) Nack(tag uint64, _ bool, requeue bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	p, ok := b.unacked[tag]
	if !ok {
		return errors.New("unknown delivery tag")
	}

	delete(b.unacked, tag)

	if !requeue {
		b.deadLetter(p, "rejected")
		return nil
	}

	limit := b.deliveryLimit[p.queue]
	if limit == 0 {
		b.queues[p.queue] = append(b.queues[p.queue], strip(p.delivery))
		return nil
	}

	d := strip(p.delivery)
	d.Headers = copyTable(d.Headers)
	count := rabbitmq.DeliveryCount(d.Headers) + 1
	d.Headers["x-delivery-count"] = count

	if count >= int64(limit) {
		b.deadLetter(pending{queue: p.queue, delivery: d}, "delivery_limit")
		return nil
	}

	b.queues[p.queue] = append(b.queues[p.queue], d)

	return nil
}

func (b *fakeBroker) Reject(tag uint64, requeue bool) error {
	return b.Nack(tag, false, requeue)
}

func (b *fakeBroker) deadLetter(p pending, reason string) {
	d := strip(p.delivery)
	d.Headers = copyTable(d.Headers)
	d.Headers["x-death"] = []interface{}{
		amqp.Table{
			"queue":  p.queue,
			"reason": reason,
			"count":  int64(1),
			"time":   b.now,
		},
	}
	d.Headers["x-first-death-queue"] = p.queue
	d.Headers["x-first-death-reason"] = reason
	d.RoutingKey = rabbitmq.DefaultDeadLetterKey

	b.queues[b.deadLetterTo] = append(b.queues[b.deadLetterTo], d)
}

func (b *fakeBroker) getCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.gets
}

func (b *fakeBroker) put(queue string, d amqp.Delivery) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.queues[queue] = append(b.queues[queue], d)
}

func (b *fakeBroker) depth(queue string) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	return len(b.queues[queue])
}

func (b *fakeBroker) messages(queue string) []amqp.Delivery {
	b.mu.Lock()
	defer b.mu.Unlock()

	return append([]amqp.Delivery(nil), b.queues[queue]...)
}

func strip(d amqp.Delivery) amqp.Delivery {
	d.Acknowledger = nil
	d.DeliveryTag = 0

	return d
}

func copyTable(t amqp.Table) amqp.Table {
	out := amqp.Table{}
	for k, v := range t {
		out[k] = v
	}

	return out
}

// orderDelivery builds a structured CloudEvents message for orderID.
func orderDelivery(t *testing.T, orderID string) amqp.Delivery {
	t.Helper()

	md := &event.Metadata{
		SpecVersion:     "1.0",
		Type:            "orders.created",
		Source:          "orders-service",
		Subject:         orderID,
		ID:              "evt-" + orderID,
		DataContentType: event.StructuredJSONContentType,
	}

	pub, err := message.Marshaler{}.Marshal(md, []byte(`{"orderId":"`+orderID+`","userId":"u-1","shippingAddress":"Main St 1"}`))
	if err != nil {
		t.Fatalf("marshal %s: %v", orderID, err)
	}

	return amqp.Delivery{
		ContentType: pub.ContentType,
		MessageId:   pub.MessageId,
		Type:        pub.Type,
		RoutingKey:  "orders.created",
		Headers:     amqp.Table{},
		Body:        pub.Body,
	}
}

// deadLettered builds a message the way the broker stores it in the
// dead-letter queue after it failed in origin.
func deadLettered(t *testing.T, b *fakeBroker, orderID, origin string) amqp.Delivery {
	t.Helper()

	d := orderDelivery(t, orderID)
	d.Headers["x-death"] = []interface{}{
		amqp.Table{"queue": origin, "reason": "delivery_limit", "count": int64(1), "time": b.now},
	}
	d.Headers["x-delivery-count"] = int64(3)

	return d
}

func orderIDs(t *testing.T, b *fakeBroker, queue string) []string {
	t.Helper()

	dec := decoder{marshaler: message.Marshaler{}, keyField: "orderId", now: time.Now}

	var ids []string

	for i, d := range b.messages(queue) {
		rec, _, _ := dec.decode(&d, i)
		ids = append(ids, rec.OrderID)
	}

	return ids
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}

	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}

	return true
}
