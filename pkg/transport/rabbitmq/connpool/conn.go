package connpool

import (
	"sync/atomic"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Conn pairs one AMQP connection with the single channel opened on it.
// A Conn is used by one command at a time.
type Conn struct {
	amqpConn    *amqp.Connection
	amqpChannel *amqp.Channel
	createdAt   time.Time
	usedAt      int64 // atomic
}

func NewConn(amqpConn *amqp.Connection, amqpCh *amqp.Channel) *Conn {
	conn := &Conn{
		amqpConn:    amqpConn,
		amqpChannel: amqpCh,
		createdAt:   time.Now(),
	}

	conn.SetUsedAt(time.Now())

	return conn
}

func (c *Conn) UsedAt() time.Time {
	return time.Unix(atomic.LoadInt64(&c.usedAt), 0)
}

func (c *Conn) SetUsedAt(tm time.Time) {
	atomic.StoreInt64(&c.usedAt, tm.Unix())
}

func (c *Conn) CreatedAt() time.Time {
	return c.createdAt
}

func (c *Conn) Channel() *amqp.Channel {
	c.SetUsedAt(time.Now())

	return c.amqpChannel
}

func (c *Conn) NotifyClose(receiver chan *amqp.Error) chan *amqp.Error {
	c.SetUsedAt(time.Now())

	return c.amqpConn.NotifyClose(receiver)
}

// IsClosed reports whether the connection or its channel is gone. A channel
// exception closes the channel while the connection stays open.
func (c *Conn) IsClosed() bool {
	return c.amqpConn.IsClosed() || c.amqpChannel.IsClosed()
}

func (c *Conn) Close() error {
	return c.amqpConn.Close()
}
