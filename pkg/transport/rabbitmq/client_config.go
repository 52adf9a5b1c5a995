package rabbitmq

import (
	"runtime"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/quarks-tech/orderflow-go/pkg/transport/rabbitmq/connpool"
)

type Config struct {
	// Address is host:port[/vhost] without scheme and credentials.
	Address string

	AMQP amqp.Config

	// Maximum number of retries before giving up.
	// Default is 3 retries; -1 (not 0) disables retries.
	MaxRetries int
	// Minimum backoff between each retry.
	// Default is 8 milliseconds; -1 disables backoff.
	MinRetryBackoff time.Duration
	// Maximum backoff between each retry.
	// Default is 512 milliseconds; -1 disables backoff.
	MaxRetryBackoff time.Duration

	// Dial timeout for establishing new connections.
	// Default is 5 seconds.
	DialTimeout time.Duration

	// Maximum number of connections, each with its own channel.
	// Default is 10 connections per every available CPU as reported by runtime.GOMAXPROCS.
	PoolSize int
	// Connection age at which client retires (closes) the connection.
	// Default is to not close aged connections.
	MaxConnAge time.Duration
	// Amount of time client waits for connection if all connections
	// are busy before returning an error.
	// Default is 1 second.
	PoolTimeout time.Duration
	// Amount of time after which client closes idle connections.
	// Default is to not close idle connections.
	IdleTimeout time.Duration
}

func (c *Config) complete() {
	if c.DialTimeout == 0 {
		c.DialTimeout = 5 * time.Second
	}

	if c.AMQP.Dial == nil {
		c.AMQP.Dial = amqp.DefaultDial(c.DialTimeout)
	}

	if c.PoolSize == 0 {
		c.PoolSize = 10 * runtime.GOMAXPROCS(0)
	}

	if c.PoolTimeout == 0 {
		c.PoolTimeout = time.Second
	}

	if c.MaxRetries == -1 {
		c.MaxRetries = 0
	} else if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}
	switch c.MinRetryBackoff {
	case -1:
		c.MinRetryBackoff = 0
	case 0:
		c.MinRetryBackoff = 8 * time.Millisecond
	}
	switch c.MaxRetryBackoff {
	case -1:
		c.MaxRetryBackoff = 0
	case 0:
		c.MaxRetryBackoff = 512 * time.Millisecond
	}
}

func newConnPool(cfg *Config) *connpool.ConnPool {
	cfg.complete()

	return connpool.New(&connpool.Options{
		Dialer: func() (*amqp.Connection, *amqp.Channel, error) {
			conn, err := amqp.DialConfig("amqp://"+cfg.Address, cfg.AMQP)
			if err != nil {
				return nil, nil, err
			}

			ch, err := conn.Channel()
			if err != nil {
				_ = conn.Close()
				return nil, nil, err
			}

			return conn, ch, nil
		},
		PoolSize:    cfg.PoolSize,
		MaxConnAge:  cfg.MaxConnAge,
		PoolTimeout: cfg.PoolTimeout,
		IdleTimeout: cfg.IdleTimeout,
	})
}
