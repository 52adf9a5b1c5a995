package rabbitmq

import (
	"context"
	"errors"
	"io"
	"math/rand"
	"net"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/quarks-tech/orderflow-go/pkg/transport/rabbitmq/connpool"
)

type Command func(ctx context.Context, conn *connpool.Conn) error

type Client struct {
	config   *Config
	connPool *connpool.ConnPool
}

func NewClient(config *Config) *Client {
	return &Client{
		config:   config,
		connPool: newConnPool(config),
	}
}

func (c *Client) releaseConn(ctx context.Context, conn *connpool.Conn, err error) {
	if isBadConnErr(err) || conn.IsClosed() {
		c.connPool.Remove(ctx, conn, err)
	} else {
		c.connPool.Put(ctx, conn)
	}
}

func (c *Client) withConn(ctx context.Context, fn Command) (err error) {
	conn, err := c.connPool.Get(ctx)
	if err != nil {
		return err
	}

	defer func() {
		c.releaseConn(ctx, conn, err)
	}()

	done := ctx.Done() //nolint:ifshort

	if done == nil {
		err = fn(ctx, conn)
		return err
	}

	errc := make(chan error, 1)
	go func() {
		errc <- fn(ctx, conn)
	}()

	select {
	case <-done:
		_ = conn.Close()
		// Wait for the goroutine to finish and send something.
		<-errc

		err = ctx.Err()
		return err
	case err = <-errc:
		return err
	}
}

// Process runs cmd on a pooled connection, retrying transport failures with
// a jittered exponential backoff.
func (c *Client) Process(ctx context.Context, cmd Command) error {
	var lastErr error

	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		retry, err := c.doProcess(ctx, cmd, attempt)
		if err == nil || !retry {
			return err
		}

		lastErr = err
	}

	return lastErr
}

// Exec runs cmd exactly once. Commands that are not safe to replay, such as
// dead-letter scans that have already consumed messages, go through Exec.
func (c *Client) Exec(ctx context.Context, cmd Command) error {
	return c.withConn(ctx, cmd)
}

func (c *Client) doProcess(ctx context.Context, cmd Command, attempt int) (bool, error) {
	if attempt > 0 {
		if err := sleepWithContext(ctx, c.retryBackoff(attempt)); err != nil {
			return false, err
		}
	}

	err := c.withConn(ctx, cmd)
	if err == nil {
		return false, nil
	}

	return shouldRetry(err), err
}

func (c *Client) retryBackoff(attempt int) time.Duration {
	return retryBackoff(attempt, c.config.MinRetryBackoff, c.config.MaxRetryBackoff)
}

func (c *Client) Close() error {
	return c.connPool.Close()
}

func retryBackoff(retry int, minBackoff, maxBackoff time.Duration) time.Duration {
	if retry < 0 {
		panic("not reached")
	}
	if minBackoff == 0 {
		return 0
	}

	d := minBackoff << uint(retry)
	if d < minBackoff {
		return maxBackoff
	}

	d = minBackoff + time.Duration(rand.Int63n(int64(d)))

	if d > maxBackoff || d < minBackoff {
		d = maxBackoff
	}

	return d
}

func sleepWithContext(ctx context.Context, dur time.Duration) error {
	t := time.NewTimer(dur)
	defer t.Stop()

	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// isBadConnErr reports whether the connection that produced err must not be
// reused. Errors raised by the command itself keep the connection.
func isBadConnErr(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	if errors.Is(err, amqp.ErrClosed) || errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}

	var amqpErr *amqp.Error
	if errors.As(err, &amqpErr) {
		return true
	}

	var netErr net.Error

	return errors.As(err, &netErr)
}

func shouldRetry(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return false
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF), errors.Is(err, amqp.ErrClosed):
		return true
	}

	var amqpErr *amqp.Error
	if errors.As(err, &amqpErr) {
		switch amqpErr.Code {
		case amqp.ConnectionForced, amqp.ChannelError, amqp.InternalError:
			return true
		}

		return false
	}

	var v timeoutError
	if errors.As(err, &v) {
		return true
	}

	return false
}

type timeoutError interface {
	Timeout() bool
}
