package connpool

import (
	"context"
	"errors"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

var (
	ErrClosed      = errors.New("amqp: connection pool is closed")
	ErrPoolTimeout = errors.New("amqp: connection pool timeout")
)

type Dialer func() (*amqp.Connection, *amqp.Channel, error)

type Options struct {
	Dialer Dialer

	PoolSize    int
	PoolTimeout time.Duration
	MaxConnAge  time.Duration
	IdleTimeout time.Duration
}

// ConnPool hands out exclusive Conns. At most PoolSize Conns exist at once.
type ConnPool struct {
	opt *Options

	queue chan struct{}

	mu     sync.Mutex
	idle   []*Conn
	closed bool
}

func New(opt *Options) *ConnPool {
	return &ConnPool{
		opt:   opt,
		queue: make(chan struct{}, opt.PoolSize),
	}
}

func (p *ConnPool) Get(ctx context.Context) (*Conn, error) {
	if p.isClosed() {
		return nil, ErrClosed
	}

	if err := p.waitTurn(ctx); err != nil {
		return nil, err
	}

	for {
		cn := p.popIdle()
		if cn == nil {
			break
		}

		if p.isStale(cn) {
			_ = cn.Close()
			continue
		}

		return cn, nil
	}

	amqpConn, amqpCh, err := p.opt.Dialer()
	if err != nil {
		p.freeTurn()
		return nil, err
	}

	return NewConn(amqpConn, amqpCh), nil
}

func (p *ConnPool) Put(_ context.Context, cn *Conn) {
	if cn.IsClosed() {
		p.freeTurn()
		return
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		_ = cn.Close()
		p.freeTurn()
		return
	}
	p.idle = append(p.idle, cn)
	p.mu.Unlock()

	p.freeTurn()
}

func (p *ConnPool) Remove(_ context.Context, cn *Conn, _ error) {
	_ = cn.Close()
	p.freeTurn()
}

// Len returns the number of idle connections.
func (p *ConnPool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	return len(p.idle)
}

func (p *ConnPool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrClosed
	}
	p.closed = true

	var firstErr error
	for _, cn := range p.idle {
		if err := cn.Close(); err != nil && firstErr == nil && !errors.Is(err, amqp.ErrClosed) {
			firstErr = err
		}
	}
	p.idle = nil

	return firstErr
}

func (p *ConnPool) waitTurn(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	select {
	case p.queue <- struct{}{}:
		return nil
	default:
	}

	timer := time.NewTimer(p.opt.PoolTimeout)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case p.queue <- struct{}{}:
		return nil
	case <-timer.C:
		return ErrPoolTimeout
	}
}

func (p *ConnPool) freeTurn() {
	<-p.queue
}

func (p *ConnPool) popIdle() *Conn {
	p.mu.Lock()
	defer p.mu.Unlock()

	n := len(p.idle)
	if n == 0 {
		return nil
	}

	cn := p.idle[n-1]
	p.idle = p.idle[:n-1]

	return cn
}

func (p *ConnPool) isStale(cn *Conn) bool {
	if cn.IsClosed() {
		return true
	}

	now := time.Now()

	if p.opt.IdleTimeout > 0 && now.Sub(cn.UsedAt()) >= p.opt.IdleTimeout {
		return true
	}

	if p.opt.MaxConnAge > 0 && now.Sub(cn.CreatedAt()) >= p.opt.MaxConnAge {
		return true
	}

	return false
}

func (p *ConnPool) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.closed
}
