package deadletter

import (
	"context"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/xid"
	"github.com/sirupsen/logrus"

	"github.com/quarks-tech/orderflow-go/pkg/transport/rabbitmq"
	"github.com/quarks-tech/orderflow-go/pkg/transport/rabbitmq/message"
)

const (
	ReprocessedAtHeader        = "x-reprocessed-at"
	OriginalFailureCountHeader = "x-original-failure-count"
	defaultKeyField            = "orderId"
	defaultLockName            = "deadletter-scan"
	defaultLockTTL             = 5 * time.Minute
)

type scannerOptions struct {
	queue         string
	fallbackQueue string
	keyField      string
	marshaler     rabbitmq.Marshaler
	locker        Locker
	lockName      string
	lockTTL       time.Duration
	logger        logrus.FieldLogger
	now           func() time.Time
}

func defaultScannerOptions() scannerOptions {
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	return scannerOptions{
		queue:         rabbitmq.DefaultDeadLetterQueue,
		fallbackQueue: rabbitmq.DefaultQueue,
		keyField:      defaultKeyField,
		marshaler:     message.Marshaler{},
		lockName:      defaultLockName,
		lockTTL:       defaultLockTTL,
		logger:        logger,
		now:           time.Now,
	}
}

type ScannerOption func(o *scannerOptions)

func WithQueue(queue string) ScannerOption {
	return func(o *scannerOptions) {
		o.queue = queue
	}
}

// WithFallbackQueue sets where messages without provenance are reprocessed to.
func WithFallbackQueue(queue string) ScannerOption {
	return func(o *scannerOptions) {
		o.fallbackQueue = queue
	}
}

// WithKeyField sets the event data field used as the lookup key.
func WithKeyField(field string) ScannerOption {
	return func(o *scannerOptions) {
		o.keyField = field
	}
}

func WithMarshaler(m rabbitmq.Marshaler) ScannerOption {
	return func(o *scannerOptions) {
		o.marshaler = m
	}
}

// WithLocker serializes scans across processes in addition to the
// in-process mutex.
func WithLocker(l Locker, name string, ttl time.Duration) ScannerOption {
	return func(o *scannerOptions) {
		o.locker = l
		if name != "" {
			o.lockName = name
		}
		if ttl > 0 {
			o.lockTTL = ttl
		}
	}
}

func WithLogger(l logrus.FieldLogger) ScannerOption {
	return func(o *scannerOptions) {
		o.logger = l
	}
}

func WithClock(now func() time.Time) ScannerOption {
	return func(o *scannerOptions) {
		o.now = now
	}
}

// QueueStatus is the broker's view of the dead-letter queue.
type QueueStatus struct {
	Queue     string
	Messages  int
	Consumers int
}

// Scanner inspects and mutates the dead-letter queue by draining it and
// restoring every message it does not act on. Scans are serialized.
type Scanner struct {
	exec     Executor
	options  scannerOptions
	decoder  decoder
	holderID string

	mu sync.Mutex
}

func NewScanner(exec Executor, opts ...ScannerOption) *Scanner {
	options := defaultScannerOptions()

	for _, opt := range opts {
		opt(&options)
	}

	return &Scanner{
		exec:    exec,
		options: options,
		decoder: decoder{
			marshaler: options.marshaler,
			keyField:  options.keyField,
			now:       options.now,
		},
		holderID: xid.New().String(),
	}
}

func (s *Scanner) Queue() string {
	return s.options.queue
}

// Status reads the queue depth without draining. It does not take the scan lock.
func (s *Scanner) Status(ctx context.Context) (QueueStatus, error) {
	var status QueueStatus

	err := s.exec(ctx, func(ctx context.Context, ch Channel) error {
		q, err := ch.QueueDeclarePassive(s.options.queue, true, false, false, false, nil)
		if err != nil {
			return transportError("inspect", err)
		}

		status = QueueStatus{Queue: q.Name, Messages: q.Messages, Consumers: q.Consumers}

		return nil
	})
	if err != nil {
		return QueueStatus{}, transportError("connect", err)
	}

	return status, nil
}

// List returns up to limit records and restores all of them.
func (s *Scanner) List(ctx context.Context, limit int) ([]Record, error) {
	if limit < 0 {
		return nil, ErrInvalidLimit
	}

	records := []Record{}

	if limit == 0 {
		return records, nil
	}

	err := s.scan(ctx, "list", limit, func(rec *Record) action {
		records = append(records, *rec)
		return actionRestore
	})
	if err != nil {
		return nil, err
	}

	return records, nil
}

// Get returns the first record whose key matches. The whole queue is scanned
// and restored either way.
func (s *Scanner) Get(ctx context.Context, key string) (*Record, error) {
	var found *Record

	err := s.scan(ctx, "get", 0, func(rec *Record) action {
		if found == nil && s.matches(rec, key) {
			found = rec
		}

		return actionRestore
	})
	if err != nil {
		return nil, err
	}

	if found == nil {
		return nil, ErrNotFound
	}

	return found, nil
}

// Delete discards every message whose key matches and returns how many were
// removed.
func (s *Scanner) Delete(ctx context.Context, key string) (int, error) {
	return s.selective(ctx, "delete", key, actionDiscard)
}

// Reprocess republishes every message whose key matches to its originating
// queue and removes it from the dead-letter queue.
func (s *Scanner) Reprocess(ctx context.Context, key string) (int, error) {
	return s.selective(ctx, "reprocess", key, actionReprocess)
}

// ReprocessAll republishes every message in the queue.
func (s *Scanner) ReprocessAll(ctx context.Context) (int, error) {
	var n int

	err := s.scan(ctx, "reprocess-all", 0, func(*Record) action {
		n++
		return actionReprocess
	})
	if err != nil {
		return 0, err
	}

	return n, nil
}

// Purge discards every message in the queue.
func (s *Scanner) Purge(ctx context.Context) (int, error) {
	var n int

	err := s.scan(ctx, "purge", 0, func(*Record) action {
		n++
		return actionDiscard
	})
	if err != nil {
		return 0, err
	}

	return n, nil
}

func (s *Scanner) selective(ctx context.Context, op, key string, act action) (int, error) {
	var n int

	err := s.scan(ctx, op, 0, func(rec *Record) action {
		if !s.matches(rec, key) {
			return actionRestore
		}

		n++

		return act
	})
	if err != nil {
		return 0, err
	}

	if n == 0 {
		return 0, ErrNotFound
	}

	return n, nil
}

// matches never selects a message without a key. A message that is not a
// readable event still has a key when its raw JSON body carries one, and is
// then selected like any other.
func (s *Scanner) matches(rec *Record, key string) bool {
	return rec.OrderID != "" && rec.OrderID == key
}

// serialize runs fn under the in-process mutex and, when configured, the
// distributed lock. The lock is renewed every third of its TTL while fn runs;
// held reports ErrLockLost once a renewal failed.
func (s *Scanner) serialize(ctx context.Context, fn func(held func() error) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	locker := s.options.locker
	if locker == nil {
		return fn(func() error { return nil })
	}

	ok, err := locker.TryAcquire(ctx, s.options.lockName, s.holderID, s.options.lockTTL)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrLockUnavailable, err)
	}

	if !ok {
		return ErrBusy
	}

	defer func() {
		if err := locker.Release(context.Background(), s.options.lockName, s.holderID); err != nil {
			s.options.logger.WithError(err).Warn("release scan lock")
		}
	}()

	var lost atomic.Bool

	stop := make(chan struct{})
	done := make(chan struct{})

	go func() {
		defer close(done)
		s.renew(ctx, stop, &lost)
	}()

	defer func() {
		close(stop)
		<-done
	}()

	return fn(func() error {
		if lost.Load() {
			return ErrLockLost
		}

		return nil
	})
}

func (s *Scanner) renew(ctx context.Context, stop <-chan struct{}, lost *atomic.Bool) {
	interval := s.options.lockTTL / 3
	if interval <= 0 {
		interval = s.options.lockTTL
	}

	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		select {
		case <-stop:
			return
		case <-t.C:
			ok, err := s.options.locker.TryAcquire(ctx, s.options.lockName, s.holderID, s.options.lockTTL)
			if err == nil && ok {
				continue
			}

			lost.Store(true)

			entry := s.options.logger.WithField("lock", s.options.lockName)
			if err != nil {
				entry = entry.WithError(err)
			}

			entry.Error("scan lock lost")

			return
		}
	}
}

func (s *Scanner) logFields(op string) logrus.Fields {
	return logrus.Fields{
		"operation": op,
		"queue":     s.options.queue,
	}
}

func reprocessHeaders(headers amqp.Table, failureCount int64, at time.Time) amqp.Table {
	out := amqp.Table{}

	for k, v := range headers {
		if isBrokerHeader(k) {
			continue
		}

		out[k] = v
	}

	out[rabbitmq.ReprocessedHeader] = true
	out[ReprocessedAtHeader] = at.UnixMilli()
	out[OriginalFailureCountHeader] = failureCount

	return out
}

func isBrokerHeader(k string) bool {
	switch k {
	case "x-death", "x-delivery-count",
		"x-first-death-queue", "x-first-death-reason", "x-first-death-exchange",
		"x-last-death-queue", "x-last-death-reason", "x-last-death-exchange":
		return true
	default:
		return false
	}
}
