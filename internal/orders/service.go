package orders

import (
	"context"
	"errors"
	"io"
	"math/rand"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/quarks-tech/orderflow-go/pkg/eventbus"
)

var ErrProcessingFailed = errors.New("order processing failed")

type serviceOptions struct {
	failureRate float64
	delay       time.Duration
	random      func() float64
	logger      logrus.FieldLogger
}

type ServiceOption func(o *serviceOptions)

// WithFailureRate makes the given share of processing attempts fail.
func WithFailureRate(rate float64) ServiceOption {
	return func(o *serviceOptions) {
		o.failureRate = rate
	}
}

func WithProcessingDelay(d time.Duration) ServiceOption {
	return func(o *serviceOptions) {
		o.delay = d
	}
}

func WithRandom(fn func() float64) ServiceOption {
	return func(o *serviceOptions) {
		o.random = fn
	}
}

func WithLogger(l logrus.FieldLogger) ServiceOption {
	return func(o *serviceOptions) {
		o.logger = l
	}
}

// Service processes created orders. Processing has no side effects beyond
// logging; failures are injected to exercise the retry path.
type Service struct {
	options serviceOptions
}

func NewService(opts ...ServiceOption) *Service {
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	options := serviceOptions{
		random: rand.Float64,
		logger: logger,
	}

	for _, opt := range opts {
		opt(&options)
	}

	return &Service{options: options}
}

func (s *Service) Process(ctx context.Context, e *CreatedEvent) error {
	if s.options.random() < s.options.failureRate {
		return ErrProcessingFailed
	}

	if s.options.delay > 0 {
		t := time.NewTimer(s.options.delay)
		defer t.Stop()

		select {
		case <-t.C:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	s.options.logger.WithFields(logrus.Fields{
		"orderId":  e.OrderID,
		"userId":   e.UserID,
		"products": len(e.Products),
	}).Info("order processed")

	return nil
}

// RegisterHandlers subscribes svc to the order events it consumes.
func RegisterHandlers(sub *eventbus.Subscriber, svc *Service) {
	eventbus.RegisterHandler(sub, CreatedEventType, svc.Process)
}
