package deadletter

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

const DefaultMonitorSchedule = "0 * * * * *"

// Monitor watches the dead-letter queue until ctx is done.
type Monitor interface {
	Run(ctx context.Context) error
}

// Inspector reports the current state of the dead-letter queue.
type Inspector interface {
	Status(ctx context.Context) (QueueStatus, error)
}

// NoMonitor does nothing.
type NoMonitor struct{}

func (NoMonitor) Run(ctx context.Context) error {
	<-ctx.Done()

	return nil
}

type monitorOptions struct {
	schedule string
	timeout  time.Duration
	logger   logrus.FieldLogger
	onDepth  func(int)
}

type MonitorOption func(o *monitorOptions)

// WithSchedule sets the cron spec, seconds field first.
func WithSchedule(spec string) MonitorOption {
	return func(o *monitorOptions) {
		if spec != "" {
			o.schedule = spec
		}
	}
}

func WithMonitorLogger(l logrus.FieldLogger) MonitorOption {
	return func(o *monitorOptions) {
		o.logger = l
	}
}

// WithDepthHook receives the message count of every successful check.
func WithDepthHook(fn func(int)) MonitorOption {
	return func(o *monitorOptions) {
		o.onDepth = fn
	}
}

// PollingMonitor checks the queue depth on a cron schedule and warns while
// the dead-letter queue is not empty.
type PollingMonitor struct {
	inspector Inspector
	options   monitorOptions
}

func NewPollingMonitor(inspector Inspector, opts ...MonitorOption) *PollingMonitor {
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	options := monitorOptions{
		schedule: DefaultMonitorSchedule,
		timeout:  10 * time.Second,
		logger:   logger,
	}

	for _, opt := range opts {
		opt(&options)
	}

	return &PollingMonitor{
		inspector: inspector,
		options:   options,
	}
}

// SelectMonitor returns a PollingMonitor when enabled and NoMonitor otherwise.
func SelectMonitor(enabled bool, inspector Inspector, opts ...MonitorOption) Monitor {
	if !enabled {
		return NoMonitor{}
	}

	return NewPollingMonitor(inspector, opts...)
}

func (m *PollingMonitor) Run(ctx context.Context) error {
	c := cron.New(cron.WithSeconds())

	_, err := c.AddFunc(m.options.schedule, func() {
		_, _ = m.Check(ctx)
	})
	if err != nil {
		return fmt.Errorf("schedule %q: %w", m.options.schedule, err)
	}

	c.Start()
	<-ctx.Done()
	<-c.Stop().Done()

	return nil
}

func (m *PollingMonitor) Check(ctx context.Context) (QueueStatus, error) {
	ctx, cancel := context.WithTimeout(ctx, m.options.timeout)
	defer cancel()

	status, err := m.inspector.Status(ctx)
	if err != nil {
		m.options.logger.WithError(err).Error("inspect dead-letter queue")
		return QueueStatus{}, err
	}

	if m.options.onDepth != nil {
		m.options.onDepth(status.Messages)
	}

	entry := m.options.logger.WithFields(logrus.Fields{
		"queue":    status.Queue,
		"messages": status.Messages,
	})

	if status.Messages > 0 {
		entry.Warn("dead-letter queue has messages")
	} else {
		entry.Debug("dead-letter queue is empty")
	}

	return status, nil
}
