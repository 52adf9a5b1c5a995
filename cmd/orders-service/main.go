package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/quarks-tech/orderflow-go/internal/admin"
	"github.com/quarks-tech/orderflow-go/internal/config"
	httpdlq "github.com/quarks-tech/orderflow-go/internal/handler/http/dlq"
	httporders "github.com/quarks-tech/orderflow-go/internal/handler/http/orders"
	"github.com/quarks-tech/orderflow-go/internal/lock/redislock"
	"github.com/quarks-tech/orderflow-go/internal/metrics"
	"github.com/quarks-tech/orderflow-go/internal/orders"
	"github.com/quarks-tech/orderflow-go/pkg/eventbus"
	"github.com/quarks-tech/orderflow-go/pkg/eventbus/interceptors/timeout"
	"github.com/quarks-tech/orderflow-go/pkg/eventbus/interceptors/validator"
	"github.com/quarks-tech/orderflow-go/pkg/interceptor/logging"
	"github.com/quarks-tech/orderflow-go/pkg/interceptor/recovery"
	"github.com/quarks-tech/orderflow-go/pkg/transport/rabbitmq"
	"github.com/quarks-tech/orderflow-go/pkg/transport/rabbitmq/deadletter"
)

const (
	consumerName    = "orders-service"
	handlerTimeout  = 30 * time.Second
	shutdownTimeout = 10 * time.Second
	adminLockName   = "dlq-admin"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.App.LogLevel)
	logger.Info("orders service starting")

	if err = run(cfg, logger); err != nil {
		logger.WithError(err).Fatal("orders service stopped")
	}

	logger.Info("orders service stopped")
}

func newLogger(level string) *logrus.Logger {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339Nano})

	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		logger.WithError(err).Warnf("unknown log level %q, using info", level)
		lvl = logrus.InfoLevel
	}

	logger.SetLevel(lvl)

	return logger
}

func newTopology(cfg config.TopologyConfig) rabbitmq.Topology {
	t := rabbitmq.DefaultTopology()
	t.DeliveryLimit = cfg.DeliveryLimit
	t.MessageTTL = cfg.QueueTTL
	t.DeadLetterTTL = cfg.DLQTTL

	return t
}

func newClient(cfg config.RabbitMQConfig) *rabbitmq.Client {
	return rabbitmq.NewClient(&rabbitmq.Config{
		Address: cfg.Address,
		AMQP: amqp.Config{
			Vhost: cfg.VHost,
			SASL: []amqp.Authentication{
				&amqp.PlainAuth{
					Username: cfg.User,
					Password: cfg.Password,
				},
			},
		},
	})
}

func run(cfg *config.Config, logger *logrus.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	registry := prometheus.NewRegistry()
	metrics.Register(registry)

	topology := newTopology(cfg.Topology)

	client := newClient(cfg.RabbitMQ)
	defer client.Close()

	adminClient := newClient(cfg.RabbitMQ)
	defer adminClient.Close()

	if err := rabbitmq.DeclareTopology(ctx, client, topology); err != nil {
		return fmt.Errorf("declare topology: %w", err)
	}

	logger.WithFields(logrus.Fields{
		"queue":         topology.Queue,
		"deliveryLimit": topology.DeliveryLimit,
		"dlq":           topology.DeadLetterQueue,
	}).Info("topology declared")

	publisher := eventbus.NewPublisher(
		rabbitmq.NewSender(client, rabbitmq.WithExchange(topology.Exchange)),
		eventbus.WithChainPublisherInterceptor(
			recovery.PublisherInterceptor(nil),
			logging.PublisherInterceptor(logger.WithField("component", "publisher")),
		),
		eventbus.WithDefaultPublishOptions(eventbus.WithEventSource(consumerName)),
	)

	subscriber := eventbus.NewSubscriber(consumerName,
		eventbus.WithChainSubscriberInterceptor(
			recovery.SubscriberInterceptor(nil),
			logging.SubscriberInterceptor(logger.WithField("component", "subscriber")),
			validator.SubscriberInterceptor(),
			timeout.SubscriberInterceptor(handlerTimeout),
		),
	)

	orders.RegisterHandlers(subscriber, orders.NewService(
		orders.WithFailureRate(cfg.Orders.FailureRate),
		orders.WithProcessingDelay(cfg.Orders.ProcessingDelay),
		orders.WithLogger(logger.WithField("component", "orders")),
	))

	receiver := rabbitmq.NewReceiver(client,
		rabbitmq.WithQueue(topology.Queue),
		rabbitmq.WithPrefetchCount(cfg.RabbitMQ.PrefetchCount),
		rabbitmq.WithLogger(logger.WithField("component", "receiver")),
		rabbitmq.WithOutcomeHook(func(o rabbitmq.Outcome) {
			metrics.ObserveDelivery(string(o))
		}),
	)

	scannerOpts := []deadletter.ScannerOption{
		deadletter.WithQueue(topology.DeadLetterQueue),
		deadletter.WithFallbackQueue(topology.Queue),
		deadletter.WithLogger(logger.WithField("component", "dlq-scanner")),
	}

	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr})
		defer rdb.Close()

		scannerOpts = append(scannerOpts, deadletter.WithLocker(redislock.New(rdb), adminLockName, cfg.DLQ.LockTTL))
		logger.WithField("addr", cfg.Redis.Addr).Info("distributed admin lock enabled")
	}

	scanner := deadletter.NewScanner(deadletter.ClientExecutor(adminClient), scannerOpts...)
	adminService := admin.NewService(scanner, metrics.ObserveAdminOperation)

	monitor := deadletter.SelectMonitor(cfg.DLQ.MonitorEnabled, scanner,
		deadletter.WithSchedule(cfg.DLQ.MonitorSchedule),
		deadletter.WithMonitorLogger(logger.WithField("component", "dlq-monitor")),
		deadletter.WithDepthHook(metrics.SetDLQDepth),
	)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(metrics.Middleware)

	httporders.RegisterRoutes(r, orders.NewIntake(publisher, logger.WithField("component", "intake")), logger)
	httpdlq.RegisterRoutes(r, adminService, logger)
	r.Method(http.MethodGet, "/metrics", metrics.Handler(registry))

	srv := &http.Server{
		Addr:              cfg.App.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	eg, egCtx := errgroup.WithContext(ctx)

	eg.Go(func() error {
		logger.WithField("addr", srv.Addr).Info("http server listening")

		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}

		return nil
	})

	eg.Go(func() error {
		<-egCtx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		return srv.Shutdown(shutdownCtx)
	})

	eg.Go(func() error {
		return ignoreCanceled(subscriber.Subscribe(egCtx, receiver))
	})

	eg.Go(func() error {
		return monitor.Run(egCtx)
	})

	if cfg.DLQ.Mode == config.DLQModeAuto {
		drainer := deadletter.NewDrainer(client,
			deadletter.WithDrainerQueue(topology.DeadLetterQueue),
			deadletter.WithDrainerLogger(logger.WithField("component", "dlq-drainer")),
			deadletter.WithRecordHook(func(*deadletter.Record) {
				metrics.DLQDrainedTotal.Inc()
			}),
		)

		eg.Go(func() error {
			return ignoreCanceled(drainer.Run(egCtx))
		})

		logger.Warn("DLQ_MODE=auto: dead-lettered messages are logged and discarded")
	}

	return eg.Wait()
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}

	return err
}
