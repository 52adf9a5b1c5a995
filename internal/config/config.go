package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	DLQModeManual = "manual"
	DLQModeAuto   = "auto"
)

type Config struct {
	App      AppConfig
	RabbitMQ RabbitMQConfig
	Topology TopologyConfig
	DLQ      DLQConfig
	Orders   OrdersConfig
	Redis    RedisConfig
}

type AppConfig struct {
	HTTPAddr string
	LogLevel string
}

type RabbitMQConfig struct {
	Address       string
	User          string
	Password      string
	VHost         string
	PrefetchCount int
}

// TopologyConfig holds the retry contract declared on the broker.
type TopologyConfig struct {
	DeliveryLimit int
	QueueTTL      time.Duration
	DLQTTL        time.Duration
}

type DLQConfig struct {
	Mode            string
	MonitorEnabled  bool
	MonitorSchedule string
	LockTTL         time.Duration
}

type OrdersConfig struct {
	FailureRate     float64
	ProcessingDelay time.Duration
}

// RedisConfig enables the cross-process admin lock when Addr is set.
type RedisConfig struct {
	Addr string
}

// Load reads .env when present, then the environment, and validates the result.
func Load() (*Config, error) {
	_ = godotenv.Load()

	ldr := &envLoader{}

	cfg := &Config{}
	cfg.App.HTTPAddr = ldr.getString("HTTP_ADDR", ":3000")
	cfg.App.LogLevel = ldr.getString("LOG_LEVEL", "info")

	cfg.RabbitMQ.Address = ldr.getString("RMQ_ADDRESS", "localhost:5672")
	cfg.RabbitMQ.User = ldr.getString("RMQ_USER", "guest")
	cfg.RabbitMQ.Password = ldr.getString("RMQ_PASSWORD", "guest")
	cfg.RabbitMQ.VHost = ldr.getString("RMQ_VHOST", "/")
	cfg.RabbitMQ.PrefetchCount = ldr.getInt("PREFETCH_COUNT", 1)

	cfg.Topology.DeliveryLimit = ldr.getInt("DELIVERY_LIMIT", 3)
	cfg.Topology.QueueTTL = ldr.getDuration("ORDERS_QUEUE_TTL", 24*time.Hour)
	cfg.Topology.DLQTTL = ldr.getDuration("DLQ_TTL", 7*24*time.Hour)

	cfg.DLQ.Mode = strings.ToLower(ldr.getString("DLQ_MODE", DLQModeManual))
	cfg.DLQ.MonitorEnabled = ldr.getBool("ENABLE_DLQ_MONITOR", false)
	cfg.DLQ.MonitorSchedule = ldr.getString("DLQ_MONITOR_SCHEDULE", "0 * * * * *")
	cfg.DLQ.LockTTL = ldr.getDuration("ADMIN_LOCK_TTL", 5*time.Minute)

	cfg.Orders.FailureRate = ldr.getFloat("ORDERS_FAILURE_RATE", 0)
	cfg.Orders.ProcessingDelay = ldr.getDuration("ORDERS_PROCESSING_DELAY", time.Second)

	cfg.Redis.Addr = ldr.getString("REDIS_ADDR", "")

	if cfg.DLQ.Mode != DLQModeManual && cfg.DLQ.Mode != DLQModeAuto {
		ldr.addError(fmt.Sprintf("DLQ_MODE must be %q or %q", DLQModeManual, DLQModeAuto))
	}

	if cfg.Topology.DeliveryLimit < 1 {
		ldr.addError("DELIVERY_LIMIT must be at least 1")
	}

	if cfg.Orders.FailureRate < 0 || cfg.Orders.FailureRate > 1 {
		ldr.addError("ORDERS_FAILURE_RATE must be between 0 and 1")
	}

	if cfg.RabbitMQ.PrefetchCount < 1 {
		ldr.addError("PREFETCH_COUNT must be at least 1")
	}

	if err := ldr.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

type envLoader struct {
	errs []string
}

func (l *envLoader) validate() error {
	if len(l.errs) == 0 {
		return nil
	}
	return fmt.Errorf("config validation failed: %s", strings.Join(l.errs, "; "))
}

func (l *envLoader) lookup(key string) (string, bool) {
	val, ok := os.LookupEnv(key)
	if !ok {
		return "", false
	}

	val = strings.TrimSpace(val)

	return val, val != ""
}

func (l *envLoader) getString(key, def string) string {
	if val, ok := l.lookup(key); ok {
		return val
	}
	return def
}

func (l *envLoader) getInt(key string, def int) int {
	val, ok := l.lookup(key)
	if !ok {
		return def
	}
	i, err := strconv.Atoi(val)
	if err != nil {
		l.addError(fmt.Sprintf("%s must be a valid integer", key))
		return def
	}
	return i
}

func (l *envLoader) getFloat(key string, def float64) float64 {
	val, ok := l.lookup(key)
	if !ok {
		return def
	}
	f, err := strconv.ParseFloat(val, 64)
	if err != nil {
		l.addError(fmt.Sprintf("%s must be a valid number", key))
		return def
	}
	return f
}

func (l *envLoader) getBool(key string, def bool) bool {
	val, ok := l.lookup(key)
	if !ok {
		return def
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		l.addError(fmt.Sprintf("%s must be a valid boolean", key))
		return def
	}
	return parsed
}

func (l *envLoader) getDuration(key string, def time.Duration) time.Duration {
	val, ok := l.lookup(key)
	if !ok {
		return def
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		l.addError(fmt.Sprintf("%s must be a valid duration", key))
		return def
	}
	return d
}

func (l *envLoader) addError(err string) {
	l.errs = append(l.errs, err)
}
