package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Topology.DeliveryLimit != 3 {
		t.Errorf("DeliveryLimit = %d, want 3", cfg.Topology.DeliveryLimit)
	}
	if cfg.Topology.QueueTTL != 24*time.Hour {
		t.Errorf("QueueTTL = %v, want 24h", cfg.Topology.QueueTTL)
	}
	if cfg.DLQ.Mode != DLQModeManual {
		t.Errorf("Mode = %q, want %q", cfg.DLQ.Mode, DLQModeManual)
	}
	if cfg.DLQ.MonitorEnabled {
		t.Error("MonitorEnabled = true, want false")
	}
	if cfg.RabbitMQ.Address != "localhost:5672" {
		t.Errorf("Address = %q, want localhost:5672", cfg.RabbitMQ.Address)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("DELIVERY_LIMIT", "2")
	t.Setenv("DLQ_MODE", "AUTO")
	t.Setenv("ENABLE_DLQ_MONITOR", "true")
	t.Setenv("ORDERS_FAILURE_RATE", "0.5")
	t.Setenv("DLQ_TTL", "48h")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Topology.DeliveryLimit != 2 {
		t.Errorf("DeliveryLimit = %d, want 2", cfg.Topology.DeliveryLimit)
	}
	if cfg.DLQ.Mode != DLQModeAuto {
		t.Errorf("Mode = %q, want %q", cfg.DLQ.Mode, DLQModeAuto)
	}
	if !cfg.DLQ.MonitorEnabled {
		t.Error("MonitorEnabled = false, want true")
	}
	if cfg.Orders.FailureRate != 0.5 {
		t.Errorf("FailureRate = %v, want 0.5", cfg.Orders.FailureRate)
	}
	if cfg.Topology.DLQTTL != 48*time.Hour {
		t.Errorf("DLQTTL = %v, want 48h", cfg.Topology.DLQTTL)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	t.Setenv("DELIVERY_LIMIT", "0")
	t.Setenv("DLQ_MODE", "sometimes")
	t.Setenv("ORDERS_FAILURE_RATE", "2")
	t.Setenv("PREFETCH_COUNT", "many")

	_, err := Load()
	if err == nil {
		t.Fatal("expected error")
	}

	for _, key := range []string{"DELIVERY_LIMIT", "DLQ_MODE", "ORDERS_FAILURE_RATE", "PREFETCH_COUNT"} {
		if !strings.Contains(err.Error(), key) {
			t.Errorf("error %q does not mention %s", err, key)
		}
	}
}
