package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"io"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

func TestRetryBackoff(t *testing.T) {
	minBackoff := 8 * time.Millisecond
	maxBackoff := 512 * time.Millisecond

	for attempt := 0; attempt <= 16; attempt++ {
		d := retryBackoff(attempt, minBackoff, maxBackoff)
		if d < minBackoff || d > maxBackoff {
			t.Errorf("retryBackoff(%d) = %v, want within [%v, %v]", attempt, d, minBackoff, maxBackoff)
		}
	}

	if d := retryBackoff(3, 0, maxBackoff); d != 0 {
		t.Errorf("retryBackoff with zero min = %v, want 0", d)
	}
}

func TestShouldRetry(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"canceled", context.Canceled, false},
		{"deadline", fmt.Errorf("wrap: %w", context.DeadlineExceeded), false},
		{"eof", io.EOF, true},
		{"closed", amqp.ErrClosed, true},
		{"connection forced", &amqp.Error{Code: amqp.ConnectionForced}, true},
		{"channel error", fmt.Errorf("declare: %w", &amqp.Error{Code: amqp.ChannelError}), true},
		{"precondition failed", &amqp.Error{Code: amqp.PreconditionFailed, Recover: true}, false},
		{"not found", &amqp.Error{Code: amqp.NotFound, Recover: true}, false},
		{"domain", errors.New("order rejected"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := shouldRetry(tt.err); got != tt.want {
				t.Errorf("shouldRetry(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestIsBadConnErr(t *testing.T) {
	if isBadConnErr(nil) {
		t.Error("nil error must keep the connection")
	}
	if isBadConnErr(errors.New("not found")) {
		t.Error("command error must keep the connection")
	}
	if !isBadConnErr(amqp.ErrClosed) {
		t.Error("closed connection must be dropped")
	}
	if !isBadConnErr(&amqp.Error{Code: amqp.PreconditionFailed}) {
		t.Error("channel exception must drop the connection")
	}
}

func TestConfigComplete(t *testing.T) {
	cfg := &Config{MaxRetries: -1}
	cfg.complete()

	if cfg.MaxRetries != 0 {
		t.Errorf("MaxRetries = %d, want 0", cfg.MaxRetries)
	}
	if cfg.MinRetryBackoff != 8*time.Millisecond {
		t.Errorf("MinRetryBackoff = %v, want 8ms", cfg.MinRetryBackoff)
	}
	if cfg.PoolSize == 0 {
		t.Error("PoolSize must default to a positive value")
	}
	if cfg.AMQP.Dial == nil {
		t.Error("AMQP.Dial must be set")
	}
}
