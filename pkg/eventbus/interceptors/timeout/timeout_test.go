package timeout_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/quarks-tech/orderflow-go/pkg/event"
	"github.com/quarks-tech/orderflow-go/pkg/eventbus"
	"github.com/quarks-tech/orderflow-go/pkg/eventbus/interceptors/timeout"
)

func TestTimeoutBoundsHandler(t *testing.T) {
	md := event.NewMetadata("orders.created")

	err := timeout.SubscriberInterceptor(10*time.Millisecond)(context.Background(), md, nil, func(ctx context.Context, _ interface{}) error {
		<-ctx.Done()
		return ctx.Err()
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want DeadlineExceeded", err)
	}
	if eventbus.IsUnprocessableEventError(err) {
		t.Error("timeout must stay retryable")
	}
}

func TestTimeoutZeroLeavesContext(t *testing.T) {
	md := event.NewMetadata("orders.created")

	err := timeout.SubscriberInterceptor(0)(context.Background(), md, nil, func(ctx context.Context, _ interface{}) error {
		if _, ok := ctx.Deadline(); ok {
			t.Error("unexpected deadline")
		}

		return nil
	})
	if err != nil {
		t.Fatalf("err = %v", err)
	}
}
