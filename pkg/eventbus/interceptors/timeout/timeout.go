package timeout

import (
	"context"
	"time"

	"github.com/quarks-tech/orderflow-go/pkg/event"
	"github.com/quarks-tech/orderflow-go/pkg/eventbus"
)

// SubscriberInterceptor bounds every handler call by timeout. A zero timeout
// leaves the context untouched.
func SubscriberInterceptor(timeout time.Duration) eventbus.SubscriberInterceptor {
	return func(ctx context.Context, md *event.Metadata, event interface{}, handler eventbus.Handler) error {
		if timeout <= 0 {
			return handler(ctx, event)
		}

		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		return handler(ctx, event)
	}
}
