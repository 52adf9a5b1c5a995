package deadletter

import (
	"context"
	"time"
)

// Locker is a lease-based lock shared by every process that administers the
// same dead-letter queue.
type Locker interface {
	TryAcquire(ctx context.Context, name, holderID string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, name, holderID string) error
}
