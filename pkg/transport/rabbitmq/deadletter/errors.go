package deadletter

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a full scan found no message with the
	// requested key. Every scanned message has been restored by then.
	ErrNotFound = errors.New("deadletter: message not found")

	// ErrBusy is returned when another administrative scan holds the lock.
	ErrBusy = errors.New("deadletter: another scan is in progress")

	ErrInvalidLimit = errors.New("deadletter: limit must not be negative")

	// ErrLockUnavailable is returned when the scan lock could not be queried.
	ErrLockUnavailable = errors.New("deadletter: scan lock unavailable")

	// ErrLockLost is returned when the scan lock could not be renewed. The scan
	// stops before its next commit and restores what it has not settled.
	ErrLockLost = errors.New("deadletter: scan lock lost")
)

// TransportError wraps a broker failure during a scan. Op names the step
// that failed: connect, inspect, get, ack, nack or publish.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("deadletter %s: %s", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

func IsTransportError(err error) bool {
	var transportErr *TransportError

	return errors.As(err, &transportErr)
}

func transportError(op string, err error) error {
	if err == nil {
		return nil
	}

	var transportErr *TransportError
	if errors.As(err, &transportErr) || isLockError(err) || errors.Is(err, ErrNotFound) || errors.Is(err, context.Canceled) {
		return err
	}

	return &TransportError{Op: op, Err: err}
}

func isLockError(err error) bool {
	return errors.Is(err, ErrBusy) || errors.Is(err, ErrLockUnavailable) || errors.Is(err, ErrLockLost)
}
