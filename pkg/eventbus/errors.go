package eventbus

import "errors"

// UnprocessableEventError marks an event that can never be handled, no matter
// how often it is redelivered: undecodable data, an unknown type or a failed
// validation. Transports reject such deliveries without requeueing them.
type UnprocessableEventError struct {
	err error
}

func NewUnprocessableEventError(err error) *UnprocessableEventError {
	return &UnprocessableEventError{err: err}
}

func (e *UnprocessableEventError) Error() string { return "unprocessable event: " + e.err.Error() }

func (e *UnprocessableEventError) Unwrap() error { return e.err }

func IsUnprocessableEventError(err error) bool {
	var unprocessableEventError *UnprocessableEventError

	return errors.As(err, &unprocessableEventError)
}
