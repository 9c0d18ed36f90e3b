package reconcile

import "errors"

// ErrAdapterNotFound is returned when no normalizer is registered for
// the requested provider. No attempt record exists in that case.
var ErrAdapterNotFound = errors.New("no adapter registered for provider")

// RetryableError signals a transient store failure during quote
// submission. It is the only error allowed to escape once
// normalization has succeeded; the transport layer maps it to a
// retry-later response so the provider redelivers the webhook.
type RetryableError struct {
	Err error
}

func (e *RetryableError) Error() string {
	return "retry later: " + e.Err.Error()
}

func (e *RetryableError) Unwrap() error {
	return e.Err
}

func IsRetryable(err error) bool {
	var re *RetryableError
	return errors.As(err, &re)
}
