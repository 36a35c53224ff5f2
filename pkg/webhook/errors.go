package webhook

import "errors"

var (
	// ErrDeliveryFailed covers network failures and non-2xx responses.
	// Whether a given failure is retryable is decided by the deliverer;
	// terminal cases come wrapped in notification.TerminalError.
	ErrDeliveryFailed = errors.New("webhook delivery failed")

	// ErrCircuitOpen is returned while the breaker protects a failing
	// endpoint. It is retryable; the circuit recovers on its own.
	ErrCircuitOpen = errors.New("webhook circuit breaker is open")

	// ErrInvalidConfiguration covers malformed signing setup.
	ErrInvalidConfiguration = errors.New("invalid webhook configuration")

	// ErrInvalidPayload is returned for empty or unsignable payloads.
	ErrInvalidPayload = errors.New("invalid webhook payload")

	// ErrInvalidURL is returned for endpoints that are not http or https.
	ErrInvalidURL = errors.New("invalid webhook URL")

	// ErrTimeout marks a request that exceeded its deadline.
	ErrTimeout = errors.New("webhook request timeout")
)

// IsCircuitOpen checks if an error indicates the circuit breaker is open.
func IsCircuitOpen(err error) bool {
	return errors.Is(err, ErrCircuitOpen)
}
