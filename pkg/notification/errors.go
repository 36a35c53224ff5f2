package notification

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidPayload is returned when a payload misses required fields.
	ErrInvalidPayload = errors.New("invalid notification payload")

	// ErrInvalidChannel is returned when a channel value is malformed.
	ErrInvalidChannel = errors.New("invalid notification channel")

	// ErrUnknownChannel is returned when no deliverer is registered for a
	// channel. It is terminal: no amount of retrying makes an unknown
	// channel deliverable.
	ErrUnknownChannel = errors.New("unknown notification channel")
)

// TerminalError marks a delivery failure as permanent. The dispatcher fails
// the job immediately without consuming further retry attempts.
type TerminalError struct {
	Err error
}

// Terminal wraps err as a permanent delivery failure.
func Terminal(err error) error {
	if err == nil {
		return nil
	}
	return &TerminalError{Err: err}
}

func (e *TerminalError) Error() string {
	return fmt.Sprintf("terminal delivery error: %v", e.Err)
}

func (e *TerminalError) Unwrap() error { return e.Err }

// RetryableError marks a delivery failure as transient. Plain errors are
// treated as retryable too; the wrapper exists for deliverers that want to
// be explicit.
type RetryableError struct {
	Err error
}

// Retryable wraps err as a transient delivery failure.
func Retryable(err error) error {
	if err == nil {
		return nil
	}
	return &RetryableError{Err: err}
}

func (e *RetryableError) Error() string {
	return fmt.Sprintf("retryable delivery error: %v", e.Err)
}

func (e *RetryableError) Unwrap() error { return e.Err }

// IsTerminal reports whether a delivery error must not be retried.
// Unknown-channel errors are terminal by definition. Everything else,
// timeouts included, is transient: a slow downstream may answer next time.
func IsTerminal(err error) bool {
	if err == nil {
		return false
	}
	var terminal *TerminalError
	if errors.As(err, &terminal) {
		return true
	}
	return errors.Is(err, ErrUnknownChannel)
}
