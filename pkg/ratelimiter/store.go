package ratelimiter

import (
	"context"
	"time"
)

// Store is the storage backend for bucket state.
type Store interface {
	// ConsumeTokens attempts to consume the given number of tokens.
	// A negative remaining count means the request must be denied.
	ConsumeTokens(ctx context.Context, key string, tokens int, config Config) (remaining int, resetAt time.Time, err error)

	// ReturnTokens gives back tokens previously consumed for the key,
	// for callers that reserved budget for work that did not happen.
	// The bucket never exceeds its capacity.
	ReturnTokens(ctx context.Context, key string, tokens int, config Config) error

	// Reset clears the rate limit state for the given key.
	Reset(ctx context.Context, key string) error
}
