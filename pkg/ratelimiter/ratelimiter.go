package ratelimiter

import (
	"context"
	"fmt"
	"time"
)

// Config defines the token bucket parameters. A dispatcher limiting job
// starts to N per window uses Capacity=N, RefillRate=N, RefillInterval=window.
type Config struct {
	Capacity       int           // Maximum tokens the bucket can hold (burst limit).
	RefillRate     int           // Tokens added per refill interval.
	RefillInterval time.Duration // How often tokens are added.
}

func (c Config) validate() error {
	if c.Capacity <= 0 {
		return fmt.Errorf("%w: capacity must be positive, got %d", ErrInvalidConfig, c.Capacity)
	}
	if c.RefillRate <= 0 {
		return fmt.Errorf("%w: refill rate must be positive, got %d", ErrInvalidConfig, c.RefillRate)
	}
	if c.RefillInterval <= 0 {
		return fmt.Errorf("%w: refill interval must be positive, got %v", ErrInvalidConfig, c.RefillInterval)
	}
	return nil
}

// Result describes the outcome of a rate limit check.
type Result struct {
	Limit     int       // Bucket capacity.
	Remaining int       // Tokens left after the check; negative means denied.
	ResetAt   time.Time // When tokens will next be refilled.
}

// Allowed reports whether the checked request may proceed.
func (r *Result) Allowed() bool {
	return r.Remaining >= 0
}

// RetryAfter returns how long to wait before trying again.
// Zero when the request was allowed.
func (r *Result) RetryAfter() time.Duration {
	if r.Allowed() {
		return 0
	}
	return time.Until(r.ResetAt)
}

// Bucket is a token bucket rate limiter over a pluggable Store.
type Bucket struct {
	store  Store
	config Config
}

// NewBucket creates a token bucket rate limiter.
func NewBucket(store Store, config Config) (*Bucket, error) {
	if err := config.validate(); err != nil {
		return nil, err
	}
	return &Bucket{store: store, config: config}, nil
}

// Allow consumes one token for key.
func (b *Bucket) Allow(ctx context.Context, key string) (*Result, error) {
	return b.AllowN(ctx, key, 1)
}

// AllowN consumes n tokens for key.
func (b *Bucket) AllowN(ctx context.Context, key string, n int) (*Result, error) {
	if n <= 0 {
		return nil, fmt.Errorf("%w: must be positive, got %d", ErrInvalidTokenCount, n)
	}

	remaining, resetAt, err := b.store.ConsumeTokens(ctx, key, n, b.config)
	if err != nil {
		return nil, err
	}

	return &Result{
		Limit:     b.config.Capacity,
		Remaining: remaining,
		ResetAt:   resetAt,
	}, nil
}

// Refund returns one token for key. Callers use it when a token was
// consumed for work that turned out not to happen.
func (b *Bucket) Refund(ctx context.Context, key string) error {
	return b.RefundN(ctx, key, 1)
}

// RefundN returns n tokens for key.
func (b *Bucket) RefundN(ctx context.Context, key string, n int) error {
	if n <= 0 {
		return fmt.Errorf("%w: must be positive, got %d", ErrInvalidTokenCount, n)
	}
	return b.store.ReturnTokens(ctx, key, n, b.config)
}

// Reset clears the bucket state for key.
func (b *Bucket) Reset(ctx context.Context, key string) error {
	return b.store.Reset(ctx, key)
}
