// Package ratelimiter implements a token bucket rate limiter with a
// pluggable storage backend.
//
// The queue worker uses it to bound job starts per rolling window: a
// bucket with Capacity and RefillRate both set to the allowed starts and
// RefillInterval set to the window length is checked before each claim.
package ratelimiter
