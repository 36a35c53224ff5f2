package queue

import (
	"log/slog"
	"time"

	"github.com/notifyhub/notifyq/pkg/backoff"
	"github.com/notifyhub/notifyq/pkg/ratelimiter"
)

type workerOptions struct {
	concurrency     int
	pollInterval    time.Duration
	lockTimeout     time.Duration
	deliverTimeout  time.Duration
	shutdownTimeout time.Duration
	rateLimit       ratelimiter.Config
	backoff         backoff.Strategy
	events          Events
	logger          *slog.Logger
}

// WorkerOption configures a Worker.
type WorkerOption func(*workerOptions)

// WithConcurrency bounds the number of jobs delivered simultaneously.
// Non-positive values are ignored.
func WithConcurrency(n int) WorkerOption {
	return func(o *workerOptions) {
		if n > 0 {
			o.concurrency = n
		}
	}
}

// WithPollInterval sets how often the worker checks for ready jobs.
func WithPollInterval(interval time.Duration) WorkerOption {
	return func(o *workerOptions) {
		if interval > 0 {
			o.pollInterval = interval
		}
	}
}

// WithLockTimeout sets how long a claimed job stays locked before the
// scheduler treats it as stalled. It must exceed the delivery timeout or
// healthy jobs get reaped mid-delivery.
func WithLockTimeout(timeout time.Duration) WorkerOption {
	return func(o *workerOptions) {
		if timeout > 0 {
			o.lockTimeout = timeout
		}
	}
}

// WithDeliverTimeout bounds a single delivery attempt. Attempts that run
// past it fail with a retryable timeout error.
func WithDeliverTimeout(timeout time.Duration) WorkerOption {
	return func(o *workerOptions) {
		if timeout > 0 {
			o.deliverTimeout = timeout
		}
	}
}

// WithShutdownTimeout bounds how long Stop waits for in-flight deliveries.
func WithShutdownTimeout(timeout time.Duration) WorkerOption {
	return func(o *workerOptions) {
		if timeout > 0 {
			o.shutdownTimeout = timeout
		}
	}
}

// WithRateLimit caps job starts per refill window.
func WithRateLimit(config ratelimiter.Config) WorkerOption {
	return func(o *workerOptions) {
		o.rateLimit = config
	}
}

// WithBackoff sets the retry delay strategy. Nil strategies are ignored.
func WithBackoff(strategy backoff.Strategy) WorkerOption {
	return func(o *workerOptions) {
		if strategy != nil {
			o.backoff = strategy
		}
	}
}

// WithWorkerEvents attaches a broadcaster for lifecycle events.
func WithWorkerEvents(events Events) WorkerOption {
	return func(o *workerOptions) {
		o.events = events
	}
}

// WithWorkerLogger sets the logger. Nil loggers are ignored.
func WithWorkerLogger(log *slog.Logger) WorkerOption {
	return func(o *workerOptions) {
		if log != nil {
			o.logger = log
		}
	}
}
