package queue

import (
	"time"

	"github.com/notifyhub/notifyq/pkg/backoff"
	"github.com/notifyhub/notifyq/pkg/ratelimiter"
)

// Config holds the queue settings loaded from the environment.
type Config struct {
	PollInterval      time.Duration `env:"QUEUE_POLL_INTERVAL" envDefault:"200ms"`
	Concurrency       int           `env:"QUEUE_CONCURRENCY" envDefault:"5"`
	RateLimit         int           `env:"QUEUE_RATE_LIMIT" envDefault:"10"`
	RateLimitWindow   time.Duration `env:"QUEUE_RATE_LIMIT_WINDOW" envDefault:"1s"`
	LockTimeout       time.Duration `env:"QUEUE_LOCK_TIMEOUT" envDefault:"1m"`
	DeliverTimeout    time.Duration `env:"QUEUE_DELIVER_TIMEOUT" envDefault:"30s"`
	ShutdownTimeout   time.Duration `env:"QUEUE_SHUTDOWN_TIMEOUT" envDefault:"30s"`
	TickInterval      time.Duration `env:"QUEUE_TICK_INTERVAL" envDefault:"1s"`
	RetentionInterval time.Duration `env:"QUEUE_RETENTION_INTERVAL" envDefault:"1m"`
	MaxAttempts       int8          `env:"QUEUE_MAX_ATTEMPTS" envDefault:"3"`
	BackoffBase       time.Duration `env:"QUEUE_BACKOFF_BASE" envDefault:"2s"`
}

// WorkerOptions expands the config into worker options.
func (c Config) WorkerOptions() []WorkerOption {
	return []WorkerOption{
		WithConcurrency(c.Concurrency),
		WithPollInterval(c.PollInterval),
		WithLockTimeout(c.LockTimeout),
		WithDeliverTimeout(c.DeliverTimeout),
		WithShutdownTimeout(c.ShutdownTimeout),
		WithRateLimit(ratelimiter.Config{
			Capacity:       c.RateLimit,
			RefillRate:     c.RateLimit,
			RefillInterval: c.RateLimitWindow,
		}),
		WithBackoff(backoff.NewExponential(c.BackoffBase, 0)),
	}
}

// SchedulerOptions expands the config into scheduler options.
func (c Config) SchedulerOptions() []SchedulerOption {
	return []SchedulerOption{
		WithTickInterval(c.TickInterval),
		WithRetentionInterval(c.RetentionInterval),
	}
}

// EnqueuerOptions expands the config into enqueuer options.
func (c Config) EnqueuerOptions() []EnqueuerOption {
	return []EnqueuerOption{
		WithDefaultMaxAttempts(c.MaxAttempts),
	}
}
