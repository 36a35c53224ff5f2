package queue

import (
	"log/slog"
	"time"
)

type schedulerOptions struct {
	tickInterval      time.Duration
	retentionInterval time.Duration
	retention         RetentionPolicy
	events            Events
	logger            *slog.Logger
}

// SchedulerOption configures a Scheduler.
type SchedulerOption func(*schedulerOptions)

// WithTickInterval sets how often delayed jobs are promoted and stalled
// jobs reaped. It bounds how late a delayed job can start.
func WithTickInterval(interval time.Duration) SchedulerOption {
	return func(o *schedulerOptions) {
		if interval > 0 {
			o.tickInterval = interval
		}
	}
}

// WithRetentionInterval sets how often the retention sweep runs.
func WithRetentionInterval(interval time.Duration) SchedulerOption {
	return func(o *schedulerOptions) {
		if interval > 0 {
			o.retentionInterval = interval
		}
	}
}

// WithRetentionPolicy overrides the default retention policy.
func WithRetentionPolicy(policy RetentionPolicy) SchedulerOption {
	return func(o *schedulerOptions) {
		o.retention = policy
	}
}

// WithSchedulerEvents attaches a broadcaster for promoted and stalled
// events.
func WithSchedulerEvents(events Events) SchedulerOption {
	return func(o *schedulerOptions) {
		o.events = events
	}
}

// WithSchedulerLogger sets the logger. Nil loggers are ignored.
func WithSchedulerLogger(log *slog.Logger) SchedulerOption {
	return func(o *schedulerOptions) {
		if log != nil {
			o.logger = log
		}
	}
}
