package queue

import (
	"log/slog"
	"time"
)

type enqueuerOptions struct {
	defaultPriority    Priority
	defaultMaxAttempts int8
	events             Events
	logger             *slog.Logger
}

// EnqueuerOption configures an Enqueuer.
type EnqueuerOption func(*enqueuerOptions)

// WithDefaultPriority sets the priority applied when Enqueue is called
// without WithPriority. Out-of-range values are ignored.
func WithDefaultPriority(p Priority) EnqueuerOption {
	return func(o *enqueuerOptions) {
		if p.Valid() {
			o.defaultPriority = p
		}
	}
}

// WithDefaultMaxAttempts sets the attempts budget applied when Enqueue is
// called without WithMaxAttempts. Values outside [1, 10] are ignored.
func WithDefaultMaxAttempts(n int8) EnqueuerOption {
	return func(o *enqueuerOptions) {
		if n >= 1 && n <= maxAttemptsCap {
			o.defaultMaxAttempts = n
		}
	}
}

// WithEnqueuerEvents attaches a broadcaster so admissions publish
// EventEnqueued.
func WithEnqueuerEvents(events Events) EnqueuerOption {
	return func(o *enqueuerOptions) {
		o.events = events
	}
}

// WithEnqueuerLogger sets the logger. Nil loggers are ignored.
func WithEnqueuerLogger(log *slog.Logger) EnqueuerOption {
	return func(o *enqueuerOptions) {
		if log != nil {
			o.logger = log
		}
	}
}

// maxAttemptsCap bounds per-job attempt budgets.
const maxAttemptsCap = 10

type enqueueOptions struct {
	priority    Priority
	maxAttempts int8
	delay       time.Duration
	availableAt *time.Time
}

// EnqueueOption configures a single admission.
type EnqueueOption func(*enqueueOptions)

// WithPriority sets the job priority. Lower values run first.
func WithPriority(p Priority) EnqueueOption {
	return func(o *enqueueOptions) {
		o.priority = p
	}
}

// WithDelay defers the job's availability by the given duration.
func WithDelay(delay time.Duration) EnqueueOption {
	return func(o *enqueueOptions) {
		o.delay = delay
	}
}

// WithAvailableAt defers the job until an absolute point in time. Times in
// the past make the job immediately ready.
func WithAvailableAt(at time.Time) EnqueueOption {
	return func(o *enqueueOptions) {
		o.availableAt = &at
	}
}

// WithMaxAttempts overrides the attempts budget for this job.
// Values outside [1, 10] are clamped.
func WithMaxAttempts(n int8) EnqueueOption {
	return func(o *enqueueOptions) {
		if n < 1 {
			n = 1
		}
		if n > maxAttemptsCap {
			n = maxAttemptsCap
		}
		o.maxAttempts = n
	}
}
