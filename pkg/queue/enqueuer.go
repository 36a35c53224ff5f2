package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/notifyhub/notifyq/pkg/logger"
	"github.com/notifyhub/notifyq/pkg/notification"
)

// Enqueuer is the admission API: it validates payloads, creates jobs and
// exposes inspection, cancellation and statistics. It holds no job state;
// everything lives in the storage.
type Enqueuer struct {
	storage            Storage
	defaultPriority    Priority
	defaultMaxAttempts int8
	events             Events
	logger             *slog.Logger
}

// BulkItem pairs a payload with its priority for bulk admission.
// A zero Priority means the enqueuer default.
type BulkItem struct {
	Payload  notification.Payload
	Priority Priority
}

// NewEnqueuer creates an Enqueuer over the given storage.
func NewEnqueuer(storage Storage, opts ...EnqueuerOption) (*Enqueuer, error) {
	if storage == nil {
		return nil, ErrStorageNil
	}

	options := &enqueuerOptions{
		defaultPriority:    PriorityDefault,
		defaultMaxAttempts: 3,
		logger:             slog.Default(),
	}
	for _, opt := range opts {
		opt(options)
	}

	return &Enqueuer{
		storage:            storage,
		defaultPriority:    options.defaultPriority,
		defaultMaxAttempts: options.defaultMaxAttempts,
		events:             options.events,
		logger:             options.logger,
	}, nil
}

// Enqueue validates the payload and creates a job. Without options the job
// is immediately ready at the default priority; WithDelay and
// WithAvailableAt admit it into the delayed set instead.
func (e *Enqueuer) Enqueue(ctx context.Context, payload notification.Payload, opts ...EnqueueOption) (*Job, error) {
	options := &enqueueOptions{
		priority:    e.defaultPriority,
		maxAttempts: e.defaultMaxAttempts,
	}
	for _, opt := range opts {
		opt(options)
	}

	if options.delay < 0 {
		return nil, ErrInvalidDelay
	}
	if !options.priority.Valid() {
		return nil, ErrInvalidPriority
	}
	if err := payload.Validate(); err != nil {
		return nil, err
	}

	job, err := e.buildJob(payload, options)
	if err != nil {
		return nil, err
	}

	if err := e.storage.CreateJob(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to create job for channel %q: %w", payload.Channel, err)
	}

	emit(ctx, e.events, Event{Type: EventEnqueued, JobID: job.ID, Channel: payload.Channel})
	e.logger.Debug("job enqueued",
		logger.JobID(job.ID),
		logger.Channel(string(payload.Channel)),
		slog.Int("priority", int(job.Priority)),
		slog.String("state", string(job.State)))

	return job, nil
}

// EnqueueDelayed schedules a notification for later delivery.
// A negative delay is rejected with ErrInvalidDelay.
func (e *Enqueuer) EnqueueDelayed(ctx context.Context, payload notification.Payload, delay time.Duration) (*Job, error) {
	if delay < 0 {
		return nil, ErrInvalidDelay
	}
	return e.Enqueue(ctx, payload, WithDelay(delay))
}

// EnqueueBulk admits many notifications at once. Validation is
// all-or-nothing: if any item is invalid nothing is inserted. Insertion
// itself is per-item; a storage failure mid-way leaves the already-created
// jobs queued and returns them alongside the error.
func (e *Enqueuer) EnqueueBulk(ctx context.Context, items []BulkItem) ([]*Job, error) {
	if len(items) == 0 {
		return nil, ErrNoItemsToEnqueue
	}

	// Validation pass over every item before touching the storage.
	var validationErrs []error
	for i, item := range items {
		if err := item.Payload.Validate(); err != nil {
			validationErrs = append(validationErrs, fmt.Errorf("item %d: %w", i, err))
			continue
		}
		if item.Priority != 0 && !item.Priority.Valid() {
			validationErrs = append(validationErrs, fmt.Errorf("item %d: %w", i, ErrInvalidPriority))
		}
	}
	if len(validationErrs) > 0 {
		return nil, errors.Join(validationErrs...)
	}

	jobs := make([]*Job, 0, len(items))
	for i, item := range items {
		priority := item.Priority
		if priority == 0 {
			priority = e.defaultPriority
		}

		job, err := e.Enqueue(ctx, item.Payload, WithPriority(priority))
		if err != nil {
			return jobs, fmt.Errorf("bulk enqueue stopped at item %d: %w", i, err)
		}
		jobs = append(jobs, job)
	}

	return jobs, nil
}

// Cancel removes a waiting or delayed job before it is ever claimed.
// Cancelling an active job fails with ErrJobActive; cancellation is
// non-preemptive.
func (e *Enqueuer) Cancel(ctx context.Context, jobID uuid.UUID) error {
	return e.storage.RemoveJob(ctx, jobID)
}

// JobStatus returns the latest storage-committed state of a job.
func (e *Enqueuer) JobStatus(ctx context.Context, jobID uuid.UUID) (*Job, error) {
	return e.storage.GetJob(ctx, jobID)
}

// Stats returns per-state job counts.
func (e *Enqueuer) Stats(ctx context.Context) (Stats, error) {
	return e.storage.Stats(ctx)
}

// Clean deletes terminal jobs of the given state older than grace,
// mirroring the background retention sweep for manual maintenance.
func (e *Enqueuer) Clean(ctx context.Context, grace time.Duration, state State) (int, error) {
	var policy RetentionPolicy
	switch state {
	case StateCompleted:
		policy.CompletedMaxAge = grace
	case StateFailed:
		policy.FailedMaxAge = grace
	default:
		return 0, fmt.Errorf("%w: only completed and failed jobs can be cleaned", ErrInvalidJobState)
	}

	return e.storage.Cleanup(ctx, policy, time.Now())
}

// buildJob constructs a Job from a validated payload and options.
func (e *Enqueuer) buildJob(payload notification.Payload, options *enqueueOptions) (*Job, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}

	now := time.Now()
	availableAt := now
	state := StateWaiting
	switch {
	case options.availableAt != nil && options.availableAt.After(now):
		availableAt = *options.availableAt
		state = StateDelayed
	case options.delay > 0:
		availableAt = now.Add(options.delay)
		state = StateDelayed
	}

	return &Job{
		ID:           uuid.New(),
		Payload:      raw,
		Priority:     options.priority,
		State:        state,
		AttemptsMade: 0,
		MaxAttempts:  options.maxAttempts,
		AvailableAt:  availableAt,
		CreatedAt:    now,
	}, nil
}
