package queue

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Storage is the single source of truth for job state. Queue, Scheduler and
// Worker communicate only by mutating and reading it, never by holding
// references to each other, so multiple worker processes can safely share
// one storage.
//
// ClaimJob and PromoteDueJobs are the contended entry points and must be
// atomic: no two callers may ever receive the same job.
type Storage interface {
	// CreateJob persists a new job. The job must be in StateWaiting or
	// StateDelayed; the storage assigns the enqueue sequence number.
	CreateJob(ctx context.Context, job *Job) error

	// ClaimJob atomically removes and returns the highest-priority,
	// earliest-enqueued waiting job, transitioning it to StateActive,
	// incrementing its attempt counter and locking it for lockDuration.
	// Returns ErrNoJobToClaim when nothing is ready.
	ClaimJob(ctx context.Context, workerID uuid.UUID, lockDuration time.Duration) (*Job, error)

	// PromoteDueJobs moves all delayed jobs whose availableAt has elapsed
	// into the ready set, transitioning them to StateWaiting. Returns the
	// promoted jobs.
	PromoteDueJobs(ctx context.Context, now time.Time) ([]*Job, error)

	// ReapStalledJobs returns active jobs whose lock expired without an
	// outcome back to the ready set. The attempt that stalled stays
	// counted. Returns the reaped jobs.
	ReapStalledJobs(ctx context.Context, now time.Time) ([]*Job, error)

	// CompleteJob marks a job completed. Calling it for an already-terminal
	// job is a no-op, tolerating duplicate-delivery races.
	CompleteJob(ctx context.Context, jobID uuid.UUID) error

	// FailJob marks a job terminally failed with the given reason.
	// Idempotent like CompleteJob.
	FailJob(ctx context.Context, jobID uuid.UUID, errorMsg string) error

	// RetryJob returns a job to StateDelayed until nextAvailableAt,
	// recording the failure reason. Idempotent for terminal jobs.
	RetryJob(ctx context.Context, jobID uuid.UUID, nextAvailableAt time.Time, errorMsg string) error

	// GetJob returns the job with the given id or ErrJobNotFound.
	GetJob(ctx context.Context, jobID uuid.UUID) (*Job, error)

	// RemoveJob cancels a job. Fails with ErrJobNotFound for unknown ids
	// and ErrJobActive for in-flight jobs; cancellation is non-preemptive.
	RemoveJob(ctx context.Context, jobID uuid.UUID) error

	// Stats returns per-state job counts.
	Stats(ctx context.Context) (Stats, error)

	// Cleanup deletes terminal jobs according to the retention policy and
	// returns how many were removed.
	Cleanup(ctx context.Context, policy RetentionPolicy, now time.Time) (int, error)

	// Close releases storage resources.
	Close() error
}

// RetentionPolicy bounds storage growth of terminal jobs. A zero cap
// disables that particular bound.
type RetentionPolicy struct {
	CompletedMaxAge   time.Duration // Completed jobs older than this are deleted.
	CompletedMaxCount int           // At most this many most recent completed jobs are kept.
	FailedMaxAge      time.Duration // Failed jobs older than this are deleted.
	FailedMaxCount    int           // At most this many most recent failed jobs are kept.
}

// DefaultRetentionPolicy keeps the most recent 100 completed jobs within
// 24 hours and the most recent 500 failed jobs.
func DefaultRetentionPolicy() RetentionPolicy {
	return RetentionPolicy{
		CompletedMaxAge:   24 * time.Hour,
		CompletedMaxCount: 100,
		FailedMaxCount:    500,
	}
}
