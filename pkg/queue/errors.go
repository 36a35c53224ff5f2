package queue

import "errors"

// Common errors
var (
	// ErrStorageNil is returned when a nil storage is provided.
	ErrStorageNil = errors.New("storage cannot be nil")

	// ErrRegistryNil is returned when a nil deliverer registry is provided.
	ErrRegistryNil = errors.New("deliverer registry cannot be nil")

	// ErrInvalidPriority is returned when priority is outside the valid range.
	ErrInvalidPriority = errors.New("priority must be between 0 and 100")

	// ErrInvalidDelay is returned when a negative delay is requested.
	ErrInvalidDelay = errors.New("delay must not be negative")

	// ErrNoItemsToEnqueue is returned when bulk enqueue is called with no items.
	ErrNoItemsToEnqueue = errors.New("no items to enqueue")

	// ErrJobNotFound is returned on lookup or cancel of an unknown job id.
	ErrJobNotFound = errors.New("job not found")

	// ErrJobActive is returned when cancelling an in-flight job; an active
	// attempt cannot be interrupted, only allowed to complete or retry.
	ErrJobActive = errors.New("job is active and cannot be cancelled")

	// ErrJobAlreadyExists is returned when creating a job with a duplicate id.
	ErrJobAlreadyExists = errors.New("job already exists")

	// ErrInvalidJobState is returned when a job is created in a state other
	// than waiting or delayed.
	ErrInvalidJobState = errors.New("job must be created in waiting or delayed state")

	// ErrNoJobToClaim signals that no ready job is available. Workers treat
	// it as a normal condition, not a failure.
	ErrNoJobToClaim = errors.New("no job available to claim")

	// ErrStorageUnavailable wraps backend connectivity failures so callers
	// can fail fast and distinguish them from domain errors.
	ErrStorageUnavailable = errors.New("job storage unavailable")

	// ErrWorkerAlreadyStarted is returned when Start is called twice.
	ErrWorkerAlreadyStarted = errors.New("worker already started")

	// ErrWorkerNotStarted is returned when Stop is called before Start.
	ErrWorkerNotStarted = errors.New("worker not started")

	// ErrSchedulerAlreadyStarted is returned when the scheduler is started twice.
	ErrSchedulerAlreadyStarted = errors.New("scheduler already started")

	// ErrSchedulerNotStarted is returned when the scheduler is stopped before starting.
	ErrSchedulerNotStarted = errors.New("scheduler not started")
)
