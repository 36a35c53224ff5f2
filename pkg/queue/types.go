package queue

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// State represents the lifecycle state of a job. A job is in exactly one
// state at any time; storage transitions are the only mutators.
type State string

const (
	StateWaiting   State = "waiting"
	StateDelayed   State = "delayed"
	StateActive    State = "active"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
)

// Valid checks if the state is one of the five lifecycle states.
func (s State) Valid() bool {
	switch s {
	case StateWaiting, StateDelayed, StateActive, StateCompleted, StateFailed:
		return true
	}
	return false
}

// Terminal reports whether the state is an end state.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed
}

// Priority orders jobs within the ready set. Lower value means higher
// priority; ties are broken by enqueue order (FIFO).
type Priority int8

const (
	PriorityMin     Priority = 0
	PriorityMax     Priority = 100
	PriorityDefault Priority = 1
)

// Valid checks if the priority is within the accepted range.
func (p Priority) Valid() bool {
	return p >= PriorityMin && p <= PriorityMax
}

// Job is one unit of notification-delivery work. The payload is immutable
// once created; lifecycle fields are mutated only through storage
// transitions.
type Job struct {
	ID           uuid.UUID       `json:"id"`
	Payload      json.RawMessage `json:"payload"`
	Priority     Priority        `json:"priority"`
	State        State           `json:"state"`
	AttemptsMade int8            `json:"attempts_made"`
	MaxAttempts  int8            `json:"max_attempts"`
	AvailableAt  time.Time       `json:"available_at"`
	CreatedAt    time.Time       `json:"created_at"`
	ProcessedAt  *time.Time      `json:"processed_at,omitempty"`
	FinishedAt   *time.Time      `json:"finished_at,omitempty"`
	LastError    *string         `json:"last_error,omitempty"`
	LockedUntil  *time.Time      `json:"locked_until,omitempty"`
	LockedBy     *uuid.UUID      `json:"locked_by,omitempty"`

	// Seq is assigned by the storage on creation and orders jobs within a
	// priority tier. It is never reused.
	Seq uint64 `json:"seq"`
}

// Terminal reports whether the job reached an end state.
func (j *Job) Terminal() bool {
	return j.State.Terminal()
}

// Stats holds per-state job counts. Counts sum to the total number of jobs
// not yet removed by retention.
type Stats struct {
	Waiting   int `json:"waiting"`
	Delayed   int `json:"delayed"`
	Active    int `json:"active"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
	Total     int `json:"total"`
}
