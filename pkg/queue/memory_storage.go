package queue

import (
	"container/heap"
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// readyItem orders waiting jobs by (priority asc, seq asc).
type readyItem struct {
	id       uuid.UUID
	priority Priority
	seq      uint64
}

type readyHeap []readyItem

func (h readyHeap) Len() int { return len(h) }
func (h readyHeap) Less(i, j int) bool {
	if h[i].priority != h[j].priority {
		return h[i].priority < h[j].priority
	}
	return h[i].seq < h[j].seq
}
func (h readyHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *readyHeap) Push(x any) { *h = append(*h, x.(readyItem)) }
func (h *readyHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// delayedItem orders delayed jobs by availableAt.
type delayedItem struct {
	id          uuid.UUID
	availableAt time.Time
	seq         uint64
}

type delayedHeap []delayedItem

func (h delayedHeap) Len() int { return len(h) }
func (h delayedHeap) Less(i, j int) bool {
	if !h[i].availableAt.Equal(h[j].availableAt) {
		return h[i].availableAt.Before(h[j].availableAt)
	}
	return h[i].seq < h[j].seq
}
func (h delayedHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *delayedHeap) Push(x any) { *h = append(*h, x.(delayedItem)) }
func (h *delayedHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// MemoryStorage implements Storage in process memory. It backs tests and
// local development; production deployments use the Redis or Postgres
// storage. All methods are safe for concurrent use.
//
// Heap entries are removed lazily: cancelled jobs leave stale entries
// behind that are skipped on pop by re-checking the job's current state.
type MemoryStorage struct {
	mu      sync.Mutex
	jobs    map[uuid.UUID]*Job
	ready   readyHeap
	delayed delayedHeap
	// finish order per terminal state, oldest first, for count-based retention
	completed []uuid.UUID
	failed    []uuid.UUID
	seq       uint64
}

// NewMemoryStorage creates an empty in-memory storage.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		jobs: make(map[uuid.UUID]*Job),
	}
}

// Close implements Storage. The memory storage holds no external resources.
func (ms *MemoryStorage) Close() error {
	return nil
}

// CreateJob implements Storage.
func (ms *MemoryStorage) CreateJob(_ context.Context, job *Job) error {
	if job == nil {
		return ErrStorageNil
	}

	ms.mu.Lock()
	defer ms.mu.Unlock()

	if _, exists := ms.jobs[job.ID]; exists {
		return ErrJobAlreadyExists
	}

	ms.seq++
	job.Seq = ms.seq

	// Clone so callers cannot mutate stored state.
	stored := *job
	ms.jobs[job.ID] = &stored

	switch stored.State {
	case StateWaiting:
		heap.Push(&ms.ready, readyItem{id: stored.ID, priority: stored.Priority, seq: stored.Seq})
	case StateDelayed:
		heap.Push(&ms.delayed, delayedItem{id: stored.ID, availableAt: stored.AvailableAt, seq: stored.Seq})
	default:
		delete(ms.jobs, job.ID)
		return ErrInvalidJobState
	}

	return nil
}

// ClaimJob implements Storage.
func (ms *MemoryStorage) ClaimJob(_ context.Context, workerID uuid.UUID, lockDuration time.Duration) (*Job, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	now := time.Now()
	for ms.ready.Len() > 0 {
		item := heap.Pop(&ms.ready).(readyItem)

		job, ok := ms.jobs[item.id]
		if !ok || job.State != StateWaiting {
			continue // stale entry left behind by cancel or retry
		}

		lockUntil := now.Add(lockDuration)
		job.State = StateActive
		job.AttemptsMade++
		job.ProcessedAt = ptr(now)
		job.LockedUntil = &lockUntil
		job.LockedBy = &workerID

		claimed := *job
		return &claimed, nil
	}

	return nil, ErrNoJobToClaim
}

// PromoteDueJobs implements Storage.
func (ms *MemoryStorage) PromoteDueJobs(_ context.Context, now time.Time) ([]*Job, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	var promoted []*Job
	for ms.delayed.Len() > 0 {
		next := ms.delayed[0]
		if next.availableAt.After(now) {
			break
		}
		heap.Pop(&ms.delayed)

		job, ok := ms.jobs[next.id]
		if !ok || job.State != StateDelayed {
			continue
		}

		job.State = StateWaiting
		heap.Push(&ms.ready, readyItem{id: job.ID, priority: job.Priority, seq: job.Seq})

		copied := *job
		promoted = append(promoted, &copied)
	}

	return promoted, nil
}

// ReapStalledJobs implements Storage.
func (ms *MemoryStorage) ReapStalledJobs(_ context.Context, now time.Time) ([]*Job, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	var reaped []*Job
	for _, job := range ms.jobs {
		if job.State != StateActive || job.LockedUntil == nil || job.LockedUntil.After(now) {
			continue
		}

		job.State = StateWaiting
		job.LockedUntil = nil
		job.LockedBy = nil
		heap.Push(&ms.ready, readyItem{id: job.ID, priority: job.Priority, seq: job.Seq})

		copied := *job
		reaped = append(reaped, &copied)
	}

	return reaped, nil
}

// CompleteJob implements Storage.
func (ms *MemoryStorage) CompleteJob(_ context.Context, jobID uuid.UUID) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	job, ok := ms.jobs[jobID]
	if !ok {
		return ErrJobNotFound
	}
	if job.Terminal() {
		return nil
	}

	job.State = StateCompleted
	job.FinishedAt = ptr(time.Now())
	job.LockedUntil = nil
	job.LockedBy = nil
	ms.completed = append(ms.completed, jobID)

	return nil
}

// FailJob implements Storage.
func (ms *MemoryStorage) FailJob(_ context.Context, jobID uuid.UUID, errorMsg string) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	job, ok := ms.jobs[jobID]
	if !ok {
		return ErrJobNotFound
	}
	if job.Terminal() {
		return nil
	}

	job.State = StateFailed
	job.FinishedAt = ptr(time.Now())
	job.LastError = &errorMsg
	job.LockedUntil = nil
	job.LockedBy = nil
	ms.failed = append(ms.failed, jobID)

	return nil
}

// RetryJob implements Storage.
func (ms *MemoryStorage) RetryJob(_ context.Context, jobID uuid.UUID, nextAvailableAt time.Time, errorMsg string) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	job, ok := ms.jobs[jobID]
	if !ok {
		return ErrJobNotFound
	}
	if job.Terminal() {
		return nil
	}

	job.State = StateDelayed
	job.AvailableAt = nextAvailableAt
	job.LastError = &errorMsg
	job.LockedUntil = nil
	job.LockedBy = nil
	heap.Push(&ms.delayed, delayedItem{id: job.ID, availableAt: nextAvailableAt, seq: job.Seq})

	return nil
}

// GetJob implements Storage.
func (ms *MemoryStorage) GetJob(_ context.Context, jobID uuid.UUID) (*Job, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	job, ok := ms.jobs[jobID]
	if !ok {
		return nil, ErrJobNotFound
	}

	copied := *job
	return &copied, nil
}

// RemoveJob implements Storage.
func (ms *MemoryStorage) RemoveJob(_ context.Context, jobID uuid.UUID) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	job, ok := ms.jobs[jobID]
	if !ok {
		return ErrJobNotFound
	}
	if job.State == StateActive {
		return ErrJobActive
	}

	ms.deleteLocked(jobID, job.State)
	return nil
}

// Stats implements Storage.
func (ms *MemoryStorage) Stats(_ context.Context) (Stats, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	var s Stats
	for _, job := range ms.jobs {
		switch job.State {
		case StateWaiting:
			s.Waiting++
		case StateDelayed:
			s.Delayed++
		case StateActive:
			s.Active++
		case StateCompleted:
			s.Completed++
		case StateFailed:
			s.Failed++
		}
	}
	s.Total = len(ms.jobs)

	return s, nil
}

// Cleanup implements Storage.
func (ms *MemoryStorage) Cleanup(_ context.Context, policy RetentionPolicy, now time.Time) (int, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	removed := 0
	ms.completed, removed = ms.sweepLocked(ms.completed, StateCompleted, policy.CompletedMaxAge, policy.CompletedMaxCount, now, removed)
	ms.failed, removed = ms.sweepLocked(ms.failed, StateFailed, policy.FailedMaxAge, policy.FailedMaxCount, now, removed)

	return removed, nil
}

// sweepLocked enforces the age and count caps over one terminal index.
// The index is ordered oldest-first. Must be called with the mutex held.
func (ms *MemoryStorage) sweepLocked(index []uuid.UUID, state State, maxAge time.Duration, maxCount int, now time.Time, removed int) ([]uuid.UUID, int) {
	// Drop entries for jobs that no longer exist or changed state.
	live := index[:0]
	for _, id := range index {
		if job, ok := ms.jobs[id]; ok && job.State == state {
			live = append(live, id)
		}
	}
	index = live

	if maxAge > 0 {
		cutoff := now.Add(-maxAge)
		keep := index[:0]
		for _, id := range index {
			job := ms.jobs[id]
			if job.FinishedAt != nil && job.FinishedAt.Before(cutoff) {
				ms.deleteLocked(id, state)
				removed++
				continue
			}
			keep = append(keep, id)
		}
		index = keep
	}

	if maxCount > 0 && len(index) > maxCount {
		excess := len(index) - maxCount
		for _, id := range index[:excess] {
			ms.deleteLocked(id, state)
			removed++
		}
		index = append(index[:0], index[excess:]...)
	}

	return index, removed
}

// deleteLocked removes a job from the map. Heap entries are cleaned up
// lazily on pop. Must be called with the mutex held.
func (ms *MemoryStorage) deleteLocked(jobID uuid.UUID, _ State) {
	delete(ms.jobs, jobID)
}

func ptr[T any](v T) *T {
	return &v
}
