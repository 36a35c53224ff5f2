package queue_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/notifyhub/notifyq/pkg/queue"
)

func newWaitingJob(priority queue.Priority) *queue.Job {
	now := time.Now()
	return &queue.Job{
		ID:          uuid.New(),
		Payload:     []byte(`{"channel":"email"}`),
		Priority:    priority,
		State:       queue.StateWaiting,
		MaxAttempts: 3,
		AvailableAt: now,
		CreatedAt:   now,
	}
}

func newDelayedJob(availableAt time.Time) *queue.Job {
	job := newWaitingJob(queue.PriorityDefault)
	job.State = queue.StateDelayed
	job.AvailableAt = availableAt
	return job
}

func TestMemoryStorage_CreateJob(t *testing.T) {
	t.Parallel()

	t.Run("assigns sequence in admission order", func(t *testing.T) {
		t.Parallel()

		storage := queue.NewMemoryStorage()
		ctx := context.Background()

		first := newWaitingJob(1)
		second := newWaitingJob(1)
		require.NoError(t, storage.CreateJob(ctx, first))
		require.NoError(t, storage.CreateJob(ctx, second))

		assert.Less(t, first.Seq, second.Seq)
	})

	t.Run("rejects duplicate id", func(t *testing.T) {
		t.Parallel()

		storage := queue.NewMemoryStorage()
		ctx := context.Background()

		job := newWaitingJob(1)
		require.NoError(t, storage.CreateJob(ctx, job))
		assert.ErrorIs(t, storage.CreateJob(ctx, job), queue.ErrJobAlreadyExists)
	})
}

func TestMemoryStorage_ClaimJob(t *testing.T) {
	t.Parallel()

	t.Run("claims by priority then admission order", func(t *testing.T) {
		t.Parallel()

		storage := queue.NewMemoryStorage()
		ctx := context.Background()
		workerID := uuid.New()

		low := newWaitingJob(10)
		urgent := newWaitingJob(0)
		normal := newWaitingJob(1)
		for _, job := range []*queue.Job{low, urgent, normal} {
			require.NoError(t, storage.CreateJob(ctx, job))
		}

		var order []uuid.UUID
		for n := 0; n < 3; n++ {
			claimed, err := storage.ClaimJob(ctx, workerID, time.Minute)
			require.NoError(t, err)
			order = append(order, claimed.ID)
		}

		assert.Equal(t, []uuid.UUID{urgent.ID, normal.ID, low.ID}, order)
	})

	t.Run("same priority is FIFO", func(t *testing.T) {
		t.Parallel()

		storage := queue.NewMemoryStorage()
		ctx := context.Background()
		workerID := uuid.New()

		first := newWaitingJob(5)
		second := newWaitingJob(5)
		require.NoError(t, storage.CreateJob(ctx, first))
		require.NoError(t, storage.CreateJob(ctx, second))

		claimed, err := storage.ClaimJob(ctx, workerID, time.Minute)
		require.NoError(t, err)
		assert.Equal(t, first.ID, claimed.ID)
	})

	t.Run("claim locks and charges the attempt", func(t *testing.T) {
		t.Parallel()

		storage := queue.NewMemoryStorage()
		ctx := context.Background()
		workerID := uuid.New()

		job := newWaitingJob(1)
		require.NoError(t, storage.CreateJob(ctx, job))

		claimed, err := storage.ClaimJob(ctx, workerID, time.Minute)
		require.NoError(t, err)
		assert.Equal(t, queue.StateActive, claimed.State)
		assert.EqualValues(t, 1, claimed.AttemptsMade)
		require.NotNil(t, claimed.LockedBy)
		assert.Equal(t, workerID, *claimed.LockedBy)
		require.NotNil(t, claimed.LockedUntil)
		assert.True(t, claimed.LockedUntil.After(time.Now()))

		// Active jobs are not claimable again.
		_, err = storage.ClaimJob(ctx, workerID, time.Minute)
		assert.ErrorIs(t, err, queue.ErrNoJobToClaim)
	})

	t.Run("empty queue", func(t *testing.T) {
		t.Parallel()

		storage := queue.NewMemoryStorage()
		_, err := storage.ClaimJob(context.Background(), uuid.New(), time.Minute)
		assert.ErrorIs(t, err, queue.ErrNoJobToClaim)
	})
}

func TestMemoryStorage_PromoteDueJobs(t *testing.T) {
	t.Parallel()

	storage := queue.NewMemoryStorage()
	ctx := context.Background()
	now := time.Now()

	due := newDelayedJob(now.Add(-time.Second))
	future := newDelayedJob(now.Add(time.Hour))
	require.NoError(t, storage.CreateJob(ctx, due))
	require.NoError(t, storage.CreateJob(ctx, future))

	promoted, err := storage.PromoteDueJobs(ctx, now)
	require.NoError(t, err)
	require.Len(t, promoted, 1)
	assert.Equal(t, due.ID, promoted[0].ID)
	assert.Equal(t, queue.StateWaiting, promoted[0].State)

	// The future job stays delayed and unclaimable.
	_, err = storage.ClaimJob(ctx, uuid.New(), time.Minute)
	require.NoError(t, err)
	_, err = storage.ClaimJob(ctx, uuid.New(), time.Minute)
	assert.ErrorIs(t, err, queue.ErrNoJobToClaim)
}

func TestMemoryStorage_ReapStalledJobs(t *testing.T) {
	t.Parallel()

	storage := queue.NewMemoryStorage()
	ctx := context.Background()
	workerID := uuid.New()

	job := newWaitingJob(1)
	require.NoError(t, storage.CreateJob(ctx, job))

	claimed, err := storage.ClaimJob(ctx, workerID, 10*time.Millisecond)
	require.NoError(t, err)
	require.Equal(t, queue.StateActive, claimed.State)

	// Before the lock expires nothing is stalled.
	reaped, err := storage.ReapStalledJobs(ctx, time.Now())
	require.NoError(t, err)
	assert.Empty(t, reaped)

	reaped, err = storage.ReapStalledJobs(ctx, time.Now().Add(time.Second))
	require.NoError(t, err)
	require.Len(t, reaped, 1)
	assert.Equal(t, job.ID, reaped[0].ID)
	assert.Equal(t, queue.StateWaiting, reaped[0].State)
	assert.EqualValues(t, 1, reaped[0].AttemptsMade)

	// Requeued job is claimable again and keeps its attempt count.
	reclaimed, err := storage.ClaimJob(ctx, workerID, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, job.ID, reclaimed.ID)
	assert.EqualValues(t, 2, reclaimed.AttemptsMade)
}

func TestMemoryStorage_TerminalTransitions(t *testing.T) {
	t.Parallel()

	t.Run("complete is idempotent", func(t *testing.T) {
		t.Parallel()

		storage := queue.NewMemoryStorage()
		ctx := context.Background()

		job := newWaitingJob(1)
		require.NoError(t, storage.CreateJob(ctx, job))
		_, err := storage.ClaimJob(ctx, uuid.New(), time.Minute)
		require.NoError(t, err)

		require.NoError(t, storage.CompleteJob(ctx, job.ID))
		require.NoError(t, storage.CompleteJob(ctx, job.ID))

		stored, err := storage.GetJob(ctx, job.ID)
		require.NoError(t, err)
		assert.Equal(t, queue.StateCompleted, stored.State)
		assert.NotNil(t, stored.FinishedAt)
		assert.Nil(t, stored.LockedBy)
	})

	t.Run("fail does not overwrite completed", func(t *testing.T) {
		t.Parallel()

		storage := queue.NewMemoryStorage()
		ctx := context.Background()

		job := newWaitingJob(1)
		require.NoError(t, storage.CreateJob(ctx, job))
		_, err := storage.ClaimJob(ctx, uuid.New(), time.Minute)
		require.NoError(t, err)

		require.NoError(t, storage.CompleteJob(ctx, job.ID))
		require.NoError(t, storage.FailJob(ctx, job.ID, "late failure"))

		stored, err := storage.GetJob(ctx, job.ID)
		require.NoError(t, err)
		assert.Equal(t, queue.StateCompleted, stored.State)
		assert.Nil(t, stored.LastError)
	})

	t.Run("unknown job", func(t *testing.T) {
		t.Parallel()

		storage := queue.NewMemoryStorage()
		ctx := context.Background()

		assert.ErrorIs(t, storage.CompleteJob(ctx, uuid.New()), queue.ErrJobNotFound)
		assert.ErrorIs(t, storage.FailJob(ctx, uuid.New(), "boom"), queue.ErrJobNotFound)
	})
}

func TestMemoryStorage_RetryJob(t *testing.T) {
	t.Parallel()

	storage := queue.NewMemoryStorage()
	ctx := context.Background()

	job := newWaitingJob(1)
	require.NoError(t, storage.CreateJob(ctx, job))
	_, err := storage.ClaimJob(ctx, uuid.New(), time.Minute)
	require.NoError(t, err)

	nextAt := time.Now().Add(2 * time.Second)
	require.NoError(t, storage.RetryJob(ctx, job.ID, nextAt, "connection refused"))

	stored, err := storage.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, queue.StateDelayed, stored.State)
	assert.Equal(t, nextAt.Unix(), stored.AvailableAt.Unix())
	require.NotNil(t, stored.LastError)
	assert.Equal(t, "connection refused", *stored.LastError)
	assert.EqualValues(t, 1, stored.AttemptsMade)

	// Not claimable until promoted after the backoff elapses.
	_, err = storage.ClaimJob(ctx, uuid.New(), time.Minute)
	assert.ErrorIs(t, err, queue.ErrNoJobToClaim)

	promoted, err := storage.PromoteDueJobs(ctx, nextAt.Add(time.Millisecond))
	require.NoError(t, err)
	require.Len(t, promoted, 1)

	reclaimed, err := storage.ClaimJob(ctx, uuid.New(), time.Minute)
	require.NoError(t, err)
	assert.Equal(t, job.ID, reclaimed.ID)
	assert.EqualValues(t, 2, reclaimed.AttemptsMade)
}

func TestMemoryStorage_RemoveJob(t *testing.T) {
	t.Parallel()

	t.Run("removes waiting job", func(t *testing.T) {
		t.Parallel()

		storage := queue.NewMemoryStorage()
		ctx := context.Background()

		job := newWaitingJob(1)
		require.NoError(t, storage.CreateJob(ctx, job))
		require.NoError(t, storage.RemoveJob(ctx, job.ID))

		_, err := storage.GetJob(ctx, job.ID)
		assert.ErrorIs(t, err, queue.ErrJobNotFound)
	})

	t.Run("rejects active job", func(t *testing.T) {
		t.Parallel()

		storage := queue.NewMemoryStorage()
		ctx := context.Background()

		job := newWaitingJob(1)
		require.NoError(t, storage.CreateJob(ctx, job))
		_, err := storage.ClaimJob(ctx, uuid.New(), time.Minute)
		require.NoError(t, err)

		assert.ErrorIs(t, storage.RemoveJob(ctx, job.ID), queue.ErrJobActive)
	})

	t.Run("unknown job", func(t *testing.T) {
		t.Parallel()

		storage := queue.NewMemoryStorage()
		assert.ErrorIs(t, storage.RemoveJob(context.Background(), uuid.New()), queue.ErrJobNotFound)
	})
}

func TestMemoryStorage_Stats(t *testing.T) {
	t.Parallel()

	storage := queue.NewMemoryStorage()
	ctx := context.Background()

	waiting := newWaitingJob(1)
	delayed := newDelayedJob(time.Now().Add(time.Hour))
	active := newWaitingJob(0)
	done := newWaitingJob(0)
	require.NoError(t, storage.CreateJob(ctx, waiting))
	require.NoError(t, storage.CreateJob(ctx, delayed))
	require.NoError(t, storage.CreateJob(ctx, active))
	require.NoError(t, storage.CreateJob(ctx, done))

	// Priority 0 jobs get claimed first; complete one, keep one active.
	claimed, err := storage.ClaimJob(ctx, uuid.New(), time.Minute)
	require.NoError(t, err)
	require.NoError(t, storage.CompleteJob(ctx, claimed.ID))
	_, err = storage.ClaimJob(ctx, uuid.New(), time.Minute)
	require.NoError(t, err)

	stats, err := storage.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Waiting)
	assert.Equal(t, 1, stats.Delayed)
	assert.Equal(t, 1, stats.Active)
	assert.Equal(t, 1, stats.Completed)
	assert.Equal(t, 0, stats.Failed)
	assert.Equal(t, 4, stats.Total)
}

func TestMemoryStorage_Cleanup(t *testing.T) {
	t.Parallel()

	t.Run("count cap keeps newest", func(t *testing.T) {
		t.Parallel()

		storage := queue.NewMemoryStorage()
		ctx := context.Background()
		workerID := uuid.New()

		var ids []uuid.UUID
		for n := 0; n < 5; n++ {
			job := newWaitingJob(1)
			require.NoError(t, storage.CreateJob(ctx, job))
			_, err := storage.ClaimJob(ctx, workerID, time.Minute)
			require.NoError(t, err)
			require.NoError(t, storage.CompleteJob(ctx, job.ID))
			ids = append(ids, job.ID)
		}

		removed, err := storage.Cleanup(ctx, queue.RetentionPolicy{CompletedMaxCount: 2}, time.Now())
		require.NoError(t, err)
		assert.Equal(t, 3, removed)

		// Oldest three are gone, newest two survive.
		for _, id := range ids[:3] {
			_, err := storage.GetJob(ctx, id)
			assert.ErrorIs(t, err, queue.ErrJobNotFound)
		}
		for _, id := range ids[3:] {
			_, err := storage.GetJob(ctx, id)
			assert.NoError(t, err)
		}
	})

	t.Run("age cap removes old failures", func(t *testing.T) {
		t.Parallel()

		storage := queue.NewMemoryStorage()
		ctx := context.Background()

		job := newWaitingJob(1)
		require.NoError(t, storage.CreateJob(ctx, job))
		_, err := storage.ClaimJob(ctx, uuid.New(), time.Minute)
		require.NoError(t, err)
		require.NoError(t, storage.FailJob(ctx, job.ID, "boom"))

		removed, err := storage.Cleanup(ctx, queue.RetentionPolicy{FailedMaxAge: time.Hour}, time.Now().Add(2*time.Hour))
		require.NoError(t, err)
		assert.Equal(t, 1, removed)

		_, err = storage.GetJob(ctx, job.ID)
		assert.ErrorIs(t, err, queue.ErrJobNotFound)
	})

	t.Run("zero policy removes nothing", func(t *testing.T) {
		t.Parallel()

		storage := queue.NewMemoryStorage()
		ctx := context.Background()

		job := newWaitingJob(1)
		require.NoError(t, storage.CreateJob(ctx, job))
		_, err := storage.ClaimJob(ctx, uuid.New(), time.Minute)
		require.NoError(t, err)
		require.NoError(t, storage.CompleteJob(ctx, job.ID))

		removed, err := storage.Cleanup(ctx, queue.RetentionPolicy{}, time.Now().Add(time.Hour))
		require.NoError(t, err)
		assert.Zero(t, removed)
	})
}
