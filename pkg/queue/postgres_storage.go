package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// jobColumns is the canonical select list; scanJob depends on this order.
const jobColumns = `id, payload, priority, state, attempts_made, max_attempts,
	available_at, created_at, processed_at, finished_at, last_error,
	locked_until, locked_by, seq`

// PostgresStorage implements Storage on PostgreSQL. Claims rely on
// FOR UPDATE SKIP LOCKED so concurrent workers never block each other or
// double-claim, and the seq identity column gives the FIFO tie-break
// within a priority.
type PostgresStorage struct {
	pool *pgxpool.Pool
}

// NewPostgresStorage creates a PostgreSQL-backed storage over an existing
// pool. The schema must already be migrated.
func NewPostgresStorage(pool *pgxpool.Pool) (*PostgresStorage, error) {
	if pool == nil {
		return nil, ErrStorageNil
	}
	return &PostgresStorage{pool: pool}, nil
}

// CreateJob implements Storage.
func (ps *PostgresStorage) CreateJob(ctx context.Context, job *Job) error {
	if job == nil {
		return ErrInvalidJobState
	}

	err := ps.pool.QueryRow(ctx, `
		INSERT INTO notification_jobs
			(id, payload, priority, state, attempts_made, max_attempts, available_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING seq`,
		job.ID, job.Payload, job.Priority, job.State,
		job.AttemptsMade, job.MaxAttempts, job.AvailableAt, job.CreatedAt,
	).Scan(&job.Seq)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrJobAlreadyExists
		}
		return ps.wrap("create job", err)
	}

	return nil
}

// ClaimJob implements Storage.
func (ps *PostgresStorage) ClaimJob(ctx context.Context, workerID uuid.UUID, lockDuration time.Duration) (*Job, error) {
	now := time.Now()

	row := ps.pool.QueryRow(ctx, `
		UPDATE notification_jobs SET
			state = 'active',
			attempts_made = attempts_made + 1,
			processed_at = $1,
			locked_until = $2,
			locked_by = $3
		WHERE id = (
			SELECT id FROM notification_jobs
			WHERE state = 'waiting'
			ORDER BY priority, seq
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING `+jobColumns,
		now, now.Add(lockDuration), workerID)

	job, err := scanJob(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNoJobToClaim
		}
		return nil, ps.wrap("claim job", err)
	}

	return job, nil
}

// PromoteDueJobs implements Storage.
func (ps *PostgresStorage) PromoteDueJobs(ctx context.Context, now time.Time) ([]*Job, error) {
	rows, err := ps.pool.Query(ctx, `
		UPDATE notification_jobs
		SET state = 'waiting'
		WHERE state = 'delayed' AND available_at <= $1
		RETURNING `+jobColumns,
		now)
	if err != nil {
		return nil, ps.wrap("promote due jobs", err)
	}

	return collectJobs(rows)
}

// ReapStalledJobs implements Storage.
func (ps *PostgresStorage) ReapStalledJobs(ctx context.Context, now time.Time) ([]*Job, error) {
	rows, err := ps.pool.Query(ctx, `
		UPDATE notification_jobs SET
			state = 'waiting',
			locked_until = NULL,
			locked_by = NULL
		WHERE state = 'active' AND locked_until <= $1
		RETURNING `+jobColumns,
		now)
	if err != nil {
		return nil, ps.wrap("reap stalled jobs", err)
	}

	return collectJobs(rows)
}

// CompleteJob implements Storage.
func (ps *PostgresStorage) CompleteJob(ctx context.Context, jobID uuid.UUID) error {
	return ps.finish(ctx, jobID, StateCompleted, nil)
}

// FailJob implements Storage.
func (ps *PostgresStorage) FailJob(ctx context.Context, jobID uuid.UUID, errorMsg string) error {
	return ps.finish(ctx, jobID, StateFailed, &errorMsg)
}

func (ps *PostgresStorage) finish(ctx context.Context, jobID uuid.UUID, state State, errorMsg *string) error {
	tag, err := ps.pool.Exec(ctx, `
		UPDATE notification_jobs SET
			state = $2,
			finished_at = $3,
			last_error = COALESCE($4, last_error),
			locked_until = NULL,
			locked_by = NULL
		WHERE id = $1 AND state NOT IN ('completed', 'failed')`,
		jobID, state, time.Now(), errorMsg)
	if err != nil {
		return ps.wrap("finish job", err)
	}
	if tag.RowsAffected() == 0 {
		// Already terminal is a no-op; only a truly unknown id is an error.
		return ps.checkExists(ctx, jobID)
	}

	return nil
}

// RetryJob implements Storage.
func (ps *PostgresStorage) RetryJob(ctx context.Context, jobID uuid.UUID, nextAvailableAt time.Time, errorMsg string) error {
	tag, err := ps.pool.Exec(ctx, `
		UPDATE notification_jobs SET
			state = 'delayed',
			available_at = $2,
			last_error = $3,
			locked_until = NULL,
			locked_by = NULL
		WHERE id = $1 AND state NOT IN ('completed', 'failed')`,
		jobID, nextAvailableAt, errorMsg)
	if err != nil {
		return ps.wrap("retry job", err)
	}
	if tag.RowsAffected() == 0 {
		return ps.checkExists(ctx, jobID)
	}

	return nil
}

// GetJob implements Storage.
func (ps *PostgresStorage) GetJob(ctx context.Context, jobID uuid.UUID) (*Job, error) {
	row := ps.pool.QueryRow(ctx,
		`SELECT `+jobColumns+` FROM notification_jobs WHERE id = $1`,
		jobID)

	job, err := scanJob(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrJobNotFound
		}
		return nil, ps.wrap("get job", err)
	}

	return job, nil
}

// RemoveJob implements Storage.
func (ps *PostgresStorage) RemoveJob(ctx context.Context, jobID uuid.UUID) error {
	tag, err := ps.pool.Exec(ctx,
		`DELETE FROM notification_jobs WHERE id = $1 AND state <> 'active'`,
		jobID)
	if err != nil {
		return ps.wrap("remove job", err)
	}
	if tag.RowsAffected() == 0 {
		var state State
		err := ps.pool.QueryRow(ctx,
			`SELECT state FROM notification_jobs WHERE id = $1`,
			jobID).Scan(&state)
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrJobNotFound
		}
		if err != nil {
			return ps.wrap("remove job", err)
		}
		return ErrJobActive
	}

	return nil
}

// Stats implements Storage.
func (ps *PostgresStorage) Stats(ctx context.Context) (Stats, error) {
	rows, err := ps.pool.Query(ctx,
		`SELECT state, count(*) FROM notification_jobs GROUP BY state`)
	if err != nil {
		return Stats{}, ps.wrap("stats", err)
	}
	defer rows.Close()

	var s Stats
	for rows.Next() {
		var state State
		var count int
		if err := rows.Scan(&state, &count); err != nil {
			return Stats{}, ps.wrap("stats", err)
		}

		switch state {
		case StateWaiting:
			s.Waiting = count
		case StateDelayed:
			s.Delayed = count
		case StateActive:
			s.Active = count
		case StateCompleted:
			s.Completed = count
		case StateFailed:
			s.Failed = count
		}
		s.Total += count
	}
	if err := rows.Err(); err != nil {
		return Stats{}, ps.wrap("stats", err)
	}

	return s, nil
}

// Cleanup implements Storage.
func (ps *PostgresStorage) Cleanup(ctx context.Context, policy RetentionPolicy, now time.Time) (int, error) {
	removed := 0

	sweeps := []struct {
		state    State
		maxAge   time.Duration
		maxCount int
	}{
		{StateCompleted, policy.CompletedMaxAge, policy.CompletedMaxCount},
		{StateFailed, policy.FailedMaxAge, policy.FailedMaxCount},
	}

	for _, sweep := range sweeps {
		if sweep.maxAge > 0 {
			tag, err := ps.pool.Exec(ctx, `
				DELETE FROM notification_jobs
				WHERE state = $1 AND finished_at <= $2`,
				sweep.state, now.Add(-sweep.maxAge))
			if err != nil {
				return removed, ps.wrap("cleanup", err)
			}
			removed += int(tag.RowsAffected())
		}

		if sweep.maxCount > 0 {
			tag, err := ps.pool.Exec(ctx, `
				DELETE FROM notification_jobs
				WHERE id IN (
					SELECT id FROM notification_jobs
					WHERE state = $1
					ORDER BY finished_at DESC
					OFFSET $2
				)`,
				sweep.state, sweep.maxCount)
			if err != nil {
				return removed, ps.wrap("cleanup", err)
			}
			removed += int(tag.RowsAffected())
		}
	}

	return removed, nil
}

// Close implements Storage.
func (ps *PostgresStorage) Close() error {
	ps.pool.Close()
	return nil
}

func (ps *PostgresStorage) checkExists(ctx context.Context, jobID uuid.UUID) error {
	var exists bool
	err := ps.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM notification_jobs WHERE id = $1)`,
		jobID).Scan(&exists)
	if err != nil {
		return ps.wrap("check job", err)
	}
	if !exists {
		return ErrJobNotFound
	}
	return nil
}

func (ps *PostgresStorage) wrap(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrStorageUnavailable, err)
}

func isUniqueViolation(err error) bool {
	var pgErr interface{ SQLState() string }
	return errors.As(err, &pgErr) && pgErr.SQLState() == "23505"
}

func scanJob(row pgx.Row) (*Job, error) {
	var job Job
	err := row.Scan(
		&job.ID, &job.Payload, &job.Priority, &job.State,
		&job.AttemptsMade, &job.MaxAttempts,
		&job.AvailableAt, &job.CreatedAt, &job.ProcessedAt, &job.FinishedAt,
		&job.LastError, &job.LockedUntil, &job.LockedBy, &job.Seq,
	)
	if err != nil {
		return nil, err
	}
	return &job, nil
}

func collectJobs(rows pgx.Rows) ([]*Job, error) {
	defer rows.Close()

	var jobs []*Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return jobs, nil
}
