package queue

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// promoteBatchSize bounds how many delayed jobs a single promotion script
// moves, keeping the Redis event loop responsive under large backlogs.
const promoteBatchSize = 1000

// Ready jobs are ordered by a composite score of priority and admission
// sequence. The multiplier leaves the low 40 bits for the sequence while
// staying inside float64 exact-integer range for all valid priorities.
//
//	score = priority * 2^40 + seq
const readyScoreShift = 1 << 40

// createScript inserts the job hash and indexes it in the ready or delayed
// set. The sequence counter is assigned here so admission order and score
// order cannot diverge.
var createScript = redis.NewScript(`
local jobKey = ARGV[1] .. ARGV[2]
if redis.call('EXISTS', jobKey) == 1 then
	return 'exists'
end
local seq = redis.call('INCR', KEYS[3])
redis.call('HSET', jobKey,
	'id', ARGV[2],
	'payload', ARGV[3],
	'priority', ARGV[4],
	'state', ARGV[5],
	'attempts_made', '0',
	'max_attempts', ARGV[6],
	'available_at', ARGV[7],
	'created_at', ARGV[8],
	'seq', seq)
if ARGV[5] == 'waiting' then
	redis.call('ZADD', KEYS[1], tonumber(ARGV[4]) * 1099511627776 + seq, ARGV[2])
else
	redis.call('ZADD', KEYS[2], tonumber(ARGV[7]), ARGV[2])
end
return seq
`)

// claimScript pops the best ready job and locks it in one round-trip so
// two workers can never claim the same job.
var claimScript = redis.NewScript(`
local ids = redis.call('ZRANGE', KEYS[1], 0, 0)
if #ids == 0 then
	return false
end
local id = ids[1]
redis.call('ZREM', KEYS[1], id)
local jobKey = ARGV[1] .. id
redis.call('HSET', jobKey,
	'state', 'active',
	'locked_until', ARGV[2],
	'locked_by', ARGV[3],
	'processed_at', ARGV[4])
redis.call('HINCRBY', jobKey, 'attempts_made', 1)
redis.call('ZADD', KEYS[2], tonumber(ARGV[2]), id)
return redis.call('HGETALL', jobKey)
`)

// promoteScript moves due delayed jobs into the ready set at their
// original priority score.
var promoteScript = redis.NewScript(`
local due = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[2], 'LIMIT', 0, tonumber(ARGV[3]))
for _, id in ipairs(due) do
	redis.call('ZREM', KEYS[1], id)
	local jobKey = ARGV[1] .. id
	local prio = tonumber(redis.call('HGET', jobKey, 'priority')) or 0
	local seq = tonumber(redis.call('HGET', jobKey, 'seq')) or 0
	redis.call('HSET', jobKey, 'state', 'waiting')
	redis.call('ZADD', KEYS[2], prio * 1099511627776 + seq, id)
end
return due
`)

// reapScript requeues active jobs whose lock expired. Attempt counts are
// kept; the claim already charged the attempt.
var reapScript = redis.NewScript(`
local expired = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[2])
for _, id in ipairs(expired) do
	redis.call('ZREM', KEYS[1], id)
	local jobKey = ARGV[1] .. id
	local prio = tonumber(redis.call('HGET', jobKey, 'priority')) or 0
	local seq = tonumber(redis.call('HGET', jobKey, 'seq')) or 0
	redis.call('HSET', jobKey, 'state', 'waiting')
	redis.call('HDEL', jobKey, 'locked_until', 'locked_by')
	redis.call('ZADD', KEYS[2], prio * 1099511627776 + seq, id)
end
return expired
`)

// finishScript transitions a job to a terminal state. Repeats on an
// already-terminal job are a no-op so late duplicate acknowledgements
// cannot flip the outcome.
var finishScript = redis.NewScript(`
local jobKey = ARGV[1] .. ARGV[2]
local state = redis.call('HGET', jobKey, 'state')
if not state then
	return 'missing'
end
if state == 'completed' or state == 'failed' then
	return 'noop'
end
redis.call('ZREM', KEYS[1], ARGV[2])
redis.call('ZREM', KEYS[2], ARGV[2])
redis.call('ZREM', KEYS[3], ARGV[2])
redis.call('HSET', jobKey, 'state', ARGV[3], 'finished_at', ARGV[4])
if ARGV[5] ~= '' then
	redis.call('HSET', jobKey, 'last_error', ARGV[5])
end
redis.call('HDEL', jobKey, 'locked_until', 'locked_by')
redis.call('ZADD', KEYS[4], tonumber(ARGV[4]), ARGV[2])
return 'ok'
`)

// retryScript returns a job to the delayed set for a later attempt.
var retryScript = redis.NewScript(`
local jobKey = ARGV[1] .. ARGV[2]
local state = redis.call('HGET', jobKey, 'state')
if not state then
	return 'missing'
end
if state == 'completed' or state == 'failed' then
	return 'noop'
end
redis.call('ZREM', KEYS[1], ARGV[2])
redis.call('ZREM', KEYS[3], ARGV[2])
redis.call('HSET', jobKey, 'state', 'delayed', 'available_at', ARGV[3], 'last_error', ARGV[4])
redis.call('HDEL', jobKey, 'locked_until', 'locked_by')
redis.call('ZADD', KEYS[2], tonumber(ARGV[3]), ARGV[2])
return 'ok'
`)

// removeScript cancels a job unless a worker currently holds it.
var removeScript = redis.NewScript(`
local jobKey = ARGV[1] .. ARGV[2]
local state = redis.call('HGET', jobKey, 'state')
if not state then
	return 'missing'
end
if state == 'active' then
	return 'active'
end
for i = 1, #KEYS do
	redis.call('ZREM', KEYS[i], ARGV[2])
end
redis.call('DEL', jobKey)
return 'ok'
`)

// cleanupScript enforces the age and count caps over one terminal set.
var cleanupScript = redis.NewScript(`
local removed = 0
if tonumber(ARGV[2]) > 0 then
	local old = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[2])
	for _, id in ipairs(old) do
		redis.call('DEL', ARGV[1] .. id)
		redis.call('ZREM', KEYS[1], id)
		removed = removed + 1
	end
end
local maxCount = tonumber(ARGV[3])
if maxCount > 0 then
	local excess = redis.call('ZCARD', KEYS[1]) - maxCount
	if excess > 0 then
		local old = redis.call('ZRANGE', KEYS[1], 0, excess - 1)
		for _, id in ipairs(old) do
			redis.call('DEL', ARGV[1] .. id)
			redis.call('ZREM', KEYS[1], id)
			removed = removed + 1
		end
	end
end
return removed
`)

// RedisStorage implements Storage on Redis. Jobs live in hashes; each
// state has a sorted-set index whose score encodes that state's ordering
// (priority for ready, availability for delayed, lock expiry for active,
// finish time for terminal sets). All multi-key transitions run as Lua
// scripts so concurrent workers always see consistent state.
type RedisStorage struct {
	client redis.UniversalClient
	prefix string
}

// RedisStorageOption configures a RedisStorage.
type RedisStorageOption func(*RedisStorage)

// WithKeyPrefix namespaces all keys. Defaults to "notifyq:".
func WithKeyPrefix(prefix string) RedisStorageOption {
	return func(rs *RedisStorage) {
		if prefix != "" {
			rs.prefix = prefix
		}
	}
}

// NewRedisStorage creates a Redis-backed storage over an existing client.
// The caller keeps ownership of the client unless Close is used.
func NewRedisStorage(client redis.UniversalClient, opts ...RedisStorageOption) (*RedisStorage, error) {
	if client == nil {
		return nil, ErrStorageNil
	}

	rs := &RedisStorage{
		client: client,
		prefix: "notifyq:",
	}
	for _, opt := range opts {
		opt(rs)
	}

	return rs, nil
}

func (rs *RedisStorage) key(name string) string { return rs.prefix + name }
func (rs *RedisStorage) jobPrefix() string      { return rs.prefix + "job:" }

// CreateJob implements Storage.
func (rs *RedisStorage) CreateJob(ctx context.Context, job *Job) error {
	if job == nil {
		return ErrInvalidJobState
	}

	res, err := createScript.Run(ctx, rs.client,
		[]string{rs.key("ready"), rs.key("delayed"), rs.key("seq")},
		rs.jobPrefix(),
		job.ID.String(),
		string(job.Payload),
		int(job.Priority),
		string(job.State),
		int(job.MaxAttempts),
		job.AvailableAt.UnixMilli(),
		job.CreatedAt.UnixMilli(),
	).Result()
	if err != nil {
		return rs.wrap("create job", err)
	}

	switch v := res.(type) {
	case string:
		return ErrJobAlreadyExists
	case int64:
		job.Seq = uint64(v)
		return nil
	default:
		return fmt.Errorf("create job: unexpected script reply %T", res)
	}
}

// ClaimJob implements Storage.
func (rs *RedisStorage) ClaimJob(ctx context.Context, workerID uuid.UUID, lockDuration time.Duration) (*Job, error) {
	now := time.Now()

	res, err := claimScript.Run(ctx, rs.client,
		[]string{rs.key("ready"), rs.key("active")},
		rs.jobPrefix(),
		now.Add(lockDuration).UnixMilli(),
		workerID.String(),
		now.UnixMilli(),
	).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNoJobToClaim
		}
		return nil, rs.wrap("claim job", err)
	}

	reply, ok := res.([]any)
	if !ok {
		return nil, fmt.Errorf("claim job: unexpected script reply %T", res)
	}

	return jobFromReply(reply)
}

// PromoteDueJobs implements Storage.
func (rs *RedisStorage) PromoteDueJobs(ctx context.Context, now time.Time) ([]*Job, error) {
	res, err := promoteScript.Run(ctx, rs.client,
		[]string{rs.key("delayed"), rs.key("ready")},
		rs.jobPrefix(),
		now.UnixMilli(),
		promoteBatchSize,
	).StringSlice()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, rs.wrap("promote due jobs", err)
	}

	return rs.fetchJobs(ctx, res)
}

// ReapStalledJobs implements Storage.
func (rs *RedisStorage) ReapStalledJobs(ctx context.Context, now time.Time) ([]*Job, error) {
	res, err := reapScript.Run(ctx, rs.client,
		[]string{rs.key("active"), rs.key("ready")},
		rs.jobPrefix(),
		now.UnixMilli(),
	).StringSlice()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, rs.wrap("reap stalled jobs", err)
	}

	return rs.fetchJobs(ctx, res)
}

// CompleteJob implements Storage.
func (rs *RedisStorage) CompleteJob(ctx context.Context, jobID uuid.UUID) error {
	return rs.finish(ctx, jobID, StateCompleted, "")
}

// FailJob implements Storage.
func (rs *RedisStorage) FailJob(ctx context.Context, jobID uuid.UUID, errorMsg string) error {
	return rs.finish(ctx, jobID, StateFailed, errorMsg)
}

func (rs *RedisStorage) finish(ctx context.Context, jobID uuid.UUID, state State, errorMsg string) error {
	dest := rs.key("completed")
	if state == StateFailed {
		dest = rs.key("failed")
	}

	res, err := finishScript.Run(ctx, rs.client,
		[]string{rs.key("ready"), rs.key("delayed"), rs.key("active"), dest},
		rs.jobPrefix(),
		jobID.String(),
		string(state),
		time.Now().UnixMilli(),
		errorMsg,
	).Text()
	if err != nil {
		return rs.wrap("finish job", err)
	}
	if res == "missing" {
		return ErrJobNotFound
	}

	return nil
}

// RetryJob implements Storage.
func (rs *RedisStorage) RetryJob(ctx context.Context, jobID uuid.UUID, nextAvailableAt time.Time, errorMsg string) error {
	res, err := retryScript.Run(ctx, rs.client,
		[]string{rs.key("active"), rs.key("delayed"), rs.key("ready")},
		rs.jobPrefix(),
		jobID.String(),
		nextAvailableAt.UnixMilli(),
		errorMsg,
	).Text()
	if err != nil {
		return rs.wrap("retry job", err)
	}
	if res == "missing" {
		return ErrJobNotFound
	}

	return nil
}

// GetJob implements Storage.
func (rs *RedisStorage) GetJob(ctx context.Context, jobID uuid.UUID) (*Job, error) {
	fields, err := rs.client.HGetAll(ctx, rs.jobPrefix()+jobID.String()).Result()
	if err != nil {
		return nil, rs.wrap("get job", err)
	}
	if len(fields) == 0 {
		return nil, ErrJobNotFound
	}

	return jobFromFields(fields)
}

// RemoveJob implements Storage.
func (rs *RedisStorage) RemoveJob(ctx context.Context, jobID uuid.UUID) error {
	res, err := removeScript.Run(ctx, rs.client,
		[]string{rs.key("ready"), rs.key("delayed"), rs.key("active"), rs.key("completed"), rs.key("failed")},
		rs.jobPrefix(),
		jobID.String(),
	).Text()
	if err != nil {
		return rs.wrap("remove job", err)
	}

	switch res {
	case "missing":
		return ErrJobNotFound
	case "active":
		return ErrJobActive
	default:
		return nil
	}
}

// Stats implements Storage.
func (rs *RedisStorage) Stats(ctx context.Context) (Stats, error) {
	pipe := rs.client.Pipeline()
	waiting := pipe.ZCard(ctx, rs.key("ready"))
	delayed := pipe.ZCard(ctx, rs.key("delayed"))
	active := pipe.ZCard(ctx, rs.key("active"))
	completed := pipe.ZCard(ctx, rs.key("completed"))
	failed := pipe.ZCard(ctx, rs.key("failed"))

	if _, err := pipe.Exec(ctx); err != nil {
		return Stats{}, rs.wrap("stats", err)
	}

	s := Stats{
		Waiting:   int(waiting.Val()),
		Delayed:   int(delayed.Val()),
		Active:    int(active.Val()),
		Completed: int(completed.Val()),
		Failed:    int(failed.Val()),
	}
	s.Total = s.Waiting + s.Delayed + s.Active + s.Completed + s.Failed

	return s, nil
}

// Cleanup implements Storage.
func (rs *RedisStorage) Cleanup(ctx context.Context, policy RetentionPolicy, now time.Time) (int, error) {
	removed := 0

	sets := []struct {
		key      string
		maxAge   time.Duration
		maxCount int
	}{
		{rs.key("completed"), policy.CompletedMaxAge, policy.CompletedMaxCount},
		{rs.key("failed"), policy.FailedMaxAge, policy.FailedMaxCount},
	}

	for _, set := range sets {
		cutoff := int64(0)
		if set.maxAge > 0 {
			cutoff = now.Add(-set.maxAge).UnixMilli()
		}

		n, err := cleanupScript.Run(ctx, rs.client,
			[]string{set.key},
			rs.jobPrefix(),
			cutoff,
			set.maxCount,
		).Int()
		if err != nil {
			return removed, rs.wrap("cleanup", err)
		}
		removed += n
	}

	return removed, nil
}

// Close implements Storage.
func (rs *RedisStorage) Close() error {
	return rs.client.Close()
}

// fetchJobs loads job hashes for the given ids in one pipeline. Jobs
// deleted between the script and the fetch are skipped.
func (rs *RedisStorage) fetchJobs(ctx context.Context, ids []string) ([]*Job, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	pipe := rs.client.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, len(ids))
	for i, id := range ids {
		cmds[i] = pipe.HGetAll(ctx, rs.jobPrefix()+id)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, rs.wrap("fetch jobs", err)
	}

	jobs := make([]*Job, 0, len(ids))
	for _, cmd := range cmds {
		fields := cmd.Val()
		if len(fields) == 0 {
			continue
		}
		job, err := jobFromFields(fields)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}

	return jobs, nil
}

func (rs *RedisStorage) wrap(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrStorageUnavailable, err)
}

// jobFromReply converts a flat HGETALL script reply into a Job.
func jobFromReply(reply []any) (*Job, error) {
	fields := make(map[string]string, len(reply)/2)
	for i := 0; i+1 < len(reply); i += 2 {
		k, kok := reply[i].(string)
		v, vok := reply[i+1].(string)
		if !kok || !vok {
			return nil, fmt.Errorf("malformed job hash reply at index %d", i)
		}
		fields[k] = v
	}
	return jobFromFields(fields)
}

// jobFromFields decodes a job hash. Timestamps are stored as Unix
// milliseconds; optional fields may be absent.
func jobFromFields(fields map[string]string) (*Job, error) {
	id, err := uuid.Parse(fields["id"])
	if err != nil {
		return nil, fmt.Errorf("malformed job id %q: %w", fields["id"], err)
	}

	priority, err := strconv.Atoi(fields["priority"])
	if err != nil {
		return nil, fmt.Errorf("malformed priority for job %s: %w", id, err)
	}
	attempts, err := strconv.Atoi(fields["attempts_made"])
	if err != nil {
		return nil, fmt.Errorf("malformed attempts for job %s: %w", id, err)
	}
	maxAttempts, err := strconv.Atoi(fields["max_attempts"])
	if err != nil {
		return nil, fmt.Errorf("malformed max attempts for job %s: %w", id, err)
	}
	seq, err := strconv.ParseUint(fields["seq"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("malformed seq for job %s: %w", id, err)
	}

	availableAt, err := msField(fields, "available_at")
	if err != nil {
		return nil, fmt.Errorf("job %s: %w", id, err)
	}
	createdAt, err := msField(fields, "created_at")
	if err != nil {
		return nil, fmt.Errorf("job %s: %w", id, err)
	}

	job := &Job{
		ID:           id,
		Payload:      []byte(fields["payload"]),
		Priority:     Priority(priority),
		State:        State(fields["state"]),
		AttemptsMade: int8(attempts),
		MaxAttempts:  int8(maxAttempts),
		AvailableAt:  availableAt,
		CreatedAt:    createdAt,
		Seq:          seq,
	}

	for name, dst := range map[string]**time.Time{
		"processed_at": &job.ProcessedAt,
		"finished_at":  &job.FinishedAt,
		"locked_until": &job.LockedUntil,
	} {
		if _, ok := fields[name]; !ok {
			continue
		}
		t, err := msField(fields, name)
		if err != nil {
			return nil, fmt.Errorf("job %s: %w", id, err)
		}
		*dst = &t
	}

	if v, ok := fields["last_error"]; ok {
		job.LastError = &v
	}
	if v, ok := fields["locked_by"]; ok {
		wid, err := uuid.Parse(v)
		if err != nil {
			return nil, fmt.Errorf("malformed locked_by for job %s: %w", id, err)
		}
		job.LockedBy = &wid
	}

	return job, nil
}

func msField(fields map[string]string, name string) (time.Time, error) {
	ms, err := strconv.ParseInt(fields[name], 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("malformed %s: %w", name, err)
	}
	return time.UnixMilli(ms), nil
}
