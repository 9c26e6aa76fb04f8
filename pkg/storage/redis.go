package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/jdziat/simple-delay/pkg/core"
	"github.com/jdziat/simple-delay/pkg/security"
)

// ErrJobNotFound is returned when a job key disappears during an update.
var ErrJobNotFound = errors.New("delay: job not found")

// Priorities beyond this bound sort as the bound.
const maxScoredPriority = 100000

// watchAttempts bounds optimistic transaction retries on contended jobs.
const watchAttempts = 5

// unclaimTimeout bounds giving back a claim after a failed Dequeue.
const unclaimTimeout = 5 * time.Second

// claimScript promotes due delayed jobs of every queue to its ready set and
// moves the best ready job across the queues into the running set: highest
// priority first, then oldest. The claimed job is never outside every index,
// so a claim whose status update is lost is recovered by ReleaseStaleLocks.
// KEYS = running, delayed:<q1>, ready:<q1>, delayed:<q2>, ready:<q2>, ...
// ARGV[1] = now in unix milliseconds
// ARGV[2] = job key prefix
// ARGV[3] = lease expiry in unix milliseconds
var claimScript = redis.NewScript(`
local now = tonumber(ARGV[1])
local prefix = ARGV[2]
local lease = tonumber(ARGV[3])
local running = KEYS[1]
local n = (#KEYS - 1) / 2

for i = 1, n do
    local delayed = KEYS[2 * i]
    local ready = KEYS[2 * i + 1]
    local due = redis.call("ZRANGEBYSCORE", delayed, "-inf", now)
    for _, id in ipairs(due) do
        local order = redis.call("HGET", prefix .. id, "order")
        if order then
            redis.call("ZADD", ready, order, id)
        end
        redis.call("ZREM", delayed, id)
    end
end

local bestID, bestScore, bestKey
for i = 1, n do
    local ready = KEYS[2 * i + 1]
    local top = redis.call("ZRANGE", ready, 0, 0, "WITHSCORES")
    if top[1] then
        local score = tonumber(top[2])
        if bestScore == nil or score < bestScore then
            bestID, bestScore, bestKey = top[1], score, ready
        end
    end
end

if not bestID then
    return false
end
redis.call("ZREM", bestKey, bestID)
redis.call("ZADD", running, lease, bestID)
return bestID
`)

// RedisStorage implements core.Storage on Redis. Each job is a hash holding
// its JSON encoding; per-queue sorted sets index ready and delayed jobs, a
// sorted set tracks running jobs by lock expiry, and one set per status
// answers GetJobsByStatus.
type RedisStorage struct {
	client redis.UniversalClient
	prefix string

	// afterClaim runs between the claim script and the status update.
	afterClaim func(ctx context.Context, id string)
}

// RedisOption configures a RedisStorage.
type RedisOption func(*RedisStorage)

// WithKeyPrefix namespaces every key the storage writes. It defaults to "delay".
func WithKeyPrefix(prefix string) RedisOption {
	return func(s *RedisStorage) {
		if prefix != "" {
			s.prefix = prefix
		}
	}
}

// NewRedisStorage creates a Redis-backed storage.
func NewRedisStorage(client redis.UniversalClient, opts ...RedisOption) *RedisStorage {
	s := &RedisStorage{client: client, prefix: "delay"}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *RedisStorage) jobPrefix() string             { return s.prefix + ":job:" }
func (s *RedisStorage) jobKey(id string) string        { return s.jobPrefix() + id }
func (s *RedisStorage) readyKey(queue string) string   { return s.prefix + ":ready:" + queue }
func (s *RedisStorage) delayedKey(queue string) string { return s.prefix + ":delayed:" + queue }
func (s *RedisStorage) runningKey() string             { return s.prefix + ":running" }
func (s *RedisStorage) uniqueKey(key string) string    { return s.prefix + ":unique:" + key }

func (s *RedisStorage) statusKey(status core.JobStatus) string {
	return s.prefix + ":status:" + string(status)
}

// order is the ready-set score of job: lower runs first.
func order(job *core.Job) float64 {
	p := job.Priority
	if p > maxScoredPriority {
		p = maxScoredPriority
	}
	if p < -maxScoredPriority {
		p = -maxScoredPriority
	}
	return -float64(p)*1e13 + float64(job.CreatedAt.UnixMilli())
}

// Migrate checks the connection. Redis needs no schema.
func (s *RedisStorage) Migrate(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Enqueue adds a job to the queue.
func (s *RedisStorage) Enqueue(ctx context.Context, job *core.Job) error {
	prepare(job)
	now := time.Now()
	job.CreatedAt = now
	job.UpdatedAt = now

	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		return s.write(ctx, pipe, nil, job)
	})
	return err
}

// EnqueueUnique adds a job only if no pending or running job holds uniqueKey.
func (s *RedisStorage) EnqueueUnique(ctx context.Context, job *core.Job, uniqueKey string) error {
	prepare(job)
	job.UniqueKey = uniqueKey
	key := s.uniqueKey(uniqueKey)

	return s.watch(ctx, func(tx *redis.Tx) error {
		holder, err := tx.Get(ctx, key).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if holder != "" {
			existing, err := s.load(ctx, tx, holder)
			if err != nil {
				return err
			}
			if existing != nil && (existing.Status == core.StatusPending || existing.Status == core.StatusRunning) {
				return core.ErrDuplicateJob
			}
		}

		now := time.Now()
		job.CreatedAt = now
		job.UpdatedAt = now
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, job.ID, 0)
			return s.write(ctx, pipe, nil, job)
		})
		return err
	}, key)
}

// Dequeue claims the next due job from queues.
func (s *RedisStorage) Dequeue(ctx context.Context, queues []string, workerID string) (*core.Job, error) {
	if len(queues) == 0 {
		return nil, nil
	}
	keys := make([]string, 0, 2*len(queues)+1)
	keys = append(keys, s.runningKey())
	for _, q := range queues {
		keys = append(keys, s.delayedKey(q), s.readyKey(q))
	}

	now := time.Now()
	id, err := claimScript.Run(ctx, s.client, keys, now.UnixMilli(), s.jobPrefix(), now.Add(lockDuration).UnixMilli()).Text()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("delay: redis claim: %w", err)
	}
	if s.afterClaim != nil {
		s.afterClaim(ctx, id)
	}

	var claimed *core.Job
	err = s.update(ctx, id, func(job *core.Job) error {
		now := time.Now()
		lockUntil := now.Add(lockDuration)
		job.Status = core.StatusRunning
		job.LockedBy = workerID
		job.LockedUntil = &lockUntil
		job.LastHeartbeatAt = &now
		job.StartedAt = &now
		job.Attempt++
		claimed = job
		return nil
	})
	if err != nil {
		s.unclaim(ctx, id)
		return nil, err
	}
	return claimed, nil
}

// unclaim returns a claimed job that was never marked running to its queue.
// It outlives ctx so a cancelled Dequeue still gives the job back; if it
// fails too, ReleaseStaleLocks picks the job up once the claim lease ends.
func (s *RedisStorage) unclaim(ctx context.Context, id string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), unclaimTimeout)
	defer cancel()
	_ = s.update(ctx, id, func(job *core.Job) error {
		if job.Status != core.StatusPending {
			return errSkip
		}
		return nil
	})
}

// Complete marks a job as successfully completed.
func (s *RedisStorage) Complete(ctx context.Context, jobID string, workerID string) error {
	return s.update(ctx, jobID, func(job *core.Job) error {
		if job.LockedBy != workerID {
			return core.ErrJobNotOwned
		}
		now := time.Now()
		job.Status = core.StatusCompleted
		job.CompletedAt = &now
		job.LockedBy = ""
		job.LockedUntil = nil
		return nil
	})
}

// Fail marks a job as failed, or reschedules it when retry is non-nil.
func (s *RedisStorage) Fail(ctx context.Context, jobID string, workerID string, errMsg string, retry *core.Retry) error {
	return s.update(ctx, jobID, func(job *core.Job) error {
		if job.LockedBy != workerID {
			return core.ErrJobNotOwned
		}
		job.LastError = security.SanitizeErrorMessage(errMsg)
		job.LockedBy = ""
		job.LockedUntil = nil
		if retry != nil {
			at := retry.At
			job.Status = core.StatusPending
			job.RunAt = &at
			if retry.Queue != "" {
				job.Queue = retry.Queue
			}
			return nil
		}
		now := time.Now()
		job.Status = core.StatusFailed
		job.CompletedAt = &now
		return nil
	})
}

// Heartbeat extends the lock on a running job.
func (s *RedisStorage) Heartbeat(ctx context.Context, jobID string, workerID string) error {
	return s.update(ctx, jobID, func(job *core.Job) error {
		if job.LockedBy != workerID {
			return core.ErrJobNotOwned
		}
		now := time.Now()
		lockUntil := now.Add(lockDuration)
		job.LockedUntil = &lockUntil
		job.LastHeartbeatAt = &now
		return nil
	})
}

// ReleaseStaleLocks returns running jobs whose lock expired more than
// staleDuration ago to their queue. Jobs left pending in the running set by
// an interrupted Dequeue are re-indexed into their queue as well.
func (s *RedisStorage) ReleaseStaleLocks(ctx context.Context, staleDuration time.Duration) (int64, error) {
	cutoff := time.Now().Add(-staleDuration).UnixMilli()
	ids, err := s.client.ZRangeByScore(ctx, s.runningKey(), &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(cutoff, 10),
	}).Result()
	if err != nil {
		return 0, err
	}

	var released int64
	for _, id := range ids {
		err := s.update(ctx, id, func(job *core.Job) error {
			if job.Status == core.StatusPending {
				return nil
			}
			if job.Status != core.StatusRunning {
				return errSkip
			}
			job.Status = core.StatusPending
			job.LockedBy = ""
			job.LockedUntil = nil
			return nil
		})
		switch {
		case err == nil:
			released++
		case errors.Is(err, errSkip), errors.Is(err, ErrJobNotFound):
		default:
			return released, err
		}
	}
	return released, nil
}

// GetJob retrieves a job by ID. It returns nil, nil for unknown IDs.
func (s *RedisStorage) GetJob(ctx context.Context, jobID string) (*core.Job, error) {
	return s.load(ctx, s.client, jobID)
}

// GetJobsByStatus retrieves up to limit jobs with status, oldest first.
func (s *RedisStorage) GetJobsByStatus(ctx context.Context, status core.JobStatus, limit int) ([]*core.Job, error) {
	ids, err := s.client.SMembers(ctx, s.statusKey(status)).Result()
	if err != nil {
		return nil, err
	}

	jobs := make([]*core.Job, 0, len(ids))
	for _, id := range ids {
		job, err := s.load(ctx, s.client, id)
		if err != nil {
			return nil, err
		}
		if job != nil {
			jobs = append(jobs, job)
		}
	}
	sort.Slice(jobs, func(i, j int) bool { return jobs[i].CreatedAt.Before(jobs[j].CreatedAt) })
	if limit > 0 && len(jobs) > limit {
		jobs = jobs[:limit]
	}
	return jobs, nil
}

var errSkip = errors.New("skip")

func (s *RedisStorage) load(ctx context.Context, c redis.Cmdable, id string) (*core.Job, error) {
	data, err := c.HGet(ctx, s.jobKey(id), "data").Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var job core.Job
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("delay: corrupt job %s: %w", id, err)
	}
	return &job, nil
}

// update applies fn to the stored job inside an optimistic transaction and
// moves the job between indexes to match its new state.
func (s *RedisStorage) update(ctx context.Context, id string, fn func(*core.Job) error) error {
	return s.watch(ctx, func(tx *redis.Tx) error {
		job, err := s.load(ctx, tx, id)
		if err != nil {
			return err
		}
		if job == nil {
			return ErrJobNotFound
		}
		before := *job
		if err := fn(job); err != nil {
			return err
		}
		job.UpdatedAt = time.Now()
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			return s.write(ctx, pipe, &before, job)
		})
		return err
	}, s.jobKey(id))
}

func (s *RedisStorage) watch(ctx context.Context, fn func(*redis.Tx) error, keys ...string) error {
	var err error
	for i := 0; i < watchAttempts; i++ {
		err = s.client.Watch(ctx, fn, keys...)
		if !errors.Is(err, redis.TxFailedErr) {
			return err
		}
	}
	return err
}

// write stores job and replaces the index entries of before, if any, with
// the entries job's state calls for.
func (s *RedisStorage) write(ctx context.Context, pipe redis.Pipeliner, before, job *core.Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return err
	}
	score := order(job)
	pipe.HSet(ctx, s.jobKey(job.ID), "data", data, "order", score)

	if before != nil {
		pipe.SRem(ctx, s.statusKey(before.Status), job.ID)
		pipe.ZRem(ctx, s.readyKey(before.Queue), job.ID)
		pipe.ZRem(ctx, s.delayedKey(before.Queue), job.ID)
		pipe.ZRem(ctx, s.runningKey(), job.ID)
	}
	pipe.SAdd(ctx, s.statusKey(job.Status), job.ID)

	switch job.Status {
	case core.StatusPending:
		if job.RunAt != nil && job.RunAt.After(time.Now()) {
			pipe.ZAdd(ctx, s.delayedKey(job.Queue), redis.Z{Score: float64(job.RunAt.UnixMilli()), Member: job.ID})
		} else {
			pipe.ZAdd(ctx, s.readyKey(job.Queue), redis.Z{Score: score, Member: job.ID})
		}
	case core.StatusRunning:
		if job.LockedUntil != nil {
			pipe.ZAdd(ctx, s.runningKey(), redis.Z{Score: float64(job.LockedUntil.UnixMilli()), Member: job.ID})
		}
	}
	return nil
}

var _ core.Storage = (*RedisStorage)(nil)
