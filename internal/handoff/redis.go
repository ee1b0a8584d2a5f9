package handoff

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"getbox/internal/media"
)

const (
	redisKeyPrefix = "getbox:job:"
	redisIndexKey  = "getbox:jobs"
	redisSeqKey    = "getbox:jobs:seq"

	// Index scores are creation milliseconds scaled by seqSlots, plus an
	// insertion counter so jobs from the same millisecond keep their order.
	seqSlots = 1000
)

func indexScore(ms, seq int64) float64 {
	return float64(ms*seqSlots + seq%seqSlots)
}

// Redis keeps jobs in Redis with native key expiry. A sorted set indexed by
// creation time enforces MaxEntries across replicas.
type Redis struct {
	rdb    *redis.Client
	policy Policy
	now    func() time.Time
}

// NewRedis connects to redisURL and verifies the server answers.
func NewRedis(ctx context.Context, redisURL string, p Policy, opts ...Option) (*Redis, error) {
	ropts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parsing redis URL: %w", err)
	}
	rdb := redis.NewClient(ropts)

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redis unreachable at %s: %w", ropts.Addr, err)
	}
	return NewRedisClient(rdb, p, opts...), nil
}

// NewRedisClient wraps an existing client.
func NewRedisClient(rdb *redis.Client, p Policy, opts ...Option) *Redis {
	o := buildOptions(opts)
	return &Redis{rdb: rdb, policy: p.withDefaults(), now: o.now}
}

func (r *Redis) Put(ctx context.Context, job media.Job) (string, error) {
	id := newID()
	job.CreatedAt = r.now()
	data, err := json.Marshal(job)
	if err != nil {
		return "", fmt.Errorf("encoding job: %w", err)
	}

	seq, err := r.rdb.Incr(ctx, redisSeqKey).Result()
	if err != nil {
		return "", fmt.Errorf("allocating job sequence: %w", err)
	}
	score := indexScore(job.CreatedAt.UnixMilli(), seq)
	_, err = r.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, redisKeyPrefix+id, data, r.policy.TTL)
		pipe.ZAdd(ctx, redisIndexKey, redis.Z{Score: score, Member: id})
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("storing job: %w", err)
	}

	if err := r.prune(ctx, id); err != nil {
		return "", err
	}
	return id, nil
}

// prune removes index entries that have expired and evicts the oldest jobs
// past MaxEntries. keep is the job just stored and is never evicted.
func (r *Redis) prune(ctx context.Context, keep string) error {
	cutoff := indexScore(r.now().Add(-r.policy.TTL).UnixMilli(), 0)
	if err := r.rdb.ZRemRangeByScore(ctx, redisIndexKey, "-inf", "("+strconv.FormatFloat(cutoff, 'f', -1, 64)).Err(); err != nil {
		return fmt.Errorf("pruning job index: %w", err)
	}

	n, err := r.rdb.ZCard(ctx, redisIndexKey).Result()
	if err != nil {
		return fmt.Errorf("counting jobs: %w", err)
	}
	over := n - int64(r.policy.MaxEntries)
	if over <= 0 {
		return nil
	}

	oldest, err := r.rdb.ZRange(ctx, redisIndexKey, 0, over).Result()
	if err != nil {
		return fmt.Errorf("listing oldest jobs: %w", err)
	}
	var (
		keys    []string
		members []any
	)
	for _, id := range oldest {
		if id == keep || int64(len(keys)) == over {
			continue
		}
		keys = append(keys, redisKeyPrefix+id)
		members = append(members, id)
	}
	if len(keys) == 0 {
		return nil
	}
	_, err = r.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, keys...)
		pipe.ZRem(ctx, redisIndexKey, members...)
		return nil
	})
	if err != nil {
		return fmt.Errorf("evicting jobs: %w", err)
	}
	return nil
}

func (r *Redis) Get(ctx context.Context, id string) (media.Job, error) {
	if !validID(id) {
		return media.Job{}, ErrNotFound
	}
	data, err := r.rdb.Get(ctx, redisKeyPrefix+id).Bytes()
	if errors.Is(err, redis.Nil) {
		return media.Job{}, ErrNotFound
	}
	if err != nil {
		return media.Job{}, fmt.Errorf("loading job: %w", err)
	}

	var job media.Job
	if err := json.Unmarshal(data, &job); err != nil {
		return media.Job{}, fmt.Errorf("decoding job: %w", err)
	}
	if r.policy.expired(job.CreatedAt, r.now()) {
		_ = r.Delete(ctx, id)
		return media.Job{}, ErrNotFound
	}
	return job, nil
}

func (r *Redis) Delete(ctx context.Context, id string) error {
	_, err := r.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, redisKeyPrefix+id)
		pipe.ZRem(ctx, redisIndexKey, id)
		return nil
	})
	return err
}

func (r *Redis) Close() error { return r.rdb.Close() }
