package limiter

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Each key is a sorted set of attempt timestamps (ms).  Scripts prune with
// an exclusive lower bound so an attempt exactly one window old still counts.
var (
	checkScript = redis.NewScript(`
        local key = KEYS[1]
        local cutoff = ARGV[1]
        local limit = tonumber(ARGV[2])

        redis.call('ZREMRANGEBYSCORE', key, '-inf', cutoff)
        local count = redis.call('ZCARD', key)

        local oldest_ms = 0
        if count >= limit then
            local first = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
            if first[2] ~= nil then oldest_ms = tonumber(first[2]) end
        end
        return { count, oldest_ms }
    `)

	// attemptScript is checkScript plus the ZADD of the admitted attempt.
	attemptScript = redis.NewScript(`
        local key = KEYS[1]
        local cutoff = ARGV[1]
        local limit = tonumber(ARGV[2])
        local now_ms = ARGV[3]
        local member = ARGV[4]
        local ttl_ms = tonumber(ARGV[5])

        redis.call('ZREMRANGEBYSCORE', key, '-inf', cutoff)
        local count = redis.call('ZCARD', key)

        if count >= limit then
            local oldest_ms = 0
            local first = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
            if first[2] ~= nil then oldest_ms = tonumber(first[2]) end
            return { 0, count, oldest_ms }
        end

        redis.call('ZADD', key, now_ms, member)
        redis.call('PEXPIRE', key, ttl_ms)
        return { 1, count + 1, 0 }
    `)

	recordScript = redis.NewScript(`
        local key = KEYS[1]
        local cutoff = ARGV[1]
        local now_ms = ARGV[2]
        local member = ARGV[3]
        local ttl_ms = tonumber(ARGV[4])

        redis.call('ZREMRANGEBYSCORE', key, '-inf', cutoff)
        redis.call('ZADD', key, now_ms, member)
        redis.call('PEXPIRE', key, ttl_ms)
        return redis.call('ZCARD', key)
    `)
)

// Redis shares attempt history between processes.  Scripts run atomically
// on the server, which serializes operations per key.
type Redis struct {
	rdb    *redis.Client
	window time.Duration
	limit  int
	prefix string
}

func NewRedis(rdb *redis.Client, window time.Duration, limit int, prefix string) *Redis {
	return &Redis{rdb: rdb, window: window, limit: limit, prefix: prefix}
}

func (r *Redis) key(identity string) string {
	return r.prefix + ":" + identity
}

// cutoff is the exclusive ZREMRANGEBYSCORE bound for now.
func (r *Redis) cutoff(now time.Time) string {
	return "(" + strconv.FormatInt(now.Add(-r.window).UnixMilli(), 10)
}

func (r *Redis) Check(ctx context.Context, key string, now time.Time) (Decision, error) {
	vals, err := checkScript.Run(ctx, r.rdb, []string{r.key(key)}, r.cutoff(now), r.limit).Result()
	if err != nil {
		return Decision{}, fmt.Errorf("limiter check: %w", err)
	}
	arr, ok := vals.([]interface{})
	if !ok || len(arr) != 2 {
		return Decision{}, fmt.Errorf("limiter check: unexpected script result %#v", vals)
	}
	count := int(asInt64(arr[0]))
	if count >= r.limit {
		oldest := time.UnixMilli(asInt64(arr[1]))
		return Decision{Count: count, RetryAfter: retryAfter(oldest, now, r.window)}, nil
	}
	return Decision{Allowed: true, Count: count}, nil
}

func (r *Redis) CheckAndRecord(ctx context.Context, key string, now time.Time) (Decision, error) {
	args := []interface{}{
		r.cutoff(now),
		r.limit,
		now.UnixMilli(),
		uuid.NewString(),
		r.window.Milliseconds() + 1,
	}
	vals, err := attemptScript.Run(ctx, r.rdb, []string{r.key(key)}, args...).Result()
	if err != nil {
		return Decision{}, fmt.Errorf("limiter attempt: %w", err)
	}
	arr, ok := vals.([]interface{})
	if !ok || len(arr) != 3 {
		return Decision{}, fmt.Errorf("limiter attempt: unexpected script result %#v", vals)
	}
	count := int(asInt64(arr[1]))
	if asInt64(arr[0]) == 0 {
		oldest := time.UnixMilli(asInt64(arr[2]))
		return Decision{Count: count, RetryAfter: retryAfter(oldest, now, r.window)}, nil
	}
	return Decision{Allowed: true, Count: count}, nil
}

func (r *Redis) RecordFailure(ctx context.Context, key string, now time.Time) error {
	args := []interface{}{
		r.cutoff(now),
		now.UnixMilli(),
		uuid.NewString(),
		r.window.Milliseconds() + 1,
	}
	if err := recordScript.Run(ctx, r.rdb, []string{r.key(key)}, args...).Err(); err != nil {
		return fmt.Errorf("limiter record: %w", err)
	}
	return nil
}

func (r *Redis) Reset(ctx context.Context, key string) error {
	if err := r.rdb.Del(ctx, r.key(key)).Err(); err != nil {
		return fmt.Errorf("limiter reset: %w", err)
	}
	return nil
}

func asInt64(v interface{}) int64 {
	switch t := v.(type) {
	case int64:
		return t
	case int:
		return int64(t)
	case float64:
		return int64(t)
	case string:
		if n, err := strconv.ParseInt(t, 10, 64); err == nil {
			return n
		}
	}
	return 0
}
