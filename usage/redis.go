package usage

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	keyPrefix    = "aeo:usage:"
	ratePrefix   = "aeo:ratelimit:"
	periodExpiry = 40 * 24 * time.Hour
)

// incrementScript adds one analysis unless the limit was already reached.
var incrementScript = redis.NewScript(`
local n = tonumber(redis.call('HGET', KEYS[1], 'analyses') or '0')
local limit = tonumber(ARGV[1])
if limit > 0 and n >= limit then
  return {n, 0}
end
n = redis.call('HINCRBY', KEYS[1], 'analyses', 1)
redis.call('EXPIRE', KEYS[1], ARGV[2])
return {n, 1}
`)

// releaseScript takes back one analysis without going below zero.
var releaseScript = redis.NewScript(`
local n = tonumber(redis.call('HGET', KEYS[1], 'analyses') or '0')
if n > 0 then
  return redis.call('HINCRBY', KEYS[1], 'analyses', -1)
end
return 0
`)

// appendScript prunes the sliding window and appends a timestamp when room remains.
var appendScript = redis.NewScript(`
redis.call('ZREMRANGEBYSCORE', KEYS[1], '-inf', ARGV[2])
local n = redis.call('ZCARD', KEYS[1])
local limit = tonumber(ARGV[3])
if limit > 0 and n >= limit then
  local first = redis.call('ZRANGE', KEYS[1], 0, 0, 'WITHSCORES')
  return {0, first[2]}
end
redis.call('ZADD', KEYS[1], ARGV[1], ARGV[4])
redis.call('PEXPIRE', KEYS[1], ARGV[5])
return {1, '0'}
`)

// RedisStore keeps usage in Redis. Conditional updates run as Lua scripts
// so concurrent servers cannot both pass the same limit.
type RedisStore struct {
	rdb *redis.Client
}

// ConnectRedis creates a Redis client and verifies connectivity.
func ConnectRedis(url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}

	rdb := redis.NewClient(opts)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return rdb, nil
}

func NewRedisStore(rdb *redis.Client) *RedisStore {
	return &RedisStore{rdb: rdb}
}

func usageKey(userID, period string) string { return keyPrefix + userID + ":" + period }

func rateKey(userID string) string { return ratePrefix + userID }

func (s *RedisStore) Usage(ctx context.Context, userID, period string) (Record, error) {
	rec := Record{UserID: userID, Period: period}
	vals, err := s.rdb.HGetAll(ctx, usageKey(userID, period)).Result()
	if err != nil {
		return rec, err
	}
	if v, ok := vals["analyses"]; ok {
		rec.Analyses, _ = strconv.Atoi(v)
	}
	if v, ok := vals["cost"]; ok {
		rec.Cost, _ = strconv.ParseFloat(v, 64)
	}
	return rec, nil
}

func (s *RedisStore) IncrementAnalyses(ctx context.Context, userID, period string, limit int) (int, bool, error) {
	vals, err := incrementScript.Run(ctx, s.rdb,
		[]string{usageKey(userID, period)},
		limit, int(periodExpiry.Seconds()),
	).Slice()
	if err != nil {
		return 0, false, fmt.Errorf("increment analyses: %w", err)
	}
	if len(vals) != 2 {
		return 0, false, fmt.Errorf("increment analyses: unexpected reply %v", vals)
	}
	n, _ := vals[0].(int64)
	ok, _ := vals[1].(int64)
	return int(n), ok == 1, nil
}

func (s *RedisStore) ReleaseAnalysis(ctx context.Context, userID, period string) error {
	if err := releaseScript.Run(ctx, s.rdb, []string{usageKey(userID, period)}).Err(); err != nil {
		return fmt.Errorf("release analysis: %w", err)
	}
	return nil
}

func (s *RedisStore) AddCost(ctx context.Context, userID, period string, cost float64) error {
	key := usageKey(userID, period)
	pipe := s.rdb.TxPipeline()
	pipe.HIncrByFloat(ctx, key, "cost", cost)
	pipe.Expire(ctx, key, periodExpiry)
	_, err := pipe.Exec(ctx)
	return err
}

func (s *RedisStore) AppendRequest(ctx context.Context, userID string, now time.Time, window time.Duration, limit int) (bool, time.Time, error) {
	cutoff := now.Add(-window).UnixMilli()
	member := strconv.FormatInt(now.UnixNano(), 10) + "-" + uuid.NewString()

	vals, err := appendScript.Run(ctx, s.rdb,
		[]string{rateKey(userID)},
		now.UnixMilli(), cutoff, limit, member, window.Milliseconds()+1000,
	).Slice()
	if err != nil {
		return false, time.Time{}, fmt.Errorf("append request: %w", err)
	}
	if len(vals) != 2 {
		return false, time.Time{}, fmt.Errorf("append request: unexpected reply %v", vals)
	}
	if ok, _ := vals[0].(int64); ok == 1 {
		return true, time.Time{}, nil
	}

	var oldestMs int64
	switch v := vals[1].(type) {
	case string:
		f, _ := strconv.ParseFloat(v, 64)
		oldestMs = int64(f)
	case int64:
		oldestMs = v
	}
	return false, time.UnixMilli(oldestMs), nil
}

func (s *RedisStore) Requests(ctx context.Context, userID string, now time.Time, window time.Duration) (int, error) {
	lower := "(" + strconv.FormatInt(now.Add(-window).UnixMilli(), 10)
	n, err := s.rdb.ZCount(ctx, rateKey(userID), lower, "+inf").Result()
	return int(n), err
}
