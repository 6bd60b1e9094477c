package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// redisTokenBucketScript handles the token bucket algorithm atomically in Redis.
// KEYS[1] = bucket key (e.g. "limiter:judge-7")
// ARGV[1] = refill rate (tokens per second)
// ARGV[2] = capacity (max tokens)
// ARGV[3] = cost (tokens to consume)
// ARGV[4] = current unix timestamp (seconds)
var redisTokenBucketScript = redis.NewScript(`
local key = KEYS[1]
local rate = tonumber(ARGV[1])
local capacity = tonumber(ARGV[2])
local cost = tonumber(ARGV[3])
local now = tonumber(ARGV[4])

local state = redis.call("HMGET", key, "tokens", "last_refill")
local tokens = tonumber(state[1])
local last_refill = tonumber(state[2])

if not tokens or not last_refill then
    tokens = capacity
    last_refill = now
end

local elapsed = now - last_refill
if elapsed > 0 then
    local added = elapsed * rate
    tokens = tokens + added
    if tokens > capacity then
        tokens = capacity
    end
    last_refill = now
end

local allowed = 0
if tokens >= cost then
    tokens = tokens - cost
    allowed = 1
end

redis.call("HMSET", key, "tokens", tokens, "last_refill", last_refill)
redis.call("EXPIRE", key, 60)

return {allowed, tokens}
`)

// RedisLimiterStore implements LimiterStore using Redis, so the limit is
// shared across replicas.
type RedisLimiterStore struct {
	client *redis.Client
}

// NewRedisLimiterStore creates a new store backed by Redis.
func NewRedisLimiterStore(addr string, password string, db int) *RedisLimiterStore {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return &RedisLimiterStore{client: rdb}
}

// Allow executes the Lua script to check and update the token bucket.
func (s *RedisLimiterStore) Allow(ctx context.Context, actorID string, policy BackpressurePolicy, cost int) (bool, error) {
	key := fmt.Sprintf("limiter:%s", actorID)

	refill := float64(policy.RPM) / 60.0
	now := float64(time.Now().UnixMicro()) / 1e6

	res, err := redisTokenBucketScript.Run(ctx, s.client, []string{key}, refill, policy.Burst, cost, now).Result()
	if err != nil {
		return false, fmt.Errorf("limiter script failed: %w", err)
	}

	vals, ok := res.([]interface{})
	if !ok || len(vals) < 1 {
		return false, fmt.Errorf("unexpected limiter script result: %v", res)
	}
	allowed, _ := vals[0].(int64)
	return allowed == 1, nil
}

// Close releases the underlying Redis connection.
func (s *RedisLimiterStore) Close() error {
	return s.client.Close()
}
