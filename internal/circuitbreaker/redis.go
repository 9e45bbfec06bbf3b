package circuitbreaker

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/adpulse/adpulse/internal/domain"
)

// Each upstream's breaker lives in one Redis hash so every transition is
// a single atomic script call. Fields: state, failures, successes,
// opened_at (unix milliseconds).
const redisKeyPrefix = "adpulse:cb:"

// applyScript folds one breaker event (allow, success, failure) into the
// hash and returns the resulting state. A missing hash means closed; a
// fully closed breaker deletes its hash rather than storing zeros.
var applyScript = redis.NewScript(`
local key = KEYS[1]
local event = ARGV[1]
local now = tonumber(ARGV[2])
local fail_at = tonumber(ARGV[3])
local close_at = tonumber(ARGV[4])
local timeout = tonumber(ARGV[5])

local state = redis.call('HGET', key, 'state')
if not state then state = 'closed' end

if event == 'allow' then
	if state == 'open' then
		local opened = tonumber(redis.call('HGET', key, 'opened_at') or '0')
		if now - opened >= timeout then
			redis.call('HSET', key, 'state', 'half-open', 'successes', 0)
			state = 'half-open'
		end
	end
	return state
end

if event == 'success' then
	if state == 'half-open' then
		local successes = redis.call('HINCRBY', key, 'successes', 1)
		if successes >= close_at then
			redis.call('DEL', key)
			state = 'closed'
		end
	elseif state == 'closed' then
		redis.call('HDEL', key, 'failures')
	end
	return state
end

if state == 'half-open' then
	redis.call('HSET', key, 'state', 'open', 'opened_at', now, 'failures', 0, 'successes', 0)
	return 'open'
end
local failures = redis.call('HINCRBY', key, 'failures', 1)
if state == 'closed' and failures >= fail_at then
	redis.call('HSET', key, 'state', 'open', 'opened_at', now, 'successes', 0)
	state = 'open'
end
return state
`)

// RedisCircuitBreaker shares breaker state across replicas through a
// single hash per upstream.
type RedisCircuitBreaker struct {
	client *redis.Client
	key    string
	cfg    Config
}

func NewRedis(redisURL, upstreamID string, cfg Config) (*RedisCircuitBreaker, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return NewRedisWithClient(client, upstreamID, cfg), nil
}

func NewRedisWithClient(client *redis.Client, upstreamID string, cfg Config) *RedisCircuitBreaker {
	return &RedisCircuitBreaker{
		client: client,
		key:    redisKeyPrefix + upstreamID,
		cfg:    cfg,
	}
}

// apply runs one breaker event through the script atomically.
func (cb *RedisCircuitBreaker) apply(ctx context.Context, event string) (State, error) {
	result, err := applyScript.Run(ctx, cb.client, []string{cb.key},
		event,
		time.Now().UnixMilli(),
		cb.cfg.FailureThreshold,
		cb.cfg.SuccessThreshold,
		cb.cfg.Timeout.Milliseconds(),
	).Text()
	if err != nil {
		return StateClosed, err
	}
	return parseState(result), nil
}

// Allow fails open: when Redis is unreachable the upstream call proceeds
// rather than every request dying with the breaker store.
func (cb *RedisCircuitBreaker) Allow(ctx context.Context) error {
	state, err := cb.apply(ctx, "allow")
	if err != nil {
		return nil
	}
	if state == StateOpen {
		return domain.ErrCircuitBreakerOpen
	}
	return nil
}

func (cb *RedisCircuitBreaker) RecordSuccess(ctx context.Context) {
	cb.apply(ctx, "success")
}

func (cb *RedisCircuitBreaker) RecordFailure(ctx context.Context) {
	cb.apply(ctx, "failure")
}

func (cb *RedisCircuitBreaker) State(ctx context.Context) State {
	state, err := cb.apply(ctx, "allow")
	if err != nil {
		return StateClosed
	}
	return state
}

func (cb *RedisCircuitBreaker) Failures(ctx context.Context) int {
	raw, err := cb.client.HGet(ctx, cb.key, "failures").Result()
	if err != nil {
		return 0
	}
	n, _ := strconv.Atoi(raw)
	return n
}

// Reset forces the breaker back to closed. Used for manual intervention.
func (cb *RedisCircuitBreaker) Reset(ctx context.Context) error {
	return cb.client.Del(ctx, cb.key).Err()
}

func (cb *RedisCircuitBreaker) Close() error {
	return cb.client.Close()
}

func parseState(s string) State {
	switch s {
	case "open":
		return StateOpen
	case "half-open":
		return StateHalfOpen
	default:
		return StateClosed
	}
}
