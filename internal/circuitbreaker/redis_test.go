package circuitbreaker

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/adpulse/adpulse/internal/domain"
)

// Integration tests against a real Redis. Set REDIS_URL to run them.
func redisClient(t *testing.T) *redis.Client {
	t.Helper()
	url := os.Getenv("REDIS_URL")
	if url == "" {
		t.Skip("REDIS_URL not set, skipping Redis circuit breaker tests")
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		t.Fatalf("parse redis url: %v", err)
	}
	return redis.NewClient(opts)
}

func newRedisBreaker(t *testing.T, upstreamID string, cfg Config) *RedisCircuitBreaker {
	t.Helper()
	cb := NewRedisWithClient(redisClient(t), upstreamID, cfg)
	t.Cleanup(func() {
		cb.Reset(context.Background())
		cb.Close()
	})
	return cb
}

func TestRedisBreaker_MissingHashMeansClosed(t *testing.T) {
	ctx := context.Background()
	cb := newRedisBreaker(t, "cbtest-fresh", DefaultConfig())

	if cb.State(ctx) != StateClosed {
		t.Errorf("expected closed, got %v", cb.State(ctx))
	}
	if err := cb.Allow(ctx); err != nil {
		t.Errorf("fresh breaker rejected request: %v", err)
	}
}

func TestRedisBreaker_OpensAndBlocks(t *testing.T) {
	ctx := context.Background()
	cfg := Config{FailureThreshold: 2, SuccessThreshold: 1, Timeout: time.Minute}
	cb := newRedisBreaker(t, "cbtest-open", cfg)

	cb.RecordFailure(ctx)
	if err := cb.Allow(ctx); err != nil {
		t.Fatalf("opened below threshold: %v", err)
	}
	cb.RecordFailure(ctx)

	if err := cb.Allow(ctx); !errors.Is(err, domain.ErrCircuitBreakerOpen) {
		t.Errorf("expected ErrCircuitBreakerOpen, got %v", err)
	}
	if cb.State(ctx) != StateOpen {
		t.Errorf("expected open, got %v", cb.State(ctx))
	}
}

func TestRedisBreaker_RecoversThroughHalfOpen(t *testing.T) {
	ctx := context.Background()
	cfg := Config{FailureThreshold: 1, SuccessThreshold: 1, Timeout: 50 * time.Millisecond}
	cb := newRedisBreaker(t, "cbtest-recover", cfg)

	cb.RecordFailure(ctx)
	if err := cb.Allow(ctx); !errors.Is(err, domain.ErrCircuitBreakerOpen) {
		t.Fatalf("expected open circuit, got %v", err)
	}

	time.Sleep(60 * time.Millisecond)
	if err := cb.Allow(ctx); err != nil {
		t.Fatalf("expected trial request after timeout, got %v", err)
	}
	cb.RecordSuccess(ctx)

	if cb.State(ctx) != StateClosed {
		t.Errorf("expected closed after recovery, got %v", cb.State(ctx))
	}
}

func TestRedisBreaker_ClosedBreakerLeavesNoHash(t *testing.T) {
	ctx := context.Background()
	cfg := Config{FailureThreshold: 1, SuccessThreshold: 1, Timeout: 50 * time.Millisecond}
	cb := newRedisBreaker(t, "cbtest-cleanup", cfg)

	cb.RecordFailure(ctx)
	time.Sleep(60 * time.Millisecond)
	cb.Allow(ctx)
	cb.RecordSuccess(ctx)

	// Closing the circuit deletes the hash instead of parking zeroed
	// counters in Redis for every upstream forever.
	exists, err := cb.client.Exists(ctx, cb.key).Result()
	if err != nil {
		t.Fatalf("exists: %v", err)
	}
	if exists != 0 {
		t.Errorf("expected breaker hash deleted after close, still present")
	}
}

func TestRedisBreaker_SharesStateAcrossReplicas(t *testing.T) {
	ctx := context.Background()
	cfg := Config{FailureThreshold: 2, SuccessThreshold: 1, Timeout: time.Minute}

	a := newRedisBreaker(t, "cbtest-shared", cfg)
	b := NewRedisWithClient(redisClient(t), "cbtest-shared", cfg)
	defer b.Close()

	a.RecordFailure(ctx)
	b.RecordFailure(ctx)

	// Failures recorded by either replica trip the shared breaker.
	if err := a.Allow(ctx); !errors.Is(err, domain.ErrCircuitBreakerOpen) {
		t.Errorf("replica a: expected ErrCircuitBreakerOpen, got %v", err)
	}
	if err := b.Allow(ctx); !errors.Is(err, domain.ErrCircuitBreakerOpen) {
		t.Errorf("replica b: expected ErrCircuitBreakerOpen, got %v", err)
	}
}

func TestRedisBreaker_ResetClosesCircuit(t *testing.T) {
	ctx := context.Background()
	cfg := Config{FailureThreshold: 1, SuccessThreshold: 1, Timeout: time.Minute}
	cb := newRedisBreaker(t, "cbtest-reset", cfg)

	cb.RecordFailure(ctx)
	if cb.State(ctx) != StateOpen {
		t.Fatalf("expected open, got %v", cb.State(ctx))
	}

	if err := cb.Reset(ctx); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if cb.State(ctx) != StateClosed {
		t.Errorf("expected closed after reset, got %v", cb.State(ctx))
	}
	if got := cb.Failures(ctx); got != 0 {
		t.Errorf("expected 0 failures after reset, got %d", got)
	}
}
