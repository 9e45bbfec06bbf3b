package credits

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// AlertDeduplicator keeps a low-balance alert from being sent repeatedly
// while a workspace sits at the same level.
type AlertDeduplicator interface {
	// ShouldAlert reports whether this workspace/level pair is new since
	// the last clear and marks it sent.
	ShouldAlert(ctx context.Context, workspaceID string, level AlertLevel) bool

	// ClearAlert resets the workspace's alert state, called when the
	// balance recovers above the lowest threshold.
	ClearAlert(ctx context.Context, workspaceID string)
}

type InMemoryDeduplicator struct {
	mu         sync.Mutex
	lastAlerts map[string]AlertLevel
}

func NewInMemoryDeduplicator() *InMemoryDeduplicator {
	return &InMemoryDeduplicator{
		lastAlerts: make(map[string]AlertLevel),
	}
}

func (d *InMemoryDeduplicator) ShouldAlert(ctx context.Context, workspaceID string, level AlertLevel) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if last, ok := d.lastAlerts[workspaceID]; ok && last == level {
		return false
	}

	d.lastAlerts[workspaceID] = level
	return true
}

func (d *InMemoryDeduplicator) ClearAlert(ctx context.Context, workspaceID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.lastAlerts, workspaceID)
}

// RedisDeduplicator shares alert state across instances via SETNX, so a
// multi-instance deployment sends each level transition once.
type RedisDeduplicator struct {
	client  *redis.Client
	lockTTL time.Duration
}

func NewRedisDeduplicator(redisURL string, lockTTL time.Duration) (*RedisDeduplicator, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	return &RedisDeduplicator{client: client, lockTTL: lockTTL}, nil
}

func NewRedisDeduplicatorWithClient(client *redis.Client, lockTTL time.Duration) *RedisDeduplicator {
	return &RedisDeduplicator{client: client, lockTTL: lockTTL}
}

func (d *RedisDeduplicator) alertKey(workspaceID string, level AlertLevel) string {
	return fmt.Sprintf("credits:alert:%s:%s", workspaceID, level)
}

func (d *RedisDeduplicator) ShouldAlert(ctx context.Context, workspaceID string, level AlertLevel) bool {
	key := d.alertKey(workspaceID, level)

	acquired, err := d.client.SetNX(ctx, key, time.Now().Unix(), d.lockTTL).Result()
	if err != nil {
		// Fail open: a duplicate alert beats a silently dropped one.
		return true
	}
	return acquired
}

func (d *RedisDeduplicator) ClearAlert(ctx context.Context, workspaceID string) {
	pattern := fmt.Sprintf("credits:alert:%s:*", workspaceID)
	keys, err := d.client.Keys(ctx, pattern).Result()
	if err != nil || len(keys) == 0 {
		return
	}
	d.client.Del(ctx, keys...)
}

func (d *RedisDeduplicator) Close() error {
	return d.client.Close()
}
