// Package cache provides TTL caching for expensive lookups: AI creative
// generations for identical briefs and competitor ad library pages.
// It supports both in-memory (single instance) and Redis backends.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sync"
	"time"

	"github.com/adpulse/adpulse/internal/domain"
	"github.com/redis/go-redis/v9"
)

// Cache stores opaque JSON payloads under content-derived keys.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// CreativeKey derives a stable key from a creative brief. Two identical
// briefs for the same model hit the same cached generation.
func CreativeKey(req domain.CreativeRequest) string {
	data, _ := json.Marshal(struct {
		Product  string `json:"product"`
		Audience string `json:"audience"`
		Tone     string `json:"tone,omitempty"`
		Platform string `json:"platform,omitempty"`
		Model    string `json:"model,omitempty"`
		Variants int    `json:"variants,omitempty"`
	}{
		Product:  req.Product,
		Audience: req.Audience,
		Tone:     req.Tone,
		Platform: req.Platform,
		Model:    req.Model,
		Variants: req.Variants,
	})

	hash := sha256.Sum256(data)
	return "creative:" + hex.EncodeToString(hash[:])
}

// ScrapeKey derives a key for one competitor ad library query page.
func ScrapeKey(platform, query string, page int) string {
	data, _ := json.Marshal(struct {
		Platform string `json:"platform"`
		Query    string `json:"query"`
		Page     int    `json:"page"`
	}{platform, query, page})

	hash := sha256.Sum256(data)
	return "scrape:" + hex.EncodeToString(hash[:])
}

type InMemoryCache struct {
	mu    sync.RWMutex
	items map[string]*cacheItem
}

type cacheItem struct {
	value     []byte
	expiresAt time.Time
}

func NewInMemoryCache() *InMemoryCache {
	c := &InMemoryCache{
		items: make(map[string]*cacheItem),
	}
	go c.cleanup()
	return c
}

func (c *InMemoryCache) Get(ctx context.Context, key string) ([]byte, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	item, ok := c.items[key]
	if !ok {
		return nil, false
	}
	if time.Now().After(item.expiresAt) {
		return nil, false
	}

	return item.value, true
}

func (c *InMemoryCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.items[key] = &cacheItem{
		value:     value,
		expiresAt: time.Now().Add(ttl),
	}
	return nil
}

func (c *InMemoryCache) cleanup() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for range ticker.C {
		c.mu.Lock()
		now := time.Now()
		for key, item := range c.items {
			if now.After(item.expiresAt) {
				delete(c.items, key)
			}
		}
		c.mu.Unlock()
	}
}

type RedisCache struct {
	client *redis.Client
}

func NewRedisCache(redisURL string) (*RedisCache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	return &RedisCache{client: client}, nil
}

func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, bool) {
	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		return nil, false
	}
	return data, true
}

func (c *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return c.client.Set(ctx, key, value, ttl).Err()
}

func (c *RedisCache) Client() *redis.Client {
	return c.client
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}
