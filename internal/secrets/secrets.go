// Package secrets resolves the platform credentials adpulse needs at
// startup: AI provider API keys and the shared Meta ad library token.
// They live in one JSON secret in AWS Secrets Manager; environment
// variables always take precedence over the stored values.
package secrets

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
)

// ProviderKeysName is the canonical secret holding every provider
// credential, provisioned once per environment.
const ProviderKeysName = "adpulse/providers"

const defaultCacheTTL = 5 * time.Minute

// ProviderKeys is the JSON shape of the provider credentials secret.
type ProviderKeys struct {
	OpenAIAPIKey    string `json:"openai_api_key"`
	AnthropicAPIKey string `json:"anthropic_api_key"`
	MetaAccessToken string `json:"meta_access_token"`
}

// Override returns the keys with any non-empty field of env taking
// precedence, so operators can pin a credential locally without touching
// the shared secret.
func (k ProviderKeys) Override(env ProviderKeys) ProviderKeys {
	if env.OpenAIAPIKey != "" {
		k.OpenAIAPIKey = env.OpenAIAPIKey
	}
	if env.AnthropicAPIKey != "" {
		k.AnthropicAPIKey = env.AnthropicAPIKey
	}
	if env.MetaAccessToken != "" {
		k.MetaAccessToken = env.MetaAccessToken
	}
	return k
}

// Fetcher retrieves one named secret. Implementations must be safe for
// concurrent use.
type Fetcher interface {
	Fetch(ctx context.Context, name string) (string, error)
}

// LoadProviderKeys fetches and decodes the provider credentials secret.
func LoadProviderKeys(ctx context.Context, store Fetcher) (ProviderKeys, error) {
	var keys ProviderKeys

	raw, err := store.Fetch(ctx, ProviderKeysName)
	if err != nil {
		return keys, err
	}
	if err := json.Unmarshal([]byte(raw), &keys); err != nil {
		return keys, fmt.Errorf("decode %s: %w", ProviderKeysName, err)
	}
	return keys, nil
}

// AWSStore fetches secrets from AWS Secrets Manager. It holds no cache;
// wrap it in Cached for anything called more than once per rotation.
type AWSStore struct {
	client *secretsmanager.Client
}

func NewAWSStore(ctx context.Context, region string) (*AWSStore, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return &AWSStore{client: secretsmanager.NewFromConfig(cfg)}, nil
}

func NewAWSStoreWithConfig(cfg aws.Config) *AWSStore {
	return &AWSStore{client: secretsmanager.NewFromConfig(cfg)}
}

func (s *AWSStore) Fetch(ctx context.Context, name string) (string, error) {
	out, err := s.client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(name),
	})
	if err != nil {
		return "", fmt.Errorf("fetch secret %s: %w", name, err)
	}
	if out.SecretString == nil {
		return "", fmt.Errorf("secret %s has no string payload", name)
	}
	return *out.SecretString, nil
}

// Cached wraps a Fetcher with a per-name TTL cache so hot paths don't
// hammer Secrets Manager. Expired entries are refetched on demand; a
// rotation shows up within one TTL.
type Cached struct {
	source Fetcher
	ttl    time.Duration
	clock  func() time.Time

	mu      sync.Mutex
	entries map[string]cacheEntry
}

type cacheEntry struct {
	value     string
	fetchedAt time.Time
}

type CachedOption func(*Cached)

// WithClock overrides the cache's time source in tests.
func WithClock(now func() time.Time) CachedOption {
	return func(c *Cached) { c.clock = now }
}

func NewCached(source Fetcher, ttl time.Duration, opts ...CachedOption) *Cached {
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	c := &Cached{
		source:  source,
		ttl:     ttl,
		clock:   time.Now,
		entries: make(map[string]cacheEntry),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Cached) Fetch(ctx context.Context, name string) (string, error) {
	c.mu.Lock()
	entry, ok := c.entries[name]
	c.mu.Unlock()
	if ok && c.clock().Sub(entry.fetchedAt) < c.ttl {
		return entry.value, nil
	}

	value, err := c.source.Fetch(ctx, name)
	if err != nil {
		// A stale value beats no value while the backend is down.
		if ok {
			return entry.value, nil
		}
		return "", err
	}

	c.mu.Lock()
	c.entries[name] = cacheEntry{value: value, fetchedAt: c.clock()}
	c.mu.Unlock()

	return value, nil
}

// Invalidate drops one cached entry, forcing a refetch on next use.
func (c *Cached) Invalidate(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, name)
}

// StaticStore is a fixed in-memory Fetcher for tests and local runs.
type StaticStore map[string]string

func (s StaticStore) Fetch(ctx context.Context, name string) (string, error) {
	value, ok := s[name]
	if !ok {
		return "", fmt.Errorf("secret %s not found", name)
	}
	return value, nil
}
