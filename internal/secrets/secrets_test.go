package secrets

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestLoadProviderKeys(t *testing.T) {
	store := StaticStore{
		ProviderKeysName: `{
			"openai_api_key": "sk-openai",
			"anthropic_api_key": "sk-ant",
			"meta_access_token": "EAABplatform"
		}`,
	}

	keys, err := LoadProviderKeys(context.Background(), store)
	if err != nil {
		t.Fatalf("LoadProviderKeys: %v", err)
	}

	if keys.OpenAIAPIKey != "sk-openai" {
		t.Errorf("OpenAIAPIKey = %q", keys.OpenAIAPIKey)
	}
	if keys.AnthropicAPIKey != "sk-ant" {
		t.Errorf("AnthropicAPIKey = %q", keys.AnthropicAPIKey)
	}
	if keys.MetaAccessToken != "EAABplatform" {
		t.Errorf("MetaAccessToken = %q", keys.MetaAccessToken)
	}
}

func TestLoadProviderKeys_MissingSecret(t *testing.T) {
	if _, err := LoadProviderKeys(context.Background(), StaticStore{}); err == nil {
		t.Error("expected an error when the secret is absent")
	}
}

func TestLoadProviderKeys_MalformedPayload(t *testing.T) {
	store := StaticStore{ProviderKeysName: "not json"}
	if _, err := LoadProviderKeys(context.Background(), store); err == nil {
		t.Error("expected a decode error for a non-JSON secret")
	}
}

func TestProviderKeys_Override(t *testing.T) {
	stored := ProviderKeys{
		OpenAIAPIKey:    "sk-from-secret",
		AnthropicAPIKey: "sk-ant-from-secret",
		MetaAccessToken: "EAABfrom-secret",
	}

	merged := stored.Override(ProviderKeys{OpenAIAPIKey: "sk-from-env"})

	if merged.OpenAIAPIKey != "sk-from-env" {
		t.Errorf("env OpenAI key should win, got %q", merged.OpenAIAPIKey)
	}
	if merged.AnthropicAPIKey != "sk-ant-from-secret" {
		t.Errorf("unset env fields must keep the stored value, got %q", merged.AnthropicAPIKey)
	}
	if merged.MetaAccessToken != "EAABfrom-secret" {
		t.Errorf("unset env fields must keep the stored value, got %q", merged.MetaAccessToken)
	}
}

// countingStore records fetches and can be made to fail.
type countingStore struct {
	mu      sync.Mutex
	fetches int
	value   string
	err     error
}

func (s *countingStore) Fetch(ctx context.Context, name string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fetches++
	if s.err != nil {
		return "", s.err
	}
	return s.value, nil
}

func (s *countingStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fetches
}

func TestCached_ServesFromCacheWithinTTL(t *testing.T) {
	source := &countingStore{value: "sk-v1"}
	cached := NewCached(source, time.Minute)

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		value, err := cached.Fetch(ctx, ProviderKeysName)
		if err != nil {
			t.Fatalf("fetch %d: %v", i, err)
		}
		if value != "sk-v1" {
			t.Fatalf("fetch %d = %q, want sk-v1", i, value)
		}
	}

	if got := source.count(); got != 1 {
		t.Errorf("backend fetches = %d, want 1", got)
	}
}

func TestCached_RefetchesAfterTTL(t *testing.T) {
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	source := &countingStore{value: "sk-v1"}
	cached := NewCached(source, time.Minute, WithClock(func() time.Time { return now }))

	ctx := context.Background()
	cached.Fetch(ctx, ProviderKeysName)

	source.mu.Lock()
	source.value = "sk-v2"
	source.mu.Unlock()
	now = now.Add(2 * time.Minute)

	value, err := cached.Fetch(ctx, ProviderKeysName)
	if err != nil {
		t.Fatalf("fetch after ttl: %v", err)
	}
	if value != "sk-v2" {
		t.Errorf("rotated value = %q, want sk-v2", value)
	}
	if got := source.count(); got != 2 {
		t.Errorf("backend fetches = %d, want 2", got)
	}
}

func TestCached_ServesStaleOnBackendError(t *testing.T) {
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	source := &countingStore{value: "sk-v1"}
	cached := NewCached(source, time.Minute, WithClock(func() time.Time { return now }))

	ctx := context.Background()
	if _, err := cached.Fetch(ctx, ProviderKeysName); err != nil {
		t.Fatalf("warm fetch: %v", err)
	}

	source.mu.Lock()
	source.err = errors.New("secretsmanager unavailable")
	source.mu.Unlock()
	now = now.Add(2 * time.Minute)

	value, err := cached.Fetch(ctx, ProviderKeysName)
	if err != nil {
		t.Fatalf("expected stale value while backend is down, got error: %v", err)
	}
	if value != "sk-v1" {
		t.Errorf("stale value = %q, want sk-v1", value)
	}
}

func TestCached_ErrorWithoutCachedValue(t *testing.T) {
	source := &countingStore{err: errors.New("secretsmanager unavailable")}
	cached := NewCached(source, time.Minute)

	if _, err := cached.Fetch(context.Background(), ProviderKeysName); err == nil {
		t.Error("expected an error when nothing is cached")
	}
}

func TestCached_Invalidate(t *testing.T) {
	source := &countingStore{value: "sk-v1"}
	cached := NewCached(source, time.Hour)

	ctx := context.Background()
	cached.Fetch(ctx, ProviderKeysName)
	cached.Invalidate(ProviderKeysName)
	cached.Fetch(ctx, ProviderKeysName)

	if got := source.count(); got != 2 {
		t.Errorf("backend fetches after invalidate = %d, want 2", got)
	}
}
