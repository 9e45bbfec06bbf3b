package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strings"
	"sync"
	"time"
)

const DefaultTokenTTL = time.Hour

type tokenEntry struct {
	workspaceID string
	expiresAt   time.Time
}

// TokenStore issues short-lived bearer tokens for workspaces that exchanged
// their API key. Only the token hash is kept in memory.
type TokenStore struct {
	mu     sync.Mutex
	tokens map[string]tokenEntry
	ttl    time.Duration
	now    func() time.Time
}

type TokenOption func(*TokenStore)

func WithTokenTTL(ttl time.Duration) TokenOption {
	return func(s *TokenStore) { s.ttl = ttl }
}

func WithTokenClock(now func() time.Time) TokenOption {
	return func(s *TokenStore) { s.now = now }
}

func NewTokenStore(opts ...TokenOption) *TokenStore {
	s := &TokenStore{
		tokens: make(map[string]tokenEntry),
		ttl:    DefaultTokenTTL,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Issue mints a fresh token bound to the workspace and returns it with its
// expiry. The raw token is returned exactly once.
func (s *TokenStore) Issue(workspaceID string) (string, time.Time, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", time.Time{}, err
	}
	token := "apt_" + hex.EncodeToString(raw)

	s.mu.Lock()
	defer s.mu.Unlock()

	expiresAt := s.now().Add(s.ttl)
	s.tokens[hashToken(token)] = tokenEntry{
		workspaceID: workspaceID,
		expiresAt:   expiresAt,
	}
	s.sweepLocked()

	return token, expiresAt, nil
}

// Resolve maps a presented token back to its workspace. Expired tokens are
// removed on sight.
func (s *TokenStore) Resolve(token string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := hashToken(token)
	entry, ok := s.tokens[key]
	if !ok {
		return "", false
	}
	if s.now().After(entry.expiresAt) {
		delete(s.tokens, key)
		return "", false
	}
	return entry.workspaceID, true
}

// Revoke invalidates every token for a workspace, used when an API key
// rotates.
func (s *TokenStore) Revoke(workspaceID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for key, entry := range s.tokens {
		if entry.workspaceID == workspaceID {
			delete(s.tokens, key)
		}
	}
}

func (s *TokenStore) sweepLocked() {
	now := s.now()
	for key, entry := range s.tokens {
		if now.After(entry.expiresAt) {
			delete(s.tokens, key)
		}
	}
}

// ExtractBearerToken pulls the bearer credential off a request, or ""
// when the Authorization header carries none.
func ExtractBearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if token, ok := strings.CutPrefix(header, "Bearer "); ok {
		return token
	}
	return ""
}

func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
