// Package circuitbreaker guards calls to flaky upstreams (AI providers,
// the Meta ad library) with a closed/open/half-open breaker per upstream.
// A Manager hands out one breaker per upstream ID; deployments with Redis
// share breaker state across replicas, everything else stays in-process.
package circuitbreaker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/adpulse/adpulse/internal/domain"
)

// CircuitBreaker gates requests to a single upstream.
type CircuitBreaker interface {
	// Allow reports whether a request may proceed. It returns
	// domain.ErrCircuitBreakerOpen while the circuit is open.
	Allow(ctx context.Context) error
	// RecordSuccess feeds a successful call back into the breaker.
	RecordSuccess(ctx context.Context)
	// RecordFailure feeds a failed call back into the breaker.
	RecordFailure(ctx context.Context)
	// State reports the current circuit state.
	State(ctx context.Context) State
}

type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// Config defines circuit breaker behavior.
type Config struct {
	FailureThreshold int           // failures before opening
	SuccessThreshold int           // successes to close from half-open
	Timeout          time.Duration // how long the circuit stays open
}

func DefaultConfig() Config {
	return Config{
		FailureThreshold: 5,
		SuccessThreshold: 2,
		Timeout:          30 * time.Second,
	}
}

// InMemoryCircuitBreaker keeps breaker state in-process. Suitable for
// single-replica deployments and tests.
type InMemoryCircuitBreaker struct {
	cfg Config
	now func() time.Time

	mu        sync.Mutex
	state     State
	failures  int
	successes int
	openedAt  time.Time
}

// InMemoryOption customizes an in-memory breaker.
type InMemoryOption func(*InMemoryCircuitBreaker)

// WithClock substitutes the time source. Tests use this to step through
// the open-circuit timeout without sleeping.
func WithClock(now func() time.Time) InMemoryOption {
	return func(cb *InMemoryCircuitBreaker) {
		cb.now = now
	}
}

func NewInMemory(cfg Config, opts ...InMemoryOption) *InMemoryCircuitBreaker {
	cb := &InMemoryCircuitBreaker{cfg: cfg, now: time.Now}
	for _, opt := range opts {
		opt(cb)
	}
	return cb
}

func (cb *InMemoryCircuitBreaker) Allow(_ context.Context) error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.maybeHalfOpen()
	if cb.state == StateOpen {
		return domain.ErrCircuitBreakerOpen
	}
	return nil
}

func (cb *InMemoryCircuitBreaker) RecordSuccess(_ context.Context) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateHalfOpen:
		cb.successes++
		if cb.successes >= cb.cfg.SuccessThreshold {
			cb.reset()
		}
	case StateClosed:
		cb.failures = 0
	}
}

func (cb *InMemoryCircuitBreaker) RecordFailure(_ context.Context) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	// A single failure during the half-open trial re-opens the circuit.
	if cb.state == StateHalfOpen {
		cb.trip()
		return
	}
	cb.failures++
	if cb.state == StateClosed && cb.failures >= cb.cfg.FailureThreshold {
		cb.trip()
	}
}

func (cb *InMemoryCircuitBreaker) State(_ context.Context) State {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.maybeHalfOpen()
	return cb.state
}

// Failures reports the consecutive failure count while closed.
func (cb *InMemoryCircuitBreaker) Failures() int {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.failures
}

// maybeHalfOpen moves an expired open circuit to half-open so the next
// request acts as a trial. Callers must hold cb.mu.
func (cb *InMemoryCircuitBreaker) maybeHalfOpen() {
	if cb.state == StateOpen && cb.now().Sub(cb.openedAt) >= cb.cfg.Timeout {
		cb.state = StateHalfOpen
		cb.successes = 0
	}
}

// trip opens the circuit. Callers must hold cb.mu.
func (cb *InMemoryCircuitBreaker) trip() {
	cb.state = StateOpen
	cb.openedAt = cb.now()
	cb.failures = 0
	cb.successes = 0
}

// reset closes the circuit. Callers must hold cb.mu.
func (cb *InMemoryCircuitBreaker) reset() {
	cb.state = StateClosed
	cb.failures = 0
	cb.successes = 0
}

// Manager hands out one breaker per upstream ID, creating them lazily.
type Manager struct {
	cfg   Config
	build func(upstreamID string) CircuitBreaker

	mu       sync.RWMutex
	breakers map[string]CircuitBreaker
}

type ManagerOption func(*Manager)

// WithRedis backs new breakers with shared Redis state. When Redis is
// unreachable at breaker creation, the manager logs and falls back to an
// in-memory breaker for that upstream.
func WithRedis(redisURL string) ManagerOption {
	return func(m *Manager) {
		m.build = func(upstreamID string) CircuitBreaker {
			cb, err := NewRedis(redisURL, upstreamID, m.cfg)
			if err != nil {
				slog.Warn("redis circuit breaker unavailable, using in-memory",
					"upstream", upstreamID,
					"error", err)
				return NewInMemory(m.cfg)
			}
			return cb
		}
	}
}

func NewManager(cfg Config, opts ...ManagerOption) *Manager {
	m := &Manager{
		cfg:      cfg,
		breakers: make(map[string]CircuitBreaker),
	}
	m.build = func(string) CircuitBreaker { return NewInMemory(cfg) }
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Get returns the breaker for an upstream, creating it on first use.
func (m *Manager) Get(upstreamID string) CircuitBreaker {
	m.mu.RLock()
	cb, ok := m.breakers[upstreamID]
	m.mu.RUnlock()
	if ok {
		return cb
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if cb, ok := m.breakers[upstreamID]; ok {
		return cb
	}
	cb = m.build(upstreamID)
	m.breakers[upstreamID] = cb
	return cb
}

// States reports every known upstream and its current state, for the
// readiness endpoint and admin diagnostics.
func (m *Manager) States() map[string]string {
	ctx := context.Background()

	m.mu.RLock()
	defer m.mu.RUnlock()
	states := make(map[string]string, len(m.breakers))
	for id, cb := range m.breakers {
		states[id] = cb.State(ctx).String()
	}
	return states
}
