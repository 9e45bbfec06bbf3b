// Package ratelimit provides per-identifier request rate limiting.
// It uses an exact sliding window log: every accepted request is recorded
// with its timestamp, and only hits inside the trailing window count
// against the limit. There is no fixed-bucket boundary double-counting.
//
// The limiter is in-memory and single-instance; state resets on restart.
package ratelimit

import (
	"math/rand"
	"sync"
	"time"

	"github.com/adpulse/adpulse/internal/metrics"
)

// cleanupProbability is the chance, per accepted request, of sweeping the
// whole hit map. This bounds memory growth from one-shot identifiers
// without needing a background timer.
const cleanupProbability = 0.01

// Limiter answers whether one more request may proceed for an identifier.
// remaining is the quota left in the current window after this call.
type Limiter interface {
	Allow(identifier string, limit int) (allowed bool, remaining int)
}

// SlidingWindow counts accepted requests per identifier over a fixed
// trailing window. Identifiers are opaque strings (workspace IDs, bearer
// tokens); different identifiers never influence each other.
//
// The whole check runs under one mutex, so concurrent calls for the same
// identifier cannot transiently admit more than limit requests.
type SlidingWindow struct {
	mu     sync.Mutex
	window time.Duration
	hits   map[string][]time.Time
	class  string

	now    func() time.Time
	randFn func() float64
}

// Option overrides a SlidingWindow seam, used by tests to drive time and
// to force or suppress the probabilistic cleanup.
type Option func(*SlidingWindow)

func WithClock(now func() time.Time) Option {
	return func(l *SlidingWindow) { l.now = now }
}

func WithRand(fn func() float64) Option {
	return func(l *SlidingWindow) { l.randFn = fn }
}

// WithClass labels the limiter for metrics: the tracked-identifier count
// is published to the adpulse_rate_limiter_identifiers gauge under this
// class after every state change.
func WithClass(class string) Option {
	return func(l *SlidingWindow) { l.class = class }
}

// NewSlidingWindow creates a limiter with the given window duration.
// The window is fixed for the lifetime of the limiter; the limit is
// supplied per call so call sites can vary quota while sharing a window.
func NewSlidingWindow(window time.Duration, opts ...Option) *SlidingWindow {
	l := &SlidingWindow{
		window: window,
		hits:   make(map[string][]time.Time),
		now:    time.Now,
		randFn: rand.Float64,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Allow reports whether one more request for identifier may proceed, and
// how much quota remains afterward. A limit of 0 never admits.
func (l *SlidingWindow) Allow(identifier string, limit int) (bool, int) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	windowStart := now.Add(-l.window)

	prior, tracked := l.hits[identifier]
	active := pruneBefore(prior, windowStart)

	if len(active) >= limit {
		// Persist the pruned log, but only for identifiers that already
		// hold an entry. A rejected identifier that was never admitted
		// (limit 0, say) must not grow the map.
		if tracked {
			if len(active) == 0 {
				delete(l.hits, identifier)
			} else {
				l.hits[identifier] = active
			}
		}
		l.publishSize()
		return false, 0
	}

	active = append(active, now)
	l.hits[identifier] = active

	if l.randFn() < cleanupProbability {
		l.sweep(windowStart)
	}
	l.publishSize()

	return true, limit - len(active)
}

// publishSize exports the tracked-identifier count for labeled limiters.
// Caller must hold l.mu.
func (l *SlidingWindow) publishSize() {
	if l.class == "" {
		return
	}
	metrics.TrackedIdentifiers.WithLabelValues(l.class).Set(float64(len(l.hits)))
}

// pruneBefore keeps only timestamps strictly after cutoff. Hits are stored
// chronologically, so everything from the first surviving index on is live.
func pruneBefore(hits []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(hits) && !hits[i].After(cutoff) {
		i++
	}
	if i == 0 {
		return hits
	}
	return append([]time.Time(nil), hits[i:]...)
}

// sweep re-prunes every identifier against the current window start and
// drops identifiers with no live hits. Caller must hold l.mu.
func (l *SlidingWindow) sweep(windowStart time.Time) {
	for id, hits := range l.hits {
		active := pruneBefore(hits, windowStart)
		if len(active) == 0 {
			delete(l.hits, id)
			continue
		}
		l.hits[id] = active
	}
}

// Size returns the number of tracked identifiers, for metrics and tests.
func (l *SlidingWindow) Size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.hits)
}
