// Package router selects an AI provider for creative generation and
// fails over to healthy alternatives when the chosen one misbehaves.
package router

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/adpulse/adpulse/internal/circuitbreaker"
	"github.com/adpulse/adpulse/internal/domain"
	"github.com/adpulse/adpulse/internal/metrics"
)

// Provider generates ad creative variants from a brief.
type Provider interface {
	ID() string
	Generate(ctx context.Context, req domain.CreativeRequest) ([]domain.CreativeVariant, string, error)
	HealthCheck(ctx context.Context) error
}

type Router struct {
	providers       map[string]Provider
	defaultProvider string
	breakers        *circuitbreaker.Manager
}

func New(providers map[string]Provider, defaultProvider string, breakers *circuitbreaker.Manager) *Router {
	return &Router{
		providers:       providers,
		defaultProvider: defaultProvider,
		breakers:        breakers,
	}
}

// SelectProvider resolves which provider should handle a request.
// An explicit hint wins; otherwise the model name decides, then the
// configured default, then any registered provider.
func (r *Router) SelectProvider(ctx context.Context, providerHint string, model string) (Provider, error) {
	if providerHint != "" {
		if p, ok := r.providers[providerHint]; ok {
			return p, nil
		}
		return nil, domain.ErrProviderNotFound
	}

	if p := r.findProviderByModel(model); p != nil {
		return p, nil
	}

	if p, ok := r.providers[r.defaultProvider]; ok {
		return p, nil
	}

	for _, id := range r.sortedIDs() {
		return r.providers[id], nil
	}

	return nil, domain.ErrProviderNotFound
}

// Generate runs a creative request against the selected provider, falling
// back to the remaining providers in deterministic order when the primary
// is circuit-open or errors out.
func (r *Router) Generate(ctx context.Context, providerHint string, req domain.CreativeRequest) ([]domain.CreativeVariant, string, string, error) {
	primary, err := r.SelectProvider(ctx, providerHint, req.Model)
	if err != nil {
		return nil, "", "", err
	}

	order := []Provider{primary}
	for _, id := range r.sortedIDs() {
		if id != primary.ID() {
			order = append(order, r.providers[id])
		}
	}

	var lastErr error
	for _, p := range order {
		cb := r.breakers.Get(p.ID())
		if err := cb.Allow(ctx); err != nil {
			slog.Debug("provider circuit open, skipping", "provider", p.ID())
			r.publishState(ctx, p.ID(), cb)
			lastErr = err
			continue
		}

		variants, model, err := p.Generate(ctx, req)
		if err != nil {
			cb.RecordFailure(ctx)
			r.publishState(ctx, p.ID(), cb)
			metrics.ProviderErrors.WithLabelValues(p.ID(), "generate").Inc()
			slog.Warn("provider generate failed", "provider", p.ID(), "error", err)
			lastErr = err
			continue
		}

		cb.RecordSuccess(ctx)
		r.publishState(ctx, p.ID(), cb)
		return variants, model, p.ID(), nil
	}

	if lastErr == nil {
		lastErr = domain.ErrProviderNotFound
	}
	if errors.Is(lastErr, domain.ErrCircuitBreakerOpen) {
		return nil, "", "", lastErr
	}
	return nil, "", "", fmt.Errorf("%w: all providers failed: %v", domain.ErrProviderError, lastErr)
}

func (r *Router) findProviderByModel(model string) Provider {
	modelProviderMap := map[string]string{
		"gpt-4o":            "openai",
		"gpt-4o-mini":       "openai",
		"gpt-4-turbo":       "openai",
		"claude-sonnet-4-5": "anthropic",
		"claude-haiku-4-5":  "anthropic",
		"nova-pro":          "bedrock",
		"nova-lite":         "bedrock",
	}

	if providerID, ok := modelProviderMap[model]; ok {
		if p, ok := r.providers[providerID]; ok {
			return p
		}
	}

	return nil
}

func (r *Router) GetProvider(id string) (Provider, bool) {
	p, ok := r.providers[id]
	return p, ok
}

func (r *Router) ListProviders() []string {
	return r.sortedIDs()
}

// BreakerStates reports the circuit state per provider for the health endpoint.
func (r *Router) BreakerStates() map[string]string {
	return r.breakers.States()
}

func (r *Router) sortedIDs() []string {
	ids := make([]string, 0, len(r.providers))
	for id := range r.providers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (r *Router) publishState(ctx context.Context, providerID string, cb circuitbreaker.CircuitBreaker) {
	metrics.SetCircuitBreakerState(providerID, int(cb.State(ctx)))
}
