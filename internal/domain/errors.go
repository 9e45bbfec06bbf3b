package domain

import "errors"

var (
	ErrWorkspaceNotFound    = errors.New("workspace not found")
	ErrAutomationNotFound   = errors.New("automation not found")
	ErrInvalidAPIKey        = errors.New("invalid API key")
	ErrRateLimitExceeded    = errors.New("rate limit exceeded")
	ErrInsufficientCredits  = errors.New("insufficient credits")
	ErrProviderNotFound     = errors.New("provider not found")
	ErrProviderError        = errors.New("provider error")
	ErrInvalidRequest       = errors.New("invalid request")
	ErrInvalidSchedule      = errors.New("invalid schedule")
	ErrCircuitBreakerOpen   = errors.New("circuit breaker open")
	ErrIntegrationNotLinked = errors.New("integration not linked")
)
