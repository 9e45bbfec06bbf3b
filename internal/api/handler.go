// Package api exposes the public workspace API and the admin surface.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/adpulse/adpulse/internal/auth"
	"github.com/adpulse/adpulse/internal/cache"
	"github.com/adpulse/adpulse/internal/credits"
	"github.com/adpulse/adpulse/internal/domain"
	"github.com/adpulse/adpulse/internal/metrics"
	"github.com/adpulse/adpulse/internal/ratelimit"
	"github.com/adpulse/adpulse/internal/repository"
	"github.com/adpulse/adpulse/internal/telemetry"
)

// Generator produces creative variants; satisfied by the provider router.
type Generator interface {
	Generate(ctx context.Context, providerHint string, req domain.CreativeRequest) ([]domain.CreativeVariant, string, string, error)
}

// AdScanner searches the competitor ad library.
type AdScanner interface {
	Search(ctx context.Context, workspaceID, query string, page int) ([]domain.CompetitorAd, error)
}

// AutomationRunner executes one automation on demand; satisfied by the
// automation executor the dispatcher uses.
type AutomationRunner interface {
	Execute(ctx context.Context, a *domain.Automation) error
}

// Limiter classes. Each class has its own sliding window so AI-heavy
// traffic can't starve lighter endpoints and brute-force attempts on the
// token endpoint are cut off early.
const (
	classGeneral = "general"
	classAI      = "ai"
	classAuth    = "auth"
)

type HandlerConfig struct {
	Workspaces     repository.WorkspaceRepository
	Automations    repository.AutomationRepository
	Reports        repository.ReportRepository
	Credits        *credits.Service
	Monitor        *credits.Monitor
	Generator      Generator
	Scanner        AdScanner
	Cache          cache.Cache
	CacheTTL       time.Duration
	Tokens         *auth.TokenStore
	Runner         AutomationRunner
	GeneralLimiter ratelimit.Limiter
	AILimiter      ratelimit.Limiter
	AuthLimiter    ratelimit.Limiter
	Dependencies   []Dependency
	UpstreamStates func() map[string]string
}

type Handler struct {
	workspaces     repository.WorkspaceRepository
	automations    repository.AutomationRepository
	reports        repository.ReportRepository
	credits        *credits.Service
	monitor        *credits.Monitor
	generator      Generator
	scanner        AdScanner
	cache          cache.Cache
	cacheTTL       time.Duration
	tokens         *auth.TokenStore
	runner         AutomationRunner
	generalLimiter ratelimit.Limiter
	aiLimiter      ratelimit.Limiter
	authLimiter    ratelimit.Limiter
	mux            *http.ServeMux
}

func NewHandler(cfg HandlerConfig) *Handler {
	cacheTTL := cfg.CacheTTL
	if cacheTTL == 0 {
		cacheTTL = 5 * time.Minute
	}

	h := &Handler{
		workspaces:     cfg.Workspaces,
		automations:    cfg.Automations,
		reports:        cfg.Reports,
		credits:        cfg.Credits,
		monitor:        cfg.Monitor,
		generator:      cfg.Generator,
		scanner:        cfg.Scanner,
		cache:          cfg.Cache,
		cacheTTL:       cacheTTL,
		tokens:         cfg.Tokens,
		runner:         cfg.Runner,
		generalLimiter: cfg.GeneralLimiter,
		aiLimiter:      cfg.AILimiter,
		authLimiter:    cfg.AuthLimiter,
		mux:            http.NewServeMux(),
	}

	h.mux.HandleFunc("POST /v1/creatives/generate", h.handleGenerateCreative)
	h.mux.HandleFunc("GET /v1/competitors/ads", h.handleCompetitorAds)
	h.mux.HandleFunc("GET /v1/reports", h.handleListReports)
	h.mux.HandleFunc("GET /v1/credits", h.handleCredits)
	h.mux.HandleFunc("POST /v1/auth/token", h.handleIssueToken)
	h.mux.HandleFunc("POST /v1/automations", h.handleCreateAutomation)
	h.mux.HandleFunc("GET /v1/automations", h.handleListAutomations)
	h.mux.HandleFunc("GET /v1/automations/{id}", h.handleGetAutomation)
	h.mux.HandleFunc("PUT /v1/automations/{id}", h.handleUpdateAutomation)
	h.mux.HandleFunc("DELETE /v1/automations/{id}", h.handleDeleteAutomation)
	h.mux.HandleFunc("POST /v1/automations/{id}/run", h.handleRunAutomation)
	h.mux.HandleFunc("GET /health", h.handleHealth)
	h.mux.HandleFunc("GET /health/live", h.handleHealthLive)
	h.mux.HandleFunc("GET /health/ready", handleReadiness(cfg.Dependencies, cfg.UpstreamStates, 5*time.Second))
	h.mux.Handle("GET /metrics", promhttp.Handler())

	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

// authenticate resolves the calling workspace from either a short-lived
// bearer token or a raw API key.
func (h *Handler) authenticate(r *http.Request) (*domain.Workspace, error) {
	credential := extractAPIKey(r)
	if credential == "" {
		return nil, domain.ErrInvalidAPIKey
	}

	if h.tokens != nil {
		if wsID, ok := h.tokens.Resolve(credential); ok {
			ws, err := h.workspaces.GetByID(r.Context(), wsID)
			if err != nil || !ws.Enabled {
				return nil, domain.ErrInvalidAPIKey
			}
			return ws, nil
		}
	}

	ws, err := h.workspaces.GetByAPIKey(r.Context(), credential)
	if err != nil {
		return nil, domain.ErrInvalidAPIKey
	}
	return ws, nil
}

// checkLimit applies one limiter class to the workspace and writes the
// rate-limit headers. Returns false after writing the 429 when over limit.
func (h *Handler) checkLimit(w http.ResponseWriter, ws *domain.Workspace, limiter ratelimit.Limiter, class string, limit int) bool {
	allowed, remaining := limiter.Allow(ws.ID, limit)

	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))

	if !allowed {
		metrics.RecordRateLimitHit(ws.ID, class)
		slog.Warn("rate limit exceeded", "workspace_id", ws.ID, "class", class)
		writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
		return false
	}
	return true
}

func (h *Handler) handleGenerateCreative(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	start := time.Now()

	requestID := r.Header.Get("X-Request-ID")
	if requestID == "" {
		requestID = uuid.New().String()
	}
	w.Header().Set("X-Request-ID", requestID)

	ws, err := h.authenticate(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "invalid API key")
		return
	}

	if !h.checkLimit(w, ws, h.aiLimiter, classAI, ws.AIRateLimitRPM) {
		metrics.RecordRequest(ws.ID, "creatives_generate", "429", time.Since(start).Seconds())
		return
	}

	var req domain.CreativeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Product == "" || req.Audience == "" {
		writeError(w, http.StatusBadRequest, "product and audience are required")
		return
	}

	providerHint := r.Header.Get("X-Provider")
	skipCache := r.Header.Get("X-Skip-Cache") == "true"

	ctx, span := telemetry.StartGeneration(ctx, ws.ID, requestID)
	defer span.End()

	var cacheKey string
	if h.cache != nil && !skipCache {
		cacheKey = cache.CreativeKey(req)
		if data, ok := h.cache.Get(ctx, cacheKey); ok {
			var result domain.CreativeResult
			if err := json.Unmarshal(data, &result); err == nil {
				metrics.CacheHits.WithLabelValues("creative").Inc()
				span.CacheHit(true)
				result.CacheHit = true
				result.CreditsCharged = 0
				result.LatencyMs = time.Since(start).Milliseconds()
				result.RequestID = requestID

				slog.Info("creative cache hit",
					"request_id", requestID,
					"workspace_id", ws.ID,
					"latency_ms", result.LatencyMs,
				)
				w.Header().Set("X-Cache", "HIT")
				writeJSON(w, http.StatusOK, result)
				metrics.RecordRequest(ws.ID, "creatives_generate", "200", time.Since(start).Seconds())
				return
			}
		}
		metrics.CacheMisses.WithLabelValues("creative").Inc()
	}

	span.CacheHit(false)

	charged, balance, err := h.credits.Charge(ctx, ws.ID, credits.OpCreativeGeneration, req.Model, requestID)
	if err != nil {
		if errors.Is(err, domain.ErrInsufficientCredits) {
			span.Fail(err)
			writeError(w, http.StatusPaymentRequired, "insufficient credits")
			metrics.RecordRequest(ws.ID, "creatives_generate", "402", time.Since(start).Seconds())
			return
		}
		slog.Error("charge failed", "error", err, "request_id", requestID)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	variants, model, providerID, err := h.generator.Generate(ctx, providerHint, req)
	if err != nil {
		// The provider never ran to completion, so give the credits back.
		if _, refundErr := h.credits.TopUp(ctx, ws.ID, charged, "refund:"+requestID); refundErr != nil {
			slog.Error("refund failed", "error", refundErr, "request_id", requestID)
		}
		metrics.CreativeGenerations.WithLabelValues(ws.ID, providerHint, req.Model, "error").Inc()
		span.Fail(err)
		slog.Error("creative generation failed", "error", err, "request_id", requestID, "workspace_id", ws.ID)
		writeError(w, http.StatusBadGateway, "creative generation failed")
		metrics.RecordRequest(ws.ID, "creatives_generate", "502", time.Since(start).Seconds())
		return
	}

	if h.monitor != nil {
		if fresh, err := h.workspaces.GetByID(ctx, ws.ID); err == nil {
			h.monitor.Check(ctx, fresh)
		}
	}

	result := domain.CreativeResult{
		ID:             uuid.New().String(),
		WorkspaceID:    ws.ID,
		Variants:       variants,
		Model:          model,
		Provider:       providerID,
		CreditsCharged: charged,
		LatencyMs:      time.Since(start).Milliseconds(),
		RequestID:      requestID,
		CreatedAt:      time.Now().UTC(),
	}

	if h.cache != nil && cacheKey != "" {
		if data, err := json.Marshal(result); err == nil {
			if err := h.cache.Set(ctx, cacheKey, data, h.cacheTTL); err != nil {
				slog.Warn("failed to cache creative", "error", err, "request_id", requestID)
			}
		}
	}

	span.Provider(providerID, model)
	span.Credits(charged, balance)

	metrics.CreativeGenerations.WithLabelValues(ws.ID, providerID, model, "ok").Inc()
	slog.Info("creative generated",
		"request_id", requestID,
		"trace_id", telemetry.TraceID(ctx),
		"workspace_id", ws.ID,
		"provider", providerID,
		"model", model,
		"credits_charged", charged,
		"balance", balance,
		"latency_ms", result.LatencyMs,
	)

	w.Header().Set("X-Cache", "MISS")
	writeJSON(w, http.StatusOK, result)
	metrics.RecordRequest(ws.ID, "creatives_generate", "200", time.Since(start).Seconds())
}

func (h *Handler) handleCompetitorAds(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	ws, err := h.authenticate(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "invalid API key")
		return
	}

	if !h.checkLimit(w, ws, h.generalLimiter, classGeneral, ws.RateLimitRPM) {
		metrics.RecordRequest(ws.ID, "competitors_ads", "429", time.Since(start).Seconds())
		return
	}

	query := r.URL.Query().Get("query")
	if query == "" {
		writeError(w, http.StatusBadRequest, "query is required")
		return
	}
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	if page < 0 {
		page = 0
	}

	ads, err := h.scanner.Search(r.Context(), ws.ID, query, page)
	if err != nil {
		if errors.Is(err, domain.ErrCircuitBreakerOpen) {
			writeError(w, http.StatusServiceUnavailable, "ad library temporarily unavailable")
			metrics.RecordRequest(ws.ID, "competitors_ads", "503", time.Since(start).Seconds())
			return
		}
		slog.Error("competitor search failed", "error", err, "workspace_id", ws.ID)
		writeError(w, http.StatusBadGateway, "ad library error")
		metrics.RecordRequest(ws.ID, "competitors_ads", "502", time.Since(start).Seconds())
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"ads":   ads,
		"count": len(ads),
		"page":  page,
	})
	metrics.RecordRequest(ws.ID, "competitors_ads", "200", time.Since(start).Seconds())
}

func (h *Handler) handleListReports(w http.ResponseWriter, r *http.Request) {
	ws, err := h.authenticate(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "invalid API key")
		return
	}

	if !h.checkLimit(w, ws, h.generalLimiter, classGeneral, ws.RateLimitRPM) {
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit <= 0 || limit > 100 {
		limit = 20
	}

	reports, err := h.reports.ListByWorkspace(r.Context(), ws.ID, limit)
	if err != nil {
		slog.Error("failed to list reports", "error", err, "workspace_id", ws.ID)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"reports": reports,
		"count":   len(reports),
	})
}

func (h *Handler) handleCredits(w http.ResponseWriter, r *http.Request) {
	ws, err := h.authenticate(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "invalid API key")
		return
	}

	if !h.checkLimit(w, ws, h.generalLimiter, classGeneral, ws.RateLimitRPM) {
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit <= 0 || limit > 100 {
		limit = 20
	}

	entries, err := h.credits.Recent(r.Context(), ws.ID, limit)
	if err != nil {
		slog.Error("failed to list ledger", "error", err, "workspace_id", ws.ID)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	fresh, err := h.workspaces.GetByID(r.Context(), ws.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"balance": fresh.CreditBalance,
		"plan":    fresh.Plan,
		"entries": entries,
	})
}

// handleIssueToken exchanges a workspace API key for a short-lived bearer
// token. It sits behind the strictest limiter class because it is the
// endpoint worth brute-forcing.
func (h *Handler) handleIssueToken(w http.ResponseWriter, r *http.Request) {
	apiKey := extractAPIKey(r)
	if apiKey == "" {
		writeError(w, http.StatusUnauthorized, "missing API key")
		return
	}

	ws, err := h.workspaces.GetByAPIKey(r.Context(), apiKey)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "invalid API key")
		return
	}

	if !h.checkLimit(w, ws, h.authLimiter, classAuth, ws.AuthRateLimitRPM) {
		return
	}

	token, expiresAt, err := h.tokens.Issue(ws.ID)
	if err != nil {
		slog.Error("token issue failed", "error", err, "workspace_id", ws.ID)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"token":      token,
		"expires_at": expiresAt.UTC().Format(time.RFC3339),
	})
}

type automationRequest struct {
	Name     string           `json:"name"`
	Type     string           `json:"type"`
	Schedule *domain.Schedule `json:"schedule"`
	Enabled  *bool            `json:"enabled,omitempty"`
}

func (h *Handler) handleCreateAutomation(w http.ResponseWriter, r *http.Request) {
	ws, err := h.authenticate(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "invalid API key")
		return
	}

	if !h.checkLimit(w, ws, h.generalLimiter, classGeneral, ws.RateLimitRPM) {
		return
	}

	var req automationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}
	typ := domain.AutomationType(req.Type)
	switch typ {
	case domain.AutomationReport, domain.AutomationCompetitorScan, domain.AutomationCreativeRefresh:
	default:
		writeError(w, http.StatusBadRequest, "unknown automation type")
		return
	}

	enabled := true
	if req.Enabled != nil {
		enabled = *req.Enabled
	}

	a := &domain.Automation{
		ID:          uuid.New().String(),
		WorkspaceID: ws.ID,
		Name:        req.Name,
		Type:        typ,
		Schedule:    req.Schedule,
		Enabled:     enabled,
		CreatedAt:   time.Now().UTC(),
		UpdatedAt:   time.Now().UTC(),
	}

	if err := h.automations.Create(r.Context(), a); err != nil {
		if errors.Is(err, domain.ErrInvalidSchedule) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		slog.Error("failed to create automation", "error", err, "workspace_id", ws.ID)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	slog.Info("automation created", "automation_id", a.ID, "workspace_id", ws.ID, "type", a.Type)
	writeJSON(w, http.StatusCreated, a)
}

func (h *Handler) handleListAutomations(w http.ResponseWriter, r *http.Request) {
	ws, err := h.authenticate(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "invalid API key")
		return
	}

	if !h.checkLimit(w, ws, h.generalLimiter, classGeneral, ws.RateLimitRPM) {
		return
	}

	automations, err := h.automations.ListByWorkspace(r.Context(), ws.ID)
	if err != nil {
		slog.Error("failed to list automations", "error", err, "workspace_id", ws.ID)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"automations": automations,
		"count":       len(automations),
	})
}

// loadWorkspaceAutomation fetches an automation and verifies it belongs to
// the calling workspace. Cross-workspace IDs read as not-found.
func (h *Handler) loadWorkspaceAutomation(w http.ResponseWriter, r *http.Request, ws *domain.Workspace) (*domain.Automation, bool) {
	a, err := h.automations.GetByID(r.Context(), r.PathValue("id"))
	if err != nil || a.WorkspaceID != ws.ID {
		writeError(w, http.StatusNotFound, "automation not found")
		return nil, false
	}
	return a, true
}

func (h *Handler) handleGetAutomation(w http.ResponseWriter, r *http.Request) {
	ws, err := h.authenticate(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "invalid API key")
		return
	}

	if !h.checkLimit(w, ws, h.generalLimiter, classGeneral, ws.RateLimitRPM) {
		return
	}

	a, ok := h.loadWorkspaceAutomation(w, r, ws)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (h *Handler) handleUpdateAutomation(w http.ResponseWriter, r *http.Request) {
	ws, err := h.authenticate(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "invalid API key")
		return
	}

	if !h.checkLimit(w, ws, h.generalLimiter, classGeneral, ws.RateLimitRPM) {
		return
	}

	a, ok := h.loadWorkspaceAutomation(w, r, ws)
	if !ok {
		return
	}

	var req automationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.Name != "" {
		a.Name = req.Name
	}
	if req.Schedule != nil {
		a.Schedule = req.Schedule
	}
	if req.Enabled != nil {
		a.Enabled = *req.Enabled
	}

	if err := h.automations.Update(r.Context(), a); err != nil {
		if errors.Is(err, domain.ErrInvalidSchedule) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		slog.Error("failed to update automation", "error", err, "automation_id", a.ID)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, http.StatusOK, a)
}

func (h *Handler) handleDeleteAutomation(w http.ResponseWriter, r *http.Request) {
	ws, err := h.authenticate(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "invalid API key")
		return
	}

	if !h.checkLimit(w, ws, h.generalLimiter, classGeneral, ws.RateLimitRPM) {
		return
	}

	a, ok := h.loadWorkspaceAutomation(w, r, ws)
	if !ok {
		return
	}

	if err := h.automations.Delete(r.Context(), a.ID); err != nil {
		writeError(w, http.StatusNotFound, "automation not found")
		return
	}

	slog.Info("automation deleted", "automation_id", a.ID, "workspace_id", ws.ID)
	w.WriteHeader(http.StatusNoContent)
}

// handleRunAutomation fires an automation immediately, outside its
// schedule. The run goes through the same executor as dispatched runs, so
// it charges credits and advances LastRunAt the same way.
func (h *Handler) handleRunAutomation(w http.ResponseWriter, r *http.Request) {
	ws, err := h.authenticate(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "invalid API key")
		return
	}

	if !h.checkLimit(w, ws, h.generalLimiter, classGeneral, ws.RateLimitRPM) {
		return
	}

	a, ok := h.loadWorkspaceAutomation(w, r, ws)
	if !ok {
		return
	}

	if err := h.runner.Execute(r.Context(), a); err != nil {
		if errors.Is(err, domain.ErrInsufficientCredits) {
			writeError(w, http.StatusPaymentRequired, "insufficient credits")
			return
		}
		slog.Error("manual automation run failed", "error", err, "automation_id", a.ID)
		writeError(w, http.StatusBadGateway, "automation run failed")
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{
		"automation_id": a.ID,
		"status":        "completed",
	})
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "healthy",
		"version": version,
	})
}

func (h *Handler) handleHealthLive(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func extractAPIKey(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return r.Header.Get("X-API-Key")
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"error": map[string]interface{}{
			"message": message,
			"type":    "error",
			"code":    status,
		},
	})
}
