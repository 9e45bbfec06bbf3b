package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/adpulse/adpulse/internal/auth"
	"github.com/adpulse/adpulse/internal/credits"
	"github.com/adpulse/adpulse/internal/crypto"
	"github.com/adpulse/adpulse/internal/domain"
	"github.com/adpulse/adpulse/internal/repository"
)

// AdminHandler serves the operator surface: workspace provisioning, API key
// rotation and credit top-ups. It is protected by basic auth with role
// checks and is meant to be bound to an internal listener, not the public one.
type AdminHandler struct {
	workspaces repository.WorkspaceRepository
	credits    *credits.Service
	encryptor  *crypto.Encryptor
	mux        *http.ServeMux
}

type AdminConfig struct {
	Workspaces repository.WorkspaceRepository
	Credits    *credits.Service
	Auth       *auth.Authenticator
	// Encryptor protects integration secrets (Slack webhook URLs) at rest.
	// Optional; when nil, secrets are stored as-is.
	Encryptor *crypto.Encryptor
}

func NewAdminHandler(cfg AdminConfig) *AdminHandler {
	h := &AdminHandler{
		workspaces: cfg.Workspaces,
		credits:    cfg.Credits,
		encryptor:  cfg.Encryptor,
		mux:        http.NewServeMux(),
	}

	rbac := auth.NewRBACMiddleware(cfg.Auth)

	read := func(next http.HandlerFunc) http.Handler {
		return rbac.RequireAuth(rbac.RequirePermission(auth.PermissionWorkspaceRead)(next))
	}
	write := func(next http.HandlerFunc) http.Handler {
		return rbac.RequireAuth(rbac.RequirePermission(auth.PermissionWorkspaceWrite)(next))
	}
	del := func(next http.HandlerFunc) http.Handler {
		return rbac.RequireAuth(rbac.RequirePermission(auth.PermissionWorkspaceDelete)(next))
	}

	h.mux.Handle("GET /admin/workspaces", read(h.handleListWorkspaces))
	h.mux.Handle("POST /admin/workspaces", write(h.handleCreateWorkspace))
	h.mux.Handle("GET /admin/workspaces/{id}", read(h.handleGetWorkspace))
	h.mux.Handle("PUT /admin/workspaces/{id}", write(h.handleUpdateWorkspace))
	h.mux.Handle("DELETE /admin/workspaces/{id}", del(h.handleDeleteWorkspace))
	h.mux.Handle("POST /admin/workspaces/{id}/rotate-key", write(h.handleRotateKey))
	h.mux.Handle("POST /admin/workspaces/{id}/credits", write(h.handleTopUp))

	return h
}

func (h *AdminHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

type workspaceRequest struct {
	Name             string  `json:"name"`
	Plan             string  `json:"plan,omitempty"`
	CreditBalance    *int64  `json:"credit_balance,omitempty"`
	RateLimitRPM     *int    `json:"rate_limit_rpm,omitempty"`
	AIRateLimitRPM   *int    `json:"ai_rate_limit_rpm,omitempty"`
	AuthRateLimitRPM *int    `json:"auth_rate_limit_rpm,omitempty"`
	SlackWebhookURL  *string `json:"slack_webhook_url,omitempty"`
	MetaAccessToken  *string `json:"meta_access_token,omitempty"`
	MetaAdAccountID  *string `json:"meta_ad_account_id,omitempty"`
	Enabled          *bool   `json:"enabled,omitempty"`
}

func (h *AdminHandler) handleListWorkspaces(w http.ResponseWriter, r *http.Request) {
	workspaces, err := h.workspaces.List(r.Context())
	if err != nil {
		slog.Error("failed to list workspaces", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	for _, ws := range workspaces {
		ws.APIKey = ""
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"workspaces": workspaces,
		"count":      len(workspaces),
	})
}

func (h *AdminHandler) handleCreateWorkspace(w http.ResponseWriter, r *http.Request) {
	var req workspaceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}

	ws := &domain.Workspace{
		ID:               uuid.New().String(),
		Name:             req.Name,
		Plan:             "starter",
		APIKey:           generateAPIKey(),
		CreditBalance:    100,
		RateLimitRPM:     60,
		AIRateLimitRPM:   20,
		AuthRateLimitRPM: 10,
		Enabled:          true,
		CreatedAt:        time.Now().UTC(),
		UpdatedAt:        time.Now().UTC(),
	}
	if req.Plan != "" {
		ws.Plan = req.Plan
	}
	if req.CreditBalance != nil {
		ws.CreditBalance = *req.CreditBalance
	}
	applyWorkspaceLimits(ws, &req)
	if err := h.applySecrets(ws, &req); err != nil {
		if errors.Is(err, errEncryptionDisabled) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	ws.APIKeyHash = crypto.HashAPIKey(ws.APIKey)

	if err := h.workspaces.Create(r.Context(), ws); err != nil {
		slog.Error("failed to create workspace", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	user, _ := auth.UserFromContext(r.Context())
	slog.Info("workspace created", "workspace_id", ws.ID, "name", ws.Name, "admin", adminName(user))

	// The raw API key is only returned once, at creation.
	writeJSON(w, http.StatusCreated, ws)
}

func (h *AdminHandler) handleGetWorkspace(w http.ResponseWriter, r *http.Request) {
	ws, err := h.workspaces.GetByID(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusNotFound, "workspace not found")
		return
	}
	ws.APIKey = ""
	writeJSON(w, http.StatusOK, ws)
}

func (h *AdminHandler) handleUpdateWorkspace(w http.ResponseWriter, r *http.Request) {
	ws, err := h.workspaces.GetByID(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusNotFound, "workspace not found")
		return
	}

	var req workspaceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.Name != "" {
		ws.Name = req.Name
	}
	if req.Plan != "" {
		ws.Plan = req.Plan
	}
	if req.Enabled != nil {
		ws.Enabled = *req.Enabled
	}
	applyWorkspaceLimits(ws, &req)
	if err := h.applySecrets(ws, &req); err != nil {
		if errors.Is(err, errEncryptionDisabled) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	ws.UpdatedAt = time.Now().UTC()

	if err := h.workspaces.Update(r.Context(), ws); err != nil {
		slog.Error("failed to update workspace", "error", err, "workspace_id", ws.ID)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	ws.APIKey = ""
	writeJSON(w, http.StatusOK, ws)
}

func (h *AdminHandler) handleDeleteWorkspace(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := h.workspaces.Delete(r.Context(), id); err != nil {
		writeError(w, http.StatusNotFound, "workspace not found")
		return
	}

	user, _ := auth.UserFromContext(r.Context())
	slog.Info("workspace deleted", "workspace_id", id, "admin", adminName(user))
	w.WriteHeader(http.StatusNoContent)
}

func (h *AdminHandler) handleRotateKey(w http.ResponseWriter, r *http.Request) {
	ws, err := h.workspaces.GetByID(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusNotFound, "workspace not found")
		return
	}

	ws.APIKey = generateAPIKey()
	ws.APIKeyHash = crypto.HashAPIKey(ws.APIKey)
	ws.UpdatedAt = time.Now().UTC()

	if err := h.workspaces.Update(r.Context(), ws); err != nil {
		slog.Error("failed to rotate key", "error", err, "workspace_id", ws.ID)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	user, _ := auth.UserFromContext(r.Context())
	slog.Info("api key rotated", "workspace_id", ws.ID, "admin", adminName(user))

	writeJSON(w, http.StatusOK, map[string]string{
		"workspace_id": ws.ID,
		"api_key":      ws.APIKey,
	})
}

type topUpRequest struct {
	Amount int64  `json:"amount"`
	Ref    string `json:"ref,omitempty"`
}

func (h *AdminHandler) handleTopUp(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var req topUpRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Amount <= 0 {
		writeError(w, http.StatusBadRequest, "amount must be positive")
		return
	}

	ref := req.Ref
	if ref == "" {
		ref = "admin-topup:" + uuid.New().String()
	}

	balance, err := h.credits.TopUp(r.Context(), id, req.Amount, ref)
	if err != nil {
		if errors.Is(err, domain.ErrWorkspaceNotFound) {
			writeError(w, http.StatusNotFound, "workspace not found")
			return
		}
		slog.Error("top-up failed", "error", err, "workspace_id", id)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	user, _ := auth.UserFromContext(r.Context())
	slog.Info("credits topped up",
		"workspace_id", id,
		"amount", req.Amount,
		"balance", balance,
		"admin", adminName(user),
	)

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"workspace_id": id,
		"balance":      balance,
	})
}

func applyWorkspaceLimits(ws *domain.Workspace, req *workspaceRequest) {
	if req.RateLimitRPM != nil {
		ws.RateLimitRPM = *req.RateLimitRPM
	}
	if req.AIRateLimitRPM != nil {
		ws.AIRateLimitRPM = *req.AIRateLimitRPM
	}
	if req.AuthRateLimitRPM != nil {
		ws.AuthRateLimitRPM = *req.AuthRateLimitRPM
	}
	if req.MetaAdAccountID != nil {
		ws.MetaAdAccountID = *req.MetaAdAccountID
	}
}

// errEncryptionDisabled rejects secret writes when the service runs
// without an encryption key, rather than persisting credentials in the
// clear.
var errEncryptionDisabled = errors.New("integration secrets require an encryption key")

// applySecrets folds updated credentials into the workspace's sealed
// envelope. Fields the request does not mention keep their sealed value;
// setting a field to the empty string clears it.
func (h *AdminHandler) applySecrets(ws *domain.Workspace, req *workspaceRequest) error {
	if req.SlackWebhookURL == nil && req.MetaAccessToken == nil {
		return nil
	}
	if h.encryptor == nil {
		return errEncryptionDisabled
	}

	secrets, err := h.encryptor.OpenSecrets(ws.SealedSecrets)
	if err != nil {
		slog.Error("failed to open secrets envelope", "error", err, "workspace_id", ws.ID)
		return err
	}

	if req.SlackWebhookURL != nil {
		secrets.SlackWebhookURL = *req.SlackWebhookURL
	}
	if req.MetaAccessToken != nil {
		secrets.MetaAccessToken = *req.MetaAccessToken
	}

	sealed, err := h.encryptor.SealSecrets(secrets)
	if err != nil {
		slog.Error("failed to seal secrets envelope", "error", err, "workspace_id", ws.ID)
		return err
	}
	ws.SealedSecrets = sealed
	return nil
}

func adminName(user *auth.AdminUser) string {
	if user == nil {
		return "unknown"
	}
	return user.Username
}

func generateAPIKey() string {
	return "ap-" + uuid.New().String()
}
