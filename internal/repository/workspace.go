package repository

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"

	"github.com/adpulse/adpulse/internal/domain"
)

type WorkspaceRepository interface {
	GetByAPIKey(ctx context.Context, apiKey string) (*domain.Workspace, error)
	GetByID(ctx context.Context, id string) (*domain.Workspace, error)
	Create(ctx context.Context, ws *domain.Workspace) error
	Update(ctx context.Context, ws *domain.Workspace) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context) ([]*domain.Workspace, error)
	// AdjustCredits applies delta to the workspace balance and returns the
	// new balance. A spend that would take the balance negative fails with
	// ErrInsufficientCredits and leaves the balance untouched.
	AdjustCredits(ctx context.Context, id string, delta int64) (int64, error)
}

type InMemoryWorkspaceRepository struct {
	mu         sync.RWMutex
	workspaces map[string]*domain.Workspace
	byKey      map[string]string
}

func NewInMemoryWorkspaceRepository() *InMemoryWorkspaceRepository {
	repo := &InMemoryWorkspaceRepository{
		workspaces: make(map[string]*domain.Workspace),
		byKey:      make(map[string]string),
	}

	defaultWS := &domain.Workspace{
		ID:               "default",
		Name:             "default",
		Plan:             "starter",
		APIKeyHash:       hashAPIKey("ap-default-key"),
		CreditBalance:    500,
		RateLimitRPM:     60,
		AIRateLimitRPM:   20,
		AuthRateLimitRPM: 10,
		Enabled:          true,
		CreatedAt:        time.Now(),
		UpdatedAt:        time.Now(),
	}
	repo.workspaces[defaultWS.ID] = defaultWS
	repo.byKey[defaultWS.APIKeyHash] = defaultWS.ID

	return repo
}

func (r *InMemoryWorkspaceRepository) GetByAPIKey(ctx context.Context, apiKey string) (*domain.Workspace, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byKey[hashAPIKey(apiKey)]
	if !ok {
		return nil, domain.ErrWorkspaceNotFound
	}

	ws, ok := r.workspaces[id]
	if !ok || !ws.Enabled {
		return nil, domain.ErrWorkspaceNotFound
	}

	return cloneWorkspace(ws), nil
}

func (r *InMemoryWorkspaceRepository) GetByID(ctx context.Context, id string) (*domain.Workspace, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ws, ok := r.workspaces[id]
	if !ok {
		return nil, domain.ErrWorkspaceNotFound
	}

	return cloneWorkspace(ws), nil
}

func (r *InMemoryWorkspaceRepository) Create(ctx context.Context, ws *domain.Workspace) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.workspaces[ws.ID] = cloneWorkspace(ws)
	r.byKey[ws.APIKeyHash] = ws.ID

	return nil
}

func (r *InMemoryWorkspaceRepository) Update(ctx context.Context, ws *domain.Workspace) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.workspaces[ws.ID]
	if !ok {
		return domain.ErrWorkspaceNotFound
	}

	if existing.APIKeyHash != ws.APIKeyHash {
		delete(r.byKey, existing.APIKeyHash)
		r.byKey[ws.APIKeyHash] = ws.ID
	}

	ws.UpdatedAt = time.Now()
	r.workspaces[ws.ID] = cloneWorkspace(ws)

	return nil
}

func (r *InMemoryWorkspaceRepository) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	ws, ok := r.workspaces[id]
	if !ok {
		return domain.ErrWorkspaceNotFound
	}

	delete(r.byKey, ws.APIKeyHash)
	delete(r.workspaces, id)

	return nil
}

func (r *InMemoryWorkspaceRepository) List(ctx context.Context) ([]*domain.Workspace, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*domain.Workspace, 0, len(r.workspaces))
	for _, ws := range r.workspaces {
		out = append(out, cloneWorkspace(ws))
	}
	return out, nil
}

// cloneWorkspace keeps callers from mutating the stored record through the
// returned pointer.
func cloneWorkspace(ws *domain.Workspace) *domain.Workspace {
	c := *ws
	return &c
}

func (r *InMemoryWorkspaceRepository) AdjustCredits(ctx context.Context, id string, delta int64) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ws, ok := r.workspaces[id]
	if !ok {
		return 0, domain.ErrWorkspaceNotFound
	}

	next := ws.CreditBalance + delta
	if next < 0 {
		return ws.CreditBalance, domain.ErrInsufficientCredits
	}

	ws.CreditBalance = next
	ws.UpdatedAt = time.Now()

	return next, nil
}

func hashAPIKey(apiKey string) string {
	h := sha256.Sum256([]byte(apiKey))
	return hex.EncodeToString(h[:])
}
