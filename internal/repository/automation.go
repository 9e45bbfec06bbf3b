package repository

import (
	"context"
	"sync"
	"time"

	"github.com/adpulse/adpulse/internal/domain"
	"github.com/adpulse/adpulse/internal/schedule"
)

type AutomationRepository interface {
	Create(ctx context.Context, a *domain.Automation) error
	GetByID(ctx context.Context, id string) (*domain.Automation, error)
	ListByWorkspace(ctx context.Context, workspaceID string) ([]*domain.Automation, error)
	// ListActive returns every enabled automation across all workspaces;
	// the dispatcher calls this once per cycle.
	ListActive(ctx context.Context) ([]*domain.Automation, error)
	Update(ctx context.Context, a *domain.Automation) error
	// UpdateLastRun records a completed run. Writes that would move
	// LastRunAt backwards are dropped so the timestamp stays monotonic.
	UpdateLastRun(ctx context.Context, id string, runAt time.Time) error
	Delete(ctx context.Context, id string) error
}

type InMemoryAutomationRepository struct {
	mu          sync.RWMutex
	automations map[string]*domain.Automation
}

func NewInMemoryAutomationRepository() *InMemoryAutomationRepository {
	return &InMemoryAutomationRepository{
		automations: make(map[string]*domain.Automation),
	}
}

// Create validates the schedule before persisting so the due-schedule
// evaluator never sees a malformed time string or weekday name.
func (r *InMemoryAutomationRepository) Create(ctx context.Context, a *domain.Automation) error {
	if err := schedule.ValidateSchedule(a.Schedule); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.automations[a.ID] = a
	return nil
}

func (r *InMemoryAutomationRepository) GetByID(ctx context.Context, id string) (*domain.Automation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.automations[id]
	if !ok {
		return nil, domain.ErrAutomationNotFound
	}
	return a, nil
}

func (r *InMemoryAutomationRepository) ListByWorkspace(ctx context.Context, workspaceID string) ([]*domain.Automation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*domain.Automation
	for _, a := range r.automations {
		if a.WorkspaceID == workspaceID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (r *InMemoryAutomationRepository) ListActive(ctx context.Context) ([]*domain.Automation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*domain.Automation
	for _, a := range r.automations {
		if a.Enabled {
			out = append(out, a)
		}
	}
	return out, nil
}

func (r *InMemoryAutomationRepository) Update(ctx context.Context, a *domain.Automation) error {
	if err := schedule.ValidateSchedule(a.Schedule); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.automations[a.ID]; !ok {
		return domain.ErrAutomationNotFound
	}

	a.UpdatedAt = time.Now()
	r.automations[a.ID] = a
	return nil
}

func (r *InMemoryAutomationRepository) UpdateLastRun(ctx context.Context, id string, runAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.automations[id]
	if !ok {
		return domain.ErrAutomationNotFound
	}

	if a.LastRunAt != nil && runAt.Before(*a.LastRunAt) {
		return nil
	}

	a.LastRunAt = &runAt
	a.UpdatedAt = time.Now()
	return nil
}

func (r *InMemoryAutomationRepository) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.automations[id]; !ok {
		return domain.ErrAutomationNotFound
	}

	delete(r.automations, id)
	return nil
}
