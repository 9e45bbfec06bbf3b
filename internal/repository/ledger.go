package repository

import (
	"context"
	"sync"

	"github.com/adpulse/adpulse/internal/domain"
)

type LedgerRepository interface {
	Append(ctx context.Context, entry domain.CreditEntry) error
	ListRecent(ctx context.Context, workspaceID string, limit int) ([]domain.CreditEntry, error)
}

type ReportRepository interface {
	Create(ctx context.Context, report *domain.Report) error
	ListByWorkspace(ctx context.Context, workspaceID string, limit int) ([]*domain.Report, error)
}

type InMemoryLedgerRepository struct {
	mu      sync.Mutex
	entries map[string][]domain.CreditEntry
}

func NewInMemoryLedgerRepository() *InMemoryLedgerRepository {
	return &InMemoryLedgerRepository{
		entries: make(map[string][]domain.CreditEntry),
	}
}

func (r *InMemoryLedgerRepository) Append(ctx context.Context, entry domain.CreditEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.entries[entry.WorkspaceID] = append(r.entries[entry.WorkspaceID], entry)
	return nil
}

// ListRecent returns the newest entries first.
func (r *InMemoryLedgerRepository) ListRecent(ctx context.Context, workspaceID string, limit int) ([]domain.CreditEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	all := r.entries[workspaceID]
	if limit <= 0 || limit > len(all) {
		limit = len(all)
	}

	out := make([]domain.CreditEntry, 0, limit)
	for i := len(all) - 1; i >= len(all)-limit; i-- {
		out = append(out, all[i])
	}
	return out, nil
}

type InMemoryReportRepository struct {
	mu      sync.Mutex
	reports map[string][]*domain.Report
}

func NewInMemoryReportRepository() *InMemoryReportRepository {
	return &InMemoryReportRepository{
		reports: make(map[string][]*domain.Report),
	}
}

func (r *InMemoryReportRepository) Create(ctx context.Context, report *domain.Report) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.reports[report.WorkspaceID] = append(r.reports[report.WorkspaceID], report)
	return nil
}

func (r *InMemoryReportRepository) ListByWorkspace(ctx context.Context, workspaceID string, limit int) ([]*domain.Report, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	all := r.reports[workspaceID]
	if limit <= 0 || limit > len(all) {
		limit = len(all)
	}

	out := make([]*domain.Report, 0, limit)
	for i := len(all) - 1; i >= len(all)-limit; i-- {
		out = append(out, all[i])
	}
	return out, nil
}
