package credits

import (
	"context"
	"time"

	"github.com/adpulse/adpulse/internal/domain"
	"github.com/adpulse/adpulse/internal/metrics"
	"github.com/adpulse/adpulse/internal/repository"
	"github.com/google/uuid"
)

// Service charges and credits workspaces. Every balance change goes
// through the workspace repository's conditional adjust plus a ledger
// entry, so the ledger always explains the balance.
type Service struct {
	workspaces repository.WorkspaceRepository
	ledger     repository.LedgerRepository
	pricing    *PriceBook
}

func NewService(workspaces repository.WorkspaceRepository, ledger repository.LedgerRepository, pricing *PriceBook) *Service {
	return &Service{
		workspaces: workspaces,
		ledger:     ledger,
		pricing:    pricing,
	}
}

// Charge deducts the price of op from the workspace and records it.
// Returns the credits charged and the balance afterward. Callers must not
// perform the metered work when this fails with ErrInsufficientCredits.
func (s *Service) Charge(ctx context.Context, workspaceID string, op Operation, model, ref string) (int64, int64, error) {
	price := s.pricing.Price(op, model)
	if price == 0 {
		ws, err := s.workspaces.GetByID(ctx, workspaceID)
		if err != nil {
			return 0, 0, err
		}
		return 0, ws.CreditBalance, nil
	}

	balance, err := s.workspaces.AdjustCredits(ctx, workspaceID, -price)
	if err != nil {
		return 0, 0, err
	}

	entry := domain.CreditEntry{
		ID:          uuid.New().String(),
		WorkspaceID: workspaceID,
		Delta:       -price,
		Balance:     balance,
		Reason:      string(op),
		Ref:         ref,
		CreatedAt:   time.Now(),
	}
	if err := s.ledger.Append(ctx, entry); err != nil {
		return price, balance, err
	}

	metrics.RecordCreditsSpent(workspaceID, string(op), price)

	return price, balance, nil
}

// TopUp adds purchased credits. The payment processor callback is the only
// expected caller; it passes its charge id as ref.
func (s *Service) TopUp(ctx context.Context, workspaceID string, amount int64, ref string) (int64, error) {
	balance, err := s.workspaces.AdjustCredits(ctx, workspaceID, amount)
	if err != nil {
		return 0, err
	}

	entry := domain.CreditEntry{
		ID:          uuid.New().String(),
		WorkspaceID: workspaceID,
		Delta:       amount,
		Balance:     balance,
		Reason:      "top_up",
		Ref:         ref,
		CreatedAt:   time.Now(),
	}
	return balance, s.ledger.Append(ctx, entry)
}

func (s *Service) Recent(ctx context.Context, workspaceID string, limit int) ([]domain.CreditEntry, error) {
	return s.ledger.ListRecent(ctx, workspaceID, limit)
}
