package repository

import (
	"context"
	"testing"
	"time"

	"github.com/adpulse/adpulse/internal/domain"
)

func TestInMemoryWorkspaceRepository_GetByAPIKey(t *testing.T) {
	repo := NewInMemoryWorkspaceRepository()
	ctx := context.Background()

	ws, err := repo.GetByAPIKey(ctx, "ap-default-key")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ws.ID != "default" {
		t.Errorf("workspace ID = %s, want default", ws.ID)
	}
}

func TestInMemoryWorkspaceRepository_GetByAPIKey_NotFound(t *testing.T) {
	repo := NewInMemoryWorkspaceRepository()

	_, err := repo.GetByAPIKey(context.Background(), "invalid-key")
	if err != domain.ErrWorkspaceNotFound {
		t.Errorf("error = %v, want ErrWorkspaceNotFound", err)
	}
}

func TestInMemoryWorkspaceRepository_CreateAndDelete(t *testing.T) {
	repo := NewInMemoryWorkspaceRepository()
	ctx := context.Background()

	ws := &domain.Workspace{
		ID:            "ws-test",
		Name:          "Test Workspace",
		APIKeyHash:    hashAPIKey("ap-test-key"),
		CreditBalance: 100,
		Enabled:       true,
		CreatedAt:     time.Now(),
		UpdatedAt:     time.Now(),
	}

	if err := repo.Create(ctx, ws); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	got, err := repo.GetByAPIKey(ctx, "ap-test-key")
	if err != nil {
		t.Fatalf("GetByAPIKey() error = %v", err)
	}
	if got.ID != "ws-test" {
		t.Errorf("workspace ID = %s, want ws-test", got.ID)
	}

	if err := repo.Delete(ctx, "ws-test"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := repo.GetByAPIKey(ctx, "ap-test-key"); err != domain.ErrWorkspaceNotFound {
		t.Errorf("lookup after delete = %v, want ErrWorkspaceNotFound", err)
	}
}

func TestInMemoryWorkspaceRepository_DisabledWorkspaceHidden(t *testing.T) {
	repo := NewInMemoryWorkspaceRepository()
	ctx := context.Background()

	ws, _ := repo.GetByID(ctx, "default")
	ws.Enabled = false
	if err := repo.Update(ctx, ws); err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	if _, err := repo.GetByAPIKey(ctx, "ap-default-key"); err != domain.ErrWorkspaceNotFound {
		t.Errorf("disabled workspace lookup = %v, want ErrWorkspaceNotFound", err)
	}
}

func TestInMemoryWorkspaceRepository_AdjustCredits(t *testing.T) {
	repo := NewInMemoryWorkspaceRepository()
	ctx := context.Background()

	balance, err := repo.AdjustCredits(ctx, "default", -100)
	if err != nil {
		t.Fatalf("AdjustCredits() error = %v", err)
	}
	if balance != 400 {
		t.Errorf("balance after spend = %d, want 400", balance)
	}

	balance, err = repo.AdjustCredits(ctx, "default", 50)
	if err != nil {
		t.Fatalf("AdjustCredits() error = %v", err)
	}
	if balance != 450 {
		t.Errorf("balance after top-up = %d, want 450", balance)
	}
}

func TestInMemoryWorkspaceRepository_AdjustCredits_Overdraw(t *testing.T) {
	repo := NewInMemoryWorkspaceRepository()
	ctx := context.Background()

	balance, err := repo.AdjustCredits(ctx, "default", -501)
	if err != domain.ErrInsufficientCredits {
		t.Errorf("error = %v, want ErrInsufficientCredits", err)
	}
	if balance != 500 {
		t.Errorf("balance must be untouched on overdraw, got %d", balance)
	}
}
