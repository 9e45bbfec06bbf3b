package automation

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/adpulse/adpulse/internal/credits"
	"github.com/adpulse/adpulse/internal/domain"
	"github.com/adpulse/adpulse/internal/notifications"
	"github.com/adpulse/adpulse/internal/queue"
	"github.com/adpulse/adpulse/internal/repository"
)

type stubScanner struct {
	ads []domain.CompetitorAd
	err error
}

func (s *stubScanner) Search(ctx context.Context, workspaceID, query string, page int) ([]domain.CompetitorAd, error) {
	return s.ads, s.err
}

type stubGenerator struct {
	variants []domain.CreativeVariant
	err      error
}

func (g *stubGenerator) Generate(ctx context.Context, providerHint string, req domain.CreativeRequest) ([]domain.CreativeVariant, string, string, error) {
	if g.err != nil {
		return nil, "", "", g.err
	}
	return g.variants, "gpt-4o-mini", "openai", nil
}

type fixture struct {
	executor    *Executor
	workspaces  *repository.InMemoryWorkspaceRepository
	automations *repository.InMemoryAutomationRepository
	ledger      *repository.InMemoryLedgerRepository
	queue       *queue.InMemoryQueue
	notifier    *notifications.InMemoryNotifier
	scanner     *stubScanner
	generator   *stubGenerator
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		workspaces:  repository.NewInMemoryWorkspaceRepository(),
		automations: repository.NewInMemoryAutomationRepository(),
		ledger:      repository.NewInMemoryLedgerRepository(),
		queue:       queue.NewInMemoryQueue(),
		notifier:    notifications.NewInMemoryNotifier(),
		scanner:     &stubScanner{ads: []domain.CompetitorAd{{ID: "ad1"}}},
		generator:   &stubGenerator{variants: []domain.CreativeVariant{{Headline: "new"}}},
	}

	creditSvc := credits.NewService(f.workspaces, f.ledger, credits.NewPriceBook())
	f.executor = NewExecutor(
		f.workspaces, f.automations, creditSvc,
		f.generator, f.scanner, f.queue, f.notifier,
		WithClock(func() time.Time { return time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC) }),
	)
	return f
}

func (f *fixture) addAutomation(t *testing.T, typ domain.AutomationType) *domain.Automation {
	t.Helper()
	a := &domain.Automation{
		ID:          "auto-1",
		WorkspaceID: "default",
		Name:        "nightly",
		Type:        typ,
		Schedule:    &domain.Schedule{Frequency: domain.FrequencyDaily, Time: "09:00", Timezone: "UTC"},
		Enabled:     true,
	}
	if err := f.automations.Create(context.Background(), a); err != nil {
		t.Fatalf("create automation: %v", err)
	}
	return a
}

func TestExecute_ReportEnqueuesJob(t *testing.T) {
	f := newFixture(t)
	a := f.addAutomation(t, domain.AutomationReport)

	if err := f.executor.Execute(context.Background(), a); err != nil {
		t.Fatalf("execute: %v", err)
	}

	jobs, _ := f.queue.Dequeue(context.Background(), 10)
	if len(jobs) != 1 {
		t.Fatalf("expected 1 queued job, got %d", len(jobs))
	}
	if jobs[0].WorkspaceID != "default" || jobs[0].AutomationID != a.ID {
		t.Errorf("unexpected job: %+v", jobs[0])
	}
	if got := jobs[0].PeriodEnd.Sub(jobs[0].PeriodStart); got != 24*time.Hour {
		t.Errorf("daily report period = %v, want 24h", got)
	}
}

func TestExecute_UpdatesLastRunAt(t *testing.T) {
	f := newFixture(t)
	a := f.addAutomation(t, domain.AutomationCompetitorScan)

	if err := f.executor.Execute(context.Background(), a); err != nil {
		t.Fatalf("execute: %v", err)
	}

	got, err := f.automations.GetByID(context.Background(), a.ID)
	if err != nil {
		t.Fatalf("get automation: %v", err)
	}
	want := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	if got.LastRunAt == nil || !got.LastRunAt.Equal(want) {
		t.Errorf("LastRunAt = %v, want %v", got.LastRunAt, want)
	}
}

func TestExecute_ChargesCredits(t *testing.T) {
	f := newFixture(t)
	a := f.addAutomation(t, domain.AutomationCompetitorScan)

	if err := f.executor.Execute(context.Background(), a); err != nil {
		t.Fatalf("execute: %v", err)
	}

	ws, _ := f.workspaces.GetByID(context.Background(), "default")
	if ws.CreditBalance != 498 {
		t.Errorf("balance = %d, want 498 after competitor scan", ws.CreditBalance)
	}

	entries, _ := f.ledger.ListRecent(context.Background(), "default", 10)
	if len(entries) != 1 || entries[0].Delta != -2 {
		t.Errorf("unexpected ledger entries: %+v", entries)
	}
}

func TestExecute_InsufficientCreditsAborts(t *testing.T) {
	f := newFixture(t)
	a := f.addAutomation(t, domain.AutomationCreativeRefresh)

	// Drain the balance so the charge fails.
	ctx := context.Background()
	if _, err := f.workspaces.AdjustCredits(ctx, "default", -500); err != nil {
		t.Fatalf("drain credits: %v", err)
	}

	err := f.executor.Execute(ctx, a)
	if !errors.Is(err, domain.ErrInsufficientCredits) {
		t.Fatalf("expected ErrInsufficientCredits, got %v", err)
	}

	got, _ := f.automations.GetByID(ctx, a.ID)
	if got.LastRunAt != nil {
		t.Error("expected LastRunAt untouched when charge fails")
	}
}

func TestExecute_FailedRunStillRecordsAttempt(t *testing.T) {
	f := newFixture(t)
	f.scanner.err = errors.New("ad library down")
	a := f.addAutomation(t, domain.AutomationCompetitorScan)

	err := f.executor.Execute(context.Background(), a)
	if err == nil {
		t.Fatal("expected error from failed scan")
	}

	got, _ := f.automations.GetByID(context.Background(), a.ID)
	if got.LastRunAt == nil {
		t.Error("expected LastRunAt recorded for charged attempt")
	}
}

func TestExecute_NotifiesOnSuccess(t *testing.T) {
	f := newFixture(t)
	a := f.addAutomation(t, domain.AutomationCreativeRefresh)

	if err := f.executor.Execute(context.Background(), a); err != nil {
		t.Fatalf("execute: %v", err)
	}

	notifs := f.notifier.Sent()
	if len(notifs) != 1 {
		t.Fatalf("expected 1 notification, got %d", len(notifs))
	}
	if notifs[0].Type != notifications.NotificationAutomationRun {
		t.Errorf("notification type = %s, want automation_run", notifs[0].Type)
	}
	if notifs[0].WorkspaceID != "default" {
		t.Errorf("notification workspace = %s, want default", notifs[0].WorkspaceID)
	}
}
