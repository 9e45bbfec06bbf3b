// Package automation executes scheduled workspace automations: report
// generation, competitor scans and creative refreshes.
package automation

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/adpulse/adpulse/internal/credits"
	"github.com/adpulse/adpulse/internal/domain"
	"github.com/adpulse/adpulse/internal/notifications"
	"github.com/adpulse/adpulse/internal/provider"
	"github.com/adpulse/adpulse/internal/queue"
	"github.com/adpulse/adpulse/internal/repository"
	"github.com/adpulse/adpulse/internal/router"
	"github.com/adpulse/adpulse/internal/scraper"
)

// AdScanner is what the executor needs from the competitor scraper.
type AdScanner interface {
	Search(ctx context.Context, workspaceID, query string, page int) ([]domain.CompetitorAd, error)
}

// Generator is the slice of the provider router used for creative refreshes.
type Generator interface {
	Generate(ctx context.Context, providerHint string, req domain.CreativeRequest) ([]domain.CreativeVariant, string, string, error)
}

const executeTimeout = 2 * time.Minute

// Executor runs one automation end to end: charge credits, perform the
// work for its type and persist LastRunAt. It owns the LastRunAt write;
// the dispatcher never touches it.
type Executor struct {
	workspaces  repository.WorkspaceRepository
	automations repository.AutomationRepository
	credits     *credits.Service
	generator   Generator
	scanner     AdScanner
	reportQueue queue.Queue
	notifier    notifications.Notifier
	now         func() time.Time
}

type Option func(*Executor)

func WithClock(now func() time.Time) Option {
	return func(e *Executor) { e.now = now }
}

func NewExecutor(
	workspaces repository.WorkspaceRepository,
	automations repository.AutomationRepository,
	creditSvc *credits.Service,
	generator Generator,
	scanner AdScanner,
	reportQueue queue.Queue,
	notifier notifications.Notifier,
	opts ...Option,
) *Executor {
	e := &Executor{
		workspaces:  workspaces,
		automations: automations,
		credits:     creditSvc,
		generator:   generator,
		scanner:     scanner,
		reportQueue: reportQueue,
		notifier:    notifier,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute charges the workspace, runs the automation's work and records the
// run timestamp. LastRunAt is written even when the work itself fails, so a
// charged attempt is never silently retried on the next poll.
func (e *Executor) Execute(ctx context.Context, a *domain.Automation) error {
	ctx, cancel := context.WithTimeout(ctx, executeTimeout)
	defer cancel()

	runAt := e.now().UTC()

	ws, err := e.workspaces.GetByID(ctx, a.WorkspaceID)
	if err != nil {
		return fmt.Errorf("load workspace: %w", err)
	}

	charged, balance, err := e.credits.Charge(ctx, ws.ID, operationFor(a.Type), "", "automation:"+a.ID)
	if err != nil {
		return fmt.Errorf("charge automation run: %w", err)
	}

	var runErr error
	var detail string
	switch a.Type {
	case domain.AutomationReport:
		detail, runErr = e.runReport(ctx, ws, a, runAt)
	case domain.AutomationCompetitorScan:
		detail, runErr = e.runCompetitorScan(ctx, ws)
	case domain.AutomationCreativeRefresh:
		detail, runErr = e.runCreativeRefresh(ctx, ws)
	default:
		runErr = fmt.Errorf("%w: unknown automation type %q", domain.ErrInvalidRequest, a.Type)
	}

	if err := e.automations.UpdateLastRun(ctx, a.ID, runAt); err != nil {
		slog.Error("failed to record automation run",
			"automation_id", a.ID,
			"workspace_id", a.WorkspaceID,
			"error", err,
		)
	}

	if runErr != nil {
		return runErr
	}

	slog.Info("automation run complete",
		"automation_id", a.ID,
		"workspace_id", a.WorkspaceID,
		"type", a.Type,
		"credits_charged", charged,
		"balance", balance,
	)

	if e.notifier != nil {
		notification := notifications.Notification{
			Type:        notifications.NotificationAutomationRun,
			WorkspaceID: ws.ID,
			Message:     fmt.Sprintf("%s %q: %s", a.Type, a.Name, detail),
			Data: map[string]interface{}{
				"automation_id":   a.ID,
				"credits_charged": charged,
			},
		}
		if err := e.notifier.Send(ctx, notification); err != nil {
			slog.Warn("failed to send automation notification", "automation_id", a.ID, "error", err)
		}
	}

	return nil
}

func (e *Executor) runReport(ctx context.Context, ws *domain.Workspace, a *domain.Automation, runAt time.Time) (string, error) {
	start := runAt.AddDate(0, 0, -7)
	if a.Schedule != nil && a.Schedule.Frequency == domain.FrequencyDaily {
		start = runAt.AddDate(0, 0, -1)
	}

	job := queue.ReportJob{
		ID:           uuid.New().String(),
		WorkspaceID:  ws.ID,
		AutomationID: a.ID,
		Kind:         domain.ReportPerformance,
		PeriodStart:  start,
		PeriodEnd:    runAt,
		CreatedAt:    runAt,
	}

	if err := e.reportQueue.Enqueue(ctx, job); err != nil {
		return "", fmt.Errorf("enqueue report job: %w", err)
	}
	return "performance report queued", nil
}

func (e *Executor) runCompetitorScan(ctx context.Context, ws *domain.Workspace) (string, error) {
	ads, err := e.scanner.Search(ctx, ws.ID, ws.Name, 0)
	if err != nil {
		return "", fmt.Errorf("competitor scan: %w", err)
	}
	return fmt.Sprintf("found %d active competitor ads", len(ads)), nil
}

func (e *Executor) runCreativeRefresh(ctx context.Context, ws *domain.Workspace) (string, error) {
	req := domain.CreativeRequest{
		Product:  ws.Name,
		Audience: "returning customers",
		Variants: provider.DefaultVariants,
	}

	variants, model, providerID, err := e.generator.Generate(ctx, "", req)
	if err != nil {
		return "", fmt.Errorf("creative refresh: %w", err)
	}
	return fmt.Sprintf("generated %d fresh variants via %s (%s)", len(variants), providerID, model), nil
}

func operationFor(t domain.AutomationType) credits.Operation {
	switch t {
	case domain.AutomationCompetitorScan:
		return credits.OpCompetitorScan
	case domain.AutomationCreativeRefresh:
		return credits.OpCreativeGeneration
	default:
		return credits.OpReport
	}
}

// compile-time check that the production scraper satisfies AdScanner
var _ AdScanner = (*scraper.Client)(nil)
var _ Generator = (*router.Router)(nil)
