package automation

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/adpulse/adpulse/internal/domain"
	"github.com/adpulse/adpulse/internal/queue"
	"github.com/adpulse/adpulse/internal/repository"
)

const (
	workerBatchSize = 10
	workerInterval  = 30 * time.Second
)

// ReportWorker drains the report queue and persists finished reports.
// It runs alongside the dispatcher in the same process but stays decoupled
// through the queue, so it can move to its own deployment later.
type ReportWorker struct {
	queue    queue.Queue
	reports  repository.ReportRepository
	interval time.Duration
	now      func() time.Time
}

type WorkerOption func(*ReportWorker)

func WithWorkerInterval(d time.Duration) WorkerOption {
	return func(w *ReportWorker) { w.interval = d }
}

func WithWorkerClock(now func() time.Time) WorkerOption {
	return func(w *ReportWorker) { w.now = now }
}

func NewReportWorker(q queue.Queue, reports repository.ReportRepository, opts ...WorkerOption) *ReportWorker {
	w := &ReportWorker{
		queue:    q,
		reports:  reports,
		interval: workerInterval,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run polls the queue until ctx is cancelled.
func (w *ReportWorker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	slog.Info("report worker started", "interval", w.interval)

	for {
		select {
		case <-ctx.Done():
			slog.Info("report worker stopped")
			return
		case <-ticker.C:
			w.Drain(ctx)
		}
	}
}

// Drain processes one batch of queued jobs. Each job is independent; a
// failure leaves the message on the queue for redelivery.
func (w *ReportWorker) Drain(ctx context.Context) int {
	jobs, err := w.queue.Dequeue(ctx, workerBatchSize)
	if err != nil {
		slog.Error("failed to dequeue report jobs", "error", err)
		return 0
	}

	processed := 0
	for _, job := range jobs {
		if err := w.process(ctx, job); err != nil {
			slog.Error("report job failed",
				"job_id", job.ID,
				"workspace_id", job.WorkspaceID,
				"error", err,
			)
			continue
		}
		if job.ReceiptHandle != "" {
			if err := w.queue.Delete(ctx, job.ReceiptHandle); err != nil {
				slog.Warn("failed to delete report job", "job_id", job.ID, "error", err)
			}
		}
		processed++
	}

	return processed
}

func (w *ReportWorker) process(ctx context.Context, job queue.ReportJob) error {
	report := &domain.Report{
		ID:           job.ID,
		WorkspaceID:  job.WorkspaceID,
		AutomationID: job.AutomationID,
		Kind:         job.Kind,
		PeriodStart:  job.PeriodStart,
		PeriodEnd:    job.PeriodEnd,
		Summary:      summarize(job),
		GeneratedAt:  w.now().UTC(),
	}

	if err := w.reports.Create(ctx, report); err != nil {
		return fmt.Errorf("persist report: %w", err)
	}
	return nil
}

func summarize(job queue.ReportJob) string {
	days := int(job.PeriodEnd.Sub(job.PeriodStart).Hours() / 24)
	if days < 1 {
		days = 1
	}
	return fmt.Sprintf("%s report covering %d day(s) ending %s",
		job.Kind, days, job.PeriodEnd.Format("2006-01-02"))
}
