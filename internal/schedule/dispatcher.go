package schedule

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/adpulse/adpulse/internal/domain"
	"github.com/adpulse/adpulse/internal/metrics"
)

// Executor runs a due automation. Implementations own their timeout policy
// and persist LastRunAt after a run; the dispatcher only decides and fires.
type Executor interface {
	Execute(ctx context.Context, a *domain.Automation) error
}

// AutomationSource loads the candidate set once per cycle.
type AutomationSource interface {
	ListActive(ctx context.Context) ([]*domain.Automation, error)
}

type RunResult struct {
	AutomationID string
	Err          error
}

type CycleSummary struct {
	Evaluated int
	Due       int
	Succeeded int
	Failed    int
	Results   []RunResult
}

// Dispatcher periodically loads active automations, filters them with
// IsAutomationDue and executes the due ones concurrently. Each cycle is
// independent and idempotent: the evaluator's re-run gate keeps a poll
// from firing an automation twice inside one match window.
type Dispatcher struct {
	source   AutomationSource
	executor Executor
	interval time.Duration
	now      func() time.Time
}

type DispatcherOption func(*Dispatcher)

func WithDispatcherClock(now func() time.Time) DispatcherOption {
	return func(d *Dispatcher) { d.now = now }
}

func NewDispatcher(source AutomationSource, executor Executor, interval time.Duration, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		source:   source,
		executor: executor,
		interval: interval,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Run polls until ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context) {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	slog.Info("automation dispatcher started", "interval", d.interval)

	for {
		select {
		case <-ctx.Done():
			slog.Info("automation dispatcher stopped")
			return
		case <-ticker.C:
			d.RunCycle(ctx)
		}
	}
}

// RunCycle evaluates every active automation against the current instant
// and executes all due ones concurrently. Failures are isolated per
// automation; no run waits on another.
func (d *Dispatcher) RunCycle(ctx context.Context) CycleSummary {
	now := d.now()

	automations, err := d.source.ListActive(ctx)
	if err != nil {
		slog.Error("failed to load active automations", "error", err)
		return CycleSummary{}
	}

	var due []*domain.Automation
	for _, a := range automations {
		if IsAutomationDue(a, d.localNow(a, now)) {
			due = append(due, a)
		}
	}

	summary := CycleSummary{
		Evaluated: len(automations),
		Due:       len(due),
		Results:   make([]RunResult, len(due)),
	}

	var wg sync.WaitGroup
	for i, a := range due {
		wg.Add(1)
		go func(i int, a *domain.Automation) {
			defer wg.Done()
			err := d.executor.Execute(ctx, a)
			summary.Results[i] = RunResult{AutomationID: a.ID, Err: err}
			if err != nil {
				slog.Error("automation run failed",
					"automation_id", a.ID,
					"workspace_id", a.WorkspaceID,
					"type", a.Type,
					"error", err,
				)
				metrics.AutomationRuns.WithLabelValues(string(a.Type), "error").Inc()
			} else {
				metrics.AutomationRuns.WithLabelValues(string(a.Type), "ok").Inc()
			}
		}(i, a)
	}
	wg.Wait()

	for _, r := range summary.Results {
		if r.Err != nil {
			summary.Failed++
		} else {
			summary.Succeeded++
		}
	}

	if summary.Due > 0 {
		slog.Info("dispatcher cycle complete",
			"evaluated", summary.Evaluated,
			"due", summary.Due,
			"succeeded", summary.Succeeded,
			"failed", summary.Failed,
		)
	}

	return summary
}

// localNow shifts now into the automation's configured timezone so the
// timezone-naive evaluator sees local wall-clock time. An empty or (stale)
// unloadable zone falls back to UTC; creation-time validation keeps the
// latter from happening in practice.
func (d *Dispatcher) localNow(a *domain.Automation, now time.Time) time.Time {
	if a.Schedule == nil || a.Schedule.Timezone == "" {
		return now.UTC()
	}
	loc, err := time.LoadLocation(a.Schedule.Timezone)
	if err != nil {
		return now.UTC()
	}
	return now.In(loc)
}
