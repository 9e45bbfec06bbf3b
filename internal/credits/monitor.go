package credits

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/adpulse/adpulse/internal/domain"
)

type AlertLevel string

const (
	AlertLevelLow      AlertLevel = "low"
	AlertLevelCritical AlertLevel = "critical"
	AlertLevelEmpty    AlertLevel = "empty"
)

type Alert struct {
	WorkspaceID string
	Level       AlertLevel
	Balance     int64
	Allowance   int64
	Timestamp   time.Time
}

type AlertHandler func(alert Alert)

// Thresholds are fractions of the plan's monthly credit allowance.
type Thresholds struct {
	Low      float64
	Critical float64
}

func DefaultThresholds() Thresholds {
	return Thresholds{
		Low:      0.2,
		Critical: 0.05,
	}
}

var planAllowances = map[string]int64{
	"starter": 500,
	"growth":  2000,
	"scale":   10000,
}

// Monitor raises low-balance alerts as workspaces spend down their
// credits. Alerts fire once per level transition; the deduplicator keeps
// repeated checks at the same level quiet.
type Monitor struct {
	mu         sync.Mutex
	thresholds Thresholds
	dedup      AlertDeduplicator
	handlers   []AlertHandler
}

func NewMonitor(thresholds Thresholds, dedup AlertDeduplicator) *Monitor {
	return &Monitor{
		thresholds: thresholds,
		dedup:      dedup,
	}
}

func (m *Monitor) OnAlert(handler AlertHandler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers = append(m.handlers, handler)
}

// Check evaluates a workspace's balance and dispatches an alert when it
// has crossed into a new (worse or better-but-still-alerting) level.
// Returns the alert that was dispatched, or nil.
func (m *Monitor) Check(ctx context.Context, ws *domain.Workspace) *Alert {
	allowance, ok := planAllowances[ws.Plan]
	if !ok || allowance <= 0 {
		return nil
	}

	ratio := float64(ws.CreditBalance) / float64(allowance)

	var level AlertLevel
	switch {
	case ws.CreditBalance <= 0:
		level = AlertLevelEmpty
	case ratio <= m.thresholds.Critical:
		level = AlertLevelCritical
	case ratio <= m.thresholds.Low:
		level = AlertLevelLow
	default:
		m.dedup.ClearAlert(ctx, ws.ID)
		return nil
	}

	if !m.dedup.ShouldAlert(ctx, ws.ID, level) {
		return nil
	}

	alert := &Alert{
		WorkspaceID: ws.ID,
		Level:       level,
		Balance:     ws.CreditBalance,
		Allowance:   allowance,
		Timestamp:   time.Now(),
	}

	m.mu.Lock()
	handlers := make([]AlertHandler, len(m.handlers))
	copy(handlers, m.handlers)
	m.mu.Unlock()

	for _, handler := range handlers {
		handler(*alert)
	}

	return alert
}

func LogAlertHandler(alert Alert) {
	slog.Warn("credit balance alert",
		"workspace_id", alert.WorkspaceID,
		"level", alert.Level,
		"balance", alert.Balance,
		"allowance", alert.Allowance,
	)
}
