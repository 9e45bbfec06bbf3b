package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/adpulse/adpulse/internal/domain"
)

type PostgresLedgerRepository struct {
	db *sql.DB
}

func NewPostgresLedgerRepository(db *sql.DB) *PostgresLedgerRepository {
	return &PostgresLedgerRepository{db: db}
}

func (r *PostgresLedgerRepository) Append(ctx context.Context, entry domain.CreditEntry) error {
	query := `
		INSERT INTO credit_ledger (id, workspace_id, delta, balance, reason, ref, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := r.db.ExecContext(ctx, query,
		entry.ID, entry.WorkspaceID, entry.Delta, entry.Balance,
		entry.Reason, nullString(entry.Ref), entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert ledger entry: %w", err)
	}
	return nil
}

func (r *PostgresLedgerRepository) ListRecent(ctx context.Context, workspaceID string, limit int) ([]domain.CreditEntry, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT id, workspace_id, delta, balance, reason, ref, created_at
		FROM credit_ledger
		WHERE workspace_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`

	rows, err := r.db.QueryContext(ctx, query, workspaceID, limit)
	if err != nil {
		return nil, fmt.Errorf("query ledger: %w", err)
	}
	defer rows.Close()

	var out []domain.CreditEntry
	for rows.Next() {
		var e domain.CreditEntry
		var ref sql.NullString
		if err := rows.Scan(&e.ID, &e.WorkspaceID, &e.Delta, &e.Balance, &e.Reason, &ref, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan ledger entry: %w", err)
		}
		e.Ref = ref.String
		out = append(out, e)
	}
	return out, rows.Err()
}

type PostgresReportRepository struct {
	db *sql.DB
}

func NewPostgresReportRepository(db *sql.DB) *PostgresReportRepository {
	return &PostgresReportRepository{db: db}
}

func (r *PostgresReportRepository) Create(ctx context.Context, report *domain.Report) error {
	query := `
		INSERT INTO reports (id, workspace_id, automation_id, kind, period_start, period_end, summary, generated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := r.db.ExecContext(ctx, query,
		report.ID, report.WorkspaceID, nullString(report.AutomationID),
		report.Kind, report.PeriodStart, report.PeriodEnd,
		nullString(report.Summary), report.GeneratedAt,
	)
	if err != nil {
		return fmt.Errorf("insert report: %w", err)
	}
	return nil
}

func (r *PostgresReportRepository) ListByWorkspace(ctx context.Context, workspaceID string, limit int) ([]*domain.Report, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT id, workspace_id, automation_id, kind, period_start, period_end, summary, generated_at
		FROM reports
		WHERE workspace_id = $1
		ORDER BY generated_at DESC
		LIMIT $2
	`

	rows, err := r.db.QueryContext(ctx, query, workspaceID, limit)
	if err != nil {
		return nil, fmt.Errorf("query reports: %w", err)
	}
	defer rows.Close()

	var out []*domain.Report
	for rows.Next() {
		var rep domain.Report
		var automationID, summary sql.NullString
		err := rows.Scan(&rep.ID, &rep.WorkspaceID, &automationID, &rep.Kind,
			&rep.PeriodStart, &rep.PeriodEnd, &summary, &rep.GeneratedAt)
		if err != nil {
			return nil, fmt.Errorf("scan report: %w", err)
		}
		rep.AutomationID = automationID.String
		rep.Summary = summary.String
		out = append(out, &rep)
	}
	return out, rows.Err()
}
