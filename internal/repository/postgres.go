package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/adpulse/adpulse/internal/domain"
	"github.com/adpulse/adpulse/internal/schedule"
	"github.com/lib/pq"
)

type PostgresWorkspaceRepository struct {
	db *sql.DB
}

func NewPostgresWorkspaceRepository(db *sql.DB) *PostgresWorkspaceRepository {
	return &PostgresWorkspaceRepository{db: db}
}

const workspaceColumns = `id, name, plan, api_key_hash, credit_balance, rate_limit_rpm,
       ai_rate_limit_rpm, auth_rate_limit_rpm, sealed_secrets, meta_ad_account_id,
       enabled, created_at, updated_at`

func (r *PostgresWorkspaceRepository) GetByAPIKey(ctx context.Context, apiKey string) (*domain.Workspace, error) {
	query := `SELECT ` + workspaceColumns + `
		FROM workspaces
		WHERE api_key_hash = $1 AND enabled = true`

	return r.scanWorkspace(r.db.QueryRowContext(ctx, query, hashAPIKey(apiKey)))
}

func (r *PostgresWorkspaceRepository) GetByID(ctx context.Context, id string) (*domain.Workspace, error) {
	query := `SELECT ` + workspaceColumns + ` FROM workspaces WHERE id = $1`
	return r.scanWorkspace(r.db.QueryRowContext(ctx, query, id))
}

func (r *PostgresWorkspaceRepository) scanWorkspace(row *sql.Row) (*domain.Workspace, error) {
	var ws domain.Workspace
	var sealedSecrets, metaAccount sql.NullString

	err := row.Scan(
		&ws.ID,
		&ws.Name,
		&ws.Plan,
		&ws.APIKeyHash,
		&ws.CreditBalance,
		&ws.RateLimitRPM,
		&ws.AIRateLimitRPM,
		&ws.AuthRateLimitRPM,
		&sealedSecrets,
		&metaAccount,
		&ws.Enabled,
		&ws.CreatedAt,
		&ws.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, domain.ErrWorkspaceNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query workspace: %w", err)
	}

	ws.SealedSecrets = sealedSecrets.String
	ws.MetaAdAccountID = metaAccount.String

	return &ws, nil
}

func (r *PostgresWorkspaceRepository) Create(ctx context.Context, ws *domain.Workspace) error {
	query := `
		INSERT INTO workspaces (id, name, plan, api_key_hash, credit_balance, rate_limit_rpm,
			ai_rate_limit_rpm, auth_rate_limit_rpm, sealed_secrets, meta_ad_account_id,
			enabled, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`

	_, err := r.db.ExecContext(ctx, query,
		ws.ID, ws.Name, ws.Plan, ws.APIKeyHash, ws.CreditBalance, ws.RateLimitRPM,
		ws.AIRateLimitRPM, ws.AuthRateLimitRPM, nullString(ws.SealedSecrets),
		nullString(ws.MetaAdAccountID), ws.Enabled, ws.CreatedAt, ws.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert workspace: %w", err)
	}
	return nil
}

func (r *PostgresWorkspaceRepository) Update(ctx context.Context, ws *domain.Workspace) error {
	query := `
		UPDATE workspaces
		SET name = $2, plan = $3, api_key_hash = $4, rate_limit_rpm = $5,
		    ai_rate_limit_rpm = $6, auth_rate_limit_rpm = $7, sealed_secrets = $8,
		    meta_ad_account_id = $9, enabled = $10, updated_at = now()
		WHERE id = $1
	`

	result, err := r.db.ExecContext(ctx, query,
		ws.ID, ws.Name, ws.Plan, ws.APIKeyHash, ws.RateLimitRPM,
		ws.AIRateLimitRPM, ws.AuthRateLimitRPM, nullString(ws.SealedSecrets),
		nullString(ws.MetaAdAccountID), ws.Enabled,
	)
	if err != nil {
		return fmt.Errorf("update workspace: %w", err)
	}

	return checkAffected(result, domain.ErrWorkspaceNotFound)
}

func (r *PostgresWorkspaceRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM workspaces WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete workspace: %w", err)
	}
	return checkAffected(result, domain.ErrWorkspaceNotFound)
}

func (r *PostgresWorkspaceRepository) List(ctx context.Context) ([]*domain.Workspace, error) {
	query := `SELECT ` + workspaceColumns + ` FROM workspaces ORDER BY created_at DESC`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query workspaces: %w", err)
	}
	defer rows.Close()

	var out []*domain.Workspace
	for rows.Next() {
		var ws domain.Workspace
		var sealedSecrets, metaAccount sql.NullString
		err := rows.Scan(
			&ws.ID, &ws.Name, &ws.Plan, &ws.APIKeyHash, &ws.CreditBalance,
			&ws.RateLimitRPM, &ws.AIRateLimitRPM, &ws.AuthRateLimitRPM,
			&sealedSecrets, &metaAccount, &ws.Enabled, &ws.CreatedAt, &ws.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan workspace: %w", err)
		}
		ws.SealedSecrets = sealedSecrets.String
		ws.MetaAdAccountID = metaAccount.String
		out = append(out, &ws)
	}

	return out, rows.Err()
}

// AdjustCredits is a single conditional UPDATE so concurrent spends can
// never drive the balance negative.
func (r *PostgresWorkspaceRepository) AdjustCredits(ctx context.Context, id string, delta int64) (int64, error) {
	query := `
		UPDATE workspaces
		SET credit_balance = credit_balance + $2, updated_at = now()
		WHERE id = $1 AND credit_balance + $2 >= 0
		RETURNING credit_balance
	`

	var balance int64
	err := r.db.QueryRowContext(ctx, query, id, delta).Scan(&balance)
	if err == sql.ErrNoRows {
		// Either the workspace is missing or the spend would overdraw.
		var exists bool
		if checkErr := r.db.QueryRowContext(ctx,
			`SELECT EXISTS (SELECT 1 FROM workspaces WHERE id = $1)`, id).Scan(&exists); checkErr != nil {
			return 0, fmt.Errorf("check workspace: %w", checkErr)
		}
		if !exists {
			return 0, domain.ErrWorkspaceNotFound
		}
		return 0, domain.ErrInsufficientCredits
	}
	if err != nil {
		return 0, fmt.Errorf("adjust credits: %w", err)
	}

	return balance, nil
}

type PostgresAutomationRepository struct {
	db *sql.DB
}

func NewPostgresAutomationRepository(db *sql.DB) *PostgresAutomationRepository {
	return &PostgresAutomationRepository{db: db}
}

const automationColumns = `id, workspace_id, name, type, frequency, time_of_day, timezone,
       days, last_run_at, enabled, created_at, updated_at`

func (r *PostgresAutomationRepository) Create(ctx context.Context, a *domain.Automation) error {
	if err := schedule.ValidateSchedule(a.Schedule); err != nil {
		return err
	}

	query := `
		INSERT INTO automations (id, workspace_id, name, type, frequency, time_of_day,
			timezone, days, last_run_at, enabled, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`

	_, err := r.db.ExecContext(ctx, query,
		a.ID, a.WorkspaceID, a.Name, a.Type,
		a.Schedule.Frequency, a.Schedule.Time, a.Schedule.Timezone,
		pq.StringArray(a.Schedule.Days), a.LastRunAt, a.Enabled,
		a.CreatedAt, a.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert automation: %w", err)
	}
	return nil
}

func (r *PostgresAutomationRepository) GetByID(ctx context.Context, id string) (*domain.Automation, error) {
	query := `SELECT ` + automationColumns + ` FROM automations WHERE id = $1`

	rows, err := r.db.QueryContext(ctx, query, id)
	if err != nil {
		return nil, fmt.Errorf("query automation: %w", err)
	}
	defer rows.Close()

	automations, err := scanAutomations(rows)
	if err != nil {
		return nil, err
	}
	if len(automations) == 0 {
		return nil, domain.ErrAutomationNotFound
	}
	return automations[0], nil
}

func (r *PostgresAutomationRepository) ListByWorkspace(ctx context.Context, workspaceID string) ([]*domain.Automation, error) {
	query := `SELECT ` + automationColumns + `
		FROM automations WHERE workspace_id = $1 ORDER BY created_at DESC`

	rows, err := r.db.QueryContext(ctx, query, workspaceID)
	if err != nil {
		return nil, fmt.Errorf("query automations: %w", err)
	}
	defer rows.Close()

	return scanAutomations(rows)
}

func (r *PostgresAutomationRepository) ListActive(ctx context.Context) ([]*domain.Automation, error) {
	query := `SELECT ` + automationColumns + ` FROM automations WHERE enabled = true`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query active automations: %w", err)
	}
	defer rows.Close()

	return scanAutomations(rows)
}

func (r *PostgresAutomationRepository) Update(ctx context.Context, a *domain.Automation) error {
	if err := schedule.ValidateSchedule(a.Schedule); err != nil {
		return err
	}

	query := `
		UPDATE automations
		SET name = $2, type = $3, frequency = $4, time_of_day = $5, timezone = $6,
		    days = $7, enabled = $8, updated_at = now()
		WHERE id = $1
	`

	result, err := r.db.ExecContext(ctx, query,
		a.ID, a.Name, a.Type, a.Schedule.Frequency, a.Schedule.Time,
		a.Schedule.Timezone, pq.StringArray(a.Schedule.Days), a.Enabled,
	)
	if err != nil {
		return fmt.Errorf("update automation: %w", err)
	}

	return checkAffected(result, domain.ErrAutomationNotFound)
}

// UpdateLastRun only moves last_run_at forward; a late write from a slow
// executor can never rewind it.
func (r *PostgresAutomationRepository) UpdateLastRun(ctx context.Context, id string, runAt time.Time) error {
	query := `
		UPDATE automations
		SET last_run_at = $2, updated_at = now()
		WHERE id = $1 AND (last_run_at IS NULL OR last_run_at <= $2)
	`

	if _, err := r.db.ExecContext(ctx, query, id, runAt); err != nil {
		return fmt.Errorf("update last run: %w", err)
	}
	return nil
}

func (r *PostgresAutomationRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM automations WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete automation: %w", err)
	}
	return checkAffected(result, domain.ErrAutomationNotFound)
}

func scanAutomations(rows *sql.Rows) ([]*domain.Automation, error) {
	var out []*domain.Automation
	for rows.Next() {
		var a domain.Automation
		var s domain.Schedule
		var days pq.StringArray
		var lastRun sql.NullTime

		err := rows.Scan(
			&a.ID, &a.WorkspaceID, &a.Name, &a.Type,
			&s.Frequency, &s.Time, &s.Timezone, &days,
			&lastRun, &a.Enabled, &a.CreatedAt, &a.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan automation: %w", err)
		}

		s.Days = []string(days)
		a.Schedule = &s
		if lastRun.Valid {
			t := lastRun.Time
			a.LastRunAt = &t
		}
		out = append(out, &a)
	}
	return out, rows.Err()
}

func checkAffected(result sql.Result, notFound error) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return notFound
	}
	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
