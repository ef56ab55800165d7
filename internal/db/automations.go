package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

const automationColumns = `
	id, tenant_id, name, description, trigger, channel, template_id,
	delay_hours, is_active, conditions, total_sent, last_triggered_at,
	is_deleted, created_at, updated_at`

const executionColumns = `
	id, tenant_id, automation_id, customer_id, message_id, status,
	trigger_data, error_message, scheduled_for, executed_at, created_at,
	updated_at`

// AutomationFilter narrows an automation listing. ActiveOnly is tri-state:
// nil means no filter.
type AutomationFilter struct {
	ActiveOnly     *bool
	Trigger        string
	IncludeDeleted bool
}

func scanAutomation(row pgx.Row) (*Automation, error) {
	var a Automation
	err := row.Scan(
		&a.ID, &a.TenantID, &a.Name, &a.Description, &a.Trigger, &a.Channel,
		&a.TemplateID, &a.DelayHours, &a.IsActive, &a.Conditions,
		&a.TotalSent, &a.LastTriggeredAt, &a.IsDeleted, &a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func scanExecution(row pgx.Row) (*Execution, error) {
	var e Execution
	err := row.Scan(
		&e.ID, &e.TenantID, &e.AutomationID, &e.CustomerID, &e.MessageID,
		&e.Status, &e.TriggerData, &e.ErrorMessage, &e.ScheduledFor,
		&e.ExecutedAt, &e.CreatedAt, &e.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// CreateAutomation inserts a new automation rule.
func (r *Repository) CreateAutomation(ctx context.Context, a *Automation) error {
	if a.Conditions == nil {
		a.Conditions = []byte(`{}`)
	}
	query := `
		INSERT INTO automations (
			id, tenant_id, name, description, trigger, channel, template_id,
			delay_hours, is_active, conditions
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at, updated_at
	`

	err := r.db.Pool().QueryRow(ctx, query,
		a.ID, a.TenantID, a.Name, a.Description, a.Trigger, a.Channel,
		a.TemplateID, a.DelayHours, a.IsActive, a.Conditions,
	).Scan(&a.CreatedAt, &a.UpdatedAt)

	if err != nil {
		r.logger.Error("failed to create automation",
			zap.Error(err),
			zap.String("automation_id", a.ID.String()),
		)
		return fmt.Errorf("insert automation: %w", err)
	}

	r.logger.Info("automation created",
		zap.String("automation_id", a.ID.String()),
		zap.String("tenant_id", a.TenantID.String()),
		zap.String("trigger", a.Trigger),
	)
	return nil
}

// GetAutomation retrieves an automation by ID within a tenant, excluding
// soft-deleted rows.
func (r *Repository) GetAutomation(ctx context.Context, tenantID, id uuid.UUID) (*Automation, error) {
	query := `SELECT ` + automationColumns + `
		FROM automations
		WHERE id = $1 AND tenant_id = $2 AND NOT is_deleted`

	a, err := scanAutomation(r.db.Pool().QueryRow(ctx, query, id, tenantID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query automation: %w", err)
	}
	return a, nil
}

// ListAutomations returns a tenant's automation rules ordered by name.
func (r *Repository) ListAutomations(ctx context.Context, tenantID uuid.UUID, filter AutomationFilter) ([]*Automation, error) {
	where := `WHERE tenant_id = $1`
	args := []interface{}{tenantID}

	if !filter.IncludeDeleted {
		where += ` AND NOT is_deleted`
	}
	if filter.ActiveOnly != nil {
		args = append(args, *filter.ActiveOnly)
		where += fmt.Sprintf(` AND is_active = $%d`, len(args))
	}
	if filter.Trigger != "" {
		args = append(args, filter.Trigger)
		where += fmt.Sprintf(` AND trigger = $%d`, len(args))
	}

	query := `SELECT ` + automationColumns + ` FROM automations ` + where +
		` ORDER BY name`

	rows, err := r.db.Pool().Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query automations: %w", err)
	}
	defer rows.Close()

	var automations []*Automation
	for rows.Next() {
		a, err := scanAutomation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan automation: %w", err)
		}
		automations = append(automations, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	return automations, nil
}

// ListActiveAutomationsByTrigger returns the active, non-deleted rules the
// engine should consider for a CRM event.
func (r *Repository) ListActiveAutomationsByTrigger(ctx context.Context, tenantID uuid.UUID, trigger string) ([]*Automation, error) {
	active := true
	return r.ListAutomations(ctx, tenantID, AutomationFilter{
		ActiveOnly: &active,
		Trigger:    trigger,
	})
}

// UpdateAutomation persists the editable automation fields.
func (r *Repository) UpdateAutomation(ctx context.Context, a *Automation) error {
	if a.Conditions == nil {
		a.Conditions = []byte(`{}`)
	}
	query := `
		UPDATE automations
		SET name = $1, description = $2, trigger = $3, channel = $4,
		    template_id = $5, delay_hours = $6, is_active = $7,
		    conditions = $8, updated_at = NOW()
		WHERE id = $9 AND tenant_id = $10 AND NOT is_deleted
		RETURNING updated_at
	`

	err := r.db.Pool().QueryRow(ctx, query,
		a.Name, a.Description, a.Trigger, a.Channel, a.TemplateID,
		a.DelayHours, a.IsActive, a.Conditions, a.ID, a.TenantID,
	).Scan(&a.UpdatedAt)

	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("update automation: %w", err)
	}
	return nil
}

// SoftDeleteAutomation tombstones an automation rule.
func (r *Repository) SoftDeleteAutomation(ctx context.Context, tenantID, id uuid.UUID) error {
	result, err := r.db.Pool().Exec(ctx,
		`UPDATE automations SET is_deleted = TRUE, updated_at = NOW()
		 WHERE id = $1 AND tenant_id = $2 AND NOT is_deleted`,
		id, tenantID,
	)
	if err != nil {
		return fmt.Errorf("soft delete automation: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// RecordAutomationFired bumps total_sent and stamps last_triggered_at after
// a successful send.
func (r *Repository) RecordAutomationFired(ctx context.Context, id uuid.UUID) error {
	result, err := r.db.Pool().Exec(ctx,
		`UPDATE automations
		 SET total_sent = total_sent + 1, last_triggered_at = NOW(), updated_at = NOW()
		 WHERE id = $1`,
		id,
	)
	if err != nil {
		return fmt.Errorf("record automation fired: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// CreateExecution inserts one audit-trail row for an automation firing.
func (r *Repository) CreateExecution(ctx context.Context, e *Execution) error {
	if e.TriggerData == nil {
		e.TriggerData = []byte(`{}`)
	}
	query := `
		INSERT INTO automation_executions (
			id, tenant_id, automation_id, customer_id, message_id, status,
			trigger_data, error_message, scheduled_for
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at, updated_at
	`

	err := r.db.Pool().QueryRow(ctx, query,
		e.ID, e.TenantID, e.AutomationID, e.CustomerID, e.MessageID,
		e.Status, e.TriggerData, e.ErrorMessage, e.ScheduledFor,
	).Scan(&e.CreatedAt, &e.UpdatedAt)

	if err != nil {
		r.logger.Error("failed to create execution",
			zap.Error(err),
			zap.String("automation_id", e.AutomationID.String()),
		)
		return fmt.Errorf("insert execution: %w", err)
	}
	return nil
}

// ListExecutions returns the execution log for one automation, newest
// first, with the total row count.
func (r *Repository) ListExecutions(ctx context.Context, tenantID, automationID uuid.UUID, page, perPage int) ([]*Execution, int, error) {
	page, perPage = normalizePage(page, perPage)

	var total int
	err := r.db.Pool().QueryRow(ctx,
		`SELECT COUNT(*) FROM automation_executions
		 WHERE tenant_id = $1 AND automation_id = $2`,
		tenantID, automationID,
	).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("count executions: %w", err)
	}

	query := `SELECT ` + executionColumns + `
		FROM automation_executions
		WHERE tenant_id = $1 AND automation_id = $2
		ORDER BY created_at DESC
		LIMIT $3 OFFSET $4`

	rows, err := r.db.Pool().Query(ctx, query, tenantID, automationID, perPage, (page-1)*perPage)
	if err != nil {
		return nil, 0, fmt.Errorf("query executions: %w", err)
	}
	defer rows.Close()

	var executions []*Execution
	for rows.Next() {
		e, err := scanExecution(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan execution: %w", err)
		}
		executions = append(executions, e)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate rows: %w", err)
	}
	return executions, total, nil
}

// DuePendingExecutions returns pending executions whose scheduled_for has
// passed (or was never set), oldest first.
func (r *Repository) DuePendingExecutions(ctx context.Context, limit int) ([]*Execution, error) {
	query := `SELECT ` + executionColumns + `
		FROM automation_executions
		WHERE status = 'pending' AND (scheduled_for IS NULL OR scheduled_for <= NOW())
		ORDER BY created_at ASC
		LIMIT $1`

	rows, err := r.db.Pool().Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query due executions: %w", err)
	}
	defer rows.Close()

	var executions []*Execution
	for rows.Next() {
		e, err := scanExecution(rows)
		if err != nil {
			return nil, fmt.Errorf("scan execution: %w", err)
		}
		executions = append(executions, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	return executions, nil
}

// resolveExecution finalizes an execution row.
func (r *Repository) resolveExecution(ctx context.Context, id uuid.UUID, status string, messageID *uuid.UUID, errorMessage string) error {
	result, err := r.db.Pool().Exec(ctx,
		`UPDATE automation_executions
		 SET status = $1, message_id = $2, error_message = $3,
		     executed_at = NOW(), updated_at = NOW()
		 WHERE id = $4`,
		status, messageID, errorMessage, id,
	)
	if err != nil {
		return fmt.Errorf("resolve execution: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkExecutionSent records a successful firing and the message it created.
func (r *Repository) MarkExecutionSent(ctx context.Context, id, messageID uuid.UUID) error {
	return r.resolveExecution(ctx, id, ExecutionSent, &messageID, "")
}

// MarkExecutionFailed records a failed firing.
func (r *Repository) MarkExecutionFailed(ctx context.Context, id uuid.UUID, errorMessage string) error {
	return r.resolveExecution(ctx, id, ExecutionFailed, nil, errorMessage)
}

// MarkExecutionSkipped records a firing that was deliberately not sent
// (disabled channel, missing template, inactive rule).
func (r *Repository) MarkExecutionSkipped(ctx context.Context, id uuid.UUID, reason string) error {
	return r.resolveExecution(ctx, id, ExecutionSkipped, nil, reason)
}
