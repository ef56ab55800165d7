package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

const templateColumns = `
	id, tenant_id, name, channel, category, subject, body,
	is_active, is_system, is_deleted, created_at, updated_at`

// TemplateFilter narrows a template listing.
type TemplateFilter struct {
	Search         string // substring over name and body
	Channel        string
	ActiveOnly     bool
	IncludeDeleted bool
}

func scanTemplate(row pgx.Row) (*Template, error) {
	var t Template
	err := row.Scan(
		&t.ID, &t.TenantID, &t.Name, &t.Channel, &t.Category, &t.Subject,
		&t.Body, &t.IsActive, &t.IsSystem, &t.IsDeleted, &t.CreatedAt,
		&t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// CreateTemplate inserts a new template.
func (r *Repository) CreateTemplate(ctx context.Context, t *Template) error {
	query := `
		INSERT INTO message_templates (
			id, tenant_id, name, channel, category, subject, body,
			is_active, is_system
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at, updated_at
	`

	err := r.db.Pool().QueryRow(ctx, query,
		t.ID, t.TenantID, t.Name, t.Channel, t.Category, t.Subject, t.Body,
		t.IsActive, t.IsSystem,
	).Scan(&t.CreatedAt, &t.UpdatedAt)

	if err != nil {
		r.logger.Error("failed to create template",
			zap.Error(err),
			zap.String("template_id", t.ID.String()),
		)
		return fmt.Errorf("insert template: %w", err)
	}

	r.logger.Info("template created",
		zap.String("template_id", t.ID.String()),
		zap.String("tenant_id", t.TenantID.String()),
		zap.String("name", t.Name),
	)
	return nil
}

// GetTemplate retrieves a template by ID within a tenant, excluding
// soft-deleted rows.
func (r *Repository) GetTemplate(ctx context.Context, tenantID, id uuid.UUID) (*Template, error) {
	query := `SELECT ` + templateColumns + `
		FROM message_templates
		WHERE id = $1 AND tenant_id = $2 AND NOT is_deleted`

	t, err := scanTemplate(r.db.Pool().QueryRow(ctx, query, id, tenantID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query template: %w", err)
	}
	return t, nil
}

// ListTemplates returns a tenant's templates ordered by (category, name).
func (r *Repository) ListTemplates(ctx context.Context, tenantID uuid.UUID, filter TemplateFilter) ([]*Template, error) {
	where := `WHERE tenant_id = $1`
	args := []interface{}{tenantID}

	if !filter.IncludeDeleted {
		where += ` AND NOT is_deleted`
	}
	if filter.ActiveOnly {
		where += ` AND is_active`
	}
	if filter.Channel != "" {
		args = append(args, filter.Channel)
		where += fmt.Sprintf(` AND channel = $%d`, len(args))
	}
	if filter.Search != "" {
		args = append(args, "%"+filter.Search+"%")
		n := len(args)
		where += fmt.Sprintf(` AND (name ILIKE $%d OR body ILIKE $%d)`, n, n)
	}

	query := `SELECT ` + templateColumns + ` FROM message_templates ` + where +
		` ORDER BY category, name`

	rows, err := r.db.Pool().Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query templates: %w", err)
	}
	defer rows.Close()

	var templates []*Template
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, fmt.Errorf("scan template: %w", err)
		}
		templates = append(templates, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	return templates, nil
}

// UpdateTemplate persists the editable template fields.
func (r *Repository) UpdateTemplate(ctx context.Context, t *Template) error {
	query := `
		UPDATE message_templates
		SET name = $1, channel = $2, category = $3, subject = $4, body = $5,
		    is_active = $6, updated_at = NOW()
		WHERE id = $7 AND tenant_id = $8 AND NOT is_deleted
		RETURNING updated_at
	`

	err := r.db.Pool().QueryRow(ctx, query,
		t.Name, t.Channel, t.Category, t.Subject, t.Body, t.IsActive,
		t.ID, t.TenantID,
	).Scan(&t.UpdatedAt)

	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("update template: %w", err)
	}

	r.logger.Info("template updated",
		zap.String("template_id", t.ID.String()),
		zap.String("tenant_id", t.TenantID.String()),
	)
	return nil
}

// SoftDeleteTemplate tombstones a template. System templates are refused
// at the handler layer, not here.
func (r *Repository) SoftDeleteTemplate(ctx context.Context, tenantID, id uuid.UUID) error {
	result, err := r.db.Pool().Exec(ctx,
		`UPDATE message_templates SET is_deleted = TRUE, updated_at = NOW()
		 WHERE id = $1 AND tenant_id = $2 AND NOT is_deleted`,
		id, tenantID,
	)
	if err != nil {
		return fmt.Errorf("soft delete template: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}

	r.logger.Info("template deleted",
		zap.String("template_id", id.String()),
		zap.String("tenant_id", tenantID.String()),
	)
	return nil
}

// CountTemplates counts a tenant's non-deleted templates, optionally only
// active ones.
func (r *Repository) CountTemplates(ctx context.Context, tenantID uuid.UUID, activeOnly bool) (int, error) {
	query := `SELECT COUNT(*) FROM message_templates WHERE tenant_id = $1 AND NOT is_deleted`
	if activeOnly {
		query += ` AND is_active`
	}

	var count int
	if err := r.db.Pool().QueryRow(ctx, query, tenantID).Scan(&count); err != nil {
		return 0, fmt.Errorf("count templates: %w", err)
	}
	return count, nil
}
