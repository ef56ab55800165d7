package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

const campaignColumns = `
	id, tenant_id, name, description, channel, template_id, status,
	scheduled_at, started_at, completed_at, total_recipients, sent_count,
	delivered_count, failed_count, target_filter, is_deleted, created_at,
	updated_at`

// CampaignFilter narrows a campaign listing.
type CampaignFilter struct {
	Status         string
	Search         string // substring over name and description
	IncludeDeleted bool
}

func scanCampaign(row pgx.Row) (*Campaign, error) {
	var c Campaign
	err := row.Scan(
		&c.ID, &c.TenantID, &c.Name, &c.Description, &c.Channel,
		&c.TemplateID, &c.Status, &c.ScheduledAt, &c.StartedAt,
		&c.CompletedAt, &c.TotalRecipients, &c.SentCount, &c.DeliveredCount,
		&c.FailedCount, &c.TargetFilter, &c.IsDeleted, &c.CreatedAt,
		&c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// CreateCampaign inserts a new campaign in draft status.
func (r *Repository) CreateCampaign(ctx context.Context, c *Campaign) error {
	if c.TargetFilter == nil {
		c.TargetFilter = []byte(`{}`)
	}
	query := `
		INSERT INTO campaigns (
			id, tenant_id, name, description, channel, template_id, status,
			scheduled_at, total_recipients, target_filter
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at, updated_at
	`

	err := r.db.Pool().QueryRow(ctx, query,
		c.ID, c.TenantID, c.Name, c.Description, c.Channel, c.TemplateID,
		c.Status, c.ScheduledAt, c.TotalRecipients, c.TargetFilter,
	).Scan(&c.CreatedAt, &c.UpdatedAt)

	if err != nil {
		r.logger.Error("failed to create campaign",
			zap.Error(err),
			zap.String("campaign_id", c.ID.String()),
		)
		return fmt.Errorf("insert campaign: %w", err)
	}

	r.logger.Info("campaign created",
		zap.String("campaign_id", c.ID.String()),
		zap.String("tenant_id", c.TenantID.String()),
		zap.String("name", c.Name),
	)
	return nil
}

// GetCampaign retrieves a campaign by ID within a tenant, excluding
// soft-deleted rows.
func (r *Repository) GetCampaign(ctx context.Context, tenantID, id uuid.UUID) (*Campaign, error) {
	query := `SELECT ` + campaignColumns + `
		FROM campaigns
		WHERE id = $1 AND tenant_id = $2 AND NOT is_deleted`

	c, err := scanCampaign(r.db.Pool().QueryRow(ctx, query, id, tenantID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query campaign: %w", err)
	}
	return c, nil
}

// ListCampaigns returns a tenant's campaigns, newest first.
func (r *Repository) ListCampaigns(ctx context.Context, tenantID uuid.UUID, filter CampaignFilter) ([]*Campaign, error) {
	where := `WHERE tenant_id = $1`
	args := []interface{}{tenantID}

	if !filter.IncludeDeleted {
		where += ` AND NOT is_deleted`
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		where += fmt.Sprintf(` AND status = $%d`, len(args))
	}
	if filter.Search != "" {
		args = append(args, "%"+filter.Search+"%")
		n := len(args)
		where += fmt.Sprintf(` AND (name ILIKE $%d OR description ILIKE $%d)`, n, n)
	}

	query := `SELECT ` + campaignColumns + ` FROM campaigns ` + where +
		` ORDER BY created_at DESC`

	rows, err := r.db.Pool().Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query campaigns: %w", err)
	}
	defer rows.Close()

	var campaigns []*Campaign
	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, fmt.Errorf("scan campaign: %w", err)
		}
		campaigns = append(campaigns, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	return campaigns, nil
}

// transitionCampaign applies a status change unconditionally. State guards
// live in the calling handler.
func (r *Repository) transitionCampaign(ctx context.Context, id uuid.UUID, status, setClause string) error {
	query := fmt.Sprintf(
		`UPDATE campaigns SET status = $1%s, updated_at = NOW() WHERE id = $2`,
		setClause,
	)

	result, err := r.db.Pool().Exec(ctx, query, status, id)
	if err != nil {
		r.logger.Error("failed to update campaign status",
			zap.Error(err),
			zap.String("campaign_id", id.String()),
			zap.String("status", status),
		)
		return fmt.Errorf("update campaign status: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}

	r.logger.Info("campaign status updated",
		zap.String("campaign_id", id.String()),
		zap.String("status", status),
	)
	return nil
}

// StartCampaign sets status=sending and stamps started_at.
func (r *Repository) StartCampaign(ctx context.Context, id uuid.UUID) error {
	return r.transitionCampaign(ctx, id, CampaignSending, `, started_at = NOW()`)
}

// CompleteCampaign sets status=completed and stamps completed_at.
func (r *Repository) CompleteCampaign(ctx context.Context, id uuid.UUID) error {
	return r.transitionCampaign(ctx, id, CampaignCompleted, `, completed_at = NOW()`)
}

// CancelCampaign sets status=cancelled.
func (r *Repository) CancelCampaign(ctx context.Context, id uuid.UUID) error {
	return r.transitionCampaign(ctx, id, CampaignCancelled, ``)
}

// SoftDeleteCampaign tombstones a campaign.
func (r *Repository) SoftDeleteCampaign(ctx context.Context, tenantID, id uuid.UUID) error {
	result, err := r.db.Pool().Exec(ctx,
		`UPDATE campaigns SET is_deleted = TRUE, updated_at = NOW()
		 WHERE id = $1 AND tenant_id = $2 AND NOT is_deleted`,
		id, tenantID,
	)
	if err != nil {
		return fmt.Errorf("soft delete campaign: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}

	r.logger.Info("campaign deleted",
		zap.String("campaign_id", id.String()),
		zap.String("tenant_id", tenantID.String()),
	)
	return nil
}

// CountCampaigns counts a tenant's non-deleted campaigns.
func (r *Repository) CountCampaigns(ctx context.Context, tenantID uuid.UUID) (int, error) {
	var count int
	err := r.db.Pool().QueryRow(ctx,
		`SELECT COUNT(*) FROM campaigns WHERE tenant_id = $1 AND NOT is_deleted`,
		tenantID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count campaigns: %w", err)
	}
	return count, nil
}

// CountActiveCampaigns counts campaigns that are scheduled or mid-send.
func (r *Repository) CountActiveCampaigns(ctx context.Context, tenantID uuid.UUID) (int, error) {
	var count int
	err := r.db.Pool().QueryRow(ctx,
		`SELECT COUNT(*) FROM campaigns
		 WHERE tenant_id = $1 AND NOT is_deleted AND status IN ('sending', 'scheduled')`,
		tenantID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count active campaigns: %w", err)
	}
	return count, nil
}
