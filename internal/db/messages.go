package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

const messageColumns = `
	id, tenant_id, channel, recipient_name, recipient_contact, subject, body,
	status, template_id, customer_id, sent_at, delivered_at, read_at,
	error_message, external_id, metadata, is_deleted, created_at, updated_at`

// MessageFilter narrows a message listing. Zero values mean "no filter".
type MessageFilter struct {
	Channel        string
	Status         string
	Search         string // substring over recipient name/contact, subject, body
	IncludeDeleted bool   // privileged path: tombstoned rows too
}

// MessageStats are the aggregate counters shown on the dashboard.
type MessageStats struct {
	Total     int `json:"total_messages"`
	SentToday int `json:"sent_today"`
	Delivered int `json:"delivered_count"`
	Failed    int `json:"failed_count"`
}

// DeliveryRate is delivered/total as a percentage rounded to one decimal.
func (s MessageStats) DeliveryRate() float64 {
	return roundPercent(s.Delivered, s.Total)
}

func scanMessage(row pgx.Row) (*Message, error) {
	var m Message
	err := row.Scan(
		&m.ID, &m.TenantID, &m.Channel, &m.RecipientName, &m.RecipientContact,
		&m.Subject, &m.Body, &m.Status, &m.TemplateID, &m.CustomerID,
		&m.SentAt, &m.DeliveredAt, &m.ReadAt, &m.ErrorMessage, &m.ExternalID,
		&m.Metadata, &m.IsDeleted, &m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// CreateMessage inserts a new message. The caller assigns the ID and the
// initial status (normally queued).
func (r *Repository) CreateMessage(ctx context.Context, msg *Message) error {
	if msg.Metadata == nil {
		msg.Metadata = []byte(`{}`)
	}
	query := `
		INSERT INTO messages (
			id, tenant_id, channel, recipient_name, recipient_contact,
			subject, body, status, template_id, customer_id, error_message,
			external_id, metadata
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING created_at, updated_at
	`

	err := r.db.Pool().QueryRow(ctx, query,
		msg.ID, msg.TenantID, msg.Channel, msg.RecipientName,
		msg.RecipientContact, msg.Subject, msg.Body, msg.Status,
		msg.TemplateID, msg.CustomerID, msg.ErrorMessage, msg.ExternalID,
		msg.Metadata,
	).Scan(&msg.CreatedAt, &msg.UpdatedAt)

	if err != nil {
		r.logger.Error("failed to create message",
			zap.Error(err),
			zap.String("message_id", msg.ID.String()),
		)
		return fmt.Errorf("insert message: %w", err)
	}

	r.logger.Info("message created",
		zap.String("message_id", msg.ID.String()),
		zap.String("tenant_id", msg.TenantID.String()),
		zap.String("channel", msg.Channel),
	)

	return nil
}

// GetMessage retrieves a message by ID within a tenant, excluding
// soft-deleted rows.
func (r *Repository) GetMessage(ctx context.Context, tenantID, id uuid.UUID) (*Message, error) {
	query := `SELECT ` + messageColumns + `
		FROM messages
		WHERE id = $1 AND tenant_id = $2 AND NOT is_deleted`

	msg, err := scanMessage(r.db.Pool().QueryRow(ctx, query, id, tenantID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query message: %w", err)
	}
	return msg, nil
}

// GetMessageByExternalID looks a message up by the provider's identifier.
// Used by the webhook receiver, which carries no tenant context.
func (r *Repository) GetMessageByExternalID(ctx context.Context, externalID string) (*Message, error) {
	query := `SELECT ` + messageColumns + `
		FROM messages
		WHERE external_id = $1 AND NOT is_deleted`

	msg, err := scanMessage(r.db.Pool().QueryRow(ctx, query, externalID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query message by external_id: %w", err)
	}
	return msg, nil
}

// ListMessages returns one page of a tenant's message log, newest first,
// plus the total row count for the filter.
func (r *Repository) ListMessages(ctx context.Context, tenantID uuid.UUID, filter MessageFilter, page, perPage int) ([]*Message, int, error) {
	page, perPage = normalizePage(page, perPage)

	where := `WHERE tenant_id = $1`
	args := []interface{}{tenantID}

	if !filter.IncludeDeleted {
		where += ` AND NOT is_deleted`
	}
	if filter.Channel != "" {
		args = append(args, filter.Channel)
		where += fmt.Sprintf(` AND channel = $%d`, len(args))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		where += fmt.Sprintf(` AND status = $%d`, len(args))
	}
	if filter.Search != "" {
		args = append(args, "%"+filter.Search+"%")
		n := len(args)
		where += fmt.Sprintf(` AND (recipient_name ILIKE $%d OR recipient_contact ILIKE $%d OR subject ILIKE $%d OR body ILIKE $%d)`, n, n, n, n)
	}

	var total int
	if err := r.db.Pool().QueryRow(ctx, `SELECT COUNT(*) FROM messages `+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count messages: %w", err)
	}

	args = append(args, perPage, (page-1)*perPage)
	query := fmt.Sprintf(`SELECT %s FROM messages %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		messageColumns, where, len(args)-1, len(args))

	rows, err := r.db.Pool().Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	var messages []*Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan message: %w", err)
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate rows: %w", err)
	}

	return messages, total, nil
}

// RecentMessages returns the newest messages for a tenant.
func (r *Repository) RecentMessages(ctx context.Context, tenantID uuid.UUID, limit int) ([]*Message, error) {
	msgs, _, err := r.ListMessages(ctx, tenantID, MessageFilter{}, 1, limit)
	return msgs, err
}

// GetMessageStats computes the dashboard counters in a single pass.
// Delivered counts both delivered and read messages.
func (r *Repository) GetMessageStats(ctx context.Context, tenantID uuid.UUID) (*MessageStats, error) {
	query := `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE created_at >= date_trunc('day', NOW())),
			COUNT(*) FILTER (WHERE status IN ('delivered', 'read')),
			COUNT(*) FILTER (WHERE status = 'failed')
		FROM messages
		WHERE tenant_id = $1 AND NOT is_deleted
	`

	var stats MessageStats
	err := r.db.Pool().QueryRow(ctx, query, tenantID).Scan(
		&stats.Total, &stats.SentToday, &stats.Delivered, &stats.Failed,
	)
	if err != nil {
		return nil, fmt.Errorf("query message stats: %w", err)
	}
	return &stats, nil
}

// transitionMessage applies a status change, persisting only the touched
// columns plus updated_at. Transitions are deliberately unguarded: the
// store does not validate the prior state.
func (r *Repository) transitionMessage(ctx context.Context, id uuid.UUID, status, setClause string, extraArgs ...interface{}) error {
	args := append([]interface{}{status, id}, extraArgs...)
	query := fmt.Sprintf(
		`UPDATE messages SET status = $1, %s, updated_at = NOW() WHERE id = $2`,
		setClause,
	)

	result, err := r.db.Pool().Exec(ctx, query, args...)
	if err != nil {
		r.logger.Error("failed to update message status",
			zap.Error(err),
			zap.String("message_id", id.String()),
			zap.String("status", status),
		)
		return fmt.Errorf("update message status: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}

	r.logger.Info("message status updated",
		zap.String("message_id", id.String()),
		zap.String("status", status),
	)
	return nil
}

// MarkMessageSent sets status=sent and stamps sent_at.
func (r *Repository) MarkMessageSent(ctx context.Context, id uuid.UUID) error {
	return r.transitionMessage(ctx, id, MessageSent, `sent_at = NOW()`)
}

// MarkMessageDelivered sets status=delivered and stamps delivered_at.
func (r *Repository) MarkMessageDelivered(ctx context.Context, id uuid.UUID) error {
	return r.transitionMessage(ctx, id, MessageDelivered, `delivered_at = NOW()`)
}

// MarkMessageRead sets status=read and stamps read_at.
func (r *Repository) MarkMessageRead(ctx context.Context, id uuid.UUID) error {
	return r.transitionMessage(ctx, id, MessageRead, `read_at = NOW()`)
}

// MarkMessageFailed sets status=failed and records the provider error.
func (r *Repository) MarkMessageFailed(ctx context.Context, id uuid.UUID, errorMessage string) error {
	return r.transitionMessage(ctx, id, MessageFailed, `error_message = $3`, errorMessage)
}

// SoftDeleteMessage tombstones a message; the row stays in storage.
func (r *Repository) SoftDeleteMessage(ctx context.Context, tenantID, id uuid.UUID) error {
	result, err := r.db.Pool().Exec(ctx,
		`UPDATE messages SET is_deleted = TRUE, updated_at = NOW()
		 WHERE id = $1 AND tenant_id = $2 AND NOT is_deleted`,
		id, tenantID,
	)
	if err != nil {
		return fmt.Errorf("soft delete message: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
