package db

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const settingsColumns = `
	id, tenant_id, whatsapp_enabled, whatsapp_api_token, whatsapp_phone_id,
	whatsapp_business_id, sms_enabled, sms_provider, sms_api_key,
	sms_sender_name, email_enabled, email_from_name, email_from_address,
	email_smtp_host, email_smtp_port, email_smtp_username,
	email_smtp_password, email_smtp_use_tls, appointment_reminder_enabled,
	appointment_reminder_hours, booking_confirmation_enabled, created_at,
	updated_at`

// GetOrCreateSettings returns the tenant's settings row, inserting one with
// defaults on first access. The upsert is a single atomic statement so
// concurrent first reads cannot race a duplicate row past the tenant_id
// unique constraint.
func (r *Repository) GetOrCreateSettings(ctx context.Context, tenantID uuid.UUID) (*Settings, error) {
	// DO UPDATE on the conflict target makes RETURNING yield the existing
	// row instead of nothing.
	query := `
		INSERT INTO messaging_settings (id, tenant_id)
		VALUES ($1, $2)
		ON CONFLICT (tenant_id) DO UPDATE SET tenant_id = EXCLUDED.tenant_id
		RETURNING ` + settingsColumns

	var s Settings
	err := r.db.Pool().QueryRow(ctx, query, uuid.New(), tenantID).Scan(
		&s.ID, &s.TenantID, &s.WhatsAppEnabled, &s.WhatsAppAPIToken,
		&s.WhatsAppPhoneID, &s.WhatsAppBusinessID, &s.SMSEnabled,
		&s.SMSProvider, &s.SMSAPIKey, &s.SMSSenderName, &s.EmailEnabled,
		&s.EmailFromName, &s.EmailFromAddress, &s.SMTPHost, &s.SMTPPort,
		&s.SMTPUsername, &s.SMTPPassword, &s.SMTPUseTLS,
		&s.AppointmentReminderEnabled, &s.AppointmentReminderHours,
		&s.BookingConfirmationEnabled, &s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		r.logger.Error("failed to get or create settings",
			zap.Error(err),
			zap.String("tenant_id", tenantID.String()),
		)
		return nil, fmt.Errorf("get or create settings: %w", err)
	}

	return &s, nil
}

// UpdateSettings persists every configurable settings field.
func (r *Repository) UpdateSettings(ctx context.Context, s *Settings) error {
	query := `
		UPDATE messaging_settings
		SET whatsapp_enabled = $1, whatsapp_api_token = $2,
		    whatsapp_phone_id = $3, whatsapp_business_id = $4,
		    sms_enabled = $5, sms_provider = $6, sms_api_key = $7,
		    sms_sender_name = $8, email_enabled = $9, email_from_name = $10,
		    email_from_address = $11, email_smtp_host = $12,
		    email_smtp_port = $13, email_smtp_username = $14,
		    email_smtp_password = $15, email_smtp_use_tls = $16,
		    appointment_reminder_enabled = $17,
		    appointment_reminder_hours = $18,
		    booking_confirmation_enabled = $19, updated_at = NOW()
		WHERE tenant_id = $20
		RETURNING updated_at
	`

	err := r.db.Pool().QueryRow(ctx, query,
		s.WhatsAppEnabled, s.WhatsAppAPIToken, s.WhatsAppPhoneID,
		s.WhatsAppBusinessID, s.SMSEnabled, s.SMSProvider, s.SMSAPIKey,
		s.SMSSenderName, s.EmailEnabled, s.EmailFromName, s.EmailFromAddress,
		s.SMTPHost, s.SMTPPort, s.SMTPUsername, s.SMTPPassword, s.SMTPUseTLS,
		s.AppointmentReminderEnabled, s.AppointmentReminderHours,
		s.BookingConfirmationEnabled, s.TenantID,
	).Scan(&s.UpdatedAt)

	if err != nil {
		r.logger.Error("failed to update settings",
			zap.Error(err),
			zap.String("tenant_id", s.TenantID.String()),
		)
		return fmt.Errorf("update settings: %w", err)
	}

	r.logger.Info("settings updated",
		zap.String("tenant_id", s.TenantID.String()),
	)
	return nil
}
