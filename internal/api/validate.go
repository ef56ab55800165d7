package api

import (
	"encoding/json"
	"strings"

	"github.com/erplora/commshub/internal/db"
)

// FieldErrors maps a field name to its first validation failure.
type FieldErrors map[string]string

// ComposeRequest is the body for composing or sending a single message.
type ComposeRequest struct {
	Channel          string            `json:"channel"`
	RecipientName    string            `json:"recipient_name"`
	RecipientContact string            `json:"recipient_contact"`
	Subject          string            `json:"subject"`
	Body             string            `json:"body"`
	TemplateID       string            `json:"template_id,omitempty"`
	CustomerID       string            `json:"customer_id,omitempty"`
	Context          map[string]string `json:"context,omitempty"`
	ExternalID       string            `json:"external_id,omitempty"`
	Metadata         json.RawMessage   `json:"metadata,omitempty"`
}

func validateCompose(req *ComposeRequest) FieldErrors {
	errs := FieldErrors{}

	if !db.ValidMessageChannel(req.Channel) {
		errs["channel"] = "channel must be whatsapp, sms, or email"
	}
	if strings.TrimSpace(req.RecipientContact) == "" {
		errs["recipient_contact"] = "recipient_contact is required"
	}
	if strings.TrimSpace(req.Body) == "" && req.TemplateID == "" {
		errs["body"] = "body is required when no template is given"
	}
	if req.Metadata != nil && !json.Valid(req.Metadata) {
		errs["metadata"] = "metadata must be valid JSON"
	}

	if len(errs) == 0 {
		return nil
	}
	return errs
}

// TemplateRequest is the body for creating or updating a template.
type TemplateRequest struct {
	Name     string `json:"name"`
	Channel  string `json:"channel"`
	Category string `json:"category"`
	Subject  string `json:"subject"`
	Body     string `json:"body"`
	IsActive *bool  `json:"is_active,omitempty"`
}

func validateTemplate(req *TemplateRequest) FieldErrors {
	errs := FieldErrors{}

	if strings.TrimSpace(req.Name) == "" {
		errs["name"] = "name is required"
	}
	if !db.ValidTemplateChannel(req.Channel) {
		errs["channel"] = "channel must be whatsapp, sms, email, or all"
	}
	if !db.ValidCategory(req.Category) {
		errs["category"] = "unknown template category"
	}
	if strings.TrimSpace(req.Body) == "" {
		errs["body"] = "body is required"
	}

	if len(errs) == 0 {
		return nil
	}
	return errs
}

// CampaignRequest is the body for creating a campaign.
type CampaignRequest struct {
	Name            string          `json:"name"`
	Description     string          `json:"description"`
	Channel         string          `json:"channel"`
	TemplateID      string          `json:"template_id,omitempty"`
	ScheduledAt     string          `json:"scheduled_at,omitempty"` // RFC 3339
	TotalRecipients int             `json:"total_recipients"`
	TargetFilter    json.RawMessage `json:"target_filter,omitempty"`
}

func validateCampaign(req *CampaignRequest) FieldErrors {
	errs := FieldErrors{}

	if strings.TrimSpace(req.Name) == "" {
		errs["name"] = "name is required"
	}
	if !db.ValidMessageChannel(req.Channel) {
		errs["channel"] = "channel must be whatsapp, sms, or email"
	}
	if req.TotalRecipients < 0 {
		errs["total_recipients"] = "total_recipients must be >= 0"
	}
	if req.TargetFilter != nil && !json.Valid(req.TargetFilter) {
		errs["target_filter"] = "target_filter must be valid JSON"
	}

	if len(errs) == 0 {
		return nil
	}
	return errs
}

// AutomationRequest is the body for creating or updating an automation rule.
type AutomationRequest struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Trigger     string          `json:"trigger"`
	Channel     string          `json:"channel"`
	TemplateID  string          `json:"template_id,omitempty"`
	DelayHours  int             `json:"delay_hours"`
	IsActive    *bool           `json:"is_active,omitempty"`
	Conditions  json.RawMessage `json:"conditions,omitempty"`
}

func validateAutomation(req *AutomationRequest) FieldErrors {
	errs := FieldErrors{}

	if strings.TrimSpace(req.Name) == "" {
		errs["name"] = "name is required"
	}
	if !db.ValidTrigger(req.Trigger) {
		errs["trigger"] = "unknown trigger"
	}
	if !db.ValidTemplateChannel(req.Channel) {
		errs["channel"] = "channel must be whatsapp, sms, email, or all"
	}
	if req.DelayHours < 0 {
		errs["delay_hours"] = "delay_hours must be >= 0"
	}
	if req.Conditions != nil && !json.Valid(req.Conditions) {
		errs["conditions"] = "conditions must be valid JSON"
	}

	if len(errs) == 0 {
		return nil
	}
	return errs
}

// SettingsRequest is the body for saving tenant messaging settings.
type SettingsRequest struct {
	WhatsAppEnabled    bool   `json:"whatsapp_enabled"`
	WhatsAppAPIToken   string `json:"whatsapp_api_token"`
	WhatsAppPhoneID    string `json:"whatsapp_phone_id"`
	WhatsAppBusinessID string `json:"whatsapp_business_id"`

	SMSEnabled    bool   `json:"sms_enabled"`
	SMSProvider   string `json:"sms_provider"`
	SMSAPIKey     string `json:"sms_api_key"`
	SMSSenderName string `json:"sms_sender_name"`

	EmailEnabled     bool   `json:"email_enabled"`
	EmailFromName    string `json:"email_from_name"`
	EmailFromAddress string `json:"email_from_address"`
	SMTPHost         string `json:"email_smtp_host"`
	SMTPPort         int    `json:"email_smtp_port"`
	SMTPUsername     string `json:"email_smtp_username"`
	SMTPPassword     string `json:"email_smtp_password"`
	SMTPUseTLS       bool   `json:"email_smtp_use_tls"`

	AppointmentReminderEnabled bool `json:"appointment_reminder_enabled"`
	AppointmentReminderHours   int  `json:"appointment_reminder_hours"`
	BookingConfirmationEnabled bool `json:"booking_confirmation_enabled"`
}

func validateSettings(req *SettingsRequest) FieldErrors {
	errs := FieldErrors{}

	if req.SMSProvider != "" && !db.ValidSMSProvider(req.SMSProvider) {
		errs["sms_provider"] = "sms_provider must be none, twilio, or messagebird"
	}
	// GSM alphanumeric sender IDs cap at 11 characters
	if len(req.SMSSenderName) > 11 {
		errs["sms_sender_name"] = "sms_sender_name must be at most 11 characters"
	}
	if req.SMTPPort < 0 || req.SMTPPort > 65535 {
		errs["email_smtp_port"] = "email_smtp_port must be between 1 and 65535"
	}
	if req.AppointmentReminderHours != 0 && (req.AppointmentReminderHours < 1 || req.AppointmentReminderHours > 168) {
		errs["appointment_reminder_hours"] = "appointment_reminder_hours must be between 1 and 168"
	}

	if len(errs) == 0 {
		return nil
	}
	return errs
}
