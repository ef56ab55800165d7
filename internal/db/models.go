package db

import (
	"encoding/json"
	"math"
	"time"

	"github.com/google/uuid"
)

// Channel constants. Templates and automations additionally accept
// ChannelAll as a wildcard; messages always carry a concrete channel.
const (
	ChannelWhatsApp = "whatsapp"
	ChannelSMS      = "sms"
	ChannelEmail    = "email"
	ChannelAll      = "all"
)

// Message status constants
const (
	MessageQueued    = "queued"
	MessageSent      = "sent"
	MessageDelivered = "delivered"
	MessageFailed    = "failed"
	MessageRead      = "read"
)

// Campaign status constants
const (
	CampaignDraft     = "draft"
	CampaignScheduled = "scheduled"
	CampaignSending   = "sending"
	CampaignCompleted = "completed"
	CampaignCancelled = "cancelled"
)

// Automation execution status constants
const (
	ExecutionPending = "pending"
	ExecutionSent    = "sent"
	ExecutionFailed  = "failed"
	ExecutionSkipped = "skipped"
)

// SMS provider constants
const (
	SMSProviderNone        = "none"
	SMSProviderTwilio      = "twilio"
	SMSProviderMessageBird = "messagebird"
)

// Template category constants
const (
	CategoryAppointmentReminder = "appointment_reminder"
	CategoryBookingConfirmation = "booking_confirmation"
	CategoryReceipt             = "receipt"
	CategoryMarketing           = "marketing"
	CategoryCustom              = "custom"
)

// Automation trigger constants (CRM event kinds)
const (
	TriggerWelcome           = "welcome"
	TriggerBirthday          = "birthday"
	TriggerAnniversary       = "anniversary"
	TriggerPostSale          = "post_sale"
	TriggerPostAppointment   = "post_appointment"
	TriggerInactivity        = "inactivity"
	TriggerLoyaltyTierChange = "loyalty_tier_change"
	TriggerLeadStageChange   = "lead_stage_change"
	TriggerTicketResolved    = "ticket_resolved"
	TriggerBookingConfirmed  = "booking_confirmed"
	TriggerBookingReminder   = "booking_reminder"
	TriggerCustom            = "custom"
)

// AutomationTriggers lists every known CRM trigger kind.
var AutomationTriggers = []string{
	TriggerWelcome, TriggerBirthday, TriggerAnniversary, TriggerPostSale,
	TriggerPostAppointment, TriggerInactivity, TriggerLoyaltyTierChange,
	TriggerLeadStageChange, TriggerTicketResolved, TriggerBookingConfirmed,
	TriggerBookingReminder, TriggerCustom,
}

// TemplateCategories lists every known template category.
var TemplateCategories = []string{
	CategoryAppointmentReminder, CategoryBookingConfirmation,
	CategoryReceipt, CategoryMarketing, CategoryCustom,
}

// Template is a reusable message body/subject with {{variable}} placeholders.
type Template struct {
	ID        uuid.UUID `json:"id"`
	TenantID  uuid.UUID `json:"tenant_id"`
	Name      string    `json:"name"`
	Channel   string    `json:"channel"`
	Category  string    `json:"category"`
	Subject   string    `json:"subject"`
	Body      string    `json:"body"`
	IsActive  bool      `json:"is_active"`
	IsSystem  bool      `json:"is_system"`
	IsDeleted bool      `json:"is_deleted"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Message is one outbound communication attempt and its delivery lifecycle.
type Message struct {
	ID               uuid.UUID       `json:"id"`
	TenantID         uuid.UUID       `json:"tenant_id"`
	Channel          string          `json:"channel"`
	RecipientName    string          `json:"recipient_name"`
	RecipientContact string          `json:"recipient_contact"`
	Subject          string          `json:"subject"`
	Body             string          `json:"body"`
	Status           string          `json:"status"`
	TemplateID       *uuid.UUID      `json:"template_id,omitempty"`
	CustomerID       *uuid.UUID      `json:"customer_id,omitempty"`
	SentAt           *time.Time      `json:"sent_at,omitempty"`
	DeliveredAt      *time.Time      `json:"delivered_at,omitempty"`
	ReadAt           *time.Time      `json:"read_at,omitempty"`
	ErrorMessage     string          `json:"error_message"`
	ExternalID       string          `json:"external_id"`
	Metadata         json.RawMessage `json:"metadata"`
	IsDeleted        bool            `json:"is_deleted"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

var channelIcons = map[string]string{
	ChannelWhatsApp: "logo-whatsapp",
	ChannelSMS:      "chatbubble-outline",
	ChannelEmail:    "mail-outline",
}

// ChannelIcon returns the icon key for this message's channel.
func (m *Message) ChannelIcon() string {
	if icon, ok := channelIcons[m.Channel]; ok {
		return icon
	}
	return "chatbubble-outline"
}

var messageStatusColors = map[string]string{
	MessageQueued:    "color-warning",
	MessageSent:      "color-primary",
	MessageDelivered: "color-success",
	MessageFailed:    "color-error",
	MessageRead:      "color-success",
}

// StatusColor returns the ux color class for this message's status.
// Unknown statuses map to the empty (neutral) class.
func (m *Message) StatusColor() string {
	return messageStatusColors[m.Status]
}

// Campaign groups a bulk send with aggregate progress counters.
type Campaign struct {
	ID              uuid.UUID       `json:"id"`
	TenantID        uuid.UUID       `json:"tenant_id"`
	Name            string          `json:"name"`
	Description     string          `json:"description"`
	Channel         string          `json:"channel"`
	TemplateID      *uuid.UUID      `json:"template_id,omitempty"`
	Status          string          `json:"status"`
	ScheduledAt     *time.Time      `json:"scheduled_at,omitempty"`
	StartedAt       *time.Time      `json:"started_at,omitempty"`
	CompletedAt     *time.Time      `json:"completed_at,omitempty"`
	TotalRecipients int             `json:"total_recipients"`
	SentCount       int             `json:"sent_count"`
	DeliveredCount  int             `json:"delivered_count"`
	FailedCount     int             `json:"failed_count"`
	TargetFilter    json.RawMessage `json:"target_filter"`
	IsDeleted       bool            `json:"is_deleted"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

func roundPercent(part, whole int) float64 {
	if whole == 0 {
		return 0
	}
	return math.Round(float64(part)/float64(whole)*1000) / 10
}

// DeliveryRate is delivered_count/sent_count as a percentage, one decimal.
func (c *Campaign) DeliveryRate() float64 {
	return roundPercent(c.DeliveredCount, c.SentCount)
}

// ProgressPercent is sent_count/total_recipients as a percentage, one decimal.
func (c *Campaign) ProgressPercent() float64 {
	return roundPercent(c.SentCount, c.TotalRecipients)
}

var campaignStatusColors = map[string]string{
	CampaignDraft:     "",
	CampaignScheduled: "color-warning",
	CampaignSending:   "color-primary",
	CampaignCompleted: "color-success",
	CampaignCancelled: "color-error",
}

// StatusColor returns the ux color class for this campaign's status.
func (c *Campaign) StatusColor() string {
	return campaignStatusColors[c.Status]
}

// Automation is a declarative trigger -> template -> channel rule.
type Automation struct {
	ID              uuid.UUID       `json:"id"`
	TenantID        uuid.UUID       `json:"tenant_id"`
	Name            string          `json:"name"`
	Description     string          `json:"description"`
	Trigger         string          `json:"trigger"`
	Channel         string          `json:"channel"`
	TemplateID      *uuid.UUID      `json:"template_id,omitempty"`
	DelayHours      int             `json:"delay_hours"`
	IsActive        bool            `json:"is_active"`
	Conditions      json.RawMessage `json:"conditions"`
	TotalSent       int             `json:"total_sent"`
	LastTriggeredAt *time.Time      `json:"last_triggered_at,omitempty"`
	IsDeleted       bool            `json:"is_deleted"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

var triggerIcons = map[string]string{
	TriggerWelcome:           "hand-right-outline",
	TriggerBirthday:          "gift-outline",
	TriggerAnniversary:       "heart-outline",
	TriggerPostSale:          "cart-outline",
	TriggerPostAppointment:   "calendar-outline",
	TriggerInactivity:        "time-outline",
	TriggerLoyaltyTierChange: "trophy-outline",
	TriggerLeadStageChange:   "funnel-outline",
	TriggerTicketResolved:    "checkmark-done-outline",
	TriggerBookingConfirmed:  "globe-outline",
	TriggerBookingReminder:   "alarm-outline",
	TriggerCustom:            "code-outline",
}

// TriggerIcon returns the icon key for this automation's trigger.
func (a *Automation) TriggerIcon() string {
	if icon, ok := triggerIcons[a.Trigger]; ok {
		return icon
	}
	return "flash-outline"
}

// Execution is one audit-trail row per attempted automation firing.
type Execution struct {
	ID           uuid.UUID       `json:"id"`
	TenantID     uuid.UUID       `json:"tenant_id"`
	AutomationID uuid.UUID       `json:"automation_id"`
	CustomerID   *uuid.UUID      `json:"customer_id,omitempty"`
	MessageID    *uuid.UUID      `json:"message_id,omitempty"`
	Status       string          `json:"status"`
	TriggerData  json.RawMessage `json:"trigger_data"`
	ErrorMessage string          `json:"error_message"`
	ScheduledFor *time.Time      `json:"scheduled_for,omitempty"`
	ExecutedAt   *time.Time      `json:"executed_at,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// Settings holds per-tenant channel toggles, provider credentials, and
// automation preferences. One row per tenant, created lazily on first read.
type Settings struct {
	ID       uuid.UUID `json:"id"`
	TenantID uuid.UUID `json:"tenant_id"`

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

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ChannelEnabled reports whether the given send channel is switched on.
func (s *Settings) ChannelEnabled(channel string) bool {
	switch channel {
	case ChannelWhatsApp:
		return s.WhatsAppEnabled
	case ChannelSMS:
		return s.SMSEnabled
	case ChannelEmail:
		return s.EmailEnabled
	default:
		return false
	}
}

// ValidMessageChannel reports whether channel is a sendable channel.
func ValidMessageChannel(channel string) bool {
	return channel == ChannelWhatsApp || channel == ChannelSMS || channel == ChannelEmail
}

// ValidTemplateChannel additionally accepts the "all" wildcard.
func ValidTemplateChannel(channel string) bool {
	return ValidMessageChannel(channel) || channel == ChannelAll
}

// ValidTrigger reports whether trigger is a known CRM event kind.
func ValidTrigger(trigger string) bool {
	for _, t := range AutomationTriggers {
		if t == trigger {
			return true
		}
	}
	return false
}

// ValidCategory reports whether category is a known template category.
func ValidCategory(category string) bool {
	for _, c := range TemplateCategories {
		if c == category {
			return true
		}
	}
	return false
}

// ValidSMSProvider reports whether provider is a configurable SMS provider.
func ValidSMSProvider(provider string) bool {
	return provider == SMSProviderNone || provider == SMSProviderTwilio || provider == SMSProviderMessageBird
}
