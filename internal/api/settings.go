package api

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"
)

// GetSettings handles GET /settings. Settings rows are created lazily
// with defaults on first read, so this never 404s.
func (h *Handler) GetSettings(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID, _ := TenantFromContext(ctx)

	settings, err := h.store.GetOrCreateSettings(ctx, tenantID)
	if err != nil {
		h.logger.Error("failed to load settings",
			zap.Error(err),
			zap.String("tenant_id", tenantID.String()),
		)
		h.writeError(w, http.StatusInternalServerError, "database_error", "Failed to load settings", "")
		return
	}

	activeTemplates, err := h.store.CountTemplates(ctx, tenantID, true)
	if err != nil {
		h.logger.Error("failed to count templates", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "database_error", "Failed to load settings", "")
		return
	}

	totalCampaigns, err := h.store.CountCampaigns(ctx, tenantID)
	if err != nil {
		h.logger.Error("failed to count campaigns", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "database_error", "Failed to load settings", "")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"settings":         settings,
		"active_templates": activeTemplates,
		"total_campaigns":  totalCampaigns,
	})
}

// UpdateSettings handles PUT /settings
func (h *Handler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID, _ := TenantFromContext(ctx)

	var req SettingsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Malformed JSON body", err.Error())
		return
	}

	if fieldErrs := validateSettings(&req); fieldErrs != nil {
		h.writeFieldErrors(w, fieldErrs)
		return
	}

	// Load first so id and defaults survive a partial save.
	settings, err := h.store.GetOrCreateSettings(ctx, tenantID)
	if err != nil {
		h.logger.Error("failed to load settings", zap.Error(err), zap.String("tenant_id", tenantID.String()))
		h.writeError(w, http.StatusInternalServerError, "database_error", "Failed to load settings", "")
		return
	}

	settings.WhatsAppEnabled = req.WhatsAppEnabled
	settings.WhatsAppAPIToken = req.WhatsAppAPIToken
	settings.WhatsAppPhoneID = req.WhatsAppPhoneID
	settings.WhatsAppBusinessID = req.WhatsAppBusinessID

	settings.SMSEnabled = req.SMSEnabled
	if req.SMSProvider != "" {
		settings.SMSProvider = req.SMSProvider
	}
	settings.SMSAPIKey = req.SMSAPIKey
	settings.SMSSenderName = req.SMSSenderName

	settings.EmailEnabled = req.EmailEnabled
	settings.EmailFromName = req.EmailFromName
	settings.EmailFromAddress = req.EmailFromAddress
	settings.SMTPHost = req.SMTPHost
	if req.SMTPPort != 0 {
		settings.SMTPPort = req.SMTPPort
	}
	settings.SMTPUsername = req.SMTPUsername
	settings.SMTPPassword = req.SMTPPassword
	settings.SMTPUseTLS = req.SMTPUseTLS

	settings.AppointmentReminderEnabled = req.AppointmentReminderEnabled
	if req.AppointmentReminderHours != 0 {
		settings.AppointmentReminderHours = req.AppointmentReminderHours
	}
	settings.BookingConfirmationEnabled = req.BookingConfirmationEnabled

	if err := h.store.UpdateSettings(ctx, settings); err != nil {
		h.logger.Error("failed to update settings", zap.Error(err), zap.String("tenant_id", tenantID.String()))
		h.writeError(w, http.StatusInternalServerError, "database_error", "Failed to update settings", "")
		return
	}

	h.logger.Info("settings updated", zap.String("tenant_id", tenantID.String()))

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":  true,
		"settings": settings,
	})
}
