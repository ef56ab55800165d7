package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/erplora/commshub/internal/db"
	"github.com/erplora/commshub/internal/metrics"
)

// campaignDetail augments a campaign with its derived attributes.
type campaignDetail struct {
	*db.Campaign
	StatusColor     string  `json:"status_color"`
	DeliveryRate    float64 `json:"delivery_rate"`
	ProgressPercent float64 `json:"progress_percent"`
}

func newCampaignDetail(c *db.Campaign) campaignDetail {
	return campaignDetail{
		Campaign:        c,
		StatusColor:     c.StatusColor(),
		DeliveryRate:    c.DeliveryRate(),
		ProgressPercent: c.ProgressPercent(),
	}
}

// ListCampaigns handles GET /campaigns?status=&q=
func (h *Handler) ListCampaigns(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID, _ := TenantFromContext(ctx)

	filter := db.CampaignFilter{
		Status:         r.URL.Query().Get("status"),
		Search:         r.URL.Query().Get("q"),
		IncludeDeleted: r.URL.Query().Get("include_deleted") == "true",
	}

	campaigns, err := h.store.ListCampaigns(ctx, tenantID, filter)
	if err != nil {
		h.logger.Error("failed to list campaigns",
			zap.Error(err),
			zap.String("tenant_id", tenantID.String()),
		)
		h.writeError(w, http.StatusInternalServerError, "database_error", "Failed to list campaigns", "")
		return
	}

	details := make([]campaignDetail, 0, len(campaigns))
	for _, c := range campaigns {
		details = append(details, newCampaignDetail(c))
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data":  details,
		"count": len(details),
	})
}

// GetCampaign handles GET /campaigns/{id}
func (h *Handler) GetCampaign(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID, _ := TenantFromContext(ctx)

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Invalid campaign ID", "ID must be a valid UUID")
		return
	}

	campaign, err := h.store.GetCampaign(ctx, tenantID, id)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			h.writeError(w, http.StatusNotFound, "not_found", "Campaign not found", "")
			return
		}
		h.logger.Error("failed to get campaign", zap.Error(err), zap.String("id", id.String()))
		h.writeError(w, http.StatusInternalServerError, "database_error", "Failed to get campaign", "")
		return
	}

	h.writeJSON(w, http.StatusOK, newCampaignDetail(campaign))
}

// CreateCampaign handles POST /campaigns. A campaign with a scheduled_at
// time is created as scheduled, otherwise as draft.
func (h *Handler) CreateCampaign(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID, _ := TenantFromContext(ctx)

	var req CampaignRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Malformed JSON body", err.Error())
		return
	}

	if fieldErrs := validateCampaign(&req); fieldErrs != nil {
		h.writeFieldErrors(w, fieldErrs)
		return
	}

	var templateID *uuid.UUID
	if req.TemplateID != "" {
		tid, err := uuid.Parse(req.TemplateID)
		if err != nil {
			h.writeFieldErrors(w, FieldErrors{"template_id": "template_id must be a valid UUID"})
			return
		}
		templateID = &tid
	}

	status := db.CampaignDraft
	var scheduledAt *time.Time
	if req.ScheduledAt != "" {
		at, err := time.Parse(time.RFC3339, req.ScheduledAt)
		if err != nil {
			h.writeFieldErrors(w, FieldErrors{"scheduled_at": "scheduled_at must be RFC 3339"})
			return
		}
		scheduledAt = &at
		status = db.CampaignScheduled
	}

	targetFilter := req.TargetFilter
	if targetFilter == nil {
		targetFilter = json.RawMessage(`{}`)
	}

	campaign := &db.Campaign{
		ID:              uuid.New(),
		TenantID:        tenantID,
		Name:            req.Name,
		Description:     req.Description,
		Channel:         req.Channel,
		TemplateID:      templateID,
		Status:          status,
		ScheduledAt:     scheduledAt,
		TotalRecipients: req.TotalRecipients,
		TargetFilter:    targetFilter,
	}

	if err := h.store.CreateCampaign(ctx, campaign); err != nil {
		h.logger.Error("failed to create campaign",
			zap.Error(err),
			zap.String("tenant_id", tenantID.String()),
		)
		h.writeError(w, http.StatusInternalServerError, "database_error", "Failed to create campaign", "")
		return
	}

	h.logger.Info("campaign created",
		zap.String("id", campaign.ID.String()),
		zap.String("tenant_id", tenantID.String()),
		zap.String("status", campaign.Status),
	)

	h.writeJSON(w, http.StatusCreated, map[string]interface{}{
		"success":  true,
		"campaign": newCampaignDetail(campaign),
	})
}

// StartCampaign handles POST /campaigns/{id}/start. Only draft and
// scheduled campaigns can start sending.
func (h *Handler) StartCampaign(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID, _ := TenantFromContext(ctx)

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Invalid campaign ID", "ID must be a valid UUID")
		return
	}

	campaign, err := h.store.GetCampaign(ctx, tenantID, id)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			h.writeError(w, http.StatusNotFound, "not_found", "Campaign not found", "")
			return
		}
		h.logger.Error("failed to get campaign", zap.Error(err), zap.String("id", id.String()))
		h.writeError(w, http.StatusInternalServerError, "database_error", "Failed to get campaign", "")
		return
	}

	if campaign.Status != db.CampaignDraft && campaign.Status != db.CampaignScheduled {
		h.writeNotice(w, "Only draft or scheduled campaigns can be started.")
		return
	}

	if err := h.store.StartCampaign(ctx, id); err != nil {
		h.logger.Error("failed to start campaign", zap.Error(err), zap.String("id", id.String()))
		h.writeError(w, http.StatusInternalServerError, "database_error", "Failed to start campaign", "")
		return
	}
	metrics.RecordCampaignTransition(db.CampaignSending)

	h.logger.Info("campaign started",
		zap.String("id", id.String()),
		zap.String("tenant_id", tenantID.String()),
	)

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"id":      id.String(),
		"status":  db.CampaignSending,
	})
}

// CompleteCampaign handles POST /campaigns/{id}/complete, reported by
// the external delivery runner when the last recipient is processed.
// Only a sending campaign can complete.
func (h *Handler) CompleteCampaign(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID, _ := TenantFromContext(ctx)

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Invalid campaign ID", "ID must be a valid UUID")
		return
	}

	campaign, err := h.store.GetCampaign(ctx, tenantID, id)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			h.writeError(w, http.StatusNotFound, "not_found", "Campaign not found", "")
			return
		}
		h.logger.Error("failed to get campaign", zap.Error(err), zap.String("id", id.String()))
		h.writeError(w, http.StatusInternalServerError, "database_error", "Failed to get campaign", "")
		return
	}

	if campaign.Status != db.CampaignSending {
		h.writeNotice(w, "Only a sending campaign can be completed.")
		return
	}

	if err := h.store.CompleteCampaign(ctx, id); err != nil {
		h.logger.Error("failed to complete campaign", zap.Error(err), zap.String("id", id.String()))
		h.writeError(w, http.StatusInternalServerError, "database_error", "Failed to complete campaign", "")
		return
	}
	metrics.RecordCampaignTransition(db.CampaignCompleted)

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"id":      id.String(),
		"status":  db.CampaignCompleted,
	})
}

// DeleteCampaign handles DELETE /campaigns/{id} (soft delete). A
// campaign that is mid-send must be cancelled first.
func (h *Handler) DeleteCampaign(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID, _ := TenantFromContext(ctx)

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Invalid campaign ID", "ID must be a valid UUID")
		return
	}

	campaign, err := h.store.GetCampaign(ctx, tenantID, id)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			h.writeError(w, http.StatusNotFound, "not_found", "Campaign not found", "")
			return
		}
		h.logger.Error("failed to get campaign", zap.Error(err), zap.String("id", id.String()))
		h.writeError(w, http.StatusInternalServerError, "database_error", "Failed to get campaign", "")
		return
	}

	if campaign.Status == db.CampaignSending {
		h.writeNotice(w, "Cancel the campaign before deleting it.")
		return
	}

	if err := h.store.SoftDeleteCampaign(ctx, tenantID, id); err != nil {
		h.logger.Error("failed to delete campaign", zap.Error(err), zap.String("id", id.String()))
		h.writeError(w, http.StatusInternalServerError, "database_error", "Failed to delete campaign", "")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"id":      id.String(),
	})
}

// CancelCampaign handles POST /campaigns/{id}/cancel. Completed and
// already-cancelled campaigns cannot be cancelled.
func (h *Handler) CancelCampaign(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID, _ := TenantFromContext(ctx)

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Invalid campaign ID", "ID must be a valid UUID")
		return
	}

	campaign, err := h.store.GetCampaign(ctx, tenantID, id)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			h.writeError(w, http.StatusNotFound, "not_found", "Campaign not found", "")
			return
		}
		h.logger.Error("failed to get campaign", zap.Error(err), zap.String("id", id.String()))
		h.writeError(w, http.StatusInternalServerError, "database_error", "Failed to get campaign", "")
		return
	}

	if campaign.Status == db.CampaignCompleted || campaign.Status == db.CampaignCancelled {
		h.writeNotice(w, "This campaign has already finished.")
		return
	}

	if err := h.store.CancelCampaign(ctx, id); err != nil {
		h.logger.Error("failed to cancel campaign", zap.Error(err), zap.String("id", id.String()))
		h.writeError(w, http.StatusInternalServerError, "database_error", "Failed to cancel campaign", "")
		return
	}
	metrics.RecordCampaignTransition(db.CampaignCancelled)

	h.logger.Info("campaign cancelled",
		zap.String("id", id.String()),
		zap.String("tenant_id", tenantID.String()),
	)

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"id":      id.String(),
		"status":  db.CampaignCancelled,
	})
}
