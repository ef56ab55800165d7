package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/erplora/commshub/internal/db"
)

// automationDetail augments an automation with its trigger icon.
type automationDetail struct {
	*db.Automation
	TriggerIcon string `json:"trigger_icon"`
}

// ListAutomations handles GET /automations?trigger=&active=
func (h *Handler) ListAutomations(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID, _ := TenantFromContext(ctx)

	filter := db.AutomationFilter{
		Trigger:        r.URL.Query().Get("trigger"),
		IncludeDeleted: r.URL.Query().Get("include_deleted") == "true",
	}
	if active := r.URL.Query().Get("active"); active != "" {
		v := active == "true"
		filter.ActiveOnly = &v
	}

	automations, err := h.store.ListAutomations(ctx, tenantID, filter)
	if err != nil {
		h.logger.Error("failed to list automations",
			zap.Error(err),
			zap.String("tenant_id", tenantID.String()),
		)
		h.writeError(w, http.StatusInternalServerError, "database_error", "Failed to list automations", "")
		return
	}

	details := make([]automationDetail, 0, len(automations))
	for _, a := range automations {
		details = append(details, automationDetail{Automation: a, TriggerIcon: a.TriggerIcon()})
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data":  details,
		"count": len(details),
	})
}

// GetAutomation handles GET /automations/{id}
func (h *Handler) GetAutomation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID, _ := TenantFromContext(ctx)

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Invalid automation ID", "ID must be a valid UUID")
		return
	}

	automation, err := h.store.GetAutomation(ctx, tenantID, id)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			h.writeError(w, http.StatusNotFound, "not_found", "Automation not found", "")
			return
		}
		h.logger.Error("failed to get automation", zap.Error(err), zap.String("id", id.String()))
		h.writeError(w, http.StatusInternalServerError, "database_error", "Failed to get automation", "")
		return
	}

	h.writeJSON(w, http.StatusOK, automationDetail{Automation: automation, TriggerIcon: automation.TriggerIcon()})
}

// CreateAutomation handles POST /automations
func (h *Handler) CreateAutomation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID, _ := TenantFromContext(ctx)

	var req AutomationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Malformed JSON body", err.Error())
		return
	}

	if fieldErrs := validateAutomation(&req); fieldErrs != nil {
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

	isActive := true
	if req.IsActive != nil {
		isActive = *req.IsActive
	}

	conditions := req.Conditions
	if conditions == nil {
		conditions = json.RawMessage(`{}`)
	}

	automation := &db.Automation{
		ID:          uuid.New(),
		TenantID:    tenantID,
		Name:        req.Name,
		Description: req.Description,
		Trigger:     req.Trigger,
		Channel:     req.Channel,
		TemplateID:  templateID,
		DelayHours:  req.DelayHours,
		IsActive:    isActive,
		Conditions:  conditions,
	}

	if err := h.store.CreateAutomation(ctx, automation); err != nil {
		h.logger.Error("failed to create automation",
			zap.Error(err),
			zap.String("tenant_id", tenantID.String()),
		)
		h.writeError(w, http.StatusInternalServerError, "database_error", "Failed to create automation", "")
		return
	}

	h.logger.Info("automation created",
		zap.String("id", automation.ID.String()),
		zap.String("tenant_id", tenantID.String()),
		zap.String("trigger", automation.Trigger),
	)

	h.writeJSON(w, http.StatusCreated, map[string]interface{}{
		"success":    true,
		"automation": automationDetail{Automation: automation, TriggerIcon: automation.TriggerIcon()},
	})
}

// UpdateAutomation handles PUT /automations/{id}
func (h *Handler) UpdateAutomation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID, _ := TenantFromContext(ctx)

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Invalid automation ID", "ID must be a valid UUID")
		return
	}

	automation, err := h.store.GetAutomation(ctx, tenantID, id)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			h.writeError(w, http.StatusNotFound, "not_found", "Automation not found", "")
			return
		}
		h.logger.Error("failed to get automation", zap.Error(err), zap.String("id", id.String()))
		h.writeError(w, http.StatusInternalServerError, "database_error", "Failed to get automation", "")
		return
	}

	var req AutomationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Malformed JSON body", err.Error())
		return
	}

	if fieldErrs := validateAutomation(&req); fieldErrs != nil {
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

	automation.Name = req.Name
	automation.Description = req.Description
	automation.Trigger = req.Trigger
	automation.Channel = req.Channel
	automation.TemplateID = templateID
	automation.DelayHours = req.DelayHours
	if req.IsActive != nil {
		automation.IsActive = *req.IsActive
	}
	if req.Conditions != nil {
		automation.Conditions = req.Conditions
	}

	if err := h.store.UpdateAutomation(ctx, automation); err != nil {
		h.logger.Error("failed to update automation", zap.Error(err), zap.String("id", id.String()))
		h.writeError(w, http.StatusInternalServerError, "database_error", "Failed to update automation", "")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":    true,
		"automation": automationDetail{Automation: automation, TriggerIcon: automation.TriggerIcon()},
	})
}

// DeleteAutomation handles DELETE /automations/{id} (soft delete)
func (h *Handler) DeleteAutomation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID, _ := TenantFromContext(ctx)

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Invalid automation ID", "ID must be a valid UUID")
		return
	}

	if err := h.store.SoftDeleteAutomation(ctx, tenantID, id); err != nil {
		if errors.Is(err, db.ErrNotFound) {
			h.writeError(w, http.StatusNotFound, "not_found", "Automation not found", "")
			return
		}
		h.logger.Error("failed to delete automation", zap.Error(err), zap.String("id", id.String()))
		h.writeError(w, http.StatusInternalServerError, "database_error", "Failed to delete automation", "")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"id":      id.String(),
	})
}

// ListExecutions handles GET /automations/{id}/executions?page=&per_page=
func (h *Handler) ListExecutions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID, _ := TenantFromContext(ctx)

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Invalid automation ID", "ID must be a valid UUID")
		return
	}

	// The rule must exist for this tenant before exposing its audit trail.
	if _, err := h.store.GetAutomation(ctx, tenantID, id); err != nil {
		if errors.Is(err, db.ErrNotFound) {
			h.writeError(w, http.StatusNotFound, "not_found", "Automation not found", "")
			return
		}
		h.logger.Error("failed to get automation", zap.Error(err), zap.String("id", id.String()))
		h.writeError(w, http.StatusInternalServerError, "database_error", "Failed to get automation", "")
		return
	}

	page, perPage := parsePagination(r)

	executions, total, err := h.store.ListExecutions(ctx, tenantID, id, page, perPage)
	if err != nil {
		h.logger.Error("failed to list executions", zap.Error(err), zap.String("automation_id", id.String()))
		h.writeError(w, http.StatusInternalServerError, "database_error", "Failed to list executions", "")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data":        executions,
		"page":        page,
		"per_page":    perPage,
		"total":       total,
		"total_pages": totalPages(total, perPage),
	})
}
