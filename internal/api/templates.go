package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/erplora/commshub/internal/db"
	"github.com/erplora/commshub/internal/template"
)

// ListTemplates handles GET /templates?q=&channel=&active=
func (h *Handler) ListTemplates(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID, _ := TenantFromContext(ctx)

	filter := db.TemplateFilter{
		Search:         r.URL.Query().Get("q"),
		Channel:        r.URL.Query().Get("channel"),
		ActiveOnly:     r.URL.Query().Get("active") == "true",
		IncludeDeleted: r.URL.Query().Get("include_deleted") == "true",
	}

	templates, err := h.store.ListTemplates(ctx, tenantID, filter)
	if err != nil {
		h.logger.Error("failed to list templates",
			zap.Error(err),
			zap.String("tenant_id", tenantID.String()),
		)
		h.writeError(w, http.StatusInternalServerError, "database_error", "Failed to list templates", "")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data":  templates,
		"count": len(templates),
	})
}

// templateDetail augments a template with its extracted placeholders.
type templateDetail struct {
	*db.Template
	Placeholders []string `json:"placeholders"`
}

// GetTemplate handles GET /templates/{id}
func (h *Handler) GetTemplate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID, _ := TenantFromContext(ctx)

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Invalid template ID", "ID must be a valid UUID")
		return
	}

	tmpl, err := h.store.GetTemplate(ctx, tenantID, id)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			h.writeError(w, http.StatusNotFound, "not_found", "Template not found", "")
			return
		}
		h.logger.Error("failed to get template", zap.Error(err), zap.String("id", id.String()))
		h.writeError(w, http.StatusInternalServerError, "database_error", "Failed to get template", "")
		return
	}

	h.writeJSON(w, http.StatusOK, templateDetail{
		Template:     tmpl,
		Placeholders: template.Placeholders(tmpl.Subject + " " + tmpl.Body),
	})
}

// CreateTemplate handles POST /templates
func (h *Handler) CreateTemplate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID, _ := TenantFromContext(ctx)

	var req TemplateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Malformed JSON body", err.Error())
		return
	}

	if fieldErrs := validateTemplate(&req); fieldErrs != nil {
		h.writeFieldErrors(w, fieldErrs)
		return
	}

	isActive := true
	if req.IsActive != nil {
		isActive = *req.IsActive
	}

	tmpl := &db.Template{
		ID:       uuid.New(),
		TenantID: tenantID,
		Name:     req.Name,
		Channel:  req.Channel,
		Category: req.Category,
		Subject:  req.Subject,
		Body:     req.Body,
		IsActive: isActive,
	}

	if err := h.store.CreateTemplate(ctx, tmpl); err != nil {
		h.logger.Error("failed to create template",
			zap.Error(err),
			zap.String("tenant_id", tenantID.String()),
		)
		h.writeError(w, http.StatusInternalServerError, "database_error", "Failed to create template", "")
		return
	}

	h.logger.Info("template created",
		zap.String("id", tmpl.ID.String()),
		zap.String("tenant_id", tenantID.String()),
		zap.String("name", tmpl.Name),
	)

	h.writeJSON(w, http.StatusCreated, map[string]interface{}{
		"success":  true,
		"template": tmpl,
	})
}

// UpdateTemplate handles PUT /templates/{id}
func (h *Handler) UpdateTemplate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID, _ := TenantFromContext(ctx)

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Invalid template ID", "ID must be a valid UUID")
		return
	}

	tmpl, err := h.store.GetTemplate(ctx, tenantID, id)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			h.writeError(w, http.StatusNotFound, "not_found", "Template not found", "")
			return
		}
		h.logger.Error("failed to get template", zap.Error(err), zap.String("id", id.String()))
		h.writeError(w, http.StatusInternalServerError, "database_error", "Failed to get template", "")
		return
	}

	var req TemplateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Malformed JSON body", err.Error())
		return
	}

	if fieldErrs := validateTemplate(&req); fieldErrs != nil {
		h.writeFieldErrors(w, fieldErrs)
		return
	}

	tmpl.Name = req.Name
	tmpl.Channel = req.Channel
	tmpl.Category = req.Category
	tmpl.Subject = req.Subject
	tmpl.Body = req.Body
	if req.IsActive != nil {
		tmpl.IsActive = *req.IsActive
	}

	if err := h.store.UpdateTemplate(ctx, tmpl); err != nil {
		h.logger.Error("failed to update template", zap.Error(err), zap.String("id", id.String()))
		h.writeError(w, http.StatusInternalServerError, "database_error", "Failed to update template", "")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":  true,
		"template": tmpl,
	})
}

// DeleteTemplate handles DELETE /templates/{id}. System templates are
// protected and cannot be deleted.
func (h *Handler) DeleteTemplate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID, _ := TenantFromContext(ctx)

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Invalid template ID", "ID must be a valid UUID")
		return
	}

	tmpl, err := h.store.GetTemplate(ctx, tenantID, id)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			h.writeError(w, http.StatusNotFound, "not_found", "Template not found", "")
			return
		}
		h.logger.Error("failed to get template", zap.Error(err), zap.String("id", id.String()))
		h.writeError(w, http.StatusInternalServerError, "database_error", "Failed to get template", "")
		return
	}

	if tmpl.IsSystem {
		h.writeNotice(w, "System templates cannot be deleted.")
		return
	}

	if err := h.store.SoftDeleteTemplate(ctx, tenantID, id); err != nil {
		h.logger.Error("failed to delete template", zap.Error(err), zap.String("id", id.String()))
		h.writeError(w, http.StatusInternalServerError, "database_error", "Failed to delete template", "")
		return
	}

	h.logger.Info("template deleted",
		zap.String("id", id.String()),
		zap.String("tenant_id", tenantID.String()),
	)

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"id":      id.String(),
	})
}
