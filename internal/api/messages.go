package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/erplora/commshub/internal/db"
	"github.com/erplora/commshub/internal/metrics"
	"github.com/erplora/commshub/internal/template"
)

// ListMessages handles GET /messages?channel=&status=&q=&page=&per_page=
func (h *Handler) ListMessages(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID, _ := TenantFromContext(ctx)

	filter := db.MessageFilter{
		Channel:        r.URL.Query().Get("channel"),
		Status:         r.URL.Query().Get("status"),
		Search:         r.URL.Query().Get("q"),
		IncludeDeleted: r.URL.Query().Get("include_deleted") == "true",
	}
	page, perPage := parsePagination(r)

	messages, total, err := h.store.ListMessages(ctx, tenantID, filter, page, perPage)
	if err != nil {
		h.logger.Error("failed to list messages",
			zap.Error(err),
			zap.String("tenant_id", tenantID.String()),
		)
		h.writeError(w, http.StatusInternalServerError, "database_error", "Failed to list messages", "")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data":        messages,
		"page":        page,
		"per_page":    perPage,
		"total":       total,
		"total_pages": totalPages(total, perPage),
	})
}

// messageDetail augments a message with its presentation attributes.
type messageDetail struct {
	*db.Message
	ChannelIcon string `json:"channel_icon"`
	StatusColor string `json:"status_color"`
}

// GetMessage handles GET /messages/{id}
func (h *Handler) GetMessage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID, _ := TenantFromContext(ctx)

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Invalid message ID", "ID must be a valid UUID")
		return
	}

	msg, err := h.store.GetMessage(ctx, tenantID, id)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			h.writeError(w, http.StatusNotFound, "not_found", "Message not found", "")
			return
		}
		h.logger.Error("failed to get message", zap.Error(err), zap.String("id", id.String()))
		h.writeError(w, http.StatusInternalServerError, "database_error", "Failed to get message", "")
		return
	}

	h.writeJSON(w, http.StatusOK, messageDetail{
		Message:     msg,
		ChannelIcon: msg.ChannelIcon(),
		StatusColor: msg.StatusColor(),
	})
}

// ComposeMessage handles POST /messages. The message is persisted as
// queued and then immediately handed to the (simulated) provider, which
// marks it sent.
func (h *Handler) ComposeMessage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID, _ := TenantFromContext(ctx)

	var req ComposeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Malformed JSON body", err.Error())
		return
	}

	if fieldErrs := validateCompose(&req); fieldErrs != nil {
		h.writeFieldErrors(w, fieldErrs)
		return
	}

	settings, err := h.store.GetOrCreateSettings(ctx, tenantID)
	if err != nil {
		h.logger.Error("failed to load settings", zap.Error(err), zap.String("tenant_id", tenantID.String()))
		h.writeError(w, http.StatusInternalServerError, "database_error", "Failed to load settings", "")
		return
	}
	if !settings.ChannelEnabled(req.Channel) {
		h.writeNotice(w, "The "+req.Channel+" channel is not enabled for this workspace.")
		return
	}

	msg, fieldErrs, err := h.buildMessage(r, tenantID, &req)
	if err != nil {
		h.logger.Error("failed to build message", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "database_error", "Failed to create message", "")
		return
	}
	if fieldErrs != nil {
		h.writeFieldErrors(w, fieldErrs)
		return
	}

	if err := h.store.CreateMessage(ctx, msg); err != nil {
		h.logger.Error("failed to create message",
			zap.Error(err),
			zap.String("tenant_id", tenantID.String()),
			zap.String("channel", req.Channel),
		)
		h.writeError(w, http.StatusInternalServerError, "database_error", "Failed to create message", "")
		return
	}
	metrics.RecordMessageCreated(msg.Channel, "compose")

	// Simulated provider dispatch
	if err := h.store.MarkMessageSent(ctx, msg.ID); err != nil {
		h.logger.Error("failed to mark message sent", zap.Error(err), zap.String("id", msg.ID.String()))
	} else {
		msg.Status = db.MessageSent
		metrics.RecordMessageTransition(db.MessageSent)
	}

	h.logger.Info("message composed",
		zap.String("id", msg.ID.String()),
		zap.String("tenant_id", tenantID.String()),
		zap.String("channel", msg.Channel),
	)

	h.writeJSON(w, http.StatusCreated, map[string]interface{}{
		"success": true,
		"message": msg,
	})
}

// buildMessage assembles a queued Message from a compose request,
// rendering the template when one is referenced.
func (h *Handler) buildMessage(r *http.Request, tenantID uuid.UUID, req *ComposeRequest) (*db.Message, FieldErrors, error) {
	ctx := r.Context()

	subject := req.Subject
	body := req.Body
	var templateID *uuid.UUID

	if req.TemplateID != "" {
		tid, err := uuid.Parse(req.TemplateID)
		if err != nil {
			return nil, FieldErrors{"template_id": "template_id must be a valid UUID"}, nil
		}
		tmpl, err := h.store.GetTemplate(ctx, tenantID, tid)
		if err != nil {
			if errors.Is(err, db.ErrNotFound) {
				return nil, FieldErrors{"template_id": "template not found"}, nil
			}
			return nil, nil, err
		}
		if !tmpl.IsActive {
			return nil, FieldErrors{"template_id": "template is inactive"}, nil
		}

		renderCtx := map[string]string{"customer_name": req.RecipientName}
		for k, v := range req.Context {
			renderCtx[k] = v
		}
		subject = template.Render(tmpl.Subject, renderCtx)
		body = template.Render(tmpl.Body, renderCtx)
		templateID = &tid
	}

	var customerID *uuid.UUID
	if req.CustomerID != "" {
		cid, err := uuid.Parse(req.CustomerID)
		if err != nil {
			return nil, FieldErrors{"customer_id": "customer_id must be a valid UUID"}, nil
		}
		customerID = &cid
	}

	externalID := req.ExternalID
	if externalID == "" {
		externalID = uuid.New().String()
	}

	metadata := req.Metadata
	if metadata == nil {
		metadata = json.RawMessage(`{}`)
	}

	return &db.Message{
		ID:               uuid.New(),
		TenantID:         tenantID,
		Channel:          req.Channel,
		RecipientName:    req.RecipientName,
		RecipientContact: req.RecipientContact,
		Subject:          subject,
		Body:             body,
		Status:           db.MessageQueued,
		TemplateID:       templateID,
		CustomerID:       customerID,
		ExternalID:       externalID,
		Metadata:         metadata,
	}, nil, nil
}

// DeleteMessage handles DELETE /messages/{id} (soft delete)
func (h *Handler) DeleteMessage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID, _ := TenantFromContext(ctx)

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Invalid message ID", "ID must be a valid UUID")
		return
	}

	if err := h.store.SoftDeleteMessage(ctx, tenantID, id); err != nil {
		if errors.Is(err, db.ErrNotFound) {
			h.writeError(w, http.StatusNotFound, "not_found", "Message not found", "")
			return
		}
		h.logger.Error("failed to delete message", zap.Error(err), zap.String("id", id.String()))
		h.writeError(w, http.StatusInternalServerError, "database_error", "Failed to delete message", "")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"id":      id.String(),
	})
}
