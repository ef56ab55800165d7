package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/erplora/commshub/internal/db"
	"github.com/erplora/commshub/internal/metrics"
	"github.com/erplora/commshub/internal/redis"
)

// SendResponse is returned by the machine send API.
type SendResponse struct {
	Success   bool   `json:"success"`
	MessageID string `json:"message_id"`
	Status    string `json:"status"`
}

// Send handles POST /api/send, the machine-to-machine send endpoint.
// Supports idempotency via the Idempotency-Key header.
func (h *Handler) Send(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID, _ := TenantFromContext(ctx)

	idempotencyKey := r.Header.Get("Idempotency-Key")

	var req ComposeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Malformed JSON body", err.Error())
		return
	}

	if fieldErrs := validateCompose(&req); fieldErrs != nil {
		h.writeFieldErrors(w, fieldErrs)
		return
	}

	// Check idempotency if key provided
	if idempotencyKey != "" && h.idempotency != nil {
		cachedResult, err := h.idempotency.CheckOrReserve(ctx, tenantID.String(), idempotencyKey)

		if err != nil {
			if errors.Is(err, redis.ErrDuplicateRequest) {
				h.writeError(w, http.StatusConflict, "duplicate_request",
					"Request is already being processed",
					"Another request with this idempotency key is in progress")
				return
			}
			h.logger.Warn("idempotency check failed, proceeding",
				zap.Error(err),
				zap.String("idempotency_key", idempotencyKey),
			)
		} else if cachedResult != nil {
			metrics.RecordIdempotencyHit()
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("X-Idempotency-Replayed", "true")
			w.WriteHeader(cachedResult.StatusCode)
			_ = json.NewEncoder(w).Encode(SendResponse{
				Success:   true,
				MessageID: cachedResult.MessageID,
				Status:    cachedResult.Status,
			})
			return
		}
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
	metrics.RecordMessageCreated(msg.Channel, "api")

	// Simulated provider dispatch
	if err := h.store.MarkMessageSent(ctx, msg.ID); err != nil {
		h.logger.Error("failed to mark message sent", zap.Error(err), zap.String("id", msg.ID.String()))
	} else {
		msg.Status = db.MessageSent
		metrics.RecordMessageTransition(db.MessageSent)
	}

	h.logger.Info("message sent via api",
		zap.String("id", msg.ID.String()),
		zap.String("tenant_id", tenantID.String()),
		zap.String("channel", msg.Channel),
	)

	// Store idempotency result
	if idempotencyKey != "" && h.idempotency != nil {
		result := &redis.IdempotencyResult{
			MessageID:  msg.ID.String(),
			Status:     msg.Status,
			StatusCode: http.StatusCreated,
		}
		if err := h.idempotency.Store(ctx, tenantID.String(), idempotencyKey, result); err != nil {
			h.logger.Warn("failed to store idempotency result",
				zap.Error(err),
				zap.String("idempotency_key", idempotencyKey),
			)
		}
	}

	h.writeJSON(w, http.StatusCreated, SendResponse{
		Success:   true,
		MessageID: msg.ID.String(),
		Status:    msg.Status,
	})
}

// WebhookRequest is the body posted by delivery providers.
type WebhookRequest struct {
	ExternalID   string `json:"external_id"`
	Status       string `json:"status"`
	ErrorMessage string `json:"error,omitempty"`
}

// Webhook handles POST /api/webhook, the provider delivery-status
// callback. It is keyed by external_id rather than tenant, so it sits
// outside the tenant-scoped route group.
func (h *Handler) Webhook(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req WebhookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Malformed JSON body", err.Error())
		return
	}

	if req.ExternalID == "" || req.Status == "" {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Missing required fields",
			"external_id and status are required")
		return
	}

	msg, err := h.store.GetMessageByExternalID(ctx, req.ExternalID)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			h.writeError(w, http.StatusNotFound, "not_found", "Message not found", "")
			return
		}
		h.logger.Error("failed to look up message by external id",
			zap.Error(err),
			zap.String("external_id", req.ExternalID),
		)
		h.writeError(w, http.StatusInternalServerError, "database_error", "Failed to process webhook", "")
		return
	}

	metrics.RecordWebhookEvent(req.Status)

	switch req.Status {
	case db.MessageSent:
		err = h.store.MarkMessageSent(ctx, msg.ID)
	case db.MessageDelivered:
		err = h.store.MarkMessageDelivered(ctx, msg.ID)
	case db.MessageRead:
		err = h.store.MarkMessageRead(ctx, msg.ID)
	case db.MessageFailed:
		err = h.store.MarkMessageFailed(ctx, msg.ID, req.ErrorMessage)
	default:
		// Providers report statuses we do not track; acknowledge and
		// leave the message untouched so they stop retrying.
		h.logger.Debug("ignoring unknown webhook status",
			zap.String("status", req.Status),
			zap.String("external_id", req.ExternalID),
		)
		h.writeJSON(w, http.StatusOK, map[string]interface{}{"success": true})
		return
	}

	if err != nil {
		h.logger.Error("failed to apply webhook status",
			zap.Error(err),
			zap.String("external_id", req.ExternalID),
			zap.String("status", req.Status),
		)
		h.writeError(w, http.StatusInternalServerError, "database_error", "Failed to process webhook", "")
		return
	}
	metrics.RecordMessageTransition(req.Status)

	h.logger.Info("webhook processed",
		zap.String("message_id", msg.ID.String()),
		zap.String("external_id", req.ExternalID),
		zap.String("status", req.Status),
	)

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":    true,
		"message_id": msg.ID.String(),
		"status":     req.Status,
	})
}
