// Package api exposes the tenant-facing HTTP surface: messaging CRUD,
// campaign lifecycle, automation rules, settings, the machine send API,
// and the provider status webhook.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/erplora/commshub/internal/db"
	"github.com/erplora/commshub/internal/redis"
)

// Store defines the persistence operations the HTTP layer depends on.
type Store interface {
	// Messages
	CreateMessage(ctx context.Context, msg *db.Message) error
	GetMessage(ctx context.Context, tenantID, id uuid.UUID) (*db.Message, error)
	GetMessageByExternalID(ctx context.Context, externalID string) (*db.Message, error)
	ListMessages(ctx context.Context, tenantID uuid.UUID, filter db.MessageFilter, page, perPage int) ([]*db.Message, int, error)
	RecentMessages(ctx context.Context, tenantID uuid.UUID, limit int) ([]*db.Message, error)
	GetMessageStats(ctx context.Context, tenantID uuid.UUID) (*db.MessageStats, error)
	MarkMessageSent(ctx context.Context, id uuid.UUID) error
	MarkMessageDelivered(ctx context.Context, id uuid.UUID) error
	MarkMessageRead(ctx context.Context, id uuid.UUID) error
	MarkMessageFailed(ctx context.Context, id uuid.UUID, errorMessage string) error
	SoftDeleteMessage(ctx context.Context, tenantID, id uuid.UUID) error

	// Templates
	CreateTemplate(ctx context.Context, t *db.Template) error
	GetTemplate(ctx context.Context, tenantID, id uuid.UUID) (*db.Template, error)
	ListTemplates(ctx context.Context, tenantID uuid.UUID, filter db.TemplateFilter) ([]*db.Template, error)
	UpdateTemplate(ctx context.Context, t *db.Template) error
	SoftDeleteTemplate(ctx context.Context, tenantID, id uuid.UUID) error
	CountTemplates(ctx context.Context, tenantID uuid.UUID, activeOnly bool) (int, error)

	// Campaigns
	CreateCampaign(ctx context.Context, c *db.Campaign) error
	GetCampaign(ctx context.Context, tenantID, id uuid.UUID) (*db.Campaign, error)
	ListCampaigns(ctx context.Context, tenantID uuid.UUID, filter db.CampaignFilter) ([]*db.Campaign, error)
	StartCampaign(ctx context.Context, id uuid.UUID) error
	CancelCampaign(ctx context.Context, id uuid.UUID) error
	CompleteCampaign(ctx context.Context, id uuid.UUID) error
	SoftDeleteCampaign(ctx context.Context, tenantID, id uuid.UUID) error
	CountCampaigns(ctx context.Context, tenantID uuid.UUID) (int, error)
	CountActiveCampaigns(ctx context.Context, tenantID uuid.UUID) (int, error)

	// Automations
	CreateAutomation(ctx context.Context, a *db.Automation) error
	GetAutomation(ctx context.Context, tenantID, id uuid.UUID) (*db.Automation, error)
	ListAutomations(ctx context.Context, tenantID uuid.UUID, filter db.AutomationFilter) ([]*db.Automation, error)
	UpdateAutomation(ctx context.Context, a *db.Automation) error
	SoftDeleteAutomation(ctx context.Context, tenantID, id uuid.UUID) error
	ListExecutions(ctx context.Context, tenantID, automationID uuid.UUID, page, perPage int) ([]*db.Execution, int, error)

	// Settings
	GetOrCreateSettings(ctx context.Context, tenantID uuid.UUID) (*db.Settings, error)
	UpdateSettings(ctx context.Context, s *db.Settings) error
}

// ErrorResponse represents an error in problem+json format
type ErrorResponse struct {
	Type   string `json:"type"`
	Title  string `json:"title"`
	Status int    `json:"status"`
	Detail string `json:"detail,omitempty"`
}

// Handler holds dependencies for API handlers
type Handler struct {
	logger      *zap.Logger
	store       Store
	idempotency *redis.IdempotencyService // nil if Redis not configured
}

// NewHandler creates a new API handler
func NewHandler(logger *zap.Logger, store Store) *Handler {
	return &Handler{
		logger: logger,
		store:  store,
	}
}

// NewHandlerWithIdempotency creates a handler with send-API idempotency support
func NewHandlerWithIdempotency(logger *zap.Logger, store Store, idempotency *redis.IdempotencyService) *Handler {
	return &Handler{
		logger:      logger,
		store:       store,
		idempotency: idempotency,
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeNotice reports a business-rule refusal. These are not protocol
// errors: the request was well formed but the action is not permitted
// in the record's current state, so the response stays 200.
func (h *Handler) writeNotice(w http.ResponseWriter, notice string) {
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": false,
		"notice":  notice,
	})
}

// writeFieldErrors reports validation failures keyed by field name.
func (h *Handler) writeFieldErrors(w http.ResponseWriter, fields FieldErrors) {
	h.writeJSON(w, http.StatusBadRequest, map[string]interface{}{
		"success": false,
		"errors":  fields,
	})
}

func (h *Handler) writeError(w http.ResponseWriter, status int, errType, title, detail string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)

	_ = json.NewEncoder(w).Encode(ErrorResponse{
		Type:   errType,
		Title:  title,
		Status: status,
		Detail: detail,
	})
}

// parsePagination reads page/per_page query parameters with defaults.
func parsePagination(r *http.Request) (page, perPage int) {
	page = 1
	perPage = db.DefaultPerPage

	if p := r.URL.Query().Get("page"); p != "" {
		if n, err := strconv.Atoi(p); err == nil && n > 0 {
			page = n
		}
	}
	if pp := r.URL.Query().Get("per_page"); pp != "" {
		if n, err := strconv.Atoi(pp); err == nil && n > 0 && n <= 100 {
			perPage = n
		}
	}
	return page, perPage
}

func totalPages(total, perPage int) int {
	if perPage <= 0 {
		return 0
	}
	pages := total / perPage
	if total%perPage != 0 {
		pages++
	}
	return pages
}
