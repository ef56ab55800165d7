package api

import (
	"net/http"

	"go.uber.org/zap"
)

// Dashboard handles GET /dashboard: headline message stats, active
// campaign count, and the most recent sends.
func (h *Handler) Dashboard(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID, _ := TenantFromContext(ctx)

	stats, err := h.store.GetMessageStats(ctx, tenantID)
	if err != nil {
		h.logger.Error("failed to load message stats",
			zap.Error(err),
			zap.String("tenant_id", tenantID.String()),
		)
		h.writeError(w, http.StatusInternalServerError, "database_error", "Failed to load dashboard", "")
		return
	}

	activeCampaigns, err := h.store.CountActiveCampaigns(ctx, tenantID)
	if err != nil {
		h.logger.Error("failed to count active campaigns", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "database_error", "Failed to load dashboard", "")
		return
	}

	templateCount, err := h.store.CountTemplates(ctx, tenantID, false)
	if err != nil {
		h.logger.Error("failed to count templates", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "database_error", "Failed to load dashboard", "")
		return
	}

	recent, err := h.store.RecentMessages(ctx, tenantID, 10)
	if err != nil {
		h.logger.Error("failed to load recent messages", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "database_error", "Failed to load dashboard", "")
		return
	}

	recentDetails := make([]messageDetail, 0, len(recent))
	for _, m := range recent {
		recentDetails = append(recentDetails, messageDetail{
			Message:     m,
			ChannelIcon: m.ChannelIcon(),
			StatusColor: m.StatusColor(),
		})
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"total_messages":   stats.Total,
		"sent_today":       stats.SentToday,
		"delivered":        stats.Delivered,
		"failed":           stats.Failed,
		"delivery_rate":    stats.DeliveryRate(),
		"active_campaigns": activeCampaigns,
		"template_count":   templateCount,
		"recent_messages":  recentDetails,
	})
}
