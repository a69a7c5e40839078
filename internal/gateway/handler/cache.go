package handler

import (
	"context"
	"net/http"

	"github.com/Adithya-Monish-Kumar-K/Symptom-Diagnosis-Engine/pkg/logger"
)

// Invalidator drops cached predictions. *classifier.CachedService
// satisfies it.
type Invalidator interface {
	Invalidate(ctx context.Context) (int64, error)
}

// InvalidateCache handles POST /api/v1/cache/invalidate.
func (h *Handler) InvalidateCache(inv Invalidator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		deleted, err := inv.Invalidate(r.Context())
		if err != nil {
			logger.FromContext(r.Context()).Error("cache invalidation failed", "error", err)
			h.writeError(w, http.StatusInternalServerError, "cache invalidation failed", "internal")
			return
		}
		h.writeJSON(w, http.StatusOK, map[string]any{"status": "invalidated", "remote_deleted": deleted})
	}
}
