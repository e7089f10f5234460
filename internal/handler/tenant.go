package handler

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"github.com/capitalize-ai/ai-engine/internal/middleware"
	"github.com/capitalize-ai/ai-engine/internal/tenant"
	"github.com/capitalize-ai/ai-engine/pkg/logger"
)

// ProfileCache is the cached tenant profile source.
type ProfileCache interface {
	Get(ctx context.Context, tenantID string) (tenant.Profile, error)
	Invalidate(tenantID string)
}

// TenantHandler exposes the caller's agent profile.
type TenantHandler struct {
	cache  ProfileCache
	logger *logger.Logger
}

// NewTenantHandler creates a new tenant handler.
func NewTenantHandler(cache ProfileCache, log *logger.Logger) *TenantHandler {
	return &TenantHandler{
		cache:  cache,
		logger: log.Named("handler.tenant"),
	}
}

// Profile handles GET /api/v1/tenant/profile
func (h *TenantHandler) Profile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := middleware.GetTenantID(ctx)

	p, err := h.cache.Get(ctx, tenantID)
	if err != nil {
		h.logger.Warn("tenant profile unavailable, showing defaults", zap.String("tenant_id", tenantID), zap.Error(err))
	}
	writeJSON(w, http.StatusOK, p)
}

// InvalidateCache handles DELETE /api/v1/tenant/cache
func (h *TenantHandler) InvalidateCache(w http.ResponseWriter, r *http.Request) {
	tenantID := middleware.GetTenantID(r.Context())
	h.cache.Invalidate(tenantID)
	h.logger.Info("tenant profile cache invalidated", zap.String("tenant_id", tenantID))
	w.WriteHeader(http.StatusNoContent)
}
