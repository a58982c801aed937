// internal/handler/health_handler.go
package handler

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// Pinger checks one dependency, e.g. pool.Ping or CacheService.Health.
type Pinger func(ctx context.Context) error

type HealthHandler struct {
	checks map[string]Pinger
	logger *zap.Logger
}

func NewHealthHandler(checks map[string]Pinger, logger *zap.Logger) *HealthHandler {
	return &HealthHandler{checks: checks, logger: logger}
}

// HandleHealth reports 200 when every dependency answers within two seconds.
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status := map[string]string{}
	healthy := true
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			h.logger.Warn("health check failed", zap.String("dependency", name), zap.Error(err))
			status[name] = "down"
			healthy = false
			continue
		}
		status[name] = "up"
	}

	if !healthy {
		writeJSON(w, http.StatusServiceUnavailable, envelope{Success: false, Message: "degraded", Data: status})
		return
	}
	sendSuccess(w, http.StatusOK, "OK", status)
}
