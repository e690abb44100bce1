package handlers

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/Billy-Davies-2/gamefilter/internal/logger"
)

const probeTimeout = 2 * time.Second

// Liveness handles Kubernetes liveness probes. It does not check
// dependencies.
func (h *APIHandlers) Liveness(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "alive",
		"timestamp": time.Now().Unix(),
	})
}

// Readiness handles Kubernetes readiness probes. The state store is the only
// critical dependency.
func (h *APIHandlers) Readiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), probeTimeout)
	defer cancel()

	if err := h.svc.Ping(ctx); err != nil {
		logger.Warn("Readiness check failed", "error", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status":    "not_ready",
			"reason":    "database_unavailable",
			"timestamp": time.Now().Unix(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ready",
		"timestamp": time.Now().Unix(),
	})
}

// Health reports the store and every registered dependency
func (h *APIHandlers) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), probeTimeout)
	defer cancel()

	status := "ok"
	httpStatus := http.StatusOK
	checks := make(map[string]any)

	probe := func(name string, c Check) {
		if err := c(ctx); err != nil {
			status = "degraded"
			httpStatus = http.StatusServiceUnavailable
			checks[name] = map[string]any{"status": "unhealthy", "error": err.Error()}
			return
		}
		checks[name] = map[string]any{"status": "healthy"}
	}

	probe("database", h.svc.Ping)
	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		probe(name, h.checks[name])
	}

	writeJSON(w, httpStatus, map[string]any{
		"status":    status,
		"timestamp": time.Now().Unix(),
		"checks":    checks,
	})
}
