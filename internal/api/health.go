package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ashureev/medendorse/internal/store"
)

const healthCheckTimeout = 5 * time.Second

// SessionCounter reports the number of live dictation connections.
type SessionCounter interface {
	Count() int
}

// HealthHandler handles health check endpoints.
type HealthHandler struct {
	repo     store.Repository
	sessions SessionCounter
}

// NewHealthHandler creates a new health handler. sessions may be nil.
func NewHealthHandler(repo store.Repository, sessions SessionCounter) *HealthHandler {
	return &HealthHandler{repo: repo, sessions: sessions}
}

// Health returns the health status of the API and its case store.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	checks := map[string]string{"api": "ok"}
	status := map[string]interface{}{
		"status": "healthy",
		"checks": checks,
	}
	statusCode := http.StatusOK

	if err := h.repo.Ping(ctx); err != nil {
		slog.Error("Health check failed", "error", err)
		status["status"] = "degraded"
		checks["store"] = "unreachable"
		statusCode = http.StatusServiceUnavailable
	} else {
		checks["store"] = "ok"
		if cases, err := h.repo.List(ctx); err == nil {
			status["cases"] = len(cases)
		}
	}
	if h.sessions != nil {
		status["dictationSessions"] = h.sessions.Count()
	}

	JSON(w, statusCode, status)
}

// RegisterHealth registers the health check route.
func (h *HealthHandler) RegisterHealth(r chi.Router) {
	r.Get("/health", h.Health)
}
