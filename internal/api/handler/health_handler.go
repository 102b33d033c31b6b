package handler

import (
	"context"
	"net/http"

	"taskweb/internal/common"
	"taskweb/internal/platform/database"

	"github.com/go-chi/chi/v5"
)

type DatabaseProber interface {
	Probe(ctx context.Context) database.Status
}

type HealthHandler struct {
	db DatabaseProber
}

func NewHealthHandler(db DatabaseProber) *HealthHandler {
	return &HealthHandler{db: db}
}

func (h *HealthHandler) RegisterRoutes(r chi.Router) {
	r.Get("/health", h.health)
	r.Get("/api/db-status", h.dbStatus)
}

func (h *HealthHandler) health(w http.ResponseWriter, r *http.Request) {
	common.RespondWithJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *HealthHandler) dbStatus(w http.ResponseWriter, r *http.Request) {
	status := h.db.Probe(r.Context())
	code := http.StatusOK
	if status.Status != "success" {
		code = http.StatusServiceUnavailable
	}
	common.RespondWithJSON(w, code, status)
}
