package web

import (
	"context"
	"net/http"
	"time"

	"github.com/JonMunkholm/remap/internal/core"
	"github.com/JonMunkholm/remap/internal/format"
	"github.com/JonMunkholm/remap/internal/logging"
	"github.com/JonMunkholm/remap/internal/web/templates"
)

const healthTimeout = 2 * time.Second

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	saved, err := s.service.ListTemplates(r.Context())
	if err != nil {
		// The form still works with an inline mapping.
		logging.FromContext(r.Context()).Warn("list templates for index failed", "error", err)
		saved = nil
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := templates.Index(format.MIMETypes(), saved).Render(r.Context(), w); err != nil {
		logging.FromContext(r.Context()).Error("render index failed", "error", err)
	}
}

// handleHealth reports liveness and whether the store answers.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
	defer cancel()

	if err := s.service.Ping(ctx); err != nil {
		logging.FromContext(ctx).Error("health check failed", "error", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// StatusResponse reports admission occupancy and accepted types.
type StatusResponse struct {
	Limiter   core.LimiterStatus `json:"limiter"`
	MIMETypes []string           `json:"mime_types"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, StatusResponse{
		Limiter:   s.service.LimiterStatus(),
		MIMETypes: format.MIMETypes(),
	})
}
