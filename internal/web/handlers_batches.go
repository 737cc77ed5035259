package web

import (
	"fmt"
	"mime"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/JonMunkholm/remap/internal/core"
	"github.com/JonMunkholm/remap/internal/web/templates"
)

func (s *Server) handleBatchStatus(w http.ResponseWriter, r *http.Request) {
	b, err := s.service.Batch(chi.URLParam(r, "batchID"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, b.Status())
}

// handleOutcome returns one file's records before and after remapping,
// with its decode errors.
func (s *Server) handleOutcome(w http.ResponseWriter, r *http.Request) {
	out, err := s.service.Outcome(chi.URLParam(r, "batchID"), chi.URLParam(r, "fileID"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// handleDownload sends the transformed CSV as an attachment.
func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	out, err := s.service.Outcome(chi.URLParam(r, "batchID"), chi.URLParam(r, "fileID"))
	if err != nil {
		respondError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", out.Output.MIMEType+"; charset=utf-8")
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": out.Output.Name}))
	w.Header().Set("Content-Length", strconv.Itoa(len(out.Output.Data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(out.Output.Data)
}

func (s *Server) handleBatchPage(w http.ResponseWriter, r *http.Request) {
	b, err := s.service.Batch(chi.URLParam(r, "batchID"))
	if err != nil {
		respondError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := templates.BatchPage(b.Status(), b.Outcomes()).Render(r.Context(), w); err != nil {
		respondError(w, r, fmt.Errorf("render batch page: %w", err))
	}
}

// handleHistory lists recent batch summaries, newest first.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit := core.DefaultHistoryLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}

	history, err := s.service.ListHistory(r.Context(), limit)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, history)
}
