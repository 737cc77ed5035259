package web

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/JonMunkholm/remap/internal/core"
	"github.com/JonMunkholm/remap/internal/record"
)

// templateRequest is the body of create and update calls.
type templateRequest struct {
	Name    string              `json:"name"`
	Mapping record.FieldMapping `json:"mapping"`
}

func decodeTemplateRequest(r *http.Request) (templateRequest, error) {
	var req templateRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		return req, fmt.Errorf("%w: %v", core.ErrInvalidMapping, err)
	}
	return req, nil
}

func (s *Server) handleListTemplates(w http.ResponseWriter, r *http.Request) {
	list, err := s.service.ListTemplates(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// handleMatchTemplates scores saved templates against ?headers=a,b,c.
func (s *Server) handleMatchTemplates(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("headers")
	headers := []string{}
	if raw != "" {
		for _, h := range strings.Split(raw, ",") {
			headers = append(headers, strings.TrimSpace(h))
		}
	}

	matches, err := s.service.MatchTemplates(r.Context(), headers)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, matches)
}

func (s *Server) handleGetTemplate(w http.ResponseWriter, r *http.Request) {
	t, err := s.service.GetTemplate(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (s *Server) handleCreateTemplate(w http.ResponseWriter, r *http.Request) {
	req, err := decodeTemplateRequest(r)
	if err != nil {
		respondError(w, r, err)
		return
	}

	t, err := s.service.CreateTemplate(r.Context(), req.Name, req.Mapping)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, t)
}

func (s *Server) handleUpdateTemplate(w http.ResponseWriter, r *http.Request) {
	req, err := decodeTemplateRequest(r)
	if err != nil {
		respondError(w, r, err)
		return
	}

	t, err := s.service.UpdateTemplate(r.Context(), chi.URLParam(r, "id"), req.Name, req.Mapping)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (s *Server) handleDeleteTemplate(w http.ResponseWriter, r *http.Request) {
	if err := s.service.DeleteTemplate(r.Context(), chi.URLParam(r, "id")); err != nil {
		respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
