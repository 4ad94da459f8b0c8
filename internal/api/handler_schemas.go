package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"talk2data/internal/domain"
)

// SchemaListResponse is the body of GET /v1/schemas.
type SchemaListResponse struct {
	Schemas []string `json:"schemas"`
}

func (h *Handler) listSchemas(w http.ResponseWriter, r *http.Request) {
	names, err := h.schemas.List(r.Context(), domain.PrincipalName(r.Context()))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if names == nil {
		names = []string{}
	}
	writeJSON(w, http.StatusOK, SchemaListResponse{Schemas: names})
}

func (h *Handler) getSchema(w http.ResponseWriter, r *http.Request) {
	raw, err := h.schemas.Get(r.Context(), domain.PrincipalName(r.Context()), chi.URLParam(r, "name"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(raw)
}

// SchemaPutResponse confirms an upload.
type SchemaPutResponse struct {
	Name   string   `json:"name"`
	Tables []string `json:"tables"`
}

// putSchema accepts a JSON or YAML document. Invalid documents are rejected
// before anything is stored.
func (h *Handler) putSchema(w http.ResponseWriter, r *http.Request) {
	user := domain.PrincipalName(r.Context())
	name := chi.URLParam(r, "name")
	raw, err := readBody(w, r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := h.schemas.Put(r.Context(), user, name, raw); err != nil {
		h.writeError(w, r, err)
		return
	}
	doc, err := h.schemas.Document(r.Context(), user, name)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.logger.Info("schema stored", "user", user, "schema", name, "tables", len(doc.Tables))
	writeJSON(w, http.StatusOK, SchemaPutResponse{Name: name, Tables: doc.TableNames()})
}

func (h *Handler) deleteSchema(w http.ResponseWriter, r *http.Request) {
	if err := h.schemas.Delete(r.Context(), domain.PrincipalName(r.Context()), chi.URLParam(r, "name")); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SchemaSummaryResponse is the body of GET /v1/schemas/{name}/summary.
type SchemaSummaryResponse struct {
	Name    string   `json:"name"`
	Tables  []string `json:"tables"`
	Flat    bool     `json:"flat"`
	Summary string   `json:"summary"`
	KPIs    string   `json:"kpis,omitempty"`
}

func (h *Handler) schemaSummary(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	doc, err := h.schemas.Document(r.Context(), domain.PrincipalName(r.Context()), name)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, SchemaSummaryResponse{
		Name:    name,
		Tables:  doc.TableNames(),
		Flat:    doc.IsFlat(),
		Summary: doc.SchemaSummary(),
		KPIs:    doc.KPIsSummary(),
	})
}
