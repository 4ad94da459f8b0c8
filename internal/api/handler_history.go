package api

import (
	"net/http"
	"strconv"
	"time"

	"talk2data/internal/domain"
)

// HistoryItem is one entry of GET /v1/history.
type HistoryItem struct {
	ID               string    `json:"id"`
	SchemaName       string    `json:"schema_name"`
	Question         string    `json:"question"`
	SQL              *string   `json:"sql,omitempty"`
	Tables           []string  `json:"tables"`
	Status           string    `json:"status"`
	ErrorMessage     *string   `json:"error_message,omitempty"`
	Confidence       *float64  `json:"confidence,omitempty"`
	Attempts         int       `json:"attempts"`
	ValidationPassed bool      `json:"validation_passed"`
	DurationMs       int64     `json:"duration_ms"`
	CreatedAt        time.Time `json:"created_at"`
}

// HistoryResponse is one page of the caller's history.
type HistoryResponse struct {
	Entries       []HistoryItem `json:"entries"`
	Total         int64         `json:"total"`
	NextPageToken string        `json:"next_page_token,omitempty"`
}

// listHistory returns the calling principal's own entries only.
func (h *Handler) listHistory(w http.ResponseWriter, r *http.Request) {
	if h.history == nil {
		h.writeError(w, r, domain.ErrNotFound("query history is not enabled"))
		return
	}
	q := r.URL.Query()
	principal := domain.PrincipalName(r.Context())
	filter := domain.HistoryFilter{
		PrincipalName: &principal,
		Page:          domain.PageRequest{PageToken: q.Get("page_token")},
	}
	if err := filter.Page.Validate(); err != nil {
		h.writeError(w, r, err)
		return
	}
	if v := q.Get("max_results"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			h.writeError(w, r, domain.ErrValidation("max_results must be a positive integer"))
			return
		}
		filter.Page.MaxResults = n
	}
	if v := q.Get("schema_name"); v != "" {
		filter.SchemaName = &v
	}
	if v := q.Get("status"); v != "" {
		switch v {
		case domain.HistoryStatusSuccess, domain.HistoryStatusInvalid, domain.HistoryStatusFailed:
			filter.Status = &v
		default:
			h.writeError(w, r, domain.ErrValidation("unknown status %q", v))
			return
		}
	}
	if v := q.Get("from"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			h.writeError(w, r, domain.ErrValidation("from must be an RFC 3339 timestamp"))
			return
		}
		filter.From = &t
	}

	entries, total, err := h.history.List(r.Context(), filter)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	resp := HistoryResponse{
		Entries:       make([]HistoryItem, len(entries)),
		Total:         total,
		NextPageToken: domain.NextPageToken(filter.Page.Offset(), filter.Page.Limit(), total),
	}
	for i, e := range entries {
		resp.Entries[i] = HistoryItem{
			ID:               e.ID,
			SchemaName:       e.SchemaName,
			Question:         e.Question,
			SQL:              e.GeneratedSQL,
			Tables:           e.Tables,
			Status:           e.Status,
			ErrorMessage:     e.ErrorMessage,
			Confidence:       e.Confidence,
			Attempts:         e.Attempts,
			ValidationPassed: e.ValidationPassed,
			DurationMs:       e.DurationMs,
			CreatedAt:        e.CreatedAt,
		}
	}
	writeJSON(w, http.StatusOK, resp)
}
