package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"talk2data/internal/domain"
	"talk2data/internal/middleware"
)

// maxBodyBytes bounds request bodies, schema uploads included.
const maxBodyBytes = 2 << 20

// ErrorBody is the JSON shape of every error response.
type ErrorBody struct {
	Code    int                    `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps err to a status. Internal errors are logged and replaced by
// a generic message.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := httpStatusFromDomainError(err)
	body := ErrorBody{Code: status, Message: err.Error(), Details: errorDetails(err)}
	if status == http.StatusInternalServerError {
		h.logger.Error("request failed", "error", err,
			"path", r.URL.Path, "request_id", middleware.RequestIDFromContext(r.Context()))
		body.Message = "internal server error"
	}
	writeJSON(w, status, body)
}

// decodeJSON reads a bounded JSON body into dst, rejecting unknown fields.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return domain.ErrValidation("request body exceeds %d bytes", maxBodyBytes)
		}
		if errors.Is(err, io.EOF) {
			return domain.ErrValidation("request body is required")
		}
		return domain.ErrValidation("invalid request body: %v", err)
	}
	return nil
}

func readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, domain.ErrValidation("request body exceeds %d bytes", maxBodyBytes)
		}
		return nil, fmt.Errorf("read body: %w", err)
	}
	if len(raw) == 0 {
		return nil, domain.ErrValidation("request body is required")
	}
	return raw, nil
}
