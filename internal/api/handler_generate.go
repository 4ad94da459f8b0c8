package api

import (
	"net/http"

	"talk2data/internal/domain"
	"talk2data/internal/engine"
	"talk2data/internal/service/assistant"
)

func (h *Handler) generateSQL(w http.ResponseWriter, r *http.Request) {
	var req assistant.AskRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	ans, err := h.assistant.Ask(r.Context(), domain.PrincipalName(r.Context()), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ans)
}

// ValidateRequest is the body of POST /v1/validate-sql.
type ValidateRequest struct {
	SQL string `json:"sql"`
}

func (h *Handler) validateSQL(w http.ResponseWriter, r *http.Request) {
	var req ValidateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.validator.Validate(req.SQL))
}

// JoinPathRequest is the body of POST /v1/join-path.
type JoinPathRequest struct {
	SchemaName string   `json:"schema_name"`
	Tables     []string `json:"tables"`
}

// JoinPathResponse lists the tables in join order and the JOIN clauses.
type JoinPathResponse struct {
	Tables     []string `json:"tables"`
	JoinSQL    string   `json:"join_sql"`
	FromClause string   `json:"from_clause"`
}

func (h *Handler) joinPath(w http.ResponseWriter, r *http.Request) {
	var req JoinPathRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	if req.SchemaName == "" || len(req.Tables) == 0 {
		h.writeError(w, r, domain.ErrValidation("schema_name and tables are required"))
		return
	}
	doc, err := h.schemas.Document(r.Context(), domain.PrincipalName(r.Context()), req.SchemaName)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if missing := doc.MissingTables(req.Tables); len(missing) > 0 {
		h.writeError(w, r, &domain.SchemaValidationError{Missing: missing, Available: doc.TableNames()})
		return
	}
	path, ok := doc.FindJoinPath(req.Tables)
	if !ok {
		h.writeError(w, r, &domain.JoinPathError{Tables: req.Tables})
		return
	}
	writeJSON(w, http.StatusOK, JoinPathResponse{
		Tables:     path.Tables,
		JoinSQL:    path.ToSQL(),
		FromClause: path.FromClause(),
	})
}

// QueryRequest is the body of POST /v1/query.
type QueryRequest struct {
	assistant.AskRequest
	Files []engine.FileItem `json:"files"`
}

func (h *Handler) query(w http.ResponseWriter, r *http.Request) {
	var req QueryRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	if len(req.Files) == 0 {
		h.writeError(w, r, domain.ErrValidation("files are required"))
		return
	}
	if !h.opts.AllowLocalFiles {
		for _, f := range req.Files {
			if !engine.IsRemote(f.Source) {
				h.writeError(w, r, domain.ErrValidation("file %q: only s3://, gs://, az:// and https:// sources are accepted", f.Source))
				return
			}
		}
	}
	out, err := h.assistant.Execute(r.Context(), domain.PrincipalName(r.Context()), req.AskRequest, req.Files,
		engine.Options{S3: h.opts.S3, Azure: h.opts.Azure, GCS: h.opts.GCS, MaxRows: h.opts.MaxRows, Logger: h.logger})
	if err != nil {
		if out != nil {
			// The question was answered but the SQL was refused or failed to run.
			status := httpStatusFromDomainError(err)
			if status == http.StatusInternalServerError {
				status = http.StatusUnprocessableEntity
			}
			writeJSON(w, status, struct {
				ErrorBody
				Answer *assistant.Answer `json:"answer"`
			}{ErrorBody{Code: status, Message: err.Error()}, out.Answer})
			return
		}
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}
