package api

import (
	"errors"
	"net/http"

	"talk2data/internal/domain"
)

// httpStatusFromDomainError maps domain errors to HTTP status codes.
func httpStatusFromDomainError(err error) int {
	var (
		notFound     *domain.NotFoundError
		accessDenied *domain.AccessDeniedError
		validation   *domain.ValidationError
		conflict     *domain.ConflictError
		format       *domain.SchemaFormatError
		schemaVal    *domain.SchemaValidationError
		noTables     *domain.NoRelevantTablesError
		joinPath     *domain.JoinPathError
		notAvailable *domain.DataNotAvailableError
	)

	switch {
	case errors.Is(err, domain.ErrModelUnavailable):
		return http.StatusServiceUnavailable
	case errors.As(err, &notFound):
		return http.StatusNotFound
	case errors.As(err, &accessDenied):
		return http.StatusForbidden
	case errors.As(err, &conflict):
		return http.StatusConflict
	case errors.As(err, &notAvailable):
		return http.StatusUnprocessableEntity
	case errors.As(err, &validation), errors.As(err, &format), errors.As(err, &schemaVal),
		errors.As(err, &noTables), errors.As(err, &joinPath):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// errorDetails exposes the structured fields of domain errors to clients.
func errorDetails(err error) map[string]interface{} {
	var (
		schemaVal *domain.SchemaValidationError
		noTables  *domain.NoRelevantTablesError
		joinPath  *domain.JoinPathError
	)
	switch {
	case errors.As(err, &schemaVal):
		return map[string]interface{}{"missing_tables": schemaVal.Missing, "available_tables": schemaVal.Available}
	case errors.As(err, &noTables):
		return map[string]interface{}{"available_tables": noTables.Available}
	case errors.As(err, &joinPath):
		return map[string]interface{}{"tables": joinPath.Tables}
	default:
		return nil
	}
}
