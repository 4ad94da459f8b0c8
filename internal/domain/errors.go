// Package domain defines core types, interfaces, and errors for talk2data.
package domain

import (
	"errors"
	"fmt"
	"strings"
)

// ErrModelUnavailable is returned when no language model is configured.
var ErrModelUnavailable = errors.New("language model is not configured: set OPENAI_API_KEY")

// NotFoundError indicates a resource was not found.
type NotFoundError struct {
	Message string
}

func (e *NotFoundError) Error() string { return e.Message }

// AccessDeniedError indicates insufficient permissions.
type AccessDeniedError struct {
	Message string
}

func (e *AccessDeniedError) Error() string { return e.Message }

// ValidationError indicates invalid input.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// ConflictError indicates a conflict (e.g., duplicate resource).
type ConflictError struct {
	Message string
}

func (e *ConflictError) Error() string { return e.Message }

// SchemaFormatError indicates a schema document that cannot be decoded.
type SchemaFormatError struct {
	Message string
}

func (e *SchemaFormatError) Error() string { return e.Message }

// NoRelevantTablesError is returned when table selection leaves nothing usable.
type NoRelevantTablesError struct {
	Question  string
	Available []string
}

func (e *NoRelevantTablesError) Error() string {
	return fmt.Sprintf("no relevant tables found for the question; available tables: %s",
		strings.Join(e.Available, ", "))
}

// SchemaValidationError is returned when selected tables do not exist in a
// multi-table schema.
type SchemaValidationError struct {
	Missing   []string
	Available []string
}

func (e *SchemaValidationError) Error() string {
	return fmt.Sprintf("tables not found in schema: %s; available tables: %s",
		strings.Join(e.Missing, ", "), strings.Join(e.Available, ", "))
}

// JoinPathError is returned when the selected tables are not connected by any
// declared relationship.
type JoinPathError struct {
	Tables []string
}

func (e *JoinPathError) Error() string {
	return fmt.Sprintf("Unable to connect selected tables with JOINs: %s", strings.Join(e.Tables, ", "))
}

// DataNotAvailableError carries the model's own explanation of why the
// question cannot be answered from the schema.
type DataNotAvailableError struct {
	Reason string
}

func (e *DataNotAvailableError) Error() string {
	return "data not available: " + e.Reason
}

// ColumnValidationFailure lists table.column references in generated SQL
// that the schema does not declare. It is reported as a value, not raised.
type ColumnValidationFailure struct {
	Unknown []string
}

func (e *ColumnValidationFailure) Error() string {
	return "generated SQL references undeclared columns: " + strings.Join(e.Unknown, ", ")
}

// ErrNotFound creates a NotFoundError with a formatted message.
func ErrNotFound(format string, args ...interface{}) *NotFoundError {
	return &NotFoundError{Message: fmt.Sprintf(format, args...)}
}

// ErrAccessDenied creates an AccessDeniedError with a formatted message.
func ErrAccessDenied(format string, args ...interface{}) *AccessDeniedError {
	return &AccessDeniedError{Message: fmt.Sprintf(format, args...)}
}

// ErrValidation creates a ValidationError with a formatted message.
func ErrValidation(format string, args ...interface{}) *ValidationError {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

// ErrConflict creates a ConflictError with a formatted message.
func ErrConflict(format string, args ...interface{}) *ConflictError {
	return &ConflictError{Message: fmt.Sprintf(format, args...)}
}

// ErrSchemaFormat creates a SchemaFormatError with a formatted message.
func ErrSchemaFormat(format string, args ...interface{}) *SchemaFormatError {
	return &SchemaFormatError{Message: fmt.Sprintf(format, args...)}
}
