package domain

import "time"

// History statuses.
const (
	HistoryStatusSuccess = "SUCCESS"
	HistoryStatusInvalid = "INVALID"
	HistoryStatusFailed  = "FAILED"
)

// HistoryEntry records one question answered (or rejected) by the assistant.
type HistoryEntry struct {
	ID               string
	PrincipalName    string
	SchemaName       string
	Question         string
	GeneratedSQL     *string
	Tables           []string
	Status           string
	ErrorMessage     *string
	Confidence       *float64
	Attempts         int
	ValidationPassed bool
	DurationMs       int64
	CreatedAt        time.Time
}

// HistoryFilter holds filter parameters for listing history.
type HistoryFilter struct {
	PrincipalName *string
	SchemaName    *string
	Status        *string
	From          *time.Time
	Page          PageRequest
}
