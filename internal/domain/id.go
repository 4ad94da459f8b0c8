package domain

import "github.com/google/uuid"

// NewID generates a time-ordered UUIDv7 string for history entries and
// request ids.
func NewID() string {
	return uuid.Must(uuid.NewV7()).String()
}
