// Package repository implements domain repository interfaces using SQLite.
package repository

import (
	"database/sql"
	"errors"

	"github.com/mattn/go-sqlite3"

	"talk2data/internal/domain"
)

// timeLayout matches the created_at default written by the migrations.
const timeLayout = "2006-01-02 15:04:05.000"

func boolToInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}

// mapDBError turns driver errors into domain errors.
func mapDBError(err error) error {
	var sqliteErr sqlite3.Error
	switch {
	case err == nil:
		return nil
	case errors.Is(err, sql.ErrNoRows):
		return domain.ErrNotFound("history entry not found")
	case errors.As(err, &sqliteErr) && sqliteErr.Code == sqlite3.ErrConstraint:
		if sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey || sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique {
			return domain.ErrConflict("history entry already exists")
		}
		return domain.ErrValidation("history entry rejected: %v", sqliteErr)
	}
	return err
}
