package db

import (
	"path/filepath"
	"testing"
)

// OpenTestSQLite opens a migrated history database in t.TempDir() and closes
// it when the test ends.
func OpenTestSQLite(t testing.TB) *History {
	t.Helper()

	h, err := OpenHistory(filepath.Join(t.TempDir(), "history.sqlite"))
	if err != nil {
		t.Fatalf("open test sqlite: %v", err)
	}
	t.Cleanup(func() { _ = h.Close() })
	return h
}
