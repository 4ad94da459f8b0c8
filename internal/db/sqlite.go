// Package db opens the SQLite history database and applies its migrations.
package db

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3" // register the sqlite3 driver
)

// Mode selects the pool shape of an SQLite handle.
type Mode string

// Pool modes. Writes go through a single connection so SQLite never sees two
// writers; reads get a small pool.
const (
	ModeWrite Mode = "write"
	ModeRead  Mode = "read"
)

const (
	busyTimeoutMs   = "5000"
	defaultReadPool = 4
)

// OpenSQLite opens path in the given mode with WAL journaling, a busy timeout
// and foreign keys enabled. maxOpen sizes the read pool (0 means 4).
func OpenSQLite(path string, mode Mode, maxOpen int) (*sql.DB, error) {
	if mode != ModeRead && mode != ModeWrite {
		return nil, fmt.Errorf("invalid SQLite mode %q: must be %q or %q", mode, ModeRead, ModeWrite)
	}

	db, err := sql.Open("sqlite3", buildDSN(path, mode))
	if err != nil {
		return nil, fmt.Errorf("open sqlite (%s): %w", mode, err)
	}

	if mode == ModeWrite {
		maxOpen = 1
	} else if maxOpen <= 0 {
		maxOpen = defaultReadPool
	}
	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(maxOpen)
	db.SetConnMaxLifetime(time.Hour)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite (%s): %w", mode, err)
	}
	return db, nil
}

// History bundles the write and read pools of the history database.
type History struct {
	Write *sql.DB
	Read  *sql.DB
}

// Close closes both pools.
func (h *History) Close() error {
	rerr := h.Read.Close()
	if err := h.Write.Close(); err != nil {
		return err
	}
	return rerr
}

// OpenHistory creates the parent directory if needed, opens both pools and
// applies pending migrations on the write pool.
func OpenHistory(path string) (*History, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("create history directory: %w", err)
		}
	}
	w, err := OpenSQLite(path, ModeWrite, 0)
	if err != nil {
		return nil, err
	}
	r, err := OpenSQLite(path, ModeRead, 0)
	if err != nil {
		_ = w.Close()
		return nil, err
	}
	h := &History{Write: w, Read: r}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if _, err := RunMigrations(ctx, w); err != nil {
		_ = h.Close()
		return nil, err
	}
	return h, nil
}

func buildDSN(path string, mode Mode) string {
	params := url.Values{}
	params.Set("_journal_mode", "WAL")
	params.Set("_busy_timeout", busyTimeoutMs)
	params.Set("_synchronous", "NORMAL")
	params.Set("_foreign_keys", "on")
	if mode == ModeWrite {
		params.Set("_txlock", "immediate")
	}
	return path + "?" + params.Encode()
}
