package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"talk2data/internal/domain"
	"talk2data/internal/schema"
)

var _ domain.SchemaStore = (*DirStore)(nil)

// DirStore keeps schema documents under {root}/{user}/{name}.json. Hand-written
// {name}.yaml files are also read and returned as JSON.
type DirStore struct {
	root string
}

// NewDirStore creates the root directory if needed.
func NewDirStore(root string) (*DirStore, error) {
	if root == "" {
		return nil, fmt.Errorf("schema directory is required")
	}
	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, fmt.Errorf("create schema directory: %w", err)
	}
	return &DirStore{root: root}, nil
}

// Root returns the base directory.
func (s *DirStore) Root() string { return s.root }

func (s *DirStore) path(user, name, ext string) string {
	return filepath.Join(s.root, user, name+ext)
}

// Put writes the document atomically via a temp file and rename.
func (s *DirStore) Put(_ context.Context, user, name string, raw []byte) error {
	if err := validateKey(user, name); err != nil {
		return err
	}
	dir := filepath.Join(s.root, user)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return wrapOp("put", user, name, err)
	}
	tmp, err := os.CreateTemp(dir, "."+name+"-*.tmp")
	if err != nil {
		return wrapOp("put", user, name, err)
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck

	if _, err := tmp.Write(raw); err != nil {
		_ = tmp.Close()
		return wrapOp("put", user, name, err)
	}
	if err := tmp.Close(); err != nil {
		return wrapOp("put", user, name, err)
	}
	if err := os.Rename(tmp.Name(), s.path(user, name, schemaExt)); err != nil {
		return wrapOp("put", user, name, err)
	}
	// Drop YAML twins so Get and List agree with what was written.
	for _, ext := range []string{".yaml", ".yml"} {
		_ = os.Remove(s.path(user, name, ext))
	}
	return nil
}

// Get reads {name}.json, falling back to {name}.yaml or {name}.yml.
func (s *DirStore) Get(_ context.Context, user, name string) ([]byte, error) {
	if err := validateKey(user, name); err != nil {
		return nil, err
	}
	raw, err := os.ReadFile(s.path(user, name, schemaExt))
	if err == nil {
		return raw, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return nil, wrapOp("get", user, name, err)
	}
	for _, ext := range []string{".yaml", ".yml"} {
		raw, err := os.ReadFile(s.path(user, name, ext))
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, wrapOp("get", user, name, err)
		}
		return schema.ToJSON(raw)
	}
	return nil, notFound(user, name)
}

// List returns the user's schema names; a missing user directory is empty.
func (s *DirStore) List(_ context.Context, user string) ([]string, error) {
	if err := validateKey(user, "x"); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(filepath.Join(s.root, user))
	if errors.Is(err, fs.ErrNotExist) {
		return []string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list schemas for %s: %w", user, err)
	}
	seen := make(map[string]bool)
	names := []string{}
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		ext := filepath.Ext(e.Name())
		switch ext {
		case schemaExt, ".yaml", ".yml":
		default:
			continue
		}
		n := strings.TrimSuffix(e.Name(), ext)
		if !seen[n] {
			seen[n] = true
			names = append(names, n)
		}
	}
	sort.Strings(names)
	return names, nil
}

// Delete removes every stored form of the document.
func (s *DirStore) Delete(_ context.Context, user, name string) error {
	if err := validateKey(user, name); err != nil {
		return err
	}
	removed := false
	for _, ext := range []string{schemaExt, ".yaml", ".yml"} {
		err := os.Remove(s.path(user, name, ext))
		switch {
		case err == nil:
			removed = true
		case !errors.Is(err, fs.ErrNotExist):
			return wrapOp("delete", user, name, err)
		}
	}
	if !removed {
		return notFound(user, name)
	}
	return nil
}
