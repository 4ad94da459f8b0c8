// Package storage persists schema documents in object storage or a local
// directory and caches their parsed form.
package storage

import (
	"fmt"
	"path"
	"regexp"
	"sort"
	"strings"

	"talk2data/internal/domain"
)

// DefaultPrefix is the key prefix under which schema documents are stored.
const DefaultPrefix = "schemas"

const schemaExt = ".json"

var namePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.@-]{0,127}$`)

// validateKey rejects user or schema names that could escape their prefix.
func validateKey(user, name string) error {
	if !namePattern.MatchString(user) || strings.Contains(user, "..") {
		return domain.ErrValidation("invalid user %q", user)
	}
	if !namePattern.MatchString(name) || strings.Contains(name, "..") {
		return domain.ErrValidation("invalid schema name %q", name)
	}
	return nil
}

// objectKey returns "{prefix}/{user}/{name}.json".
func objectKey(prefix, user, name string) string {
	return path.Join(prefix, user, name+schemaExt)
}

// userPrefix returns the listing prefix for one user, with a trailing slash.
func userPrefix(prefix, user string) string {
	return path.Join(prefix, user) + "/"
}

// schemaNames turns listed object keys into sorted schema names, ignoring
// nested keys and non-JSON objects.
func schemaNames(keys []string, listPrefix string) []string {
	names := make([]string, 0, len(keys))
	for _, k := range keys {
		rest := strings.TrimPrefix(k, listPrefix)
		if rest == k || strings.Contains(rest, "/") || !strings.HasSuffix(rest, schemaExt) {
			continue
		}
		if n := strings.TrimSuffix(rest, schemaExt); n != "" {
			names = append(names, n)
		}
	}
	sort.Strings(names)
	return names
}

func notFound(user, name string) error {
	return domain.ErrNotFound("schema %q not found for user %q", name, user)
}

func wrapOp(op, user, name string, err error) error {
	return fmt.Errorf("%s schema %s/%s: %w", op, user, name, err)
}
