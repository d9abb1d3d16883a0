package functions

import (
	"fmt"
	"path"
	"path/filepath"
	"strings"
)

// DefaultPrefix is the mount prefix used when none is configured
const DefaultPrefix = "/functions"

// NormalizePrefix returns prefix as an absolute path without a trailing slash.
// An empty prefix yields DefaultPrefix.
func NormalizePrefix(prefix string) string {
	if strings.TrimSpace(prefix) == "" {
		return DefaultPrefix
	}
	return path.Clean("/" + prefix)
}

// DeriveRoute maps a path relative to the handler root to its route: the
// extension is stripped and OS separators become forward slashes.
//
//	DeriveRoute("/functions", "users/create.lua") == "/functions/users/create"
func DeriveRoute(prefix, rel string) string {
	rel = filepath.ToSlash(rel)
	rel = strings.TrimSuffix(rel, path.Ext(rel))
	return path.Join(NormalizePrefix(prefix), rel)
}

// checkRoute rejects routes the router would read as a pattern
func checkRoute(route string) error {
	if strings.ContainsAny(route, "{}*") {
		return fmt.Errorf("%w: %s", ErrReservedRoute, route)
	}
	return nil
}
