package functions

import (
	"fmt"
	"sort"
	"strings"
)

// Entry is one mounted route
type Entry struct {
	Route      string
	Source     string
	Kind       string
	Resolution string
	Handler    Handler
}

// Skipped records a module that was not mounted
type Skipped struct {
	Source string
	Reason string
}

// Table is the immutable, route-sorted set of entries built at startup
type Table struct {
	entries []Entry
	index   map[string]int
	skipped []Skipped
}

// NewTable builds a Table from entries. Duplicate routes are rejected with
// ErrRouteConflict.
func NewTable(entries []Entry) (*Table, error) {
	sources := make(map[string][]string, len(entries))
	for _, e := range entries {
		sources[e.Route] = append(sources[e.Route], e.Source)
	}
	if err := conflictError(sources); err != nil {
		return nil, err
	}

	sorted := make([]Entry, len(entries))
	copy(sorted, entries)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Route < sorted[j].Route
	})

	index := make(map[string]int, len(sorted))
	for i, e := range sorted {
		index[e.Route] = i
	}

	return &Table{entries: sorted, index: index}, nil
}

// Lookup returns the entry mounted at route
func (t *Table) Lookup(route string) (Entry, bool) {
	i, ok := t.index[route]
	if !ok {
		return Entry{}, false
	}
	return t.entries[i], true
}

// Entries returns a copy of the entries sorted by route
func (t *Table) Entries() []Entry {
	out := make([]Entry, len(t.entries))
	copy(out, t.entries)
	return out
}

// Routes returns the sorted routes
func (t *Table) Routes() []string {
	out := make([]string, len(t.entries))
	for i, e := range t.entries {
		out[i] = e.Route
	}
	return out
}

// Len returns the number of entries
func (t *Table) Len() int {
	return len(t.entries)
}

// Skipped returns the modules that discovery could not mount, sorted by source
func (t *Table) Skipped() []Skipped {
	out := make([]Skipped, len(t.skipped))
	copy(out, t.skipped)
	return out
}

// conflictError reports every route claimed by more than one source. Routes
// and sources are sorted so the message does not depend on walk order.
func conflictError(sources map[string][]string) error {
	var conflicts []string
	for route, srcs := range sources {
		if len(srcs) < 2 {
			continue
		}
		sorted := append([]string(nil), srcs...)
		sort.Strings(sorted)
		conflicts = append(conflicts, fmt.Sprintf("%s (%s)", route, strings.Join(sorted, ", ")))
	}
	if len(conflicts) == 0 {
		return nil
	}
	sort.Strings(conflicts)
	return fmt.Errorf("%w: %s", ErrRouteConflict, strings.Join(conflicts, "; "))
}
